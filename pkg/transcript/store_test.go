package transcript

import (
	"strings"
	"sync"
	"testing"

	"pointer/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAssignsIncreasingSeq(t *testing.T) {
	clock := NewSessionClock()
	store := NewStore(NewSession("sys", clock), clock)

	added := store.Append(llm.NewUserMessage("a"), llm.NewAssistantMessage("b"))
	require.Len(t, added, 2)
	assert.Equal(t, int64(2), added[0].Seq)
	assert.Equal(t, int64(3), added[1].Seq)

	msgs := store.Messages()
	msgs[0].Content = "mutated"
	assert.Equal(t, "sys", store.Messages()[0].Content, "readers get copies")
}

func TestStoreObservesLoadedSeq(t *testing.T) {
	sess := &Session{ID: "s1", Messages: []llm.Message{{Seq: 40, Role: llm.RoleSystem}}}
	clock := NewSessionClock()
	store := NewStore(sess, clock)

	added := store.Append(llm.NewUserMessage("next"))
	assert.Equal(t, int64(41), added[0].Seq)

	store.Reset(&Session{ID: "s1", Messages: []llm.Message{{Seq: 90, Role: llm.RoleSystem}}})
	assert.Equal(t, int64(91), store.Append(llm.NewUserMessage("x"))[0].Seq)
}

func TestStoreConcurrentAppends(t *testing.T) {
	clock := NewSessionClock()
	store := NewStore(NewSession("sys", clock), clock)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Append(llm.NewUserMessage("m"))
		}()
	}
	wg.Wait()

	msgs := store.Messages()
	require.Len(t, msgs, 51)
	seen := map[int64]bool{}
	for _, m := range msgs {
		assert.False(t, seen[m.Seq])
		seen[m.Seq] = true
	}
}

func TestSessionClockSaveVersion(t *testing.T) {
	clock := NewSessionClock()
	assert.Equal(t, uint64(0), clock.SaveVersion())
	assert.Equal(t, uint64(1), clock.BumpSave())
	assert.Equal(t, uint64(2), clock.BumpSave())
	assert.Equal(t, uint64(2), clock.SaveVersion())

	clock.Observe(10)
	clock.Observe(3)
	assert.Equal(t, int64(11), clock.NextSeq())
}

func TestNameFromMessage(t *testing.T) {
	assert.Equal(t, DefaultName, NameFromMessage("   "))
	assert.Equal(t, "add a log line", NameFromMessage("add  a\nlog line"))

	long := strings.Repeat("é", 50)
	name := NameFromMessage(long)
	assert.Equal(t, strings.Repeat("é", 40)+"...", name)
}

func TestNewSessionID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
	assert.Equal(t, strings.ToLower(a), a)
}
