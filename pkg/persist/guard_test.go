package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pointer/pkg/llm"
	"pointer/pkg/sched"
	"pointer/pkg/transcript"
)

type memBackend struct {
	mu     sync.Mutex
	saved  map[string]*transcript.Session
	writes int
	err    error
}

func newMemBackend() *memBackend {
	return &memBackend{saved: map[string]*transcript.Session{}}
}

func (m *memBackend) Save(ctx context.Context, sess *transcript.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.writes++
	m.saved[sess.ID] = sess.Clone()
	return nil
}

func (m *memBackend) Load(ctx context.Context, id string) (*transcript.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.saved[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *memBackend) List(ctx context.Context) ([]transcript.Summary, error) { return nil, nil }
func (m *memBackend) Close() error                                           { return nil }

func snapshotWith(base *transcript.Session, text string) *transcript.Session {
	s := base.Clone()
	s.Messages = append(s.Messages, llm.NewUserMessage(text))
	return s
}

func TestStaleWriteIsDiscarded(t *testing.T) {
	clock := transcript.NewSessionClock()
	for i := 0; i < 4; i++ {
		clock.BumpSave()
	}
	backend := newMemBackend()
	g := NewGuard(backend, clock, sched.NewFake(time.Unix(0, 0)), time.Second)
	base := transcript.NewSession("sys", clock)

	p5 := g.Stamp(snapshotWith(base, "five"))
	p6 := g.Stamp(snapshotWith(base, "six"))
	require.Equal(t, uint64(5), p5.Version)
	require.Equal(t, uint64(6), p6.Version)

	ctx := context.Background()
	wrote, err := g.Commit(ctx, p6)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = g.Commit(ctx, p5)
	require.NoError(t, err)
	assert.False(t, wrote)

	got, err := backend.Load(ctx, base.ID)
	require.NoError(t, err)
	assert.Equal(t, "six", got.Messages[len(got.Messages)-1].Content)
	assert.Equal(t, 1, backend.writes)
}

func TestOlderWriteSkippedEvenBeforeNewerFlushes(t *testing.T) {
	clock := transcript.NewSessionClock()
	backend := newMemBackend()
	g := NewGuard(backend, clock, sched.NewFake(time.Unix(0, 0)), time.Second)
	base := transcript.NewSession("sys", clock)

	old := g.Stamp(snapshotWith(base, "old"))
	g.Stamp(snapshotWith(base, "new"))

	wrote, err := g.Commit(context.Background(), old)
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.Equal(t, 0, backend.writes)
}

func TestScheduleDebounces(t *testing.T) {
	clock := transcript.NewSessionClock()
	fake := sched.NewFake(time.Unix(0, 0))
	backend := newMemBackend()
	g := NewGuard(backend, clock, fake, 300*time.Millisecond)
	base := transcript.NewSession("sys", clock)

	g.Schedule(snapshotWith(base, "a"))
	fake.Advance(100 * time.Millisecond)
	g.Schedule(snapshotWith(base, "b"))
	fake.Advance(100 * time.Millisecond)
	v := g.Schedule(snapshotWith(base, "c"))
	assert.Equal(t, 0, backend.writes)

	fake.Advance(300 * time.Millisecond)
	assert.Equal(t, 1, backend.writes)
	assert.Equal(t, uint64(3), v)

	got, _ := backend.Load(context.Background(), base.ID)
	assert.Equal(t, "c", got.Messages[1].Content)
}

func TestSaveNowSupersedesScheduled(t *testing.T) {
	clock := transcript.NewSessionClock()
	fake := sched.NewFake(time.Unix(0, 0))
	backend := newMemBackend()
	g := NewGuard(backend, clock, fake, time.Second)
	base := transcript.NewSession("sys", clock)

	g.Schedule(snapshotWith(base, "scheduled"))
	require.NoError(t, g.SaveNow(context.Background(), snapshotWith(base, "now")))
	fake.Advance(2 * time.Second)

	assert.Equal(t, 1, backend.writes)
	got, _ := backend.Load(context.Background(), base.ID)
	assert.Equal(t, "now", got.Messages[1].Content)
}

func TestFlushWritesPending(t *testing.T) {
	clock := transcript.NewSessionClock()
	fake := sched.NewFake(time.Unix(0, 0))
	backend := newMemBackend()
	g := NewGuard(backend, clock, fake, time.Hour)
	base := transcript.NewSession("sys", clock)

	g.Schedule(snapshotWith(base, "pending"))
	require.NoError(t, g.Flush(context.Background()))
	assert.Equal(t, 1, backend.writes)
	assert.Equal(t, 0, fake.PendingTimers())

	require.NoError(t, g.Flush(context.Background()))
	assert.Equal(t, 1, backend.writes)
}

func TestCommitReportsBackendError(t *testing.T) {
	clock := transcript.NewSessionClock()
	backend := newMemBackend()
	backend.err = errors.New("disk full")
	g := NewGuard(backend, clock, sched.NewFake(time.Unix(0, 0)), time.Second)

	err := g.SaveNow(context.Background(), transcript.NewSession("sys", clock))
	assert.EqualError(t, err, "disk full")
}

func TestGuardWithRealScheduler(t *testing.T) {
	clock := transcript.NewSessionClock()
	backend := newMemBackend()
	g := NewGuard(backend, clock, sched.Real{}, 10*time.Millisecond)
	base := transcript.NewSession("sys", clock)

	g.Schedule(snapshotWith(base, "x"))
	assert.Eventually(t, func() bool {
		_, err := backend.Load(context.Background(), base.ID)
		return err == nil
	}, time.Second, 5*time.Millisecond)
}
