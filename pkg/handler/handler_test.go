package handler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pointer/pkg/agent"
	"pointer/pkg/api"
	"pointer/pkg/llm"
	"pointer/pkg/transcript"
)

type fakeEngine struct {
	mu        sync.Mutex
	created   int
	handled   map[string][]llm.Message
	cancelled []string
	busy      bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{handled: make(map[string][]llm.Message)}
}

func (f *fakeEngine) HandleMessage(_ context.Context, id string, msg llm.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return agent.ErrChainBusy
	}
	f.handled[id] = append(f.handled[id], msg)
	return nil
}

func (f *fakeEngine) Cancel(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return true
}

func (f *fakeEngine) NewSession(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return []string{"", "first", "second", "third"}[f.created], nil
}

func (f *fakeEngine) History(_ context.Context, id string) ([]llm.Message, error) {
	return []llm.Message{llm.NewSystemMessage("sys")}, nil
}

type fakeResponder struct {
	mu      sync.Mutex
	replies []string
	events  []api.Event
	signals []string
}

func (r *fakeResponder) SendReply(_ api.SessionContext, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, content)
	return nil
}

func (r *fakeResponder) SendSignal(_ api.SessionContext, signal string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, signal)
	return nil
}

func (r *fakeResponder) SendEvent(_ api.SessionContext, ev api.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *fakeResponder) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeLister []transcript.Summary

func (l fakeLister) List(context.Context) ([]transcript.Summary, error) { return l, nil }

func newTestHandler() (*ChatHandler, *fakeEngine, *fakeResponder) {
	eng := newFakeEngine()
	resp := &fakeResponder{}
	h := NewChatHandler(eng, fakeLister{{ID: "first", Name: "hello"}}, 0)
	h.SetResponder(resp)
	return h, eng, resp
}

var chat = api.SessionContext{ChannelID: "telegram", ChatID: "42", UserID: "7", Username: "dev"}

func TestFirstMessageOpensSession(t *testing.T) {
	h, eng, resp := newTestHandler()

	h.OnMessage(&api.UnifiedMessage{Session: chat, Content: "fix the build"})
	h.OnMessage(&api.UnifiedMessage{Session: chat, Content: "and the tests"})
	h.Wait()

	assert.Equal(t, 1, eng.created)
	require.Len(t, eng.handled["first"], 2)
	assert.Equal(t, llm.RoleUser, eng.handled["first"][0].Role)
	assert.Equal(t, []string{api.EventSession}, resp.eventTypes())
}

func TestAttachmentsBecomeSnapshots(t *testing.T) {
	h, eng, _ := newTestHandler()

	h.OnMessage(&api.UnifiedMessage{
		Session: chat,
		Content: "look at this",
		Files: []api.FileAttachment{
			{Filename: "main.go", Data: []byte("package main\n")},
			{Filename: "logo.png", Data: []byte{0xff, 0xfe, 0xfd}},
		},
	})
	h.Wait()

	msgs := eng.handled["first"]
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Attachments, 1)
	assert.Equal(t, "main.go", msgs[0].Attachments[0].Path)
}

func TestPinnedSessionWins(t *testing.T) {
	h, eng, _ := newTestHandler()
	web := api.SessionContext{ChannelID: "web", ChatID: "conn-1", SessionID: "older"}

	h.OnMessage(&api.UnifiedMessage{Session: web, Content: "resume"})
	h.Wait()

	assert.Zero(t, eng.created)
	assert.Len(t, eng.handled["older"], 1)
}

func TestBusySessionReplies(t *testing.T) {
	h, eng, resp := newTestHandler()
	eng.busy = true

	h.OnMessage(&api.UnifiedMessage{Session: chat, Content: "hello"})
	h.Wait()

	require.Len(t, resp.replies, 1)
	assert.Contains(t, resp.replies[0], "/cancel")
}

func TestCommands(t *testing.T) {
	h, eng, resp := newTestHandler()

	h.OnMessage(&api.UnifiedMessage{Session: chat, Content: "/cancel"})
	assert.Equal(t, []string{"Nothing to cancel."}, resp.replies)

	h.OnMessage(&api.UnifiedMessage{Session: chat, Content: "/new@pointer_bot"})
	assert.Equal(t, 1, eng.created)
	assert.Contains(t, resp.replies, "Started a new session.")

	h.OnMessage(&api.UnifiedMessage{Session: chat, Command: api.CommandCancel})
	assert.Equal(t, []string{"first"}, eng.cancelled)

	h.OnMessage(&api.UnifiedMessage{Session: chat, Command: api.CommandHistory})
	h.OnMessage(&api.UnifiedMessage{Session: chat, Command: api.CommandSessions})
	types := resp.eventTypes()
	assert.Contains(t, types, api.EventHistory)
	assert.Contains(t, types, api.EventSessions)

	h.OnMessage(&api.UnifiedMessage{Session: chat, Content: "/frobnicate"})
	assert.Contains(t, resp.replies[len(resp.replies)-1], "Unknown command")
}

func TestObserverRoutesToChat(t *testing.T) {
	h, _, resp := newTestHandler()
	h.OnMessage(&api.UnifiedMessage{Session: chat, Content: "hi"})
	h.Wait()

	h.OnDelta("first", 3, "Hel")
	h.OnSignal("first", "thinking")
	h.OnTurn("first", llm.NewAssistantMessage("Hello"))
	h.OnChainDone("first")
	h.OnDelta("unknown", 1, "ignored")

	assert.Equal(t, []string{api.EventSession, api.EventDelta, api.EventTurn, api.EventDone}, resp.eventTypes())
	assert.Equal(t, []string{"thinking"}, resp.signals)
}

func TestSlashCommand(t *testing.T) {
	cases := map[string]string{
		"/new":            api.CommandNewSession,
		" /cancel now":    api.CommandCancel,
		"/stop@bot":       api.CommandCancel,
		"/chats":          api.CommandSessions,
		"plain text":      "",
		"path /etc/hosts": "",
	}
	for in, want := range cases {
		assert.Equal(t, want, slashCommand(in), in)
	}
}
