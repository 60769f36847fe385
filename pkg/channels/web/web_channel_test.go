package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pointer/pkg/api"
	"pointer/pkg/transcript"
)

type inbox struct {
	msgs chan *api.UnifiedMessage
}

func (i *inbox) OnMessage(_ string, msg *api.UnifiedMessage)   { i.msgs <- msg }
func (i *inbox) SendReply(api.SessionContext, string) error    { return nil }
func (i *inbox) SendSignal(api.SessionContext, string) error   { return nil }
func (i *inbox) SendEvent(api.SessionContext, api.Event) error { return nil }

func dial(t *testing.T, c *WebChannel) (*websocket.Conn, *inbox) {
	t.Helper()
	in := &inbox{msgs: make(chan *api.UnifiedMessage, 8)}
	srv := httptest.NewServer(c.Handler(in))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, in
}

func receive(t *testing.T, in *inbox) *api.UnifiedMessage {
	t.Helper()
	select {
	case msg := <-in.msgs:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) api.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev api.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestProtocolRoundTrip(t *testing.T) {
	c := NewWebChannel(WebConfig{}, nil)
	conn, in := dial(t, c)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"message","session_id":"s1","text":"hi","files":[{"path":"a.go","content":"package a"}]}`)))
	msg := receive(t, in)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, "s1", msg.Session.SessionID)
	assert.Equal(t, "web", msg.Session.ChannelID)
	require.Len(t, msg.Files, 1)
	assert.Equal(t, "package a", string(msg.Files[0].Data))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"cancel","session_id":"s1"}`)))
	assert.Equal(t, api.CommandCancel, receive(t, in).Command)

	// server -> client
	require.NoError(t, c.SendEvent(msg.Session, api.Event{Type: api.EventDelta, Seq: 4, Content: "Hel"}))
	ev := readEvent(t, conn)
	assert.Equal(t, api.EventDelta, ev.Type)
	assert.Equal(t, int64(4), ev.Seq)

	require.NoError(t, c.Send(msg.Session, "Started a new session."))
	assert.Equal(t, api.EventReply, readEvent(t, conn).Type)

	require.NoError(t, c.EmitChange(context.Background(), api.FileChange{ID: "x", Path: "a.go", After: "package a\n"}))
	ev = readEvent(t, conn)
	assert.Equal(t, api.EventDiff, ev.Type)
	require.NotNil(t, ev.Change)
	assert.Equal(t, "a.go", ev.Change.Path)
}

func TestPlainTextFrame(t *testing.T) {
	c := NewWebChannel(WebConfig{}, nil)
	conn, in := dial(t, c)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("just text")))
	assert.Equal(t, "just text", receive(t, in).Content)
}

func TestUnknownClient(t *testing.T) {
	c := NewWebChannel(WebConfig{}, nil)
	err := c.SendEvent(api.SessionContext{ChatID: "nobody"}, api.Event{Type: api.EventDone})
	assert.Error(t, err)
}

func TestSessionsEndpoint(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewWebChannel(WebConfig{}, func(context.Context) ([]transcript.Summary, error) {
		return []transcript.Summary{{ID: "s1", Name: "Fix build", CreatedAt: created, MessageCount: 3}}, nil
	})
	srv := httptest.NewServer(c.Handler(&inbox{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []transcript.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "Fix build", list[0].Name)
}
