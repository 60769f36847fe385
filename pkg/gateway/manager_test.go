package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pointer/pkg/api"
	"pointer/pkg/llm"
	"pointer/pkg/monitor"
)

type textChannel struct {
	id      string
	sent    []string
	started bool
	stopped bool
}

func (c *textChannel) ID() string                     { return c.id }
func (c *textChannel) Start(api.ChannelContext) error { c.started = true; return nil }
func (c *textChannel) Stop() error                    { c.stopped = true; return nil }
func (c *textChannel) Send(_ api.SessionContext, m string) error {
	c.sent = append(c.sent, m)
	return nil
}

type eventChannel struct {
	textChannel
	events  []api.Event
	signals []string
}

func (c *eventChannel) SendEvent(_ api.SessionContext, e api.Event) error {
	c.events = append(c.events, e)
	return nil
}

func (c *eventChannel) SendSignal(_ api.SessionContext, s string) error {
	c.signals = append(c.signals, s)
	return nil
}

type recordingMonitor struct {
	msgs []monitor.MonitorMessage
}

func (m *recordingMonitor) Start() error                         { return nil }
func (m *recordingMonitor) Stop() error                          { return nil }
func (m *recordingMonitor) OnMessage(msg monitor.MonitorMessage) { m.msgs = append(m.msgs, msg) }

func turnEvent(role, content string) api.Event {
	msg := llm.NewTextMessage(role, content)
	return api.Event{Type: api.EventTurn, Message: &msg}
}

func TestSendEventFallsBackToText(t *testing.T) {
	tg := &textChannel{id: "telegram"}
	mon := &recordingMonitor{}
	var got []*api.UnifiedMessage

	gw, err := NewGatewayBuilder().
		WithMonitor(mon).
		WithChannel(tg).
		WithHandler(api.MessageHandler(func(m *api.UnifiedMessage) { got = append(got, m) })).
		Build()
	require.NoError(t, err)
	assert.True(t, tg.started)

	session := api.SessionContext{ChannelID: "telegram", ChatID: "1"}
	require.NoError(t, gw.SendEvent(session, turnEvent(llm.RoleAssistant, "done, see main.go")))
	require.NoError(t, gw.SendEvent(session, turnEvent(llm.RoleTool, "file contents")))
	require.NoError(t, gw.SendEvent(session, api.Event{Type: api.EventDelta, Content: "partial"}))
	require.NoError(t, gw.SendSignal(session, "thinking"))

	assert.Equal(t, []string{"done, see main.go"}, tg.sent)
	require.Len(t, mon.msgs, 1)
	assert.Equal(t, "ASSISTANT", mon.msgs[0].MessageType)

	gw.OnMessage("telegram", &api.UnifiedMessage{Session: session, Content: "hi"})
	gw.OnMessage("telegram", &api.UnifiedMessage{Session: session, Command: api.CommandCancel})
	assert.Len(t, got, 2)
	assert.Len(t, mon.msgs, 2, "commands are not mirrored")

	gw.StopAll()
	assert.True(t, tg.stopped)
}

func TestEventChannelGetsEverything(t *testing.T) {
	web := &eventChannel{textChannel: textChannel{id: "web"}}
	gw := NewGatewayManager()
	gw.Register(web)

	session := api.SessionContext{ChannelID: "web", ChatID: "conn"}
	require.NoError(t, gw.SendEvent(session, api.Event{Type: api.EventDelta, Content: "par"}))
	require.NoError(t, gw.SendSignal(session, "tool:read_file"))

	assert.Len(t, web.events, 1)
	assert.Equal(t, []string{"tool:read_file"}, web.signals)
	assert.Empty(t, web.sent)
}

func TestUnknownChannel(t *testing.T) {
	gw := NewGatewayManager()
	assert.Error(t, gw.SendReply(api.SessionContext{ChannelID: "irc"}, "hi"))
	assert.Error(t, gw.SendEvent(api.SessionContext{ChannelID: "irc"}, api.Event{}))
}
