package gateway

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pointer/pkg/api"
	"pointer/pkg/llm"
	"pointer/pkg/monitor"
)

// GatewayManager owns the registered channels and routes traffic between
// them and the message handler.
type GatewayManager struct {
	channels   map[string]api.Channel
	msgHandler api.MessageHandler
	monitor    monitor.Monitor
	mu         sync.RWMutex
}

func NewGatewayManager() *GatewayManager {
	return &GatewayManager{
		channels: make(map[string]api.Channel),
	}
}

// SetMessageHandler sets the processor every incoming message is passed to.
func (g *GatewayManager) SetMessageHandler(handler api.MessageHandler) {
	g.msgHandler = handler
}

func (g *GatewayManager) SetMonitor(m monitor.Monitor) {
	g.monitor = m
}

// Register adds a channel. A channel with the same ID is replaced.
func (g *GatewayManager) Register(c api.Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
}

// GetChannel returns the channel registered under id.
func (g *GatewayManager) GetChannel(id string) (api.Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.channels[id]
	return c, ok
}

// StartAll starts every registered channel with the manager as context.
func (g *GatewayManager) StartAll() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		slog.Info("Starting channel", "channel", id)
		if err := c.Start(g); err != nil {
			return fmt.Errorf("failed to start channel %s: %w", id, err)
		}
	}
	return nil
}

// StopAll stops every registered channel.
func (g *GatewayManager) StopAll() {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		slog.Info("Stopping channel", "channel", id)
		if err := c.Stop(); err != nil {
			slog.Error("Error stopping channel", "channel", id, "error", err)
		}
	}
	if g.monitor != nil {
		_ = g.monitor.Stop()
	}
}

// SendReply sends plain text back to the originating channel.
func (g *GatewayManager) SendReply(session api.SessionContext, content string) error {
	slog.Debug("Reply", "channel", session.ChannelID, "user", session.Username, "chars", len(content))
	g.mirror("ASSISTANT", session, content)

	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}
	return c.Send(session, content)
}

// SendSignal forwards a control signal. Channels without signal support
// ignore it.
func (g *GatewayManager) SendSignal(session api.SessionContext, signal string) error {
	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}
	if sc, ok := c.(api.SignalingChannel); ok {
		slog.Debug("Signal", "channel", session.ChannelID, "signal", signal)
		return sc.SendSignal(session, signal)
	}
	return nil
}

// SendEvent delivers a structured event. Channels that cannot render events
// receive finished assistant turns as plain replies; other events are
// dropped for them.
func (g *GatewayManager) SendEvent(session api.SessionContext, event api.Event) error {
	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}

	turn := event.Type == api.EventTurn && event.Message != nil &&
		event.Message.Role == llm.RoleAssistant && event.Message.Content != ""
	if turn {
		g.mirror("ASSISTANT", session, event.Message.Content)
	}

	if ec, ok := c.(api.EventChannel); ok {
		return ec.SendEvent(session, event)
	}
	if turn {
		return c.Send(session, event.Message.Content)
	}
	return nil
}

// OnMessage implements api.ChannelContext.
func (g *GatewayManager) OnMessage(channelID string, msg *api.UnifiedMessage) {
	slog.Info("Received message",
		"channel", channelID,
		"user", msg.Session.Username,
		"user_id", msg.Session.UserID,
		"command", msg.Command,
		"chars", len(msg.Content),
	)
	if msg.Command == "" {
		g.mirror("USER", msg.Session, msg.Content)
	}

	if g.msgHandler == nil {
		slog.Warn("No message handler set, dropping message", "channel", channelID)
		return
	}
	g.msgHandler(msg)
}

func (g *GatewayManager) mirror(kind string, session api.SessionContext, content string) {
	if g.monitor == nil {
		return
	}
	g.monitor.OnMessage(monitor.MonitorMessage{
		Timestamp:   time.Now(),
		MessageType: kind,
		ChannelID:   session.ChannelID,
		Username:    session.Username,
		Content:     content,
	})
}
