package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"pointer/pkg/agent"
	"pointer/pkg/api"
	"pointer/pkg/llm"
	"pointer/pkg/transcript"
	"pointer/pkg/utils"
)

// SessionLister lists persisted sessions.
type SessionLister interface {
	List(ctx context.Context) ([]transcript.Summary, error)
}

// ChatHandler maps chats to engine sessions. It turns incoming channel
// messages into engine calls and engine progress into channel events.
// It implements api.GatewayHandler and api.SessionObserver.
type ChatHandler struct {
	engine    api.AgentEngine
	sessions  SessionLister
	responder api.MessageResponder
	timeout   time.Duration

	mu     sync.Mutex
	chats  map[string]string             // chat key -> current session id
	routes map[string]api.SessionContext // session id -> where to report
	wg     sync.WaitGroup
}

// NewChatHandler builds a handler. timeout bounds one chain; zero means no
// limit.
func NewChatHandler(engine api.AgentEngine, sessions SessionLister, timeout time.Duration) *ChatHandler {
	return &ChatHandler{
		engine:   engine,
		sessions: sessions,
		timeout:  timeout,
		chats:    make(map[string]string),
		routes:   make(map[string]api.SessionContext),
	}
}

// SetResponder implements api.ResponderAware.
func (h *ChatHandler) SetResponder(r api.MessageResponder) {
	h.responder = r
}

// Wait blocks until every running chain returned.
func (h *ChatHandler) Wait() {
	h.wg.Wait()
}

// OnMessage implements api.MessageProcessor. Chat messages run in the
// background so the channel can keep reading cancellations.
func (h *ChatHandler) OnMessage(msg *api.UnifiedMessage) {
	cmd := msg.Command
	if cmd == "" {
		cmd = slashCommand(msg.Content)
	}

	switch cmd {
	case api.CommandCancel:
		h.cancel(msg.Session)
	case api.CommandNewSession:
		h.newSession(msg.Session)
	case api.CommandHistory:
		h.history(msg.Session)
	case api.CommandSessions:
		h.listSessions(msg.Session)
	case "":
		h.chat(msg)
	default:
		h.reply(msg.Session, fmt.Sprintf("Unknown command %q. Available: /new, /cancel, /history, /sessions", cmd))
	}
}

// slashCommand maps "/new" style text to a command.
func slashCommand(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	name := strings.Fields(text)[0]
	// telegram appends the bot name in groups
	name, _, _ = strings.Cut(strings.TrimPrefix(name, "/"), "@")
	switch name {
	case "new":
		return api.CommandNewSession
	case "cancel", "stop":
		return api.CommandCancel
	case "history":
		return api.CommandHistory
	case "sessions", "chats":
		return api.CommandSessions
	}
	return name
}

func (h *ChatHandler) chat(msg *api.UnifiedMessage) {
	if strings.TrimSpace(msg.Content) == "" && len(msg.Files) == 0 {
		return
	}

	sessionID, err := h.resolve(msg.Session)
	if err != nil {
		slog.Error("Failed to open session", "chat", msg.Session.Key(), "error", err)
		h.reply(msg.Session, "Sorry, I couldn't open a session for this chat.")
		return
	}

	user := llm.NewUserMessage(msg.Content)
	for _, f := range msg.Files {
		if !utf8.Valid(f.Data) {
			slog.Warn("Skipping binary attachment", "name", f.Filename, "mime", utils.DetectMime(f.Filename, f.Data))
			continue
		}
		path := f.Path
		if path == "" {
			path = f.Filename
		}
		user.Attachments = append(user.Attachments, llm.Attachment{Path: path, Content: string(f.Data)})
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx := context.Background()
		if h.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.timeout)
			defer cancel()
		}

		start := time.Now()
		err := h.engine.HandleMessage(ctx, sessionID, user)
		switch {
		case errors.Is(err, agent.ErrChainBusy):
			h.reply(msg.Session, "Still working on the previous message. Send /cancel to stop it.")
		case err != nil:
			slog.Error("Chain failed", "session", sessionID, "error", err, "duration", time.Since(start).String())
		default:
			slog.Info("Chain finished", "session", sessionID, "duration", time.Since(start).String())
		}
	}()
}

// resolve returns the session a message belongs to: the one the client
// pinned, else the chat's current one, else a new one.
func (h *ChatHandler) resolve(sc api.SessionContext) (string, error) {
	h.mu.Lock()
	id := sc.SessionID
	if id == "" {
		id = h.chats[sc.Key()]
	}
	h.mu.Unlock()

	if id == "" {
		var err error
		if id, err = h.engine.NewSession(context.Background()); err != nil {
			return "", err
		}
		h.send(sc, api.Event{Type: api.EventSession, SessionID: id})
	}
	h.bind(sc, id)
	return id, nil
}

func (h *ChatHandler) bind(sc api.SessionContext, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chats[sc.Key()] = sessionID
	h.routes[sessionID] = sc
}

func (h *ChatHandler) current(sc api.SessionContext) string {
	if sc.SessionID != "" {
		return sc.SessionID
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.chats[sc.Key()]
}

func (h *ChatHandler) cancel(sc api.SessionContext) {
	id := h.current(sc)
	if id == "" || !h.engine.Cancel(id) {
		h.reply(sc, "Nothing to cancel.")
	}
}

func (h *ChatHandler) newSession(sc api.SessionContext) {
	id, err := h.engine.NewSession(context.Background())
	if err != nil {
		slog.Error("Failed to create session", "chat", sc.Key(), "error", err)
		h.reply(sc, "Sorry, I couldn't create a new session.")
		return
	}
	h.bind(sc, id)
	h.send(sc, api.Event{Type: api.EventSession, SessionID: id})
	h.reply(sc, "Started a new session.")
}

func (h *ChatHandler) history(sc api.SessionContext) {
	id := h.current(sc)
	if id == "" {
		h.send(sc, api.Event{Type: api.EventHistory})
		return
	}
	msgs, err := h.engine.History(context.Background(), id)
	if err != nil {
		slog.Warn("Failed to load history", "session", id, "error", err)
		h.reply(sc, "That session could not be found.")
		return
	}
	h.bind(sc, id)
	h.send(sc, api.Event{Type: api.EventHistory, SessionID: id, Messages: msgs})
}

func (h *ChatHandler) listSessions(sc api.SessionContext) {
	if h.sessions == nil {
		return
	}
	list, err := h.sessions.List(context.Background())
	if err != nil {
		slog.Error("Failed to list sessions", "error", err)
		h.reply(sc, "Sorry, I couldn't list the sessions.")
		return
	}
	h.send(sc, api.Event{Type: api.EventSessions, Sessions: list})
}

func (h *ChatHandler) route(sessionID string) (api.SessionContext, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sc, ok := h.routes[sessionID]
	return sc, ok
}

func (h *ChatHandler) reply(sc api.SessionContext, text string) {
	if h.responder == nil {
		return
	}
	if err := h.responder.SendReply(sc, text); err != nil {
		slog.Warn("Failed to send reply", "channel", sc.ChannelID, "error", err)
	}
}

func (h *ChatHandler) send(sc api.SessionContext, ev api.Event) {
	if h.responder == nil {
		return
	}
	if err := h.responder.SendEvent(sc, ev); err != nil {
		slog.Debug("Failed to send event", "channel", sc.ChannelID, "type", ev.Type, "error", err)
	}
}

// OnDelta implements api.SessionObserver.
func (h *ChatHandler) OnDelta(sessionID string, seq int64, content string) {
	if sc, ok := h.route(sessionID); ok {
		h.send(sc, api.Event{Type: api.EventDelta, SessionID: sessionID, Seq: seq, Content: content})
	}
}

// OnTurn implements api.SessionObserver.
func (h *ChatHandler) OnTurn(sessionID string, msg llm.Message) {
	if sc, ok := h.route(sessionID); ok {
		h.send(sc, api.Event{Type: api.EventTurn, SessionID: sessionID, Seq: msg.Seq, Message: &msg})
	}
}

// OnSignal implements api.SessionObserver.
func (h *ChatHandler) OnSignal(sessionID string, signal string) {
	sc, ok := h.route(sessionID)
	if !ok || h.responder == nil {
		return
	}
	if err := h.responder.SendSignal(sc, signal); err != nil {
		slog.Debug("Failed to send signal", "channel", sc.ChannelID, "signal", signal, "error", err)
	}
}

// OnChainDone implements api.SessionObserver.
func (h *ChatHandler) OnChainDone(sessionID string) {
	if sc, ok := h.route(sessionID); ok {
		h.send(sc, api.Event{Type: api.EventDone, SessionID: sessionID})
	}
}
