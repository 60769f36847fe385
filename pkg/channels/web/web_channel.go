package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"pointer/pkg/api"
	"pointer/pkg/transcript"
	"pointer/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the UI is served separately
	},
}

type WebConfig struct {
	Port int `json:"port"` // Default: 9453
}

// Client message types.
const (
	typeMessage    = "message"
	typeCancel     = "cancel"
	typeNewSession = "new_session"
	typeHistory    = "history"
	typeSessions   = "sessions"
)

// IncomingMessage is one client frame.
type IncomingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Files     []struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	} `json:"files,omitempty"`
}

// SafeConn serializes writes to one websocket.
type SafeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *SafeConn) WriteMessage(messageType int, data []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteMessage(messageType, data)
}

// WebChannel serves the websocket protocol of the browser UI. It also
// broadcasts applied file changes to every connected client.
type WebChannel struct {
	config      WebConfig
	server      *http.Server
	sessions    func(ctx context.Context) ([]transcript.Summary, error)
	connections map[string]*SafeConn // connection id -> socket
	mu          sync.RWMutex
}

func NewWebChannel(cfg WebConfig, sessions func(ctx context.Context) ([]transcript.Summary, error)) *WebChannel {
	return &WebChannel{
		config:      cfg,
		sessions:    sessions,
		connections: make(map[string]*SafeConn),
	}
}

func (c *WebChannel) ID() string {
	return "web"
}

// Handler returns the HTTP routes of the channel.
func (c *WebChannel) Handler(ctx api.ChannelContext) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		c.handleWebSocket(w, r, ctx)
	})
	mux.HandleFunc("/api/sessions", c.handleSessions)
	return mux
}

func (c *WebChannel) Start(ctx api.ChannelContext) error {
	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           c.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Web API listening", "port", c.config.Port)

	go func() {
		if err := c.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Web API server error", "error", err)
		}
	}()
	return nil
}

func (c *WebChannel) Stop() error {
	c.mu.Lock()
	for id, conn := range c.connections {
		conn.Close()
		delete(c.connections, id)
	}
	c.mu.Unlock()

	if c.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.server.Shutdown(ctx)
}

// Send implements api.Channel.
func (c *WebChannel) Send(session api.SessionContext, message string) error {
	return c.SendEvent(session, api.Event{Type: api.EventReply, Content: message})
}

// SendSignal implements api.SignalingChannel.
func (c *WebChannel) SendSignal(session api.SessionContext, signal string) error {
	return c.SendEvent(session, api.Event{Type: api.EventSignal, SessionID: session.SessionID, Content: signal})
}

// SendEvent implements api.EventChannel.
func (c *WebChannel) SendEvent(session api.SessionContext, event api.Event) error {
	c.mu.RLock()
	conn, ok := c.connections[session.ChatID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("web client %s not connected", session.ChatID)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// EmitChange implements api.DiffSink by broadcasting the change.
func (c *WebChannel) EmitChange(_ context.Context, change api.FileChange) error {
	data, err := json.Marshal(api.Event{Type: api.EventDiff, Change: &change})
	if err != nil {
		return fmt.Errorf("failed to marshal diff: %w", err)
	}

	c.mu.RLock()
	conns := make([]*SafeConn, 0, len(c.connections))
	for _, conn := range c.connections {
		conns = append(conns, conn)
	}
	c.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Debug("Failed to push diff", "path", change.Path, "error", err)
		}
	}
	return nil
}

func (c *WebChannel) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var list []transcript.Summary
	if c.sessions != nil {
		var err error
		if list, err = c.sessions(r.Context()); err != nil {
			slog.Error("Failed to list sessions", "error", err)
			http.Error(w, "failed to list sessions", http.StatusInternalServerError)
			return
		}
	}
	if list == nil {
		list = []transcript.Summary{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(list); err != nil {
		slog.Debug("Failed to write session list", "error", err)
	}
}

func (c *WebChannel) handleWebSocket(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WS Upgrade failed", "error", err)
		return
	}
	conn := &SafeConn{Conn: rawConn}
	connID := uuid.NewString()

	c.mu.Lock()
	c.connections[connID] = conn
	c.mu.Unlock()
	slog.Info("Web client connected", "conn", connID, "remote", r.RemoteAddr)

	defer func() {
		c.mu.Lock()
		delete(c.connections, connID)
		c.mu.Unlock()
		conn.Close()
		slog.Info("Web client disconnected", "conn", connID)
	}()

	base := api.SessionContext{
		ChannelID: c.ID(),
		UserID:    connID,
		ChatID:    connID,
		Username:  "web",
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg := decodeIncoming(data, base)
		if msg == nil {
			continue
		}
		ctx.OnMessage(c.ID(), msg)
	}
}

// decodeIncoming maps a client frame to a unified message. Frames that are
// not JSON are chat text.
func decodeIncoming(data []byte, base api.SessionContext) *api.UnifiedMessage {
	var in IncomingMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return &api.UnifiedMessage{Session: base, Content: string(data)}
	}

	session := base
	session.SessionID = in.SessionID
	msg := &api.UnifiedMessage{Session: session, Content: in.Text}

	switch in.Type {
	case typeMessage, "":
		for _, f := range in.Files {
			msg.Files = append(msg.Files, api.FileAttachment{
				Filename: f.Path,
				MimeType: utils.DetectMime(f.Path, []byte(f.Content)),
				Data:     []byte(f.Content),
				Path:     f.Path,
			})
		}
	case typeCancel:
		msg.Command = api.CommandCancel
	case typeNewSession:
		msg.Command = api.CommandNewSession
	case typeHistory:
		msg.Command = api.CommandHistory
	case typeSessions:
		msg.Command = api.CommandSessions
	default:
		slog.Warn("Unknown web message type", "type", in.Type)
		return nil
	}
	return msg
}
