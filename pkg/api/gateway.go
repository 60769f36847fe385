package api

import (
	"pointer/pkg/llm"
	"pointer/pkg/transcript"
)

// Channel defines the standardized lifecycle interface for communication platforms.
type Channel interface {
	ID() string
	Start(ctx ChannelContext) error
	Stop() error
	Send(session SessionContext, message string) error
}

// SignalingChannel is an optional extension of the Channel interface for
// platforms that support control signals (e.g., typing indicators, thinking UI).
type SignalingChannel interface {
	Channel
	// SendSignal transmits a control signal (e.g., "thinking", "tool:read_file")
	// to the target session to change UI state or metadata.
	SendSignal(session SessionContext, signal string) error
}

// EventChannel is an optional extension for platforms that render structured
// session events (turn deltas, diffs) instead of plain text.
type EventChannel interface {
	Channel
	SendEvent(session SessionContext, event Event) error
}

// Event types.
const (
	EventDelta    = "delta"    // cumulative content of the streaming turn
	EventTurn     = "turn"     // a turn was appended or finalized
	EventSignal   = "signal"   // state change ("thinking", "tool:read_file")
	EventReply    = "reply"    // plain text from the handler
	EventDiff     = "diff"     // an applied file change
	EventDone     = "done"     // the chain settled
	EventHistory  = "history"  // full transcript
	EventSession  = "session"  // the chat switched session
	EventSessions = "sessions" // session listing
)

// Event is a structured notification pushed to an EventChannel.
type Event struct {
	Type      string               `json:"type"`
	SessionID string               `json:"session_id,omitempty"`
	Seq       int64                `json:"seq,omitempty"`
	Content   string               `json:"content,omitempty"`
	Message   *llm.Message         `json:"message,omitempty"`
	Messages  []llm.Message        `json:"messages,omitempty"`
	Change    *FileChange          `json:"change,omitempty"`
	Sessions  []transcript.Summary `json:"sessions,omitempty"`
}

// ChannelContext provides the interface for a Channel implementation to
// communicate back with the Gateway core.
type ChannelContext interface {
	MessageResponder
	OnMessage(channelID string, msg *UnifiedMessage)
}

// MessageResponder defines the capabilities for sending responses back to a channel.
type MessageResponder interface {
	SendReply(session SessionContext, content string) error
	SendSignal(session SessionContext, signal string) error
	SendEvent(session SessionContext, event Event) error
}

// Commands carried by UnifiedMessage.Command.
const (
	CommandCancel     = "cancel"
	CommandNewSession = "new_session"
	CommandHistory    = "history"
	CommandSessions   = "sessions"
)

// UnifiedMessage defines the standardized internal data structure for all
// incoming messages.
type UnifiedMessage struct {
	Session SessionContext   // Contextual information about the source (User, Chat)
	Content string           // Standardized text content of the message
	Command string           // Control command; empty for chat messages
	Files   []FileAttachment // Attached file snapshots
	Raw     any              // Optional storage for the original platform-specific payload object
}

// SessionContext encapsulates identity and routing information for a specific
// conversation unit on a specific communication channel.
type SessionContext struct {
	ChannelID string // Identifier of the channel that originated the session (e.g., "telegram")
	UserID    string // Platform-specific unique identifier for the user
	ChatID    string // Platform-specific identifier for the chat or group (may match UserID for DMs)
	Username  string // Display name or nickname of the user as provided by the platform
	// SessionID pins a conversation explicitly (web clients resuming a chat).
	// Empty means the handler picks the chat's current session.
	SessionID string
}

// Key identifies the chat across channels.
func (s SessionContext) Key() string {
	return s.ChannelID + ":" + s.ChatID
}

// FileAttachment represents a single file or binary object uploaded by a user.
type FileAttachment struct {
	Filename string // Original name of the uploaded file
	MimeType string // MIME type descriptor (e.g., "text/plain")
	Data     []byte // Raw content of the file
	Path     string // Workspace path the attachment refers to, if any
}

// MessageHandler defines the function signature for processing incoming messages.
// It implements the MessageProcessor interface.
type MessageHandler func(*UnifiedMessage)

// OnMessage allows MessageHandler to satisfy the MessageProcessor interface.
func (h MessageHandler) OnMessage(msg *UnifiedMessage) {
	h(msg)
}

// MessageProcessor defines the interface for components that can process incoming messages.
type MessageProcessor interface {
	OnMessage(msg *UnifiedMessage)
}

// ResponderAware defines an interface for components that require a MessageResponder to be injected.
type ResponderAware interface {
	SetResponder(responder MessageResponder)
}

// GatewayHandler is a composite interface for components that handle incoming
// messages AND are aware of the responder (e.g., ChatHandler).
type GatewayHandler interface {
	MessageProcessor
	ResponderAware
}
