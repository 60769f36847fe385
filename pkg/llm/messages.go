package llm

import (
	"strings"
	"time"
)

//----------------------------------------------------------------
// Message - one conversation turn
//----------------------------------------------------------------

// Message is one entry of a conversation transcript.
type Message struct {
	// Seq is assigned once at creation and never changes; it identifies the
	// turn independently of its position in the transcript.
	Seq     int64  `json:"seq"`
	Role    string `json:"role"` // "system", "user", "assistant", "tool"
	Content string `json:"content"`

	// Kind marks orchestrator-authored turns ("notice", "feedback").
	// Empty for ordinary turns.
	Kind string `json:"kind,omitempty"`

	// ToolCalls are the calls requested by an assistant turn.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool turn to the call that produced it.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`

	// Attachments are file snapshots sent with a user turn.
	Attachments []Attachment `json:"attachments,omitempty"`

	Timestamp int64 `json:"timestamp,omitempty"`
}

// ToolCall is a call descriptor: a requested tool invocation.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Arguments is always the string-serialized form (usually a JSON object).
	Arguments string `json:"arguments"`

	// Meta carries provider specific data (e.g. Gemini's original
	// FunctionCall). Not persisted.
	Meta map[string]any `json:"-"`
}

// Attachment is a snapshot of a file the user attached to a message.
type Attachment struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
	}
	if m.Attachments != nil {
		out.Attachments = make([]Attachment, len(m.Attachments))
		copy(out.Attachments, m.Attachments)
	}
	return out
}

// HasCall reports whether the message requests a call with the given id.
func (m *Message) HasCall(id string) bool {
	for _, tc := range m.ToolCalls {
		if tc.ID == id {
			return true
		}
	}
	return false
}

// ArgumentsMap decodes the call arguments. A non-object payload is returned
// under the "input" key.
func (tc ToolCall) ArgumentsMap() map[string]any {
	args := map[string]any{}
	raw := strings.TrimSpace(tc.Arguments)
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"input": tc.Arguments}
	}
	return args
}

// CloneMessages deep-copies a transcript.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

//----------------------------------------------------------------
// ContentBlock / StreamChunk - incremental model output
//----------------------------------------------------------------

// ContentBlock is one piece of streamed output.
type ContentBlock struct {
	Type string `json:"type"` // "text", "thinking", "error"
	Text string `json:"text,omitempty"`
}

// StreamChunk is one increment from the model endpoint.
type StreamChunk struct {
	ContentBlocks []ContentBlock `json:"content_blocks,omitempty"`

	// ToolCalls are native function calls reported by the provider.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	IsFinal      bool      `json:"is_final"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Usage        *LLMUsage `json:"usage,omitempty"`

	// Error is a user-facing description; RawError the underlying cause.
	Error    string `json:"error,omitempty"`
	RawError error  `json:"-"`
}

// Text concatenates the text blocks of the chunk, skipping thinking.
func (c StreamChunk) Text() string {
	var sb strings.Builder
	for _, b := range c.ContentBlocks {
		if b.Type == BlockTypeText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

//----------------------------------------------------------------
// Helper Functions - Message
//----------------------------------------------------------------

// NewTextMessage builds a plain text turn. Seq is assigned by the store.
func NewTextMessage(role, text string) Message {
	return Message{
		Role:      role,
		Content:   text,
		Timestamp: time.Now().Unix(),
	}
}

func NewSystemMessage(text string) Message {
	return NewTextMessage(RoleSystem, text)
}

func NewUserMessage(text string) Message {
	return NewTextMessage(RoleUser, text)
}

func NewAssistantMessage(text string) Message {
	return NewTextMessage(RoleAssistant, text)
}

// NewNoticeMessage builds an orchestrator notice (cancellation, apology).
// Notices are shown to the user but never sent to the model.
func NewNoticeMessage(text string) Message {
	m := NewTextMessage(RoleAssistant, text)
	m.Kind = KindNotice
	return m
}

// NewFeedbackMessage builds a corrective turn addressed to the model.
func NewFeedbackMessage(text string) Message {
	m := NewTextMessage(RoleUser, text)
	m.Kind = KindFeedback
	return m
}

// NewToolMessage builds the result turn for a call.
func NewToolMessage(call ToolCall, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Timestamp:  time.Now().Unix(),
	}
}

//----------------------------------------------------------------
// Helper Functions - StreamChunk
//----------------------------------------------------------------

func NewTextChunk(text string) StreamChunk {
	return StreamChunk{ContentBlocks: []ContentBlock{{Type: BlockTypeText, Text: text}}}
}

func NewThinkingChunk(text string) StreamChunk {
	return StreamChunk{ContentBlocks: []ContentBlock{{Type: BlockTypeThinking, Text: text}}}
}

// NewFinalChunk marks the end of a stream.
func NewFinalChunk(reason string, usage *LLMUsage) StreamChunk {
	return StreamChunk{
		IsFinal:      true,
		FinishReason: reason,
		Usage:        usage,
	}
}

// NewErrorChunk reports a stream failure. When final is set the stream ends.
func NewErrorChunk(msg string, err error, final bool) StreamChunk {
	return StreamChunk{
		Error:    msg,
		RawError: err,
		IsFinal:  final,
	}
}

// RenderUserContent returns the text sent to the model for a user turn,
// with attached file snapshots appended as fenced blocks.
func RenderUserContent(m Message) string {
	if len(m.Attachments) == 0 {
		return m.Content
	}
	var sb strings.Builder
	sb.WriteString(m.Content)
	for _, a := range m.Attachments {
		sb.WriteString("\n\nAttached file: ")
		sb.WriteString(a.Path)
		sb.WriteString("\n```\n")
		sb.WriteString(a.Content)
		if !strings.HasSuffix(a.Content, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("```")
	}
	return sb.String()
}

// StripThinking removes <think>...</think> regions. An unterminated region
// hides everything after its opening tag.
func StripThinking(text string) string {
	const open, close = "<think>", "</think>"
	if !strings.Contains(text, open) {
		return text
	}
	var sb strings.Builder
	for {
		i := strings.Index(text, open)
		if i < 0 {
			sb.WriteString(text)
			break
		}
		sb.WriteString(text[:i])
		rest := text[i+len(open):]
		j := strings.Index(rest, close)
		if j < 0 {
			break
		}
		text = rest[j+len(close):]
	}
	return sb.String()
}
