package transcript

import (
	"strings"
	"time"
	"unicode/utf8"

	"pointer/pkg/llm"

	"github.com/oklog/ulid/v2"
)

// DefaultName is the display name of a session nobody has named yet.
const DefaultName = "New Chat"

const maxNameRunes = 40

// Session is one persisted conversation.
type Session struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Messages  []llm.Message `json:"messages"`
}

// Summary is the listing view of a session.
type Summary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// NewSessionID returns a sortable unique session id.
func NewSessionID() string {
	return strings.ToLower(ulid.Make().String())
}

// NewSession creates a session holding only the system turn.
func NewSession(systemPrompt string, clock *SessionClock) *Session {
	now := time.Now()
	sys := llm.NewSystemMessage(systemPrompt)
	sys.Seq = clock.NextSeq()
	return &Session{
		ID:        NewSessionID(),
		Name:      DefaultName,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []llm.Message{sys},
	}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	out := *s
	out.Messages = llm.CloneMessages(s.Messages)
	return &out
}

func (s *Session) Summary() Summary {
	return Summary{
		ID:           s.ID,
		Name:         s.Name,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		MessageCount: len(s.Messages),
	}
}

// MaxSeq returns the highest sequence id in the transcript.
func (s *Session) MaxSeq() int64 {
	var max int64
	for _, m := range s.Messages {
		if m.Seq > max {
			max = m.Seq
		}
	}
	return max
}

// NameFromMessage derives a display name from a user message.
func NameFromMessage(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return DefaultName
	}
	if utf8.RuneCountInString(text) <= maxNameRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxNameRunes])) + "..."
}
