package transcript

import (
	"pointer/pkg/llm"
)

// The functions below never modify their input; each returns a new slice.

// SetStreamingContent replaces the content of the turn receiving a streamed
// response. The target is the assistant turn with the given sequence id;
// when it is gone, the trailing assistant turn with empty content, else the
// most recent assistant turn. Every other field of the turn is preserved.
// It reports false when no assistant turn exists.
func SetStreamingContent(msgs []llm.Message, seq int64, content string) ([]llm.Message, bool) {
	idx := indexBySeq(msgs, seq)
	if idx < 0 || msgs[idx].Role != llm.RoleAssistant {
		idx = streamingTarget(msgs)
	}
	if idx < 0 {
		return msgs, false
	}
	out := llm.CloneMessages(msgs)
	out[idx].Content = content
	return out, true
}

func streamingTarget(msgs []llm.Message) int {
	latest := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != llm.RoleAssistant {
			continue
		}
		if msgs[i].Content == "" {
			return i
		}
		if latest < 0 {
			latest = i
		}
	}
	return latest
}

// ReplaceBySeq swaps the turn with the given sequence id for m, keeping the
// position. m inherits the sequence id. Missing turns leave msgs unchanged.
func ReplaceBySeq(msgs []llm.Message, seq int64, m llm.Message) []llm.Message {
	idx := indexBySeq(msgs, seq)
	if idx < 0 {
		return msgs
	}
	out := llm.CloneMessages(msgs)
	m.Seq = seq
	out[idx] = m.Clone()
	return out
}

// UpdateBySeq applies fn to the turn with the given sequence id.
func UpdateBySeq(msgs []llm.Message, seq int64, fn func(*llm.Message)) []llm.Message {
	idx := indexBySeq(msgs, seq)
	if idx < 0 {
		return msgs
	}
	out := llm.CloneMessages(msgs)
	fn(&out[idx])
	out[idx].Seq = seq
	return out
}

// RemoveBySeq drops the turn with the given sequence id.
func RemoveBySeq(msgs []llm.Message, seq int64) []llm.Message {
	idx := indexBySeq(msgs, seq)
	if idx < 0 {
		return msgs
	}
	out := make([]llm.Message, 0, len(msgs)-1)
	out = append(out, msgs[:idx]...)
	return llm.CloneMessages(append(out, msgs[idx+1:]...))
}

// FindBySeq returns the turn with the given sequence id.
func FindBySeq(msgs []llm.Message, seq int64) (llm.Message, bool) {
	idx := indexBySeq(msgs, seq)
	if idx < 0 {
		return llm.Message{}, false
	}
	return msgs[idx].Clone(), true
}

// HasToolResult reports whether a tool turn answers callID.
func HasToolResult(msgs []llm.Message, callID string) bool {
	for _, m := range msgs {
		if m.Role == llm.RoleTool && m.ToolCallID == callID {
			return true
		}
	}
	return false
}

// DropUnansweredCalls strips the calls no later tool turn answers. Assistant
// turns left with neither content nor calls are removed.
func DropUnansweredCalls(msgs []llm.Message) []llm.Message {
	answered := make(map[string]bool)
	for _, m := range msgs {
		if m.Role == llm.RoleTool {
			answered[m.ToolCallID] = true
		}
	}

	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		c := m.Clone()
		if c.Role == llm.RoleAssistant && len(c.ToolCalls) > 0 {
			c.ToolCalls = nil
			for _, tc := range m.ToolCalls {
				if answered[tc.ID] {
					c.ToolCalls = append(c.ToolCalls, tc)
				}
			}
			if len(c.ToolCalls) == 0 && c.Content == "" {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// CountUserTurns returns the number of user-authored turns (feedback excluded).
func CountUserTurns(msgs []llm.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Role == llm.RoleUser && m.Kind == "" {
			n++
		}
	}
	return n
}

// Normalize builds the transcript sent to the model:
//   - notice turns are dropped
//   - a tool turn survives only if it answers a call of an earlier assistant
//     turn and no earlier tool turn answers the same call
//   - calls nobody answered are stripped from their assistant turn
//   - assistant turns left with neither content nor calls are dropped
func Normalize(msgs []llm.Message) []llm.Message {
	offeredAt := make(map[string]int) // call id -> latest assistant turn offering it
	owner := make(map[string]int)     // call id -> assistant turn whose call was answered
	keepTool := make(map[int]bool)

	for i, m := range msgs {
		switch m.Role {
		case llm.RoleAssistant:
			if m.Kind == llm.KindNotice {
				continue
			}
			for _, tc := range m.ToolCalls {
				offeredAt[tc.ID] = i
			}
		case llm.RoleTool:
			at, offered := offeredAt[m.ToolCallID]
			if _, done := owner[m.ToolCallID]; offered && !done {
				owner[m.ToolCallID] = at
				keepTool[i] = true
			}
		}
	}

	out := make([]llm.Message, 0, len(msgs))
	for i, m := range msgs {
		switch {
		case m.Kind == llm.KindNotice:
			continue
		case m.Role == llm.RoleTool:
			if keepTool[i] {
				out = append(out, m.Clone())
			}
		case m.Role == llm.RoleAssistant:
			c := m.Clone()
			c.ToolCalls = nil
			seen := make(map[string]bool, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				if at, ok := owner[tc.ID]; ok && at == i && !seen[tc.ID] {
					seen[tc.ID] = true
					c.ToolCalls = append(c.ToolCalls, tc)
				}
			}
			if len(c.ToolCalls) == 0 && c.Content == "" {
				continue
			}
			out = append(out, c)
		default:
			out = append(out, m.Clone())
		}
	}
	return out
}

func indexBySeq(msgs []llm.Message, seq int64) int {
	if seq == 0 {
		return -1
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Seq == seq {
			return i
		}
	}
	return -1
}
