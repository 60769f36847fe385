// Package callparse finds function calls embedded in streamed model text.
//
// A call is written as the marker "function_call:" followed by a JSON
// object with "id", "name" and "arguments". The text may still be growing,
// so the scanner reports each candidate as Incomplete, Malformed or Parsed.
package callparse

import (
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"pointer/pkg/llm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Marker introduces an embedded call.
const Marker = "function_call:"

// Kind classifies a scanned candidate.
type Kind int

const (
	// Incomplete: the object has not been closed yet.
	Incomplete Kind = iota
	// Malformed: closed, but no tool name could be recovered.
	Malformed
	// Parsed: a call descriptor was produced.
	Parsed
)

func (k Kind) String() string {
	switch k {
	case Incomplete:
		return "incomplete"
	case Malformed:
		return "malformed"
	case Parsed:
		return "parsed"
	}
	return "unknown"
}

// Candidate is one marker occurrence.
type Candidate struct {
	Kind   Kind
	Offset int    // byte offset of the marker in the scanned text
	Raw    string // the object text, when closed
	Call   llm.ToolCall
	// Recovered is set when strict parsing failed and the fields were
	// pulled out by pattern matching.
	Recovered bool
}

// Scan returns every candidate in text, in order. Thinking regions are
// ignored.
func Scan(text string) []Candidate {
	text = llm.StripThinking(text)

	var out []Candidate
	pos := 0
	for {
		i := strings.Index(text[pos:], Marker)
		if i < 0 {
			return out
		}
		offset := pos + i
		start := offset + len(Marker)
		for start < len(text) && isSpace(text[start]) {
			start++
		}
		if start >= len(text) {
			return append(out, Candidate{Kind: Incomplete, Offset: offset})
		}
		if text[start] != '{' {
			out = append(out, Candidate{Kind: Malformed, Offset: offset})
			pos = start
			continue
		}

		end, ok := matchBrace(text, start)
		if !ok {
			return append(out, Candidate{Kind: Incomplete, Offset: offset})
		}
		raw := text[start : end+1]
		out = append(out, parseCandidate(offset, raw))
		pos = end + 1
	}
}

// matchBrace returns the index of the brace closing the one at text[start],
// skipping braces inside JSON strings.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

type wireCall struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Arguments jsoniter.RawMessage `json:"arguments"`
}

func parseCandidate(offset int, raw string) Candidate {
	c := Candidate{Offset: offset, Raw: raw}

	var w wireCall
	if err := json.Unmarshal([]byte(raw), &w); err == nil && strings.TrimSpace(w.Name) != "" {
		c.Kind = Parsed
		c.Call = llm.ToolCall{ID: w.ID, Name: strings.TrimSpace(w.Name), Arguments: normalizeArguments(w.Arguments)}
		return c
	}

	call, ok := recoverFields(raw)
	if !ok {
		c.Kind = Malformed
		return c
	}
	c.Kind = Parsed
	c.Recovered = true
	c.Call = call
	return c
}

// normalizeArguments turns the arguments value into its string form: an
// object is re-serialized compactly, a JSON string is unquoted.
func normalizeArguments(raw jsoniter.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	switch {
	case s == "" || s == "null":
		return "{}"
	case s[0] == '"':
		var str string
		if err := json.Unmarshal(raw, &str); err == nil {
			return str
		}
	case s[0] == '{':
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err == nil {
			if b, err := json.Marshal(m); err == nil {
				return string(b)
			}
		}
	}
	return s
}

var (
	idField     = regexp.MustCompile(`"id"\s*:\s*"([^"]*)"`)
	nameField   = regexp.MustCompile(`"name"\s*:\s*"([^"]+)"`)
	argsField   = regexp.MustCompile(`"arguments"\s*:\s*`)
	quotedValue = regexp.MustCompile(`^"((?:[^"\\]|\\.)*)"`)
)

// recoverFields pulls id, name and arguments out of an object that failed strict
// parsing (trailing commas, unescaped newlines, single fields broken).
func recoverFields(raw string) (llm.ToolCall, bool) {
	m := nameField.FindStringSubmatch(raw)
	if m == nil {
		return llm.ToolCall{}, false
	}
	call := llm.ToolCall{Name: strings.TrimSpace(m[1]), Arguments: "{}"}
	if m := idField.FindStringSubmatch(raw); m != nil {
		call.ID = m[1]
	}

	loc := argsField.FindStringIndex(raw)
	if loc == nil {
		return call, true
	}
	rest := raw[loc[1]:]
	switch {
	case strings.HasPrefix(rest, "{"):
		if end, ok := matchBrace(rest, 0); ok {
			obj := rest[:end+1]
			call.Arguments = normalizeArguments(jsoniter.RawMessage(obj))
		}
	case strings.HasPrefix(rest, `"`):
		if m := quotedValue.FindStringSubmatch(rest); m != nil {
			var s string
			if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &s); err == nil {
				call.Arguments = s
			} else {
				call.Arguments = m[1]
			}
		}
	}
	return call, true
}
