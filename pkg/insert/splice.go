package insert

import "strings"

// ApplyLineRange replaces lines [r.Start, r.End] of content with
// replacement. An out-of-bounds or reversed range leaves content unchanged
// and reports false.
func ApplyLineRange(content string, r LineRange, replacement string) (string, bool) {
	trailingNewline := strings.HasSuffix(content, "\n")
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	if content == "" {
		lines = nil
	}

	if r.Start < 1 || r.End < r.Start || r.End > len(lines) {
		return content, false
	}

	var repl []string
	if replacement != "" {
		repl = strings.Split(strings.TrimSuffix(replacement, "\n"), "\n")
	}

	out := make([]string, 0, len(lines)-(r.End-r.Start+1)+len(repl))
	out = append(out, lines[:r.Start-1]...)
	out = append(out, repl...)
	out = append(out, lines[r.End:]...)

	result := strings.Join(out, "\n")
	if trailingNewline && len(out) > 0 {
		result += "\n"
	}
	return result, true
}
