// Package insert detects code blocks in streamed model output and applies
// them to the workspace.
package insert

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"pointer/pkg/llm"
)

// LineRange is an inclusive, 1-based line span.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Block is a code block that names its target file.
type Block struct {
	Path    string
	Lang    string
	Content string
	// Range is set for a line-range edit; nil means a whole-file write.
	Range *LineRange
}

var (
	rangeHeader   = regexp.MustCompile(`^(\d+):(\d+):(\S+)$`)
	fileComment   = regexp.MustCompile(`^(?://|#|--|;|<!--)\s*(?i:file(?:name)?|path)\s*:\s*(\S+?)\s*(?:-->)?$`)
	bareExtension = regexp.MustCompile(`\.[A-Za-z0-9]+$`)
)

// Detect returns the closed, addressable code blocks of text in order.
// Blocks without a target file and blocks still being streamed are
// skipped. Thinking regions are ignored.
func Detect(text string) []Block {
	text = llm.StripThinking(text)
	lines := strings.Split(text, "\n")

	var out []Block
	for i := 0; i < len(lines); i++ {
		fence, info, ok := openFence(lines[i])
		if !ok {
			continue
		}
		end := -1
		for j := i + 1; j < len(lines); j++ {
			if isCloseFence(lines[j], fence) {
				end = j
				break
			}
		}
		if end < 0 {
			return out
		}
		if b, ok := classify(info, lines[i+1:end]); ok {
			out = append(out, b)
		}
		i = end
	}
	return out
}

func openFence(line string) (fence, info string, ok bool) {
	trimmed := strings.TrimSpace(line)
	n := 0
	for n < len(trimmed) && trimmed[n] == '`' {
		n++
	}
	if n < 3 {
		return "", "", false
	}
	return trimmed[:n], strings.TrimSpace(trimmed[n:]), true
}

func isCloseFence(line, fence string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, fence) && strings.Trim(trimmed, "`") == ""
}

func classify(info string, body []string) (Block, bool) {
	// "start:end:path" in the info string or as the first body line
	if b, ok := rangeBlock(info, "", body); ok {
		return b, true
	}
	lang, target := splitInfo(info)
	if len(body) > 0 {
		if b, ok := rangeBlock(strings.TrimSpace(body[0]), lang, body[1:]); ok {
			return b, true
		}
	}

	if target == "" && len(body) > 0 {
		if m := fileComment.FindStringSubmatch(strings.TrimSpace(body[0])); m != nil {
			target = m[1]
			body = body[1:]
		}
	}
	target = cleanPath(target)
	if target == "" {
		return Block{}, false
	}
	return Block{Path: target, Lang: lang, Content: joinBody(body)}, true
}

func rangeBlock(header, lang string, body []string) (Block, bool) {
	m := rangeHeader.FindStringSubmatch(header)
	if m == nil {
		return Block{}, false
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	p := cleanPath(m[3])
	if p == "" {
		return Block{}, false
	}
	return Block{Path: p, Lang: lang, Content: joinBody(body), Range: &LineRange{Start: start, End: end}}, true
}

// splitInfo separates "go:main.go", "go main.go", "main.go" and "go".
func splitInfo(info string) (lang, target string) {
	if info == "" {
		return "", ""
	}
	if fields := strings.Fields(info); len(fields) > 1 {
		return fields[0], fields[1]
	}
	if i := strings.Index(info, ":"); i > 0 {
		return info[:i], info[i+1:]
	}
	if strings.Contains(info, "/") || bareExtension.MatchString(info) {
		return strings.TrimPrefix(path.Ext(info), "."), info
	}
	return info, ""
}

func cleanPath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "`\"'")
	if p == "" || strings.ContainsAny(p, "<>|*?") {
		return ""
	}
	return p
}

func joinBody(body []string) string {
	if len(body) == 0 {
		return ""
	}
	return strings.Join(body, "\n") + "\n"
}
