package callparse

import (
	"errors"
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"

	"pointer/pkg/llm"
	"pointer/pkg/tools"
)

const idLength = 9

var validID = regexp.MustCompile(`^[a-z0-9]{9}$`)

// ValidID reports whether id is a 9 character lowercase alphanumeric token.
func ValidID(id string) bool {
	return validID.MatchString(id)
}

// deriveID builds a stable id from where and what the call was, so that
// extracting the same text twice yields the same ids.
func deriveID(offset int, raw string) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d:%s", offset, raw)
	s := strconv.FormatUint(h.Sum64(), 36)
	for len(s) < idLength {
		s = "0" + s
	}
	return s[len(s)-idLength:]
}

// Invalid is a call that was parsed but must not run.
type Invalid struct {
	Call llm.ToolCall
	Err  error // *tools.UnknownToolError or *tools.MissingArgError
}

// Feedback is the corrective instruction sent back to the model.
func (iv Invalid) Feedback() string {
	var unknown *tools.UnknownToolError
	var missing *tools.MissingArgError
	switch {
	case errors.As(iv.Err, &unknown):
		msg := fmt.Sprintf("Error: unknown tool %q.", unknown.Name)
		if unknown.Suggestion != "" {
			msg += fmt.Sprintf(" Did you mean %q?", unknown.Suggestion)
		}
		return msg + " Please retry using one of the available tools with the correct function_call syntax."
	case errors.As(iv.Err, &missing):
		return fmt.Sprintf("Error: tool %q is missing the required argument %q (accepted keys: %s). "+
			"Please retry the call with the argument provided.",
			missing.Tool, missing.Arg, strings.Join(missing.Accepted, ", "))
	default:
		return fmt.Sprintf("Error: invalid call to %q: %v. Please retry.", iv.Call.Name, iv.Err)
	}
}

// Extractor turns cumulative text into validated call descriptors.
type Extractor struct {
	catalog *tools.Catalog
}

func NewExtractor(catalog *tools.Catalog) *Extractor {
	return &Extractor{catalog: catalog}
}

// Extract scans text and returns the valid calls in order of appearance,
// plus the calls rejected by the catalog. Incomplete and malformed
// candidates are skipped. Native calls reported by the provider are merged
// after the embedded ones; a call id is returned at most once.
func (x *Extractor) Extract(text string, native ...llm.ToolCall) ([]llm.ToolCall, []Invalid) {
	var (
		calls   []llm.ToolCall
		invalid []Invalid
		seen    = make(map[string]bool)
	)

	accept := func(call llm.ToolCall) {
		if seen[call.ID] {
			return
		}
		seen[call.ID] = true
		if _, err := x.catalog.Check(call.Name, call.ArgumentsMap()); err != nil {
			invalid = append(invalid, Invalid{Call: call, Err: err})
			return
		}
		calls = append(calls, call)
	}

	for _, c := range Scan(text) {
		if c.Kind != Parsed {
			continue
		}
		call := c.Call
		if !ValidID(call.ID) {
			call.ID = deriveID(c.Offset, c.Raw)
		}
		accept(call)
	}

	for i, call := range native {
		call.Name = strings.TrimSpace(call.Name)
		if strings.TrimSpace(call.Arguments) == "" {
			call.Arguments = "{}"
		}
		if !ValidID(call.ID) {
			call.ID = deriveID(-1-i, call.ID+call.Name+call.Arguments)
		}
		accept(call)
	}
	return calls, invalid
}
