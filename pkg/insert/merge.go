package insert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"pointer/pkg/llm"
)

const mergeSystemPrompt = `You merge code changes into existing files.
You receive the original file and a proposed version that may be partial.
Return the complete merged file and nothing else: no explanations, no markdown fences.
Keep every part of the original the proposal does not change.`

// Merger asks a model to combine an existing file with proposed content.
type Merger struct {
	primary  llm.LLMClient
	fallback llm.LLMClient
}

// NewMerger uses primary for merges and fallback when primary fails. Either
// may be nil.
func NewMerger(primary, fallback llm.LLMClient) *Merger {
	return &Merger{primary: primary, fallback: fallback}
}

// Merge returns the merged file content.
func (m *Merger) Merge(ctx context.Context, path, original, proposed string) (string, error) {
	msgs := []llm.Message{
		llm.NewSystemMessage(mergeSystemPrompt),
		llm.NewUserMessage(mergePrompt(path, original, proposed)),
	}

	var errs []error
	for i, client := range []llm.LLMClient{m.primary, m.fallback} {
		if client == nil {
			continue
		}
		out, err := llm.Complete(ctx, client, msgs)
		if err == nil {
			return StripFences(out), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.WarnContext(ctx, "Merge request failed", "path", path, "provider", client.Provider(), "attempt", i+1, "error", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", errors.New("no merge client configured")
	}
	return "", fmt.Errorf("merge %s: %w", path, errors.Join(errs...))
}

func mergePrompt(path, original, proposed string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "File: %s\n\nOriginal content:\n```\n%s", path, original)
	if !strings.HasSuffix(original, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("```\n\nProposed changes:\n```\n")
	sb.WriteString(proposed)
	if !strings.HasSuffix(proposed, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("```\n\nReturn the complete merged file.")
	return sb.String()
}

// StripFences removes a markdown fence wrapped around the whole text.
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}
	nl := strings.IndexByte(trimmed, '\n')
	if nl < 0 {
		return text
	}
	body := trimmed[nl+1:]
	if i := strings.LastIndex(body, "```"); i >= 0 && strings.TrimSpace(body[i+3:]) == "" {
		body = body[:i]
	}
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	return body
}
