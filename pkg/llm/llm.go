package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json is used for all JSON handling inside package llm.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LLMUsage is the provider-neutral token accounting for one response.
type LLMUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ThoughtsTokens   int    `json:"thoughts_tokens,omitempty"`
	CachedTokens     int    `json:"cached_tokens,omitempty"`
	StopReason       string `json:"stop_reason,omitempty"`
}

// LogUsage writes a usage summary at debug level.
func LogUsage(model string, usage *LLMUsage) {
	if usage == nil {
		return
	}
	slog.Debug("LLM usage",
		"model", model,
		"prompt", usage.PromptTokens,
		"completion", usage.CompletionTokens,
		"total", usage.TotalTokens,
		"thoughts", usage.ThoughtsTokens,
		"cached", usage.CachedTokens,
		"stop_reason", usage.StopReason,
	)
}

// ToolSchema describes one tool to the model endpoint. The list is passed
// verbatim on every request.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatOptions are per-request settings.
type ChatOptions struct {
	Tools      []ToolSchema
	ToolChoice string // ToolChoiceAuto, ToolChoiceNone or a tool name
}

// LLMClient is the streaming chat-completion endpoint.
type LLMClient interface {
	// StreamChat starts one streaming request. The returned channel yields
	// increments and is closed when the stream ends or ctx is cancelled.
	StreamChat(ctx context.Context, messages []Message, opts ChatOptions) (<-chan StreamChunk, error)

	// IsTransientError reports whether err is worth retrying (503, rate limit...).
	IsTransientError(err error) bool

	// Provider names the backend ("openai", "ollama", "gemini").
	Provider() string
}

// ErrEmptyCompletion is returned by Complete when the model produced no text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Complete runs a request to completion and returns the concatenated text.
// It is the non-streaming pathway used for merges.
func Complete(ctx context.Context, client LLMClient, messages []Message) (string, error) {
	chunkCh, err := client.StreamChat(ctx, messages, ChatOptions{ToolChoice: ToolChoiceNone})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for chunk := range chunkCh {
		if chunk.RawError != nil {
			return "", chunk.RawError
		}
		if chunk.Error != "" && chunk.IsFinal {
			return "", errors.New(chunk.Error)
		}
		sb.WriteString(chunk.Text())
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyCompletion
	}
	return sb.String(), nil
}

// FallbackClient tries each client in order, retrying transient failures.
type FallbackClient struct {
	Clients    []LLMClient
	MaxRetries int
	RetryDelay time.Duration
}

func (f *FallbackClient) Provider() string {
	names := make([]string, 0, len(f.Clients))
	for _, c := range f.Clients {
		names = append(names, c.Provider())
	}
	return "fallback(" + strings.Join(names, ",") + ")"
}

func (f *FallbackClient) StreamChat(ctx context.Context, messages []Message, opts ChatOptions) (<-chan StreamChunk, error) {
	var lastErr error
	for i, client := range f.Clients {
		if i > 0 {
			slog.WarnContext(ctx, "Previous provider failed, trying fallback", "index", i+1, "provider", client.Provider())
		}

		maxRetries := f.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}

		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				slog.InfoContext(ctx, "Retrying provider", "index", i+1, "attempt", retry, "max", maxRetries)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(retry-1) * f.RetryDelay):
				}
			}

			ch, err := client.StreamChat(ctx, messages, opts)
			if err == nil {
				return ch, nil
			}
			lastErr = err

			if client.IsTransientError(err) && retry < maxRetries {
				slog.WarnContext(ctx, "Provider failed with transient error", "index", i+1, "error", err)
				continue
			}

			slog.ErrorContext(ctx, "Provider failed", "index", i+1, "error", err)
			break
		}
	}
	return nil, fmt.Errorf("all fallback providers failed: %w", lastErr)
}

// IsTransientError is false: a FallbackClient error means every child failed.
func (f *FallbackClient) IsTransientError(err error) bool {
	return false
}
