package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	name      string
	errs      []error
	chunks    []StreamChunk
	calls     int
	transient bool
}

func (c *scriptedClient) StreamChat(ctx context.Context, _ []Message, _ ChatOptions) (<-chan StreamChunk, error) {
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	ch := make(chan StreamChunk, len(c.chunks))
	for _, chunk := range c.chunks {
		ch <- chunk
	}
	close(ch)
	return ch, nil
}

func (c *scriptedClient) IsTransientError(error) bool { return c.transient }
func (c *scriptedClient) Provider() string            { return c.name }

func TestFallbackClientRetriesTransientThenFallsBack(t *testing.T) {
	first := &scriptedClient{name: "a", transient: true, errs: []error{errors.New("503"), errors.New("503")}}
	second := &scriptedClient{name: "b", chunks: []StreamChunk{NewTextChunk("ok"), NewFinalChunk(StopReasonStop, nil)}}

	fc := &FallbackClient{Clients: []LLMClient{first, second}, MaxRetries: 2}
	out, err := Complete(context.Background(), fc, nil)

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, "fallback(a,b)", fc.Provider())
}

func TestFallbackClientAllFail(t *testing.T) {
	boom := errors.New("401 unauthorized")
	fc := &FallbackClient{Clients: []LLMClient{&scriptedClient{name: "a", errs: []error{boom}}}}

	_, err := fc.StreamChat(context.Background(), nil, ChatOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestCompleteSkipsThinkingAndReportsErrors(t *testing.T) {
	c := &scriptedClient{chunks: []StreamChunk{NewThinkingChunk("hmm"), NewTextChunk("a"), NewTextChunk("b")}}
	out, err := Complete(context.Background(), c, nil)
	require.NoError(t, err)
	assert.Equal(t, "ab", out)

	c = &scriptedClient{chunks: []StreamChunk{NewTextChunk("a"), NewErrorChunk("bad", errors.New("bad"), true)}}
	_, err = Complete(context.Background(), c, nil)
	assert.EqualError(t, err, "bad")

	c = &scriptedClient{chunks: []StreamChunk{NewTextChunk("  ")}}
	_, err = Complete(context.Background(), c, nil)
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestRateLimitedClientHonoursContext(t *testing.T) {
	inner := &scriptedClient{name: "x"}
	assert.Same(t, LLMClient(inner), NewRateLimitedClient(inner, 0, 0))

	limited := NewRateLimitedClient(inner, 0.001, 1)
	_, err := limited.StreamChat(context.Background(), nil, ChatOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = limited.StreamChat(ctx, nil, ChatOptions{})
	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestArgumentsMap(t *testing.T) {
	assert.Equal(t, map[string]any{"file_path": "a.py"}, ToolCall{Arguments: `{"file_path":"a.py"}`}.ArgumentsMap())
	assert.Equal(t, map[string]any{"input": "ls -la"}, ToolCall{Arguments: "ls -la"}.ArgumentsMap())
	assert.Empty(t, ToolCall{}.ArgumentsMap())
}

func TestRenderUserContent(t *testing.T) {
	m := NewUserMessage("fix this")
	assert.Equal(t, "fix this", RenderUserContent(m))

	m.Attachments = []Attachment{{Path: "a.go", Content: "package a"}}
	assert.Equal(t, "fix this\n\nAttached file: a.go\n```\npackage a\n```", RenderUserContent(m))
}

func TestMessageCloneIsDeep(t *testing.T) {
	m := NewAssistantMessage("x")
	m.ToolCalls = []ToolCall{{ID: "abc123xyz", Name: "read_file"}}
	c := m.Clone()
	c.ToolCalls[0].Name = "changed"

	assert.Equal(t, "read_file", m.ToolCalls[0].Name)
	assert.True(t, m.HasCall("abc123xyz"))
	assert.False(t, m.HasCall("nope"))
}
