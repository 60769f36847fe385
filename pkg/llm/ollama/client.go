package ollama

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"pointer/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	"github.com/ollama/ollama/api"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OllamaClient Ollama API client
type OllamaClient struct {
	client       *api.Client
	model        string
	options      map[string]any
	debugEnabled bool
}

func (o *OllamaClient) SetDebug(enabled bool) {
	o.debugEnabled = enabled
}

// NewOllamaClient creates an Ollama client
func NewOllamaClient(model string, baseURL string, options map[string]any) (*OllamaClient, error) {
	// Streams can stay silent for a long time while a model loads, so the
	// transport imposes no response timeout of its own.
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	customClient := &http.Client{
		Transport: &JSONFixingRoundTripper{Proxied: transport},
	}

	var client *api.Client
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		client = api.NewClient(u, customClient)
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
	}

	slog.Info("Ollama client initialized", "model", model, "base_url", baseURL)

	return &OllamaClient{
		client:  client,
		model:   model,
		options: options,
	}, nil
}

func (o *OllamaClient) Provider() string {
	return "ollama"
}

func (o *OllamaClient) StreamChat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (<-chan llm.StreamChunk, error) {
	apiMessages := convertMessages(messages)

	// Ollama has no tool_choice; "none" is expressed by sending no tools.
	var ollamaTools []api.Tool
	if opts.ToolChoice != llm.ToolChoiceNone {
		ollamaTools = convertTools(opts.Tools)
	}

	chunkCh := make(chan llm.StreamChunk, 100)
	startResultCh := make(chan error) // unbuffered: detects whether the caller still waits

	go func() {
		defer close(chunkCh)

		streamVal := true
		req := &api.ChatRequest{
			Model:    o.model,
			Messages: apiMessages,
			Options:  o.options,
			Tools:    ollamaTools,
			Stream:   &streamVal,
		}

		debugger := llm.NewStreamDebugger(ctx, o.Provider(), o.debugEnabled)
		defer debugger.Close()

		started := false
		var thoughtsCount int
		chunkIdx := 0

		send := func(chunk llm.StreamChunk) error {
			select {
			case chunkCh <- chunk:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			chunkIdx++
			if jsonData, err := json.Marshal(resp); err == nil {
				debugger.Write(jsonData)
			}
			if !started {
				started = true
				select {
				case startResultCh <- nil:
				default:
				}
			}

			if resp.Message.Thinking != "" {
				thoughtsCount++
				if err := send(llm.NewThinkingChunk(resp.Message.Thinking)); err != nil {
					return err
				}
			}

			if resp.Message.Content != "" {
				if err := send(llm.NewTextChunk(resp.Message.Content)); err != nil {
					return err
				}
			}

			if len(resp.Message.ToolCalls) > 0 {
				toolCalls := make([]llm.ToolCall, 0, len(resp.Message.ToolCalls))
				for _, tc := range resp.Message.ToolCalls {
					argsB, err := json.Marshal(tc.Function.Arguments)
					if err != nil {
						slog.WarnContext(ctx, "Failed to marshal tool call arguments", "provider", "ollama", "error", err)
						argsB = []byte("{}")
					}
					toolCalls = append(toolCalls, llm.ToolCall{
						ID:        tc.ID,
						Name:      tc.Function.Name,
						Arguments: string(argsB),
					})
				}
				if err := send(llm.StreamChunk{ToolCalls: toolCalls}); err != nil {
					return err
				}
			}

			if resp.Done {
				usage := &llm.LLMUsage{
					PromptTokens:     resp.PromptEvalCount,
					CompletionTokens: resp.EvalCount,
					TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
					ThoughtsTokens:   thoughtsCount,
					StopReason:       resp.DoneReason,
				}
				if resp.DoneReason == llm.StopReasonLength {
					slog.WarnContext(ctx, "Response truncated due to length", "provider", "ollama")
				}
				llm.LogUsage(o.model, usage)
				return send(llm.NewFinalChunk(resp.DoneReason, usage))
			}
			return nil
		})

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.ErrorContext(ctx, "Stream error", "provider", "ollama", "model", o.model, "chunks", chunkIdx, "error", err)
			if !started {
				select {
				case startResultCh <- err:
				default:
					chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Error loading model %s: %v", o.model, err), err, true)
				}
			} else {
				chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream interrupted: %v", err), err, true)
			}
		} else if !started {
			select {
			case startResultCh <- nil:
			default:
			}
		}
	}()

	select {
	case err := <-startResultCh:
		if err != nil {
			return nil, err
		}
		return chunkCh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// convertTools goes through JSON because api.Tool's nested property types
// do not line up with a plain schema map.
func convertTools(schemas []llm.ToolSchema) []api.Tool {
	if len(schemas) == 0 {
		return nil
	}
	wire := make([]map[string]any, 0, len(schemas))
	for _, s := range schemas {
		wire = append(wire, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        s.Name,
				"description": s.Description,
				"parameters":  s.Parameters,
			},
		})
	}
	rawB, err := json.Marshal(wire)
	if err != nil {
		slog.Error("Failed to marshal tools", "provider", "ollama", "error", err)
		return nil
	}
	var tools []api.Tool
	if err := json.Unmarshal(rawB, &tools); err != nil {
		slog.Error("Failed to unmarshal to api.Tool", "provider", "ollama", "error", err)
		return nil
	}
	return tools
}

// convertMessages converts messages to Ollama API format
func convertMessages(messages []llm.Message) []api.Message {
	ollamaMsgs := make([]api.Message, 0, len(messages))

	for _, m := range messages {
		msg := api.Message{
			Role:    m.Role,
			Content: m.Content,
		}

		switch m.Role {
		case llm.RoleUser:
			msg.Content = llm.RenderUserContent(m)
		case llm.RoleAssistant:
			for _, tc := range m.ToolCalls {
				var apiArgs api.ToolCallFunctionArguments
				if err := json.Unmarshal([]byte(tc.Arguments), &apiArgs); err != nil {
					slog.Warn("Failed to unmarshal tool arguments for history", "provider", "ollama", "error", err)
				}
				msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
					ID: tc.ID,
					Function: api.ToolCallFunction{
						Name:      tc.Name,
						Arguments: apiArgs,
					},
				})
			}
		case llm.RoleTool:
			msg.ToolCallID = m.ToolCallID
			msg.ToolName = m.ToolName
		}

		ollamaMsgs = append(ollamaMsgs, msg)
	}

	return ollamaMsgs
}

func (o *OllamaClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "connection reset") {
		return true
	}
	return strings.Contains(errMsg, "overloaded")
}

//----------------------------------------------------------------
// JSONFixingRoundTripper - Interceptor that fixes illegal JSON escapes
//----------------------------------------------------------------

// JSONFixingRoundTripper intercepts response and fixes illegal escapes (e.g., \$)
type JSONFixingRoundTripper struct {
	Proxied http.RoundTripper
}

func (j *JSONFixingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := j.Proxied.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") || strings.Contains(ct, "application/x-ndjson") {
		resp.Body = &jsonFixingReadCloser{body: resp.Body}
	}
	return resp, nil
}

type jsonFixingReadCloser struct {
	body io.ReadCloser
}

var illegalEscapeRegex = regexp.MustCompile(`\\([^\/\\bfnrtu"])`)

func (j *jsonFixingReadCloser) Read(p []byte) (n int, err error) {
	n, err = j.body.Read(p)
	if n > 0 {
		// Only backslashes are removed, so the fixed text always fits in p.
		content := string(p[:n])
		fixed := illegalEscapeRegex.ReplaceAllString(content, "$1")
		if len(fixed) < len(content) {
			copy(p, fixed)
			n = len(fixed)
		}
	}
	return n, err
}

func (j *jsonFixingReadCloser) Close() error {
	return j.body.Close()
}
