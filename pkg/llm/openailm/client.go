package openailm

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"pointer/pkg/llm"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
)

// Client is a wrapper around the official OpenAI Go SDK (Responses API).
type Client struct {
	client       *openai.Client
	provider     string
	model        string
	debugEnabled bool
	options      map[string]any
}

// NewClient creates a new OpenAI client
func NewClient(provider string, apiKey string, model string, baseURL string, options map[string]any) (*Client, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client:   &client,
		provider: provider,
		model:    model,
		options:  options,
	}, nil
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) SetDebug(enabled bool) {
	c.debugEnabled = enabled
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	// Transient: network-level issues
	if strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") {
		return true
	}

	// Transient: server-side temporary failures
	if strings.Contains(msg, "500 internal") ||
		strings.Contains(msg, "502 bad gateway") ||
		strings.Contains(msg, "503 service unavailable") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "overloaded") {
		return true
	}

	return false
}

func (c *Client) StreamChat(ctx context.Context, messages []llm.Message, chatOpts llm.ChatOptions) (<-chan llm.StreamChunk, error) {
	chunkCh := make(chan llm.StreamChunk, 100)

	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: convertMessages(messages),
		},
	}

	opts := []option.RequestOption{}

	if effortStr, ok := c.options["thinking_effort"].(string); ok && effortStr != "" && effortStr != "off" {
		var effort shared.ReasoningEffort
		switch effortStr {
		case "low":
			effort = shared.ReasoningEffortLow
		case "high":
			effort = shared.ReasoningEffortHigh
		default:
			effort = shared.ReasoningEffortMedium
		}
		params.Reasoning = shared.ReasoningParam{Effort: effort}
	}

	if t, ok := c.options["temperature"].(float64); ok {
		opts = append(opts, option.WithJSONSet("temperature", t))
	}
	if p, ok := c.options["top_p"].(float64); ok {
		opts = append(opts, option.WithJSONSet("top_p", p))
	}
	if maxTok, ok := c.options["max_tokens"].(float64); ok {
		opts = append(opts, option.WithJSONSet("max_output_tokens", int(maxTok)))
	}

	if tools := convertTools(chatOpts.Tools); len(tools) > 0 {
		params.Tools = tools
		if choice := toolChoiceValue(chatOpts.ToolChoice); choice != nil {
			opts = append(opts, option.WithJSONSet("tool_choice", choice))
		}
	}

	go func() {
		defer close(chunkCh)

		stream := c.client.Responses.NewStreaming(ctx, params, opts...)
		defer stream.Close()

		var lastFinishReason string
		var lastUsage *llm.LLMUsage

		debugger := llm.NewStreamDebugger(ctx, c.provider, c.debugEnabled)
		defer debugger.Close()

		var thinkingLogBuffer strings.Builder
		calls := newCallCollector()

		send := func(chunk llm.StreamChunk) bool {
			select {
			case chunkCh <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for stream.Next() {
			event := stream.Current()

			// event.JSON keeps the raw payload in an unexported field
			var raw string
			rv := reflect.ValueOf(event.JSON)
			if rv.Kind() == reflect.Struct {
				rt := rv.Type()
				for i := 0; i < rt.NumField(); i++ {
					if rt.Field(i).Name == "raw" {
						raw = rv.Field(i).String()
						break
					}
				}
			}
			if raw != "" {
				debugger.WriteString(raw)
			}

			switch variant := event.AsAny().(type) {
			case responses.ResponseTextDeltaEvent:
				if !send(llm.NewTextChunk(variant.Delta)) {
					return
				}

			case responses.ResponseReasoningTextDeltaEvent:
				thinkingLogBuffer.WriteString(variant.Delta)
				if !send(llm.NewThinkingChunk(variant.Delta)) {
					return
				}

			case responses.ResponseReasoningSummaryTextDeltaEvent:
				thinkingLogBuffer.WriteString(variant.Delta)
				if !send(llm.NewThinkingChunk(variant.Delta)) {
					return
				}

			case responses.ResponseOutputItemAddedEvent:
				if variant.Item.Type == "function_call" {
					calls.begin(variant.Item.ID, variant.Item.CallID, variant.Item.Name)
				}

			case responses.ResponseFunctionCallArgumentsDeltaEvent:
				calls.appendArgs(variant.ItemID, variant.Delta)

			case responses.ResponseFunctionCallArgumentsDoneEvent:
				calls.finishArgs(variant.ItemID, variant.Arguments)

			case responses.ResponseOutputItemDoneEvent:
				if variant.Item.Type == "function_call" {
					calls.begin(variant.Item.ID, variant.Item.CallID, variant.Item.Name)
				}

			case responses.ResponseCompletedEvent:
				lastFinishReason = llm.StopReasonStop
				if variant.Response.Usage.TotalTokens > 0 {
					lastUsage = &llm.LLMUsage{
						PromptTokens:     int(variant.Response.Usage.InputTokens),
						CompletionTokens: int(variant.Response.Usage.OutputTokens),
						TotalTokens:      int(variant.Response.Usage.TotalTokens),
						StopReason:       llm.StopReasonStop,
					}
				}

			case responses.ResponseIncompleteEvent:
				lastFinishReason = llm.StopReasonLength

			case responses.ResponseFailedEvent:
				send(llm.NewErrorChunk("API response failed", fmt.Errorf("openai: response failed"), true))
				return

			case responses.ResponseErrorEvent:
				send(llm.NewErrorChunk(fmt.Sprintf("API error: %s", variant.Message), fmt.Errorf("openai: %s", variant.Message), true))
				return
			}
		}

		if thinkingLogBuffer.Len() > 0 {
			slog.DebugContext(ctx, "Captured thinking", "provider", c.provider, "content", thinkingLogBuffer.String())
		}

		if found := calls.list(); len(found) > 0 {
			if !send(llm.StreamChunk{ToolCalls: found}) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			send(llm.NewErrorChunk(fmt.Sprintf("Stream error: %v", err), err, true))
			return
		}
		llm.LogUsage(c.model, lastUsage)
		reason := llm.StopReasonStop
		if lastFinishReason != "" {
			reason = lastFinishReason
		}
		send(llm.NewFinalChunk(reason, lastUsage))
	}()

	return chunkCh, nil
}

// callCollector assembles streamed function calls keyed by output item id,
// preserving the order in which they were announced.
type callCollector struct {
	order []string
	byID  map[string]*llm.ToolCall
}

func newCallCollector() *callCollector {
	return &callCollector{byID: make(map[string]*llm.ToolCall)}
}

func (cc *callCollector) get(itemID string) *llm.ToolCall {
	tc, ok := cc.byID[itemID]
	if !ok {
		tc = &llm.ToolCall{ID: itemID}
		cc.byID[itemID] = tc
		cc.order = append(cc.order, itemID)
	}
	return tc
}

func (cc *callCollector) begin(itemID, callID, name string) {
	tc := cc.get(itemID)
	if callID != "" {
		tc.ID = callID
	}
	if name != "" {
		tc.Name = name
	}
}

func (cc *callCollector) appendArgs(itemID, delta string) {
	cc.get(itemID).Arguments += delta
}

func (cc *callCollector) finishArgs(itemID, args string) {
	if args != "" {
		cc.get(itemID).Arguments = args
	}
}

func (cc *callCollector) list() []llm.ToolCall {
	out := make([]llm.ToolCall, 0, len(cc.order))
	for _, id := range cc.order {
		if tc := cc.byID[id]; tc.Name != "" {
			out = append(out, *tc)
		}
	}
	return out
}

func convertMessages(messages []llm.Message) []responses.ResponseInputItemUnionParam {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			items = append(items, responses.ResponseInputItemParamOfMessage(
				m.Content,
				responses.EasyInputMessageRoleSystem,
			))
		case llm.RoleUser:
			items = append(items, responses.ResponseInputItemParamOfMessage(
				llm.RenderUserContent(m),
				responses.EasyInputMessageRoleUser,
			))
		case llm.RoleAssistant:
			if m.Content != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(
					m.Content,
					responses.EasyInputMessageRoleAssistant,
				))
			}
			for _, tc := range m.ToolCalls {
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(
					tc.Arguments,
					tc.ID,
					tc.Name,
				))
			}
		case llm.RoleTool:
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(
				m.ToolCallID,
				m.Content,
			))
		}
	}

	return items
}

func convertTools(schemas []llm.ToolSchema) []responses.ToolUnionParam {
	tools := make([]responses.ToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		tools = append(tools, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        s.Name,
				Description: openai.String(s.Description),
				Parameters:  s.Parameters,
			},
		})
	}
	return tools
}

// toolChoiceValue maps a ChatOptions.ToolChoice to its wire form.
func toolChoiceValue(choice string) any {
	switch choice {
	case "":
		return nil
	case llm.ToolChoiceAuto, llm.ToolChoiceNone, "required":
		return choice
	default:
		return map[string]any{"type": "function", "name": choice}
	}
}
