package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pointer/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/genai"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// GeminiClient Google Gemini API client
type GeminiClient struct {
	client       *genai.Client
	model        string
	useThought   bool
	debugEnabled bool
}

func (g *GeminiClient) SetDebug(enabled bool) {
	g.debugEnabled = enabled
}

// NewGeminiClient creates a Gemini client with a single model and API key
func NewGeminiClient(ctx context.Context, apiKey string, model string, useThought bool) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:     client,
		model:      model,
		useThought: useThought,
	}, nil
}

func (g *GeminiClient) Provider() string {
	return "gemini"
}

func (g *GeminiClient) StreamChat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (<-chan llm.StreamChunk, error) {
	apiMessages, systemInstruction := convertMessages(messages)

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Tools:             convertTools(opts.Tools),
		ToolConfig:        toolConfig(opts),
	}
	if g.useThought {
		genCfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}

	chunkCh := make(chan llm.StreamChunk, 100)
	startResultCh := make(chan error, 1)

	slog.DebugContext(ctx, "Streaming", "provider", "gemini", "model", g.model)

	go func() {
		defer close(chunkCh)

		iter := g.client.Models.GenerateContentStream(ctx, g.model, apiMessages, genCfg)

		debugger := llm.NewStreamDebugger(ctx, g.Provider(), g.debugEnabled)
		defer debugger.Close()

		send := func(chunk llm.StreamChunk) bool {
			select {
			case chunkCh <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		started := false
		var lastUsage *llm.LLMUsage

		for resp, err := range iter {
			if resp != nil {
				if jsonData, mErr := json.Marshal(resp); mErr == nil {
					debugger.Write(jsonData)
				}
			}
			if err != nil {
				slog.ErrorContext(ctx, "Stream error", "provider", "gemini", "error", err)
				if !started {
					startResultCh <- err
				} else if ctx.Err() == nil {
					send(llm.NewErrorChunk(fmt.Sprintf("Stream interrupted: %v", err), err, true))
				}
				return
			}

			if !started {
				started = true
				startResultCh <- nil
			}

			if resp.UsageMetadata != nil {
				u := resp.UsageMetadata
				lastUsage = &llm.LLMUsage{
					PromptTokens:     int(u.PromptTokenCount),
					CompletionTokens: int(u.CandidatesTokenCount),
					TotalTokens:      int(u.TotalTokenCount),
					ThoughtsTokens:   int(u.ThoughtsTokenCount),
					CachedTokens:     int(u.CachedContentTokenCount),
				}
			}

			for _, candidate := range resp.Candidates {
				if candidate.FinishReason != "" && lastUsage != nil {
					lastUsage.StopReason = normalizeStopReason(candidate.FinishReason)
				}
				if candidate.Content == nil {
					continue
				}

				var chunk llm.StreamChunk
				for _, part := range candidate.Content.Parts {
					if part.Text != "" {
						blockType := llm.BlockTypeText
						if part.Thought {
							blockType = llm.BlockTypeThinking
						}
						chunk.ContentBlocks = append(chunk.ContentBlocks, llm.ContentBlock{Type: blockType, Text: part.Text})
					}

					if part.FunctionCall != nil {
						argsB, _ := json.Marshal(part.FunctionCall.Args)
						chunk.ToolCalls = append(chunk.ToolCalls, llm.ToolCall{
							ID:        part.FunctionCall.ID,
							Name:      part.FunctionCall.Name,
							Arguments: string(argsB),
							// Replayed verbatim so the thought signature survives.
							Meta: map[string]any{"gemini_function_call": part.FunctionCall},
						})
					}
				}

				if len(chunk.ContentBlocks) > 0 || len(chunk.ToolCalls) > 0 {
					if !send(chunk) {
						return
					}
				}
			}
		}

		if !started {
			startResultCh <- nil
		}
		reason := llm.StopReasonStop
		if lastUsage != nil && lastUsage.StopReason != "" {
			reason = lastUsage.StopReason
		}
		llm.LogUsage(g.model, lastUsage)
		send(llm.NewFinalChunk(reason, lastUsage))
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

func convertTools(schemas []llm.ToolSchema) []*genai.Tool {
	if len(schemas) == 0 {
		return nil
	}
	fds := make([]*genai.FunctionDeclaration, 0, len(schemas))
	for _, s := range schemas {
		fd := &genai.FunctionDeclaration{
			Name:                 s.Name,
			Description:          s.Description,
			ParametersJsonSchema: s.Parameters,
		}
		fds = append(fds, fd)
	}
	return []*genai.Tool{{FunctionDeclarations: fds}}
}

func toolConfig(opts llm.ChatOptions) *genai.ToolConfig {
	if len(opts.Tools) == 0 {
		return nil
	}
	switch opts.ToolChoice {
	case "", llm.ToolChoiceAuto:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto}}
	case llm.ToolChoiceNone:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeNone}}
	default:
		return &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 genai.FunctionCallingConfigModeAny,
			AllowedFunctionNames: []string{opts.ToolChoice},
		}}
	}
}

// convertMessages converts message list to GenAI format
func convertMessages(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var genaiContents []*genai.Content
	var systemInstruction *genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			if msg.Content != "" {
				systemInstruction = &genai.Content{Parts: []*genai.Part{{Text: msg.Content}}}
			}
			continue

		case llm.RoleTool:
			// Tool results travel in the user role.
			genaiContents = append(genaiContents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolCallID,
						Name:     msg.ToolName,
						Response: map[string]any{"result": msg.Content},
					},
				}},
			})
			continue
		}

		role := "user"
		text := llm.RenderUserContent(msg)
		if msg.Role == llm.RoleAssistant {
			role = "model"
			text = msg.Content
		}

		var parts []*genai.Part
		if text != "" {
			parts = append(parts, &genai.Part{Text: text})
		}
		for _, tc := range msg.ToolCalls {
			if originalFC, ok := tc.Meta["gemini_function_call"].(*genai.FunctionCall); ok {
				fc := *originalFC
				fc.ID = tc.ID // ids are reassigned during extraction
				parts = append(parts, &genai.Part{FunctionCall: &fc})
				continue
			}
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: tc.ArgumentsMap(),
				},
			})
		}

		if len(parts) > 0 {
			genaiContents = append(genaiContents, &genai.Content{Role: role, Parts: parts})
		}
	}

	return genaiContents, systemInstruction
}

func normalizeStopReason(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonStop:
		return llm.StopReasonStop
	case genai.FinishReasonMaxTokens:
		return llm.StopReasonLength
	default:
		return strings.ToLower(string(reason))
	}
}

func (g *GeminiClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())

	// 503 Service Unavailable / Overloaded
	if strings.Contains(errMsg, "503") || strings.Contains(errMsg, "overloaded") {
		return true
	}
	// 429 Too Many Requests
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "resource exhausted") {
		return true
	}
	// 500 Internal Error
	return strings.Contains(errMsg, "500") || strings.Contains(errMsg, "internal error")
}
