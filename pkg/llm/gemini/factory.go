package gemini

import (
	"context"
	"errors"

	"pointer/pkg/config"
	"pointer/pkg/llm"
)

// GeminiFactory builds Gemini API clients, one per model and key.
type GeminiFactory struct{}

func (f *GeminiFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, errors.New("gemini requires at least one api key")
	}
	effort, _ := cfg.Options["thinking_effort"].(string)
	useThought := effort != "" && effort != "off"

	return llm.BuildClients(cfg, sys, func(model, apiKey string) (llm.LLMClient, error) {
		return NewGeminiClient(context.Background(), apiKey, model, useThought)
	}), nil
}

func init() {
	llm.RegisterProvider("gemini", &GeminiFactory{})
}
