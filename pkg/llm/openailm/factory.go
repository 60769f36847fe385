package openailm

import (
	"pointer/pkg/config"
	"pointer/pkg/llm"
)

// OpenAIFactory builds clients for OpenAI and OpenAI-compatible endpoints
// (set base_url for the latter).
type OpenAIFactory struct{}

func (f *OpenAIFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	return llm.BuildClients(cfg, sys, func(model, apiKey string) (llm.LLMClient, error) {
		return NewClient(cfg.Type, apiKey, model, cfg.BaseURL, cfg.Options)
	}), nil
}

func init() {
	llm.RegisterProvider("openai", &OpenAIFactory{})
}
