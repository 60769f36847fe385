package ollama

import (
	"pointer/pkg/config"
	"pointer/pkg/llm"
)

// OllamaFactory builds clients for a local or remote Ollama server. Keys are
// ignored.
type OllamaFactory struct{}

func (f *OllamaFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sys.OllamaDefaultURL
	}
	cfg.APIKeys = nil
	return llm.BuildClients(cfg, sys, func(model, _ string) (llm.LLMClient, error) {
		return NewOllamaClient(model, baseURL, cfg.Options)
	}), nil
}

func init() {
	llm.RegisterProvider("ollama", &OllamaFactory{})
}
