package llm

import (
	"log/slog"
	"sync"

	"pointer/pkg/config"
)

// ProviderGroupConfig is one entry of the "llm" array in config.json.
type ProviderGroupConfig struct {
	Type                string         `json:"type"`
	APIKeys             []string       `json:"api_keys,omitempty"`
	Models              []string       `json:"models"`
	BaseURL             string         `json:"base_url,omitempty"`
	UseThoughtSignature bool           `json:"use_thought_signature,omitempty"`
	Options             map[string]any `json:"options,omitempty"`
}

// ProviderFactory builds the atomic clients of one provider group.
type ProviderFactory interface {
	Create(groupConfig ProviderGroupConfig, systemConfig *config.SystemConfig) ([]LLMClient, error)
}

var (
	registryMu       sync.RWMutex
	providerRegistry = make(map[string]ProviderFactory)
)

// RegisterProvider is called from provider package init functions.
func RegisterProvider(name string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	providerRegistry[name] = factory
}

func GetProviderFactory(name string) (ProviderFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := providerRegistry[name]
	return f, ok
}

// debuggable clients can dump raw provider chunks.
type debuggable interface {
	SetDebug(enabled bool)
}

// BuildClients creates one client per model and key, models first, so a
// FallbackClient walks every key of the preferred model before moving on.
// A group without keys builds one client per model with an empty key.
// Failures are logged and skipped.
func BuildClients(group ProviderGroupConfig, system *config.SystemConfig, build func(model, apiKey string) (LLMClient, error)) []LLMClient {
	keys := group.APIKeys
	if len(keys) == 0 {
		keys = []string{""}
	}

	var clients []LLMClient
	for _, model := range group.Models {
		for i, key := range keys {
			client, err := build(model, key)
			if err != nil {
				slog.Error("Failed to create LLM client", "type", group.Type, "model", model, "key_index", i, "error", err)
				continue
			}
			if d, ok := client.(debuggable); ok && system != nil {
				d.SetDebug(system.DebugChunks)
			}
			clients = append(clients, client)
		}
	}
	return clients
}
