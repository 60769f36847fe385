package llm

import (
	"fmt"
	"log/slog"
	"time"

	"pointer/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

// NewFromConfig builds the client described by a raw "llm" (or "merge_llm")
// config block. Several atomic clients are wrapped in a FallbackClient, and
// the result is rate limited according to the system config.
func NewFromConfig(rawLLM jsoniter.RawMessage, system *config.SystemConfig) (LLMClient, error) {
	if len(rawLLM) == 0 {
		return nil, fmt.Errorf("missing 'llm' config")
	}

	var groups []ProviderGroupConfig
	if err := json.Unmarshal(rawLLM, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse 'llm' config: %w", err)
	}

	var allAtomicClients []LLMClient
	for _, group := range groups {
		slog.Info("Loading LLM group", "type", group.Type, "models", len(group.Models))

		factory, ok := GetProviderFactory(group.Type)
		if !ok {
			slog.Warn("Unknown provider type", "type", group.Type)
			continue
		}

		clients, err := factory.Create(group, system)
		if err != nil {
			slog.Warn("Failed to create clients", "type", group.Type, "error", err)
			continue
		}

		allAtomicClients = append(allAtomicClients, clients...)
	}

	if len(allAtomicClients) == 0 {
		return nil, fmt.Errorf("no LLM clients could be initialized")
	}

	slog.Info("LLM clients initialized", "count", len(allAtomicClients))

	var client LLMClient
	if len(allAtomicClients) == 1 {
		client = allAtomicClients[0]
	} else {
		client = &FallbackClient{
			Clients:    allAtomicClients,
			MaxRetries: system.MaxRetries,
			RetryDelay: time.Duration(system.RetryDelayMs) * time.Millisecond,
		}
	}
	return NewRateLimitedClient(client, system.RateLimitPerSecond, system.RateLimitBurst), nil
}
