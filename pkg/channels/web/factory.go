package web

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"pointer/pkg/api"
	"pointer/pkg/channels"
)

// WebFactory creates the web channel.
type WebFactory struct{}

func (f *WebFactory) Create(rawConfig jsoniter.RawMessage, deps channels.Deps) (api.Channel, error) {
	cfg := WebConfig{Port: 9453}
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse web config: %w", err)
		}
	}
	return NewWebChannel(cfg, deps.Sessions), nil
}

func init() {
	channels.RegisterChannel("web", &WebFactory{})
}
