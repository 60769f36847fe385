package channels

import (
	"context"

	"pointer/pkg/api"
	"pointer/pkg/config"
	"pointer/pkg/transcript"

	jsoniter "github.com/json-iterator/go"
)

// Deps are the shared resources a channel may need.
type Deps struct {
	System   *config.SystemConfig
	Sessions func(ctx context.Context) ([]transcript.Summary, error)
}

// ChannelFactory creates a platform channel from its raw config block.
type ChannelFactory interface {
	Create(rawConfig jsoniter.RawMessage, deps Deps) (api.Channel, error)
}

var channelRegistry = make(map[string]ChannelFactory)

// RegisterChannel adds a factory under a platform name. Called from init.
func RegisterChannel(name string, factory ChannelFactory) {
	channelRegistry[name] = factory
}

// GetChannelFactory returns the factory registered under name.
func GetChannelFactory(name string) (ChannelFactory, bool) {
	f, ok := channelRegistry[name]
	return f, ok
}
