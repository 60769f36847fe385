package channels

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pointer/pkg/api"

	jsoniter "github.com/json-iterator/go"
)

type stubChannel struct{ id string }

func (s *stubChannel) ID() string                            { return s.id }
func (s *stubChannel) Start(api.ChannelContext) error        { return nil }
func (s *stubChannel) Stop() error                           { return nil }
func (s *stubChannel) Send(api.SessionContext, string) error { return nil }

type stubFactory struct{ fail bool }

func (f stubFactory) Create(raw jsoniter.RawMessage, _ Deps) (api.Channel, error) {
	if f.fail {
		return nil, errors.New("bad config")
	}
	var cfg struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &stubChannel{id: cfg.ID}, nil
}

func TestLoadFromConfig(t *testing.T) {
	RegisterChannel("stub_ok", stubFactory{})
	RegisterChannel("stub_fail", stubFactory{fail: true})

	got := LoadFromConfig(map[string]jsoniter.RawMessage{
		"stub_ok":   jsoniter.RawMessage(`{"id":"ok"}`),
		"stub_fail": jsoniter.RawMessage(`{}`),
		"missing":   jsoniter.RawMessage(`{}`),
	}, Deps{})

	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].ID())
}
