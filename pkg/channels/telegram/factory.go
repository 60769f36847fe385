package telegram

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"pointer/pkg/api"
	"pointer/pkg/channels"
	"pointer/pkg/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TelegramFactory creates the Telegram channel.
type TelegramFactory struct{}

func (f *TelegramFactory) Create(rawConfig jsoniter.RawMessage, deps channels.Deps) (api.Channel, error) {
	var tgCfg TelegramConfig
	if err := json.Unmarshal(rawConfig, &tgCfg); err != nil {
		return nil, fmt.Errorf("failed to parse telegram config: %w", err)
	}
	if tgCfg.Token == "" {
		return nil, errors.New("missing telegram token")
	}

	system := deps.System
	if system == nil {
		system = config.DefaultSystemConfig()
	}
	return NewTelegramChannel(tgCfg, system.TelegramMessageLimit, system.DownloadTimeoutMs)
}

func init() {
	channels.RegisterChannel("telegram", &TelegramFactory{})
}
