package config

import (
	"fmt"
	"log/slog"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// Config defines the global application configuration structure.
// This structure maps directly to the config.json file and holds
// business-level settings like channel API keys and LLM provider choices.
type Config struct {
	// Channels contains a map of channel identifiers (e.g., "telegram", "web")
	// to their specific configuration payloads in raw JSON format.
	Channels map[string]jsoniter.RawMessage `json:"channels"`
	// LLM holds the configuration for the primary LLM provider in raw JSON.
	LLM jsoniter.RawMessage `json:"llm"`
	// MergeLLM optionally configures a separate client for AI-assisted file
	// merges. When empty the chat client is used.
	MergeLLM jsoniter.RawMessage `json:"merge_llm,omitempty"`
	// SystemPrompt is the global persona/instruction string sent to the AI
	// as the initial system message in every conversation.
	SystemPrompt string `json:"system_prompt"`
	// Workspace is the root directory tools and code inserts operate on.
	Workspace string `json:"workspace"`
	// Storage selects the session persistence backend.
	Storage StorageConfig `json:"storage"`
	// ToolBackendURL is the base URL of a remote tool executor. Tools the
	// local executor does not implement are forwarded there.
	ToolBackendURL string `json:"tool_backend_url,omitempty"`
}

// StorageConfig selects where sessions are persisted.
type StorageConfig struct {
	// Type is "file" (one JSON document per session) or "sqlite".
	Type string `json:"type"`
	// Path is the directory (file) or database file (sqlite).
	Path string `json:"path"`
}

// Validate ensures the configuration structure contains all mandatory fields.
// It acts as a primary guard before the system proceeds to initialization.
func (c *Config) Validate() error {
	if len(c.LLM) == 0 {
		return fmt.Errorf("mandatory 'llm' configuration is missing or empty")
	}
	switch c.Storage.Type {
	case "", "file", "sqlite":
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	return nil
}

// ApplyDefaults fills optional fields left empty in config.json.
func (c *Config) ApplyDefaults() {
	if c.Workspace == "" {
		c.Workspace = "."
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "file"
	}
	if c.Storage.Path == "" {
		if c.Storage.Type == "sqlite" {
			c.Storage.Path = "sessions.db"
		} else {
			c.Storage.Path = "sessions"
		}
	}
}

// SystemConfig defines engine-level technical parameters.
// These settings are usually stored in system.json and control the
// performance, reliability, and technical behavior of the agent engine.
type SystemConfig struct {
	// MaxRetries is the number of times the system will attempt to
	// recover from a transient LLM or network error before giving up.
	MaxRetries int `json:"max_retries"`
	// MaxContinuations caps the continuation requests issued for one user
	// message. A chain that reaches it is terminated with a notice.
	MaxContinuations int `json:"max_continuations"`
	// RetryDelayMs is the duration to wait (in milliseconds) between
	// consecutive retry attempts.
	RetryDelayMs int `json:"retry_delay_ms"`
	// LLMTimeoutMs is the hard cutoff time (in milliseconds) for an
	// LLM request. The context will be cancelled if exceeded.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// OllamaDefaultURL is the fallback endpoint used when connecting
	// to a local Ollama instance if no specific URL is provided.
	OllamaDefaultURL string `json:"ollama_default_url"`
	// InternalChannelBuffer defines the size of the internal Go channels
	// used for buffering stream chunks to prevent production blocking.
	InternalChannelBuffer int `json:"internal_channel_buffer"`
	// ThinkingInitDelayMs is the time to wait (in milliseconds) after a
	// user message before showing the "AI is thinking" status in the UI.
	ThinkingInitDelayMs int `json:"thinking_init_delay_ms"`
	// ThinkingTokenDelayMs is the threshold (in milliseconds) used to
	// detect if the AI has paused during streaming, triggering a thinking signal.
	ThinkingTokenDelayMs int `json:"thinking_token_delay_ms"`
	// TelegramMessageLimit is the maximum character count for a single
	// Telegram message. Longer responses will be split into multiple chunks.
	TelegramMessageLimit int `json:"telegram_message_limit"`
	// DownloadTimeoutMs is the timeout (in milliseconds) applied when
	// fetching external media or files (e.g., from Telegram servers).
	DownloadTimeoutMs int `json:"download_timeout_ms"`
	// ShowThinking determines whether the AI's internal reasoning process (thinking blocks)
	// should be streamed and displayed to the end user.
	ShowThinking bool `json:"show_thinking"`
	// DebugChunks enables saving every raw LLM response chunk to the /debug
	// folder for inspection and troubleshooting purposes.
	DebugChunks bool `json:"debug_chunks"`
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
	// EnableTools globally toggles the tool calling (agentic) functionality.
	// If false, the AI will not be provided with any external tools/capabilities.
	EnableTools bool `json:"enable_tools"`
	// SaveDebounceMs is the quiet period before a scheduled session save is
	// written.
	SaveDebounceMs int `json:"save_debounce_ms"`
	// SaveGrowthBytes is how much a streaming turn must grow before another
	// save is scheduled.
	SaveGrowthBytes int `json:"save_growth_bytes"`
	// ExtractDebounceMs is the quiet period after the last stream increment
	// before function calls are extracted.
	ExtractDebounceMs int `json:"extract_debounce_ms"`
	// ContinuationTimeoutMs is how long a continuation may stay silent
	// before it is abandoned with an apology.
	ContinuationTimeoutMs int `json:"continuation_timeout_ms"`
	// StuckChainTimeoutMs is how long a tool chain may go without progress
	// before the session is reloaded from storage.
	StuckChainTimeoutMs int `json:"stuck_chain_timeout_ms"`
	// InsertSettleMs batches code blocks detected close together.
	InsertSettleMs int `json:"insert_settle_ms"`
	// ToolTimeoutMs bounds a single tool execution.
	ToolTimeoutMs int `json:"tool_timeout_ms"`
	// RateLimitPerSecond limits model requests. Zero disables limiting.
	RateLimitPerSecond float64 `json:"rate_limit_per_second"`
	// RateLimitBurst is the token bucket size for RateLimitPerSecond.
	RateLimitBurst int `json:"rate_limit_burst"`
}

// DefaultSystemConfig returns a SystemConfig pointer initialized with hardcoded
// safe default values. This is used as a fallback when the system.json file
// is missing or corrupt, ensuring the engine can always start.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxRetries:            3,
		MaxContinuations:      25,
		RetryDelayMs:          500,
		LLMTimeoutMs:          600000,
		OllamaDefaultURL:      "http://localhost:11434",
		InternalChannelBuffer: 100,
		ThinkingInitDelayMs:   500,
		ThinkingTokenDelayMs:  200,
		TelegramMessageLimit:  4000,
		DownloadTimeoutMs:     10000,
		ShowThinking:          true,
		LogLevel:              "info",
		EnableTools:           true,
		SaveDebounceMs:        300,
		SaveGrowthBytes:       512,
		ExtractDebounceMs:     250,
		ContinuationTimeoutMs: 30000,
		StuckChainTimeoutMs:   30000,
		InsertSettleMs:        200,
		ToolTimeoutMs:         60000,
		RateLimitBurst:        1,
	}
}

// Load reads the application config at appPath (mandatory) and the system
// config at sysPath (optional, defaults on any failure).
func Load(appPath, sysPath string) (*Config, *SystemConfig, error) {
	if _, err := os.Stat(appPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file '%s' not found. please create one", appPath)
	}

	appFile, err := os.ReadFile(appPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(appFile, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	cfg.ApplyDefaults()

	return &cfg, LoadSystemConfig(sysPath), nil
}

// LoadSystemConfig attempts to load system settings, returns defaults if it fails
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(file, cfg); err != nil {
		slog.Warn("Invalid system config, using defaults", "file", path, "error", err)
		return DefaultSystemConfig()
	}

	return cfg
}
