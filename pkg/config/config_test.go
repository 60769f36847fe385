package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	app := writeFile(t, dir, "config.json", `{"llm":[{"type":"ollama","models":["qwen"]}],"system_prompt":"hi"}`)
	sys := writeFile(t, dir, "system.json", `{"save_debounce_ms":100,"max_continuations":3}`)

	cfg, sysCfg, err := Load(app, sys)
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Workspace)
	assert.Equal(t, "file", cfg.Storage.Type)
	assert.Equal(t, "sessions", cfg.Storage.Path)
	assert.Equal(t, 100, sysCfg.SaveDebounceMs)
	assert.Equal(t, 3, sysCfg.MaxContinuations)
	// untouched fields keep defaults
	assert.Equal(t, 30000, sysCfg.ContinuationTimeoutMs)
	assert.Equal(t, 512, sysCfg.SaveGrowthBytes)
}

func TestLoadRejectsMissingLLM(t *testing.T) {
	dir := t.TempDir()
	app := writeFile(t, dir, "config.json", `{"system_prompt":"hi"}`)

	_, _, err := Load(app, filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "'llm'")
}

func TestLoadRejectsUnknownStorage(t *testing.T) {
	dir := t.TempDir()
	app := writeFile(t, dir, "config.json", `{"llm":[{}],"storage":{"type":"redis"}}`)

	_, _, err := Load(app, "")
	assert.ErrorContains(t, err, "redis")
}

func TestLoadSystemConfigFallsBackOnGarbage(t *testing.T) {
	dir := t.TempDir()
	sys := writeFile(t, dir, "system.json", `{not json`)

	assert.Equal(t, DefaultSystemConfig(), LoadSystemConfig(sys))
}

func TestWatchConfigCoalescesWrites(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "system.json", `{}`)

	ctx, cancel := context.WithCancel(context.Background())
	reload := WatchConfig(ctx, path)

	writeFile(t, dir, "other.json", `{}`)
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte(`{"log_level":"debug"}`), 0o644))
	}

	select {
	case _, ok := <-reload:
		require.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload signal")
	}
	assert.Equal(t, "debug", LoadSystemConfig(path).LogLevel)

	cancel()
	select {
	case _, ok := <-reload:
		if ok {
			// a late signal may still be buffered
			_, ok = <-reload
		}
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("reload channel not closed")
	}
}
