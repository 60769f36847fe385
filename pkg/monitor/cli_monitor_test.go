package monitor

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCLIMonitorMirrorsOneLine(t *testing.T) {
	var buf bytes.Buffer
	m := NewCLIMonitor(&buf)

	m.OnMessage(MonitorMessage{
		Timestamp:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		MessageType: "USER",
		ChannelID:   "telegram",
		Username:    "dev",
		Content:     "fix\nthe   build",
	})
	m.OnMessage(MonitorMessage{MessageType: "ASSISTANT", ChannelID: "web", Content: strings.Repeat("x", 400)})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[03:04:05]")
	assert.Contains(t, lines[0], "[telegram/dev] fix the build")
	assert.Contains(t, lines[1], "[AI -> web]")
	assert.True(t, strings.HasSuffix(lines[1], strings.Repeat("x", previewRunes)+"..."))
}
