package monitor

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// previewRunes bounds how much of a message is mirrored.
const previewRunes = 300

// CLIMonitor mirrors chat traffic to a terminal.
type CLIMonitor struct {
	mu     sync.Mutex
	writer io.Writer
}

func NewCLIMonitor(w io.Writer) *CLIMonitor {
	return &CLIMonitor{writer: w}
}

func (m *CLIMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := fmt.Fprintln(m.writer, "--- monitor: mirroring all channel traffic ---")
	return err
}

func (m *CLIMonitor) Stop() error {
	return nil
}

func (m *CLIMonitor) OnMessage(msg MonitorMessage) {
	who := fmt.Sprintf("%s/%s", msg.ChannelID, msg.Username)
	if msg.MessageType == "ASSISTANT" {
		who = "AI -> " + msg.ChannelID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// gray timestamp
	fmt.Fprintf(m.writer, "\033[90m[%s]\033[0m [%s] %s\n", msg.Timestamp.Format("15:04:05"), who, preview(msg.Content))
}

// preview flattens s to one line of at most previewRunes runes.
func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > previewRunes {
		return string(r[:previewRunes]) + "..."
	}
	return s
}
