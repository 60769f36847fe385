package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pointer/pkg/monitor"
)

// debugRoot is where raw chunk dumps go: debug/chunks/<session>/<provider>/.
var debugRoot = filepath.Join("debug", "chunks")

// StreamDebugger dumps the raw provider payloads of one stream, one line per
// chunk prefixed with the milliseconds since the stream opened. A disabled
// debugger is a no-op.
type StreamDebugger struct {
	mu    sync.Mutex
	file  *os.File
	start time.Time
	n     int
}

// NewStreamDebugger opens a dump file for provider when enabled. The session
// tag of ctx, if any, selects the folder.
func NewStreamDebugger(ctx context.Context, provider string, enabled bool) *StreamDebugger {
	if !enabled {
		return &StreamDebugger{}
	}

	dir := filepath.Join(debugRoot, provider)
	if session := monitor.SessionFrom(ctx); session != "" {
		dir = filepath.Join(debugRoot, session, provider)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.ErrorContext(ctx, "Failed to create debug directory", "dir", dir, "error", err)
		return &StreamDebugger{}
	}

	name := filepath.Join(dir, time.Now().Format("20060102_150405.000")+".log")
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to open debug file", "file", name, "error", err)
		return &StreamDebugger{}
	}

	slog.DebugContext(ctx, "Dumping raw chunks", "provider", provider, "file", name)
	return &StreamDebugger{file: f, start: time.Now()}
}

// Write appends one raw payload.
func (d *StreamDebugger) Write(data []byte) {
	d.WriteString(string(data))
}

// WriteString appends one raw payload.
func (d *StreamDebugger) WriteString(s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return
	}
	d.n++
	if _, err := fmt.Fprintf(d.file, "%04d +%dms %s\n", d.n, time.Since(d.start).Milliseconds(), s); err != nil {
		slog.Warn("Failed to write to debug file", "error", err)
	}
}

// Chunks returns how many payloads were written.
func (d *StreamDebugger) Chunks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n
}

func (d *StreamDebugger) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}
}
