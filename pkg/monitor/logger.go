package monitor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// CustomHandler writes records as
//
//	[2006-01-02 15:04:05] [LEVEL] [session] message key=value ...
//
// The session tag comes from WithSession and is omitted outside a session.
// Groups prefix their keys ("group.key").
type CustomHandler struct {
	w      io.Writer
	mu     *sync.Mutex
	opts   slog.HandlerOptions
	prefix string // current group path, "" or ending in "."
	attrs  []byte // pre-rendered WithAttrs output
}

func NewCustomHandler(w io.Writer, opts slog.HandlerOptions) *CustomHandler {
	return &CustomHandler{
		w:    w,
		mu:   &sync.Mutex{},
		opts: opts,
	}
}

type sessionKey struct{}

// WithSession tags every log record emitted with ctx by the session id.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFrom returns the session id stored by WithSession.
func SessionFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

func (h *CustomHandler) Enabled(ctx context.Context, level slog.Level) bool {
	threshold := slog.LevelInfo
	if h.opts.Level != nil {
		threshold = h.opts.Level.Level()
	}
	return level >= threshold
}

func (h *CustomHandler) Handle(ctx context.Context, r slog.Record) error {
	buf := bytes.NewBuffer(nil)
	fmt.Fprintf(buf, "[%s] [%s]", r.Time.Format("2006-01-02 15:04:05"), r.Level)
	if sessionID := SessionFrom(ctx); sessionID != "" {
		fmt.Fprintf(buf, " [%s]", sessionID)
	}
	buf.WriteString(" ")
	buf.WriteString(r.Message)

	buf.Write(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(buf, h.prefix, a)
		return true
	})
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func appendAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	val := a.Value.Resolve()
	if val.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range val.Group() {
			appendAttr(buf, prefix, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}

	buf.WriteString(" ")
	buf.WriteString(prefix)
	buf.WriteString(a.Key)
	buf.WriteString("=")
	switch val.Kind() {
	case slog.KindString:
		fmt.Fprintf(buf, "%q", val.String())
	case slog.KindTime:
		buf.WriteString(val.Time().Format(time.RFC3339))
	case slog.KindDuration:
		buf.WriteString(val.Duration().Round(time.Millisecond).String())
	default:
		if err, ok := val.Any().(error); ok {
			fmt.Fprintf(buf, "%q", err.Error())
			return
		}
		fmt.Fprintf(buf, "%v", val.Any())
	}
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	buf := bytes.NewBuffer(append([]byte(nil), h.attrs...))
	for _, a := range attrs {
		appendAttr(buf, h.prefix, a)
	}
	next := *h
	next.attrs = buf.Bytes()
	return &next
}

func (h *CustomHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// SetupSlog initializes the global slog logger with the CustomHandler.
func SetupSlog(levelStr string) {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := NewCustomHandler(os.Stderr, slog.HandlerOptions{
		Level: level,
	})

	slog.SetDefault(slog.New(handler))
}

// PrintBanner prints the startup banner
func PrintBanner() {
	fmt.Println(`
  ____       _       _
 |  _ \ ___ (_)_ __ | |_ ___ _ __
 | |_) / _ \| | '_ \| __/ _ \ '__|
 |  __/ (_) | | | | | ||  __/ |
 |_|   \___/|_|_| |_|\__\___|_|
`)
}
