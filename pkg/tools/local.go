package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"pointer/pkg/api"
)

// ErrNotSupported is returned by an executor that does not implement a tool.
var ErrNotSupported = errors.New("tool not supported by this executor")

// LocalExecutor runs the file, search, shell and web tools in-process
// against a workspace directory.
type LocalExecutor struct {
	root       string
	catalog    *Catalog
	shell      *Shell
	httpClient *http.Client
	searchURL  string
	cmdTimeout time.Duration
}

// LocalOption configures a LocalExecutor.
type LocalOption func(*LocalExecutor)

// WithHTTPClient sets the client used by fetch_webpage and web_search.
func WithHTTPClient(c *http.Client) LocalOption {
	return func(e *LocalExecutor) { e.httpClient = c }
}

// WithSearchURL overrides the HTML search endpoint used by web_search.
func WithSearchURL(u string) LocalOption {
	return func(e *LocalExecutor) { e.searchURL = u }
}

// WithCommandTimeout sets the default run_terminal_cmd timeout.
func WithCommandTimeout(d time.Duration) LocalOption {
	return func(e *LocalExecutor) { e.cmdTimeout = d }
}

// NewLocalExecutor creates an executor rooted at workspace.
func NewLocalExecutor(workspace string, catalog *Catalog, opts ...LocalOption) (*LocalExecutor, error) {
	root, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	e := &LocalExecutor{
		root:       root,
		catalog:    catalog,
		shell:      NewShell(root),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		searchURL:  defaultSearchURL,
		cmdTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Root returns the absolute workspace directory.
func (e *LocalExecutor) Root() string {
	return e.root
}

func (e *LocalExecutor) Execute(ctx context.Context, name string, args map[string]any) (*api.ToolOutcome, error) {
	id, ok := e.catalog.Resolve(name)
	if !ok {
		return nil, &UnknownToolError{Name: name, Suggestion: e.catalog.Suggest(name)}
	}
	args = e.catalog.Canonicalize(id, args)

	var (
		content any
		err     error
	)
	switch id {
	case ReadFile:
		content, err = e.readFile(args)
	case DeleteFile:
		content, err = e.deleteFile(args)
	case MoveFile:
		content, err = e.transferFile(args, false)
	case CopyFile:
		content, err = e.transferFile(args, true)
	case ListDirectory:
		content, err = e.listDirectory(args)
	case GrepSearch:
		content, err = e.grepSearch(ctx, args)
	case RunTerminalCmd:
		content, err = e.runTerminalCmd(ctx, args)
	case FetchWebpage:
		content, err = e.fetchWebpage(ctx, args)
	case WebSearch:
		content, err = e.webSearch(ctx, args)
	default:
		return nil, fmt.Errorf("%s: %w", e.catalog.Name(id), ErrNotSupported)
	}

	if err != nil {
		slog.DebugContext(ctx, "Local tool failed", "tool", e.catalog.Name(id), "error", err)
		return &api.ToolOutcome{Success: false, Error: err.Error()}, nil
	}
	return &api.ToolOutcome{Success: true, Content: content}, nil
}

// resolve maps a user supplied path into the workspace.
func (e *LocalExecutor) resolve(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errors.New("no path provided")
	}
	full := p
	if !filepath.IsAbs(p) {
		full = filepath.Join(e.root, p)
	}
	full = filepath.Clean(full)
	rel, err := filepath.Rel(e.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the workspace", p)
	}
	return full, nil
}

// rel returns full relative to the workspace, with forward slashes.
func (e *LocalExecutor) rel(full string) string {
	r, err := filepath.Rel(e.root, full)
	if err != nil {
		return full
	}
	return filepath.ToSlash(r)
}

func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return def
}

func boolArg(args map[string]any, key string, def bool) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "true", "yes", "1":
			return true
		case "false", "no", "0":
			return false
		}
	}
	return def
}
