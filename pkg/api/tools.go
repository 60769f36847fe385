package api

import (
	"context"
)

// ToolOutcome is what a tool executor reports for one call.
type ToolOutcome struct {
	Success bool   `json:"success"`
	Content any    `json:"content,omitempty"` // string or any JSON-serializable value
	Error   string `json:"error,omitempty"`
}

// ToolExecutor runs a named tool. A non-nil error means the executor itself
// failed (transport, unsupported tool); a failed tool run is reported through
// ToolOutcome.Success.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any) (*ToolOutcome, error)
}

// ToolExecutorFunc adapts a function to ToolExecutor.
type ToolExecutorFunc func(ctx context.Context, name string, args map[string]any) (*ToolOutcome, error)

func (f ToolExecutorFunc) Execute(ctx context.Context, name string, args map[string]any) (*ToolOutcome, error) {
	return f(ctx, name, args)
}

// FileChange is one before/after pair produced by an applied code edit.
type FileChange struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Before string `json:"before"`
	After  string `json:"after"`
	Diff   string `json:"diff,omitempty"` // unified diff of Before -> After
	// Created is set when the file did not exist before.
	Created bool `json:"created,omitempty"`
}

// DiffSink consumes file changes: it writes them, displays them for review,
// or both.
type DiffSink interface {
	EmitChange(ctx context.Context, change FileChange) error
}
