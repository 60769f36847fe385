package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pointer/pkg/api"
)

// ChainExecutor tries each executor in order, moving on when one reports
// ErrNotSupported.
type ChainExecutor struct {
	executors []api.ToolExecutor
}

func NewChainExecutor(executors ...api.ToolExecutor) *ChainExecutor {
	var list []api.ToolExecutor
	for _, e := range executors {
		if e != nil {
			list = append(list, e)
		}
	}
	return &ChainExecutor{executors: list}
}

func (c *ChainExecutor) Execute(ctx context.Context, name string, args map[string]any) (*api.ToolOutcome, error) {
	for i, e := range c.executors {
		outcome, err := e.Execute(ctx, name, args)
		if errors.Is(err, ErrNotSupported) {
			slog.DebugContext(ctx, "Executor does not support tool, trying next", "tool", name, "index", i)
			continue
		}
		return outcome, err
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNotSupported)
}
