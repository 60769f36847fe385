package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pointer/pkg/api"
	"pointer/pkg/llm"
	"pointer/pkg/transcript"
)

// CallState is the lifecycle of one call.
type CallState int

const (
	CallPending CallState = iota
	CallExecuting
	CallSucceeded
	CallFailed
	CallSkipped // already answered or already handed to the executor
)

func (st CallState) String() string {
	switch st {
	case CallPending:
		return "pending"
	case CallExecuting:
		return "executing"
	case CallSucceeded:
		return "succeeded"
	case CallFailed:
		return "failed"
	case CallSkipped:
		return "skipped"
	}
	return fmt.Sprintf("CallState(%d)", int(st))
}

// dispatch runs calls one after another in extraction order and returns
// how many succeeded.
func (e *Engine) dispatch(ctx context.Context, s *session, c *chain, calls []llm.ToolCall) int {
	succeeded := 0
	for _, call := range calls {
		if ctx.Err() != nil || !s.live(c) {
			break
		}
		state := e.execute(ctx, s, c, call)
		slog.DebugContext(ctx, "Call settled", "id", call.ID, "tool", call.Name, "state", state)
		if state == CallSucceeded {
			succeeded++
		}
	}
	return succeeded
}

// execute runs a single call at most once. A result becomes a tool turn; a
// failure becomes an assistant turn explaining it.
func (e *Engine) execute(ctx context.Context, s *session, c *chain, call llm.ToolCall) CallState {
	if transcript.HasToolResult(s.store.Messages(), call.ID) || !s.claim(call.ID) {
		slog.InfoContext(ctx, "Skipping call that already ran", "id", call.ID, "tool", call.Name)
		return CallSkipped
	}

	cfg := e.cfg()
	// the transcript must survive a crash during the call
	if err := s.guard.SaveNow(ctx, s.store.Snapshot()); err != nil {
		slog.WarnContext(ctx, "Failed to save before tool call", "error", err)
	}

	e.obs().OnSignal(s.id, "tool:"+call.Name)
	e.watch(s, c, ms(cfg.ToolTimeoutMs)+ms(cfg.StuckChainTimeoutMs))
	slog.InfoContext(ctx, "Executing tool", "id", call.ID, "tool", call.Name, "state", CallExecuting)

	start := time.Now()
	out, err := e.invoke(ctx, call, ms(cfg.ToolTimeoutMs))
	if !s.live(c) {
		slog.InfoContext(ctx, "Discarding tool result of aborted chain", "tool", call.Name)
		return CallFailed
	}
	e.watch(s, c, ms(cfg.StuckChainTimeoutMs))

	reason := ""
	switch {
	case err != nil:
		reason = err.Error()
	case out == nil:
		reason = "the tool returned no result"
	case !out.Success:
		reason = out.Error
		if reason == "" {
			reason = "the tool reported a failure"
		}
	}

	if reason != "" {
		slog.WarnContext(ctx, "Tool failed", "tool", call.Name, "error", reason, "elapsed", time.Since(start))
		if added, ok := s.append(c, llm.NewAssistantMessage(narrateFailure(call, reason))); ok {
			e.obs().OnTurn(s.id, added[0])
			s.schedule()
		}
		return CallFailed
	}

	added, ok := s.append(c, llm.NewToolMessage(call, renderOutcome(out)))
	if !ok {
		return CallFailed
	}
	slog.InfoContext(ctx, "Tool succeeded", "tool", call.Name, "elapsed", time.Since(start))
	e.obs().OnTurn(s.id, added[0])
	s.schedule()
	return CallSucceeded
}

// invoke hands the call to the executor. Panics become errors.
func (e *Engine) invoke(ctx context.Context, call llm.ToolCall, timeout time.Duration) (out *api.ToolOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Tool panicked", "tool", call.Name, "panic", r)
			out, err = nil, fmt.Errorf("tool %s crashed: %v", call.Name, r)
		}
	}()

	name, args := call.Name, call.ArgumentsMap()
	if id, ok := e.catalog.Resolve(call.Name); ok {
		name = e.catalog.Name(id)
		args = e.catalog.Canonicalize(id, args)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return e.executor.Execute(ctx, name, args)
}

// renderOutcome turns a tool payload into tool turn content.
func renderOutcome(out *api.ToolOutcome) string {
	switch v := out.Content.(type) {
	case nil:
		return "(no output)"
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

func narrateFailure(call llm.ToolCall, reason string) string {
	return fmt.Sprintf("I wasn't able to run `%s`: %s. "+
		"I can continue with the information gathered so far, or you can tell me how you'd like to proceed.",
		call.Name, reason)
}
