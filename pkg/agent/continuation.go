package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pointer/pkg/llm"
)

const (
	apologyTimeout   = "Sorry, the model stopped responding while continuing the task. Please try again."
	apologyEmpty     = "Sorry, the model returned an empty response. Please try again."
	apologyTransport = "Sorry, I couldn't reach the model. Please try again in a moment."
	noticeCancelled  = "Response cancelled."
)

// runChain streams responses and executes their calls until a response
// asks for nothing more. The stuck-chain watchdog is re-armed by every
// stream increment and tool completion, so it fires after a period without
// progress rather than after a fixed time spent running.
func (e *Engine) runChain(ctx context.Context, s *session, c *chain) error {
	e.watch(s, c, ms(e.cfg().StuckChainTimeoutMs))

	for round := 0; ; round++ {
		if limit := e.cfg().MaxContinuations; round > 0 && limit > 0 && round > limit {
			slog.WarnContext(ctx, "Continuation limit reached", "limit", limit)
			e.notice(s, c, fmt.Sprintf("Stopped after %d consecutive tool rounds. Send a message to keep going.", limit))
			return nil
		}

		calls, err := e.streamRound(ctx, s, c, round > 0)
		var invalid *invalidCallError
		switch {
		case errors.As(err, &invalid):
			e.reject(ctx, s, c, invalid)
		case err != nil:
			return e.endRound(ctx, s, c, err)
		case len(calls) == 0:
			return nil
		default:
			if e.dispatch(ctx, s, c, calls) == 0 {
				return nil
			}
		}

		if !s.live(c) {
			return nil
		}
	}
}

// reject appends one corrective turn per invalid call so the next round
// can retry.
func (e *Engine) reject(ctx context.Context, s *session, c *chain, ice *invalidCallError) {
	turns := make([]llm.Message, 0, len(ice.invalid))
	for _, iv := range ice.invalid {
		slog.WarnContext(ctx, "Rejected function call", "tool", iv.Call.Name, "error", iv.Err)
		turns = append(turns, llm.NewFeedbackMessage(iv.Feedback()))
	}
	added, ok := s.append(c, turns...)
	if !ok {
		return
	}
	for _, m := range added {
		e.obs().OnTurn(s.id, m)
	}
	s.schedule()
}

// endRound settles a round that ended without a usable response. Only a
// failed model request is returned to the caller.
func (e *Engine) endRound(ctx context.Context, s *session, c *chain, err error) error {
	switch {
	case errors.Is(err, errUserCancelled), errors.Is(err, errStuckChain):
		return nil
	case errors.Is(err, errContinuationTimeout):
		slog.WarnContext(ctx, "Continuation produced no output", "error", err)
		e.notice(s, c, apologyTimeout)
		return nil
	case errors.Is(err, errEmptyResponse):
		slog.WarnContext(ctx, "Model returned an empty response")
		e.notice(s, c, apologyEmpty)
		return nil
	case c.ctx.Err() != nil && !errors.Is(err, errModelTimeout):
		// the caller went away
		e.notice(s, c, noticeCancelled)
		return nil
	}

	slog.ErrorContext(ctx, "Model request failed", "error", err)
	e.notice(s, c, apologyTransport)
	return fmt.Errorf("model request: %w", err)
}

// notice ends the current response with a user-visible notice, replacing
// the response turn when nothing was streamed into it.
func (e *Engine) notice(s *session, c *chain, text string) {
	s.mu.Lock()
	seq := c.placeholder
	s.mu.Unlock()

	n := llm.NewNoticeMessage(text)
	msgs, ok := s.update(c, func(msgs []llm.Message) []llm.Message {
		return append(dropEmptyPlaceholder(msgs, seq), n)
	})
	if !ok || len(msgs) == 0 {
		return
	}
	e.obs().OnTurn(s.id, msgs[len(msgs)-1])
	s.schedule()
}

// watch re-arms the stuck-chain watchdog of c.
func (e *Engine) watch(s *session, c *chain, d time.Duration) {
	s.touch(c, d, func() { e.recoverStuck(s, c) })
}

// recoverStuck reloads a session whose chain stopped making progress from
// its last saved state.
func (e *Engine) recoverStuck(s *session, c *chain) {
	if !s.live(c) {
		return
	}
	slog.Warn("Chain made no progress, reloading session", "session", s.id)

	s.guard.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	saved, err := e.backend.Load(ctx, s.id)
	if err != nil {
		slog.Warn("Reload failed, keeping in-memory transcript", "session", s.id, "error", err)
		saved = nil
	}
	if !s.reset(c, errStuckChain, saved) {
		return
	}
	s.schedule()
	e.obs().OnSignal(s.id, "recovered")
	e.obs().OnChainDone(s.id)
}
