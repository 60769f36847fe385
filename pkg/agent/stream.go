package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"pointer/pkg/llm"
	"pointer/pkg/sched"
	"pointer/pkg/transcript"
)

// continueDirective is appended to continuation requests only; it is never
// stored in the transcript.
const continueDirective = "Continue with the task using the tool results above. " +
	"If the task is complete, summarize what was done without calling further tools."

var errModelTimeout = errors.New("model request timed out")

// response accumulates one streamed model response.
type response struct {
	mu     sync.Mutex
	text   string
	native []llm.ToolCall
}

func (r *response) add(text string, calls []llm.ToolCall) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text += text
	r.native = append(r.native, calls...)
	return r.text
}

func (r *response) get() (string, []llm.ToolCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text, append([]llm.ToolCall(nil), r.native...)
}

// streamRound sends the transcript to the model and streams the answer into
// a fresh assistant turn. It returns the valid calls of the response. An
// *invalidCallError means the response asked for calls that must not run.
func (e *Engine) streamRound(ctx context.Context, s *session, c *chain, continuation bool) ([]llm.ToolCall, error) {
	cfg := e.cfg()

	req := transcript.Normalize(s.store.Messages())
	if continuation {
		req = append(req, llm.NewUserMessage(continueDirective))
	}
	seq, ok := s.openPlaceholder(c)
	if !ok {
		return nil, context.Cause(c.ctx)
	}
	s.inserts.Begin()

	rctx, rcancel := context.WithCancelCause(ctx)
	defer rcancel(nil)
	if cfg.LLMTimeoutMs > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeoutCause(rctx, ms(cfg.LLMTimeoutMs), errModelTimeout)
		defer cancel()
	}

	// a continuation that stays silent is abandoned
	var silence sched.Timer
	armSilence := func() {
		if !continuation || cfg.ContinuationTimeoutMs <= 0 {
			return
		}
		if silence != nil {
			silence.Stop()
		}
		silence = e.sched.AfterFunc(ms(cfg.ContinuationTimeoutMs), func() { rcancel(errContinuationTimeout) })
	}
	armSilence()
	defer func() {
		if silence != nil {
			silence.Stop()
		}
	}()

	opts := llm.ChatOptions{ToolChoice: llm.ToolChoiceNone}
	if cfg.EnableTools {
		opts = llm.ChatOptions{Tools: e.catalog.Schemas(), ToolChoice: llm.ToolChoiceAuto}
	}

	slog.DebugContext(ctx, "Opening model stream", "turns", len(req), "continuation", continuation, "provider", e.client.Provider())
	chunks, err := e.client.StreamChat(rctx, req, opts)
	if err != nil {
		if rctx.Err() != nil {
			return nil, context.Cause(rctx)
		}
		return nil, fmt.Errorf("open model stream: %w", err)
	}

	resp := &response{}
	extract := sched.NewDebouncer(e.sched, ms(cfg.ExtractDebounceMs))
	defer extract.Stop()
	check := func() {
		text, native := resp.get()
		if _, invalid := e.extractor.Extract(text, native...); len(invalid) > 0 {
			rcancel(&invalidCallError{invalid: invalid})
		}
	}

	var (
		streamErr error
		saved     int
		thinking  bool
	)
	for chunk := range chunks {
		if rctx.Err() != nil {
			continue // drain
		}
		if chunk.RawError != nil || (chunk.Error != "" && chunk.IsFinal) {
			streamErr = chunk.RawError
			if streamErr == nil {
				streamErr = errors.New(chunk.Error)
			}
			rcancel(streamErr)
			continue
		}

		delta := chunk.Text()
		if delta == "" && len(chunk.ToolCalls) == 0 {
			if !thinking && hasThinking(chunk) {
				thinking = true
				e.obs().OnSignal(s.id, "thinking")
			}
			if !chunk.IsFinal {
				armSilence()
				e.watch(s, c, ms(cfg.StuckChainTimeoutMs))
			}
			continue
		}

		text := resp.add(delta, chunk.ToolCalls)
		if _, ok := s.update(c, func(msgs []llm.Message) []llm.Message {
			out, _ := transcript.SetStreamingContent(msgs, seq, text)
			return out
		}); !ok {
			continue
		}
		e.obs().OnDelta(s.id, seq, text)
		s.inserts.OnIncrement(text)
		extract.Trigger(check)
		if len(text)-saved > cfg.SaveGrowthBytes {
			saved = len(text)
			s.schedule()
		}
		armSilence()
		e.watch(s, c, ms(cfg.StuckChainTimeoutMs))
	}
	extract.Stop()

	if rctx.Err() != nil {
		cause := context.Cause(rctx)
		if cause == streamErr && streamErr != nil {
			return nil, fmt.Errorf("model stream: %w", streamErr)
		}
		return nil, cause
	}

	text, native := resp.get()
	if strings.TrimSpace(llm.StripThinking(text)) == "" && len(native) == 0 {
		return nil, errEmptyResponse
	}

	calls, invalid := e.extractor.Extract(text, native...)
	if len(invalid) > 0 {
		return nil, &invalidCallError{invalid: invalid}
	}

	msgs, ok := s.update(c, func(msgs []llm.Message) []llm.Message {
		return transcript.UpdateBySeq(msgs, seq, func(m *llm.Message) {
			m.Content = text
			m.ToolCalls = calls
		})
	})
	if !ok {
		return nil, context.Cause(c.ctx)
	}
	if m, found := transcript.FindBySeq(msgs, seq); found {
		e.obs().OnTurn(s.id, m)
	}
	s.schedule()

	slog.DebugContext(ctx, "Model response complete", "chars", len(text), "calls", len(calls))
	return calls, nil
}

func hasThinking(chunk llm.StreamChunk) bool {
	for _, b := range chunk.ContentBlocks {
		if b.Type == llm.BlockTypeThinking && b.Text != "" {
			return true
		}
	}
	return false
}
