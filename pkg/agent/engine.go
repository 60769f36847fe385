package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/singleflight"

	"pointer/pkg/api"
	"pointer/pkg/callparse"
	"pointer/pkg/config"
	"pointer/pkg/insert"
	"pointer/pkg/llm"
	"pointer/pkg/monitor"
	"pointer/pkg/persist"
	"pointer/pkg/sched"
	"pointer/pkg/tools"
	"pointer/pkg/transcript"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options wires an Engine to its collaborators.
type Options struct {
	Client       llm.LLMClient // chat model
	MergeClient  llm.LLMClient // optional; code merges fall back to Client
	Executor     api.ToolExecutor
	Catalog      *tools.Catalog
	Backend      persist.Backend
	Sink         api.DiffSink // receives applied code inserts
	Scheduler    sched.Scheduler
	Workspace    string
	SystemPrompt string
	System       *config.SystemConfig
}

// Engine drives conversations: it streams model output into the session
// transcript, executes the calls found in it and continues the
// conversation until the model stops calling tools.
// It implements api.AgentEngine.
type Engine struct {
	client    llm.LLMClient
	executor  api.ToolExecutor
	catalog   *tools.Catalog
	extractor *callparse.Extractor
	backend   persist.Backend
	merger    *insert.Merger
	sink      api.DiffSink
	sched     sched.Scheduler
	workspace string
	prompt    string

	cfgMu  sync.RWMutex
	sysCfg *config.SystemConfig

	obsMu    sync.RWMutex
	observer api.SessionObserver

	mu       sync.Mutex
	sessions map[string]*session
	loads    singleflight.Group
}

// NewEngine validates opts and builds an Engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Client == nil {
		return nil, errors.New("agent: model client is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("agent: tool executor is required")
	}
	if opts.Backend == nil {
		return nil, errors.New("agent: persistence backend is required")
	}
	if opts.Catalog == nil {
		opts.Catalog = tools.DefaultCatalog()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = sched.Real{}
	}
	if opts.System == nil {
		opts.System = config.DefaultSystemConfig()
	}
	if opts.Workspace == "" {
		opts.Workspace = "."
	}

	return &Engine{
		client:    opts.Client,
		executor:  opts.Executor,
		catalog:   opts.Catalog,
		extractor: callparse.NewExtractor(opts.Catalog),
		backend:   opts.Backend,
		merger:    insert.NewMerger(opts.MergeClient, opts.Client),
		sink:      opts.Sink,
		sched:     opts.Scheduler,
		workspace: opts.Workspace,
		prompt:    opts.SystemPrompt,
		sysCfg:    opts.System,
		observer:  nopObserver{},
		sessions:  make(map[string]*session),
	}, nil
}

// SetObserver registers the receiver of session progress events.
func (e *Engine) SetObserver(o api.SessionObserver) {
	if o == nil {
		o = nopObserver{}
	}
	e.obsMu.Lock()
	e.observer = o
	e.obsMu.Unlock()
}

func (e *Engine) obs() api.SessionObserver {
	e.obsMu.RLock()
	defer e.obsMu.RUnlock()
	return e.observer
}

// SetSystemConfig swaps the engine tuning. Running chains pick up the new
// values at their next step.
func (e *Engine) SetSystemConfig(cfg *config.SystemConfig) {
	if cfg == nil {
		return
	}
	e.cfgMu.Lock()
	e.sysCfg = cfg
	e.cfgMu.Unlock()
	slog.Info("Engine configuration reloaded")
}

func (e *Engine) cfg() *config.SystemConfig {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.sysCfg
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// HandleMessage appends msg as a user turn and runs the chain it triggers.
// It returns ErrChainBusy when the session is still working. Tool and merge
// failures never surface here; only a failed model request does.
func (e *Engine) HandleMessage(ctx context.Context, sessionID string, msg llm.Message) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("agent: session id is required")
	}
	ctx = monitor.WithSession(ctx, sessionID)

	s, err := e.session(ctx, sessionID, true)
	if err != nil {
		return err
	}
	c, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer e.finish(s, c)

	msg.Role = llm.RoleUser
	msg.Seq = 0
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	added, ok := s.append(c, msg)
	if !ok {
		return nil
	}
	e.obs().OnTurn(s.id, added[0])
	slog.InfoContext(ctx, "User message received", "chars", len(msg.Content), "attachments", len(msg.Attachments))

	if s.store.Name() == transcript.DefaultName && transcript.CountUserTurns(s.store.Messages()) == 1 {
		s.store.Rename(transcript.NameFromMessage(msg.Content))
	}
	s.schedule()

	return e.runChain(c.ctx, s, c)
}

// finish releases the chain guard and persists the settled state. A chain
// that was aborted was already settled by whoever detached it, and a newer
// chain may own the session by now.
func (e *Engine) finish(s *session, c *chain) {
	if !s.end(c) {
		return
	}
	s.schedule()
	e.obs().OnChainDone(s.id)
}

// Cancel aborts the running chain of the session. Content streamed so far
// is kept and a notice is appended. It reports whether a chain was running.
func (e *Engine) Cancel(sessionID string) bool {
	s := e.loaded(sessionID)
	if s == nil {
		return false
	}

	notice := llm.NewNoticeMessage(noticeCancelled)
	c := s.abort(errUserCancelled, func(msgs []llm.Message, placeholder int64) []llm.Message {
		msgs = dropEmptyPlaceholder(msgs, placeholder)
		return append(msgs, notice)
	})
	if c == nil {
		return false
	}

	slog.Info("Chain cancelled", "session", sessionID)
	if last := s.store.Messages(); len(last) > 0 {
		e.obs().OnTurn(s.id, last[len(last)-1])
	}
	s.schedule()
	e.obs().OnChainDone(s.id)
	return true
}

// NewSession creates and persists a session holding only the system turn.
func (e *Engine) NewSession(ctx context.Context) (string, error) {
	clock := transcript.NewSessionClock()
	sess := transcript.NewSession(e.prompt, clock)
	s, err := e.register(sess, clock)
	if err != nil {
		return "", err
	}
	if err := s.guard.SaveNow(ctx, s.store.Snapshot()); err != nil {
		return "", fmt.Errorf("save new session: %w", err)
	}
	slog.InfoContext(ctx, "Session created", "session", sess.ID)
	return sess.ID, nil
}

// History returns the transcript of a session.
func (e *Engine) History(ctx context.Context, sessionID string) ([]llm.Message, error) {
	s, err := e.session(ctx, sessionID, false)
	if err != nil {
		return nil, err
	}
	return s.store.Messages(), nil
}

// Busy reports whether the session has a chain running.
func (e *Engine) Busy(sessionID string) bool {
	s := e.loaded(sessionID)
	return s != nil && s.busy()
}

// Close cancels running chains, stops the insert pipelines and flushes
// pending saves.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	list := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		list = append(list, s)
	}
	e.mu.Unlock()

	var errs []error
	for _, s := range list {
		s.abort(context.Canceled, nil)
		s.inserts.Close()
		if err := s.guard.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", s.id, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) loaded(id string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[id]
}

// session returns the in-memory session, loading it from the backend on
// first use. Concurrent loads of one id share a single backend read. With
// create set, an unknown id starts a new session under that id.
func (e *Engine) session(ctx context.Context, id string, create bool) (*session, error) {
	if s := e.loaded(id); s != nil {
		return s, nil
	}

	v, err, _ := e.loads.Do(id, func() (any, error) {
		if s := e.loaded(id); s != nil {
			return s, nil
		}
		clock := transcript.NewSessionClock()
		sess, err := e.backend.Load(ctx, id)
		switch {
		case errors.Is(err, persist.ErrNotFound) && create:
			sess = transcript.NewSession(e.prompt, clock)
			sess.ID = id
			slog.InfoContext(ctx, "Starting new session", "session", id)
		case err != nil:
			return nil, fmt.Errorf("load session %s: %w", id, err)
		}
		return e.register(sess, clock)
	})
	if err != nil {
		return nil, err
	}
	return v.(*session), nil
}

func (e *Engine) register(sess *transcript.Session, clock *transcript.SessionClock) (*session, error) {
	cfg := e.cfg()
	guard := persist.NewGuard(e.backend, clock, e.sched, ms(cfg.SaveDebounceMs))

	id := sess.ID
	pipeline, err := insert.NewPipeline(insert.Options{
		Workspace: e.workspace,
		Merger:    e.merger,
		Sink:      e.sink,
		Scheduler: e.sched,
		Settle:    ms(cfg.InsertSettleMs),
		OnReport:  func(r insert.Report) { e.reportInsert(id, r) },
	})
	if err != nil {
		return nil, fmt.Errorf("insert pipeline: %w", err)
	}

	s := newSession(sess, clock, guard, pipeline, e.sched)

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.sessions[id]; ok {
		pipeline.Close()
		return existing, nil
	}
	e.sessions[id] = s
	return s, nil
}

func (e *Engine) reportInsert(sessionID string, r insert.Report) {
	switch {
	case r.Err != nil:
		e.obs().OnSignal(sessionID, fmt.Sprintf("insert_failed:%s: %v", r.Path, r.Err))
	case r.Change != nil:
		e.obs().OnSignal(sessionID, "insert_applied:"+r.Path)
	}
}

// dropEmptyPlaceholder removes the response turn if nothing was streamed
// into it.
func dropEmptyPlaceholder(msgs []llm.Message, seq int64) []llm.Message {
	if m, ok := transcript.FindBySeq(msgs, seq); ok && m.Role == llm.RoleAssistant && m.Content == "" && len(m.ToolCalls) == 0 {
		return transcript.RemoveBySeq(msgs, seq)
	}
	return msgs
}

type nopObserver struct{}

func (nopObserver) OnDelta(string, int64, string) {}
func (nopObserver) OnTurn(string, llm.Message)    {}
func (nopObserver) OnSignal(string, string)       {}
func (nopObserver) OnChainDone(string)            {}
