package insert

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pointer/pkg/api"
	"pointer/pkg/sched"
)

// ErrInvalidRange reports a line-range edit outside the target file.
var ErrInvalidRange = errors.New("invalid line range")

// Report describes the outcome of one applied or dropped block.
type Report struct {
	Path   string
	Change *api.FileChange // nil when nothing was applied
	Err    error
}

// Options configure a Pipeline.
type Options struct {
	Workspace string
	Merger    *Merger
	Sink      api.DiffSink
	Scheduler sched.Scheduler
	Settle    time.Duration
	// OnReport, when set, receives every outcome. It must not block.
	OnReport func(Report)
}

// Pipeline queues detected blocks and applies them one at a time.
type Pipeline struct {
	root     string
	merger   *Merger
	sink     api.DiffSink
	sched    sched.Scheduler
	settle   time.Duration
	onReport func(Report)

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	queue   []Block
	seen    map[string]bool // paths queued during the current response
	timer   sched.Timer
	running bool
	closed  bool
	wg      sync.WaitGroup
	idle    *sync.Cond
}

func NewPipeline(opts Options) (*Pipeline, error) {
	root, err := filepath.Abs(opts.Workspace)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	if opts.Scheduler == nil {
		opts.Scheduler = sched.Real{}
	}
	if opts.Sink == nil {
		opts.Sink = NewFileSink(root)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		root:     root,
		merger:   opts.Merger,
		sink:     opts.Sink,
		sched:    opts.Scheduler,
		settle:   opts.Settle,
		onReport: opts.OnReport,
		ctx:      ctx,
		cancel:   cancel,
		seen:     make(map[string]bool),
	}
	p.idle = sync.NewCond(&p.mu)
	return p, nil
}

// Begin starts a new model response: paths queued by earlier responses
// may be edited again.
func (p *Pipeline) Begin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = make(map[string]bool)
}

// OnIncrement scans the cumulative response text and queues every block
// whose path has not been queued during this response.
func (p *Pipeline) OnIncrement(text string) {
	blocks := Detect(text)
	if len(blocks) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	added := false
	for _, b := range blocks {
		if p.seen[b.Path] {
			continue
		}
		p.seen[b.Path] = true
		p.queue = append(p.queue, b)
		added = true
		slog.Debug("Queued code block", "path", b.Path, "line_range", b.Range != nil)
	}
	if added {
		p.kickLocked()
	}
}

// kickLocked arms the settle timer when the queue has work and no worker
// is running.
func (p *Pipeline) kickLocked() {
	if p.running || p.timer != nil || len(p.queue) == 0 {
		return
	}
	p.wg.Add(1)
	p.timer = p.sched.AfterFunc(p.settle, func() {
		p.mu.Lock()
		p.timer = nil
		if p.closed {
			p.mu.Unlock()
			p.wg.Done()
			return
		}
		p.running = true
		p.mu.Unlock()
		go p.drain()
	})
}

func (p *Pipeline) drain() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		if len(p.queue) == 0 || p.closed {
			p.running = false
			p.idle.Broadcast()
			p.mu.Unlock()
			return
		}
		b := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		rep := p.apply(p.ctx, b)
		if rep.Err != nil {
			slog.Warn("Code insert dropped", "path", b.Path, "error", rep.Err)
		}
		if p.onReport != nil {
			p.onReport(rep)
		}
	}
}

// Pending returns the number of queued blocks not yet applied.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Wait blocks until the queue is empty and no block is being applied.
// The settle timer must be able to fire for Wait to return.
func (p *Pipeline) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for (len(p.queue) > 0 || p.running || p.timer != nil) && !p.closed {
		p.idle.Wait()
	}
}

// Close stops accepting blocks, aborts in-flight merges and waits for the
// worker to exit. Queued blocks are discarded.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.queue = nil
	if p.timer != nil && p.timer.Stop() {
		p.timer = nil
		p.wg.Done()
	}
	p.idle.Broadcast()
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

func (p *Pipeline) apply(ctx context.Context, b Block) Report {
	rep := Report{Path: b.Path}

	full, err := resolveIn(p.root, b.Path)
	if err != nil {
		rep.Err = err
		return rep
	}
	rel := b.Path
	if r, err := filepath.Rel(p.root, full); err == nil {
		rel = filepath.ToSlash(r)
	}

	data, err := os.ReadFile(full)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		rep.Err = err
		return rep
	}
	before := string(data)

	var change = func(after string, created bool) Report {
		c := NewChange(rel, before, after, created)
		if err := p.sink.EmitChange(ctx, c); err != nil {
			rep.Err = fmt.Errorf("emit change: %w", err)
			return rep
		}
		rep.Change = &c
		return rep
	}

	switch {
	case b.Range != nil:
		if !exists {
			rep.Err = fmt.Errorf("%w: %s does not exist", ErrInvalidRange, rel)
			return rep
		}
		after, ok := ApplyLineRange(before, *b.Range, b.Content)
		if !ok {
			rep.Err = fmt.Errorf("%w: %d-%d on %s", ErrInvalidRange, b.Range.Start, b.Range.End, rel)
			return rep
		}
		return change(after, false)

	case !exists:
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			rep.Err = err
			return rep
		}
		if err := os.WriteFile(full, []byte(b.Content), 0o644); err != nil {
			rep.Err = err
			return rep
		}
		c := NewChange(rel, "", b.Content, true)
		rep.Change = &c
		if err := p.sink.EmitChange(ctx, c); err != nil {
			slog.Warn("Diff sink rejected new file notice", "path", rel, "error", err)
		}
		return rep

	case before == b.Content:
		return rep

	default:
		if p.merger == nil {
			rep.Err = errors.New("no merge client configured")
			return rep
		}
		merged, err := p.merger.Merge(ctx, rel, before, b.Content)
		if err != nil {
			rep.Err = err
			return rep
		}
		return change(merged, false)
	}
}
