package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pointer/pkg/sched"
	"pointer/pkg/transcript"
)

// Pending is a snapshot stamped with the save version current when it was
// scheduled.
type Pending struct {
	Version  uint64
	Snapshot *transcript.Session
}

// Guard debounces session writes and drops any write whose version has
// been overtaken by the time it is flushed. One Guard serves one session
// and shares that session's clock with its Store.
type Guard struct {
	backend  Backend
	clock    *transcript.SessionClock
	debounce *sched.Debouncer

	writeMu sync.Mutex // serializes backend writes
	written uint64     // highest version written

	mu      sync.Mutex
	pending *Pending
}

func NewGuard(backend Backend, clock *transcript.SessionClock, s sched.Scheduler, delay time.Duration) *Guard {
	return &Guard{
		backend:  backend,
		clock:    clock,
		debounce: sched.NewDebouncer(s, delay),
	}
}

// Stamp captures snap at a new save version without writing it.
func (g *Guard) Stamp(snap *transcript.Session) *Pending {
	return &Pending{Version: g.clock.BumpSave(), Snapshot: snap}
}

// Schedule stamps snap and writes it after the debounce period, unless a
// newer save is stamped first.
func (g *Guard) Schedule(snap *transcript.Session) uint64 {
	p := g.Stamp(snap)

	g.mu.Lock()
	g.pending = p
	g.mu.Unlock()

	g.debounce.Trigger(func() {
		g.mu.Lock()
		cur := g.pending
		if cur == p {
			g.pending = nil
		}
		g.mu.Unlock()

		if _, err := g.Commit(context.Background(), p); err != nil {
			slog.Error("Debounced save failed", "session", p.Snapshot.ID, "version", p.Version, "error", err)
		}
	})
	return p.Version
}

// SaveNow stamps and writes snap immediately, superseding anything
// scheduled.
func (g *Guard) SaveNow(ctx context.Context, snap *transcript.Session) error {
	p := g.Stamp(snap)
	g.debounce.Stop()
	g.mu.Lock()
	g.pending = nil
	g.mu.Unlock()

	_, err := g.Commit(ctx, p)
	return err
}

// Commit writes p unless a newer version was stamped or written since. It
// reports whether the write happened; a skipped stale write is not an error.
func (g *Guard) Commit(ctx context.Context, p *Pending) (bool, error) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	if latest := g.clock.SaveVersion(); p.Version < latest || p.Version <= g.written {
		slog.DebugContext(ctx, "Discarding stale save", "session", p.Snapshot.ID, "version", p.Version, "latest", latest)
		return false, nil
	}
	if err := g.backend.Save(ctx, p.Snapshot); err != nil {
		return false, err
	}
	g.written = p.Version
	return true, nil
}

// Flush writes a scheduled save right away. Called on shutdown and before
// a session is dropped from memory.
func (g *Guard) Flush(ctx context.Context) error {
	g.debounce.Stop()
	g.mu.Lock()
	p := g.pending
	g.pending = nil
	g.mu.Unlock()

	if p == nil {
		return nil
	}
	_, err := g.Commit(ctx, p)
	return err
}

// Cancel drops any scheduled save.
func (g *Guard) Cancel() {
	g.debounce.Stop()
	g.mu.Lock()
	g.pending = nil
	g.mu.Unlock()
}
