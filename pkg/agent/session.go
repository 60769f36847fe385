package agent

import (
	"context"
	"sync"
	"time"

	"pointer/pkg/insert"
	"pointer/pkg/llm"
	"pointer/pkg/persist"
	"pointer/pkg/sched"
	"pointer/pkg/transcript"
)

// chain is one extract -> execute -> continue cycle started by a user
// message. A session runs at most one chain at a time.
type chain struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	// seq of the assistant turn receiving the current response; guarded by
	// session.mu
	placeholder int64
	watchdog    sched.Timer
}

// session is the in-memory state of one conversation.
type session struct {
	id      string
	store   *transcript.Store
	guard   *persist.Guard
	inserts *insert.Pipeline
	sched   sched.Scheduler

	mu       sync.Mutex
	chain    *chain
	executed map[string]bool // call ids already handed to the executor
}

func newSession(sess *transcript.Session, clock *transcript.SessionClock, guard *persist.Guard, inserts *insert.Pipeline, s sched.Scheduler) *session {
	return &session{
		id:       sess.ID,
		store:    transcript.NewStore(sess, clock),
		guard:    guard,
		inserts:  inserts,
		sched:    s,
		executed: make(map[string]bool),
	}
}

// begin acquires the chain guard.
func (s *session) begin(parent context.Context) (*chain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chain != nil {
		return nil, ErrChainBusy
	}
	ctx, cancel := context.WithCancelCause(parent)
	c := &chain{ctx: ctx, cancel: cancel}
	s.chain = c
	return c, nil
}

// end releases the guard if c still holds it. It reports whether it did.
func (s *session) end(c *chain) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.cancel(nil)
	if s.chain != c {
		return false
	}
	s.detachLocked()
	return true
}

// abort detaches the running chain, cancels it with cause and applies fn
// to the transcript in the same critical section. It returns the aborted
// chain, or nil when the session was idle.
func (s *session) abort(cause error, fn func(msgs []llm.Message, placeholder int64) []llm.Message) *chain {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.chain
	if c == nil {
		return nil
	}
	s.detachLocked()
	c.cancel(cause)
	if fn != nil {
		seq := c.placeholder
		s.store.Update(func(msgs []llm.Message) []llm.Message { return fn(msgs, seq) })
	}
	return c
}

func (s *session) detachLocked() {
	if s.chain.watchdog != nil {
		s.chain.watchdog.Stop()
	}
	s.chain = nil
}

// live reports whether c still owns the session.
func (s *session) live(c *chain) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain == c
}

func (s *session) busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain != nil
}

// update applies fn if c still owns the session.
func (s *session) update(c *chain, fn func([]llm.Message) []llm.Message) ([]llm.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chain != c {
		return nil, false
	}
	return s.store.Update(fn), true
}

// append adds turns if c still owns the session and returns them stamped.
func (s *session) append(c *chain, msgs ...llm.Message) ([]llm.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chain != c {
		return nil, false
	}
	return s.store.Append(msgs...), true
}

// openPlaceholder appends the empty assistant turn that receives the next
// response.
func (s *session) openPlaceholder(c *chain) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chain != c {
		return 0, false
	}
	added := s.store.Append(llm.NewAssistantMessage(""))
	c.placeholder = added[0].Seq
	return c.placeholder, true
}

// claim marks a call id as executed. It reports false if it already was.
func (s *session) claim(callID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.executed[callID] {
		return false
	}
	s.executed[callID] = true
	return true
}

// touch re-arms the stuck-chain watchdog of c to fire after d.
func (s *session) touch(c *chain, d time.Duration, onStuck func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chain != c || d <= 0 {
		return
	}
	if c.watchdog != nil {
		c.watchdog.Stop()
	}
	c.watchdog = s.sched.AfterFunc(d, onStuck)
}

// schedule queues a debounced save of the current state.
func (s *session) schedule() {
	s.guard.Schedule(s.store.Snapshot())
}

// reset detaches c if it still owns the session, cancels it with cause and
// installs sess as the transcript, minus calls it never answered. Executed
// call ids are forgotten. A nil sess keeps the transcript. It reports whether
// c was detached.
func (s *session) reset(c *chain, cause error, sess *transcript.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chain != c {
		return false
	}
	s.detachLocked()
	c.cancel(cause)
	if sess != nil {
		s.store.Reset(sess)
		s.store.Update(transcript.DropUnansweredCalls)
	} else {
		seq := c.placeholder
		s.store.Update(func(msgs []llm.Message) []llm.Message { return dropEmptyPlaceholder(msgs, seq) })
	}
	s.executed = make(map[string]bool)
	return true
}
