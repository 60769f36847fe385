package transcript

import (
	"sync"
	"time"

	"pointer/pkg/llm"
)

// Store is the message store of one session. Readers get copies; writers
// install a whole new transcript, so a reader never observes a partial update.
type Store struct {
	mu    sync.RWMutex
	clock *SessionClock
	sess  *Session
}

// NewStore takes ownership of sess. The clock is advanced past every
// sequence id already present.
func NewStore(sess *Session, clock *SessionClock) *Store {
	s := &Store{clock: clock, sess: sess.Clone()}
	s.stamp(s.sess.Messages)
	clock.Observe(s.sess.MaxSeq())
	return s
}

func (s *Store) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess.ID
}

func (s *Store) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess.Name
}

// Snapshot returns a deep copy of the session.
func (s *Store) Snapshot() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess.Clone()
}

// Messages returns a copy of the transcript.
func (s *Store) Messages() []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return llm.CloneMessages(s.sess.Messages)
}

// Update runs one read-modify-write cycle: fn receives a private copy of the
// transcript and returns the replacement. Turns without a sequence id get
// one. The installed transcript is returned.
func (s *Store) Update(fn func([]llm.Message) []llm.Message) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(llm.CloneMessages(s.sess.Messages))
	s.stamp(next)
	s.sess.Messages = next
	s.sess.UpdatedAt = time.Now()
	return llm.CloneMessages(next)
}

// Replace installs msgs as the new transcript.
func (s *Store) Replace(msgs []llm.Message) []llm.Message {
	return s.Update(func([]llm.Message) []llm.Message {
		return llm.CloneMessages(msgs)
	})
}

// Append adds turns to the end of the transcript and returns them with
// their assigned sequence ids.
func (s *Store) Append(msgs ...llm.Message) []llm.Message {
	added := llm.CloneMessages(msgs)
	s.stamp(added)
	s.Update(func(cur []llm.Message) []llm.Message {
		return append(cur, added...)
	})
	return added
}

// Rename sets the display name.
func (s *Store) Rename(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess.Name = name
}

// Reset replaces the whole session, e.g. after reloading it from storage.
func (s *Store) Reset(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = sess.Clone()
	s.stamp(s.sess.Messages)
	s.clock.Observe(s.sess.MaxSeq())
}

func (s *Store) stamp(msgs []llm.Message) {
	for i := range msgs {
		if msgs[i].Seq == 0 {
			msgs[i].Seq = s.clock.NextSeq()
		}
	}
}
