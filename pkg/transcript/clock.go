package transcript

import "sync/atomic"

// SessionClock owns the monotonic counters of one session: the sequence id
// handed to every new turn and the save version used to discard stale
// writes. A clock is shared by the session's Store and persistence guard.
type SessionClock struct {
	seq  atomic.Int64
	save atomic.Uint64
}

func NewSessionClock() *SessionClock {
	return &SessionClock{}
}

// NextSeq returns a sequence id greater than any issued or observed before.
func (c *SessionClock) NextSeq() int64 {
	return c.seq.Add(1)
}

// Observe raises the sequence counter to at least seq. Used after a
// transcript is loaded from storage.
func (c *SessionClock) Observe(seq int64) {
	for {
		cur := c.seq.Load()
		if seq <= cur || c.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}

// BumpSave advances the save version and returns the new value.
func (c *SessionClock) BumpSave() uint64 {
	return c.save.Add(1)
}

// SaveVersion returns the latest save version.
func (c *SessionClock) SaveVersion() uint64 {
	return c.save.Load()
}
