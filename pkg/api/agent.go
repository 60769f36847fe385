package api

import (
	"context"

	"pointer/pkg/llm"
)

// AgentEngine is the orchestration engine as seen by the message handler.
type AgentEngine interface {
	// HandleMessage appends a user turn to the session and runs the chain it
	// triggers. It returns once the chain settled.
	HandleMessage(ctx context.Context, sessionID string, msg llm.Message) error
	// Cancel aborts the in-flight model request of the session.
	Cancel(sessionID string) bool
	// NewSession creates and persists an empty session.
	NewSession(ctx context.Context) (string, error)
	// History returns the session transcript.
	History(ctx context.Context, sessionID string) ([]llm.Message, error)
}

// SessionObserver receives the engine's progress for one session.
type SessionObserver interface {
	// OnDelta reports the cumulative content of the streaming turn.
	OnDelta(sessionID string, seq int64, content string)
	// OnTurn reports a turn that was appended or finalized.
	OnTurn(sessionID string, msg llm.Message)
	// OnSignal reports a state change ("thinking", "tool:read_file", ...).
	OnSignal(sessionID string, signal string)
	// OnChainDone is called when the chain settled and the session is idle.
	OnChainDone(sessionID string)
}
