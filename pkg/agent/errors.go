package agent

import (
	"errors"

	"pointer/pkg/callparse"
)

// ErrChainBusy is returned by HandleMessage while the session is still
// working on the previous message.
var ErrChainBusy = errors.New("agent: session is busy")

// Cancellation causes.
var (
	errUserCancelled       = errors.New("cancelled by user")
	errStuckChain          = errors.New("tool chain made no progress")
	errContinuationTimeout = errors.New("continuation produced no output")
	errEmptyResponse       = errors.New("model returned an empty response")
)

// invalidCallError aborts a stream whose output contains calls that must
// not run.
type invalidCallError struct {
	invalid []callparse.Invalid
}

func (e *invalidCallError) Error() string {
	return "invalid function call: " + e.invalid[0].Err.Error()
}
