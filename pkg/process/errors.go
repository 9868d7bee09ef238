package process

import (
	"errors"
	"fmt"
)

// Lifecycle errors. Each one corresponds to an operation called in the
// wrong state; none of them is retryable on the same Process instance.
var (
	// ErrAlreadyStarted is returned by Open when the instance has already
	// been opened once, whether or not that spawn succeeded.
	ErrAlreadyStarted = errors.New("process has already run once; create a new Process to run again")

	// ErrNotStarted is returned by operations that require Open to have
	// been called first.
	ErrNotStarted = errors.New("no process has been spawned yet; call Open to spawn one")

	// ErrNotRunning is returned by operations that require a live child
	// after the child has already exited.
	ErrNotRunning = errors.New("process has terminated; create a new Process and run again")

	// ErrNotTerminated is returned by ReturnCode before the child has both
	// started and exited.
	ErrNotTerminated = errors.New("process has yet to terminate")

	// ErrWaitTimeout is returned by Wait when the timeout elapses before
	// the child exits.
	ErrWaitTimeout = errors.New("timed out waiting for process to exit")
)

// EncodingError reports a failure to decode or encode text under the
// configured encoding. It is propagated to the caller rather than
// silently replacing the offending bytes.
type EncodingError struct {
	Encoding string
	Err      error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding %q: %v", e.Encoding, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}
