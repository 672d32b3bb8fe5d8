package queue

import (
	"errors"
	"fmt"
)

// Sentinel errors for queue operations.
var (
	// ErrUnavailable indicates the batch system could not be reached or
	// its query command failed. Callers degrade to no-submission.
	ErrUnavailable = errors.New("queue unavailable")

	// ErrSubmitRejected indicates the batch system refused a submission.
	ErrSubmitRejected = errors.New("submission rejected")
)

// QueueError wraps backend-specific errors with context.
type QueueError struct {
	// Op is the operation that failed ("Snapshot", "Submit").
	Op string

	// Backend is the adapter type (e.g. "slurm").
	Backend string

	// Name is the job name, if applicable.
	Name string

	// Err is the underlying error.
	Err error
}

func (e *QueueError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Backend, e.Op, e.Name, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *QueueError) Unwrap() error { return e.Err }

// IsUnavailable reports whether the error indicates the batch system is
// unreachable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsSubmitRejected reports whether the error indicates a refused
// submission.
func IsSubmitRejected(err error) bool {
	return errors.Is(err, ErrSubmitRejected)
}
