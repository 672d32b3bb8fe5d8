// Package queue defines the boundary to the external batch system.
//
// Adapters implement a minimal surface area: one snapshot call that
// reports every job name currently live in the queue, and one submit
// call. The orchestration core treats both as slow and fallible; a
// failed snapshot conservatively suppresses all submissions for the
// cycle rather than risking duplicates.
package queue

import (
	"context"
	"sort"
	"time"
)

// Adapter abstracts batch-queue operations.
//
// Implementations should:
//   - Report pending and running jobs uniformly (the core treats both
//     as in-flight and takes no action on either)
//   - Be safe for concurrent use
type Adapter interface {
	// Snapshot returns the set of job names currently live in the queue.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// Submit hands a jobscript to the batch system. The job's unique
	// name must equal the queue-side job name so later snapshots see it.
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
}

// SubmitRequest describes one submission.
type SubmitRequest struct {
	// Name is the job's unique name.
	Name string

	// Dir is the job directory; the adapter submits from inside it so
	// relative paths in the jobscript resolve.
	Dir string

	// Jobscript is the path of the submission script.
	Jobscript string
}

// SubmitResult reports a completed submission.
type SubmitResult struct {
	// QueueID is the batch system's identifier for the submission, when
	// the backend reports one.
	QueueID string
}

// Snapshot is the queue state taken once at the start of a cycle and
// consulted read-only throughout it. It is never persisted; every cycle
// re-fetches to avoid staleness.
type Snapshot struct {
	takenAt time.Time
	names   map[string]struct{}
}

// NewSnapshot builds a snapshot from live job names.
func NewSnapshot(names []string, takenAt time.Time) *Snapshot {
	s := &Snapshot{takenAt: takenAt, names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if n == "" {
			continue
		}
		s.names[n] = struct{}{}
	}
	return s
}

// Contains reports whether the job name was live when the snapshot was
// taken.
func (s *Snapshot) Contains(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.names[name]
	return ok
}

// Len returns the number of live jobs.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// TakenAt returns when the snapshot was taken.
func (s *Snapshot) TakenAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.takenAt
}

// Names returns the live job names, sorted.
func (s *Snapshot) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
