// Package engine ties discovery, configuration, classification, the
// geometry gate, derivative spawning and the queue adapter into the
// cancellable polling loop that runs qcherd.
package engine

import (
	"github.com/3leaps/qcherd/pkg/configure"
	"github.com/3leaps/qcherd/pkg/derive"
	"github.com/3leaps/qcherd/pkg/queue"
	"github.com/3leaps/qcherd/pkg/status"
	"github.com/3leaps/qcherd/pkg/workspace"
)

// Action is what the engine does with a job this cycle.
type Action string

const (
	// ActionNone: leave the job alone.
	ActionNone Action = "none"

	// ActionSubmit: first submission of a job with no output.
	ActionSubmit Action = "submit"

	// ActionRecover: rotate the failed output, rewrite the input with
	// adjusted parameters, then resubmit.
	ActionRecover Action = "recover"

	// ActionSpawn: materialize pending derivative children.
	ActionSpawn Action = "spawn"
)

// Decide maps a classified job to an action.
//
// The dedup invariant is enforced here independently of classification
// correctness: a name present in the snapshot, or a cycle with no
// snapshot at all, never yields a submission-like action, so even a
// misclassified job cannot be double-submitted.
func Decide(job workspace.Job, st status.State, cfg *configure.Config, snap *queue.Snapshot) Action {
	if snap == nil {
		// Snapshot failed this cycle: conservatively suppress every
		// action, since we cannot prove any name is not queued.
		return ActionNone
	}
	if snap.Contains(job.Name) {
		return ActionNone
	}

	switch st {
	case status.StateNotSubmitted:
		return ActionSubmit
	case status.StateCompletedOk:
		if derive.Pending(job, cfg) {
			return ActionSpawn
		}
		return ActionNone
	case status.StateRecoverable:
		if cfg.JobRecovery() {
			return ActionRecover
		}
		return ActionNone
	default:
		// InFlight, GeoRejected, Failed, NeedsGeoCheck (the gate
		// resolves NeedsGeoCheck before Decide runs).
		return ActionNone
	}
}
