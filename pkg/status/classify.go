package status

import (
	"strings"

	"github.com/3leaps/qcherd/pkg/configure"
	"github.com/3leaps/qcherd/pkg/queue"
)

// State is the lifecycle state of a job, recomputed fresh every cycle
// and never cached across cycles.
type State string

const (
	// StateNotSubmitted: no queue entry and no output on disk.
	StateNotSubmitted State = "not_submitted"

	// StateInFlight: the job name is present in the queue snapshot
	// (pending or running; the adapter does not distinguish and the
	// core takes no action either way).
	StateInFlight State = "in_flight"

	// StateCompletedOk: normal termination, geometry gate passed or
	// not configured.
	StateCompletedOk State = "completed_ok"

	// StateNeedsGeoCheck: normal termination with a configured
	// geometry gate whose verdict is still pending this cycle.
	StateNeedsGeoCheck State = "needs_geo_check"

	// StateGeoRejected: geometry gate failed. Terminal.
	StateGeoRejected State = "geo_rejected"

	// StateFailed: abnormal termination outside the recoverable
	// classes, or recovery disabled, or the resubmission bound hit.
	// Terminal.
	StateFailed State = "failed"

	// StateRecoverable: abnormal termination matching a recoverable
	// signature, with job_recovery enabled and resubmissions left.
	StateRecoverable State = "failed_recoverable"
)

// Terminal reports whether the state admits no further action.
func (s State) Terminal() bool {
	return s == StateGeoRejected || s == StateFailed
}

// RecoverablePredicate decides whether a failure signature belongs to a
// recoverable class. The signature list is configuration-driven, not
// hardcoded chemistry knowledge.
type RecoverablePredicate func(tail string) bool

// RecoverableFrom builds the predicate from the resolved configuration.
func RecoverableFrom(cfg *configure.Config) RecoverablePredicate {
	sigs := cfg.RecoverOn()
	return func(tail string) bool {
		for _, sig := range sigs {
			if sig != "" && strings.Contains(tail, sig) {
				return true
			}
		}
		return false
	}
}

// Classify assigns the job's state for this cycle.
//
// Decision order, first match wins:
//  1. name in snapshot            -> InFlight
//  2. no output                   -> NotSubmitted
//  3. abnormal termination        -> Recoverable or Failed
//  4. normal + geo_check present  -> NeedsGeoCheck
//  5. normal                      -> CompletedOk
//
// Classify is pure: it performs no I/O and depends only on its
// arguments, so every decision is reproducible in tests.
func Classify(name string, cfg *configure.Config, out Outcome, snap *queue.Snapshot) State {
	if snap.Contains(name) {
		return StateInFlight
	}
	if !out.HasOutput {
		return StateNotSubmitted
	}
	if !out.Normal {
		if cfg.JobRecovery() && out.Resubmits < cfg.MaxResub() && RecoverableFrom(cfg)(out.Tail) {
			return StateRecoverable
		}
		return StateFailed
	}
	if _, gated := cfg.GeoCheck(); gated {
		return StateNeedsGeoCheck
	}
	return StateCompletedOk
}
