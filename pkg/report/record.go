// Package report provides JSONL output for orchestration cycles.
//
// Records are typed envelopes: job classifications, actions taken,
// per-job errors, and a cycle summary. Each line is a self-contained
// JSON object, so a cycle log can be tailed, grepped and parsed
// incrementally while the daemon runs.
package report

import (
	"encoding/json"
	"time"
)

// Record type constants follow the pattern qcherd.<type>.v<version>.
const (
	// TypeJob identifies per-job classification records.
	TypeJob = "qcherd.job.v1"

	// TypeAction identifies records for actions the engine executed.
	TypeAction = "qcherd.action.v1"

	// TypeError identifies per-job error records.
	TypeError = "qcherd.error.v1"

	// TypeCycle identifies end-of-cycle summary records.
	TypeCycle = "qcherd.cycle.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g. "qcherd.job.v1").
	Type string `json:"type"`

	// TS is when the record was created.
	TS time.Time `json:"ts"`

	// CycleID correlates all records of one control-loop iteration.
	CycleID string `json:"cycle_id"`

	// Data contains the type-specific payload.
	Data json.RawMessage `json:"data"`
}

// JobRecord is the payload for one job's classification this cycle.
type JobRecord struct {
	// Name is the job's unique name.
	Name string `json:"name"`

	// Dir is the job directory.
	Dir string `json:"dir"`

	// State is the classified lifecycle state.
	State string `json:"state"`

	// Action is the decision taken for this state ("submit", "none", ...).
	Action string `json:"action"`

	// Detail carries state-specific context (geometry rejection reason,
	// failure signature, spawned child names).
	Detail string `json:"detail,omitempty"`
}

// ActionRecord is the payload for an executed action.
type ActionRecord struct {
	// Name is the job the action applied to.
	Name string `json:"name"`

	// Action is what was executed ("submit", "recover", "spawn").
	Action string `json:"action"`

	// QueueID is the batch system's id for a submission, if reported.
	QueueID string `json:"queue_id,omitempty"`

	// Children lists spawned derivative names for spawn actions.
	Children []string `json:"children,omitempty"`
}

// ErrorRecord is the payload for per-job errors. Errors are emitted as
// records rather than failing the cycle; one job's problem never stops
// the others.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Name is the job the error relates to, if any.
	Name string `json:"name,omitempty"`
}

// Error codes for ErrorRecord.Code.
const (
	ErrCodeConfigureMissing = "CONFIGURE_MISSING"
	ErrCodeMalformedJobDir  = "MALFORMED_JOB_DIR"
	ErrCodeQueueUnavailable = "QUEUE_UNAVAILABLE"
	ErrCodeSubmitFailed     = "SUBMIT_FAILED"
	ErrCodeSpawnFailed      = "SPAWN_FAILED"
	ErrCodeInspectFailed    = "INSPECT_FAILED"
	ErrCodeGeometryCheck    = "GEOMETRY_CHECK_FAILED"
	ErrCodeArchiveFailed    = "ARCHIVE_FAILED"
)

// CycleRecord is the payload summarizing one full pass.
type CycleRecord struct {
	// JobsSeen is the number of discovered, well-formed jobs.
	JobsSeen int `json:"jobs_seen"`

	// Submitted counts submissions (including resubmissions).
	Submitted int `json:"submitted"`

	// Recovered counts recovery rewrites performed.
	Recovered int `json:"recovered"`

	// Spawned counts derivative children created.
	Spawned int `json:"spawned"`

	// InFlight counts jobs present in the queue snapshot.
	InFlight int `json:"in_flight"`

	// Errors counts non-fatal per-job errors.
	Errors int `json:"errors"`

	// SnapshotOK reports whether the queue snapshot succeeded; when
	// false every action this cycle was suppressed.
	SnapshotOK bool `json:"snapshot_ok"`

	// Duration is how long the pass took.
	Duration time.Duration `json:"duration"`

	// DurationHuman is Duration rounded for operators.
	DurationHuman string `json:"duration_human"`
}
