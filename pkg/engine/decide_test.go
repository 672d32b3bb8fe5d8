package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/qcherd/pkg/configure"
	"github.com/3leaps/qcherd/pkg/queue"
	"github.com/3leaps/qcherd/pkg/status"
	"github.com/3leaps/qcherd/pkg/workspace"
)

func testJob(t *testing.T, name string) workspace.Job {
	t.Helper()
	return workspace.Job{Name: name, Dir: filepath.Join(t.TempDir(), name)}
}

func TestDecidePolicy(t *testing.T) {
	now := time.Now()
	empty := queue.NewSnapshot(nil, now)
	recovery := configure.Parse("job_recovery\n", "configure")
	plain := configure.Parse("", "configure")
	withThermo := configure.Parse("thermo\n", "configure")

	tests := []struct {
		name string
		st   status.State
		cfg  *configure.Config
		snap *queue.Snapshot
		want Action
	}{
		{"not submitted", status.StateNotSubmitted, plain, empty, ActionSubmit},
		{"in flight", status.StateInFlight, plain, empty, ActionNone},
		{"completed, no rules", status.StateCompletedOk, plain, empty, ActionNone},
		{"completed, pending thermo", status.StateCompletedOk, withThermo, empty, ActionSpawn},
		{"recoverable with recovery on", status.StateRecoverable, recovery, empty, ActionRecover},
		{"recoverable without recovery", status.StateRecoverable, plain, empty, ActionNone},
		{"geometry rejected", status.StateGeoRejected, recovery, empty, ActionNone},
		{"hard failure", status.StateFailed, recovery, empty, ActionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := testJob(t, "fe_oct_2")
			assert.Equal(t, tt.want, Decide(job, tt.st, tt.cfg, tt.snap))
		})
	}
}

// A name present in the snapshot yields no action no matter how the
// job was classified.
func TestDecideQueuedNameNeverActs(t *testing.T) {
	job := testJob(t, "fe_oct_2")
	snap := queue.NewSnapshot([]string{"fe_oct_2"}, time.Now())
	cfg := configure.Parse("job_recovery\nthermo\n", "configure")

	for _, st := range []status.State{
		status.StateNotSubmitted,
		status.StateCompletedOk,
		status.StateRecoverable,
		status.StateFailed,
	} {
		assert.Equal(t, ActionNone, Decide(job, st, cfg, snap), "state %s", st)
	}
}

// No snapshot means no proof of absence: every action is suppressed.
func TestDecideNilSnapshotSuppressesEverything(t *testing.T) {
	job := testJob(t, "fe_oct_2")
	cfg := configure.Parse("job_recovery\nthermo\n", "configure")

	for _, st := range []status.State{
		status.StateNotSubmitted,
		status.StateCompletedOk,
		status.StateRecoverable,
	} {
		require.Equal(t, ActionNone, Decide(job, st, cfg, nil), "state %s", st)
	}
}
