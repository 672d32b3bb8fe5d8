package slurm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/qcherd/pkg/queue"
)

func testAdapter(run runner) *Adapter {
	a := New(Config{CommandTimeout: time.Second, MaxRetryElapsed: 50 * time.Millisecond})
	a.run = run
	return a
}

func TestSnapshot_ParsesJobNames(t *testing.T) {
	a := testAdapter(func(ctx context.Context, dir, name string, args ...string) (string, error) {
		assert.Equal(t, "squeue", name)
		return "fe_oct_2_water_6\nmn_oct_2_cl_2\n\n", nil
	})

	snap, err := a.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())
	assert.True(t, snap.Contains("fe_oct_2_water_6"))
	assert.False(t, snap.Contains("co_oct_3"))
}

func TestSnapshot_FailureIsUnavailable(t *testing.T) {
	a := testAdapter(func(ctx context.Context, dir, name string, args ...string) (string, error) {
		return "", errors.New("squeue: error: slurm_load_jobs: Unable to contact slurm controller")
	})

	_, err := a.Snapshot(context.Background())
	require.Error(t, err)
	assert.True(t, queue.IsUnavailable(err))

	var qerr *queue.QueueError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "Snapshot", qerr.Op)
}

func TestSnapshot_RetriesTransientFailure(t *testing.T) {
	calls := 0
	a := testAdapter(func(ctx context.Context, dir, name string, args ...string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("socket timed out")
		}
		return "fe_oct_2\n", nil
	})

	snap, err := a.Snapshot(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls, 2)
	assert.True(t, snap.Contains("fe_oct_2"))
}

func TestSubmit_RunsSbatchInJobDir(t *testing.T) {
	var gotDir, gotScript string
	a := testAdapter(func(ctx context.Context, dir, name string, args ...string) (string, error) {
		gotDir = dir
		require.Equal(t, "sbatch", name)
		require.Len(t, args, 1)
		gotScript = args[0]
		return "Submitted batch job 918274\n", nil
	})

	res, err := a.Submit(context.Background(), queue.SubmitRequest{
		Name:      "fe_oct_2",
		Dir:       "/tree/fe_oct_2",
		Jobscript: "/tree/fe_oct_2/fe_oct_2_jobscript",
	})
	require.NoError(t, err)
	assert.Equal(t, "/tree/fe_oct_2", gotDir)
	assert.Equal(t, "/tree/fe_oct_2/fe_oct_2_jobscript", gotScript)
	assert.Equal(t, "918274", res.QueueID)
}

func TestSubmit_RejectionSurfaces(t *testing.T) {
	a := testAdapter(func(ctx context.Context, dir, name string, args ...string) (string, error) {
		return "", errors.New("sbatch: error: Batch job submission failed: Invalid account")
	})

	_, err := a.Submit(context.Background(), queue.SubmitRequest{Name: "fe_oct_2"})
	require.Error(t, err)
	assert.True(t, queue.IsSubmitRejected(err))
}
