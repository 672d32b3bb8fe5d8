// Package slurm implements the queue.Adapter boundary on top of the
// Slurm command-line tools (squeue, sbatch).
//
// The adapter shells out rather than speaking Slurm's REST API because
// the CLI is the one interface present on every cluster login node.
// Both calls retry transient failures with exponential backoff and are
// bounded by a per-command timeout; an exhausted retry surfaces as
// queue.ErrUnavailable so the engine suppresses submissions for the
// cycle instead of crashing.
package slurm

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/3leaps/qcherd/pkg/queue"
)

const backendName = "slurm"

// Config configures the Slurm adapter.
type Config struct {
	// User limits squeue to jobs owned by this user. Empty means the
	// invoking user ($USER on the cluster).
	User string

	// CommandTimeout bounds each squeue/sbatch invocation.
	// Default: 30s.
	CommandTimeout time.Duration

	// MaxRetryElapsed bounds the total retry window per call.
	// Default: 2m.
	MaxRetryElapsed time.Duration
}

// runner executes a command and returns its combined output. Tests
// substitute this to avoid a live cluster.
type runner func(ctx context.Context, dir, name string, args ...string) (string, error)

// Adapter talks to Slurm via its CLI.
type Adapter struct {
	cfg Config
	run runner
}

var _ queue.Adapter = (*Adapter)(nil)

// New creates a Slurm adapter.
func New(cfg Config) *Adapter {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	if cfg.MaxRetryElapsed <= 0 {
		cfg.MaxRetryElapsed = 2 * time.Minute
	}
	return &Adapter{cfg: cfg, run: runCommand}
}

func runCommand(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Snapshot lists the invoking user's pending and running job names.
func (a *Adapter) Snapshot(ctx context.Context) (*queue.Snapshot, error) {
	args := []string{"--noheader", "-o", "%j"}
	if a.cfg.User != "" {
		args = append(args, "-u", a.cfg.User)
	}

	out, err := a.retry(ctx, func(callCtx context.Context) (string, error) {
		return a.run(callCtx, "", "squeue", args...)
	})
	if err != nil {
		return nil, &queue.QueueError{Op: "Snapshot", Backend: backendName, Err: fmt.Errorf("%w: %v", queue.ErrUnavailable, err)}
	}

	return queue.NewSnapshot(splitLines(out), time.Now()), nil
}

// Submit runs sbatch from inside the job directory.
func (a *Adapter) Submit(ctx context.Context, req queue.SubmitRequest) (*queue.SubmitResult, error) {
	out, err := a.retry(ctx, func(callCtx context.Context) (string, error) {
		return a.run(callCtx, req.Dir, "sbatch", req.Jobscript)
	})
	if err != nil {
		return nil, &queue.QueueError{Op: "Submit", Backend: backendName, Name: req.Name, Err: fmt.Errorf("%w: %v", queue.ErrSubmitRejected, err)}
	}

	// sbatch prints "Submitted batch job <id>".
	res := &queue.SubmitResult{}
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) > 0 {
		res.QueueID = fields[len(fields)-1]
	}
	return res, nil
}

// retry runs fn with exponential backoff, each attempt bounded by the
// command timeout.
func (a *Adapter) retry(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	var out string

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = a.cfg.MaxRetryElapsed

	err := backoff.Retry(func() error {
		callCtx, cancel := context.WithTimeout(ctx, a.cfg.CommandTimeout)
		defer cancel()
		var err error
		out, err = fn(callCtx)
		return err
	}, backoff.WithContext(bo, ctx))

	return out, err
}

func splitLines(s string) []string {
	var names []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names
}
