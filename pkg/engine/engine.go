package engine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/qcherd/pkg/configure"
	"github.com/3leaps/qcherd/pkg/derive"
	"github.com/3leaps/qcherd/pkg/geometry"
	"github.com/3leaps/qcherd/pkg/queue"
	"github.com/3leaps/qcherd/pkg/report"
	"github.com/3leaps/qcherd/pkg/status"
	"github.com/3leaps/qcherd/pkg/workspace"
)

// DefaultInterval is the sleep between cycles when neither the
// settings nor the root configure file override it.
const DefaultInterval = 2 * time.Hour

// Config configures the engine.
type Config struct {
	// BaseDir is the root of the managed job tree.
	BaseDir string

	// Interval is the sleep between cycles. The root configure file's
	// sleep directive, re-read every cycle, overrides it at run time.
	// Default: DefaultInterval.
	Interval time.Duration

	// SubmitRate limits submissions per second, protecting the batch
	// scheduler from bursts after a long outage. Zero means unlimited.
	SubmitRate float64

	// SubmitBurst is the rate limiter's burst size. Default: 1.
	SubmitBurst int
}

// JobStatus is one job's classification and decision for a cycle,
// retained for the status endpoint.
type JobStatus struct {
	Name   string       `json:"name"`
	Dir    string       `json:"dir"`
	State  status.State `json:"state"`
	Action Action       `json:"action"`
	Detail string       `json:"detail,omitempty"`
}

// CycleSummary aggregates one full pass.
type CycleSummary struct {
	CycleID    string        `json:"cycle_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	JobsSeen   int           `json:"jobs_seen"`
	InFlight   int           `json:"in_flight"`
	Submitted  int           `json:"submitted"`
	Recovered  int           `json:"recovered"`
	Spawned    int           `json:"spawned"`
	Errors     int           `json:"errors"`
	SnapshotOK bool          `json:"snapshot_ok"`
}

// StatusSink receives each completed cycle's summary and per-job
// states. The HTTP status server implements it.
type StatusSink interface {
	PublishCycle(sum CycleSummary, jobs []JobStatus)
}

// Archiver uploads a completed job's artifacts. Implemented by
// pkg/archive; failures are reported but never influence orchestration
// decisions.
type Archiver interface {
	Archive(ctx context.Context, job workspace.Job, dest string) error
}

// Engine runs the polling loop over one job tree.
//
// The loop is single-threaded: one pass classifies every job against
// one consistent queue snapshot, so no two jobs in the same cycle see
// different dedup truths. Cancellation is cooperative and honored at
// iteration boundaries only.
type Engine struct {
	cfg      Config
	adapter  queue.Adapter
	log      *zap.Logger
	writer   report.Writer
	clock    clock.Clock
	limiter  *rate.Limiter
	sink     StatusSink
	archiver Archiver
}

// New creates an engine. Defaults are applied for zero config values.
func New(cfg Config, adapter queue.Adapter, log *zap.Logger) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.SubmitBurst <= 0 {
		cfg.SubmitBurst = 1
	}

	e := &Engine{
		cfg:     cfg,
		adapter: adapter,
		log:     log,
		writer:  report.Discard{},
		clock:   clock.New(),
	}
	if cfg.SubmitRate > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRate), cfg.SubmitBurst)
	}
	return e
}

// WithWriter sets the JSONL cycle log writer.
func (e *Engine) WithWriter(w report.Writer) *Engine {
	e.writer = w
	return e
}

// WithSink sets the status sink fed after every cycle.
func (e *Engine) WithSink(s StatusSink) *Engine {
	e.sink = s
	return e
}

// WithClock substitutes the clock; tests drive the loop with a mock.
func (e *Engine) WithClock(c clock.Clock) *Engine {
	e.clock = c
	return e
}

// WithArchiver enables artifact archiving for trees that configure it.
func (e *Engine) WithArchiver(a Archiver) *Engine {
	e.archiver = a
	return e
}

// Run executes cycles until the context is cancelled.
//
// Cancellation is checked between cycles and while sleeping; a cycle
// that has started always completes, and in-flight submissions are
// never rolled back. System-level failures (unreadable base directory)
// abort the loop; everything else is per-job and isolated.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine started",
		zap.String("base_dir", e.cfg.BaseDir),
		zap.Duration("interval", e.cfg.Interval))

	for {
		sum, err := e.RunCycle(ctx)
		if err != nil {
			return err
		}

		interval := e.iterationInterval()
		e.log.Info("cycle complete",
			zap.String("cycle_id", sum.CycleID),
			zap.Int("jobs_seen", sum.JobsSeen),
			zap.Int("in_flight", sum.InFlight),
			zap.Int("submitted", sum.Submitted),
			zap.Int("spawned", sum.Spawned),
			zap.Int("errors", sum.Errors),
			zap.Bool("snapshot_ok", sum.SnapshotOK),
			zap.Duration("next_cycle_in", interval))

		timer := e.clock.Timer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.log.Info("stop requested, exiting at iteration boundary")
			return nil
		case <-timer.C:
		}
	}
}

// iterationInterval re-reads the root configure file so operators can
// retune the loop without restarting the daemon.
func (e *Engine) iterationInterval() time.Duration {
	if cfg, err := configure.Resolve(e.cfg.BaseDir, e.cfg.BaseDir); err == nil {
		if d, ok := cfg.Sleep(); ok {
			return d
		}
	}
	return e.cfg.Interval
}

// RunCycle executes exactly one pass: snapshot, discovery, and one
// classify/act step per job. Safe to call repeatedly; every decision
// is re-derived from disk and queue each time.
func (e *Engine) RunCycle(ctx context.Context) (*CycleSummary, error) {
	started := e.clock.Now()
	sum := &CycleSummary{
		CycleID:   uuid.New().String(),
		StartedAt: started,
	}
	writer := e.cycleWriter(sum.CycleID)

	// One snapshot per cycle; every job is classified against it. A
	// failed snapshot degrades to a read-only pass rather than risking
	// duplicate submissions.
	snap, err := e.adapter.Snapshot(ctx)
	if err != nil {
		e.log.Warn("queue snapshot failed, suppressing all actions this cycle", zap.Error(err))
		_ = writer.WriteError(ctx, &report.ErrorRecord{
			Code:    report.ErrCodeQueueUnavailable,
			Message: err.Error(),
		})
		snap = nil
	} else {
		sum.SnapshotOK = true
	}

	opts := workspace.Options{}
	if rootCfg, err := configure.Resolve(e.cfg.BaseDir, e.cfg.BaseDir); err == nil {
		opts.Ignore = rootCfg.Ignore()
	}

	res, err := workspace.Discover(e.cfg.BaseDir, opts)
	if err != nil {
		// Unreadable base directory is fatal to the process, not the job.
		return sum, err
	}

	for _, malformed := range res.Malformed {
		sum.Errors++
		e.log.Warn("skipping malformed job directory", zap.String("dir", malformed.Dir))
		_ = writer.WriteError(ctx, &report.ErrorRecord{
			Code:    report.ErrCodeMalformedJobDir,
			Message: malformed.Error(),
		})
	}

	jobs := make([]JobStatus, 0, len(res.Jobs))
	for _, job := range res.Jobs {
		js := e.processJob(ctx, job, snap, sum, writer)
		jobs = append(jobs, js)
		_ = writer.WriteJob(ctx, &report.JobRecord{
			Name:   js.Name,
			Dir:    js.Dir,
			State:  string(js.State),
			Action: string(js.Action),
			Detail: js.Detail,
		})
	}

	sum.JobsSeen = len(res.Jobs)
	sum.Duration = e.clock.Now().Sub(started)
	_ = writer.WriteCycle(ctx, &report.CycleRecord{
		JobsSeen:      sum.JobsSeen,
		Submitted:     sum.Submitted,
		Recovered:     sum.Recovered,
		Spawned:       sum.Spawned,
		InFlight:      sum.InFlight,
		Errors:        sum.Errors,
		SnapshotOK:    sum.SnapshotOK,
		Duration:      sum.Duration,
		DurationHuman: sum.Duration.Round(time.Millisecond).String(),
	})

	if e.sink != nil {
		e.sink.PublishCycle(*sum, jobs)
	}
	return sum, nil
}

// processJob classifies and acts on one job. Every failure path is
// isolated: it logs, emits an error record, and returns, never
// aborting the cycle.
func (e *Engine) processJob(ctx context.Context, job workspace.Job, snap *queue.Snapshot, sum *CycleSummary, writer report.Writer) JobStatus {
	js := JobStatus{Name: job.Name, Dir: job.Dir, Action: ActionNone}

	cfg, err := configure.Resolve(job.Dir, e.cfg.BaseDir)
	if err != nil {
		sum.Errors++
		js.Detail = err.Error()
		code := report.ErrCodeConfigureMissing
		if !errors.Is(err, configure.ErrConfigureMissing) {
			code = report.ErrCodeInspectFailed
		}
		e.log.Error("configuration unresolved, job skipped",
			zap.String("job", job.Name), zap.Error(err))
		_ = writer.WriteError(ctx, &report.ErrorRecord{Code: code, Message: err.Error(), Name: job.Name})
		return js
	}

	out, err := status.Inspect(job)
	if err != nil {
		sum.Errors++
		js.Detail = err.Error()
		e.log.Error("output inspection failed", zap.String("job", job.Name), zap.Error(err))
		_ = writer.WriteError(ctx, &report.ErrorRecord{Code: report.ErrCodeInspectFailed, Message: err.Error(), Name: job.Name})
		return js
	}

	js.State = status.Classify(job.Name, cfg, out, snap)
	if js.State == status.StateInFlight {
		sum.InFlight++
	}

	// Geometry gate: resolve the deferred decision before acting.
	if js.State == status.StateNeedsGeoCheck {
		criterion, _ := cfg.GeoCheck()
		res, err := geometry.Validate(job, criterion)
		if err != nil {
			sum.Errors++
			js.Detail = err.Error()
			e.log.Error("geometry check failed", zap.String("job", job.Name), zap.Error(err))
			_ = writer.WriteError(ctx, &report.ErrorRecord{Code: report.ErrCodeGeometryCheck, Message: err.Error(), Name: job.Name})
			return js
		}
		if res.Verdict == geometry.Approved {
			js.State = status.StateCompletedOk
		} else {
			js.State = status.StateGeoRejected
			js.Detail = res.Reason
			e.log.Info("geometry rejected",
				zap.String("job", job.Name), zap.String("reason", res.Reason))
		}
	}

	js.Action = Decide(job, js.State, cfg, snap)
	e.execute(ctx, job, cfg, out, &js, sum, writer)

	// Archive completed artifacts regardless of spawn state; uploads
	// are idempotent and never gate orchestration.
	if js.State == status.StateCompletedOk && e.archiver != nil {
		if dest, ok := cfg.Archive(); ok {
			if err := e.archiver.Archive(ctx, job, dest); err != nil {
				sum.Errors++
				e.log.Warn("archive failed", zap.String("job", job.Name), zap.Error(err))
				_ = writer.WriteError(ctx, &report.ErrorRecord{Code: report.ErrCodeArchiveFailed, Message: err.Error(), Name: job.Name})
			}
		}
	}

	return js
}

// execute performs the decided action.
func (e *Engine) execute(ctx context.Context, job workspace.Job, cfg *configure.Config, out status.Outcome, js *JobStatus, sum *CycleSummary, writer report.Writer) {
	switch js.Action {
	case ActionSubmit:
		e.submit(ctx, job, js, sum, writer)

	case ActionRecover:
		if err := Recover(job, out); err != nil {
			sum.Errors++
			js.Detail = err.Error()
			e.log.Error("recovery failed", zap.String("job", job.Name), zap.Error(err))
			_ = writer.WriteError(ctx, &report.ErrorRecord{Code: report.ErrCodeSubmitFailed, Message: err.Error(), Name: job.Name})
			return
		}
		sum.Recovered++
		e.submit(ctx, job, js, sum, writer)

	case ActionSpawn:
		created, err := derive.Spawn(job, cfg)
		sum.Spawned += len(created)
		if err != nil {
			sum.Errors++
			js.Detail = err.Error()
			e.log.Error("derivative spawn failed", zap.String("job", job.Name), zap.Error(err))
			_ = writer.WriteError(ctx, &report.ErrorRecord{Code: report.ErrCodeSpawnFailed, Message: err.Error(), Name: job.Name})
		}
		if len(created) > 0 {
			children := make([]string, len(created))
			for i, c := range created {
				children[i] = c.Job.Name
			}
			js.Detail = "spawned " + children[0]
			if len(children) > 1 {
				js.Detail = "spawned " + children[0] + " (+" + strconv.Itoa(len(children)-1) + " more)"
			}
			e.log.Info("spawned derivatives",
				zap.String("parent", job.Name), zap.Strings("children", children))
			_ = writer.WriteAction(ctx, &report.ActionRecord{Name: job.Name, Action: string(ActionSpawn), Children: children})
		}
	}
}

// submit sends one job to the queue, honoring the submission rate
// limit. Submission failures are per-job and retried naturally on the
// next cycle.
func (e *Engine) submit(ctx context.Context, job workspace.Job, js *JobStatus, sum *CycleSummary, writer report.Writer) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return
		}
	}

	res, err := e.adapter.Submit(ctx, queue.SubmitRequest{
		Name:      job.Name,
		Dir:       job.Dir,
		Jobscript: job.JobscriptPath(),
	})
	if err != nil {
		sum.Errors++
		js.Detail = err.Error()
		e.log.Error("submission failed", zap.String("job", job.Name), zap.Error(err))
		_ = writer.WriteError(ctx, &report.ErrorRecord{Code: report.ErrCodeSubmitFailed, Message: err.Error(), Name: job.Name})
		return
	}

	sum.Submitted++
	e.log.Info("submitted", zap.String("job", job.Name), zap.String("queue_id", res.QueueID))
	_ = writer.WriteAction(ctx, &report.ActionRecord{Name: job.Name, Action: string(js.Action), QueueID: res.QueueID})
}

// cycleWriter stamps records with the cycle id when the writer supports
// it.
func (e *Engine) cycleWriter(cycleID string) report.Writer {
	if jw, ok := e.writer.(*report.JSONLWriter); ok {
		return jw.WithCycle(cycleID)
	}
	return e.writer
}
