package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/qcherd/internal/observability"
	"github.com/3leaps/qcherd/internal/runstate"
	"github.com/3leaps/qcherd/internal/server"
	"github.com/3leaps/qcherd/pkg/archive"
	"github.com/3leaps/qcherd/pkg/engine"
	"github.com/3leaps/qcherd/pkg/queue/slurm"
	"github.com/3leaps/qcherd/pkg/report"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestration daemon",
	Long: `Run the polling loop until interrupted.

Each cycle takes one queue snapshot, classifies every job in the
tree and acts: first submissions, recoveries of recoverable
failures, and spawning of derivative calculations. The daemon
records its run state under <base-dir>/.qcherd/run.json.

Example:
  qcherd run --base-dir /data/runs
  qcherd run --settings qcherd.yaml`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runSink fans cycle results out to the status server and the run
// record.
type runSink struct {
	server *server.Server
	store  *runstate.Store
	record *runstate.Record
}

func (s *runSink) PublishCycle(sum engine.CycleSummary, jobs []engine.JobStatus) {
	if s.server != nil {
		s.server.PublishCycle(sum, jobs)
	}
	now := time.Now().UTC()
	s.record.LastCycleAt = &now
	s.record.Cycles++
	if err := s.store.Write(s.record); err != nil {
		observability.CLILogger.Warn("Failed to update run record", zap.Error(err))
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if err := settings.Validate(); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid settings", err)
	}
	if _, err := os.Stat(settings.BaseDir); err != nil {
		return exitError(foundry.ExitFileNotFound, "Base directory not accessible", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := observability.CLILogger

	record := &runstate.Record{
		RunID:     uuid.New().String(),
		State:     runstate.StateRunning,
		PID:       os.Getpid(),
		BaseDir:   settings.BaseDir,
		StartedAt: time.Now().UTC(),
	}
	store := runstate.NewStore(runstate.DefaultPath(settings.BaseDir))

	sink := &runSink{store: store, record: record}

	if settings.Server.Enabled {
		srv := server.New(settings.Server.Host, settings.Server.Port, versionInfo.Version)
		addr, err := srv.Start()
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to start status server", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		log.Info("Status server listening", zap.String("addr", addr))
		record.ServerAddr = addr
		sink.server = srv
	}

	if err := store.Write(record); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write run record", err)
	}
	defer func() {
		record.State = runstate.StateStopped
		now := time.Now().UTC()
		record.EndedAt = &now
		if err := store.Write(record); err != nil {
			log.Warn("Failed to finalize run record", zap.Error(err))
		}
	}()

	adapter := slurm.New(slurm.Config{
		User:           settings.Queue.User,
		CommandTimeout: settings.Queue.CommandTimeout,
	})

	eng := engine.New(engine.Config{
		BaseDir:     settings.BaseDir,
		Interval:    settings.Interval,
		SubmitRate:  settings.Submit.Rate,
		SubmitBurst: settings.Submit.Burst,
	}, adapter, log).WithSink(sink)

	if settings.ReportPath != "" {
		f, err := os.OpenFile(settings.ReportPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to open report file", err)
		}
		defer f.Close()
		w := report.NewJSONLWriter(f, "")
		defer w.Close()
		eng = eng.WithWriter(w)
	}

	// The uploader is optional; trees that never set an archive
	// directive run fine without credentials.
	if uploader, err := archive.New(ctx, archive.Config{
		Region:          settings.Archive.Region,
		Endpoint:        settings.Archive.Endpoint,
		Profile:         settings.Archive.Profile,
		AccessKeyID:     settings.Archive.AccessKeyID,
		SecretAccessKey: settings.Archive.SecretAccessKey,
		ForcePathStyle:  settings.Archive.ForcePathStyle,
	}); err != nil {
		log.Warn("Archiving disabled, S3 client unavailable", zap.Error(err))
	} else {
		eng = eng.WithArchiver(uploader)
	}

	if err := eng.Run(ctx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Orchestration loop failed", err)
	}
	return nil
}
