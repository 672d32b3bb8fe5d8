package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/qcherd/internal/observability"
	"github.com/3leaps/qcherd/pkg/configure"
	"github.com/3leaps/qcherd/pkg/engine"
	"github.com/3leaps/qcherd/pkg/geometry"
	"github.com/3leaps/qcherd/pkg/queue"
	"github.com/3leaps/qcherd/pkg/queue/slurm"
	"github.com/3leaps/qcherd/pkg/status"
	"github.com/3leaps/qcherd/pkg/workspace"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Classify the job tree without acting",
	Long: `Run a single read-only pass over the tree: discover jobs, take a
queue snapshot, classify each job and report the action the daemon
would take. Nothing is submitted, rotated or spawned.

Example:
  qcherd scan --base-dir /data/runs
  qcherd scan -d /data/runs --format jsonl
  qcherd scan -d /data/runs --offline`,
	RunE: runScan,
}

var (
	scanFormat  string
	scanOffline bool
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table|jsonl|yaml)")
	scanCmd.Flags().BoolVar(&scanOffline, "offline", false, "Skip the queue snapshot (all jobs classified as if unqueued)")
}

// scanRow is one job's read-only assessment.
type scanRow struct {
	Name   string `json:"name" yaml:"name"`
	Dir    string `json:"dir" yaml:"dir"`
	State  string `json:"state" yaml:"state"`
	Action string `json:"would" yaml:"would"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

func runScan(cmd *cobra.Command, args []string) error {
	switch scanFormat {
	case "table", "jsonl", "yaml":
	default:
		return exitError(foundry.ExitInvalidArgument, "Invalid --format value",
			fmt.Errorf("format must be one of: table, jsonl, yaml"))
	}
	if settings.BaseDir == "" {
		return exitError(foundry.ExitInvalidArgument, "Missing base directory",
			fmt.Errorf("set --base-dir or base_dir in settings"))
	}

	ctx := cmd.Context()
	log := observability.CLILogger

	var snap *queue.Snapshot
	if !scanOffline {
		adapter := slurm.New(slurm.Config{
			User:           settings.Queue.User,
			CommandTimeout: settings.Queue.CommandTimeout,
		})
		s, err := adapter.Snapshot(ctx)
		if err != nil {
			log.Warn("Queue snapshot unavailable, scanning offline", zap.Error(err))
		} else {
			snap = s
		}
	}

	opts := workspace.Options{}
	if rootCfg, err := configure.Resolve(settings.BaseDir, settings.BaseDir); err == nil {
		opts.Ignore = rootCfg.Ignore()
	}
	res, err := workspace.Discover(settings.BaseDir, opts)
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Failed to scan job tree", err)
	}

	rows := make([]scanRow, 0, len(res.Jobs))
	for _, m := range res.Malformed {
		rows = append(rows, scanRow{Name: m.Dir, Dir: m.Dir, State: "malformed", Action: "none", Detail: m.Error()})
	}
	for _, job := range res.Jobs {
		rows = append(rows, scanJob(job, snap))
	}

	return writeScan(rows)
}

// scanJob mirrors the daemon's per-job pipeline minus the actions.
func scanJob(job workspace.Job, snap *queue.Snapshot) scanRow {
	row := scanRow{Name: job.Name, Dir: job.Dir, Action: string(engine.ActionNone)}

	cfg, err := configure.Resolve(job.Dir, settings.BaseDir)
	if err != nil {
		row.State = "error"
		row.Detail = err.Error()
		return row
	}

	out, err := status.Inspect(job)
	if err != nil {
		row.State = "error"
		row.Detail = err.Error()
		return row
	}

	st := status.Classify(job.Name, cfg, out, snap)
	if st == status.StateNeedsGeoCheck {
		criterion, _ := cfg.GeoCheck()
		res, err := geometry.Validate(job, criterion)
		switch {
		case err != nil:
			row.State = string(st)
			row.Detail = err.Error()
			return row
		case res.Verdict == geometry.Approved:
			st = status.StateCompletedOk
		default:
			st = status.StateGeoRejected
			row.Detail = res.Reason
		}
	}

	row.State = string(st)
	row.Action = string(engine.Decide(job, st, cfg, snap))
	return row
}

func writeScan(rows []scanRow) error {
	switch scanFormat {
	case "jsonl":
		enc := json.NewEncoder(os.Stdout)
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
			}
		}
	case "yaml":
		if err := yaml.NewEncoder(os.Stdout).Encode(rows); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
	default:
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATE\tWOULD\tDETAIL")
		for _, row := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", row.Name, row.State, row.Action, row.Detail)
		}
		if err := w.Flush(); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
	}
	return nil
}
