// Package cmd implements the qcherd command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/3leaps/qcherd/internal/config"
	"github.com/3leaps/qcherd/internal/observability"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected via ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	settingsPath string
	flagBaseDir  string
	flagLogLevel string
	flagLogJSON  bool

	settings *config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "qcherd",
	Short: "Orchestrate quantum chemistry jobs on a batch queue",
	Long: `qcherd watches a directory tree of calculation jobs, keeps them
flowing through the batch scheduler, and derives follow-up
calculations from completed ones.

Per-job behavior (recovery, geometry checks, derivative spawning)
is controlled by configure files inside the tree; this process only
needs to know where the tree is and how to reach the scheduler.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.Load(settingsPath)
		if err != nil {
			return err
		}
		if flagBaseDir != "" {
			s.BaseDir = flagBaseDir
		}
		if cmd.Flags().Changed("log-level") {
			s.Logging.Level = flagLogLevel
		}
		if cmd.Flags().Changed("log-json") {
			s.Logging.JSON = flagLogJSON
		}
		settings = s
		return observability.Init(s.Logging.Level, s.Logging.JSON)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Path to settings file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&flagBaseDir, "base-dir", "d", "", "Root of the managed job tree")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "Emit logs as JSON")
}

// Execute runs the CLI and exits the process with the error's code.
func Execute() {
	defer observability.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		observability.Sync()
		os.Exit(exitCode(err))
	}
}
