package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/qcherd/internal/runstate"
	"github.com/3leaps/qcherd/pkg/engine"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's run state for a tree",
	Long: `Read the run record under <base-dir>/.qcherd/run.json and, when
the daemon's status server is reachable, the last cycle summary.

Example:
  qcherd status --base-dir /data/runs`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if settings.BaseDir == "" {
		return exitError(foundry.ExitInvalidArgument, "Missing base directory",
			fmt.Errorf("set --base-dir or base_dir in settings"))
	}

	store := runstate.NewStore(runstate.DefaultPath(settings.BaseDir))
	rec, err := store.Load()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No run record: the daemon has never run on this tree.")
			return nil
		}
		return exitError(foundry.ExitFileReadError, "Failed to read run record", err)
	}

	fmt.Printf("Run:        %s\n", rec.RunID)
	fmt.Printf("State:      %s\n", rec.State)
	if rec.PID > 0 {
		fmt.Printf("PID:        %d\n", rec.PID)
	}
	fmt.Printf("Started:    %s\n", rec.StartedAt.Format(time.RFC3339))
	if rec.LastCycleAt != nil {
		fmt.Printf("Last cycle: %s (%d cycles)\n", rec.LastCycleAt.Format(time.RFC3339), rec.Cycles)
	}
	if rec.EndedAt != nil {
		fmt.Printf("Ended:      %s\n", rec.EndedAt.Format(time.RFC3339))
	}

	if rec.State == runstate.StateRunning && rec.ServerAddr != "" {
		printLastCycle(rec.ServerAddr)
	}
	return nil
}

// printLastCycle queries the live daemon; failures are shown, not
// fatal, since the record alone already answered the question.
func printLastCycle(addr string) {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get("http://" + addr + "/api/v1/cycle")
	if err != nil {
		fmt.Printf("Status API: unreachable (%v)\n", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Status API: no completed cycle yet\n")
		return
	}

	var sum engine.CycleSummary
	if err := json.NewDecoder(resp.Body).Decode(&sum); err != nil {
		fmt.Printf("Status API: bad response (%v)\n", err)
		return
	}
	fmt.Printf("Cycle:      %s\n", sum.CycleID)
	fmt.Printf("  jobs=%d in_flight=%d submitted=%d recovered=%d spawned=%d errors=%d snapshot_ok=%t\n",
		sum.JobsSeen, sum.InFlight, sum.Submitted, sum.Recovered, sum.Spawned, sum.Errors, sum.SnapshotOK)
}
