// Package status classifies jobs into lifecycle states.
//
// Classification combines three inputs: the job on disk, its resolved
// configuration, and the queue snapshot for the current cycle. Output
// inspection (the only I/O) is split into Inspect so that Classify
// stays a pure function of its arguments.
package status

import (
	"os"
	"strconv"
	"strings"

	"github.com/3leaps/qcherd/pkg/workspace"
)

// Termination signatures in calculation output. The engine writes one
// of these near the end of the .out file.
const (
	markFinished   = "Job finished"
	markTerminated = "Job terminated"
)

// tailBytes bounds how much of the output file is kept for signature
// matching. Output files can reach gigabytes; everything interesting is
// in the last few kilobytes.
const tailBytes = 16 * 1024

// Outcome is what the output artifacts say about a job.
type Outcome struct {
	// HasOutput reports whether the job has produced an output file at
	// all. Absence means the job was never submitted (or the queue lost
	// it before it started, which resubmission handles identically).
	HasOutput bool

	// Normal reports a normal-termination signature in the output.
	Normal bool

	// Tail holds the trailing portion of the output text for failure
	// signature matching.
	Tail string

	// Resubmits counts prior recovery attempts, derived from rotated
	// output files (<name>.out.1, .out.2, ...) left by recovery.
	Resubmits int
}

// Inspect reads the job's output artifacts.
//
// Missing output is not an error; it is the NotSubmitted signal. Read
// failures on an existing file are returned so the cycle can report
// the job and move on.
func Inspect(job workspace.Job) (Outcome, error) {
	var out Outcome

	f, err := os.Open(job.OutputPath())
	if err != nil {
		if os.IsNotExist(err) {
			out.Resubmits = countRotated(job)
			return out, nil
		}
		return out, err
	}
	defer f.Close()

	out.HasOutput = true
	out.Resubmits = countRotated(job)

	st, err := f.Stat()
	if err != nil {
		return out, err
	}
	offset := st.Size() - tailBytes
	if offset < 0 {
		offset = 0
	}
	buf := make([]byte, st.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil && len(buf) > 0 {
		return out, err
	}

	out.Tail = string(buf)
	out.Normal = strings.Contains(out.Tail, markFinished) && !strings.Contains(out.Tail, markTerminated)
	return out, nil
}

// countRotated counts <name>.out.N files left by prior recoveries, so
// the resubmission bound survives restarts without in-memory state.
func countRotated(job workspace.Job) int {
	n := 0
	for {
		if _, err := os.Stat(RotatedOutputPath(job, n+1)); err != nil {
			return n
		}
		n++
	}
}

// RotatedOutputPath returns the path recovery uses when rotating the
// current output aside as generation n.
func RotatedOutputPath(job workspace.Job, n int) string {
	return job.OutputPath() + "." + strconv.Itoa(n)
}
