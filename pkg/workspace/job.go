// Package workspace discovers and describes quantum-chemistry job
// directories under a base directory.
//
// A job directory holds three files sharing the directory's name:
//
//	<base>/<name>/<name>.in         calculation input
//	<base>/<name>/<name>.xyz        starting structure
//	<base>/<name>/<name>_jobscript  batch submission script
//
// plus whatever output artifacts the calculation produces. Derivative
// jobs live in subdirectories of their parent, so discovery is a
// recursive walk. Discovery is read-only and re-run every cycle.
package workspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Job is one computational job on disk.
//
// The unique name doubles as the batch-queue key. Jobs are never deleted
// by qcherd; a discovered directory persists as history.
type Job struct {
	// Name is the globally unique job name, equal to the directory's
	// base name and used as the queue key.
	Name string

	// Dir is the absolute path of the job directory.
	Dir string

	// Parent is the unique name of the job this one was derived from,
	// empty for top-level jobs. It is a lookup key, not ownership.
	Parent string
}

// InputPath returns the path of the calculation input file.
func (j Job) InputPath() string { return filepath.Join(j.Dir, j.Name+".in") }

// StructurePath returns the path of the starting structure file.
func (j Job) StructurePath() string { return filepath.Join(j.Dir, j.Name+".xyz") }

// JobscriptPath returns the path of the batch submission script.
func (j Job) JobscriptPath() string { return filepath.Join(j.Dir, j.Name+"_jobscript") }

// OutputPath returns the path of the main output artifact.
func (j Job) OutputPath() string { return filepath.Join(j.Dir, j.Name+".out") }

// ErrMalformedJobDir reports a directory that looks like a job but
// cannot become one: a convention file is missing, or another
// directory already claimed the name. Malformed directories are
// skipped, never fatal to a cycle.
var ErrMalformedJobDir = errors.New("malformed job directory")

// MalformedError carries the directory and what disqualified it.
type MalformedError struct {
	Dir     string
	Missing []string

	// Conflict is the directory that already owns the same job name.
	// Job names key queue dedup, so only one directory per name may
	// ever be submitted.
	Conflict string
}

func (e *MalformedError) Error() string {
	if e.Conflict != "" {
		return fmt.Sprintf("malformed job directory %s: name already in use by %s", e.Dir, e.Conflict)
	}
	return fmt.Sprintf("malformed job directory %s: missing %s", e.Dir, strings.Join(e.Missing, ", "))
}

func (e *MalformedError) Unwrap() error { return ErrMalformedJobDir }
