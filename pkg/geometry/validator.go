package geometry

import (
	"fmt"

	"github.com/3leaps/qcherd/pkg/workspace"
)

// Verdict is the outcome of a geometry check.
type Verdict string

const (
	// Approved promotes the job to completed.
	Approved Verdict = "approved"

	// Rejected is terminal: the job never spawns derivatives and is
	// never resubmitted. This is a gate, not a retry condition.
	Rejected Verdict = "rejected"
)

// Result carries the verdict plus the metrics that produced it, for
// reporting.
type Result struct {
	Verdict Verdict
	Reason  string
	Metrics map[string]float64
}

// Criterion checks one geometric property of a structure.
type Criterion func(*Molecule) Result

// criteria maps configure-file criterion names to checks. Only "oct"
// ships today; the registry keeps new criteria a one-line addition.
var criteria = map[string]Criterion{
	"oct": checkOct,
}

// Validate checks a completed job's final structure against the named
// criterion.
//
// An unknown criterion is a configuration mistake and surfaces as an
// error rather than a silent approval.
func Validate(job workspace.Job, criterion string) (Result, error) {
	check, ok := criteria[criterion]
	if !ok {
		return Result{}, fmt.Errorf("unknown geometry criterion %q", criterion)
	}
	mol, err := FinalStructure(job)
	if err != nil {
		return Result{}, err
	}
	return check(mol), nil
}
