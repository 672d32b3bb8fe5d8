package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/3leaps/qcherd/pkg/derive"
	"github.com/3leaps/qcherd/pkg/geometry"
	"github.com/3leaps/qcherd/pkg/status"
	"github.com/3leaps/qcherd/pkg/workspace"
)

// Recover prepares a recoverable job for resubmission.
//
// The failed output is rotated aside (which is also what advances the
// on-disk resubmission counter), the starting structure is refreshed
// from the furthest geometry the failed run reached, and for SCF
// convergence failures the input gets a higher iteration bound with
// level shifting. The caller submits afterwards.
func Recover(job workspace.Job, out status.Outcome) error {
	// Rotate <name>.out to the next free generation.
	gen := out.Resubmits + 1
	for {
		if _, err := os.Stat(status.RotatedOutputPath(job, gen)); os.IsNotExist(err) {
			break
		}
		gen++
	}
	if err := os.Rename(job.OutputPath(), status.RotatedOutputPath(job, gen)); err != nil {
		return fmt.Errorf("rotate output: %w", err)
	}

	// Restart from the last geometry the failed run produced, so a
	// walltime kill doesn't repeat work it already did.
	if mol, err := geometry.FinalStructure(job); err == nil {
		mol.Comment = fmt.Sprintf("%s restart %d", job.Name, gen)
		if err := writeFileAtomic(job.StructurePath(), mol.XYZString()); err != nil {
			return fmt.Errorf("refresh structure: %w", err)
		}
	}

	if strings.Contains(out.Tail, "SCF") {
		input, err := os.ReadFile(job.InputPath())
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		adjusted := derive.SetKeyword(string(input), "maxit", "300")
		adjusted = derive.SetKeyword(adjusted, "levelshift", "yes")
		if err := writeFileAtomic(job.InputPath(), adjusted); err != nil {
			return fmt.Errorf("rewrite input: %w", err)
		}
	}

	return nil
}

// writeFileAtomic writes via a temp file and rename so a crash never
// leaves a half-written job file.
func writeFileAtomic(path, content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".qcherd-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
