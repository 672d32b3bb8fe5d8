package derive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/3leaps/qcherd/pkg/configure"
	"github.com/3leaps/qcherd/pkg/geometry"
	"github.com/3leaps/qcherd/pkg/workspace"
)

// Spawned describes one child job materialized by Spawn.
type Spawned struct {
	Job  workspace.Job
	Kind string
}

// Derivative reports whether the job is itself a spawned child.
//
// Children resolve the same configure file as their parent, so rule
// expansion must stop at them or every completion would spawn
// grandchildren forever. The discovery parent link is the primary
// signal; the name suffix covers jobs inspected outside a full
// discovery pass.
func Derivative(job workspace.Job) bool {
	if job.Parent != "" {
		return true
	}
	for _, suffix := range []string{"_thermo", "_solvent"} {
		if strings.HasSuffix(job.Name, suffix) {
			return true
		}
	}
	n := len(job.Name)
	if n > 6 && job.Name[n-6:n-2] == "_HFX" && isDigit(job.Name[n-2]) && isDigit(job.Name[n-1]) {
		return true
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// Applied returns the rule kinds already fully applied to the parent,
// recomputed from on-disk child directories. This is the
// derivative-kinds-spawned set; it is never held in memory across
// cycles.
func Applied(parent workspace.Job, cfg *configure.Config) map[string]bool {
	applied := map[string]bool{}
	if Derivative(parent) {
		return applied
	}
	for _, rule := range RulesFrom(cfg) {
		all := true
		for _, child := range rule.Children {
			if _, err := os.Stat(filepath.Join(parent.Dir, parent.Name+child.Suffix)); err != nil {
				all = false
				break
			}
		}
		if all && len(rule.Children) > 0 {
			applied[rule.Kind] = true
		}
	}
	return applied
}

// Pending reports whether any configured rule still has children to
// spawn for the parent. Always false for derivatives: the topology is
// fixed at parent and child, never deeper.
func Pending(parent workspace.Job, cfg *configure.Config) bool {
	if Derivative(parent) {
		return false
	}
	for _, rule := range RulesFrom(cfg) {
		for _, child := range rule.Children {
			if _, err := os.Stat(filepath.Join(parent.Dir, parent.Name+child.Suffix)); err != nil {
				return true
			}
		}
	}
	return false
}

// Spawn materializes the unapplied derivative children of a completed
// parent. Children are created under the parent's directory so the
// next discovery pass picks them up; the current pass never acts on
// them, keeping each cycle's work bounded.
//
// Spawn is idempotent per (parent, child): an existing child directory
// is skipped. Each child is staged in a temporary directory and
// renamed into place so a crash never leaves a half-written child at
// its final name.
func Spawn(parent workspace.Job, cfg *configure.Config) ([]Spawned, error) {
	if Derivative(parent) {
		return nil, nil
	}
	rules := RulesFrom(cfg)
	if len(rules) == 0 {
		return nil, nil
	}

	input, err := os.ReadFile(parent.InputPath())
	if err != nil {
		return nil, fmt.Errorf("read parent input: %w", err)
	}
	jobscript, err := os.ReadFile(parent.JobscriptPath())
	if err != nil {
		return nil, fmt.Errorf("read parent jobscript: %w", err)
	}

	// The child's starting structure is the parent's optimized geometry.
	var structure string
	loadStructure := func() (string, error) {
		if structure != "" {
			return structure, nil
		}
		mol, err := geometry.FinalStructure(parent)
		if err != nil {
			return "", err
		}
		mol.Comment = parent.Name + " final geometry"
		structure = mol.XYZString()
		return structure, nil
	}

	var created []Spawned
	for _, rule := range rules {
		for _, child := range rule.Children {
			childName := parent.Name + child.Suffix
			childDir := filepath.Join(parent.Dir, childName)
			if _, err := os.Stat(childDir); err == nil {
				continue // already spawned on an earlier cycle
			}

			xyz, err := loadStructure()
			if err != nil {
				return created, fmt.Errorf("parent %s structure: %w", parent.Name, err)
			}

			if err := writeChild(childDir, childName, parent.Name, child.Rewrite(string(input)), string(jobscript), xyz); err != nil {
				return created, fmt.Errorf("spawn %s: %w", childName, err)
			}
			created = append(created, Spawned{
				Job:  workspace.Job{Name: childName, Dir: childDir, Parent: parent.Name},
				Kind: rule.Kind,
			})
		}
	}
	return created, nil
}

// writeChild stages the three job files in a temp directory and renames
// it to the final child directory.
func writeChild(childDir, childName, parentName, input, jobscript, xyz string) error {
	tmp, err := os.MkdirTemp(filepath.Dir(childDir), "."+childName+".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	files := map[string]string{
		childName + ".in":        renameRefs(input, parentName, childName),
		childName + ".xyz":       xyz,
		childName + "_jobscript": renameRefs(jobscript, parentName, childName),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(tmp, name), []byte(content), 0o644); err != nil {
			return err
		}
	}

	if err := os.Rename(tmp, childDir); err != nil {
		// A concurrent or earlier rename already produced the child.
		if _, statErr := os.Stat(childDir); statErr == nil {
			return nil
		}
		return err
	}
	return nil
}

// renameRefs rewrites parent-name references (input, structure and log
// paths in the jobscript) to the child name.
func renameRefs(content, parentName, childName string) string {
	return strings.ReplaceAll(content, parentName, childName)
}
