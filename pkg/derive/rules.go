// Package derive spawns derivative jobs from completed parents.
//
// Each configured derivative rule expands to one or more children with
// names derived deterministically from the parent name and the rule,
// so spawning is idempotent: recomputing a child name and finding its
// directory already on disk is a no-op, never an error. The set of
// rules already applied to a parent is likewise recomputed from disk,
// which makes spawning exactly-once even across crashes and restarts.
package derive

import (
	"fmt"
	"strings"

	"github.com/3leaps/qcherd/pkg/configure"
)

// Rule kinds, equal to their configure directive names.
const (
	KindThermo      = "thermo"
	KindSolvent     = "solvent"
	KindHFXResample = "HFX_resample"
)

// ChildSpec describes one child job a rule produces.
type ChildSpec struct {
	// Suffix is appended to the parent name to form the child's unique
	// name.
	Suffix string

	// Rewrite transforms the parent's input file into the child's.
	Rewrite func(input string) string
}

// Rule is one derivative rule expanded against a configuration.
type Rule struct {
	Kind     string
	Children []ChildSpec
}

// RulesFrom expands the derivative rules declared in cfg.
func RulesFrom(cfg *configure.Config) []Rule {
	var rules []Rule

	if cfg.Thermo() {
		rules = append(rules, Rule{
			Kind: KindThermo,
			Children: []ChildSpec{{
				Suffix: "_thermo",
				Rewrite: func(in string) string {
					return SetKeyword(in, "run", "frequencies")
				},
			}},
		})
	}

	if eps, ok := cfg.Solvent(); ok {
		rules = append(rules, Rule{
			Kind: KindSolvent,
			Children: []ChildSpec{{
				Suffix: "_solvent",
				Rewrite: func(in string) string {
					in = SetKeyword(in, "pcm", "cosmo")
					return SetKeyword(in, "epsilon", fmt.Sprintf("%g", eps))
				},
			}},
		})
	}

	if steps, ok := cfg.HFXResample(); ok {
		rule := Rule{Kind: KindHFXResample}
		for _, pp := range steps {
			frac := float64(pp) / 100
			rule.Children = append(rule.Children, ChildSpec{
				Suffix: fmt.Sprintf("_HFX%02d", pp),
				Rewrite: func(in string) string {
					return SetKeyword(in, "hfx", fmt.Sprintf("%.2f", frac))
				},
			})
		}
		rules = append(rules, rule)
	}

	return rules
}

// SetKeyword replaces the value of a "key value" line in the input, or
// inserts the line before the terminating "end" (appending when there
// is none). Matching is on the first whitespace-separated token.
func SetKeyword(input, key, value string) string {
	lines := strings.Split(input, "\n")
	replaced := false
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) > 0 && strings.EqualFold(fields[0], key) {
			lines[i] = key + " " + value
			replaced = true
		}
	}
	if replaced {
		return strings.Join(lines, "\n")
	}

	directive := key + " " + value
	for i, line := range lines {
		if strings.EqualFold(strings.TrimSpace(line), "end") {
			lines = append(lines[:i], append([]string{directive}, lines[i:]...)...)
			return strings.Join(lines, "\n")
		}
	}
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines[len(lines)-1] = directive
		lines = append(lines, "")
		return strings.Join(lines, "\n")
	}
	return strings.Join(append(lines, directive), "\n")
}
