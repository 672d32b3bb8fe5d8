// Package configure resolves and parses the per-tree configure files
// that drive qcherd's behavior.
//
// A configure file is a plain text file named "configure" holding one
// directive per line:
//
//	geo_check:oct
//	job_recovery
//	solvent:78.4
//	# comments and blank lines are skipped
//
// Resolution walks from a job's directory upward toward the base
// directory; the closest configure file wins entirely, with no merging
// across levels. Files are user-edited at run time, so callers must
// resolve fresh every cycle and never cache.
package configure

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// FileName is the configure file's fixed name.
const FileName = "configure"

// ErrConfigureMissing reports that no configure file exists between a
// job directory and the base directory. Fatal for that job only.
var ErrConfigureMissing = errors.New("no configure file found")

// Config is the directive set applicable to one job.
//
// Unknown directives are preserved and retrievable via Value/Values so
// that directives added on the fly don't break older binaries.
type Config struct {
	// SourcePath is the directory whose configure file produced this
	// configuration.
	SourcePath string

	directives map[string][]string
}

// Has reports whether the directive is present (with or without value).
func (c *Config) Has(key string) bool {
	_, ok := c.directives[key]
	return ok
}

// Value returns the first value of the directive, or "" if absent or
// valueless.
func (c *Config) Value(key string) string {
	vs := c.directives[key]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Values returns all values of a repeatable directive.
func (c *Config) Values(key string) []string {
	return c.directives[key]
}

// GeoCheck returns the configured geometry criterion ("oct", ...) and
// whether the geometry gate is enabled at all.
func (c *Config) GeoCheck() (string, bool) {
	if !c.Has("geo_check") {
		return "", false
	}
	return c.Value("geo_check"), true
}

// JobRecovery reports whether recovery of recoverable failures is
// enabled. Omission of the directive is the only way to disable it.
func (c *Config) JobRecovery() bool { return c.Has("job_recovery") }

// RecoverOn returns the failure signatures treated as recoverable.
// Without an explicit recover_on directive the stock walltime and SCF
// convergence classes apply.
func (c *Config) RecoverOn() []string {
	if vs := c.Values("recover_on"); len(vs) > 0 {
		return vs
	}
	return []string{
		"wall time exceeded",
		"walltime exceeded",
		"DUE TO TIME LIMIT",
		"SCF failed to converge",
		"Incorrect purify",
	}
}

// Ignore returns discovery ignore globs.
func (c *Config) Ignore() []string { return c.Values("ignore") }

// Archive returns the S3 destination for completed-job artifacts, e.g.
// "s3://bucket/prefix", and whether archiving is enabled.
func (c *Config) Archive() (string, bool) {
	if !c.Has("archive") {
		return "", false
	}
	return c.Value("archive"), true
}

// Sleep returns the loop interval override, if the directive parses.
func (c *Config) Sleep() (time.Duration, bool) {
	v := c.Value("sleep")
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// DefaultMaxResub bounds how often a recoverable job is resubmitted.
const DefaultMaxResub = 5

// MaxResub returns the resubmission bound.
func (c *Config) MaxResub() int {
	if n, err := strconv.Atoi(c.Value("max_resub")); err == nil && n >= 0 {
		return n
	}
	return DefaultMaxResub
}

// Thermo reports whether the thermochemistry derivative rule is enabled.
func (c *Config) Thermo() bool { return c.Has("thermo") }

// Solvent returns the implicit-solvent dielectric constant and whether
// the solvent derivative rule is enabled. A valueless directive uses
// water's dielectric.
func (c *Config) Solvent() (float64, bool) {
	if !c.Has("solvent") {
		return 0, false
	}
	if eps, err := strconv.ParseFloat(c.Value("solvent"), 64); err == nil && eps > 0 {
		return eps, true
	}
	return 78.39, true
}

// HFXResample returns the Hartree-Fock exchange percentages to resample
// and whether the rule is enabled. Default grid follows the usual 0-30%
// scan in 5% steps.
func (c *Config) HFXResample() ([]int, bool) {
	if !c.Has("HFX_resample") {
		return nil, false
	}
	raw := c.Value("HFX_resample")
	if raw == "" {
		return defaultHFXGrid(), true
	}
	var steps []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 100 {
			continue
		}
		steps = append(steps, n)
	}
	if len(steps) == 0 {
		return defaultHFXGrid(), true
	}
	return steps, true
}

func defaultHFXGrid() []int {
	return []int{0, 5, 10, 15, 20, 25, 30}
}

// Parse reads directives from raw configure file content.
//
// Lines are "key" or "key:value". Parsing is permissive: anything that
// is not blank or a comment becomes a directive, unknown keys included.
func Parse(content, sourcePath string) *Config {
	cfg := &Config{SourcePath: sourcePath, directives: map[string][]string{}}
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if !found {
			cfg.directives[key] = append(cfg.directives[key], "")
			continue
		}
		cfg.directives[key] = append(cfg.directives[key], strings.TrimSpace(value))
	}
	return cfg
}

// load reads and parses the configure file in dir, if present.
func load(dir string) (*Config, bool, error) {
	path := dir + string(os.PathSeparator) + FileName
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(string(b), dir), true, nil
}
