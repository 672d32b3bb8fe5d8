package workspace

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DiscoverResult is the outcome of one discovery pass.
type DiscoverResult struct {
	// Jobs holds all well-formed jobs, sorted by name for deterministic
	// cycle ordering.
	Jobs []Job

	// Malformed holds directories that match the naming convention
	// partially. They are reported and skipped.
	Malformed []*MalformedError
}

// Options configures a discovery walk.
type Options struct {
	// Ignore is a list of doublestar glob patterns, matched against the
	// slash-separated path relative to the base directory. Matching
	// directories are not descended into.
	Ignore []string
}

// scratch directories created by the calculation engine are never job
// directories and can be large; skip them outright.
var skipDirs = map[string]bool{
	"scr":     true,
	".git":    true,
	"scratch": true,
}

// Discover walks the base directory and returns the jobs currently on
// disk. The walk is read-only. A failure to read the base directory
// itself is fatal; per-directory read errors are skipped.
func Discover(baseDir string, opts Options) (*DiscoverResult, error) {
	base := filepath.Clean(baseDir)
	if _, err := os.Stat(base); err != nil {
		return nil, err
	}

	res := &DiscoverResult{}
	jobByDir := map[string]string{}  // dir path -> job name, for parent lookup
	dirByName := map[string]string{} // job name -> first dir, for collision checks

	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == base {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != base {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			rel, relErr := filepath.Rel(base, path)
			if relErr == nil && ignored(filepath.ToSlash(rel), opts.Ignore) {
				return filepath.SkipDir
			}
		}

		name := d.Name()
		have, missing := jobFiles(path, name)
		if len(have) == 0 {
			return nil // ordinary directory, keep walking
		}
		if len(missing) > 0 {
			res.Malformed = append(res.Malformed, &MalformedError{Dir: path, Missing: missing})
			return nil
		}

		// One job per unique name: the name is the dedup key against
		// the queue snapshot, so a second directory with the same name
		// could be double-submitted within a single cycle.
		if prev, taken := dirByName[name]; taken {
			res.Malformed = append(res.Malformed, &MalformedError{Dir: path, Conflict: prev})
			return nil
		}
		dirByName[name] = path

		jobByDir[path] = name
		res.Jobs = append(res.Jobs, Job{
			Name:   name,
			Dir:    path,
			Parent: jobByDir[parentJobDir(path, base)],
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(res.Jobs, func(i, j int) bool { return res.Jobs[i].Name < res.Jobs[j].Name })
	return res, nil
}

// jobFiles reports which of the three convention files exist in dir.
func jobFiles(dir, name string) (have, missing []string) {
	for _, f := range []string{name + ".in", name + ".xyz", name + "_jobscript"} {
		if _, err := os.Stat(filepath.Join(dir, f)); err == nil {
			have = append(have, f)
		} else {
			missing = append(missing, f)
		}
	}
	if len(have) == 0 { // none of the three: not a job dir at all
		return nil, nil
	}
	return have, missing
}

// parentJobDir returns the nearest ancestor directory of dir (exclusive)
// that could own dir as a derivative, stopping at base.
func parentJobDir(dir, base string) string {
	parent := filepath.Dir(dir)
	if parent == dir || !strings.HasPrefix(parent, base) {
		return ""
	}
	return parent
}

func ignored(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}
