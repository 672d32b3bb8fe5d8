package configure

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Resolve finds the configuration applicable to jobDir.
//
// Starting at jobDir and walking upward to baseDir (inclusive), the
// first configure file encountered is authoritative; ancestors are not
// consulted once a file is found. Returns ErrConfigureMissing when no
// configure file exists anywhere on the walk.
//
// Resolve reads from disk on every call. Configure files are edited by
// users between cycles, so results must not be cached.
func Resolve(jobDir, baseDir string) (*Config, error) {
	base := filepath.Clean(baseDir)
	dir := filepath.Clean(jobDir)

	if dir != base && !strings.HasPrefix(dir+string(filepath.Separator), base+string(filepath.Separator)) {
		return nil, fmt.Errorf("job directory %s is outside base %s", jobDir, baseDir)
	}

	for {
		cfg, found, err := load(dir)
		if err != nil {
			return nil, err
		}
		if found {
			return cfg, nil
		}
		if dir == base {
			return nil, fmt.Errorf("%w between %s and %s", ErrConfigureMissing, jobDir, baseDir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, fmt.Errorf("%w between %s and %s", ErrConfigureMissing, jobDir, baseDir)
		}
		dir = parent
	}
}
