package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeJob creates a well-formed job directory under base.
func writeJob(t *testing.T, base, name string) string {
	t.Helper()
	dir := filepath.Join(base, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, f := range []string{name + ".in", name + ".xyz", name + "_jobscript"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("x\n"), 0o644))
	}
	return dir
}

func TestDiscover_FindsJobsByConvention(t *testing.T) {
	base := t.TempDir()
	writeJob(t, base, "fe_oct_2_water_6")
	writeJob(t, base, "mn_oct_2_cl_2")

	// A directory with unrelated content is not a job.
	require.NoError(t, os.MkdirAll(filepath.Join(base, "notes"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "notes", "readme.txt"), []byte("n"), 0o644))

	res, err := Discover(base, Options{})
	require.NoError(t, err)
	require.Len(t, res.Jobs, 2)
	assert.Equal(t, "fe_oct_2_water_6", res.Jobs[0].Name)
	assert.Equal(t, "mn_oct_2_cl_2", res.Jobs[1].Name)
	assert.Empty(t, res.Malformed)
}

func TestDiscover_MalformedReportedAndSkipped(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "broken_job")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	// Input present, structure and jobscript missing.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken_job.in"), []byte("x"), 0o644))

	res, err := Discover(base, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Jobs)
	require.Len(t, res.Malformed, 1)
	assert.Contains(t, res.Malformed[0].Error(), "broken_job")
	assert.ErrorIs(t, res.Malformed[0], ErrMalformedJobDir)
}

func TestDiscover_NestedDerivativeHasParent(t *testing.T) {
	base := t.TempDir()
	parentDir := writeJob(t, base, "fe_oct_2")
	childDir := filepath.Join(parentDir, "fe_oct_2_thermo")
	require.NoError(t, os.MkdirAll(childDir, 0o755))
	for _, f := range []string{"fe_oct_2_thermo.in", "fe_oct_2_thermo.xyz", "fe_oct_2_thermo_jobscript"} {
		require.NoError(t, os.WriteFile(filepath.Join(childDir, f), []byte("x"), 0o644))
	}

	res, err := Discover(base, Options{})
	require.NoError(t, err)
	require.Len(t, res.Jobs, 2)

	byName := map[string]Job{}
	for _, j := range res.Jobs {
		byName[j.Name] = j
	}
	assert.Equal(t, "fe_oct_2", byName["fe_oct_2_thermo"].Parent)
	assert.Equal(t, "", byName["fe_oct_2"].Parent)
}

func TestDiscover_SkipsScratchAndIgnoreGlobs(t *testing.T) {
	base := t.TempDir()
	jobDir := writeJob(t, base, "co_oct_3")

	// A job-shaped directory inside scr/ must not be discovered.
	scr := filepath.Join(jobDir, "scr")
	require.NoError(t, os.MkdirAll(filepath.Join(scr, "co_oct_3"), 0o755))

	writeJob(t, base, "old_run")

	res, err := Discover(base, Options{Ignore: []string{"old_run"}})
	require.NoError(t, err)
	require.Len(t, res.Jobs, 1)
	assert.Equal(t, "co_oct_3", res.Jobs[0].Name)
}

func TestDiscover_MissingBaseIsFatal(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "nope"), Options{})
	require.Error(t, err)
}

// Job names key queue dedup, so two directories sharing a name would
// both classify as unqueued against the same snapshot and both be
// submitted. The walk keeps the first and reports the second.
func TestDiscover_DuplicateNameReportedAsMalformed(t *testing.T) {
	base := t.TempDir()
	first := writeJob(t, base, "fe_oct_2")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "setB"), 0o755))
	second := writeJob(t, filepath.Join(base, "setB"), "fe_oct_2")

	res, err := Discover(base, Options{})
	require.NoError(t, err)
	require.Len(t, res.Jobs, 1)
	assert.Equal(t, first, res.Jobs[0].Dir)

	require.Len(t, res.Malformed, 1)
	assert.Equal(t, second, res.Malformed[0].Dir)
	assert.Equal(t, first, res.Malformed[0].Conflict)
	assert.ErrorIs(t, res.Malformed[0], ErrMalformedJobDir)
	assert.Contains(t, res.Malformed[0].Error(), "already in use")
}
