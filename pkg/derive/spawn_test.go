package derive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/qcherd/pkg/configure"
	"github.com/3leaps/qcherd/pkg/workspace"
)

const parentInput = `run minimize
coordinates fe_oct_2.xyz
method ub3lyp
basis lacvps_ecp
end
`

const parentJobscript = `#!/bin/bash
#SBATCH -J fe_oct_2
#SBATCH -t 96:00:00
terachem fe_oct_2.in > fe_oct_2.out
`

func writeParent(t *testing.T, base string) workspace.Job {
	t.Helper()
	job := workspace.Job{Name: "fe_oct_2", Dir: filepath.Join(base, "fe_oct_2")}
	require.NoError(t, os.MkdirAll(job.Dir, 0o755))
	require.NoError(t, os.WriteFile(job.InputPath(), []byte(parentInput), 0o644))
	require.NoError(t, os.WriteFile(job.StructurePath(), []byte("1\nstart\nFe 0 0 0\n"), 0o644))
	require.NoError(t, os.WriteFile(job.JobscriptPath(), []byte(parentJobscript), 0o644))
	return job
}

func TestSpawn_ThermoChild(t *testing.T) {
	parent := writeParent(t, t.TempDir())
	cfg := configure.Parse("thermo\n", "/tree")

	created, err := Spawn(parent, cfg)
	require.NoError(t, err)
	require.Len(t, created, 1)

	child := created[0].Job
	assert.Equal(t, "fe_oct_2_thermo", child.Name)
	assert.Equal(t, "fe_oct_2", child.Parent)
	assert.Equal(t, KindThermo, created[0].Kind)

	in, err := os.ReadFile(child.InputPath())
	require.NoError(t, err)
	assert.Contains(t, string(in), "run frequencies")
	assert.Contains(t, string(in), "coordinates fe_oct_2_thermo.xyz")
	assert.NotContains(t, string(in), "run minimize")

	js, err := os.ReadFile(child.JobscriptPath())
	require.NoError(t, err)
	assert.Contains(t, string(js), "#SBATCH -J fe_oct_2_thermo")

	xyz, err := os.ReadFile(child.StructurePath())
	require.NoError(t, err)
	assert.Contains(t, string(xyz), "Fe")
}

func TestSpawn_SolventInsertsDirectives(t *testing.T) {
	parent := writeParent(t, t.TempDir())
	cfg := configure.Parse("solvent:35.7\n", "/tree")

	created, err := Spawn(parent, cfg)
	require.NoError(t, err)
	require.Len(t, created, 1)

	in, err := os.ReadFile(created[0].Job.InputPath())
	require.NoError(t, err)
	assert.Contains(t, string(in), "pcm cosmo")
	assert.Contains(t, string(in), "epsilon 35.7")
	// Inserted before the terminating end keyword.
	assert.Less(t, strings.Index(string(in), "epsilon"), strings.Index(string(in), "end"))
}

func TestSpawn_HFXResampleGrid(t *testing.T) {
	parent := writeParent(t, t.TempDir())
	cfg := configure.Parse("HFX_resample:0,15,30\n", "/tree")

	created, err := Spawn(parent, cfg)
	require.NoError(t, err)
	require.Len(t, created, 3)

	names := []string{created[0].Job.Name, created[1].Job.Name, created[2].Job.Name}
	assert.Equal(t, []string{"fe_oct_2_HFX00", "fe_oct_2_HFX15", "fe_oct_2_HFX30"}, names)

	in, err := os.ReadFile(created[1].Job.InputPath())
	require.NoError(t, err)
	assert.Contains(t, string(in), "hfx 0.15")
}

func TestSpawn_Idempotent(t *testing.T) {
	parent := writeParent(t, t.TempDir())
	cfg := configure.Parse("thermo\nsolvent:78.4\n", "/tree")

	first, err := Spawn(parent, cfg)
	require.NoError(t, err)
	require.Len(t, first, 2)

	// Second spawn with the parent otherwise unchanged creates nothing.
	second, err := Spawn(parent, cfg)
	require.NoError(t, err)
	assert.Empty(t, second)

	entries, err := os.ReadDir(parent.Dir)
	require.NoError(t, err)
	dirs := 0
	for _, e := range entries {
		if e.IsDir() {
			dirs++
		}
	}
	assert.Equal(t, 2, dirs)
}

func TestSpawn_LiveConfigEditAddsExactlyOne(t *testing.T) {
	parent := writeParent(t, t.TempDir())

	// Cycle N: thermo only.
	_, err := Spawn(parent, configure.Parse("thermo\n", "/tree"))
	require.NoError(t, err)

	// Cycle N+1: configure edited to add solvent.
	edited := configure.Parse("thermo\nsolvent:78.4\n", "/tree")
	created, err := Spawn(parent, edited)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, KindSolvent, created[0].Kind)

	// Cycle N+2: nothing new.
	created, err = Spawn(parent, edited)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestAppliedAndPending(t *testing.T) {
	parent := writeParent(t, t.TempDir())
	cfg := configure.Parse("thermo\nsolvent:78.4\n", "/tree")

	assert.True(t, Pending(parent, cfg))
	assert.Empty(t, Applied(parent, cfg))

	_, err := Spawn(parent, cfg)
	require.NoError(t, err)

	applied := Applied(parent, cfg)
	assert.True(t, applied[KindThermo])
	assert.True(t, applied[KindSolvent])
	assert.False(t, Pending(parent, cfg))
}

func TestSpawn_NoRulesNoChildren(t *testing.T) {
	parent := writeParent(t, t.TempDir())
	created, err := Spawn(parent, configure.Parse("geo_check:oct\n", "/tree"))
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestDerivative(t *testing.T) {
	tests := []struct {
		job  workspace.Job
		want bool
	}{
		{workspace.Job{Name: "fe_oct_2"}, false},
		{workspace.Job{Name: "fe_oct_2_thermo", Parent: "fe_oct_2"}, true},
		{workspace.Job{Name: "fe_oct_2_thermo"}, true},
		{workspace.Job{Name: "fe_oct_2_solvent"}, true},
		{workspace.Job{Name: "fe_oct_2_HFX15"}, true},
		{workspace.Job{Name: "fe_oct_2_HFXAB"}, false},
		{workspace.Job{Name: "anything", Parent: "fe_oct_2"}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Derivative(tt.job), tt.job.Name)
	}
}

// A completed child resolves the same configure as its parent; rule
// expansion must stop at it or every completion would add a
// generation.
func TestSpawn_ChildNeverSpawnsGrandchildren(t *testing.T) {
	parent := writeParent(t, t.TempDir())
	cfg := configure.Parse("thermo\nsolvent\n", "/tree")

	created, err := Spawn(parent, cfg)
	require.NoError(t, err)
	require.Len(t, created, 2)

	for _, c := range created {
		assert.False(t, Pending(c.Job, cfg))
		grand, err := Spawn(c.Job, cfg)
		require.NoError(t, err)
		assert.Empty(t, grand)
	}
	assert.NoDirExists(t, filepath.Join(parent.Dir, "fe_oct_2_thermo", "fe_oct_2_thermo_thermo"))
}
