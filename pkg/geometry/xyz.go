// Package geometry validates the final structure of completed jobs
// against configured geometric criteria.
//
// Validation is deterministic and side-effect free: it reads structure
// files, never writes to the job directory, and the same structure
// always yields the same verdict.
package geometry

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/3leaps/qcherd/pkg/workspace"
)

// Atom is one atom in an XYZ frame. Coordinates are in Angstrom.
type Atom struct {
	Element string
	X, Y, Z float64
}

// Molecule is one XYZ frame.
type Molecule struct {
	Comment string
	Atoms   []Atom
}

// ErrNoStructure reports that a job has no readable final structure.
var ErrNoStructure = errors.New("no final structure")

// XYZString renders the molecule as a single XYZ frame.
func (m *Molecule) XYZString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\n%s\n", len(m.Atoms), m.Comment)
	for _, a := range m.Atoms {
		fmt.Fprintf(&b, "%-2s % .6f % .6f % .6f\n", a.Element, a.X, a.Y, a.Z)
	}
	return b.String()
}

// Dist returns the distance between two atoms.
func Dist(a, b Atom) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Angle returns the angle in degrees at vertex v spanned by a and b.
func Angle(v, a, b Atom) float64 {
	ax, ay, az := a.X-v.X, a.Y-v.Y, a.Z-v.Z
	bx, by, bz := b.X-v.X, b.Y-v.Y, b.Z-v.Z
	dot := ax*bx + ay*by + az*bz
	na := math.Sqrt(ax*ax + ay*ay + az*az)
	nb := math.Sqrt(bx*bx + by*by + bz*bz)
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (na * nb)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * 180 / math.Pi
}

// ParseXYZ parses all frames of an XYZ stream. Multi-frame files (e.g.
// an optimization trajectory) concatenate frames back to back.
func ParseXYZ(content string) ([]Molecule, error) {
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)

	var frames []Molecule
	for sc.Scan() {
		head := strings.TrimSpace(sc.Text())
		if head == "" {
			continue
		}
		n, err := strconv.Atoi(head)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("bad atom count line %q", head)
		}
		if !sc.Scan() {
			return nil, errors.New("truncated xyz: missing comment line")
		}
		mol := Molecule{Comment: strings.TrimSpace(sc.Text())}
		for i := 0; i < n; i++ {
			if !sc.Scan() {
				return nil, fmt.Errorf("truncated xyz: expected %d atoms, got %d", n, i)
			}
			fields := strings.Fields(sc.Text())
			if len(fields) < 4 {
				return nil, fmt.Errorf("bad atom line %q", sc.Text())
			}
			x, errX := strconv.ParseFloat(fields[1], 64)
			y, errY := strconv.ParseFloat(fields[2], 64)
			z, errZ := strconv.ParseFloat(fields[3], 64)
			if errX != nil || errY != nil || errZ != nil {
				return nil, fmt.Errorf("bad coordinates in %q", sc.Text())
			}
			mol.Atoms = append(mol.Atoms, Atom{Element: fields[0], X: x, Y: y, Z: z})
		}
		frames = append(frames, mol)
	}
	if len(frames) == 0 {
		return nil, errors.New("empty xyz")
	}
	return frames, nil
}

// ReadLastFrame reads the final frame of an XYZ file.
func ReadLastFrame(path string) (*Molecule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	frames, err := ParseXYZ(string(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &frames[len(frames)-1], nil
}

// FinalStructure returns a completed job's optimized geometry.
//
// Geometry optimizations write their trajectory to scr/optim.xyz; the
// last frame is the converged structure. Jobs without a trajectory
// (single points) fall back to the starting structure.
func FinalStructure(job workspace.Job) (*Molecule, error) {
	optim := filepath.Join(job.Dir, "scr", "optim.xyz")
	if _, err := os.Stat(optim); err == nil {
		return ReadLastFrame(optim)
	}
	mol, err := ReadLastFrame(job.StructurePath())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoStructure, err)
	}
	return mol, nil
}
