package geometry

import (
	"fmt"
	"math"
	"sort"
)

// Octahedral acceptance thresholds, matched to the stock cutoffs used
// for first-row transition metal complexes.
const (
	// octMaxAngleDeviation is the largest tolerated deviation of any
	// ligand-metal-ligand angle from ideal 90/180 degrees.
	octMaxAngleDeviation = 16.0

	// octMaxRelDistSpread is the largest tolerated relative spread of
	// the six metal-ligand bond lengths, (max-min)/mean.
	octMaxRelDistSpread = 0.30

	// octBondCutoff is the metal-ligand distance ceiling when picking
	// coordinating atoms, in Angstrom.
	octBondCutoff = 3.0
)

// transition metals qcherd trees actually contain, plus the rest of
// rows one to three for completeness.
var metals = map[string]bool{
	"Sc": true, "Ti": true, "V": true, "Cr": true, "Mn": true,
	"Fe": true, "Co": true, "Ni": true, "Cu": true, "Zn": true,
	"Y": true, "Zr": true, "Nb": true, "Mo": true, "Tc": true,
	"Ru": true, "Rh": true, "Pd": true, "Ag": true, "Cd": true,
	"Hf": true, "Ta": true, "W": true, "Re": true, "Os": true,
	"Ir": true, "Pt": true, "Au": true, "Hg": true,
}

// checkOct verifies octahedral coordination around the metal center.
//
// The six nearest atoms within the bond cutoff are taken as the
// coordination shell. Their fifteen pairwise angles at the metal are
// compared against the ideal values (twelve cis at 90, three trans at
// 180); any angle deviating more than the threshold, a spread of bond
// lengths beyond the relative tolerance, or a shell of the wrong size
// rejects the structure.
func checkOct(mol *Molecule) Result {
	mi := metalIndex(mol)
	if mi < 0 {
		return Result{Verdict: Rejected, Reason: "no metal center found"}
	}
	metal := mol.Atoms[mi]

	type neighbor struct {
		atom Atom
		dist float64
	}
	var shell []neighbor
	for i, a := range mol.Atoms {
		if i == mi {
			continue
		}
		if d := Dist(metal, a); d <= octBondCutoff {
			shell = append(shell, neighbor{atom: a, dist: d})
		}
	}
	sort.Slice(shell, func(i, j int) bool { return shell[i].dist < shell[j].dist })

	if len(shell) < 6 {
		return Result{Verdict: Rejected, Reason: fmt.Sprintf("coordination number %d, want 6", len(shell))}
	}
	shell = shell[:6]

	// Bond length spread.
	minD, maxD, sum := shell[0].dist, shell[0].dist, 0.0
	for _, n := range shell {
		minD = math.Min(minD, n.dist)
		maxD = math.Max(maxD, n.dist)
		sum += n.dist
	}
	relSpread := (maxD - minD) / (sum / 6)

	// Worst angular deviation from ideal 90/180.
	maxDevi := 0.0
	for i := 0; i < 6; i++ {
		for j := i + 1; j < 6; j++ {
			ang := Angle(metal, shell[i].atom, shell[j].atom)
			devi := math.Min(math.Abs(ang-90), math.Abs(ang-180))
			maxDevi = math.Max(maxDevi, devi)
		}
	}

	res := Result{
		Metrics: map[string]float64{
			"oct_angle_devi_max":    maxDevi,
			"dist_del_all_relative": relSpread,
		},
	}
	switch {
	case maxDevi > octMaxAngleDeviation:
		res.Verdict = Rejected
		res.Reason = fmt.Sprintf("angle deviation %.1f exceeds %.1f", maxDevi, octMaxAngleDeviation)
	case relSpread > octMaxRelDistSpread:
		res.Verdict = Rejected
		res.Reason = fmt.Sprintf("bond length spread %.2f exceeds %.2f", relSpread, octMaxRelDistSpread)
	default:
		res.Verdict = Approved
	}
	return res
}

// metalIndex returns the index of the first transition metal atom, or
// -1 when the structure has none.
func metalIndex(mol *Molecule) int {
	for i, a := range mol.Atoms {
		if metals[a.Element] {
			return i
		}
	}
	return -1
}
