// SPDX-License-Identifier: MIT

package gateset

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/katalvlaran/gsteval/gatestring"
)

// ParamKind selects how the operators of a standard gate set are parametrized.
type ParamKind int

const (
	ParamFull ParamKind = iota
	ParamTP
	ParamStatic
)

// Std1QXYI returns the single-qubit gate set {Gi, Gx, Gy} in the normalized
// Pauli-product basis, with Gx and Gy the π/2 rotations about X and Y, prep
// rho0 = |0⟩⟨0| and effect E0 = |1⟩⟨1|.
func Std1QXYI(kind ParamKind) *GateSet {
	gs, _ := New(4)
	r := 1 / math.Sqrt2
	must(gs.AddPrep("rho0", makeVec(kind, []float64{r, 0, 0, r})))
	must(gs.AddEffect("E0", makeVec(kind, []float64{r, 0, 0, -r})))
	must(gs.AddGate("Gi", makeGate(kind, identity(4))))
	must(gs.AddGate("Gx", makeGate(kind, NewRotationGate(AxisX, math.Pi/2).Matrix())))
	must(gs.AddGate("Gy", makeGate(kind, NewRotationGate(AxisY, math.Pi/2).Matrix())))

	return gs
}

// Std1QFiducials returns the preparation/measurement fiducials used with Std1QXYI.
func Std1QFiducials() []gatestring.GateString {
	return []gatestring.GateString{
		gatestring.New(),
		gatestring.FromStrings("Gx"),
		gatestring.FromStrings("Gy"),
		gatestring.FromStrings("Gx", "Gx"),
		gatestring.FromStrings("Gx", "Gx", "Gx"),
		gatestring.FromStrings("Gy", "Gy", "Gy"),
	}
}

// Std1QGerms returns the germ set used with Std1QXYI.
func Std1QGerms() []gatestring.GateString {
	return []gatestring.GateString{
		gatestring.FromStrings("Gx"),
		gatestring.FromStrings("Gy"),
		gatestring.FromStrings("Gi"),
		gatestring.FromStrings("Gx", "Gy"),
		gatestring.FromStrings("Gx", "Gy", "Gi"),
		gatestring.FromStrings("Gx", "Gi", "Gy"),
		gatestring.FromStrings("Gx", "Gi", "Gi"),
		gatestring.FromStrings("Gy", "Gi", "Gi"),
		gatestring.FromStrings("Gx", "Gx", "Gi", "Gy"),
		gatestring.FromStrings("Gx", "Gy", "Gy", "Gi"),
		gatestring.FromStrings("Gx", "Gx", "Gy", "Gx", "Gy", "Gy"),
	}
}

// GSTSequences returns fiducial·germ^L·fiducial sequences for every
// max length L in maxLengths, deduplicated in first-seen order. The germ
// power is the largest p with p·len(germ) ≤ L.
func GSTSequences(fiducials, germs []gatestring.GateString, maxLengths []int) []gatestring.GateString {
	seen := make(map[string]bool)
	var out []gatestring.GateString
	add := func(g gatestring.GateString) {
		if !seen[g.Key()] {
			seen[g.Key()] = true
			out = append(out, g)
		}
	}
	for _, prep := range fiducials {
		for _, meas := range fiducials {
			add(prep.Concat(meas))
		}
	}
	for _, L := range maxLengths {
		for _, germ := range germs {
			p := L / germ.Len()
			if p == 0 {
				continue
			}
			body := gatestring.Repeat(germ, p)
			for _, prep := range fiducials {
				for _, meas := range fiducials {
					add(prep.Concat(body).Concat(meas))
				}
			}
		}
	}

	return out
}

func identity(d int) *mat.Dense {
	m := mat.NewDense(d, d, nil)
	for i := 0; i < d; i++ {
		m.Set(i, i, 1)
	}

	return m
}

func makeGate(kind ParamKind, m *mat.Dense) Gate {
	switch kind {
	case ParamTP:
		g, _ := NewTPGate(m)
		return g
	case ParamStatic:
		g, _ := NewStaticGate(m)
		return g
	default:
		g, _ := NewFullGate(m)
		return g
	}
}

func makeVec(kind ParamKind, v []float64) SPAMVec {
	switch kind {
	case ParamTP:
		s, _ := NewTPSPAMVec(v)
		return s
	case ParamStatic:
		s, _ := NewStaticSPAMVec(v)
		return s
	default:
		s, _ := NewFullSPAMVec(v)
		return s
	}
}

// must panics on construction errors of built-in gate sets, which are fixed
// and known valid.
func must(err error) {
	if err != nil {
		panic(err)
	}
}
