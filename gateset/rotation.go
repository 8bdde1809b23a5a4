// SPDX-License-Identifier: MIT

package gateset

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Axis selects the rotation axis of a RotationGate.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// RotationGate is the 4×4 Pauli transfer matrix of a single-qubit rotation
// by one angle θ about a fixed axis:
//
//	G(θ) = A + cos θ·C + sin θ·S
//
// It is nonlinear in θ, so it declares a nonzero Hessian.
type RotationGate struct {
	axis    Axis
	theta   float64
	a, c, s *mat.Dense
}

// NewRotationGate returns a rotation by theta about axis.
func NewRotationGate(axis Axis, theta float64) *RotationGate {
	a := mat.NewDense(4, 4, nil)
	c := mat.NewDense(4, 4, nil)
	s := mat.NewDense(4, 4, nil)
	a.Set(0, 0, 1)
	// (i, j) index the two Pauli components that rotate into each other.
	var i, j int
	switch axis {
	case AxisX:
		a.Set(1, 1, 1)
		i, j = 2, 3
	case AxisY:
		a.Set(2, 2, 1)
		i, j = 3, 1
	default:
		a.Set(3, 3, 1)
		i, j = 1, 2
	}
	c.Set(i, i, 1)
	c.Set(j, j, 1)
	s.Set(i, j, -1)
	s.Set(j, i, 1)

	return &RotationGate{axis: axis, theta: theta, a: a, c: c, s: s}
}

func (g *RotationGate) Dim() int                { return 4 }
func (g *RotationGate) NumParams() int          { return 1 }
func (g *RotationGate) HasNonzeroHessian() bool { return true }
func (g *RotationGate) Params() []float64       { return []float64{g.theta} }

// Angle returns θ.
func (g *RotationGate) Angle() float64 { return g.theta }

// combine returns A·wa + C·wc + S·ws.
func (g *RotationGate) combine(wa, wc, ws float64) *mat.Dense {
	out := mat.NewDense(4, 4, nil)
	var tmp mat.Dense
	if wa != 0 {
		out.Scale(wa, g.a)
	}
	tmp.Scale(wc, g.c)
	out.Add(out, &tmp)
	tmp.Scale(ws, g.s)
	out.Add(out, &tmp)

	return out
}

func (g *RotationGate) Matrix() *mat.Dense {
	return g.combine(1, math.Cos(g.theta), math.Sin(g.theta))
}

func (g *RotationGate) Apply(state *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(4, nil)
	out.MulVec(g.Matrix(), state)

	return out
}

func (g *RotationGate) Deriv(filter []int) *mat.Dense {
	filter = resolveFilter(filter, 1)
	if len(filter) == 0 {
		return nil
	}
	d := g.combine(0, -math.Sin(g.theta), math.Cos(g.theta))

	return mat.NewDense(16, 1, Vec(d))
}

func (g *RotationGate) Hessian(filter1, filter2 []int) *mat.Dense {
	if len(resolveFilter(filter1, 1))*len(resolveFilter(filter2, 1)) == 0 {
		return nil
	}
	h := g.combine(0, -math.Cos(g.theta), -math.Sin(g.theta))

	return mat.NewDense(16, 1, Vec(h))
}

func (g *RotationGate) SetParams(v []float64) error {
	if len(v) != 1 {
		return gatesetErrorf("SetParams", ErrParamLength)
	}
	g.theta = v[0]

	return nil
}

func (g *RotationGate) Clone() Gate {
	cp := *g
	return &cp
}
