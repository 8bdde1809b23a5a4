// SPDX-License-Identifier: MIT

package gateset

import (
	"gonum.org/v1/gonum/mat"
)

// linear is a gate whose parameters are a fixed subset of its matrix
// entries; its Jacobian is constant and its Hessian is zero.
type linear struct {
	d         int
	value     *mat.Dense
	positions []int // flat row-major position of each parameter
}

func newLinear(m *mat.Dense, positions []int) (linear, error) {
	if m == nil {
		return linear{}, ErrNilOperator
	}
	r, c := m.Dims()
	if r != c {
		return linear{}, ErrDimension
	}

	return linear{d: r, value: mat.DenseCopyOf(m), positions: positions}, nil
}

func (g *linear) Dim() int                { return g.d }
func (g *linear) NumParams() int          { return len(g.positions) }
func (g *linear) Matrix() *mat.Dense      { return mat.DenseCopyOf(g.value) }
func (g *linear) HasNonzeroHessian() bool { return false }

func (g *linear) Apply(state *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(g.d, nil)
	out.MulVec(g.value, state)

	return out
}

func (g *linear) Deriv(filter []int) *mat.Dense {
	return unitColumns(g.d*g.d, g.positions, filter)
}

func (g *linear) Hessian(filter1, filter2 []int) *mat.Dense {
	return zeroHessian(g.d*g.d, len(g.positions), filter1, filter2)
}

func (g *linear) Params() []float64 {
	raw := g.value.RawMatrix()
	out := make([]float64, len(g.positions))
	for k, pos := range g.positions {
		out[k] = raw.Data[(pos/g.d)*raw.Stride+pos%g.d]
	}

	return out
}

func (g *linear) setParams(v []float64) error {
	if len(v) != len(g.positions) {
		return gatesetErrorf("SetParams", ErrParamLength)
	}
	for k, pos := range g.positions {
		g.value.Set(pos/g.d, pos%g.d, v[k])
	}

	return nil
}

func (g *linear) clone() linear {
	return linear{d: g.d, value: mat.DenseCopyOf(g.value), positions: g.positions}
}

// FullGate treats every matrix entry as an independent parameter.
type FullGate struct{ linear }

// NewFullGate returns a fully parametrized gate initialized to m.
func NewFullGate(m *mat.Dense) (*FullGate, error) {
	var positions []int
	if m != nil {
		r, _ := m.Dims()
		positions = rangeInts(0, r*r)
	}
	l, err := newLinear(m, positions)
	if err != nil {
		return nil, gatesetErrorf("NewFullGate", err)
	}

	return &FullGate{l}, nil
}

func (g *FullGate) SetParams(v []float64) error { return g.setParams(v) }
func (g *FullGate) Clone() Gate                 { return &FullGate{g.clone()} }

// TPGate is trace preserving: the first row is fixed to (1, 0, …, 0) and the
// remaining d²−d entries are parameters.
type TPGate struct{ linear }

// NewTPGate returns a trace-preserving gate initialized to m; the first row
// of m is overwritten with (1, 0, …, 0).
func NewTPGate(m *mat.Dense) (*TPGate, error) {
	var positions []int
	if m != nil {
		r, _ := m.Dims()
		positions = rangeInts(r, r*r)
	}
	l, err := newLinear(m, positions)
	if err != nil {
		return nil, gatesetErrorf("NewTPGate", err)
	}
	for j := 0; j < l.d; j++ {
		l.value.Set(0, j, 0)
	}
	l.value.Set(0, 0, 1)

	return &TPGate{l}, nil
}

func (g *TPGate) SetParams(v []float64) error { return g.setParams(v) }
func (g *TPGate) Clone() Gate                 { return &TPGate{g.clone()} }

// StaticGate has no parameters.
type StaticGate struct{ linear }

// NewStaticGate returns a fixed gate equal to m.
func NewStaticGate(m *mat.Dense) (*StaticGate, error) {
	l, err := newLinear(m, nil)
	if err != nil {
		return nil, gatesetErrorf("NewStaticGate", err)
	}

	return &StaticGate{l}, nil
}

func (g *StaticGate) SetParams(v []float64) error { return g.setParams(v) }
func (g *StaticGate) Clone() Gate                 { return &StaticGate{g.clone()} }

func rangeInts(start, stop int) []int {
	out := make([]int, 0, stop-start)
	for i := start; i < stop; i++ {
		out = append(out, i)
	}

	return out
}
