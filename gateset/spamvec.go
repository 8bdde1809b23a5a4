// SPDX-License-Identifier: MIT

package gateset

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// linearVec is a SPAM vector whose parameters are a subset of its entries.
type linearVec struct {
	value     *mat.VecDense
	positions []int
}

func newLinearVec(v []float64, positions []int) (linearVec, error) {
	if len(v) == 0 {
		return linearVec{}, ErrInvalidDim
	}

	return linearVec{value: mat.NewVecDense(len(v), append([]float64(nil), v...)), positions: positions}, nil
}

func (v *linearVec) Dim() int                { return v.value.Len() }
func (v *linearVec) NumParams() int          { return len(v.positions) }
func (v *linearVec) HasNonzeroHessian() bool { return false }

func (v *linearVec) Vector() *mat.VecDense {
	return mat.VecDenseCopyOf(v.value)
}

func (v *linearVec) Deriv(filter []int) *mat.Dense {
	return unitColumns(v.value.Len(), v.positions, filter)
}

func (v *linearVec) Hessian(filter1, filter2 []int) *mat.Dense {
	return zeroHessian(v.value.Len(), len(v.positions), filter1, filter2)
}

func (v *linearVec) Params() []float64 {
	out := make([]float64, len(v.positions))
	for k, pos := range v.positions {
		out[k] = v.value.AtVec(pos)
	}

	return out
}

func (v *linearVec) setParams(p []float64) error {
	if len(p) != len(v.positions) {
		return gatesetErrorf("SetParams", ErrParamLength)
	}
	for k, pos := range v.positions {
		v.value.SetVec(pos, p[k])
	}

	return nil
}

func (v *linearVec) clone() linearVec {
	return linearVec{value: mat.VecDenseCopyOf(v.value), positions: v.positions}
}

// FullSPAMVec treats every entry as a parameter.
type FullSPAMVec struct{ linearVec }

// NewFullSPAMVec returns a fully parametrized SPAM vector.
func NewFullSPAMVec(v []float64) (*FullSPAMVec, error) {
	l, err := newLinearVec(v, rangeInts(0, len(v)))
	if err != nil {
		return nil, gatesetErrorf("NewFullSPAMVec", err)
	}

	return &FullSPAMVec{l}, nil
}

func (v *FullSPAMVec) SetParams(p []float64) error { return v.setParams(p) }
func (v *FullSPAMVec) Clone() SPAMVec              { return &FullSPAMVec{v.clone()} }

// TPSPAMVec fixes the first (trace) component to d^(-1/4), the value every
// unit-trace state has in a normalized Pauli-product basis.
type TPSPAMVec struct{ linearVec }

// NewTPSPAMVec returns a trace-preserving SPAM vector; v[0] is overwritten.
func NewTPSPAMVec(v []float64) (*TPSPAMVec, error) {
	l, err := newLinearVec(v, rangeInts(1, len(v)))
	if err != nil {
		return nil, gatesetErrorf("NewTPSPAMVec", err)
	}
	l.value.SetVec(0, math.Pow(float64(len(v)), -0.25))

	return &TPSPAMVec{l}, nil
}

func (v *TPSPAMVec) SetParams(p []float64) error { return v.setParams(p) }
func (v *TPSPAMVec) Clone() SPAMVec              { return &TPSPAMVec{v.clone()} }

// StaticSPAMVec has no parameters.
type StaticSPAMVec struct{ linearVec }

// NewStaticSPAMVec returns a fixed SPAM vector.
func NewStaticSPAMVec(v []float64) (*StaticSPAMVec, error) {
	l, err := newLinearVec(v, nil)
	if err != nil {
		return nil, gatesetErrorf("NewStaticSPAMVec", err)
	}

	return &StaticSPAMVec{l}, nil
}

func (v *StaticSPAMVec) SetParams(p []float64) error { return v.setParams(p) }
func (v *StaticSPAMVec) Clone() SPAMVec              { return &StaticSPAMVec{v.clone()} }
