// SPDX-License-Identifier: MIT

package gateset

import (
	"gonum.org/v1/gonum/mat"
)

// Gate is a parametrized d×d operator.
type Gate interface {
	// Dim is the operator dimension d.
	Dim() int

	// NumParams is the number of local parameters.
	NumParams() int

	// Matrix returns a copy of the current d×d value.
	Matrix() *mat.Dense

	// Apply returns G·state without building a product matrix.
	Apply(state *mat.VecDense) *mat.VecDense

	// Deriv returns the d²×len(filter) Jacobian of vec(G), or nil when empty.
	Deriv(filter []int) *mat.Dense

	// Hessian returns the d²×(len(f1)·len(f2)) second derivative, or nil when empty.
	Hessian(filter1, filter2 []int) *mat.Dense

	// HasNonzeroHessian reports whether G is nonlinear in its own parameters.
	HasNonzeroHessian() bool

	// Params returns a copy of the local parameters.
	Params() []float64

	// SetParams loads local parameters and refreshes the value.
	SetParams(v []float64) error

	// Clone returns an independent deep copy.
	Clone() Gate
}

// SPAMVec is a parametrized state preparation or effect vector of length d.
type SPAMVec interface {
	Dim() int
	NumParams() int
	Vector() *mat.VecDense
	Deriv(filter []int) *mat.Dense
	Hessian(filter1, filter2 []int) *mat.Dense
	HasNonzeroHessian() bool
	Params() []float64
	SetParams(v []float64) error
	Clone() SPAMVec
}

// resolveFilter expands a nil filter to all n local indices.
func resolveFilter(filter []int, n int) []int {
	if filter != nil {
		return filter
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}

	return out
}

// unitColumns builds the rows×len(filter) derivative of a linear operator
// whose parameter p sits at flat position positions[p].
func unitColumns(rows int, positions []int, filter []int) *mat.Dense {
	filter = resolveFilter(filter, len(positions))
	if len(filter) == 0 || rows == 0 {
		return nil
	}
	out := mat.NewDense(rows, len(filter), nil)
	for k, p := range filter {
		out.Set(positions[p], k, 1)
	}

	return out
}

// zeroHessian returns a zero rows×(n1·n2) Hessian, or nil when empty.
func zeroHessian(rows, nparams int, filter1, filter2 []int) *mat.Dense {
	n1 := len(resolveFilter(filter1, nparams))
	n2 := len(resolveFilter(filter2, nparams))
	if n1*n2 == 0 || rows == 0 {
		return nil
	}

	return mat.NewDense(rows, n1*n2, nil)
}

// Vec returns the row-major vectorization of m.
func Vec(m mat.Matrix) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out = append(out, m.At(i, j))
		}
	}

	return out
}
