// SPDX-License-Identifier: MIT

package calc

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// tiny keeps renormalization divisors away from zero.
const tiny = 1e-300

func identity(d int) *mat.Dense {
	m := mat.NewDense(d, d, nil)
	for i := 0; i < d; i++ {
		m.Set(i, i, 1)
	}

	return m
}

// frob is the Frobenius norm.
func frob(m mat.Matrix) float64 { return mat.Norm(m, 2) }

// allWithin reports whether every entry of m lies in (-tol, tol).
func allWithin(m *mat.Dense, tol float64) bool {
	raw := m.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		if floats.Max(row) >= tol || floats.Min(row) <= -tol {
			return false
		}
	}

	return true
}

// anyNonzero reports whether m has a nonzero entry.
func anyNonzero(m *mat.Dense) bool {
	raw := m.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		for _, v := range raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols] {
			if v != 0 {
				return true
			}
		}
	}

	return false
}

// block returns the k-th d×d block of a vertically stacked matrix.
func block(stack *mat.Dense, k, d int) *mat.Dense {
	return stack.Slice(k*d, (k+1)*d, 0, d).(*mat.Dense)
}

// setBlockFromVec writes the row-major d×d reshape of col·scale into block k.
func setBlockFromVec(stack *mat.Dense, k, d int, col []float64, scale float64) {
	b := block(stack, k, d)
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			b.Set(i, j, col[i*d+j]*scale)
		}
	}
}

// stackFromVecCols turns a d²×n matrix of vectorized operators into an
// (n·d)×d stack of blocks. Nil in, nil out.
func stackFromVecCols(m *mat.Dense, d int) *mat.Dense {
	if m == nil {
		return nil
	}
	_, n := m.Dims()
	out := mat.NewDense(n*d, d, nil)
	col := make([]float64, d*d)
	for k := 0; k < n; k++ {
		mat.Col(col, k, m)
		setBlockFromVec(out, k, d, col, 1)
	}

	return out
}

// vecColsFromStack is the inverse of stackFromVecCols, scaling by scale.
func vecColsFromStack(stack *mat.Dense, n, d int, scale float64) *mat.Dense {
	if n == 0 {
		return nil
	}
	out := mat.NewDense(d*d, n, nil)
	if stack == nil {
		return out
	}
	for k := 0; k < n; k++ {
		b := block(stack, k, d)
		for i := 0; i < d; i++ {
			for j := 0; j < d; j++ {
				out.Set(i*d+j, k, scaleSafe(b.At(i, j), scale))
			}
		}
	}

	return out
}

// addCols adds column j of src into column col of dst.
func addCols(dst *mat.Dense, col int, src *mat.Dense, j int) {
	r, _ := dst.Dims()
	for i := 0; i < r; i++ {
		dst.Set(i, col, dst.At(i, col)+src.At(i, j))
	}
}

// scaleSafe returns v·sc with an exact zero staying zero when sc overflows.
func scaleSafe(v, sc float64) float64 {
	if v == 0 {
		return 0
	}

	return v * sc
}

// expScale converts a log scale into its factor.
func expScale(s float64) float64 { return math.Exp(s) }

// mulVec returns m·v as a fresh slice.
func mulVec(m mat.Matrix, v mat.Vector) []float64 {
	r, _ := m.Dims()
	out := mat.NewVecDense(r, nil)
	out.MulVec(m, v)

	return out.RawVector().Data
}

// column returns column j of m as a fresh slice.
func column(m *mat.Dense, j int) []float64 { return mat.Col(nil, j, m) }
