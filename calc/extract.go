// SPDX-License-Identifier: MIT

package calc

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/katalvlaran/gsteval/gateset"
)

// The helpers below turn a (possibly scaled) product G, its derivative
// stacks and a SPAM tuple into probabilities. True quantities are the given
// ones times sc = exp(scale).

// prob returns E·G·rho·sc.
func prob(sp spamOps, G *mat.Dense, sc float64) float64 {
	return scaleSafe(floats.Dot(sp.e.RawVector().Data, mulVec(G, sp.rho)), sc)
}

// stackRho returns, for each block k of stack, block_k·rho.
func stackRho(stack *mat.Dense, n, d int, rho *mat.VecDense) [][]float64 {
	if stack == nil {
		return nil
	}
	flat := mulVec(stack, rho)
	out := make([][]float64, n)
	for k := range out {
		out[k] = flat[k*d : (k+1)*d]
	}

	return out
}

// stackE returns, for each block k of stack, block_kᵀ·e.
func stackE(stack *mat.Dense, n, d int, e *mat.VecDense) [][]float64 {
	if stack == nil {
		return nil
	}
	out := make([][]float64, n)
	for k := range out {
		out[k] = mulVec(block(stack, k, d).T(), e)
	}

	return out
}

// spamDerivs holds one SPAM vector's derivative columns restricted to wrt.
type spamDerivs struct {
	cols  []int       // output positions
	local []int       // local parameter indices
	vecs  [][]float64 // d-vector per column
}

func derivsOf(pim *gateset.ParamIndexMap, id gateset.OpID, v gateset.SPAMVec, wrt []int) spamDerivs {
	local, cols := pim.LocalFilter(id, wrt)
	sd := spamDerivs{cols: cols, local: local}
	if len(local) == 0 {
		return sd
	}
	m := v.Deriv(local)
	sd.vecs = make([][]float64, len(local))
	for j := range local {
		sd.vecs[j] = column(m, j)
	}

	return sd
}

// derivRow adds ∂p/∂θ over the columns wrt into dst (length len(wrt)).
// dG is the (len(wrt)·d)×d stack of ∂G, nil when G does not depend on wrt.
func derivRow(pim *gateset.ParamIndexMap, sp spamOps, G, dG *mat.Dense, wrt []int, sc float64, dst []float64) {
	d := sp.rho.Len()
	e := sp.e.RawVector().Data
	for k, v := range stackRho(dG, len(wrt), d, sp.rho) {
		dst[k] += scaleSafe(floats.Dot(e, v), sc)
	}

	if pd := derivsOf(pim, sp.prepID, sp.prep, wrt); len(pd.cols) > 0 {
		eG := mulVec(G.T(), sp.e)
		for j, col := range pd.cols {
			dst[col] += scaleSafe(floats.Dot(eG, pd.vecs[j]), sc)
		}
	}
	if ed := derivsOf(pim, sp.effID, sp.eff, wrt); len(ed.cols) > 0 {
		gRho := mulVec(G, sp.rho)
		for j, col := range ed.cols {
			dst[col] += scaleSafe(floats.Dot(ed.vecs[j], gRho), sc)
		}
	}
}

// hessRow adds ∂²p/∂θa∂θb over wrt1×wrt2 into dst (row-major, length
// len(wrt1)·len(wrt2)). dG1, dG2 are the derivative stacks over wrt1, wrt2
// and hG the (len(wrt1)·len(wrt2)·d)×d Hessian stack; nil means zero.
func hessRow(pim *gateset.ParamIndexMap, sp spamOps, G, dG1, dG2, hG *mat.Dense, wrt1, wrt2 []int, sc float64, dst []float64) {
	d := sp.rho.Len()
	n1, n2 := len(wrt1), len(wrt2)
	e := sp.e.RawVector().Data
	add := func(a, b int, v float64) { dst[a*n2+b] += scaleSafe(v, sc) }

	for k, v := range stackRho(hG, n1*n2, d, sp.rho) {
		dst[k] += scaleSafe(floats.Dot(e, v), sc)
	}

	p1 := derivsOf(pim, sp.prepID, sp.prep, wrt1)
	p2 := derivsOf(pim, sp.prepID, sp.prep, wrt2)
	e1 := derivsOf(pim, sp.effID, sp.eff, wrt1)
	e2 := derivsOf(pim, sp.effID, sp.eff, wrt2)

	// SPAM parameter against gate parameter. Columns of dG belonging to
	// SPAM parameters are zero blocks, so every b can be visited.
	if len(p1.cols) > 0 || len(e2.cols) > 0 {
		eDG2 := stackE(dG2, n2, d, sp.e)
		for j, a := range p1.cols {
			for b, row := range eDG2 {
				add(a, b, floats.Dot(row, p1.vecs[j]))
			}
		}
		dG1Rho := stackRho(dG1, n1, d, sp.rho)
		for j, b := range e2.cols {
			for a, v := range dG1Rho {
				add(a, b, floats.Dot(e2.vecs[j], v))
			}
		}
	}
	if len(p2.cols) > 0 || len(e1.cols) > 0 {
		eDG1 := stackE(dG1, n1, d, sp.e)
		for j, b := range p2.cols {
			for a, row := range eDG1 {
				add(a, b, floats.Dot(row, p2.vecs[j]))
			}
		}
		dG2Rho := stackRho(dG2, n2, d, sp.rho)
		for j, a := range e1.cols {
			for b, v := range dG2Rho {
				add(a, b, floats.Dot(e1.vecs[j], v))
			}
		}
	}

	// Effect parameter against prep parameter.
	for i, a := range e1.cols {
		for j, b := range p2.cols {
			add(a, b, floats.Dot(e1.vecs[i], mulVec(G, mat.NewVecDense(d, p2.vecs[j]))))
		}
	}
	for i, a := range p1.cols {
		for j, b := range e2.cols {
			add(a, b, floats.Dot(e2.vecs[j], mulVec(G, mat.NewVecDense(d, p1.vecs[i]))))
		}
	}

	if sp.prep.HasNonzeroHessian() && len(p1.local) > 0 && len(p2.local) > 0 {
		h := sp.prep.Hessian(p1.local, p2.local)
		eG := mulVec(G.T(), sp.e)
		for i, a := range p1.cols {
			for j, b := range p2.cols {
				add(a, b, floats.Dot(eG, column(h, i*len(p2.local)+j)))
			}
		}
	}
	if sp.eff.HasNonzeroHessian() && len(e1.local) > 0 && len(e2.local) > 0 {
		h := sp.eff.Hessian(e1.local, e2.local)
		gRho := mulVec(G, sp.rho)
		for i, a := range e1.cols {
			for j, b := range e2.cols {
				add(a, b, floats.Dot(column(h, i*len(e2.local)+j), gRho))
			}
		}
	}
}
