// SPDX-License-Identifier: MIT

package calc

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/katalvlaran/gsteval/evaltree"
)

// productCache holds the scaled product of every subtree node; the true
// product of node i is prods[i]·exp(scales[i]).
type productCache struct {
	prods  []*mat.Dense
	scales []float64
}

func (c *MatrixCalc) computeProductCache(st *evaltree.SubTree) productCache {
	n, d := st.Size(), c.dim
	pc := productCache{prods: make([]*mat.Dense, n), scales: make([]float64, n)}
	rescaled := 0
	for i := 0; i < n; i++ {
		node := st.Node(i)
		switch node.Kind {
		case evaltree.NodeEmpty:
			pc.prods[i] = identity(d)
		case evaltree.NodeLabel:
			op := c.gates[node.Label]
			P := mat.NewDense(d, d, nil)
			P.Scale(1/op.norm, op.m)
			pc.prods[i], pc.scales[i] = P, math.Log(op.norm)
		default:
			L, R := pc.prods[node.Left], pc.prods[node.Right]
			sL, sR := pc.scales[node.Left], pc.scales[node.Right]
			P := mat.NewDense(d, d, nil)
			P.Mul(L, R)
			s := sL + sR
			if allWithin(P, c.cfg.ProbSmall) {
				nL := max(frob(L), math.Exp(-sL), tiny)
				nR := max(frob(R), math.Exp(-sR), tiny)
				var Ls, Rs mat.Dense
				Ls.Scale(1/nL, L)
				Rs.Scale(1/nR, R)
				P.Mul(&Ls, &Rs)
				s += math.Log(nL) + math.Log(nR)
				rescaled++
			}
			pc.prods[i], pc.scales[i] = P, s
		}
	}
	if rescaled > 0 {
		rescaleTotal.WithLabelValues(c.kind.String()).Add(float64(rescaled))
	}

	return pc
}

// computeDProductCache returns, per node, the (len(wrt)·d)×d stack of
// scaled derivatives (true = stack·exp(scales[i])); nil marks zero.
func (c *MatrixCalc) computeDProductCache(st *evaltree.SubTree, pc productCache, wrt []int) []*mat.Dense {
	n, d, nw := st.Size(), c.dim, len(wrt)
	out := make([]*mat.Dense, n)
	if nw == 0 {
		return out
	}
	var small, wouldScale int
	for i := 0; i < n; i++ {
		node := st.Node(i)
		switch node.Kind {
		case evaltree.NodeEmpty:
		case evaltree.NodeLabel:
			op := c.gates[node.Label]
			local, cols := c.pim.LocalFilter(op.id, wrt)
			if len(local) == 0 {
				continue
			}
			dG := op.g.Deriv(local)
			S := mat.NewDense(nw*d, d, nil)
			for j, col := range cols {
				setBlockFromVec(S, col, d, column(dG, j), 1/op.norm)
			}
			out[i] = S
		default:
			dL, dR := out[node.Left], out[node.Right]
			if dL == nil && dR == nil {
				continue
			}
			L, R := pc.prods[node.Left], pc.prods[node.Right]
			S := mat.NewDense(nw*d, d, nil)
			if dL != nil {
				S.Mul(dL, R)
			}
			if dR != nil {
				var t mat.Dense
				for k := 0; k < nw; k++ {
					b := block(S, k, d)
					t.Mul(L, block(dR, k, d))
					b.Add(b, &t)
				}
			}
			sm, ws := c.rescaleDeriv(S, pc.scales[i]-(pc.scales[node.Left]+pc.scales[node.Right]), c.cfg.DerivSmall)
			small += sm
			wouldScale += ws
			out[i] = S
		}
	}
	c.reportSmall("dprod", small, wouldScale)

	return out
}

// computeHProductCache returns, per node, the (len(wrt1)·len(wrt2)·d)×d
// stack of scaled second derivatives; block a·len(wrt2)+b is ∂²/∂θa∂θb.
// d1 and d2 are the derivative caches over wrt1 and wrt2.
func (c *MatrixCalc) computeHProductCache(st *evaltree.SubTree, pc productCache, d1, d2 []*mat.Dense, wrt1, wrt2 []int) []*mat.Dense {
	n, d := st.Size(), c.dim
	n1, n2 := len(wrt1), len(wrt2)
	out := make([]*mat.Dense, n)
	if n1*n2 == 0 {
		return out
	}
	var small, wouldScale int
	var t mat.Dense
	for i := 0; i < n; i++ {
		node := st.Node(i)
		switch node.Kind {
		case evaltree.NodeEmpty:
		case evaltree.NodeLabel:
			op := c.gates[node.Label]
			if !op.g.HasNonzeroHessian() {
				continue
			}
			local1, cols1 := c.pim.LocalFilter(op.id, wrt1)
			local2, cols2 := c.pim.LocalFilter(op.id, wrt2)
			if len(local1) == 0 || len(local2) == 0 {
				continue
			}
			h := op.g.Hessian(local1, local2)
			S := mat.NewDense(n1*n2*d, d, nil)
			for i1, c1 := range cols1 {
				for i2, c2 := range cols2 {
					setBlockFromVec(S, c1*n2+c2, d, column(h, i1*len(local2)+i2), 1/op.norm)
				}
			}
			out[i] = S
		default:
			l, r := node.Left, node.Right
			hL, hR := out[l], out[r]
			dL1, dR1, dL2, dR2 := d1[l], d1[r], d2[l], d2[r]
			cross1 := dL1 != nil && dR2 != nil
			cross2 := dL2 != nil && dR1 != nil
			if hL == nil && hR == nil && !cross1 && !cross2 {
				continue
			}
			L, R := pc.prods[l], pc.prods[r]
			S := mat.NewDense(n1*n2*d, d, nil)
			if hL != nil {
				S.Mul(hL, R)
			}
			for a := 0; a < n1; a++ {
				for b := 0; b < n2; b++ {
					k := a*n2 + b
					blk := block(S, k, d)
					if hR != nil {
						t.Mul(L, block(hR, k, d))
						blk.Add(blk, &t)
					}
					if cross1 {
						t.Mul(block(dL1, a, d), block(dR2, b, d))
						blk.Add(blk, &t)
					}
					if cross2 {
						t.Mul(block(dL2, b, d), block(dR1, a, d))
						blk.Add(blk, &t)
					}
				}
			}
			sm, ws := c.rescaleDeriv(S, pc.scales[i]-(pc.scales[l]+pc.scales[r]), c.cfg.HessSmall)
			small += sm
			wouldScale += ws
			out[i] = S
		}
	}
	c.reportSmall("hprod", small, wouldScale)

	return out
}

// rescaleDeriv divides S by exp(delta) when the node's scale differs from
// the sum of its children's. It reports whether the result is negligible
// (all within ±thresh) after scaling, or would have been had scaling been
// needed.
func (c *MatrixCalc) rescaleDeriv(S *mat.Dense, delta, thresh float64) (small, wouldScale int) {
	if math.Abs(delta) > c.cfg.ScaleTolerance {
		S.Scale(1/math.Exp(delta), S)
		if allWithin(S, thresh) {
			return 1, 0
		}
		return 0, 0
	}
	if anyNonzero(S) && allWithin(S, thresh) {
		return 0, 1
	}

	return 0, 0
}

func (c *MatrixCalc) reportSmall(order string, small, wouldScale int) {
	if small > 0 {
		smallDerivTotal.WithLabelValues(c.kind.String(), order).Add(float64(small))
		c.logger.Warn("calc: scaled derivative cache small to keep products manageable",
			slog.String("order", order), slog.Int("nodes", small))
	}
	if wouldScale > 0 {
		smallDerivTotal.WithLabelValues(c.kind.String(), order).Add(float64(wouldScale))
		c.logger.Warn("calc: derivative cache small; would have scaled but scale cache left unchanged",
			slog.String("order", order), slog.Int("nodes", wouldScale))
	}
}
