// SPDX-License-Identifier: MIT

package calc

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/katalvlaran/gsteval/gateset"
	"github.com/katalvlaran/gsteval/gatestring"
)

// MatrixCalc evaluates gate strings by dense operator products with
// analytic derivatives. It is safe for concurrent use.
type MatrixCalc struct {
	base
	gates map[gatestring.Label]gateOp
}

// gateOp caches one gate's value and leaf scale.
type gateOp struct {
	id   gateset.OpID
	g    gateset.Gate
	m    *mat.Dense
	norm float64 // max(‖G‖_F, 1)
}

func newMatrixCalc(b base) (*MatrixCalc, error) {
	c := &MatrixCalc{base: b, gates: make(map[gatestring.Label]gateOp)}
	for _, l := range b.gs.GateLabels() {
		g, err := b.gs.Gate(l)
		if err != nil {
			return nil, calcErrorf("New", err)
		}
		m := g.Matrix()
		c.gates[l] = gateOp{
			id:   gateset.OpID{Kind: gateset.KindGate, Label: l},
			g:    g,
			m:    m,
			norm: max(frob(m), 1),
		}
	}

	return c, nil
}

// ops resolves the labels of s.
func (c *MatrixCalc) ops(s gatestring.GateString) ([]gateOp, error) {
	out := make([]gateOp, s.Len())
	for i := range out {
		op, ok := c.gates[s.At(i)]
		if !ok {
			return nil, ErrUnknownLabel
		}
		out[i] = op
	}

	return out, nil
}

// Product returns M(s) = G(ℓn)···G(ℓ0).
//
// In scaled mode each gate is divided by max(‖G‖_F, 1) and the running
// product is renormalized whenever all of its entries fall within
// ±ProbSmall; the returned scale is the log of the total factor removed,
// so M(s) = P·exp(scale).
func (c *MatrixCalc) Product(s gatestring.GateString, scaled bool) (*mat.Dense, float64, error) {
	ops, err := c.ops(s)
	if err != nil {
		return nil, 0, calcErrorf("Product", err)
	}
	P := identity(c.dim)
	scale := 0.0
	var next mat.Dense
	for _, op := range ops {
		next.Mul(op.m, P)
		if !scaled {
			P.CloneFrom(&next)
			continue
		}
		P.Scale(1/op.norm, &next)
		scale += math.Log(op.norm)
		if allWithin(P, c.cfg.ProbSmall) {
			nP := max(frob(P), math.Exp(-scale), tiny)
			P.Scale(1/nP, P)
			scale += math.Log(nP)
			rescaleTotal.WithLabelValues(c.kind.String()).Inc()
		}
	}

	return P, scale, nil
}

// partials returns, for each position i of ops, the product of the gates
// applied before it (before[i]) and after it (after[i]).
func partials(ops []gateOp, d int) (before, after []*mat.Dense) {
	n := len(ops)
	before = make([]*mat.Dense, n)
	after = make([]*mat.Dense, n)
	acc := identity(d)
	for i := 0; i < n; i++ {
		before[i] = mat.DenseCopyOf(acc)
		acc.Mul(ops[i].m, before[i])
	}
	acc = identity(d)
	for i := n - 1; i >= 0; i-- {
		after[i] = mat.DenseCopyOf(acc)
		acc.Mul(after[i], ops[i].m)
	}

	return before, after
}

// between returns G(ℓhi-1)···G(ℓlo+1).
func between(ops []gateOp, lo, hi, d int) *mat.Dense {
	P := identity(d)
	var next mat.Dense
	for j := lo + 1; j < hi; j++ {
		next.Mul(ops[j].m, P)
		P.CloneFrom(&next)
	}

	return P
}

// DProduct returns the d²×len(wrt) derivative of vec(M(s)) (row-major vec).
// A nil wrt selects every parameter; the result is nil when there are no
// columns.
//
// Position i contributes vec(A·∂G·B) = (A ⊗ Bᵀ)·vec(∂G) with A the gates
// after i and B the gates before it.
func (c *MatrixCalc) DProduct(s gatestring.GateString, wrt []int) (*mat.Dense, error) {
	ops, err := c.ops(s)
	if err != nil {
		return nil, calcErrorf("DProduct", err)
	}
	if wrt == nil {
		wrt = allParams(c.nparams)
	}
	if len(wrt) == 0 {
		return nil, nil
	}
	d := c.dim
	out := mat.NewDense(d*d, len(wrt), nil)
	before, after := partials(ops, d)
	for i, op := range ops {
		local, cols := c.pim.LocalFilter(op.id, wrt)
		if len(local) == 0 {
			continue
		}
		var k, contrib mat.Dense
		k.Kronecker(after[i], before[i].T())
		contrib.Mul(&k, op.g.Deriv(local))
		for j, col := range cols {
			addCols(out, col, &contrib, j)
		}
	}

	return out, nil
}

// HProduct returns the d²×(len(wrt1)·len(wrt2)) second derivative of
// vec(M(s)); column a·len(wrt2)+b holds ∂²/∂θa∂θb. Nil filters select every
// parameter; the result is nil when there are no columns.
//
// For a wrt1 gate at position m and a wrt2 gate at position l:
//   - m > l: A_m·∂G_m·C·∂G_l·B_l, with C the gates strictly between;
//   - m < l: the mirror image;
//   - m == l: A_m·∂²G_m·B_m, only for gates with a nonzero Hessian.
func (c *MatrixCalc) HProduct(s gatestring.GateString, wrt1, wrt2 []int) (*mat.Dense, error) {
	ops, err := c.ops(s)
	if err != nil {
		return nil, calcErrorf("HProduct", err)
	}
	if wrt1 == nil {
		wrt1 = allParams(c.nparams)
	}
	if wrt2 == nil {
		wrt2 = allParams(c.nparams)
	}
	n2 := len(wrt2)
	if len(wrt1)*n2 == 0 {
		return nil, nil
	}
	d := c.dim
	out := mat.NewDense(d*d, len(wrt1)*n2, nil)
	before, after := partials(ops, d)
	blk := mat.NewDense(d, d, nil)
	for m, opm := range ops {
		local1, cols1 := c.pim.LocalFilter(opm.id, wrt1)
		if len(local1) == 0 {
			continue
		}
		dGm := opm.g.Deriv(local1)
		for l, opl := range ops {
			local2, cols2 := c.pim.LocalFilter(opl.id, wrt2)
			if len(local2) == 0 {
				continue
			}
			switch {
			case m == l:
				if !opm.g.HasNonzeroHessian() {
					continue
				}
				var k, contrib mat.Dense
				k.Kronecker(after[m], before[m].T())
				contrib.Mul(&k, opm.g.Hessian(local1, local2))
				for i1, c1 := range cols1 {
					for i2, c2 := range cols2 {
						addCols(out, c1*n2+c2, &contrib, i1*len(local2)+i2)
					}
				}
			case m > l:
				mid := between(ops, l, m, d)
				dGl := opl.g.Deriv(local2)
				for i1, c1 := range cols1 {
					x := outerFactor(after[m], dGm, i1, mid, blk)
					var k, contrib mat.Dense
					k.Kronecker(x, before[l].T())
					contrib.Mul(&k, dGl)
					for i2, c2 := range cols2 {
						addCols(out, c1*n2+c2, &contrib, i2)
					}
				}
			default:
				mid := between(ops, m, l, d)
				dGl := opl.g.Deriv(local2)
				for i2, c2 := range cols2 {
					x := outerFactor(after[l], dGl, i2, mid, blk)
					var k, contrib mat.Dense
					k.Kronecker(x, before[m].T())
					contrib.Mul(&k, dGm)
					for i1, c1 := range cols1 {
						addCols(out, c1*n2+c2, &contrib, i1)
					}
				}
			}
		}
	}

	return out, nil
}

// outerFactor returns A·reshape(dG[:, j])·C, using blk as scratch.
func outerFactor(A, dG *mat.Dense, j int, C, blk *mat.Dense) *mat.Dense {
	d, _ := A.Dims()
	setBlockFromVec(blk, 0, d, column(dG, j), 1)
	var t mat.Dense
	t.Mul(A, blk)
	x := mat.NewDense(d, d, nil)
	x.Mul(&t, C)

	return x
}

// Pr returns the probability of spam after s.
func (c *MatrixCalc) Pr(spam gatestring.SpamTuple, s gatestring.GateString, clip *ClipRange) (float64, error) {
	sp, err := resolveSpam(c.gs, spam)
	if err != nil {
		return 0, calcErrorf("Pr", err)
	}
	P, scale, err := c.Product(s, true)
	if err != nil {
		return 0, calcErrorf("Pr", err)
	}
	p := prob(sp, P, expScale(scale))
	if math.IsNaN(p) {
		c.warnNaN(s, spam)
	}

	return clip.apply(p), nil
}

// Dpr returns ∂Pr/∂θ over every global parameter.
func (c *MatrixCalc) Dpr(spam gatestring.SpamTuple, s gatestring.GateString) ([]float64, error) {
	sp, err := resolveSpam(c.gs, spam)
	if err != nil {
		return nil, calcErrorf("Dpr", err)
	}
	P, _, err := c.Product(s, false)
	if err != nil {
		return nil, calcErrorf("Dpr", err)
	}
	dP, err := c.DProduct(s, nil)
	if err != nil {
		return nil, calcErrorf("Dpr", err)
	}
	out := make([]float64, c.nparams)
	derivRow(c.pim, sp, P, stackFromVecCols(dP, c.dim), allParams(c.nparams), 1, out)

	return out, nil
}

// Hpr returns the NumParams×NumParams Hessian of Pr, nil without parameters.
func (c *MatrixCalc) Hpr(spam gatestring.SpamTuple, s gatestring.GateString) (*mat.Dense, error) {
	sp, err := resolveSpam(c.gs, spam)
	if err != nil {
		return nil, calcErrorf("Hpr", err)
	}
	if c.nparams == 0 {
		return nil, nil
	}
	P, _, err := c.Product(s, false)
	if err != nil {
		return nil, calcErrorf("Hpr", err)
	}
	dP, err := c.DProduct(s, nil)
	if err != nil {
		return nil, calcErrorf("Hpr", err)
	}
	hP, err := c.HProduct(s, nil, nil)
	if err != nil {
		return nil, calcErrorf("Hpr", err)
	}
	all := allParams(c.nparams)
	dStack := stackFromVecCols(dP, c.dim)
	out := make([]float64, c.nparams*c.nparams)
	hessRow(c.pim, sp, P, dStack, dStack, stackFromVecCols(hP, c.dim), all, all, 1, out)

	return mat.NewDense(c.nparams, c.nparams, out), nil
}

// warnNaN reports a NaN probability.
func (b *base) warnNaN(s gatestring.GateString, spam gatestring.SpamTuple) {
	nanProbTotal.WithLabelValues(b.kind.String()).Inc()
	b.logger.Warn("calc: probability is NaN",
		slog.String("gate_string", s.Truncated(10)),
		slog.String("spam", spam.String()),
	)
}
