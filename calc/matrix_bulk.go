// SPDX-License-Identifier: MIT

package calc

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/katalvlaran/gsteval/evaltree"
	"github.com/katalvlaran/gsteval/slicetools"
)

// BulkFillProbs writes the probabilities of every (gate string, SPAM tuple)
// row of t into out (length t.NumFinalElements()).
func (c *MatrixCalc) BulkFillProbs(ctx context.Context, out []float64, t *evaltree.Tree, opts ...FillOption) error {
	return c.bulkFill(ctx, c, c.newEvaluator, callProbs, out, t, opts)
}

// BulkFillDProbs writes the Jacobian of every row of t into out, row-major
// with one column per filtered (or global) parameter.
func (c *MatrixCalc) BulkFillDProbs(ctx context.Context, out []float64, t *evaltree.Tree, opts ...FillOption) error {
	return c.bulkFill(ctx, c, c.newEvaluator, callDProbs, out, t, opts)
}

// BulkFillHProbs writes the Hessian of every row of t into out, shaped
// rows × columns1 × columns2.
func (c *MatrixCalc) BulkFillHProbs(ctx context.Context, out []float64, t *evaltree.Tree, opts ...FillOption) error {
	return c.bulkFill(ctx, c, c.newEvaluator, callHProbs, out, t, opts)
}

// wholeTree returns the only subtree of an unsplit tree.
func wholeTree(t *evaltree.Tree) (*evaltree.SubTree, error) {
	if t == nil {
		return nil, ErrTreeMismatch
	}
	if t.IsSplit() {
		return nil, ErrSplitTree
	}

	return t.SubTrees()[0], nil
}

// BulkProduct returns the product of every gate string of t, in input
// order. Scaled products come with their log scales; unscaled ones have
// the scale applied and report 0.
func (c *MatrixCalc) BulkProduct(t *evaltree.Tree, scaled bool) ([]*mat.Dense, []float64, error) {
	st, err := wholeTree(t)
	if err != nil {
		return nil, nil, calcErrorf("BulkProduct", err)
	}
	if _, err := resolveTree(c.gs, t); err != nil {
		return nil, nil, calcErrorf("BulkProduct", err)
	}
	pc := c.computeProductCache(st)
	finals := st.FinalLocalNodes()
	prods := make([]*mat.Dense, len(finals))
	scales := make([]float64, len(finals))
	for i, n := range finals {
		P := mat.DenseCopyOf(pc.prods[n])
		if scaled {
			scales[i] = pc.scales[n]
		} else {
			P.Scale(expScale(pc.scales[n]), P)
		}
		prods[i] = P
	}

	return prods, scales, nil
}

// BulkDProduct returns, per gate string of t, the unscaled d²×len(wrt)
// derivative of vec(M(s)). Nil wrt selects every parameter.
func (c *MatrixCalc) BulkDProduct(t *evaltree.Tree, wrt []int) ([]*mat.Dense, error) {
	st, err := wholeTree(t)
	if err != nil {
		return nil, calcErrorf("BulkDProduct", err)
	}
	if _, err := resolveTree(c.gs, t); err != nil {
		return nil, calcErrorf("BulkDProduct", err)
	}
	if wrt == nil {
		wrt = allParams(c.nparams)
	}
	pc := c.computeProductCache(st)
	dc := c.computeDProductCache(st, pc, wrt)
	finals := st.FinalLocalNodes()
	out := make([]*mat.Dense, len(finals))
	for i, n := range finals {
		out[i] = vecColsFromStack(dc[n], len(wrt), c.dim, expScale(pc.scales[n]))
	}

	return out, nil
}

// BulkHProduct returns, per gate string of t, the unscaled
// d²×(len(wrt1)·len(wrt2)) second derivative of vec(M(s)).
func (c *MatrixCalc) BulkHProduct(t *evaltree.Tree, wrt1, wrt2 []int) ([]*mat.Dense, error) {
	st, err := wholeTree(t)
	if err != nil {
		return nil, calcErrorf("BulkHProduct", err)
	}
	if _, err := resolveTree(c.gs, t); err != nil {
		return nil, calcErrorf("BulkHProduct", err)
	}
	if wrt1 == nil {
		wrt1 = allParams(c.nparams)
	}
	if wrt2 == nil {
		wrt2 = allParams(c.nparams)
	}
	pc := c.computeProductCache(st)
	d1 := c.computeDProductCache(st, pc, wrt1)
	d2 := c.computeDProductCache(st, pc, wrt2)
	hc := c.computeHProductCache(st, pc, d1, d2, wrt1, wrt2)
	finals := st.FinalLocalNodes()
	out := make([]*mat.Dense, len(finals))
	for i, n := range finals {
		out[i] = vecColsFromStack(hc[n], len(wrt1)*len(wrt2), c.dim, expScale(pc.scales[n]))
	}

	return out, nil
}

// HessianBlock is one slab produced by BulkHProbsByBlock.
type HessianBlock struct {
	Cols1, Cols2 slicetools.Slice
	// Hess is rows × Cols1.Len() × Cols2.Len().
	Hess []float64
	// DProbs12 is the outer product of the two Jacobian blocks, same shape
	// as Hess, when requested.
	DProbs12 []float64
}

// BulkHProbsByBlock evaluates the Hessian one column block pair at a time
// and hands each slab to fn, so the full Hessian is never held in memory.
// Every rank of the fill communicator receives every slab.
func (c *MatrixCalc) BulkHProbsByBlock(ctx context.Context, t *evaltree.Tree, pairs [][2]slicetools.Slice, withDProbs12 bool, fn func(HessianBlock) error, opts ...FillOption) error {
	if t == nil {
		return calcErrorf("BulkHProbsByBlock", ErrTreeMismatch)
	}
	E := t.NumFinalElements()
	for _, p := range pairs {
		if p[0].Start < 0 || p[0].Stop > c.nparams || p[1].Start < 0 || p[1].Stop > c.nparams {
			return calcErrorf("BulkHProbsByBlock", ErrParamIndex)
		}
		n1, n2 := p[0].Len(), p[1].Len()
		blk := HessianBlock{Cols1: p[0], Cols2: p[1], Hess: make([]float64, E*n1*n2)}
		callOpts := append(append([]FillOption(nil), opts...), WithWrtFilters(p[0].Indices(), p[1].Indices()))
		var d1, d2 []float64
		if withDProbs12 {
			d1, d2 = make([]float64, E*n1), make([]float64, E*n2)
			callOpts = append(callOpts, WithDeriv1Out(d1), WithDeriv2Out(d2))
		}
		if err := c.BulkFillHProbs(ctx, blk.Hess, t, callOpts...); err != nil {
			return calcErrorf("BulkHProbsByBlock", err)
		}
		if withDProbs12 {
			blk.DProbs12 = make([]float64, E*n1*n2)
			for r := 0; r < E; r++ {
				for a := 0; a < n1; a++ {
					for b := 0; b < n2; b++ {
						blk.DProbs12[(r*n1+a)*n2+b] = d1[r*n1+a] * d2[r*n2+b]
					}
				}
			}
		}
		if err := fn(blk); err != nil {
			return err
		}
	}

	return nil
}
