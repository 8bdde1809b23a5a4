// SPDX-License-Identifier: MIT

package calc_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/gsteval/calc"
	"github.com/katalvlaran/gsteval/comm"
	"github.com/katalvlaran/gsteval/config"
	"github.com/katalvlaran/gsteval/evaltree"
	"github.com/katalvlaran/gsteval/gateset"
	"github.com/katalvlaran/gsteval/gatestring"
	"github.com/katalvlaran/gsteval/slicetools"
)

// TestBulkFill_SplitMatchesUnsplit splits the batch into every possible
// number of subtrees.
func TestBulkFill_SplitMatchesUnsplit(t *testing.T) {
	gs := perturbed(t, gateset.ParamTP, 21)
	seqs := batch()
	// Finite differences amplify rounding, so the map calculator gets
	// looser derivative tolerances.
	tols := map[calc.Kind][2]float64{calc.KindMatrix: {1e-12, 1e-9}, calc.KindMap: {1e-8, 1e-5}}
	for _, kind := range []calc.Kind{calc.KindMatrix, calc.KindMap} {
		c := newCalc(t, kind, gs)
		np := c.NumParams()
		whole, err := c.ConstructTree(seqs)
		require.NoError(t, err)
		wantP := fillProbs(t, c, whole)
		wantD := fillDProbs(t, c, whole, np)
		wrt := []int{3, 9, 20, 33}
		wantH := fillHProbs(t, c, whole, len(wrt), len(wrt), calc.WithWrtFilters(wrt, wrt))

		for n := 1; n <= len(seqs); n++ {
			tr, err := c.BulkEvalTree(seqs, n, 0, 1)
			require.NoError(t, err)
			msg := fmt.Sprintf("%s with %d subtrees", kind, n)
			requireSliceNear(t, wantP, fillProbs(t, c, tr), 1e-14, msg)
			requireSliceNear(t, wantD, fillDProbs(t, c, tr, np), tols[kind][0], msg)
			requireSliceNear(t, wantH,
				fillHProbs(t, c, tr, len(wrt), len(wrt), calc.WithWrtFilters(wrt, wrt)), tols[kind][1], msg)
		}
	}
}

func TestBulkFill_SplitByMaxSize(t *testing.T) {
	gs := perturbed(t, gateset.ParamFull, 22)
	c := newCalc(t, calc.KindMatrix, gs)
	seqs := batch()
	whole, err := c.ConstructTree(seqs)
	require.NoError(t, err)

	tr, err := c.BulkEvalTree(seqs, 0, 6, 1)
	require.NoError(t, err)
	require.True(t, tr.IsSplit())
	for _, st := range tr.SubTrees() {
		assert.LessOrEqual(t, st.Size(), 6)
	}
	requireSliceNear(t, fillProbs(t, c, whole), fillProbs(t, c, tr), 1e-14)
}

func TestBulkFill_Idempotent(t *testing.T) {
	gs := perturbed(t, gateset.ParamFull, 23)
	for _, kind := range []calc.Kind{calc.KindMatrix, calc.KindMap} {
		c := newCalc(t, kind, gs)
		tr, err := c.BulkEvalTree(batch(), 3, 0, 1)
		require.NoError(t, err)
		assert.Equal(t, fillProbs(t, c, tr), fillProbs(t, c, tr), kind.String())
		np := c.NumParams()
		assert.Equal(t, fillDProbs(t, c, tr, np), fillDProbs(t, c, tr, np), kind.String())
	}
}

// TestBulkFill_ProcessGroups runs every fill on 2 to 4 ranks, with and
// without explicit block sizes, and compares each rank's buffers with a
// serial run.
func TestBulkFill_ProcessGroups(t *testing.T) {
	gs := perturbed(t, gateset.ParamTP, 24)
	seqs := batch()
	ref := newCalc(t, calc.KindMatrix, gs)
	np := ref.NumParams()
	whole, err := ref.ConstructTree(seqs)
	require.NoError(t, err)
	wantP := fillProbs(t, ref, whole)
	wantD := fillDProbs(t, ref, whole, np)
	wantH := fillHProbs(t, ref, whole, np, np)

	type layout struct {
		ranks, subtrees, subtreeComms int
		blk1, blk2                    int
	}
	layouts := []layout{
		{2, 1, 1, 0, 0},
		{2, 3, 2, 0, 0},
		{3, 2, 1, 10, 0},
		{3, 4, 3, 7, 15},
		{4, 2, 2, 0, 0},
		{4, 5, 1, 8, 8},
		{4, 1, 1, 50, 50},
	}
	for _, l := range layouts {
		t.Run(fmt.Sprintf("ranks=%d subtrees=%d comms=%d blk=%d,%d", l.ranks, l.subtrees, l.subtreeComms, l.blk1, l.blk2), func(t *testing.T) {
			err := comm.Run(context.Background(), l.ranks, func(ctx context.Context, cm comm.Comm) error {
				cfg, err := config.New()
				if err != nil {
					return err
				}
				c, err := calc.New(calc.KindMatrix, gs, cfg, calc.WithLogger(quietLogger()))
				if err != nil {
					return err
				}
				tr, err := c.BulkEvalTree(seqs, l.subtrees, 0, l.subtreeComms)
				if err != nil {
					return err
				}
				E := tr.NumFinalElements()

				probs := make([]float64, E)
				if err := c.BulkFillProbs(ctx, probs, tr, calc.WithComm(cm)); err != nil {
					return err
				}
				assert.InDeltaSlice(t, wantP, probs, 1e-14, "rank %d probs", cm.Rank())

				dprobs := make([]float64, E*np)
				probs2 := make([]float64, E)
				if err := c.BulkFillDProbs(ctx, dprobs, tr, calc.WithComm(cm),
					calc.WithWrtBlockSize(l.blk1), calc.WithProbsOut(probs2)); err != nil {
					return err
				}
				assert.InDeltaSlice(t, wantD, dprobs, 1e-12, "rank %d dprobs", cm.Rank())
				assert.InDeltaSlice(t, wantP, probs2, 1e-14, "rank %d probs with dprobs", cm.Rank())

				hprobs := make([]float64, E*np*np)
				d1, d2 := make([]float64, E*np), make([]float64, E*np)
				if err := c.BulkFillHProbs(ctx, hprobs, tr, calc.WithComm(cm),
					calc.WithWrtBlockSizes(l.blk1, l.blk2),
					calc.WithDeriv1Out(d1), calc.WithDeriv2Out(d2)); err != nil {
					return err
				}
				assert.InDeltaSlice(t, wantH, hprobs, 1e-10, "rank %d hprobs", cm.Rank())
				assert.InDeltaSlice(t, wantD, d1, 1e-12, "rank %d deriv1", cm.Rank())
				assert.InDeltaSlice(t, wantD, d2, 1e-12, "rank %d deriv2", cm.Rank())

				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestBulkFill_SmallGatherLimit(t *testing.T) {
	gs := perturbed(t, gateset.ParamFull, 25)
	ref := newCalc(t, calc.KindMatrix, gs)
	np := ref.NumParams()
	whole, err := ref.ConstructTree(batch())
	require.NoError(t, err)
	want := fillDProbs(t, ref, whole, np)

	err = comm.Run(context.Background(), 3, func(ctx context.Context, cm comm.Comm) error {
		c, err := calc.New(calc.KindMatrix, gs, config.Default(), calc.WithLogger(quietLogger()))
		if err != nil {
			return err
		}
		tr, err := c.BulkEvalTree(batch(), 3, 0, 1)
		if err != nil {
			return err
		}
		out := make([]float64, tr.NumFinalElements()*np)
		if err := c.BulkFillDProbs(ctx, out, tr, calc.WithComm(cm), calc.WithGatherMemLimit(int64(np*8))); err != nil {
			return err
		}
		assert.InDeltaSlice(t, want, out, 1e-12, "rank %d", cm.Rank())

		return nil
	})
	require.NoError(t, err)
}

// TestBulkFill_InconsistentRanks gives one rank a different gate set; every
// rank must fail.
func TestBulkFill_InconsistentRanks(t *testing.T) {
	seqs := batch()
	gsets := []*gateset.GateSet{
		gateset.Std1QXYI(gateset.ParamFull),
		perturbed(t, gateset.ParamFull, 26),
		gateset.Std1QXYI(gateset.ParamFull),
	}
	errs := make([]error, 3)
	err := comm.Run(context.Background(), 3, func(ctx context.Context, cm comm.Comm) error {
		gs := gsets[cm.Rank()]
		c, err := calc.New(calc.KindMatrix, gs, config.Default(), calc.WithLogger(quietLogger()))
		if err != nil {
			return err
		}
		tr, err := c.ConstructTree(seqs)
		if err != nil {
			return err
		}
		errs[cm.Rank()] = c.BulkFillProbs(ctx, make([]float64, tr.NumFinalElements()), tr, calc.WithComm(cm))

		return errs[cm.Rank()]
	})
	require.ErrorIs(t, err, calc.ErrInconsistentState)
	for r, e := range errs {
		assert.ErrorIs(t, e, calc.ErrInconsistentState, "rank %d", r)
	}
}

func TestBulkFill_WrtFilters(t *testing.T) {
	gs := perturbed(t, gateset.ParamFull, 27)
	for _, kind := range []calc.Kind{calc.KindMatrix, calc.KindMap} {
		c := newCalc(t, kind, gs)
		np := c.NumParams()
		tr, err := c.ConstructTree(batch())
		require.NoError(t, err)
		E := tr.NumFinalElements()
		full := fillDProbs(t, c, tr, np)

		wrt := []int{30, 2, 17, 55}
		got := fillDProbs(t, c, tr, len(wrt), calc.WithWrtFilter(wrt))
		for r := 0; r < E; r++ {
			for j, col := range wrt {
				assert.InDelta(t, full[r*np+col], got[r*len(wrt)+j], 1e-13, "%s row %d col %d", kind, r, col)
			}
		}

		none := make([]float64, 0)
		require.NoError(t, c.BulkFillDProbs(context.Background(), none, tr, calc.WithWrtFilter([]int{})))

		wrt1, wrt2 := []int{40, 1}, []int{9, 30, 50}
		d1, d2 := make([]float64, E*len(wrt1)), make([]float64, E*len(wrt2))
		fillHProbs(t, c, tr, len(wrt1), len(wrt2), calc.WithWrtFilters(wrt1, wrt2),
			calc.WithDeriv1Out(d1), calc.WithDeriv2Out(d2))
		for r := 0; r < E; r++ {
			for j, col := range wrt1 {
				assert.InDelta(t, full[r*np+col], d1[r*len(wrt1)+j], 1e-13)
			}
			for j, col := range wrt2 {
				assert.InDelta(t, full[r*np+col], d2[r*len(wrt2)+j], 1e-13)
			}
		}
	}
}

func TestBulkFill_ClipAndCheck(t *testing.T) {
	gs := gateset.Std1QXYI(gateset.ParamFull)
	logger, buf := bufferLogger()
	c, err := calc.New(calc.KindMatrix, gs, config.Default(), calc.WithLogger(logger))
	require.NoError(t, err)
	tr, err := c.ConstructTree(gsList("", "Gx", "GxGx"))
	require.NoError(t, err)

	out := make([]float64, 3)
	require.NoError(t, c.BulkFillProbs(context.Background(), out, tr, calc.WithClip(0.1, 0.9), calc.WithCheck(true)))
	assert.InDeltaSlice(t, []float64{0.1, 0.5, 0.9}, out, 1e-14)
	assert.NotContains(t, buf.String(), "disagrees")

	np := c.NumParams()
	out = make([]float64, 3*np)
	require.NoError(t, c.BulkFillDProbs(context.Background(), out, tr, calc.WithCheck(true)))
	assert.NotContains(t, buf.String(), "disagrees")

	assert.Panics(t, func() { calc.WithClip(1, 0) })
	assert.Panics(t, func() { calc.WithWrtBlockSize(-1) })
}

func TestBulkFill_OptionErrors(t *testing.T) {
	gs := gateset.Std1QXYI(gateset.ParamFull)
	c := newCalc(t, calc.KindMatrix, gs)
	np := c.NumParams()
	tr, err := c.ConstructTree(batch())
	require.NoError(t, err)
	E := tr.NumFinalElements()
	ctx := context.Background()

	err = c.BulkFillDProbs(ctx, make([]float64, E*2), tr, calc.WithWrtFilter([]int{1, 2}), calc.WithWrtBlockSize(1))
	assert.ErrorIs(t, err, calc.ErrConflictingOptions)
	err = c.BulkFillHProbs(ctx, make([]float64, E*np*2), tr, calc.WithWrtFilters(nil, []int{1, 2}), calc.WithWrtBlockSizes(0, 1))
	assert.ErrorIs(t, err, calc.ErrConflictingOptions)

	err = c.BulkFillProbs(ctx, make([]float64, E+1), tr)
	assert.ErrorIs(t, err, calc.ErrShapeMismatch)
	err = c.BulkFillProbs(ctx, nil, tr)
	assert.ErrorIs(t, err, calc.ErrShapeMismatch)
	err = c.BulkFillDProbs(ctx, make([]float64, E*np), tr, calc.WithProbsOut(make([]float64, 2)))
	assert.ErrorIs(t, err, calc.ErrShapeMismatch)

	err = c.BulkFillDProbs(ctx, make([]float64, E), tr, calc.WithWrtFilter([]int{np}))
	assert.ErrorIs(t, err, calc.ErrParamIndex)

	err = c.BulkFillProbs(ctx, make([]float64, E), tr, calc.WithMemLimit(1))
	assert.ErrorIs(t, err, calc.ErrMemoryLimit)

	foreign, err := evaltree.Build([]gatestring.Label{"Gx", "Gz"}, gsList("GxGz"),
		[]gatestring.SpamTuple{spam0})
	require.NoError(t, err)
	err = c.BulkFillProbs(ctx, make([]float64, 1), foreign)
	assert.ErrorIs(t, err, calc.ErrTreeMismatch)
	err = c.BulkFillProbs(ctx, make([]float64, 1), nil)
	assert.ErrorIs(t, err, calc.ErrTreeMismatch)
}

func TestMatrixCalc_BulkHProbsByBlock(t *testing.T) {
	gs := perturbed(t, gateset.ParamTP, 28)
	c := newCalc(t, calc.KindMatrix, gs)
	mc := c.(*calc.MatrixCalc)
	np := c.NumParams()
	tr, err := c.ConstructTree(batch())
	require.NoError(t, err)
	E := tr.NumFinalElements()
	hess := fillHProbs(t, c, tr, np, np)
	deriv := fillDProbs(t, c, tr, np)

	pairs := [][2]slicetools.Slice{
		{slicetools.Range(0, 20), slicetools.Range(20, np)},
		{slicetools.Range(20, np), slicetools.Range(0, 20)},
		{slicetools.Range(5, 6), slicetools.Range(5, 6)},
	}
	seen := 0
	err = mc.BulkHProbsByBlock(context.Background(), tr, pairs, true, func(b calc.HessianBlock) error {
		n1, n2 := b.Cols1.Len(), b.Cols2.Len()
		for r := 0; r < E; r++ {
			for a := 0; a < n1; a++ {
				for k := 0; k < n2; k++ {
					i, j := b.Cols1.Start+a, b.Cols2.Start+k
					at := (r*n1+a)*n2 + k
					assert.InDelta(t, hess[(r*np+i)*np+j], b.Hess[at], 1e-12)
					assert.InDelta(t, deriv[r*np+i]*deriv[r*np+j], b.DProbs12[at], 1e-12)
				}
			}
		}
		seen++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, len(pairs), seen)

	err = mc.BulkHProbsByBlock(context.Background(), tr,
		[][2]slicetools.Slice{{slicetools.Range(0, np+1), slicetools.Range(0, 1)}}, false,
		func(calc.HessianBlock) error { return nil })
	assert.ErrorIs(t, err, calc.ErrParamIndex)
}

func TestMatrixCalc_BulkProductRequiresWholeTree(t *testing.T) {
	c := newCalc(t, calc.KindMatrix, gateset.Std1QXYI(gateset.ParamFull))
	tr, err := c.BulkEvalTree(batch(), 3, 0, 1)
	require.NoError(t, err)
	_, _, err = c.(*calc.MatrixCalc).BulkProduct(tr, true)
	assert.ErrorIs(t, err, calc.ErrSplitTree)
}
