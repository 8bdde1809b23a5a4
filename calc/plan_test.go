// SPDX-License-Identifier: MIT

package calc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/gsteval/calc"
	"github.com/katalvlaran/gsteval/comm"
	"github.com/katalvlaran/gsteval/config"
	"github.com/katalvlaran/gsteval/gateset"
)

func TestEstimateMemUsage(t *testing.T) {
	gs := gateset.Std1QXYI(gateset.ParamFull)
	mx := newCalc(t, calc.KindMatrix, gs)
	mp := newCalc(t, calc.KindMap, gs)

	// cacheSize 10, 56 parameters in 2 and 4 blocks: w1 = 28, w2 = 14.
	cases := []struct {
		c       calc.Calculator
		subcall string
		want    int64
	}{
		{mx, calc.SubcallProbs, 8 * (10*16 + 2*10)},
		{mx, calc.SubcallDProbs, 8 * (10*28*16 + 10*16 + 2*10)},
		{mx, calc.SubcallHProbs, 8 * (10*28*14*16 + 10*42*16 + 10*16 + 2*10)},
		{mx, calc.SubcallHProbsByBlock, 8 * (10*28*14*16 + 10*42*16 + 10*16 + 2*10 + 2*10*2*28*14 + 10*2*42)},
		{mp, calc.SubcallProbs, 8 * (10*4 + 10)},
		{mp, calc.SubcallDProbs, 8 * (10*32 + 10*4 + 10)},
		{mp, calc.SubcallHProbs, 8 * (10*18 + 10*28*14 + 2*10*32 + 10*4 + 10)},
	}
	for _, tc := range cases {
		got, err := tc.c.EstimateMemUsage([]string{tc.subcall}, 10, 3, 1, 2, 4)
		require.NoError(t, err, tc.subcall)
		assert.Equal(t, tc.want, got, "%s %s", tc.c.Kind(), tc.subcall)
	}

	both, err := mx.EstimateMemUsage([]string{calc.SubcallProbs, calc.SubcallDProbs}, 10, 1, 1, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(8*(180+4660)), both)

	_, err = mx.EstimateMemUsage([]string{"bulk_fill_everything"}, 10, 1, 1, 1, 1)
	assert.ErrorIs(t, err, calc.ErrUnknownSubcall)
	_, err = mp.EstimateMemUsage([]string{calc.SubcallHProbsByBlock}, 10, 1, 1, 1, 1)
	assert.ErrorIs(t, err, calc.ErrUnknownSubcall)
}

func TestBulkEvalTree_Splits(t *testing.T) {
	c := newCalc(t, calc.KindMatrix, gateset.Std1QXYI(gateset.ParamFull))
	seqs := batch()

	tr, err := c.BulkEvalTree(seqs, 0, 0, 1)
	require.NoError(t, err)
	assert.False(t, tr.IsSplit())

	tr, err = c.BulkEvalTree(seqs, 4, 0, 2)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(tr.SubTrees()), 4)
	assert.Equal(t, 2, tr.NumSubtreeComms())

	tr, err = c.BulkEvalTree(seqs, 2, 6, 1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(tr.SubTrees()), 2)
	for _, st := range tr.SubTrees() {
		assert.LessOrEqual(t, st.Size(), 6)
	}
}

func TestBulkEvalTreeFromResources_Errors(t *testing.T) {
	c := newCalc(t, calc.KindMatrix, gateset.Std1QXYI(gateset.ParamFull))
	seqs := batch()

	_, err := c.BulkEvalTreeFromResources(seqs, calc.WithPlanMemLimit(0))
	assert.ErrorIs(t, err, calc.ErrInvalidMemLimit)
	_, err = c.BulkEvalTreeFromResources(seqs, calc.WithDistributeMethod("round-robin"))
	assert.ErrorIs(t, err, calc.ErrUnknownMethod)
	_, err = c.BulkEvalTreeFromResources(seqs, calc.WithSubcalls("bulk_fill_everything"))
	assert.ErrorIs(t, err, calc.ErrUnknownSubcall)
	_, err = c.BulkEvalTreeFromResources(seqs, calc.WithSubcalls(calc.SubcallProbs), calc.WithPlanMemLimit(1))
	assert.ErrorIs(t, err, calc.ErrMemoryLimit)
}

func TestBulkEvalTreeFromResources_GateStrings(t *testing.T) {
	c := newCalc(t, calc.KindMatrix, gateset.Std1QXYI(gateset.ParamFull))
	seqs := batch()

	plan, err := c.BulkEvalTreeFromResources(seqs, calc.WithSubcalls(calc.SubcallProbs))
	require.NoError(t, err)
	assert.Equal(t, 1, plan.NumSubtrees)
	assert.Zero(t, plan.ParamBlockSize1)
	assert.Zero(t, plan.MemEstimate)

	world, err := comm.NewWorld(3)
	require.NoError(t, err)
	plan, err = c.BulkEvalTreeFromResources(seqs, calc.WithPlanComm(world[0]), calc.WithSubcalls(calc.SubcallProbs))
	require.NoError(t, err)
	assert.Equal(t, 3, plan.NumSubtrees)
	assert.Equal(t, 3, plan.NumSubtreeComms)
	assert.Equal(t, 3, plan.Tree.NumSubtreeComms())

	// A budget just under the whole tree forces a split that fits.
	whole, err := c.ConstructTree(seqs)
	require.NoError(t, err)
	need, err := c.EstimateMemUsage([]string{calc.SubcallProbs}, whole.Size(), 1, 1, 1, 1)
	require.NoError(t, err)
	limit := need - 8
	plan, err = c.BulkEvalTreeFromResources(seqs, calc.WithSubcalls(calc.SubcallProbs), calc.WithPlanMemLimit(limit))
	require.NoError(t, err)
	assert.Greater(t, plan.NumSubtrees, 1)
	assert.LessOrEqual(t, plan.MemEstimate, limit)
	assert.Positive(t, plan.MemEstimate)
}

func TestBulkEvalTreeFromResources_Deriv(t *testing.T) {
	full := newCalc(t, calc.KindMatrix, gateset.Std1QXYI(gateset.ParamFull))
	seqs := batch()
	world, err := comm.NewWorld(4)
	require.NoError(t, err)

	plan, err := full.BulkEvalTreeFromResources(seqs, calc.WithPlanComm(world[0]),
		calc.WithDistributeMethod(calc.DistributeDeriv), calc.WithSubcalls(calc.SubcallDProbs))
	require.NoError(t, err)
	assert.Equal(t, 4, plan.NumParam1Groups)
	assert.Equal(t, 14, plan.ParamBlockSize1)
	assert.Zero(t, plan.ParamBlockSize2)
	assert.Equal(t, 1, plan.NumSubtrees)

	plan, err = full.BulkEvalTreeFromResources(seqs, calc.WithPlanComm(world[0]),
		calc.WithDistributeMethod(calc.DistributeDeriv), calc.WithSubcalls(calc.SubcallHProbs))
	require.NoError(t, err)
	assert.Equal(t, 4, plan.NumParam1Groups)
	assert.Equal(t, 1, plan.NumParam2Groups)

	// Without parameters the processes go to subtrees instead.
	static := newCalc(t, calc.KindMatrix, gateset.Std1QXYI(gateset.ParamStatic))
	plan, err = static.BulkEvalTreeFromResources(seqs, calc.WithPlanComm(world[0]),
		calc.WithDistributeMethod(calc.DistributeDeriv), calc.WithSubcalls(calc.SubcallDProbs))
	require.NoError(t, err)
	assert.Equal(t, 4, plan.NumSubtrees)
	assert.Equal(t, 4, plan.NumSubtreeComms)
	assert.Zero(t, plan.ParamBlockSize1)
}

// TestBulkEvalTreeFromResources_PlanRuns executes a derivative-distributed
// plan on four ranks.
func TestBulkEvalTreeFromResources_PlanRuns(t *testing.T) {
	gs := perturbed(t, gateset.ParamFull, 31)
	seqs := batch()
	ref := newCalc(t, calc.KindMatrix, gs)
	np := ref.NumParams()
	whole, err := ref.ConstructTree(seqs)
	require.NoError(t, err)
	want := fillDProbs(t, ref, whole, np)

	err = comm.Run(context.Background(), 4, func(ctx context.Context, cm comm.Comm) error {
		c, err := calc.New(calc.KindMatrix, gs, config.Default(), calc.WithLogger(quietLogger()))
		if err != nil {
			return err
		}
		plan, err := c.BulkEvalTreeFromResources(seqs, calc.WithPlanComm(cm),
			calc.WithDistributeMethod(calc.DistributeDeriv), calc.WithSubcalls(calc.SubcallDProbs))
		if err != nil {
			return err
		}
		out := make([]float64, plan.Tree.NumFinalElements()*np)
		if err := c.BulkFillDProbs(ctx, out, plan.Tree, calc.WithComm(cm),
			calc.WithWrtBlockSize(plan.ParamBlockSize1)); err != nil {
			return err
		}
		assert.InDeltaSlice(t, want, out, 1e-12, "rank %d", cm.Rank())

		return nil
	})
	require.NoError(t, err)
}
