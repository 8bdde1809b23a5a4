// SPDX-License-Identifier: MIT

package calc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/katalvlaran/gsteval/calc"
	"github.com/katalvlaran/gsteval/gateset"
)

func TestMapCalc_ProbsAgreeWithMatrix(t *testing.T) {
	for name, gs := range map[string]*gateset.GateSet{
		"full":     perturbed(t, gateset.ParamFull, 11),
		"static":   gateset.Std1QXYI(gateset.ParamStatic),
		"rotation": rotationSet(t),
	} {
		t.Run(name, func(t *testing.T) {
			mx := newCalc(t, calc.KindMatrix, gs)
			mp := newCalc(t, calc.KindMap, gs)
			seqs := batch()
			if name == "rotation" {
				seqs = gsList("", "Gx", "GxGy", "GyGyGx", "GxGxGxGyGx")
			}
			tr, err := mx.ConstructTree(seqs)
			require.NoError(t, err)
			requireSliceNear(t, fillProbs(t, mx, tr), fillProbs(t, mp, tr), 1e-12)
			for _, s := range seqs {
				want, err := mx.Pr(spam0, s, nil)
				require.NoError(t, err)
				got, err := mp.Pr(spam0, s, nil)
				require.NoError(t, err)
				assert.InDelta(t, want, got, 1e-12, s.String())
			}
		})
	}
}

// TestMapCalc_DerivativesAgreeWithMatrix compares finite differences with
// the analytic derivatives, for a linear and a nonlinear gate set.
func TestMapCalc_DerivativesAgreeWithMatrix(t *testing.T) {
	for name, gs := range map[string]*gateset.GateSet{
		"tp":       perturbed(t, gateset.ParamTP, 12),
		"rotation": rotationSet(t),
	} {
		t.Run(name, func(t *testing.T) {
			mx := newCalc(t, calc.KindMatrix, gs)
			mp := newCalc(t, calc.KindMap, gs)
			labels := gs.GateLabels()
			seqs := gsList("")
			seqs = append(seqs, gsList(string(labels[1])+string(labels[0])+string(labels[1]))...)
			seqs = append(seqs, gsList(string(labels[0])+string(labels[0])+string(labels[len(labels)-1]))...)
			for _, s := range seqs {
				want, err := mx.Dpr(spam0, s)
				require.NoError(t, err)
				got, err := mp.Dpr(spam0, s)
				require.NoError(t, err)
				requireSliceNear(t, want, got, 1e-5, s.String())

				wantH, err := mx.Hpr(spam0, s)
				require.NoError(t, err)
				gotH, err := mp.Hpr(spam0, s)
				require.NoError(t, err)
				requireMatNear(t, wantH, gotH, 1e-3, s.String())
			}
		})
	}
}

func TestMapCalc_BulkFillsAgreeWithMatrix(t *testing.T) {
	gs := perturbed(t, gateset.ParamFull, 13)
	mx := newCalc(t, calc.KindMatrix, gs)
	mp := newCalc(t, calc.KindMap, gs)
	np := mx.NumParams()
	tr, err := mx.ConstructTree(batch())
	require.NoError(t, err)

	requireSliceNear(t, fillDProbs(t, mx, tr, np), fillDProbs(t, mp, tr, np), 1e-5)

	wrt1, wrt2 := []int{0, 7, 10, 25, 47}, []int{2, 25, 38, 55}
	opts := []calc.FillOption{calc.WithWrtFilters(wrt1, wrt2)}
	requireSliceNear(t,
		fillHProbs(t, mx, tr, len(wrt1), len(wrt2), opts...),
		fillHProbs(t, mp, tr, len(wrt1), len(wrt2), opts...),
		1e-3)
}

func TestMapCalc_ProductUnsupported(t *testing.T) {
	mp := newCalc(t, calc.KindMap, gateset.Std1QXYI(gateset.ParamFull))
	assert.Equal(t, calc.KindMap, mp.Kind())
	_, _, err := mp.Product(gsList("Gx")[0], true)
	assert.ErrorIs(t, err, calc.ErrUnsupported)
}

func TestMapCalc_PropagateState(t *testing.T) {
	gs := perturbed(t, gateset.ParamFull, 14)
	mp := newCalc(t, calc.KindMap, gs).(*calc.MapCalc)
	rho := mat.NewVecDense(4, []float64{0.7, 0.1, -0.2, 0.6})
	s := gsList("GxGyGiGx")[0]

	got, err := mp.PropagateState(rho, s)
	require.NoError(t, err)
	var want mat.VecDense
	want.MulVec(directProduct(t, gs, s), rho)
	requireMatNear(t, &want, got, 1e-13)
	assert.Equal(t, 0.7, rho.AtVec(0), "input state must not change")

	_, err = mp.PropagateState(rho, gsList("Gz")[0])
	assert.ErrorIs(t, err, calc.ErrUnknownLabel)
}

// TestMapCalc_ConcurrentDerivatives runs finite differences from several
// goroutines against one calculator.
func TestMapCalc_ConcurrentDerivatives(t *testing.T) {
	gs := perturbed(t, gateset.ParamTP, 15)
	mp := newCalc(t, calc.KindMap, gs)
	s := gsList("GxGyGx")[0]
	want, err := mp.Dpr(spam0, s)
	require.NoError(t, err)

	got := make([][]float64, 8)
	var g errgroup.Group
	for i := range got {
		g.Go(func() error {
			dp, err := mp.Dpr(spam0, s)
			got[i] = dp
			return err
		})
	}
	require.NoError(t, g.Wait())
	for _, dp := range got {
		assert.Equal(t, want, dp)
	}
}
