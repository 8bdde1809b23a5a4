// SPDX-License-Identifier: MIT

package calc_test

import (
	"bytes"
	"context"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/katalvlaran/gsteval/calc"
	"github.com/katalvlaran/gsteval/config"
	"github.com/katalvlaran/gsteval/evaltree"
	"github.com/katalvlaran/gsteval/gateset"
	"github.com/katalvlaran/gsteval/gatestring"
)

var spam0 = gatestring.SpamTuple{Prep: "rho0", Effect: "E0"}

// gsList parses compact gate strings such as "GxGyGi" (pairs of characters).
func gsList(specs ...string) []gatestring.GateString {
	out := make([]gatestring.GateString, len(specs))
	for i, s := range specs {
		var labels []gatestring.Label
		for j := 0; j+1 < len(s); j += 2 {
			labels = append(labels, gatestring.Label(s[j:j+2]))
		}
		out[i] = gatestring.New(labels...)
	}

	return out
}

// batch is a mix of empty, short, repeated and shared-prefix strings.
func batch() []gatestring.GateString {
	return gsList("", "Gx", "GxGy", "GxGx", "GyGiGx", "GxGyGxGyGxGy", "GiGxGyGx", "GyGy", "GxGyGi")
}

// perturbed returns Std1QXYI(kind) with every parameter shifted by a
// reproducible amount in [-0.05, 0.05).
func perturbed(t *testing.T, kind gateset.ParamKind, seed uint64) *gateset.GateSet {
	t.Helper()
	gs := gateset.Std1QXYI(kind)
	rng := rand.New(rand.NewPCG(seed, seed+1))
	v := gs.ToVector()
	for i := range v {
		v[i] += 0.1 * (rng.Float64() - 0.5)
	}
	require.NoError(t, gs.FromVector(v))

	return gs
}

// rotationSet is a gate set whose Gx and Gy are nonlinear in their angles.
func rotationSet(t *testing.T) *gateset.GateSet {
	t.Helper()
	gs, err := gateset.New(4)
	require.NoError(t, err)
	rho, err := gateset.NewFullSPAMVec([]float64{0.7071, 0.02, -0.01, 0.7})
	require.NoError(t, err)
	e, err := gateset.NewFullSPAMVec([]float64{0.7071, 0.01, 0.03, -0.69})
	require.NoError(t, err)
	require.NoError(t, gs.AddPrep("rho0", rho))
	require.NoError(t, gs.AddEffect("E0", e))
	require.NoError(t, gs.AddGate("Gx", gateset.NewRotationGate(gateset.AxisX, 0.4)))
	require.NoError(t, gs.AddGate("Gy", gateset.NewRotationGate(gateset.AxisY, 1.1)))

	return gs
}

// quietLogger discards everything below error.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

// bufferLogger returns a logger writing text records into the returned buffer.
func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

// newCalc builds a calculator with a quiet logger.
func newCalc(t *testing.T, kind calc.Kind, gs *gateset.GateSet, opts ...config.Option) calc.Calculator {
	t.Helper()
	cfg, err := config.New(opts...)
	require.NoError(t, err)
	c, err := calc.New(kind, gs, cfg, calc.WithLogger(quietLogger()))
	require.NoError(t, err)

	return c
}

// fillProbs runs BulkFillProbs into a fresh buffer.
func fillProbs(t *testing.T, c calc.Calculator, tr *evaltree.Tree, opts ...calc.FillOption) []float64 {
	t.Helper()
	out := make([]float64, tr.NumFinalElements())
	require.NoError(t, c.BulkFillProbs(context.Background(), out, tr, opts...))

	return out
}

// fillDProbs runs BulkFillDProbs over n columns into a fresh buffer.
func fillDProbs(t *testing.T, c calc.Calculator, tr *evaltree.Tree, n int, opts ...calc.FillOption) []float64 {
	t.Helper()
	out := make([]float64, tr.NumFinalElements()*n)
	require.NoError(t, c.BulkFillDProbs(context.Background(), out, tr, opts...))

	return out
}

// fillHProbs runs BulkFillHProbs over n1×n2 columns into a fresh buffer.
func fillHProbs(t *testing.T, c calc.Calculator, tr *evaltree.Tree, n1, n2 int, opts ...calc.FillOption) []float64 {
	t.Helper()
	out := make([]float64, tr.NumFinalElements()*n1*n2)
	require.NoError(t, c.BulkFillHProbs(context.Background(), out, tr, opts...))

	return out
}

// directProduct folds the gate matrices of s left to right: G(ℓn)···G(ℓ0).
func directProduct(t *testing.T, gs *gateset.GateSet, s gatestring.GateString) *mat.Dense {
	t.Helper()
	d := gs.Dim()
	P := mat.NewDense(d, d, nil)
	for i := 0; i < d; i++ {
		P.Set(i, i, 1)
	}
	for i := 0; i < s.Len(); i++ {
		g, err := gs.Gate(s.At(i))
		require.NoError(t, err)
		var next mat.Dense
		next.Mul(g.Matrix(), P)
		P = &next
	}

	return P
}

// requireSliceNear asserts |want[i]-got[i]| <= tol for every i.
func requireSliceNear(t *testing.T, want, got []float64, tol float64, msgAndArgs ...any) {
	t.Helper()
	require.Len(t, got, len(want), msgAndArgs...)
	require.InDeltaSlice(t, want, got, tol, msgAndArgs...)
}

// requireMatNear asserts ‖want-got‖_F <= tol·max(1, ‖want‖_F).
func requireMatNear(t *testing.T, want, got mat.Matrix, tol float64, msgAndArgs ...any) {
	t.Helper()
	require.NotNil(t, got, msgAndArgs...)
	var diff mat.Dense
	diff.Sub(want, got)
	scale := max(1, mat.Norm(want, 2))
	require.LessOrEqual(t, mat.Norm(&diff, 2), tol*scale, msgAndArgs...)
}

// shifted returns a copy of gs with parameter i moved by h.
func shifted(t *testing.T, gs *gateset.GateSet, i int, h float64) *gateset.GateSet {
	t.Helper()
	cp := gs.Copy()
	v := cp.ToVector()
	v[i] += h
	require.NoError(t, cp.FromVector(v))

	return cp
}

// counterTotal sums every series of the named counter in calc.Registry.
func counterTotal(t *testing.T, name string) float64 {
	t.Helper()
	mfs, err := calc.Registry().Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}

	return total
}
