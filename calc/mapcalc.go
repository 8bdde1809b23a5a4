// SPDX-License-Identifier: MIT

package calc

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/katalvlaran/gsteval/evaltree"
	"github.com/katalvlaran/gsteval/gateset"
	"github.com/katalvlaran/gsteval/gatestring"
)

// MapCalc evaluates gate strings by propagating state vectors and
// differentiates by central finite differences. Perturbations are applied
// to a private copy of the gate set made per call, so MapCalc is safe for
// concurrent use.
type MapCalc struct {
	base
}

// Product is not available: MapCalc never forms operator products.
func (c *MapCalc) Product(gatestring.GateString, bool) (*mat.Dense, float64, error) {
	return nil, 0, calcErrorf("Product", ErrUnsupported)
}

// propagate applies the gates of s to rho in order.
func propagate(gs *gateset.GateSet, rho *mat.VecDense, s gatestring.GateString) (*mat.VecDense, error) {
	state := mat.VecDenseCopyOf(rho)
	for i := 0; i < s.Len(); i++ {
		g, err := gs.Gate(s.At(i))
		if err != nil {
			return nil, ErrUnknownLabel
		}
		state = g.Apply(state)
	}

	return state, nil
}

// PropagateState returns M(s)·rho.
func (c *MapCalc) PropagateState(rho *mat.VecDense, s gatestring.GateString) (*mat.VecDense, error) {
	out, err := propagate(c.gs, rho, s)
	if err != nil {
		return nil, calcErrorf("PropagateState", err)
	}

	return out, nil
}

// prOn evaluates one probability on gs.
func prOn(gs *gateset.GateSet, spam gatestring.SpamTuple, s gatestring.GateString) (float64, error) {
	sp, err := resolveSpam(gs, spam)
	if err != nil {
		return 0, err
	}
	state, err := propagate(gs, sp.rho, s)
	if err != nil {
		return 0, err
	}

	return mat.Dot(sp.e, state), nil
}

// Pr returns E·propagate(rho, s), clamped to clip when non-nil.
func (c *MapCalc) Pr(spam gatestring.SpamTuple, s gatestring.GateString, clip *ClipRange) (float64, error) {
	p, err := prOn(c.gs, spam, s)
	if err != nil {
		return 0, calcErrorf("Pr", err)
	}
	if math.IsNaN(p) {
		c.warnNaN(s, spam)
	}

	return clip.apply(p), nil
}

// perturber evaluates functions of the parameter vector on a scratch copy.
type perturber struct {
	scratch *gateset.GateSet
	theta   []float64
}

func (c *MapCalc) newPerturber() *perturber {
	scratch := c.gs.Copy()
	return &perturber{scratch: scratch, theta: scratch.ToVector()}
}

// centralDiff returns (f(θ+h·e_k) − f(θ−h·e_k)) / 2h, leaving θ as found.
func (p *perturber) centralDiff(k int, h float64, f func() ([]float64, error)) ([]float64, error) {
	orig := p.theta[k]
	defer func() {
		p.theta[k] = orig
		_ = p.scratch.FromVector(p.theta)
	}()

	p.theta[k] = orig + h
	if err := p.scratch.FromVector(p.theta); err != nil {
		return nil, err
	}
	plus, err := f()
	if err != nil {
		return nil, err
	}
	p.theta[k] = orig - h
	if err := p.scratch.FromVector(p.theta); err != nil {
		return nil, err
	}
	minus, err := f()
	if err != nil {
		return nil, err
	}
	floats.Sub(plus, minus)
	floats.Scale(1/(2*h), plus)

	return plus, nil
}

// jacobian returns the len(f)×len(wrt) central-difference Jacobian of f,
// row-major.
func (p *perturber) jacobian(wrt []int, h float64, f func() ([]float64, error)) ([]float64, error) {
	var out []float64
	for j, k := range wrt {
		col, err := p.centralDiff(k, h, f)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = make([]float64, len(col)*len(wrt))
		}
		for r, v := range col {
			out[r*len(wrt)+j] = v
		}
	}

	return out, nil
}

// Dpr returns ∂Pr/∂θ by central differences with step FDStep.
func (c *MapCalc) Dpr(spam gatestring.SpamTuple, s gatestring.GateString) ([]float64, error) {
	if _, err := prOn(c.gs, spam, s); err != nil {
		return nil, calcErrorf("Dpr", err)
	}
	p := c.newPerturber()
	out, err := p.jacobian(allParams(c.nparams), c.cfg.FDStep, func() ([]float64, error) {
		v, err := prOn(p.scratch, spam, s)
		return []float64{v}, err
	})
	if err != nil {
		return nil, calcErrorf("Dpr", err)
	}
	if out == nil {
		out = []float64{}
	}

	return out, nil
}

// Hpr returns the Hessian of Pr: central differences (step FDHessStep) of
// the central-difference gradient (step FDStep).
func (c *MapCalc) Hpr(spam gatestring.SpamTuple, s gatestring.GateString) (*mat.Dense, error) {
	if _, err := prOn(c.gs, spam, s); err != nil {
		return nil, calcErrorf("Hpr", err)
	}
	if c.nparams == 0 {
		return nil, nil
	}
	p := c.newPerturber()
	all := allParams(c.nparams)
	grad := func() ([]float64, error) {
		return p.jacobian(all, c.cfg.FDStep, func() ([]float64, error) {
			v, err := prOn(p.scratch, spam, s)
			return []float64{v}, err
		})
	}
	// Row a is the derivative of the gradient along θa.
	out := mat.NewDense(c.nparams, c.nparams, nil)
	for a, k := range all {
		col, err := p.centralDiff(k, c.cfg.FDHessStep, grad)
		if err != nil {
			return nil, calcErrorf("Hpr", err)
		}
		out.SetRow(a, col)
	}

	return out, nil
}

// BulkFillProbs writes the probabilities of every row of t into out.
func (c *MapCalc) BulkFillProbs(ctx context.Context, out []float64, t *evaltree.Tree, opts ...FillOption) error {
	return c.bulkFill(ctx, c, c.newEvaluator, callProbs, out, t, opts)
}

// BulkFillDProbs writes the finite-difference Jacobian of every row of t into out.
func (c *MapCalc) BulkFillDProbs(ctx context.Context, out []float64, t *evaltree.Tree, opts ...FillOption) error {
	return c.bulkFill(ctx, c, c.newEvaluator, callDProbs, out, t, opts)
}

// BulkFillHProbs writes the finite-difference Hessian of every row of t into out.
func (c *MapCalc) BulkFillHProbs(ctx context.Context, out []float64, t *evaltree.Tree, opts ...FillOption) error {
	return c.bulkFill(ctx, c, c.newEvaluator, callHProbs, out, t, opts)
}

// mapEval evaluates one subtree by state propagation.
type mapEval struct {
	c      *MapCalc
	st     *evaltree.SubTree
	tuples []gatestring.SpamTuple
	finals []int
}

func (c *MapCalc) newEvaluator(_ context.Context, st *evaltree.SubTree, spam []spamOps) (evaluator, error) {
	tuples := make([]gatestring.SpamTuple, len(spam))
	for i, sp := range spam {
		tuples[i] = sp.tuple
	}

	return &mapEval{c: c, st: st, tuples: tuples, finals: st.FinalLocalNodes()}, nil
}

// stateCache propagates rho to every node: state(node) is the Left gate
// string applied to state(Right).
func (ev *mapEval) stateCache(gs *gateset.GateSet, rho *mat.VecDense) ([]*mat.VecDense, error) {
	out := make([]*mat.VecDense, ev.st.Size())
	for i := range out {
		node := ev.st.Node(i)
		switch node.Kind {
		case evaltree.NodeEmpty:
			out[i] = mat.VecDenseCopyOf(rho)
		case evaltree.NodeLabel:
			g, err := gs.Gate(node.Label)
			if err != nil {
				return nil, ErrUnknownLabel
			}
			out[i] = g.Apply(rho)
		default:
			s, err := propagate(gs, out[node.Right], ev.st.Seq(node.Left))
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
	}

	return out, nil
}

// probsOn evaluates the subtree rows on gs; one state cache per prep.
func (ev *mapEval) probsOn(gs *gateset.GateSet) ([]float64, error) {
	ns := len(ev.tuples)
	out := make([]float64, len(ev.finals)*ns)
	caches := make(map[gatestring.Label][]*mat.VecDense)
	for s, tuple := range ev.tuples {
		sp, err := resolveSpam(gs, tuple)
		if err != nil {
			return nil, err
		}
		states, ok := caches[tuple.Prep]
		if !ok {
			if states, err = ev.stateCache(gs, sp.rho); err != nil {
				return nil, err
			}
			caches[tuple.Prep] = states
		}
		for j, n := range ev.finals {
			out[j*ns+s] = mat.Dot(sp.e, states[n])
		}
	}

	return out, nil
}

func (ev *mapEval) probs() ([]float64, error) {
	out, err := ev.probsOn(ev.c.gs)
	if err != nil {
		return nil, err
	}
	ns := len(ev.tuples)
	for r, p := range out {
		if math.IsNaN(p) {
			ev.c.warnNaN(ev.st.Seq(ev.finals[r/ns]), ev.tuples[r%ns])
		}
	}

	return out, nil
}

func (ev *mapEval) dprobs(wrt []int) ([]float64, error) {
	if len(wrt) == 0 {
		return make([]float64, len(ev.finals)*len(ev.tuples)*len(wrt)), nil
	}
	p := ev.c.newPerturber()

	return p.jacobian(wrt, ev.c.cfg.FDStep, func() ([]float64, error) { return ev.probsOn(p.scratch) })
}

func (ev *mapEval) hprobs(wrt1, wrt2 []int) ([]float64, error) {
	rows := len(ev.finals) * len(ev.tuples)
	n1, n2 := len(wrt1), len(wrt2)
	out := make([]float64, rows*n1*n2)
	if n1*n2 == 0 {
		return out, nil
	}
	p := ev.c.newPerturber()
	grad := func() ([]float64, error) {
		return p.jacobian(wrt2, ev.c.cfg.FDStep, func() ([]float64, error) { return ev.probsOn(p.scratch) })
	}
	for a, k := range wrt1 {
		col, err := p.centralDiff(k, ev.c.cfg.FDHessStep, grad)
		if err != nil {
			return nil, err
		}
		for r := 0; r < rows; r++ {
			copy(out[(r*n1+a)*n2:(r*n1+a+1)*n2], col[r*n2:(r+1)*n2])
		}
	}

	return out, nil
}
