// SPDX-License-Identifier: MIT

package calc

import (
	"context"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/katalvlaran/gsteval/config"
	"github.com/katalvlaran/gsteval/evaltree"
	"github.com/katalvlaran/gsteval/gateset"
	"github.com/katalvlaran/gsteval/gatestring"
)

// Kind selects a calculator implementation.
type Kind int

const (
	// KindMatrix multiplies dense operators and differentiates analytically.
	KindMatrix Kind = iota
	// KindMap propagates states and differentiates by finite differences.
	KindMap
)

// String returns the kind name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindMatrix:
		return "matrix"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// ClipRange bounds bulk probabilities to [Lo, Hi].
type ClipRange struct {
	Lo, Hi float64
}

func (r *ClipRange) apply(p float64) float64 {
	if r == nil {
		return p
	}

	return min(max(p, r.Lo), r.Hi)
}

// Calculator evaluates probabilities and their derivatives. The set of
// implementations is closed: use New with KindMatrix or KindMap.
type Calculator interface {
	// Kind reports the implementation.
	Kind() Kind

	// Dim is the operator dimension d of the gate set.
	Dim() int

	// NumParams is the length of the global parameter vector.
	NumParams() int

	// Product returns M(s) and the log of its scale factor. Unscaled
	// products report scale 0. Only KindMatrix supports it.
	Product(s gatestring.GateString, scaled bool) (*mat.Dense, float64, error)

	// Pr is the probability of spam after s, clamped to clip when non-nil.
	Pr(spam gatestring.SpamTuple, s gatestring.GateString, clip *ClipRange) (float64, error)

	// Dpr returns ∂Pr/∂θ for every global parameter.
	Dpr(spam gatestring.SpamTuple, s gatestring.GateString) ([]float64, error)

	// Hpr returns the NumParams×NumParams Hessian of Pr, nil when there are
	// no parameters.
	Hpr(spam gatestring.SpamTuple, s gatestring.GateString) (*mat.Dense, error)

	// ConstructTree builds an unsplit evaluation tree over the gate set's
	// gate labels and SPAM tuples.
	ConstructTree(seqs []gatestring.GateString) (*evaltree.Tree, error)

	// BulkEvalTree builds a tree split by size and/or count.
	BulkEvalTree(seqs []gatestring.GateString, minSubtrees, maxTreeSize, numSubtreeComms int) (*evaltree.Tree, error)

	// BulkEvalTreeFromResources plans a tree and parameter blocks for the
	// available processes and memory.
	BulkEvalTreeFromResources(seqs []gatestring.GateString, opts ...PlanOption) (*Plan, error)

	// EstimateMemUsage returns the bytes the named bulk calls need per rank.
	EstimateMemUsage(subcalls []string, cacheSize, numSubtrees, numSubtreeComms, numParam1Comms, numParam2Comms int) (int64, error)

	// BulkFillProbs writes the NumFinalElements probabilities of t into out.
	BulkFillProbs(ctx context.Context, out []float64, t *evaltree.Tree, opts ...FillOption) error

	// BulkFillDProbs writes the NumFinalElements×columns Jacobian into out.
	BulkFillDProbs(ctx context.Context, out []float64, t *evaltree.Tree, opts ...FillOption) error

	// BulkFillHProbs writes the NumFinalElements×columns1×columns2 Hessian into out.
	BulkFillHProbs(ctx context.Context, out []float64, t *evaltree.Tree, opts ...FillOption) error

	sealed()
}

// Option configures New.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the calculator logger. Nil keeps the config's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New returns a calculator of the given kind over a private copy of gs.
//
// Errors:
//   - ErrNilGateSet, ErrUnknownKind, config validation errors.
func New(kind Kind, gs *gateset.GateSet, cfg config.Config, opts ...Option) (Calculator, error) {
	if gs == nil {
		return nil, calcErrorf("New", ErrNilGateSet)
	}
	if err := cfg.Validate(); err != nil {
		return nil, calcErrorf("New", err)
	}
	o := options{logger: cfg.Logger()}
	for _, opt := range opts {
		opt(&o)
	}
	b := base{
		kind:    kind,
		gs:      gs.Copy(),
		cfg:     cfg,
		logger:  o.logger.With(slog.String("calculator", kind.String())),
		dim:     gs.Dim(),
		nparams: gs.NumParams(),
	}
	b.pim = b.gs.ParamIndexMap()

	switch kind {
	case KindMatrix:
		return newMatrixCalc(b)
	case KindMap:
		return &MapCalc{base: b}, nil
	default:
		return nil, calcErrorf("New", ErrUnknownKind)
	}
}

// base holds what both calculators share.
type base struct {
	kind    Kind
	gs      *gateset.GateSet
	pim     *gateset.ParamIndexMap
	cfg     config.Config
	logger  *slog.Logger
	dim     int
	nparams int
}

func (b *base) Kind() Kind     { return b.kind }
func (b *base) Dim() int       { return b.dim }
func (b *base) NumParams() int { return b.nparams }
func (b *base) sealed()        {}

// ConstructTree builds an unsplit tree over the gate labels and SPAM tuples.
func (b *base) ConstructTree(seqs []gatestring.GateString) (*evaltree.Tree, error) {
	t, err := evaltree.Build(b.gs.GateLabels(), seqs, b.gs.SpamTuples(), evaltree.WithLogger(b.logger))
	if err != nil {
		return nil, calcErrorf("ConstructTree", err)
	}

	return t, nil
}

// spamOps is one resolved SPAM tuple.
type spamOps struct {
	tuple  gatestring.SpamTuple
	prepID gateset.OpID
	effID  gateset.OpID
	prep   gateset.SPAMVec
	eff    gateset.SPAMVec
	rho    *mat.VecDense
	e      *mat.VecDense
}

// resolveSpam looks up a SPAM tuple in gs.
func resolveSpam(gs *gateset.GateSet, st gatestring.SpamTuple) (spamOps, error) {
	prep, err := gs.Prep(st.Prep)
	if err != nil {
		return spamOps{}, ErrUnknownLabel
	}
	eff, err := gs.Effect(st.Effect)
	if err != nil {
		return spamOps{}, ErrUnknownLabel
	}

	return spamOps{
		tuple:  st,
		prepID: gateset.OpID{Kind: gateset.KindPrep, Label: st.Prep},
		effID:  gateset.OpID{Kind: gateset.KindEffect, Label: st.Effect},
		prep:   prep,
		eff:    eff,
		rho:    prep.Vector(),
		e:      eff.Vector(),
	}, nil
}

// resolveTree checks that gs can evaluate t and resolves its SPAM tuples.
func resolveTree(gs *gateset.GateSet, t *evaltree.Tree) ([]spamOps, error) {
	for _, l := range t.Alphabet() {
		if _, err := gs.Gate(l); err != nil {
			return nil, ErrTreeMismatch
		}
	}
	tuples := t.SpamTuples()
	out := make([]spamOps, len(tuples))
	for i, st := range tuples {
		sp, err := resolveSpam(gs, st)
		if err != nil {
			return nil, ErrTreeMismatch
		}
		out[i] = sp
	}

	return out, nil
}

// checkLabels reports ErrUnknownLabel if s uses a label gs lacks.
func checkLabels(gs *gateset.GateSet, s gatestring.GateString) error {
	for i := 0; i < s.Len(); i++ {
		if _, err := gs.Gate(s.At(i)); err != nil {
			return ErrUnknownLabel
		}
	}

	return nil
}

// allParams returns 0..n-1.
func allParams(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}

	return out
}
