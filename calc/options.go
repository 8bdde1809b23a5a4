// SPDX-License-Identifier: MIT

package calc

import (
	"math"

	"github.com/katalvlaran/gsteval/comm"
)

// FillOption configures one bulk fill call.
type FillOption func(*fillOptions)

type fillOptions struct {
	clip           *ClipRange
	comm           comm.Comm
	probsOut       []float64
	deriv1Out      []float64
	deriv2Out      []float64
	wrt1, wrt2     []int
	blk1, blk2     int
	gatherMemLimit int64
	memLimit       int64
	check          bool
}

// WithClip clamps probabilities to [lo, hi].
// Panics if lo > hi or either bound is NaN.
func WithClip(lo, hi float64) FillOption {
	if math.IsNaN(lo) || math.IsNaN(hi) || lo > hi {
		panic("calc: WithClip requires lo <= hi")
	}

	return func(o *fillOptions) { o.clip = &ClipRange{Lo: lo, Hi: hi} }
}

// WithComm distributes the fill over the ranks of c. Every rank must make
// the same call with the same tree and gate set.
func WithComm(c comm.Comm) FillOption {
	return func(o *fillOptions) { o.comm = c }
}

// WithProbsOut also writes probabilities into buf during a derivative fill.
func WithProbsOut(buf []float64) FillOption {
	return func(o *fillOptions) { o.probsOut = buf }
}

// WithDerivOut is WithDeriv1Out.
func WithDerivOut(buf []float64) FillOption { return WithDeriv1Out(buf) }

// WithDeriv1Out writes first derivatives over the first parameter axis
// into buf during a Hessian fill.
func WithDeriv1Out(buf []float64) FillOption {
	return func(o *fillOptions) { o.deriv1Out = buf }
}

// WithDeriv2Out writes first derivatives over the second parameter axis
// into buf during a Hessian fill.
func WithDeriv2Out(buf []float64) FillOption {
	return func(o *fillOptions) { o.deriv2Out = buf }
}

// WithWrtFilter restricts the (first) derivative axis to the given global
// parameter indices, in the given order.
// A nil idx leaves the axis whole; an empty one selects no columns.
func WithWrtFilter(idx []int) FillOption {
	var cp []int
	if idx != nil {
		cp = append([]int{}, idx...)
	}

	return func(o *fillOptions) { o.wrt1 = cp }
}

// WithWrtFilters restricts both Hessian axes. A nil filter leaves that axis whole.
func WithWrtFilters(f1, f2 []int) FillOption {
	var c1, c2 []int
	if f1 != nil {
		c1 = append([]int{}, f1...)
	}
	if f2 != nil {
		c2 = append([]int{}, f2...)
	}

	return func(o *fillOptions) { o.wrt1, o.wrt2 = c1, c2 }
}

// WithWrtBlockSize bounds the number of derivative columns computed at once.
// Panics if n < 0; 0 means unbounded.
func WithWrtBlockSize(n int) FillOption {
	if n < 0 {
		panic("calc: WithWrtBlockSize requires n >= 0")
	}

	return func(o *fillOptions) { o.blk1 = n }
}

// WithWrtBlockSizes bounds both Hessian axes. Panics on negative sizes.
func WithWrtBlockSizes(n1, n2 int) FillOption {
	if n1 < 0 || n2 < 0 {
		panic("calc: WithWrtBlockSizes requires sizes >= 0")
	}

	return func(o *fillOptions) { o.blk1, o.blk2 = n1, n2 }
}

// WithGatherMemLimit caps the bytes of one gather broadcast, overriding the config.
// Panics if bytes < 0.
func WithGatherMemLimit(bytes int64) FillOption {
	if bytes < 0 {
		panic("calc: WithGatherMemLimit requires bytes >= 0")
	}

	return func(o *fillOptions) { o.gatherMemLimit = bytes }
}

// WithMemLimit makes the fill estimate its per-rank memory first and fail
// with ErrMemoryLimit above bytes. Panics if bytes < 0; 0 disables.
func WithMemLimit(bytes int64) FillOption {
	if bytes < 0 {
		panic("calc: WithMemLimit requires bytes >= 0")
	}

	return func(o *fillOptions) { o.memLimit = bytes }
}

// WithCheck recomputes every filled value with the single-string methods
// and logs a warning for each disagreement.
func WithCheck(on bool) FillOption {
	return func(o *fillOptions) { o.check = on }
}

// DistributeMethod selects how planning spreads processes.
type DistributeMethod string

const (
	// DistributeGateStrings gives every process its own subtrees.
	DistributeGateStrings DistributeMethod = "gatestrings"
	// DistributeDeriv spreads processes over parameter blocks first.
	DistributeDeriv DistributeMethod = "deriv"
)

// PlanOption configures BulkEvalTreeFromResources.
type PlanOption func(*planOptions)

type planOptions struct {
	comm        comm.Comm
	memLimit    int64
	memLimitSet bool
	method      DistributeMethod
	subcalls    []string
}

// WithPlanComm plans for the ranks of c.
func WithPlanComm(c comm.Comm) PlanOption {
	return func(o *planOptions) { o.comm = c }
}

// WithPlanMemLimit sets the per-rank budget in bytes, overriding the config.
// A value <= 0 makes planning fail with ErrInvalidMemLimit.
func WithPlanMemLimit(bytes int64) PlanOption {
	return func(o *planOptions) { o.memLimit, o.memLimitSet = bytes, true }
}

// WithDistributeMethod selects the distribution method (default DistributeGateStrings).
func WithDistributeMethod(m DistributeMethod) PlanOption {
	return func(o *planOptions) { o.method = m }
}

// WithSubcalls names the bulk calls the plan must budget for
// (SubcallProbs, SubcallDProbs, SubcallHProbs, SubcallHProbsByBlock).
func WithSubcalls(names ...string) PlanOption {
	cp := append([]string(nil), names...)
	return func(o *planOptions) { o.subcalls = cp }
}
