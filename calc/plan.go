// SPDX-License-Identifier: MIT

package calc

import (
	"log/slog"
	"math"
	"slices"

	"github.com/katalvlaran/gsteval/comm"
	"github.com/katalvlaran/gsteval/evaltree"
	"github.com/katalvlaran/gsteval/gatestring"
	"github.com/katalvlaran/gsteval/slicetools"
)

// Plan is a tree and parameter blocking chosen for a process count and
// memory budget.
type Plan struct {
	Tree *evaltree.Tree
	// ParamBlockSize1 and ParamBlockSize2 are the wrt block sizes to pass to
	// bulk fills; 0 means no blocking.
	ParamBlockSize1, ParamBlockSize2 int
	NumSubtrees                      int
	NumSubtreeComms                  int
	NumParam1Groups, NumParam2Groups int
	// MemEstimate is the per-rank estimate in bytes, 0 without a budget.
	MemEstimate int64
}

// BulkEvalTree builds a tree over seqs, split so that no subtree exceeds
// maxTreeSize nodes (when > 0) and there are at least minSubtrees subtrees
// (when > 0). If both cannot hold, the size bound wins and a warning is
// logged.
func (b *base) BulkEvalTree(seqs []gatestring.GateString, minSubtrees, maxTreeSize, numSubtreeComms int) (*evaltree.Tree, error) {
	t, err := evaltree.Build(b.gs.GateLabels(), seqs, b.gs.SpamTuples(),
		evaltree.WithLogger(b.logger),
		evaltree.WithNumSubtreeComms(max(numSubtreeComms, 1)),
	)
	if err != nil {
		return nil, calcErrorf("BulkEvalTree", err)
	}
	if maxTreeSize > 0 {
		if err := t.Split(maxTreeSize, 0); err != nil {
			return nil, calcErrorf("BulkEvalTree", err)
		}
	}
	if minSubtrees > 0 && (!t.IsSplit() || len(t.SubTrees()) < minSubtrees) {
		if err := t.Split(0, minSubtrees); err != nil {
			return nil, calcErrorf("BulkEvalTree", err)
		}
		if maxTreeSize > 0 && slices.ContainsFunc(t.SubTrees(), func(st *evaltree.SubTree) bool { return st.Size() > maxTreeSize }) {
			b.logger.Warn("calc: could not meet both min subtrees and max tree size, keeping the size bound",
				slog.Int("min_subtrees", minSubtrees), slog.Int("max_tree_size", maxTreeSize))
			if err := t.Split(maxTreeSize, 0); err != nil {
				return nil, calcErrorf("BulkEvalTree", err)
			}
		}
	}

	return t, nil
}

// planner carries the state of one BulkEvalTreeFromResources call.
type planner struct {
	b        *base
	seqs     []gatestring.GateString
	subcalls []string
	limit    int64
	trees    map[int]*evaltree.Tree
}

// estimate returns the per-rank bytes for ng subtrees. The fast form uses
// a cache-size heuristic instead of building the tree.
func (p *planner) estimate(ng, np1, np2, Ng int, fast bool) (int64, error) {
	var cs int
	if fast {
		cs = int(1.3 * float64(len(p.seqs)) / float64(ng))
	} else {
		t, ok := p.trees[ng]
		if !ok {
			var err error
			if t, err = p.b.BulkEvalTree(p.seqs, ng, 0, Ng); err != nil {
				return 0, err
			}
			p.trees[ng] = t
		}
		for _, st := range t.SubTrees() {
			cs = max(cs, st.Size())
		}
	}

	return p.b.EstimateMemUsage(p.subcalls, cs, ng, Ng, np1, np2)
}

// growSubtrees raises the subtree count in steps of Ng until the estimate
// fits, first with the fast heuristic, then with real trees.
func (p *planner) growSubtrees(ng, np1, np2, Ng int) (int, int64, error) {
	for {
		est, err := p.estimate(ng, np1, np2, Ng, true)
		if err != nil {
			return 0, 0, err
		}
		if est <= p.limit {
			break
		}
		if ng += Ng; ng > len(p.seqs) {
			return 0, 0, ErrMemoryLimit
		}
	}
	est, err := p.estimate(ng, np1, np2, Ng, false)
	if err != nil {
		return 0, 0, err
	}
	for est > p.limit {
		ng += Ng
		next, err := p.estimate(ng, np1, np2, Ng, false)
		if err != nil {
			return 0, 0, err
		}
		if next >= est {
			p.b.logger.Warn("calc: splitting further does not reduce memory", slog.Int("subtrees", ng))
			return 0, 0, ErrMemoryLimit
		}
		est = next
	}

	return ng, est, nil
}

// primeFactors returns the prime factors of n in ascending order.
func primeFactors(n int) []int {
	var out []int
	for i := 2; i*i <= n; {
		if n%i != 0 {
			i++
			continue
		}
		n /= i
		out = append(out, i)
	}
	if n > 1 {
		out = append(out, n)
	}

	return out
}

// subtreeGroups picks a subtree group count near desired that divides the
// process count evenly or is a multiple of it.
func subtreeGroups(desired float64, nprocs int) int {
	if desired >= float64(nprocs) {
		return nprocs * int(math.Ceil(desired/float64(nprocs)))
	}
	fctrs := primeFactors(nprocs)
	want := int(math.Ceil(desired))
	if slices.Contains(fctrs, want) {
		return want
	}
	prod := 1
	for _, f := range fctrs {
		if float64(prod) >= desired {
			break
		}
		prod *= f
	}

	return max(prod, 1)
}

// BulkEvalTreeFromResources chooses the number of subtrees, subtree process
// groups and parameter blocks for the planned processes and memory budget,
// and builds the tree.
//
// Methods:
//   - DistributeGateStrings: every process gets its own subtrees
//     (subtrees = processes), adding subtrees until the budget is met.
//   - DistributeDeriv: processes are spread over parameter blocks first
//     (both axes when a Hessian subcall is planned); under a budget the
//     first-axis block count grows, then the second, then the subtree count.
//
// Errors:
//   - ErrInvalidMemLimit for a budget <= 0.
//   - ErrMemoryLimit when no split fits the budget.
//   - ErrUnknownMethod, ErrUnknownSubcall.
func (b *base) BulkEvalTreeFromResources(seqs []gatestring.GateString, opts ...PlanOption) (*Plan, error) {
	o := planOptions{method: DistributeGateStrings}
	if b.cfg.MemLimitBytes > 0 {
		o.memLimit, o.memLimitSet = b.cfg.MemLimitBytes, true
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.memLimitSet && o.memLimit <= 0 {
		return nil, calcErrorf("BulkEvalTreeFromResources", ErrInvalidMemLimit)
	}
	if _, err := b.EstimateMemUsage(o.subcalls, 0, 1, 1, 1, 1); err != nil {
		return nil, calcErrorf("BulkEvalTreeFromResources", err)
	}

	nprocs := comm.SizeOf(o.comm)
	np := b.nparams
	npMin := max(np, 1)
	np2Matters := slices.Contains(o.subcalls, SubcallHProbs) || slices.Contains(o.subcalls, SubcallHProbsByBlock)
	p := &planner{b: b, seqs: seqs, subcalls: o.subcalls, limit: o.memLimit, trees: make(map[int]*evaltree.Tree)}

	var ng, Ng, np1, np2 int
	var est int64
	var err error
	switch o.method {
	case DistributeGateStrings:
		np1, np2, Ng, ng = 1, 1, nprocs, nprocs
		if o.memLimitSet {
			if ng, est, err = p.growSubtrees(ng, np1, np2, Ng); err != nil {
				return nil, calcErrorf("BulkEvalTreeFromResources", err)
			}
		}

	case DistributeDeriv:
		ng, Ng = 1, 1
		switch {
		case np2Matters && nprocs > npMin*npMin:
			np1, np2 = npMin, npMin
			ng = subtreeGroups(float64(nprocs)/float64(npMin*npMin), nprocs)
			Ng = ng
		case np2Matters && nprocs > npMin:
			np1, np2 = npMin, slicetools.CeilDiv(nprocs, npMin)
		case np2Matters:
			np1, np2 = nprocs, 1
		case nprocs > npMin:
			np1, np2 = npMin, 1
			ng = subtreeGroups(float64(nprocs)/float64(npMin), nprocs)
			Ng = ng
		default:
			np1, np2 = nprocs, 1
		}
		if o.memLimitSet {
			if np1, np2, ng, est, err = p.fitDeriv(ng, np1, np2, Ng, nprocs, np2Matters); err != nil {
				return nil, calcErrorf("BulkEvalTreeFromResources", err)
			}
		}

	default:
		return nil, calcErrorf("BulkEvalTreeFromResources", ErrUnknownMethod)
	}

	t, ok := p.trees[ng]
	if !ok {
		if t, err = b.BulkEvalTree(seqs, ng, 0, Ng); err != nil {
			return nil, calcErrorf("BulkEvalTreeFromResources", err)
		}
	}
	t.SetNumSubtreeComms(Ng)

	if work := len(t.SubTrees()) * np1 * np2; nprocs > work {
		b.logger.Warn("calc: more processes than work units, some will duplicate work",
			slog.Int("processes", nprocs), slog.Int("work_units", work))
	}
	blockSize := func(groups int) int {
		if groups <= 1 {
			return 0
		}
		return slicetools.CeilDiv(np, groups)
	}
	plan := &Plan{
		Tree:            t,
		ParamBlockSize1: blockSize(np1),
		ParamBlockSize2: blockSize(np2),
		NumSubtrees:     len(t.SubTrees()),
		NumSubtreeComms: Ng,
		NumParam1Groups: np1,
		NumParam2Groups: np2,
		MemEstimate:     est,
	}
	b.logger.Debug("calc: planned evaluation tree",
		slog.String("method", string(o.method)),
		slog.Int("subtrees", plan.NumSubtrees),
		slog.Int("subtree_comms", Ng),
		slog.Int("param1_groups", np1),
		slog.Int("param2_groups", np2),
		slog.Int64("mem_estimate_bytes", est),
	)

	return plan, nil
}

// fitDeriv grows the parameter block counts, then the subtree count, until
// the estimate fits the budget.
func (p *planner) fitDeriv(ng, np1, np2, Ng, nprocs int, np2Matters bool) (int, int, int, int64, error) {
	np := p.b.nparams
	if np1 < np {
		for n := np1; n <= np; n += nprocs {
			est, err := p.estimate(ng, n, np2, Ng, false)
			if err != nil {
				return 0, 0, 0, 0, err
			}
			if est < p.limit {
				return n, np2, ng, est, nil
			}
		}
		np1 = np
	}
	if np2Matters && np2 < np {
		for n := np2; n <= np; n++ {
			est, err := p.estimate(ng, np1, n, Ng, false)
			if err != nil {
				return 0, 0, 0, 0, err
			}
			if est < p.limit {
				return np1, n, ng, est, nil
			}
		}
		np2 = np
	}
	ng, est, err := p.growSubtrees(Ng, max(np1, 1), max(np2, 1), Ng)
	if err != nil {
		return 0, 0, 0, 0, err
	}

	return max(np1, 1), max(np2, 1), ng, est, nil
}
