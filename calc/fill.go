// SPDX-License-Identifier: MIT

package calc

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/katalvlaran/gsteval/comm"
	"github.com/katalvlaran/gsteval/evaltree"
	"github.com/katalvlaran/gsteval/slicetools"
)

// evaluator computes the results of one subtree. Rows follow
// SubTree.FinalElementIndices; columns follow the given global parameter
// indices. Results are freshly allocated, row-major.
type evaluator interface {
	probs() ([]float64, error)
	dprobs(wrt []int) ([]float64, error)
	hprobs(wrt1, wrt2 []int) ([]float64, error)
}

type newEvaluatorFunc func(ctx context.Context, st *evaltree.SubTree, spam []spamOps) (evaluator, error)

type fillCall int

const (
	callProbs fillCall = iota
	callDProbs
	callHProbs
)

func (c fillCall) subcall() string {
	switch c {
	case callDProbs:
		return SubcallDProbs
	case callHProbs:
		return SubcallHProbs
	default:
		return SubcallProbs
	}
}

func (c fillCall) op() string {
	switch c {
	case callDProbs:
		return "BulkFillDProbs"
	case callHProbs:
		return "BulkFillHProbs"
	default:
		return "BulkFillProbs"
	}
}

// fillContext is everything one bulk call needs, passed explicitly to the
// per-subtree and per-block steps.
type fillContext struct {
	callID      string
	call        fillCall
	tree        *evaltree.Tree
	spam        []spamOps
	comm        comm.Comm
	gatherLimit int64
	clip        *ClipRange
	check       bool
	logger      *slog.Logger

	probs  *comm.Array // E
	deriv1 *comm.Array // E × len(wrt1)
	deriv2 *comm.Array // E × len(wrt2)
	hess   *comm.Array // E × len(wrt1) × len(wrt2)

	wrt1, wrt2           []int
	filtered1, filtered2 bool
	blk1, blk2           int
}

// newFillContext validates options and buffer shapes before any work.
func (b *base) newFillContext(call fillCall, out []float64, t *evaltree.Tree, opts []FillOption) (*fillContext, error) {
	if t == nil {
		return nil, ErrTreeMismatch
	}
	o := fillOptions{gatherMemLimit: b.cfg.GatherMemLimitBytes}
	for _, opt := range opts {
		opt(&o)
	}
	spam, err := resolveTree(b.gs, t)
	if err != nil {
		return nil, err
	}
	for _, f := range [][]int{o.wrt1, o.wrt2} {
		for _, i := range f {
			if i < 0 || i >= b.nparams {
				return nil, ErrParamIndex
			}
		}
	}
	if call != callProbs && o.wrt1 != nil && o.blk1 > 0 {
		return nil, ErrConflictingOptions
	}
	if call == callHProbs && o.wrt2 != nil && o.blk2 > 0 {
		return nil, ErrConflictingOptions
	}

	id := uuid.NewString()
	fc := &fillContext{
		callID:      id,
		call:        call,
		tree:        t,
		spam:        spam,
		comm:        o.comm,
		gatherLimit: o.gatherMemLimit,
		clip:        o.clip,
		check:       o.check,
		logger:      b.logger.With(slog.String("call_id", id), slog.Int("rank", comm.RankOf(o.comm))),
		wrt1:        o.wrt1,
		wrt2:        o.wrt2,
		filtered1:   o.wrt1 != nil,
		filtered2:   o.wrt2 != nil,
		blk1:        o.blk1,
		blk2:        o.blk2,
	}
	if fc.wrt1 == nil {
		fc.wrt1 = allParams(b.nparams)
	}
	if fc.wrt2 == nil {
		fc.wrt2 = allParams(b.nparams)
	}

	E, n1, n2 := t.NumFinalElements(), len(fc.wrt1), len(fc.wrt2)
	wrap := func(buf []float64, shape ...int) (*comm.Array, error) {
		if buf == nil {
			return nil, nil
		}
		a, err := comm.NewArray(buf, shape...)
		if err != nil {
			return nil, ErrShapeMismatch
		}
		return &a, nil
	}
	if out == nil {
		return nil, ErrShapeMismatch
	}
	switch call {
	case callProbs:
		fc.probs, err = wrap(out, E)
	case callDProbs:
		if fc.deriv1, err = wrap(out, E, n1); err == nil {
			fc.probs, err = wrap(o.probsOut, E)
		}
	case callHProbs:
		if fc.hess, err = wrap(out, E, n1, n2); err != nil {
			return nil, err
		}
		if fc.probs, err = wrap(o.probsOut, E); err != nil {
			return nil, err
		}
		if fc.deriv1, err = wrap(o.deriv1Out, E, n1); err != nil {
			return nil, err
		}
		fc.deriv2, err = wrap(o.deriv2Out, E, n2)
	}
	if err != nil {
		return nil, err
	}

	if o.memLimit > 0 {
		if err := b.checkFillMemory(fc, o.memLimit); err != nil {
			return nil, err
		}
	}

	return fc, nil
}

// checkFillMemory estimates the per-rank need of the call.
func (b *base) checkFillMemory(fc *fillContext, limit int64) error {
	cs := 0
	for _, st := range fc.tree.SubTrees() {
		cs = max(cs, st.Size())
	}
	groups := func(n, blk int) int {
		if blk <= 0 {
			return 1
		}
		return max(slicetools.CeilDiv(n, blk), 1)
	}
	est, err := b.EstimateMemUsage([]string{fc.call.subcall()}, cs, len(fc.tree.SubTrees()),
		fc.tree.NumSubtreeComms(), groups(b.nparams, fc.blk1), groups(b.nparams, fc.blk2))
	if err != nil {
		return err
	}
	if est > limit {
		fc.logger.Warn("calc: bulk fill exceeds memory limit",
			slog.Int64("estimate_bytes", est), slog.Int64("limit_bytes", limit))
		return ErrMemoryLimit
	}

	return nil
}

// bulkFill runs one bulk call for either calculator.
func (b *base) bulkFill(ctx context.Context, self Calculator, newEval newEvaluatorFunc, call fillCall, out []float64, t *evaltree.Tree, opts []FillOption) (err error) {
	fc, err := b.newFillContext(call, out, t, opts)
	if err != nil {
		return calcErrorf(call.op(), err)
	}
	ctx, finish := startFill(ctx, b.logger, b.kind, call.op(),
		attribute.String("call_id", fc.callID),
		attribute.Int("rank", comm.RankOf(fc.comm)),
		attribute.Int("subtrees", len(t.SubTrees())),
		attribute.Int("columns1", len(fc.wrt1)),
	)
	defer func() { finish(err) }()

	start := time.Now()
	fc.logger.Debug("calc: bulk fill start",
		slog.String("call", call.op()),
		slog.Int("elements", t.NumFinalElements()),
		slog.Int("subtrees", len(t.SubTrees())),
		slog.Int("block_size1", fc.blk1),
		slog.Int("block_size2", fc.blk2),
	)

	if b.cfg.CheckConsistency {
		if err = checkConsistency(fc.comm, b, t); err != nil {
			return calcErrorf(call.op(), err)
		}
	}
	switch call {
	case callProbs:
		err = runProbs(ctx, fc, newEval)
	case callDProbs:
		err = runDProbs(ctx, fc, newEval)
	default:
		err = runHProbs(ctx, fc, newEval)
	}
	if err != nil {
		return calcErrorf(call.op(), err)
	}
	if fc.probs != nil && fc.clip != nil {
		for i, p := range fc.probs.Data {
			fc.probs.Data[i] = fc.clip.apply(p)
		}
	}
	if fc.check {
		verifyFill(fc, self)
	}
	fc.logger.Debug("calc: bulk fill done",
		slog.String("call", call.op()),
		slog.Duration("elapsed", time.Since(start)),
	)

	return nil
}

// rowSelectors returns each subtree's result rows.
func rowSelectors(t *evaltree.Tree) [][]int {
	subs := t.SubTrees()
	out := make([][]int, len(subs))
	for i, st := range subs {
		out[i] = st.FinalElementIndices()
	}

	return out
}

// gatherRows shares every subtree's rows of each non-nil array across c.
func gatherRows(fc *fillContext, owners map[int]int, arrays ...*comm.Array) error {
	rows := rowSelectors(fc.tree)
	for _, a := range arrays {
		if a == nil {
			continue
		}
		if err := comm.GatherIndices(rows, owners, *a, nil, 0, fc.comm, fc.gatherLimit); err != nil {
			return err
		}
	}

	return nil
}

// subtreeStep is one subtree's evaluator and rows.
type subtreeStep struct {
	index int
	ev    evaluator
	rows  comm.Selector
}

// forEachSubtree distributes the subtrees over fc.comm and calls fn for
// each one this rank evaluates, with the group communicator.
func forEachSubtree(ctx context.Context, fc *fillContext, newEval newEvaluatorFunc, fn func(step subtreeStep, sub comm.Comm) error) (map[int]int, error) {
	mine, owners, sub, err := fc.tree.Distribute(fc.comm)
	if err != nil {
		return nil, err
	}
	subs := fc.tree.SubTrees()
	for _, i := range mine {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, span := tracer.Start(ctx, "calc.subtree")
		span.SetAttributes(attribute.Int("subtree", i), attribute.Int("nodes", subs[i].Size()))
		ev, err := newEval(ctx, subs[i], fc.spam)
		if err == nil {
			err = fn(subtreeStep{index: i, ev: ev, rows: comm.Selector(subs[i].FinalElementIndices())}, sub)
		}
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		if err != nil {
			return nil, err
		}
	}

	return owners, nil
}

func fillProbsRows(fc *fillContext, step subtreeStep) error {
	if fc.probs == nil {
		return nil
	}
	vals, err := step.ev.probs()
	if err != nil {
		return err
	}

	return fc.probs.Assign(vals, step.rows)
}

func runProbs(ctx context.Context, fc *fillContext, newEval newEvaluatorFunc) error {
	owners, err := forEachSubtree(ctx, fc, newEval, func(step subtreeStep, _ comm.Comm) error {
		return fillProbsRows(fc, step)
	})
	if err != nil {
		return err
	}

	return gatherRows(fc, owners, fc.probs)
}

// blockCount returns how many column blocks an axis of n columns is cut
// into for a group of SizeOf(c) ranks. Filtered axes are never blocked.
func blockCount(n, userBlk int, filtered bool, c comm.Comm) int {
	if filtered || n == 0 {
		return 1
	}
	blk := userBlk
	if np := comm.SizeOf(c); np > 1 {
		share := slicetools.CeilDiv(n, np)
		if blk == 0 || share < blk {
			blk = share
		}
	}
	if blk == 0 || blk >= n {
		return 1
	}

	return slicetools.CeilDiv(n, blk)
}

// distributeBlocks cuts n columns into k blocks and assigns them over c.
func distributeBlocks(fc *fillContext, n, k int, c comm.Comm) (blocks []slicetools.Slice, mine []int, owners map[int]int, sub comm.Comm, err error) {
	blocks = slicetools.SliceUpRange(n, k)
	if np := comm.SizeOf(c); np > len(blocks) {
		fc.logger.Warn("calc: more processes than parameter blocks, work is duplicated",
			slog.Int("processes", np), slog.Int("blocks", len(blocks)))
	}
	mine, owners, sub, err = comm.DistributeIndices(slicetools.Range(0, len(blocks)).Indices(), c)

	return blocks, mine, owners, sub, err
}

// fillDerivColumns computes the derivative rows of one subtree into a,
// over the columns wrt, blocked and gathered within c.
func fillDerivColumns(fc *fillContext, step subtreeStep, a *comm.Array, wrt []int, nBlks int, c comm.Comm) error {
	if nBlks <= 1 {
		vals, err := step.ev.dprobs(wrt)
		if err != nil {
			return err
		}
		return a.Assign(vals, step.rows, nil)
	}
	blocks, mine, owners, _, err := distributeBlocks(fc, len(wrt), nBlks, c)
	if err != nil {
		return err
	}
	for _, k := range mine {
		cols := blocks[k]
		vals, err := step.ev.dprobs(wrt[cols.Start:cols.Stop])
		if err != nil {
			return err
		}
		if err := a.Assign(vals, step.rows, comm.SliceSelector(cols)); err != nil {
			return err
		}
	}

	return comm.GatherSlices(blocks, owners, *a, []comm.Selector{step.rows}, 1, c, fc.gatherLimit)
}

func runDProbs(ctx context.Context, fc *fillContext, newEval newEvaluatorFunc) error {
	owners, err := forEachSubtree(ctx, fc, newEval, func(step subtreeStep, sub comm.Comm) error {
		if err := fillProbsRows(fc, step); err != nil {
			return err
		}
		nBlks := blockCount(len(fc.wrt1), fc.blk1, fc.filtered1, sub)
		return fillDerivColumns(fc, step, fc.deriv1, fc.wrt1, nBlks, sub)
	})
	if err != nil {
		return err
	}

	return gatherRows(fc, owners, fc.probs, fc.deriv1)
}

func runHProbs(ctx context.Context, fc *fillContext, newEval newEvaluatorFunc) error {
	owners, err := forEachSubtree(ctx, fc, newEval, func(step subtreeStep, sub comm.Comm) error {
		if err := fillProbsRows(fc, step); err != nil {
			return err
		}
		n1 := blockCount(len(fc.wrt1), fc.blk1, fc.filtered1, sub)
		if n1 <= 1 {
			if fc.deriv1 != nil {
				if err := fillDerivColumns(fc, step, fc.deriv1, fc.wrt1, 1, nil); err != nil {
					return err
				}
			}
			return fillHessBlock(fc, step, slicetools.Range(0, len(fc.wrt1)), sub, true)
		}

		blocks1, mine1, owners1, sub1, err := distributeBlocks(fc, len(fc.wrt1), n1, sub)
		if err != nil {
			return err
		}
		for i, k := range mine1 {
			cols1 := blocks1[k]
			if fc.deriv1 != nil {
				vals, err := step.ev.dprobs(fc.wrt1[cols1.Start:cols1.Stop])
				if err != nil {
					return err
				}
				if err := fc.deriv1.Assign(vals, step.rows, comm.SliceSelector(cols1)); err != nil {
					return err
				}
			}
			if err := fillHessBlock(fc, step, cols1, sub1, i == 0); err != nil {
				return err
			}
		}
		if err := comm.GatherSlices(blocks1, owners1, *fc.hess, []comm.Selector{step.rows}, 1, sub, fc.gatherLimit); err != nil {
			return err
		}
		if fc.deriv1 != nil {
			return comm.GatherSlices(blocks1, owners1, *fc.deriv1, []comm.Selector{step.rows}, 1, sub, fc.gatherLimit)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return gatherRows(fc, owners, fc.probs, fc.deriv1, fc.deriv2, fc.hess)
}

// fillHessBlock fills the Hessian rows of one subtree for the first-axis
// columns cols1, blocking the second axis within c. withDeriv2 makes this
// call also produce the second-axis derivative rows.
func fillHessBlock(fc *fillContext, step subtreeStep, cols1 slicetools.Slice, c comm.Comm, withDeriv2 bool) error {
	wrt1 := fc.wrt1[cols1.Start:cols1.Stop]
	sel1 := comm.SliceSelector(cols1)
	n2 := blockCount(len(fc.wrt2), fc.blk2, fc.filtered2, c)
	if n2 <= 1 {
		vals, err := step.ev.hprobs(wrt1, fc.wrt2)
		if err != nil {
			return err
		}
		if err := fc.hess.Assign(vals, step.rows, sel1, nil); err != nil {
			return err
		}
		if withDeriv2 && fc.deriv2 != nil {
			return fillDerivColumns(fc, step, fc.deriv2, fc.wrt2, 1, nil)
		}
		return nil
	}

	blocks2, mine2, owners2, _, err := distributeBlocks(fc, len(fc.wrt2), n2, c)
	if err != nil {
		return err
	}
	for _, k := range mine2 {
		cols2 := blocks2[k]
		wrt2 := fc.wrt2[cols2.Start:cols2.Stop]
		vals, err := step.ev.hprobs(wrt1, wrt2)
		if err != nil {
			return err
		}
		if err := fc.hess.Assign(vals, step.rows, sel1, comm.SliceSelector(cols2)); err != nil {
			return err
		}
		if withDeriv2 && fc.deriv2 != nil {
			d2, err := step.ev.dprobs(wrt2)
			if err != nil {
				return err
			}
			if err := fc.deriv2.Assign(d2, step.rows, comm.SliceSelector(cols2)); err != nil {
				return err
			}
		}
	}
	if err := comm.GatherSlices(blocks2, owners2, *fc.hess, []comm.Selector{step.rows, sel1}, 2, c, fc.gatherLimit); err != nil {
		return err
	}
	if withDeriv2 && fc.deriv2 != nil {
		return comm.GatherSlices(blocks2, owners2, *fc.deriv2, []comm.Selector{step.rows}, 1, c, fc.gatherLimit)
	}

	return nil
}
