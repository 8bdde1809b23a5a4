// SPDX-License-Identifier: MIT

package calc

import (
	"context"
	"math"
	"slices"

	"github.com/katalvlaran/gsteval/evaltree"
)

// matrixEval evaluates one subtree from its product cache. Derivative
// caches are built per call, so each parameter block is freed before the
// next one is computed.
type matrixEval struct {
	c      *MatrixCalc
	st     *evaltree.SubTree
	spam   []spamOps
	pc     productCache
	finals []int
}

func (c *MatrixCalc) newEvaluator(_ context.Context, st *evaltree.SubTree, spam []spamOps) (evaluator, error) {
	return &matrixEval{
		c:      c,
		st:     st,
		spam:   spam,
		pc:     c.computeProductCache(st),
		finals: st.FinalLocalNodes(),
	}, nil
}

func (ev *matrixEval) probs() ([]float64, error) {
	ns := len(ev.spam)
	out := make([]float64, len(ev.finals)*ns)
	for j, n := range ev.finals {
		sc := expScale(ev.pc.scales[n])
		for s, sp := range ev.spam {
			p := prob(sp, ev.pc.prods[n], sc)
			if math.IsNaN(p) {
				ev.c.warnNaN(ev.st.Seq(n), sp.tuple)
			}
			out[j*ns+s] = p
		}
	}

	return out, nil
}

func (ev *matrixEval) dprobs(wrt []int) ([]float64, error) {
	nw, ns := len(wrt), len(ev.spam)
	out := make([]float64, len(ev.finals)*ns*nw)
	if nw == 0 {
		return out, nil
	}
	dc := ev.c.computeDProductCache(ev.st, ev.pc, wrt)
	for j, n := range ev.finals {
		sc := expScale(ev.pc.scales[n])
		for s, sp := range ev.spam {
			row := (j*ns + s) * nw
			derivRow(ev.c.pim, sp, ev.pc.prods[n], dc[n], wrt, sc, out[row:row+nw])
		}
	}

	return out, nil
}

func (ev *matrixEval) hprobs(wrt1, wrt2 []int) ([]float64, error) {
	n1, n2, ns := len(wrt1), len(wrt2), len(ev.spam)
	out := make([]float64, len(ev.finals)*ns*n1*n2)
	if n1*n2 == 0 {
		return out, nil
	}
	d1 := ev.c.computeDProductCache(ev.st, ev.pc, wrt1)
	d2 := d1
	if !slices.Equal(wrt1, wrt2) {
		d2 = ev.c.computeDProductCache(ev.st, ev.pc, wrt2)
	}
	hc := ev.c.computeHProductCache(ev.st, ev.pc, d1, d2, wrt1, wrt2)
	w := n1 * n2
	for j, n := range ev.finals {
		sc := expScale(ev.pc.scales[n])
		for s, sp := range ev.spam {
			row := (j*ns + s) * w
			hessRow(ev.c.pim, sp, ev.pc.prods[n], d1[n], d2[n], hc[n], wrt1, wrt2, sc, out[row:row+w])
		}
	}

	return out, nil
}
