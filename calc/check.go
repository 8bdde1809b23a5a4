// SPDX-License-Identifier: MIT

package calc

import (
	"encoding/binary"
	"log/slog"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/katalvlaran/gsteval/comm"
	"github.com/katalvlaran/gsteval/evaltree"
)

// checkTolerance bounds the disagreement verifyFill accepts.
const checkTolerance = 1e-6

// stateFingerprint combines what every rank must agree on before a fill.
func stateFingerprint(b *base, t *evaltree.Tree) uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], b.gs.Fingerprint())
	binary.LittleEndian.PutUint64(buf[8:], t.Fingerprint())
	binary.LittleEndian.PutUint64(buf[16:], uint64(b.nparams))

	return xxhash.Sum64(buf[:])
}

// checkConsistency fails on every rank of c when any two ranks hold
// different gate sets, trees or parameter counts.
func checkConsistency(c comm.Comm, b *base, t *evaltree.Tree) error {
	if comm.SizeOf(c) <= 1 {
		return nil
	}
	mine := stateFingerprint(b, t)
	all, err := c.Allgather(mine)
	if err != nil {
		return err
	}
	for r, v := range all {
		if fp, ok := v.(uint64); !ok || fp != mine {
			b.logger.Error("calc: rank state differs",
				slog.Int("rank", c.Rank()), slog.Int("other_rank", r))
			return ErrInconsistentState
		}
	}

	return nil
}

// verifyFill recomputes filled values with the single-string methods and
// logs every disagreement beyond checkTolerance.
func verifyFill(fc *fillContext, self Calculator) {
	t := fc.tree
	ns := len(fc.spam)
	n1, n2 := len(fc.wrt1), len(fc.wrt2)
	bad := 0
	report := func(row int, what string, got, want float64) {
		if math.Abs(got-want) <= checkTolerance*max(1, math.Abs(want)) {
			return
		}
		bad++
		fc.logger.Warn("calc: bulk value disagrees with single-string value",
			slog.Int("row", row), slog.String("quantity", what),
			slog.Float64("bulk", got), slog.Float64("single", want))
	}
	for i, s := range t.GateStrings() {
		for k, sp := range fc.spam {
			row := i*ns + k
			if fc.probs != nil {
				p, err := self.Pr(sp.tuple, s, fc.clip)
				if err == nil {
					report(row, "probability", fc.probs.Data[row], p)
				}
			}
			if fc.deriv1 != nil {
				dp, err := self.Dpr(sp.tuple, s)
				if err == nil {
					for a, col := range fc.wrt1 {
						report(row, "derivative", fc.deriv1.Data[row*n1+a], dp[col])
					}
				}
			}
			if fc.hess != nil {
				hp, err := self.Hpr(sp.tuple, s)
				if err == nil && hp != nil {
					for a, ca := range fc.wrt1 {
						for b, cb := range fc.wrt2 {
							report(row, "hessian", fc.hess.Data[(row*n1+a)*n2+b], hp.At(ca, cb))
						}
					}
				}
			}
		}
	}
	if bad > 0 {
		fc.logger.Warn("calc: bulk check found disagreements", slog.Int("count", bad))
	}
}
