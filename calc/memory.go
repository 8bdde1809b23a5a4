// SPDX-License-Identifier: MIT

package calc

import (
	"math"

	"github.com/katalvlaran/gsteval/slicetools"
)

// Bulk call names understood by EstimateMemUsage and planning.
const (
	SubcallProbs         = "bulk_fill_probs"
	SubcallDProbs        = "bulk_fill_dprobs"
	SubcallHProbs        = "bulk_fill_hprobs"
	SubcallHProbsByBlock = "bulk_hprobs_by_block"
)

// floatSize is the byte width of one cached value.
const floatSize = 8

// EstimateMemUsage returns the bytes one rank needs for the named calls
// with a subtree of cacheSize nodes and the parameters split into
// numParam1Comms (and numParam2Comms) blocks. numSubtrees and
// numSubtreeComms do not change the per-rank figure.
//
// Errors:
//   - ErrUnknownSubcall for a name this calculator kind does not run.
func (b *base) EstimateMemUsage(subcalls []string, cacheSize, numSubtrees, numSubtreeComms, numParam1Comms, numParam2Comms int) (int64, error) {
	_, _ = numSubtrees, numSubtreeComms
	cs := int64(cacheSize)
	d := int64(b.dim)
	w1 := int64(slicetools.CeilDiv(b.nparams, max(numParam1Comms, 1)))
	w2 := int64(slicetools.CeilDiv(b.nparams, max(numParam2Comms, 1)))

	var mem int64
	for _, name := range subcalls {
		if b.kind == KindMap {
			switch name {
			case SubcallProbs:
				mem += cs*d + cs
			case SubcallDProbs:
				mem += cs*(w1+d) + cs*d + cs
			case SubcallHProbs:
				mem += cs*(w2+d) + cs*w1*w2 + 2*cs*(w1+d) + cs*d + cs
			default:
				return 0, calcErrorf("EstimateMemUsage", ErrUnknownSubcall)
			}
			continue
		}

		d2 := d * d
		switch name {
		case SubcallProbs:
			mem += cs*d2 + 2*cs
		case SubcallDProbs:
			mem += cs*w1*d2 + cs*d2 + 2*cs
		case SubcallHProbs:
			mem += cs*w1*w2*d2 + cs*(w1+w2)*d2 + cs*d2 + 2*cs
		case SubcallHProbsByBlock:
			ns := int64(math.Round(math.Sqrt(float64(d))))
			mem += cs*w1*w2*d2 + cs*(w1+w2)*d2 + cs*d2 + 2*cs
			mem += 2*cs*ns*w1*w2 + cs*ns*(w1+w2)
		default:
			return 0, calcErrorf("EstimateMemUsage", ErrUnknownSubcall)
		}
	}

	return mem * floatSize, nil
}
