// SPDX-License-Identifier: MIT

package comm

import (
	"github.com/katalvlaran/gsteval/slicetools"
)

// floatSize is the byte width of one buffer element.
const floatSize = 8

// Array is a row-major view over a caller-owned flat buffer.
type Array struct {
	Data  []float64
	Shape []int
}

// NewArray wraps data with the given shape.
// Returns ErrShape if len(data) differs from the product of shape.
func NewArray(data []float64, shape ...int) (Array, error) {
	n := 1
	for _, s := range shape {
		if s < 0 {
			return Array{}, commErrorf("NewArray", ErrShape)
		}
		n *= s
	}
	if len(data) != n {
		return Array{}, commErrorf("NewArray", ErrShape)
	}

	return Array{Data: data, Shape: append([]int(nil), shape...)}, nil
}

// Selector lists the indices taken along one axis. A nil Selector takes the
// whole axis.
type Selector []int

// SliceSelector returns the selector covering s.
func SliceSelector(s slicetools.Slice) Selector { return Selector(s.Indices()) }

// resolve expands nil selectors to full axes and validates bounds.
func (a Array) resolve(sel []Selector) ([][]int, error) {
	if len(sel) > len(a.Shape) {
		return nil, ErrShape
	}
	out := make([][]int, len(a.Shape))
	for ax, dim := range a.Shape {
		if ax < len(sel) && sel[ax] != nil {
			for _, i := range sel[ax] {
				if i < 0 || i >= dim {
					return nil, ErrShape
				}
			}
			out[ax] = sel[ax]
			continue
		}
		out[ax] = slicetools.Range(0, dim).Indices()
	}

	return out, nil
}

// offsets returns the flat positions of the Cartesian product of sel, in
// row-major order of the selection.
func (a Array) offsets(sel [][]int) []int {
	strides := make([]int, len(a.Shape))
	stride := 1
	for ax := len(a.Shape) - 1; ax >= 0; ax-- {
		strides[ax] = stride
		stride *= a.Shape[ax]
	}
	out := []int{0}
	for ax, idx := range sel {
		next := make([]int, 0, len(out)*len(idx))
		for _, base := range out {
			for _, i := range idx {
				next = append(next, base+i*strides[ax])
			}
		}
		out = next
	}

	return out
}

// Extract copies the selected block out of a.
func (a Array) Extract(sel ...Selector) ([]float64, error) {
	res, err := a.resolve(sel)
	if err != nil {
		return nil, commErrorf("Extract", err)
	}
	offs := a.offsets(res)
	out := make([]float64, len(offs))
	for i, o := range offs {
		out[i] = a.Data[o]
	}

	return out, nil
}

// Assign writes vals into the selected block of a.
func (a Array) Assign(vals []float64, sel ...Selector) error {
	res, err := a.resolve(sel)
	if err != nil {
		return commErrorf("Assign", err)
	}
	offs := a.offsets(res)
	if len(offs) != len(vals) {
		return commErrorf("Assign", ErrShape)
	}
	for i, o := range offs {
		a.Data[o] = vals[i]
	}

	return nil
}

// GatherIndices makes every rank of c hold the blocks computed by their
// owners. Block k covers indices[k] along axis; the leading axes are
// restricted by fixed and all other axes are taken whole. memLimit > 0 caps
// the bytes of one broadcast; larger blocks are sent in several rounds.
func GatherIndices(indices [][]int, owners map[int]int, a Array, fixed []Selector, axis int, c Comm, memLimit int64) error {
	if c == nil || c.Size() == 1 {
		return nil
	}
	for k, idx := range indices {
		owner, ok := owners[k]
		if !ok {
			return commErrorf("GatherIndices", ErrMissingOwner)
		}
		if err := gatherBlock(idx, owner, a, fixed, axis, c, memLimit); err != nil {
			return commErrorf("GatherIndices", err)
		}
	}

	return nil
}

// GatherSlices is GatherIndices for contiguous blocks.
func GatherSlices(slices []slicetools.Slice, owners map[int]int, a Array, fixed []Selector, axis int, c Comm, memLimit int64) error {
	if c == nil || c.Size() == 1 {
		return nil
	}
	for k, s := range slices {
		owner, ok := owners[k]
		if !ok {
			return commErrorf("GatherSlices", ErrMissingOwner)
		}
		if err := gatherBlock(s.Indices(), owner, a, fixed, axis, c, memLimit); err != nil {
			return commErrorf("GatherSlices", err)
		}
	}

	return nil
}

// gatherBlock broadcasts one block from its owner, chunked along axis so that
// no broadcast exceeds memLimit bytes.
func gatherBlock(idx []int, owner int, a Array, fixed []Selector, axis int, c Comm, memLimit int64) error {
	if axis < len(fixed) || axis >= len(a.Shape) {
		return ErrShape
	}
	if len(idx) == 0 {
		return nil
	}
	sel := make([]Selector, axis+1)
	copy(sel, fixed)

	chunk := len(idx)
	if memLimit > 0 {
		res, err := a.resolve(fixed)
		if err != nil {
			return err
		}
		slab := int64(floatSize)
		for ax, r := range res {
			if ax != axis {
				slab *= int64(len(r))
			}
		}
		if slab > memLimit {
			return ErrGatherMemLimit
		}
		chunk = int(min(memLimit/slab, int64(len(idx))))
	}

	for start := 0; start < len(idx); start += chunk {
		sel[axis] = Selector(idx[start:min(start+chunk, len(idx))])
		var payload []float64
		if c.Rank() == owner {
			vals, err := a.Extract(sel...)
			if err != nil {
				return err
			}
			payload = vals
		}
		got, err := BcastFloats(c, owner, payload)
		if err != nil {
			return err
		}
		if c.Rank() != owner {
			if err = a.Assign(got, sel...); err != nil {
				return err
			}
		}
	}

	return nil
}
