// SPDX-License-Identifier: MIT

package gateset

import (
	"github.com/katalvlaran/gsteval/gatestring"
	"github.com/katalvlaran/gsteval/slicetools"
)

// OpKind distinguishes the three operator families of a gate set.
type OpKind int

const (
	KindPrep OpKind = iota
	KindEffect
	KindGate
)

// String returns the family name.
func (k OpKind) String() string {
	switch k {
	case KindPrep:
		return "prep"
	case KindEffect:
		return "effect"
	default:
		return "gate"
	}
}

// OpID identifies one operator of a gate set.
type OpID struct {
	Kind  OpKind
	Label gatestring.Label
}

// ParamIndexMap maps each operator to its contiguous range of the global
// parameter vector. Preps come first, then effects, then gates, each family
// in insertion order. A ParamIndexMap is immutable once built.
type ParamIndexMap struct {
	order  []OpID
	ranges map[OpID]slicetools.Slice
	total  int
}

// buildParamIndexMap lays out ops in order with the given parameter counts.
func buildParamIndexMap(order []OpID, counts []int) *ParamIndexMap {
	m := &ParamIndexMap{
		order:  append([]OpID(nil), order...),
		ranges: make(map[OpID]slicetools.Slice, len(order)),
	}
	for i, id := range order {
		m.ranges[id] = slicetools.Range(m.total, m.total+counts[i])
		m.total += counts[i]
	}

	return m
}

// Indices returns the global range of id and whether id is known.
func (m *ParamIndexMap) Indices(id OpID) (slicetools.Slice, bool) {
	s, ok := m.ranges[id]
	return s, ok
}

// NumParams returns the length of the global parameter vector.
func (m *ParamIndexMap) NumParams() int { return m.total }

// Order returns the operators in layout order.
func (m *ParamIndexMap) Order() []OpID { return append([]OpID(nil), m.order...) }

// LocalFilter selects, among the global indices wrt, those owned by id.
//
// Returns:
//   - local: the operator's local parameter indices that appear in wrt.
//   - cols: the matching positions into wrt (output columns).
//
// A nil wrt means every global index, in which case cols are the global
// indices themselves.
func (m *ParamIndexMap) LocalFilter(id OpID, wrt []int) (local, cols []int) {
	s, ok := m.ranges[id]
	if !ok {
		return nil, nil
	}
	if wrt == nil {
		for i := s.Start; i < s.Stop; i++ {
			local = append(local, i-s.Start)
			cols = append(cols, i)
		}
		return local, cols
	}
	for pos, g := range wrt {
		if s.Contains(g) {
			local = append(local, g-s.Start)
			cols = append(cols, pos)
		}
	}

	return local, cols
}
