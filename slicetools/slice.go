// SPDX-License-Identifier: MIT

package slicetools

import "fmt"

// Slice is the half-open index range [Start, Stop).
type Slice struct {
	Start int
	Stop  int
}

// Range returns the Slice [start, stop).
func Range(start, stop int) Slice { return Slice{Start: start, Stop: stop} }

// Len returns the number of indices in s. An inverted range has length 0.
func (s Slice) Len() int {
	if s.Stop <= s.Start {
		return 0
	}

	return s.Stop - s.Start
}

// Empty reports whether s contains no index.
func (s Slice) Empty() bool { return s.Len() == 0 }

// Contains reports whether i lies in s.
func (s Slice) Contains(i int) bool { return i >= s.Start && i < s.Stop }

// Indices materializes s as an ascending index list.
func (s Slice) Indices() []int {
	n := s.Len()
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = s.Start + i
	}

	return out
}

// Shift moves both ends of s by off.
func (s Slice) Shift(off int) Slice {
	return Slice{Start: s.Start + off, Stop: s.Stop + off}
}

// String renders s as "[start:stop)".
func (s Slice) String() string { return fmt.Sprintf("[%d:%d)", s.Start, s.Stop) }

// Intersect returns the overlap of a and b, or an empty Slice anchored at
// max(a.Start, b.Start) when they are disjoint.
func Intersect(a, b Slice) Slice {
	start := max(a.Start, b.Start)
	stop := min(a.Stop, b.Stop)
	if stop < start {
		stop = start
	}

	return Slice{Start: start, Stop: stop}
}

// IntersectWithin returns the overlap of a and b expressed relative to
// a.Start, i.e. the positions inside a that b covers.
func IntersectWithin(a, b Slice) Slice {
	return Intersect(a, b).Shift(-a.Start)
}

// ListToSlice converts an ascending run of consecutive integers to a Slice.
//
// Errors:
//   - ErrEmpty if idx is empty and allowEmpty is false.
//   - ErrNotContiguous if idx is not a run start, start+1, ...
func ListToSlice(idx []int, allowEmpty bool) (Slice, error) {
	if len(idx) == 0 {
		if allowEmpty {
			return Slice{}, nil
		}
		return Slice{}, slicetoolsErrorf("ListToSlice", ErrEmpty)
	}
	for i := 1; i < len(idx); i++ {
		if idx[i] != idx[0]+i {
			return Slice{}, slicetoolsErrorf("ListToSlice", ErrNotContiguous)
		}
	}

	return Slice{Start: idx[0], Stop: idx[len(idx)-1] + 1}, nil
}

// SliceUpRange cuts [0, n) into k contiguous pieces whose lengths differ by
// at most one; the first n mod k pieces carry the extra element. When k > n
// the trailing pieces are empty.
//
// Complexity: O(k).
func SliceUpRange(n, k int) []Slice {
	return SliceUpSlice(Slice{Start: 0, Stop: n}, k)
}

// SliceUpSlice is SliceUpRange over an arbitrary base range.
// It panics if k is not positive.
func SliceUpSlice(s Slice, k int) []Slice {
	if k <= 0 {
		panic(slicetoolsErrorf("SliceUpSlice", ErrInvalidCount))
	}
	n := s.Len()
	base, extra := n/k, n%k
	out := make([]Slice, k)
	start := s.Start
	for i := 0; i < k; i++ {
		size := base
		if i < extra {
			size++
		}
		out[i] = Slice{Start: start, Stop: start + size}
		start += size
	}

	return out
}

// SliceUpIndices cuts an index list into k contiguous runs following the
// same length rule as SliceUpRange.
func SliceUpIndices(idx []int, k int) [][]int {
	parts := SliceUpRange(len(idx), k)
	out := make([][]int, k)
	for i, p := range parts {
		out[i] = idx[p.Start:p.Stop]
	}

	return out
}

// CeilDiv returns ceil(a/b) for positive b.
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}
