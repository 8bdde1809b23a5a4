// SPDX-License-Identifier: MIT

// Package slicetools provides half-open integer ranges and the helpers used
// to cut parameter and sequence index ranges into per-process pieces.
//
// A Slice is the [Start, Stop) range of indices. All helpers are pure and
// deterministic: the same inputs always produce the same partition, which is
// what lets every rank of a process group compute the same layout without
// talking to the others.
//
// Typical usage:
//
//	blocks := slicetools.SliceUpRange(nParams, nBlocks)
//	for _, b := range blocks {
//		cols := b.Indices()
//		...
//	}
package slicetools
