// SPDX-License-Identifier: MIT

// Package comm implements process groups ("communicators") and the
// partition/gather helpers that spread evaluation work over them.
//
// What:
//
//   - Comm is the collective-communication contract used throughout gsteval:
//     Split, Bcast, Allgather and Barrier, each blocking until every member
//     of the group has made the matching call.
//   - NewWorld and Run provide an in-process implementation where each rank
//     is a goroutine. Run starts the ranks with errgroup and aborts the whole
//     world as soon as one rank fails, so no rank stays blocked in a
//     collective that will never complete.
//   - DistributeIndices / DistributeSlice decide which rank works on which
//     item; GatherIndices / GatherSlices merge the per-rank results into a
//     flat row-major Array on every rank.
//
// Ordering:
//
//	Collectives are matched by call order. Every rank of a group must issue
//	the same sequence of collective calls on it, including ranks that own no
//	work in a given partition (they still take part in the gathers).
//
// A nil Comm is valid everywhere and means "single process, no group".
package comm
