// SPDX-License-Identifier: MIT

// Package calc evaluates probabilities of gate strings, and their first and
// second derivatives with respect to the parameters of a gate set.
//
// Two calculators share one interface:
//
//   - KindMatrix multiplies dense d×d operators along an evaluation tree,
//     rescaling intermediate products to stay in floating-point range, and
//     differentiates analytically.
//   - KindMap propagates state vectors through each gate and differentiates
//     by central finite differences on a private copy of the parameters.
//
// Bulk fills evaluate a whole evaltree.Tree into caller-owned row-major
// buffers. Rows are gate-string major, SPAM tuple minor; derivative columns
// follow the global parameter layout of the gate set (or a caller filter).
// Given a communicator, the work is split over subtrees and parameter blocks
// and every rank ends with the complete result.
//
// Planning helpers pick the subtree count and parameter block sizes that fit
// a memory budget for a given process count.
//
// A calculator snapshots its gate set at construction. Later changes to the
// caller's gate set are not seen, and the calculator never writes to it.
package calc
