// SPDX-License-Identifier: MIT

// Package gatestring defines operator labels, gate strings (immutable label
// sequences) and SPAM tuples.
//
// A GateString (ℓ₀, …, ℓₙ) stands for the matrix product M(ℓₙ)·…·M(ℓ₀):
// the first label acts first and ends up rightmost. GateString values compare
// and hash by content through Key, so they can index maps and deduplicate
// batches.
package gatestring
