// SPDX-License-Identifier: MIT

// Package gateset holds the parametrized operators (gates, state
// preparations, effects) that gate strings are evaluated against, and the
// GateSet container that owns their global parameter layout.
//
// Conventions:
//
//   - Matrices are gonum *mat.Dense values; d is the operator dimension.
//   - A gate derivative is a d²×n matrix whose column k is the row-major
//     vectorization of ∂G/∂p_k; Hessians are d²×(n1·n2) with column
//     i1·n2+i2 holding ∂²G/∂p_i1∂p_i2. SPAM vectors use d×n and d×(n1·n2).
//   - Filters are local parameter indices. A nil filter selects every local
//     parameter; a result with no columns is returned as nil, since gonum
//     does not represent zero-width matrices.
//
// Operators carry no reference to the GateSet that holds them. The global
// index range of each operator lives in the ParamIndexMap owned by the
// GateSet, so copying an operator never leaves a stale back pointer.
package gateset
