// SPDX-License-Identifier: MIT

// Package gsteval evaluates the outcome probabilities of gate strings, and
// their first and second derivatives with respect to the parameters of a
// gate set, in bulk and over process groups.
//
// A gate string s = (ℓ0, …, ℓn) stands for the operator product
//
//	M(s) = G(ℓn) · … · G(ℓ0)
//
// and a SPAM tuple (ρ, E) turns it into the probability p = E·M(s)·ρ.
// Fitting a gate set to data needs p, ∂p/∂θ and ∂²p/∂θ² for thousands of
// strings that share long prefixes and repeated germ powers.
//
// Packages:
//
//	slicetools/ : half-open index ranges and their partitioning
//	gatestring/ : immutable label sequences and SPAM tuples
//	gateset/    : parametrized gates and SPAM vectors, the global parameter
//	              vector and its index map, the standard {Gi, Gx, Gy} set
//	evaltree/   : evaluation tree sharing sub-products, split into subtrees
//	              and distributed over process groups
//	comm/       : in-process communicators, index distribution and the
//	              gather of partial results into flat buffers
//	config/     : numerical thresholds, memory limits, logging (YAML or options)
//	calc/       : the dense-product and state-propagation calculators, bulk
//	              fills and memory-driven planning
//
// Quick example:
//
//	gs := gateset.Std1QXYI(gateset.ParamTP)
//	c, _ := calc.New(calc.KindMatrix, gs, config.Default())
//	tree, _ := c.ConstructTree(seqs)
//	probs := make([]float64, tree.NumFinalElements())
//	_ = c.BulkFillProbs(ctx, probs, tree)
//
// Runnable programs live under examples/.
package gsteval
