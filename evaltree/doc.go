// SPDX-License-Identifier: MIT

// Package evaltree builds evaluation trees: DAGs that let a batch of gate
// strings share their common sub-products.
//
// Every node stands for one gate string. Node 0 is the empty string, nodes
// 1..|alphabet| are the single labels, and every later node is a product
// node with two children, Right and Left, such that
//
//	labels(node)  = labels(Right) followed by labels(Left)
//	product(node) = product(Left) · product(Right)
//
// Right holds the labels applied first, which is why it sits rightmost in
// the matrix product. Children always have smaller indices than their parent,
// so walking nodes in index order is a valid evaluation order.
//
// A Tree can be split into SubTrees, each closed under children, to bound
// per-partition memory; Distribute assigns SubTrees to the ranks of a
// comm.Comm. Final elements (one per input gate string and SPAM tuple) are
// numbered seq·nSpam + spam, independent of any split.
package evaltree
