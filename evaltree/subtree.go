// SPDX-License-Identifier: MIT

package evaltree

import (
	"sort"

	"github.com/katalvlaran/gsteval/gatestring"
	"github.com/katalvlaran/gsteval/slicetools"
)

// SubTree is a child-closed subset of a tree's nodes with local numbering.
// Its nodes are ordered so that children precede parents.
type SubTree struct {
	parent       *Tree
	nodes        []Node // local numbering
	global       []int  // local -> tree node
	finalStrings []int  // input gate strings evaluated here, ascending
	finalLocal   []int  // local node of each final string
}

// Size returns the number of nodes.
func (s *SubTree) Size() int { return len(s.nodes) }

// Node returns local node i; Left/Right are local indices.
func (s *SubTree) Node(i int) Node { return s.nodes[i] }

// GlobalIndex returns the tree index of local node i.
func (s *SubTree) GlobalIndex(i int) int { return s.global[i] }

// Seq returns the gate string of local node i.
func (s *SubTree) Seq(i int) gatestring.GateString { return s.parent.seqs[s.global[i]] }

// FinalStrings returns the input indices of the gate strings this subtree evaluates.
func (s *SubTree) FinalStrings() []int { return append([]int(nil), s.finalStrings...) }

// FinalLocalNodes returns, aligned with FinalStrings, the local node of each.
func (s *SubTree) FinalLocalNodes() []int { return append([]int(nil), s.finalLocal...) }

// FinalElementIndices returns the global result rows this subtree produces,
// gate-string major, SPAM tuple minor.
func (s *SubTree) FinalElementIndices() []int {
	n := len(s.parent.spam)
	out := make([]int, 0, len(s.finalStrings)*n)
	for _, i := range s.finalStrings {
		out = append(out, s.parent.Lookup(i).Indices()...)
	}

	return out
}

// NumFinalElements returns len(FinalElementIndices()).
func (s *SubTree) NumFinalElements() int { return len(s.finalStrings) * len(s.parent.spam) }

// wholeSubTree is the trivial partition: every node, every final string.
func (t *Tree) wholeSubTree() *SubTree {
	st := &SubTree{
		parent:       t,
		nodes:        append([]Node(nil), t.nodes...),
		global:       slicetools.Range(0, len(t.nodes)).Indices(),
		finalStrings: slicetools.Range(0, len(t.inputs)).Indices(),
		finalLocal:   append([]int(nil), t.finals...),
	}

	return st
}

// distinctFinalNodes returns each final node once, in order of first request.
func (t *Tree) distinctFinalNodes() []int {
	seen := make(map[int]bool, len(t.finals))
	out := make([]int, 0, len(t.finals))
	for _, f := range t.finals {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}

	return out
}

// Split partitions the tree into child-closed subtrees.
//
// Exactly one criterion must be positive:
//   - maxSize: greedily pack final gate strings, in request order, into
//     subtrees of at most maxSize nodes. If one gate string alone needs more,
//     the bound cannot be met; a warning is logged and the tree is split by
//     count into ceil(Size/maxSize) subtrees instead.
//   - minSubtrees: cut the distinct final gate strings into minSubtrees
//     contiguous groups. Asking for more subtrees than there are distinct
//     final gate strings logs a warning and leaves the tree unsplit.
//
// Gate strings requested several times always land in the same subtree.
// Calling Split again replaces the previous partition.
func (t *Tree) Split(maxSize, minSubtrees int) error {
	switch {
	case maxSize > 0 && minSubtrees > 0:
		return evaltreeErrorf("Split", ErrAmbiguousSplit)
	case maxSize <= 0 && minSubtrees <= 0:
		return evaltreeErrorf("Split", ErrNoSplitCriterion)
	}
	roots := t.distinctFinalNodes()
	if minSubtrees > 0 {
		return t.splitByCount(roots, minSubtrees)
	}

	groups, ok, err := t.groupBySize(roots, maxSize)
	if err != nil {
		return evaltreeErrorf("Split", err)
	}
	if !ok {
		k := min(slicetools.CeilDiv(len(t.nodes), maxSize), len(roots))
		t.logger.Warn("evaltree: max subtree size cannot be met, splitting by count instead",
			"max_subtree_size", maxSize, "subtrees", k)
		return t.splitByCount(roots, k)
	}

	return t.applyGroups(groups)
}

func (t *Tree) splitByCount(roots []int, k int) error {
	if k > len(roots) {
		t.logger.Warn("evaltree: more subtrees requested than distinct gate strings, leaving tree unsplit",
			"min_subtrees", k, "distinct_gate_strings", len(roots))
		t.subtrees = []*SubTree{t.wholeSubTree()}
		t.split = false
		return nil
	}

	return t.applyGroups(slicetools.SliceUpIndices(roots, k))
}

// groupBySize packs roots into groups whose closures stay within maxSize.
// ok is false when a single root exceeds the bound.
func (t *Tree) groupBySize(roots []int, maxSize int) (groups [][]int, ok bool, err error) {
	w := newClosureWalker(t.nodes)
	var cur []int
	for _, r := range roots {
		added, err := w.tryAdd(r, maxSize)
		if err != nil {
			return nil, false, err
		}
		if !added {
			groups = append(groups, cur)
			cur = nil
			w.reset()
			if _, err = w.tryAdd(r, maxSize); err != nil {
				return nil, false, err
			}
		}
		if len(w.order) > maxSize {
			return nil, false, nil
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}

	return groups, true, nil
}

// applyGroups turns groups of final nodes into subtrees.
func (t *Tree) applyGroups(groups [][]int) error {
	if len(groups) == 0 {
		t.subtrees = []*SubTree{t.wholeSubTree()}
		t.split = false
		return nil
	}
	groupOf := make(map[int]int)
	subtrees := make([]*SubTree, len(groups))
	for g, roots := range groups {
		ids, err := closure(t.nodes, roots)
		if err != nil {
			return evaltreeErrorf("Split", err)
		}
		sort.Ints(ids)
		local := make(map[int]int, len(ids))
		st := &SubTree{parent: t, global: ids, nodes: make([]Node, len(ids))}
		for li, gi := range ids {
			local[gi] = li
			n := t.nodes[gi]
			if n.Kind == NodeProduct {
				n.Left, n.Right = local[n.Left], local[n.Right]
			}
			st.nodes[li] = n
		}
		for _, r := range roots {
			groupOf[r] = g
		}
		subtrees[g] = st
		for i, f := range t.finals {
			if gi, ok := groupOf[f]; ok && gi == g {
				st.finalStrings = append(st.finalStrings, i)
				st.finalLocal = append(st.finalLocal, local[f])
			}
		}
	}
	t.subtrees = subtrees
	t.split = len(subtrees) > 1

	return nil
}
