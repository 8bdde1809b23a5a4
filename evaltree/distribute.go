// SPDX-License-Identifier: MIT

package evaltree

import (
	"sort"

	"github.com/katalvlaran/gsteval/comm"
	"github.com/katalvlaran/gsteval/slicetools"
)

// Distribute assigns subtrees to process groups of c.
//
// Implementation:
//   - Stage 1: form min(NumSubtreeComms, Size, #subtrees) groups of
//     consecutive ranks and split c accordingly.
//   - Stage 2: hand subtrees to groups largest first, each to the currently
//     lightest group (ties to the lower group), balancing node counts.
//
// Returns:
//   - mine: indices into SubTrees() that this rank's group evaluates, ascending.
//   - owners: subtree index -> rank in c that reports its results (the first
//     rank of the owning group).
//   - sub: the communicator of this rank's group, nil when c is nil.
//
// Determinism: the assignment depends only on subtree sizes and group count,
// so every rank derives the same owners map.
func (t *Tree) Distribute(c comm.Comm) (mine []int, owners map[int]int, sub comm.Comm, err error) {
	n := len(t.subtrees)
	owners = make(map[int]int, n)
	if c == nil {
		mine = slicetools.Range(0, n).Indices()
		for i := range mine {
			owners[i] = 0
		}
		return mine, owners, nil, nil
	}

	nGroups := max(min(t.numSubtreeComms, c.Size(), n), 1)
	ranges := slicetools.SliceUpRange(c.Size(), nGroups)
	myGroup := 0
	for g, r := range ranges {
		if r.Contains(c.Rank()) {
			myGroup = g
		}
	}
	sub, err = c.Split(myGroup, c.Rank())
	if err != nil {
		return nil, nil, nil, evaltreeErrorf("Distribute", err)
	}

	bySize := slicetools.Range(0, n).Indices()
	sort.SliceStable(bySize, func(a, b int) bool {
		return t.subtrees[bySize[a]].Size() > t.subtrees[bySize[b]].Size()
	})
	load := make([]int, nGroups)
	for _, st := range bySize {
		g := 0
		for k := 1; k < nGroups; k++ {
			if load[k] < load[g] {
				g = k
			}
		}
		load[g] += t.subtrees[st].Size()
		owners[st] = ranges[g].Start
		if g == myGroup {
			mine = append(mine, st)
		}
	}
	sort.Ints(mine)

	return mine, owners, sub, nil
}
