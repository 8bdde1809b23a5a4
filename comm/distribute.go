// SPDX-License-Identifier: MIT

package comm

import (
	"github.com/katalvlaran/gsteval/slicetools"
)

// assignment is the pure part of index distribution: which items rank
// handles and which rank owns (reports) each item.
type assignment struct {
	mine   []int       // positions into the item list handled by this rank
	owners map[int]int // item position -> owning rank
	shared bool        // more ranks than items: ranks are grouped per item
}

// assign distributes n items over nprocs ranks.
//
// With nprocs < n every rank gets a contiguous run of items (first n mod
// nprocs runs one longer) and owns what it gets. Otherwise ranks are grouped,
// each group of consecutive ranks works on one item and the first rank of the
// group owns it.
func assign(n, nprocs, rank int) assignment {
	a := assignment{owners: make(map[int]int, n)}
	if n == 0 {
		return a
	}
	if nprocs < n {
		parts := slicetools.SliceUpRange(n, nprocs)
		for r, p := range parts {
			for i := p.Start; i < p.Stop; i++ {
				a.owners[i] = r
			}
		}
		a.mine = parts[rank].Indices()

		return a
	}

	a.shared = nprocs > n
	groups := slicetools.SliceUpRange(nprocs, n)
	for i, gr := range groups {
		a.owners[i] = gr.Start
		if gr.Contains(rank) {
			a.mine = []int{i}
		}
	}

	return a
}

// DistributeIndices assigns the given indices to the ranks of c.
//
// Returns:
//   - mine: the indices this rank computes.
//   - owners: index -> rank in c responsible for broadcasting its result.
//   - sub: when c has more ranks than indices, the communicator of the ranks
//     sharing this rank's index (they cooperate on it); nil otherwise.
//
// Determinism: every rank computes the same owners map without communicating;
// only the Split needed for sub is collective.
func DistributeIndices(indices []int, c Comm) (mine []int, owners map[int]int, sub Comm, err error) {
	a := assign(len(indices), SizeOf(c), RankOf(c))
	owners = make(map[int]int, len(indices))
	for pos, r := range a.owners {
		owners[indices[pos]] = r
	}
	mine = make([]int, len(a.mine))
	for i, pos := range a.mine {
		mine[i] = indices[pos]
	}
	if a.shared && c != nil {
		sub, err = c.Split(a.mine[0], c.Rank())
		if err != nil {
			return nil, nil, nil, commErrorf("DistributeIndices", err)
		}
	}

	return mine, owners, sub, nil
}

// DistributeSlice divides s among the ranks of c.
//
// Returns the full list of pieces, this rank's piece, piece position -> owning
// rank, and the sub-communicator of ranks sharing a single-index piece when c
// has more ranks than s has indices.
func DistributeSlice(s slicetools.Slice, c Comm) (pieces []slicetools.Slice, mine slicetools.Slice, owners map[int]int, sub Comm, err error) {
	n, nprocs := s.Len(), SizeOf(c)
	a := assign(n, nprocs, RankOf(c))
	owners = a.owners
	if nprocs < n {
		pieces = slicetools.SliceUpSlice(s, nprocs)
		owners = make(map[int]int, nprocs)
		for r := range pieces {
			owners[r] = r
		}
	} else {
		pieces = make([]slicetools.Slice, n)
		for i := 0; i < n; i++ {
			pieces[i] = slicetools.Range(s.Start+i, s.Start+i+1)
		}
	}
	mine = slicetools.Range(s.Start, s.Start)
	if len(a.mine) > 0 {
		if nprocs < n {
			mine = pieces[RankOf(c)]
		} else {
			mine = pieces[a.mine[0]]
		}
	}
	if a.shared && c != nil {
		sub, err = c.Split(a.mine[0], c.Rank())
		if err != nil {
			return nil, slicetools.Slice{}, nil, nil, commErrorf("DistributeSlice", err)
		}
	}

	return pieces, mine, owners, sub, nil
}
