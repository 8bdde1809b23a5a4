// SPDX-License-Identifier: MIT

package comm

import (
	"sort"
	"sync"
	"sync/atomic"
)

// world is the shared state of all groups descended from one NewWorld call.
type world struct {
	aborted atomic.Bool
	mu      sync.Mutex
	groups  []*group
}

// abort marks the world failed and wakes every blocked collective.
func (w *world) abort() {
	w.aborted.Store(true)
	w.mu.Lock()
	groups := append([]*group(nil), w.groups...)
	w.mu.Unlock()
	for _, g := range groups {
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
	}
}

func (w *world) newGroup(size int) *group {
	g := &group{size: size, world: w, rounds: make(map[uint64]*round)}
	g.cond = sync.NewCond(&g.mu)
	w.mu.Lock()
	w.groups = append(w.groups, g)
	w.mu.Unlock()

	return g
}

// group holds the rendezvous state of one communicator.
type group struct {
	size   int
	world  *world
	mu     sync.Mutex
	cond   *sync.Cond
	rounds map[uint64]*round
}

// round is one collective call, identified by its sequence number.
type round struct {
	vals     []any
	arrived  int
	departed int
	children map[int]*group // Split results keyed by color
}

// local is one rank's handle on a group. A handle is used by a single
// goroutine, so seq needs no locking.
type local struct {
	g    *group
	rank int
	seq  uint64
}

// NewWorld creates a world of size ranks and returns one Comm per rank.
// Each handle must be driven by its own goroutine.
func NewWorld(size int) ([]Comm, error) {
	if size < 1 {
		return nil, commErrorf("NewWorld", ErrInvalidSize)
	}
	w := &world{}
	g := w.newGroup(size)
	out := make([]Comm, size)
	for r := 0; r < size; r++ {
		out[r] = &local{g: g, rank: r}
	}

	return out, nil
}

// Self returns a single-rank communicator.
func Self() Comm {
	cs, _ := NewWorld(1)
	return cs[0]
}

func (c *local) Rank() int { return c.rank }
func (c *local) Size() int { return c.g.size }

// exchange deposits v and waits until every rank of the group has deposited
// its value for the same round.
func (c *local) exchange(v any) ([]any, *round, error) {
	g := c.g
	seq := c.seq
	c.seq++

	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.rounds[seq]
	if r == nil {
		r = &round{vals: make([]any, g.size)}
		g.rounds[seq] = r
	}
	r.vals[c.rank] = v
	r.arrived++
	if r.arrived == g.size {
		g.cond.Broadcast()
	}
	for r.arrived < g.size {
		if g.world.aborted.Load() {
			return nil, nil, ErrAborted
		}
		g.cond.Wait()
	}
	r.departed++
	if r.departed == g.size {
		delete(g.rounds, seq)
	}

	return r.vals, r, nil
}

func (c *local) Bcast(root int, v any) (any, error) {
	if root < 0 || root >= c.g.size {
		return nil, commErrorf("Bcast", ErrInvalidRoot)
	}
	var send any
	if c.rank == root {
		send = v
	}
	vals, _, err := c.exchange(send)
	if err != nil {
		return nil, commErrorf("Bcast", err)
	}

	return vals[root], nil
}

func (c *local) Allgather(v any) ([]any, error) {
	vals, _, err := c.exchange(v)
	if err != nil {
		return nil, commErrorf("Allgather", err)
	}

	return append([]any(nil), vals...), nil
}

func (c *local) Barrier() error {
	if _, _, err := c.exchange(nil); err != nil {
		return commErrorf("Barrier", err)
	}

	return nil
}

type splitRequest struct {
	color, key int
}

func (c *local) Split(color, key int) (Comm, error) {
	vals, r, err := c.exchange(splitRequest{color: color, key: key})
	if err != nil {
		return nil, commErrorf("Split", err)
	}
	if color < 0 {
		return nil, nil
	}

	// Members of my color ordered by (key, old rank).
	members := make([]int, 0, len(vals))
	for rank, v := range vals {
		if v.(splitRequest).color == color {
			members = append(members, rank)
		}
	}
	sort.SliceStable(members, func(i, j int) bool {
		return vals[members[i]].(splitRequest).key < vals[members[j]].(splitRequest).key
	})
	newRank := 0
	for i, m := range members {
		if m == c.rank {
			newRank = i
			break
		}
	}

	c.g.mu.Lock()
	if r.children == nil {
		r.children = make(map[int]*group)
	}
	child, ok := r.children[color]
	if !ok {
		child = c.g.world.newGroup(len(members))
		r.children[color] = child
	}
	c.g.mu.Unlock()

	return &local{g: child, rank: newRank}, nil
}
