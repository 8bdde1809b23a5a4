// SPDX-License-Identifier: MIT

package comm

// Comm is a process group. All methods except Rank and Size are collective.
type Comm interface {
	// Rank is this process' index in [0, Size()).
	Rank() int

	// Size is the number of processes in the group.
	Size() int

	// Split partitions the group by color; ranks sharing a color form a new
	// group ordered by (key, old rank). A negative color opts out and yields a
	// nil Comm.
	Split(color, key int) (Comm, error)

	// Bcast returns root's v on every rank.
	Bcast(root int, v any) (any, error)

	// Allgather returns every rank's v, indexed by rank.
	Allgather(v any) ([]any, error)

	// Barrier blocks until every rank has reached it.
	Barrier() error
}

// SizeOf returns c.Size(), or 1 for a nil Comm.
func SizeOf(c Comm) int {
	if c == nil {
		return 1
	}

	return c.Size()
}

// RankOf returns c.Rank(), or 0 for a nil Comm.
func RankOf(c Comm) int {
	if c == nil {
		return 0
	}

	return c.Rank()
}

// BcastFloats broadcasts a float slice from root. On a nil Comm it returns v.
func BcastFloats(c Comm, root int, v []float64) ([]float64, error) {
	if c == nil {
		return v, nil
	}
	got, err := c.Bcast(root, v)
	if err != nil {
		return nil, err
	}
	out, ok := got.([]float64)
	if !ok {
		return nil, commErrorf("BcastFloats", ErrPayload)
	}

	return out, nil
}
