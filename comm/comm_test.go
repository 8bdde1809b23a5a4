// SPDX-License-Identifier: MIT

package comm_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/gsteval/comm"
)

func TestNewWorld_InvalidSize(t *testing.T) {
	_, err := comm.NewWorld(0)
	assert.ErrorIs(t, err, comm.ErrInvalidSize)
}

func TestNilComm_Helpers(t *testing.T) {
	assert.Equal(t, 1, comm.SizeOf(nil))
	assert.Equal(t, 0, comm.RankOf(nil))

	got, err := comm.BcastFloats(nil, 0, []float64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, got)
}

func TestRun_BcastAndAllgather(t *testing.T) {
	const size = 4
	var mu sync.Mutex
	seen := make(map[int][]any)

	err := comm.Run(context.Background(), size, func(_ context.Context, c comm.Comm) error {
		v, err := c.Bcast(2, c.Rank()*10)
		if err != nil {
			return err
		}
		if v.(int) != 20 {
			return errors.New("wrong broadcast value")
		}
		all, err := c.Allgather(c.Rank())
		if err != nil {
			return err
		}
		mu.Lock()
		seen[c.Rank()] = all
		mu.Unlock()

		return c.Barrier()
	})
	require.NoError(t, err)
	for r := 0; r < size; r++ {
		assert.Equal(t, []any{0, 1, 2, 3}, seen[r])
	}
}

// TestSplit_GroupsByColorAndKey checks rank order inside the new groups.
func TestSplit_GroupsByColorAndKey(t *testing.T) {
	const size = 5
	var mu sync.Mutex
	ranks := make(map[int][2]int) // world rank -> (sub rank, sub size)

	err := comm.Run(context.Background(), size, func(_ context.Context, c comm.Comm) error {
		// Even ranks together, odd ranks together, reversed by key.
		sub, err := c.Split(c.Rank()%2, -c.Rank())
		if err != nil {
			return err
		}
		// Exercise the child group.
		if _, err = sub.Allgather(c.Rank()); err != nil {
			return err
		}
		mu.Lock()
		ranks[c.Rank()] = [2]int{sub.Rank(), sub.Size()}
		mu.Unlock()

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [2]int{2, 3}, ranks[0])
	assert.Equal(t, [2]int{1, 3}, ranks[2])
	assert.Equal(t, [2]int{0, 3}, ranks[4])
	assert.Equal(t, [2]int{1, 2}, ranks[1])
	assert.Equal(t, [2]int{0, 2}, ranks[3])
}

func TestSplit_NegativeColorOptsOut(t *testing.T) {
	err := comm.Run(context.Background(), 3, func(_ context.Context, c comm.Comm) error {
		color := 0
		if c.Rank() == 1 {
			color = -1
		}
		sub, err := c.Split(color, c.Rank())
		if err != nil {
			return err
		}
		if c.Rank() == 1 && sub != nil {
			return errors.New("expected nil sub comm")
		}
		if c.Rank() != 1 && sub.Size() != 2 {
			return errors.New("expected sub comm of size 2")
		}

		return nil
	})
	require.NoError(t, err)
}

// TestRun_AbortWakesBlockedRanks ensures a failing rank does not leave its
// peers stuck inside a collective.
func TestRun_AbortWakesBlockedRanks(t *testing.T) {
	boom := errors.New("boom")
	var mu sync.Mutex
	var peerErrs []error

	err := comm.Run(context.Background(), 3, func(_ context.Context, c comm.Comm) error {
		if c.Rank() == 0 {
			return boom
		}
		err := c.Barrier()
		mu.Lock()
		peerErrs = append(peerErrs, err)
		mu.Unlock()

		return err
	})
	assert.ErrorIs(t, err, boom)
	require.Len(t, peerErrs, 2)
	for _, e := range peerErrs {
		assert.ErrorIs(t, e, comm.ErrAborted)
	}
}

func TestBcast_InvalidRoot(t *testing.T) {
	c := comm.Self()
	_, err := c.Bcast(1, 0)
	assert.ErrorIs(t, err, comm.ErrInvalidRoot)
}
