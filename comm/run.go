// SPDX-License-Identifier: MIT

package comm

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RankFunc is the body executed by every rank of a world.
type RankFunc func(ctx context.Context, c Comm) error

// Run starts size ranks, each running fn on its own goroutine, and waits for
// all of them. The first rank to return an error cancels ctx for the others
// and aborts every pending collective, so the world never deadlocks on a
// failed peer. Run returns that first error.
func Run(ctx context.Context, size int, fn RankFunc) error {
	comms, err := NewWorld(size)
	if err != nil {
		return err
	}
	w := comms[0].(*local).g.world

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, w.abort)
	defer stop()

	for _, c := range comms {
		c := c
		g.Go(func() error { return fn(gctx, c) })
	}

	return g.Wait()
}
