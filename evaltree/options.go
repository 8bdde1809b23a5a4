// SPDX-License-Identifier: MIT

package evaltree

import (
	"log/slog"
)

// DefaultNumSubtreeComms is the number of process groups subtrees are spread over.
const DefaultNumSubtreeComms = 1

// Option configures Build.
type Option func(*options)

type options struct {
	logger          *slog.Logger
	numSubtreeComms int
	maxSubtreeSize  int
	minSubtrees     int
}

func defaultOptions() options {
	return options{logger: slog.Default(), numSubtreeComms: DefaultNumSubtreeComms}
}

// WithLogger sets the logger used for split warnings. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithNumSubtreeComms sets how many process groups Distribute forms.
// Panics if n < 1.
func WithNumSubtreeComms(n int) Option {
	if n < 1 {
		panic("evaltree: WithNumSubtreeComms requires n >= 1")
	}

	return func(o *options) { o.numSubtreeComms = n }
}

// WithMaxSubtreeSize splits the built tree so no subtree exceeds n nodes.
// Panics if n < 1.
func WithMaxSubtreeSize(n int) Option {
	if n < 1 {
		panic("evaltree: WithMaxSubtreeSize requires n >= 1")
	}

	return func(o *options) { o.maxSubtreeSize = n }
}

// WithMinSubtrees splits the built tree into at least n subtrees.
// Panics if n < 1.
func WithMinSubtrees(n int) Option {
	if n < 1 {
		panic("evaltree: WithMinSubtrees requires n >= 1")
	}

	return func(o *options) { o.minSubtrees = n }
}
