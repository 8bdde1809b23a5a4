// SPDX-License-Identifier: MIT

package evaltree

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownLabel indicates a gate string using a label outside the alphabet.
	ErrUnknownLabel = errors.New("evaltree: label not in alphabet")

	// ErrDuplicateLabel indicates an alphabet listing the same label twice.
	ErrDuplicateLabel = errors.New("evaltree: duplicate alphabet label")

	// ErrNoSpamTuples indicates a tree built without any SPAM tuple.
	ErrNoSpamTuples = errors.New("evaltree: no SPAM tuples")

	// ErrAmbiguousSplit indicates both a maximum subtree size and a minimum subtree count.
	ErrAmbiguousSplit = errors.New("evaltree: specify either max subtree size or min subtree count, not both")

	// ErrNoSplitCriterion indicates a Split with neither criterion.
	ErrNoSplitCriterion = errors.New("evaltree: split needs a max subtree size or a min subtree count")

	// ErrCycle indicates a node reachable from itself.
	ErrCycle = errors.New("evaltree: cycle detected")

	// ErrNodeOrder indicates a child that does not precede its parent.
	ErrNodeOrder = errors.New("evaltree: child does not precede parent")
)

// evaltreeErrorf tags err with the calling operation.
func evaltreeErrorf(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
