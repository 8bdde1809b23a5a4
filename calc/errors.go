// SPDX-License-Identifier: MIT

package calc

import (
	"errors"
	"fmt"
)

var (
	// ErrNilGateSet indicates a calculator constructed without a gate set.
	ErrNilGateSet = errors.New("calc: nil gate set")

	// ErrUnknownKind indicates a calculator kind outside KindMatrix/KindMap.
	ErrUnknownKind = errors.New("calc: unknown calculator kind")

	// ErrUnknownLabel indicates a gate string or SPAM tuple naming an
	// operator the gate set lacks.
	ErrUnknownLabel = errors.New("calc: unknown operator label")

	// ErrConflictingOptions indicates a parameter filter combined with a
	// block size on the same axis.
	ErrConflictingOptions = errors.New("calc: parameter filter and block size are mutually exclusive")

	// ErrShapeMismatch indicates an output buffer whose length does not
	// match the tree and column count.
	ErrShapeMismatch = errors.New("calc: output buffer shape mismatch")

	// ErrParamIndex indicates a filter entry outside [0, NumParams).
	ErrParamIndex = errors.New("calc: parameter index out of range")

	// ErrUnknownSubcall indicates a memory estimate for an unknown bulk call.
	ErrUnknownSubcall = errors.New("calc: unknown subcall")

	// ErrInvalidMemLimit indicates a memory budget that is not positive.
	ErrInvalidMemLimit = errors.New("calc: memory limit must be positive")

	// ErrMemoryLimit indicates that no split meets the memory budget.
	ErrMemoryLimit = errors.New("calc: memory limit cannot be met")

	// ErrInconsistentState indicates ranks holding different gate sets or trees.
	ErrInconsistentState = errors.New("calc: ranks disagree on gate set or tree")

	// ErrUnsupported indicates an operation the calculator kind does not provide.
	ErrUnsupported = errors.New("calc: operation not supported by this calculator")

	// ErrSplitTree indicates a whole-tree operation given a split tree.
	ErrSplitTree = errors.New("calc: operation requires an unsplit tree")

	// ErrTreeMismatch indicates a tree whose alphabet or SPAM tuples the gate set cannot serve.
	ErrTreeMismatch = errors.New("calc: tree does not match gate set")

	// ErrUnknownMethod indicates an unknown distribution method.
	ErrUnknownMethod = errors.New("calc: unknown distribution method")
)

// calcErrorf tags err with the calling operation.
func calcErrorf(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
