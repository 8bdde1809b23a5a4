// SPDX-License-Identifier: MIT

package gateset

import (
	"errors"
	"fmt"
)

var (
	// ErrDimension indicates an operator whose dimension differs from the gate set's.
	ErrDimension = errors.New("gateset: operator dimension mismatch")

	// ErrDuplicateLabel indicates a label already used for the same kind of operator.
	ErrDuplicateLabel = errors.New("gateset: duplicate label")

	// ErrUnknownLabel indicates a lookup of a label the gate set does not hold.
	ErrUnknownLabel = errors.New("gateset: unknown label")

	// ErrParamLength indicates a parameter vector of the wrong length.
	ErrParamLength = errors.New("gateset: parameter vector length mismatch")

	// ErrNilOperator indicates a nil operator passed to an Add method.
	ErrNilOperator = errors.New("gateset: nil operator")

	// ErrInvalidDim indicates a non-positive dimension.
	ErrInvalidDim = errors.New("gateset: dimension must be positive")
)

// gatesetErrorf tags err with the calling operation.
func gatesetErrorf(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
