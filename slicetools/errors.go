// SPDX-License-Identifier: MIT

package slicetools

import (
	"errors"
	"fmt"
)

var (
	// ErrEmpty is returned when an empty index list is converted without allowEmpty.
	ErrEmpty = errors.New("slicetools: empty index list")

	// ErrNotContiguous is returned when an index list is not a run of consecutive integers.
	ErrNotContiguous = errors.New("slicetools: indices are not contiguous")

	// ErrInvalidCount is returned when a range is cut into a non-positive number of pieces.
	ErrInvalidCount = errors.New("slicetools: piece count must be positive")
)

// slicetoolsErrorf tags err with the calling operation.
func slicetoolsErrorf(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
