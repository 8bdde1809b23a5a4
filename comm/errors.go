// SPDX-License-Identifier: MIT

package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrAborted is returned from a collective when another rank of the world failed.
	ErrAborted = errors.New("comm: world aborted")

	// ErrInvalidSize is returned for a world or group with fewer than one rank.
	ErrInvalidSize = errors.New("comm: size must be positive")

	// ErrInvalidRoot is returned when a broadcast root is outside the group.
	ErrInvalidRoot = errors.New("comm: root rank out of range")

	// ErrShape is returned when an Array's data does not match its shape or a
	// selector addresses an axis or index the array does not have.
	ErrShape = errors.New("comm: array shape mismatch")

	// ErrMissingOwner is returned when a gathered block has no owning rank.
	ErrMissingOwner = errors.New("comm: block has no owner")

	// ErrGatherMemLimit is returned when a single gathered slab exceeds the broadcast memory limit.
	ErrGatherMemLimit = errors.New("comm: gather slab exceeds memory limit")

	// ErrPayload is returned when a broadcast delivers a value of an unexpected type.
	ErrPayload = errors.New("comm: unexpected broadcast payload")
)

// commErrorf tags err with the calling operation.
func commErrorf(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
