// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates a setting outside its valid range.
	ErrInvalidConfig = errors.New("config: invalid setting")

	// ErrRead indicates a configuration file that could not be read.
	ErrRead = errors.New("config: cannot read file")

	// ErrDecode indicates malformed YAML or an unknown key.
	ErrDecode = errors.New("config: cannot decode yaml")
)

// configErrorf tags err with the calling operation and an optional detail.
func configErrorf(op string, err error, detail string) error {
	if detail == "" {
		return fmt.Errorf("%s: %w", op, err)
	}

	return fmt.Errorf("%s: %w: %s", op, err, detail)
}
