// SPDX-License-Identifier: MIT

// Package config holds the numerical and runtime settings of the
// calculators: rescale and warning thresholds, finite-difference steps,
// memory budgets and logging.
//
// Settings are plain values threaded through calculator construction, never
// package globals, so calculators built with different thresholds can run
// side by side. A Config comes from Default, from a YAML document (Load,
// Parse) or from either of those refined with functional Options.
//
// Example YAML:
//
//	prob_small: 1.0e-100
//	fd_step: 1.0e-7
//	mem_limit_bytes: 2147483648
//	log_level: debug
package config
