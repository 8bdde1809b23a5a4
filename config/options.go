// SPDX-License-Identifier: MIT

package config

// Option refines a Config. Values are checked by Validate when applied
// through New or With.
type Option func(*Config)

// WithProbSmall sets the product rescale trigger.
func WithProbSmall(v float64) Option { return func(c *Config) { c.ProbSmall = v } }

// WithDerivSmall sets the negligible-derivative warning threshold.
func WithDerivSmall(v float64) Option { return func(c *Config) { c.DerivSmall = v } }

// WithHessSmall sets the negligible-Hessian warning threshold.
func WithHessSmall(v float64) Option { return func(c *Config) { c.HessSmall = v } }

// WithScaleTolerance sets the smallest scale difference divided out of derivative caches.
func WithScaleTolerance(v float64) Option { return func(c *Config) { c.ScaleTolerance = v } }

// WithFDStep sets the first-derivative finite-difference step.
func WithFDStep(v float64) Option { return func(c *Config) { c.FDStep = v } }

// WithFDHessStep sets the Hessian finite-difference step.
func WithFDHessStep(v float64) Option { return func(c *Config) { c.FDHessStep = v } }

// WithMemLimit sets the default planning budget in bytes; 0 disables it.
func WithMemLimit(bytes int64) Option { return func(c *Config) { c.MemLimitBytes = bytes } }

// WithGatherMemLimit caps the bytes sent by one gather broadcast; 0 disables it.
func WithGatherMemLimit(bytes int64) Option {
	return func(c *Config) { c.GatherMemLimitBytes = bytes }
}

// WithConsistencyCheck toggles the cross-rank consistency check.
func WithConsistencyCheck(on bool) Option { return func(c *Config) { c.CheckConsistency = on } }

// WithLogLevel sets the slog level name (debug, info, warn, error).
func WithLogLevel(level string) Option { return func(c *Config) { c.LogLevel = level } }
