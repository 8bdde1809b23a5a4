// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Documented defaults.
const (
	// DefaultProbSmall triggers a product rescale when every entry of a
	// product lies within ±DefaultProbSmall.
	DefaultProbSmall = 1e-100

	// DefaultDerivSmall is the "negligible scaled derivative" warning threshold.
	DefaultDerivSmall = 1e-100

	// DefaultHessSmall is the "negligible scaled Hessian" warning threshold.
	DefaultHessSmall = 1e-100

	// DefaultScaleTolerance is the smallest scale difference that is divided out.
	DefaultScaleTolerance = 1e-8

	// DefaultFDStep is the central-difference step for first derivatives.
	DefaultFDStep = 1e-7

	// DefaultFDHessStep is the central-difference step for Hessian columns.
	DefaultFDHessStep = 1e-4

	// DefaultCheckConsistency enables the cross-rank consistency check.
	DefaultCheckConsistency = true

	// DefaultLogLevel is the slog level name used by Logger.
	DefaultLogLevel = "info"
)

// Config is the full set of calculator settings.
type Config struct {
	ProbSmall           float64 `yaml:"prob_small" json:"prob_small"`
	DerivSmall          float64 `yaml:"deriv_small" json:"deriv_small"`
	HessSmall           float64 `yaml:"hess_small" json:"hess_small"`
	ScaleTolerance      float64 `yaml:"scale_tolerance" json:"scale_tolerance"`
	FDStep              float64 `yaml:"fd_step" json:"fd_step"`
	FDHessStep          float64 `yaml:"fd_hess_step" json:"fd_hess_step"`
	MemLimitBytes       int64   `yaml:"mem_limit_bytes" json:"mem_limit_bytes"`
	GatherMemLimitBytes int64   `yaml:"gather_mem_limit_bytes" json:"gather_mem_limit_bytes"`
	CheckConsistency    bool    `yaml:"check_consistency" json:"check_consistency"`
	LogLevel            string  `yaml:"log_level" json:"log_level"`
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		ProbSmall:        DefaultProbSmall,
		DerivSmall:       DefaultDerivSmall,
		HessSmall:        DefaultHessSmall,
		ScaleTolerance:   DefaultScaleTolerance,
		FDStep:           DefaultFDStep,
		FDHessStep:       DefaultFDHessStep,
		CheckConsistency: DefaultCheckConsistency,
		LogLevel:         DefaultLogLevel,
	}
}

// New returns Default refined by opts and validated.
func New(opts ...Option) (Config, error) {
	return Default().With(opts...)
}

// With returns a copy of c with opts applied, validated.
func (c Config) With(opts ...Option) (Config, error) {
	for _, opt := range opts {
		opt(&c)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, configErrorf("Load", ErrRead, err.Error())
	}

	return Parse(data)
}

// Parse decodes a YAML document over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, configErrorf("Parse", ErrDecode, err.Error())
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// Validate checks ranges: thresholds finite and ≥ 0, steps finite and > 0,
// memory limits ≥ 0, a known log level.
func (c Config) Validate() error {
	type field struct {
		name     string
		v        float64
		positive bool
	}
	for _, f := range []field{
		{"prob_small", c.ProbSmall, false},
		{"deriv_small", c.DerivSmall, false},
		{"hess_small", c.HessSmall, false},
		{"scale_tolerance", c.ScaleTolerance, false},
		{"fd_step", c.FDStep, true},
		{"fd_hess_step", c.FDHessStep, true},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 || (f.positive && f.v == 0) {
			return configErrorf("Validate", ErrInvalidConfig, f.name)
		}
	}
	if c.MemLimitBytes < 0 {
		return configErrorf("Validate", ErrInvalidConfig, "mem_limit_bytes")
	}
	if c.GatherMemLimitBytes < 0 {
		return configErrorf("Validate", ErrInvalidConfig, "gather_mem_limit_bytes")
	}
	if _, ok := parseLevel(c.LogLevel); !ok {
		return configErrorf("Validate", ErrInvalidConfig, "log_level")
	}

	return nil
}

// Level returns the configured slog level.
func (c Config) Level() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

// Logger returns a text logger on stderr at the configured level.
func (c Config) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.Level()}))
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}

	return slog.LevelInfo, false
}
