// SPDX-License-Identifier: MIT

package config_test

import (
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/gsteval/config"
)

func TestDefault_IsValid(t *testing.T) {
	c := config.Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, config.DefaultProbSmall, c.ProbSmall)
	assert.Equal(t, config.DefaultFDStep, c.FDStep)
	assert.True(t, c.CheckConsistency)
	assert.Equal(t, slog.LevelInfo, c.Level())
}

func TestNew_Options(t *testing.T) {
	c, err := config.New(
		config.WithProbSmall(1e-10),
		config.WithFDStep(1e-6),
		config.WithMemLimit(1<<20),
		config.WithConsistencyCheck(false),
		config.WithLogLevel("debug"),
	)
	require.NoError(t, err)
	assert.Equal(t, 1e-10, c.ProbSmall)
	assert.Equal(t, 1e-6, c.FDStep)
	assert.Equal(t, int64(1<<20), c.MemLimitBytes)
	assert.False(t, c.CheckConsistency)
	assert.Equal(t, slog.LevelDebug, c.Level())
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name string
		opt  config.Option
	}{
		{"negative threshold", config.WithProbSmall(-1)},
		{"nan threshold", config.WithHessSmall(math.NaN())},
		{"zero step", config.WithFDStep(0)},
		{"inf step", config.WithFDHessStep(math.Inf(1))},
		{"negative mem", config.WithMemLimit(-5)},
		{"negative gather mem", config.WithGatherMemLimit(-5)},
		{"bad level", config.WithLogLevel("loud")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.New(tc.opt)
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestParse_YAML(t *testing.T) {
	c, err := config.Parse([]byte("prob_small: 1.0e-50\nfd_hess_step: 0.001\ncheck_consistency: false\n"))
	require.NoError(t, err)
	assert.Equal(t, 1e-50, c.ProbSmall)
	assert.Equal(t, 0.001, c.FDHessStep)
	assert.False(t, c.CheckConsistency)
	assert.Equal(t, config.DefaultFDStep, c.FDStep)

	c, err = config.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), c)

	_, err = config.Parse([]byte("no_such_key: 1\n"))
	assert.ErrorIs(t, err, config.ErrDecode)

	_, err = config.Parse([]byte("fd_step: -1\n"))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gsteval.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mem_limit_bytes: 4096\nlog_level: warn\n"), 0o600))
	c, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), c.MemLimitBytes)
	assert.Equal(t, slog.LevelWarn, c.Level())

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, config.ErrRead)
}
