// SPDX-License-Identifier: MIT

package gatestring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	gs "github.com/katalvlaran/gsteval/gatestring"
)

func TestGateString_Basics(t *testing.T) {
	g := gs.FromStrings("Gx", "Gy", "Gi")
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, gs.Label("Gy"), g.At(1))
	assert.Equal(t, "GxGyGi", g.String())
	assert.Equal(t, "GiGyGx", g.Reversed().String())
	assert.Equal(t, "GyGi", g.Sub(1, 3).String())
	assert.Equal(t, "{}", gs.New().String())
	assert.Equal(t, 0, gs.GateString{}.Len())
}

func TestGateString_Immutable(t *testing.T) {
	labels := []gs.Label{"Gx", "Gy"}
	g := gs.New(labels...)
	labels[0] = "Gi"
	assert.Equal(t, gs.Label("Gx"), g.At(0))

	out := g.Labels()
	out[1] = "Gi"
	assert.Equal(t, gs.Label("Gy"), g.At(1))
}

// TestGateString_KeyEquality checks value semantics through Key and Equal.
func TestGateString_KeyEquality(t *testing.T) {
	a := gs.FromStrings("Gx", "Gy")
	b := gs.New("Gx").Concat(gs.New("Gy"))
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())

	// Labels that concatenate to the same text must still differ.
	c := gs.FromStrings("G", "xGy")
	assert.Equal(t, a.String(), c.String())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.False(t, a.Equal(c))

	m := map[string]int{a.Key(): 1}
	assert.Equal(t, 1, m[b.Key()])
}

func TestGateString_Truncated(t *testing.T) {
	g := gs.Repeat(gs.FromStrings("Gx"), 12)
	assert.Equal(t, "GxGxGx... (len 12)", g.Truncated(3))
	assert.Equal(t, "GxGx", gs.Repeat(gs.FromStrings("Gx"), 2).Truncated(3))
}

func TestSpamTuple_String(t *testing.T) {
	assert.Equal(t, "(rho0,E0)", gs.SpamTuple{Prep: "rho0", Effect: "E0"}.String())
}
