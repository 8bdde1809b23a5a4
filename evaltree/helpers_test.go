// SPDX-License-Identifier: MIT

package evaltree_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/gsteval/evaltree"
	"github.com/katalvlaran/gsteval/gatestring"
)

var (
	xyi  = []gatestring.Label{"Gi", "Gx", "Gy"}
	spam = []gatestring.SpamTuple{{Prep: "rho0", Effect: "E0"}}
)

// gsList parses compact gate strings such as "GxGyGi" (pairs of characters).
func gsList(specs ...string) []gatestring.GateString {
	out := make([]gatestring.GateString, len(specs))
	for i, s := range specs {
		var labels []gatestring.Label
		for j := 0; j+1 < len(s); j += 2 {
			labels = append(labels, gatestring.Label(s[j:j+2]))
		}
		out[i] = gatestring.New(labels...)
	}

	return out
}

// bufferLogger returns a logger writing text records into the returned buffer.
func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

// mustBuild builds a tree or fails the test.
func mustBuild(t *testing.T, seqs []gatestring.GateString, opts ...evaltree.Option) *evaltree.Tree {
	t.Helper()
	tr, err := evaltree.Build(xyi, seqs, spam, opts...)
	require.NoError(t, err)
	require.NoError(t, tr.Validate())

	return tr
}

// checkNodeSeqs asserts labels(node) = labels(Right) + labels(Left) for every product node.
func checkNodeSeqs(t *testing.T, tr *evaltree.Tree) {
	t.Helper()
	for i := 0; i < tr.Size(); i++ {
		n := tr.Node(i)
		if n.Kind != evaltree.NodeProduct {
			continue
		}
		want := tr.Seq(n.Right).Concat(tr.Seq(n.Left))
		require.True(t, want.Equal(tr.Seq(i)), "node %d: %s != %s", i, want, tr.Seq(i))
	}
}
