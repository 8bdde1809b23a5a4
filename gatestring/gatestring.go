// SPDX-License-Identifier: MIT

package gatestring

import (
	"fmt"
	"strings"
)

// Label names one operator of a gate set.
type Label string

// keySep separates labels inside a Key. Labels never contain it.
const keySep = "\x1f"

// GateString is an immutable, possibly empty, sequence of labels.
// The zero value is the empty gate string.
type GateString struct {
	labels []Label
}

// New builds a gate string from labels. The input slice is copied.
func New(labels ...Label) GateString {
	if len(labels) == 0 {
		return GateString{}
	}

	return GateString{labels: append([]Label(nil), labels...)}
}

// FromStrings builds a gate string from plain strings.
func FromStrings(labels ...string) GateString {
	out := make([]Label, len(labels))
	for i, l := range labels {
		out[i] = Label(l)
	}

	return GateString{labels: out}
}

// Repeat returns g concatenated n times.
func Repeat(g GateString, n int) GateString {
	out := make([]Label, 0, g.Len()*max(n, 0))
	for i := 0; i < n; i++ {
		out = append(out, g.labels...)
	}

	return GateString{labels: out}
}

// Len returns the number of labels.
func (g GateString) Len() int { return len(g.labels) }

// At returns the i-th label.
func (g GateString) At(i int) Label { return g.labels[i] }

// Labels returns a copy of the labels.
func (g GateString) Labels() []Label { return append([]Label(nil), g.labels...) }

// Concat returns g followed by other.
func (g GateString) Concat(other GateString) GateString {
	out := make([]Label, 0, len(g.labels)+len(other.labels))
	out = append(out, g.labels...)

	return GateString{labels: append(out, other.labels...)}
}

// Sub returns labels [i, j).
func (g GateString) Sub(i, j int) GateString {
	return New(g.labels[i:j]...)
}

// Reversed returns the labels in reverse order.
func (g GateString) Reversed() GateString {
	n := len(g.labels)
	out := make([]Label, n)
	for i, l := range g.labels {
		out[n-1-i] = l
	}

	return GateString{labels: out}
}

// Equal reports whether g and other hold the same labels.
func (g GateString) Equal(other GateString) bool {
	if len(g.labels) != len(other.labels) {
		return false
	}
	for i := range g.labels {
		if g.labels[i] != other.labels[i] {
			return false
		}
	}

	return true
}

// Key returns a string uniquely identifying the label sequence; it is the
// value-hash used for map lookups.
func (g GateString) Key() string {
	var b strings.Builder
	for i, l := range g.labels {
		if i > 0 {
			b.WriteString(keySep)
		}
		b.WriteString(string(l))
	}

	return b.String()
}

// String renders g as its concatenated labels, "{}" when empty.
func (g GateString) String() string {
	if len(g.labels) == 0 {
		return "{}"
	}
	var b strings.Builder
	for _, l := range g.labels {
		b.WriteString(string(l))
	}

	return b.String()
}

// Truncated renders at most n labels; longer strings get a
// "... (len N)" suffix. Used to keep log lines bounded.
func (g GateString) Truncated(n int) string {
	if len(g.labels) <= n {
		return g.String()
	}

	return fmt.Sprintf("%s... (len %d)", New(g.labels[:n]...).String(), len(g.labels))
}

// SpamTuple pairs a state preparation with an effect.
type SpamTuple struct {
	Prep   Label
	Effect Label
}

// String renders the tuple as "(prep,effect)".
func (s SpamTuple) String() string { return fmt.Sprintf("(%s,%s)", s.Prep, s.Effect) }
