// SPDX-License-Identifier: MIT

package evaltree

import (
	"encoding/binary"
	"log/slog"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/katalvlaran/gsteval/gatestring"
	"github.com/katalvlaran/gsteval/slicetools"
)

// NodeKind tells how a node's value is obtained.
type NodeKind int

const (
	// NodeEmpty is the empty gate string (identity product).
	NodeEmpty NodeKind = iota
	// NodeLabel is a single-label gate string; its value is the operator itself.
	NodeLabel
	// NodeProduct combines two earlier nodes: product(Left)·product(Right).
	NodeProduct
)

// Node is one entry of a tree or subtree. Left and Right are -1 unless Kind
// is NodeProduct; Label is set only for NodeLabel.
type Node struct {
	Kind  NodeKind
	Label gatestring.Label
	Left  int
	Right int
}

// Tree is an evaluation tree over a batch of gate strings.
type Tree struct {
	alphabet []gatestring.Label
	spam     []gatestring.SpamTuple
	nodes    []Node
	seqs     []gatestring.GateString // gate string of each node
	inputs   []gatestring.GateString // requested gate strings, input order
	finals   []int                   // input index -> node

	subtrees        []*SubTree
	split           bool
	numSubtreeComms int
	logger          *slog.Logger
}

// Build constructs the evaluation tree of seqs over alphabet, evaluated
// against the given SPAM tuples.
//
// Implementation:
//   - Stage 1: seed node 0 (empty) and one node per alphabet label.
//   - Stage 2: visit gate strings by ascending length (ties by input order).
//     Each new string reuses its longest already-present prefix of length
//     ≥ 2 and adds the remaining suffix recursively; with no such prefix the
//     string is halved, so repeated germ powers share their halves.
//   - Stage 3: apply any split option.
//
// Errors:
//   - ErrDuplicateLabel, ErrUnknownLabel, ErrNoSpamTuples, split errors.
//
// Determinism:
//   - Node numbering depends only on the inputs and their order.
//
// Complexity:
//   - Time O(Σ L²) for prefix search over strings of length L.
func Build(alphabet []gatestring.Label, seqs []gatestring.GateString, spam []gatestring.SpamTuple, opts ...Option) (*Tree, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if len(spam) == 0 {
		return nil, evaltreeErrorf("Build", ErrNoSpamTuples)
	}

	t := &Tree{
		alphabet:        append([]gatestring.Label(nil), alphabet...),
		spam:            append([]gatestring.SpamTuple(nil), spam...),
		inputs:          append([]gatestring.GateString(nil), seqs...),
		finals:          make([]int, len(seqs)),
		numSubtreeComms: o.numSubtreeComms,
		logger:          o.logger,
	}
	b := &builder{t: t, dict: make(map[string]int, len(alphabet)+2*len(seqs))}

	b.add(gatestring.New(), Node{Kind: NodeEmpty, Left: -1, Right: -1})
	known := make(map[gatestring.Label]bool, len(alphabet))
	for _, l := range alphabet {
		if known[l] {
			return nil, evaltreeErrorf("Build", ErrDuplicateLabel)
		}
		known[l] = true
		b.add(gatestring.New(l), Node{Kind: NodeLabel, Label: l, Left: -1, Right: -1})
	}

	order := make([]int, len(seqs))
	for i := range order {
		order[i] = i
		for j := 0; j < seqs[i].Len(); j++ {
			if !known[seqs[i].At(j)] {
				return nil, evaltreeErrorf("Build", ErrUnknownLabel)
			}
		}
	}
	sort.SliceStable(order, func(a, c int) bool { return seqs[order[a]].Len() < seqs[order[c]].Len() })
	for _, i := range order {
		t.finals[i] = b.ensure(seqs[i])
	}

	t.subtrees = []*SubTree{t.wholeSubTree()}
	if o.maxSubtreeSize > 0 || o.minSubtrees > 0 {
		if err := t.Split(o.maxSubtreeSize, o.minSubtrees); err != nil {
			return nil, evaltreeErrorf("Build", err)
		}
	}

	return t, nil
}

// builder holds the gate string -> node dictionary during construction.
type builder struct {
	t    *Tree
	dict map[string]int
}

func (b *builder) add(seq gatestring.GateString, n Node) int {
	idx := len(b.t.nodes)
	b.t.nodes = append(b.t.nodes, n)
	b.t.seqs = append(b.t.seqs, seq)
	b.dict[seq.Key()] = idx

	return idx
}

// ensure returns the node of seq, creating it and any missing pieces.
func (b *builder) ensure(seq gatestring.GateString) int {
	if idx, ok := b.dict[seq.Key()]; ok {
		return idx
	}
	n := seq.Len()
	for i := n - 1; i >= 2; i-- {
		if first, ok := b.dict[seq.Sub(0, i).Key()]; ok {
			rest := b.ensure(seq.Sub(i, n))
			return b.add(seq, Node{Kind: NodeProduct, Left: rest, Right: first})
		}
	}
	h := (n + 1) / 2
	first := b.ensure(seq.Sub(0, h))
	rest := b.ensure(seq.Sub(h, n))

	return b.add(seq, Node{Kind: NodeProduct, Left: rest, Right: first})
}

// Alphabet returns the operator labels the tree was built over.
func (t *Tree) Alphabet() []gatestring.Label {
	return append([]gatestring.Label(nil), t.alphabet...)
}

// SpamTuples returns the SPAM tuples of every final element group.
func (t *Tree) SpamTuples() []gatestring.SpamTuple {
	return append([]gatestring.SpamTuple(nil), t.spam...)
}

// Size returns the number of nodes.
func (t *Tree) Size() int { return len(t.nodes) }

// Node returns node i.
func (t *Tree) Node(i int) Node { return t.nodes[i] }

// Seq returns the gate string of node i.
func (t *Tree) Seq(i int) gatestring.GateString { return t.seqs[i] }

// GateStrings returns the requested gate strings in input order.
func (t *Tree) GateStrings() []gatestring.GateString {
	return append([]gatestring.GateString(nil), t.inputs...)
}

// NumFinalStrings returns the number of requested gate strings.
func (t *Tree) NumFinalStrings() int { return len(t.inputs) }

// NumFinalElements returns the number of rows of a bulk result.
func (t *Tree) NumFinalElements() int { return len(t.inputs) * len(t.spam) }

// FinalNodeIndices returns the node evaluating each requested gate string.
func (t *Tree) FinalNodeIndices() []int { return append([]int(nil), t.finals...) }

// Lookup returns the rows of gate string i in a bulk result.
func (t *Tree) Lookup(i int) slicetools.Slice {
	n := len(t.spam)
	return slicetools.Range(i*n, (i+1)*n)
}

// OutcomeLookup returns the SPAM tuple of each row of Lookup(i), in order.
// Every gate string produces one row per SPAM tuple of the tree.
func (t *Tree) OutcomeLookup(i int) []gatestring.SpamTuple {
	return t.SpamTuples()
}

// NumSubtreeComms returns the number of process groups Distribute forms.
func (t *Tree) NumSubtreeComms() int { return t.numSubtreeComms }

// SetNumSubtreeComms changes the number of process groups. Values below 1 are clamped.
func (t *Tree) SetNumSubtreeComms(n int) { t.numSubtreeComms = max(n, 1) }

// IsSplit reports whether Split produced more than the trivial partition.
func (t *Tree) IsSplit() bool { return t.split }

// SubTrees returns the partition of the tree; an unsplit tree has exactly
// one subtree covering every node.
func (t *Tree) SubTrees() []*SubTree { return t.subtrees }

// Logger returns the tree's logger.
func (t *Tree) Logger() *slog.Logger { return t.logger }

// Fingerprint hashes the structure, final mapping and partition.
func (t *Tree) Fingerprint() uint64 {
	h := xxhash.New()
	var buf [8]byte
	w := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		_, _ = h.Write(buf[:])
	}
	for _, n := range t.nodes {
		w(int(n.Kind))
		w(n.Left)
		w(n.Right)
		_, _ = h.WriteString(string(n.Label))
	}
	for _, f := range t.finals {
		w(f)
	}
	for _, s := range t.spam {
		_, _ = h.WriteString(s.String())
	}
	w(len(t.subtrees))
	for _, st := range t.subtrees {
		w(st.Size())
	}
	w(t.numSubtreeComms)

	return h.Sum64()
}

// Validate checks that every child precedes its parent, in the tree and in
// each subtree.
func (t *Tree) Validate() error {
	if err := checkOrder(t.nodes); err != nil {
		return evaltreeErrorf("Validate", err)
	}
	for _, st := range t.subtrees {
		if err := checkOrder(st.nodes); err != nil {
			return evaltreeErrorf("Validate", err)
		}
	}

	return nil
}

func checkOrder(nodes []Node) error {
	for i, n := range nodes {
		if n.Kind != NodeProduct {
			continue
		}
		if n.Left < 0 || n.Right < 0 || n.Left >= i || n.Right >= i {
			return ErrNodeOrder
		}
	}

	return nil
}
