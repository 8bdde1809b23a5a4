// SPDX-License-Identifier: MIT

package evaltree

// Visitation colors of the closure walk.
const (
	white = iota // not visited yet
	gray         // on the current DFS path
	black        // node and all its children emitted
)

// closureWalker collects the nodes a set of roots depends on, children first.
type closureWalker struct {
	nodes []Node
	state []int8
	order []int // post-order: every child precedes its parent
}

func newClosureWalker(nodes []Node) *closureWalker {
	return &closureWalker{nodes: nodes, state: make([]int8, len(nodes))}
}

// visit appends id and its not-yet-emitted descendants in post-order.
// A gray revisit means the node graph has a cycle.
func (w *closureWalker) visit(id int) error {
	switch w.state[id] {
	case gray:
		return ErrCycle
	case black:
		return nil
	}
	w.state[id] = gray
	if n := w.nodes[id]; n.Kind == NodeProduct {
		if err := w.visit(n.Right); err != nil {
			return err
		}
		if err := w.visit(n.Left); err != nil {
			return err
		}
	}
	w.state[id] = black
	w.order = append(w.order, id)

	return nil
}

// reset starts a fresh closure while keeping allocations.
func (w *closureWalker) reset() {
	for i := range w.state {
		w.state[i] = white
	}
	w.order = w.order[:0]
}

// closure returns the post-order closure of roots.
func closure(nodes []Node, roots []int) ([]int, error) {
	w := newClosureWalker(nodes)
	for _, r := range roots {
		if err := w.visit(r); err != nil {
			return nil, err
		}
	}

	return append([]int(nil), w.order...), nil
}

// tryAdd extends the closure with root. If that grows the closure beyond
// limit, the additions are rolled back and false is returned, unless the
// closure was empty before: a lone root is always kept so the caller can
// detect an unmeetable bound.
func (w *closureWalker) tryAdd(root, limit int) (bool, error) {
	mark := len(w.order)
	if err := w.visit(root); err != nil {
		return false, err
	}
	if len(w.order) <= limit || mark == 0 {
		return true, nil
	}
	for _, id := range w.order[mark:] {
		w.state[id] = white
	}
	w.order = w.order[:mark]

	return false, nil
}
