// SPDX-License-Identifier: MIT

package gateset

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/katalvlaran/gsteval/gatestring"
)

// GateSet is an ordered, labelled collection of gates, preps and effects
// sharing one dimension and one global parameter vector.
//
// A GateSet is not safe for concurrent mutation. Calculators take a Copy at
// construction and never touch the caller's instance afterwards.
type GateSet struct {
	dim     int
	gateLbl []gatestring.Label
	prepLbl []gatestring.Label
	effLbl  []gatestring.Label
	gates   map[gatestring.Label]Gate
	preps   map[gatestring.Label]SPAMVec
	effects map[gatestring.Label]SPAMVec
	pim     *ParamIndexMap
}

// New returns an empty gate set of dimension dim.
func New(dim int) (*GateSet, error) {
	if dim < 1 {
		return nil, gatesetErrorf("New", ErrInvalidDim)
	}
	gs := &GateSet{
		dim:     dim,
		gates:   make(map[gatestring.Label]Gate),
		preps:   make(map[gatestring.Label]SPAMVec),
		effects: make(map[gatestring.Label]SPAMVec),
	}
	gs.reindex()

	return gs, nil
}

// Dim returns the operator dimension.
func (gs *GateSet) Dim() int { return gs.dim }

// AddGate appends a gate under label.
func (gs *GateSet) AddGate(label gatestring.Label, g Gate) error {
	if g == nil {
		return gatesetErrorf("AddGate", ErrNilOperator)
	}
	if g.Dim() != gs.dim {
		return gatesetErrorf("AddGate", ErrDimension)
	}
	if _, dup := gs.gates[label]; dup {
		return gatesetErrorf("AddGate", ErrDuplicateLabel)
	}
	gs.gates[label] = g
	gs.gateLbl = append(gs.gateLbl, label)
	gs.reindex()

	return nil
}

// AddPrep appends a state preparation under label.
func (gs *GateSet) AddPrep(label gatestring.Label, v SPAMVec) error {
	if err := gs.checkVec(v, gs.preps, label); err != nil {
		return gatesetErrorf("AddPrep", err)
	}
	gs.preps[label] = v
	gs.prepLbl = append(gs.prepLbl, label)
	gs.reindex()

	return nil
}

// AddEffect appends an effect under label.
func (gs *GateSet) AddEffect(label gatestring.Label, v SPAMVec) error {
	if err := gs.checkVec(v, gs.effects, label); err != nil {
		return gatesetErrorf("AddEffect", err)
	}
	gs.effects[label] = v
	gs.effLbl = append(gs.effLbl, label)
	gs.reindex()

	return nil
}

func (gs *GateSet) checkVec(v SPAMVec, into map[gatestring.Label]SPAMVec, label gatestring.Label) error {
	if v == nil {
		return ErrNilOperator
	}
	if v.Dim() != gs.dim {
		return ErrDimension
	}
	if _, dup := into[label]; dup {
		return ErrDuplicateLabel
	}

	return nil
}

// reindex rebuilds the parameter layout after a structural change.
func (gs *GateSet) reindex() {
	order := make([]OpID, 0, len(gs.prepLbl)+len(gs.effLbl)+len(gs.gateLbl))
	counts := make([]int, 0, cap(order))
	for _, l := range gs.prepLbl {
		order = append(order, OpID{Kind: KindPrep, Label: l})
		counts = append(counts, gs.preps[l].NumParams())
	}
	for _, l := range gs.effLbl {
		order = append(order, OpID{Kind: KindEffect, Label: l})
		counts = append(counts, gs.effects[l].NumParams())
	}
	for _, l := range gs.gateLbl {
		order = append(order, OpID{Kind: KindGate, Label: l})
		counts = append(counts, gs.gates[l].NumParams())
	}
	gs.pim = buildParamIndexMap(order, counts)
}

// Gate returns the gate labelled l.
func (gs *GateSet) Gate(l gatestring.Label) (Gate, error) {
	g, ok := gs.gates[l]
	if !ok {
		return nil, gatesetErrorf("Gate", ErrUnknownLabel)
	}

	return g, nil
}

// Prep returns the state preparation labelled l.
func (gs *GateSet) Prep(l gatestring.Label) (SPAMVec, error) {
	v, ok := gs.preps[l]
	if !ok {
		return nil, gatesetErrorf("Prep", ErrUnknownLabel)
	}

	return v, nil
}

// Effect returns the effect labelled l.
func (gs *GateSet) Effect(l gatestring.Label) (SPAMVec, error) {
	v, ok := gs.effects[l]
	if !ok {
		return nil, gatesetErrorf("Effect", ErrUnknownLabel)
	}

	return v, nil
}

// GateLabels returns gate labels in insertion order.
func (gs *GateSet) GateLabels() []gatestring.Label {
	return append([]gatestring.Label(nil), gs.gateLbl...)
}

// PrepLabels returns prep labels in insertion order.
func (gs *GateSet) PrepLabels() []gatestring.Label {
	return append([]gatestring.Label(nil), gs.prepLbl...)
}

// EffectLabels returns effect labels in insertion order.
func (gs *GateSet) EffectLabels() []gatestring.Label {
	return append([]gatestring.Label(nil), gs.effLbl...)
}

// SpamTuples returns every (prep, effect) pair, preps outermost.
func (gs *GateSet) SpamTuples() []gatestring.SpamTuple {
	out := make([]gatestring.SpamTuple, 0, len(gs.prepLbl)*len(gs.effLbl))
	for _, p := range gs.prepLbl {
		for _, e := range gs.effLbl {
			out = append(out, gatestring.SpamTuple{Prep: p, Effect: e})
		}
	}

	return out
}

// ParamIndexMap returns the current global parameter layout.
func (gs *GateSet) ParamIndexMap() *ParamIndexMap { return gs.pim }

// NumParams returns the global parameter count.
func (gs *GateSet) NumParams() int { return gs.pim.NumParams() }

// ToVector gathers every operator's parameters into one global vector.
func (gs *GateSet) ToVector() []float64 {
	out := make([]float64, gs.pim.NumParams())
	for _, id := range gs.pim.order {
		s := gs.pim.ranges[id]
		copy(out[s.Start:s.Stop], gs.params(id))
	}

	return out
}

// FromVector loads a global parameter vector into every operator.
func (gs *GateSet) FromVector(v []float64) error {
	if len(v) != gs.pim.NumParams() {
		return gatesetErrorf("FromVector", ErrParamLength)
	}
	for _, id := range gs.pim.order {
		s := gs.pim.ranges[id]
		if err := gs.setParams(id, v[s.Start:s.Stop]); err != nil {
			return gatesetErrorf("FromVector", err)
		}
	}

	return nil
}

func (gs *GateSet) params(id OpID) []float64 {
	switch id.Kind {
	case KindPrep:
		return gs.preps[id.Label].Params()
	case KindEffect:
		return gs.effects[id.Label].Params()
	default:
		return gs.gates[id.Label].Params()
	}
}

func (gs *GateSet) setParams(id OpID, v []float64) error {
	switch id.Kind {
	case KindPrep:
		return gs.preps[id.Label].SetParams(v)
	case KindEffect:
		return gs.effects[id.Label].SetParams(v)
	default:
		return gs.gates[id.Label].SetParams(v)
	}
}

// Copy returns a deep copy; operators are cloned.
func (gs *GateSet) Copy() *GateSet {
	cp := &GateSet{
		dim:     gs.dim,
		gateLbl: append([]gatestring.Label(nil), gs.gateLbl...),
		prepLbl: append([]gatestring.Label(nil), gs.prepLbl...),
		effLbl:  append([]gatestring.Label(nil), gs.effLbl...),
		gates:   make(map[gatestring.Label]Gate, len(gs.gates)),
		preps:   make(map[gatestring.Label]SPAMVec, len(gs.preps)),
		effects: make(map[gatestring.Label]SPAMVec, len(gs.effects)),
		pim:     gs.pim,
	}
	for l, g := range gs.gates {
		cp.gates[l] = g.Clone()
	}
	for l, v := range gs.preps {
		cp.preps[l] = v.Clone()
	}
	for l, v := range gs.effects {
		cp.effects[l] = v.Clone()
	}

	return cp
}

// Fingerprint hashes labels, layout and operator values. Two gate sets with
// equal fingerprints evaluate identically with overwhelming probability.
func (gs *GateSet) Fingerprint() uint64 {
	h := xxhash.New()
	var buf [8]byte
	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = h.Write(buf[:])
	}
	writeInt(gs.dim)
	for _, id := range gs.pim.order {
		writeInt(int(id.Kind))
		_, _ = h.WriteString(string(id.Label))
		writeInt(gs.pim.ranges[id].Len())
	}
	writeFloats := func(vals []float64) {
		for _, v := range vals {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			_, _ = h.Write(buf[:])
		}
	}
	for _, id := range gs.pim.order {
		switch id.Kind {
		case KindPrep:
			writeFloats(gs.preps[id.Label].Vector().RawVector().Data)
		case KindEffect:
			writeFloats(gs.effects[id.Label].Vector().RawVector().Data)
		default:
			writeFloats(Vec(gs.gates[id.Label].Matrix()))
		}
	}

	return h.Sum64()
}
