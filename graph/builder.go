// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"fmt"
	"sort"

	"github.com/Nicort/edward/dist"
	"github.com/Nicort/edward/internal/entropy"
)

// Builder is the authoring facade for a Graph. Constructors validate
// their arguments, append nodes to the arena, and record the implicit
// dependency edges of every Ref they are given.
//
// Thread Safety: a Builder is not safe for concurrent use. Authoring is
// single-goroutine; the builders handed to branch and loop thunks are
// created per materialization and used by one goroutine at a time.
type Builder struct {
	g *Graph

	// scope seeds stream keys for nodes built through this builder.
	// Top-level builders derive it from the model name; thunk builders
	// derive it from the owning node's stream key.
	scope   uint64
	ordinal uint64

	// dynamic marks builders created by branch or iteration
	// materialization: their appends are legal after freeze and their
	// edges are recorded as EdgeDynamic.
	dynamic bool
}

// NewBuilder returns a top-level builder for g.
func NewBuilder(g *Graph) *Builder {
	return &Builder{g: g, scope: entropy.HashString(g.name)}
}

// child returns a dynamic-context builder scoped under the given key.
func (b *Builder) child(scope uint64) *Builder {
	return &Builder{g: b.g, scope: scope, dynamic: true}
}

// StateOption configures a mutable-state node.
type StateOption func(*stateSlot)

// WithDefault gives the slot a value to fall back to while unbound.
func WithDefault(v dist.Value) StateOption {
	return func(s *stateSlot) {
		s.def = v
		s.hasDef = true
	}
}

// LoopOption configures a loop node.
type LoopOption func(*loopSpec)

// WithMaxIterations caps a loop's unrolling. Positive values set an
// explicit cap, zero inherits the engine default, and negative values
// disable the guard entirely.
func WithMaxIterations(n int) LoopOption {
	return func(l *loopSpec) {
		l.maxIter = n
	}
}

// RandomVariable appends a node that draws from the named family.
//
// The family must be registered and params must match its declared
// parameter set exactly; constant parameters are shape-checked
// immediately, referenced ones when they realize. Violations fail with
// a ModelSpecificationError.
func (b *Builder) RandomVariable(name, family string, params map[string]Param) (NodeID, error) {
	if name == "" {
		return InvalidNodeID, specErr(name, "random variable needs a name")
	}

	fam, err := b.g.registry.Lookup(family)
	if err != nil {
		return InvalidNodeID, &ModelSpecificationError{
			Node:   name,
			Reason: fmt.Sprintf("family %q is not registered", family),
			Err:    err,
		}
	}

	named, err := checkFamilyParams(name, fam, params)
	if err != nil {
		return InvalidNodeID, err
	}

	return b.append(&Node{
		Kind:   KindRandomVariable,
		Name:   name,
		Family: family,
		Params: named,
	}, refsOfNamed(named))
}

// checkFamilyParams verifies params against the family's specs and
// returns them as a name-sorted slice.
func checkFamilyParams(node string, fam dist.Family, params map[string]Param) ([]NamedParam, error) {
	specs := fam.Params()
	specByName := make(map[string]dist.ParamSpec, len(specs))
	for _, s := range specs {
		specByName[s.Name] = s
	}

	for pname := range params {
		if _, ok := specByName[pname]; !ok {
			return nil, specErr(node, "family %q has no parameter %q", fam.Name(), pname)
		}
	}

	named := make([]NamedParam, 0, len(specs))
	for _, s := range specs {
		p, ok := params[s.Name]
		if !ok {
			return nil, specErr(node, "family %q requires parameter %q", fam.Name(), s.Name)
		}
		if v, isConst := p.Value(); isConst {
			wantVector := s.Shape == dist.ShapeVector
			if v.IsScalar() == wantVector {
				return nil, specErr(node, "parameter %q must be a %s, got %s",
					s.Name, s.Shape, shapeOf(v))
			}
		}
		named = append(named, NamedParam{Name: s.Name, Param: p})
	}
	sort.Slice(named, func(i, j int) bool { return named[i].Name < named[j].Name })
	return named, nil
}

func shapeOf(v dist.Value) string {
	if v.IsScalar() {
		return "scalar"
	}
	return "vector"
}

func refsOfNamed(named []NamedParam) []NodeID {
	var refs []NodeID
	for _, np := range named {
		if id, ok := np.Param.Node(); ok {
			refs = append(refs, id)
		}
	}
	return refs
}

func refsOf(params []Param) []NodeID {
	var refs []NodeID
	for _, p := range params {
		if id, ok := p.Node(); ok {
			refs = append(refs, id)
		}
	}
	return refs
}

// Transform appends a node computing fn over the realized inputs.
// At least one input is required and fn must be non-nil.
func (b *Builder) Transform(name string, fn TransformFunc, inputs ...Param) (NodeID, error) {
	if name == "" {
		return InvalidNodeID, specErr(name, "transform needs a name")
	}
	if fn == nil {
		return InvalidNodeID, specErr(name, "transform function must not be nil")
	}
	if len(inputs) == 0 {
		return InvalidNodeID, specErr(name, "transform requires at least one input")
	}

	return b.append(&Node{
		Kind:   KindTransform,
		Name:   name,
		Fn:     fn,
		Inputs: append([]Param(nil), inputs...),
	}, refsOf(inputs))
}

// MutableState appends an externally fed value slot.
func (b *Builder) MutableState(name string, opts ...StateOption) (NodeID, error) {
	if name == "" {
		return InvalidNodeID, specErr(name, "mutable state needs a name")
	}

	slot := &stateSlot{}
	for _, opt := range opts {
		opt(slot)
	}
	return b.append(&Node{
		Kind:  KindMutableState,
		Name:  name,
		state: slot,
	}, nil)
}

// Cond appends a node that selects between two lazily built branches.
//
// The condition realizes per trace; a nonzero scalar selects then,
// zero selects else. Each branch thunk runs at most once per graph, on
// the first trace that selects it, and the nodes it builds are shared
// by every later trace taking the same branch.
func (b *Builder) Cond(name string, condition Param, then, els BranchFunc) (NodeID, error) {
	if name == "" {
		return InvalidNodeID, specErr(name, "cond needs a name")
	}
	if then == nil || els == nil {
		return InvalidNodeID, specErr(name, "cond requires both branch thunks")
	}

	return b.append(&Node{
		Kind: KindCond,
		Name: name,
		cond: &condSpec{condition: condition, thenFn: then, elseFn: els},
	}, refsOf([]Param{condition}))
}

// Loop appends a node that unrolls a body while its continue value is
// truthy.
//
// Iteration bodies are instantiated lazily, at most once per index per
// graph, in index order; a trace realizes exactly as many iterations
// as its own continue draws demand. Iteration 0 always runs; the
// loop's value is the final iteration's carry.
func (b *Builder) Loop(name string, init Param, body LoopBodyFunc, opts ...LoopOption) (NodeID, error) {
	if name == "" {
		return InvalidNodeID, specErr(name, "loop needs a name")
	}
	if body == nil {
		return InvalidNodeID, specErr(name, "loop requires a body")
	}

	spec := &loopSpec{init: init, body: body}
	for _, opt := range opts {
		opt(spec)
	}
	return b.append(&Node{
		Kind: KindLoop,
		Name: name,
		loop: spec,
	}, refsOf([]Param{init}))
}

// Declare reserves a node id under a name so that other nodes can
// reference it before it is defined. The graph cannot freeze until
// every declaration is defined.
func (b *Builder) Declare(name string) (NodeID, error) {
	if name == "" {
		return InvalidNodeID, specErr(name, "declaration needs a name")
	}

	g := b.g
	g.mu.Lock()
	defer g.mu.Unlock()

	// Declarations are an authoring-phase device; thunks cannot add
	// them because freeze validation has already run.
	if g.state != GraphStateBuilding {
		return InvalidNodeID, ErrGraphFrozen
	}

	id := NodeID(len(g.nodes) + 1)
	n := &Node{
		ID:        id,
		Kind:      KindDeclared,
		Name:      name,
		streamKey: entropy.Combine(b.scope, b.ordinal),
	}
	b.ordinal++
	g.nodes = append(g.nodes, n)
	g.names[name] = append(g.names[name], id)
	g.undefined[id] = struct{}{}
	return id, nil
}

// DefineRandomVariable fills a declared node as a random variable.
func (b *Builder) DefineRandomVariable(id NodeID, family string, params map[string]Param) error {
	fam, err := b.g.registry.Lookup(family)
	if err != nil {
		return &ModelSpecificationError{
			Node:   b.declaredName(id),
			Reason: fmt.Sprintf("family %q is not registered", family),
			Err:    err,
		}
	}
	named, err := checkFamilyParams(b.declaredName(id), fam, params)
	if err != nil {
		return err
	}
	return b.define(id, func(n *Node) {
		n.Kind = KindRandomVariable
		n.Family = family
		n.Params = named
	}, refsOfNamed(named))
}

// DefineTransform fills a declared node as a transform.
func (b *Builder) DefineTransform(id NodeID, fn TransformFunc, inputs ...Param) error {
	name := b.declaredName(id)
	if fn == nil {
		return specErr(name, "transform function must not be nil")
	}
	if len(inputs) == 0 {
		return specErr(name, "transform requires at least one input")
	}
	captured := append([]Param(nil), inputs...)
	return b.define(id, func(n *Node) {
		n.Kind = KindTransform
		n.Fn = fn
		n.Inputs = captured
	}, refsOf(captured))
}

func (b *Builder) declaredName(id NodeID) string {
	if n, err := b.g.Node(id); err == nil {
		return n.Name
	}
	return fmt.Sprintf("#%d", id)
}

// define fills a declared slot under the graph lock.
func (b *Builder) define(id NodeID, fill func(*Node), refs []NodeID) error {
	g := b.g
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != GraphStateBuilding {
		return ErrGraphFrozen
	}
	if id <= 0 || int(id) > len(g.nodes) {
		return fmt.Errorf("define node %d: %w", id, ErrNodeNotFound)
	}
	n := g.nodes[id-1]
	if n.Kind != KindDeclared {
		return specErr(n.Name, "node is already defined as %s", n.Kind)
	}
	if err := g.checkRefsLocked(n.Name, refs); err != nil {
		return err
	}

	fill(n)
	delete(g.undefined, id)
	for _, to := range refs {
		g.addEdgesLocked(Edge{From: id, To: to, Kind: b.edgeKind()})
	}
	return nil
}

// append adds a fully formed node to the arena and records its edges.
func (b *Builder) append(n *Node, refs []NodeID) (NodeID, error) {
	g := b.g
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != GraphStateBuilding && !b.dynamic {
		return InvalidNodeID, ErrGraphFrozen
	}
	if err := g.checkRefsLocked(n.Name, refs); err != nil {
		return InvalidNodeID, err
	}

	id := NodeID(len(g.nodes) + 1)
	n.ID = id
	n.streamKey = entropy.Combine(b.scope, b.ordinal)
	b.ordinal++

	g.nodes = append(g.nodes, n)
	g.names[n.Name] = append(g.names[n.Name], id)
	for _, to := range refs {
		g.addEdgesLocked(Edge{From: id, To: to, Kind: b.edgeKind()})
	}
	return id, nil
}

func (b *Builder) edgeKind() EdgeKind {
	if b.dynamic {
		return EdgeDynamic
	}
	return EdgeStatic
}

// checkRefsLocked verifies every referenced id names an allocated node.
func (g *Graph) checkRefsLocked(node string, refs []NodeID) error {
	for _, id := range refs {
		if id <= 0 || int(id) > len(g.nodes) {
			return &ModelSpecificationError{
				Node:   node,
				Reason: fmt.Sprintf("reference to nonexistent node %d", id),
				Err:    ErrNodeNotFound,
			}
		}
	}
	return nil
}
