// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph holds the model graph: an arena of nodes (random
// variables, transforms, mutable state, conds, loops) and the directed
// dependency edges recorded implicitly when one node's constructor
// references another.
//
// A graph moves through a two-phase lifecycle. While building, a
// Builder appends nodes; Freeze validates the model (declarations
// defined, references resolved, static dependencies acyclic) and ends
// authoring. After freeze the graph is structurally append-only:
// authoring calls fail with ErrGraphFrozen, but engines still expand
// cond branches and loop iterations lazily through the materialization
// methods, and mutable-state slots stay writable.
//
// Realization itself lives in the exec package; this package only
// describes structure.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Nicort/edward/dist"
)

// GraphState represents the lifecycle state of the graph.
type GraphState int

const (
	// GraphStateBuilding indicates the graph is accepting authoring
	// calls.
	GraphStateBuilding GraphState = iota

	// GraphStateFrozen indicates authoring has ended and the model is
	// ready for realization.
	GraphStateFrozen
)

// String returns the string representation of the GraphState.
func (s GraphState) String() string {
	switch s {
	case GraphStateBuilding:
		return "building"
	case GraphStateFrozen:
		return "frozen"
	default:
		return "unknown"
	}
}

// Option configures a Graph.
type Option func(*Graph)

// WithName sets the model name used in exports, logs, and store keys.
func WithName(name string) Option {
	return func(g *Graph) {
		g.name = name
	}
}

// WithRegistry sets the distribution registry consulted when random
// variables are constructed. Defaults to dist.Default().
func WithRegistry(r *dist.Registry) Option {
	return func(g *Graph) {
		if r != nil {
			g.registry = r
		}
	}
}

// Graph is the model arena. The zero value is not usable; call New.
//
// Thread Safety: all methods are safe for concurrent use. Authoring is
// typically single-goroutine, while materialization and state writes
// happen concurrently with realization.
type Graph struct {
	mu       sync.RWMutex
	name     string
	registry *dist.Registry
	state    GraphState

	// nodes is the arena; node id i lives at index i-1.
	nodes []*Node

	// names indexes node ids by name for NodeByName and SetByName.
	names map[string][]NodeID

	edges []Edge

	// edgeKinds indexes edge kinds by endpoint pair for EdgeKindOf.
	edgeKinds map[edgeKey]EdgeKind

	// undefined tracks declared-but-not-yet-defined node ids.
	undefined map[NodeID]struct{}

	condBranchesBuilt   int
	loopIterationsBuilt int
}

// New returns an empty graph in the building state.
func New(opts ...Option) *Graph {
	g := &Graph{
		name:      "model",
		registry:  dist.Default(),
		names:     make(map[string][]NodeID),
		edgeKinds: make(map[edgeKey]EdgeKind),
		undefined: make(map[NodeID]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the model name.
func (g *Graph) Name() string {
	return g.name
}

// Registry returns the registry the graph validates and samples
// against.
func (g *Graph) Registry() *dist.Registry {
	return g.registry
}

// State returns the lifecycle state.
func (g *Graph) State() GraphState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Len returns the number of nodes in the arena, including nodes
// materialized after freeze.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Node returns a copy of the node with the given id. The copy shares
// no mutable state with the arena.
func (g *Graph) Node(id NodeID) (Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodeLocked(id)
}

func (g *Graph) nodeLocked(id NodeID) (Node, error) {
	if id <= 0 || int(id) > len(g.nodes) {
		return Node{}, fmt.Errorf("node %d: %w", id, ErrNodeNotFound)
	}
	n := *g.nodes[id-1]
	n.Params = append([]NamedParam(nil), n.Params...)
	n.Inputs = append([]Param(nil), n.Inputs...)
	return n, nil
}

// NodeByName returns the unique node with the given name. It fails
// with ErrNodeNotFound when no node matches and ErrAmbiguousName when
// several do.
func (g *Graph) NodeByName(name string) (Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := g.names[name]
	switch len(ids) {
	case 0:
		return Node{}, fmt.Errorf("node %q: %w", name, ErrNodeNotFound)
	case 1:
		return g.nodeLocked(ids[0])
	default:
		return Node{}, fmt.Errorf("node %q matches %d nodes: %w", name, len(ids), ErrAmbiguousName)
	}
}

// Nodes returns an iterator over copies of all nodes in id order.
func (g *Graph) Nodes() func(yield func(NodeID, Node) bool) {
	return func(yield func(NodeID, Node) bool) {
		for i := 1; ; i++ {
			n, err := g.Node(NodeID(i))
			if err != nil {
				return
			}
			if !yield(n.ID, n) {
				return
			}
		}
	}
}

// Edges returns a copy of all recorded edges, sorted by (From, To,
// Kind) for deterministic output.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	g.mu.RUnlock()

	sortEdges(out)
	return out
}

// StaticEdges returns the edges recorded during top-level authoring,
// sorted. This is the declared static structure; the partition package
// provides the empirical counterpart.
func (g *Graph) StaticEdges() []Edge {
	g.mu.RLock()
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		if e.Kind == EdgeStatic {
			out = append(out, e)
		}
	}
	g.mu.RUnlock()

	sortEdges(out)
	return out
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}
		return edges[i].Kind < edges[j].Kind
	})
}

type edgeKey struct {
	from, to NodeID
}

// EdgeKindOf reports the kind recorded for the from -> to edge. The
// boolean is false when the graph holds no such edge.
func (g *Graph) EdgeKindOf(from, to NodeID) (EdgeKind, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	kind, ok := g.edgeKinds[edgeKey{from, to}]
	return kind, ok
}

// addEdgesLocked appends edges and maintains the kind index, keeping
// the first record for a repeated from -> to pair. Callers must hold
// g.mu.
func (g *Graph) addEdgesLocked(edges ...Edge) {
	for _, e := range edges {
		key := edgeKey{e.From, e.To}
		if _, ok := g.edgeKinds[key]; ok {
			continue
		}
		g.edges = append(g.edges, e)
		g.edgeKinds[key] = e.Kind
	}
}

// Set binds a mutable-state node to a value. It may be called before
// or after freeze, including while realization is in flight; traces
// that already realized the node keep the value they saw.
func (g *Graph) Set(id NodeID, v dist.Value) error {
	slot, err := g.slot(id)
	if err != nil {
		return err
	}
	slot.set(v)
	return nil
}

// SetByName binds the unique mutable-state node with the given name.
func (g *Graph) SetByName(name string, v dist.Value) error {
	n, err := g.NodeByName(name)
	if err != nil {
		return err
	}
	return g.Set(n.ID, v)
}

// Clear removes a mutable-state node's bound value. A default set at
// construction remains in effect.
func (g *Graph) Clear(id NodeID) error {
	slot, err := g.slot(id)
	if err != nil {
		return err
	}
	slot.clear()
	return nil
}

// StateValue returns a mutable-state node's current value. The boolean is
// false when the slot is unbound and has no default.
func (g *Graph) StateValue(id NodeID) (dist.Value, bool, error) {
	slot, err := g.slot(id)
	if err != nil {
		return dist.Value{}, false, err
	}
	v, ok := slot.get()
	return v, ok, nil
}

func (g *Graph) slot(id NodeID) (*stateSlot, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if id <= 0 || int(id) > len(g.nodes) {
		return nil, fmt.Errorf("node %d: %w", id, ErrNodeNotFound)
	}
	n := g.nodes[id-1]
	if n.Kind != KindMutableState {
		return nil, fmt.Errorf("node %s is %s: %w", n.Label(), n.Kind, ErrNotMutableState)
	}
	return n.state, nil
}

// Freeze validates the model and ends authoring.
//
// Validation requires every declared node to be defined and the static
// dependency subgraph to be acyclic; violations fail with a
// ModelSpecificationError, wrapping a CyclicDependencyError with the
// offending path when the cause is a cycle, and leave the graph
// building. Freezing a frozen graph fails with ErrGraphFrozen.
func (g *Graph) Freeze() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != GraphStateBuilding {
		return ErrGraphFrozen
	}

	if len(g.undefined) > 0 {
		ids := make([]NodeID, 0, len(g.undefined))
		for id := range g.undefined {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		first := g.nodes[ids[0]-1]
		return &ModelSpecificationError{
			Node:   first.Name,
			Reason: fmt.Sprintf("%d declared node(s) never defined", len(ids)),
			Err:    ErrUndefinedDeclaration,
		}
	}

	if err := g.detectStaticCycles(); err != nil {
		// A static cycle is a malformed model; callers match either
		// the specification error or the cycle detail inside it.
		var cyc *CyclicDependencyError
		if errors.As(err, &cyc) && len(cyc.Path) > 0 {
			return &ModelSpecificationError{
				Node:   cyc.Path[0],
				Reason: "static dependencies form a cycle",
				Err:    cyc,
			}
		}
		return err
	}

	g.state = GraphStateFrozen
	return nil
}

// detectStaticCycles runs a depth-first search over static edges,
// tracking the recursion stack to reconstruct the offending path.
func (g *Graph) detectStaticCycles() error {
	adjacent := make(map[NodeID][]NodeID)
	for _, e := range g.edges {
		if e.Kind == EdgeStatic {
			adjacent[e.From] = append(adjacent[e.From], e.To)
		}
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	marks := make(map[NodeID]int, len(g.nodes))
	var path []NodeID

	var visit func(id NodeID) *CyclicDependencyError
	visit = func(id NodeID) *CyclicDependencyError {
		marks[id] = inStack
		path = append(path, id)

		for _, next := range adjacent[id] {
			switch marks[next] {
			case inStack:
				// Slice the path back to the first occurrence of next
				// and close the cycle.
				start := 0
				for i, p := range path {
					if p == next {
						start = i
						break
					}
				}
				labels := make([]string, 0, len(path)-start+1)
				for _, p := range path[start:] {
					labels = append(labels, g.nodes[p-1].Label())
				}
				labels = append(labels, g.nodes[next-1].Label())
				return newCycleError(labels)
			case unvisited:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}

		path = path[:len(path)-1]
		marks[id] = done
		return nil
	}

	for i := range g.nodes {
		id := NodeID(i + 1)
		if marks[id] == unvisited {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// GraphStats summarizes the graph for logs and debug endpoints.
type GraphStats struct {
	// Name is the model name.
	Name string

	// State is the lifecycle state as a string.
	State string

	// NodeCount is the total number of nodes, including materialized
	// branch and iteration nodes.
	NodeCount int

	// EdgeCount is the total number of recorded edges.
	EdgeCount int

	// NodesByKind maps each node kind to its count.
	NodesByKind map[Kind]int

	// EdgesByKind maps each edge kind to its count.
	EdgesByKind map[EdgeKind]int

	// CondBranchesBuilt counts branch thunks that have run.
	CondBranchesBuilt int

	// LoopIterationsBuilt counts loop iterations that have been
	// materialized.
	LoopIterationsBuilt int
}

// Stats returns a snapshot of graph counters.
func (g *Graph) Stats() GraphStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodesByKind := make(map[Kind]int)
	for _, n := range g.nodes {
		nodesByKind[n.Kind]++
	}
	edgesByKind := make(map[EdgeKind]int)
	for _, e := range g.edges {
		edgesByKind[e.Kind]++
	}

	return GraphStats{
		Name:                g.name,
		State:               g.state.String(),
		NodeCount:           len(g.nodes),
		EdgeCount:           len(g.edges),
		NodesByKind:         nodesByKind,
		EdgesByKind:         edgesByKind,
		CondBranchesBuilt:   g.condBranchesBuilt,
		LoopIterationsBuilt: g.loopIterationsBuilt,
	}
}
