// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package partition classifies model structure empirically. It watches
// realized traces and splits the dependency edges they exercised into
// a static part (present in every observed trace) and a dynamic part
// (present in some but not all).
//
// The classification is advisory and converges as observations
// accumulate; the authored partition from graph.StaticEdges stays
// available for comparison and is reported alongside.
package partition

import (
	"errors"
	"sort"
	"sync"

	"github.com/Nicort/edward/exec"
	"github.com/Nicort/edward/graph"
)

// ErrNoObservations indicates a partitioning query before any trace
// was observed.
var ErrNoObservations = errors.New("no traces observed")

// Partitioner accumulates per-edge presence counts across traces.
//
// Thread Safety: all methods are safe for concurrent use.
type Partitioner struct {
	g *graph.Graph

	mu     sync.RWMutex
	traces int
	counts map[graph.Edge]int
}

// New returns a partitioner for the graph's models.
func New(g *graph.Graph) *Partitioner {
	return &Partitioner{
		g:      g,
		counts: make(map[graph.Edge]int),
	}
}

// Observe folds one realized trace into the counts. Edges traversed
// several times within the trace count once. Nil traces are ignored.
func (p *Partitioner) Observe(tr *exec.Trace) {
	if tr == nil {
		return
	}
	p.ObserveEdges(tr.Edges())
}

// ObserveEdges folds a recorded edge set into the counts, for replay
// from archived traces.
func (p *Partitioner) ObserveEdges(edges []graph.Edge) {
	seen := make(map[graph.Edge]struct{}, len(edges))
	for _, e := range edges {
		seen[e] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.traces++
	for e := range seen {
		p.counts[e]++
	}
}

// Observations returns the number of traces observed so far.
func (p *Partitioner) Observations() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.traces
}

// StaticEdges returns the edges every observed trace traversed,
// sorted. It fails with ErrNoObservations before the first trace.
func (p *Partitioner) StaticEdges() ([]graph.Edge, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.traces == 0 {
		return nil, ErrNoObservations
	}
	out := make([]graph.Edge, 0, len(p.counts))
	for e, n := range p.counts {
		if n == p.traces {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out, nil
}

// DynamicEdges returns the edges observed in at least one trace but
// absent from at least one, sorted.
func (p *Partitioner) DynamicEdges() ([]graph.Edge, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.traces == 0 {
		return nil, ErrNoObservations
	}
	out := make([]graph.Edge, 0, len(p.counts))
	for e, n := range p.counts {
		if n < p.traces {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out, nil
}

// DynamicEdgesFor returns the trace's edges outside the current
// static set, sorted: the structure this particular trace exercised
// beyond what every trace shares.
func (p *Partitioner) DynamicEdgesFor(tr *exec.Trace) ([]graph.Edge, error) {
	if tr == nil {
		return nil, exec.ErrNilTrace
	}

	static, err := p.StaticEdges()
	if err != nil {
		return nil, err
	}
	inStatic := make(map[graph.Edge]struct{}, len(static))
	for _, e := range static {
		inStatic[e] = struct{}{}
	}

	var out []graph.Edge
	for _, e := range tr.Edges() {
		if _, ok := inStatic[e]; !ok {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out, nil
}

// Subgraph is a node set plus the edges connecting it.
type Subgraph struct {
	// Nodes holds the member node ids in ascending order.
	Nodes []graph.NodeID `json:"nodes"`

	// Edges holds the member edges sorted by (From, To, Kind).
	Edges []graph.Edge `json:"edges"`
}

// StaticSubgraph returns the empirically static edges together with
// the nodes they touch.
func (p *Partitioner) StaticSubgraph() (Subgraph, error) {
	static, err := p.StaticEdges()
	if err != nil {
		return Subgraph{}, err
	}

	nodeSet := make(map[graph.NodeID]struct{})
	for _, e := range static {
		nodeSet[e.From] = struct{}{}
		nodeSet[e.To] = struct{}{}
	}
	nodes := make([]graph.NodeID, 0, len(nodeSet))
	for id := range nodeSet {
		nodes = append(nodes, id)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	return Subgraph{Nodes: nodes, Edges: static}, nil
}

func sortEdges(edges []graph.Edge) {
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
