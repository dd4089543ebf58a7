// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package exec

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Nicort/edward/dist"
	"github.com/Nicort/edward/graph"
)

// Trace is one realization universe. Values realized within a trace
// are memoized, so every node takes at most one value per trace;
// distinct traces share nothing and draw independently.
//
// Thread Safety: all methods are safe for concurrent use. Concurrent
// realizations of the same node coordinate through per-node latches so
// the first caller computes and the rest wait.
type Trace struct {
	id   string
	seed uint64

	mu      sync.Mutex
	values  map[graph.NodeID]dist.Value
	latches map[graph.NodeID]*latch
	edges   map[graph.Edge]struct{}
	pinned  map[graph.NodeID]struct{}
}

// latch coordinates concurrent realizations of one node.
type latch struct {
	done chan struct{}
	val  dist.Value
	err  error
}

// TraceOption configures a new trace.
type TraceOption func(*traceConfig)

type traceConfig struct {
	seed    uint64
	seedSet bool
	pinned  map[graph.NodeID]dist.Value
}

// WithSeed fixes the trace's random seed. Two traces over the same
// graph with the same seed realize identical values.
func WithSeed(seed uint64) TraceOption {
	return func(c *traceConfig) {
		c.seed = seed
		c.seedSet = true
	}
}

// WithPinned pre-binds node values, conditioning the trace on them.
// A pinned node never draws; dependents consume the pinned value.
func WithPinned(values map[graph.NodeID]dist.Value) TraceOption {
	return func(c *traceConfig) {
		if c.pinned == nil {
			c.pinned = make(map[graph.NodeID]dist.Value, len(values))
		}
		for id, v := range values {
			c.pinned[id] = v
		}
	}
}

// newTrace builds a trace with the given defaults applied.
func newTrace(defaultSeed uint64, opts ...TraceOption) *Trace {
	cfg := traceConfig{seed: defaultSeed}
	for _, opt := range opts {
		opt(&cfg)
	}

	t := &Trace{
		id:      uuid.NewString(),
		seed:    cfg.seed,
		values:  make(map[graph.NodeID]dist.Value),
		latches: make(map[graph.NodeID]*latch),
		edges:   make(map[graph.Edge]struct{}),
		pinned:  make(map[graph.NodeID]struct{}, len(cfg.pinned)),
	}
	for id, v := range cfg.pinned {
		t.values[id] = v
		t.pinned[id] = struct{}{}
	}
	return t
}

// ID returns the trace's unique identifier.
func (t *Trace) ID() string {
	return t.id
}

// Seed returns the trace's random seed.
func (t *Trace) Seed() uint64 {
	return t.seed
}

// Value returns the realized value of a node, if any.
func (t *Trace) Value(id graph.NodeID) (dist.Value, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.values[id]
	return v, ok
}

// Has reports whether the node has realized in this trace.
func (t *Trace) Has(id graph.NodeID) bool {
	_, ok := t.Value(id)
	return ok
}

// Len returns the number of realized nodes, pinned values included.
func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.values)
}

// NodeIDs returns the realized node ids in ascending order.
func (t *Trace) NodeIDs() []graph.NodeID {
	t.mu.Lock()
	ids := make([]graph.NodeID, 0, len(t.values))
	for id := range t.values {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Pinned reports whether the node's value was pinned at creation.
func (t *Trace) Pinned(id graph.NodeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pinned[id]
	return ok
}

// PinnedIDs returns the pinned node ids in ascending order.
func (t *Trace) PinnedIDs() []graph.NodeID {
	t.mu.Lock()
	ids := make([]graph.NodeID, 0, len(t.pinned))
	for id := range t.pinned {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Edges returns the dependency edges this trace observed while
// realizing, sorted by (From, To, Kind).
func (t *Trace) Edges() []graph.Edge {
	t.mu.Lock()
	edges := make([]graph.Edge, 0, len(t.edges))
	for e := range t.edges {
		edges = append(edges, e)
	}
	t.mu.Unlock()

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}
		return edges[i].Kind < edges[j].Kind
	})
	return edges
}

// Values returns a copy of all realized values keyed by node id.
func (t *Trace) Values() map[graph.NodeID]dist.Value {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[graph.NodeID]dist.Value, len(t.values))
	for id, v := range t.values {
		out[id] = v
	}
	return out
}

// recordEdge notes that the trace traversed an edge.
func (t *Trace) recordEdge(e graph.Edge) {
	t.mu.Lock()
	t.edges[e] = struct{}{}
	t.mu.Unlock()
}

// startOutcome describes what a realization attempt found.
type startOutcome int

const (
	// startMemo means the value was already realized.
	startMemo startOutcome = iota

	// startOwn means the caller owns the computation and must call
	// finish.
	startOwn

	// startWait means another goroutine is realizing; wait on the
	// latch.
	startWait
)

// start claims or observes the realization of a node.
func (t *Trace) start(id graph.NodeID) (startOutcome, dist.Value, *latch) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if v, ok := t.values[id]; ok {
		return startMemo, v, nil
	}
	if l, ok := t.latches[id]; ok {
		return startWait, dist.Value{}, l
	}
	l := &latch{done: make(chan struct{})}
	t.latches[id] = l
	return startOwn, dist.Value{}, l
}

// finish publishes the outcome of an owned realization. Failures are
// not memoized: the latch is removed so a later attempt may retry
// after the caller repairs the cause.
func (t *Trace) finish(id graph.NodeID, l *latch, v dist.Value, err error) {
	t.mu.Lock()
	if err == nil {
		t.values[id] = v
	}
	delete(t.latches, id)
	t.mu.Unlock()

	l.val = v
	l.err = err
	close(l.done)
}
