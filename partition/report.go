// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package partition

import (
	"fmt"

	"github.com/Nicort/edward/graph"
)

// Classification labels one edge's empirical class.
type Classification string

const (
	// ClassStatic marks edges present in every observed trace.
	ClassStatic Classification = "static"

	// ClassDynamic marks edges present in some traces but not all.
	ClassDynamic Classification = "dynamic"
)

// EdgeObservation is one edge's occurrence record.
type EdgeObservation struct {
	// From is the depending node's id.
	From graph.NodeID `json:"from"`

	// To is the depended-on node's id.
	To graph.NodeID `json:"to"`

	// FromLabel and ToLabel are the endpoint labels for display.
	FromLabel string `json:"from_label"`
	ToLabel   string `json:"to_label"`

	// Declared is the authoring-time edge kind.
	Declared string `json:"declared"`

	// Seen is the number of observed traces traversing the edge.
	Seen int `json:"seen"`

	// Share is Seen divided by the observation count.
	Share float64 `json:"share"`

	// Class is the empirical classification.
	Class Classification `json:"class"`
}

// Report summarizes the partitioner's state for CLI and HTTP output.
type Report struct {
	// Model is the graph's model name.
	Model string `json:"model"`

	// Observations is the number of traces folded in.
	Observations int `json:"observations"`

	// Edges holds one record per observed edge, sorted by endpoints.
	Edges []EdgeObservation `json:"edges"`

	// StaticCount and DynamicCount total the empirical classes.
	StaticCount  int `json:"static_count"`
	DynamicCount int `json:"dynamic_count"`

	// DeclaredStaticCount counts the authored static edges for
	// comparison with the empirical split.
	DeclaredStaticCount int `json:"declared_static_count"`
}

// Report builds the per-edge occurrence summary. It fails with
// ErrNoObservations before the first trace.
func (p *Partitioner) Report() (Report, error) {
	p.mu.RLock()
	traces := p.traces
	counts := make(map[graph.Edge]int, len(p.counts))
	for e, n := range p.counts {
		counts[e] = n
	}
	p.mu.RUnlock()

	if traces == 0 {
		return Report{}, ErrNoObservations
	}

	edges := make([]graph.Edge, 0, len(counts))
	for e := range counts {
		edges = append(edges, e)
	}
	sortEdges(edges)

	r := Report{
		Model:               p.g.Name(),
		Observations:        traces,
		Edges:               make([]EdgeObservation, 0, len(edges)),
		DeclaredStaticCount: len(p.g.StaticEdges()),
	}
	for _, e := range edges {
		seen := counts[e]
		class := ClassDynamic
		if seen == traces {
			class = ClassStatic
			r.StaticCount++
		} else {
			r.DynamicCount++
		}
		r.Edges = append(r.Edges, EdgeObservation{
			From:      e.From,
			To:        e.To,
			FromLabel: p.label(e.From),
			ToLabel:   p.label(e.To),
			Declared:  e.Kind.String(),
			Seen:      seen,
			Share:     float64(seen) / float64(traces),
			Class:     class,
		})
	}
	return r, nil
}

func (p *Partitioner) label(id graph.NodeID) string {
	if n, err := p.g.Node(id); err == nil {
		return n.Label()
	}
	return fmt.Sprintf("#%d", id)
}
