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

import "github.com/Nicort/edward/dist"

// ExportedParam is one parameter or input in an export snapshot.
// Exactly one of Ref and Const is populated.
type ExportedParam struct {
	Name  string      `json:"name,omitempty"`
	Ref   NodeID      `json:"ref,omitempty"`
	Const *dist.Value `json:"const,omitempty"`
}

// ExportedNode is one node in an export snapshot.
type ExportedNode struct {
	ID     NodeID          `json:"id"`
	Name   string          `json:"name"`
	Kind   string          `json:"kind"`
	Family string          `json:"family,omitempty"`
	Params []ExportedParam `json:"params,omitempty"`
	Inputs []ExportedParam `json:"inputs,omitempty"`
}

// ExportedEdge is one edge in an export snapshot.
type ExportedEdge struct {
	From NodeID `json:"from"`
	To   NodeID `json:"to"`
	Kind string `json:"kind"`
}

// ExportedGraph is a read-only, JSON-serializable snapshot of the
// model structure, as materialized at the time of the call.
type ExportedGraph struct {
	Name      string         `json:"name"`
	State     string         `json:"state"`
	NodeCount int            `json:"node_count"`
	Nodes     []ExportedNode `json:"nodes"`
	Edges     []ExportedEdge `json:"edges"`
}

// Export snapshots the graph structure for debug surfaces. Transform
// functions and thunks are not representable and are omitted; branch
// and iteration nodes appear once materialized.
func (g *Graph) Export() ExportedGraph {
	g.mu.RLock()
	nodes := make([]ExportedNode, 0, len(g.nodes))
	for _, n := range g.nodes {
		en := ExportedNode{
			ID:     n.ID,
			Name:   n.Name,
			Kind:   n.Kind.String(),
			Family: n.Family,
		}
		for _, np := range n.Params {
			en.Params = append(en.Params, exportParam(np.Name, np.Param))
		}
		for _, in := range n.Inputs {
			en.Inputs = append(en.Inputs, exportParam("", in))
		}
		nodes = append(nodes, en)
	}
	name := g.name
	state := g.state.String()
	g.mu.RUnlock()

	edges := g.Edges()
	exported := make([]ExportedEdge, 0, len(edges))
	for _, e := range edges {
		exported = append(exported, ExportedEdge{From: e.From, To: e.To, Kind: e.Kind.String()})
	}

	return ExportedGraph{
		Name:      name,
		State:     state,
		NodeCount: len(nodes),
		Nodes:     nodes,
		Edges:     exported,
	}
}

func exportParam(name string, p Param) ExportedParam {
	ep := ExportedParam{Name: name}
	if id, ok := p.Node(); ok {
		ep.Ref = id
		return ep
	}
	v, _ := p.Value()
	ep.Const = &v
	return ep
}
