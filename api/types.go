// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"github.com/Nicort/edward/dist"
)

// HealthResponse is the response for GET /v1/health.
type HealthResponse struct {
	// Status is "healthy" once the engine is attached.
	Status string `json:"status"`

	// Version is the service version.
	Version string `json:"version"`

	// Model is the served model's name.
	Model string `json:"model"`

	// Session is the engine session id.
	Session string `json:"session"`
}

// StatsResponse is the response for GET /v1/model/stats.
type StatsResponse struct {
	// Model is the model name.
	Model string `json:"model"`

	// State is the graph lifecycle state.
	State string `json:"state"`

	// NodeCount is the total number of nodes, including materialized
	// branch and iteration nodes.
	NodeCount int `json:"node_count"`

	// EdgeCount is the total number of recorded edges.
	EdgeCount int `json:"edge_count"`

	// NodesByKind maps node kind names to counts.
	NodesByKind map[string]int `json:"nodes_by_kind"`

	// EdgesByKind maps edge kind names to counts.
	EdgesByKind map[string]int `json:"edges_by_kind"`

	// CondBranchesBuilt counts branch thunks that have run.
	CondBranchesBuilt int `json:"cond_branches_built"`

	// LoopIterationsBuilt counts materialized loop iterations.
	LoopIterationsBuilt int `json:"loop_iterations_built"`
}

// RealizeRequest is the request body for POST /v1/realize.
type RealizeRequest struct {
	// Nodes names the nodes to realize. Required, at least one.
	Nodes []string `json:"nodes" binding:"required,min=1"`

	// Seed fixes the trace seed for reproducible realization. Omitted
	// derives a fresh stream from the engine's base seed.
	Seed *uint64 `json:"seed"`

	// Pinned maps node names to observed values fixed for this trace.
	Pinned map[string]dist.Value `json:"pinned"`

	// Store archives the finished trace when a store is attached.
	Store bool `json:"store"`
}

// RealizeResponse is the response for POST /v1/realize.
type RealizeResponse struct {
	// TraceID identifies the trace.
	TraceID string `json:"trace_id"`

	// Seed is the seed the trace ran under.
	Seed uint64 `json:"seed"`

	// Values maps each requested node name to its realized value.
	Values map[string]dist.Value `json:"values"`

	// Stored is true when the trace was archived.
	Stored bool `json:"stored,omitempty"`
}

// SampleRequest is the request body for POST /v1/sample.
type SampleRequest struct {
	// Node names the node to draw from. Required.
	Node string `json:"node" binding:"required"`

	// Draws is the number of independent traces to run. Non-positive
	// falls back to the server's configured default.
	Draws int `json:"draws"`

	// Seed fixes the sampling seed for reproducible draws.
	Seed *uint64 `json:"seed"`
}

// SampleResponse is the response for POST /v1/sample.
type SampleResponse struct {
	// Node echoes the sampled node name.
	Node string `json:"node"`

	// Draws is the number of values returned.
	Draws int `json:"draws"`

	// Values holds one realized value per draw.
	Values []dist.Value `json:"values"`

	// Mean and StdDev summarize scalar draws; omitted when any draw
	// is a vector.
	Mean   *float64 `json:"mean,omitempty"`
	StdDev *float64 `json:"std_dev,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}
