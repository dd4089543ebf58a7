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
	"errors"
	"log/slog"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Nicort/edward/dist"
	"github.com/Nicort/edward/exec"
	"github.com/Nicort/edward/graph"
	"github.com/Nicort/edward/partition"
	"github.com/Nicort/edward/store"
)

// ServiceVersion is the model debug surface version.
const ServiceVersion = "0.1.0"

const (
	// DefaultDraws is the sample count used when a request omits one
	// and no server override is configured.
	DefaultDraws = 1000

	// MaxDraws bounds a single /v1/sample request.
	MaxDraws = 100_000
)

// Handlers contains the HTTP handlers for the model debug surface.
type Handlers struct {
	engine       *exec.Engine
	store        *store.TraceStore
	part         *partition.Partitioner
	defaultDraws int
}

// NewHandlers creates handlers for the given engine.
func NewHandlers(engine *exec.Engine) *Handlers {
	return &Handlers{engine: engine, defaultDraws: DefaultDraws}
}

// WithStore attaches a trace store, enabling archive-on-realize.
func (h *Handlers) WithStore(s *store.TraceStore) *Handlers {
	h.store = s
	return h
}

// WithPartitioner attaches a partitioner fed by every realized trace.
func (h *Handlers) WithPartitioner(p *partition.Partitioner) *Handlers {
	h.part = p
	return h
}

// WithDefaultDraws overrides the draw count used when /v1/sample
// requests omit one.
func (h *Handlers) WithDefaultDraws(n int) *Handlers {
	if n > 0 {
		h.defaultDraws = n
	}
	return h
}

// HandleHealth handles GET /v1/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
		Model:   h.engine.Graph().Name(),
		Session: h.engine.SessionID(),
	})
}

// HandleModel handles GET /v1/model.
//
// Description:
//
//	Returns a structural export of the graph as materialized at the
//	time of the call. Branch and iteration nodes built by earlier
//	traces are included.
//
// Response:
//
//	200 OK: graph.ExportedGraph
func (h *Handlers) HandleModel(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Graph().Export())
}

// HandleModelStats handles GET /v1/model/stats.
//
// Description:
//
//	Returns node and edge counters, including how many conditional
//	branches and loop iterations have been materialized so far.
//
// Response:
//
//	200 OK: StatsResponse
func (h *Handlers) HandleModelStats(c *gin.Context) {
	stats := h.engine.Graph().Stats()

	nodesByKind := make(map[string]int, len(stats.NodesByKind))
	for kind, n := range stats.NodesByKind {
		nodesByKind[kind.String()] = n
	}
	edgesByKind := make(map[string]int, len(stats.EdgesByKind))
	for kind, n := range stats.EdgesByKind {
		edgesByKind[kind.String()] = n
	}

	c.JSON(http.StatusOK, StatsResponse{
		Model:               stats.Name,
		State:               stats.State,
		NodeCount:           stats.NodeCount,
		EdgeCount:           stats.EdgeCount,
		NodesByKind:         nodesByKind,
		EdgesByKind:         edgesByKind,
		CondBranchesBuilt:   stats.CondBranchesBuilt,
		LoopIterationsBuilt: stats.LoopIterationsBuilt,
	})
}

// HandleRealize handles POST /v1/realize.
//
// Description:
//
//	Runs one trace, realizing every named node and its transitive
//	dependencies. Pinned values are bound before realization so
//	downstream nodes see them. With "store": true and an attached
//	store, the finished trace is archived.
//
// Request Body:
//
//	RealizeRequest
//
// Response:
//
//	200 OK: RealizeResponse
//	400 Bad Request: Validation or model specification error
//	404 Not Found: Unknown node name
//	409 Conflict: Unbound mutable state, or no store attached
//	422 Unprocessable Entity: Realization failure
func (h *Handlers) HandleRealize(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRealize")

	var req RealizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	g := h.engine.Graph()
	ids := make([]graph.NodeID, 0, len(req.Nodes))
	for _, name := range req.Nodes {
		n, err := g.NodeByName(name)
		if err != nil {
			h.writeLookupError(c, logger, name, err)
			return
		}
		ids = append(ids, n.ID)
	}

	opts := make([]exec.TraceOption, 0, 2)
	if req.Seed != nil {
		opts = append(opts, exec.WithSeed(*req.Seed))
	}
	if len(req.Pinned) > 0 {
		pinned := make(map[graph.NodeID]dist.Value, len(req.Pinned))
		for name, v := range req.Pinned {
			n, err := g.NodeByName(name)
			if err != nil {
				h.writeLookupError(c, logger, name, err)
				return
			}
			pinned[n.ID] = v
		}
		opts = append(opts, exec.WithPinned(pinned))
	}

	tr := h.engine.NewTrace(opts...)
	values, err := h.engine.RealizeMany(c.Request.Context(), tr, ids...)
	if err != nil {
		statusCode, errCode := errorStatus(err)
		logger.Error("Realize failed", "trace_id", tr.ID(), "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	if h.part != nil {
		h.part.Observe(tr)
	}

	resp := RealizeResponse{
		TraceID: tr.ID(),
		Seed:    tr.Seed(),
		Values:  make(map[string]dist.Value, len(values)),
	}
	for i, id := range ids {
		resp.Values[req.Nodes[i]] = values[id]
	}

	if req.Store {
		if h.store == nil {
			logger.Warn("Archive requested without a store", "trace_id", tr.ID())
			c.JSON(http.StatusConflict, ErrorResponse{
				Error: "no trace store attached",
				Code:  "NO_STORE",
			})
			return
		}
		rec := store.NewTraceRecord(g, tr, ids...)
		if err := h.store.Put(c.Request.Context(), g.Name(), rec); err != nil {
			logger.Error("Trace archive failed", "trace_id", tr.ID(), "error", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: err.Error(),
				Code:  "STORE_FAILED",
			})
			return
		}
		resp.Stored = true
	}

	logger.Info("Trace realized",
		"trace_id", tr.ID(),
		"requested", len(ids),
		"realized", tr.Len(),
		"stored", resp.Stored)

	c.JSON(http.StatusOK, resp)
}

// HandleSample handles POST /v1/sample.
//
// Description:
//
//	Draws n independent realizations of one node, each from its own
//	trace. Draws beyond MaxDraws are rejected.
//
// Request Body:
//
//	SampleRequest
//
// Response:
//
//	200 OK: SampleResponse
//	400 Bad Request: Validation error or too many draws
//	404 Not Found: Unknown node name
//	422 Unprocessable Entity: Realization failure
func (h *Handlers) HandleSample(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSample")

	var req SampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	n, err := h.engine.Graph().NodeByName(req.Node)
	if err != nil {
		h.writeLookupError(c, logger, req.Node, err)
		return
	}

	draws := req.Draws
	if draws <= 0 {
		draws = h.defaultDraws
	}
	if draws > MaxDraws {
		logger.Warn("Draw count too large", "draws", draws)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "draw count exceeds limit",
			Code:  "DRAWS_TOO_LARGE",
		})
		return
	}

	opts := make([]exec.SampleOption, 0, 1)
	if req.Seed != nil {
		opts = append(opts, exec.SampleWithSeed(*req.Seed))
	}

	values, err := h.engine.Sample(c.Request.Context(), n.ID, draws, opts...)
	if err != nil {
		statusCode, errCode := errorStatus(err)
		logger.Error("Sample failed", "node", req.Node, "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	resp := SampleResponse{
		Node:   req.Node,
		Draws:  len(values),
		Values: values,
	}
	if mean, std, ok := scalarSummary(values); ok {
		resp.Mean = &mean
		resp.StdDev = &std
	}

	logger.Info("Node sampled", "node", req.Node, "draws", len(values))
	c.JSON(http.StatusOK, resp)
}

// HandlePartition handles GET /v1/partition.
//
// Description:
//
//	Returns the empirical static/dynamic edge report built from the
//	traces the partitioner has observed, alongside the declared kinds.
//
// Response:
//
//	200 OK: partition.Report
//	409 Conflict: No traces observed yet
//	503 Service Unavailable: No partitioner attached
func (h *Handlers) HandlePartition(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandlePartition")

	if h.part == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "no partitioner attached",
			Code:  "PARTITION_NOT_CONFIGURED",
		})
		return
	}

	report, err := h.part.Report()
	if err != nil {
		if errors.Is(err, partition.ErrNoObservations) {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error: err.Error(),
				Code:  "NO_OBSERVATIONS",
			})
			return
		}
		logger.Error("Partition report failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "PARTITION_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

// writeLookupError maps a node name lookup failure to a response.
func (h *Handlers) writeLookupError(c *gin.Context, logger *slog.Logger, name string, err error) {
	statusCode := http.StatusInternalServerError
	errCode := "LOOKUP_FAILED"

	if errors.Is(err, graph.ErrNodeNotFound) {
		statusCode = http.StatusNotFound
		errCode = "NODE_NOT_FOUND"
	} else if errors.Is(err, graph.ErrAmbiguousName) {
		statusCode = http.StatusBadRequest
		errCode = "AMBIGUOUS_NODE"
	}

	logger.Warn("Node lookup failed", "node", name, "error", err)
	c.JSON(statusCode, ErrorResponse{
		Error:   err.Error(),
		Code:    errCode,
		Details: name,
	})
}

// errorStatus maps realization failures to an HTTP status and code.
// Node attribution wrappers are unwrapped along the way.
func errorStatus(err error) (int, string) {
	var (
		stateErr *exec.UnboundStateError
		expErr   *exec.UnboundedExpansionError
		cycleErr *graph.CyclicDependencyError
		specErr  *graph.ModelSpecificationError
		distErr  *dist.DistributionError
		compErr  *exec.ComputationError
	)

	switch {
	case errors.Is(err, graph.ErrNodeNotFound):
		return http.StatusNotFound, "NODE_NOT_FOUND"
	case errors.As(err, &stateErr):
		return http.StatusConflict, "UNBOUND_STATE"
	case errors.As(err, &expErr):
		return http.StatusUnprocessableEntity, "UNBOUNDED_EXPANSION"
	case errors.As(err, &cycleErr):
		return http.StatusUnprocessableEntity, "CYCLIC_DEPENDENCY"
	case errors.As(err, &specErr):
		return http.StatusBadRequest, "MODEL_SPECIFICATION"
	case errors.As(err, &distErr):
		return http.StatusUnprocessableEntity, "DISTRIBUTION"
	case errors.As(err, &compErr):
		return http.StatusUnprocessableEntity, "COMPUTATION"
	}
	return http.StatusInternalServerError, "REALIZE_FAILED"
}

// scalarSummary computes the mean and sample standard deviation of
// scalar draws. ok is false when any draw is a vector.
func scalarSummary(values []dist.Value) (mean, std float64, ok bool) {
	if len(values) == 0 {
		return 0, 0, false
	}
	floats := make([]float64, len(values))
	for i, v := range values {
		f, err := v.Float()
		if err != nil {
			return 0, 0, false
		}
		floats[i] = f
	}

	for _, f := range floats {
		mean += f
	}
	mean /= float64(len(floats))

	if len(floats) < 2 {
		return mean, 0, true
	}
	var ss float64
	for _, f := range floats {
		d := f - mean
		ss += d * d
	}
	std = math.Sqrt(ss / float64(len(floats)-1))
	return mean, std, true
}

// getOrCreateRequestID returns the X-Request-ID header, minting one
// when absent, and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
