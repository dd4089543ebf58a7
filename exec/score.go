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
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Nicort/edward/dist"
	"github.com/Nicort/edward/graph"
)

// LogProb scores a random variable's realized value under its family,
// with parameters as realized in the trace. The node realizes first if
// it has not yet; pinned nodes are scored at their pinned value.
//
// Out-of-support values score math.Inf(-1). Non-random-variable nodes
// fail with ErrNotRandomVariable.
func (e *Engine) LogProb(ctx context.Context, tr *Trace, id graph.NodeID) (float64, error) {
	if ctx == nil {
		return 0, ErrNilContext
	}
	if tr == nil {
		return 0, ErrNilTrace
	}

	n, err := e.g.Node(id)
	if err != nil {
		return 0, err
	}
	return e.logProbNode(ctx, tr, n)
}

// logProbNode scores one node without argument re-validation.
func (e *Engine) logProbNode(ctx context.Context, tr *Trace, n graph.Node) (float64, error) {
	if n.Kind != graph.KindRandomVariable {
		return 0, nodeErr(n, ErrNotRandomVariable)
	}

	v, err := e.realize(ctx, tr, n.ID, nil)
	if err != nil {
		return 0, err
	}

	params := make(map[string]dist.Value, len(n.Params))
	for _, np := range n.Params {
		pv, err := e.resolveParam(ctx, tr, n.ID, np.Param, nil)
		if err != nil {
			return 0, err
		}
		params[np.Name] = pv
	}

	fam, err := e.registry.Lookup(n.Family)
	if err != nil {
		return 0, nodeErr(n, err)
	}
	lp, err := fam.LogProb(params, v)
	if err != nil {
		return 0, nodeErr(n, err)
	}
	return lp, nil
}

// LogJoint sums LogProb over every random variable realized in the
// trace, pinned ones included. Random variables the trace never
// reached contribute nothing.
func (e *Engine) LogJoint(ctx context.Context, tr *Trace) (float64, error) {
	if ctx == nil {
		return 0, ErrNilContext
	}
	if tr == nil {
		return 0, ErrNilTrace
	}

	ctx, span := tracer.Start(ctx, "exec.LogJoint",
		trace.WithAttributes(
			attribute.String("edward.model", e.g.Name()),
			attribute.String("edward.trace_id", tr.ID()),
		),
	)
	defer span.End()

	var (
		sum    float64
		scored = make(map[graph.NodeID]struct{})
	)
	// Scoring a pinned node realizes its parameters, which can add
	// realized random variables behind the scan position. Rescan until
	// a pass scores nothing new.
	for {
		progressed := false
		for id, n := range e.g.Nodes() {
			if n.Kind != graph.KindRandomVariable || !tr.Has(id) {
				continue
			}
			if _, done := scored[id]; done {
				continue
			}
			lp, err := e.logProbNode(ctx, tr, n)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return 0, err
			}
			sum += lp
			scored[id] = struct{}{}
			progressed = true
		}
		if !progressed {
			break
		}
	}

	span.SetAttributes(attribute.Int("edward.terms", len(scored)))
	span.SetStatus(codes.Ok, "")
	return sum, nil
}
