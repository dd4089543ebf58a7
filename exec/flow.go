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
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Nicort/edward/dist"
	"github.com/Nicort/edward/graph"
)

// realizeCond realizes the condition, selects a branch, materializes
// it on first selection, and realizes the branch root. The branch
// decision is per trace; the materialized nodes are shared by every
// trace selecting the same branch.
func (e *Engine) realizeCond(ctx context.Context, tr *Trace, n graph.Node, path []graph.NodeID) (dist.Value, error) {
	condition, err := e.g.CondCondition(n.ID)
	if err != nil {
		return dist.Value{}, nodeErr(n, err)
	}

	cv, err := e.resolveParam(ctx, tr, n.ID, condition, path)
	if err != nil {
		return dist.Value{}, err
	}
	truthy, err := e.truthyScalar(n, "condition", cv)
	if err != nil {
		return dist.Value{}, err
	}

	br := graph.BranchElse
	if truthy {
		br = graph.BranchThen
	}
	root, err := e.g.MaterializeBranch(n.ID, br)
	if err != nil {
		return dist.Value{}, nodeErr(n, err)
	}

	tr.recordEdge(graph.Edge{From: n.ID, To: root, Kind: graph.EdgeDynamic})
	return e.realize(ctx, tr, root, path)
}

// realizeLoop unrolls a do-while loop. Iteration 0 always runs; each
// iteration's continue value decides whether the next one runs; the
// loop's value is the final iteration's carry. Iteration bodies
// materialize once per graph, in index order, shared across traces.
func (e *Engine) realizeLoop(ctx context.Context, tr *Trace, n graph.Node, path []graph.NodeID) (dist.Value, error) {
	rawCap, err := e.g.LoopMaxIterations(n.ID)
	if err != nil {
		return dist.Value{}, nodeErr(n, err)
	}
	guarded, maxIter := e.loopGuard(rawCap)

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return dist.Value{}, err
		}
		if guarded && i >= maxIter {
			return dist.Value{}, nodeErr(n, &UnboundedExpansionError{
				Node:       n.Label(),
				Iterations: i,
			})
		}

		step, err := e.g.MaterializeIteration(n.ID, i)
		if err != nil {
			return dist.Value{}, nodeErr(n, err)
		}
		tr.recordEdge(graph.Edge{From: n.ID, To: step.Continue, Kind: graph.EdgeDynamic})

		cont, err := e.realize(ctx, tr, step.Continue, path)
		if err != nil {
			return dist.Value{}, err
		}
		truthy, err := e.truthyScalar(n, fmt.Sprintf("iteration %d continue value", i), cont)
		if err != nil {
			return dist.Value{}, err
		}

		if e.loopIterations != nil {
			e.loopIterations.Add(ctx, 1,
				metric.WithAttributes(attribute.String("model", e.g.Name())),
			)
		}

		if !truthy {
			tr.recordEdge(graph.Edge{From: n.ID, To: step.Carry, Kind: graph.EdgeDynamic})
			return e.realize(ctx, tr, step.Carry, path)
		}
	}
}

// loopGuard resolves a loop's raw cap against the engine default.
func (e *Engine) loopGuard(rawCap int) (guarded bool, maxIter int) {
	switch {
	case rawCap > 0:
		return true, rawCap
	case rawCap == 0:
		return true, e.maxLoopIter
	default:
		return false, 0
	}
}

// truthyScalar enforces the scalar condition rule: control values must
// realize to scalars, and any nonzero scalar is true.
func (e *Engine) truthyScalar(n graph.Node, what string, v dist.Value) (bool, error) {
	if !v.IsScalar() {
		return false, nodeErr(n, &graph.ModelSpecificationError{
			Node:   n.Name,
			Reason: fmt.Sprintf("%s must be a scalar, got vector of length %d", what, v.Len()),
		})
	}
	return v.Truthy()
}
