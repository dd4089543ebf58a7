// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package demo provides the built-in models the edward CLI operates
// on. Each model exercises a different part of the engine: plain
// random-variable dependencies, stochastic branching, stochastic
// loops, and mutable state.
package demo

import (
	"errors"
	"fmt"

	"github.com/Nicort/edward/dist"
	"github.com/Nicort/edward/graph"
)

// ErrUnknownModel indicates a model name with no builder.
var ErrUnknownModel = errors.New("unknown demo model")

// Model couples a model name with a builder that authors and freezes
// its graph.
type Model struct {
	// Name is the model identifier used on the command line.
	Name string

	// Description is a one-line summary for listings.
	Description string

	// Roots names the nodes worth realizing or sampling by default.
	Roots []string

	// Build authors the graph and freezes it.
	Build func() (*graph.Graph, error)
}

// Models returns the built-in models in display order.
func Models() []Model {
	return []Model{
		{
			Name:        "beta-bernoulli",
			Description: "conjugate coin model: beta rate, three flips, summed heads",
			Roots:       []string{"heads"},
			Build:       buildBetaBernoulli,
		},
		{
			Name:        "mixture-with-cond",
			Description: "two-component normal mixture via a stochastic branch",
			Roots:       []string{"value"},
			Build:       buildMixture,
		},
		{
			Name:        "geometric-loop",
			Description: "trials-to-first-success counter via a stochastic loop",
			Roots:       []string{"trials"},
			Build:       buildGeometricLoop,
		},
		{
			Name:        "regression",
			Description: "linear model over a mutable covariate with normal noise",
			Roots:       []string{"y"},
			Build:       buildRegression,
		},
	}
}

// Find returns the named model, or ErrUnknownModel.
func Find(name string) (Model, error) {
	for _, m := range Models() {
		if m.Name == name {
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// buildBetaBernoulli authors the coin model. The flip count is kept
// small so exports stay readable.
func buildBetaBernoulli() (*graph.Graph, error) {
	g := graph.New(graph.WithName("beta-bernoulli"))
	b := graph.NewBuilder(g)

	rate, err := b.RandomVariable("rate", dist.FamilyBeta, map[string]graph.Param{
		"a": graph.ConstFloat(2),
		"b": graph.ConstFloat(2),
	})
	if err != nil {
		return nil, err
	}

	flips := make([]graph.Param, 0, 3)
	for i := 0; i < 3; i++ {
		flip, err := b.RandomVariable(fmt.Sprintf("flip_%d", i), dist.FamilyBernoulli, map[string]graph.Param{
			"p": graph.Ref(rate),
		})
		if err != nil {
			return nil, err
		}
		flips = append(flips, graph.Ref(flip))
	}

	if _, err := b.Transform("heads", graph.SumFn, flips...); err != nil {
		return nil, err
	}

	if err := g.Freeze(); err != nil {
		return nil, err
	}
	return g, nil
}

// buildMixture authors a two-component mixture. The component
// indicator drives a cond whose arms are built lazily, so a trace
// only materializes the arm it takes.
func buildMixture() (*graph.Graph, error) {
	g := graph.New(graph.WithName("mixture-with-cond"))
	b := graph.NewBuilder(g)

	component, err := b.RandomVariable("component", dist.FamilyBernoulli, map[string]graph.Param{
		"p": graph.ConstFloat(0.3),
	})
	if err != nil {
		return nil, err
	}

	_, err = b.Cond("value", graph.Ref(component),
		func(tb *graph.Builder) (graph.NodeID, error) {
			return tb.RandomVariable("high", dist.FamilyNormal, map[string]graph.Param{
				"mu":    graph.ConstFloat(4),
				"sigma": graph.ConstFloat(1),
			})
		},
		func(eb *graph.Builder) (graph.NodeID, error) {
			return eb.RandomVariable("low", dist.FamilyNormal, map[string]graph.Param{
				"mu":    graph.ConstFloat(-4),
				"sigma": graph.ConstFloat(1),
			})
		})
	if err != nil {
		return nil, err
	}

	if err := g.Freeze(); err != nil {
		return nil, err
	}
	return g, nil
}

// buildGeometricLoop authors a trials-to-first-success counter. Each
// iteration draws one trial and keeps looping while it fails; the
// carry counts the trials made so far.
func buildGeometricLoop() (*graph.Graph, error) {
	g := graph.New(graph.WithName("geometric-loop"))
	b := graph.NewBuilder(g)

	_, err := b.Loop("trials", graph.ConstFloat(0),
		func(ib *graph.Builder, i int, carry graph.Param) (graph.LoopStep, error) {
			trial, err := ib.RandomVariable(fmt.Sprintf("trial_%d", i), dist.FamilyBernoulli, map[string]graph.Param{
				"p": graph.ConstFloat(0.25),
			})
			if err != nil {
				return graph.LoopStep{}, err
			}

			// A failed trial keeps the loop going.
			cont, err := ib.Transform(fmt.Sprintf("continue_%d", i), graph.AffineFn(-1, 1), graph.Ref(trial))
			if err != nil {
				return graph.LoopStep{}, err
			}

			count, err := ib.Transform(fmt.Sprintf("count_%d", i), graph.AffineFn(1, 1), carry)
			if err != nil {
				return graph.LoopStep{}, err
			}

			return graph.LoopStep{Continue: cont, Carry: count}, nil
		},
		graph.WithMaxIterations(500))
	if err != nil {
		return nil, err
	}

	if err := g.Freeze(); err != nil {
		return nil, err
	}
	return g, nil
}

// buildRegression authors a one-point linear model. The covariate is
// mutable state with a default, so the model realizes out of the box
// and sweeps are a Set call away.
func buildRegression() (*graph.Graph, error) {
	g := graph.New(graph.WithName("regression"))
	b := graph.NewBuilder(g)

	slope, err := b.RandomVariable("slope", dist.FamilyNormal, map[string]graph.Param{
		"mu":    graph.ConstFloat(0),
		"sigma": graph.ConstFloat(2),
	})
	if err != nil {
		return nil, err
	}
	intercept, err := b.RandomVariable("intercept", dist.FamilyNormal, map[string]graph.Param{
		"mu":    graph.ConstFloat(0),
		"sigma": graph.ConstFloat(2),
	})
	if err != nil {
		return nil, err
	}

	x, err := b.MutableState("x", graph.WithDefault(dist.Scalar(1)))
	if err != nil {
		return nil, err
	}

	mean, err := b.Transform("mean", linearFn,
		graph.Ref(slope), graph.Ref(x), graph.Ref(intercept))
	if err != nil {
		return nil, err
	}

	if _, err := b.RandomVariable("y", dist.FamilyNormal, map[string]graph.Param{
		"mu":    graph.Ref(mean),
		"sigma": graph.ConstFloat(0.5),
	}); err != nil {
		return nil, err
	}

	if err := g.Freeze(); err != nil {
		return nil, err
	}
	return g, nil
}

// linearFn computes slope*x + intercept.
func linearFn(inputs []dist.Value) (dist.Value, error) {
	if len(inputs) != 3 {
		return dist.Value{}, fmt.Errorf("linear takes 3 inputs, got %d", len(inputs))
	}
	m, err := inputs[0].Float()
	if err != nil {
		return dist.Value{}, err
	}
	x, err := inputs[1].Float()
	if err != nil {
		return dist.Value{}, err
	}
	c, err := inputs[2].Float()
	if err != nil {
		return dist.Value{}, err
	}
	return dist.Scalar(m*x + c), nil
}
