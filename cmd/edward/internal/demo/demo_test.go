// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package demo

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Nicort/edward/dist"
	"github.com/Nicort/edward/exec"
	"github.com/Nicort/edward/graph"
)

func buildModel(t *testing.T, name string) *graph.Graph {
	t.Helper()
	m, err := Find(name)
	if err != nil {
		t.Fatalf("Find(%q) error = %v", name, err)
	}
	g, err := m.Build()
	if err != nil {
		t.Fatalf("Build %q error = %v", name, err)
	}
	return g
}

func newEngine(t *testing.T, g *graph.Graph) *exec.Engine {
	t.Helper()
	e, err := exec.New(g, exec.WithBaseSeed(0xed))
	if err != nil {
		t.Fatalf("exec.New() error = %v", err)
	}
	return e
}

func realizeByName(t *testing.T, e *exec.Engine, tr *exec.Trace, name string) dist.Value {
	t.Helper()
	n, err := e.Graph().NodeByName(name)
	if err != nil {
		t.Fatalf("NodeByName(%q) error = %v", name, err)
	}
	v, err := e.Realize(context.Background(), tr, n.ID)
	if err != nil {
		t.Fatalf("Realize(%q) error = %v", name, err)
	}
	return v
}

func TestModels_AllBuildFrozen(t *testing.T) {
	for _, m := range Models() {
		t.Run(m.Name, func(t *testing.T) {
			g, err := m.Build()
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if g.Name() != m.Name {
				t.Errorf("graph name = %q, want %q", g.Name(), m.Name)
			}
			if g.State() != graph.GraphStateFrozen {
				t.Errorf("state = %v, want frozen", g.State())
			}
			for _, root := range m.Roots {
				if _, err := g.NodeByName(root); err != nil {
					t.Errorf("root %q missing: %v", root, err)
				}
			}
		})
	}
}

func TestFind_Unknown(t *testing.T) {
	_, err := Find("nope")
	if !errors.Is(err, ErrUnknownModel) {
		t.Errorf("Find() error = %v, want ErrUnknownModel", err)
	}
}

func TestBetaBernoulli_HeadsWithinFlipCount(t *testing.T) {
	e := newEngine(t, buildModel(t, "beta-bernoulli"))

	tr := e.NewTrace(exec.WithSeed(7))
	heads := realizeByName(t, e, tr, "heads")

	f, err := heads.Float()
	if err != nil {
		t.Fatalf("heads value: %v", err)
	}
	if f < 0 || f > 3 || f != math.Trunc(f) {
		t.Errorf("heads = %v, want an integer in [0, 3]", f)
	}
}

func TestMixture_OneArmMaterialized(t *testing.T) {
	g := buildModel(t, "mixture-with-cond")
	e := newEngine(t, g)

	tr := e.NewTrace(exec.WithSeed(3))
	component := realizeByName(t, e, tr, "component")
	value := realizeByName(t, e, tr, "value")

	if !value.IsScalar() {
		t.Errorf("value = %v, want a scalar", value)
	}
	c, err := component.Float()
	if err != nil {
		t.Fatalf("component value: %v", err)
	}
	if c != 0 && c != 1 {
		t.Errorf("component = %v, want 0 or 1", c)
	}

	// Only the taken arm is built.
	if built := g.Stats().CondBranchesBuilt; built != 1 {
		t.Errorf("CondBranchesBuilt = %d, want 1", built)
	}
}

func TestMixture_SameSeedSameValue(t *testing.T) {
	e := newEngine(t, buildModel(t, "mixture-with-cond"))

	a := realizeByName(t, e, e.NewTrace(exec.WithSeed(11)), "value")
	b := realizeByName(t, e, e.NewTrace(exec.WithSeed(11)), "value")

	if !a.Equal(b) {
		t.Errorf("same-seed values differ: %v vs %v", a, b)
	}
}

func TestGeometricLoop_CountsAtLeastOneTrial(t *testing.T) {
	e := newEngine(t, buildModel(t, "geometric-loop"))

	n, err := e.Graph().NodeByName("trials")
	if err != nil {
		t.Fatalf("NodeByName(trials) error = %v", err)
	}
	values, err := e.Sample(context.Background(), n.ID, 20, exec.SampleWithSeed(5))
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}

	for i, v := range values {
		f, err := v.Float()
		if err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
		if f < 1 || f != math.Trunc(f) {
			t.Errorf("draw %d = %v, want a whole count >= 1", i, f)
		}
	}
}

func TestRegression_DefaultCovariateRealizes(t *testing.T) {
	g := buildModel(t, "regression")
	e := newEngine(t, g)

	tr := e.NewTrace(exec.WithSeed(13))
	y := realizeByName(t, e, tr, "y")
	if !y.IsScalar() {
		t.Errorf("y = %v, want a scalar", y)
	}
}

func TestRegression_CovariateSweep(t *testing.T) {
	g := buildModel(t, "regression")
	e := newEngine(t, g)

	if err := g.SetByName("x", dist.Scalar(10)); err != nil {
		t.Fatalf("SetByName(x) error = %v", err)
	}

	// Pin the coefficients so the mean is exact.
	slope, _ := g.NodeByName("slope")
	intercept, _ := g.NodeByName("intercept")
	tr := e.NewTrace(exec.WithSeed(1), exec.WithPinned(map[graph.NodeID]dist.Value{
		slope.ID:     dist.Scalar(2),
		intercept.ID: dist.Scalar(-1),
	}))

	mean := realizeByName(t, e, tr, "mean")
	f, err := mean.Float()
	if err != nil {
		t.Fatalf("mean value: %v", err)
	}
	if f != 19 {
		t.Errorf("mean = %v, want 2*10 - 1 = 19", f)
	}
}
