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
	"context"
	"errors"
	"testing"

	"github.com/Nicort/edward/dist"
	"github.com/Nicort/edward/exec"
	"github.com/Nicort/edward/graph"
)

// branchyModel builds flag -> cond with two constant branches, plus an
// engine over it. Setting the flag steers which branch a trace takes.
func branchyModel(t *testing.T) (g *graph.Graph, e *exec.Engine, flag, pick graph.NodeID) {
	t.Helper()

	g = graph.New(graph.WithName("branchy"))
	b := graph.NewBuilder(g)

	var err error
	flag, err = b.MutableState("flag")
	if err != nil {
		t.Fatalf("MutableState() error = %v", err)
	}
	pick, err = b.Cond("pick", graph.Ref(flag),
		func(bb *graph.Builder) (graph.NodeID, error) {
			return bb.Transform("hot", graph.AffineFn(0, 1), graph.ConstFloat(0))
		},
		func(bb *graph.Builder) (graph.NodeID, error) {
			return bb.Transform("cold", graph.AffineFn(0, -1), graph.ConstFloat(0))
		},
	)
	if err != nil {
		t.Fatalf("Cond() error = %v", err)
	}
	if err := g.Freeze(); err != nil {
		t.Fatalf("Freeze() error = %v", err)
	}

	e, err = exec.New(g, exec.WithBaseSeed(1))
	if err != nil {
		t.Fatalf("exec.New() error = %v", err)
	}
	return g, e, flag, pick
}

// observeBranch realizes the cond under the given flag value in a
// fresh trace and returns that trace.
func observeBranch(t *testing.T, g *graph.Graph, e *exec.Engine, flag, pick graph.NodeID, v float64) *exec.Trace {
	t.Helper()
	if err := g.Set(flag, dist.Scalar(v)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	tr := e.NewTrace()
	if _, err := e.Realize(context.Background(), tr, pick); err != nil {
		t.Fatalf("Realize() error = %v", err)
	}
	return tr
}

func TestPartitionerNoObservations(t *testing.T) {
	g, e, _, _ := branchyModel(t)
	p := New(g)

	if _, err := p.StaticEdges(); !errors.Is(err, ErrNoObservations) {
		t.Errorf("StaticEdges() error = %v, want ErrNoObservations", err)
	}
	if _, err := p.DynamicEdges(); !errors.Is(err, ErrNoObservations) {
		t.Errorf("DynamicEdges() error = %v, want ErrNoObservations", err)
	}
	if _, err := p.StaticSubgraph(); !errors.Is(err, ErrNoObservations) {
		t.Errorf("StaticSubgraph() error = %v, want ErrNoObservations", err)
	}
	if _, err := p.Report(); !errors.Is(err, ErrNoObservations) {
		t.Errorf("Report() error = %v, want ErrNoObservations", err)
	}
	if _, err := p.DynamicEdgesFor(e.NewTrace()); !errors.Is(err, ErrNoObservations) {
		t.Errorf("DynamicEdgesFor() error = %v, want ErrNoObservations", err)
	}
	if p.Observations() != 0 {
		t.Errorf("Observations() = %d, want 0", p.Observations())
	}
}

func TestPartitionerSingleObservation(t *testing.T) {
	g, e, flag, pick := branchyModel(t)
	p := New(g)
	p.Observe(observeBranch(t, g, e, flag, pick, 1))

	static, err := p.StaticEdges()
	if err != nil {
		t.Fatalf("StaticEdges() error = %v", err)
	}
	dynamic, err := p.DynamicEdges()
	if err != nil {
		t.Fatalf("DynamicEdges() error = %v", err)
	}

	// With one trace every observed edge is trivially static.
	if len(static) == 0 {
		t.Error("StaticEdges() is empty after an observation")
	}
	if len(dynamic) != 0 {
		t.Errorf("DynamicEdges() = %v, want none", dynamic)
	}
}

func TestPartitionerClassification(t *testing.T) {
	g, e, flag, pick := branchyModel(t)
	p := New(g)

	p.Observe(observeBranch(t, g, e, flag, pick, 1))
	p.Observe(observeBranch(t, g, e, flag, pick, 0))

	if p.Observations() != 2 {
		t.Fatalf("Observations() = %d, want 2", p.Observations())
	}

	static, err := p.StaticEdges()
	if err != nil {
		t.Fatalf("StaticEdges() error = %v", err)
	}
	// Both traces resolved the condition, so pick -> flag is shared.
	wantStatic := graph.Edge{From: pick, To: flag, Kind: graph.EdgeStatic}
	if len(static) != 1 || static[0] != wantStatic {
		t.Errorf("StaticEdges() = %v, want [%v]", static, wantStatic)
	}

	dynamic, err := p.DynamicEdges()
	if err != nil {
		t.Fatalf("DynamicEdges() error = %v", err)
	}
	// Each trace exercised a different branch edge.
	if len(dynamic) != 2 {
		t.Fatalf("DynamicEdges() = %v, want 2 branch edges", dynamic)
	}
	for _, de := range dynamic {
		if de.From != pick || de.Kind != graph.EdgeDynamic {
			t.Errorf("dynamic edge %v does not originate at the cond", de)
		}
	}
}

func TestDynamicEdgesFor(t *testing.T) {
	g, e, flag, pick := branchyModel(t)
	p := New(g)

	thenTrace := observeBranch(t, g, e, flag, pick, 1)
	elseTrace := observeBranch(t, g, e, flag, pick, 0)
	p.Observe(thenTrace)
	p.Observe(elseTrace)

	got, err := p.DynamicEdgesFor(thenTrace)
	if err != nil {
		t.Fatalf("DynamicEdgesFor() error = %v", err)
	}
	if len(got) != 1 || got[0].From != pick {
		t.Fatalf("DynamicEdgesFor(then) = %v, want one cond branch edge", got)
	}

	other, err := p.DynamicEdgesFor(elseTrace)
	if err != nil {
		t.Fatalf("DynamicEdgesFor() error = %v", err)
	}
	if len(other) != 1 || other[0] == got[0] {
		t.Errorf("else trace dynamic edges = %v, want a different branch edge than %v", other, got)
	}

	if _, err := p.DynamicEdgesFor(nil); !errors.Is(err, exec.ErrNilTrace) {
		t.Errorf("DynamicEdgesFor(nil) error = %v, want ErrNilTrace", err)
	}
}

func TestStaticSubgraph(t *testing.T) {
	g, e, flag, pick := branchyModel(t)
	p := New(g)
	p.Observe(observeBranch(t, g, e, flag, pick, 1))
	p.Observe(observeBranch(t, g, e, flag, pick, 0))

	sub, err := p.StaticSubgraph()
	if err != nil {
		t.Fatalf("StaticSubgraph() error = %v", err)
	}
	if len(sub.Nodes) != 2 || sub.Nodes[0] != flag || sub.Nodes[1] != pick {
		t.Errorf("Subgraph.Nodes = %v, want [%v %v]", sub.Nodes, flag, pick)
	}
	if len(sub.Edges) != 1 {
		t.Errorf("Subgraph.Edges = %v, want the single shared edge", sub.Edges)
	}
}

func TestObserveEdgesReplay(t *testing.T) {
	g, e, flag, pick := branchyModel(t)

	live := New(g)
	replayed := New(g)

	t1 := observeBranch(t, g, e, flag, pick, 1)
	t2 := observeBranch(t, g, e, flag, pick, 0)
	live.Observe(t1)
	live.Observe(t2)
	replayed.ObserveEdges(t1.Edges())
	replayed.ObserveEdges(t2.Edges())

	a, err := live.StaticEdges()
	if err != nil {
		t.Fatalf("StaticEdges() error = %v", err)
	}
	b, err := replayed.StaticEdges()
	if err != nil {
		t.Fatalf("StaticEdges() error = %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("replayed static set %v differs from live %v", b, a)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("replayed static set %v differs from live %v", b, a)
		}
	}
}

func TestObserveEdgesDedupes(t *testing.T) {
	g, _, flag, pick := branchyModel(t)
	p := New(g)

	edge := graph.Edge{From: pick, To: flag, Kind: graph.EdgeStatic}
	p.ObserveEdges([]graph.Edge{edge, edge, edge})

	report, err := p.Report()
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if len(report.Edges) != 1 {
		t.Fatalf("Report.Edges = %v, want one record", report.Edges)
	}
	if report.Edges[0].Seen != 1 {
		t.Errorf("Seen = %d, want 1 despite duplicate edges", report.Edges[0].Seen)
	}
}

func TestReport(t *testing.T) {
	g, e, flag, pick := branchyModel(t)
	p := New(g)

	p.Observe(observeBranch(t, g, e, flag, pick, 1))
	p.Observe(observeBranch(t, g, e, flag, pick, 1))
	p.Observe(observeBranch(t, g, e, flag, pick, 0))

	report, err := p.Report()
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}

	if report.Model != "branchy" {
		t.Errorf("Model = %q, want branchy", report.Model)
	}
	if report.Observations != 3 {
		t.Errorf("Observations = %d, want 3", report.Observations)
	}
	if report.StaticCount != 1 || report.DynamicCount != 2 {
		t.Errorf("counts = (%d,%d), want (1,2)", report.StaticCount, report.DynamicCount)
	}
	if report.DeclaredStaticCount != len(g.StaticEdges()) {
		t.Errorf("DeclaredStaticCount = %d, want %d", report.DeclaredStaticCount, len(g.StaticEdges()))
	}

	byTo := make(map[graph.NodeID]EdgeObservation)
	for _, eo := range report.Edges {
		byTo[eo.To] = eo
		if eo.FromLabel == "" || eo.ToLabel == "" {
			t.Errorf("edge %v has empty labels", eo)
		}
	}

	cond := byTo[flag]
	if cond.Seen != 3 || cond.Share != 1 || cond.Class != ClassStatic {
		t.Errorf("condition edge record = %+v, want seen 3, share 1, static", cond)
	}

	hot, err := g.NodeByName("hot")
	if err != nil {
		t.Fatalf("NodeByName(hot) error = %v", err)
	}
	hotRec := byTo[hot.ID]
	if hotRec.Seen != 2 || hotRec.Class != ClassDynamic {
		t.Errorf("then-branch record = %+v, want seen 2, dynamic", hotRec)
	}
	if hotRec.Share < 0.66 || hotRec.Share > 0.67 {
		t.Errorf("then-branch share = %v, want 2/3", hotRec.Share)
	}
	if hotRec.Declared != "dynamic" {
		t.Errorf("then-branch declared kind = %q, want dynamic", hotRec.Declared)
	}
}
