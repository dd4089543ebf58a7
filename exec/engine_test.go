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
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Nicort/edward/dist"
	"github.com/Nicort/edward/graph"
)

func mustFreeze(t *testing.T, g *graph.Graph) {
	t.Helper()
	if err := g.Freeze(); err != nil {
		t.Fatalf("Freeze() error = %v", err)
	}
}

func newTestEngine(t *testing.T, g *graph.Graph, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithBaseSeed(0xe0e0)}, opts...)
	e, err := New(g, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func mustRV(t *testing.T, b *graph.Builder, name, family string, params map[string]graph.Param) graph.NodeID {
	t.Helper()
	id, err := b.RandomVariable(name, family, params)
	if err != nil {
		t.Fatalf("RandomVariable(%q) error = %v", name, err)
	}
	return id
}

func mustTransform(t *testing.T, b *graph.Builder, name string, fn graph.TransformFunc, inputs ...graph.Param) graph.NodeID {
	t.Helper()
	id, err := b.Transform(name, fn, inputs...)
	if err != nil {
		t.Fatalf("Transform(%q) error = %v", name, err)
	}
	return id
}

func mustState(t *testing.T, b *graph.Builder, name string, opts ...graph.StateOption) graph.NodeID {
	t.Helper()
	id, err := b.MutableState(name, opts...)
	if err != nil {
		t.Fatalf("MutableState(%q) error = %v", name, err)
	}
	return id
}

// betaBernoulli builds theta ~ beta(2,5) feeding coin ~ bernoulli(theta).
func betaBernoulli(t *testing.T) (g *graph.Graph, theta, coin graph.NodeID) {
	t.Helper()
	g = graph.New(graph.WithName("beta-bernoulli"))
	b := graph.NewBuilder(g)
	theta = mustRV(t, b, "theta", dist.FamilyBeta, map[string]graph.Param{
		"a": graph.ConstFloat(2),
		"b": graph.ConstFloat(5),
	})
	coin = mustRV(t, b, "coin", dist.FamilyBernoulli, map[string]graph.Param{
		"p": graph.Ref(theta),
	})
	mustFreeze(t, g)
	return g, theta, coin
}

func TestNew(t *testing.T) {
	t.Run("requires frozen graph", func(t *testing.T) {
		g := graph.New()
		if _, err := New(g); !errors.Is(err, graph.ErrGraphNotFrozen) {
			t.Fatalf("New() error = %v, want ErrGraphNotFrozen", err)
		}
	})

	t.Run("rejects nil graph", func(t *testing.T) {
		if _, err := New(nil); err == nil {
			t.Fatal("New(nil) succeeded, want error")
		}
	})

	t.Run("frozen graph succeeds", func(t *testing.T) {
		g, _, _ := betaBernoulli(t)
		e, err := New(g)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if e.Graph() != g {
			t.Error("Graph() did not return the engine's graph")
		}
		if e.SessionID() == "" {
			t.Error("SessionID() is empty")
		}
	})
}

func TestRealizeArgValidation(t *testing.T) {
	g, _, coin := betaBernoulli(t)
	e := newTestEngine(t, g)
	tr := e.NewTrace()

	if _, err := e.Realize(nil, tr, coin); !errors.Is(err, ErrNilContext) { //nolint:staticcheck
		t.Errorf("Realize(nil ctx) error = %v, want ErrNilContext", err)
	}
	if _, err := e.Realize(context.Background(), nil, coin); !errors.Is(err, ErrNilTrace) {
		t.Errorf("Realize(nil trace) error = %v, want ErrNilTrace", err)
	}
	if _, err := e.Realize(context.Background(), tr, graph.NodeID(99)); !errors.Is(err, graph.ErrNodeNotFound) {
		t.Errorf("Realize(unknown id) error = %v, want ErrNodeNotFound", err)
	}
}

func TestRealizeMemoization(t *testing.T) {
	g, theta, coin := betaBernoulli(t)
	e := newTestEngine(t, g)
	ctx := context.Background()

	tr := e.NewTrace()
	first, err := e.Realize(ctx, tr, coin)
	if err != nil {
		t.Fatalf("Realize() error = %v", err)
	}
	second, err := e.Realize(ctx, tr, coin)
	if err != nil {
		t.Fatalf("second Realize() error = %v", err)
	}
	if !first.Equal(second) {
		t.Errorf("repeated Realize in one trace: %v then %v, want identical", first, second)
	}

	// Realizing coin pulled theta in as a dependency.
	if !tr.Has(theta) {
		t.Error("trace does not hold theta after realizing coin")
	}
	if tr.Len() != 2 {
		t.Errorf("trace Len() = %d, want 2", tr.Len())
	}
}

func TestRealizeTraceIsolation(t *testing.T) {
	g, theta, _ := betaBernoulli(t)
	e := newTestEngine(t, g)
	ctx := context.Background()

	t1 := e.NewTrace(WithSeed(1))
	t2 := e.NewTrace(WithSeed(2))

	v1, err := e.Realize(ctx, t1, theta)
	if err != nil {
		t.Fatalf("Realize(t1) error = %v", err)
	}
	if t2.Has(theta) {
		t.Fatal("realization leaked into an untouched trace")
	}
	v2, err := e.Realize(ctx, t2, theta)
	if err != nil {
		t.Fatalf("Realize(t2) error = %v", err)
	}
	if v1.Equal(v2) {
		t.Errorf("differently seeded traces realized the same beta draw %v", v1)
	}
}

func TestRealizeReproducible(t *testing.T) {
	build := func() (*Engine, graph.NodeID) {
		g, _, coin := betaBernoulli(t)
		e, err := New(g, WithBaseSeed(42))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		return e, coin
	}
	ctx := context.Background()

	e1, coin1 := build()
	e2, coin2 := build()

	v1, err := e1.Realize(ctx, e1.NewTrace(WithSeed(7)), coin1)
	if err != nil {
		t.Fatalf("Realize() error = %v", err)
	}
	v2, err := e2.Realize(ctx, e2.NewTrace(WithSeed(7)), coin2)
	if err != nil {
		t.Fatalf("Realize() error = %v", err)
	}
	if !v1.Equal(v2) {
		t.Errorf("same graph, same seed: %v vs %v", v1, v2)
	}
}

func TestRealizeOrderIndependent(t *testing.T) {
	g, theta, coin := betaBernoulli(t)
	e := newTestEngine(t, g)
	ctx := context.Background()

	// Trace 1 realizes the leaf first; trace 2 realizes the root first.
	t1 := e.NewTrace(WithSeed(11))
	thetaFirst, err := e.Realize(ctx, t1, theta)
	if err != nil {
		t.Fatalf("Realize(theta) error = %v", err)
	}
	coinFirst, err := e.Realize(ctx, t1, coin)
	if err != nil {
		t.Fatalf("Realize(coin) error = %v", err)
	}

	t2 := e.NewTrace(WithSeed(11))
	coinSecond, err := e.Realize(ctx, t2, coin)
	if err != nil {
		t.Fatalf("Realize(coin) error = %v", err)
	}
	thetaSecond, err := e.Realize(ctx, t2, theta)
	if err != nil {
		t.Fatalf("Realize(theta) error = %v", err)
	}

	if !thetaFirst.Equal(thetaSecond) || !coinFirst.Equal(coinSecond) {
		t.Errorf("realization order changed values: (%v,%v) vs (%v,%v)",
			thetaFirst, coinFirst, thetaSecond, coinSecond)
	}
}

func TestRealizeRecordsEdges(t *testing.T) {
	g, theta, coin := betaBernoulli(t)
	e := newTestEngine(t, g)
	tr := e.NewTrace()

	if _, err := e.Realize(context.Background(), tr, coin); err != nil {
		t.Fatalf("Realize() error = %v", err)
	}

	edges := tr.Edges()
	want := graph.Edge{From: coin, To: theta, Kind: graph.EdgeStatic}
	found := false
	for _, edge := range edges {
		if edge == want {
			found = true
		}
	}
	if !found {
		t.Errorf("trace edges %v missing %v", edges, want)
	}
}

func TestRealizeMutableState(t *testing.T) {
	t.Run("unbound fails then retry succeeds", func(t *testing.T) {
		g := graph.New(graph.WithName("state"))
		b := graph.NewBuilder(g)
		rate := mustState(t, b, "rate")
		count := mustRV(t, b, "count", dist.FamilyPoisson, map[string]graph.Param{
			"lam": graph.Ref(rate),
		})
		mustFreeze(t, g)

		e := newTestEngine(t, g)
		tr := e.NewTrace()
		ctx := context.Background()

		_, err := e.Realize(ctx, tr, count)
		var unbound *UnboundStateError
		if !errors.As(err, &unbound) {
			t.Fatalf("Realize() error = %v, want UnboundStateError", err)
		}
		var ne *NodeError
		if !errors.As(err, &ne) || ne.ID != rate {
			t.Fatalf("error attribution = %+v, want node %d", ne, rate)
		}

		// The failure must not poison the trace.
		if err := g.Set(rate, dist.Scalar(4)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if _, err := e.Realize(ctx, tr, count); err != nil {
			t.Fatalf("Realize() after Set error = %v", err)
		}
	})

	t.Run("default applies while unbound", func(t *testing.T) {
		g := graph.New()
		b := graph.NewBuilder(g)
		bias := mustState(t, b, "bias", graph.WithDefault(dist.Scalar(0.5)))
		mustFreeze(t, g)

		e := newTestEngine(t, g)
		v, err := e.Realize(context.Background(), e.NewTrace(), bias)
		if err != nil {
			t.Fatalf("Realize() error = %v", err)
		}
		if f, _ := v.Float(); f != 0.5 {
			t.Errorf("default state = %v, want 0.5", v)
		}
	})

	t.Run("state reads are per-trace sticky", func(t *testing.T) {
		g := graph.New()
		b := graph.NewBuilder(g)
		bias := mustState(t, b, "bias")
		mustFreeze(t, g)
		if err := g.Set(bias, dist.Scalar(1)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}

		e := newTestEngine(t, g)
		ctx := context.Background()
		t1 := e.NewTrace()
		if _, err := e.Realize(ctx, t1, bias); err != nil {
			t.Fatalf("Realize() error = %v", err)
		}

		if err := g.Set(bias, dist.Scalar(2)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		v1, err := e.Realize(ctx, t1, bias)
		if err != nil {
			t.Fatalf("Realize() error = %v", err)
		}
		if f, _ := v1.Float(); f != 1 {
			t.Errorf("trace re-read state = %v, want the memoized 1", v1)
		}

		v2, err := e.Realize(ctx, e.NewTrace(), bias)
		if err != nil {
			t.Fatalf("Realize() error = %v", err)
		}
		if f, _ := v2.Float(); f != 2 {
			t.Errorf("fresh trace state = %v, want the updated 2", v2)
		}
	})
}

func TestRealizeTransformFailures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name     string
		fn       graph.TransformFunc
		panicked bool
	}{
		{
			name: "returned error",
			fn: func([]dist.Value) (dist.Value, error) {
				return dist.Value{}, boom
			},
		},
		{
			name: "panic recovered",
			fn: func([]dist.Value) (dist.Value, error) {
				panic("bad arithmetic")
			},
			panicked: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := graph.New()
			b := graph.NewBuilder(g)
			x := mustRV(t, b, "x", dist.FamilyNormal, map[string]graph.Param{
				"mu":    graph.ConstFloat(0),
				"sigma": graph.ConstFloat(1),
			})
			y := mustTransform(t, b, "y", tt.fn, graph.Ref(x))
			mustFreeze(t, g)

			e := newTestEngine(t, g)
			_, err := e.Realize(context.Background(), e.NewTrace(), y)
			var ce *ComputationError
			if !errors.As(err, &ce) {
				t.Fatalf("Realize() error = %v, want ComputationError", err)
			}
			if ce.Panicked != tt.panicked {
				t.Errorf("Panicked = %v, want %v", ce.Panicked, tt.panicked)
			}
			if !tt.panicked && !errors.Is(err, boom) {
				t.Errorf("error chain lost the cause: %v", err)
			}
		})
	}
}

func TestRealizeConcurrentSameNode(t *testing.T) {
	var calls atomic.Int32
	g := graph.New()
	b := graph.NewBuilder(g)
	x := mustRV(t, b, "x", dist.FamilyNormal, map[string]graph.Param{
		"mu":    graph.ConstFloat(0),
		"sigma": graph.ConstFloat(1),
	})
	slow := mustTransform(t, b, "slow", func(in []dist.Value) (dist.Value, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return in[0], nil
	}, graph.Ref(x))
	mustFreeze(t, g)

	e := newTestEngine(t, g)
	tr := e.NewTrace()
	ctx := context.Background()

	const workers = 8
	values := make([]dist.Value, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := e.Realize(ctx, tr, slow)
			if err != nil {
				t.Errorf("Realize() error = %v", err)
				return
			}
			values[i] = v
		}()
	}
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("transform ran %d times, want once", n)
	}
	for i := 1; i < workers; i++ {
		if !values[i].Equal(values[0]) {
			t.Errorf("worker %d saw %v, worker 0 saw %v", i, values[i], values[0])
		}
	}
}

func TestRealizeMany(t *testing.T) {
	t.Run("shares ancestors within the trace", func(t *testing.T) {
		g := graph.New()
		b := graph.NewBuilder(g)
		theta := mustRV(t, b, "theta", dist.FamilyBeta, map[string]graph.Param{
			"a": graph.ConstFloat(2),
			"b": graph.ConstFloat(2),
		})
		left := mustTransform(t, b, "left", graph.AffineFn(1, 0), graph.Ref(theta))
		right := mustTransform(t, b, "right", graph.AffineFn(1, 0), graph.Ref(theta))
		mustFreeze(t, g)

		e := newTestEngine(t, g)
		tr := e.NewTrace()
		out, err := e.RealizeMany(context.Background(), tr, left, right, left)
		if err != nil {
			t.Fatalf("RealizeMany() error = %v", err)
		}
		if len(out) != 2 {
			t.Fatalf("RealizeMany() returned %d values, want 2", len(out))
		}
		if !out[left].Equal(out[right]) {
			t.Errorf("left %v and right %v disagree on the shared parent", out[left], out[right])
		}
	})

	t.Run("fifty consumers share one draw", func(t *testing.T) {
		g := graph.New()
		b := graph.NewBuilder(g)
		theta := mustRV(t, b, "theta", dist.FamilyBeta, map[string]graph.Param{
			"a": graph.ConstFloat(2),
			"b": graph.ConstFloat(2),
		})
		ids := make([]graph.NodeID, 50)
		for i := range ids {
			ids[i] = mustTransform(t, b, fmt.Sprintf("read_%d", i), graph.AffineFn(1, 0), graph.Ref(theta))
		}
		mustFreeze(t, g)

		// Parallel fan-out races the readers for the single theta draw.
		e := newTestEngine(t, g, WithParallelism(8))
		tr := e.NewTrace()
		out, err := e.RealizeMany(context.Background(), tr, ids...)
		if err != nil {
			t.Fatalf("RealizeMany() error = %v", err)
		}

		want := out[ids[0]]
		for _, id := range ids[1:] {
			if !out[id].Equal(want) {
				t.Fatalf("consumer %d read %v, others read %v", id, out[id], want)
			}
		}
		if tr.Len() != len(ids)+1 {
			t.Errorf("trace Len() = %d, want %d (one draw plus the readers)", tr.Len(), len(ids)+1)
		}
	})

	t.Run("propagates failures", func(t *testing.T) {
		g := graph.New()
		b := graph.NewBuilder(g)
		s := mustState(t, b, "s")
		ok := mustRV(t, b, "ok", dist.FamilyNormal, map[string]graph.Param{
			"mu":    graph.ConstFloat(0),
			"sigma": graph.ConstFloat(1),
		})
		mustFreeze(t, g)

		e := newTestEngine(t, g)
		_, err := e.RealizeMany(context.Background(), e.NewTrace(), ok, s)
		var unbound *UnboundStateError
		if !errors.As(err, &unbound) {
			t.Fatalf("RealizeMany() error = %v, want UnboundStateError", err)
		}
	})

	t.Run("nil trace", func(t *testing.T) {
		g, _, coin := betaBernoulli(t)
		e := newTestEngine(t, g)
		if _, err := e.RealizeMany(context.Background(), nil, coin); !errors.Is(err, ErrNilTrace) {
			t.Errorf("RealizeMany(nil trace) error = %v, want ErrNilTrace", err)
		}
	})
}

func TestSample(t *testing.T) {
	g, _, coin := betaBernoulli(t)
	e := newTestEngine(t, g)
	ctx := context.Background()

	t.Run("draw count and values", func(t *testing.T) {
		draws, err := e.Sample(ctx, coin, 50, SampleWithSeed(3))
		if err != nil {
			t.Fatalf("Sample() error = %v", err)
		}
		if len(draws) != 50 {
			t.Fatalf("Sample() returned %d draws, want 50", len(draws))
		}
		for i, d := range draws {
			f, err := d.Float()
			if err != nil {
				t.Fatalf("draw %d: %v", i, err)
			}
			if f != 0 && f != 1 {
				t.Errorf("draw %d = %v, want 0 or 1", i, f)
			}
		}
	})

	t.Run("seeded runs reproduce", func(t *testing.T) {
		a, err := e.Sample(ctx, coin, 20, SampleWithSeed(9))
		if err != nil {
			t.Fatalf("Sample() error = %v", err)
		}
		b, err := e.Sample(ctx, coin, 20, SampleWithSeed(9))
		if err != nil {
			t.Fatalf("Sample() error = %v", err)
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				t.Fatalf("draw %d differs: %v vs %v", i, a[i], b[i])
			}
		}
	})

	t.Run("invalid count", func(t *testing.T) {
		if _, err := e.Sample(ctx, coin, 0); err == nil {
			t.Error("Sample(n=0) succeeded, want error")
		}
	})
}

func TestRealizePinned(t *testing.T) {
	g, theta, coin := betaBernoulli(t)
	e := newTestEngine(t, g)
	ctx := context.Background()

	tr := e.NewTrace(WithPinned(map[graph.NodeID]dist.Value{
		theta: dist.Scalar(1),
	}))
	if !tr.Pinned(theta) {
		t.Fatal("theta is not pinned")
	}

	v, err := e.Realize(ctx, tr, theta)
	if err != nil {
		t.Fatalf("Realize(theta) error = %v", err)
	}
	if f, _ := v.Float(); f != 1 {
		t.Fatalf("pinned theta = %v, want 1", v)
	}

	// bernoulli(1) is deterministically 1, so the pin propagates.
	cv, err := e.Realize(ctx, tr, coin)
	if err != nil {
		t.Fatalf("Realize(coin) error = %v", err)
	}
	if f, _ := cv.Float(); f != 1 {
		t.Errorf("coin under pinned theta=1 realized %v, want 1", cv)
	}
}

func TestLogProb(t *testing.T) {
	g, theta, coin := betaBernoulli(t)
	e := newTestEngine(t, g)
	ctx := context.Background()

	t.Run("scores pinned values", func(t *testing.T) {
		tr := e.NewTrace(WithPinned(map[graph.NodeID]dist.Value{
			theta: dist.Scalar(0.3),
			coin:  dist.Scalar(1),
		}))

		lp, err := e.LogProb(ctx, tr, coin)
		if err != nil {
			t.Fatalf("LogProb(coin) error = %v", err)
		}
		if want := math.Log(0.3); math.Abs(lp-want) > 1e-12 {
			t.Errorf("LogProb(coin) = %v, want %v", lp, want)
		}

		// beta(2,5) log-density at 0.3.
		la, _ := math.Lgamma(2.0)
		lb, _ := math.Lgamma(5.0)
		lab, _ := math.Lgamma(7.0)
		want := (lab - la - lb) + 1*math.Log(0.3) + 4*math.Log(0.7)
		lt, err := e.LogProb(ctx, tr, theta)
		if err != nil {
			t.Fatalf("LogProb(theta) error = %v", err)
		}
		if math.Abs(lt-want) > 1e-12 {
			t.Errorf("LogProb(theta) = %v, want %v", lt, want)
		}
	})

	t.Run("non random variable", func(t *testing.T) {
		g2 := graph.New()
		b := graph.NewBuilder(g2)
		s := mustState(t, b, "s", graph.WithDefault(dist.Scalar(1)))
		mustFreeze(t, g2)

		e2 := newTestEngine(t, g2)
		if _, err := e2.LogProb(ctx, e2.NewTrace(), s); !errors.Is(err, ErrNotRandomVariable) {
			t.Errorf("LogProb(state) error = %v, want ErrNotRandomVariable", err)
		}
	})
}

func TestLogJoint(t *testing.T) {
	g, theta, coin := betaBernoulli(t)
	e := newTestEngine(t, g)
	ctx := context.Background()

	t.Run("sums realized terms", func(t *testing.T) {
		tr := e.NewTrace(WithSeed(5))
		if _, err := e.Realize(ctx, tr, coin); err != nil {
			t.Fatalf("Realize() error = %v", err)
		}

		lt, err := e.LogProb(ctx, tr, theta)
		if err != nil {
			t.Fatalf("LogProb(theta) error = %v", err)
		}
		lc, err := e.LogProb(ctx, tr, coin)
		if err != nil {
			t.Fatalf("LogProb(coin) error = %v", err)
		}
		joint, err := e.LogJoint(ctx, tr)
		if err != nil {
			t.Fatalf("LogJoint() error = %v", err)
		}
		if want := lt + lc; math.Abs(joint-want) > 1e-12 {
			t.Errorf("LogJoint() = %v, want %v", joint, want)
		}
	})

	t.Run("pinned leaf pulls its parents in", func(t *testing.T) {
		tr := e.NewTrace(WithSeed(6), WithPinned(map[graph.NodeID]dist.Value{
			coin: dist.Scalar(1),
		}))
		joint, err := e.LogJoint(ctx, tr)
		if err != nil {
			t.Fatalf("LogJoint() error = %v", err)
		}

		// Scoring coin realizes theta, whose own term must be counted.
		if !tr.Has(theta) {
			t.Fatal("LogJoint did not realize theta")
		}
		lt, err := e.LogProb(ctx, tr, theta)
		if err != nil {
			t.Fatalf("LogProb(theta) error = %v", err)
		}
		lc, err := e.LogProb(ctx, tr, coin)
		if err != nil {
			t.Fatalf("LogProb(coin) error = %v", err)
		}
		if want := lt + lc; math.Abs(joint-want) > 1e-12 {
			t.Errorf("LogJoint() = %v, want %v", joint, want)
		}
	})

	t.Run("empty trace scores zero", func(t *testing.T) {
		joint, err := e.LogJoint(ctx, e.NewTrace())
		if err != nil {
			t.Fatalf("LogJoint() error = %v", err)
		}
		if joint != 0 {
			t.Errorf("LogJoint(empty) = %v, want 0", joint)
		}
	})
}
