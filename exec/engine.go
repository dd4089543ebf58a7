// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package exec realizes model graphs: it walks dependencies demand
// first, draws random variables through per-node substreams, applies
// transforms, interprets stochastic branches and loops, and memoizes
// every value in a Trace so each node realizes at most once per trace.
package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Nicort/edward/dist"
	"github.com/Nicort/edward/graph"
	"github.com/Nicort/edward/internal/entropy"
)

// OpenTelemetry instrumentation for the engine.
var (
	tracer = otel.Tracer("edward.exec")
	meter  = otel.Meter("edward.exec")
)

// Default engine limits.
const (
	// DefaultMaxLoopIterations caps loop unrolling for loops that do
	// not set their own cap.
	DefaultMaxLoopIterations = 10_000

	// DefaultParallelism bounds concurrent node realizations per
	// engine.
	DefaultParallelism = 8
)

// Engine realizes nodes of a frozen graph.
//
// Description:
//
//	An Engine binds a frozen model graph to a distribution registry and
//	a base seed. It creates traces, realizes nodes within them, and
//	scores realized values. Branch and iteration materialization is
//	delegated to the graph, which memoizes it across all traces.
//
// Thread Safety:
//
//	Engine is safe for concurrent use. Multiple traces can realize
//	concurrently, and multiple goroutines can realize within one trace.
type Engine struct {
	g        *graph.Graph
	registry *dist.Registry
	logger   *slog.Logger

	baseSeed    uint64
	maxLoopIter int
	parallelism int64
	sem         *semaphore.Weighted
	sessionID   string

	traceSeq atomic.Uint64

	// Metrics (initialized lazily)
	metricsOnce        sync.Once
	realizeLatency     metric.Float64Histogram
	drawsTotal         metric.Int64Counter
	transformsTotal    metric.Int64Counter
	loopIterations     metric.Int64Counter
	realizeFailures    metric.Int64Counter
	activeRealizations metric.Int64UpDownCounter
	tracesStarted      metric.Int64Counter
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRegistry overrides the registry used for sampling and scoring.
// Defaults to the graph's registry.
func WithRegistry(r *dist.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithBaseSeed fixes the seed from which trace seeds derive, making
// the whole engine's output reproducible.
func WithBaseSeed(seed uint64) Option {
	return func(e *Engine) {
		e.baseSeed = seed
	}
}

// WithMaxLoopIterations sets the default loop guard for loops that
// inherit it. Values below 1 keep DefaultMaxLoopIterations.
func WithMaxLoopIterations(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.maxLoopIter = n
		}
	}
}

// WithParallelism bounds concurrent realizations. Values below 1 keep
// DefaultParallelism.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.parallelism = int64(n)
		}
	}
}

// New creates an engine over a frozen graph.
//
// Inputs:
//
//	g - The model graph. Must be non-nil and frozen.
//	opts - Engine options.
//
// Outputs:
//
//	*Engine - The configured engine.
//	error - graph.ErrGraphNotFrozen when the graph is still building.
func New(g *graph.Graph, opts ...Option) (*Engine, error) {
	if g == nil {
		return nil, errors.New("graph is nil")
	}
	if g.State() != graph.GraphStateFrozen {
		return nil, graph.ErrGraphNotFrozen
	}

	e := &Engine{
		g:           g,
		registry:    g.Registry(),
		logger:      slog.Default(),
		baseSeed:    rand.Uint64(),
		maxLoopIter: DefaultMaxLoopIterations,
		parallelism: DefaultParallelism,
		sessionID:   uuid.NewString()[:12],
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sem = semaphore.NewWeighted(e.parallelism)

	e.logger.Debug("engine created",
		slog.String("model", g.Name()),
		slog.String("session_id", e.sessionID),
		slog.Int("nodes", g.Len()),
	)
	return e, nil
}

// Graph returns the engine's graph.
func (e *Engine) Graph() *graph.Graph {
	return e.g
}

// SessionID returns the engine's short session identifier.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// initMetrics sets up OpenTelemetry instruments on first use.
func (e *Engine) initMetrics() {
	e.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		e.realizeLatency, err = meter.Float64Histogram("edward_realize_duration_seconds",
			metric.WithDescription("Time spent realizing a requested node"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "realize_latency: "+err.Error())
		}

		e.drawsTotal, err = meter.Int64Counter("edward_draws_total",
			metric.WithDescription("Number of random variable draws"),
		)
		if err != nil {
			initErrors = append(initErrors, "draws_total: "+err.Error())
		}

		e.transformsTotal, err = meter.Int64Counter("edward_transforms_total",
			metric.WithDescription("Number of transform applications"),
		)
		if err != nil {
			initErrors = append(initErrors, "transforms_total: "+err.Error())
		}

		e.loopIterations, err = meter.Int64Counter("edward_loop_iterations_total",
			metric.WithDescription("Number of loop iterations realized"),
		)
		if err != nil {
			initErrors = append(initErrors, "loop_iterations: "+err.Error())
		}

		e.realizeFailures, err = meter.Int64Counter("edward_realize_failure_total",
			metric.WithDescription("Number of failed realizations"),
		)
		if err != nil {
			initErrors = append(initErrors, "realize_failures: "+err.Error())
		}

		e.activeRealizations, err = meter.Int64UpDownCounter("edward_active_realizations",
			metric.WithDescription("Number of currently realizing requests"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_realizations: "+err.Error())
		}

		e.tracesStarted, err = meter.Int64Counter("edward_traces_total",
			metric.WithDescription("Number of traces created"),
		)
		if err != nil {
			initErrors = append(initErrors, "traces_started: "+err.Error())
		}

		if len(initErrors) > 0 {
			e.logger.Error("failed to initialize some engine metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// NewTrace creates a fresh realization universe. Without WithSeed the
// trace seed derives from the engine base seed and a trace ordinal, so
// an engine with a fixed base seed reproduces its whole run.
func (e *Engine) NewTrace(opts ...TraceOption) *Trace {
	e.initMetrics()

	ordinal := e.traceSeq.Add(1)
	t := newTrace(entropy.Combine(e.baseSeed, ordinal), opts...)

	if e.tracesStarted != nil {
		e.tracesStarted.Add(context.Background(), 1)
	}
	e.logger.Debug("trace created",
		slog.String("model", e.g.Name()),
		slog.String("trace_id", t.ID()),
		slog.Uint64("seed", t.Seed()),
	)
	return t
}

// Realize returns the node's value in the trace, realizing its
// dependency closure first. Within one trace the node realizes at
// most once; repeated calls return the memoized value.
//
// Errors carry the failing node's attribution via NodeError and do not
// poison the trace: after repairing the cause (for example binding a
// state slot) the caller may retry in the same trace.
func (e *Engine) Realize(ctx context.Context, tr *Trace, id graph.NodeID) (dist.Value, error) {
	if ctx == nil {
		return dist.Value{}, ErrNilContext
	}
	if tr == nil {
		return dist.Value{}, ErrNilTrace
	}
	e.initMetrics()

	ctx, span := tracer.Start(ctx, "exec.Realize",
		trace.WithAttributes(
			attribute.String("edward.model", e.g.Name()),
			attribute.String("edward.trace_id", tr.ID()),
			attribute.Int("edward.node_id", int(id)),
		),
	)
	defer span.End()

	if e.activeRealizations != nil {
		e.activeRealizations.Add(ctx, 1)
		defer e.activeRealizations.Add(ctx, -1)
	}

	start := time.Now()
	v, err := e.realize(ctx, tr, id, nil)
	duration := time.Since(start)

	if e.realizeLatency != nil {
		e.realizeLatency.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("model", e.g.Name())),
		)
	}

	if err != nil {
		if e.realizeFailures != nil {
			e.realizeFailures.Add(ctx, 1)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		e.logger.Debug("realize failed",
			slog.String("trace_id", tr.ID()),
			slog.Int("node_id", int(id)),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return dist.Value{}, err
	}

	span.SetStatus(codes.Ok, "")
	return v, nil
}

// RealizeMany realizes several nodes coherently inside one shared
// trace. Shared ancestors realize once; independent requested roots
// may realize in parallel, bounded by the engine's parallelism.
func (e *Engine) RealizeMany(ctx context.Context, tr *Trace, ids ...graph.NodeID) (map[graph.NodeID]dist.Value, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if tr == nil {
		return nil, ErrNilTrace
	}
	e.initMetrics()

	// Dedupe while keeping first-seen order.
	seen := make(map[graph.NodeID]struct{}, len(ids))
	roots := make([]graph.NodeID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			roots = append(roots, id)
		}
	}

	ctx, span := tracer.Start(ctx, "exec.RealizeMany",
		trace.WithAttributes(
			attribute.String("edward.model", e.g.Name()),
			attribute.String("edward.trace_id", tr.ID()),
			attribute.Int("edward.root_count", len(roots)),
		),
	)
	defer span.End()

	out := make(map[graph.NodeID]dist.Value, len(roots))
	var outMu sync.Mutex

	group, gctx := errgroup.WithContext(ctx)
	for _, id := range roots {
		group.Go(func() error {
			if err := e.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer e.sem.Release(1)

			v, err := e.realize(gctx, tr, id, nil)
			if err != nil {
				return err
			}
			outMu.Lock()
			out[id] = v
			outMu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		if e.realizeFailures != nil {
			e.realizeFailures.Add(ctx, 1)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return out, nil
}

// SampleOption configures a Sample run.
type SampleOption func(*sampleConfig)

type sampleConfig struct {
	seed    uint64
	seedSet bool
}

// SampleWithSeed fixes the run seed; draw i comes from a trace seeded
// deterministically from it.
func SampleWithSeed(seed uint64) SampleOption {
	return func(c *sampleConfig) {
		c.seed = seed
		c.seedSet = true
	}
}

// Sample realizes the node in n fresh traces and returns the draws in
// trace order. Traces are independent, so draws are independent
// samples from the node's marginal.
func (e *Engine) Sample(ctx context.Context, id graph.NodeID, n int, opts ...SampleOption) ([]dist.Value, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if n <= 0 {
		return nil, fmt.Errorf("sample count must be positive, got %d", n)
	}
	e.initMetrics()

	cfg := sampleConfig{seed: entropy.Combine(e.baseSeed, e.traceSeq.Add(1))}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, span := tracer.Start(ctx, "exec.Sample",
		trace.WithAttributes(
			attribute.String("edward.model", e.g.Name()),
			attribute.Int("edward.node_id", int(id)),
			attribute.Int("edward.draws", n),
		),
	)
	defer span.End()

	start := time.Now()
	out := make([]dist.Value, n)

	group, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		group.Go(func() error {
			if err := e.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer e.sem.Release(1)

			tr := newTrace(entropy.Combine(cfg.seed, uint64(i)))
			v, err := e.realize(gctx, tr, id, nil)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		if e.realizeFailures != nil {
			e.realizeFailures.Add(ctx, 1)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	e.logger.Debug("sample run finished",
		slog.String("model", e.g.Name()),
		slog.Int("node_id", int(id)),
		slog.Int("draws", n),
		slog.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// realize is the recursive core. path holds the nodes currently being
// realized on this call chain; revisiting one means the model's
// dynamic structure formed a cycle inside a single trace.
func (e *Engine) realize(ctx context.Context, tr *Trace, id graph.NodeID, path []graph.NodeID) (dist.Value, error) {
	if err := ctx.Err(); err != nil {
		return dist.Value{}, err
	}
	for _, p := range path {
		if p == id {
			return dist.Value{}, e.cycleError(path, id)
		}
	}

	outcome, v, l := tr.start(id)
	switch outcome {
	case startMemo:
		return v, nil
	case startWait:
		select {
		case <-l.done:
			return l.val, l.err
		case <-ctx.Done():
			return dist.Value{}, ctx.Err()
		}
	}

	v, err := e.compute(ctx, tr, id, path)
	tr.finish(id, l, v, err)
	return v, err
}

// cycleError renders the realization path closing at id.
func (e *Engine) cycleError(path []graph.NodeID, id graph.NodeID) error {
	labels := make([]string, 0, len(path)+1)
	started := false
	for _, p := range path {
		if p == id {
			started = true
		}
		if started {
			labels = append(labels, e.label(p))
		}
	}
	labels = append(labels, e.label(id))
	return &graph.CyclicDependencyError{Path: labels}
}

func (e *Engine) label(id graph.NodeID) string {
	if n, err := e.g.Node(id); err == nil {
		return n.Label()
	}
	return fmt.Sprintf("#%d", id)
}

// compute realizes a node whose computation this goroutine owns.
func (e *Engine) compute(ctx context.Context, tr *Trace, id graph.NodeID, path []graph.NodeID) (dist.Value, error) {
	n, err := e.g.Node(id)
	if err != nil {
		return dist.Value{}, err
	}
	path = append(path, id)

	switch n.Kind {
	case graph.KindMutableState:
		return e.realizeState(n)
	case graph.KindRandomVariable:
		return e.realizeRandomVariable(ctx, tr, n, path)
	case graph.KindTransform:
		return e.realizeTransform(ctx, tr, n, path)
	case graph.KindCond:
		return e.realizeCond(ctx, tr, n, path)
	case graph.KindLoop:
		return e.realizeLoop(ctx, tr, n, path)
	default:
		return dist.Value{}, nodeErr(n, fmt.Errorf("kind %s cannot realize", n.Kind))
	}
}

// realizeState reads a mutable-state slot.
func (e *Engine) realizeState(n graph.Node) (dist.Value, error) {
	v, ok, err := e.g.StateValue(n.ID)
	if err != nil {
		return dist.Value{}, nodeErr(n, err)
	}
	if !ok {
		return dist.Value{}, nodeErr(n, &UnboundStateError{Node: n.Label()})
	}
	return v, nil
}

// realizeRandomVariable resolves parameters and draws from the family
// through the node's substream.
func (e *Engine) realizeRandomVariable(ctx context.Context, tr *Trace, n graph.Node, path []graph.NodeID) (dist.Value, error) {
	params := make(map[string]dist.Value, len(n.Params))
	for _, np := range n.Params {
		v, err := e.resolveParam(ctx, tr, n.ID, np.Param, path)
		if err != nil {
			return dist.Value{}, err
		}
		params[np.Name] = v
	}

	fam, err := e.registry.Lookup(n.Family)
	if err != nil {
		return dist.Value{}, nodeErr(n, err)
	}

	v, err := fam.Sample(params, e.rngFor(tr, n))
	if err != nil {
		return dist.Value{}, nodeErr(n, err)
	}
	if e.drawsTotal != nil {
		e.drawsTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("family", n.Family)),
		)
	}
	return v, nil
}

// realizeTransform resolves inputs in declared order and applies the
// function, converting panics into ComputationErrors.
func (e *Engine) realizeTransform(ctx context.Context, tr *Trace, n graph.Node, path []graph.NodeID) (dist.Value, error) {
	inputs := make([]dist.Value, len(n.Inputs))
	for i, in := range n.Inputs {
		v, err := e.resolveParam(ctx, tr, n.ID, in, path)
		if err != nil {
			return dist.Value{}, err
		}
		inputs[i] = v
	}

	v, err := applyTransform(n, inputs)
	if err != nil {
		return dist.Value{}, nodeErr(n, err)
	}
	if e.transformsTotal != nil {
		e.transformsTotal.Add(ctx, 1)
	}
	return v, nil
}

// applyTransform invokes the function with panic recovery.
func applyTransform(n graph.Node, inputs []dist.Value) (v dist.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ComputationError{
				Node:     n.Label(),
				Err:      fmt.Errorf("%v", r),
				Panicked: true,
			}
		}
	}()

	v, ferr := n.Fn(inputs)
	if ferr != nil {
		return dist.Value{}, &ComputationError{Node: n.Label(), Err: ferr}
	}
	return v, nil
}

// resolveParam yields a parameter's value: constants inline, node
// references by realizing the dependency and recording the traversed
// edge in the trace.
func (e *Engine) resolveParam(ctx context.Context, tr *Trace, from graph.NodeID, p graph.Param, path []graph.NodeID) (dist.Value, error) {
	if v, ok := p.Value(); ok {
		return v, nil
	}
	to, _ := p.Node()
	tr.recordEdge(graph.Edge{From: from, To: to, Kind: e.edgeKind(from, to)})
	return e.realize(ctx, tr, to, path)
}

// edgeKind reads the authoring kind the graph recorded for the edge.
func (e *Engine) edgeKind(from, to graph.NodeID) graph.EdgeKind {
	if kind, ok := e.g.EdgeKindOf(from, to); ok {
		return kind
	}
	return graph.EdgeStatic
}

// rngFor builds the node's substream for this trace. The stream
// depends only on (trace seed, node stream key), so realization order
// never changes values.
func (e *Engine) rngFor(tr *Trace, n graph.Node) *rand.Rand {
	key := n.StreamKey()
	return rand.New(rand.NewPCG(
		entropy.Combine(tr.Seed(), key),
		entropy.Combine(key, tr.Seed()),
	))
}

