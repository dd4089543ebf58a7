// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package feed

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Nicort/edward/dist"
	"github.com/Nicort/edward/graph"
)

// stateModel builds a frozen model with two mutable states, rate and
// weights, where rate feeds a poisson variable.
func stateModel(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New(graph.WithName("feed-model"))
	b := graph.NewBuilder(g)

	rate, err := b.MutableState("rate", graph.WithDefault(dist.Scalar(1)))
	if err != nil {
		t.Fatalf("MutableState(rate) error = %v", err)
	}
	if _, err := b.MutableState("weights"); err != nil {
		t.Fatalf("MutableState(weights) error = %v", err)
	}
	if _, err := b.RandomVariable("events", dist.FamilyPoisson, map[string]graph.Param{
		"lam": graph.Ref(rate),
	}); err != nil {
		t.Fatalf("RandomVariable(events) error = %v", err)
	}
	if err := g.Freeze(); err != nil {
		t.Fatalf("Freeze() error = %v", err)
	}
	return g
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}

// waitFor polls until the condition holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func stateOf(t *testing.T, g *graph.Graph, name string) (dist.Value, bool) {
	t.Helper()
	n, err := g.NodeByName(name)
	if err != nil {
		t.Fatalf("NodeByName(%q) error = %v", name, err)
	}
	v, ok, err := g.StateValue(n.ID)
	if err != nil {
		t.Fatalf("StateValue(%q) error = %v", name, err)
	}
	return v, ok
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		contents string
		want     map[string]dist.Value
		wantErr  string
	}{
		{
			name:     "yaml scalars and vector",
			contents: "rate: 2.5\ncount: 12\nweights: [0.25, 0.75]\n",
			want: map[string]dist.Value{
				"rate":    dist.Scalar(2.5),
				"count":   dist.Scalar(12),
				"weights": dist.Vector(0.25, 0.75),
			},
		},
		{
			name:     "json document",
			contents: `{"rate": 3, "weights": [1, 2, 3]}`,
			want: map[string]dist.Value{
				"rate":    dist.Scalar(3),
				"weights": dist.Vector(1, 2, 3),
			},
		},
		{
			name:     "empty file",
			contents: "",
			want:     map[string]dist.Value{},
		},
		{
			name:     "string value rejected",
			contents: "rate: fast\n",
			wantErr:  `state "rate"`,
		},
		{
			name:     "nested mapping rejected",
			contents: "rate:\n  nested: 1\n",
			wantErr:  `state "rate"`,
		},
		{
			name:     "empty sequence rejected",
			contents: "weights: []\n",
			wantErr:  "empty sequence",
		},
		{
			name:     "non-numeric element rejected",
			contents: "weights: [1, two]\n",
			wantErr:  "element 1",
		},
		{
			name:     "unparseable document",
			contents: "{{not valid",
			wantErr:  "parse state file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml")
			writeFile(t, path, tt.contents)

			got, err := LoadFile(path)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("LoadFile() error = nil, want containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("LoadFile() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFile() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("LoadFile() returned %d entries, want %d", len(got), len(tt.want))
			}
			for name, want := range tt.want {
				if !got[name].Equal(want) {
					t.Errorf("LoadFile()[%q] = %v, want %v", name, got[name], want)
				}
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("LoadFile() error = nil for missing file")
	}
}

func TestApply(t *testing.T) {
	g := stateModel(t)

	applied, err := Apply(g, map[string]dist.Value{
		"rate":    dist.Scalar(4),
		"weights": dist.Vector(0.5, 0.5),
	}, quietLogger())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if applied != 2 {
		t.Fatalf("Apply() applied = %d, want 2", applied)
	}

	v, ok := stateOf(t, g, "rate")
	if !ok || !v.Equal(dist.Scalar(4)) {
		t.Errorf("rate = %v (bound=%v), want 4", v, ok)
	}
	v, ok = stateOf(t, g, "weights")
	if !ok || !v.Equal(dist.Vector(0.5, 0.5)) {
		t.Errorf("weights = %v (bound=%v), want [0.5 0.5]", v, ok)
	}
}

func TestApplySkipsUnknownEntries(t *testing.T) {
	g := stateModel(t)

	applied, err := Apply(g, map[string]dist.Value{
		"rate":    dist.Scalar(7),
		"missing": dist.Scalar(1),
		"events":  dist.Scalar(1),
	}, quietLogger())
	if err == nil {
		t.Fatal("Apply() error = nil, want join of skipped entries")
	}
	if applied != 1 {
		t.Fatalf("Apply() applied = %d, want 1", applied)
	}
	if !strings.Contains(err.Error(), `state "missing"`) {
		t.Errorf("Apply() error = %v, want mention of missing entry", err)
	}
	if !strings.Contains(err.Error(), `state "events"`) {
		t.Errorf("Apply() error = %v, want mention of non-state node", err)
	}

	v, ok := stateOf(t, g, "rate")
	if !ok || !v.Equal(dist.Scalar(7)) {
		t.Errorf("rate = %v (bound=%v), want 7", v, ok)
	}
}

func TestApplyNilGraph(t *testing.T) {
	if _, err := Apply(nil, nil, quietLogger()); err == nil {
		t.Fatal("Apply(nil) error = nil")
	}
}

func TestNewValidation(t *testing.T) {
	g := stateModel(t)

	if _, err := New("", g, nil); err == nil {
		t.Error("New() with empty path accepted")
	}
	if _, err := New("state.yaml", nil, nil); err == nil {
		t.Error("New() with nil graph accepted")
	}
}

func TestFeedReloadWithoutStart(t *testing.T) {
	g := stateModel(t)
	path := filepath.Join(t.TempDir(), "state.yaml")
	writeFile(t, path, "rate: 9\n")

	f, err := New(path, g, &Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer f.Stop()

	if err := f.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if f.Applies() != 1 {
		t.Errorf("Applies() = %d, want 1", f.Applies())
	}
	v, ok := stateOf(t, g, "rate")
	if !ok || !v.Equal(dist.Scalar(9)) {
		t.Errorf("rate = %v (bound=%v), want 9", v, ok)
	}
}

func TestFeedAppliesOnChange(t *testing.T) {
	g := stateModel(t)
	path := filepath.Join(t.TempDir(), "state.yaml")
	writeFile(t, path, "rate: 2\n")

	f, err := New(path, g, &Options{
		Logger:   quietLogger(),
		Debounce: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer f.Stop()

	if !f.IsWatching() {
		t.Fatal("IsWatching() = false after Start")
	}
	if f.Applies() != 1 {
		t.Fatalf("Applies() = %d after Start, want 1", f.Applies())
	}
	v, _ := stateOf(t, g, "rate")
	if !v.Equal(dist.Scalar(2)) {
		t.Fatalf("rate = %v after Start, want 2", v)
	}

	writeFile(t, path, "rate: 5\n")
	waitFor(t, "updated rate", func() bool {
		v, _ := stateOf(t, g, "rate")
		return v.Equal(dist.Scalar(5))
	})
	if f.Applies() < 2 {
		t.Errorf("Applies() = %d after rewrite, want at least 2", f.Applies())
	}
}

func TestFeedAppliesOnceFileAppears(t *testing.T) {
	g := stateModel(t)
	path := filepath.Join(t.TempDir(), "state.yaml")

	f, err := New(path, g, &Options{
		Logger:   quietLogger(),
		Debounce: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer f.Stop()

	if f.Applies() != 0 {
		t.Fatalf("Applies() = %d before file exists, want 0", f.Applies())
	}

	writeFile(t, path, "rate: 3\n")
	waitFor(t, "state applied after create", func() bool {
		return f.Applies() >= 1
	})
	v, ok := stateOf(t, g, "rate")
	if !ok || !v.Equal(dist.Scalar(3)) {
		t.Errorf("rate = %v (bound=%v), want 3", v, ok)
	}
}

func TestFeedStopIdempotent(t *testing.T) {
	g := stateModel(t)
	path := filepath.Join(t.TempDir(), "state.yaml")
	writeFile(t, path, "rate: 1\n")

	f, err := New(path, g, &Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	f.Stop()
	f.Stop()
	if f.IsWatching() {
		t.Error("IsWatching() = true after Stop")
	}
}

func TestFeedDoubleStart(t *testing.T) {
	g := stateModel(t)
	path := filepath.Join(t.TempDir(), "state.yaml")
	writeFile(t, path, "rate: 1\n")

	f, err := New(path, g, &Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer f.Stop()

	ctx := context.Background()
	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.Start(ctx); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if f.Applies() != 1 {
		t.Errorf("Applies() = %d after double start, want 1", f.Applies())
	}
}
