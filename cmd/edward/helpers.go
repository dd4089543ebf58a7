// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/Nicort/edward/cmd/edward/internal/demo"
	"github.com/Nicort/edward/exec"
	"github.com/Nicort/edward/graph"
)

// buildDemoModel finds and builds the named demo model.
func buildDemoModel(name string) (demo.Model, *graph.Graph, error) {
	model, err := demo.Find(name)
	if err != nil {
		return demo.Model{}, nil, err
	}
	g, err := model.Build()
	if err != nil {
		return demo.Model{}, nil, fmt.Errorf("building model %s: %w", model.Name, err)
	}
	return model, g, nil
}

// newDemoEngine builds the named demo model and wraps it in an engine
// configured from the loaded config.
func newDemoEngine(name string) (demo.Model, *exec.Engine, error) {
	model, g, err := buildDemoModel(name)
	if err != nil {
		return demo.Model{}, nil, err
	}

	opts := loadedConfig.Engine.EngineOptions()
	if cliLogger != nil {
		opts = append(opts, exec.WithLogger(cliLogger.Slog()))
	}
	engine, err := exec.New(g, opts...)
	if err != nil {
		return demo.Model{}, nil, fmt.Errorf("creating engine: %w", err)
	}
	return model, engine, nil
}

// resolveRoots maps the model's root node names to ids.
func resolveRoots(g *graph.Graph, roots []string) ([]graph.NodeID, error) {
	ids := make([]graph.NodeID, 0, len(roots))
	for _, name := range roots {
		n, err := g.NodeByName(name)
		if err != nil {
			return nil, fmt.Errorf("resolving root %s: %w", name, err)
		}
		ids = append(ids, n.ID)
	}
	return ids, nil
}
