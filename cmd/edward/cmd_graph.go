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
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nicort/edward/cmd/edward/internal/demo"
	"github.com/Nicort/edward/graph"
	"github.com/Nicort/edward/pkg/ux"
)

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runGraphCommand prints a demo model's structure, or lists the demo
// models with --list.
func runGraphCommand(cmd *cobra.Command, args []string) {
	start := time.Now()
	outCfg := cliOutputConfig()

	if graphList {
		models := demo.Models()
		list := ModelListResult{Count: len(models)}
		for _, m := range models {
			list.Models = append(list.Models, ModelSummary{
				Name:        m.Name,
				Description: m.Description,
				Roots:       m.Roots,
			})
		}
		if !outCfg.JSON && !outCfg.Quiet {
			printModelList(list)
		}
		os.Exit(OutputResult(outCfg, "graph", start, list, false, nil))
	}

	model, g, err := buildDemoModel(graphModel)
	if err != nil {
		os.Exit(OutputResult(outCfg, "graph", start, nil, false, err))
	}

	export := g.Export()
	if !outCfg.JSON && !outCfg.Quiet {
		printGraphText(model, export)
	}
	os.Exit(OutputResult(outCfg, "graph", start, export, false, nil))
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// printModelList renders the demo model listing.
func printModelList(list ModelListResult) {
	ux.Title("Demo models")
	for _, m := range list.Models {
		fmt.Printf("  %-18s %s\n", m.Name, m.Description)
		ux.Muted(fmt.Sprintf("    roots: %s", strings.Join(m.Roots, ", ")))
	}
}

// printGraphText renders the model structure.
func printGraphText(model demo.Model, export graph.ExportedGraph) {
	ux.Title(fmt.Sprintf("Model: %s", export.Name))
	ux.Muted(model.Description)
	fmt.Println()

	names := make(map[graph.NodeID]string, len(export.Nodes))
	for _, n := range export.Nodes {
		names[n.ID] = n.Name
	}

	fmt.Printf("  %4s  %-16s %-14s %s\n", "ID", "KIND", "NODE", "DETAIL")
	for _, n := range export.Nodes {
		fmt.Printf("  %4d  %-16s %-14s %s\n", n.ID, n.Kind, n.Name, nodeDetail(n, names))
	}

	fmt.Println()
	ux.KeyValueBlock([][2]string{
		{"state", export.State},
		{"nodes", fmt.Sprintf("%d", export.NodeCount)},
		{"edges", fmt.Sprintf("%d", len(export.Edges))},
	})
}

// nodeDetail renders one node's distribution or inputs.
func nodeDetail(n graph.ExportedNode, names map[graph.NodeID]string) string {
	switch n.Kind {
	case "random_variable":
		parts := make([]string, 0, len(n.Params))
		for _, p := range n.Params {
			parts = append(parts, fmt.Sprintf("%s=%s", p.Name, paramLabel(p, names)))
		}
		return fmt.Sprintf("~ %s(%s)", n.Family, strings.Join(parts, ", "))
	case "transform":
		parts := make([]string, 0, len(n.Inputs))
		for _, in := range n.Inputs {
			parts = append(parts, paramLabel(in, names))
		}
		return "<- " + strings.Join(parts, ", ")
	default:
		return ""
	}
}

// paramLabel renders a parameter as its referenced node name or its
// constant value.
func paramLabel(p graph.ExportedParam, names map[graph.NodeID]string) string {
	if p.Const != nil {
		return p.Const.String()
	}
	if name, ok := names[p.Ref]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("#%d", p.Ref)
}
