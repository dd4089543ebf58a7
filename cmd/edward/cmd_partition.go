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
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nicort/edward/exec"
	"github.com/Nicort/edward/partition"
	"github.com/Nicort/edward/pkg/ux"
	"github.com/Nicort/edward/store"
)

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runPartitionCommand realizes a batch of traces and prints the
// empirical static/dynamic edge partition.
func runPartitionCommand(cmd *cobra.Command, args []string) {
	start := time.Now()
	outCfg := cliOutputConfig()

	// The batch runs in a helper so its deferred store Close fires
	// before os.Exit.
	result, hasFindings, err := runPartitionBatch()
	if err != nil {
		os.Exit(OutputResult(outCfg, "partition", start, nil, false, err))
	}

	if !outCfg.JSON && !outCfg.Quiet {
		printPartitionText(result, hasFindings)
	}
	os.Exit(OutputResult(outCfg, "partition", start, result, hasFindings, nil))
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// runPartitionBatch realizes the trace batch, optionally archiving each
// trace, and computes the empirical report.
func runPartitionBatch() (PartitionRunResult, bool, error) {
	ctx := context.Background()

	model, engine, err := newDemoEngine(partitionModel)
	if err != nil {
		return PartitionRunResult{}, false, err
	}

	roots, err := resolveRoots(engine.Graph(), model.Roots)
	if err != nil {
		return PartitionRunResult{}, false, err
	}

	traces := partitionTraces
	if traces <= 0 {
		traces = 20
	}

	var traceStore *store.TraceStore
	if partitionStore != "" {
		traceStore, err = store.Open(store.DefaultConfig(partitionStore))
		if err != nil {
			return PartitionRunResult{}, false, err
		}
		defer traceStore.Close()
	}

	part := partition.New(engine.Graph())
	stored := 0

	err = ux.WithSpinner(fmt.Sprintf("Realizing %d traces of %s", traces, model.Name), func() error {
		for i := 0; i < traces; i++ {
			var opts []exec.TraceOption
			if partitionSeed != 0 {
				// Derive per-trace seeds so the batch is reproducible
				// but the traces stay independent.
				opts = append(opts, exec.WithSeed(partitionSeed+uint64(i)))
			}
			tr := engine.NewTrace(opts...)
			if _, err := engine.RealizeMany(ctx, tr, roots...); err != nil {
				return fmt.Errorf("trace %d: %w", i, err)
			}
			part.Observe(tr)

			if traceStore != nil {
				rec := store.NewTraceRecord(engine.Graph(), tr, roots...)
				if err := traceStore.Put(ctx, model.Name, rec); err != nil {
					return fmt.Errorf("archiving trace %d: %w", i, err)
				}
				stored++
			}
		}
		return nil
	})
	if err != nil {
		return PartitionRunResult{}, false, err
	}

	report, err := part.Report()
	if err != nil {
		return PartitionRunResult{}, false, err
	}

	result := PartitionRunResult{
		Report: report,
		Traces: traces,
		Seed:   partitionSeed,
		Stored: stored,
	}
	hasFindings := partitionStrict && report.DynamicCount > 0
	return result, hasFindings, nil
}

// printPartitionText renders the styled partition report.
func printPartitionText(result PartitionRunResult, hasFindings bool) {
	report := result.Report
	ux.Title(fmt.Sprintf("Partition: %s", report.Model))

	rows := [][2]string{
		{"traces", fmt.Sprintf("%d", report.Observations)},
		{"declared_static", fmt.Sprintf("%d", report.DeclaredStaticCount)},
	}
	if result.Seed != 0 {
		rows = append(rows, [2]string{"seed", fmt.Sprintf("%d", result.Seed)})
	}
	if result.Stored > 0 {
		rows = append(rows, [2]string{"archived", fmt.Sprintf("%d", result.Stored)})
	}
	ux.KeyValueBlock(rows)

	fmt.Println()
	for _, e := range report.Edges {
		marker := ux.IconBullet
		if e.Class == partition.ClassDynamic {
			marker = ux.IconWarning
		}
		fmt.Printf("  %s %s -> %s  %s (%d/%d)\n",
			marker.Render(), e.FromLabel, e.ToLabel, e.Class, e.Seen, report.Observations)
	}

	fmt.Println()
	ux.Summary(report.StaticCount, report.DynamicCount, report.StaticCount+report.DynamicCount)
	if hasFindings {
		ux.Warning(fmt.Sprintf("%d dynamic edges observed", report.DynamicCount))
	}
}
