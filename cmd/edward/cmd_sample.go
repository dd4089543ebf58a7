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
	"math"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nicort/edward/dist"
	"github.com/Nicort/edward/exec"
	"github.com/Nicort/edward/pkg/ux"
)

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runSampleCommand draws n independent realizations of one node and
// prints a summary.
func runSampleCommand(cmd *cobra.Command, args []string) {
	start := time.Now()
	outCfg := cliOutputConfig()

	model, engine, err := newDemoEngine(sampleModel)
	if err != nil {
		os.Exit(OutputResult(outCfg, "sample", start, nil, false, err))
	}

	nodeName := model.Roots[0]
	if len(args) > 0 {
		nodeName = args[0]
	}
	node, err := engine.Graph().NodeByName(nodeName)
	if err != nil {
		os.Exit(OutputResult(outCfg, "sample", start, nil, false, err))
	}

	draws := sampleDraws
	if draws <= 0 {
		draws = loadedConfig.Engine.DefaultDraws
	}

	var opts []exec.SampleOption
	if sampleSeed != 0 {
		opts = append(opts, exec.SampleWithSeed(sampleSeed))
	}

	var values []dist.Value
	err = ux.WithSpinner(fmt.Sprintf("Sampling %s from %s", nodeName, model.Name), func() error {
		var sampleErr error
		values, sampleErr = engine.Sample(context.Background(), node.ID, draws, opts...)
		return sampleErr
	})
	if err != nil {
		os.Exit(OutputResult(outCfg, "sample", start, nil, false, err))
	}

	result := SampleRunResult{
		Model:  model.Name,
		Node:   nodeName,
		Draws:  draws,
		Seed:   sampleSeed,
		Values: values,
	}
	scalars, allScalar := scalarDraws(values)
	if allScalar && len(scalars) > 0 {
		mean, std, lo, hi := drawStats(scalars)
		result.Mean = &mean
		result.StdDev = &std
		result.Min = &lo
		result.Max = &hi
	}

	if !outCfg.JSON && !outCfg.Quiet {
		printSampleText(result, scalars, allScalar)
	}
	os.Exit(OutputResult(outCfg, "sample", start, result, false, nil))
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// scalarDraws extracts the draws as float64s. The second return is
// false if any draw is a vector.
func scalarDraws(values []dist.Value) ([]float64, bool) {
	scalars := make([]float64, 0, len(values))
	for _, v := range values {
		f, err := v.Float()
		if err != nil {
			return nil, false
		}
		scalars = append(scalars, f)
	}
	return scalars, true
}

// drawStats computes mean, sample standard deviation, min, and max.
func drawStats(scalars []float64) (mean, std, lo, hi float64) {
	lo = math.Inf(1)
	hi = math.Inf(-1)
	for _, f := range scalars {
		mean += f
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}
	mean /= float64(len(scalars))

	if len(scalars) > 1 {
		var ss float64
		for _, f := range scalars {
			d := f - mean
			ss += d * d
		}
		std = math.Sqrt(ss / float64(len(scalars)-1))
	}
	return mean, std, lo, hi
}

// printSampleText renders the styled sample summary.
func printSampleText(result SampleRunResult, scalars []float64, allScalar bool) {
	ux.Title(fmt.Sprintf("Sample: %s/%s", result.Model, result.Node))

	rows := [][2]string{
		{"model", result.Model},
		{"node", result.Node},
		{"draws", fmt.Sprintf("%d", result.Draws)},
	}
	if result.Seed != 0 {
		rows = append(rows, [2]string{"seed", fmt.Sprintf("%d", result.Seed)})
	}
	if result.Mean != nil {
		rows = append(rows,
			[2]string{"mean", fmt.Sprintf("%.4g", *result.Mean)},
			[2]string{"std_dev", fmt.Sprintf("%.4g", *result.StdDev)},
			[2]string{"min", fmt.Sprintf("%.4g", *result.Min)},
			[2]string{"max", fmt.Sprintf("%.4g", *result.Max)},
		)
	}
	ux.KeyValueBlock(rows)

	if allScalar && len(scalars) > 0 {
		fmt.Println()
		fmt.Println(ux.Histogram(scalars, sampleBins, sampleWidth))
	} else if !allScalar {
		ux.Muted("vector draws, histogram skipped")
	}
}
