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
	"github.com/spf13/cobra"

	"github.com/Nicort/edward/config"
	"github.com/Nicort/edward/pkg/logging"
	"github.com/Nicort/edward/pkg/ux"
)

// --- Global Command Variables ---
var (
	cfgPath       string
	outputJSON    bool
	outputCompact bool
	outputQuiet   bool
	outputPlain   bool

	// Sample flags
	sampleModel string
	sampleDraws int
	sampleSeed  uint64
	sampleBins  int
	sampleWidth int

	// Graph flags
	graphModel string
	graphList  bool

	// Partition flags
	partitionModel  string
	partitionTraces int
	partitionSeed   uint64
	partitionStrict bool
	partitionStore  string

	// Serve flags
	serveModel string
	serveAddr  string
	serveDebug bool

	// loadedConfig holds the merged configuration for the invocation.
	// Populated by the root command's PersistentPreRunE.
	loadedConfig config.Config

	// cliLogger is the process logger. Populated alongside loadedConfig.
	cliLogger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "edward",
		Short: "A cli to build, sample, and serve random variable models",
		Long: `Edward realizes directed graphs of random variables, transforms,
and mutable state. Draws are demand driven and reproducible: the same
seed yields the same trace, branch and loop structure included.

The cli ships a handful of demo models (see 'edward graph --list') and
can serve any of them over HTTP with 'edward serve'.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			loadedConfig = cfg

			level, _ := logging.ParseLevel(cfg.Logging.Level)
			cliLogger = logging.New(logging.Config{
				Level:   level,
				Service: "edward",
				JSON:    cfg.Logging.Format == "json",
				// Keep stderr clean when stdout carries machine output.
				Quiet:     outputQuiet || outputJSON,
				AddSource: cfg.Logging.AddSource,
			})

			if outputPlain || outputJSON || outputQuiet {
				ux.SetPlain(true)
			}
			return nil
		},
	}

	// --- Sampling ---
	sampleCmd = &cobra.Command{
		Use:   "sample [node]",
		Short: "Draw independent samples from a demo model node",
		Long: `Draw n independent realizations of a node and summarize them.

Each draw runs on a fresh trace, so stochastic branches and loops are
re-resolved per draw. With no node argument the model's default root
is sampled.

Examples:
  edward sample
  edward sample heads --model beta-bernoulli --draws 500
  edward sample value --model mixture-with-cond --seed 42
  edward sample trials --model geometric-loop --json`,
		Args: cobra.MaximumNArgs(1),
		Run:  runSampleCommand, // Defined in cmd_sample.go
	}

	// --- Graph Inspection ---
	graphCmd = &cobra.Command{
		Use:   "graph",
		Short: "Print a demo model's node and edge structure",
		Long: `Print the declared structure of a demo model.

Shows every node with its kind, distribution family or transform
inputs, and the declared static edges. Branch and loop bodies are
listed once materialized structure is built, so a freshly built model
shows only its declared skeleton.

Examples:
  edward graph
  edward graph --model regression
  edward graph --list
  edward graph --model mixture-with-cond --json`,
		Run: runGraphCommand, // Defined in cmd_graph.go
	}

	// --- Partitioning ---
	partitionCmd = &cobra.Command{
		Use:   "partition",
		Short: "Estimate the static/dynamic edge partition of a demo model",
		Long: `Realize a batch of traces and partition the observed edges.

Edges present in every trace are static; edges whose presence varies
with sampled values are dynamic. More traces sharpen the estimate for
models with control flow.

Examples:
  edward partition --model mixture-with-cond --traces 100
  edward partition --model geometric-loop --strict
  edward partition --model beta-bernoulli --store /tmp/edward-traces

Exit Codes:
  0 = Partition computed
  1 = Dynamic edges found and --strict was set
  2 = Error`,
		Run: runPartitionCommand, // Defined in cmd_partition.go
	}

	// --- Serving ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve a demo model over HTTP",
		Long: `Start the HTTP server for a demo model.

The server exposes realization, sampling, and partition reports under
/v1, plus Prometheus metrics on /metrics. Configuration comes from the
config file and EDWARD_* environment variables; --addr overrides the
listen address. Shuts down gracefully on SIGINT/SIGTERM.`,
		RunE: runServeCommand, // Defined in cmd_serve.go
	}

	// --- Utilities ---
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersionCommand, // Defined in cmd_version.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "",
		"Path to a YAML/JSON config file")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false,
		"Output as JSON for scripting")
	rootCmd.PersistentFlags().BoolVar(&outputCompact, "compact", false,
		"Compact JSON output (no indentation)")
	rootCmd.PersistentFlags().BoolVar(&outputQuiet, "quiet", false,
		"No output, exit code only")
	rootCmd.PersistentFlags().BoolVar(&outputPlain, "plain", false,
		"Disable colors and spinners")

	rootCmd.AddCommand(sampleCmd)
	sampleCmd.Flags().StringVar(&sampleModel, "model", "beta-bernoulli",
		"Demo model to sample from")
	sampleCmd.Flags().IntVar(&sampleDraws, "draws", 0,
		"Number of draws (0 = config default)")
	sampleCmd.Flags().Uint64Var(&sampleSeed, "seed", 0,
		"Base seed for reproducible draws (0 = random)")
	sampleCmd.Flags().IntVar(&sampleBins, "bins", 10,
		"Histogram bin count")
	sampleCmd.Flags().IntVar(&sampleWidth, "width", 40,
		"Histogram bar width in characters")

	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringVar(&graphModel, "model", "beta-bernoulli",
		"Demo model to print")
	graphCmd.Flags().BoolVar(&graphList, "list", false,
		"List available demo models instead")

	rootCmd.AddCommand(partitionCmd)
	partitionCmd.Flags().StringVar(&partitionModel, "model", "mixture-with-cond",
		"Demo model to partition")
	partitionCmd.Flags().IntVar(&partitionTraces, "traces", 20,
		"Number of traces to realize")
	partitionCmd.Flags().Uint64Var(&partitionSeed, "seed", 0,
		"Base seed for the trace batch (0 = random)")
	partitionCmd.Flags().BoolVar(&partitionStrict, "strict", false,
		"Exit 1 if any dynamic edge is observed")
	partitionCmd.Flags().StringVar(&partitionStore, "store", "",
		"Archive realized traces to a BadgerDB directory")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveModel, "model", "beta-bernoulli",
		"Demo model to serve")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"Listen address override (host:port)")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false,
		"Run the HTTP router in debug mode")

	rootCmd.AddCommand(versionCmd)
}

// cliOutputConfig derives the shared output configuration from the
// global flags.
func cliOutputConfig() OutputConfig {
	return OutputConfig{
		JSON:    outputJSON,
		Compact: outputCompact,
		Quiet:   outputQuiet,
	}
}
