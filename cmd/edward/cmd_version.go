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
	"time"

	"github.com/spf13/cobra"
)

// Version and Commit are set at build time:
//
//	go build -ldflags "-X main.Version=0.2.0 -X main.Commit=$(git rev-parse --short HEAD)"
var (
	Version = "0.1.0"
	Commit  = ""
)

// runVersionCommand prints version information.
func runVersionCommand(cmd *cobra.Command, args []string) {
	start := time.Now()
	outCfg := cliOutputConfig()

	result := VersionResult{Version: Version, Commit: Commit}
	if !outCfg.JSON && !outCfg.Quiet {
		if Commit != "" {
			fmt.Printf("edward %s (%s)\n", Version, Commit)
		} else {
			fmt.Printf("edward %s\n", Version)
		}
	}
	os.Exit(OutputResult(outCfg, "version", start, result, false, nil))
}
