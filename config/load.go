// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration with priority: env > file > defaults.
//
// Inputs:
//
//	configPath - Path to a YAML/JSON config file. Empty skips the file
//	step; a missing file is not an error.
//
// Outputs:
//
//	Config - Merged configuration.
//	error - Non-nil if the file is invalid or the merged result fails
//	validation.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadConfigFile(configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	loadConfigFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadConfigFromEnv(cfg *Config) {
	// Server
	if v := os.Getenv("EDWARD_ADDR"); v != "" {
		cfg.Server.Addr = v
	}

	// Engine
	if v := os.Getenv("EDWARD_BASE_SEED"); v != "" {
		if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Engine.BaseSeed = u
		}
	}
	if v := os.Getenv("EDWARD_MAX_LOOP_ITERATIONS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxLoopIterations = i
		}
	}
	if v := os.Getenv("EDWARD_PARALLELISM"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Engine.Parallelism = i
		}
	}
	if v := os.Getenv("EDWARD_DEFAULT_DRAWS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Engine.DefaultDraws = i
		}
	}

	// Store
	if v := os.Getenv("EDWARD_STORE_DIR"); v != "" {
		cfg.Store.Dir = v
		cfg.Store.InMemory = false
	}
	if v := os.Getenv("EDWARD_STORE_IN_MEMORY"); v != "" {
		cfg.Store.InMemory = v == "true" || v == "1"
	}

	// Telemetry
	if v := os.Getenv("OTEL_TRACES_EXPORTER"); v != "" {
		cfg.Telemetry.TraceExporter = v
	}
	if v := os.Getenv("OTEL_METRICS_EXPORTER"); v != "" {
		cfg.Telemetry.MetricExporter = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}

	// Logging
	if v := os.Getenv("EDWARD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EDWARD_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Feed
	if v := os.Getenv("EDWARD_FEED_PATH"); v != "" {
		cfg.Feed.Path = v
	}
	if v := os.Getenv("EDWARD_FEED_MODEL"); v != "" {
		cfg.Feed.Model = v
	}
	if v := os.Getenv("EDWARD_FEED_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Feed.Debounce = d
		}
	}
}
