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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Nicort/edward/exec"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Addr != "localhost:8080" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, "localhost:8080")
	}
	if cfg.Engine.MaxLoopIterations != exec.DefaultMaxLoopIterations {
		t.Errorf("Engine.MaxLoopIterations = %d, want %d",
			cfg.Engine.MaxLoopIterations, exec.DefaultMaxLoopIterations)
	}
	if !cfg.Store.InMemory {
		t.Error("Store.InMemory = false, want true by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() config fails validation: %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != Default().Server.Addr {
		t.Errorf("Server.Addr = %q, want default", cfg.Server.Addr)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edward.yaml")
	content := `
server:
  addr: "localhost:9999"
engine:
  parallelism: 4
  default_draws: 25
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != "localhost:9999" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, "localhost:9999")
	}
	if cfg.Engine.Parallelism != 4 {
		t.Errorf("Engine.Parallelism = %d, want 4", cfg.Engine.Parallelism)
	}
	if cfg.Engine.DefaultDraws != 25 {
		t.Errorf("Engine.DefaultDraws = %d, want 25", cfg.Engine.DefaultDraws)
	}
	// Untouched sections keep their defaults.
	if cfg.Engine.MaxLoopIterations != exec.DefaultMaxLoopIterations {
		t.Errorf("Engine.MaxLoopIterations = %d, want default", cfg.Engine.MaxLoopIterations)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edward.json")
	content := `{"server": {"addr": "localhost:7070"}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != "localhost:7070" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, "localhost:7070")
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [not: a: mapping"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load() with malformed file should fail")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edward.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \"localhost:9999\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("EDWARD_ADDR", "localhost:6060")
	t.Setenv("EDWARD_PARALLELISM", "2")
	t.Setenv("EDWARD_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != "localhost:6060" {
		t.Errorf("Server.Addr = %q, want env override", cfg.Server.Addr)
	}
	if cfg.Engine.Parallelism != 2 {
		t.Errorf("Engine.Parallelism = %d, want 2", cfg.Engine.Parallelism)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"zero parallelism", func(c *Config) { c.Engine.Parallelism = 0 }, true},
		{"zero loop cap", func(c *Config) { c.Engine.MaxLoopIterations = 0 }, true},
		{"bad trace exporter", func(c *Config) { c.Telemetry.TraceExporter = "zipkin" }, true},
		{"persistent store without dir", func(c *Config) { c.Store.InMemory = false; c.Store.Dir = "" }, true},
		{"persistent store with dir", func(c *Config) { c.Store.InMemory = false; c.Store.Dir = "/tmp/edward" }, false},
		{"bad feed model name", func(c *Config) { c.Feed.Model = "../escape" }, true},
		{"valid feed model name", func(c *Config) { c.Feed.Model = "beta-bernoulli" }, false},
		{"gc ratio above one", func(c *Config) { c.Store.GCDiscardRatio = 1.5 }, true},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, true},
		{"addr without port", func(c *Config) { c.Server.Addr = "localhost" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEngineOptions(t *testing.T) {
	ec := EngineConfig{MaxLoopIterations: 50, Parallelism: 3}
	if got := len(ec.EngineOptions()); got != 2 {
		t.Errorf("EngineOptions() len = %d, want 2 when seed is zero", got)
	}

	ec.BaseSeed = 42
	if got := len(ec.EngineOptions()); got != 3 {
		t.Errorf("EngineOptions() len = %d, want 3 with explicit seed", got)
	}
}

func TestConverters(t *testing.T) {
	cfg := Default()
	cfg.Store.Dir = "/var/lib/edward"
	cfg.Store.InMemory = false
	cfg.Store.GCInterval = time.Minute

	sc := cfg.Store.ToStore()
	if sc.Dir != "/var/lib/edward" || sc.InMemory || sc.GCInterval != time.Minute {
		t.Errorf("ToStore() = %+v, fields not carried over", sc)
	}

	tc := cfg.Telemetry.ToTelemetry()
	if tc.ServiceName != cfg.Telemetry.ServiceName {
		t.Errorf("ToTelemetry().ServiceName = %q, want %q", tc.ServiceName, cfg.Telemetry.ServiceName)
	}
	if tc.TraceExporter != cfg.Telemetry.TraceExporter {
		t.Errorf("ToTelemetry().TraceExporter = %q, want %q", tc.TraceExporter, cfg.Telemetry.TraceExporter)
	}
}
