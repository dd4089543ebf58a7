// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates engine configuration.
//
// Configuration is merged with priority: environment > file > defaults.
// Files may be YAML or JSON. Validation runs after merging, so a bad
// override fails fast at startup instead of deep inside a request.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Nicort/edward/exec"
	"github.com/Nicort/edward/pkg/validation"
	"github.com/Nicort/edward/store"
	"github.com/Nicort/edward/telemetry"
)

// Config is the top-level configuration for the engine and its
// surfaces.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after
// creation.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `json:"server" yaml:"server"`

	// Engine contains realization engine settings.
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Store contains trace archive settings.
	Store StoreConfig `json:"store" yaml:"store"`

	// Telemetry contains tracing and metrics settings.
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// Logging contains structured logging settings.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Feed contains state feed watcher settings.
	Feed FeedConfig `json:"feed" yaml:"feed"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr            string        `json:"addr" yaml:"addr" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
}

// EngineConfig contains realization engine settings.
type EngineConfig struct {
	// BaseSeed fixes the engine's base seed. Zero draws a random seed
	// per engine.
	BaseSeed uint64 `json:"base_seed" yaml:"base_seed"`

	// MaxLoopIterations caps loops that inherit the engine default.
	MaxLoopIterations int `json:"max_loop_iterations" yaml:"max_loop_iterations" validate:"gte=1"`

	// Parallelism bounds concurrent node realizations.
	Parallelism int `json:"parallelism" yaml:"parallelism" validate:"gte=1,lte=1024"`

	// DefaultDraws is the sample count used when a request omits one.
	DefaultDraws int `json:"default_draws" yaml:"default_draws" validate:"gte=1,lte=1000000"`
}

// StoreConfig contains trace archive settings.
type StoreConfig struct {
	// Dir is the BadgerDB directory. Required unless InMemory is true.
	Dir string `json:"dir" yaml:"dir" validate:"required_if=InMemory false"`

	// InMemory keeps the archive in memory only.
	InMemory bool `json:"in_memory" yaml:"in_memory"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `json:"sync_writes" yaml:"sync_writes"`

	// GCInterval is the value log GC period. Zero disables GC.
	GCInterval time.Duration `json:"gc_interval" yaml:"gc_interval" validate:"gte=0"`

	// GCDiscardRatio is the minimum discardable ratio before GC.
	GCDiscardRatio float64 `json:"gc_discard_ratio" yaml:"gc_discard_ratio" validate:"gte=0,lte=1"`
}

// TelemetryConfig contains tracing and metrics settings.
type TelemetryConfig struct {
	ServiceName    string `json:"service_name" yaml:"service_name" validate:"required"`
	Environment    string `json:"environment" yaml:"environment"`
	TraceExporter  string `json:"trace_exporter" yaml:"trace_exporter" validate:"oneof=otlp jaeger stdout none"`
	MetricExporter string `json:"metric_exporter" yaml:"metric_exporter" validate:"oneof=prometheus stdout none"`
	OTLPEndpoint   string `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `json:"otlp_insecure" yaml:"otlp_insecure"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	Level     string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format    string `json:"format" yaml:"format" validate:"oneof=text json"`
	AddSource bool   `json:"add_source" yaml:"add_source"`
}

// FeedConfig contains state feed watcher settings.
type FeedConfig struct {
	// Path is the watched state file. Empty disables the feed.
	Path string `json:"path" yaml:"path"`

	// Model names the model whose state the feed updates.
	Model string `json:"model" yaml:"model" validate:"omitempty,modelname"`

	// Debounce coalesces bursts of file events.
	Debounce time.Duration `json:"debounce" yaml:"debounce" validate:"gte=0"`
}

// Default returns the default configuration.
func Default() Config {
	tel := telemetry.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:            "localhost:8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Engine: EngineConfig{
			BaseSeed:          0, // random per engine
			MaxLoopIterations: exec.DefaultMaxLoopIterations,
			Parallelism:       exec.DefaultParallelism,
			DefaultDraws:      100,
		},
		Store: StoreConfig{
			InMemory:       true,
			SyncWrites:     false,
			GCInterval:     5 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    tel.ServiceName,
			Environment:    tel.Environment,
			TraceExporter:  tel.TraceExporter,
			MetricExporter: tel.MetricExporter,
			OTLPEndpoint:   tel.OTLPEndpoint,
			OTLPInsecure:   tel.OTLPInsecure,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Feed: FeedConfig{
			Debounce: 200 * time.Millisecond,
		},
	}
}

// configValidate is the validator instance for configuration.
// Initialized in init() with custom validators.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("modelname", validateModelName)
}

// validateModelName delegates to the shared model name rules so config
// rejects the same names the archive and the API reject.
func validateModelName(fl validator.FieldLevel) bool {
	return validation.ValidateModelName(fl.Field().String()) == nil
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	return configValidate.Struct(c)
}

// EngineOptions converts the engine section to exec options. A zero
// BaseSeed is omitted so the engine draws its own.
func (c EngineConfig) EngineOptions() []exec.Option {
	opts := []exec.Option{
		exec.WithMaxLoopIterations(c.MaxLoopIterations),
		exec.WithParallelism(c.Parallelism),
	}
	if c.BaseSeed != 0 {
		opts = append(opts, exec.WithBaseSeed(c.BaseSeed))
	}
	return opts
}

// ToStore converts the store section to a store configuration.
func (c StoreConfig) ToStore() store.Config {
	return store.Config{
		Dir:            c.Dir,
		InMemory:       c.InMemory,
		SyncWrites:     c.SyncWrites,
		GCInterval:     c.GCInterval,
		GCDiscardRatio: c.GCDiscardRatio,
	}
}

// ToTelemetry converts the telemetry section to a telemetry
// configuration.
func (c TelemetryConfig) ToTelemetry() telemetry.Config {
	return telemetry.Config{
		ServiceName:    c.ServiceName,
		ServiceVersion: "1.0.0",
		Environment:    c.Environment,
		TraceExporter:  c.TraceExporter,
		MetricExporter: c.MetricExporter,
		OTLPEndpoint:   c.OTLPEndpoint,
		OTLPInsecure:   c.OTLPInsecure,
	}
}
