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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Nicort/edward/dist"
	"github.com/Nicort/edward/graph"
)

// LoadFile reads a state file and converts each entry to a value.
//
// The file is parsed as YAML first and JSON second. Scalars may be
// integers or floats, vectors are flat sequences of numbers. Anything
// else (strings, booleans, nested mappings) fails with an error naming
// the offending entry. An empty file yields an empty map.
func LoadFile(path string) (map[string]dist.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		if jsonErr := json.Unmarshal(data, &raw); jsonErr != nil {
			return nil, fmt.Errorf("parse state file %s: %w", path, err)
		}
	}

	values := make(map[string]dist.Value, len(raw))
	for name, entry := range raw {
		v, err := parseStateValue(name, entry)
		if err != nil {
			return nil, err
		}
		values[name] = v
	}
	return values, nil
}

// parseStateValue converts one decoded entry to a value. YAML and JSON
// decoders disagree on integer types, so every numeric representation
// is accepted.
func parseStateValue(name string, entry any) (dist.Value, error) {
	if f, ok := toFloat(entry); ok {
		return dist.Scalar(f), nil
	}

	seq, ok := entry.([]any)
	if !ok {
		return dist.Value{}, fmt.Errorf("state %q: unsupported value %v, want a number or a sequence of numbers", name, entry)
	}
	if len(seq) == 0 {
		return dist.Value{}, fmt.Errorf("state %q: empty sequence", name)
	}

	components := make([]float64, len(seq))
	for i, el := range seq {
		f, ok := toFloat(el)
		if !ok {
			return dist.Value{}, fmt.Errorf("state %q: element %d is %v, want a number", name, i, el)
		}
		components[i] = f
	}
	return dist.Vector(components...), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Apply binds each entry to the model's mutable-state node of the same
// name, in name order. Entries that do not match a mutable-state node
// are skipped; the rest still apply. The returned count is the number
// of entries bound, and the error joins one failure per skipped entry.
func Apply(g *graph.Graph, values map[string]dist.Value, logger *slog.Logger) (int, error) {
	if g == nil {
		return 0, errors.New("graph is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	applied := 0
	var errs []error
	for _, name := range names {
		if err := g.SetByName(name, values[name]); err != nil {
			logger.Warn("state entry skipped",
				"model", g.Name(),
				"state", name,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("state %q: %w", name, err))
			continue
		}
		logger.Debug("state entry bound",
			"model", g.Name(),
			"state", name,
			"value", values[name].String(),
		)
		applied++
	}
	return applied, errors.Join(errs...)
}
