// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dist provides the distribution families a model can draw from
// and the Value type their samples are made of.
//
// A Family knows how to sample given named parameter values and a random
// source, and how to score a point under those parameters (log-density
// for continuous families, log-mass for discrete ones). Families are
// looked up by name through a Registry; Default returns a registry
// pre-populated with the built-in families.
//
// Sampling uses only the supplied random source, so a fixed source
// yields a reproducible draw sequence.
package dist

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
)

// ParamShape describes the expected shape of a family parameter.
type ParamShape int

const (
	// ShapeScalar expects a scalar parameter value.
	ShapeScalar ParamShape = iota

	// ShapeVector expects a vector parameter value.
	ShapeVector
)

// String returns the string representation of the ParamShape.
func (s ParamShape) String() string {
	switch s {
	case ShapeScalar:
		return "scalar"
	case ShapeVector:
		return "vector"
	default:
		return "unknown"
	}
}

// ParamSpec declares one named parameter of a distribution family.
type ParamSpec struct {
	// Name is the parameter name, e.g. "mu".
	Name string

	// Shape is the expected value shape.
	Shape ParamShape

	// Doc describes the parameter and its constraint, e.g. "standard
	// deviation, must be > 0".
	Doc string
}

// Family is a named distribution that can sample and score values.
//
// Implementations must be safe for concurrent use; all per-draw state
// lives in the supplied random source.
type Family interface {
	// Name returns the registry name of the family.
	Name() string

	// Params returns the declared parameters in canonical order.
	Params() []ParamSpec

	// Sample draws one value using only rng for entropy. Parameter
	// values that violate the family's constraints fail with a
	// DistributionError.
	Sample(params map[string]Value, rng *rand.Rand) (Value, error)

	// LogProb returns the log-density (or log-mass) of x under the
	// given parameters. Points outside the support score math.Inf(-1);
	// malformed points and invalid parameters fail with a
	// DistributionError.
	LogProb(params map[string]Value, x Value) (float64, error)
}

// Registry maps family names to implementations.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	families map[string]Family
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{families: make(map[string]Family)}
}

// Register adds a family under its name. Registering a nil family or a
// name that is already taken is an error.
func (r *Registry) Register(f Family) error {
	if f == nil {
		return fmt.Errorf("register: nil family")
	}
	name := f.Name()
	if name == "" {
		return fmt.Errorf("register: family has empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.families[name]; exists {
		return fmt.Errorf("register %q: %w", name, ErrDuplicateFamily)
	}
	r.families[name] = f
	return nil
}

// Lookup returns the family registered under name.
func (r *Registry) Lookup(name string) (Family, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.families[name]
	if !ok {
		return nil, fmt.Errorf("lookup %q: %w", name, ErrUnknownFamily)
	}
	return f, nil
}

// Names returns the registered family names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.families))
	for name := range r.families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered families.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.families)
}

// defaultRegistry builds the shared registry of built-in families once.
var defaultRegistry = sync.OnceValue(func() *Registry {
	r := NewRegistry()
	for _, f := range builtinFamilies() {
		if err := r.Register(f); err != nil {
			// Built-ins are registered under distinct literal names;
			// a failure here is a programming error.
			panic(fmt.Sprintf("dist: registering builtin: %v", err))
		}
	}
	return r
})

// Default returns the shared registry holding the built-in families.
// Callers must not register additional families on it; use NewRegistry
// for custom family sets.
func Default() *Registry {
	return defaultRegistry()
}
