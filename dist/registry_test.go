// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dist

import (
	"errors"
	"math/rand/v2"
	"sort"
	"testing"
)

// constFamily is a minimal Family for registry tests.
type constFamily struct {
	name string
}

func (f constFamily) Name() string        { return f.name }
func (f constFamily) Params() []ParamSpec { return nil }

func (f constFamily) Sample(map[string]Value, *rand.Rand) (Value, error) {
	return Scalar(42), nil
}

func (f constFamily) LogProb(map[string]Value, Value) (float64, error) {
	return 0, nil
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(constFamily{name: "const"}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	f, err := r.Lookup("const")
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if f.Name() != "const" {
		t.Errorf("Name() = %q, want %q", f.Name(), "const")
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(constFamily{name: "const"}); err != nil {
		t.Fatalf("first Register() error: %v", err)
	}
	err := r.Register(constFamily{name: "const"})
	if !errors.Is(err, ErrDuplicateFamily) {
		t.Errorf("second Register() = %v, want ErrDuplicateFamily", err)
	}
}

func TestRegistryUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Lookup("no-such-family")
	if !errors.Is(err, ErrUnknownFamily) {
		t.Errorf("Lookup() = %v, want ErrUnknownFamily", err)
	}
}

func TestRegistryRejectsNilAndUnnamed(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(nil); err == nil {
		t.Error("Register(nil) should fail")
	}
	if err := r.Register(constFamily{name: ""}); err == nil {
		t.Error("Register() with empty name should fail")
	}
}

func TestDefaultRegistryHasBuiltins(t *testing.T) {
	want := []string{
		FamilyBernoulli, FamilyBeta, FamilyCategorical, FamilyDirichlet,
		FamilyExponential, FamilyGamma, FamilyNormal, FamilyPoisson,
		FamilyUniform,
	}
	sort.Strings(want)

	got := Default().Names()
	if len(got) != len(want) {
		t.Fatalf("Names() returned %d families, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Default returns the same instance every time.
	if Default() != Default() {
		t.Error("Default() should be a singleton")
	}
}

func TestBuiltinParamSpecs(t *testing.T) {
	tests := []struct {
		family string
		params []string
	}{
		{FamilyBernoulli, []string{"p"}},
		{FamilyBeta, []string{"a", "b"}},
		{FamilyNormal, []string{"mu", "sigma"}},
		{FamilyUniform, []string{"a", "b"}},
		{FamilyGamma, []string{"alpha", "beta"}},
		{FamilyExponential, []string{"lam"}},
		{FamilyPoisson, []string{"lam"}},
		{FamilyCategorical, []string{"probs"}},
		{FamilyDirichlet, []string{"alpha"}},
	}

	for _, tt := range tests {
		t.Run(tt.family, func(t *testing.T) {
			f, err := Default().Lookup(tt.family)
			if err != nil {
				t.Fatalf("Lookup() error: %v", err)
			}
			specs := f.Params()
			if len(specs) != len(tt.params) {
				t.Fatalf("Params() has %d entries, want %d", len(specs), len(tt.params))
			}
			for i, name := range tt.params {
				if specs[i].Name != name {
					t.Errorf("Params()[%d].Name = %q, want %q", i, specs[i].Name, name)
				}
			}
		})
	}
}
