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
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is the numeric quantity that flows through a model: either a
// scalar or a fixed-length vector of float64 components.
//
// The zero Value is the scalar 0. Values are immutable; constructors
// copy their inputs and accessors return copies.
type Value struct {
	scalar float64
	vec    []float64
	isVec  bool
}

// Scalar returns a scalar Value.
func Scalar(f float64) Value {
	return Value{scalar: f}
}

// Vector returns a vector Value with the given components.
// The input slice is copied. A zero-length vector is valid but most
// distribution families reject it during parameter validation.
func Vector(components ...float64) Value {
	vec := make([]float64, len(components))
	copy(vec, components)
	return Value{vec: vec, isVec: true}
}

// IsScalar reports whether the value is a scalar.
func (v Value) IsScalar() bool {
	return !v.isVec
}

// Len returns the number of components: 1 for scalars, the vector
// length otherwise.
func (v Value) Len() int {
	if !v.isVec {
		return 1
	}
	return len(v.vec)
}

// Float returns the scalar component. It fails for vector values.
func (v Value) Float() (float64, error) {
	if v.isVec {
		return 0, fmt.Errorf("value is a vector of length %d, not a scalar", len(v.vec))
	}
	return v.scalar, nil
}

// Floats returns the components as a slice: a single-element slice for
// scalars, a copy of the components for vectors.
func (v Value) Floats() []float64 {
	if !v.isVec {
		return []float64{v.scalar}
	}
	out := make([]float64, len(v.vec))
	copy(out, v.vec)
	return out
}

// At returns component i. It fails when i is out of range; scalars
// have exactly one component at index 0.
func (v Value) At(i int) (float64, error) {
	if !v.isVec {
		if i != 0 {
			return 0, fmt.Errorf("index %d out of range for scalar", i)
		}
		return v.scalar, nil
	}
	if i < 0 || i >= len(v.vec) {
		return 0, fmt.Errorf("index %d out of range for vector of length %d", i, len(v.vec))
	}
	return v.vec[i], nil
}

// Truthy reports whether a scalar value is nonzero. Vector values have
// no truth interpretation and fail.
func (v Value) Truthy() (bool, error) {
	if v.isVec {
		return false, fmt.Errorf("vector of length %d has no truth value", len(v.vec))
	}
	return v.scalar != 0, nil
}

// Equal reports exact equality of shape and components.
func (v Value) Equal(o Value) bool {
	if v.isVec != o.isVec {
		return false
	}
	if !v.isVec {
		return v.scalar == o.scalar
	}
	if len(v.vec) != len(o.vec) {
		return false
	}
	for i := range v.vec {
		if v.vec[i] != o.vec[i] {
			return false
		}
	}
	return true
}

// AlmostEqual reports equality of shape and componentwise closeness
// within tol. NaN components never compare equal.
func (v Value) AlmostEqual(o Value, tol float64) bool {
	if v.isVec != o.isVec || v.Len() != o.Len() {
		return false
	}
	a, b := v.Floats(), o.Floats()
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

// String renders scalars as plain numbers and vectors in bracket form,
// e.g. "[0.25, 0.75]".
func (v Value) String() string {
	if !v.isVec {
		return strconv.FormatFloat(v.scalar, 'g', -1, 64)
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v.vec {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	sb.WriteByte(']')
	return sb.String()
}

// MarshalJSON encodes scalars as JSON numbers and vectors as arrays.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.isVec {
		return json.Marshal(v.scalar)
	}
	return json.Marshal(v.vec)
}

// UnmarshalJSON decodes a JSON number into a scalar and a JSON array
// into a vector.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var vec []float64
		if err := json.Unmarshal(data, &vec); err != nil {
			return fmt.Errorf("decoding vector value: %w", err)
		}
		*v = Value{vec: vec, isVec: true}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decoding scalar value: %w", err)
	}
	*v = Value{scalar: f}
	return nil
}
