// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"fmt"

	"github.com/Nicort/edward/dist"
)

// Common transform functions. Models with richer arithmetic supply
// their own TransformFunc closures; these cover the frequent cases.

// SumFn adds the scalar components of all inputs.
func SumFn(inputs []dist.Value) (dist.Value, error) {
	total := 0.0
	for i, in := range inputs {
		f, err := in.Float()
		if err != nil {
			return dist.Value{}, fmt.Errorf("input %d: %w", i, err)
		}
		total += f
	}
	return dist.Scalar(total), nil
}

// ProdFn multiplies the scalar components of all inputs.
func ProdFn(inputs []dist.Value) (dist.Value, error) {
	total := 1.0
	for i, in := range inputs {
		f, err := in.Float()
		if err != nil {
			return dist.Value{}, fmt.Errorf("input %d: %w", i, err)
		}
		total *= f
	}
	return dist.Scalar(total), nil
}

// AffineFn returns a single-input transform computing w*x + c.
func AffineFn(w, c float64) TransformFunc {
	return func(inputs []dist.Value) (dist.Value, error) {
		if len(inputs) != 1 {
			return dist.Value{}, fmt.Errorf("affine takes 1 input, got %d", len(inputs))
		}
		x, err := inputs[0].Float()
		if err != nil {
			return dist.Value{}, err
		}
		return dist.Scalar(w*x + c), nil
	}
}

// ThresholdFn returns a single-input transform yielding 1 when the
// input exceeds t and 0 otherwise, for use as a condition.
func ThresholdFn(t float64) TransformFunc {
	return func(inputs []dist.Value) (dist.Value, error) {
		if len(inputs) != 1 {
			return dist.Value{}, fmt.Errorf("threshold takes 1 input, got %d", len(inputs))
		}
		x, err := inputs[0].Float()
		if err != nil {
			return dist.Value{}, err
		}
		if x > t {
			return dist.Scalar(1), nil
		}
		return dist.Scalar(0), nil
	}
}

// ComponentFn returns a single-input transform extracting component i
// of a vector input.
func ComponentFn(i int) TransformFunc {
	return func(inputs []dist.Value) (dist.Value, error) {
		if len(inputs) != 1 {
			return dist.Value{}, fmt.Errorf("component takes 1 input, got %d", len(inputs))
		}
		f, err := inputs[0].At(i)
		if err != nil {
			return dist.Value{}, err
		}
		return dist.Scalar(f), nil
	}
}
