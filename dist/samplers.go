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
	"math"
	"math/rand/v2"
)

// openUnit returns a uniform draw in (0, 1], avoiding the exact zero
// that rand.Float64 can produce. Several samplers take logs or
// fractional powers of the draw.
func openUnit(rng *rand.Rand) float64 {
	return 1 - rng.Float64()
}

// sampleUnitGamma draws from Gamma(shape, rate=1) using the
// Marsaglia-Tsang squeeze method. Shapes below 1 are boosted through
// Gamma(shape+1) and scaled by U^(1/shape).
//
// Requires shape > 0; the caller validates.
func sampleUnitGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		return sampleUnitGamma(rng, shape+1) * math.Pow(openUnit(rng), 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := openUnit(rng)
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// samplePoissonCount draws a Poisson(lambda) count by summing unit
// exponential arrivals until they exceed lambda. Exact for all lambda;
// runtime is O(lambda).
func samplePoissonCount(rng *rand.Rand, lambda float64) float64 {
	if lambda <= 0 {
		return 0
	}
	count := 0.0
	sum := rng.ExpFloat64()
	for sum < lambda {
		count++
		sum += rng.ExpFloat64()
	}
	return count
}

// sampleCategoricalIndex draws an index proportional to the given
// weights. The caller validates that weights are nonnegative and have
// positive total mass.
func sampleCategoricalIndex(rng *rand.Rand, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	u := rng.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if u < acc {
			return i
		}
	}
	// Rounding can leave u marginally above the accumulated total.
	return len(weights) - 1
}

// lnGamma returns ln|Gamma(x)|.
func lnGamma(x float64) float64 {
	lg, _ := math.Lgamma(x)
	return lg
}

// lnBeta returns ln B(a, b).
func lnBeta(a, b float64) float64 {
	return lnGamma(a) + lnGamma(b) - lnGamma(a+b)
}

// log2Pi is ln(2*pi), used by the normal log-density.
var log2Pi = math.Log(2 * math.Pi)
