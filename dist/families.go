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

// Built-in family names.
const (
	FamilyBernoulli   = "bernoulli"
	FamilyBeta        = "beta"
	FamilyNormal      = "normal"
	FamilyUniform     = "uniform"
	FamilyGamma       = "gamma"
	FamilyExponential = "exponential"
	FamilyPoisson     = "poisson"
	FamilyCategorical = "categorical"
	FamilyDirichlet   = "dirichlet"
)

// builtinFamilies returns one instance of every built-in family.
func builtinFamilies() []Family {
	return []Family{
		bernoulli{},
		beta{},
		normal{},
		uniform{},
		gamma{},
		exponential{},
		poisson{},
		categorical{},
		dirichlet{},
	}
}

// scalarParam extracts a named scalar parameter and rejects NaN and
// infinite values.
func scalarParam(family string, params map[string]Value, name string) (float64, error) {
	v, ok := params[name]
	if !ok {
		return 0, paramErr(family, name, "missing")
	}
	f, err := v.Float()
	if err != nil {
		return 0, paramErr(family, name, "expected a scalar: %v", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, paramErr(family, name, "must be finite, got %v", f)
	}
	return f, nil
}

// vectorParam extracts a named vector parameter with finite components.
func vectorParam(family string, params map[string]Value, name string) ([]float64, error) {
	v, ok := params[name]
	if !ok {
		return nil, paramErr(family, name, "missing")
	}
	if v.IsScalar() {
		return nil, paramErr(family, name, "expected a vector, got a scalar")
	}
	fs := v.Floats()
	if len(fs) == 0 {
		return nil, paramErr(family, name, "must not be empty")
	}
	for i, f := range fs {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, paramErr(family, name, "component %d must be finite, got %v", i, f)
		}
	}
	return fs, nil
}

// scalarPoint extracts a scalar sample point for scoring.
func scalarPoint(family string, x Value) (float64, error) {
	f, err := x.Float()
	if err != nil {
		return 0, pointErr(family, "expected a scalar point: %v", err)
	}
	if math.IsNaN(f) {
		return 0, pointErr(family, "point is NaN")
	}
	return f, nil
}

// isCount reports whether f is a nonnegative integer.
func isCount(f float64) bool {
	return f >= 0 && f == math.Trunc(f)
}

// probSumTolerance bounds the allowed drift of probability and simplex
// vectors from total mass 1.
const probSumTolerance = 1e-6

// bernoulli is the Bernoulli family over {0, 1}.
type bernoulli struct{}

func (bernoulli) Name() string { return FamilyBernoulli }

func (bernoulli) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "p", Shape: ShapeScalar, Doc: "success probability, in [0, 1]"},
	}
}

func (bernoulli) Sample(params map[string]Value, rng *rand.Rand) (Value, error) {
	p, err := scalarParam(FamilyBernoulli, params, "p")
	if err != nil {
		return Value{}, err
	}
	if p < 0 || p > 1 {
		return Value{}, paramErr(FamilyBernoulli, "p", "must be in [0, 1], got %v", p)
	}
	if rng.Float64() < p {
		return Scalar(1), nil
	}
	return Scalar(0), nil
}

func (bernoulli) LogProb(params map[string]Value, x Value) (float64, error) {
	p, err := scalarParam(FamilyBernoulli, params, "p")
	if err != nil {
		return 0, err
	}
	if p < 0 || p > 1 {
		return 0, paramErr(FamilyBernoulli, "p", "must be in [0, 1], got %v", p)
	}
	f, err := scalarPoint(FamilyBernoulli, x)
	if err != nil {
		return 0, err
	}
	switch f {
	case 1:
		return math.Log(p), nil
	case 0:
		return math.Log1p(-p), nil
	default:
		return math.Inf(-1), nil
	}
}

// beta is the Beta family on (0, 1).
type beta struct{}

func (beta) Name() string { return FamilyBeta }

func (beta) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "a", Shape: ShapeScalar, Doc: "first concentration, must be > 0"},
		{Name: "b", Shape: ShapeScalar, Doc: "second concentration, must be > 0"},
	}
}

func (beta) Sample(params map[string]Value, rng *rand.Rand) (Value, error) {
	a, err := scalarParam(FamilyBeta, params, "a")
	if err != nil {
		return Value{}, err
	}
	b, err := scalarParam(FamilyBeta, params, "b")
	if err != nil {
		return Value{}, err
	}
	if a <= 0 {
		return Value{}, paramErr(FamilyBeta, "a", "must be > 0, got %v", a)
	}
	if b <= 0 {
		return Value{}, paramErr(FamilyBeta, "b", "must be > 0, got %v", b)
	}
	for {
		ga := sampleUnitGamma(rng, a)
		gb := sampleUnitGamma(rng, b)
		if total := ga + gb; total > 0 {
			return Scalar(ga / total), nil
		}
	}
}

func (beta) LogProb(params map[string]Value, x Value) (float64, error) {
	a, err := scalarParam(FamilyBeta, params, "a")
	if err != nil {
		return 0, err
	}
	b, err := scalarParam(FamilyBeta, params, "b")
	if err != nil {
		return 0, err
	}
	if a <= 0 {
		return 0, paramErr(FamilyBeta, "a", "must be > 0, got %v", a)
	}
	if b <= 0 {
		return 0, paramErr(FamilyBeta, "b", "must be > 0, got %v", b)
	}
	f, err := scalarPoint(FamilyBeta, x)
	if err != nil {
		return 0, err
	}
	if f <= 0 || f >= 1 {
		return math.Inf(-1), nil
	}
	return (a-1)*math.Log(f) + (b-1)*math.Log1p(-f) - lnBeta(a, b), nil
}

// normal is the Gaussian family.
type normal struct{}

func (normal) Name() string { return FamilyNormal }

func (normal) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "mu", Shape: ShapeScalar, Doc: "mean"},
		{Name: "sigma", Shape: ShapeScalar, Doc: "standard deviation, must be > 0"},
	}
}

func (normal) Sample(params map[string]Value, rng *rand.Rand) (Value, error) {
	mu, sigma, err := normalParams(params)
	if err != nil {
		return Value{}, err
	}
	return Scalar(mu + sigma*rng.NormFloat64()), nil
}

func (normal) LogProb(params map[string]Value, x Value) (float64, error) {
	mu, sigma, err := normalParams(params)
	if err != nil {
		return 0, err
	}
	f, err := scalarPoint(FamilyNormal, x)
	if err != nil {
		return 0, err
	}
	z := (f - mu) / sigma
	return -0.5*z*z - math.Log(sigma) - 0.5*log2Pi, nil
}

func normalParams(params map[string]Value) (mu, sigma float64, err error) {
	mu, err = scalarParam(FamilyNormal, params, "mu")
	if err != nil {
		return 0, 0, err
	}
	sigma, err = scalarParam(FamilyNormal, params, "sigma")
	if err != nil {
		return 0, 0, err
	}
	if sigma <= 0 {
		return 0, 0, paramErr(FamilyNormal, "sigma", "must be > 0, got %v", sigma)
	}
	return mu, sigma, nil
}

// uniform is the continuous uniform family on [a, b].
type uniform struct{}

func (uniform) Name() string { return FamilyUniform }

func (uniform) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "a", Shape: ShapeScalar, Doc: "lower bound"},
		{Name: "b", Shape: ShapeScalar, Doc: "upper bound, must be > a"},
	}
}

func (uniform) Sample(params map[string]Value, rng *rand.Rand) (Value, error) {
	a, b, err := uniformParams(params)
	if err != nil {
		return Value{}, err
	}
	return Scalar(a + (b-a)*rng.Float64()), nil
}

func (uniform) LogProb(params map[string]Value, x Value) (float64, error) {
	a, b, err := uniformParams(params)
	if err != nil {
		return 0, err
	}
	f, err := scalarPoint(FamilyUniform, x)
	if err != nil {
		return 0, err
	}
	if f < a || f > b {
		return math.Inf(-1), nil
	}
	return -math.Log(b - a), nil
}

func uniformParams(params map[string]Value) (a, b float64, err error) {
	a, err = scalarParam(FamilyUniform, params, "a")
	if err != nil {
		return 0, 0, err
	}
	b, err = scalarParam(FamilyUniform, params, "b")
	if err != nil {
		return 0, 0, err
	}
	if b <= a {
		return 0, 0, paramErr(FamilyUniform, "b", "must be > a (%v), got %v", a, b)
	}
	return a, b, nil
}

// gamma is the Gamma family in shape/rate form.
type gamma struct{}

func (gamma) Name() string { return FamilyGamma }

func (gamma) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "alpha", Shape: ShapeScalar, Doc: "shape, must be > 0"},
		{Name: "beta", Shape: ShapeScalar, Doc: "rate, must be > 0"},
	}
}

func (gamma) Sample(params map[string]Value, rng *rand.Rand) (Value, error) {
	alpha, rate, err := gammaParams(params)
	if err != nil {
		return Value{}, err
	}
	return Scalar(sampleUnitGamma(rng, alpha) / rate), nil
}

func (gamma) LogProb(params map[string]Value, x Value) (float64, error) {
	alpha, rate, err := gammaParams(params)
	if err != nil {
		return 0, err
	}
	f, err := scalarPoint(FamilyGamma, x)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return math.Inf(-1), nil
	}
	return alpha*math.Log(rate) + (alpha-1)*math.Log(f) - rate*f - lnGamma(alpha), nil
}

func gammaParams(params map[string]Value) (alpha, rate float64, err error) {
	alpha, err = scalarParam(FamilyGamma, params, "alpha")
	if err != nil {
		return 0, 0, err
	}
	rate, err = scalarParam(FamilyGamma, params, "beta")
	if err != nil {
		return 0, 0, err
	}
	if alpha <= 0 {
		return 0, 0, paramErr(FamilyGamma, "alpha", "must be > 0, got %v", alpha)
	}
	if rate <= 0 {
		return 0, 0, paramErr(FamilyGamma, "beta", "must be > 0, got %v", rate)
	}
	return alpha, rate, nil
}

// exponential is the exponential family with rate lam.
type exponential struct{}

func (exponential) Name() string { return FamilyExponential }

func (exponential) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "lam", Shape: ShapeScalar, Doc: "rate, must be > 0"},
	}
}

func (exponential) Sample(params map[string]Value, rng *rand.Rand) (Value, error) {
	lam, err := scalarParam(FamilyExponential, params, "lam")
	if err != nil {
		return Value{}, err
	}
	if lam <= 0 {
		return Value{}, paramErr(FamilyExponential, "lam", "must be > 0, got %v", lam)
	}
	return Scalar(rng.ExpFloat64() / lam), nil
}

func (exponential) LogProb(params map[string]Value, x Value) (float64, error) {
	lam, err := scalarParam(FamilyExponential, params, "lam")
	if err != nil {
		return 0, err
	}
	if lam <= 0 {
		return 0, paramErr(FamilyExponential, "lam", "must be > 0, got %v", lam)
	}
	f, err := scalarPoint(FamilyExponential, x)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return math.Inf(-1), nil
	}
	return math.Log(lam) - lam*f, nil
}

// poisson is the Poisson family over counts.
type poisson struct{}

func (poisson) Name() string { return FamilyPoisson }

func (poisson) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "lam", Shape: ShapeScalar, Doc: "mean, must be >= 0"},
	}
}

func (poisson) Sample(params map[string]Value, rng *rand.Rand) (Value, error) {
	lam, err := scalarParam(FamilyPoisson, params, "lam")
	if err != nil {
		return Value{}, err
	}
	if lam < 0 {
		return Value{}, paramErr(FamilyPoisson, "lam", "must be >= 0, got %v", lam)
	}
	return Scalar(samplePoissonCount(rng, lam)), nil
}

func (poisson) LogProb(params map[string]Value, x Value) (float64, error) {
	lam, err := scalarParam(FamilyPoisson, params, "lam")
	if err != nil {
		return 0, err
	}
	if lam < 0 {
		return 0, paramErr(FamilyPoisson, "lam", "must be >= 0, got %v", lam)
	}
	f, err := scalarPoint(FamilyPoisson, x)
	if err != nil {
		return 0, err
	}
	if !isCount(f) {
		return math.Inf(-1), nil
	}
	if lam == 0 {
		if f == 0 {
			return 0, nil
		}
		return math.Inf(-1), nil
	}
	return f*math.Log(lam) - lam - lnGamma(f+1), nil
}

// categorical draws an index proportional to a probability vector.
type categorical struct{}

func (categorical) Name() string { return FamilyCategorical }

func (categorical) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "probs", Shape: ShapeVector, Doc: "category probabilities, nonnegative, summing to 1"},
	}
}

func (categorical) Sample(params map[string]Value, rng *rand.Rand) (Value, error) {
	probs, err := categoricalProbs(params)
	if err != nil {
		return Value{}, err
	}
	return Scalar(float64(sampleCategoricalIndex(rng, probs))), nil
}

func (categorical) LogProb(params map[string]Value, x Value) (float64, error) {
	probs, err := categoricalProbs(params)
	if err != nil {
		return 0, err
	}
	f, err := scalarPoint(FamilyCategorical, x)
	if err != nil {
		return 0, err
	}
	if !isCount(f) || int(f) >= len(probs) {
		return math.Inf(-1), nil
	}
	return math.Log(probs[int(f)]), nil
}

func categoricalProbs(params map[string]Value) ([]float64, error) {
	probs, err := vectorParam(FamilyCategorical, params, "probs")
	if err != nil {
		return nil, err
	}
	total := 0.0
	for i, p := range probs {
		if p < 0 {
			return nil, paramErr(FamilyCategorical, "probs", "component %d must be >= 0, got %v", i, p)
		}
		total += p
	}
	if math.Abs(total-1) > probSumTolerance {
		return nil, paramErr(FamilyCategorical, "probs", "must sum to 1, got %v", total)
	}
	return probs, nil
}

// dirichlet draws probability vectors on the simplex.
type dirichlet struct{}

func (dirichlet) Name() string { return FamilyDirichlet }

func (dirichlet) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "alpha", Shape: ShapeVector, Doc: "concentrations, each > 0, length >= 2"},
	}
}

func (dirichlet) Sample(params map[string]Value, rng *rand.Rand) (Value, error) {
	alpha, err := dirichletAlpha(params)
	if err != nil {
		return Value{}, err
	}
	draws := make([]float64, len(alpha))
	for {
		total := 0.0
		for i, a := range alpha {
			draws[i] = sampleUnitGamma(rng, a)
			total += draws[i]
		}
		if total == 0 {
			continue
		}
		for i := range draws {
			draws[i] /= total
		}
		return Vector(draws...), nil
	}
}

func (dirichlet) LogProb(params map[string]Value, x Value) (float64, error) {
	alpha, err := dirichletAlpha(params)
	if err != nil {
		return 0, err
	}
	if x.IsScalar() {
		return 0, pointErr(FamilyDirichlet, "expected a vector point, got a scalar")
	}
	point := x.Floats()
	if len(point) != len(alpha) {
		return 0, pointErr(FamilyDirichlet, "point length %d does not match alpha length %d", len(point), len(alpha))
	}
	total := 0.0
	for _, p := range point {
		if p <= 0 || p >= 1 {
			return math.Inf(-1), nil
		}
		total += p
	}
	if math.Abs(total-1) > probSumTolerance {
		return math.Inf(-1), nil
	}
	lp := lnGamma(sum(alpha))
	for i, a := range alpha {
		lp += (a-1)*math.Log(point[i]) - lnGamma(a)
	}
	return lp, nil
}

func dirichletAlpha(params map[string]Value) ([]float64, error) {
	alpha, err := vectorParam(FamilyDirichlet, params, "alpha")
	if err != nil {
		return nil, err
	}
	if len(alpha) < 2 {
		return nil, paramErr(FamilyDirichlet, "alpha", "must have at least 2 components, got %d", len(alpha))
	}
	for i, a := range alpha {
		if a <= 0 {
			return nil, paramErr(FamilyDirichlet, "alpha", "component %d must be > 0, got %v", i, a)
		}
	}
	return alpha, nil
}

func sum(fs []float64) float64 {
	total := 0.0
	for _, f := range fs {
		total += f
	}
	return total
}
