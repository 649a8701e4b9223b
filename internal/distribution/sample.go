package distribution

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"
)

// ExcludeBatchSize is the number of draws taken per TruncateExclude sample.
const ExcludeBatchSize = 1000

type rander interface {
	Rand() float64
}

// constant stands in for degenerate parametrisations distuv does not handle.
type constant float64

func (c constant) Rand() float64 { return float64(c) }

// Sample draws one value from d using rng.
// Scalar returns its value unchanged. PDF walks its normalised cumulative weights.
// Every other family is drawn through distuv, scaled, then truncated.
func Sample(d Distribution, rng RandomSource) (float64, error) {
	if rng == nil {
		return 0, ErrNoRandomSource
	}
	if err := Validate(d); err != nil {
		return 0, err
	}
	switch d := d.(type) {
	case Scalar:
		return d.Value, nil
	case PDF:
		return d.sample(rng), nil
	}
	src, mods := sampler(d, rng)
	return draw(src, mods)
}

// sampler maps a validated parametric spec to its distuv sampler.
func sampler(d Distribution, rng RandomSource) (rander, Modifiers) {
	switch d := d.(type) {
	case Normal:
		return distuv.Normal{Mu: d.Mean, Sigma: d.Std, Src: rng}, d.Modifiers
	case Exponential:
		return distuv.Exponential{Rate: d.Rate, Src: rng}, d.Modifiers
	case LogNormal:
		return distuv.LogNormal{Mu: d.Mean, Sigma: d.Std, Src: rng}, d.Modifiers
	case Gamma:
		return distuv.Gamma{Alpha: d.Shape, Beta: d.Rate, Src: rng}, d.Modifiers
	case Beta:
		return distuv.Beta{Alpha: d.Alpha, Beta: d.Beta, Src: rng}, d.Modifiers
	case Uniform:
		if d.Min == d.Max {
			return constant(d.Min), d.Modifiers
		}
		return distuv.Uniform{Min: d.Min, Max: d.Max, Src: rng}, d.Modifiers
	case Binomial:
		switch {
		case d.N == 0 || d.P == 0:
			return constant(0), d.Modifiers
		case d.P == 1:
			return constant(float64(d.N)), d.Modifiers
		}
		return distuv.Binomial{N: float64(d.N), P: d.P, Src: rng}, d.Modifiers
	case Poisson:
		return distuv.Poisson{Lambda: d.Rate, Src: rng}, d.Modifiers
	}
	panic(fmt.Sprintf("distribution: no sampler for %T", d))
}

func draw(src rander, m Modifiers) (float64, error) {
	t := m.Truncation
	if t == nil {
		return m.Scaling.Apply(src.Rand()), nil
	}
	if t.Mode == TruncateClamp {
		return clamp(m.Scaling.Apply(src.Rand()), t.Min, t.Max), nil
	}
	batch := make([]float64, ExcludeBatchSize)
	for i := range batch {
		batch[i] = m.Scaling.Apply(src.Rand())
	}
	return firstWithin(batch, t)
}

// firstWithin returns the first sample inside [t.Min, t.Max].
// With no survivor it falls back to the bound the batch mean lies beyond;
// a mean inside the range means the parameters cannot be satisfied.
func firstWithin(samples []float64, t *Truncation) (float64, error) {
	var sum float64
	for _, x := range samples {
		sum += x
	}
	mean := sum / float64(len(samples))

	for _, x := range samples {
		if x >= t.Min && x <= t.Max {
			return x, nil
		}
	}
	switch {
	case mean <= t.Min:
		return t.Min, nil
	case mean >= t.Max:
		return t.Max, nil
	}
	return 0, fmt.Errorf("%w: no sample in [%v, %v], batch mean %v", ErrSamplingHeuristic, t.Min, t.Max, mean)
}

func (p PDF) sample(rng RandomSource) float64 {
	var total float64
	for _, w := range p.pdf {
		total += w
	}
	coin := rng.Float64()
	var cum float64
	for i, w := range p.pdf {
		cum += w / total
		if coin < cum {
			return p.index[i]
		}
	}
	// rounding left some mass unconsumed
	return p.index[len(p.index)-1]
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Bernoulli reports a hit with probability p.
// p <= 0 never hits, p >= 1 always hits, otherwise rng.Float64() < p.
func Bernoulli(p float64, rng RandomSource) (bool, error) {
	if err := validateProb(p); err != nil {
		return false, err
	}
	if p <= 0 {
		return false, nil
	}
	if p >= 1 {
		return true, nil
	}
	if rng == nil {
		return false, ErrNoRandomSource
	}
	return rng.Float64() < p, nil
}
