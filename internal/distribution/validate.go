package distribution

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidSpecification = errors.New("invalid distribution specification")
	ErrSamplingHeuristic    = errors.New("truncation heuristic failed; check truncation parameters")
	ErrNoRandomSource       = errors.New("random source is required")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSpecification, fmt.Sprintf(format, args...))
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func validateProb(p float64) error {
	if !finite(p) || p < 0 || p > 1 {
		return invalidf("probability %v must be in [0,1]", p)
	}
	return nil
}

// Validate checks the truncation bounds and mode. Min must be strictly below Max.
func (t *Truncation) Validate() error {
	if t == nil {
		return nil
	}
	if !finite(t.Min, t.Max) {
		return invalidf("truncation bounds must be finite")
	}
	if t.Min >= t.Max {
		return invalidf("truncation min %v must be lower than max %v", t.Min, t.Max)
	}
	switch t.Mode {
	case "", TruncateClamp, TruncateExclude:
	default:
		return invalidf("unknown truncation mode %q", t.Mode)
	}
	return nil
}

// Validate checks a scaling block for non-finite coefficients.
func (s *Scaling) Validate() error {
	if s == nil {
		return nil
	}
	if !finite(s.Scale, s.Offset) {
		return invalidf("scaling coefficients must be finite")
	}
	return nil
}

func (m Modifiers) validate() error {
	if err := m.Scaling.Validate(); err != nil {
		return err
	}
	return m.Truncation.Validate()
}

// Validate reports whether d can be sampled. Sample calls it on every draw,
// loaders call it once up front to fail early.
func Validate(d Distribution) error {
	switch d := d.(type) {
	case nil:
		return invalidf("distribution is nil")
	case Scalar:
		if !finite(d.Value) {
			return invalidf("scalar value must be finite")
		}
		return nil
	case PDF:
		return d.validate()
	case Normal:
		if !finite(d.Mean, d.Std) || d.Std < 0 {
			return invalidf("normal requires finite mean and std >= 0")
		}
		return d.Modifiers.validate()
	case Exponential:
		if !finite(d.Rate) || d.Rate <= 0 {
			return invalidf("exponential rate %v must be > 0", d.Rate)
		}
		return d.Modifiers.validate()
	case LogNormal:
		if !finite(d.Mean, d.Std) || d.Std < 0 {
			return invalidf("lognormal requires finite mean and std >= 0")
		}
		return d.Modifiers.validate()
	case Gamma:
		if !finite(d.Shape, d.Rate) || d.Shape <= 0 || d.Rate <= 0 {
			return invalidf("gamma shape and rate must be > 0")
		}
		return d.Modifiers.validate()
	case Beta:
		if !finite(d.Alpha, d.Beta) || d.Alpha <= 0 || d.Beta <= 0 {
			return invalidf("beta alpha and beta must be > 0")
		}
		return d.Modifiers.validate()
	case Uniform:
		if !finite(d.Min, d.Max) || d.Min > d.Max {
			return invalidf("uniform requires finite min <= max")
		}
		return d.Modifiers.validate()
	case Binomial:
		if err := validateProb(d.P); err != nil {
			return err
		}
		if d.N < 0 {
			return invalidf("binomial n %d must be >= 0", d.N)
		}
		return d.Modifiers.validate()
	case Poisson:
		if !finite(d.Rate) || d.Rate <= 0 {
			return invalidf("poisson rate %v must be > 0", d.Rate)
		}
		return d.Modifiers.validate()
	default:
		return invalidf("unsupported distribution %T", d)
	}
}

func (p PDF) validate() error {
	if len(p.index) != len(p.pdf) {
		return invalidf("pdf and index must have the same length (%d != %d)", len(p.pdf), len(p.index))
	}
	if len(p.pdf) == 0 {
		return invalidf("pdf is empty")
	}
	var sum float64
	for i, w := range p.pdf {
		if !finite(w) || w < 0 {
			return invalidf("pdf[%d] = %v must be finite and >= 0", i, w)
		}
		sum += w
	}
	if sum <= 0 {
		return invalidf("pdf weights sum to zero")
	}
	return nil
}
