package updater

import (
	"errors"
	"fmt"
	"math"

	"github.com/xtding233/foraging-backend/internal/distribution"
)

var (
	// ErrInvalidSpecification is shared with the distribution package so one errors.Is check covers both.
	ErrInvalidSpecification = distribution.ErrInvalidSpecification
	// ErrDomain reports an input outside the function's mathematical domain.
	ErrDomain = errors.New("value outside function domain")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSpecification, fmt.Sprintf(format, args...))
}

// Kind names an update function variant. The string values are the ones used in task files.
type Kind string

const (
	KindSetValue                  Kind = "SetValue"
	KindClampedRate               Kind = "ClampedRate"
	KindClampedMultiplicativeRate Kind = "ClampedMultiplicativeRate"
	KindTimeIndexedLookup         Kind = "TimeIndexedLookup"
	KindValueIndexedLookup        Kind = "ValueIndexedLookup"
	KindCTCM                      Kind = "CTCM"
	KindRewardFunction            Kind = "RewardFunction"
)

// Function is a closed set of patch update rules. Each is a stateless map
// (value, tick, rng) -> value; see Invoke.
type Function interface {
	Kind() Kind
	isFunction()
}

// SetValue replaces the value with a fresh draw.
type SetValue struct {
	Value distribution.Distribution
}

// Bounds are optional clamping limits. A nil side is unbounded.
type Bounds struct {
	Minimum *float64
	Maximum *float64
}

func (b Bounds) validate() error {
	if b.Minimum != nil && b.Maximum != nil && *b.Minimum > *b.Maximum {
		return invalidf("minimum %v is above maximum %v", *b.Minimum, *b.Maximum)
	}
	return nil
}

func (b Bounds) apply(v float64) float64 {
	if b.Maximum != nil && v > *b.Maximum {
		v = *b.Maximum
	}
	if b.Minimum != nil && v < *b.Minimum {
		v = *b.Minimum
	}
	return v
}

// ClampedRate adds rate*tick.
type ClampedRate struct {
	Rate distribution.Distribution
	Bounds
}

// ClampedMultiplicativeRate multiplies by rate^tick.
type ClampedMultiplicativeRate struct {
	Rate distribution.Distribution
	Bounds
}

func (SetValue) Kind() Kind                  { return KindSetValue }
func (ClampedRate) Kind() Kind               { return KindClampedRate }
func (ClampedMultiplicativeRate) Kind() Kind { return KindClampedMultiplicativeRate }
func (TimeIndexedLookup) Kind() Kind         { return KindTimeIndexedLookup }
func (ValueIndexedLookup) Kind() Kind        { return KindValueIndexedLookup }
func (CTCM) Kind() Kind                      { return KindCTCM }
func (Curve) Kind() Kind                     { return KindRewardFunction }

func (SetValue) isFunction()                  {}
func (ClampedRate) isFunction()               {}
func (ClampedMultiplicativeRate) isFunction() {}
func (TimeIndexedLookup) isFunction()         {}
func (ValueIndexedLookup) isFunction()        {}
func (CTCM) isFunction()                      {}
func (Curve) isFunction()                     {}

// Bound is a helper for building Bounds literals.
func Bound(v float64) *float64 { return &v }

// Invoke applies fn to value. A nil fn leaves value unchanged.
// A tick or result that is NaN or infinite is ErrDomain.
func Invoke(fn Function, value, tick float64, rng distribution.RandomSource) (float64, error) {
	if !finite(tick) {
		return 0, fmt.Errorf("%w: tick %v is not finite", ErrDomain, tick)
	}
	if fn == nil {
		return value, nil
	}
	if rng == nil {
		return 0, distribution.ErrNoRandomSource
	}
	out, err := invoke(fn, value, tick, rng)
	if err != nil {
		return 0, err
	}
	if !finite(out) {
		return 0, fmt.Errorf("%w: %s produced %v from %v", ErrDomain, fn.Kind(), out, value)
	}
	return out, nil
}

func invoke(fn Function, value, tick float64, rng distribution.RandomSource) (float64, error) {
	switch fn := fn.(type) {
	case SetValue:
		return distribution.Sample(fn.Value, rng)

	case ClampedRate:
		if err := fn.Bounds.validate(); err != nil {
			return 0, err
		}
		rate, err := distribution.Sample(fn.Rate, rng)
		if err != nil {
			return 0, fmt.Errorf("rate: %w", err)
		}
		return fn.apply(value + rate*tick), nil

	case ClampedMultiplicativeRate:
		if err := fn.Bounds.validate(); err != nil {
			return 0, err
		}
		rate, err := distribution.Sample(fn.Rate, rng)
		if err != nil {
			return 0, fmt.Errorf("rate: %w", err)
		}
		next := value * math.Pow(rate, tick)
		if math.IsNaN(next) {
			return 0, fmt.Errorf("%w: %v * %v^%v is not a number", ErrDomain, value, rate, tick)
		}
		return fn.apply(next), nil

	case TimeIndexedLookup:
		if fn.table == nil {
			return 0, invalidf("lookup table not built; use NewTimeIndexedLookup")
		}
		return fn.table.at(tick), nil

	case ValueIndexedLookup:
		if fn.table == nil {
			return 0, invalidf("lookup table not built; use NewValueIndexedLookup")
		}
		return fn.table.at(value), nil

	case CTCM:
		return fn.invoke(value, rng)

	case Curve:
		return fn.invoke(value, tick)
	}
	return 0, invalidf("unsupported update function %T", fn)
}

// Validate checks fn without drawing from it. Distributions referenced by fn are validated too.
func Validate(fn Function) error {
	switch fn := fn.(type) {
	case nil:
		return nil
	case SetValue:
		return distribution.Validate(fn.Value)
	case ClampedRate:
		if err := fn.Bounds.validate(); err != nil {
			return err
		}
		return distribution.Validate(fn.Rate)
	case ClampedMultiplicativeRate:
		if err := fn.Bounds.validate(); err != nil {
			return err
		}
		return distribution.Validate(fn.Rate)
	case TimeIndexedLookup:
		if fn.table == nil {
			return invalidf("lookup table not built")
		}
		return nil
	case ValueIndexedLookup:
		if fn.table == nil {
			return invalidf("lookup table not built")
		}
		return nil
	case CTCM:
		if fn.matrix == nil {
			return invalidf("ctcm not built; use NewCTCM")
		}
		return nil
	case Curve:
		return fn.validate()
	}
	return invalidf("unsupported update function %T", fn)
}
