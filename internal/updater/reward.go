package updater

import (
	"fmt"
	"math"
)

// RewardFunction maps an input x to a reward field value. The input is
// whatever drives depletion: a harvest count, elapsed ticks, the current value.
type RewardFunction interface {
	Evaluate(x float64) float64
	clamp(v float64) float64
	validate() error
}

// PowerFunction is A * B^(C*x) + D, clamped to [Minimum, Maximum].
type PowerFunction struct {
	A, B, C, D       float64
	Minimum, Maximum float64
}

// LinearFunction is A*x + B, clamped to [Minimum, Maximum].
type LinearFunction struct {
	A, B             float64
	Minimum, Maximum float64
}

// ConstantFunction always returns Value. It has no clamp.
type ConstantFunction struct {
	Value float64
}

// LookupTableFunction interpolates a table, holding the edge values outside
// it. It has no clamp.
type LookupTableFunction struct {
	table *lookupTable
}

// NewLookupTableFunction builds a table function; keys need not be sorted.
func NewLookupTableFunction(keys, values []float64) (LookupTableFunction, error) {
	t, err := newLookupTable(keys, values)
	if err != nil {
		return LookupTableFunction{}, err
	}
	return LookupTableFunction{table: t}, nil
}

func (f PowerFunction) Evaluate(x float64) float64  { return f.A*math.Pow(f.B, f.C*x) + f.D }
func (f LinearFunction) Evaluate(x float64) float64 { return f.A*x + f.B }
func (f ConstantFunction) Evaluate(float64) float64 { return f.Value }

func (f LookupTableFunction) Evaluate(x float64) float64 {
	if f.table == nil {
		return math.NaN()
	}
	return f.table.at(x)
}

func (f PowerFunction) clamp(v float64) float64     { return math.Min(math.Max(v, f.Minimum), f.Maximum) }
func (f LinearFunction) clamp(v float64) float64    { return math.Min(math.Max(v, f.Minimum), f.Maximum) }
func (ConstantFunction) clamp(v float64) float64    { return v }
func (LookupTableFunction) clamp(v float64) float64 { return v }

func (f PowerFunction) validate() error {
	if !finite(f.A, f.B, f.C, f.D, f.Minimum, f.Maximum) {
		return invalidf("power function coefficients must be finite")
	}
	if f.B < 0 {
		return invalidf("power function base %v must not be negative", f.B)
	}
	return checkRange(f.Minimum, f.Maximum)
}

func (f LinearFunction) validate() error {
	if !finite(f.A, f.B, f.Minimum, f.Maximum) {
		return invalidf("linear function coefficients must be finite")
	}
	return checkRange(f.Minimum, f.Maximum)
}

func (f ConstantFunction) validate() error {
	if !finite(f.Value) {
		return invalidf("constant %v is not finite", f.Value)
	}
	return nil
}

func (f LookupTableFunction) validate() error {
	if f.table == nil {
		return invalidf("lookup table not built; use NewLookupTableFunction")
	}
	return nil
}

func checkRange(lo, hi float64) error {
	if lo > hi {
		return invalidf("minimum %v is above maximum %v", lo, hi)
	}
	return nil
}

// ApplyRewardFunction evaluates fn at x and, when clamp is set, clamps the
// result to fn's range. A non-finite input or result is ErrDomain.
func ApplyRewardFunction(fn RewardFunction, x float64, clamp bool) (float64, error) {
	if fn == nil {
		return 0, invalidf("reward function is missing")
	}
	if err := fn.validate(); err != nil {
		return 0, err
	}
	if !finite(x) {
		return 0, fmt.Errorf("%w: reward function input %v is not finite", ErrDomain, x)
	}
	v := fn.Evaluate(x)
	if clamp {
		v = fn.clamp(v)
	}
	if !finite(v) {
		return 0, fmt.Errorf("%w: reward function gives %v at %v", ErrDomain, v, x)
	}
	return v, nil
}

// CurveInput selects what a Curve feeds its reward function.
type CurveInput string

const (
	InputValue CurveInput = "value"
	InputTick  CurveInput = "tick"
)

// Curve is an update rule that replaces the value with Reward evaluated at the
// current value (InputValue, the default) or at the tick.
type Curve struct {
	Reward  RewardFunction
	Input   CurveInput
	NoClamp bool
}

func (c Curve) validate() error {
	switch c.Input {
	case "", InputValue, InputTick:
	default:
		return invalidf("unknown curve input %q", c.Input)
	}
	if c.Reward == nil {
		return invalidf("curve has no reward function")
	}
	return c.Reward.validate()
}

func (c Curve) invoke(value, tick float64) (float64, error) {
	if err := c.validate(); err != nil {
		return 0, err
	}
	x := value
	if c.Input == InputTick {
		x = tick
	}
	return ApplyRewardFunction(c.Reward, x, !c.NoClamp)
}
