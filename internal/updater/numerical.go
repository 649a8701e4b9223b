package updater

import "math"

// Operation is what a Numerical updater does to a value.
type Operation string

const (
	OpNone             Operation = "None"
	OpOffset           Operation = "Offset"
	OpOffsetPercentage Operation = "OffsetPercentage"
	OpGain             Operation = "Gain"
	OpSet              Operation = "Set"
)

// NumericalParameters are shared by every Operation. Increment is used on
// success, Decrement on failure.
type NumericalParameters struct {
	InitialValue float64 `yaml:"initial_value" json:"initial_value"`
	Increment    float64 `yaml:"increment" json:"increment"`
	Decrement    float64 `yaml:"decrement" json:"decrement"`
	Minimum      float64 `yaml:"minimum" json:"minimum"`
	Maximum      float64 `yaml:"maximum" json:"maximum"`
}

// Numerical adjusts a task parameter after each trial outcome, e.g. a stop
// duration that grows after rewarded stops. Unlike Function it is deterministic.
type Numerical struct {
	Operation  Operation           `yaml:"operation" json:"operation"`
	Parameters NumericalParameters `yaml:"parameters" json:"parameters"`
}

// Validate rejects unknown operations and inverted bounds.
func (n Numerical) Validate() error {
	switch n.Operation {
	case OpNone, "":
		return nil
	case OpOffset, OpOffsetPercentage, OpGain, OpSet:
	default:
		return invalidf("unknown numerical operation %q", n.Operation)
	}
	p := n.Parameters
	if !finite(p.InitialValue, p.Increment, p.Decrement, p.Minimum, p.Maximum) {
		return invalidf("numerical parameters must be finite")
	}
	if p.Minimum > p.Maximum {
		return invalidf("numerical minimum %g > maximum %g", p.Minimum, p.Maximum)
	}
	return nil
}

// Apply returns the updated value. increment selects Increment over Decrement.
// OpNone returns value untouched; every other operation clamps into [Minimum, Maximum].
func (n Numerical) Apply(value float64, increment bool) (float64, error) {
	if err := n.Validate(); err != nil {
		return 0, err
	}
	p := n.Parameters
	step := p.Decrement
	if increment {
		step = p.Increment
	}

	var out float64
	switch n.Operation {
	case OpNone, "":
		return value, nil
	case OpOffset:
		out = value + step
	case OpOffsetPercentage:
		out = value + value*step
	case OpGain:
		out = value * step
	case OpSet:
		out = p.InitialValue
	}
	return math.Max(math.Min(out, p.Maximum), p.Minimum), nil
}
