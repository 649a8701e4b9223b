package patch

import (
	"fmt"

	"github.com/xtding233/foraging-backend/internal/distribution"
	"github.com/xtding233/foraging-backend/internal/updater"
)

// State is one patch's reward state. It is a value: every change yields a new State.
type State struct {
	PatchID     int     `json:"patch_id" yaml:"patch_id"`
	Amount      float64 `json:"amount" yaml:"amount"`           // reward size per delivery
	Probability float64 `json:"probability" yaml:"probability"` // reward probability per harvest
	Available   float64 `json:"available" yaml:"available"`     // reward left in the patch
}

func (s State) String() string {
	return fmt.Sprintf("PatchState(PatchId: %d, Amount: %g, Probability: %g, Available: %g)",
		s.PatchID, s.Amount, s.Probability, s.Available)
}

// RewardSpec seeds a patch: each field is drawn once.
type RewardSpec struct {
	Amount      distribution.Distribution
	Probability distribution.Distribution
	Available   distribution.Distribution
}

// Field names a State field.
type Field string

const (
	FieldAmount      Field = "amount"
	FieldProbability Field = "probability"
	FieldAvailable   Field = "available"
)

func (f Field) get(s State) (float64, bool) {
	switch f {
	case FieldAmount:
		return s.Amount, true
	case FieldProbability:
		return s.Probability, true
	case FieldAvailable:
		return s.Available, true
	}
	return 0, false
}

func (f Field) set(s *State, v float64) {
	switch f {
	case FieldAmount:
		s.Amount = v
	case FieldProbability:
		s.Probability = v
	case FieldAvailable:
		s.Available = v
	}
}

// HarvestRule adjusts one field after every harvest attempt: Increment on a
// reward, Decrement on a miss.
type HarvestRule struct {
	Field   Field
	Updater updater.Numerical
}

func (h HarvestRule) validate() error {
	if _, ok := h.Field.get(State{}); !ok {
		return fmt.Errorf("%w: unknown field %q", updater.ErrInvalidSpecification, h.Field)
	}
	return h.Updater.Validate()
}

func (h HarvestRule) apply(s State, rewarded bool) (State, error) {
	v, _ := h.Field.get(s)
	next, err := h.Updater.Apply(v, rewarded)
	if err != nil {
		return State{}, err
	}
	h.Field.set(&s, next)
	return s, nil
}

// Rules are the per-field update functions applied on every tick.
// A nil field is left unchanged. OnHarvest, if set, runs after each harvest
// attempt.
type Rules struct {
	Amount      updater.Function
	Probability updater.Function
	Available   updater.Function
	OnHarvest   *HarvestRule
}

// Validate checks every non-nil rule.
func (r Rules) Validate() error {
	if err := updater.Validate(r.Amount); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	if err := updater.Validate(r.Probability); err != nil {
		return fmt.Errorf("probability: %w", err)
	}
	if err := updater.Validate(r.Available); err != nil {
		return fmt.Errorf("available: %w", err)
	}
	if r.OnHarvest != nil {
		if err := r.OnHarvest.validate(); err != nil {
			return fmt.Errorf("on_harvest: %w", err)
		}
	}
	return nil
}

// Start replaces the seeded value of every field whose rule is a CTCM with a
// first-state draw. Fields are drawn in amount, probability, available order.
func (r Rules) Start(s State, rng distribution.RandomSource) (State, error) {
	for _, f := range []struct {
		field Field
		fn    updater.Function
	}{
		{FieldAmount, r.Amount},
		{FieldProbability, r.Probability},
		{FieldAvailable, r.Available},
	} {
		c, ok := f.fn.(updater.CTCM)
		if !ok || !c.DrawsFirstState() {
			continue
		}
		v, err := c.FirstValue(rng)
		if err != nil {
			return State{}, fmt.Errorf("%s first state: %w", f.field, err)
		}
		f.field.set(&s, v)
	}
	return s, nil
}

// FromRewardSpec draws amount, probability and available in that order.
func FromRewardSpec(id int, spec RewardSpec, rng distribution.RandomSource) (State, error) {
	amount, err := distribution.Sample(spec.Amount, rng)
	if err != nil {
		return State{}, fmt.Errorf("patch %d amount: %w", id, err)
	}
	probability, err := distribution.Sample(spec.Probability, rng)
	if err != nil {
		return State{}, fmt.Errorf("patch %d probability: %w", id, err)
	}
	available, err := distribution.Sample(spec.Available, rng)
	if err != nil {
		return State{}, fmt.Errorf("patch %d available: %w", id, err)
	}
	return State{PatchID: id, Amount: amount, Probability: probability, Available: available}, nil
}

// Advance returns the state after one tick under rules. s is not modified.
func (s State) Advance(tick float64, rules Rules, rng distribution.RandomSource) (State, error) {
	amount, err := updater.Invoke(rules.Amount, s.Amount, tick, rng)
	if err != nil {
		return State{}, fmt.Errorf("amount: %w", err)
	}
	probability, err := updater.Invoke(rules.Probability, s.Probability, tick, rng)
	if err != nil {
		return State{}, fmt.Errorf("probability: %w", err)
	}
	available, err := updater.Invoke(rules.Available, s.Available, tick, rng)
	if err != nil {
		return State{}, fmt.Errorf("available: %w", err)
	}
	return State{PatchID: s.PatchID, Amount: amount, Probability: probability, Available: available}, nil
}
