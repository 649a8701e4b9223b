// types.go
package config

import "github.com/xtding233/foraging-backend/internal/updater"

// RawConfig is a task file as written on disk.
type RawConfig struct {
	Version  string              `yaml:"version"`
	Seed     *uint64             `yaml:"seed,omitempty"`
	Tick     *TickConfig         `yaml:"tick,omitempty"`
	Defaults *PatchConfig        `yaml:"defaults,omitempty"`
	Patches  map[int]PatchConfig `yaml:"patches" validate:"omitempty,dive,keys,gte=0,endkeys"`
	Notes    string              `yaml:"notes,omitempty"`
}

// TickConfig drives offline runs: Steps ticks of Delta each.
type TickConfig struct {
	Delta *float64 `yaml:"delta" validate:"omitempty,gt=0"`
	Steps *int     `yaml:"steps" validate:"omitempty,gte=1"`
}

// PatchConfig seeds one patch and names the rules that evolve it.
// Fields left empty are taken from the task's defaults block.
type PatchConfig struct {
	Label  string        `yaml:"label,omitempty"`
	Reward *RewardConfig `yaml:"reward,omitempty"`
	Rules  *RulesConfig  `yaml:"rules,omitempty"`
}

type RewardConfig struct {
	Amount      *DistributionConfig `yaml:"amount" validate:"required"`
	Probability *DistributionConfig `yaml:"probability" validate:"required"`
	Available   *DistributionConfig `yaml:"available" validate:"required"`
}

type RulesConfig struct {
	Amount      *FunctionConfig    `yaml:"amount,omitempty"`
	Probability *FunctionConfig    `yaml:"probability,omitempty"`
	Available   *FunctionConfig    `yaml:"available,omitempty"`
	OnHarvest   *HarvestRuleConfig `yaml:"on_harvest,omitempty"`
}

// HarvestRuleConfig adjusts one field after every harvest attempt.
type HarvestRuleConfig struct {
	Field      string                      `yaml:"field" validate:"required,oneof=amount probability available"`
	Operation  string                      `yaml:"operation" validate:"required,oneof=None Offset OffsetPercentage Gain Set"`
	Parameters updater.NumericalParameters `yaml:"parameters"`
}

// DistributionConfig is the flat form of every distribution family.
// Only the parameters of Family are read.
type DistributionConfig struct {
	Family string   `yaml:"family" validate:"required,oneof=Scalar Normal Exponential LogNormal Gamma Beta Uniform Binomial Poisson Pdf"`
	Value  *float64 `yaml:"value,omitempty"`
	Mean   *float64 `yaml:"mean,omitempty"`
	Std    *float64 `yaml:"std,omitempty"`
	Rate   *float64 `yaml:"rate,omitempty"`
	Shape  *float64 `yaml:"shape,omitempty"`
	Alpha  *float64 `yaml:"alpha,omitempty"`
	Beta   *float64 `yaml:"beta,omitempty"`
	Min    *float64 `yaml:"min,omitempty"`
	Max    *float64 `yaml:"max,omitempty"`
	P      *float64 `yaml:"p,omitempty"`
	N      *int     `yaml:"n,omitempty"`

	Index []float64 `yaml:"index,omitempty"`
	Pdf   []float64 `yaml:"pdf,omitempty"`

	Scaling    *ScalingConfig    `yaml:"scaling,omitempty"`
	Truncation *TruncationConfig `yaml:"truncation,omitempty"`
}

// ScalingConfig defaults to scale 1, offset 0.
type ScalingConfig struct {
	Scale  *float64 `yaml:"scale,omitempty"`
	Offset *float64 `yaml:"offset,omitempty"`
}

type TruncationConfig struct {
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
	Mode string  `yaml:"mode,omitempty" validate:"omitempty,oneof=clamp exclude"`
}

// FunctionConfig is the flat form of every update function kind.
type FunctionConfig struct {
	Kind string `yaml:"kind" validate:"required,oneof=SetValue ClampedRate ClampedMultiplicativeRate TimeIndexedLookup ValueIndexedLookup CTCM RewardFunction"`

	// SetValue
	Value *DistributionConfig `yaml:"value,omitempty"`

	// ClampedRate, ClampedMultiplicativeRate
	Rate *DistributionConfig `yaml:"rate,omitempty"`

	// ClampedRate, ClampedMultiplicativeRate (optional), CTCM (required)
	Minimum *float64 `yaml:"minimum,omitempty"`
	Maximum *float64 `yaml:"maximum,omitempty"`

	// lookups
	Keys   []float64 `yaml:"keys,omitempty"`
	Values []float64 `yaml:"values,omitempty"`

	// CTCM: either an explicit matrix or a replenishment chain
	TransitionMatrix [][]float64          `yaml:"transition_matrix,omitempty"`
	NormalizeRows    bool                 `yaml:"normalize_rows,omitempty"`
	Replenishment    *ReplenishmentConfig `yaml:"replenishment,omitempty"`
	Rho              *float64             `yaml:"rho,omitempty"`

	// CTCM: draw each patch's starting level, from initial_state if given
	DrawFirstState bool      `yaml:"draw_first_state,omitempty"`
	InitialState   []float64 `yaml:"initial_state,omitempty"`

	// RewardFunction
	Curve *RewardFunctionConfig `yaml:"function,omitempty"`
	Input string                `yaml:"input,omitempty" validate:"omitempty,oneof=value tick"`
	Clamp *bool                 `yaml:"clamp,omitempty"`
}

// RewardFunctionConfig is the flat form of every reward function. Omitted
// coefficients take the defaults listed on RewardFunction.
type RewardFunctionConfig struct {
	FunctionType string   `yaml:"function_type" validate:"required,oneof=PowerFunction LinearFunction ConstantFunction LookupTableFunction"`
	A            *float64 `yaml:"a,omitempty"`
	B            *float64 `yaml:"b,omitempty"`
	C            *float64 `yaml:"c,omitempty"`
	D            *float64 `yaml:"d,omitempty"`
	Minimum      *float64 `yaml:"minimum,omitempty"`
	Maximum      *float64 `yaml:"maximum,omitempty"`
	Value        *float64 `yaml:"value,omitempty"`

	LutKeys   []float64 `yaml:"lut_keys,omitempty"`
	LutValues []float64 `yaml:"lut_values,omitempty"`
}

// ReplenishmentConfig builds a CTCM matrix from a birth chain.
type ReplenishmentConfig struct {
	States int     `yaml:"states" validate:"gte=1"`
	Rate   float64 `yaml:"rate" validate:"gte=0"`
	Period float64 `yaml:"period" validate:"gt=0"`
	Dt     float64 `yaml:"dt" validate:"gte=0"`
}
