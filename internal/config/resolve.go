// resolve.go
package config

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xtding233/foraging-backend/internal/distribution"
	"github.com/xtding233/foraging-backend/internal/patch"
	"github.com/xtding233/foraging-backend/internal/updater"
)

// Defaults used when a task leaves them out.
const (
	DefaultTickDelta = 0.1
	DefaultTickSteps = 100
)

// Task is a validated task file resolved into engine types.
type Task struct {
	Version string
	Seed    *uint64
	Delta   float64
	Steps   int
	Labels  map[int]string
	Rewards map[int]*patch.RewardSpec
	Rules   map[int]patch.Rules
}

// PatchIDs returns the task's patch ids in ascending order.
func (t Task) PatchIDs() []int {
	ids := make([]int, 0, len(t.Rewards))
	for id := range t.Rewards {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Resolve validates cfg and converts it into a Task. Patches inherit the
// reward and rules of the defaults block where they omit their own.
func Resolve(cfg RawConfig) (Task, error) {
	if err := ValidateRaw(cfg); err != nil {
		return Task{}, err
	}
	task := Task{
		Version: cfg.Version,
		Seed:    cfg.Seed,
		Delta:   DefaultTickDelta,
		Steps:   DefaultTickSteps,
		Labels:  make(map[int]string, len(cfg.Patches)),
		Rewards: make(map[int]*patch.RewardSpec, len(cfg.Patches)),
		Rules:   make(map[int]patch.Rules, len(cfg.Patches)),
	}
	if cfg.Tick != nil {
		if cfg.Tick.Delta != nil {
			task.Delta = *cfg.Tick.Delta
		}
		if cfg.Tick.Steps != nil {
			task.Steps = *cfg.Tick.Steps
		}
	}
	for id, pc := range cfg.Patches {
		pc = withDefaults(pc, cfg.Defaults)
		task.Labels[id] = pc.Label
		reward, err := pc.Reward.RewardSpec()
		if err != nil {
			return Task{}, fmt.Errorf("patches[%d].reward: %w", id, err)
		}
		task.Rewards[id] = reward
		rules, err := pc.Rules.Rules()
		if err != nil {
			return Task{}, fmt.Errorf("patches[%d].rules: %w", id, err)
		}
		task.Rules[id] = rules
	}
	return task, nil
}

func withDefaults(pc PatchConfig, def *PatchConfig) PatchConfig {
	if def == nil {
		return pc
	}
	if pc.Reward == nil {
		pc.Reward = def.Reward
	}
	if pc.Rules == nil {
		pc.Rules = def.Rules
	}
	return pc
}

// RewardSpec converts the reward block. A nil block yields a nil spec, which
// patch.FromRewardSpecs rejects.
func (c *RewardConfig) RewardSpec() (*patch.RewardSpec, error) {
	if c == nil {
		return nil, nil
	}
	amount, err := c.Amount.Distribution()
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	probability, err := c.Probability.Distribution()
	if err != nil {
		return nil, fmt.Errorf("probability: %w", err)
	}
	available, err := c.Available.Distribution()
	if err != nil {
		return nil, fmt.Errorf("available: %w", err)
	}
	return &patch.RewardSpec{Amount: amount, Probability: probability, Available: available}, nil
}

// Rules converts the rules block. A nil block keeps every field constant.
func (c *RulesConfig) Rules() (patch.Rules, error) {
	if c == nil {
		return patch.Rules{}, nil
	}
	var (
		r   patch.Rules
		err error
	)
	if r.Amount, err = c.Amount.Function(); err != nil {
		return patch.Rules{}, fmt.Errorf("amount: %w", err)
	}
	if r.Probability, err = c.Probability.Function(); err != nil {
		return patch.Rules{}, fmt.Errorf("probability: %w", err)
	}
	if r.Available, err = c.Available.Function(); err != nil {
		return patch.Rules{}, fmt.Errorf("available: %w", err)
	}
	if h := c.OnHarvest; h != nil {
		r.OnHarvest = &patch.HarvestRule{
			Field:   patch.Field(h.Field),
			Updater: updater.Numerical{Operation: updater.Operation(h.Operation), Parameters: h.Parameters},
		}
	}
	if err := r.Validate(); err != nil {
		return patch.Rules{}, err
	}
	return r, nil
}

// params collects required parameters and reports the missing ones together.
type params struct {
	missing []string
}

func (p *params) need(name string, v *float64) float64 {
	if v == nil {
		p.missing = append(p.missing, name)
		return 0
	}
	return *v
}

func (p *params) err(kind string) error {
	if len(p.missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s requires %s", distribution.ErrInvalidSpecification, kind, strings.Join(p.missing, ", "))
}

// Distribution converts the block into a distribution and validates it.
func (c *DistributionConfig) Distribution() (distribution.Distribution, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: distribution is missing", distribution.ErrInvalidSpecification)
	}
	var p params
	mods := distribution.Modifiers{Scaling: c.Scaling.scaling()}
	if c.Truncation != nil {
		mods.Truncation = &distribution.Truncation{
			Min:  c.Truncation.Min,
			Max:  c.Truncation.Max,
			Mode: distribution.TruncationMode(c.Truncation.Mode),
		}
	}

	var d distribution.Distribution
	switch distribution.Family(c.Family) {
	case distribution.FamilyScalar:
		d = distribution.Scalar{Value: p.need("value", c.Value)}
	case distribution.FamilyNormal:
		d = distribution.Normal{Mean: p.need("mean", c.Mean), Std: p.need("std", c.Std), Modifiers: mods}
	case distribution.FamilyExponential:
		d = distribution.Exponential{Rate: p.need("rate", c.Rate), Modifiers: mods}
	case distribution.FamilyLogNormal:
		d = distribution.LogNormal{Mean: p.need("mean", c.Mean), Std: p.need("std", c.Std), Modifiers: mods}
	case distribution.FamilyGamma:
		d = distribution.Gamma{Shape: p.need("shape", c.Shape), Rate: p.need("rate", c.Rate), Modifiers: mods}
	case distribution.FamilyBeta:
		d = distribution.Beta{Alpha: p.need("alpha", c.Alpha), Beta: p.need("beta", c.Beta), Modifiers: mods}
	case distribution.FamilyUniform:
		d = distribution.Uniform{Min: p.need("min", c.Min), Max: p.need("max", c.Max), Modifiers: mods}
	case distribution.FamilyBinomial:
		n := 0
		if c.N == nil {
			p.missing = append(p.missing, "n")
		} else {
			n = *c.N
		}
		d = distribution.Binomial{P: p.need("p", c.P), N: n, Modifiers: mods}
	case distribution.FamilyPoisson:
		d = distribution.Poisson{Rate: p.need("rate", c.Rate), Modifiers: mods}
	case distribution.FamilyPDF:
		d = distribution.NewPDF(c.Index, c.Pdf)
	default:
		return nil, fmt.Errorf("%w: unknown family %q", distribution.ErrInvalidSpecification, c.Family)
	}
	if err := p.err(c.Family); err != nil {
		return nil, err
	}
	if err := distribution.Validate(d); err != nil {
		return nil, err
	}
	return d, nil
}

func (c *ScalingConfig) scaling() *distribution.Scaling {
	if c == nil {
		return nil
	}
	s := &distribution.Scaling{Scale: 1}
	if c.Scale != nil {
		s.Scale = *c.Scale
	}
	if c.Offset != nil {
		s.Offset = *c.Offset
	}
	return s
}

// Function converts the block into an update function. A nil block yields nil.
func (c *FunctionConfig) Function() (updater.Function, error) {
	if c == nil {
		return nil, nil
	}
	var p params
	switch updater.Kind(c.Kind) {
	case updater.KindSetValue:
		d, err := c.Value.Distribution()
		if err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
		return updater.SetValue{Value: d}, nil

	case updater.KindClampedRate, updater.KindClampedMultiplicativeRate:
		rate, err := c.Rate.Distribution()
		if err != nil {
			return nil, fmt.Errorf("rate: %w", err)
		}
		bounds := updater.Bounds{Minimum: c.Minimum, Maximum: c.Maximum}
		var fn updater.Function = updater.ClampedRate{Rate: rate, Bounds: bounds}
		if updater.Kind(c.Kind) == updater.KindClampedMultiplicativeRate {
			fn = updater.ClampedMultiplicativeRate{Rate: rate, Bounds: bounds}
		}
		if err := updater.Validate(fn); err != nil {
			return nil, err
		}
		return fn, nil

	case updater.KindTimeIndexedLookup:
		return updater.NewTimeIndexedLookup(c.Keys, c.Values)

	case updater.KindValueIndexedLookup:
		return updater.NewValueIndexedLookup(c.Keys, c.Values)

	case updater.KindCTCM:
		rho := p.need("rho", c.Rho)
		minimum := p.need("minimum", c.Minimum)
		maximum := p.need("maximum", c.Maximum)
		if err := p.err(c.Kind); err != nil {
			return nil, err
		}
		matrix, err := c.matrix()
		if err != nil {
			return nil, err
		}
		ctcm, err := updater.NewCTCM(matrix, rho, minimum, maximum)
		if err != nil || !(c.DrawFirstState || len(c.InitialState) > 0) {
			return ctcm, err
		}
		return ctcm.WithFirstState(c.InitialState)

	case updater.KindRewardFunction:
		reward, err := c.Curve.RewardFunction()
		if err != nil {
			return nil, fmt.Errorf("function: %w", err)
		}
		curve := updater.Curve{
			Reward:  reward,
			Input:   updater.CurveInput(c.Input),
			NoClamp: c.Clamp != nil && !*c.Clamp,
		}
		if err := updater.Validate(curve); err != nil {
			return nil, err
		}
		return curve, nil
	}
	return nil, fmt.Errorf("%w: unknown update function %q", updater.ErrInvalidSpecification, c.Kind)
}

func (c *FunctionConfig) matrix() ([][]float64, error) {
	switch {
	case c.Replenishment != nil && c.TransitionMatrix != nil:
		return nil, fmt.Errorf("%w: set either transition_matrix or replenishment, not both", updater.ErrInvalidSpecification)
	case c.Replenishment != nil:
		r := c.Replenishment
		return updater.ReplenishmentMatrix(r.States, r.Rate, r.Period, r.Dt)
	case c.NormalizeRows:
		return updater.NormalizeRows(c.TransitionMatrix)
	}
	return c.TransitionMatrix, nil
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// RewardFunction converts the block. Defaults: PowerFunction a=1 b=e c=-1 d=0
// in [0, 1]; LinearFunction a=1 b=0 in [0, 9999]; ConstantFunction value=1.
func (c *RewardFunctionConfig) RewardFunction() (updater.RewardFunction, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: reward function is missing", updater.ErrInvalidSpecification)
	}
	switch c.FunctionType {
	case "PowerFunction":
		return updater.PowerFunction{
			A: orDefault(c.A, 1), B: orDefault(c.B, math.E), C: orDefault(c.C, -1), D: orDefault(c.D, 0),
			Minimum: orDefault(c.Minimum, 0), Maximum: orDefault(c.Maximum, 1),
		}, nil
	case "LinearFunction":
		return updater.LinearFunction{
			A: orDefault(c.A, 1), B: orDefault(c.B, 0),
			Minimum: orDefault(c.Minimum, 0), Maximum: orDefault(c.Maximum, 9999),
		}, nil
	case "ConstantFunction":
		return updater.ConstantFunction{Value: orDefault(c.Value, 1)}, nil
	case "LookupTableFunction":
		return updater.NewLookupTableFunction(c.LutKeys, c.LutValues)
	}
	return nil, fmt.Errorf("%w: unknown reward function %q", updater.ErrInvalidSpecification, c.FunctionType)
}
