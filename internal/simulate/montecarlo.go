package simulate

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/xtding233/foraging-backend/internal/config"
	"github.com/xtding233/foraging-backend/internal/distribution"
	"github.com/xtding233/foraging-backend/internal/patch"
)

// Params controls one Monte Carlo run.
type Params struct {
	Trials  int
	Workers int    // <=0 means GOMAXPROCS
	Seed    uint64 // trial i draws from NewSeededRNG(Seed+i)

	// Harvest attempts one reward on every patch after each tick.
	Harvest bool

	// Recorder, if set, receives the history of the first trial.
	Recorder patch.Recorder
}

// Stats summarizes simulation results.
type Stats struct {
	Mean   float64
	Var    float64
	StdDev float64
	P50    float64
	P90    float64
	P99    float64
	// Optional: raw samples if caller needs histograms/exports
	Samples []float64 `json:"-" yaml:"-"`
}

// PatchStats holds end-of-trial statistics for one patch.
type PatchStats struct {
	PatchID     int
	Label       string
	Amount      Stats
	Probability Stats
	Available   Stats
	Reward      Stats // total reward harvested per trial
}

// calcStats computes mean/variance/percentiles for samples.
func calcStats(xs []float64) Stats {
	n := len(xs)
	if n == 0 {
		return Stats{}
	}
	var sum float64
	for _, v := range xs {
		sum += v
	}
	mean := sum / float64(n)

	// variance (population)
	var acc float64
	for _, v := range xs {
		d := v - mean
		acc += d * d
	}
	variance := acc / float64(n)

	cp := append([]float64(nil), xs...)
	sort.Float64s(cp)
	percentile := func(p float64) float64 {
		if n == 1 || p <= 0 {
			return cp[0]
		}
		if p >= 1 {
			return cp[n-1]
		}
		pos := p * float64(n-1)
		i := int(math.Floor(pos))
		f := pos - float64(i)
		if i+1 >= n {
			return cp[i]
		}
		return cp[i]*(1-f) + cp[i+1]*f
	}

	return Stats{
		Mean:    mean,
		Var:     variance,
		StdDev:  math.Sqrt(variance),
		P50:     percentile(0.50),
		P90:     percentile(0.90),
		P99:     percentile(0.99),
		Samples: xs,
	}
}

// trialResult is one trial's final state and harvested reward per patch, in
// task.PatchIDs order.
type trialResult struct {
	states []patch.State
	reward []float64
}

// simulateOne seeds a manager from the task and advances it task.Steps ticks.
func simulateOne(task config.Task, ids []int, rng distribution.RandomSource, p Params, rec patch.Recorder) (trialResult, error) {
	opts := []patch.Option{patch.WithStartRules(task.Rules)}
	if rec != nil {
		opts = append(opts, patch.WithRecorder(rec))
	}
	m, err := patch.FromRewardSpecs(task.Rewards, rng, opts...)
	if err != nil {
		return trialResult{}, err
	}
	reward := make([]float64, len(ids))
	for step := 0; step < task.Steps; step++ {
		for i, id := range ids {
			if _, err := m.Update(id, task.Delta, task.Rules[id], rng); err != nil {
				return trialResult{}, fmt.Errorf("step %d: %w", step, err)
			}
			if !p.Harvest {
				continue
			}
			res, err := m.Harvest(id, task.Rules[id], rng)
			if err != nil {
				return trialResult{}, fmt.Errorf("step %d: %w", step, err)
			}
			reward[i] += res.Amount
		}
	}
	return trialResult{states: m.Snapshot(), reward: reward}, nil
}

// RunMonteCarlo repeats trials and returns per-patch summary stats ordered by
// patch id. Results depend only on Params.Seed, not on Workers.
func RunMonteCarlo(ctx context.Context, task config.Task, p Params) ([]PatchStats, error) {
	if p.Trials <= 0 {
		return nil, nil
	}
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	ids := task.PatchIDs()
	results := make([]trialResult, p.Trials)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < p.Trials; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var rec patch.Recorder
			if i == 0 {
				rec = p.Recorder
			}
			r, err := simulateOne(task, ids, distribution.NewSeededRNG(p.Seed+uint64(i)), p, rec)
			if err != nil {
				return fmt.Errorf("trial %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]PatchStats, len(ids))
	for k, id := range ids {
		amount := make([]float64, p.Trials)
		probability := make([]float64, p.Trials)
		available := make([]float64, p.Trials)
		reward := make([]float64, p.Trials)
		for i, r := range results {
			amount[i] = r.states[k].Amount
			probability[i] = r.states[k].Probability
			available[i] = r.states[k].Available
			reward[i] = r.reward[k]
		}
		out[k] = PatchStats{
			PatchID:     id,
			Label:       task.Labels[id],
			Amount:      calcStats(amount),
			Probability: calcStats(probability),
			Available:   calcStats(available),
			Reward:      calcStats(reward),
		}
	}
	return out, nil
}
