package patch

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtding233/foraging-backend/internal/distribution"
	"github.com/xtding233/foraging-backend/internal/updater"
)

type opLog struct {
	mu   sync.Mutex
	ops  []string
	seqs []uint64
}

func (l *opLog) Record(seq uint64, op string, _ State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
	l.seqs = append(l.seqs, seq)
}

func scalar(v float64) distribution.Distribution { return distribution.Scalar{Value: v} }

func TestSetGetReturnsCopies(t *testing.T) {
	m := NewManager()
	m.Set(3, 5, 0.5, 10)

	a, err := m.Get(3)
	require.NoError(t, err)
	assert.Equal(t, State{PatchID: 3, Amount: 5, Probability: 0.5, Available: 10}, a)

	b, err := m.Get(3)
	require.NoError(t, err)
	a.Amount = 99
	assert.Equal(t, 5.0, b.Amount)

	c, err := m.Get(3)
	require.NoError(t, err)
	assert.Equal(t, 5.0, c.Amount)
}

func TestAbsentPatchIsNotFound(t *testing.T) {
	m := NewManager()
	m.Set(1, 1, 1, 1)
	rng := distribution.NewSeededRNG(1)

	for _, id := range []int{-1, 0, 2, 1000} {
		_, err := m.Get(id)
		require.ErrorIs(t, err, ErrNotFound)
		_, err = m.Update(id, 1, Rules{}, rng)
		require.ErrorIs(t, err, ErrNotFound)
		_, err = m.Remove(id)
		require.ErrorIs(t, err, ErrNotFound)
		_, err = m.Harvest(id, Rules{}, rng)
		require.ErrorIs(t, err, ErrNotFound)
	}
}

func TestUpdateAppliesRules(t *testing.T) {
	m := NewManager()
	m.Set(1, 5, 0.9, 10)

	rules := Rules{
		Amount:      updater.ClampedRate{Rate: scalar(2), Bounds: updater.Bounds{Maximum: updater.Bound(8)}},
		Probability: updater.ClampedMultiplicativeRate{Rate: scalar(0.5)},
	}
	got, err := m.Update(1, 1, rules, distribution.NewSeededRNG(1))
	require.NoError(t, err)
	assert.Equal(t, State{PatchID: 1, Amount: 7, Probability: 0.45, Available: 10}, got)

	stored, err := m.Get(1)
	require.NoError(t, err)
	assert.Equal(t, got, stored)
}

func TestFailedUpdateKeepsState(t *testing.T) {
	m := NewManager()
	m.Set(1, 5, 0.5, 10)

	rules := Rules{
		Amount:    updater.ClampedRate{Rate: scalar(1)},
		Available: updater.SetValue{Value: distribution.Exponential{Rate: 0}},
	}
	_, err := m.Update(1, 1, rules, distribution.NewSeededRNG(1))
	require.ErrorIs(t, err, distribution.ErrInvalidSpecification)

	s, err := m.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 5.0, s.Amount)
}

func TestRemove(t *testing.T) {
	m := NewManager()
	m.Set(4, 1, 0.2, 3)

	s, err := m.Remove(4)
	require.NoError(t, err)
	assert.Equal(t, State{PatchID: 4, Amount: 1, Probability: 0.2, Available: 3}, s)

	_, err = m.Get(4)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, m.Len())
}

func TestFromRewardSpecs(t *testing.T) {
	specs := map[int]*RewardSpec{
		0: {Amount: scalar(5), Probability: scalar(0.9), Available: scalar(100)},
		1: {Amount: scalar(3), Probability: distribution.Uniform{Min: 0.2, Max: 0.4}, Available: scalar(50)},
	}
	m, err := FromRewardSpecs(specs, distribution.NewSeededRNG(7))
	require.NoError(t, err)
	require.Equal(t, 2, m.Len())

	s0, err := m.Get(0)
	require.NoError(t, err)
	assert.Equal(t, State{PatchID: 0, Amount: 5, Probability: 0.9, Available: 100}, s0)

	s1, err := m.Get(1)
	require.NoError(t, err)
	assert.True(t, s1.Probability >= 0.2 && s1.Probability <= 0.4)

	again, err := FromRewardSpecs(specs, distribution.NewSeededRNG(7))
	require.NoError(t, err)
	assert.Equal(t, m.Snapshot(), again.Snapshot())
}

func TestFromRewardSpecsMissing(t *testing.T) {
	specs := map[int]*RewardSpec{
		0: {Amount: scalar(5), Probability: scalar(0.9), Available: scalar(100)},
		1: nil,
	}
	_, err := FromRewardSpecs(specs, distribution.NewSeededRNG(1))
	require.ErrorIs(t, err, ErrMissingRewardSpec)

	_, err = FromRewardSpecs(map[int]*RewardSpec{2: {Amount: scalar(1)}}, distribution.NewSeededRNG(1))
	require.ErrorIs(t, err, distribution.ErrInvalidSpecification)
}

func TestCloneIsIndependent(t *testing.T) {
	m := NewManager()
	m.Set(1, 5, 0.5, 10)
	c := m.Clone()

	_, err := c.Update(1, 1, Rules{Amount: updater.SetValue{Value: scalar(42)}}, distribution.NewSeededRNG(1))
	require.NoError(t, err)
	c.Set(2, 1, 1, 1)

	orig, err := m.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 5.0, orig.Amount)
	_, err = m.Get(2)
	require.ErrorIs(t, err, ErrNotFound)

	cloned, err := c.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 42.0, cloned.Amount)
}

func TestSnapshotIsStable(t *testing.T) {
	m := NewManager()
	m.Set(2, 2, 0.2, 2)
	m.Set(1, 1, 0.1, 1)

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, 1, snap[0].PatchID)
	assert.Equal(t, 2, snap[1].PatchID)

	m.Set(1, 100, 1, 100)
	_, err := m.Remove(2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap[0].Amount)
	assert.Len(t, snap, 2)
}

func TestConcurrentUpdatesOnOnePatch(t *testing.T) {
	m := NewManager()
	m.Set(1, 0, 0, 0)
	rules := Rules{Amount: updater.ClampedRate{Rate: scalar(1)}}

	const workers, perWorker = 16, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rng := distribution.NewSeededRNG(seed)
			for i := 0; i < perWorker; i++ {
				if _, err := m.Update(1, 1, rules, rng); err != nil {
					t.Error(err)
					return
				}
			}
		}(uint64(w))
	}
	wg.Wait()

	s, err := m.Get(1)
	require.NoError(t, err)
	assert.Equal(t, float64(workers*perWorker), s.Amount)
}

func TestConcurrentMixedOperations(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for id := 0; id < 8; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rng := distribution.NewSeededRNG(uint64(id))
			m.Set(id, 1, 0.5, 10)
			for i := 0; i < 100; i++ {
				_, _ = m.Update(id, 0.1, Rules{Probability: updater.ClampedMultiplicativeRate{Rate: scalar(0.99)}}, rng)
				_ = m.Snapshot()
				_, _ = m.Harvest(id, Rules{}, rng)
			}
		}(id)
	}
	wg.Wait()
	assert.Equal(t, 8, m.Len())
}

func TestHarvest(t *testing.T) {
	m := NewManager()
	m.Set(1, 3, 1, 5)
	rng := distribution.NewSeededRNG(1)

	res, err := m.Harvest(1, Rules{}, rng)
	require.NoError(t, err)
	assert.True(t, res.Rewarded)
	assert.Equal(t, 3.0, res.Amount)
	assert.Equal(t, 2.0, res.State.Available)

	// only 2 left
	res, err = m.Harvest(1, Rules{}, rng)
	require.NoError(t, err)
	assert.True(t, res.Rewarded)
	assert.Equal(t, 2.0, res.Amount)
	assert.Equal(t, 0.0, res.State.Available)

	// depleted
	res, err = m.Harvest(1, Rules{}, rng)
	require.NoError(t, err)
	assert.False(t, res.Rewarded)
	assert.Equal(t, 0.0, res.Amount)

	m.Set(2, 3, 0, 5)
	res, err = m.Harvest(2, Rules{}, rng)
	require.NoError(t, err)
	assert.False(t, res.Rewarded)
	assert.Equal(t, 5.0, res.State.Available)
}

func TestRecorderSeesEveryWrite(t *testing.T) {
	log := &opLog{}
	m, err := FromRewardSpecs(map[int]*RewardSpec{
		1: {Amount: scalar(1), Probability: scalar(1), Available: scalar(10)},
	}, distribution.NewSeededRNG(1), WithRecorder(log))
	require.NoError(t, err)

	rng := distribution.NewSeededRNG(2)
	m.Set(2, 1, 1, 1)
	_, err = m.Update(1, 1, Rules{}, rng)
	require.NoError(t, err)
	_, err = m.Harvest(1, Rules{}, rng)
	require.NoError(t, err)
	_, err = m.Remove(2)
	require.NoError(t, err)

	assert.Equal(t, []string{OpSeed, OpSet, OpUpdate, OpHarvest, OpRemove}, log.ops)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, log.seqs)

	// clones do not inherit the recorder
	m.Clone().Set(3, 1, 1, 1)
	assert.Len(t, log.ops, 5)
}

func TestRulesValidate(t *testing.T) {
	require.NoError(t, Rules{}.Validate())
	err := Rules{Probability: updater.TimeIndexedLookup{}}.Validate()
	require.ErrorIs(t, err, updater.ErrInvalidSpecification)
}

func TestStateString(t *testing.T) {
	s := State{PatchID: 2, Amount: 1.5, Probability: 0.25, Available: 3}
	assert.Equal(t, "PatchState(PatchId: 2, Amount: 1.5, Probability: 0.25, Available: 3)", s.String())
}

func TestNonFiniteTickRejected(t *testing.T) {
	m := NewManager()
	m.Set(1, 0, 0.5, 10)
	rng := distribution.NewSeededRNG(1)
	rules := Rules{Amount: updater.ClampedRate{
		Rate:   scalar(1),
		Bounds: updater.Bounds{Minimum: updater.Bound(0), Maximum: updater.Bound(10)},
	}}

	for _, tick := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := m.Update(1, tick, rules, rng)
		require.ErrorIs(t, err, updater.ErrDomain)
		_, err = m.Update(1, tick, Rules{}, rng)
		require.ErrorIs(t, err, updater.ErrDomain)
	}
	s, err := m.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Amount)
}

func TestRemovedPatchCanBeSetAgain(t *testing.T) {
	log := &opLog{}
	m := NewManager(WithRecorder(log))
	m.Set(1, 1, 1, 1)
	_, err := m.Remove(1)
	require.NoError(t, err)
	_, err = m.Remove(1)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, m.Snapshot())

	m.Set(1, 2, 1, 1)
	s, err := m.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 2.0, s.Amount)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, []uint64{1, 2, 3}, log.seqs)
}

// concurrent writers on one patch: the highest recorded seq holds the final state
type lastState struct {
	mu    sync.Mutex
	seq   uint64
	state State
}

func (l *lastState) Record(seq uint64, _ string, s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seq > l.seq {
		l.seq, l.state = seq, s
	}
}

func TestRecordedSeqFollowsSwapOrder(t *testing.T) {
	last := &lastState{}
	m := NewManager(WithRecorder(last))
	m.Set(1, 0, 1, 1000)
	rules := Rules{Amount: updater.ClampedRate{Rate: scalar(1)}}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rng := distribution.NewSeededRNG(seed)
			for i := 0; i < 100; i++ {
				_, _ = m.Update(1, 1, rules, rng)
				_, _ = m.Harvest(1, Rules{}, rng)
				if i%25 == 0 {
					m.Set(1, 0, 1, 1000)
				}
			}
		}(uint64(w))
	}
	wg.Wait()

	cur, err := m.Get(1)
	require.NoError(t, err)
	assert.Equal(t, cur, last.state)
}

func TestHarvestRuleAdjustsField(t *testing.T) {
	m := NewManager()
	m.Set(1, 2, 1, 100)
	m.Set(2, 2, 0, 100)
	rules := Rules{OnHarvest: &HarvestRule{
		Field: FieldAmount,
		Updater: updater.Numerical{
			Operation:  updater.OpOffset,
			Parameters: updater.NumericalParameters{Increment: 1, Decrement: -0.5, Minimum: 0, Maximum: 3},
		},
	}}
	rng := distribution.NewSeededRNG(1)

	// rewarded: 2 delivered, amount grows to 3 then caps
	res, err := m.Harvest(1, rules, rng)
	require.NoError(t, err)
	assert.True(t, res.Rewarded)
	assert.Equal(t, 2.0, res.Amount)
	assert.Equal(t, State{PatchID: 1, Amount: 3, Probability: 1, Available: 98}, res.State)
	res, err = m.Harvest(1, rules, rng)
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.State.Amount)
	assert.Equal(t, 95.0, res.State.Available)

	// missed: amount shrinks, nothing delivered
	res, err = m.Harvest(2, rules, rng)
	require.NoError(t, err)
	assert.False(t, res.Rewarded)
	assert.Equal(t, 1.5, res.State.Amount)
	stored, err := m.Get(2)
	require.NoError(t, err)
	assert.Equal(t, res.State, stored)

	bad := Rules{OnHarvest: &HarvestRule{Field: "depth", Updater: updater.Numerical{Operation: updater.OpOffset}}}
	require.ErrorIs(t, bad.Validate(), updater.ErrInvalidSpecification)
}

func TestStartRulesDrawFirstState(t *testing.T) {
	c, err := updater.NewCTCM([][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, 0.5, 0.1, 8)
	require.NoError(t, err)
	c, err = c.WithFirstState([]float64{0, 0, 3})
	require.NoError(t, err)

	specs := map[int]*RewardSpec{
		0: {Amount: scalar(1), Probability: scalar(1), Available: scalar(1)},
		1: {Amount: scalar(1), Probability: scalar(1), Available: scalar(1)},
	}
	rules := map[int]Rules{0: {Amount: c}}
	m, err := FromRewardSpecs(specs, distribution.NewSeededRNG(1), WithStartRules(rules))
	require.NoError(t, err)

	s0, err := m.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 8.0, s0.Amount)
	s1, err := m.Get(1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, s1.Amount)
}
