package patch

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtding233/foraging-backend/internal/distribution"
)

var (
	ErrNotFound          = errors.New("patch state not found")
	ErrMissingRewardSpec = errors.New("patch has no reward specification")
)

func notFound(id int) error {
	return fmt.Errorf("patch %d: %w", id, ErrNotFound)
}

// Recorder receives every state the manager stores or removes.
//
// seq is stamped before the change takes effect and grows with every change,
// so for one patch a higher seq is always the later state even when two
// Record calls arrive out of order. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(seq uint64, op string, s State)
}

// Operation names passed to Recorder.
const (
	OpSet     = "set"
	OpUpdate  = "update"
	OpRemove  = "remove"
	OpHarvest = "harvest"
	OpSeed    = "seed"
)

// Option configures a Manager.
type Option func(*Manager)

// WithRecorder attaches a history recorder owned by this manager.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithStartRules makes FromRewardSpecs pass every seeded state through
// rules[id].Start, e.g. to draw a CTCM first state.
func WithStartRules(rules map[int]Rules) Option {
	return func(m *Manager) { m.start = rules }
}

// entry is what the map stores. Removed ids keep a tombstone so that every
// change to an id, including re-adding it, is a compare-and-swap.
type entry struct {
	state   State
	seq     uint64
	removed bool
}

// Manager owns the current State of every patch.
//
// It is safe for concurrent use. Stored states are never modified; an update
// computes a new State and swaps it in with compare-and-swap, so writers to
// different patches never contend and readers always see a whole state.
// The random source is supplied per call and never retained.
type Manager struct {
	states   sync.Map // int -> *entry
	seq      atomic.Uint64
	recorder Recorder
	start    map[int]Rules
}

// NewManager returns an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FromRewardSpecs seeds one patch per entry. Patches are drawn in ascending id
// order so a seeded source gives the same manager every time.
func FromRewardSpecs(specs map[int]*RewardSpec, rng distribution.RandomSource, opts ...Option) (*Manager, error) {
	ids := make([]int, 0, len(specs))
	for id := range specs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	m := NewManager(opts...)
	for _, id := range ids {
		spec := specs[id]
		if spec == nil {
			return nil, fmt.Errorf("patch %d: %w", id, ErrMissingRewardSpec)
		}
		s, err := FromRewardSpec(id, *spec, rng)
		if err != nil {
			return nil, err
		}
		if s, err = m.start[id].Start(s, rng); err != nil {
			return nil, fmt.Errorf("patch %d: %w", id, err)
		}
		m.swap(id, nil, s, OpSeed, false)
	}
	return m, nil
}

// load returns the stored entry, tombstones included, and whether it is live.
func (m *Manager) load(id int) (*entry, bool) {
	v, ok := m.states.Load(id)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	return e, !e.removed
}

// swap replaces cur (nil if id was never stored) and records the change on
// success. The sequence number is taken after cur was loaded, so a swap that
// replaces another swap's entry always carries the higher number.
func (m *Manager) swap(id int, cur *entry, s State, op string, removed bool) bool {
	e := &entry{state: s, seq: m.seq.Add(1), removed: removed}
	if cur == nil {
		if _, loaded := m.states.LoadOrStore(id, e); loaded {
			return false
		}
	} else if !m.states.CompareAndSwap(id, cur, e) {
		return false
	}
	if m.recorder != nil {
		m.recorder.Record(e.seq, op, s)
	}
	return true
}

// Get returns a copy of the patch state.
func (m *Manager) Get(id int) (State, error) {
	e, ok := m.load(id)
	if !ok {
		observe("get", ErrNotFound)
		return State{}, notFound(id)
	}
	observe("get", nil)
	return e.state, nil
}

// Set inserts or replaces the patch state.
func (m *Manager) Set(id int, amount, probability, available float64) {
	s := State{PatchID: id, Amount: amount, Probability: probability, Available: available}
	for {
		cur, _ := m.load(id)
		if m.swap(id, cur, s, OpSet, false) {
			observe("set", nil)
			return
		}
		updateRetries.Inc()
	}
}

// Update advances the patch by one tick under rules and returns the new state.
// If another writer replaces the state mid-update the update is recomputed from
// the newer state, drawing again from rng.
func (m *Manager) Update(id int, tick float64, rules Rules, rng distribution.RandomSource) (State, error) {
	start := time.Now()
	defer func() { updateDuration.Observe(time.Since(start).Seconds()) }()

	for {
		cur, ok := m.load(id)
		if !ok {
			observe("update", ErrNotFound)
			return State{}, notFound(id)
		}
		next, err := cur.state.Advance(tick, rules, rng)
		if err != nil {
			observe("update", err)
			return State{}, fmt.Errorf("update patch %d: %w", id, err)
		}
		if m.swap(id, cur, next, OpUpdate, false) {
			observe("update", nil)
			return next, nil
		}
		updateRetries.Inc()
	}
}

// Remove deletes the patch and returns its last state.
func (m *Manager) Remove(id int) (State, error) {
	for {
		cur, ok := m.load(id)
		if !ok {
			observe("remove", ErrNotFound)
			return State{}, notFound(id)
		}
		if m.swap(id, cur, cur.state, OpRemove, true) {
			observe("remove", nil)
			return cur.state, nil
		}
		updateRetries.Inc()
	}
}

// HarvestResult is the outcome of one reward attempt.
type HarvestResult struct {
	Rewarded bool
	Amount   float64 // delivered reward, 0 when not rewarded
	State    State   // state after the attempt
}

// Harvest attempts one reward delivery: a Bernoulli draw on the patch
// probability (clamped into [0,1]). A hit on a patch with reward left delivers
// Amount, or what is left if that is less, and lowers Available by the same.
// An empty patch is not attempted. After an attempt rules.OnHarvest, if set,
// adjusts its field.
func (m *Manager) Harvest(id int, rules Rules, rng distribution.RandomSource) (HarvestResult, error) {
	for {
		cur, ok := m.load(id)
		if !ok {
			observe("harvest", ErrNotFound)
			return HarvestResult{}, notFound(id)
		}
		if cur.state.Available <= 0 {
			observe("harvest", nil)
			return HarvestResult{State: cur.state}, nil
		}
		p := math.Min(math.Max(cur.state.Probability, 0), 1)
		hit, err := distribution.Bernoulli(p, rng)
		if err != nil {
			observe("harvest", err)
			return HarvestResult{}, fmt.Errorf("harvest patch %d: %w", id, err)
		}

		next := cur.state
		var delivered float64
		if hit {
			delivered = math.Max(math.Min(cur.state.Amount, cur.state.Available), 0)
			next.Available = cur.state.Available - delivered
		}
		if rules.OnHarvest != nil {
			if next, err = rules.OnHarvest.apply(next, hit); err != nil {
				observe("harvest", err)
				return HarvestResult{}, fmt.Errorf("harvest patch %d: %w", id, err)
			}
		}
		if !hit && rules.OnHarvest == nil {
			observe("harvest", nil)
			return HarvestResult{State: cur.state}, nil
		}
		if m.swap(id, cur, next, OpHarvest, false) {
			observe("harvest", nil)
			rewardDelivered.Add(delivered)
			return HarvestResult{Rewarded: hit, Amount: delivered, State: next}, nil
		}
		updateRetries.Inc()
	}
}

// Len returns the number of patches.
func (m *Manager) Len() int {
	n := 0
	m.states.Range(func(_, v any) bool {
		if !v.(*entry).removed {
			n++
		}
		return true
	})
	return n
}

// Snapshot returns copies of all states ordered by patch id.
func (m *Manager) Snapshot() []State {
	out := make([]State, 0)
	m.states.Range(func(_, v any) bool {
		if e := v.(*entry); !e.removed {
			out = append(out, e.state)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].PatchID < out[j].PatchID })
	return out
}

// Clone returns an independent manager holding copies of every state.
// The recorder is not shared; pass WithRecorder to give the clone its own.
func (m *Manager) Clone(opts ...Option) *Manager {
	c := NewManager(opts...)
	c.seq.Store(m.seq.Load())
	m.states.Range(func(k, v any) bool {
		if e := v.(*entry); !e.removed {
			c.states.Store(k, &entry{state: e.state, seq: e.seq})
		}
		return true
	})
	return c
}
