package updater

import (
	"sort"

	"gonum.org/v1/gonum/interp"
)

// TimeIndexedLookup maps the tick value through a key/value table.
type TimeIndexedLookup struct {
	table *lookupTable
}

// ValueIndexedLookup maps the current value through a key/value table.
type ValueIndexedLookup struct {
	table *lookupTable
}

// NewTimeIndexedLookup builds a table queried by tick.
func NewTimeIndexedLookup(keys, values []float64) (TimeIndexedLookup, error) {
	t, err := newLookupTable(keys, values)
	if err != nil {
		return TimeIndexedLookup{}, err
	}
	return TimeIndexedLookup{table: t}, nil
}

// NewValueIndexedLookup builds a table queried by the current value.
func NewValueIndexedLookup(keys, values []float64) (ValueIndexedLookup, error) {
	t, err := newLookupTable(keys, values)
	if err != nil {
		return ValueIndexedLookup{}, err
	}
	return ValueIndexedLookup{table: t}, nil
}

// Keys returns the sorted table keys.
func (l TimeIndexedLookup) Keys() []float64 { return l.table.copyKeys() }

// Keys returns the sorted table keys.
func (l ValueIndexedLookup) Keys() []float64 { return l.table.copyKeys() }

// lookupTable is clamped at both ends and linear in between.
type lookupTable struct {
	keys   []float64
	values []float64
	pl     interp.PiecewiseLinear
}

func newLookupTable(keys, values []float64) (*lookupTable, error) {
	if len(keys) != len(values) {
		return nil, invalidf("lookup keys and values must have the same length (%d != %d)", len(keys), len(values))
	}
	if len(keys) == 0 {
		return nil, invalidf("lookup table is empty")
	}

	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return keys[idx[a]] < keys[idx[b]] })

	t := &lookupTable{
		keys:   make([]float64, len(keys)),
		values: make([]float64, len(keys)),
	}
	for n, i := range idx {
		if !finite(keys[i], values[i]) {
			return nil, invalidf("lookup entry %d is not finite", i)
		}
		if n > 0 && keys[i] == t.keys[n-1] {
			return nil, invalidf("duplicate lookup key %v", keys[i])
		}
		t.keys[n] = keys[i]
		t.values[n] = values[i]
	}
	if len(t.keys) > 1 {
		if err := t.pl.Fit(t.keys, t.values); err != nil {
			return nil, invalidf("lookup fit: %v", err)
		}
	}
	return t, nil
}

func (t *lookupTable) at(x float64) float64 {
	last := len(t.keys) - 1
	if x >= t.keys[last] {
		return t.values[last]
	}
	if x <= t.keys[0] {
		return t.values[0]
	}
	return t.pl.Predict(x)
}

func (t *lookupTable) copyKeys() []float64 {
	if t == nil {
		return nil
	}
	return append([]float64(nil), t.keys...)
}
