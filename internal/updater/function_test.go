package updater

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtding233/foraging-backend/internal/distribution"
)

type fixedCoin float64

func (c fixedCoin) Float64() float64 { return float64(c) }
func (c fixedCoin) Uint64() uint64   { return uint64(float64(c) * (1 << 63)) }

func TestNilFunctionKeepsValue(t *testing.T) {
	got, err := Invoke(nil, 3.5, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 3.5, got)
}

func TestSetValueIgnoresInputs(t *testing.T) {
	fn := SetValue{Value: distribution.Scalar{Value: 42}}
	got, err := Invoke(fn, 1, 100, distribution.NewSeededRNG(1))
	require.NoError(t, err)
	assert.Equal(t, 42.0, got)
}

func TestClampedRate(t *testing.T) {
	rng := distribution.NewSeededRNG(1)
	fn := ClampedRate{
		Rate:   distribution.Scalar{Value: 2},
		Bounds: Bounds{Maximum: Bound(8)},
	}
	got, err := Invoke(fn, 5, 1, rng)
	require.NoError(t, err)
	assert.Equal(t, 7.0, got)

	got, err = Invoke(fn, 5, 2, rng)
	require.NoError(t, err)
	assert.Equal(t, 8.0, got)

	down := ClampedRate{
		Rate:   distribution.Scalar{Value: -1},
		Bounds: Bounds{Minimum: Bound(0)},
	}
	got, err = Invoke(down, 0.5, 1, rng)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	// no bounds at all
	got, err = Invoke(ClampedRate{Rate: distribution.Scalar{Value: -1}}, 0.5, 3, rng)
	require.NoError(t, err)
	assert.Equal(t, -2.5, got)
}

func TestClampedMultiplicativeRate(t *testing.T) {
	rng := distribution.NewSeededRNG(1)
	fn := ClampedMultiplicativeRate{Rate: distribution.Scalar{Value: 0.5}}
	got, err := Invoke(fn, 10, 2, rng)
	require.NoError(t, err)
	assert.Equal(t, 2.5, got)

	fn.Minimum = Bound(3)
	got, err = Invoke(fn, 10, 2, rng)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)

	// tick 1 is plain multiplication
	got, err = Invoke(ClampedMultiplicativeRate{Rate: distribution.Scalar{Value: 0.9}}, 0.8, 1, rng)
	require.NoError(t, err)
	assert.InDelta(t, 0.72, got, 1e-12)
}

func TestInvertedBoundsRejected(t *testing.T) {
	fn := ClampedRate{
		Rate:   distribution.Scalar{Value: 1},
		Bounds: Bounds{Minimum: Bound(5), Maximum: Bound(1)},
	}
	_, err := Invoke(fn, 0, 1, distribution.NewSeededRNG(1))
	require.ErrorIs(t, err, ErrInvalidSpecification)
	require.ErrorIs(t, Validate(fn), ErrInvalidSpecification)
}

func TestNonFiniteTickOrResult(t *testing.T) {
	rng := distribution.NewSeededRNG(1)
	fn := ClampedRate{
		Rate:   distribution.Scalar{Value: 1},
		Bounds: Bounds{Minimum: Bound(0), Maximum: Bound(10)},
	}
	for _, tick := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := Invoke(fn, 1, tick, rng)
		require.ErrorIs(t, err, ErrDomain, "tick=%v", tick)
		_, err = Invoke(nil, 1, tick, rng)
		require.ErrorIs(t, err, ErrDomain, "tick=%v", tick)
	}

	// unbounded growth past float range
	_, err := Invoke(ClampedMultiplicativeRate{Rate: distribution.Scalar{Value: 10}}, math.MaxFloat64, 2, rng)
	require.ErrorIs(t, err, ErrDomain)

	// a NaN value slips past the bounds unless caught
	_, err = Invoke(fn, math.NaN(), 1, rng)
	require.ErrorIs(t, err, ErrDomain)
}

func TestRateErrorPropagates(t *testing.T) {
	fn := ClampedRate{Rate: distribution.Exponential{Rate: -1}}
	_, err := Invoke(fn, 0, 1, distribution.NewSeededRNG(1))
	require.ErrorIs(t, err, ErrInvalidSpecification)
}

func TestTimeIndexedLookup(t *testing.T) {
	fn, err := NewTimeIndexedLookup([]float64{0, 10}, []float64{0, 100})
	require.NoError(t, err)
	rng := distribution.NewSeededRNG(1)

	cases := map[float64]float64{5: 50, 20: 100, -5: 0, 0: 0, 10: 100, 2.5: 25}
	for tick, want := range cases {
		got, err := Invoke(fn, 999, tick, rng)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-12, "tick=%v", tick)
	}
}

func TestValueIndexedLookup(t *testing.T) {
	// keys given out of order
	fn, err := NewValueIndexedLookup([]float64{10, 0}, []float64{100, 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 10}, fn.Keys())

	got, err := Invoke(fn, 5, 999, distribution.NewSeededRNG(1))
	require.NoError(t, err)
	assert.InDelta(t, 50, got, 1e-12)
}

func TestLookupSingleKey(t *testing.T) {
	fn, err := NewTimeIndexedLookup([]float64{3}, []float64{7})
	require.NoError(t, err)
	for _, tick := range []float64{-1, 3, 10} {
		got, err := Invoke(fn, 0, tick, distribution.NewSeededRNG(1))
		require.NoError(t, err)
		assert.Equal(t, 7.0, got)
	}
}

func TestLookupInvalid(t *testing.T) {
	_, err := NewTimeIndexedLookup([]float64{0, 1}, []float64{0})
	require.ErrorIs(t, err, ErrInvalidSpecification)

	_, err = NewValueIndexedLookup(nil, nil)
	require.ErrorIs(t, err, ErrInvalidSpecification)

	_, err = NewTimeIndexedLookup([]float64{1, 1}, []float64{0, 2})
	require.ErrorIs(t, err, ErrInvalidSpecification)

	_, err = Invoke(TimeIndexedLookup{}, 0, 0, distribution.NewSeededRNG(1))
	require.ErrorIs(t, err, ErrInvalidSpecification)
}
