package updater

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtding233/foraging-backend/internal/distribution"
)

func TestRewardFunctions(t *testing.T) {
	table, err := NewLookupTableFunction([]float64{2, 0, 1}, []float64{4, 0, 1})
	require.NoError(t, err)

	cases := []struct {
		name  string
		fn    RewardFunction
		x     float64
		clamp bool
		want  float64
	}{
		{"power", PowerFunction{A: 1, B: 2, C: 1, D: 0, Minimum: 0, Maximum: 100}, 3, true, 8},
		{"power decay", PowerFunction{A: 1, B: math.E, C: -1, Minimum: 0, Maximum: 1}, 1, true, 1 / math.E},
		{"power clamped", PowerFunction{A: 1, B: 2, C: 1, Minimum: 0, Maximum: 5}, 3, true, 5},
		{"power unclamped", PowerFunction{A: 1, B: 2, C: 1, Minimum: 0, Maximum: 5}, 3, false, 8},
		{"linear", LinearFunction{A: -0.5, B: 3, Minimum: 0, Maximum: 10}, 2, true, 2},
		{"linear floor", LinearFunction{A: -0.5, B: 3, Minimum: 0, Maximum: 10}, 10, true, 0},
		{"linear unclamped", LinearFunction{A: -0.5, B: 3, Minimum: 0, Maximum: 10}, 10, false, -2},
		{"constant", ConstantFunction{Value: 7}, 123, true, 7},
		{"table between keys", table, 1.5, true, 2.5},
		{"table below", table, -3, true, 0},
		{"table above", table, 9, false, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ApplyRewardFunction(tc.fn, tc.x, tc.clamp)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-12)
		})
	}
}

func TestRewardFunctionErrors(t *testing.T) {
	_, err := ApplyRewardFunction(nil, 1, true)
	require.ErrorIs(t, err, ErrInvalidSpecification)

	_, err = ApplyRewardFunction(PowerFunction{A: 1, B: -2, C: 1, Maximum: 1}, 1, true)
	require.ErrorIs(t, err, ErrInvalidSpecification)

	_, err = ApplyRewardFunction(LinearFunction{A: 1, Minimum: 3, Maximum: 1}, 1, true)
	require.ErrorIs(t, err, ErrInvalidSpecification)

	_, err = ApplyRewardFunction(LookupTableFunction{}, 1, true)
	require.ErrorIs(t, err, ErrInvalidSpecification)

	_, err = NewLookupTableFunction([]float64{1, 1}, []float64{1, 2})
	require.ErrorIs(t, err, ErrInvalidSpecification)

	for _, x := range []float64{math.NaN(), math.Inf(1)} {
		_, err = ApplyRewardFunction(ConstantFunction{Value: 1}, x, true)
		require.ErrorIs(t, err, ErrDomain, "x=%v", x)
	}

	// 2^(1*2000) overflows; unclamped it is not a usable value
	_, err = ApplyRewardFunction(PowerFunction{A: 1, B: 2, C: 1, Maximum: 1}, 2000, false)
	require.ErrorIs(t, err, ErrDomain)
	got, err := ApplyRewardFunction(PowerFunction{A: 1, B: 2, C: 1, Maximum: 1}, 2000, true)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestCurveUpdate(t *testing.T) {
	rng := distribution.NewSeededRNG(1)
	decay := LinearFunction{A: 0.5, B: 0, Minimum: 0, Maximum: 3}

	got, err := Invoke(Curve{Reward: decay}, 4, 10, rng)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)

	got, err = Invoke(Curve{Reward: decay, Input: InputTick}, 4, 10, rng)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)

	got, err = Invoke(Curve{Reward: decay, Input: InputTick, NoClamp: true}, 4, 10, rng)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got)

	assert.Equal(t, KindRewardFunction, Curve{}.Kind())
	require.ErrorIs(t, Validate(Curve{}), ErrInvalidSpecification)
	require.ErrorIs(t, Validate(Curve{Reward: decay, Input: "count"}), ErrInvalidSpecification)
	require.NoError(t, Validate(Curve{Reward: decay, Input: InputValue}))

	_, err = Invoke(Curve{Reward: decay, Input: "count"}, 4, 1, rng)
	require.ErrorIs(t, err, ErrInvalidSpecification)
}
