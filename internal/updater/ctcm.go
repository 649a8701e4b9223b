package updater

import (
	"fmt"
	"math"

	"github.com/xtding233/foraging-backend/internal/distribution"
)

// rowTolerance is how far a transition row may stray from summing to one.
const rowTolerance = 1e-6

// CTCM moves a value between geometrically spaced levels
// Maximum, Maximum*Rho, Maximum*Rho^2, ... according to a transition matrix.
// Row i holds the probabilities of jumping from level i to every level j;
// level n-1 is Maximum.
type CTCM struct {
	matrix  [][]float64
	Rho     float64
	Minimum float64
	Maximum float64

	// first-state draw, see WithFirstState
	drawFirst bool
	initial   []float64
}

// NewCTCM validates and copies the transition matrix. Rows must already be
// stochastic; use NormalizeRows or ReplenishmentMatrix to build one.
func NewCTCM(matrix [][]float64, rho, minimum, maximum float64) (CTCM, error) {
	n := len(matrix)
	if n == 0 {
		return CTCM{}, invalidf("transition matrix is empty")
	}
	if !finite(rho, minimum, maximum) {
		return CTCM{}, invalidf("rho and bounds must be finite")
	}
	if rho <= 0 || rho == 1 {
		return CTCM{}, invalidf("rho %v must be positive and not 1", rho)
	}
	if minimum >= maximum {
		return CTCM{}, invalidf("minimum %v must be lower than maximum %v", minimum, maximum)
	}
	if maximum <= 0 {
		return CTCM{}, fmt.Errorf("%w: maximum %v must be positive", ErrDomain, maximum)
	}

	cp := make([][]float64, n)
	for i, row := range matrix {
		if len(row) != n {
			return CTCM{}, invalidf("transition matrix must be square: row %d has %d entries, want %d", i, len(row), n)
		}
		var sum float64
		for j, p := range row {
			if !finite(p) || p < 0 {
				return CTCM{}, invalidf("transition[%d][%d] = %v must be finite and >= 0", i, j, p)
			}
			sum += p
		}
		if sum == 0 {
			return CTCM{}, invalidf("transition row %d sums to zero", i)
		}
		if math.Abs(sum-1) > rowTolerance {
			return CTCM{}, invalidf("transition row %d sums to %v, want 1", i, sum)
		}
		cp[i] = append([]float64(nil), row...)
	}
	return CTCM{matrix: cp, Rho: rho, Minimum: minimum, Maximum: maximum}, nil
}

// States returns the number of discrete levels.
func (c CTCM) States() int { return len(c.matrix) }

// Matrix returns a copy of the transition matrix.
func (c CTCM) Matrix() [][]float64 {
	out := make([][]float64, len(c.matrix))
	for i, row := range c.matrix {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// Level returns the level index of value, clamped into [0, States()-1].
func (c CTCM) Level(value float64) (int, error) {
	if value <= 0 || !finite(value) {
		return 0, fmt.Errorf("%w: ctcm value %v must be positive and finite", ErrDomain, value)
	}
	n := len(c.matrix)
	// ties round half to even
	i := n - 1 - int(math.RoundToEven(math.Log(value/c.Maximum)/math.Log(c.Rho)))
	if i < 0 {
		i = 0
	}
	if i > n-1 {
		i = n - 1
	}
	return i, nil
}

// LevelValue returns the value of level i: Maximum * Rho^(States()-1-i),
// clamped to [Minimum, Maximum].
func (c CTCM) LevelValue(i int) (float64, error) {
	n := len(c.matrix)
	if i < 0 || i >= n {
		return 0, fmt.Errorf("%w: level %d outside [0, %d]", ErrDomain, i, n-1)
	}
	v := c.Maximum * math.Pow(c.Rho, float64(n-1-i))
	return math.Max(math.Min(v, c.Maximum), c.Minimum), nil
}

// WithFirstState returns a copy of c that draws the starting level of a patch
// from initial, normalised to sum to one. An empty initial picks a level
// uniformly.
func (c CTCM) WithFirstState(initial []float64) (CTCM, error) {
	n := len(c.matrix)
	if n == 0 {
		return CTCM{}, invalidf("ctcm not built; use NewCTCM")
	}
	c.drawFirst = true
	c.initial = nil
	if len(initial) == 0 {
		return c, nil
	}
	if len(initial) != n {
		return CTCM{}, invalidf("initial state has %d entries, want %d", len(initial), n)
	}
	var sum float64
	for i, p := range initial {
		if !finite(p) || p < 0 {
			return CTCM{}, invalidf("initial state[%d] = %v must be finite and >= 0", i, p)
		}
		sum += p
	}
	if sum == 0 {
		return CTCM{}, invalidf("initial state sums to zero")
	}
	c.initial = make([]float64, n)
	for i, p := range initial {
		c.initial[i] = p / sum
	}
	return c, nil
}

// DrawsFirstState reports whether WithFirstState was applied.
func (c CTCM) DrawsFirstState() bool { return c.drawFirst }

// DrawFirstState picks a starting level index.
func (c CTCM) DrawFirstState(rng distribution.RandomSource) (int, error) {
	n := len(c.matrix)
	if n == 0 {
		return 0, invalidf("ctcm not built; use NewCTCM")
	}
	if rng == nil {
		return 0, distribution.ErrNoRandomSource
	}
	coin := rng.Float64()
	if c.initial == nil {
		return min(int(coin*float64(n)), n-1), nil
	}
	var cum float64
	for i, p := range c.initial {
		cum += p
		if coin < cum {
			return i, nil
		}
	}
	// rounding left the coin above the last cumulative sum
	return n - 1, nil
}

// FirstValue draws a starting level and returns its value.
func (c CTCM) FirstValue(rng distribution.RandomSource) (float64, error) {
	i, err := c.DrawFirstState(rng)
	if err != nil {
		return 0, err
	}
	return c.LevelValue(i)
}

func (c CTCM) invoke(value float64, rng distribution.RandomSource) (float64, error) {
	if c.matrix == nil {
		return 0, invalidf("ctcm not built; use NewCTCM")
	}
	i, err := c.Level(value)
	if err != nil {
		return 0, err
	}
	n := len(c.matrix)
	coin := rng.Float64()
	var cum float64
	j := 0
	for ; j < n; j++ {
		cum += c.matrix[i][j]
		if coin < cum {
			break
		}
	}
	if j > n-1 {
		j = n - 1
	}
	next := value / math.Pow(c.Rho, float64(j-i))
	return math.Max(math.Min(next, c.Maximum), c.Minimum), nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
