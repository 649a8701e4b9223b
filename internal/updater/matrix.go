package updater

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// NormalizeRows returns a copy of m with every row scaled to sum to one.
// Entries must be finite and non-negative; a zero-sum row is rejected.
func NormalizeRows(m [][]float64) ([][]float64, error) {
	if len(m) == 0 {
		return nil, invalidf("matrix is empty")
	}
	out := make([][]float64, len(m))
	for i, row := range m {
		if len(row) != len(m) {
			return nil, invalidf("matrix must be square: row %d has %d entries, want %d", i, len(row), len(m))
		}
		for j, v := range row {
			if !finite(v) || v < 0 {
				return nil, invalidf("matrix[%d][%d] = %v must be finite and >= 0", i, j, v)
			}
		}
		sum := floats.Sum(row)
		if sum == 0 {
			return nil, invalidf("row %d sums to zero", i)
		}
		out[i] = append([]float64(nil), row...)
		floats.Scale(1/sum, out[i])
	}
	return out, nil
}

// ReplenishmentMatrix builds the transition matrix of a pure-birth chain over
// nStates levels observed every dt: P = expm(Q*dt), with Q[i][i] = -rate/period,
// Q[i][i+1] = rate/period and the top level absorbing.
func ReplenishmentMatrix(nStates int, rate, period, dt float64) ([][]float64, error) {
	if nStates < 1 {
		return nil, invalidf("nStates %d must be >= 1", nStates)
	}
	if !finite(rate, period, dt) || rate < 0 || period <= 0 || dt < 0 {
		return nil, invalidf("rate >= 0, period > 0 and dt >= 0 are required")
	}

	q := mat.NewDense(nStates, nStates, nil)
	k := rate / period
	for i := 0; i < nStates-1; i++ {
		q.Set(i, i, -k)
		q.Set(i, i+1, k)
	}
	q.Scale(dt, q)

	var p mat.Dense
	p.Exp(q)

	rows := make([][]float64, nStates)
	for i := range rows {
		rows[i] = make([]float64, nStates)
		for j := range rows[i] {
			v := p.At(i, j)
			// expm leaves ~1e-17 noise below the diagonal
			if v < 0 {
				v = 0
			}
			rows[i][j] = v
		}
	}
	return NormalizeRows(rows)
}
