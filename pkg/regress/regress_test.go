package regress

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeastSquares_ExactLine(t *testing.T) {
	// y = 1 + 2x, noiseless
	xs := []float64{0, 1, 2, 3, 4}
	ys := make([]float64, len(xs))
	for i, v := range xs {
		ys[i] = 1 + 2*v
	}

	x := Design(Ones(len(xs)), xs)
	beta, err := LeastSquares(x, ys)
	require.NoError(t, err)
	require.Len(t, beta, 2)
	assert.InDelta(t, 1.0, beta[0], 1e-9)
	assert.InDelta(t, 2.0, beta[1], 1e-9)
}

func TestRidge_ShrinksTowardZero(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4, 5}
	ys := make([]float64, len(xs))
	for i, v := range xs {
		ys[i] = 3 * v
	}
	x := Design(xs)

	b0, err := Ridge(x, ys, 0)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, b0[0], 1e-9)

	b1, err := Ridge(x, ys, 10)
	require.NoError(t, err)
	assert.Less(t, b1[0], b0[0], "ridge should shrink the slope")
	assert.Greater(t, b1[0], 0.0)
}

func TestRidge_DimChecks(t *testing.T) {
	x := Design(Ones(2), []float64{1, 2})
	_, err := Ridge(x, []float64{1, 2, 3}, 1)
	assert.ErrorIs(t, err, ErrDimMismatch)

	x = Design(Ones(1), []float64{1})
	_, err = LeastSquares(x, []float64{1})
	assert.NoError(t, err) // square system is still solvable
}

func TestHuberIRLS_ResistsOutlier(t *testing.T) {
	// y = 5 + x with one gross outlier.
	xs := make([]float64, 20)
	ys := make([]float64, 20)
	for i := range xs {
		xs[i] = float64(i)
		ys[i] = 5 + xs[i]
	}
	ys[10] += 500

	x := Design(Ones(len(xs)), xs)

	ols, err := LeastSquares(x, ys)
	require.NoError(t, err)

	rob, err := HuberIRLS(x, ys, DefaultHuber())
	require.NoError(t, err)

	t.Logf("ols  : intercept=%.4f slope=%.4f", ols[0], ols[1])
	t.Logf("huber: intercept=%.4f slope=%.4f", rob[0], rob[1])

	// The robust fit should land much closer to the clean line.
	assert.InDelta(t, 5.0, rob[0], 0.05)
	assert.InDelta(t, 1.0, rob[1], 0.01)
	assert.Greater(t, math.Abs(ols[0]-5)+math.Abs(ols[1]-1), math.Abs(rob[0]-5)+math.Abs(rob[1]-1))
}

func TestHuberIRLS_CleanDataMatchesOLS(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4, 5, 6}
	ys := make([]float64, len(xs))
	for i, v := range xs {
		ys[i] = -2 + 0.5*v
	}
	x := Design(Ones(len(xs)), xs)

	ols, err := LeastSquares(x, ys)
	require.NoError(t, err)
	rob, err := HuberIRLS(x, ys, DefaultHuber())
	require.NoError(t, err)

	assert.InDelta(t, ols[0], rob[0], 1e-6)
	assert.InDelta(t, ols[1], rob[1], 1e-6)
}

func TestClampNonNegative(t *testing.T) {
	beta := ClampNonNegative([]float64{-0.5, 0, 1.25})
	assert.Equal(t, []float64{0, 0, 1.25}, beta)
}

func TestPearson(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2, 4, 6, 8, 10}
	assert.InDelta(t, 1.0, Pearson(x, y), 1e-12)

	yneg := []float64{10, 8, 6, 4, 2}
	assert.InDelta(t, -1.0, Pearson(x, yneg), 1e-12)

	// NaN pairs are masked; fewer than 3 finite pairs -> NaN
	nan := math.NaN()
	assert.True(t, math.IsNaN(Pearson([]float64{1, nan, 2}, []float64{1, 1, 2})))

	// zero variance -> NaN
	assert.True(t, math.IsNaN(Pearson([]float64{1, 1, 1, 1}, []float64{1, 2, 3, 4})))
}

func TestSummarize(t *testing.T) {
	m := Summarize([]float64{1, -1, 3, math.NaN()})
	assert.Equal(t, 3, m.N)
	assert.InDelta(t, 5.0/3.0, m.MAEmW, 1e-12)
	assert.InDelta(t, math.Sqrt(11.0/3.0), m.RMSEmW, 1e-12)
	assert.InDelta(t, 1.0, m.BiasmW, 1e-12)

	empty := Summarize([]float64{math.NaN()})
	assert.Equal(t, 0, empty.N)
	assert.True(t, math.IsNaN(empty.MAEmW))
}
