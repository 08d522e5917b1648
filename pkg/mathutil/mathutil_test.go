package mathutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEMA_FirstSampleSetsState(t *testing.T) {
	e := NewEMA(0.5)
	out := e.Next(10)
	assert.Equal(t, 10.0, out, "first output should equal first input")
	// second call should blend now
	out2 := e.Next(20)
	assert.InDelta(t, 15.0, out2, 1e-9, "EMA(0.5) of 10 then 20 should be 15")
}

func TestEMA_SequenceAlphaPointFive(t *testing.T) {
	e := NewEMA(0.5)
	got := make([]float64, 0, 4)
	got = append(got, e.Next(10)) // 10
	got = append(got, e.Next(20)) // 0.5*20 + 0.5*10 = 15
	got = append(got, e.Next(20)) // 0.5*20 + 0.5*15 = 17.5
	got = append(got, e.Next(40)) // 0.5*40 + 0.5*17.5 = 28.75

	want := []float64{10, 15, 17.5, 28.75}
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9, "i=%d", i)
	}
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.5))
	assert.Equal(t, 1.0, Clamp01(1.5))
	assert.Equal(t, 0.25, Clamp01(0.25))
	assert.Equal(t, 0.0, Clamp01(math.NaN()))
}

func TestMedian_IgnoresNaN(t *testing.T) {
	assert.InDelta(t, 3.0, Median([]float64{1, 3, 5}), 1e-12)
	assert.InDelta(t, 2.5, Median([]float64{1, 2, 3, 4}), 1e-12)
	assert.InDelta(t, 2.0, Median([]float64{math.NaN(), 1, 3, math.NaN()}), 1e-12)
	assert.True(t, math.IsNaN(Median([]float64{math.NaN(), math.NaN()})))
	assert.True(t, math.IsNaN(Median(nil)))
}

func TestMAD_NormalConsistency(t *testing.T) {
	// For {1,2,3,4,5}: median 3, abs deviations {2,1,0,1,2}, median 1.
	assert.InDelta(t, 1.4826, MAD([]float64{1, 2, 3, 4, 5}), 1e-12)
	// Constant series has zero spread.
	assert.InDelta(t, 0.0, MAD([]float64{7, 7, 7}), 1e-12)
}

func TestFillGaps(t *testing.T) {
	nan := math.NaN()

	got := FillGaps([]float64{nan, 1, nan, nan, 4, nan}, 0)
	want := []float64{1, 1, 1, 1, 4, 4}
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i], got[i], "i=%d", i)
	}

	// All-NaN series collapses to the fallback.
	got = FillGaps([]float64{nan, nan}, 3.85)
	assert.Equal(t, []float64{3.85, 3.85}, got)
}
