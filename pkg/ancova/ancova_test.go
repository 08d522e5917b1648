package ancova

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/battlab/socfit/pkg/dataset"
)

// covariateFixture builds runs where mean power is a scenario effect plus
// 4 mW per start-SOC percent, so the adjustment target is known. Scenario C
// starts systematically fuller and looks hotter than it is.
func covariateFixture() []dataset.RunSummary {
	bases := map[string]float64{"A": 1000, "B": 1200, "C": 1500}
	socs := map[string][]float64{
		"A": {60, 63, 64, 66},
		"B": {68, 71, 72, 75},
		"C": {80, 81, 84, 87},
	}

	var rows []dataset.RunSummary
	i := 0
	for _, scen := range []string{"A", "B", "C"} {
		for j, soc := range socs[scen] {
			rows = append(rows, dataset.RunSummary{
				RunName:       scen + "-" + string(rune('1'+j)),
				Scenario:      scen,
				PowerMeanMW:   bases[scen] + 4*soc,
				SOC0Pct:       soc,
				Voltage0MV:    3800 + 7*float64((i*5)%11),
				ThermalCPU0C:  30 + float64(i%4),
				ThermalBatt0C: 26 + float64((i*i)%5),
				QCKeep:        true,
			})
			i++
		}
	}
	return rows
}

func TestAdjustedMeans(t *testing.T) {
	rows := covariateFixture()
	res, err := AdjustedMeans(rows, Options{})
	require.NoError(t, err)
	require.Len(t, res.Scenarios, 3)
	assert.Equal(t, "A", res.Baseline)
	assert.Equal(t, 12, res.NFit)

	byScen := map[string]ScenarioMean{}
	for _, s := range res.Scenarios {
		byScen[s.Scenario] = s
	}

	// Raw gap C-A carries the SOC confound; the adjusted gap is the true
	// scenario effect.
	rawGap := byScen["C"].RawMeanMW - byScen["A"].RawMeanMW
	adjGap := byScen["C"].AdjustedMeanMW - byScen["A"].AdjustedMeanMW
	t.Logf("C-A gap: raw=%.1f adjusted=%.1f", rawGap, adjGap)
	assert.InDelta(t, 579.0, rawGap, 1e-6)
	assert.InDelta(t, 500.0, adjGap, 5.0)

	// C was inflated by its start state, so raw > adjusted.
	assert.Greater(t, byScen["C"].DeltaMW, 20.0)
	assert.Less(t, byScen["A"].DeltaMW, -20.0)

	// Scenarios come back worst-adjustment-first.
	for i := 1; i < len(res.Scenarios); i++ {
		assert.GreaterOrEqual(t,
			math.Abs(res.Scenarios[i-1].DeltaMW),
			math.Abs(res.Scenarios[i].DeltaMW))
	}

	// Terms: intercept, two dummies, four covariates.
	require.Len(t, res.Coefficients, 7)
	assert.Equal(t, "intercept", res.Coefficients[0].Term)
	assert.Equal(t, "scen_B", res.Coefficients[1].Term)
	assert.Equal(t, "scen_C", res.Coefficients[2].Term)
	assert.Equal(t, "soc0_pct", res.Coefficients[3].Term)
	assert.InDelta(t, 4.0, res.Coefficients[3].Coef, 0.2)

	// Reference defaults to the medians.
	assert.InDelta(t, 71.5, res.Ref.SOC0Pct, 1e-9)
}

func TestAdjustedMeans_RawStats(t *testing.T) {
	rows := covariateFixture()
	res, err := AdjustedMeans(rows, Options{})
	require.NoError(t, err)

	for _, s := range res.Scenarios {
		assert.Equal(t, 4, s.N, s.Scenario)
		assert.Greater(t, s.RawStdMW, 0.0)
		assert.Greater(t, s.RatioMaxMin, 1.0)
		assert.InDelta(t, s.RawStdMW/s.RawMeanMW, s.RawCV, 1e-12)
	}
}

func TestAdjustedMeans_ExplicitReference(t *testing.T) {
	rows := covariateFixture()
	res, err := AdjustedMeans(rows, Options{
		Ref: Reference{SOC0Pct: 50, Voltage0V: 3.85, ThermalCPU0C: 35, ThermalBatt0C: 30},
	})
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.Ref.SOC0Pct)

	// Adjusted gaps are reference-invariant.
	byScen := map[string]ScenarioMean{}
	for _, s := range res.Scenarios {
		byScen[s.Scenario] = s
	}
	adjGap := byScen["C"].AdjustedMeanMW - byScen["A"].AdjustedMeanMW
	assert.InDelta(t, 500.0, adjGap, 5.0)
}

func TestAdjustedMeans_QCKeepFilter(t *testing.T) {
	rows := covariateFixture()
	for i := range rows {
		if rows[i].Scenario == "C" {
			rows[i].QCKeep = false
		}
	}
	res, err := AdjustedMeans(rows, Options{OnlyQCKeep: true})
	require.NoError(t, err)
	require.Len(t, res.Scenarios, 2)
	for _, s := range res.Scenarios {
		assert.NotEqual(t, "C", s.Scenario)
	}
}

func TestAdjustedMeans_TooFewRows(t *testing.T) {
	rows := covariateFixture()[:5]
	_, err := AdjustedMeans(rows, Options{})
	assert.ErrorIs(t, err, ErrTooFewRows)

	_, err = AdjustedMeans(nil, Options{})
	assert.ErrorIs(t, err, ErrTooFewRows)
}

func TestAdjustedMeans_IncompleteRowsExcludedFromFit(t *testing.T) {
	rows := covariateFixture()
	rows = append(rows, dataset.RunSummary{
		RunName: "X-1", Scenario: "A",
		PowerMeanMW: 5000, SOC0Pct: math.NaN(),
		QCKeep: true,
	})
	res, err := AdjustedMeans(rows, Options{})
	require.NoError(t, err)
	assert.Equal(t, 12, res.NFit)

	// The incomplete run still counts toward raw stats.
	for _, s := range res.Scenarios {
		if s.Scenario == "A" {
			assert.Equal(t, 5, s.N)
		}
	}
}
func TestAdjustedMeans_ScenarioWithoutCompleteRows(t *testing.T) {
	// Every run of D misses a covariate, so D cannot enter the fit. It must
	// not get a dummy column (all-zero over the fit rows, a singular design)
	// and instead reports raw stats with no adjusted mean.
	rows := covariateFixture()
	for j := 0; j < 4; j++ {
		rows = append(rows, dataset.RunSummary{
			RunName:       "D-" + string(rune('1'+j)),
			Scenario:      "D",
			PowerMeanMW:   2000 + 10*float64(j),
			SOC0Pct:       70 + float64(j),
			Voltage0MV:    3850,
			ThermalCPU0C:  31,
			ThermalBatt0C: math.NaN(),
			QCKeep:        true,
		})
	}

	res, err := AdjustedMeans(rows, Options{})
	require.NoError(t, err)
	require.Len(t, res.Scenarios, 4)
	assert.Equal(t, "A", res.Baseline)
	assert.Equal(t, 12, res.NFit)
	require.Len(t, res.Coefficients, 7)

	byScen := map[string]ScenarioMean{}
	for _, s := range res.Scenarios {
		byScen[s.Scenario] = s
	}
	d := byScen["D"]
	assert.Equal(t, 4, d.N)
	assert.InDelta(t, 2015.0, d.RawMeanMW, 1e-9)
	assert.True(t, math.IsNaN(d.AdjustedMeanMW))
	assert.True(t, math.IsNaN(d.DeltaMW))

	// The fitted scenarios are unaffected by D's presence.
	adjGap := byScen["C"].AdjustedMeanMW - byScen["A"].AdjustedMeanMW
	assert.InDelta(t, 500.0, adjGap, 5.0)

	// Unfittable scenarios sort last.
	assert.Equal(t, "D", res.Scenarios[len(res.Scenarios)-1].Scenario)
}
