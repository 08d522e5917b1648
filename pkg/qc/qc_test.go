package qc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/battlab/socfit/pkg/dataset"
)

func goodSummary(name, scenario string) dataset.RunSummary {
	return dataset.RunSummary{
		RunName:       name,
		Scenario:      scenario,
		NSamples:      120,
		DurationS:     600,
		SOC0Pct:       85,
		Voltage0MV:    3950,
		ThermalCPU0C:  38,
		HasPowerTrace: true,
		PowerMeanMW:   800,
	}
}

func TestPolicy_Evaluate(t *testing.T) {
	p := DefaultPolicy()

	t.Run("clean run passes", func(t *testing.T) {
		v := p.Evaluate(goodSummary("r1", "idle"))
		assert.True(t, v.Keep)
		assert.Empty(t, v.Reasons)
		assert.Equal(t, "", v.Reason())
	})

	t.Run("each threshold rejects with its reason", func(t *testing.T) {
		cases := []struct {
			name   string
			mutate func(*dataset.RunSummary)
			reason string
		}{
			{"low soc", func(s *dataset.RunSummary) { s.SOC0Pct = 42 }, "soc<50.0"},
			{"low voltage", func(s *dataset.RunSummary) { s.Voltage0MV = 3550 }, "voltage<3700.0mV"},
			{"hot cpu", func(s *dataset.RunSummary) { s.ThermalCPU0C = 71 }, "thermal_cpu0>60.0C"},
			{"too few rows", func(s *dataset.RunSummary) { s.NSamples = 12 }, "rows<30"},
			{"too short", func(s *dataset.RunSummary) { s.DurationS = 45 }, "duration<60s"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				s := goodSummary("r", "s")
				tc.mutate(&s)
				v := p.Evaluate(s)
				assert.False(t, v.Keep)
				assert.Equal(t, []string{tc.reason}, v.Reasons)
			})
		}
	})

	t.Run("reasons accumulate in order", func(t *testing.T) {
		s := goodSummary("r", "s")
		s.SOC0Pct = 30
		s.Voltage0MV = 3500
		s.NSamples = 5
		v := p.Evaluate(s)
		assert.Equal(t, "soc<50.0;voltage<3700.0mV;rows<30", v.Reason())
	})

	t.Run("missing readings pass", func(t *testing.T) {
		s := goodSummary("r", "s")
		s.SOC0Pct = math.NaN()
		s.Voltage0MV = math.NaN()
		s.ThermalCPU0C = math.NaN()
		s.DurationS = math.NaN()
		v := p.Evaluate(s)
		assert.True(t, v.Keep)
	})

	t.Run("optional gates", func(t *testing.T) {
		strict := p
		strict.RequireThermalNominal = true
		strict.RequireUnplugged = true
		strict.RequirePowerTrace = true

		s := goodSummary("r", "s")
		s.HasPowerTrace = false
		s.ThermalStatus0 = 2
		s.Plugged0 = 1
		v := strict.Evaluate(s)
		assert.Equal(t, "no_perfetto;thermal_status!=0;plugged", v.Reason())

		// Same summary passes under the default policy.
		assert.True(t, p.Evaluate(s).Keep)
	})
}

func TestPolicy_ApplyAndFilter(t *testing.T) {
	rows := []dataset.RunSummary{
		goodSummary("keep1", "idle"),
		goodSummary("drop1", "gps"),
	}
	rows[1].SOC0Pct = 20

	verdicts := DefaultPolicy().Apply(rows)
	require.Len(t, verdicts, 2)
	assert.True(t, rows[0].QCKeep)
	assert.False(t, rows[1].QCKeep)
	assert.Equal(t, "soc<50.0", rows[1].QCRejectReasons)

	ds := dataset.Dataset{Runs: []dataset.Run{
		{Name: "keep1"}, {Name: "drop1"}, {Name: "unknown"},
	}}
	kept := Filter(ds, verdicts)
	require.Len(t, kept.Runs, 1)
	assert.Equal(t, "keep1", kept.Runs[0].Name)
}

func TestFromSummaries(t *testing.T) {
	rows := []dataset.RunSummary{
		{RunName: "keep1", QCKeep: true},
		{RunName: "drop1", QCKeep: false, QCRejectReasons: "soc<50.0;rows<30"},
	}
	verdicts := FromSummaries(rows)
	require.Len(t, verdicts, 2)
	assert.True(t, verdicts[0].Keep)
	assert.Empty(t, verdicts[0].Reasons)
	assert.False(t, verdicts[1].Keep)
	assert.Equal(t, []string{"soc<50.0", "rows<30"}, verdicts[1].Reasons)
	// Round-trips the stored form.
	assert.Equal(t, "soc<50.0;rows<30", verdicts[1].Reason())

	// Stored verdicts drive dataset filtering the same way fresh ones do.
	ds := dataset.Dataset{Runs: []dataset.Run{{Name: "keep1"}, {Name: "drop1"}}}
	kept := Filter(ds, verdicts)
	require.Len(t, kept.Runs, 1)
	assert.Equal(t, "keep1", kept.Runs[0].Name)
}

func TestScenarioRepeatability(t *testing.T) {
	rows := []dataset.RunSummary{
		{RunName: "a1", Scenario: "a", PowerMeanMW: 1000},
		{RunName: "a2", Scenario: "a", PowerMeanMW: 1100},
		{RunName: "b1", Scenario: "b", PowerMeanMW: 500},
		{RunName: "b2", Scenario: "b", PowerMeanMW: 900},
		{RunName: "c1", Scenario: "c", PowerMeanMW: 700}, // single run
		{RunName: "d1", Scenario: "d", PowerMeanMW: math.NaN()},
		{RunName: "d2", Scenario: "d", PowerMeanMW: 600},
	}

	stats := ScenarioRepeatability(rows)
	require.Len(t, stats, 2)

	// b (ratio 1.8) sorts before a (ratio 1.1).
	assert.Equal(t, "b", stats[0].Scenario)
	assert.Equal(t, "a", stats[1].Scenario)

	b := stats[0]
	assert.Equal(t, 2, b.N)
	assert.InDelta(t, 700.0, b.MeanMW, 1e-9)
	assert.InDelta(t, 900.0/500.0, b.RatioMaxMin, 1e-9)
	assert.InDelta(t, b.StdMW/b.MeanMW, b.CV, 1e-12)
	assert.Equal(t, 500.0, b.MinMW)
	assert.Equal(t, 900.0, b.MaxMW)
}
