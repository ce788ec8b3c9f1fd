package analysis

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/benchconsole/internal/model"
)

func TestAnalyze(t *testing.T) {
	t.Run("ModerateEfficiency", func(t *testing.T) {
		r := Analyze(Input{
			AchievedMBps: 500,
			Baseline: &model.Suggestions{
				EstimatedAchievableThroughputMbps: 8000,
				MaxTheoreticalThroughputMbps:      10000,
			},
		})

		require.True(t, r.HasBaseline)
		require.NotNil(t, r.ExpectedMBps)
		assert.Equal(t, 1000.0, *r.ExpectedMBps)
		require.NotNil(t, r.MaxMBps)
		assert.Equal(t, 1250.0, *r.MaxMBps)
		assert.True(t, r.Efficiency.Valid)
		assert.InDelta(t, 50.0, r.Efficiency.Value, 1e-9)
		assert.Equal(t, "50.0%", r.Efficiency.String())
		assert.Equal(t, BandModerate, r.Band)
		assert.InDelta(t, 40.0, r.Utilization.Value, 1e-9)
		assert.Equal(t, BottleneckStorage, r.Bottleneck)
	})

	t.Run("NoBaseline", func(t *testing.T) {
		for name, b := range map[string]*model.Suggestions{
			"absent": nil,
			"zero":   {EstimatedAchievableThroughputMbps: 0, MaxTheoreticalThroughputMbps: 1000},
			"nan":    {EstimatedAchievableThroughputMbps: math.NaN()},
		} {
			t.Run(name, func(t *testing.T) {
				r := Analyze(Input{AchievedMBps: 500, IOPS: 1200, LatencyUs: 850, Baseline: b})

				assert.False(t, r.HasBaseline)
				assert.False(t, r.Efficiency.Valid)
				assert.False(t, r.Utilization.Valid)
				assert.Equal(t, NoData, r.Efficiency.String())
				assert.Equal(t, NoData, r.Utilization.String())
				assert.Equal(t, BandNone, r.Band)
				assert.Equal(t, BottleneckUnknown, r.Bottleneck)
				assert.Equal(t, 1200.0, r.IOPS)
				assert.Equal(t, 850.0, r.LatencyUs)
			})
		}
	})

	t.Run("ZeroMaximumLeavesUtilizationUndefined", func(t *testing.T) {
		r := Analyze(Input{
			AchievedMBps: 900,
			Baseline:     &model.Suggestions{EstimatedAchievableThroughputMbps: 8000},
		})

		assert.True(t, r.HasBaseline)
		assert.Nil(t, r.MaxMBps)
		assert.InDelta(t, 90.0, r.Efficiency.Value, 1e-9)
		assert.Equal(t, BandExcellent, r.Band)
		assert.False(t, r.Utilization.Valid)
		assert.False(t, math.IsInf(r.Utilization.Value, 0))
	})

	t.Run("SaturatedLinkIsNetworkBound", func(t *testing.T) {
		r := Analyze(Input{
			AchievedMBps: 1200,
			Baseline: &model.Suggestions{
				EstimatedAchievableThroughputMbps: 8000,
				MaxTheoreticalThroughputMbps:      10000,
			},
		})
		assert.Equal(t, BottleneckNetwork, r.Bottleneck)
	})

	t.Run("NonFiniteAchievedIsNotRendered", func(t *testing.T) {
		r := Analyze(Input{
			AchievedMBps: math.Inf(1),
			Baseline:     &model.Suggestions{EstimatedAchievableThroughputMbps: 8000},
		})
		assert.True(t, r.HasBaseline)
		assert.False(t, r.Efficiency.Valid)
		assert.Equal(t, 0.0, r.AchievedMBps)
	})

	t.Run("UndefinedPercentEncodesAsNull", func(t *testing.T) {
		data, err := json.Marshal(Analyze(Input{AchievedMBps: 10}))
		require.NoError(t, err)

		var out map[string]any
		require.NoError(t, json.Unmarshal(data, &out))
		assert.Nil(t, out["efficiency"])
		assert.Nil(t, out["utilization"])
		assert.Equal(t, false, out["has_baseline"])
	})

	t.Run("PercentDecodes", func(t *testing.T) {
		var p Percent
		require.NoError(t, json.Unmarshal([]byte("null"), &p))
		assert.False(t, p.Valid)

		require.NoError(t, json.Unmarshal([]byte("50"), &p))
		assert.Equal(t, Percent{Value: 50, Valid: true}, p)
	})
}

func TestBandFor(t *testing.T) {
	cases := []struct {
		efficiency float64
		band       Band
	}{
		{100, BandExcellent},
		{90, BandExcellent},
		{89.99, BandGood},
		{70, BandGood},
		{69.99, BandModerate},
		{50, BandModerate},
		{49.99, BandBelowExpected},
		{0, BandBelowExpected},
	}
	for _, c := range cases {
		assert.Equal(t, c.band, BandFor(c.efficiency), "efficiency %.2f", c.efficiency)
	}
}

func TestFromExecution(t *testing.T) {
	exec := &model.Execution{
		TotalThroughputMBps: 750,
		TotalIOPS:           3000,
		AvgLatencyUs:        420,
		NetworkBaseline: &model.NetworkBaseline{
			Suggestions: &model.Suggestions{EstimatedAchievableThroughputMbps: 8000},
		},
	}

	r := Analyze(FromExecution(exec))
	assert.InDelta(t, 75.0, r.Efficiency.Value, 1e-9)
	assert.Equal(t, BandGood, r.Band)
	assert.Equal(t, BottleneckNone, r.Bottleneck)
}
