package analytics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/telemetry-analytics-backend/internal/domain/telemetry"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/config"
)

func newTestOptimizer() *CostOptimizer {
	return NewCostOptimizer(config.CostConfig{
		HighCostPerRequestCents: 5.0,
		MinSavingsPercentage:    10.0,
		TargetSavingsPercentage: 25.0,
	})
}

func costRow(workload string, avgCents float64, requests int64) telemetry.CostBreakdownRow {
	avg := decimal.NewFromFloat(avgCents)
	return telemetry.CostBreakdownRow{
		WorkloadType:   workload,
		AvgCostCents:   avg,
		TotalCostCents: avg.Mul(decimal.NewFromInt(requests)),
		RequestCount:   requests,
	}
}

func TestAnalyzeCosts(t *testing.T) {
	o := newTestOptimizer()

	t.Run("sorted ascending with high-cost flags", func(t *testing.T) {
		entries := o.AnalyzeCosts([]telemetry.CostBreakdownRow{
			costRow("chat", 12, 100),
			costRow("embedding", 2, 100),
		})

		require.Len(t, entries, 2)
		assert.Equal(t, "embedding", entries[0].WorkloadType)
		assert.Equal(t, "chat", entries[1].WorkloadType)
		assert.False(t, entries[0].HighCost)
		assert.True(t, entries[1].HighCost)
	})

	t.Run("cheaper workloads score higher efficiency", func(t *testing.T) {
		entries := o.AnalyzeCosts([]telemetry.CostBreakdownRow{
			costRow("cheap", 1, 10),
			costRow("dear", 20, 10),
		})

		assert.Greater(t, entries[0].EfficiencyScore, entries[1].EfficiencyScore)
	})

	t.Run("free workload stays finite", func(t *testing.T) {
		entries := o.AnalyzeCosts([]telemetry.CostBreakdownRow{costRow("free", 0, 10)})

		assert.InDelta(t, 10.0, entries[0].EfficiencyScore, 1e-9)
	})

	t.Run("empty input yields empty non-nil slice", func(t *testing.T) {
		entries := o.AnalyzeCosts(nil)

		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	})
}

func TestIdentifyOpportunities(t *testing.T) {
	o := newTestOptimizer()

	t.Run("flags workloads beyond 1.5x median", func(t *testing.T) {
		// median of 12 and 2 is 7; cutoff 10.5; only chat qualifies
		opps := o.IdentifyOpportunities([]telemetry.CostBreakdownRow{
			costRow("chat", 12, 100),
			costRow("embedding", 2, 100),
		})

		require.Len(t, opps, 1)
		opp := opps[0]
		assert.Equal(t, "chat", opp.WorkloadType)
		assert.True(t, opp.MedianCostCents.Equal(decimal.NewFromInt(7)))
		assert.True(t, opp.SavingsPerRequestCents.Equal(decimal.NewFromInt(5)))
		assert.True(t, opp.TotalSavingsCents.Equal(decimal.NewFromInt(500)))
	})

	t.Run("sorted by total savings descending", func(t *testing.T) {
		opps := o.IdentifyOpportunities([]telemetry.CostBreakdownRow{
			costRow("a", 1, 10),
			costRow("b", 1, 10),
			costRow("big", 20, 1000),
			costRow("small", 20, 10),
		})

		require.Len(t, opps, 2)
		assert.Equal(t, "big", opps[0].WorkloadType)
		assert.Equal(t, "small", opps[1].WorkloadType)
	})

	t.Run("uniform costs produce no opportunities", func(t *testing.T) {
		opps := o.IdentifyOpportunities([]telemetry.CostBreakdownRow{
			costRow("a", 8, 10),
			costRow("b", 8, 10),
			costRow("c", 8, 10),
		})

		assert.Empty(t, opps)
		assert.NotNil(t, opps)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, o.IdentifyOpportunities(nil))
	})
}

func TestStrategiesFor(t *testing.T) {
	o := newTestOptimizer()

	t.Run("premium tier plus workload keyword", func(t *testing.T) {
		strategies := o.strategiesFor(costRow("chat_completion", 12, 1))

		assert.Contains(t, strategies, "switch to a smaller model where quality allows")
		assert.Contains(t, strategies, "trim conversation context windows")
	})

	t.Run("elevated tier", func(t *testing.T) {
		strategies := o.strategiesFor(costRow("batch_embedding", 6, 1))

		assert.Contains(t, strategies, "tighten prompts to reduce input tokens")
		assert.Contains(t, strategies, "batch embedding requests")
	})

	t.Run("completion keyword without tier", func(t *testing.T) {
		strategies := o.strategiesFor(costRow("text_completion", 1, 1))

		assert.Equal(t, []string{"tune max token limits"}, strategies)
	})

	t.Run("fallback strategy", func(t *testing.T) {
		strategies := o.strategiesFor(costRow("classification", 1, 1))

		assert.Equal(t, []string{"review workload usage patterns"}, strategies)
	})
}

func TestProjectSavings(t *testing.T) {
	o := newTestOptimizer()

	t.Run("projection extrapolates and caps at target", func(t *testing.T) {
		rows := []telemetry.CostBreakdownRow{
			costRow("chat", 12, 100),
			costRow("embedding", 2, 100),
		}
		opps := o.IdentifyOpportunities(rows)

		projection := o.ProjectSavings(rows, opps)

		// raw savings 500 of 1400 total is ~35.7%, capped at 25%
		assert.Equal(t, 25.0, projection.SavingsPercent)
		assert.True(t, projection.DailySavingsCents.Equal(decimal.NewFromInt(500)))
		assert.True(t, projection.MonthlySavingsCents.Equal(decimal.NewFromInt(15000)))
		assert.True(t, projection.AnnualSavingsCents.Equal(decimal.NewFromInt(182500)))
		assert.True(t, projection.MeetsMinimum)
	})

	t.Run("no opportunities projects zero", func(t *testing.T) {
		rows := []telemetry.CostBreakdownRow{costRow("a", 8, 10)}

		projection := o.ProjectSavings(rows, nil)

		assert.Equal(t, 0.0, projection.SavingsPercent)
		assert.True(t, projection.DailySavingsCents.IsZero())
		assert.False(t, projection.MeetsMinimum)
	})

	t.Run("zero total cost avoids division", func(t *testing.T) {
		projection := o.ProjectSavings(nil, nil)

		assert.Equal(t, 0.0, projection.SavingsPercent)
	})
}

func TestBuildReport(t *testing.T) {
	o := newTestOptimizer()

	t.Run("full report", func(t *testing.T) {
		report := o.BuildReport("24h", []telemetry.CostBreakdownRow{
			costRow("chat", 12, 100),
			costRow("embedding", 2, 100),
		})

		assert.Equal(t, telemetry.StatusSuccess, report.Status)
		assert.Equal(t, "24h", report.Timeframe)
		assert.Len(t, report.Efficiency, 2)
		assert.Len(t, report.Opportunities, 1)
		require.NotNil(t, report.Projection)
		assert.NotEmpty(t, report.Recommendations)
		assert.Contains(t, report.Recommendations[0], "chat")
	})

	t.Run("empty rows report no data", func(t *testing.T) {
		report := o.BuildReport("24h", nil)

		assert.Equal(t, telemetry.StatusNoData, report.Status)
		assert.Nil(t, report.Projection)
	})

	t.Run("healthy spend gets monitoring guidance", func(t *testing.T) {
		report := o.BuildReport("24h", []telemetry.CostBreakdownRow{
			costRow("a", 3, 10),
			costRow("b", 3, 10),
		})

		assert.Empty(t, report.Opportunities)
		require.Len(t, report.Recommendations, 2)
		assert.Contains(t, report.Recommendations[0], "continue monitoring")
	})
}

func TestMedianAvgCost(t *testing.T) {
	odd := medianAvgCost([]telemetry.CostBreakdownRow{
		costRow("a", 1, 1), costRow("b", 9, 1), costRow("c", 5, 1),
	})
	even := medianAvgCost([]telemetry.CostBreakdownRow{
		costRow("a", 2, 1), costRow("b", 12, 1),
	})

	assert.True(t, odd.Equal(decimal.NewFromInt(5)))
	assert.True(t, even.Equal(decimal.NewFromInt(7)))
}
