package analytics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/davidleathers/telemetry-analytics-backend/internal/domain/telemetry"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/config"
)

// Cost tiers selecting rule-based optimization strategies, in cents
var (
	premiumCostTier  = decimal.NewFromInt(10)
	elevatedCostTier = decimal.NewFromInt(5)

	// A workload becomes an opportunity when its average cost exceeds
	// 1.5x the median across workloads
	opportunityFactor = decimal.NewFromFloat(1.5)

	// efficiencyDamping keeps the efficiency score finite for free workloads
	efficiencyDamping = 0.1
)

// CostOptimizer ranks workloads by cost efficiency, flags optimization
// opportunities and projects the savings they represent
type CostOptimizer struct {
	cfg config.CostConfig
}

// NewCostOptimizer creates an optimizer with the configured thresholds
func NewCostOptimizer(cfg config.CostConfig) *CostOptimizer {
	if cfg.HighCostPerRequestCents <= 0 {
		cfg.HighCostPerRequestCents = 5.0
	}
	if cfg.MinSavingsPercentage <= 0 {
		cfg.MinSavingsPercentage = 10.0
	}
	if cfg.TargetSavingsPercentage <= 0 {
		cfg.TargetSavingsPercentage = 25.0
	}
	return &CostOptimizer{cfg: cfg}
}

// AnalyzeCosts computes per-workload efficiency scores and flags workloads
// above the high-cost threshold, sorted ascending by average cost
func (o *CostOptimizer) AnalyzeCosts(rows []telemetry.CostBreakdownRow) []telemetry.CostEfficiencyEntry {
	entries := make([]telemetry.CostEfficiencyEntry, 0, len(rows))
	highCost := decimal.NewFromFloat(o.cfg.HighCostPerRequestCents)

	for _, row := range rows {
		avg := row.AvgCostCents.InexactFloat64()
		entries = append(entries, telemetry.CostEfficiencyEntry{
			WorkloadType:    row.WorkloadType,
			AvgCostCents:    row.AvgCostCents,
			EfficiencyScore: 1 / (avg + efficiencyDamping),
			HighCost:        row.AvgCostCents.GreaterThan(highCost),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].AvgCostCents.LessThan(entries[j].AvgCostCents)
	})

	return entries
}

// IdentifyOpportunities flags workloads whose average cost exceeds 1.5x the
// median, with the savings estimate and matched strategies attached
func (o *CostOptimizer) IdentifyOpportunities(rows []telemetry.CostBreakdownRow) []telemetry.OptimizationOpportunity {
	opportunities := []telemetry.OptimizationOpportunity{}
	if len(rows) == 0 {
		return opportunities
	}

	median := medianAvgCost(rows)
	cutoff := median.Mul(opportunityFactor)

	for _, row := range rows {
		if !row.AvgCostCents.GreaterThan(cutoff) {
			continue
		}

		perRequest := row.AvgCostCents.Sub(median)
		opportunities = append(opportunities, telemetry.OptimizationOpportunity{
			WorkloadType:           row.WorkloadType,
			AvgCostCents:           row.AvgCostCents,
			MedianCostCents:        median,
			SavingsPerRequestCents: perRequest,
			TotalSavingsCents:      perRequest.Mul(decimal.NewFromInt(row.RequestCount)),
			RequestCount:           row.RequestCount,
			Strategies:             o.strategiesFor(row),
		})
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].TotalSavingsCents.GreaterThan(opportunities[j].TotalSavingsCents)
	})

	return opportunities
}

// strategiesFor selects strategies by cost tier and workload-type keyword
func (o *CostOptimizer) strategiesFor(row telemetry.CostBreakdownRow) []string {
	var strategies []string

	if row.AvgCostCents.GreaterThan(premiumCostTier) {
		strategies = append(strategies,
			"switch to a smaller model where quality allows",
			"batch compatible requests",
			"cache repeated responses")
	} else if row.AvgCostCents.GreaterThan(elevatedCostTier) {
		strategies = append(strategies,
			"tighten prompts to reduce input tokens",
			"tune cache hit rates")
	}

	workload := strings.ToLower(row.WorkloadType)
	switch {
	case strings.Contains(workload, "chat"):
		strategies = append(strategies, "trim conversation context windows")
	case strings.Contains(workload, "embedding"):
		strategies = append(strategies, "batch embedding requests")
	case strings.Contains(workload, "completion"):
		strategies = append(strategies, "tune max token limits")
	}

	if len(strategies) == 0 {
		strategies = append(strategies, "review workload usage patterns")
	}

	return strategies
}

// ProjectSavings extrapolates the identified opportunities into daily,
// monthly and annual figures. The savings percentage is capped at the
// configured target.
func (o *CostOptimizer) ProjectSavings(rows []telemetry.CostBreakdownRow, opportunities []telemetry.OptimizationOpportunity) *telemetry.SavingsProjection {
	daily := decimal.Zero
	for _, opp := range opportunities {
		daily = daily.Add(opp.TotalSavingsCents)
	}

	totalCost := decimal.Zero
	for _, row := range rows {
		totalCost = totalCost.Add(row.TotalCostCents)
	}

	var pct float64
	if totalCost.IsPositive() {
		pct = daily.Div(totalCost).InexactFloat64() * 100
	}
	if pct > o.cfg.TargetSavingsPercentage {
		pct = o.cfg.TargetSavingsPercentage
	}

	return &telemetry.SavingsProjection{
		SavingsPercent:      pct,
		DailySavingsCents:   daily,
		MonthlySavingsCents: daily.Mul(decimal.NewFromInt(30)),
		AnnualSavingsCents:  daily.Mul(decimal.NewFromInt(365)),
		MeetsMinimum:        pct >= o.cfg.MinSavingsPercentage,
	}
}

// Recommendations renders the top three opportunities by absolute savings,
// each paired with its first strategy. With no opportunities it falls back
// to generic monitoring guidance.
func (o *CostOptimizer) Recommendations(report *telemetry.CostReport) []string {
	if report == nil || len(report.Opportunities) == 0 {
		return []string{
			"No high-cost workloads detected; continue monitoring per-workload spend",
			"Review cost breakdowns weekly to catch drift early",
		}
	}

	top := report.Opportunities
	if len(top) > 3 {
		top = top[:3]
	}

	recs := make([]string, 0, len(top))
	for _, opp := range top {
		strategy := "review workload usage patterns"
		if len(opp.Strategies) > 0 {
			strategy = opp.Strategies[0]
		}
		recs = append(recs, fmt.Sprintf(
			"Optimize %q workloads: %s (potential savings %s cents total)",
			opp.WorkloadType, strategy, opp.TotalSavingsCents.StringFixed(0)))
	}

	return recs
}

// BuildReport assembles the full cost-optimization payload for a timeframe
func (o *CostOptimizer) BuildReport(timeframe string, rows []telemetry.CostBreakdownRow) *telemetry.CostReport {
	report := &telemetry.CostReport{
		Status:    telemetry.StatusSuccess,
		Timeframe: timeframe,
	}

	if len(rows) == 0 {
		report.Status = telemetry.StatusNoData
		return report
	}

	report.Efficiency = o.AnalyzeCosts(rows)
	report.Opportunities = o.IdentifyOpportunities(rows)
	report.Projection = o.ProjectSavings(rows, report.Opportunities)
	report.Recommendations = o.Recommendations(report)

	return report
}

// medianAvgCost is the median of per-workload average costs
func medianAvgCost(rows []telemetry.CostBreakdownRow) decimal.Decimal {
	costs := make([]decimal.Decimal, len(rows))
	for i, row := range rows {
		costs[i] = row.AvgCostCents
	}
	sort.SliceStable(costs, func(i, j int) bool { return costs[i].LessThan(costs[j]) })

	mid := len(costs) / 2
	if len(costs)%2 == 1 {
		return costs[mid]
	}
	return costs[mid-1].Add(costs[mid]).Div(decimal.NewFromInt(2))
}
