package analytics

import (
	"context"

	"github.com/google/uuid"

	"github.com/davidleathers/telemetry-analytics-backend/internal/domain/telemetry"
)

// CostDataSource supplies per-workload cost aggregates for a timeframe.
// The production implementation queries the OLAP store; tests substitute
// their own.
type CostDataSource interface {
	CostBreakdown(ctx context.Context, timeframe string, ownerID uuid.UUID) ([]telemetry.CostBreakdownRow, error)
}

// Service is the pipeline façade: one entry point per analysis kind, each
// executing validate -> fetch -> analyze under the reliability wrapper.
// Methods are explicit and named; nothing is resolved dynamically.
type Service interface {
	AnalyzePerformance(ctx context.Context, req *telemetry.AnalysisRequest) *telemetry.AnalysisResult
	DetectAnomalies(ctx context.Context, req *telemetry.AnalysisRequest) *telemetry.AnalysisResult
	AnalyzeCorrelations(ctx context.Context, req *telemetry.AnalysisRequest) *telemetry.AnalysisResult
	AnalyzeUsagePatterns(ctx context.Context, req *telemetry.AnalysisRequest) *telemetry.AnalysisResult
	OptimizeCosts(ctx context.Context, req *telemetry.AnalysisRequest) *telemetry.AnalysisResult
	AnalyzeTrends(ctx context.Context, req *telemetry.AnalysisRequest) *telemetry.AnalysisResult

	// Analyze dispatches on the request kind
	Analyze(ctx context.Context, req *telemetry.AnalysisRequest) *telemetry.AnalysisResult

	// Health reports the aggregated pipeline health
	Health() HealthStatus
}
