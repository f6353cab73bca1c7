package telemetry

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AnalysisKind identifies one of the supported analysis pipelines
type AnalysisKind string

const (
	KindPerformance      AnalysisKind = "performance"
	KindAnomaly          AnalysisKind = "anomaly"
	KindCorrelation      AnalysisKind = "correlation"
	KindUsagePattern     AnalysisKind = "usage_pattern"
	KindCostOptimization AnalysisKind = "cost_optimization"
	KindTrend            AnalysisKind = "trend"
)

// KnownKinds lists every analysis kind the pipeline accepts
var KnownKinds = []AnalysisKind{
	KindPerformance,
	KindAnomaly,
	KindCorrelation,
	KindUsagePattern,
	KindCostOptimization,
	KindTrend,
}

// IsValid reports whether k names a supported analysis kind
func (k AnalysisKind) IsValid() bool {
	for _, known := range KnownKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ResultStatus is the outcome classification every analysis result carries
type ResultStatus string

const (
	StatusSuccess          ResultStatus = "success"
	StatusNoData           ResultStatus = "no_data"
	StatusInsufficientData ResultStatus = "insufficient_data"
	StatusError            ResultStatus = "error"
)

// AnalysisRequest describes one analytics call. It is created per call and
// discarded after the response is assembled.
type AnalysisRequest struct {
	ID        uuid.UUID         `json:"id"`
	Kind      AnalysisKind      `json:"kind" validate:"required"`
	Metrics   []string          `json:"metrics,omitempty"`
	Timeframe string            `json:"timeframe" validate:"required,timeframe"`
	OwnerID   uuid.UUID         `json:"owner_id,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// NewAnalysisRequest creates a request with a fresh ID
func NewAnalysisRequest(kind AnalysisKind, timeframe string, metrics ...string) *AnalysisRequest {
	return &AnalysisRequest{
		ID:        uuid.New(),
		Kind:      kind,
		Timeframe: timeframe,
		Metrics:   metrics,
	}
}

// TimeSeriesSample is one telemetry point produced by the OLAP store.
// Samples are read-only downstream of the fetch layer.
type TimeSeriesSample struct {
	Timestamp time.Time         `json:"timestamp"`
	Metric    string            `json:"metric"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// SchemaDescriptor holds backend table metadata discovered at runtime
type SchemaDescriptor struct {
	Table     string            `json:"table"`
	Columns   map[string]string `json:"columns"`
	Metrics   []string          `json:"metrics"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// HasMetric reports whether the descriptor declares the named metric
func (s *SchemaDescriptor) HasMetric(name string) bool {
	for _, m := range s.Metrics {
		if m == name {
			return true
		}
	}
	return false
}

// StatisticalSummary holds descriptive statistics for one numeric series.
// An empty series yields the zero value, never an error.
type StatisticalSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// TrendDirection classifies a detected trend
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// TrendResult is the output of trend detection
type TrendResult struct {
	Status         ResultStatus   `json:"status"`
	Direction      TrendDirection `json:"direction,omitempty"`
	FirstHalfSum   float64        `json:"first_half_sum"`
	SecondHalfSum  float64        `json:"second_half_sum"`
	ChangePercent  float64        `json:"change_percent"`
	SamplesUsed    int            `json:"samples_used"`
}

// SeasonalityResult reports hour-of-day usage structure
type SeasonalityResult struct {
	Status      ResultStatus        `json:"status"`
	HourlyMeans map[int]float64     `json:"hourly_means,omitempty"`
	PeakHour    int                 `json:"peak_hour"`
	PeakValue   float64             `json:"peak_value"`
	LowHour     int                 `json:"low_hour"`
	LowValue    float64             `json:"low_value"`
}

// Outlier is one flagged sample with the score that flagged it
type Outlier struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
	Score float64 `json:"score"`
}

// OutlierMethod selects the outlier detection algorithm
type OutlierMethod string

const (
	OutlierMethodIQR    OutlierMethod = "iqr"
	OutlierMethodZScore OutlierMethod = "zscore"
)

// OutlierSet is the output of outlier identification
type OutlierSet struct {
	Status   ResultStatus  `json:"status"`
	Method   OutlierMethod `json:"method"`
	Outliers []Outlier     `json:"outliers"`
}

// AnomalySet is the output of anomaly detection
type AnomalySet struct {
	Status    ResultStatus `json:"status"`
	Threshold float64      `json:"threshold"`
	Anomalies []Outlier    `json:"anomalies"`
}

// CorrelationStrength bands the absolute Pearson coefficient
type CorrelationStrength string

const (
	CorrelationStrong   CorrelationStrength = "strong"
	CorrelationModerate CorrelationStrength = "moderate"
	CorrelationWeak     CorrelationStrength = "weak"
)

// CorrelationResult is the output of cross-metric correlation
type CorrelationResult struct {
	Status      ResultStatus        `json:"status"`
	Coefficient float64             `json:"coefficient"`
	Strength    CorrelationStrength `json:"strength,omitempty"`
	SampleSize  int                 `json:"sample_size"`
}

// CostBreakdownRow is one per-workload cost aggregate supplied by the cost
// data source. Monetary amounts are decimal cents.
type CostBreakdownRow struct {
	WorkloadType   string          `json:"workload_type"`
	AvgCostCents   decimal.Decimal `json:"avg_cost_cents"`
	TotalCostCents decimal.Decimal `json:"total_cost_cents"`
	RequestCount   int64           `json:"request_count"`
}

// OptimizationOpportunity is a flagged high-cost workload with its
// computed savings estimate and matched strategies
type OptimizationOpportunity struct {
	WorkloadType           string          `json:"workload_type"`
	AvgCostCents           decimal.Decimal `json:"avg_cost_cents"`
	MedianCostCents        decimal.Decimal `json:"median_cost_cents"`
	SavingsPerRequestCents decimal.Decimal `json:"savings_per_request_cents"`
	TotalSavingsCents      decimal.Decimal `json:"total_savings_cents"`
	RequestCount           int64           `json:"request_count"`
	Strategies             []string        `json:"strategies"`
}

// CostEfficiencyEntry ranks one workload by cost efficiency
type CostEfficiencyEntry struct {
	WorkloadType    string          `json:"workload_type"`
	AvgCostCents    decimal.Decimal `json:"avg_cost_cents"`
	EfficiencyScore float64         `json:"efficiency_score"`
	HighCost        bool            `json:"high_cost"`
}

// SavingsProjection extrapolates identified savings over time
type SavingsProjection struct {
	SavingsPercent      float64         `json:"savings_percent"`
	DailySavingsCents   decimal.Decimal `json:"daily_savings_cents"`
	MonthlySavingsCents decimal.Decimal `json:"monthly_savings_cents"`
	AnnualSavingsCents  decimal.Decimal `json:"annual_savings_cents"`
	MeetsMinimum        bool            `json:"meets_minimum"`
}

// CostReport is the assembled cost-optimization payload
type CostReport struct {
	Status          ResultStatus              `json:"status"`
	Timeframe       string                    `json:"timeframe"`
	Efficiency      []CostEfficiencyEntry     `json:"efficiency,omitempty"`
	Opportunities   []OptimizationOpportunity `json:"opportunities,omitempty"`
	Projection      *SavingsProjection        `json:"projection,omitempty"`
	Recommendations []string                  `json:"recommendations,omitempty"`
}

// QualityReport is the outcome of raw-data validation
type QualityReport struct {
	DataPoints   int      `json:"data_points"`
	Errors       []string `json:"errors"`
	Warnings     []string `json:"warnings"`
	QualityScore float64  `json:"quality_score"`
}

// Valid reports whether validation passed (no errors recorded)
func (q *QualityReport) Valid() bool {
	return len(q.Errors) == 0
}

// AnalysisResult is the envelope returned by every pipeline entry point
type AnalysisResult struct {
	RequestID       uuid.UUID           `json:"request_id"`
	Kind            AnalysisKind        `json:"kind"`
	Status          ResultStatus        `json:"status"`
	Message         string              `json:"message,omitempty"`
	GeneratedAt     time.Time           `json:"generated_at"`
	Quality         *QualityReport      `json:"quality,omitempty"`
	Summary         *StatisticalSummary `json:"summary,omitempty"`
	Trend           *TrendResult        `json:"trend,omitempty"`
	Seasonality     *SeasonalityResult  `json:"seasonality,omitempty"`
	Outliers        *OutlierSet         `json:"outliers,omitempty"`
	Anomalies       *AnomalySet         `json:"anomalies,omitempty"`
	Correlation     *CorrelationResult  `json:"correlation,omitempty"`
	Cost            *CostReport         `json:"cost,omitempty"`
	Findings        []string            `json:"findings"`
	Recommendations []string            `json:"recommendations"`
}
