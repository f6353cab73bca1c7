package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/telemetry-analytics-backend/internal/domain/telemetry"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/config"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/olap"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Olap: config.OlapConfig{
			TelemetryTable: "telemetry_events",
			CostTable:      "workload_costs",
		},
		Analysis: config.AnalysisConfig{
			MinDataPoints:     10,
			MaxNullPercentage: 20,
			MinTimeSpanHours:  1,
			OutlierZThreshold: 2.0,
			AnomalyZThreshold: 3.0,
		},
		Cost: config.CostConfig{
			HighCostPerRequestCents: 5.0,
			MinSavingsPercentage:    10.0,
			TargetSavingsPercentage: 25.0,
		},
		Cache: config.CacheConfig{
			SchemaTTL: time.Hour,
			ResultTTL: 15 * time.Minute,
		},
		Circuit: config.CircuitConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
		},
		Retry: config.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
		},
		Limits: config.RateLimitConfig{
			RequestsPerSecond: 1000,
			BurstSize:         1000,
		},
	}
}

// telemetryRows fabricates sample rows per metric: n points spread over
// span, values taken from the supplied series (cycled)
func telemetryRows(metrics []string, n int, span time.Duration, values []float64) []olap.Row {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var rows []olap.Row
	for _, metric := range metrics {
		for i := 0; i < n; i++ {
			offset := time.Duration(0)
			if n > 1 {
				offset = span * time.Duration(i) / time.Duration(n-1)
			}
			rows = append(rows, olap.Row{
				"timestamp": base.Add(offset),
				"metric":    metric,
				"value":     values[i%len(values)],
			})
		}
	}
	return rows
}

// pipelineExecutor answers discovery, telemetry and cost queries from
// canned data so the full pipeline runs without external services
type pipelineExecutor struct {
	stubExecutor
	catalog       []string
	telemetryRows []olap.Row
	costRows      []olap.Row
	telemetryErr  error
}

func newPipelineExecutor(catalog []string) *pipelineExecutor {
	p := &pipelineExecutor{catalog: catalog}
	p.handler = func(query string, args ...interface{}) ([]olap.Row, error) {
		switch {
		case strings.Contains(query, "information_schema"):
			return []olap.Row{
				{"column_name": "timestamp", "data_type": "timestamptz"},
				{"column_name": "metric", "data_type": "text"},
				{"column_name": "value", "data_type": "double precision"},
			}, nil
		case strings.Contains(query, "DISTINCT metric"):
			rows := make([]olap.Row, len(p.catalog))
			for i, m := range p.catalog {
				rows[i] = olap.Row{"metric": m}
			}
			return rows, nil
		case strings.Contains(query, "workload_type"):
			return p.costRows, nil
		default:
			return p.telemetryRows, p.telemetryErr
		}
	}
	return p
}

func newTestService(t *testing.T, exec olap.QueryExecutor) Service {
	t.Helper()
	svc, err := NewDegraded(testConfig(), zaptest.NewLogger(t), exec)
	require.NoError(t, err)
	// collapse retry delays
	svc.(*service).reliability.retry.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return svc
}

func perfRequest(metrics ...string) *telemetry.AnalysisRequest {
	return &telemetry.AnalysisRequest{
		ID:        uuid.New(),
		Kind:      telemetry.KindPerformance,
		Metrics:   metrics,
		Timeframe: "24h",
		OwnerID:   uuid.New(),
	}
}

func TestServiceConstruction(t *testing.T) {
	cfg := testConfig()
	logger := zaptest.NewLogger(t)
	exec := newPipelineExecutor([]string{"latency_ms"})

	t.Run("full variant requires every dependency", func(t *testing.T) {
		_, err := New(nil, logger, exec, nil)
		assert.Error(t, err)

		_, err = New(cfg, nil, exec, nil)
		assert.Error(t, err)

		_, err = New(cfg, logger, nil, nil)
		assert.Error(t, err)

		_, err = New(cfg, logger, exec, nil)
		assert.Error(t, err)
	})

	t.Run("degraded variant runs without a cache", func(t *testing.T) {
		svc, err := NewDegraded(cfg, logger, exec)
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})
}

func TestAnalyzePerformance(t *testing.T) {
	t.Run("full pipeline produces summary, trend and outliers", func(t *testing.T) {
		exec := newPipelineExecutor([]string{"latency_ms"})
		exec.telemetryRows = telemetryRows([]string{"latency_ms"}, 30, 3*time.Hour,
			[]float64{100, 105, 110, 115, 120, 125})
		svc := newTestService(t, exec)

		result := svc.AnalyzePerformance(context.Background(), perfRequest("latency_ms"))

		require.Equal(t, telemetry.StatusSuccess, result.Status)
		assert.Equal(t, telemetry.KindPerformance, result.Kind)
		require.NotNil(t, result.Summary)
		assert.Equal(t, 30, result.Summary.Count)
		require.NotNil(t, result.Trend)
		require.NotNil(t, result.Outliers)
		require.NotNil(t, result.Quality)
		assert.NotEmpty(t, result.Findings)
		assert.NotNil(t, result.Recommendations)
	})

	t.Run("empty fetch reports no data", func(t *testing.T) {
		exec := newPipelineExecutor([]string{"latency_ms"})
		svc := newTestService(t, exec)

		result := svc.AnalyzePerformance(context.Background(), perfRequest("latency_ms"))

		assert.Equal(t, telemetry.StatusNoData, result.Status)
		assert.Contains(t, result.Message, "no telemetry")
		assert.Nil(t, result.Summary)
	})

	t.Run("unknown metric fails validation without touching the backend", func(t *testing.T) {
		exec := newPipelineExecutor([]string{"latency_ms"})
		svc := newTestService(t, exec)

		result := svc.AnalyzePerformance(context.Background(), perfRequest("nonexistent_metric"))

		assert.Equal(t, telemetry.StatusError, result.Status)
		assert.Contains(t, result.Message, "nonexistent_metric")
	})

	t.Run("malformed timeframe is an error", func(t *testing.T) {
		exec := newPipelineExecutor([]string{"latency_ms"})
		svc := newTestService(t, exec)
		req := perfRequest("latency_ms")
		req.Timeframe = "always"

		result := svc.AnalyzePerformance(context.Background(), req)

		assert.Equal(t, telemetry.StatusError, result.Status)
	})

	t.Run("poor data quality is an error with the report attached", func(t *testing.T) {
		exec := newPipelineExecutor([]string{"latency_ms"})
		// 20 rows crammed into 5 minutes trips the time-span check
		exec.telemetryRows = telemetryRows([]string{"latency_ms"}, 20, 5*time.Minute,
			[]float64{100, 110})
		svc := newTestService(t, exec)

		result := svc.AnalyzePerformance(context.Background(), perfRequest("latency_ms"))

		assert.Equal(t, telemetry.StatusError, result.Status)
		require.NotNil(t, result.Quality)
		assert.False(t, result.Quality.Valid())
	})
}

func TestAnalyzeTrends(t *testing.T) {
	exec := newPipelineExecutor([]string{"latency_ms"})
	exec.telemetryRows = telemetryRows([]string{"latency_ms"}, 12, 2*time.Hour,
		[]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	svc := newTestService(t, exec)

	result := svc.AnalyzeTrends(context.Background(), &telemetry.AnalysisRequest{
		ID:        uuid.New(),
		Kind:      telemetry.KindTrend,
		Metrics:   []string{"latency_ms"},
		Timeframe: "24h",
	})

	require.Equal(t, telemetry.StatusSuccess, result.Status)
	require.NotNil(t, result.Trend)
	assert.Equal(t, telemetry.TrendIncreasing, result.Trend.Direction)
}

func TestDetectAnomaliesPipeline(t *testing.T) {
	exec := newPipelineExecutor([]string{"error_rate"})
	values := make([]float64, 40)
	for i := range values {
		values[i] = 0.01
	}
	values[25] = 0.9
	exec.telemetryRows = telemetryRows([]string{"error_rate"}, 40, 4*time.Hour, values)
	svc := newTestService(t, exec)

	result := svc.DetectAnomalies(context.Background(), &telemetry.AnalysisRequest{
		ID:        uuid.New(),
		Kind:      telemetry.KindAnomaly,
		Metrics:   []string{"error_rate"},
		Timeframe: "24h",
	})

	require.Equal(t, telemetry.StatusSuccess, result.Status)
	require.NotNil(t, result.Anomalies)
	require.Len(t, result.Anomalies.Anomalies, 1)
	assert.Equal(t, 25, result.Anomalies.Anomalies[0].Index)
}

func TestAnalyzeUsagePatternsPipeline(t *testing.T) {
	exec := newPipelineExecutor([]string{"request_count"})
	values := make([]float64, 48)
	for i := range values {
		values[i] = 10
	}
	values[9], values[33] = 90, 90
	exec.telemetryRows = telemetryRows([]string{"request_count"}, 48, 47*time.Hour, values)
	svc := newTestService(t, exec)

	result := svc.AnalyzeUsagePatterns(context.Background(), &telemetry.AnalysisRequest{
		ID:        uuid.New(),
		Kind:      telemetry.KindUsagePattern,
		Metrics:   []string{"request_count"},
		Timeframe: "7d",
	})

	require.Equal(t, telemetry.StatusSuccess, result.Status)
	require.NotNil(t, result.Seasonality)
	assert.Equal(t, 9, result.Seasonality.PeakHour)
}

func TestAnalyzeCorrelationsPipeline(t *testing.T) {
	t.Run("two aligned metrics correlate", func(t *testing.T) {
		exec := newPipelineExecutor([]string{"tokens_in", "latency_ms"})
		rising := make([]float64, 15)
		for i := range rising {
			rising[i] = float64(i + 1)
		}
		exec.telemetryRows = append(
			telemetryRows([]string{"tokens_in"}, 15, 2*time.Hour, rising),
			telemetryRows([]string{"latency_ms"}, 15, 2*time.Hour, rising)...)
		svc := newTestService(t, exec)

		result := svc.AnalyzeCorrelations(context.Background(), &telemetry.AnalysisRequest{
			ID:        uuid.New(),
			Kind:      telemetry.KindCorrelation,
			Metrics:   []string{"tokens_in", "latency_ms"},
			Timeframe: "24h",
		})

		require.Equal(t, telemetry.StatusSuccess, result.Status)
		require.NotNil(t, result.Correlation)
		assert.InDelta(t, 1.0, result.Correlation.Coefficient, 1e-9)
		assert.Equal(t, telemetry.CorrelationStrong, result.Correlation.Strength)
	})

	t.Run("wrong metric count is rejected", func(t *testing.T) {
		exec := newPipelineExecutor([]string{"latency_ms"})
		svc := newTestService(t, exec)

		result := svc.AnalyzeCorrelations(context.Background(), &telemetry.AnalysisRequest{
			ID:        uuid.New(),
			Kind:      telemetry.KindCorrelation,
			Metrics:   []string{"latency_ms"},
			Timeframe: "24h",
		})

		assert.Equal(t, telemetry.StatusError, result.Status)
		assert.Contains(t, result.Message, "exactly two metrics")
	})

	t.Run("too few aligned samples", func(t *testing.T) {
		exec := newPipelineExecutor([]string{"tokens_in", "latency_ms"})
		short := []float64{1, 2, 3, 4, 5}
		exec.telemetryRows = append(
			telemetryRows([]string{"tokens_in"}, 20, 2*time.Hour, short),
			telemetryRows([]string{"latency_ms"}, 5, 2*time.Hour, short)...)
		svc := newTestService(t, exec)

		result := svc.AnalyzeCorrelations(context.Background(), &telemetry.AnalysisRequest{
			ID:        uuid.New(),
			Kind:      telemetry.KindCorrelation,
			Metrics:   []string{"tokens_in", "latency_ms"},
			Timeframe: "24h",
		})

		assert.Equal(t, telemetry.StatusInsufficientData, result.Status)
	})
}

func TestOptimizeCostsPipeline(t *testing.T) {
	costReq := func() *telemetry.AnalysisRequest {
		return &telemetry.AnalysisRequest{
			ID:        uuid.New(),
			Kind:      telemetry.KindCostOptimization,
			Timeframe: "24h",
			OwnerID:   uuid.New(),
		}
	}

	t.Run("report with opportunities", func(t *testing.T) {
		exec := newPipelineExecutor([]string{"cost_cents"})
		exec.costRows = []olap.Row{
			{"workload_type": "chat", "avg_cost_cents": 12.0, "total_cost_cents": 1200.0, "request_count": int64(100)},
			{"workload_type": "embedding", "avg_cost_cents": 2.0, "total_cost_cents": 200.0, "request_count": int64(100)},
		}
		svc := newTestService(t, exec)

		result := svc.OptimizeCosts(context.Background(), costReq())

		require.Equal(t, telemetry.StatusSuccess, result.Status)
		require.NotNil(t, result.Cost)
		assert.Len(t, result.Cost.Opportunities, 1)
		assert.NotEmpty(t, result.Recommendations)
	})

	t.Run("empty breakdown reports no data", func(t *testing.T) {
		exec := newPipelineExecutor([]string{"cost_cents"})
		svc := newTestService(t, exec)

		result := svc.OptimizeCosts(context.Background(), costReq())

		assert.Equal(t, telemetry.StatusNoData, result.Status)
	})
}

func TestAnalyzeDispatch(t *testing.T) {
	exec := newPipelineExecutor([]string{"latency_ms"})
	exec.telemetryRows = telemetryRows([]string{"latency_ms"}, 30, 3*time.Hour,
		[]float64{100, 105, 110})
	svc := newTestService(t, exec)

	t.Run("routes by kind", func(t *testing.T) {
		result := svc.Analyze(context.Background(), perfRequest("latency_ms"))

		assert.Equal(t, telemetry.KindPerformance, result.Kind)
		assert.Equal(t, telemetry.StatusSuccess, result.Status)
	})

	t.Run("unknown kind", func(t *testing.T) {
		req := perfRequest("latency_ms")
		req.Kind = "sentiment"

		result := svc.Analyze(context.Background(), req)

		assert.Equal(t, telemetry.StatusError, result.Status)
		assert.Contains(t, result.Message, "sentiment")
	})

	t.Run("nil request", func(t *testing.T) {
		result := svc.Analyze(context.Background(), nil)

		assert.Equal(t, telemetry.StatusError, result.Status)
	})
}

func TestServiceReliability(t *testing.T) {
	t.Run("backend outage surfaces as error after retries", func(t *testing.T) {
		exec := newPipelineExecutor([]string{"latency_ms"})
		exec.telemetryErr = errors.New("connection refused")
		svc := newTestService(t, exec)

		result := svc.AnalyzePerformance(context.Background(), perfRequest("latency_ms"))

		assert.Equal(t, telemetry.StatusError, result.Status)
		assert.Contains(t, result.Message, "backend unavailable")
	})

	t.Run("repeated outages open the circuit", func(t *testing.T) {
		exec := newPipelineExecutor([]string{"latency_ms"})
		exec.telemetryErr = errors.New("connection refused")
		svc := newTestService(t, exec)

		for i := 0; i < 5; i++ {
			svc.AnalyzePerformance(context.Background(), perfRequest("latency_ms"))
		}

		result := svc.AnalyzePerformance(context.Background(), perfRequest("latency_ms"))

		assert.Equal(t, telemetry.StatusError, result.Status)
		assert.Contains(t, result.Message, "temporarily unavailable")
		assert.Equal(t, HealthDegraded, svc.Health())
	})

	t.Run("validation failures never open the circuit", func(t *testing.T) {
		exec := newPipelineExecutor([]string{"latency_ms"})
		svc := newTestService(t, exec)

		for i := 0; i < 20; i++ {
			result := svc.AnalyzePerformance(context.Background(), perfRequest("nonexistent_metric"))
			require.Equal(t, telemetry.StatusError, result.Status)
		}

		assert.Equal(t, HealthHealthy, svc.Health())
	})

	t.Run("owner rate limit rejects excess requests", func(t *testing.T) {
		cfg := testConfig()
		cfg.Limits = config.RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2}
		exec := newPipelineExecutor([]string{"latency_ms"})
		exec.telemetryRows = telemetryRows([]string{"latency_ms"}, 30, 3*time.Hour,
			[]float64{100, 105})
		svc, err := NewDegraded(cfg, zaptest.NewLogger(t), exec)
		require.NoError(t, err)

		req := perfRequest("latency_ms")
		limited := 0
		for i := 0; i < 5; i++ {
			result := svc.AnalyzePerformance(context.Background(), req)
			if result.Status == telemetry.StatusError && strings.Contains(result.Message, "rate limit") {
				limited++
			}
		}

		assert.GreaterOrEqual(t, limited, 1)
	})
}

func TestResultEnvelope(t *testing.T) {
	exec := newPipelineExecutor([]string{"latency_ms"})
	exec.telemetryRows = telemetryRows([]string{"latency_ms"}, 30, 3*time.Hour,
		[]float64{100, 105, 110})
	svc := newTestService(t, exec)

	for _, kind := range []telemetry.AnalysisKind{
		telemetry.KindPerformance,
		telemetry.KindTrend,
		telemetry.KindAnomaly,
		telemetry.KindCostOptimization,
	} {
		t.Run(fmt.Sprintf("%s carries request id and non-nil lists", kind), func(t *testing.T) {
			req := perfRequest("latency_ms")
			req.Kind = kind
			if kind == telemetry.KindCostOptimization {
				req.Metrics = nil
			}

			result := svc.Analyze(context.Background(), req)

			assert.Equal(t, req.ID, result.RequestID)
			assert.Equal(t, kind, result.Kind)
			assert.NotNil(t, result.Findings)
			assert.NotNil(t, result.Recommendations)
			assert.False(t, result.GeneratedAt.IsZero())
		})
	}
}
