package analytics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/davidleathers/telemetry-analytics-backend/internal/domain/errors"
	"github.com/davidleathers/telemetry-analytics-backend/internal/domain/telemetry"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/cache"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/config"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/olap"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/querybuilder"
)

// Per-kind default metric when a request names none
var defaultMetricByKind = map[telemetry.AnalysisKind]string{
	telemetry.KindPerformance:  "latency_ms",
	telemetry.KindTrend:        "latency_ms",
	telemetry.KindAnomaly:      "latency_ms",
	telemetry.KindUsagePattern: "request_count",
}

// service orchestrates the pipeline: validator -> cache/query ->
// statistics or cost optimizer -> result assembly, all under the
// reliability wrapper
type service struct {
	cfg         *config.Config
	logger      *zap.Logger
	validator   *Validator
	stats       *StatisticsEngine
	costs       *CostOptimizer
	schemas     *SchemaCache
	queries     *QueryCache
	costSource  CostDataSource
	reliability *ReliabilityWrapper
	degraded    bool

	limiterMu sync.Mutex
	limiters  map[uuid.UUID]*rate.Limiter

	now func() time.Time
}

// New constructs the full pipeline: redis-backed query cache plus OLAP
// executor. Use NewDegraded when no cache backend is available.
func New(cfg *config.Config, logger *zap.Logger, executor olap.QueryExecutor, kv cache.Cache) (Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("olap executor is required")
	}
	if kv == nil {
		return nil, fmt.Errorf("cache is required; use NewDegraded to run without one")
	}
	return newService(cfg, logger, executor, kv, false), nil
}

// NewDegraded constructs the pipeline without a cache backend: every fetch
// goes to the OLAP store (still coalesced per key). This variant is a
// deliberate caller choice, not a silent fallback.
func NewDegraded(cfg *config.Config, logger *zap.Logger, executor olap.QueryExecutor) (Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("olap executor is required")
	}
	logger.Warn("analytics pipeline running degraded: no cache backend")
	return newService(cfg, logger, executor, nil, true), nil
}

func newService(cfg *config.Config, logger *zap.Logger, executor olap.QueryExecutor, kv cache.Cache, degraded bool) *service {
	queries := NewQueryCache(kv, executor, logger)
	return &service{
		cfg:       cfg,
		logger:    logger,
		validator: NewValidator(cfg.Analysis),
		stats:     NewStatisticsEngine(cfg.Analysis),
		costs:     NewCostOptimizer(cfg.Cost),
		schemas:   NewSchemaCache(executor, cfg.Cache.SchemaTTL, logger),
		queries:   queries,
		costSource: NewOlapCostSource(queries, cfg.Olap.CostTable,
			cfg.Cache.ResultTTLFor(string(telemetry.KindCostOptimization)), logger),
		reliability: NewReliabilityWrapper(cfg.Circuit, cfg.Retry, logger),
		degraded:    degraded,
		limiters:    make(map[uuid.UUID]*rate.Limiter),
		now:         time.Now,
	}
}

// Analyze dispatches on the request kind
func (s *service) Analyze(ctx context.Context, req *telemetry.AnalysisRequest) *telemetry.AnalysisResult {
	if req == nil {
		return s.errorResult(nil, "", "request cannot be nil")
	}

	switch req.Kind {
	case telemetry.KindPerformance:
		return s.AnalyzePerformance(ctx, req)
	case telemetry.KindAnomaly:
		return s.DetectAnomalies(ctx, req)
	case telemetry.KindCorrelation:
		return s.AnalyzeCorrelations(ctx, req)
	case telemetry.KindUsagePattern:
		return s.AnalyzeUsagePatterns(ctx, req)
	case telemetry.KindCostOptimization:
		return s.OptimizeCosts(ctx, req)
	case telemetry.KindTrend:
		return s.AnalyzeTrends(ctx, req)
	default:
		return s.errorResult(req, req.Kind, fmt.Sprintf("unknown analysis kind %q", req.Kind))
	}
}

// AnalyzePerformance summarizes the primary metric with trend and outliers
func (s *service) AnalyzePerformance(ctx context.Context, req *telemetry.AnalysisRequest) *telemetry.AnalysisResult {
	return s.runSeries(ctx, req, telemetry.KindPerformance, func(result *telemetry.AnalysisResult, values []float64, timestamps []time.Time, metric string) {
		summary := s.stats.Summarize(values)
		result.Summary = &summary

		trend := s.stats.DetectTrend(values, timestamps)
		result.Trend = &trend

		outliers := s.stats.IdentifyOutliers(values, telemetry.OutlierMethodZScore)
		result.Outliers = &outliers

		result.Findings = append(result.Findings,
			fmt.Sprintf("%s: mean %.2f, p95 %.2f over %d samples", metric, summary.Mean, summary.P95, summary.Count))
		if trend.Status == telemetry.StatusSuccess {
			result.Findings = append(result.Findings,
				fmt.Sprintf("%s is %s (%.1f%% change between halves)", metric, trend.Direction, trend.ChangePercent))
		}
		if len(outliers.Outliers) > 0 {
			result.Findings = append(result.Findings,
				fmt.Sprintf("%d outlier samples detected", len(outliers.Outliers)))
			result.Recommendations = append(result.Recommendations,
				fmt.Sprintf("Inspect the %d outlier samples for load spikes or degraded dependencies", len(outliers.Outliers)))
		}
		if trend.Direction == telemetry.TrendIncreasing && strings.Contains(metric, "latency") {
			result.Recommendations = append(result.Recommendations,
				"Latency is trending up; review recent deployments and backend capacity")
		}
	})
}

// AnalyzeTrends classifies movement of the primary metric
func (s *service) AnalyzeTrends(ctx context.Context, req *telemetry.AnalysisRequest) *telemetry.AnalysisResult {
	return s.runSeries(ctx, req, telemetry.KindTrend, func(result *telemetry.AnalysisResult, values []float64, timestamps []time.Time, metric string) {
		summary := s.stats.Summarize(values)
		result.Summary = &summary

		trend := s.stats.DetectTrend(values, timestamps)
		result.Trend = &trend

		if trend.Status == telemetry.StatusInsufficientData {
			result.Status = telemetry.StatusInsufficientData
			result.Message = fmt.Sprintf("trend detection requires at least %d samples, got %d", minTrendSamples, len(values))
			return
		}

		result.Findings = append(result.Findings,
			fmt.Sprintf("%s is %s: first-half sum %.2f, second-half sum %.2f", metric, trend.Direction, trend.FirstHalfSum, trend.SecondHalfSum))
	})
}

// DetectAnomalies flags samples beyond the anomaly z-score threshold
func (s *service) DetectAnomalies(ctx context.Context, req *telemetry.AnalysisRequest) *telemetry.AnalysisResult {
	return s.runSeries(ctx, req, telemetry.KindAnomaly, func(result *telemetry.AnalysisResult, values []float64, timestamps []time.Time, metric string) {
		summary := s.stats.Summarize(values)
		result.Summary = &summary

		anomalies := s.stats.DetectAnomalies(values, s.cfg.Analysis.AnomalyZThreshold, nil)
		result.Anomalies = &anomalies

		if anomalies.Status == telemetry.StatusInsufficientData {
			result.Status = telemetry.StatusInsufficientData
			result.Message = fmt.Sprintf("anomaly detection requires at least %d samples, got %d", minAnomalySamples, len(values))
			return
		}

		result.Findings = append(result.Findings,
			fmt.Sprintf("%d anomalous samples beyond %.1f standard deviations", len(anomalies.Anomalies), anomalies.Threshold))
		if len(anomalies.Anomalies) > 0 {
			result.Recommendations = append(result.Recommendations,
				"Correlate anomalous samples with deploy and incident timelines")
		}
	})
}

// AnalyzeUsagePatterns reports hour-of-day structure of the primary metric
func (s *service) AnalyzeUsagePatterns(ctx context.Context, req *telemetry.AnalysisRequest) *telemetry.AnalysisResult {
	return s.runSeries(ctx, req, telemetry.KindUsagePattern, func(result *telemetry.AnalysisResult, values []float64, timestamps []time.Time, metric string) {
		summary := s.stats.Summarize(values)
		result.Summary = &summary

		seasonality := s.stats.DetectSeasonality(values, timestamps)
		result.Seasonality = &seasonality

		if seasonality.Status == telemetry.StatusInsufficientData {
			result.Status = telemetry.StatusInsufficientData
			result.Message = fmt.Sprintf("seasonality detection requires at least %d samples, got %d", minSeasonalitySamples, len(values))
			return
		}

		result.Findings = append(result.Findings,
			fmt.Sprintf("%s peaks at hour %d (%.2f) and bottoms at hour %d (%.2f)",
				metric, seasonality.PeakHour, seasonality.PeakValue, seasonality.LowHour, seasonality.LowValue))
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("Schedule batch work away from hour %d to flatten peak load", seasonality.PeakHour))
	})
}

// AnalyzeCorrelations computes the Pearson coefficient between two metrics
func (s *service) AnalyzeCorrelations(ctx context.Context, req *telemetry.AnalysisRequest) *telemetry.AnalysisResult {
	return s.run(ctx, req, telemetry.KindCorrelation, func(result *telemetry.AnalysisResult) error {
		if len(req.Metrics) != 2 {
			result.Status = telemetry.StatusError
			result.Message = "correlation analysis requires exactly two metrics"
			return nil
		}

		samples, err := s.fetchSamples(ctx, req, result)
		if err != nil || result.Status != telemetry.StatusSuccess {
			return err
		}

		series := seriesByMetric(samples)
		a := series[req.Metrics[0]]
		b := series[req.Metrics[1]]

		// The two series may be unevenly sampled; align to the common
		// prefix so the coefficient compares like with like
		n := min(len(a), len(b))
		correlation := s.stats.AnalyzeCorrelation(a[:n], b[:n])
		result.Correlation = &correlation

		if correlation.Status == telemetry.StatusInsufficientData {
			result.Status = telemetry.StatusInsufficientData
			result.Message = fmt.Sprintf("correlation requires more than %d aligned samples, got %d", minCorrelationSamples-1, n)
			return nil
		}

		result.Findings = append(result.Findings,
			fmt.Sprintf("%s and %s show %s correlation (r=%.3f over %d samples)",
				req.Metrics[0], req.Metrics[1], correlation.Strength, correlation.Coefficient, correlation.SampleSize))
		if correlation.Strength == telemetry.CorrelationStrong {
			result.Recommendations = append(result.Recommendations,
				fmt.Sprintf("Treat %s as a leading signal for %s in alerting", req.Metrics[0], req.Metrics[1]))
		}
		return nil
	})
}

// OptimizeCosts builds the cost-efficiency report for the timeframe
func (s *service) OptimizeCosts(ctx context.Context, req *telemetry.AnalysisRequest) *telemetry.AnalysisResult {
	return s.run(ctx, req, telemetry.KindCostOptimization, func(result *telemetry.AnalysisResult) error {
		rows, err := s.costSource.CostBreakdown(ctx, req.Timeframe, req.OwnerID)
		if err != nil {
			if apperrors.IsRetryable(err) {
				return err
			}
			result.Status = telemetry.StatusError
			result.Message = err.Error()
			return nil
		}

		report := s.costs.BuildReport(req.Timeframe, rows)
		result.Cost = report
		result.Status = report.Status

		if report.Status == telemetry.StatusNoData {
			result.Message = "no cost data for the requested timeframe"
			return nil
		}

		result.Findings = append(result.Findings,
			fmt.Sprintf("%d workloads analyzed, %d optimization opportunities", len(report.Efficiency), len(report.Opportunities)))
		if report.Projection != nil && report.Projection.MeetsMinimum {
			result.Findings = append(result.Findings,
				fmt.Sprintf("projected savings of %.1f%% meet the minimum target", report.Projection.SavingsPercent))
		}
		result.Recommendations = append(result.Recommendations, report.Recommendations...)
		return nil
	})
}

// Health reports the aggregated pipeline health
func (s *service) Health() HealthStatus {
	return s.reliability.Health()
}

// runSeries is the shared single-series pipeline: fetch the primary
// metric, gate on data quality, then hand values to the analysis step
func (s *service) runSeries(ctx context.Context, req *telemetry.AnalysisRequest, kind telemetry.AnalysisKind,
	analyze func(result *telemetry.AnalysisResult, values []float64, timestamps []time.Time, metric string)) *telemetry.AnalysisResult {

	return s.run(ctx, req, kind, func(result *telemetry.AnalysisResult) error {
		samples, err := s.fetchSamples(ctx, req, result)
		if err != nil || result.Status != telemetry.StatusSuccess {
			return err
		}

		metric := s.primaryMetric(req, kind)
		values, timestamps := valuesAndTimestamps(samples)
		analyze(result, values, timestamps, metric)
		return nil
	})
}

// run executes one unit of work under rate limiting and the reliability
// wrapper, then self-checks the assembled result
func (s *service) run(ctx context.Context, req *telemetry.AnalysisRequest, kind telemetry.AnalysisKind,
	unit func(result *telemetry.AnalysisResult) error) *telemetry.AnalysisResult {

	result := s.newResult(req, kind)
	if req == nil {
		result.Status = telemetry.StatusError
		result.Message = "request cannot be nil"
		return result
	}
	if req.Kind == "" {
		req.Kind = kind
	}

	if !s.limiterFor(req.OwnerID).Allow() {
		s.reliability.monitor.RecordRejection(string(kind), "rate_limited")
		result.Status = telemetry.StatusError
		result.Message = "request rate limit exceeded for owner"
		return result
	}

	operation := string(kind)
	err := s.reliability.Execute(ctx, operation, func() error {
		// Reset per-attempt state so a retried unit starts clean
		fresh := s.newResult(req, kind)
		*result = *fresh

		if ok, errs := s.validator.ValidateRequest(req, s.catalog(ctx)); !ok {
			result.Status = telemetry.StatusError
			result.Message = strings.Join(errs, "; ")
			return nil
		}

		return unit(result)
	})

	if err != nil {
		result.Status = telemetry.StatusError
		result.Message = humanMessage(err)
	}

	if ok, errs := s.validator.ValidateResult(result); !ok {
		s.logger.Error("assembled result failed structural validation",
			zap.String("kind", operation),
			zap.Strings("problems", errs))
		result.Status = telemetry.StatusError
		result.Message = strings.Join(errs, "; ")
	}

	return result
}

// fetchSamples runs the cache-backed fetch and the raw-data quality gate.
// On any non-success outcome it sets the result status and returns no
// samples; backend errors propagate for retry/breaker handling.
func (s *service) fetchSamples(ctx context.Context, req *telemetry.AnalysisRequest, result *telemetry.AnalysisResult) ([]telemetry.TimeSeriesSample, error) {
	window, err := ParseTimeframe(req.Timeframe)
	if err != nil {
		result.Status = telemetry.StatusError
		result.Message = err.Error()
		return nil, nil
	}

	metrics := req.Metrics
	if len(metrics) == 0 {
		metrics = []string{s.primaryMetric(req, req.Kind)}
	}

	end := s.now()
	start := end.Add(-window)

	sql, args, err := querybuilder.TelemetrySamples(s.cfg.Olap.TelemetryTable, metrics, req.OwnerID, start, end).ToSQL()
	if err != nil {
		result.Status = telemetry.StatusError
		result.Message = "building telemetry query failed"
		return nil, nil
	}

	key := CacheKey(string(req.Kind), req.OwnerID, metrics, req.Timeframe)
	ttl := s.cfg.Cache.ResultTTLFor(string(req.Kind))

	rows, hit, err := s.queries.Fetch(ctx, sql, args, key, ttl)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("telemetry fetched",
		zap.String("kind", string(req.Kind)),
		zap.Int("rows", len(rows)),
		zap.Bool("cache_hit", hit))

	if len(rows) == 0 {
		result.Status = telemetry.StatusNoData
		result.Message = "no telemetry for the requested metrics and timeframe"
		return nil, nil
	}

	quality := s.validator.ValidateRawData(rows, metrics)
	result.Quality = quality
	if !quality.Valid() {
		result.Status = telemetry.StatusError
		result.Message = "raw data failed quality validation: " + strings.Join(quality.Errors, "; ")
		return nil, nil
	}

	return samplesFromRows(rows), nil
}

func (s *service) newResult(req *telemetry.AnalysisRequest, kind telemetry.AnalysisKind) *telemetry.AnalysisResult {
	result := &telemetry.AnalysisResult{
		Kind:            kind,
		Status:          telemetry.StatusSuccess,
		GeneratedAt:     s.now(),
		Findings:        []string{},
		Recommendations: []string{},
	}
	if req != nil {
		result.RequestID = req.ID
	}
	return result
}

func (s *service) errorResult(req *telemetry.AnalysisRequest, kind telemetry.AnalysisKind, message string) *telemetry.AnalysisResult {
	result := s.newResult(req, kind)
	result.Status = telemetry.StatusError
	result.Message = message
	return result
}

// catalog lists the metrics the backend schema declares
func (s *service) catalog(ctx context.Context) []string {
	return s.schemas.Get(ctx, s.cfg.Olap.TelemetryTable).Metrics
}

func (s *service) primaryMetric(req *telemetry.AnalysisRequest, kind telemetry.AnalysisKind) string {
	if len(req.Metrics) > 0 {
		return req.Metrics[0]
	}
	if metric, ok := defaultMetricByKind[kind]; ok {
		return metric
	}
	return defaultMetricCatalog[0]
}

// limiterFor returns the per-owner rate limiter, creating it on first use
func (s *service) limiterFor(ownerID uuid.UUID) *rate.Limiter {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()

	limiter, ok := s.limiters[ownerID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.Limits.RequestsPerSecond), s.cfg.Limits.BurstSize)
		s.limiters[ownerID] = limiter
	}
	return limiter
}

// humanMessage converts wrapper errors into the user-visible message
func humanMessage(err error) string {
	switch {
	case apperrors.IsType(err, apperrors.ErrorTypeUnavailable):
		return "analytics temporarily unavailable: " + err.Error()
	case apperrors.IsType(err, apperrors.ErrorTypeExternal):
		return "backend unavailable after retries: " + err.Error()
	default:
		return err.Error()
	}
}
