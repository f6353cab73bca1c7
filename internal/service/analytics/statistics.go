package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/davidleathers/telemetry-analytics-backend/internal/domain/telemetry"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/config"
)

// Minimum sample sizes enforced before each algorithm runs
const (
	minTrendSamples       = 3
	minSeasonalitySamples = 24
	minOutlierSamples     = 5
	minAnomalySamples     = 2
	minCorrelationSamples = 11
)

// moderateCorrelationCutoff bands |r| into moderate vs weak
const moderateCorrelationCutoff = 0.4

const strongCorrelationCutoff = 0.7

// seasonalityPeriod assumes hourly buckets over a day
const seasonalityPeriod = 24

// StatisticsEngine computes descriptive statistics, trend, seasonality,
// outlier, anomaly and correlation results over numeric series. All methods
// are pure: no side effects, and malformed input yields a status, never a panic.
type StatisticsEngine struct {
	outlierZ float64
	anomalyZ float64
}

// NewStatisticsEngine creates an engine with the configured z-score cutoffs
func NewStatisticsEngine(cfg config.AnalysisConfig) *StatisticsEngine {
	outlierZ := cfg.OutlierZThreshold
	if outlierZ <= 0 {
		outlierZ = 2.0
	}
	anomalyZ := cfg.AnomalyZThreshold
	if anomalyZ <= 0 {
		anomalyZ = 3.0
	}
	return &StatisticsEngine{outlierZ: outlierZ, anomalyZ: anomalyZ}
}

// Summarize computes descriptive statistics. An empty series returns the
// zero-valued summary, never an error.
func (e *StatisticsEngine) Summarize(values []float64) telemetry.StatisticalSummary {
	if len(values) == 0 {
		return telemetry.StatisticalSummary{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	return telemetry.StatisticalSummary{
		Count:  len(values),
		Mean:   mean(values),
		StdDev: stdDev(values),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		P50:    percentile(sorted, 50),
		P95:    percentile(sorted, 95),
		P99:    percentile(sorted, 99),
	}
}

// DetectTrend splits the series into index halves, sums each half and
// classifies the movement. Ties classify as stable.
func (e *StatisticsEngine) DetectTrend(values []float64, timestamps []time.Time) telemetry.TrendResult {
	if len(values) < minTrendSamples {
		return telemetry.TrendResult{Status: telemetry.StatusInsufficientData, SamplesUsed: len(values)}
	}

	half := len(values) / 2
	var first, second float64
	for _, v := range values[:half] {
		first += v
	}
	for _, v := range values[half:] {
		second += v
	}

	direction := telemetry.TrendStable
	switch {
	case second > first:
		direction = telemetry.TrendIncreasing
	case second < first:
		direction = telemetry.TrendDecreasing
	}

	var change float64
	if first != 0 {
		change = (second - first) / math.Abs(first) * 100
	}

	return telemetry.TrendResult{
		Status:        telemetry.StatusSuccess,
		Direction:     direction,
		FirstHalfSum:  first,
		SecondHalfSum: second,
		ChangePercent: change,
		SamplesUsed:   len(values),
	}
}

// DetectSeasonality buckets values by index mod 24 and reports the
// hour-of-day structure of the series.
func (e *StatisticsEngine) DetectSeasonality(values []float64, timestamps []time.Time) telemetry.SeasonalityResult {
	if len(values) < minSeasonalitySamples {
		return telemetry.SeasonalityResult{Status: telemetry.StatusInsufficientData}
	}

	sums := make(map[int]float64, seasonalityPeriod)
	counts := make(map[int]int, seasonalityPeriod)
	for i, v := range values {
		hour := i % seasonalityPeriod
		sums[hour] += v
		counts[hour]++
	}

	hourly := make(map[int]float64, len(sums))
	peakHour, lowHour := 0, 0
	peakValue := math.Inf(-1)
	lowValue := math.Inf(1)
	for hour := 0; hour < seasonalityPeriod; hour++ {
		n, ok := counts[hour]
		if !ok {
			continue
		}
		avg := sums[hour] / float64(n)
		hourly[hour] = avg
		if avg > peakValue {
			peakValue = avg
			peakHour = hour
		}
		if avg < lowValue {
			lowValue = avg
			lowHour = hour
		}
	}

	return telemetry.SeasonalityResult{
		Status:      telemetry.StatusSuccess,
		HourlyMeans: hourly,
		PeakHour:    peakHour,
		PeakValue:   peakValue,
		LowHour:     lowHour,
		LowValue:    lowValue,
	}
}

// IdentifyOutliers flags samples by IQR fences or z-score, per method.
// Below the minimum sample size the result is empty, not an error.
func (e *StatisticsEngine) IdentifyOutliers(values []float64, method telemetry.OutlierMethod) telemetry.OutlierSet {
	set := telemetry.OutlierSet{
		Status:   telemetry.StatusSuccess,
		Method:   method,
		Outliers: []telemetry.Outlier{},
	}
	if len(values) < minOutlierSamples {
		return set
	}

	switch method {
	case telemetry.OutlierMethodIQR:
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		q1 := percentile(sorted, 25)
		q3 := percentile(sorted, 75)
		iqr := q3 - q1
		lower := q1 - 1.5*iqr
		upper := q3 + 1.5*iqr
		for i, v := range values {
			if v < lower {
				set.Outliers = append(set.Outliers, telemetry.Outlier{Index: i, Value: v, Score: lower - v})
			} else if v > upper {
				set.Outliers = append(set.Outliers, telemetry.Outlier{Index: i, Value: v, Score: v - upper})
			}
		}
	default:
		set.Method = telemetry.OutlierMethodZScore
		for i, z := range zScores(values) {
			if math.Abs(z) > e.outlierZ {
				set.Outliers = append(set.Outliers, telemetry.Outlier{Index: i, Value: values[i], Score: z})
			}
		}
	}

	return set
}

// DetectAnomalies applies the z-score method with an independently
// configurable threshold. When precomputed z-scores are supplied (same
// length as values) they are used instead of recomputing.
func (e *StatisticsEngine) DetectAnomalies(values []float64, threshold float64, precomputed []float64) telemetry.AnomalySet {
	if threshold <= 0 {
		threshold = e.anomalyZ
	}

	if len(values) < minAnomalySamples {
		return telemetry.AnomalySet{Status: telemetry.StatusInsufficientData, Threshold: threshold}
	}

	scores := precomputed
	if len(scores) != len(values) {
		scores = zScores(values)
	}

	set := telemetry.AnomalySet{
		Status:    telemetry.StatusSuccess,
		Threshold: threshold,
		Anomalies: []telemetry.Outlier{},
	}
	for i, z := range scores {
		if math.Abs(z) > threshold {
			set.Anomalies = append(set.Anomalies, telemetry.Outlier{Index: i, Value: values[i], Score: z})
		}
	}

	return set
}

// AnalyzeCorrelation computes the Pearson coefficient between two
// equal-length series via the standard sum formula. A zero denominator
// yields a coefficient of 0.
func (e *StatisticsEngine) AnalyzeCorrelation(a, b []float64) telemetry.CorrelationResult {
	if len(a) != len(b) || len(a) < minCorrelationSamples {
		return telemetry.CorrelationResult{
			Status:     telemetry.StatusInsufficientData,
			SampleSize: min(len(a), len(b)),
		}
	}

	n := float64(len(a))
	var sumA, sumB, sumAB, sumA2, sumB2 float64
	for i := range a {
		sumA += a[i]
		sumB += b[i]
		sumAB += a[i] * b[i]
		sumA2 += a[i] * a[i]
		sumB2 += b[i] * b[i]
	}

	numerator := n*sumAB - sumA*sumB
	denominator := math.Sqrt((n*sumA2 - sumA*sumA) * (n*sumB2 - sumB*sumB))

	var r float64
	if denominator != 0 {
		r = numerator / denominator
	}

	strength := telemetry.CorrelationWeak
	switch {
	case math.Abs(r) > strongCorrelationCutoff:
		strength = telemetry.CorrelationStrong
	case math.Abs(r) > moderateCorrelationCutoff:
		strength = telemetry.CorrelationModerate
	}

	return telemetry.CorrelationResult{
		Status:      telemetry.StatusSuccess,
		Coefficient: r,
		Strength:    strength,
		SampleSize:  len(a),
	}
}

// mean is the arithmetic mean; 0 for an empty series
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev is the population standard deviation
func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// zScores computes (v-mean)/stdev per sample. A zero standard deviation
// yields all-zero scores rather than dividing by zero.
func zScores(values []float64) []float64 {
	scores := make([]float64, len(values))
	sd := stdDev(values)
	if sd == 0 {
		return scores
	}
	m := mean(values)
	for i, v := range values {
		scores[i] = (v - m) / sd
	}
	return scores
}

// percentile reads the pth percentile from an already-sorted series using
// linear interpolation between ranks
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
