package analytics

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/davidleathers/telemetry-analytics-backend/internal/domain/telemetry"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/olap"
)

// Helpers converting OLAP rows into domain values. Rows arrive either
// straight from the driver (typed values) or from the JSON cache
// (float64/string), so every accessor handles both shapes.

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case decimal.Decimal:
		return n.InexactFloat64(), true
	default:
		return 0, false
	}
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func asDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case float64:
		return decimal.NewFromFloat(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case string:
		d, err := decimal.NewFromString(n)
		return d, err == nil
	default:
		return decimal.Decimal{}, false
	}
}

func isFiniteValue(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// samplesFromRows converts raw rows into time-series samples, dropping rows
// with a malformed timestamp or value rather than failing the request
func samplesFromRows(rows []olap.Row) []telemetry.TimeSeriesSample {
	samples := make([]telemetry.TimeSeriesSample, 0, len(rows))
	for _, row := range rows {
		ts, ok := asTime(row["timestamp"])
		if !ok {
			continue
		}
		value, ok := asFloat(row["value"])
		if !ok || !isFiniteValue(value) {
			continue
		}

		sample := telemetry.TimeSeriesSample{Timestamp: ts, Value: value}
		if name, ok := row["metric"].(string); ok {
			sample.Metric = name
		}
		samples = append(samples, sample)
	}
	return samples
}

// seriesByMetric groups sample values per metric name, preserving row order
func seriesByMetric(samples []telemetry.TimeSeriesSample) map[string][]float64 {
	series := make(map[string][]float64)
	for _, s := range samples {
		series[s.Metric] = append(series[s.Metric], s.Value)
	}
	return series
}

// valuesAndTimestamps flattens samples for the single-series algorithms
func valuesAndTimestamps(samples []telemetry.TimeSeriesSample) ([]float64, []time.Time) {
	values := make([]float64, len(samples))
	timestamps := make([]time.Time, len(samples))
	for i, s := range samples {
		values[i] = s.Value
		timestamps[i] = s.Timestamp
	}
	return values, timestamps
}

// costRowsFromRows converts aggregated cost rows into the domain shape
func costRowsFromRows(rows []olap.Row) []telemetry.CostBreakdownRow {
	out := make([]telemetry.CostBreakdownRow, 0, len(rows))
	for _, row := range rows {
		workload, _ := row["workload_type"].(string)
		avg, okAvg := asDecimal(row["avg_cost_cents"])
		total, okTotal := asDecimal(row["total_cost_cents"])
		count, okCount := asInt64(row["request_count"])
		if workload == "" || !okAvg || !okTotal || !okCount {
			continue
		}
		out = append(out, telemetry.CostBreakdownRow{
			WorkloadType:   workload,
			AvgCostCents:   avg,
			TotalCostCents: total,
			RequestCount:   count,
		})
	}
	return out
}
