package querybuilder

import (
	"time"

	"github.com/google/uuid"
)

// Domain-specific builders for the telemetry and cost tables.

// TelemetrySamples builds the query fetching raw samples for one or more
// metrics over a time window, oldest first.
func TelemetrySamples(table string, metrics []string, ownerID uuid.UUID, start, end time.Time) *QueryBuilder {
	qb := Select("timestamp", "metric", "value", "tags").
		From(table).
		WhereBetween("timestamp", start, end).
		WhereNotNull("value")

	if len(metrics) == 1 {
		qb.WhereEqual("metric", metrics[0])
	} else if len(metrics) > 1 {
		values := make([]interface{}, len(metrics))
		for i, m := range metrics {
			values[i] = m
		}
		qb.WhereIn("metric", values)
	}

	if ownerID != uuid.Nil {
		qb.WhereEqual("owner_id", ownerID)
	}

	return qb.OrderByAsc("timestamp")
}

// CostBreakdown builds the per-workload cost aggregation query for a window.
func CostBreakdown(table string, ownerID uuid.UUID, start, end time.Time) *QueryBuilder {
	qb := Select(
		"workload_type",
		"AVG(cost_cents) AS avg_cost_cents",
		"SUM(cost_cents) AS total_cost_cents",
		"COUNT(*) AS request_count",
	).
		From(table).
		WhereBetween("timestamp", start, end)

	if ownerID != uuid.Nil {
		qb.WhereEqual("owner_id", ownerID)
	}

	return qb.GroupBy("workload_type").OrderByAsc("avg_cost_cents")
}

// TableColumns builds the information-schema lookup used for schema discovery.
func TableColumns(table string) *QueryBuilder {
	return Select("column_name", "data_type").
		From("information_schema.columns").
		WhereEqual("table_name", table).
		OrderByAsc("ordinal_position")
}

// DistinctMetrics builds the query listing the metric names a table carries.
func DistinctMetrics(table string, limit int) *QueryBuilder {
	return Select("DISTINCT metric").
		From(table).
		OrderByAsc("metric").
		Limit(limit)
}
