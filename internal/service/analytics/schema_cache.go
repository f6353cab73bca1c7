package analytics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/davidleathers/telemetry-analytics-backend/internal/domain/telemetry"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/olap"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/querybuilder"
)

// metricDiscoveryLimit bounds the DISTINCT metric scan during discovery
const metricDiscoveryLimit = 500

// defaultMetricCatalog is served when schema discovery is unavailable
var defaultMetricCatalog = []string{
	"latency_ms",
	"tokens_in",
	"tokens_out",
	"cost_cents",
	"error_rate",
	"request_count",
}

// SchemaCache caches backend table metadata with a TTL. Discovery failures
// never propagate: callers always get a descriptor, falling back to the
// built-in default schema when the backend cannot be reached.
type SchemaCache struct {
	executor olap.QueryExecutor
	logger   *zap.Logger
	ttl      time.Duration

	mu      sync.Mutex
	entries map[string]*telemetry.SchemaDescriptor

	now func() time.Time
}

// NewSchemaCache creates a schema cache over the given executor
func NewSchemaCache(executor olap.QueryExecutor, ttl time.Duration, logger *zap.Logger) *SchemaCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SchemaCache{
		executor: executor,
		logger:   logger,
		ttl:      ttl,
		entries:  make(map[string]*telemetry.SchemaDescriptor),
		now:      time.Now,
	}
}

// Get returns the cached descriptor if it is inside its TTL, otherwise
// refreshes from the backend. The lock covers the whole read-check-fetch
// sequence so concurrent callers never trigger duplicate discovery.
func (c *SchemaCache) Get(ctx context.Context, table string) *telemetry.SchemaDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[table]; ok {
		if c.now().Sub(entry.FetchedAt) < c.ttl {
			return entry
		}
	}

	descriptor := c.discover(ctx, table)
	c.entries[table] = descriptor
	return descriptor
}

// Invalidate clears the named tables, or every entry when none are given
func (c *SchemaCache) Invalidate(tables ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(tables) == 0 {
		c.entries = make(map[string]*telemetry.SchemaDescriptor)
		return
	}
	for _, table := range tables {
		delete(c.entries, table)
	}
}

// discover queries the backend for column and metric metadata, falling
// back to the default schema on any failure
func (c *SchemaCache) discover(ctx context.Context, table string) *telemetry.SchemaDescriptor {
	if c.executor == nil {
		return c.defaultSchema(table)
	}

	columnsSQL, columnsArgs, err := querybuilder.TableColumns(table).ToSQL()
	if err != nil {
		return c.defaultSchema(table)
	}

	columnRows, err := c.executor.Execute(ctx, columnsSQL, columnsArgs...)
	if err != nil || len(columnRows) == 0 {
		c.logger.Warn("schema discovery failed, using default schema",
			zap.String("table", table),
			zap.Error(err))
		return c.defaultSchema(table)
	}

	columns := make(map[string]string, len(columnRows))
	for _, row := range columnRows {
		name, _ := row["column_name"].(string)
		dataType, _ := row["data_type"].(string)
		if name != "" {
			columns[name] = dataType
		}
	}

	metrics := c.discoverMetrics(ctx, table)

	return &telemetry.SchemaDescriptor{
		Table:     table,
		Columns:   columns,
		Metrics:   metrics,
		FetchedAt: c.now(),
	}
}

func (c *SchemaCache) discoverMetrics(ctx context.Context, table string) []string {
	metricsSQL, metricsArgs, err := querybuilder.DistinctMetrics(table, metricDiscoveryLimit).ToSQL()
	if err != nil {
		return defaultMetricCatalog
	}

	rows, err := c.executor.Execute(ctx, metricsSQL, metricsArgs...)
	if err != nil || len(rows) == 0 {
		return defaultMetricCatalog
	}

	metrics := make([]string, 0, len(rows))
	for _, row := range rows {
		if name, ok := row["metric"].(string); ok && name != "" {
			metrics = append(metrics, name)
		}
	}
	if len(metrics) == 0 {
		return defaultMetricCatalog
	}
	return metrics
}

func (c *SchemaCache) defaultSchema(table string) *telemetry.SchemaDescriptor {
	return &telemetry.SchemaDescriptor{
		Table: table,
		Columns: map[string]string{
			"timestamp": "timestamptz",
			"metric":    "text",
			"value":     "double precision",
			"owner_id":  "uuid",
			"tags":      "jsonb",
		},
		Metrics:   defaultMetricCatalog,
		FetchedAt: c.now(),
	}
}
