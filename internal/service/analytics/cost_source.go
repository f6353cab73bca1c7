package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/davidleathers/telemetry-analytics-backend/internal/domain/errors"
	"github.com/davidleathers/telemetry-analytics-backend/internal/domain/telemetry"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/querybuilder"
)

// olapCostSource implements CostDataSource over the analytical store,
// going through the query cache so repeated cost pulls stay cheap
type olapCostSource struct {
	queries *QueryCache
	table   string
	ttl     time.Duration
	logger  *zap.Logger

	now func() time.Time
}

// NewOlapCostSource creates the production cost data source
func NewOlapCostSource(queries *QueryCache, table string, ttl time.Duration, logger *zap.Logger) CostDataSource {
	return &olapCostSource{
		queries: queries,
		table:   table,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// CostBreakdown fetches per-workload aggregates for the timeframe
func (s *olapCostSource) CostBreakdown(ctx context.Context, timeframe string, ownerID uuid.UUID) ([]telemetry.CostBreakdownRow, error) {
	window, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, apperrors.NewValidationError("INVALID_TIMEFRAME", err.Error())
	}

	end := s.now()
	start := end.Add(-window)

	sql, args, err := querybuilder.CostBreakdown(s.table, ownerID, start, end).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("building cost query failed").WithCause(err)
	}

	key := CacheKey("cost_breakdown", ownerID, nil, timeframe)
	rows, hit, err := s.queries.Fetch(ctx, sql, args, key, s.ttl)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("cost breakdown fetched",
		zap.Int("workloads", len(rows)),
		zap.Bool("cache_hit", hit))

	return costRowsFromRows(rows), nil
}
