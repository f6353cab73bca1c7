package olap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/config"
)

// Row is one result row from the analytical store, field name to value
type Row map[string]interface{}

// QueryExecutor is the narrow interface the analytics core uses to reach
// the OLAP store. The store itself is an external system.
type QueryExecutor interface {
	// Execute runs a query and returns all result rows
	Execute(ctx context.Context, query string, args ...interface{}) ([]Row, error)

	// Close releases the underlying connection pool
	Close() error
}

// pgxExecutor implements QueryExecutor on a pgx connection pool
type pgxExecutor struct {
	pool         *pgxpool.Pool
	logger       *zap.Logger
	queryTimeout time.Duration
}

// NewExecutor creates a pool-backed executor for the configured store
func NewExecutor(ctx context.Context, cfg *config.OlapConfig, logger *zap.Logger) (QueryExecutor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("olap config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse olap URL: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MinIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create olap pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("olap connection failed: %w", err)
	}

	logger.Info("olap executor initialized",
		zap.Int("max_conns", cfg.MaxOpenConns),
		zap.Duration("query_timeout", cfg.QueryTimeout))

	return &pgxExecutor{
		pool:         pool,
		logger:       logger,
		queryTimeout: cfg.QueryTimeout,
	}, nil
}

// Execute runs a query and materializes every row into a field map
func (e *pgxExecutor) Execute(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	if e.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.queryTimeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := e.pool.Query(ctx, query, args...)
	if err != nil {
		e.logger.Error("olap query failed",
			zap.String("query", query),
			zap.Error(err))
		return nil, fmt.Errorf("olap query failed: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var result []Row

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("olap row scan failed: %w", err)
		}

		row := make(Row, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = values[i]
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("olap row iteration failed: %w", err)
	}

	e.logger.Debug("olap query executed",
		zap.Int("rows", len(result)),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

// Close releases the pool
func (e *pgxExecutor) Close() error {
	e.pool.Close()
	e.logger.Info("olap executor closed")
	return nil
}
