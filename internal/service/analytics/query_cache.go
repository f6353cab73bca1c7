package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/davidleathers/telemetry-analytics-backend/internal/domain/errors"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/cache"
	"github.com/davidleathers/telemetry-analytics-backend/internal/infrastructure/olap"
)

// CacheKey derives a deterministic key from the parameters that identify
// one logical query, so repeated identical requests hit the cache
func CacheKey(kind string, ownerID uuid.UUID, metrics []string, timeframe string) string {
	sorted := append([]string(nil), metrics...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(ownerID.String()))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sorted, ",")))
	h.Write([]byte{0})
	h.Write([]byte(timeframe))

	return cache.QueryResultPrefix + kind + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// inflightFetch tracks one in-progress backend fetch so concurrent misses
// on the same key share a single execution
type inflightFetch struct {
	done chan struct{}
	rows []olap.Row
	err  error
}

// QueryCache is the cache-backed fetch layer: a hit returns the stored
// payload unchanged, a miss executes the query, stores the result under
// the caller's key and returns the rows. At most one backend fetch is in
// flight per key.
type QueryCache struct {
	kv       cache.Cache // nil in degraded mode
	executor olap.QueryExecutor
	logger   *zap.Logger

	mu       sync.Mutex
	inflight map[string]*inflightFetch
}

// NewQueryCache creates the fetch layer. kv may be nil, which disables
// caching but keeps single-flight coalescing.
func NewQueryCache(kv cache.Cache, executor olap.QueryExecutor, logger *zap.Logger) *QueryCache {
	return &QueryCache{
		kv:       kv,
		executor: executor,
		logger:   logger,
		inflight: make(map[string]*inflightFetch),
	}
}

// Fetch returns rows for the query, preferring the cache. The bool result
// reports whether the response was served from cache.
func (q *QueryCache) Fetch(ctx context.Context, query string, args []interface{}, key string, ttl time.Duration) ([]olap.Row, bool, error) {
	if rows, ok := q.lookup(ctx, key); ok {
		return rows, true, nil
	}

	q.mu.Lock()
	if call, ok := q.inflight[key]; ok {
		q.mu.Unlock()
		select {
		case <-call.done:
			return call.rows, false, call.err
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	call := &inflightFetch{done: make(chan struct{})}
	q.inflight[key] = call
	q.mu.Unlock()

	call.rows, call.err = q.fetchAndStore(ctx, query, args, key, ttl)
	close(call.done)

	q.mu.Lock()
	delete(q.inflight, key)
	q.mu.Unlock()

	return call.rows, false, call.err
}

// Invalidate drops one cached result
func (q *QueryCache) Invalidate(ctx context.Context, key string) {
	if q.kv == nil {
		return
	}
	if err := q.kv.Delete(ctx, key); err != nil {
		q.logger.Warn("query cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}

// lookup reads the cache; any cache failure degrades to a miss so a cache
// outage never fails the request on its own
func (q *QueryCache) lookup(ctx context.Context, key string) ([]olap.Row, bool) {
	if q.kv == nil {
		return nil, false
	}

	var rows []olap.Row
	err := q.kv.GetJSON(ctx, key, &rows)
	if err == nil {
		return rows, true
	}

	if _, notFound := err.(cache.ErrCacheKeyNotFound); !notFound {
		q.logger.Warn("query cache read failed, treating as miss",
			zap.String("key", key),
			zap.Error(err))
	}
	return nil, false
}

// fetchAndStore executes against the OLAP store and populates the cache.
// Executor failures surface as backend errors; store failures only log.
func (q *QueryCache) fetchAndStore(ctx context.Context, query string, args []interface{}, key string, ttl time.Duration) ([]olap.Row, error) {
	rows, err := q.executor.Execute(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewBackendError("olap", "query execution failed").WithCause(err)
	}

	if q.kv != nil && ttl > 0 {
		if err := q.kv.SetJSON(ctx, key, rows, ttl); err != nil {
			q.logger.Warn("query cache write failed",
				zap.String("key", key),
				zap.Error(err))
		}
	}

	return rows, nil
}
