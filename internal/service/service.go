// Package service is the result shaper: it executes translated statements
// through the engine, enforces the documented output shape and ordering, and
// translates failures into the API error taxonomy.
package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/couchcryptid/storm-data-query/internal/domain"
	"github.com/couchcryptid/storm-data-query/internal/engine"
	"github.com/couchcryptid/storm-data-query/internal/observability"
	"github.com/couchcryptid/storm-data-query/internal/query"
)

// Service shapes engine results into API responses. It holds only immutable
// handles; every method is safe for concurrent use.
type Service struct {
	engine  engine.Engine
	cache   *lruCache
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates a Service. cacheSize 0 disables the response cache.
func New(eng engine.Engine, cacheSize int, metrics *observability.Metrics, logger *slog.Logger) *Service {
	var cache *lruCache
	if cacheSize > 0 {
		cache = newLRUCache(cacheSize)
	}
	return &Service{engine: eng, cache: cache, metrics: metrics, logger: logger}
}

// Events returns the shaped, ordered /events rows for a validated filter.
// The result is never nil: an empty match serializes as [].
func (s *Service) Events(ctx context.Context, f query.Filter) ([]domain.EventRow, error) {
	key := "events|" + f.Canonical()
	if rows, ok := s.cachedEvents(key); ok {
		return rows, nil
	}

	stmt := f.EventsQuery()
	start := time.Now()
	events, err := s.engine.QueryEvents(ctx, stmt)
	s.metrics.QueryDuration.WithLabelValues("events").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	s.metrics.RowsReturned.Observe(float64(len(events)))

	// The translator already orders by (begin_date_time, event_id), but the
	// contract is reproducible output, not "whatever the engine preserved".
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].BeginDateTime.Equal(events[j].BeginDateTime) {
			return events[i].BeginDateTime.Before(events[j].BeginDateTime)
		}
		return events[i].EventID < events[j].EventID
	})

	rows := make([]domain.EventRow, 0, len(events))
	for _, ev := range events {
		rows = append(rows, domain.EventRow{
			EventID:   ev.EventID,
			Type:      ev.EventType,
			Magnitude: ev.Magnitude,
			Lon:       ev.Longitude,
			Lat:       ev.Latitude,
			Date:      ev.BeginDateTime.Format("2006-01-02T15:04:05"),
		})
	}

	s.storeCache(key, rows)
	return rows, nil
}

// Summary returns the shaped, ordered /events/summary rows: count descending,
// ties broken by ascending key so output is deterministic across engines.
func (s *Service) Summary(ctx context.Context, f query.Filter) ([]domain.SummaryRow, error) {
	stmt, err := f.SummaryQuery()
	if err != nil {
		return nil, err
	}

	key := "summary|" + f.Canonical()
	if rows, ok := s.cachedSummary(key); ok {
		return rows, nil
	}

	start := time.Now()
	result, err := s.engine.QuerySummary(ctx, stmt)
	s.metrics.QueryDuration.WithLabelValues("summary").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	s.metrics.RowsReturned.Observe(float64(len(result)))

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].N != result[j].N {
			return result[i].N > result[j].N
		}
		return result[i].Key < result[j].Key
	})

	rows := make([]domain.SummaryRow, 0, len(result))
	for _, r := range result {
		rows = append(rows, domain.SummaryRow{Key: r.Key, N: r.N})
	}

	s.storeCache(key, rows)
	return rows, nil
}

// Health reports dataset visibility. An unreachable dataset degrades the
// status but does not fail the endpoint: the process itself is up.
func (s *Service) Health(ctx context.Context) domain.HealthStatus {
	start := time.Now()
	info, err := s.engine.DatasetInfo(ctx)
	s.metrics.QueryDuration.WithLabelValues("health").Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("dataset info failed", "error", err)
		return domain.HealthStatus{Status: "degraded", DatasetLocation: info.Location}
	}

	s.metrics.DatasetFiles.Set(float64(info.FileCount))
	return domain.HealthStatus{
		Status:          "ok",
		DatasetLocation: info.Location,
		FileCount:       info.FileCount,
	}
}

func (s *Service) cachedEvents(key string) ([]domain.EventRow, bool) {
	if s.cache == nil {
		return nil, false
	}
	v, ok := s.cache.get(key)
	if !ok {
		s.metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	rows, ok := v.([]domain.EventRow)
	if !ok {
		return nil, false
	}
	s.metrics.CacheLookups.WithLabelValues("hit").Inc()
	return rows, true
}

func (s *Service) cachedSummary(key string) ([]domain.SummaryRow, bool) {
	if s.cache == nil {
		return nil, false
	}
	v, ok := s.cache.get(key)
	if !ok {
		s.metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	rows, ok := v.([]domain.SummaryRow)
	if !ok {
		return nil, false
	}
	s.metrics.CacheLookups.WithLabelValues("hit").Inc()
	return rows, true
}

func (s *Service) storeCache(key string, rows any) {
	if s.cache == nil {
		return
	}
	s.cache.put(key, rows)
}
