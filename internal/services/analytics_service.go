package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"rental-analytics/internal/analytics"
	"rental-analytics/internal/models"
	"rental-analytics/internal/repository"
	"rental-analytics/pkg/logging"
	"rental-analytics/pkg/metrics"
)

// DefaultCacheSize bounds the number of memoized selections
const DefaultCacheSize = 256

// RecordSource supplies the full record set of an analysis session
type RecordSource interface {
	Records(ctx context.Context) ([]models.RentalRecord, error)
	Name() string
	HealthCheck(ctx context.Context) error
}

// AnalyticsService computes per-selection results over a record source.
// Results are memoized by selection key; the cache never changes what callers observe.
type AnalyticsService struct {
	source    RecordSource
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
	cacheSize int

	group singleflight.Group

	mu         sync.RWMutex
	cache      map[string]*analytics.Result
	generation uint64 // bumped by Reset; guarded by mu

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewAnalyticsService creates a new analytics service.
// A non-positive cacheSize falls back to DefaultCacheSize.
func NewAnalyticsService(source RecordSource, cacheSize int, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *AnalyticsService {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &AnalyticsService{
		source:    source,
		logger:    logger,
		metrics:   metricsCollector,
		cacheSize: cacheSize,
		cache:     make(map[string]*analytics.Result),
	}
}

// Analyze returns the result for sel. Callers must treat the result as read-only.
// Concurrent calls for the same selection share one computation, which is not
// cancelled when one of the waiting callers gives up.
func (s *AnalyticsService) Analyze(ctx context.Context, sel analytics.Selection) (*analytics.Result, error) {
	key := sel.Key()

	s.mu.RLock()
	cached, ok := s.cache[key]
	generation := s.generation
	s.mu.RUnlock()
	if ok {
		s.hits.Add(1)
		s.publishCacheStats()
		return cached, nil
	}

	// A Reset starts a new generation so nobody joins a computation over the old data
	flightKey := strconv.FormatUint(generation, 10) + "/" + key
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(flightKey, func() (interface{}, error) {
		return s.compute(detached, generation, key, sel)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug(ctx, "[ANALYTICS_SHARED] Joined in-flight computation", logging.Fields{
				"selection": key,
			})
		}
		return res.Val.(*analytics.Result), nil
	}
}

func (s *AnalyticsService) compute(ctx context.Context, generation uint64, key string, sel analytics.Selection) (*analytics.Result, error) {
	s.mu.RLock()
	cached, ok := s.cache[key]
	current := s.generation == generation
	s.mu.RUnlock()
	if ok && current {
		s.hits.Add(1)
		return cached, nil
	}
	s.misses.Add(1)

	records, err := s.source.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read records from %s: %w", s.source.Name(), err)
	}

	timer := s.metrics.NewTimer(s.metrics.AnalyticsDuration)
	result := analytics.Compute(records, sel)
	duration := timer.ObserveDuration()

	s.metrics.FilteredRecords.Observe(float64(result.FilteredRecords))
	if result.NoData() {
		s.metrics.EmptySelectionsTotal.Inc()
	}

	s.mu.Lock()
	if s.generation != generation {
		// Reset ran while reading; the records may predate it
		s.mu.Unlock()
		s.logger.Debug(ctx, "[ANALYTICS_STALE] Result computed before reset, not cached", logging.Fields{
			"selection": key,
		})
		return result, nil
	}
	if len(s.cache) >= s.cacheSize {
		s.logger.Debug(ctx, "[ANALYTICS_CACHE_RESET] Cache full, clearing", logging.Fields{
			"entries": len(s.cache),
		})
		clear(s.cache)
	}
	s.cache[key] = result
	s.mu.Unlock()
	s.publishCacheStats()

	s.logger.Debug(ctx, "[ANALYTICS_COMPUTE] Selection computed", logging.Fields{
		"selection":        key,
		"total_records":    result.TotalRecords,
		"filtered_records": result.FilteredRecords,
		"duration_ms":      duration.Milliseconds(),
	})

	return result, nil
}

// Insights returns the derived observations for sel
func (s *AnalyticsService) Insights(ctx context.Context, sel analytics.Selection) ([]analytics.Insight, error) {
	result, err := s.Analyze(ctx, sel)
	if err != nil {
		return nil, err
	}
	return analytics.Insights(result)
}

// Records returns one page of the categorized records matching sel and the total match count
func (s *AnalyticsService) Records(ctx context.Context, sel analytics.Selection, limit, offset int) ([]analytics.CategorizedRecord, int, error) {
	result, err := s.Analyze(ctx, sel)
	if err != nil {
		return nil, 0, err
	}

	total := len(result.Records)
	start := min(max(offset, 0), total)
	end := total
	if limit > 0 {
		end = min(start+limit, total)
	}

	page := make([]analytics.CategorizedRecord, end-start)
	copy(page, result.Records[start:end])
	return page, total, nil
}

// Record returns the categorized record with the given day index
func (s *AnalyticsService) Record(ctx context.Context, dayIndex int) (*analytics.CategorizedRecord, error) {
	result, err := s.Analyze(ctx, analytics.Selection{})
	if err != nil {
		return nil, err
	}
	for _, rec := range result.Records {
		if rec.DayIndex == dayIndex {
			found := rec
			return &found, nil
		}
	}
	return nil, &repository.NotFoundError{
		Resource: "rental_day",
		ID:       strconv.Itoa(dayIndex),
	}
}

// Reset drops every memoized result and any records cached by the source
func (s *AnalyticsService) Reset() {
	if inv, ok := s.source.(interface{ Invalidate() }); ok {
		inv.Invalidate()
	}
	s.mu.Lock()
	clear(s.cache)
	s.generation++
	s.mu.Unlock()
	s.publishCacheStats()
}

// CacheEntries returns the number of memoized selections
func (s *AnalyticsService) CacheEntries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// SourceName identifies the record source in health reports
func (s *AnalyticsService) SourceName() string {
	return s.source.Name()
}

// HealthCheck checks the record source
func (s *AnalyticsService) HealthCheck(ctx context.Context) error {
	return s.source.HealthCheck(ctx)
}

func (s *AnalyticsService) publishCacheStats() {
	s.metrics.UpdateAnalyticsCache(s.hits.Load(), s.misses.Load(), s.CacheEntries())
}
