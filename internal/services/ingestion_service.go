package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rental-analytics/internal/analytics"
	"rental-analytics/internal/models"
	"rental-analytics/internal/repository"
	"rental-analytics/pkg/logging"
	"rental-analytics/pkg/metrics"
)

// DefaultBatchSize is the number of rental days written per transaction
const DefaultBatchSize = 500

// IngestionService copies rental files into the database
type IngestionService struct {
	loader  *LoaderService
	repo    repository.RentalRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// IngestionResult contains ingestion statistics
type IngestionResult struct {
	Path           string
	TotalRecords   int
	WrittenRecords int
	Batches        int
	Deleted        int64
	Duration       time.Duration
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(loader *LoaderService, repo repository.RentalRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		loader:  loader,
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// IngestFile loads path and upserts its records in batches.
// With replace set, existing rental days are deleted first.
// The file is validated completely before anything is written.
func (s *IngestionService) IngestFile(ctx context.Context, path string, batchSize int, replace bool) (*IngestionResult, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	timer := s.metrics.NewTimer(s.metrics.IngestionDuration)

	s.logger.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"path":       path,
		"batch_size": batchSize,
		"replace":    replace,
		"stage":      "INITIALIZATION",
	})

	records, err := s.loader.Load(ctx, path)
	if err != nil {
		var fe *models.DataFormatError
		if errors.As(err, &fe) {
			s.metrics.RecordIngestionError("format_error")
		} else {
			s.metrics.RecordIngestionError("load_error")
		}
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	result := &IngestionResult{
		Path:         path,
		TotalRecords: len(records),
	}

	if replace {
		deleted, err := s.repo.DeleteAll(ctx)
		if err != nil {
			s.metrics.RecordIngestionError("delete_error")
			return nil, fmt.Errorf("failed to clear rental days: %w", err)
		}
		result.Deleted = deleted
	}

	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		if err := s.repo.CreateRecordsBatch(ctx, records[start:end]); err != nil {
			s.metrics.RecordIngestionError("batch_error")
			s.logger.Error(ctx, "[INGEST_BATCH_ERROR] Batch write failed", logging.Fields{
				"path":        path,
				"batch_start": start,
				"batch_end":   end,
				"stage":       "BATCH_WRITE",
			}, err)
			return result, fmt.Errorf("failed to write batch %d-%d: %w", start, end, err)
		}
		result.WrittenRecords += end - start
		result.Batches++
	}

	result.Duration = timer.ObserveDuration()

	fields := logging.Fields{
		"path":             path,
		"total_records":    result.TotalRecords,
		"written_records":  result.WrittenRecords,
		"batches":          result.Batches,
		"deleted":          result.Deleted,
		"duration_seconds": result.Duration.Seconds(),
		"stage":            "COMPLETE",
	}
	if secs := result.Duration.Seconds(); secs > 0 {
		fields["records_per_second"] = float64(result.WrittenRecords) / secs
	}
	s.logger.Info(ctx, "[INGEST_COMPLETE] Data ingestion completed", fields)

	return result, nil
}

// DimensionCount is the number of stored rental days with one dimension value
type DimensionCount struct {
	Dimension string
	Value     string
	Count     int
}

// StoredBreakdown counts stored rental days per year, weather condition,
// day type and rental category
func (s *IngestionService) StoredBreakdown(ctx context.Context) ([]DimensionCount, error) {
	type group struct {
		dimension string
		value     interface{ Label() (string, error) }
		filter    repository.RecordFilter
	}

	var groups []group
	for _, y := range models.Years {
		groups = append(groups, group{"year", y, repository.RecordFilter{Years: []models.Year{y}}})
	}
	for _, w := range models.WeatherConditions {
		groups = append(groups, group{"weather", w, repository.RecordFilter{Weather: []models.WeatherCondition{w}}})
	}
	for _, h := range models.HolidayFlags {
		groups = append(groups, group{"holiday", h, repository.RecordFilter{Holidays: []models.HolidayFlag{h}}})
	}
	for _, c := range models.CategoryDisplayOrder {
		lo, hi, bounded := analytics.CountRange(c)
		filter := repository.RecordFilter{MinCount: &lo}
		if bounded {
			filter.MaxCount = &hi
		}
		groups = append(groups, group{"category", c, filter})
	}

	counts := make([]DimensionCount, 0, len(groups))
	for _, g := range groups {
		label, err := g.value.Label()
		if err != nil {
			return nil, err
		}
		n, err := s.repo.CountRecords(ctx, g.filter)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s %s: %w", g.dimension, label, err)
		}
		counts = append(counts, DimensionCount{Dimension: g.dimension, Value: label, Count: n})
	}

	s.logger.Debug(ctx, "[INGEST_BREAKDOWN] Stored rental days counted", logging.Fields{
		"groups": len(counts),
	})

	return counts, nil
}
