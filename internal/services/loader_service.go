package services

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"rental-analytics/internal/models"
	"rental-analytics/pkg/logging"
	"rental-analytics/pkg/metrics"
)

// LoaderService reads rental records from csv, tsv and xlsx files.
// Results are memoized per source identity for the lifetime of the service.
type LoaderService struct {
	logger  *logging.StructuredLogger
	metrics *metrics.Collector

	mu    sync.Mutex
	cache map[string]loadedSource
}

type loadedSource struct {
	size    int64
	modTime time.Time
	records []models.RentalRecord
}

// NewLoaderService creates a new loader service
func NewLoaderService(logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *LoaderService {
	return &LoaderService{
		logger:  logger,
		metrics: metricsCollector,
		cache:   make(map[string]loadedSource),
	}
}

// Load returns the records of the file at path in source order.
// The returned slice is owned by the caller.
func (s *LoaderService) Load(ctx context.Context, path string) ([]models.RentalRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		s.metrics.RecordLoadError("io_error")
		return nil, fmt.Errorf("failed to stat %s: %w", absPath, err)
	}

	s.mu.Lock()
	cached, ok := s.cache[absPath]
	s.mu.Unlock()
	if ok && cached.size == info.Size() && cached.modTime.Equal(info.ModTime()) {
		s.metrics.LoaderCacheHits.Inc()
		s.logger.Debug(ctx, "[LOAD_CACHE_HIT] Serving cached records", logging.Fields{
			"path":    absPath,
			"records": len(cached.records),
		})
		return append([]models.RentalRecord(nil), cached.records...), nil
	}

	timer := s.metrics.NewTimer(s.metrics.LoadDuration)

	records, err := s.read(absPath)
	if err != nil {
		var fe *models.DataFormatError
		if errors.As(err, &fe) {
			s.metrics.RecordLoadError("format_error")
		} else {
			s.metrics.RecordLoadError("io_error")
		}
		s.logger.Error(ctx, "[LOAD_ERROR] Failed to load rental records", logging.Fields{
			"path": absPath,
		}, err)
		return nil, err
	}

	duration := timer.ObserveDuration()
	s.metrics.RecordsLoadedTotal.Add(float64(len(records)))

	s.mu.Lock()
	s.cache[absPath] = loadedSource{
		size:    info.Size(),
		modTime: info.ModTime(),
		records: records,
	}
	s.mu.Unlock()

	s.logger.Info(ctx, "[LOAD_COMPLETE] Rental records loaded", logging.Fields{
		"path":        absPath,
		"records":     len(records),
		"duration_ms": duration.Milliseconds(),
	})

	return append([]models.RentalRecord(nil), records...), nil
}

// Invalidate drops the memoized records for path
func (s *LoaderService) Invalidate(path string) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	s.mu.Lock()
	delete(s.cache, absPath)
	s.mu.Unlock()
}

func (s *LoaderService) read(path string) ([]models.RentalRecord, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".tsv", ".txt":
		return readDelimited(path)
	case ".xlsx", ".xlsm":
		return readWorkbook(path)
	default:
		return nil, &models.DataFormatError{
			Source:  path,
			Message: fmt.Sprintf("unsupported file type %q", ext),
		}
	}
}

// readDelimited parses a delimited text file with a header row
func readDelimited(path string) ([]models.RentalRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comma = sniffDelimiter(path, br)

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, &models.DataFormatError{Source: path, Message: "source has no header row"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	cols, err := mapColumns(path, header)
	if err != nil {
		return nil, err
	}

	records := make([]models.RentalRecord, 0, 1024)
	for row := 1; ; row++ {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &models.DataFormatError{Source: path, Row: row, Message: pe.Err.Error()}
			}
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if blank(fields) {
			continue
		}

		rec, err := cols.record(path, row, fields)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	return records, nil
}

// sniffDelimiter picks tab for .tsv files, otherwise inspects the header line
func sniffDelimiter(path string, br *bufio.Reader) rune {
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		return '\t'
	}

	line, _ := br.Peek(br.Size())
	if i := strings.IndexByte(string(line), '\n'); i >= 0 {
		line = line[:i]
	}
	header := string(line)

	if strings.Contains(header, ",") {
		return ','
	}
	if strings.Contains(header, "\t") {
		return '\t'
	}
	if strings.Contains(header, ";") {
		return ';'
	}
	return ','
}

// readWorkbook parses the first sheet whose header row carries the required columns
func readWorkbook(path string) ([]models.RentalRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	var firstErr error
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q of %s: %w", sheet, path, err)
		}
		if len(rows) == 0 {
			continue
		}

		source := fmt.Sprintf("%s[%s]", path, sheet)
		cols, err := mapColumns(source, rows[0])
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		records := make([]models.RentalRecord, 0, len(rows)-1)
		for i, fields := range rows[1:] {
			if blank(fields) {
				continue
			}
			rec, err := cols.record(source, i+1, fields)
			if err != nil {
				return nil, err
			}
			records = append(records, *rec)
		}
		return records, nil
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return nil, &models.DataFormatError{Source: path, Message: "workbook has no header row"}
}

// columnIndex maps schema columns to positions in a source row; -1 means absent
type columnIndex struct {
	instant, date, year, month, weather, holiday, count int
}

func mapColumns(source string, header []string) (*columnIndex, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := pos[name]; !dup {
			pos[name] = i
		}
	}

	for _, col := range models.RequiredColumns {
		if _, ok := pos[col]; !ok {
			return nil, &models.DataFormatError{
				Source:  source,
				Column:  col,
				Message: "required column is missing",
			}
		}
	}

	lookup := func(col string) int {
		if i, ok := pos[col]; ok {
			return i
		}
		return -1
	}

	return &columnIndex{
		instant: lookup(models.ColumnInstant),
		date:    lookup(models.ColumnDate),
		year:    lookup(models.ColumnYear),
		month:   lookup(models.ColumnMonth),
		weather: lookup(models.ColumnWeather),
		holiday: lookup(models.ColumnHoliday),
		count:   lookup(models.ColumnCount),
	}, nil
}

func (c *columnIndex) record(source string, row int, fields []string) (*models.RentalRecord, error) {
	cell := func(i int) string {
		if i < 0 || i >= len(fields) {
			return ""
		}
		return fields[i]
	}

	raw := models.RawRentalRecord{
		Row:     row,
		Instant: cell(c.instant),
		Date:    cell(c.date),
		Year:    cell(c.year),
		Month:   cell(c.month),
		Weather: cell(c.weather),
		Holiday: cell(c.holiday),
		Count:   cell(c.count),
	}

	rec, err := raw.ToRecord()
	if err != nil {
		var fe *models.DataFormatError
		if errors.As(err, &fe) {
			fe.Source = source
		}
		return nil, err
	}
	return rec, nil
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
