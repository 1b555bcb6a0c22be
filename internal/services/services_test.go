package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"rental-analytics/internal/analytics"
	"rental-analytics/internal/models"
	"rental-analytics/internal/repository"
	"rental-analytics/pkg/logging"
	"rental-analytics/pkg/metrics"
)

func testDeps(t *testing.T) (*logging.StructuredLogger, *metrics.Collector) {
	t.Helper()
	logger := logging.NewStructuredLogger("rental-test", "test", logging.DebugLevel)
	logger.SetOutput(io.Discard)
	return logger, metrics.NewCollector("rentals_test", prometheus.NewRegistry())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// staticSource serves a fixed record set and counts reads
type staticSource struct {
	records []models.RentalRecord
	err     error
	calls   atomic.Int32
}

func (s *staticSource) Records(ctx context.Context) ([]models.RentalRecord, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return append([]models.RentalRecord(nil), s.records...), nil
}

func (s *staticSource) Name() string { return "static" }

func (s *staticSource) HealthCheck(ctx context.Context) error { return s.err }

// memRepository is an in-memory RentalRepository
type memRepository struct {
	mu        sync.Mutex
	rows      map[int]models.RentalRecord
	batches   []int
	lists     []repository.RecordFilter
	failAfter int
}

func newMemRepository() *memRepository {
	return &memRepository{rows: make(map[int]models.RentalRecord), failAfter: -1}
}

func (m *memRepository) CreateRecordsBatch(ctx context.Context, records []models.RentalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAfter >= 0 && len(m.batches) >= m.failAfter {
		return errors.New("connection reset")
	}
	for _, r := range records {
		m.rows[r.DayIndex] = r
	}
	m.batches = append(m.batches, len(records))
	return nil
}

func (m *memRepository) ListRecords(ctx context.Context, filter repository.RecordFilter) ([]models.RentalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists = append(m.lists, filter)
	out := m.matching(filter)
	out = out[min(filter.Offset, len(out)):]
	if filter.Limit > 0 {
		out = out[:min(filter.Limit, len(out))]
	}
	return out, nil
}

func (m *memRepository) CountRecords(ctx context.Context, filter repository.RecordFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matching(filter)), nil
}

// matching returns the rows passing filter in day index order
func (m *memRepository) matching(filter repository.RecordFilter) []models.RentalRecord {
	out := make([]models.RentalRecord, 0, len(m.rows))
	for i, seen := 1, 0; seen < len(m.rows); i++ {
		r, ok := m.rows[i]
		if !ok {
			continue
		}
		seen++
		switch {
		case len(filter.Years) > 0 && !slices.Contains(filter.Years, r.Year),
			len(filter.Weather) > 0 && !slices.Contains(filter.Weather, r.Weather),
			len(filter.Holidays) > 0 && !slices.Contains(filter.Holidays, r.Holiday),
			filter.MinCount != nil && r.RentalCount < *filter.MinCount,
			filter.MaxCount != nil && r.RentalCount >= *filter.MaxCount:
			continue
		}
		out = append(out, r)
	}
	return out
}

func (m *memRepository) DeleteAll(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.rows))
	m.rows = make(map[int]models.RentalRecord)
	return n, nil
}

func (m *memRepository) HealthCheck(ctx context.Context) error { return nil }

func record(day int, year models.Year, month int, weather models.WeatherCondition, holiday models.HolidayFlag, count int) models.RentalRecord {
	return models.RentalRecord{
		DayIndex:    day,
		Year:        year,
		Month:       month,
		Weather:     weather,
		Holiday:     holiday,
		RentalCount: count,
	}
}

func fixtureRecords() []models.RentalRecord {
	return []models.RentalRecord{
		record(1, models.Year2011, 1, models.WeatherClear, models.WorkingDay, 1500),
		record(2, models.Year2011, 1, models.WeatherClear, models.WorkingDay, 2500),
		record(3, models.Year2012, 6, models.WeatherRainSnow, models.Holiday, 4500),
		record(4, models.Year2012, 7, models.WeatherCloudy, models.WorkingDay, 5200),
		record(5, models.Year2012, 7, models.WeatherClear, models.WorkingDay, 3100),
	}
}

func TestAnalyticsService_MemoizesBySelectionKey(t *testing.T) {
	logger, m := testDeps(t)
	src := &staticSource{records: fixtureRecords()}
	svc := NewAnalyticsService(src, 8, logger, m)
	ctx := context.Background()

	first, err := svc.Analyze(ctx, analytics.AllInclusive())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	second, err := svc.Analyze(ctx, analytics.Selection{})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if first != second {
		t.Error("equivalent selections were computed twice")
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("source reads = %d, want 1", got)
	}
	if first.FilteredRecords != 5 {
		t.Errorf("FilteredRecords = %d, want 5", first.FilteredRecords)
	}

	svc.Reset()
	if svc.CacheEntries() != 0 {
		t.Errorf("CacheEntries() after Reset = %d, want 0", svc.CacheEntries())
	}
	again, err := svc.Analyze(ctx, analytics.Selection{})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if src.calls.Load() != 2 {
		t.Errorf("source reads after Reset = %d, want 2", src.calls.Load())
	}
	if again.FilteredRecords != first.FilteredRecords {
		t.Error("result changed after cache reset")
	}
}

func TestAnalyticsService_CacheIsBounded(t *testing.T) {
	logger, m := testDeps(t)
	svc := NewAnalyticsService(&staticSource{records: fixtureRecords()}, 2, logger, m)
	ctx := context.Background()

	sels := []analytics.Selection{
		{Years: []models.Year{models.Year2011}},
		{Years: []models.Year{models.Year2012}},
		{Weather: []models.WeatherCondition{models.WeatherClear}},
	}
	for _, sel := range sels {
		if _, err := svc.Analyze(ctx, sel); err != nil {
			t.Fatalf("Analyze(%s) error = %v", sel.Key(), err)
		}
		if n := svc.CacheEntries(); n > 2 {
			t.Fatalf("CacheEntries() = %d, want <= 2", n)
		}
	}
}

func TestAnalyticsService_ConcurrentCallsShareOneComputation(t *testing.T) {
	logger, m := testDeps(t)
	src := &staticSource{records: fixtureRecords()}
	svc := NewAnalyticsService(src, 8, logger, m)

	sel := analytics.Selection{Holidays: []models.HolidayFlag{models.WorkingDay}}
	var wg sync.WaitGroup
	results := make([]*analytics.Result, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := svc.Analyze(context.Background(), sel)
			if err != nil {
				t.Errorf("Analyze() error = %v", err)
				return
			}
			results[i] = r
		}(i)
	}
	wg.Wait()

	if got := src.calls.Load(); got != 1 {
		t.Errorf("source reads = %d, want 1", got)
	}
	for i, r := range results {
		if r == nil || r.FilteredRecords != 4 {
			t.Errorf("results[%d] = %+v, want 4 filtered records", i, r)
		}
	}
}

// gatedSource blocks its first read until gate is closed or ctx ends.
// The records are captured on entry, before blocking.
type gatedSource struct {
	mu      sync.Mutex
	records []models.RentalRecord
	gate    chan struct{}
	entered chan struct{}
	calls   atomic.Int32
}

func newGatedSource(records []models.RentalRecord) *gatedSource {
	return &gatedSource{
		records: records,
		gate:    make(chan struct{}),
		entered: make(chan struct{}),
	}
}

func (g *gatedSource) setRecords(records []models.RentalRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records = records
}

func (g *gatedSource) Records(ctx context.Context) ([]models.RentalRecord, error) {
	g.mu.Lock()
	snapshot := append([]models.RentalRecord(nil), g.records...)
	g.mu.Unlock()

	if g.calls.Add(1) == 1 {
		close(g.entered)
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return snapshot, nil
}

func (g *gatedSource) Name() string { return "gated" }

func (g *gatedSource) HealthCheck(ctx context.Context) error { return nil }

func TestAnalyticsService_ResetDuringComputation(t *testing.T) {
	logger, m := testDeps(t)
	all := fixtureRecords()
	src := newGatedSource(all[:1])
	svc := NewAnalyticsService(src, 8, logger, m)
	ctx := context.Background()

	type outcome struct {
		result *analytics.Result
		err    error
	}
	before := make(chan outcome, 1)
	go func() {
		r, err := svc.Analyze(ctx, analytics.Selection{})
		before <- outcome{r, err}
	}()
	<-src.entered

	src.setRecords(all)
	svc.Reset()

	// a request after the reset must not join the computation over the old data
	after, err := svc.Analyze(ctx, analytics.Selection{})
	if err != nil {
		t.Fatalf("Analyze() after Reset error = %v", err)
	}
	if after.TotalRecords != len(all) {
		t.Errorf("TotalRecords after Reset = %d, want %d", after.TotalRecords, len(all))
	}

	close(src.gate)
	old := <-before
	if old.err != nil {
		t.Fatalf("Analyze() before Reset error = %v", old.err)
	}
	if old.result.TotalRecords != 1 {
		t.Errorf("TotalRecords before Reset = %d, want 1", old.result.TotalRecords)
	}

	again, err := svc.Analyze(ctx, analytics.Selection{})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if again.TotalRecords != len(all) {
		t.Errorf("TotalRecords = %d, want %d: result computed before Reset was cached", again.TotalRecords, len(all))
	}
	if svc.CacheEntries() != 1 {
		t.Errorf("CacheEntries() = %d, want 1", svc.CacheEntries())
	}
}

func TestAnalyticsService_CancelledCallerDoesNotFailOthers(t *testing.T) {
	logger, m := testDeps(t)
	src := newGatedSource(fixtureRecords())
	svc := NewAnalyticsService(src, 8, logger, m)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.Analyze(leaderCtx, analytics.Selection{})
		leaderErr <- err
	}()
	<-src.entered

	cancel()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("leader Analyze() error = %v, want %v", err, context.Canceled)
	}

	type outcome struct {
		result *analytics.Result
		err    error
	}
	follower := make(chan outcome, 1)
	go func() {
		r, err := svc.Analyze(context.Background(), analytics.Selection{})
		follower <- outcome{r, err}
	}()

	close(src.gate)
	got := <-follower
	if got.err != nil {
		t.Fatalf("follower Analyze() error = %v", got.err)
	}
	if got.result.FilteredRecords != 5 {
		t.Errorf("FilteredRecords = %d, want 5", got.result.FilteredRecords)
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("source reads = %d, want 1: the shared computation was cancelled with the leader", n)
	}
}

func TestAnalyticsService_SourceError(t *testing.T) {
	logger, m := testDeps(t)
	boom := errors.New("disk gone")
	src := &staticSource{err: boom}
	svc := NewAnalyticsService(src, 8, logger, m)

	_, err := svc.Analyze(context.Background(), analytics.Selection{})
	if !errors.Is(err, boom) {
		t.Fatalf("Analyze() error = %v, want wrapping %v", err, boom)
	}
	if svc.CacheEntries() != 0 {
		t.Error("failed computation was cached")
	}
	if err := svc.HealthCheck(context.Background()); !errors.Is(err, boom) {
		t.Errorf("HealthCheck() = %v, want %v", err, boom)
	}
}

func TestAnalyticsService_Records(t *testing.T) {
	logger, m := testDeps(t)
	svc := NewAnalyticsService(&staticSource{records: fixtureRecords()}, 8, logger, m)
	ctx := context.Background()

	tests := []struct {
		name      string
		sel       analytics.Selection
		limit     int
		offset    int
		wantDays  []int
		wantTotal int
	}{
		{name: "first page", limit: 2, offset: 0, wantDays: []int{1, 2}, wantTotal: 5},
		{name: "last partial page", limit: 2, offset: 4, wantDays: []int{5}, wantTotal: 5},
		{name: "offset past end", limit: 2, offset: 10, wantDays: []int{}, wantTotal: 5},
		{name: "no limit", limit: 0, offset: 3, wantDays: []int{4, 5}, wantTotal: 5},
		{
			name:      "filtered",
			sel:       analytics.Selection{Categories: []models.Category{models.High}},
			limit:     10,
			wantDays:  []int{3, 4},
			wantTotal: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, total, err := svc.Records(ctx, tt.sel, tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("Records() error = %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			if len(page) != len(tt.wantDays) {
				t.Fatalf("len(page) = %d, want %d", len(page), len(tt.wantDays))
			}
			for i, day := range tt.wantDays {
				if page[i].DayIndex != day {
					t.Errorf("page[%d].DayIndex = %d, want %d", i, page[i].DayIndex, day)
				}
			}
		})
	}
}

func TestAnalyticsService_Record(t *testing.T) {
	logger, m := testDeps(t)
	svc := NewAnalyticsService(&staticSource{records: fixtureRecords()}, 8, logger, m)

	rec, err := svc.Record(context.Background(), 4)
	if err != nil {
		t.Fatalf("Record(4) error = %v", err)
	}
	if rec.RentalCount != 5200 || rec.Category != models.High {
		t.Errorf("Record(4) = %+v, want 5200 High", rec)
	}

	_, err = svc.Record(context.Background(), 99)
	var nf *repository.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("Record(99) error = %v, want NotFoundError", err)
	}
}

func TestAnalyticsService_InsightsEmptySelection(t *testing.T) {
	logger, m := testDeps(t)
	svc := NewAnalyticsService(&staticSource{records: fixtureRecords()}, 8, logger, m)

	sel := analytics.Selection{
		Years:   []models.Year{models.Year2011},
		Weather: []models.WeatherCondition{models.WeatherRainSnow},
	}
	insights, err := svc.Insights(context.Background(), sel)
	if err != nil {
		t.Fatalf("Insights() error = %v", err)
	}
	if len(insights) != 0 {
		t.Errorf("Insights() = %v, want none", insights)
	}
}

func TestIngestionService_IngestFile(t *testing.T) {
	logger, m := testDeps(t)
	path := writeFile(t, "day.csv", dayCSVHeader+
		"1,2011-01-01,1,0,1,0,6,0,2,0.34,0.36,0.80,0.16,331,654,985\n"+
		"2,2011-01-02,1,0,1,0,0,0,2,0.36,0.35,0.69,0.24,131,670,801\n"+
		"3,2011-01-03,1,0,1,0,1,1,1,0.19,0.18,0.43,0.24,120,1229,1349\n")

	repo := newMemRepository()
	repo.rows[100] = record(100, models.Year2012, 12, models.WeatherClear, models.WorkingDay, 10)

	svc := NewIngestionService(NewLoaderService(logger, m), repo, logger, m)
	result, err := svc.IngestFile(context.Background(), path, 2, true)
	if err != nil {
		t.Fatalf("IngestFile() error = %v", err)
	}

	if result.TotalRecords != 3 || result.WrittenRecords != 3 {
		t.Errorf("result = %+v, want 3 total and 3 written", result)
	}
	if result.Batches != 2 || result.Deleted != 1 {
		t.Errorf("result = %+v, want 2 batches and 1 deleted", result)
	}
	if len(repo.rows) != 3 {
		t.Errorf("stored rows = %d, want 3", len(repo.rows))
	}
	if repo.rows[3].RentalCount != 1349 {
		t.Errorf("row 3 = %+v, want cnt 1349", repo.rows[3])
	}

	// stored rows serve as an analysis source
	svcA := NewAnalyticsService(NewRepositorySource(repo), 8, logger, m)
	res, err := svcA.Analyze(context.Background(), analytics.Selection{})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if res.TotalRecords != 3 {
		t.Errorf("TotalRecords = %d, want 3", res.TotalRecords)
	}
}

func TestIngestionService_InvalidFileWritesNothing(t *testing.T) {
	logger, m := testDeps(t)
	path := writeFile(t, "day.csv", "yr,mnth,weathersit,holiday,cnt\n0,1,1,0,100\n0,1,7,0,200\n")

	repo := newMemRepository()
	svc := NewIngestionService(NewLoaderService(logger, m), repo, logger, m)

	_, err := svc.IngestFile(context.Background(), path, 10, true)
	var fe *models.DataFormatError
	if !errors.As(err, &fe) {
		t.Fatalf("IngestFile() error = %v, want DataFormatError", err)
	}
	if len(repo.batches) != 0 {
		t.Errorf("batches written = %d, want 0", len(repo.batches))
	}
}

func TestIngestionService_BatchFailure(t *testing.T) {
	logger, m := testDeps(t)
	path := writeFile(t, "day.csv", "yr,mnth,weathersit,holiday,cnt\n0,1,1,0,100\n0,1,2,0,200\n0,2,1,0,300\n")

	repo := newMemRepository()
	repo.failAfter = 1
	svc := NewIngestionService(NewLoaderService(logger, m), repo, logger, m)

	result, err := svc.IngestFile(context.Background(), path, 2, false)
	if err == nil {
		t.Fatal("IngestFile() error = nil, want batch failure")
	}
	if result == nil || result.WrittenRecords != 2 {
		t.Errorf("result = %+v, want 2 written before failure", result)
	}
}

func TestRepositorySource_ReadsAllPages(t *testing.T) {
	tests := []struct {
		name      string
		pageSize  int
		wantPages int
	}{
		{"partial last page", 2, 3},
		{"exact multiple", 5, 2},
		{"single page", 1000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepository()
			for _, r := range fixtureRecords() {
				repo.rows[r.DayIndex] = r
			}
			src := NewRepositorySource(repo)
			src.pageSize = tt.pageSize

			records, err := src.Records(context.Background())
			if err != nil {
				t.Fatalf("Records() error = %v", err)
			}
			if len(records) != 5 {
				t.Fatalf("len(records) = %d, want 5", len(records))
			}
			for i, r := range records {
				if r.DayIndex != i+1 {
					t.Errorf("records[%d].DayIndex = %d, want %d", i, r.DayIndex, i+1)
				}
			}
			if len(repo.lists) != tt.wantPages {
				t.Errorf("pages read = %d, want %d", len(repo.lists), tt.wantPages)
			}
			for i, f := range repo.lists {
				if f.Limit != tt.pageSize || f.Offset != i*tt.pageSize {
					t.Errorf("page %d filter = limit %d offset %d", i, f.Limit, f.Offset)
				}
			}
		})
	}
}

func TestIngestionService_StoredBreakdown(t *testing.T) {
	logger, m := testDeps(t)
	repo := newMemRepository()
	for _, r := range fixtureRecords() {
		repo.rows[r.DayIndex] = r
	}
	// boundary counts fall into the higher category
	repo.rows[6] = record(6, models.Year2011, 2, models.WeatherCloudy, models.Holiday, analytics.LowMediumBoundary)
	repo.rows[7] = record(7, models.Year2011, 3, models.WeatherCloudy, models.WorkingDay, analytics.MediumHighBoundary)

	svc := NewIngestionService(NewLoaderService(logger, m), repo, logger, m)
	breakdown, err := svc.StoredBreakdown(context.Background())
	if err != nil {
		t.Fatalf("StoredBreakdown() error = %v", err)
	}

	got := make(map[string]int, len(breakdown))
	for _, row := range breakdown {
		got[row.Dimension+"/"+row.Value] = row.Count
	}

	want := map[string]int{
		"year/2011":       4,
		"year/2012":       3,
		"category/High":   3,
		"category/Medium": 3,
		"category/Low":    1,
	}
	for key, n := range want {
		if got[key] != n {
			t.Errorf("%s = %d, want %d", key, got[key], n)
		}
	}

	perDimension := map[string]int{}
	for _, row := range breakdown {
		perDimension[row.Dimension] += row.Count
	}
	for _, dim := range []string{"year", "weather", "holiday", "category"} {
		if perDimension[dim] != 7 {
			t.Errorf("%s counts sum to %d, want 7", dim, perDimension[dim])
		}
	}
}
