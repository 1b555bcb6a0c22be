package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"rental-analytics/internal/models"
	"rental-analytics/pkg/database"
	"rental-analytics/pkg/logging"
	"rental-analytics/pkg/metrics"
)

// RentalTable is the table holding one row per rental day
const RentalTable = "rental_days"

// RentalRepository provides data access for daily rental records
type RentalRepository interface {
	CreateRecordsBatch(ctx context.Context, records []models.RentalRecord) error
	ListRecords(ctx context.Context, filter RecordFilter) ([]models.RentalRecord, error)
	CountRecords(ctx context.Context, filter RecordFilter) (int, error)
	DeleteAll(ctx context.Context) (int64, error)
	HealthCheck(ctx context.Context) error
}

// RecordFilter narrows a listing; empty slices apply no restriction
type RecordFilter struct {
	Years    []models.Year
	Weather  []models.WeatherCondition
	Holidays []models.HolidayFlag
	MinCount *int
	MaxCount *int // exclusive
	Limit    int
	Offset   int
}

// rentalRow is the rental_days column layout
type rentalRow struct {
	DayIndex int            `db:"day_index"`
	Date     sql.NullString `db:"dteday"`
	YearCode int            `db:"yr"`
	Month    int            `db:"mnth"`
	Weather  int            `db:"weathersit"`
	Holiday  int            `db:"holiday"`
	Count    int            `db:"cnt"`
}

func newRentalRow(rec models.RentalRecord) rentalRow {
	return rentalRow{
		DayIndex: rec.DayIndex,
		Date:     sql.NullString{String: rec.Date, Valid: rec.Date != ""},
		YearCode: rec.Year.Code(),
		Month:    rec.Month,
		Weather:  int(rec.Weather),
		Holiday:  int(rec.Holiday),
		Count:    rec.RentalCount,
	}
}

// toRecord runs a stored row back through model validation
func (r rentalRow) toRecord() (*models.RentalRecord, error) {
	raw := models.RawRentalRecord{
		Row:     r.DayIndex,
		Instant: strconv.Itoa(r.DayIndex),
		Date:    r.Date.String,
		Year:    strconv.Itoa(r.YearCode),
		Month:   strconv.Itoa(r.Month),
		Weather: strconv.Itoa(r.Weather),
		Holiday: strconv.Itoa(r.Holiday),
		Count:   strconv.Itoa(r.Count),
	}
	rec, err := raw.ToRecord()
	if err != nil {
		if fe, ok := err.(*models.DataFormatError); ok {
			fe.Source = RentalTable
		}
		return nil, err
	}
	return rec, nil
}

// rentalRepository implements RentalRepository
type rentalRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewRentalRepository creates a new rental repository
func NewRentalRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) RentalRepository {
	return &rentalRepository{
		db:      db,
		logger:  logger.With(logging.Fields{"table": RentalTable}),
		metrics: metricsCollector,
	}
}

const upsertRentalDay = `
	INSERT INTO rental_days (day_index, dteday, yr, mnth, weathersit, holiday, cnt)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (day_index) DO UPDATE SET
		dteday = EXCLUDED.dteday,
		yr = EXCLUDED.yr,
		mnth = EXCLUDED.mnth,
		weathersit = EXCLUDED.weathersit,
		holiday = EXCLUDED.holiday,
		cnt = EXCLUDED.cnt
`

// CreateRecordsBatch upserts records in a single transaction
func (r *rentalRepository) CreateRecordsBatch(ctx context.Context, records []models.RentalRecord) error {
	if len(records) == 0 {
		return nil
	}

	r.metrics.IngestionBatchSize.Observe(float64(len(records)))

	err := r.db.InTx(ctx, "upsert_rental_batch", func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertRentalDay)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			row := newRentalRow(rec)
			if _, err := stmt.ExecContext(ctx,
				row.DayIndex,
				row.Date,
				row.YearCode,
				row.Month,
				row.Weather,
				row.Holiday,
				row.Count,
			); err != nil {
				return fmt.Errorf("failed to upsert rental day %d: %w", rec.DayIndex, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug(ctx, "[REPO_BATCH_UPSERT] Batch upsert completed", logging.Fields{
		"count": len(records),
	})
	r.metrics.IngestionRecordsTotal.Add(float64(len(records)))

	return nil
}

// ListRecords retrieves records ordered by day index
func (r *rentalRepository) ListRecords(ctx context.Context, filter RecordFilter) ([]models.RentalRecord, error) {
	where, args := filter.where()

	query := `
		SELECT day_index, dteday, yr, mnth, weathersit, holiday, cnt
		FROM rental_days
	` + where + " ORDER BY day_index"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, filter.Limit, filter.Offset)
	}

	var rows []rentalRow
	if err := r.db.SelectContext(ctx, "list_rental_days", &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list rental days: %w", err)
	}

	records := make([]models.RentalRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			r.metrics.RecordDBError("decode_error")
			return nil, fmt.Errorf("failed to decode rental day %d: %w", row.DayIndex, err)
		}
		records = append(records, *rec)
	}

	return records, nil
}

// CountRecords counts records matching the filter, ignoring pagination
func (r *rentalRepository) CountRecords(ctx context.Context, filter RecordFilter) (int, error) {
	where, args := filter.where()

	var total int
	if err := r.db.GetContext(ctx, "count_rental_days", &total, "SELECT COUNT(*) FROM rental_days"+where, args...); err != nil {
		return 0, fmt.Errorf("failed to count rental days: %w", err)
	}

	return total, nil
}

// DeleteAll removes every rental day
func (r *rentalRepository) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, "delete_rental_days", "DELETE FROM rental_days")
	if err != nil {
		return 0, fmt.Errorf("failed to delete rental days: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read deleted row count: %w", err)
	}

	r.logger.Info(ctx, "[REPO_DELETE_ALL] Rental days deleted", logging.Fields{
		"deleted": deleted,
	})

	return deleted, nil
}

// HealthCheck performs a repository health check
func (r *rentalRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// where renders the filter as a WHERE clause with positional arguments
func (f RecordFilter) where() (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if len(f.Years) > 0 {
		codes := make([]int64, len(f.Years))
		for i, y := range f.Years {
			codes[i] = int64(y.Code())
		}
		add("yr = ANY($%d)", pq.Array(codes))
	}
	if len(f.Weather) > 0 {
		codes := make([]int64, len(f.Weather))
		for i, w := range f.Weather {
			codes[i] = int64(w)
		}
		add("weathersit = ANY($%d)", pq.Array(codes))
	}
	if len(f.Holidays) > 0 {
		codes := make([]int64, len(f.Holidays))
		for i, h := range f.Holidays {
			codes[i] = int64(h)
		}
		add("holiday = ANY($%d)", pq.Array(codes))
	}
	if f.MinCount != nil {
		add("cnt >= $%d", *f.MinCount)
	}
	if f.MaxCount != nil {
		add("cnt < $%d", *f.MaxCount)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
