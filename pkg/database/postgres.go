package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"rental-analytics/pkg/logging"
	"rental-analytics/pkg/metrics"
)

const (
	defaultPoolInterval = 10 * time.Second
	poolWarnUtilization = 0.8
)

// Config holds database connection configuration
type Config struct {
	DSN             string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PoolInterval    time.Duration
}

// PostgresDB wraps sqlx.DB; every statement is timed under a query type label
type PostgresDB struct {
	db        *sqlx.DB
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
	config    *Config
	done      chan struct{}
	closeOnce sync.Once
}

// NewPostgresDB opens and pings a PostgreSQL connection, then starts pool monitoring
func NewPostgresDB(ctx context.Context, cfg *Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*PostgresDB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %q: %w", cfg.Name, err)
	}

	p := &PostgresDB{
		db:      db,
		logger:  logger.With(logging.Fields{"database": cfg.Name}),
		metrics: metricsCollector,
		config:  cfg,
		done:    make(chan struct{}),
	}

	p.logger.Info(ctx, "[DB_INIT] PostgreSQL connection established", logging.Fields{
		"max_open_conns":    cfg.MaxOpenConns,
		"max_idle_conns":    cfg.MaxIdleConns,
		"conn_max_lifetime": cfg.ConnMaxLifetime.String(),
	})

	interval := cfg.PoolInterval
	if interval <= 0 {
		interval = defaultPoolInterval
	}
	go p.monitorConnectionPool(interval)

	return p, nil
}

// Close stops pool monitoring and closes the connection. Safe to call twice.
func (p *PostgresDB) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.logger.Info(context.Background(), "[DB_CLOSE] Closing database connection", logging.Fields{})
		close(p.done)
		err = p.db.Close()
	})
	return err
}

// observe times fn under queryType and records failures as errorType.
// sql.ErrNoRows is not counted as a failure.
func (p *PostgresDB) observe(ctx context.Context, queryType, errorType string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	p.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())

	switch {
	case err == nil:
		p.logger.Debug(ctx, "[DB_QUERY] Statement executed", logging.Fields{
			"query_type":  queryType,
			"duration_ms": duration.Milliseconds(),
		})
	case errors.Is(err, sql.ErrNoRows):
	default:
		p.metrics.RecordDBError(errorType)
		p.logger.Error(ctx, "[DB_QUERY_ERROR] Statement failed", logging.Fields{
			"query_type":  queryType,
			"error_type":  errorType,
			"duration_ms": duration.Milliseconds(),
		}, err)
	}

	return err
}

// ExecContext executes a statement that returns no rows
func (p *PostgresDB) ExecContext(ctx context.Context, queryType, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	err := p.observe(ctx, queryType, "exec_error", func() error {
		var err error
		result, err = p.db.ExecContext(ctx, query, args...)
		return err
	})
	return result, err
}

// GetContext scans a single row into dest
func (p *PostgresDB) GetContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	return p.observe(ctx, queryType, "get_error", func() error {
		return p.db.GetContext(ctx, dest, query, args...)
	})
}

// SelectContext scans all rows into the slice pointed to by dest
func (p *PostgresDB) SelectContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	return p.observe(ctx, queryType, "select_error", func() error {
		return p.db.SelectContext(ctx, dest, query, args...)
	})
}

// InTx runs fn in a read-committed transaction timed under queryType.
// The transaction commits when fn returns nil and rolls back otherwise.
func (p *PostgresDB) InTx(ctx context.Context, queryType string, fn func(tx *sqlx.Tx) error) error {
	return p.observe(ctx, queryType, "transaction_error", func() error {
		tx, err := p.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

func (p *PostgresDB) monitorConnectionPool(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.recordPoolStats(p.db.Stats())
		}
	}
}

func (p *PostgresDB) recordPoolStats(stats sql.DBStats) {
	p.metrics.UpdateDBConnectionPool(stats.InUse, stats.Idle, stats.OpenConnections)

	if p.config.MaxOpenConns <= 0 {
		return
	}
	utilization := float64(stats.InUse) / float64(p.config.MaxOpenConns)
	if utilization > poolWarnUtilization {
		p.logger.Warn(context.Background(), "[DB_POOL_WARNING] Connection pool utilization high", logging.Fields{
			"in_use":      stats.InUse,
			"idle":        stats.Idle,
			"wait_count":  stats.WaitCount,
			"max_open":    p.config.MaxOpenConns,
			"utilization": fmt.Sprintf("%.2f%%", utilization*100),
		})
	}
}

// HealthCheck pings the database with a short timeout
func (p *PostgresDB) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := p.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}
