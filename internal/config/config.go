package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"rental-analytics/pkg/database"
)

// EnvPrefix is the prefix of every environment variable read by LoadConfig
const EnvPrefix = "RENTALS"

// Data source kinds
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `envconfig:"SERVER"`
	Database DatabaseConfig `envconfig:"DB"`
	Logging  LoggingConfig  `envconfig:"LOG"`
	Data     DataConfig     `envconfig:"DATA"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `split_words:"true" default:"0.0.0.0"`
	Port            int           `split_words:"true" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `split_words:"true" default:"15s" validate:"gt=0"`
	WriteTimeout    time.Duration `split_words:"true" default:"15s" validate:"gt=0"`
	IdleTimeout     time.Duration `split_words:"true" default:"60s" validate:"gt=0"`
	ShutdownTimeout time.Duration `split_words:"true" default:"30s" validate:"gt=0"`
}

// DatabaseConfig contains PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `split_words:"true" default:"localhost"`
	Port            int           `split_words:"true" default:"5432" validate:"min=1,max=65535"`
	User            string        `split_words:"true" default:"rentals"`
	Password        string        `split_words:"true"`
	Database        string        `split_words:"true" default:"rentals"`
	SSLMode         string        `split_words:"true" default:"disable" validate:"oneof=disable require verify-ca verify-full"`
	MaxOpenConns    int           `split_words:"true" default:"10" validate:"min=1"`
	MaxIdleConns    int           `split_words:"true" default:"5" validate:"min=0,ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `split_words:"true" default:"30m"`
	ConnMaxIdleTime time.Duration `split_words:"true" default:"5m"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `split_words:"true" default:"info" validate:"oneof=debug info warn warning error"`
}

// DataConfig selects where rental records come from
type DataConfig struct {
	Source    string `split_words:"true" default:"file" validate:"oneof=file postgres"`
	Path      string `split_words:"true" default:"data/day.csv" validate:"required_if=Source file"`
	CacheSize int    `split_words:"true" default:"256" validate:"min=1"`
}

// LoadConfig loads configuration from RENTALS_* environment variables and defaults
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Data.Source = strings.ToLower(cfg.Data.Source)
	return &cfg, nil
}

// Validate checks the configuration against its struct constraints
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// DSN returns the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Database,
		d.SSLMode,
	)
}

// Postgres returns the connection pool settings for database.NewPostgresDB
func (d DatabaseConfig) Postgres() *database.Config {
	return &database.Config{
		DSN:             d.DSN(),
		Name:            d.Database,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
	}
}
