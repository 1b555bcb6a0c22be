package services

import (
	"context"
	"fmt"
	"os"

	"rental-analytics/internal/models"
	"rental-analytics/internal/repository"
)

// FileSource reads records from a csv, tsv or xlsx file through the loader
type FileSource struct {
	path   string
	loader *LoaderService
}

// NewFileSource creates a record source backed by a file
func NewFileSource(path string, loader *LoaderService) *FileSource {
	return &FileSource{path: path, loader: loader}
}

// Records loads the file; repeat calls are served from the loader cache
func (f *FileSource) Records(ctx context.Context) ([]models.RentalRecord, error) {
	return f.loader.Load(ctx, f.path)
}

// Name returns the file path
func (f *FileSource) Name() string {
	return "file:" + f.path
}

// Invalidate forces the next read to parse the file again
func (f *FileSource) Invalidate() {
	f.loader.Invalidate(f.path)
}

// HealthCheck verifies the file is still readable
func (f *FileSource) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat(f.path); err != nil {
		return fmt.Errorf("data file unavailable: %w", err)
	}
	return nil
}

// repositoryPageSize is the number of rental days fetched per query
const repositoryPageSize = 1000

// RepositorySource reads every stored rental day from PostgreSQL
type RepositorySource struct {
	repo     repository.RentalRepository
	pageSize int
}

// NewRepositorySource creates a record source backed by the rental repository
func NewRepositorySource(repo repository.RentalRepository) *RepositorySource {
	return &RepositorySource{repo: repo, pageSize: repositoryPageSize}
}

// Records lists all rental days ordered by day index, one page at a time
func (r *RepositorySource) Records(ctx context.Context) ([]models.RentalRecord, error) {
	var records []models.RentalRecord
	for offset := 0; ; offset += r.pageSize {
		page, err := r.repo.ListRecords(ctx, repository.RecordFilter{Limit: r.pageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("failed to read rental days from offset %d: %w", offset, err)
		}
		records = append(records, page...)
		if len(page) < r.pageSize {
			return records, nil
		}
	}
}

// Name identifies the repository source
func (r *RepositorySource) Name() string {
	return "postgres:" + repository.RentalTable
}

// HealthCheck pings the database behind the repository
func (r *RepositorySource) HealthCheck(ctx context.Context) error {
	return r.repo.HealthCheck(ctx)
}
