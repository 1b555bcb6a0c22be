package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"rental-analytics/internal/config"
	"rental-analytics/internal/repository"
	"rental-analytics/internal/services"
	"rental-analytics/pkg/database"
	"rental-analytics/pkg/logging"
	"rental-analytics/pkg/metrics"
)

func main() {
	file := flag.String("file", "data/day.csv", "Rental data file (.csv, .tsv or .xlsx)")
	batchSize := flag.Int("batch-size", services.DefaultBatchSize, "Number of rental days written per transaction")
	replace := flag.Bool("replace", false, "Delete stored rental days before loading")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("rental-ingester", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[INGESTER_START] Starting rental data ingestion", logging.Fields{
		"version":    "1.0.0",
		"file":       *file,
		"batch_size": *batchSize,
		"replace":    *replace,
	})

	metricsCollector := metrics.NewCollector("rental_ingester", prometheus.DefaultRegisterer)

	db, err := database.NewPostgresDB(ctx, cfg.Database.Postgres(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	rentalRepo := repository.NewRentalRepository(db, logger, metricsCollector)
	ingestionService := services.NewIngestionService(
		services.NewLoaderService(logger, metricsCollector),
		rentalRepo,
		logger,
		metricsCollector,
	)

	result, err := ingestionService.IngestFile(ctx, *file, *batchSize, *replace)
	if err != nil {
		db.Close()
		logger.Fatal(ctx, "[INGESTION_ERROR] Ingestion failed", logging.Fields{
			"file": *file,
		}, err)
	}

	stored, err := rentalRepo.CountRecords(ctx, repository.RecordFilter{})
	if err != nil {
		logger.Error(ctx, "[INGESTION_COUNT_ERROR] Failed to count stored rental days", logging.Fields{}, err)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("INGESTION COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("File:              %s\n", result.Path)
	fmt.Printf("Records Read:      %d\n", result.TotalRecords)
	fmt.Printf("Records Written:   %d\n", result.WrittenRecords)
	fmt.Printf("Batches:           %d\n", result.Batches)
	fmt.Printf("Rows Deleted:      %d\n", result.Deleted)
	fmt.Printf("Rows Stored:       %d\n", stored)
	fmt.Printf("Duration:          %v\n", result.Duration)

	breakdown, err := ingestionService.StoredBreakdown(ctx)
	if err != nil {
		logger.Error(ctx, "[INGESTION_BREAKDOWN_ERROR] Failed to count stored rental days by dimension", logging.Fields{}, err)
	} else {
		fmt.Println()
		fmt.Println("Stored rental days:")
		for _, row := range breakdown {
			fmt.Printf("  %-9s %-30s %6d\n", row.Dimension, row.Value, row.Count)
		}
	}

	logger.Info(ctx, "[INGESTER_COMPLETE] Ingestion completed successfully", logging.Fields{
		"total_records":    result.TotalRecords,
		"written_records":  result.WrittenRecords,
		"stored_records":   stored,
		"duration_seconds": result.Duration.Seconds(),
	})
}
