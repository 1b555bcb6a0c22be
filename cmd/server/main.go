package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rental-analytics/internal/analytics"
	"rental-analytics/internal/config"
	"rental-analytics/internal/handlers"
	"rental-analytics/internal/repository"
	"rental-analytics/internal/services"
	"rental-analytics/pkg/database"
	"rental-analytics/pkg/logging"
	"rental-analytics/pkg/metrics"
)

const version = "1.0.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("rental-api", version, logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting rental analytics API server", logging.Fields{
		"version":     version,
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"data_source": cfg.Data.Source,
		"cache_size":  cfg.Data.CacheSize,
	})

	metricsCollector := metrics.NewCollector("rental_analytics", prometheus.DefaultRegisterer)
	loader := services.NewLoaderService(logger, metricsCollector)

	var source services.RecordSource
	switch cfg.Data.Source {
	case config.SourcePostgres:
		db, err := database.NewPostgresDB(ctx, cfg.Database.Postgres(), logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{
				"db_host": cfg.Database.Host,
				"db_name": cfg.Database.Database,
			}, err)
		}
		defer db.Close()
		source = services.NewRepositorySource(repository.NewRentalRepository(db, logger, metricsCollector))
	default:
		source = services.NewFileSource(cfg.Data.Path, loader)
	}

	analyticsService := services.NewAnalyticsService(source, cfg.Data.CacheSize, logger, metricsCollector)

	// Warm the unfiltered view so a malformed source fails at startup
	if _, err := analyticsService.Analyze(ctx, analytics.Selection{}); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to load rental records", logging.Fields{
			"source": source.Name(),
		}, err)
	}

	rentalHandler := handlers.NewRentalHandler(analyticsService, logger, metricsCollector)

	router := mux.NewRouter()
	router.Use(handlers.RequestID, handlers.Recoverer(logger), handlers.Instrument(logger, metricsCollector))

	rentalHandler.RegisterRoutes(router)

	router.HandleFunc(handlers.OpenAPIPath, handlers.OpenAPISpec).Methods(http.MethodGet)
	router.HandleFunc("/docs", handlers.SwaggerUI).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
			"source":  source.Name(),
		})

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
