package main

import (
	"fmt"
	"log"
	"os"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/aggregator"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/api"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/config"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/logging"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/report"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/storage"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/storage/postgres"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/storage/sqlite"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, closer, err := logging.New(logging.Options{
		Level:        cfg.LogLevel,
		Format:       cfg.LogFormat,
		LogstashAddr: cfg.LogstashTCPAddr,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer closer.Close()

	// Initialize the run journal; the report endpoints work without it
	var journal storage.Storage
	switch cfg.StorageType {
	case "postgres":
		journal, err = postgres.NewPostgresStorage(cfg.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL storage: %v", err)
		}
	case "sqlite":
		journal, err = sqlite.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite storage: %v", err)
		}
	}
	if journal != nil {
		defer journal.Close()
	}

	agg := aggregator.NewAggregator(report.NewFileStore(cfg.ReportPath))
	handler := api.NewHandler(agg, journal)
	router := api.SetupRoutes(handler, logger)

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	logger.Info("starting API server", "addr", addr, "report", cfg.ReportPath, "storage", cfg.StorageType)

	if err := router.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}
}
