package main

import (
	"context"
	"fmt"

	"github.com/amaumene/tubenest/internal/config"
	"github.com/amaumene/tubenest/internal/controllers"
	"github.com/amaumene/tubenest/internal/models"
	"github.com/amaumene/tubenest/internal/scanner"
	"github.com/amaumene/tubenest/internal/scheduler"
	"github.com/amaumene/tubenest/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func provideLogger(cfg *config.Config) *logrus.Logger {
	return utils.NewLogger(cfg.LogLevel)
}

// provideStore opens the configured store backend
func provideStore(cfg *config.Config, logger *logrus.Logger) (models.Store, func(), error) {
	var store models.Store
	switch cfg.StoreDriver {
	case "sqlite":
		db, err := models.NewSQLiteStore(cfg.DatabaseFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		store = db
	default:
		db, err := models.NewDatabase(cfg.DatabaseFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		store = db
	}

	logger.WithFields(logrus.Fields{
		"driver": cfg.StoreDriver,
		"file":   cfg.DatabaseFile,
	}).Info("Database initialized")

	return store, func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Error("Failed to close database")
		}
	}, nil
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideTracerProvider(logger *logrus.Logger) (*sdktrace.TracerProvider, func()) {
	tp := utils.NewTracerProvider(logger)
	otel.SetTracerProvider(tp)
	return tp, func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to shut down tracer provider")
		}
	}
}

// provideIgnoreList loads the ignore file, continuing without it on error
func provideIgnoreList(cfg *config.Config, logger *logrus.Logger) *utils.IgnoreList {
	ignore, err := utils.LoadIgnoreList(cfg.IgnoreFile)
	if err != nil {
		logger.WithError(err).Warn("Failed to load ignore list, continuing without it")
		return utils.NewIgnoreList()
	}
	logger.WithField("count", ignore.Len()).Info("Ignore list loaded")
	return ignore
}

func provideThumbnailCache(cfg *config.Config) *scanner.ThumbnailCache {
	return scanner.NewThumbnailCache(cfg.ThumbnailDir, cfg.LocalCountCacheTTL)
}

func provideCatalogOptions(cfg *config.Config, tp *sdktrace.TracerProvider) controllers.CatalogOptions {
	return controllers.CatalogOptions{
		Concurrency:   cfg.LoadConcurrency,
		MaxPages:      cfg.MaxPages,
		LocalCountTTL: cfg.LocalCountCacheTTL,
		SortByTitle:   cfg.SortOrder == "title",
		Remote: controllers.RemoteOptions{
			Timeout: cfg.RemoteTimeout,
			Retries: cfg.RemoteRetries,
		},
		TracerProvider: tp,
	}
}

func provideRefreshOptions(cfg *config.Config, tp *sdktrace.TracerProvider) controllers.RefreshOptions {
	return controllers.RefreshOptions{
		TTL:         cfg.RefreshTTL,
		Concurrency: cfg.RefreshConcurrency,
		Remote: controllers.RemoteOptions{
			Timeout: cfg.RemoteTimeout,
			Retries: cfg.RemoteRetries,
		},
		TracerProvider: tp,
	}
}

func provideScheduler(cfg *config.Config, refreshCtrl *controllers.RefreshController, logger *logrus.Logger) *scheduler.Scheduler {
	return scheduler.NewScheduler(refreshCtrl, cfg.RefreshSchedule, cfg.YouTubeAPIKey, logger)
}
