package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amaumene/tubenest/internal/api"
	"github.com/amaumene/tubenest/internal/config"
	"github.com/amaumene/tubenest/internal/controllers"
	"github.com/amaumene/tubenest/internal/models"
	"github.com/amaumene/tubenest/internal/scanner"
	"github.com/amaumene/tubenest/internal/scheduler"
	"github.com/amaumene/tubenest/internal/utils"
	"github.com/amaumene/tubenest/internal/watcher"
	"github.com/sirupsen/logrus"
)

// App holds the wired components of the engine
type App struct {
	Config     *config.Config
	Logger     *logrus.Logger
	Store      models.Store
	Ignore     *utils.IgnoreList
	Thumbnails *scanner.ThumbnailCache
	Catalog    *controllers.CatalogController
	Refresh    *controllers.RefreshController
	Sync       *controllers.SyncController
	Server     *api.Server
	Scheduler  *scheduler.Scheduler
}

// syncSources loads sources.yaml into the store
func (a *App) syncSources(ctx context.Context) error {
	sources, err := config.LoadSources(a.Config.SourcesFile)
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}
	if _, err := a.Sync.SyncSources(ctx, sources); err != nil {
		return fmt.Errorf("failed to sync sources: %w", err)
	}
	return nil
}

// Serve runs the scheduler, watcher and HTTP server until a shutdown signal arrives
func (a *App) Serve(ctx context.Context) error {
	logger := a.Logger
	logger.Info("Starting tubenest")
	logger.WithField("config_dir", a.Config.ConfigDir).Info("Configuration loaded")

	if err := a.syncSources(ctx); err != nil {
		return err
	}
	if a.Config.YouTubeAPIKey == "" {
		logger.Warn("YOUTUBE_API_KEY is not set, remote sources are served from cache only")
	}

	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer a.Scheduler.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.Config.WatchLocal {
		sources, err := a.Store.ListSources(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sources: %w", err)
		}
		w, err := watcher.New(sources, a.Catalog, a.Ignore, logger)
		if err != nil {
			logger.WithError(err).Warn("Filesystem watcher unavailable, relying on count expiry")
		} else {
			defer w.Close()
			if err := w.WatchThumbnails(a.Config.ThumbnailDir, a.Thumbnails); err != nil {
				logger.WithError(err).Warn("Thumbnail directory not watched, relying on lookup expiry")
			}
			go func() {
				if err := w.Run(ctx); err != nil {
					logger.WithError(err).Error("Filesystem watcher stopped")
				}
			}()
		}
	}

	serverErrChan := make(chan error, 1)
	go func() {
		if err := a.Server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("tubenest is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if err := a.Server.Shutdown(); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	logger.Info("tubenest stopped")
	return nil
}
