package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amaumene/tubenest/internal/api/handlers"
	"github.com/amaumene/tubenest/internal/api/middleware"
	"github.com/amaumene/tubenest/internal/config"
	"github.com/amaumene/tubenest/internal/controllers"
	"github.com/amaumene/tubenest/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server represents the HTTP server
type Server struct {
	app    *fiber.App
	addr   string
	logger *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(
	cfg *config.Config,
	store models.Store,
	catalogCtrl *controllers.CatalogController,
	refreshCtrl *controllers.RefreshController,
	gatherer prometheus.Gatherer,
	logger *logrus.Logger,
) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          2 * time.Minute,
		IdleTimeout:           60 * time.Second,
		ErrorHandler:          errorHandler(logger),
	})
	app.Use(middleware.Logging(logger))

	s := &Server{
		app:    app,
		addr:   ":" + cfg.ServerPort,
		logger: logger,
	}
	s.setupRoutes(cfg, store, catalogCtrl, refreshCtrl, gatherer)
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(
	cfg *config.Config,
	store models.Store,
	catalogCtrl *controllers.CatalogController,
	refreshCtrl *controllers.RefreshController,
	gatherer prometheus.Gatherer,
) {
	// Health check
	s.app.Get("/health", handlers.NewHealthHandler(s.logger).Handle)

	// Status endpoint
	status := handlers.NewStatusHandler(store, cfg.RefreshTTL, cfg.YouTubeAPIKey != "", s.logger)
	s.app.Get("/status", status.Handle)

	// Prometheus
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := s.app.Group("/api")

	catalog := handlers.NewCatalogHandler(catalogCtrl, refreshCtrl, cfg.YouTubeAPIKey, s.logger)
	api.Get("/catalog", catalog.LoadAll)
	api.Get("/sources/:id/videos", catalog.LoadOne)
	api.Post("/refresh", catalog.Refresh)

	folders := handlers.NewFolderHandler(store, catalogCtrl, s.logger)
	api.Get("/folders", folders.Browse)
	api.Get("/folders/count", folders.Count)

	lists := handlers.NewListHandler(catalogCtrl, s.logger)
	api.Post("/lists/:list", lists.Record)
}

// App exposes the fiber application
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(s.addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down HTTP server")
	return s.app.ShutdownWithTimeout(10 * time.Second)
}

// errorHandler maps the error taxonomy to HTTP status codes
func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		switch {
		case errors.As(err, &fe):
			code = fe.Code
		case errors.Is(err, models.ErrNotFound):
			code = fiber.StatusNotFound
		case errors.Is(err, models.ErrInvalidConfig):
			code = fiber.StatusBadRequest
		case errors.Is(err, models.ErrAPIUnavailable):
			code = fiber.StatusServiceUnavailable
		case errors.Is(err, models.ErrQuotaExceeded):
			code = fiber.StatusTooManyRequests
		case errors.Is(err, models.ErrTransient):
			code = fiber.StatusBadGateway
		}

		if code >= fiber.StatusInternalServerError {
			logger.WithFields(logrus.Fields{
				"method": c.Method(),
				"path":   c.Path(),
			}).WithError(err).Error("Request failed")
		}
		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
}
