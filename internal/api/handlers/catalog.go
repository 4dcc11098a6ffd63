package handlers

import (
	"github.com/amaumene/tubenest/internal/controllers"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// CatalogHandler serves the aggregated catalog and refresh passes
type CatalogHandler struct {
	catalog *controllers.CatalogController
	refresh *controllers.RefreshController
	apiKey  string
	logger  *logrus.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog *controllers.CatalogController, refresh *controllers.RefreshController, apiKey string, logger *logrus.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		refresh: refresh,
		apiKey:  apiKey,
		logger:  logger,
	}
}

// SourceErrorResponse is one per-source failure
type SourceErrorResponse struct {
	SourceID string `json:"source_id,omitempty"`
	Stage    string `json:"stage"`
	Error    string `json:"error"`
}

// CatalogResponse represents the catalog response
type CatalogResponse struct {
	Sources []controllers.SourceWithVideos `json:"sources"`
	Errors  []SourceErrorResponse          `json:"errors"`
}

// RefreshResponse represents the result of a refresh pass
type RefreshResponse struct {
	*controllers.RefreshReport
	Errors []SourceErrorResponse `json:"errors"`
}

func toErrorResponses(errs []*controllers.SourceError) []SourceErrorResponse {
	out := make([]SourceErrorResponse, 0, len(errs))
	for _, e := range errs {
		out = append(out, SourceErrorResponse{SourceID: e.SourceID, Stage: e.Stage, Error: e.Err.Error()})
	}
	return out
}

// LoadAll handles GET /api/catalog
func (h *CatalogHandler) LoadAll(c *fiber.Ctx) error {
	catalog, err := h.catalog.LoadAll(c.UserContext(), h.apiKey != "")
	if err != nil {
		return err
	}
	return c.JSON(CatalogResponse{
		Sources: catalog.Sources,
		Errors:  toErrorResponses(catalog.Errors),
	})
}

// LoadOne handles GET /api/sources/:id/videos?page=N
func (h *CatalogHandler) LoadOne(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		return fiber.NewError(fiber.StatusBadRequest, "page must be at least 1")
	}

	source, err := h.catalog.LoadOne(c.UserContext(), c.Params("id"), page)
	if err != nil {
		return err
	}
	return c.JSON(source)
}

// Refresh handles POST /api/refresh
func (h *CatalogHandler) Refresh(c *fiber.Ctx) error {
	report, err := h.refresh.RefreshStale(c.UserContext(), h.apiKey)
	if err != nil {
		return err
	}

	h.logger.WithFields(logrus.Fields{
		"skipped":   report.Skipped,
		"refreshed": report.Refreshed,
		"failed":    report.Failed,
	}).Info("Manual refresh completed")

	return c.JSON(RefreshResponse{
		RefreshReport: report,
		Errors:        toErrorResponses(report.Errors),
	})
}
