package handlers

import (
	"github.com/amaumene/tubenest/internal/controllers"
	"github.com/amaumene/tubenest/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// ListHandler records entries of the derived lists
type ListHandler struct {
	catalog *controllers.CatalogController
	logger  *logrus.Logger
}

// NewListHandler creates a new list handler
func NewListHandler(catalog *controllers.CatalogController, logger *logrus.Logger) *ListHandler {
	return &ListHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// ListEntryRequest is the body of a derived list entry
type ListEntryRequest struct {
	VideoID   string `json:"video_id"`
	SourceID  string `json:"source_id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	URL       string `json:"url"`
	Path      string `json:"path"`
	Status    string `json:"status"` // wishlist only
}

// Record handles POST /api/lists/:list
func (h *ListHandler) Record(c *fiber.Ctx) error {
	var req ListEntryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}

	entry := models.DerivedEntry{
		List:      models.DerivedList(c.Params("list")),
		VideoID:   req.VideoID,
		SourceID:  req.SourceID,
		Title:     req.Title,
		Thumbnail: req.Thumbnail,
		URL:       req.URL,
		Path:      req.Path,
		Status:    models.WishlistStatus(req.Status),
	}
	if err := h.catalog.RecordDerived(c.UserContext(), entry); err != nil {
		return err
	}

	h.logger.WithFields(logrus.Fields{
		"list":     entry.List,
		"video_id": entry.VideoID,
	}).Info("Recorded list entry")

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok"})
}
