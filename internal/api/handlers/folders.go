package handlers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/amaumene/tubenest/internal/controllers"
	"github.com/amaumene/tubenest/internal/models"
	"github.com/amaumene/tubenest/internal/scanner"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const defaultMaxDepth = 2

// FolderHandler browses and counts folders below configured local roots
type FolderHandler struct {
	store   models.Store
	catalog *controllers.CatalogController
	logger  *logrus.Logger
}

// NewFolderHandler creates a new folder handler
func NewFolderHandler(store models.Store, catalog *controllers.CatalogController, logger *logrus.Logger) *FolderHandler {
	return &FolderHandler{
		store:   store,
		catalog: catalog,
		logger:  logger,
	}
}

// FolderResponse represents the contents of one folder
type FolderResponse struct {
	Path    string               `json:"path"`
	Folders []scanner.Folder     `json:"folders"`
	Videos  []models.VideoRecord `json:"videos"`
}

// CountResponse represents a folder count
type CountResponse struct {
	Path     string `json:"path"`
	MaxDepth int    `json:"max_depth"`
	Count    int    `json:"count"`
}

// resolvePath returns the requested path when it lies inside a local source
func (h *FolderHandler) resolvePath(c *fiber.Ctx) (string, error) {
	raw := c.Query("path")
	if raw == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "path is required")
	}
	if !filepath.IsAbs(raw) {
		return "", fiber.NewError(fiber.StatusBadRequest, "path must be absolute")
	}
	path := filepath.Clean(raw)

	sources, err := h.store.ListSources(c.UserContext())
	if err != nil {
		return "", fmt.Errorf("failed to list sources: %w", err)
	}
	for _, s := range sources {
		if s.Kind != models.SourceKindLocalTree || s.Local == nil {
			continue
		}
		root := filepath.Clean(s.Local.RootPath)
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return path, nil
		}
	}

	h.logger.WithField("path", path).Warn("Rejected folder request outside local sources")
	return "", fiber.NewError(fiber.StatusForbidden, "path is outside the configured local sources")
}

// Browse handles GET /api/folders?path=&max_depth=&depth=
func (h *FolderHandler) Browse(c *fiber.Ctx) error {
	path, err := h.resolvePath(c)
	if err != nil {
		return err
	}

	folders, videos, err := h.catalog.BrowseFolder(c.UserContext(), path, c.QueryInt("max_depth", defaultMaxDepth), c.QueryInt("depth", 1))
	if err != nil {
		return err
	}
	if folders == nil {
		folders = []scanner.Folder{}
	}
	return c.JSON(FolderResponse{Path: path, Folders: folders, Videos: videos})
}

// Count handles GET /api/folders/count?path=&max_depth=
func (h *FolderHandler) Count(c *fiber.Ctx) error {
	path, err := h.resolvePath(c)
	if err != nil {
		return err
	}

	maxDepth := c.QueryInt("max_depth", defaultMaxDepth)
	count, err := h.catalog.CountVideosInFolder(c.UserContext(), path, maxDepth)
	if err != nil {
		return err
	}
	return c.JSON(CountResponse{Path: path, MaxDepth: maxDepth, Count: count})
}
