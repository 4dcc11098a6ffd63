package handlers

import (
	"fmt"
	"time"

	"github.com/amaumene/tubenest/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// StatusHandler handles status requests
type StatusHandler struct {
	store         models.Store
	ttl           time.Duration
	apiConfigured bool
	logger        *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(store models.Store, ttl time.Duration, apiConfigured bool, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		store:         store,
		ttl:           ttl,
		apiConfigured: apiConfigured,
		logger:        logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	TotalSources  int            `json:"total_sources"`
	SourcesByKind map[string]int `json:"sources_by_kind"`
	Stale         int            `json:"stale"`
	RemoteVideos  int            `json:"remote_videos"`
	APIConfigured bool           `json:"api_configured"`
}

// Handle handles the status endpoint
func (h *StatusHandler) Handle(c *fiber.Ctx) error {
	sources, err := h.store.ListSources(c.UserContext())
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	response := StatusResponse{
		TotalSources:  len(sources),
		SourcesByKind: make(map[string]int),
		APIConfigured: h.apiConfigured,
	}

	now := time.Now()
	for i := range sources {
		s := &sources[i]
		response.SourcesByKind[string(s.Kind)]++
		if s.Kind.IsRemote() {
			response.RemoteVideos += s.TotalVideoCount
			if s.IsStale(now, h.ttl) {
				response.Stale++
			}
		}
	}

	return c.JSON(response)
}
