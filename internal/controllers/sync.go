package controllers

import (
	"context"
	"fmt"

	"github.com/amaumene/tubenest/internal/models"
	"github.com/sirupsen/logrus"
)

// SyncReport summarises one configuration sync
type SyncReport struct {
	Saved   int
	Skipped int
	Removed int
}

// SyncController reconciles the store with the configured source list
type SyncController struct {
	store  models.Store
	logger *logrus.Logger
}

// NewSyncController creates a new sync controller
func NewSyncController(store models.Store, logger *logrus.Logger) *SyncController {
	return &SyncController{
		store:  store,
		logger: logger,
	}
}

// SyncSources saves every valid configured source and removes stored sources
// that are no longer configured. Invalid entries are skipped and keep any
// stored copy.
func (c *SyncController) SyncSources(ctx context.Context, configured []models.Source) (*SyncReport, error) {
	c.logger.WithField("count", len(configured)).Info("Syncing configured sources")

	report := &SyncReport{}
	keep := make(map[string]struct{}, len(configured))
	for _, source := range configured {
		keep[source.ID] = struct{}{}

		if err := source.Validate(); err != nil {
			c.logger.WithField("source_id", source.ID).WithError(err).Warn("Skipping invalid source")
			report.Skipped++
			continue
		}
		if err := c.store.PutSource(ctx, source); err != nil {
			return report, fmt.Errorf("failed to save source %s: %w", source.ID, err)
		}
		report.Saved++
	}

	stored, err := c.store.ListSources(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list sources: %w", err)
	}
	for _, source := range stored {
		if _, ok := keep[source.ID]; ok {
			continue
		}
		if err := c.store.DeleteSource(ctx, source.ID); err != nil {
			return report, fmt.Errorf("failed to remove source %s: %w", source.ID, err)
		}
		report.Removed++

		c.logger.WithFields(logrus.Fields{
			"source_id": source.ID,
			"kind":      source.Kind,
		}).Info("Removed source no longer configured")
	}

	c.logger.WithFields(logrus.Fields{
		"saved":   report.Saved,
		"skipped": report.Skipped,
		"removed": report.Removed,
	}).Info("Source sync completed")
	return report, nil
}
