package controllers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amaumene/tubenest/internal/metrics"
	"github.com/amaumene/tubenest/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxRefreshConcurrency bounds in-flight calls against the remote API
const maxRefreshConcurrency = 4

// RefreshReport summarises one refresh pass
type RefreshReport struct {
	Skipped   bool           `json:"skipped"`
	Stale     int            `json:"stale"`
	Refreshed int            `json:"refreshed"`
	Failed    int            `json:"failed"`
	Errors    []*SourceError `json:"-"`
}

// RefreshOptions tunes the refresh pass
type RefreshOptions struct {
	TTL            time.Duration
	Concurrency    int
	Remote         RemoteOptions
	TracerProvider trace.TracerProvider
}

// RefreshController keeps the cached metadata of remote sources fresh
type RefreshController struct {
	store       models.Store
	remote      *remoteCaller
	ttl         time.Duration
	concurrency int
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	now         func() time.Time
	logger      *logrus.Logger
}

// NewRefreshController creates a new refresh controller
func NewRefreshController(store models.Store, remote RemoteCatalog, m *metrics.Metrics, opts RefreshOptions, logger *logrus.Logger) *RefreshController {
	if opts.TTL <= 0 {
		opts.TTL = 6 * time.Hour
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Concurrency > maxRefreshConcurrency {
		opts.Concurrency = maxRefreshConcurrency
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &RefreshController{
		store:       store,
		remote:      newRemoteCaller(remote, opts.Remote, m, logger),
		ttl:         opts.TTL,
		concurrency: opts.Concurrency,
		metrics:     m,
		tracer:      tp.Tracer(tracerName),
		now:         time.Now,
		logger:      logger,
	}
}

// RefreshStale refreshes every remote source never refreshed or older than the
// TTL. Without an API key the pass is skipped. Failures are isolated per source
// and retried on the next pass.
func (c *RefreshController) RefreshStale(ctx context.Context, apiKey string) (*RefreshReport, error) {
	if apiKey == "" {
		c.logger.Info("No YouTube API key configured, skipping refresh")
		return &RefreshReport{Skipped: true}, nil
	}

	ctx, span := c.tracer.Start(ctx, "refresh.RefreshStale")
	defer span.End()

	cutoff := c.now().Add(-c.ttl)
	stale, err := c.store.ListStaleSources(ctx, cutoff)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list stale sources: %w", err)
	}

	report := &RefreshReport{Stale: len(stale)}
	if len(stale) == 0 {
		c.logger.Debug("No stale sources to refresh")
		return report, nil
	}

	c.logger.WithFields(logrus.Fields{
		"count": len(stale),
		"ttl":   c.ttl,
	}).Info("Refreshing stale sources")

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(c.concurrency)
	for _, source := range stale {
		p.Go(func() {
			err := c.refreshOne(ctx, source)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				report.Errors = append(report.Errors, &SourceError{SourceID: source.ID, Stage: "refresh", Err: err})
				c.metrics.Refreshed("error")
				c.logger.WithField("source_id", source.ID).WithError(err).Warn("Failed to refresh source")
				return
			}
			report.Refreshed++
			c.metrics.Refreshed("ok")
		})
	}
	p.Wait()

	span.SetAttributes(
		attribute.Int("stale", report.Stale),
		attribute.Int("refreshed", report.Refreshed),
		attribute.Int("failed", report.Failed),
	)
	c.logger.WithFields(logrus.Fields{
		"refreshed": report.Refreshed,
		"failed":    report.Failed,
	}).Info("Refresh completed")

	return report, ctx.Err()
}

// refreshOne resolves a missing external id, then writes fresh metadata and
// the refresh time in one transaction
func (c *RefreshController) refreshOne(ctx context.Context, source models.Source) error {
	if err := source.Validate(); err != nil {
		return err
	}

	if source.ExternalID() == "" && source.Kind == models.SourceKindRemoteChannel {
		id, err := c.remote.resolveHandle(ctx, source.Remote.Handle)
		if err != nil {
			return fmt.Errorf("failed to resolve handle %s: %w", source.Remote.Handle, err)
		}
		// Persist at once; later passes skip resolution
		if err := c.store.UpsertSource(ctx, models.SourcePatch{ID: source.ID, ExternalID: models.StringPtr(id)}); err != nil {
			return fmt.Errorf("failed to save resolved id: %w", err)
		}
		remote := *source.Remote
		remote.ExternalID = id
		source.Remote = &remote

		c.logger.WithFields(logrus.Fields{
			"source_id":   source.ID,
			"handle":      source.Remote.Handle,
			"external_id": id,
		}).Info("Resolved channel handle")
	}

	info, err := c.remote.basicInfo(ctx, source)
	if err != nil {
		return fmt.Errorf("failed to fetch basic info: %w", err)
	}

	now := c.now().UTC()
	patch := models.SourcePatch{
		ID:              source.ID,
		Thumbnail:       models.StringPtr(info.Thumbnail),
		TotalVideoCount: models.IntPtr(info.TotalCount),
		LastRefreshedAt: &now,
	}
	if info.ExternalID != "" {
		patch.ExternalID = models.StringPtr(info.ExternalID)
	}
	if source.Title == "" {
		patch.Title = models.StringPtr(info.Title)
	}

	return c.store.Update(ctx, func(tx models.Tx) error {
		return tx.UpsertSource(patch)
	})
}
