package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/amaumene/tubenest/internal/controllers"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Refresher runs one refresh pass over stale sources
type Refresher interface {
	RefreshStale(ctx context.Context, apiKey string) (*controllers.RefreshReport, error)
}

// Scheduler manages the background refresh of stale sources
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	schedule  string
	apiKey    string
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *logrus.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(refresher Refresher, schedule, apiKey string, logger *logrus.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:      cron.New(),
		refresher: refresher,
		schedule:  schedule,
		apiKey:    apiKey,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
}

// Start registers the refresh job and runs a first pass in the background
func (s *Scheduler) Start() error {
	s.logger.WithField("schedule", s.schedule).Info("Starting scheduler")

	// Startup and scheduled passes share one job so they never overlap
	job := cron.NewChain(cron.SkipIfStillRunning(cron.PrintfLogger(s.logger))).Then(cron.FuncJob(s.runRefresh))

	if _, err := s.cron.AddJob(s.schedule, job); err != nil {
		return fmt.Errorf("failed to add refresh job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("Running initial refresh")
		job.Run()
	}()

	return nil
}

// Stop cancels any running pass and waits for it to return
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// runRefresh executes the refresh job
func (s *Scheduler) runRefresh() {
	if s.ctx.Err() != nil {
		return
	}
	s.logger.Info("Running scheduled refresh")

	report, err := s.refresher.RefreshStale(s.ctx, s.apiKey)
	if err != nil {
		s.logger.WithError(err).Error("Refresh job failed")
		return
	}
	if report.Skipped {
		return
	}

	s.logger.WithFields(logrus.Fields{
		"stale":     report.Stale,
		"refreshed": report.Refreshed,
		"failed":    report.Failed,
	}).Info("Refresh job completed")
}
