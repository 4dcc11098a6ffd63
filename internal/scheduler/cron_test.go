package scheduler

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/amaumene/tubenest/internal/controllers"
	"github.com/sirupsen/logrus"
)

type fakeRefresher struct {
	mu      sync.Mutex
	calls   int
	keys    []string
	started chan struct{}
	block   bool
	stopped chan error
}

func newFakeRefresher(block bool) *fakeRefresher {
	return &fakeRefresher{
		started: make(chan struct{}, 16),
		block:   block,
		stopped: make(chan error, 16),
	}
}

func (f *fakeRefresher) RefreshStale(ctx context.Context, apiKey string) (*controllers.RefreshReport, error) {
	f.mu.Lock()
	f.calls++
	f.keys = append(f.keys, apiKey)
	f.mu.Unlock()
	f.started <- struct{}{}

	if f.block {
		<-ctx.Done()
		f.stopped <- ctx.Err()
		return &controllers.RefreshReport{}, ctx.Err()
	}
	return &controllers.RefreshReport{Stale: 1, Refreshed: 1}, nil
}

func (f *fakeRefresher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestSchedulerRunsAtStartup(t *testing.T) {
	refresher := newFakeRefresher(false)
	s := NewScheduler(refresher, "0 0 1 1 *", "key", testLogger())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	select {
	case <-refresher.started:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a refresh pass at startup")
	}
	if refresher.keys[0] != "key" {
		t.Errorf("Expected API key to be passed, got %q", refresher.keys[0])
	}
}

func TestSchedulerStopCancelsRunningPass(t *testing.T) {
	refresher := newFakeRefresher(true)
	s := NewScheduler(refresher, "0 0 1 1 *", "key", testLogger())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-refresher.started:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a refresh pass at startup")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	if err := <-refresher.stopped; err != context.Canceled {
		t.Errorf("Expected the pass to observe cancellation, got %v", err)
	}
}

func TestSchedulerRunsOnSchedule(t *testing.T) {
	refresher := newFakeRefresher(false)
	s := NewScheduler(refresher, "@every 1s", "key", testLogger())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for refresher.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected a scheduled pass after startup, got %d calls", refresher.count())
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestSchedulerRejectsInvalidSchedule(t *testing.T) {
	s := NewScheduler(newFakeRefresher(false), "not a schedule", "", testLogger())
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("Expected an error for an invalid schedule")
	}
}
