package controllers

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/amaumene/tubenest/internal/metrics"
	"github.com/amaumene/tubenest/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// fakeRemote serves canned metadata per source id and counts calls per operation
type fakeRemote struct {
	mu      sync.Mutex
	info    map[string]models.BasicInfo
	videos  map[string][]models.VideoRecord
	handles map[string]string
	fail    map[string]error
	hook    func(sourceID string)
	calls   map[string]int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		info:    map[string]models.BasicInfo{},
		videos:  map[string][]models.VideoRecord{},
		handles: map[string]string{},
		fail:    map[string]error{},
		calls:   map[string]int{},
	}
}

func (f *fakeRemote) add(id, title string, n int) {
	f.info[id] = models.BasicInfo{ExternalID: "UC" + id, Title: title, Thumbnail: "https://img/" + id + ".jpg", TotalCount: n}
	var videos []models.VideoRecord
	for i := 0; i < n; i++ {
		videos = append(videos, models.VideoRecord{
			ID:              fmt.Sprintf("%s-v%d", id, i),
			Title:           fmt.Sprintf("%s video %d", title, i),
			DurationSeconds: 60 + i,
			Position:        i,
		})
	}
	f.videos[id] = videos
}

func (f *fakeRemote) record(op, sourceID string) error {
	f.mu.Lock()
	f.calls[op]++
	f.calls[op+":"+sourceID]++
	err := f.fail[sourceID]
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(sourceID)
	}
	return err
}

func (f *fakeRemote) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeRemote) setFail(sourceID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[sourceID] = err
}

func (f *fakeRemote) GetBasicInfo(ctx context.Context, source models.Source) (models.BasicInfo, error) {
	if err := f.record("info", source.ID); err != nil {
		return models.BasicInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.BasicInfo{}, err
	}
	info, ok := f.info[source.ID]
	if !ok {
		return models.BasicInfo{}, models.ErrNotFound
	}
	return info, nil
}

func (f *fakeRemote) GetVideoPage(ctx context.Context, source models.Source, page int) (models.VideoPage, error) {
	if err := f.record("page", source.ID); err != nil {
		return models.VideoPage{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.VideoPage{}, err
	}
	all := f.videos[source.ID]
	start, end := pageBounds(page, len(all))
	out := make([]models.VideoRecord, end-start)
	copy(out, all[start:end])
	return models.VideoPage{Videos: out, TotalCount: len(all)}, nil
}

func (f *fakeRemote) ResolveHandleToID(ctx context.Context, handle string) (string, error) {
	if err := f.record("resolve", handle); err != nil {
		return "", err
	}
	id, ok := f.handles[handle]
	if !ok {
		return "", models.ErrNotFound
	}
	return id, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestStore(t *testing.T) *models.Database {
	t.Helper()
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func putSources(t *testing.T, store models.Store, sources ...models.Source) {
	t.Helper()
	for i, s := range sources {
		s.Position = i
		if err := store.PutSource(context.Background(), s); err != nil {
			t.Fatalf("PutSource(%s): %v", s.ID, err)
		}
	}
}

func channel(id string) models.Source {
	return models.Source{
		ID:     id,
		Kind:   models.SourceKindRemoteChannel,
		Title:  "Channel " + id,
		Remote: &models.RemoteFields{ExternalID: "UC" + id},
	}
}

func TestNewPagination(t *testing.T) {
	tests := []struct {
		total, page, maxPages int
		want                  Pagination
	}{
		{0, 1, 20, Pagination{CurrentPage: 1, TotalPages: 0, TotalVideos: 0, PageSize: 50}},
		{50, 1, 20, Pagination{CurrentPage: 1, TotalPages: 1, TotalVideos: 50, PageSize: 50}},
		{101, 2, 20, Pagination{CurrentPage: 2, TotalPages: 3, TotalVideos: 101, PageSize: 50}},
		{5000, 0, 20, Pagination{CurrentPage: 1, TotalPages: 20, TotalVideos: 5000, PageSize: 50}},
		{5000, 1, 0, Pagination{CurrentPage: 1, TotalPages: 100, TotalVideos: 5000, PageSize: 50}},
	}
	for _, tt := range tests {
		if got := NewPagination(tt.total, tt.page, tt.maxPages); got != tt.want {
			t.Errorf("NewPagination(%d, %d, %d) = %+v, want %+v", tt.total, tt.page, tt.maxPages, got, tt.want)
		}
	}
}
