package controllers

import (
	"context"
	"fmt"

	"github.com/amaumene/tubenest/internal/models"
	"github.com/sirupsen/logrus"
)

// CacheEntry is the pass-scoped state of one remote source
type CacheEntry struct {
	SourceID        string
	Title           string
	Thumbnail       string
	Videos          []models.VideoRecord // first page only
	TotalVideos     int
	UsingCachedData bool
	FetchedNewData  bool
}

// BatchCacheLoader reads the cached basic info of many remote sources at once
type BatchCacheLoader struct {
	store  models.Store
	logger *logrus.Logger
}

// NewBatchCacheLoader creates a new batch cache loader
func NewBatchCacheLoader(store models.Store, logger *logrus.Logger) *BatchCacheLoader {
	return &BatchCacheLoader{
		store:  store,
		logger: logger,
	}
}

// BatchLoadBasicInfo returns a cache entry for every remote source the store
// has already fetched. Sources missing from the result need the live path.
func (l *BatchCacheLoader) BatchLoadBasicInfo(ctx context.Context, sources []models.Source) (map[string]CacheEntry, error) {
	ids := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.Kind.IsRemote() {
			ids = append(ids, s.ID)
		}
	}
	if len(ids) == 0 {
		return map[string]CacheEntry{}, nil
	}

	caches, err := l.store.BatchLoadSourceCaches(ctx, ids, PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to batch load source caches: %w", err)
	}

	entries := make(map[string]CacheEntry, len(caches))
	for id, cache := range caches {
		src := cache.Source
		videos := make([]models.VideoRecord, len(cache.Videos))
		for i, v := range cache.Videos {
			videos[i] = tagVideo(v, src)
		}
		entries[id] = CacheEntry{
			SourceID:        id,
			Title:           src.Title,
			Thumbnail:       src.Thumbnail,
			Videos:          videos,
			TotalVideos:     src.TotalVideoCount,
			UsingCachedData: true,
		}
	}

	l.logger.WithFields(logrus.Fields{
		"requested": len(ids),
		"cached":    len(entries),
	}).Debug("Batch loaded source caches")
	return entries, nil
}

// tagVideo stamps a video with the source it is listed under
func tagVideo(v models.VideoRecord, source models.Source) models.VideoRecord {
	v.SourceID = source.ID
	v.SourceKind = source.Kind
	v.SourceTitle = source.Title
	return v
}
