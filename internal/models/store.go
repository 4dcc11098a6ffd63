package models

import (
	"context"
	"sort"
	"time"
)

// Store is the persistent record store for sources, videos and derived entries
type Store interface {
	GetSource(ctx context.Context, id string) (*Source, error)
	ListSources(ctx context.Context) ([]Source, error)
	// ListStaleSources returns remote sources never refreshed or refreshed before cutoff
	ListStaleSources(ctx context.Context, cutoff time.Time) ([]Source, error)
	// PutSource saves a configured source, keeping its cache fields
	PutSource(ctx context.Context, source Source) error
	// UpsertSource applies a partial update; unknown ids yield ErrNotFound
	UpsertSource(ctx context.Context, patch SourcePatch) error
	// DeleteSource removes a source and its videos; derived entries are kept
	DeleteSource(ctx context.Context, id string) error

	// BatchLoadSourceCaches reads the cached basic info and first page of every
	// given source that has been fetched at least once, in one read transaction
	BatchLoadSourceCaches(ctx context.Context, ids []string, pageSize int) (map[string]SourceCache, error)

	// BatchUpsertVideos merges videos into the store in one transaction and
	// returns how many records were actually written
	BatchUpsertVideos(ctx context.Context, videos []VideoRecord) (int, error)
	GetVideosBySource(ctx context.Context, sourceID string, offset, limit int) ([]VideoRecord, int, error)
	// GetVideos looks up videos by store key (see VideoKey)
	GetVideos(ctx context.Context, keys []string) (map[string]VideoRecord, error)

	ListDerived(ctx context.Context, list DerivedList) ([]DerivedEntry, error)
	PutDerived(ctx context.Context, entry DerivedEntry) error

	// Update runs fn in one read-write transaction, committed when fn returns
	// nil and rolled back otherwise
	Update(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// Tx is the write surface available inside Store.Update
type Tx interface {
	UpsertSource(patch SourcePatch) error
	UpsertVideos(videos []VideoRecord) (int, error)
}

// SourceCache is the cached state of one remote source
type SourceCache struct {
	Source Source
	Videos []VideoRecord // first page, by position
}

// sortSources orders sources by configured position, then id
func sortSources(sources []Source) {
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].Position != sources[j].Position {
			return sources[i].Position < sources[j].Position
		}
		return sources[i].ID < sources[j].ID
	})
}

// sortVideos orders videos by position within their source
func sortVideos(videos []VideoRecord) {
	sort.SliceStable(videos, func(i, j int) bool {
		if videos[i].Position != videos[j].Position {
			return videos[i].Position < videos[j].Position
		}
		return videos[i].ID < videos[j].ID
	})
}

// sortDerived orders derived entries oldest first
func sortDerived(entries []DerivedEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].AddedAt.Before(entries[j].AddedAt)
	})
}

// pageOf returns videos[offset:offset+limit] clamped to the slice bounds
func pageOf(videos []VideoRecord, offset, limit int) []VideoRecord {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(videos) {
		return []VideoRecord{}
	}
	end := len(videos)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return videos[offset:end]
}

// isStaleAt reports whether s was never refreshed or refreshed before cutoff
func isStaleAt(s *Source, cutoff time.Time) bool {
	return s.LastRefreshedAt == nil || s.LastRefreshedAt.Before(cutoff)
}
