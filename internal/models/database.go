package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// Database wraps the bolthold store
type Database struct {
	store *bolthold.Store
	now   func() time.Time
}

var _ Store = (*Database)(nil)

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store, now: time.Now}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// Source operations

// GetSource retrieves a source by ID
func (db *Database) GetSource(ctx context.Context, id string) (*Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var source Source
	if err := db.store.Get(id, &source); err != nil {
		if errors.Is(err, bolthold.ErrNotFound) {
			return nil, fmt.Errorf("source %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get source %s: %w", id, err)
	}
	return &source, nil
}

// ListSources retrieves all sources in configured order
func (db *Database) ListSources(ctx context.Context) ([]Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sources []Source
	if err := db.store.Find(&sources, nil); err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	sortSources(sources)
	return sources, nil
}

// ListStaleSources retrieves remote sources whose cached metadata predates cutoff
func (db *Database) ListStaleSources(ctx context.Context, cutoff time.Time) ([]Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sources []Source
	query := bolthold.Where("Kind").In(SourceKindRemoteChannel, SourceKindRemotePlaylist).Index("Kind")
	if err := db.store.Find(&sources, query); err != nil {
		return nil, fmt.Errorf("failed to list stale sources: %w", err)
	}

	stale := make([]Source, 0, len(sources))
	for i := range sources {
		if isStaleAt(&sources[i], cutoff) {
			stale = append(stale, sources[i])
		}
	}
	sortSources(stale)
	return stale, nil
}

// PutSource saves a configured source without clobbering its cache fields
func (db *Database) PutSource(ctx context.Context, source Source) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var existing Source
		err := db.store.TxGet(tx, source.ID, &existing)
		switch {
		case err == nil:
			source = WithConfig(existing, source)
		case errors.Is(err, bolthold.ErrNotFound):
			source.CreatedAt = db.now()
		default:
			return fmt.Errorf("failed to read source %s: %w", source.ID, err)
		}
		source.UpdatedAt = db.now()
		if err := db.store.TxUpsert(tx, source.ID, &source); err != nil {
			return fmt.Errorf("failed to save source %s: %w", source.ID, err)
		}
		return nil
	})
}

// UpsertSource applies a partial update to an existing source
func (db *Database) UpsertSource(ctx context.Context, patch SourcePatch) error {
	return db.Update(ctx, func(tx Tx) error {
		return tx.UpsertSource(patch)
	})
}

// DeleteSource removes a source and its videos in one transaction
func (db *Database) DeleteSource(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.store.Bolt().Update(func(tx *bbolt.Tx) error {
		var existing Source
		if err := db.store.TxGet(tx, id, &existing); err != nil {
			if errors.Is(err, bolthold.ErrNotFound) {
				return fmt.Errorf("source %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to read source %s: %w", id, err)
		}
		if err := db.store.TxDelete(tx, id, &existing); err != nil {
			return fmt.Errorf("failed to delete source %s: %w", id, err)
		}
		query := bolthold.Where("SourceID").Eq(id).Index("SourceID")
		if err := db.store.TxDeleteMatching(tx, &VideoRecord{}, query); err != nil {
			return fmt.Errorf("failed to delete videos of %s: %w", id, err)
		}
		return nil
	})
}

// BatchLoadSourceCaches reads the cached state of the given sources in one transaction
func (db *Database) BatchLoadSourceCaches(ctx context.Context, ids []string, pageSize int) (map[string]SourceCache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := make(map[string]SourceCache, len(ids))
	err := db.store.Bolt().View(func(tx *bbolt.Tx) error {
		for _, id := range ids {
			var source Source
			if err := db.store.TxGet(tx, id, &source); err != nil {
				if errors.Is(err, bolthold.ErrNotFound) {
					continue
				}
				return fmt.Errorf("failed to read source %s: %w", id, err)
			}
			if source.LastRefreshedAt == nil {
				continue
			}

			var videos []VideoRecord
			query := bolthold.Where("SourceID").Eq(id).Index("SourceID")
			if err := db.store.TxFind(tx, &videos, query); err != nil {
				return fmt.Errorf("failed to read videos of %s: %w", id, err)
			}
			sortVideos(videos)
			result[id] = SourceCache{Source: source, Videos: pageOf(videos, 0, pageSize)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Video operations

// BatchUpsertVideos merges videos in a single transaction
func (db *Database) BatchUpsertVideos(ctx context.Context, videos []VideoRecord) (int, error) {
	if len(videos) == 0 {
		return 0, nil
	}
	written := 0
	err := db.Update(ctx, func(tx Tx) error {
		n, err := tx.UpsertVideos(videos)
		written = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// GetVideosBySource retrieves one page of a source's videos and the source's total
func (db *Database) GetVideosBySource(ctx context.Context, sourceID string, offset, limit int) ([]VideoRecord, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	var videos []VideoRecord
	query := bolthold.Where("SourceID").Eq(sourceID).Index("SourceID")
	if err := db.store.Find(&videos, query); err != nil {
		return nil, 0, fmt.Errorf("failed to get videos of %s: %w", sourceID, err)
	}
	sortVideos(videos)
	return pageOf(videos, offset, limit), len(videos), nil
}

// GetVideos retrieves videos by store key; missing keys are absent from the map
func (db *Database) GetVideos(ctx context.Context, keys []string) (map[string]VideoRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := make(map[string]VideoRecord, len(keys))
	err := db.store.Bolt().View(func(tx *bbolt.Tx) error {
		for _, key := range keys {
			var video VideoRecord
			if err := db.store.TxGet(tx, key, &video); err != nil {
				if errors.Is(err, bolthold.ErrNotFound) {
					continue
				}
				return fmt.Errorf("failed to read video %s: %w", key, err)
			}
			result[key] = video
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Derived list operations

// ListDerived retrieves the entries of a derived list, oldest first
func (db *Database) ListDerived(ctx context.Context, list DerivedList) ([]DerivedEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entries []DerivedEntry
	query := bolthold.Where("List").Eq(list).Index("List")
	if err := db.store.Find(&entries, query); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", list, err)
	}
	sortDerived(entries)
	return entries, nil
}

// PutDerived creates or replaces a derived entry
func (db *Database) PutDerived(ctx context.Context, entry DerivedEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry.ensureDefaults(db.now())
	if err := db.store.Upsert(entry.ID, &entry); err != nil {
		return fmt.Errorf("failed to save %s entry %s: %w", entry.List, entry.ID, err)
	}
	return nil
}

// Transactions

// Update runs fn inside one bbolt read-write transaction
func (db *Database) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.store.Bolt().Update(func(btx *bbolt.Tx) error {
		return fn(&boltTx{db: db, tx: btx})
	})
}

type boltTx struct {
	db *Database
	tx *bbolt.Tx
}

func (t *boltTx) UpsertSource(patch SourcePatch) error {
	var source Source
	if err := t.db.store.TxGet(t.tx, patch.ID, &source); err != nil {
		if errors.Is(err, bolthold.ErrNotFound) {
			return fmt.Errorf("source %s: %w", patch.ID, ErrNotFound)
		}
		return fmt.Errorf("failed to read source %s: %w", patch.ID, err)
	}
	if !source.Apply(patch) {
		return nil
	}
	source.UpdatedAt = t.db.now()
	if err := t.db.store.TxUpdate(t.tx, source.ID, &source); err != nil {
		return fmt.Errorf("failed to update source %s: %w", source.ID, err)
	}
	return nil
}

func (t *boltTx) UpsertVideos(videos []VideoRecord) (int, error) {
	written := 0
	for _, incoming := range videos {
		key := incoming.StoreKey()

		var existing VideoRecord
		err := t.db.store.TxGet(t.tx, key, &existing)
		switch {
		case errors.Is(err, bolthold.ErrNotFound):
			incoming.Key = key
			incoming.UpdatedAt = t.db.now()
			if err := t.db.store.TxInsert(t.tx, key, &incoming); err != nil {
				return written, fmt.Errorf("failed to insert video %s: %w", key, err)
			}
			written++
		case err != nil:
			return written, fmt.Errorf("failed to read video %s: %w", key, err)
		default:
			merged, changed := MergeVideo(existing, incoming)
			if !changed {
				continue
			}
			merged.UpdatedAt = t.db.now()
			if err := t.db.store.TxUpdate(t.tx, key, &merged); err != nil {
				return written, fmt.Errorf("failed to update video %s: %w", key, err)
			}
			written++
		}
	}
	return written, nil
}
