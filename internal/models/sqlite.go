package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const sqliteBatchSize = 200

// SQLiteStore implements Store on a gorm-managed SQLite file
type SQLiteStore struct {
	db *gorm.DB
}

var _ Store = (*SQLiteStore)(nil)

type sourceRow struct {
	ID              string `gorm:"primaryKey"`
	Kind            string `gorm:"index"`
	Title           string
	Position        int
	URL             string
	ExternalID      string
	Handle          string
	RootPath        string
	MaxDepth        int
	DerivedList     string
	TotalVideoCount int
	Thumbnail       string
	LastRefreshedAt *time.Time `gorm:"index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (sourceRow) TableName() string { return "sources" }

type videoRow struct {
	StoreKey        string `gorm:"column:store_key;primaryKey"`
	ID              string
	SourceID        string `gorm:"index"`
	SourceKind      string
	SourceTitle     string
	Title           string
	Thumbnail       string
	DurationSeconds int
	URL             string
	Path            string
	PublishedAt     *time.Time
	Depth           int
	Flattened       bool
	Position        int
	UpdatedAt       time.Time
}

func (videoRow) TableName() string { return "videos" }

type derivedRow struct {
	ID        string `gorm:"primaryKey"`
	List      string `gorm:"index"`
	VideoID   string
	SourceID  string
	Title     string
	Thumbnail string
	URL       string
	Path      string
	Status    string
	AddedAt   time.Time
}

func (derivedRow) TableName() string { return "derived_entries" }

// NewSQLiteStore opens (and migrates) a SQLite store at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&sourceRow{}, &videoRow{}, &derivedRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying connection pool
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetSource retrieves a source by ID
func (s *SQLiteStore) GetSource(ctx context.Context, id string) (*Source, error) {
	var row sourceRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("source %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get source %s: %w", id, err)
	}
	source := row.toSource()
	return &source, nil
}

// ListSources retrieves all sources in configured order
func (s *SQLiteStore) ListSources(ctx context.Context) ([]Source, error) {
	var rows []sourceRow
	if err := s.db.WithContext(ctx).Order("position, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return toSources(rows), nil
}

// ListStaleSources retrieves remote sources whose cached metadata predates cutoff
func (s *SQLiteStore) ListStaleSources(ctx context.Context, cutoff time.Time) ([]Source, error) {
	var rows []sourceRow
	err := s.db.WithContext(ctx).
		Where("kind IN ?", []string{string(SourceKindRemoteChannel), string(SourceKindRemotePlaylist)}).
		Where("last_refreshed_at IS NULL OR last_refreshed_at < ?", cutoff.UTC()).
		Order("position, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale sources: %w", err)
	}
	return toSources(rows), nil
}

// PutSource saves a configured source without clobbering its cache fields
func (s *SQLiteStore) PutSource(ctx context.Context, source Source) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing sourceRow
		err := tx.First(&existing, "id = ?", source.ID).Error
		switch {
		case err == nil:
			source = WithConfig(existing.toSource(), source)
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return fmt.Errorf("failed to read source %s: %w", source.ID, err)
		}
		row := newSourceRow(source)
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("failed to save source %s: %w", source.ID, err)
		}
		return nil
	})
}

// UpsertSource applies a partial update to an existing source
func (s *SQLiteStore) UpsertSource(ctx context.Context, patch SourcePatch) error {
	return s.Update(ctx, func(tx Tx) error {
		return tx.UpsertSource(patch)
	})
}

// DeleteSource removes a source and its videos in one transaction
func (s *SQLiteStore) DeleteSource(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&sourceRow{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete source %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("source %s: %w", id, ErrNotFound)
		}
		if err := tx.Where("source_id = ?", id).Delete(&videoRow{}).Error; err != nil {
			return fmt.Errorf("failed to delete videos of %s: %w", id, err)
		}
		return nil
	})
}

// BatchLoadSourceCaches reads the cached state of the given sources with two queries
func (s *SQLiteStore) BatchLoadSourceCaches(ctx context.Context, ids []string, pageSize int) (map[string]SourceCache, error) {
	result := make(map[string]SourceCache, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sources []sourceRow
		if err := tx.Where("id IN ? AND last_refreshed_at IS NOT NULL", ids).Find(&sources).Error; err != nil {
			return fmt.Errorf("failed to read sources: %w", err)
		}
		if len(sources) == 0 {
			return nil
		}

		cachedIDs := make([]string, 0, len(sources))
		for _, row := range sources {
			cachedIDs = append(cachedIDs, row.ID)
		}
		var videos []videoRow
		if err := tx.Where("source_id IN ?", cachedIDs).Order("source_id, position, id").Find(&videos).Error; err != nil {
			return fmt.Errorf("failed to read videos: %w", err)
		}

		bySource := make(map[string][]VideoRecord, len(sources))
		for _, v := range videos {
			if pageSize > 0 && len(bySource[v.SourceID]) >= pageSize {
				continue
			}
			bySource[v.SourceID] = append(bySource[v.SourceID], v.toVideo())
		}
		for _, row := range sources {
			result[row.ID] = SourceCache{Source: row.toSource(), Videos: bySource[row.ID]}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// BatchUpsertVideos merges videos in a single transaction
func (s *SQLiteStore) BatchUpsertVideos(ctx context.Context, videos []VideoRecord) (int, error) {
	if len(videos) == 0 {
		return 0, nil
	}
	written := 0
	err := s.Update(ctx, func(tx Tx) error {
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
func (s *SQLiteStore) GetVideosBySource(ctx context.Context, sourceID string, offset, limit int) ([]VideoRecord, int, error) {
	db := s.db.WithContext(ctx).Model(&videoRow{}).Where("source_id = ?", sourceID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count videos of %s: %w", sourceID, err)
	}

	query := s.db.WithContext(ctx).Where("source_id = ?", sourceID).Order("position, id").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []videoRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to get videos of %s: %w", sourceID, err)
	}

	videos := make([]VideoRecord, 0, len(rows))
	for _, row := range rows {
		videos = append(videos, row.toVideo())
	}
	return videos, int(total), nil
}

// GetVideos retrieves videos by store key; missing keys are absent from the map
func (s *SQLiteStore) GetVideos(ctx context.Context, keys []string) (map[string]VideoRecord, error) {
	result := make(map[string]VideoRecord, len(keys))
	for start := 0; start < len(keys); start += sqliteBatchSize {
		end := min(start+sqliteBatchSize, len(keys))
		var rows []videoRow
		if err := s.db.WithContext(ctx).Where("store_key IN ?", keys[start:end]).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to get videos: %w", err)
		}
		for _, row := range rows {
			result[row.StoreKey] = row.toVideo()
		}
	}
	return result, nil
}

// ListDerived retrieves the entries of a derived list, oldest first
func (s *SQLiteStore) ListDerived(ctx context.Context, list DerivedList) ([]DerivedEntry, error) {
	var rows []derivedRow
	if err := s.db.WithContext(ctx).Where("list = ?", string(list)).Order("added_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", list, err)
	}
	entries := make([]DerivedEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toEntry())
	}
	return entries, nil
}

// PutDerived creates or replaces a derived entry
func (s *SQLiteStore) PutDerived(ctx context.Context, entry DerivedEntry) error {
	entry.ensureDefaults(time.Now())
	row := newDerivedRow(entry)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save %s entry %s: %w", entry.List, entry.ID, err)
	}
	return nil
}

// Update runs fn inside one SQL transaction
func (s *SQLiteStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&sqliteTx{tx: tx})
	})
}

type sqliteTx struct {
	tx *gorm.DB
}

func (t *sqliteTx) UpsertSource(patch SourcePatch) error {
	var row sourceRow
	if err := t.tx.First(&row, "id = ?", patch.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("source %s: %w", patch.ID, ErrNotFound)
		}
		return fmt.Errorf("failed to read source %s: %w", patch.ID, err)
	}
	source := row.toSource()
	if !source.Apply(patch) {
		return nil
	}
	updated := newSourceRow(source)
	if err := t.tx.Save(&updated).Error; err != nil {
		return fmt.Errorf("failed to update source %s: %w", patch.ID, err)
	}
	return nil
}

func (t *sqliteTx) UpsertVideos(videos []VideoRecord) (int, error) {
	written := 0
	for start := 0; start < len(videos); start += sqliteBatchSize {
		batch := videos[start:min(start+sqliteBatchSize, len(videos))]

		keys := make([]string, 0, len(batch))
		for i := range batch {
			keys = append(keys, batch[i].StoreKey())
		}
		var existingRows []videoRow
		if err := t.tx.Where("store_key IN ?", keys).Find(&existingRows).Error; err != nil {
			return written, fmt.Errorf("failed to read videos: %w", err)
		}
		existing := make(map[string]VideoRecord, len(existingRows))
		for _, row := range existingRows {
			existing[row.StoreKey] = row.toVideo()
		}

		rows := make([]videoRow, 0, len(batch))
		for _, incoming := range batch {
			key := incoming.StoreKey()
			current, ok := existing[key]
			if ok {
				merged, changed := MergeVideo(current, incoming)
				if !changed {
					continue
				}
				incoming = merged
			}
			incoming.Key = key
			existing[key] = incoming
			rows = append(rows, newVideoRow(incoming))
		}
		if len(rows) == 0 {
			continue
		}
		err := t.tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "store_key"}},
			UpdateAll: true,
		}).CreateInBatches(rows, 100).Error
		if err != nil {
			return written, fmt.Errorf("failed to upsert videos: %w", err)
		}
		written += len(rows)
	}
	return written, nil
}

// Row conversions

func newSourceRow(s Source) sourceRow {
	row := sourceRow{
		ID:              s.ID,
		Kind:            string(s.Kind),
		Title:           s.Title,
		Position:        s.Position,
		TotalVideoCount: s.TotalVideoCount,
		Thumbnail:       s.Thumbnail,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	// stored as text, so comparisons need one offset
	if s.LastRefreshedAt != nil {
		row.LastRefreshedAt = TimePtr(s.LastRefreshedAt.UTC())
	}
	if s.Remote != nil {
		row.URL = s.Remote.URL
		row.ExternalID = s.Remote.ExternalID
		row.Handle = s.Remote.Handle
	}
	if s.Local != nil {
		row.RootPath = s.Local.RootPath
		row.MaxDepth = s.Local.MaxDepth
	}
	if s.Derived != nil {
		row.DerivedList = string(s.Derived.List)
	}
	return row
}

func (r sourceRow) toSource() Source {
	s := Source{
		ID:              r.ID,
		Kind:            SourceKind(r.Kind),
		Title:           r.Title,
		Position:        r.Position,
		TotalVideoCount: r.TotalVideoCount,
		Thumbnail:       r.Thumbnail,
		LastRefreshedAt: r.LastRefreshedAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	switch s.Kind {
	case SourceKindRemoteChannel, SourceKindRemotePlaylist:
		s.Remote = &RemoteFields{URL: r.URL, ExternalID: r.ExternalID, Handle: r.Handle}
	case SourceKindLocalTree:
		s.Local = &LocalFields{RootPath: r.RootPath, MaxDepth: r.MaxDepth}
	case SourceKindDerived:
		s.Derived = &DerivedFields{List: DerivedList(r.DerivedList)}
	}
	return s
}

func toSources(rows []sourceRow) []Source {
	sources := make([]Source, 0, len(rows))
	for _, row := range rows {
		sources = append(sources, row.toSource())
	}
	return sources
}

func newVideoRow(v VideoRecord) videoRow {
	return videoRow{
		StoreKey:        v.StoreKey(),
		ID:              v.ID,
		SourceID:        v.SourceID,
		SourceKind:      string(v.SourceKind),
		SourceTitle:     v.SourceTitle,
		Title:           v.Title,
		Thumbnail:       v.Thumbnail,
		DurationSeconds: v.DurationSeconds,
		URL:             v.URL,
		Path:            v.Path,
		PublishedAt:     v.PublishedAt,
		Depth:           v.Depth,
		Flattened:       v.Flattened,
		Position:        v.Position,
	}
}

func (r videoRow) toVideo() VideoRecord {
	return VideoRecord{
		Key:             r.StoreKey,
		ID:              r.ID,
		SourceID:        r.SourceID,
		SourceKind:      SourceKind(r.SourceKind),
		SourceTitle:     r.SourceTitle,
		Title:           r.Title,
		Thumbnail:       r.Thumbnail,
		DurationSeconds: r.DurationSeconds,
		URL:             r.URL,
		Path:            r.Path,
		PublishedAt:     r.PublishedAt,
		Depth:           r.Depth,
		Flattened:       r.Flattened,
		Position:        r.Position,
		UpdatedAt:       r.UpdatedAt,
	}
}

func newDerivedRow(e DerivedEntry) derivedRow {
	return derivedRow{
		ID:        e.ID,
		List:      string(e.List),
		VideoID:   e.VideoID,
		SourceID:  e.SourceID,
		Title:     e.Title,
		Thumbnail: e.Thumbnail,
		URL:       e.URL,
		Path:      e.Path,
		Status:    string(e.Status),
		AddedAt:   e.AddedAt,
	}
}

func (r derivedRow) toEntry() DerivedEntry {
	return DerivedEntry{
		ID:        r.ID,
		List:      DerivedList(r.List),
		VideoID:   r.VideoID,
		SourceID:  r.SourceID,
		Title:     r.Title,
		Thumbnail: r.Thumbnail,
		URL:       r.URL,
		Path:      r.Path,
		Status:    WishlistStatus(r.Status),
		AddedAt:   r.AddedAt,
	}
}
