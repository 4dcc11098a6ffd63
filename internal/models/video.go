package models

import "time"

// VideoRecord represents a single playable item
type VideoRecord struct {
	Key      string `boltholdKey:"Key"` // SourceID + "/" + ID
	ID       string
	SourceID string `boltholdIndex:"SourceID"`

	SourceKind  SourceKind
	SourceTitle string

	Title           string
	Thumbnail       string
	DurationSeconds int // 0 if unknown
	URL             string
	Path            string
	PublishedAt     *time.Time // remote only

	// Local only
	Depth     int
	Flattened bool

	Position  int // order within its source
	UpdatedAt time.Time
}

// VideoKey builds the store key of a video; ids are only unique per source
func VideoKey(sourceID, videoID string) string {
	return sourceID + "/" + videoID
}

// StoreKey returns the record's store key
func (v *VideoRecord) StoreKey() string {
	return VideoKey(v.SourceID, v.ID)
}

// MergeVideo overlays incoming onto existing. Fields the caller did not supply
// (empty strings, zero duration, nil dates) keep their stored value. The bool
// reports whether the merged record differs from existing.
func MergeVideo(existing, incoming VideoRecord) (VideoRecord, bool) {
	merged := existing
	changed := false

	setString := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}
	setString(&merged.Title, incoming.Title)
	setString(&merged.Thumbnail, incoming.Thumbnail)
	setString(&merged.URL, incoming.URL)
	setString(&merged.Path, incoming.Path)
	setString(&merged.SourceTitle, incoming.SourceTitle)
	if incoming.SourceKind != "" && merged.SourceKind != incoming.SourceKind {
		merged.SourceKind = incoming.SourceKind
		changed = true
	}

	if incoming.DurationSeconds > 0 && merged.DurationSeconds != incoming.DurationSeconds {
		merged.DurationSeconds = incoming.DurationSeconds
		changed = true
	}
	if incoming.PublishedAt != nil && (merged.PublishedAt == nil || !merged.PublishedAt.Equal(*incoming.PublishedAt)) {
		t := *incoming.PublishedAt
		merged.PublishedAt = &t
		changed = true
	}
	if incoming.Depth > 0 && (merged.Depth != incoming.Depth || merged.Flattened != incoming.Flattened) {
		merged.Depth = incoming.Depth
		merged.Flattened = incoming.Flattened
		changed = true
	}
	if merged.Position != incoming.Position {
		merged.Position = incoming.Position
		changed = true
	}

	return merged, changed
}

// DerivedEntry represents a persisted user action (download, favorite, wishlist item)
type DerivedEntry struct {
	ID       string      `boltholdKey:"ID"`
	List     DerivedList `boltholdIndex:"List"`
	VideoID  string
	SourceID string

	// Fallback metadata used when the video is not persisted
	Title     string
	Thumbnail string
	URL       string
	Path      string

	Status  WishlistStatus // wishlist only
	AddedAt time.Time
}

// Visible reports whether the entry belongs in its derived source
func (e *DerivedEntry) Visible() bool {
	if e.List == DerivedListWishlist {
		return e.Status == WishlistApproved
	}
	return true
}

func (e *DerivedEntry) ensureDefaults(now time.Time) {
	if e.ID == "" {
		e.ID = string(e.List) + "/" + VideoKey(e.SourceID, e.VideoID)
	}
	if e.AddedAt.IsZero() {
		e.AddedAt = now
	}
	if e.List == DerivedListWishlist && e.Status == "" {
		e.Status = WishlistPending
	}
}
