package models

import (
	"fmt"
	"time"
)

// Source represents a configured video origin. Exactly one of Remote, Local or
// Derived is set, matching Kind.
type Source struct {
	ID       string     `boltholdKey:"ID"`
	Kind     SourceKind `boltholdIndex:"Kind"`
	Title    string
	Position int // configured display order

	Remote  *RemoteFields
	Local   *LocalFields
	Derived *DerivedFields

	// Cache-derived, written only after a successful fetch
	TotalVideoCount int
	Thumbnail       string
	LastRefreshedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RemoteFields holds the identifiers of a remote channel or playlist
type RemoteFields struct {
	URL        string
	ExternalID string // stable provider id, empty until resolved
	Handle     string // e.g. "@somechannel", resolved to ExternalID on refresh
}

// LocalFields holds the location of a local media tree
type LocalFields struct {
	RootPath string
	MaxDepth int
}

// DerivedFields names the curated list a derived source shows
type DerivedFields struct {
	List DerivedList
}

// SourcePatch is a partial update of a source's cache fields. Nil fields are left untouched.
type SourcePatch struct {
	ID              string
	Title           *string
	Thumbnail       *string
	TotalVideoCount *int
	ExternalID      *string
	LastRefreshedAt *time.Time
}

// Validate checks that the kind-specific payload matches Kind
func (s *Source) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: source id is required", ErrInvalidConfig)
	}
	switch s.Kind {
	case SourceKindRemoteChannel, SourceKindRemotePlaylist:
		if s.Remote == nil {
			return fmt.Errorf("%w: source %s has no remote fields", ErrInvalidConfig, s.ID)
		}
		if s.Remote.ExternalID == "" && s.Remote.Handle == "" {
			return fmt.Errorf("%w: source %s needs an external id or handle", ErrInvalidConfig, s.ID)
		}
	case SourceKindLocalTree:
		if s.Local == nil || s.Local.RootPath == "" {
			return fmt.Errorf("%w: source %s has no root path", ErrInvalidConfig, s.ID)
		}
		if s.Local.MaxDepth < 1 {
			return fmt.Errorf("%w: source %s has max depth %d, must be at least 1", ErrInvalidConfig, s.ID, s.Local.MaxDepth)
		}
	case SourceKindDerived:
		if s.Derived == nil || !s.Derived.List.Valid() {
			return fmt.Errorf("%w: source %s has no valid derived list", ErrInvalidConfig, s.ID)
		}
	default:
		return fmt.Errorf("%w: source %s has unknown kind %q", ErrInvalidConfig, s.ID, s.Kind)
	}
	return nil
}

// IsStale reports whether the cached remote metadata is older than ttl
func (s *Source) IsStale(now time.Time, ttl time.Duration) bool {
	if s.LastRefreshedAt == nil {
		return true
	}
	return now.Sub(*s.LastRefreshedAt) > ttl
}

// ExternalID returns the resolved provider id of a remote source, or ""
func (s *Source) ExternalID() string {
	if s.Remote == nil {
		return ""
	}
	return s.Remote.ExternalID
}

// Apply copies the non-nil fields of p into s and reports whether anything changed
func (s *Source) Apply(p SourcePatch) bool {
	changed := false
	if p.Title != nil && *p.Title != "" && *p.Title != s.Title {
		s.Title = *p.Title
		changed = true
	}
	if p.Thumbnail != nil && *p.Thumbnail != s.Thumbnail {
		s.Thumbnail = *p.Thumbnail
		changed = true
	}
	if p.TotalVideoCount != nil && *p.TotalVideoCount != s.TotalVideoCount {
		s.TotalVideoCount = *p.TotalVideoCount
		changed = true
	}
	if p.ExternalID != nil && *p.ExternalID != "" {
		if s.Remote == nil {
			s.Remote = &RemoteFields{}
		}
		if s.Remote.ExternalID != *p.ExternalID {
			s.Remote.ExternalID = *p.ExternalID
			changed = true
		}
	}
	if p.LastRefreshedAt != nil {
		t := *p.LastRefreshedAt
		s.LastRefreshedAt = &t
		changed = true
	}
	return changed
}

// WithConfig returns configured with the cache fields of the stored copy carried over.
// A resolved external id survives as long as the configured handle is unchanged.
func WithConfig(stored, configured Source) Source {
	out := configured
	out.TotalVideoCount = stored.TotalVideoCount
	out.Thumbnail = stored.Thumbnail
	out.LastRefreshedAt = stored.LastRefreshedAt
	out.CreatedAt = stored.CreatedAt
	if out.Title == "" {
		out.Title = stored.Title
	}
	if out.Remote != nil && stored.Remote != nil && out.Remote.ExternalID == "" &&
		out.Remote.Handle == stored.Remote.Handle {
		remote := *out.Remote
		remote.ExternalID = stored.Remote.ExternalID
		out.Remote = &remote
	}
	return out
}

// StringPtr returns a pointer to v
func StringPtr(v string) *string { return &v }

// IntPtr returns a pointer to v
func IntPtr(v int) *int { return &v }

// TimePtr returns a pointer to v
func TimePtr(v time.Time) *time.Time { return &v }
