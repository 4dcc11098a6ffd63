package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/amaumene/tubenest/internal/models"
	"github.com/spf13/viper"
)

// SourceEntry is one configured source as written in sources.yaml
type SourceEntry struct {
	ID       string `mapstructure:"id"`
	Kind     string `mapstructure:"kind"`
	Title    string `mapstructure:"title"`
	URL      string `mapstructure:"url"`
	Path     string `mapstructure:"path"`
	MaxDepth int    `mapstructure:"max_depth"`
	List     string `mapstructure:"list"`
}

// defaultMaxDepth applies to local trees that do not set max_depth
const defaultMaxDepth = 2

// LoadSources reads the configured sources from path. A missing file yields
// no sources. Only unreadable files, unparsable urls, missing ids and
// duplicate ids fail the load; entries with invalid settings are returned as
// written and rejected per source by Source.Validate.
func LoadSources(path string) ([]models.Source, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return []models.Source{}, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var entries []SourceEntry
	if err := v.UnmarshalKey("sources", &entries); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}

	sources := make([]models.Source, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for i, entry := range entries {
		source, err := entry.toSource(i)
		if err != nil {
			return nil, fmt.Errorf("source #%d: %w", i+1, err)
		}
		if source.ID == "" {
			return nil, fmt.Errorf("source #%d: %w: missing id", i+1, models.ErrInvalidConfig)
		}
		if seen[source.ID] {
			return nil, fmt.Errorf("source #%d: %w: duplicate id %q", i+1, models.ErrInvalidConfig, source.ID)
		}
		seen[source.ID] = true
		sources = append(sources, source)
	}
	return sources, nil
}

func (e SourceEntry) toSource(position int) (models.Source, error) {
	source := models.Source{
		ID:       e.ID,
		Kind:     models.SourceKind(e.Kind),
		Title:    e.Title,
		Position: position,
	}

	switch {
	case e.URL != "":
		remote, kind, err := ParseRemoteURL(e.URL)
		if err != nil {
			return models.Source{}, err
		}
		if source.Kind == "" {
			source.Kind = kind
		}
		source.Remote = remote

	case e.Path != "":
		if source.Kind == "" {
			source.Kind = models.SourceKindLocalTree
		}
		depth := e.MaxDepth
		if depth == 0 {
			depth = defaultMaxDepth
		}
		source.Local = &models.LocalFields{RootPath: e.Path, MaxDepth: depth}

	case e.List != "":
		if source.Kind == "" {
			source.Kind = models.SourceKindDerived
		}
		source.Derived = &models.DerivedFields{List: models.DerivedList(e.List)}
	}
	return source, nil
}

// ParseRemoteURL extracts the channel or playlist reference from a YouTube URL.
// Accepted forms: /@handle, /channel/<id>, /playlist?list=<id>, a bare @handle.
func ParseRemoteURL(raw string) (*models.RemoteFields, models.SourceKind, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "@") {
		return &models.RemoteFields{URL: raw, Handle: raw}, models.SourceKindRemoteChannel, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid url %q", models.ErrInvalidConfig, raw)
	}

	if list := u.Query().Get("list"); list != "" {
		return &models.RemoteFields{URL: raw, ExternalID: list}, models.SourceKindRemotePlaylist, nil
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case len(segments) >= 1 && strings.HasPrefix(segments[0], "@"):
		return &models.RemoteFields{URL: raw, Handle: segments[0]}, models.SourceKindRemoteChannel, nil
	case len(segments) >= 2 && segments[0] == "channel":
		return &models.RemoteFields{URL: raw, ExternalID: segments[1]}, models.SourceKindRemoteChannel, nil
	}
	return nil, "", fmt.Errorf("%w: unsupported url %q", models.ErrInvalidConfig, raw)
}
