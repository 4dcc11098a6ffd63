package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/amaumene/tubenest/internal/models"
)

func TestParseRemoteURL(t *testing.T) {
	tests := []struct {
		raw      string
		kind     models.SourceKind
		handle   string
		external string
	}{
		{"https://www.youtube.com/@kids", models.SourceKindRemoteChannel, "@kids", ""},
		{"https://www.youtube.com/@kids/videos", models.SourceKindRemoteChannel, "@kids", ""},
		{"@kids", models.SourceKindRemoteChannel, "@kids", ""},
		{"https://www.youtube.com/channel/UC123", models.SourceKindRemoteChannel, "", "UC123"},
		{"https://www.youtube.com/playlist?list=PL9", models.SourceKindRemotePlaylist, "", "PL9"},
	}

	for _, tt := range tests {
		remote, kind, err := ParseRemoteURL(tt.raw)
		if err != nil {
			t.Errorf("ParseRemoteURL(%q): %v", tt.raw, err)
			continue
		}
		if kind != tt.kind || remote.Handle != tt.handle || remote.ExternalID != tt.external {
			t.Errorf("ParseRemoteURL(%q) = %+v %s", tt.raw, remote, kind)
		}
	}

	if _, _, err := ParseRemoteURL("https://example.com/watch"); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := `sources:
  - id: kids
    title: Kids Channel
    url: https://www.youtube.com/@kids
  - id: songs
    url: https://www.youtube.com/playlist?list=PL9
  - id: disk
    path: /media/library
    max_depth: 3
  - id: favorites
    list: favorites
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	sources, err := LoadSources(path)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if len(sources) != 4 {
		t.Fatalf("Expected 4 sources, got %d", len(sources))
	}

	if sources[0].Kind != models.SourceKindRemoteChannel || sources[0].Remote.Handle != "@kids" || sources[0].Title != "Kids Channel" {
		t.Errorf("Unexpected channel source: %+v", sources[0])
	}
	if sources[1].Kind != models.SourceKindRemotePlaylist || sources[1].ExternalID() != "PL9" || sources[1].Position != 1 {
		t.Errorf("Unexpected playlist source: %+v", sources[1])
	}
	if sources[2].Kind != models.SourceKindLocalTree || sources[2].Local.MaxDepth != 3 {
		t.Errorf("Unexpected local source: %+v", sources[2])
	}
	if sources[3].Kind != models.SourceKindDerived || sources[3].Derived.List != models.DerivedListFavorites {
		t.Errorf("Unexpected derived source: %+v", sources[3])
	}
}

func TestLoadSourcesRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"bad url":   "sources:\n  - id: a\n    url: https://example.com/videos\n",
		"duplicate": "sources:\n  - id: a\n    list: favorites\n  - id: a\n    list: downloads\n",
		"no id":     "sources:\n  - list: favorites\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sources.yaml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadSources(path); !errors.Is(err, models.ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadSourcesKeepsInvalidEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := `sources:
  - id: favorites
    list: favorites
  - id: kids
    url: https://www.youtube.com/@kids
  - id: disk
    path: /media
    max_depth: -1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	sources, err := LoadSources(path)
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if len(sources) != 3 {
		t.Fatalf("Expected 3 sources, got %d", len(sources))
	}
	for _, s := range sources[:2] {
		if err := s.Validate(); err != nil {
			t.Errorf("Expected %s to be valid, got %v", s.ID, err)
		}
	}
	if err := sources[2].Validate(); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("Expected disk to fail validation, got %v", err)
	}
}

func TestLoadSourcesMissingFile(t *testing.T) {
	sources, err := LoadSources(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil || len(sources) != 0 {
		t.Errorf("Expected no sources and no error, got %v %v", sources, err)
	}
}
