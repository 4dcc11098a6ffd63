package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/amaumene/tubenest/internal/models"
	"github.com/amaumene/tubenest/internal/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".webm": true,
	".avi":  true,
	".mov":  true,
	".m4v":  true,
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// localNamespace seeds the deterministic ids of local files
var localNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("tubenest:local-file"))

// Folder is a navigation node above the flattening depth
type Folder struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Depth int    `json:"depth"`
}

// Scanner discovers media files in local folder trees
type Scanner struct {
	logger *logrus.Logger
	thumbs ThumbnailResolver
	ignore *utils.IgnoreList
}

// New creates a new scanner. thumbs and ignore may be nil.
func New(logger *logrus.Logger, thumbs ThumbnailResolver, ignore *utils.IgnoreList) *Scanner {
	return &Scanner{
		logger: logger,
		thumbs: thumbs,
		ignore: ignore,
	}
}

// IsVideoFile reports whether name has a supported media extension
func IsVideoFile(name string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(name))]
}

// LocalVideoID returns the stable id of a local file
func LocalVideoID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return uuid.NewSHA1(localNamespace, []byte(path)).String()
}

// hit is one media file found by a walk
type hit struct {
	path      string
	depth     int
	flattened bool
	siblings  []os.DirEntry
}

// walk lists dir at depth, calling onFile for every media file. Subdirectories
// above maxDepth are either reported through onFolder (when set) or recursed
// into; at maxDepth they are flattened.
func (s *Scanner) walk(ctx context.Context, dir string, depth, maxDepth int, flattened bool,
	onFile func(hit), onFolder func(Folder)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if len(entries) == 0 {
			s.logger.WithError(err).WithField("path", dir).Warn("Skipping unreadable directory")
			return nil
		}
		s.logger.WithError(err).WithField("path", dir).Warn("Directory partially read")
	}

	for _, entry := range entries {
		name := entry.Name()
		if s.ignore.Matches(name) {
			continue
		}
		path := filepath.Join(dir, name)

		if !entry.IsDir() {
			if IsVideoFile(name) {
				onFile(hit{path: path, depth: depth, flattened: flattened, siblings: entries})
			}
			continue
		}

		var werr error
		switch {
		case flattened:
			werr = s.walk(ctx, path, depth, maxDepth, true, onFile, nil)
		case isConvertedDir(name):
			werr = s.walk(ctx, path, depth, maxDepth, false, onFile, nil)
		case depth < maxDepth && onFolder != nil:
			onFolder(Folder{Name: name, Path: path, Depth: depth + 1})
		case depth < maxDepth:
			werr = s.walk(ctx, path, depth+1, maxDepth, false, onFile, nil)
		default:
			werr = s.walk(ctx, path, maxDepth, maxDepth, true, onFile, nil)
		}
		if werr != nil {
			return werr
		}
	}
	return nil
}

// start validates the arguments shared by every entry point. A false result
// means there is nothing to scan.
func (s *Scanner) start(path string, maxDepth, depth int) (bool, error) {
	if maxDepth < 1 {
		return false, fmt.Errorf("max depth %d: %w", maxDepth, models.ErrInvalidConfig)
	}
	if depth < 1 || depth > maxDepth {
		return false, fmt.Errorf("depth %d outside 1..%d: %w", depth, maxDepth, models.ErrInvalidConfig)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.WithField("path", path).Warn("Folder does not exist")
			return false, nil
		}
		s.logger.WithError(err).WithField("path", path).Warn("Cannot access folder")
		return false, nil
	}
	if !info.IsDir() {
		s.logger.WithField("path", path).Warn("Path is not a folder")
		return false, nil
	}
	return true, nil
}

// Scan returns every video below rootPath, flattening directories deeper than maxDepth
func (s *Scanner) Scan(ctx context.Context, rootPath string, maxDepth int) ([]models.VideoRecord, error) {
	ok, err := s.start(rootPath, maxDepth, 1)
	if !ok {
		return []models.VideoRecord{}, err
	}

	videos := []models.VideoRecord{}
	err = s.walk(ctx, rootPath, 1, maxDepth, false, func(h hit) {
		videos = append(videos, s.record(h, len(videos)))
	}, nil)
	if err != nil {
		return videos, err
	}

	s.logger.WithFields(logrus.Fields{
		"path":      rootPath,
		"max_depth": maxDepth,
		"videos":    len(videos),
	}).Debug("Scanned folder")
	return videos, nil
}

// ContentsAt lists the folders and videos visible at path when it sits at
// currentDepth. At maxDepth everything below path is flattened into videos.
func (s *Scanner) ContentsAt(ctx context.Context, path string, maxDepth, currentDepth int) ([]Folder, []models.VideoRecord, error) {
	folders := []Folder{}
	videos := []models.VideoRecord{}

	ok, err := s.start(path, maxDepth, currentDepth)
	if !ok {
		return folders, videos, err
	}

	err = s.walk(ctx, path, currentDepth, maxDepth, false, func(h hit) {
		videos = append(videos, s.record(h, len(videos)))
	}, func(f Folder) {
		folders = append(folders, f)
	})
	return folders, videos, err
}

// CountVideos counts the videos ContentsAt would list, after duplicate suppression
func (s *Scanner) CountVideos(ctx context.Context, path string, maxDepth, currentDepth int) (int, error) {
	ok, err := s.start(path, maxDepth, currentDepth)
	if !ok {
		return 0, err
	}

	var paths []string
	err = s.walk(ctx, path, currentDepth, maxDepth, false, func(h hit) {
		paths = append(paths, h.path)
	}, func(Folder) {})
	if err != nil {
		return 0, err
	}
	return countKept(paths), nil
}

// CountRecursively counts the videos Scan would return, after duplicate suppression
func (s *Scanner) CountRecursively(ctx context.Context, rootPath string, maxDepth int) (int, error) {
	ok, err := s.start(rootPath, maxDepth, 1)
	if !ok {
		return 0, err
	}

	var paths []string
	err = s.walk(ctx, rootPath, 1, maxDepth, false, func(h hit) {
		paths = append(paths, h.path)
	}, nil)
	if err != nil {
		return 0, err
	}
	return countKept(paths), nil
}

func (s *Scanner) record(h hit, position int) models.VideoRecord {
	name := filepath.Base(h.path)
	id := LocalVideoID(h.path)
	return models.VideoRecord{
		ID:         id,
		SourceKind: models.SourceKindLocalTree,
		Title:      strings.TrimSuffix(name, filepath.Ext(name)),
		Thumbnail:  s.thumbnail(h, id),
		Path:       h.path,
		Depth:      h.depth,
		Flattened:  h.flattened,
		Position:   position,
	}
}

// thumbnail prefers an image next to the video with the same basename, then a
// previously generated one
func (s *Scanner) thumbnail(h hit, id string) string {
	base := strings.TrimSuffix(filepath.Base(h.path), filepath.Ext(h.path))
	for _, entry := range h.siblings {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if strings.TrimSuffix(name, filepath.Ext(name)) != base {
			continue
		}
		for _, img := range imageExtensions {
			if ext == img {
				return filepath.Join(filepath.Dir(h.path), name)
			}
		}
	}

	if s.thumbs != nil {
		if path, ok := s.thumbs.Lookup(id, models.ThumbnailKindLocal); ok {
			return path
		}
	}
	return ""
}
