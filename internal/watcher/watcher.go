package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/amaumene/tubenest/internal/models"
	"github.com/amaumene/tubenest/internal/utils"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Invalidator drops memoised state of a local source
type Invalidator interface {
	InvalidateLocalCount(sourceID string)
}

// ThumbnailForgetter drops a memoised thumbnail lookup
type ThumbnailForgetter interface {
	Forget(videoID string, kind models.ThumbnailKind)
}

// Watcher watches the trees of local sources and invalidates their
// memoised counts when entries appear, disappear or move
type Watcher struct {
	fs       *fsnotify.Watcher
	roots    map[string]string // cleaned root path -> source id
	target   Invalidator
	thumbDir string
	thumbs   ThumbnailForgetter
	ignore   *utils.IgnoreList
	logger   *logrus.Logger
}

// New creates a watcher over every local-tree source. Roots that do not exist
// are skipped with a warning.
func New(sources []models.Source, target Invalidator, ignore *utils.IgnoreList, logger *logrus.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	w := &Watcher{
		fs:     fsw,
		roots:  make(map[string]string),
		target: target,
		ignore: ignore,
		logger: logger,
	}

	for _, s := range sources {
		if s.Kind != models.SourceKindLocalTree || s.Local == nil || s.Local.RootPath == "" {
			continue
		}
		root := filepath.Clean(s.Local.RootPath)
		if _, err := os.Stat(root); err != nil {
			logger.WithFields(logrus.Fields{
				"source_id": s.ID,
				"root":      root,
			}).WithError(err).Warn("Skipping watch of unavailable root")
			continue
		}
		w.roots[root] = s.ID
		if err := w.addTree(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	logger.WithFields(logrus.Fields{
		"roots":       len(w.roots),
		"directories": len(fsw.WatchList()),
	}).Info("Filesystem watcher initialized")
	return w, nil
}

// addTree watches dir and every directory below it
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, like the scanner does
			w.logger.WithField("path", path).WithError(err).Debug("Skipping unreadable directory")
			if d != nil && d.IsDir() && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.ignore.Matches(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// WatchThumbnails watches the generated thumbnail directory so that thumbnails
// written by the external generator replace memoised misses right away
func (w *Watcher) WatchThumbnails(dir string, thumbs ThumbnailForgetter) error {
	dir = filepath.Clean(dir)
	for _, kind := range []models.ThumbnailKind{models.ThumbnailKindLocal, models.ThumbnailKindRemote} {
		sub := filepath.Join(dir, string(kind))
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return fmt.Errorf("failed to create thumbnail directory: %w", err)
		}
		if err := w.fs.Add(sub); err != nil {
			return fmt.Errorf("failed to watch %s: %w", sub, err)
		}
	}
	w.thumbDir = dir
	w.thumbs = thumbs
	return nil
}

// thumbnailFor maps <thumbDir>/<kind>/<videoID>.<ext> to its video id and kind
func (w *Watcher) thumbnailFor(path string) (string, models.ThumbnailKind, bool) {
	if w.thumbs == nil {
		return "", "", false
	}
	rel, err := filepath.Rel(w.thumbDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", "", false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 {
		return "", "", false
	}
	name := parts[1]
	return strings.TrimSuffix(name, filepath.Ext(name)), models.ThumbnailKind(parts[0]), true
}

// sourceFor returns the source whose root contains path
func (w *Watcher) sourceFor(path string) (string, bool) {
	best, id := "", ""
	for root, sourceID := range w.roots {
		if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
			continue
		}
		if len(root) > len(best) {
			best, id = root, sourceID
		}
	}
	return id, best != ""
}

// Run processes events until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Filesystem watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if w.ignore.Matches(filepath.Base(event.Name)) {
		return
	}

	path := filepath.Clean(event.Name)
	if videoID, kind, ok := w.thumbnailFor(path); ok {
		w.thumbs.Forget(videoID, kind)
		w.logger.WithFields(logrus.Fields{
			"video_id": videoID,
			"kind":     kind,
		}).Debug("Thumbnail changed")
		return
	}

	sourceID, ok := w.sourceFor(path)
	if !ok {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.WithField("path", event.Name).WithError(err).Warn("Failed to watch new directory")
			}
		}
	}

	w.target.InvalidateLocalCount(sourceID)
	w.logger.WithFields(logrus.Fields{
		"source_id": sourceID,
		"path":      event.Name,
		"op":        event.Op.String(),
	}).Debug("Local source changed")
}

// Close stops watching
func (w *Watcher) Close() error {
	return w.fs.Close()
}
