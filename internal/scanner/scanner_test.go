package scanner

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/amaumene/tubenest/internal/models"
	"github.com/amaumene/tubenest/internal/utils"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func write(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func relPaths(t *testing.T, root string, videos []models.VideoRecord) []string {
	t.Helper()
	out := make([]string, 0, len(videos))
	for _, v := range videos {
		rel, err := filepath.Rel(root, v.Path)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestScanLibraryScenario(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "ShowA", "S1", "e1.mp4"))
	write(t, filepath.Join(root, "ShowA", "S1", "e1.converted", "e1.mp4"))
	write(t, filepath.Join(root, "ShowB", "b.mp4"))

	s := New(testLogger(), nil, nil)
	ctx := context.Background()

	videos, err := s.Scan(ctx, root, 2)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	filtered := Filter(videos)

	got := relPaths(t, root, filtered)
	want := []string{"ShowA/S1/e1.mp4", "ShowB/b.mp4"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, got)
		}
	}

	if filtered[0].Depth != 2 || !filtered[0].Flattened {
		t.Errorf("Expected e1.mp4 at depth 2 flattened, got depth %d flattened %v", filtered[0].Depth, filtered[0].Flattened)
	}
	if filtered[1].Depth != 2 || filtered[1].Flattened {
		t.Errorf("Expected b.mp4 at depth 2 not flattened, got depth %d flattened %v", filtered[1].Depth, filtered[1].Flattened)
	}

	count, err := s.CountRecursively(ctx, root, 2)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("Expected count 2, got %d", count)
	}

	// ShowA is a folder node; S1 below it is hidden
	folders, atRoot, err := s.ContentsAt(ctx, root, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(atRoot) != 0 || len(folders) != 2 || folders[0].Name != "ShowA" || folders[0].Depth != 2 {
		t.Fatalf("Unexpected root contents: folders=%v videos=%d", folders, len(atRoot))
	}
	folders, inShow, err := s.ContentsAt(ctx, folders[0].Path, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(folders) != 0 {
		t.Errorf("Expected no folder nodes at max depth, got %v", folders)
	}
	if len(Filter(inShow)) != 1 {
		t.Errorf("Expected one video in ShowA after filtering, got %d", len(Filter(inShow)))
	}
}

func TestFlatteningDepthInvariant(t *testing.T) {
	root := t.TempDir()
	files := []string{
		"top.mkv",
		"a/one.mp4",
		"a/b/two.webm",
		"a/b/c/three.MOV",
		"a/b/c/d/e/four.m4v",
		"x/y/z/five.avi",
		"a/b/notes.txt",
	}
	for _, f := range files {
		write(t, filepath.Join(root, filepath.FromSlash(f)))
	}
	trueDepth := map[string]int{
		"top.mkv":            1,
		"a/one.mp4":          2,
		"a/b/two.webm":       3,
		"a/b/c/three.MOV":    4,
		"a/b/c/d/e/four.m4v": 6,
		"x/y/z/five.avi":     4,
	}

	s := New(testLogger(), nil, nil)
	for _, maxDepth := range []int{1, 2, 3, 5} {
		videos, err := s.Scan(context.Background(), root, maxDepth)
		if err != nil {
			t.Fatalf("Scan(%d): %v", maxDepth, err)
		}
		if len(videos) != len(trueDepth) {
			t.Fatalf("maxDepth %d: expected %d videos, got %d", maxDepth, len(trueDepth), len(videos))
		}
		for i, v := range videos {
			rel := relPaths(t, root, videos)[i]
			if v.Depth > maxDepth {
				t.Errorf("maxDepth %d: %s has depth %d", maxDepth, rel, v.Depth)
			}
			if trueDepth[rel] > maxDepth && (v.Depth != maxDepth || !v.Flattened) {
				t.Errorf("maxDepth %d: %s should be flattened at %d, got depth %d flattened %v",
					maxDepth, rel, maxDepth, v.Depth, v.Flattened)
			}
			if trueDepth[rel] <= maxDepth && (v.Depth != trueDepth[rel] || v.Flattened) {
				t.Errorf("maxDepth %d: %s should sit at depth %d unflattened, got %d %v",
					maxDepth, rel, trueDepth[rel], v.Depth, v.Flattened)
			}
		}
	}
}

func TestCountMatchesListing(t *testing.T) {
	root := t.TempDir()
	for _, f := range []string{
		"loose.mp4",
		"loose.converted/loose.mp4",
		"only.converted/only.mp4",
		"Show/S1/e1.mp4",
		"Show/S1/e1.converted/e1.mp4",
		"Show/S2/e2.mkv",
		"Movies/film.avi",
		"@eaDir/cache.mp4",
		".hidden/secret.mp4",
	} {
		write(t, filepath.Join(root, filepath.FromSlash(f)))
	}

	s := New(testLogger(), nil, utils.NewIgnoreList("@eaDir"))
	ctx := context.Background()

	for _, maxDepth := range []int{1, 2, 3} {
		for depth := 1; depth <= maxDepth; depth++ {
			for _, dir := range []string{root, filepath.Join(root, "Show"), filepath.Join(root, "Show", "S1")} {
				_, videos, err := s.ContentsAt(ctx, dir, maxDepth, depth)
				if err != nil {
					t.Fatal(err)
				}
				count, err := s.CountVideos(ctx, dir, maxDepth, depth)
				if err != nil {
					t.Fatal(err)
				}
				if listed := len(Filter(videos)); listed != count {
					t.Errorf("%s max=%d depth=%d: listed %d, counted %d", dir, maxDepth, depth, listed, count)
				}
			}
		}

		videos, err := s.Scan(ctx, root, maxDepth)
		if err != nil {
			t.Fatal(err)
		}
		count, err := s.CountRecursively(ctx, root, maxDepth)
		if err != nil {
			t.Fatal(err)
		}
		if listed := len(Filter(videos)); listed != count || count != 5 {
			t.Errorf("max=%d: expected 5 videos, listed %d counted %d", maxDepth, listed, count)
		}
	}
}

func TestScanMissingRoot(t *testing.T) {
	s := New(testLogger(), nil, nil)
	videos, err := s.Scan(context.Background(), filepath.Join(t.TempDir(), "nope"), 2)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if videos == nil || len(videos) != 0 {
		t.Errorf("Expected empty result, got %v", videos)
	}
}

func TestScanInvalidDepth(t *testing.T) {
	s := New(testLogger(), nil, nil)
	if _, err := s.Scan(context.Background(), t.TempDir(), 0); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestScanSkipsUnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	root := t.TempDir()
	write(t, filepath.Join(root, "a", "ok.mp4"))
	write(t, filepath.Join(root, "locked", "hidden.mp4"))
	write(t, filepath.Join(root, "z", "ok.mp4"))
	locked := filepath.Join(root, "locked")
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	videos, err := New(testLogger(), nil, nil).Scan(context.Background(), root, 3)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(videos) != 2 {
		t.Errorf("Expected siblings to be scanned, got %v", relPaths(t, root, videos))
	}
}

func TestScanCancelled(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.mp4"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(testLogger(), nil, nil).Scan(ctx, root, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

type stubThumbs map[string]string

func (s stubThumbs) Lookup(videoID string, kind models.ThumbnailKind) (string, bool) {
	p, ok := s[videoID]
	return p, ok
}

func TestThumbnailResolution(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "withart.mp4"))
	write(t, filepath.Join(root, "withart.JPG"))
	write(t, filepath.Join(root, "generated.mkv"))
	write(t, filepath.Join(root, "bare.webm"))

	generatedID := LocalVideoID(filepath.Join(root, "generated.mkv"))
	s := New(testLogger(), stubThumbs{generatedID: "/thumbs/local/" + generatedID + ".jpg"}, nil)

	videos, err := s.Scan(context.Background(), root, 1)
	if err != nil {
		t.Fatal(err)
	}
	byTitle := map[string]models.VideoRecord{}
	for _, v := range videos {
		byTitle[v.Title] = v
	}

	if got := byTitle["withart"].Thumbnail; got != filepath.Join(root, "withart.JPG") {
		t.Errorf("Expected co-located thumbnail, got %q", got)
	}
	if got := byTitle["generated"].Thumbnail; got != "/thumbs/local/"+generatedID+".jpg" {
		t.Errorf("Expected cached thumbnail, got %q", got)
	}
	if got := byTitle["bare"].Thumbnail; got != "" {
		t.Errorf("Expected no thumbnail, got %q", got)
	}
	if byTitle["generated"].ID != generatedID {
		t.Errorf("Expected deterministic id %s, got %s", generatedID, byTitle["generated"].ID)
	}
}
