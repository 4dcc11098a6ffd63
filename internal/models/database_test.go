package models

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	bolt, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open bolt store: %v", err)
	}
	t.Cleanup(func() { bolt.Close() })

	lite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("Failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { lite.Close() })

	return map[string]Store{"bolt": bolt, "sqlite": lite}
}

func remoteSource(id string, position int) Source {
	return Source{
		ID:       id,
		Kind:     SourceKindRemoteChannel,
		Title:    "Channel " + id,
		Position: position,
		Remote:   &RemoteFields{Handle: "@" + id},
	}
}

func TestPutSourceKeepsCacheFields(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.PutSource(ctx, remoteSource("a", 1)); err != nil {
				t.Fatalf("PutSource: %v", err)
			}

			refreshed := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
			err := store.UpsertSource(ctx, SourcePatch{
				ID:              "a",
				ExternalID:      StringPtr("UC123"),
				TotalVideoCount: IntPtr(42),
				Thumbnail:       StringPtr("https://img/a.jpg"),
				LastRefreshedAt: &refreshed,
			})
			if err != nil {
				t.Fatalf("UpsertSource: %v", err)
			}

			// Re-applying configuration must not clobber the cache fields
			edited := remoteSource("a", 5)
			edited.Title = "Renamed"
			if err := store.PutSource(ctx, edited); err != nil {
				t.Fatalf("PutSource: %v", err)
			}

			got, err := store.GetSource(ctx, "a")
			if err != nil {
				t.Fatalf("GetSource: %v", err)
			}
			if got.Title != "Renamed" || got.Position != 5 {
				t.Errorf("Expected configured fields to be updated, got %q at %d", got.Title, got.Position)
			}
			if got.TotalVideoCount != 42 || got.Thumbnail != "https://img/a.jpg" {
				t.Errorf("Cache fields lost: count=%d thumb=%q", got.TotalVideoCount, got.Thumbnail)
			}
			if got.ExternalID() != "UC123" {
				t.Errorf("Expected resolved id to survive, got %q", got.ExternalID())
			}
			if got.LastRefreshedAt == nil || !got.LastRefreshedAt.Equal(refreshed) {
				t.Errorf("Expected LastRefreshedAt %v, got %v", refreshed, got.LastRefreshedAt)
			}
		})
	}
}

func TestUpsertSourceUnknownID(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			err := store.UpsertSource(context.Background(), SourcePatch{ID: "missing", Title: StringPtr("x")})
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("Expected ErrNotFound, got %v", err)
			}
			if _, err := store.GetSource(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Expected ErrNotFound from GetSource, got %v", err)
			}
		})
	}
}

func TestListStaleSources(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()
			cutoff := now.Add(-6 * time.Hour)

			for i, id := range []string{"never", "old", "fresh"} {
				if err := store.PutSource(ctx, remoteSource(id, i)); err != nil {
					t.Fatal(err)
				}
			}
			local := Source{ID: "disk", Kind: SourceKindLocalTree, Local: &LocalFields{RootPath: "/lib", MaxDepth: 2}}
			if err := store.PutSource(ctx, local); err != nil {
				t.Fatal(err)
			}

			old := cutoff.Add(-time.Second)
			fresh := cutoff.Add(time.Second)
			if err := store.UpsertSource(ctx, SourcePatch{ID: "old", LastRefreshedAt: &old}); err != nil {
				t.Fatal(err)
			}
			if err := store.UpsertSource(ctx, SourcePatch{ID: "fresh", LastRefreshedAt: &fresh}); err != nil {
				t.Fatal(err)
			}

			stale, err := store.ListStaleSources(ctx, cutoff)
			if err != nil {
				t.Fatalf("ListStaleSources: %v", err)
			}
			if len(stale) != 2 || stale[0].ID != "never" || stale[1].ID != "old" {
				t.Fatalf("Expected [never old], got %v", sourceIDs(stale))
			}
		})
	}
}

func TestBatchUpsertVideosPreservesUnsuppliedFields(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			published := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

			first := []VideoRecord{
				{ID: "v1", SourceID: "a", Title: "One", Thumbnail: "t1", DurationSeconds: 120, PublishedAt: &published, Position: 0},
				{ID: "v2", SourceID: "a", Title: "Two", Position: 1},
			}
			written, err := store.BatchUpsertVideos(ctx, first)
			if err != nil {
				t.Fatalf("BatchUpsertVideos: %v", err)
			}
			if written != 2 {
				t.Fatalf("Expected 2 writes, got %d", written)
			}

			// Same payload again: nothing to write
			written, err = store.BatchUpsertVideos(ctx, first)
			if err != nil {
				t.Fatal(err)
			}
			if written != 0 {
				t.Errorf("Expected 0 redundant writes, got %d", written)
			}

			// Partial record: duration and thumbnail unknown to this caller
			written, err = store.BatchUpsertVideos(ctx, []VideoRecord{{ID: "v1", SourceID: "a", Title: "One (new)", Position: 0}})
			if err != nil {
				t.Fatal(err)
			}
			if written != 1 {
				t.Errorf("Expected 1 write, got %d", written)
			}

			videos, total, err := store.GetVideosBySource(ctx, "a", 0, 50)
			if err != nil {
				t.Fatalf("GetVideosBySource: %v", err)
			}
			if total != 2 || len(videos) != 2 {
				t.Fatalf("Expected 2 videos, got %d (total %d)", len(videos), total)
			}
			v1 := videos[0]
			if v1.Title != "One (new)" {
				t.Errorf("Expected updated title, got %q", v1.Title)
			}
			if v1.DurationSeconds != 120 || v1.Thumbnail != "t1" {
				t.Errorf("Unsupplied fields were overwritten: duration=%d thumb=%q", v1.DurationSeconds, v1.Thumbnail)
			}
			if v1.PublishedAt == nil || !v1.PublishedAt.Equal(published) {
				t.Errorf("Expected published date to survive, got %v", v1.PublishedAt)
			}

			got, err := store.GetVideos(ctx, []string{VideoKey("a", "v2"), VideoKey("a", "nope")})
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 || got[VideoKey("a", "v2")].Title != "Two" {
				t.Errorf("Unexpected GetVideos result: %v", got)
			}
		})
	}
}

func TestBatchLoadSourceCaches(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, id := range []string{"cached", "new"} {
				if err := store.PutSource(ctx, remoteSource(id, i)); err != nil {
					t.Fatal(err)
				}
			}
			now := time.Now()
			if err := store.UpsertSource(ctx, SourcePatch{ID: "cached", TotalVideoCount: IntPtr(3), LastRefreshedAt: &now}); err != nil {
				t.Fatal(err)
			}
			var videos []VideoRecord
			for i, id := range []string{"x", "y", "z"} {
				videos = append(videos, VideoRecord{ID: id, SourceID: "cached", Title: id, Position: i})
			}
			if _, err := store.BatchUpsertVideos(ctx, videos); err != nil {
				t.Fatal(err)
			}

			caches, err := store.BatchLoadSourceCaches(ctx, []string{"cached", "new", "unknown"}, 2)
			if err != nil {
				t.Fatalf("BatchLoadSourceCaches: %v", err)
			}
			if len(caches) != 1 {
				t.Fatalf("Expected only the fetched source, got %d entries", len(caches))
			}
			entry, ok := caches["cached"]
			if !ok {
				t.Fatal("Missing cached source")
			}
			if entry.Source.TotalVideoCount != 3 {
				t.Errorf("Expected count 3, got %d", entry.Source.TotalVideoCount)
			}
			if len(entry.Videos) != 2 || entry.Videos[0].ID != "x" || entry.Videos[1].ID != "y" {
				t.Errorf("Expected first page [x y], got %v", entry.Videos)
			}
		})
	}
}

func TestUpdateRollsBack(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.PutSource(ctx, remoteSource("a", 0)); err != nil {
				t.Fatal(err)
			}

			boom := errors.New("boom")
			err := store.Update(ctx, func(tx Tx) error {
				if _, err := tx.UpsertVideos([]VideoRecord{{ID: "v1", SourceID: "a", Title: "One"}}); err != nil {
					return err
				}
				if err := tx.UpsertSource(SourcePatch{ID: "a", ExternalID: StringPtr("UC1")}); err != nil {
					return err
				}
				return boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("Expected boom, got %v", err)
			}

			_, total, err := store.GetVideosBySource(ctx, "a", 0, 10)
			if err != nil {
				t.Fatal(err)
			}
			if total != 0 {
				t.Errorf("Expected rollback to discard videos, found %d", total)
			}
			got, _ := store.GetSource(ctx, "a")
			if got.ExternalID() != "" {
				t.Errorf("Expected rollback to discard external id, got %q", got.ExternalID())
			}
		})
	}
}

func TestDerivedEntries(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

			entries := []DerivedEntry{
				{List: DerivedListWishlist, VideoID: "b", SourceID: "s", Status: WishlistApproved, AddedAt: base.Add(time.Hour)},
				{List: DerivedListWishlist, VideoID: "a", SourceID: "s", AddedAt: base},
				{List: DerivedListFavorites, VideoID: "c", SourceID: "s", AddedAt: base},
			}
			for _, e := range entries {
				if err := store.PutDerived(ctx, e); err != nil {
					t.Fatalf("PutDerived: %v", err)
				}
			}

			wish, err := store.ListDerived(ctx, DerivedListWishlist)
			if err != nil {
				t.Fatal(err)
			}
			if len(wish) != 2 || wish[0].VideoID != "a" || wish[1].VideoID != "b" {
				t.Fatalf("Expected wishlist [a b], got %v", wish)
			}
			if wish[0].Status != WishlistPending {
				t.Errorf("Expected default status pending, got %q", wish[0].Status)
			}
			if wish[0].Visible() || !wish[1].Visible() {
				t.Error("Only approved wishlist entries should be visible")
			}

			downloads, err := store.ListDerived(ctx, DerivedListDownloads)
			if err != nil {
				t.Fatal(err)
			}
			if len(downloads) != 0 {
				t.Errorf("Expected empty downloads, got %d", len(downloads))
			}
		})
	}
}

func sourceIDs(sources []Source) []string {
	ids := make([]string, 0, len(sources))
	for _, s := range sources {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestDeleteSource(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, id := range []string{"a", "b"} {
				if err := store.PutSource(ctx, remoteSource(id, i)); err != nil {
					t.Fatal(err)
				}
			}
			videos := []VideoRecord{
				{ID: "v1", SourceID: "a", Title: "One"},
				{ID: "v2", SourceID: "a", Title: "Two"},
				{ID: "v1", SourceID: "b", Title: "Other"},
			}
			if _, err := store.BatchUpsertVideos(ctx, videos); err != nil {
				t.Fatal(err)
			}
			if err := store.PutDerived(ctx, DerivedEntry{List: DerivedListFavorites, VideoID: "v1", SourceID: "a"}); err != nil {
				t.Fatal(err)
			}

			if err := store.DeleteSource(ctx, "a"); err != nil {
				t.Fatalf("DeleteSource: %v", err)
			}
			if _, err := store.GetSource(ctx, "a"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound after delete, got %v", err)
			}
			if _, total, err := store.GetVideosBySource(ctx, "a", 0, 0); err != nil || total != 0 {
				t.Errorf("Expected videos of a to be gone, got %d (%v)", total, err)
			}
			if _, total, err := store.GetVideosBySource(ctx, "b", 0, 0); err != nil || total != 1 {
				t.Errorf("Expected videos of b to survive, got %d (%v)", total, err)
			}
			entries, err := store.ListDerived(ctx, DerivedListFavorites)
			if err != nil || len(entries) != 1 {
				t.Errorf("Expected derived entries to be kept, got %v (%v)", entries, err)
			}

			if err := store.DeleteSource(ctx, "a"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound for a second delete, got %v", err)
			}
		})
	}
}
