package controllers

import (
	"context"
	"errors"
	"testing"

	"github.com/amaumene/tubenest/internal/models"
)

func TestSyncSources(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	disk := models.Source{ID: "disk", Kind: models.SourceKindLocalTree, Local: &models.LocalFields{RootPath: "/media", MaxDepth: 2}}
	putSources(t, store, channel("old"), channel("kept"), disk)

	if err := store.UpsertSource(ctx, models.SourcePatch{ID: "kept", TotalVideoCount: models.IntPtr(9)}); err != nil {
		t.Fatal(err)
	}

	kept := channel("kept")
	kept.Title = "Renamed"
	configured := []models.Source{
		kept,
		channel("new"),
		{ID: "broken", Kind: models.SourceKindLocalTree, Local: &models.LocalFields{MaxDepth: 2}},
		{ID: "disk", Kind: models.SourceKindLocalTree, Local: &models.LocalFields{RootPath: "/media", MaxDepth: -1}},
	}

	report, err := NewSyncController(store, testLogger()).SyncSources(ctx, configured)
	if err != nil {
		t.Fatalf("SyncSources: %v", err)
	}
	if report.Saved != 2 || report.Skipped != 2 || report.Removed != 1 {
		t.Errorf("Unexpected report: %+v", report)
	}

	if _, err := store.GetSource(ctx, "old"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected unconfigured source to be removed, got %v", err)
	}
	if _, err := store.GetSource(ctx, "broken"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Invalid source must not be stored, got %v", err)
	}

	stored, err := store.GetSource(ctx, "disk")
	if err != nil {
		t.Fatalf("Expected invalid configured source to keep its stored copy, got %v", err)
	}
	if stored.Local.MaxDepth != 2 {
		t.Errorf("Stored copy must not take the invalid depth, got %d", stored.Local.MaxDepth)
	}

	got, err := store.GetSource(ctx, "kept")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Renamed" || got.TotalVideoCount != 9 {
		t.Errorf("Expected config applied with cache kept, got %+v", got)
	}
}
