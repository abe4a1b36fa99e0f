package indexdb

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteIndex_RecordAndRecent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	idx.RecordProjectSave("project_1700000000000", "Factory Floor")
	idx.RecordAssetUpload("a1b2c3d4e5f60718_drone.glb", "drone.glb", 2048)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen: events must have been committed before Close returned.
	idx2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx2.Close()

	events, err := idx2.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	// Newest first.
	if events[0].Kind != "asset_upload" || events[0].Ref != "a1b2c3d4e5f60718_drone.glb" || events[0].Size != 2048 {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Kind != "project_save" || events[1].Name != "Factory Floor" {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
	for _, ev := range events {
		if ev.At == "" {
			t.Fatalf("missing timestamp on %+v", ev)
		}
	}
}

func TestSQLiteIndex_NilSafe(t *testing.T) {
	var idx *SQLiteIndex
	idx.RecordProjectSave("p", "n")
	idx.RecordAssetUpload("f", "d", 1)
	if events, err := idx.Recent(context.Background(), 5); err != nil || events != nil {
		t.Fatalf("nil index Recent = %v, %v", events, err)
	}
}

func TestSQLiteIndex_OpenRejectsEmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
