package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/engramhq/engram/internal/store"
)

// fixedClockSequence returns a clock that advances by one second on every
// call, so consecutive snapshots in the same test don't collide on the
// second-resolution timestamp in their filename.
func fixedClockSequence() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestService(t *testing.T) (*Service, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "primary.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewService(db, t.TempDir()), db
}

func TestSnapshotWritesFile(t *testing.T) {
	svc, db := newTestService(t)

	if _, err := db.Exec(
		`INSERT INTO memories (content_hash, content, memory_type, tags, metadata, created_at, created_at_iso, updated_at, updated_at_iso)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"abc", "hello", "note", "", "{}", 1.0, "1970-01-01T00:00:01Z", 1.0, "1970-01-01T00:00:01Z",
	); err != nil {
		t.Fatalf("insert: %v", err)
	}

	path, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected snapshot file to exist: %v", err)
	}

	snap, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open snapshot: %v", err)
	}
	defer snap.Close()

	var count int
	if err := snap.QueryRow(`SELECT COUNT(*) FROM memories WHERE content_hash = ?`, "abc").Scan(&count); err != nil {
		t.Fatalf("query snapshot: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 matching row in the snapshot, got %d", count)
	}
}

func TestSnapshotNamesAreDistinct(t *testing.T) {
	svc, _ := newTestService(t)
	svc.now = fixedClockSequence()

	first, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	second, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if first == second {
		t.Errorf("expected distinct snapshot paths, got %q twice", first)
	}
}
