package health

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/engramhq/engram/internal/store"
)

func newTestMonitor(t *testing.T) (*Monitor, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewMonitor(db), db
}

func TestRunCheckHealthy(t *testing.T) {
	m, _ := newTestMonitor(t)
	event, err := m.RunCheck(context.Background())
	if err != nil {
		t.Fatalf("RunCheck: %v", err)
	}
	if !event.Healthy {
		t.Errorf("expected a fresh database to report healthy, got detail %q", event.Detail)
	}
	if !m.Healthy() {
		t.Error("expected Monitor.Healthy() to reflect the last check")
	}
	if len(m.History()) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(m.History()))
	}
}

func TestResolveUnknownID(t *testing.T) {
	m, _ := newTestMonitor(t)
	if _, err := m.RunCheck(context.Background()); err != nil {
		t.Fatalf("RunCheck: %v", err)
	}
	if err := m.Resolve("does-not-exist"); err == nil {
		t.Error("expected an error resolving an unknown event id")
	}
}

func TestResolveMarksEvent(t *testing.T) {
	m, _ := newTestMonitor(t)
	event, err := m.RunCheck(context.Background())
	if err != nil {
		t.Fatalf("RunCheck: %v", err)
	}
	if err := m.Resolve(event.ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	history := m.History()
	if !history[0].Resolved {
		t.Error("expected event to be marked resolved")
	}
}

func TestEmergencyExportWritesJSON(t *testing.T) {
	m, db := newTestMonitor(t)
	_, err := db.Exec(
		`INSERT INTO memories (content_hash, content, memory_type, tags, metadata, created_at, created_at_iso, updated_at, updated_at_iso)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"abc123", "hello world", "note", "", "{}", 1.0, "1970-01-01T00:00:01Z", 1.0, "1970-01-01T00:00:01Z",
	)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	path, err := m.emergencyExport(context.Background())
	if err != nil {
		t.Fatalf("emergencyExport: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var rows []exportedRow
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(rows) != 1 || rows[0].ContentHash != "abc123" {
		t.Errorf("expected exported row for abc123, got %+v", rows)
	}
}

func TestStartStopRunsAtLeastOnce(t *testing.T) {
	m, _ := newTestMonitor(t)
	m.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	m.Stop()

	if len(m.History()) == 0 {
		t.Error("expected at least one check to run on Start")
	}
}
