package store

import (
	"context"
	"testing"

	"github.com/engramhq/engram/internal/models"
)

func TestRepairTagsFixesLegacyForms(t *testing.T) {
	p := newTestPrimary(t)
	ctx := context.Background()

	out, err := p.Store(ctx, &models.Memory{Content: "malformed tags test", MemoryType: "note"})
	if err != nil || !out.OK {
		t.Fatalf("Store: out=%+v err=%v", out, err)
	}

	m, err := p.GetByExactContent(ctx, "malformed tags test")
	if err != nil || len(m) == 0 {
		t.Fatalf("GetByExactContent: %v (len %d)", err, len(m))
	}
	hash := m[0].ContentHash

	if _, err := p.db.Exec(`UPDATE memories SET tags = ? WHERE content_hash = ?`, `["a","b"],["a"`, hash); err != nil {
		t.Fatalf("seed malformed tags: %v", err)
	}

	report, err := RepairTags(p.db, true)
	if err != nil {
		t.Fatalf("RepairTags dry-run: %v", err)
	}
	if report.Fixed != 1 {
		t.Fatalf("dry-run expected 1 fix, got %d", report.Fixed)
	}

	if _, err := RepairTags(p.db, false); err != nil {
		t.Fatalf("RepairTags: %v", err)
	}

	got, err := p.GetByHash(ctx, hash)
	if err != nil {
		t.Fatalf("GetByHash after repair: %v", err)
	}
	want := map[string]bool{"a": true, "b": true}
	if len(got.Tags) != len(want) {
		t.Fatalf("expected tags %v, got %v", want, got.Tags)
	}
	for _, tag := range got.Tags {
		if !want[tag] {
			t.Fatalf("unexpected tag %q in %v", tag, got.Tags)
		}
	}
}
