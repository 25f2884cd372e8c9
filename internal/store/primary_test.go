package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/storage"
)

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Dimension() int { return f.dim }

// Embed returns a deterministic vector derived from the text length so tests
// can reason about relative similarity without a real model.
func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, f.dim)
	for i := range v {
		v[i] = float32((len(text) + i) % 7)
	}
	return v, nil
}

func newTestPrimary(t *testing.T) *Primary {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "engram.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPrimary(db, &fakeEmbedder{dim: 8})
}

func TestStoreAndGetByHash(t *testing.T) {
	p := newTestPrimary(t)
	ctx := context.Background()

	m := &models.Memory{Content: "remember to rotate the keys", MemoryType: "observation", Tags: []string{"ops", "security"}}
	out, err := p.Store(ctx, m)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !out.OK {
		t.Fatalf("expected store ok, got %+v", out)
	}

	fetched, err := p.GetByHash(ctx, m.ContentHash)
	if err != nil {
		t.Fatalf("GetByHash: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected memory, got nil")
	}
	if fetched.Content != m.Content {
		t.Fatalf("content mismatch: got %q", fetched.Content)
	}
	if len(fetched.Embedding) != 8 {
		t.Fatalf("expected embedding of length 8, got %d", len(fetched.Embedding))
	}
}

func TestStoreDuplicateContentRejected(t *testing.T) {
	p := newTestPrimary(t)
	ctx := context.Background()

	m1 := &models.Memory{Content: "same content twice"}
	if out, err := p.Store(ctx, m1); err != nil || !out.OK {
		t.Fatalf("first store: out=%+v err=%v", out, err)
	}

	m2 := &models.Memory{Content: "same content twice"}
	out, err := p.Store(ctx, m2)
	if err != nil {
		t.Fatalf("second store: %v", err)
	}
	if out.OK {
		t.Fatal("expected duplicate rejection")
	}
}

func TestDeleteThenIsDeletedAndAntiResurrection(t *testing.T) {
	p := newTestPrimary(t)
	ctx := context.Background()

	m := &models.Memory{Content: "ephemeral note"}
	if _, err := p.Store(ctx, m); err != nil {
		t.Fatalf("Store: %v", err)
	}

	out, err := p.Delete(ctx, m.ContentHash)
	if err != nil || !out.OK {
		t.Fatalf("Delete: out=%+v err=%v", out, err)
	}

	deleted, err := p.IsDeleted(ctx, m.ContentHash)
	if err != nil {
		t.Fatalf("IsDeleted: %v", err)
	}
	if !deleted {
		t.Fatal("expected tombstone present")
	}

	m2 := &models.Memory{Content: "ephemeral note"}
	resurrect, err := p.Store(ctx, m2)
	if err != nil {
		t.Fatalf("resurrect store: %v", err)
	}
	if resurrect.OK {
		t.Fatal("expected resurrection to be blocked by tombstone")
	}
}

func TestSearchByTagsAllVsAny(t *testing.T) {
	p := newTestPrimary(t)
	ctx := context.Background()

	a := &models.Memory{Content: "alpha", Tags: []string{"red", "blue"}}
	b := &models.Memory{Content: "beta", Tags: []string{"red"}}
	for _, m := range []*models.Memory{a, b} {
		if _, err := p.Store(ctx, m); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	anyResults, err := p.SearchByTags(ctx, []string{"red", "blue"}, "any", nil, nil)
	if err != nil {
		t.Fatalf("SearchByTags any: %v", err)
	}
	if len(anyResults) != 2 {
		t.Fatalf("expected 2 results for any-match, got %d", len(anyResults))
	}

	allResults, err := p.SearchByTags(ctx, []string{"red", "blue"}, "all", nil, nil)
	if err != nil {
		t.Fatalf("SearchByTags all: %v", err)
	}
	if len(allResults) != 1 || allResults[0].Content != "alpha" {
		t.Fatalf("expected only alpha for all-match, got %+v", allResults)
	}
}

func TestDeleteMemoriesRequiresFilter(t *testing.T) {
	p := newTestPrimary(t)
	ctx := context.Background()
	if _, err := p.DeleteMemories(ctx, storage.DeleteFilter{}); err == nil {
		t.Fatal("expected error for empty delete filter")
	}
}

func TestUpdateMemoryMetadataPreservesContentHash(t *testing.T) {
	p := newTestPrimary(t)
	ctx := context.Background()

	m := &models.Memory{Content: "immutable body", Tags: []string{"draft"}}
	if _, err := p.Store(ctx, m); err != nil {
		t.Fatalf("Store: %v", err)
	}

	out, err := p.UpdateMemoryMetadata(ctx, m.ContentHash, []string{"final"}, "decision", models.Metadata{"reviewed": models.BoolValue(true)}, true)
	if err != nil || !out.OK {
		t.Fatalf("UpdateMemoryMetadata: out=%+v err=%v", out, err)
	}

	fetched, err := p.GetByHash(ctx, m.ContentHash)
	if err != nil {
		t.Fatalf("GetByHash: %v", err)
	}
	if fetched.MemoryType != "decision" {
		t.Fatalf("expected memory_type decision, got %q", fetched.MemoryType)
	}
	if len(fetched.Tags) != 1 || fetched.Tags[0] != "final" {
		t.Fatalf("expected tags [final], got %v", fetched.Tags)
	}
}

func TestGetStatsReflectsLiveCount(t *testing.T) {
	p := newTestPrimary(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m := &models.Memory{Content: "entry " + string(rune('a'+i))}
		if _, err := p.Store(ctx, m); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	stats, err := p.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalMemories != 3 {
		t.Fatalf("expected 3 live memories, got %d", stats.TotalMemories)
	}
}
