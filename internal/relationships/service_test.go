package relationships

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/store"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Dimension() int { return 4 }
func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 2, 3, 4}, nil
}

func newTestService(t *testing.T) (*Service, *store.Primary) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewService(db), store.NewPrimary(db, fakeEmbedder{})
}

func storeMemory(t *testing.T, p *store.Primary, content, memType string) string {
	t.Helper()
	m := &models.Memory{Content: content, MemoryType: memType}
	if _, err := p.Store(context.Background(), m); err != nil {
		t.Fatalf("Store: %v", err)
	}
	return m.ContentHash
}

func TestCreateAssociation(t *testing.T) {
	svc, p := newTestService(t)
	a := storeMemory(t, p, "Memory A about Go", "observation")
	b := storeMemory(t, p, "Memory B about Go concurrency", "observation")

	rel, err := svc.Create(context.Background(), &CreateOptions{
		SourceHash:     a,
		TargetHash:     b,
		ConnectionType: "related",
		Similarity:     0.8,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rel.ID == "" {
		t.Error("expected generated ID")
	}
	if rel.Similarity != 0.8 {
		t.Errorf("expected similarity 0.8, got %f", rel.Similarity)
	}
}

func TestCreateInvalidType(t *testing.T) {
	svc, p := newTestService(t)
	a := storeMemory(t, p, "A", "observation")
	b := storeMemory(t, p, "B", "observation")

	if _, err := svc.Create(context.Background(), &CreateOptions{
		SourceHash: a, TargetHash: b, ConnectionType: "invalid-type",
	}); err == nil {
		t.Error("expected error for invalid relationship type")
	}
}

func TestCreateNonexistentMemory(t *testing.T) {
	svc, p := newTestService(t)
	a := storeMemory(t, p, "A", "observation")

	if _, err := svc.Create(context.Background(), &CreateOptions{
		SourceHash: a, TargetHash: "does-not-exist", ConnectionType: "related",
	}); err == nil {
		t.Error("expected error for nonexistent target")
	}
}

func TestCreateDefaultAndCappedSimilarity(t *testing.T) {
	svc, p := newTestService(t)
	a := storeMemory(t, p, "A", "observation")
	b := storeMemory(t, p, "B", "observation")

	rel, err := svc.Create(context.Background(), &CreateOptions{
		SourceHash: a, TargetHash: b, ConnectionType: "related", Similarity: -1,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rel.Similarity != 0.5 {
		t.Errorf("expected default similarity 0.5, got %f", rel.Similarity)
	}

	rel2, err := svc.Create(context.Background(), &CreateOptions{
		SourceHash: a, TargetHash: b, ConnectionType: "related", Similarity: 5,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rel2.Similarity != 1.0 {
		t.Errorf("expected capped similarity 1.0, got %f", rel2.Similarity)
	}
}

func TestFindRelated(t *testing.T) {
	svc, p := newTestService(t)
	a := storeMemory(t, p, "Memory A", "observation")
	b := storeMemory(t, p, "Memory B", "observation")
	c := storeMemory(t, p, "Memory C", "observation")

	ctx := context.Background()
	if _, err := svc.Create(ctx, &CreateOptions{SourceHash: a, TargetHash: b, ConnectionType: "related", Similarity: 0.8}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(ctx, &CreateOptions{SourceHash: b, TargetHash: c, ConnectionType: "follows", Similarity: 0.6}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	results, err := svc.FindRelated(ctx, &FindRelatedOptions{ContentHash: a})
	if err != nil {
		t.Fatalf("FindRelated: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 related memory, got %d", len(results))
	}

	filtered, err := svc.FindRelated(ctx, &FindRelatedOptions{ContentHash: b, ConnectionType: "follows"})
	if err != nil {
		t.Fatalf("FindRelated: %v", err)
	}
	if len(filtered) != 1 {
		t.Errorf("expected 1 'follows' relationship, got %d", len(filtered))
	}
}

func TestFindRelatedRequiresHash(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.FindRelated(context.Background(), &FindRelatedOptions{}); err == nil {
		t.Error("expected error for empty content hash")
	}
}

func TestMapGraphDepths(t *testing.T) {
	svc, p := newTestService(t)
	a := storeMemory(t, p, "A", "observation")
	b := storeMemory(t, p, "B", "observation")
	c := storeMemory(t, p, "C", "observation")
	d := storeMemory(t, p, "D", "observation")

	ctx := context.Background()
	mustCreate := func(src, dst string) {
		if _, err := svc.Create(ctx, &CreateOptions{SourceHash: src, TargetHash: dst, ConnectionType: "follows", Similarity: 0.9}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	mustCreate(a, b)
	mustCreate(b, c)
	mustCreate(c, d)

	result, err := svc.MapGraph(ctx, &MapGraphOptions{RootHash: a, Depth: 1})
	if err != nil {
		t.Fatalf("MapGraph: %v", err)
	}
	if result.TotalNodes != 2 {
		t.Errorf("expected 2 nodes at depth 1, got %d", result.TotalNodes)
	}

	result2, err := svc.MapGraph(ctx, &MapGraphOptions{RootHash: a, Depth: 2})
	if err != nil {
		t.Fatalf("MapGraph: %v", err)
	}
	if result2.TotalNodes != 3 {
		t.Errorf("expected 3 nodes at depth 2, got %d", result2.TotalNodes)
	}

	result3, err := svc.MapGraph(ctx, &MapGraphOptions{RootHash: a, Depth: 10})
	if err != nil {
		t.Fatalf("MapGraph: %v", err)
	}
	if result3.MaxDepth != maxGraphDepth {
		t.Errorf("expected depth capped at %d, got %d", maxGraphDepth, result3.MaxDepth)
	}
}

func TestMapGraphRequiresRoot(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.MapGraph(context.Background(), &MapGraphOptions{}); err == nil {
		t.Error("expected error for empty root hash")
	}
}

func TestDiscoverFindsTypedRelationship(t *testing.T) {
	svc, p := newTestService(t)
	storeMemory(t, p, "Authentication error: request timeout after 30 seconds", "error/timeout")
	storeMemory(t, p, "Fixed authentication timeout by adjusting configuration", "learning/insight")

	discovered, err := svc.Discover(context.Background(), &DiscoverOptions{Limit: 10})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	found := false
	for _, a := range discovered {
		if len(a.ConnectionTypes) == 1 && a.ConnectionTypes[0] == "fixes" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a 'fixes' association among discovered, got %+v", discovered)
	}
}

func TestInferConnectionTypeDefaultsToRelated(t *testing.T) {
	connType, confidence := inferConnectionType(
		pair{memType: "observation", content: "Meeting notes about Q1 planning", timestamp: 1000},
		pair{memType: "observation", content: "Team lunch at Italian restaurant", timestamp: 500000},
		0.6,
	)
	if connType != "related" {
		t.Errorf("expected default 'related', got %s (confidence %f)", connType, confidence)
	}
}

func TestInferConnectionTypeFixes(t *testing.T) {
	connType, confidence := inferConnectionType(
		pair{memType: "learning/insight", content: "Fixed authentication timeout by adjusting configuration", timestamp: 1234567890},
		pair{memType: "error/bug", content: "Authentication error: Request timeout after 30 seconds", timestamp: 1234560000},
		0.5,
	)
	if connType != "fixes" {
		t.Errorf("expected 'fixes', got %s (confidence %f)", connType, confidence)
	}
}
