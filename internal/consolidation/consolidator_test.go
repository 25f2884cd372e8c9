package consolidation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/relationships"
	"github.com/engramhq/engram/internal/store"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Dimension() int { return 4 }
func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 2, 3, 4}, nil
}

func newTestConsolidator(t *testing.T) (*Consolidator, *store.Primary) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	primary := store.NewPrimary(db, fakeEmbedder{})
	rel := relationships.NewService(db)
	return New(primary, rel, DefaultConfig()), primary
}

func TestConsolidateUnknownHorizon(t *testing.T) {
	c, _ := newTestConsolidator(t)
	if _, err := c.Consolidate(context.Background(), "decade"); err == nil {
		t.Error("expected error for unknown horizon")
	}
}

func TestConsolidateEmptyIsNoop(t *testing.T) {
	c, _ := newTestConsolidator(t)
	report, err := c.Consolidate(context.Background(), "weekly")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if report.MemoriesProcessed != 0 {
		t.Errorf("expected 0 memories processed, got %d", report.MemoriesProcessed)
	}
}

func TestConsolidateScoresAndStampsMemories(t *testing.T) {
	c, p := newTestConsolidator(t)
	ctx := context.Background()

	m := &models.Memory{Content: "a fact worth remembering", Tags: []string{"important"}}
	if _, err := p.Store(ctx, m); err != nil {
		t.Fatalf("Store: %v", err)
	}

	report, err := c.Consolidate(ctx, "weekly")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if report.MemoriesProcessed != 1 {
		t.Fatalf("expected 1 memory processed, got %d", report.MemoriesProcessed)
	}

	updated, err := p.GetByHash(ctx, m.ContentHash)
	if err != nil || updated == nil {
		t.Fatalf("GetByHash: %v", err)
	}
	if _, ok := updated.Metadata[models.MetaRelevanceScore]; !ok {
		t.Error("expected relevance_score to be persisted")
	}
	if _, ok := updated.Metadata[models.MetaLastConsolidatedAt]; !ok {
		t.Error("expected last_consolidated_at to be persisted")
	}

	stats := c.Stats()
	if stats.TotalRuns != 1 || stats.SuccessfulRuns != 1 {
		t.Errorf("expected 1 successful run, got %+v", stats)
	}
}

func TestConsolidateDailyUsesTimeRange(t *testing.T) {
	c, p := newTestConsolidator(t)
	ctx := context.Background()

	old := &models.Memory{Content: "old memory"}
	if _, err := p.Store(ctx, old); err != nil {
		t.Fatalf("Store: %v", err)
	}
	// Backdate by rewriting created_at directly isn't exposed; instead just
	// confirm a freshly stored memory is included in the daily window.
	report, err := c.Consolidate(ctx, "daily")
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if report.MemoriesProcessed != 1 {
		t.Errorf("expected 1 memory in daily window, got %d", report.MemoriesProcessed)
	}
}

func TestRelevanceCalculatorProtectedFloor(t *testing.T) {
	calc := NewRelevanceCalculator()
	now := time.Now()
	m := &models.Memory{
		ContentHash: "h1",
		CreatedAt:   float64(now.AddDate(-2, 0, 0).Unix()),
		MemoryType:  "observation",
		Metadata: models.Metadata{
			models.MetaProtected: models.BoolValue(true),
		},
	}
	scores := calc.Score([]*models.Memory{m}, now, nil, nil)
	if len(scores) != 1 {
		t.Fatalf("expected 1 score, got %d", len(scores))
	}
	if scores[0].TotalScore < 0.5 {
		t.Errorf("expected protected floor of 0.5, got %f", scores[0].TotalScore)
	}
}

func TestRelevanceCalculatorDecaysWithAge(t *testing.T) {
	calc := NewRelevanceCalculator()
	now := time.Now()
	fresh := &models.Memory{ContentHash: "fresh", CreatedAt: float64(now.Unix()), MemoryType: "observation"}
	stale := &models.Memory{ContentHash: "stale", CreatedAt: float64(now.AddDate(-1, 0, 0).Unix()), MemoryType: "observation"}

	scores := calc.Score([]*models.Memory{fresh, stale}, now, nil, nil)
	byHash := map[string]RelevanceScore{}
	for _, s := range scores {
		byHash[s.MemoryHash] = s
	}
	if byHash["fresh"].TotalScore <= byHash["stale"].TotalScore {
		t.Errorf("expected fresh memory to score higher than stale: fresh=%f stale=%f",
			byHash["fresh"].TotalScore, byHash["stale"].TotalScore)
	}
}
