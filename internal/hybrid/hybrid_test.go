package hybrid

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/storage"
	"github.com/engramhq/engram/internal/store"
	"github.com/engramhq/engram/internal/syncsvc"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Dimension() int { return 4 }
func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 2, 3, 4}, nil
}

func newPrimary(t *testing.T, name string) storage.Backend {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewPrimary(db, fakeEmbedder{})
}

// recordingSyncer counts enqueues without running any loop, for tests that
// only care about routing.
type recordingSyncer struct {
	enqueued []models.SyncOpType
}

func (r *recordingSyncer) Enqueue(ctx context.Context, kind models.SyncOpType, m *models.Memory, hash string, updates models.Metadata) {
	r.enqueued = append(r.enqueued, kind)
}
func (r *recordingSyncer) Pause()                      {}
func (r *recordingSyncer) Resume()                     {}
func (r *recordingSyncer) QueueDepth() int             { return len(r.enqueued) }
func (r *recordingSyncer) GetMetrics() syncsvc.Metrics { return syncsvc.Metrics{} }
func (r *recordingSyncer) DetectDrift(ctx context.Context, primary storage.Backend, batchSize int, period time.Duration, dryRun bool) (syncsvc.DriftReport, error) {
	return syncsvc.DriftReport{}, nil
}
func (r *recordingSyncer) Start(ctx context.Context, primary storage.Backend) {}
func (r *recordingSyncer) Stop()                                             {}

func TestStoreRoutesToPrimaryAndEnqueuesSync(t *testing.T) {
	primary := newPrimary(t, "primary.db")
	secondary := newPrimary(t, "secondary.db")
	sync := &recordingSyncer{}
	engine := New(primary, secondary, sync, DefaultConfig())

	ctx := context.Background()
	m := &models.Memory{Content: "hybrid write"}
	out, err := engine.Store(ctx, m)
	if err != nil || !out.OK {
		t.Fatalf("Store: out=%+v err=%v", out, err)
	}

	if len(sync.enqueued) != 1 || sync.enqueued[0] != models.SyncOpStore {
		t.Fatalf("expected one store enqueue, got %v", sync.enqueued)
	}

	fetched, err := engine.GetByHash(ctx, m.ContentHash)
	if err != nil || fetched == nil {
		t.Fatalf("expected memory readable from primary: %v", err)
	}
}

func TestStoreWithoutSecondaryCountsOnPrimary(t *testing.T) {
	primary := newPrimary(t, "primary.db")
	engine := New(primary, nil, nil, DefaultConfig())
	ctx := context.Background()

	m := &models.Memory{Content: "primary only"}
	if _, err := engine.Store(ctx, m); err != nil {
		t.Fatalf("Store: %v", err)
	}

	stats, err := engine.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalMemories != 1 {
		t.Fatalf("expected 1 memory, got %d", stats.TotalMemories)
	}
}
