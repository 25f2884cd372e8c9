package syncsvc

import (
	"context"
	"testing"
	"time"

	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/storage"
)

// stubBackend is a minimal storage.Backend exercising only the methods
// syncsvc actually calls.
type stubBackend struct {
	storage.Backend
	stored  []*models.Memory
	storeErr error
}

func (s *stubBackend) Store(ctx context.Context, m *models.Memory) (storage.StoreOutcome, error) {
	if s.storeErr != nil {
		return storage.StoreOutcome{}, s.storeErr
	}
	s.stored = append(s.stored, m)
	return storage.StoreOutcome{OK: true}, nil
}

func (s *stubBackend) Delete(ctx context.Context, hash string) (storage.StoreOutcome, error) {
	return storage.StoreOutcome{OK: true}, nil
}

func (s *stubBackend) UpdateMemoryMetadata(ctx context.Context, hash string, tags []string, memoryType string, metadata models.Metadata, preserve bool) (storage.StoreOutcome, error) {
	return storage.StoreOutcome{OK: true}, nil
}

func (s *stubBackend) GetStats(ctx context.Context) (storage.Stats, error) {
	return storage.Stats{TotalMemories: len(s.stored)}, nil
}

func TestEnqueueDrainsOnTick(t *testing.T) {
	backend := &stubBackend{}
	cfg := DefaultConfig()
	cfg.DrainInterval = 20 * time.Millisecond
	svc := New(backend, cfg)

	m := &models.Memory{Content: "queued memory", ContentHash: "abc"}
	svc.Enqueue(context.Background(), models.SyncOpStore, m, "", nil)

	svc.Start(context.Background(), nil)
	defer svc.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(backend.stored) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected queued op to drain, stored=%d", len(backend.stored))
}

func TestEnqueueOverflowProcessesInline(t *testing.T) {
	backend := &stubBackend{}
	cfg := DefaultConfig()
	cfg.QueueCapacity = 1
	svc := New(backend, cfg)

	svc.Enqueue(context.Background(), models.SyncOpStore, &models.Memory{Content: "a", ContentHash: "a"}, "", nil)
	svc.Enqueue(context.Background(), models.SyncOpStore, &models.Memory{Content: "b", ContentHash: "b"}, "", nil)

	if len(backend.stored) != 1 {
		t.Fatalf("expected overflow op processed inline, stored=%d", len(backend.stored))
	}
	if svc.QueueDepth() != 1 {
		t.Fatalf("expected 1 op still queued, got %d", svc.QueueDepth())
	}
}

func TestPauseStopsDraining(t *testing.T) {
	backend := &stubBackend{}
	cfg := DefaultConfig()
	cfg.DrainInterval = 10 * time.Millisecond
	svc := New(backend, cfg)
	svc.Pause()

	svc.Enqueue(context.Background(), models.SyncOpStore, &models.Memory{Content: "x", ContentHash: "x"}, "", nil)
	svc.Start(context.Background(), nil)
	defer svc.Stop()

	time.Sleep(100 * time.Millisecond)
	if len(backend.stored) != 0 {
		t.Fatalf("expected no draining while paused, stored=%d", len(backend.stored))
	}
}
