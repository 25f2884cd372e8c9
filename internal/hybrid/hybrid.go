// Package hybrid composes the primary embedded backend with an optional
// cloud secondary behind the single storage.Backend contract (spec §4.5).
// Writes land on the primary first and are mirrored to the secondary via
// the background sync service; reads are always primary-only.
package hybrid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/engramhq/engram/internal/logging"
	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/storage"
	"github.com/engramhq/engram/internal/syncsvc"
)

var log = logging.GetLogger("hybrid")

// Syncer is the subset of syncsvc.Service the engine needs, kept as an
// interface so tests can substitute a fake.
type Syncer interface {
	Enqueue(ctx context.Context, kind models.SyncOpType, m *models.Memory, hash string, updates models.Metadata)
	Pause()
	Resume()
	QueueDepth() int
	GetMetrics() syncsvc.Metrics
	DetectDrift(ctx context.Context, primary storage.Backend, batchSize int, period time.Duration, dryRun bool) (syncsvc.DriftReport, error)
	Start(ctx context.Context, primary storage.Backend)
	Stop()
}

// Config tunes the initial catch-up sync (spec §4.5 "Startup behavior").
type Config struct {
	InitialSyncPageSize     int
	InitialSyncMaxEmptyBatches int
	InitialSyncStartDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		InitialSyncPageSize:        100,
		InitialSyncMaxEmptyBatches: 20,
		InitialSyncStartDelay:      2 * time.Second,
	}
}

// InitialSyncStatus reports the progress of the one-shot catch-up sync
// run at startup when a secondary already holds more memories than the
// primary (spec §6 get_initial_sync_status()).
type InitialSyncStatus struct {
	InProgress         bool
	Total              int
	Completed          int
	Finished           bool
	ProgressPercentage float64
}

// Engine is the hybrid storage.Backend implementation.
type Engine struct {
	primary   storage.Backend
	secondary storage.Backend // nil if no secondary is configured
	sync      Syncer
	cfg       Config

	mu          sync.Mutex
	initialSync InitialSyncStatus
}

var _ storage.Backend = (*Engine)(nil)

// New composes a primary with an optional secondary + sync service.
func New(primary storage.Backend, secondary storage.Backend, sync Syncer, cfg Config) *Engine {
	return &Engine{primary: primary, secondary: secondary, sync: sync, cfg: cfg}
}

func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.primary.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize primary: %w", err)
	}
	if e.secondary != nil {
		if err := e.secondary.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize secondary: %w", err)
		}
		if e.sync != nil {
			e.sync.Start(ctx, e.primary)
		}
		go e.initialCatchUpSync(ctx)
	}
	return nil
}

// initialCatchUpSync reconciles a secondary that has more memories than the
// primary (e.g. a fresh local install pointed at an existing cloud store),
// per spec §4.5 steps 1-6.
func (e *Engine) initialCatchUpSync(ctx context.Context) {
	time.Sleep(e.cfg.InitialSyncStartDelay)

	primaryCount, err := e.primary.CountAllMemories(ctx, "", nil)
	if err != nil {
		log.Warn("initial catch-up sync: primary count failed", "error", err)
		return
	}
	secondaryStats, err := e.secondary.GetStats(ctx)
	if err != nil {
		log.Warn("initial catch-up sync: secondary stats failed", "error", err)
		return
	}
	if secondaryStats.TotalMemories <= primaryCount {
		e.mu.Lock()
		e.initialSync = InitialSyncStatus{Finished: true, ProgressPercentage: 100}
		e.mu.Unlock()
		return
	}

	total := secondaryStats.TotalMemories - primaryCount
	e.mu.Lock()
	e.initialSync = InitialSyncStatus{InProgress: true, Total: total}
	e.mu.Unlock()

	log.Info("initial catch-up sync starting", "primary_count", primaryCount, "secondary_count", secondaryStats.TotalMemories)

	emptyBatches := 0
	synced := 0
	offset := 0
	for emptyBatches < e.cfg.InitialSyncMaxEmptyBatches {
		page, err := e.secondary.GetAllMemories(ctx, storage.ListFilter{Limit: e.cfg.InitialSyncPageSize, Offset: offset})
		if err != nil {
			log.Warn("initial catch-up sync: enumeration failed, degrading to best-effort", "error", err)
			return
		}
		if len(page) == 0 {
			break
		}
		offset += len(page)

		newInBatch := 0
		for _, m := range page {
			existing, err := e.primary.GetByHash(ctx, m.ContentHash)
			if err != nil {
				continue
			}
			if existing != nil {
				continue
			}
			tombstoned, err := e.primary.IsDeleted(ctx, m.ContentHash)
			if err != nil || tombstoned {
				continue
			}
			if _, err := e.primary.Store(ctx, m); err == nil {
				newInBatch++
				synced++
			}
		}

		if newInBatch == 0 {
			emptyBatches++
		} else {
			emptyBatches = 0
		}

		pct := 100.0
		if total > 0 {
			pct = float64(synced) / float64(total) * 100
			if pct > 100 {
				pct = 100
			}
		}
		e.mu.Lock()
		e.initialSync.Completed = synced
		e.initialSync.ProgressPercentage = pct
		e.mu.Unlock()
	}

	e.mu.Lock()
	e.initialSync.InProgress = false
	e.initialSync.Finished = true
	e.mu.Unlock()

	log.Info("initial catch-up sync complete", "synced", synced)
}

// GetInitialSyncStatus reports the startup catch-up sync's progress
// (spec §6). Before a secondary is configured or the catch-up never had
// to run, it reports Finished with 100% progress.
func (e *Engine) GetInitialSyncStatus() InitialSyncStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.secondary == nil {
		return InitialSyncStatus{Finished: true, ProgressPercentage: 100}
	}
	return e.initialSync
}

// GetSyncStatus is the consumer-facing view of the background sync
// service's health (spec §6 get_sync_status()); nil when no secondary is
// configured.
func (e *Engine) GetSyncStatus() map[string]any {
	if e.sync == nil {
		return nil
	}
	metrics := e.sync.GetMetrics()
	return map[string]any{
		"queue_depth":           metrics.QueueDepth,
		"operations_processed":  metrics.OperationsProcessed,
		"operations_failed":     metrics.OperationsFailed,
		"operations_retried":    metrics.OperationsRetried,
		"approaching_limits":    metrics.ApproachingLimits,
	}
}

func (e *Engine) MaxContentLength() *int { return e.primary.MaxContentLength() }
func (e *Engine) SupportsChunking() bool { return e.primary.SupportsChunking() }

func (e *Engine) Store(ctx context.Context, m *models.Memory) (storage.StoreOutcome, error) {
	out, err := e.primary.Store(ctx, m)
	if err != nil || !out.OK {
		return out, err
	}
	e.enqueueSync(ctx, models.SyncOpStore, m, "", nil)
	return out, nil
}

func (e *Engine) StoreBatch(ctx context.Context, ms []*models.Memory) ([]storage.StoreOutcome, error) {
	outs, err := e.primary.StoreBatch(ctx, ms)
	if err != nil {
		return outs, err
	}
	for i, out := range outs {
		if out.OK {
			e.enqueueSync(ctx, models.SyncOpStore, ms[i], "", nil)
		}
	}
	return outs, nil
}

func (e *Engine) enqueueSync(ctx context.Context, kind models.SyncOpType, m *models.Memory, hash string, updates models.Metadata) {
	if e.secondary == nil || e.sync == nil {
		return
	}
	e.sync.Enqueue(ctx, kind, m, hash, updates)
}

func (e *Engine) Retrieve(ctx context.Context, query string, n int) ([]storage.Result, error) {
	return e.primary.Retrieve(ctx, query, n)
}

func (e *Engine) RetrieveWithQualityBoost(ctx context.Context, query string, n int, weight float64) ([]storage.Result, error) {
	return e.primary.RetrieveWithQualityBoost(ctx, query, n, weight)
}

func (e *Engine) SearchByTag(ctx context.Context, tags []string, timeStart *float64) ([]*models.Memory, error) {
	return e.primary.SearchByTag(ctx, tags, timeStart)
}

func (e *Engine) SearchByTags(ctx context.Context, tags []string, match storage.TagMatch, timeStart, timeEnd *float64) ([]*models.Memory, error) {
	return e.primary.SearchByTags(ctx, tags, match, timeStart, timeEnd)
}

func (e *Engine) SearchByTagChronological(ctx context.Context, tags []string, limit, offset int) ([]*models.Memory, error) {
	return e.primary.SearchByTagChronological(ctx, tags, limit, offset)
}

func (e *Engine) Delete(ctx context.Context, contentHash string) (storage.StoreOutcome, error) {
	out, err := e.primary.Delete(ctx, contentHash)
	if err != nil || !out.OK {
		return out, err
	}
	e.enqueueSync(ctx, models.SyncOpDelete, nil, contentHash, nil)
	return out, nil
}

func (e *Engine) DeleteByTag(ctx context.Context, tag string) (int, []string, error) {
	n, hashes, err := e.primary.DeleteByTag(ctx, tag)
	if err != nil {
		return n, hashes, err
	}
	for _, h := range hashes {
		e.enqueueSync(ctx, models.SyncOpDelete, nil, h, nil)
	}
	return n, hashes, nil
}

func (e *Engine) DeleteByTags(ctx context.Context, tags []string) (int, []string, error) {
	n, hashes, err := e.primary.DeleteByTags(ctx, tags)
	if err != nil {
		return n, hashes, err
	}
	for _, h := range hashes {
		e.enqueueSync(ctx, models.SyncOpDelete, nil, h, nil)
	}
	return n, hashes, nil
}

func (e *Engine) DeleteMemories(ctx context.Context, filter storage.DeleteFilter) ([]string, error) {
	hashes, err := e.primary.DeleteMemories(ctx, filter)
	if err != nil {
		return hashes, err
	}
	if !filter.DryRun {
		for _, h := range hashes {
			e.enqueueSync(ctx, models.SyncOpDelete, nil, h, nil)
		}
	}
	return hashes, nil
}

func (e *Engine) UpdateMemoryMetadata(ctx context.Context, contentHash string, tags []string, memoryType string, metadata models.Metadata, preserveTimestamps bool) (storage.StoreOutcome, error) {
	out, err := e.primary.UpdateMemoryMetadata(ctx, contentHash, tags, memoryType, metadata, preserveTimestamps)
	if err != nil || !out.OK {
		return out, err
	}
	e.enqueueSync(ctx, models.SyncOpUpdate, nil, contentHash, metadata)
	return out, nil
}

func (e *Engine) UpdateMemoriesBatch(ctx context.Context, updates map[string]models.Metadata) ([]bool, error) {
	oks, err := e.primary.UpdateMemoriesBatch(ctx, updates)
	if err != nil {
		return oks, err
	}
	for hash, meta := range updates {
		e.enqueueSync(ctx, models.SyncOpUpdate, nil, hash, meta)
	}
	return oks, nil
}

func (e *Engine) GetByHash(ctx context.Context, hash string) (*models.Memory, error) {
	return e.primary.GetByHash(ctx, hash)
}

func (e *Engine) GetByExactContent(ctx context.Context, content string) ([]*models.Memory, error) {
	return e.primary.GetByExactContent(ctx, content)
}

func (e *Engine) GetAllMemories(ctx context.Context, filter storage.ListFilter) ([]*models.Memory, error) {
	return e.primary.GetAllMemories(ctx, filter)
}

func (e *Engine) CountAllMemories(ctx context.Context, memoryType string, tags []string) (int, error) {
	return e.primary.CountAllMemories(ctx, memoryType, tags)
}

func (e *Engine) GetMemoriesByTimeRange(ctx context.Context, start, end float64) ([]*models.Memory, error) {
	return e.primary.GetMemoriesByTimeRange(ctx, start, end)
}

func (e *Engine) GetMemoryTimestamps(ctx context.Context, days int) ([]float64, error) {
	return e.primary.GetMemoryTimestamps(ctx, days)
}

func (e *Engine) SearchMemories(ctx context.Context, q storage.SearchQuery) (storage.SearchOutcome, error) {
	return e.primary.SearchMemories(ctx, q)
}

func (e *Engine) IsDeleted(ctx context.Context, hash string) (bool, error) {
	return e.primary.IsDeleted(ctx, hash)
}

func (e *Engine) PurgeDeleted(ctx context.Context, olderThanDays int) (int, error) {
	return e.primary.PurgeDeleted(ctx, olderThanDays)
}

// GetStats merges primary stats with sync status and, if reachable,
// secondary stats (spec §4.5 "Stats: merged").
func (e *Engine) GetStats(ctx context.Context) (storage.Stats, error) {
	stats, err := e.primary.GetStats(ctx)
	if err != nil {
		return stats, err
	}
	stats.SyncStatus = map[string]any{}

	if e.sync != nil {
		metrics := e.sync.GetMetrics()
		stats.SyncStatus["queue_depth"] = metrics.QueueDepth
		stats.SyncStatus["operations_processed"] = metrics.OperationsProcessed
		stats.SyncStatus["operations_failed"] = metrics.OperationsFailed
		stats.SyncStatus["operations_retried"] = metrics.OperationsRetried
		stats.SyncStatus["approaching_limits"] = metrics.ApproachingLimits
	}
	if e.secondary != nil {
		if secStats, err := e.secondary.GetStats(ctx); err == nil {
			stats.SyncStatus["secondary_total_memories"] = secStats.TotalMemories
			stats.SyncStatus["secondary_reachable"] = true
		} else {
			stats.SyncStatus["secondary_reachable"] = false
		}
	}
	return stats, nil
}

// ForceSync triggers a full one-shot primary-to-secondary reconciliation
// (spec §4.5 "Force sync").
func (e *Engine) ForceSync(ctx context.Context) (int, error) {
	if e.secondary == nil {
		return 0, fmt.Errorf("no secondary backend configured")
	}

	all, err := e.primary.GetAllMemories(ctx, storage.ListFilter{})
	if err != nil {
		return 0, fmt.Errorf("enumerate primary: %w", err)
	}

	synced := 0
	for _, m := range all {
		existing, err := e.secondary.GetByHash(ctx, m.ContentHash)
		if err == nil && existing != nil {
			continue
		}
		if _, err := e.secondary.Store(ctx, m); err == nil {
			synced++
		}
	}
	return synced, nil
}

// CheckDrift runs an ad-hoc drift scan between primary and secondary,
// exposed to the operator CLI as "sync drift" (spec §4.5). dryRun reports
// mismatches without writing anything back; period, when non-zero,
// restricts the scan to memories created within that window.
func (e *Engine) CheckDrift(ctx context.Context, period time.Duration, dryRun bool) (syncsvc.DriftReport, error) {
	if e.secondary == nil || e.sync == nil {
		return syncsvc.DriftReport{}, fmt.Errorf("no secondary backend configured")
	}
	return e.sync.DetectDrift(ctx, e.primary, 200, period, dryRun)
}

// PauseSync/ResumeSync let the consolidation pipeline get exclusive access
// to the secondary while a run is in progress.
func (e *Engine) PauseSync() {
	if e.sync != nil {
		e.sync.Pause()
	}
}

func (e *Engine) ResumeSync() {
	if e.sync != nil {
		e.sync.Resume()
	}
}
