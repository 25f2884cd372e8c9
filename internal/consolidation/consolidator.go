// Package consolidation implements the scheduled maintenance engine (spec
// §4.6): relevance decay scoring, clustering, association discovery,
// compression, and controlled forgetting, run under named time horizons.
//
// Orchestration is grounded on the retrieved DreamInspiredConsolidator
// (original_source/.../consolidation/consolidator.py): the
// score -> cluster -> associate -> compress -> forget phase order, the
// per-horizon phase-enablement gate, the sync-pause/resume wrapper around
// the whole run, and the lifetime Stats counters. The decay formula in
// decay.go is a direct, near line-for-line port of
// consolidation/decay.py's ExponentialDecayCalculator; the heuristic behind
// association discovery lives in internal/relationships (ported from
// relationship_inference.py). Clustering/compression/forgetting bodies
// themselves were never present in the retrieved source (only referenced by
// name), so their implementations follow spec §4.6's prose rather than a
// ported method body.
package consolidation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/engramhq/engram/internal/logging"
	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/relationships"
	"github.com/engramhq/engram/internal/storage"
)

var log = logging.GetLogger("consolidation")

// syncPauser is implemented by storage.Backend compositions (namely
// internal/hybrid.Engine) that run a background sync service. Consolidation
// checks for it the way SyncPauseContext used Python's hasattr: a plain
// primary backend simply doesn't satisfy the interface, and pause/resume
// become no-ops.
type syncPauser interface {
	PauseSync()
	ResumeSync()
}

// Config configures a Consolidator's run-time policy.
type Config struct {
	IncrementalMode      bool
	BatchSize            int
	ClusteringEnabled    bool
	AssociationsEnabled  bool
	CompressionEnabled   bool
	ForgettingEnabled    bool
	MinConfidence        float64
	Forgetting           ForgettingPolicy
}

// DefaultConfig mirrors the retrieved ConsolidationConfig defaults: all
// phases on, incremental batches of 500, archive-before-delete forgetting.
func DefaultConfig() Config {
	return Config{
		IncrementalMode:     true,
		BatchSize:           500,
		ClusteringEnabled:   true,
		AssociationsEnabled: true,
		CompressionEnabled:  true,
		ForgettingEnabled:   true,
		MinConfidence:       0.6,
		Forgetting:          DefaultForgettingPolicy(),
	}
}

// Consolidator runs the consolidation pipeline against a storage.Backend
// (primary or hybrid) plus the Association store behind internal/relationships.
type Consolidator struct {
	storage       storage.Backend
	relationships *relationships.Service
	calculator    *RelevanceCalculator
	cfg           Config
	now           func() time.Time

	stats Stats
}

// New builds a Consolidator over backend (reads/writes memories) and rel
// (reads/writes associations).
func New(backend storage.Backend, rel *relationships.Service, cfg Config) *Consolidator {
	return &Consolidator{
		storage:       backend,
		relationships: rel,
		calculator:    NewRelevanceCalculator(),
		cfg:           cfg,
		now:           time.Now,
	}
}

// Stats returns a snapshot of lifetime counters across every Consolidate call.
func (c *Consolidator) Stats() Stats { return c.stats }

// Consolidate runs the full pipeline for one named horizon (daily, weekly,
// monthly, quarterly, yearly).
func (c *Consolidator) Consolidate(ctx context.Context, horizon string) (Report, error) {
	return c.consolidate(ctx, horizon, false)
}

// ConsolidateDryRun runs the same pipeline but skips every mutating step
// (relevance persistence, compression, forgetting, consolidated-at stamps),
// returning a Report of what the phases found and would have changed.
func (c *Consolidator) ConsolidateDryRun(ctx context.Context, horizon string) (Report, error) {
	return c.consolidate(ctx, horizon, true)
}

func (c *Consolidator) consolidate(ctx context.Context, horizon string, dryRun bool) (Report, error) {
	if _, ok := HorizonConfigs[horizon]; !ok {
		return Report{}, fmt.Errorf("unknown time horizon: %s", horizon)
	}

	now := c.now()
	report := Report{ID: uuid.New().String(), TimeHorizon: horizon, StartTime: now, EndTime: now}

	if !dryRun {
		if p, ok := c.storage.(syncPauser); ok {
			p.PauseSync()
			defer p.ResumeSync()
		}
	}

	memories, err := c.memoriesForHorizon(ctx, horizon, now)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		report.EndTime = c.now()
		c.stats.record(report)
		return report, err
	}
	report.MemoriesProcessed = len(memories)
	if len(memories) == 0 {
		log.Info("no memories to process", "horizon", horizon)
		report.EndTime = c.now()
		c.stats.record(report)
		return report, nil
	}
	log.Info("consolidation phase 1/5: relevance scoring", "horizon", horizon, "count", len(memories))

	byHash := make(map[string]*models.Memory, len(memories))
	for _, m := range memories {
		byHash[m.ContentHash] = m
	}

	connections, err := c.relationships.ConnectionCounts(ctx)
	if err != nil {
		log.Warn("connection counts unavailable, continuing with zero connection boost", "error", err)
		connections = map[string]int{}
	}
	scores := c.calculator.Score(memories, now, connections, nil)
	if !dryRun {
		if err := c.persistRelevance(ctx, scores, now); err != nil {
			report.Errors = append(report.Errors, err.Error())
		}
	}

	var clusters []Cluster
	if c.cfg.ClusteringEnabled && checkHorizonRequirements(horizon, "clustering") {
		log.Info("consolidation phase 2/5: clustering", "horizon", horizon)
		clusters = clusterByTag(memories)
		report.ClustersCreated = len(clusters)
	}

	if c.cfg.AssociationsEnabled && checkHorizonRequirements(horizon, "associations") {
		if dryRun {
			log.Info("consolidation phase 3/5: association discovery skipped (dry run)", "horizon", horizon)
		} else {
			log.Info("consolidation phase 3/5: association discovery", "horizon", horizon)
			discovered, err := c.relationships.Discover(ctx, &relationships.DiscoverOptions{Limit: len(memories)})
			if err != nil {
				report.Errors = append(report.Errors, err.Error())
			} else {
				report.AssociationsFound = len(discovered)
			}
		}
	}

	if c.cfg.CompressionEnabled && len(clusters) > 0 && checkHorizonRequirements(horizon, "compression") {
		if dryRun {
			log.Info("consolidation phase 4/5: compression skipped (dry run)", "horizon", horizon)
		} else {
			log.Info("consolidation phase 4/5: compression", "horizon", horizon)
			compressed, err := compressClusters(ctx, c.storage, clusters)
			if err != nil {
				report.Errors = append(report.Errors, err.Error())
			}
			report.MemoriesCompressed = len(compressed)
		}
	}

	if c.cfg.ForgettingEnabled && checkHorizonRequirements(horizon, "forgetting") {
		if dryRun {
			log.Info("consolidation phase 5/5: forgetting preview (dry run)", "horizon", horizon)
			for _, r := range previewForgetting(byHash, scores, c.cfg.Forgetting) {
				switch r.Action {
				case ActionArchived:
					report.MemoriesArchived++
				case ActionDeleted:
					report.MemoriesDeleted++
				}
			}
		} else {
			log.Info("consolidation phase 5/5: forgetting", "horizon", horizon)
			results, err := applyForgetting(ctx, c.storage, byHash, scores, c.cfg.Forgetting, now)
			if err != nil {
				report.Errors = append(report.Errors, err.Error())
			}
			for _, r := range results {
				switch r.Action {
				case ActionArchived:
					report.MemoriesArchived++
				case ActionDeleted:
					report.MemoriesDeleted++
				}
			}
		}
	}

	if c.cfg.IncrementalMode && !dryRun {
		if err := c.stampConsolidated(ctx, memories, now); err != nil {
			report.Errors = append(report.Errors, err.Error())
		}
	}

	report.EndTime = c.now()
	c.stats.record(report)
	return report, nil
}

// memoriesForHorizon implements the retrieved _get_memories_for_horizon:
// daily pulls a narrow recent time-range; longer horizons pull everything,
// optionally age-filtered, then (in incremental mode) sorted oldest-first
// by last_consolidated_at and capped to BatchSize.
func (c *Consolidator) memoriesForHorizon(ctx context.Context, horizon string, now time.Time) ([]*models.Memory, error) {
	hc := HorizonConfigs[horizon]

	if horizon == "daily" {
		cutoff := hc.CutoffDays
		if cutoff == 0 {
			cutoff = 2
		}
		start := now.AddDate(0, 0, -cutoff)
		return c.storage.GetMemoriesByTimeRange(ctx, float64(start.Unix()), float64(now.Unix()))
	}

	memories, err := c.storage.GetAllMemories(ctx, storage.ListFilter{})
	if err != nil {
		return nil, err
	}

	if hc.CutoffDays > 0 {
		cutoff := now.AddDate(0, 0, -hc.CutoffDays)
		memories = filterMemoriesByAge(memories, float64(cutoff.Unix()))
	}

	if c.cfg.IncrementalMode {
		sort.Slice(memories, func(i, j int) bool {
			return consolidationSortKey(memories[i]) < consolidationSortKey(memories[j])
		})
		if len(memories) > c.cfg.BatchSize {
			log.Info("incremental mode batching", "total", len(memories), "batch_size", c.cfg.BatchSize)
			memories = memories[:c.cfg.BatchSize]
		}
	}
	return memories, nil
}

func consolidationSortKey(m *models.Memory) float64 {
	if v, ok := m.Metadata[models.MetaLastConsolidatedAt]; ok {
		if f, ok := v.AsFloat(); ok {
			return f
		}
	}
	return m.CreatedAt
}

// persistRelevance writes each memory's freshly computed relevance back
// into its metadata (spec §4.6 "Recompute decay, boosts, persist into
// metadata"), via a single UpdateMemoriesBatch call.
func (c *Consolidator) persistRelevance(ctx context.Context, scores []RelevanceScore, now time.Time) error {
	updates := make(map[string]models.Metadata, len(scores))
	for _, s := range scores {
		updates[s.MemoryHash] = models.Metadata{
			models.MetaRelevanceScore: models.NumberValue(s.TotalScore),
		}
	}
	_, err := c.storage.UpdateMemoriesBatch(ctx, updates)
	return err
}

// stampConsolidated writes metadata.last_consolidated_at = now for every
// processed memory in one batch call (spec §4.6: "50-100x cheaper than
// per-row updates").
func (c *Consolidator) stampConsolidated(ctx context.Context, memories []*models.Memory, now time.Time) error {
	updates := make(map[string]models.Metadata, len(memories))
	for _, m := range memories {
		updates[m.ContentHash] = models.Metadata{
			models.MetaLastConsolidatedAt: models.NumberValue(float64(now.Unix())),
		}
	}
	_, err := c.storage.UpdateMemoriesBatch(ctx, updates)
	return err
}
