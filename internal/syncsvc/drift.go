package syncsvc

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/storage"
)

// DriftRecord describes one memory whose tags or memory type disagree
// between primary and secondary.
type DriftRecord struct {
	Hash    string
	Primary map[string]string
	Cloud   map[string]string
}

// DriftReport summarizes one drift scan (spec's operator-facing "check_drift").
type DriftReport struct {
	Sampled int
	Drifted []DriftRecord
	Applied bool // true when mismatches were written back to the secondary
}

// DetectDrift samples up to batchSize live memories from primary and diffs
// their tags/type against the secondary's copy of the same content hash.
// With dryRun false, primary's view is applied to the secondary for every
// mismatch found (spec §4.5's "reconciles metadata").
//
// period, when non-zero, restricts the sample to memories created within
// the last period instead of the newest batchSize rows; it is always
// applied as a real SQL-backed filter, never silently dropped (spec's
// reference implementation sometimes ignores this, which is treated as a
// defect rather than a behavior to copy).
func (s *Service) DetectDrift(ctx context.Context, primary storage.Backend, batchSize int, period time.Duration, dryRun bool) (DriftReport, error) {
	var sample []*models.Memory
	var err error
	if period > 0 {
		now := float64(time.Now().Unix())
		sample, err = primary.GetMemoriesByTimeRange(ctx, now-period.Seconds(), now)
		if err != nil {
			return DriftReport{}, fmt.Errorf("sampling primary by time range: %w", err)
		}
		if len(sample) > batchSize {
			sample = sample[:batchSize]
		}
	} else {
		sample, err = primary.GetAllMemories(ctx, storage.ListFilter{Limit: batchSize})
		if err != nil {
			return DriftReport{}, fmt.Errorf("sampling primary: %w", err)
		}
	}

	report := DriftReport{Sampled: len(sample)}
	for _, m := range sample {
		if !m.IsLive() {
			continue
		}
		cloudMemory, err := s.secondary.GetByHash(ctx, m.ContentHash)
		if err != nil || cloudMemory == nil {
			continue // not yet synced, not drift
		}

		if rec, drifted := diffMemory(m, cloudMemory); drifted {
			report.Drifted = append(report.Drifted, rec)
		}
	}

	if !dryRun && len(report.Drifted) > 0 {
		for i, rec := range report.Drifted {
			var m *models.Memory
			for _, candidate := range sample {
				if candidate.ContentHash == rec.Hash {
					m = candidate
					break
				}
			}
			if m == nil {
				continue
			}
			if _, err := s.secondary.UpdateMemoryMetadata(ctx, m.ContentHash, m.Tags, m.MemoryType, m.Metadata, true); err != nil {
				log.Warn("drift reconciliation failed", "hash", rec.Hash, "error", err)
				continue
			}
			report.Drifted[i] = rec
		}
		report.Applied = true
	}

	return report, nil
}

func diffMemory(primary, cloud *models.Memory) (DriftRecord, bool) {
	pTags := sortedTags(primary.Tags)
	cTags := sortedTags(cloud.Tags)

	drifted := primary.MemoryType != cloud.MemoryType || joinTags(pTags) != joinTags(cTags)
	if !drifted {
		return DriftRecord{}, false
	}

	return DriftRecord{
		Hash: primary.ContentHash,
		Primary: map[string]string{
			"memory_type": primary.MemoryType,
			"tags":        joinTags(pTags),
		},
		Cloud: map[string]string{
			"memory_type": cloud.MemoryType,
			"tags":        joinTags(cTags),
		},
	}, true
}

func sortedTags(tags []string) []string {
	out := make([]string, len(tags))
	copy(out, tags)
	sort.Strings(out)
	return out
}

func joinTags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}
