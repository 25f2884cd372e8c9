package consolidation

import (
	"math"
	"strings"
	"time"

	"github.com/engramhq/engram/internal/models"
)

// RelevanceScore mirrors decay.py's RelevanceScore dataclass (also present
// at the model layer as models.RelevanceScore; this local copy carries the
// richer metadata breakdown the calculator produces internally).
type RelevanceScore struct {
	MemoryHash      string
	TotalScore      float64
	BaseImportance  float64
	DecayFactor     float64
	ConnectionBoost float64
	AccessBoost     float64
	AgeDays         float64
	MemoryType      string
	RetentionDays   int
	ConnectionCount int
	IsProtected     bool
	QualityScore    float64
	QualityMultiplier float64
}

// defaultRetentionDays mirrors the Python config's per-type retention_periods
// default fallback of 30 days for unlisted types.
const defaultRetentionDays = 30

// retentionPeriods gives memory-type-specific retention windows; tighter for
// transient observation noise, longer for durable decisions and learnings.
var retentionPeriods = map[string]int{
	"observation": 7,
	"decision":    60,
	"learning":    90,
	"error":       30,
	"pattern":     60,
}

// tagImportance mirrors decay.py's tag_importance lookup table used when a
// memory carries no explicit importance_score metadata.
var tagImportance = map[string]float64{
	"critical":  2.0,
	"important": 1.5,
	"reference": 1.3,
	"urgent":    1.4,
	"project":   1.2,
	"personal":  1.1,
	"temporary": 0.7,
	"draft":     0.8,
	"note":      0.9,
}

// RelevanceCalculator computes exponential-decay relevance scores, ported
// from the retrieved ExponentialDecayCalculator (consolidation/decay.py).
type RelevanceCalculator struct {
	retentionPeriods map[string]int
}

// NewRelevanceCalculator builds a calculator using the package default
// retention table.
func NewRelevanceCalculator() *RelevanceCalculator {
	return &RelevanceCalculator{retentionPeriods: retentionPeriods}
}

// Score computes relevance scores for every memory, given the connection
// counts (source+target association tallies keyed by content hash) and
// last-accessed times (falls back to UpdatedAt when absent, matching the
// Python fallback to memory.updated_at).
func (c *RelevanceCalculator) Score(memories []*models.Memory, now time.Time, connections map[string]int, accessedAt map[string]time.Time) []RelevanceScore {
	scores := make([]RelevanceScore, 0, len(memories))
	for _, m := range memories {
		scores = append(scores, c.scoreOne(m, now, connections, accessedAt))
	}
	return scores
}

func (c *RelevanceCalculator) scoreOne(m *models.Memory, now time.Time, connections map[string]int, accessedAt map[string]time.Time) RelevanceScore {
	ageDays := ageInDays(m, now)
	baseImportance := c.baseImportance(m)

	memType := m.MemoryType
	retention, ok := c.retentionPeriods[memType]
	if !ok {
		retention = defaultRetentionDays
	}

	decayFactor := math.Exp(-ageDays / float64(retention))

	connectionCount := connections[m.ContentHash]
	connectionBoost := 1 + 0.1*float64(connectionCount)

	accessBoost := c.accessBoost(m, accessedAt, now)

	qualityScore := m.QualityScore
	qualityMultiplier := 1.0 + qualityScore*0.5

	total := baseImportance * decayFactor * connectionBoost * accessBoost * qualityMultiplier
	protected := m.IsProtected()
	if protected && total < 0.5 {
		total = 0.5
	}

	return RelevanceScore{
		MemoryHash:        m.ContentHash,
		TotalScore:        total,
		BaseImportance:    baseImportance,
		DecayFactor:       decayFactor,
		ConnectionBoost:   connectionBoost,
		AccessBoost:       accessBoost,
		AgeDays:           ageDays,
		MemoryType:        memType,
		RetentionDays:     retention,
		ConnectionCount:   connectionCount,
		IsProtected:       protected,
		QualityScore:      qualityScore,
		QualityMultiplier: qualityMultiplier,
	}
}

func ageInDays(m *models.Memory, now time.Time) float64 {
	created := time.Unix(int64(m.CreatedAt), 0).UTC()
	return now.Sub(created).Hours() / 24
}

// baseImportance implements decay.py's priority order: explicit
// importance_score metadata, else the highest matching tag_importance
// entry, else 1.0.
func (c *RelevanceCalculator) baseImportance(m *models.Memory) float64 {
	if v, ok := m.Metadata[models.MetaImportanceScore]; ok {
		if f, ok := v.AsFloat(); ok {
			return clamp(f, 0, 2)
		}
	}

	max := 1.0
	for _, tag := range m.Tags {
		if score, ok := tagImportance[strings.ToLower(tag)]; ok && score > max {
			max = score
		}
	}
	return max
}

// accessBoost implements decay.py's tiered recency boost: 1.5x within a
// day, 1.2x within a week, 1.1x within a month, 1.0x otherwise.
func (c *RelevanceCalculator) accessBoost(m *models.Memory, accessedAt map[string]time.Time, now time.Time) float64 {
	last, ok := accessedAt[m.ContentHash]
	if !ok {
		if m.UpdatedAt == 0 {
			return 1.0
		}
		last = time.Unix(int64(m.UpdatedAt), 0).UTC()
	}

	days := now.Sub(last).Hours() / 24
	switch {
	case days <= 1:
		return 1.5
	case days <= 7:
		return 1.2
	case days <= 30:
		return 1.1
	default:
		return 1.0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
