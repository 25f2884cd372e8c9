// Package storage defines the uniform contract every backend (primary
// embedded, cloud secondary, hybrid) must satisfy (spec §4.1).
package storage

import (
	"context"

	"github.com/engramhq/engram/internal/models"
)

// SearchMode selects the retrieval strategy for SearchMemories (spec §4.1).
type SearchMode string

const (
	SearchSemantic SearchMode = "semantic"
	SearchExact    SearchMode = "exact"
	SearchHybrid   SearchMode = "hybrid"
)

// TagMatch selects OR vs AND semantics for tag filters.
type TagMatch string

const (
	TagMatchAny TagMatch = "any"
	TagMatchAll TagMatch = "all"
)

// Result wraps a memory with its relevance score and optional debug info
// (spec §4.1 retrieve()).
type Result struct {
	Memory        *models.Memory
	RelevanceScore float64
	Debug         map[string]any
}

// StoreOutcome is the (ok, message) pair spec §4.1 asks store/delete/update
// to return instead of raising for user-correctable conditions.
type StoreOutcome struct {
	OK      bool
	Message string
}

// ListFilter parameters for get_all_memories / count_all_memories.
type ListFilter struct {
	MemoryType string
	Tags       []string
	Limit      int
	Offset     int
}

// DeleteFilter is the unified delete_memories filter (spec §4.1): exactly
// one of ContentHash or the {Tags,...} group must be set.
type DeleteFilter struct {
	ContentHash string
	Tags        []string
	TagMatch    TagMatch
	Before      *float64
	After       *float64
	DryRun      bool
}

// SearchQuery is the unified search_memories request (spec §4.1).
type SearchQuery struct {
	Query       string
	Mode        SearchMode
	TimeExpr    string
	After       *float64
	Before      *float64
	Tags        []string
	TagMatch    TagMatch
	QualityBoost bool
	QualityWeight float64
	Limit       int
	Debug       bool
}

// SearchOutcome carries results plus the debug counters spec §4.1 names.
type SearchOutcome struct {
	Results         []Result
	PreFilterCount  int
	PostFilterCount int
}

// Stats is the consumer-facing get_stats() shape (spec §6).
type Stats struct {
	Backend           string
	TotalMemories     int
	UniqueTags        int
	MemoriesThisWeek  int
	MemoriesThisMonth int
	SizeBytes         int64
	SyncStatus        map[string]any
}

// Backend is the uniform storage contract (spec §4.1). Every concrete
// backend (primary, cloud secondary) and the hybrid composition implements
// it in full.
type Backend interface {
	Initialize(ctx context.Context) error

	Store(ctx context.Context, m *models.Memory) (StoreOutcome, error)
	StoreBatch(ctx context.Context, ms []*models.Memory) ([]StoreOutcome, error)

	Retrieve(ctx context.Context, query string, n int) ([]Result, error)
	RetrieveWithQualityBoost(ctx context.Context, query string, n int, weight float64) ([]Result, error)

	SearchByTag(ctx context.Context, tags []string, timeStart *float64) ([]*models.Memory, error)
	SearchByTags(ctx context.Context, tags []string, match TagMatch, timeStart, timeEnd *float64) ([]*models.Memory, error)
	SearchByTagChronological(ctx context.Context, tags []string, limit, offset int) ([]*models.Memory, error)

	Delete(ctx context.Context, contentHash string) (StoreOutcome, error)
	DeleteByTag(ctx context.Context, tag string) (int, []string, error)
	DeleteByTags(ctx context.Context, tags []string) (int, []string, error)
	DeleteMemories(ctx context.Context, filter DeleteFilter) ([]string, error)

	UpdateMemoryMetadata(ctx context.Context, contentHash string, tags []string, memoryType string, metadata models.Metadata, preserveTimestamps bool) (StoreOutcome, error)
	UpdateMemoriesBatch(ctx context.Context, updates map[string]models.Metadata) ([]bool, error)

	GetByHash(ctx context.Context, hash string) (*models.Memory, error)
	GetByExactContent(ctx context.Context, content string) ([]*models.Memory, error)
	GetAllMemories(ctx context.Context, filter ListFilter) ([]*models.Memory, error)
	CountAllMemories(ctx context.Context, memoryType string, tags []string) (int, error)
	GetMemoriesByTimeRange(ctx context.Context, start, end float64) ([]*models.Memory, error)
	GetMemoryTimestamps(ctx context.Context, days int) ([]float64, error)

	SearchMemories(ctx context.Context, q SearchQuery) (SearchOutcome, error)

	IsDeleted(ctx context.Context, hash string) (bool, error)
	PurgeDeleted(ctx context.Context, olderThanDays int) (int, error)

	GetStats(ctx context.Context) (Stats, error)

	MaxContentLength() *int
	SupportsChunking() bool
}
