package cloud

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/engramhq/engram/internal/logging"
	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/storage"
)

var log = logging.GetLogger("cloud")

// Config configures the cloud secondary backend's three sub-clients.
type Config struct {
	VectorURL     string
	RelationalURL string
	ObjectURL     string

	Collection string
	Table      string
	Bucket     string

	Dimension             int
	LargeContentThreshold int
	MaxRetries            int
	SchemaVerifyAttempts  int
	SchemaVerifyDelay     time.Duration
	Timeout               time.Duration
}

// DefaultConfig mirrors the teacher's Qdrant defaults, extended with the
// relational/object endpoints and migration tuning spec §4.4 introduces.
func DefaultConfig() Config {
	return Config{
		VectorURL:             "http://localhost:6333",
		RelationalURL:         "http://localhost:8081",
		ObjectURL:             "http://localhost:9000",
		Collection:            "engram-memories",
		Table:                 "memories",
		Bucket:                "engram-content",
		Dimension:             768,
		LargeContentThreshold: 100_000,
		MaxRetries:            3,
		SchemaVerifyAttempts:  5,
		SchemaVerifyDelay:     2 * time.Second,
		Timeout:               30 * time.Second,
	}
}

// Backend is the cloud secondary storage.Backend implementation (spec
// §4.4): an HTTP client against vector, relational and object services.
type Backend struct {
	cfg      Config
	vector   *vectorClient
	relation *relationalClient
	object   *objectClient
}

var _ storage.Backend = (*Backend)(nil)

// New constructs the cloud secondary backend from Config.
func New(cfg Config) *Backend {
	client := &http.Client{Timeout: cfg.Timeout}
	return &Backend{
		cfg:      cfg,
		vector:   newVectorClient(cfg.VectorURL, cfg.Collection, cfg.Dimension, client),
		relation: newRelationalClient(cfg.RelationalURL, cfg.Table, client),
		object:   newObjectClient(cfg.ObjectURL, cfg.Bucket, client),
	}
}

// Initialize creates the vector collection and runs the additive schema
// migration described in spec §4.4.
func (b *Backend) Initialize(ctx context.Context) error {
	if err := b.vector.initCollection(ctx); err != nil {
		return fmt.Errorf("init vector collection: %w", err)
	}

	err := b.relation.ensureColumns(ctx, map[string]string{
		"tags":       "TEXT",
		"deleted_at": "REAL",
	}, b.cfg.SchemaVerifyAttempts, b.cfg.SchemaVerifyDelay)
	if err != nil {
		return fmt.Errorf("ensure remote schema: %w", err)
	}
	return nil
}

func (b *Backend) MaxContentLength() *int { return nil }
func (b *Backend) SupportsChunking() bool { return true }

func (b *Backend) toRow(m *models.Memory) (remoteRow, error) {
	metaJSON, err := models.MarshalMetadataJSON(m.Metadata)
	if err != nil {
		return remoteRow{}, err
	}
	row := remoteRow{
		ContentHash:  m.ContentHash,
		MemoryType:   m.MemoryType,
		Tags:         models.SerializeTags(m.Tags),
		Metadata:     metaJSON,
		CreatedAt:    m.CreatedAt,
		CreatedAtISO: m.CreatedAtISO,
		UpdatedAt:    m.UpdatedAt,
		UpdatedAtISO: m.UpdatedAtISO,
		DeletedAt:    m.DeletedAt,
	}

	if len(m.Content) >= b.cfg.LargeContentThreshold {
		uri, err := b.object.put(context.Background(), m.ContentHash, m.Content)
		if err != nil {
			return remoteRow{}, fmt.Errorf("offload oversize content: %w", err)
		}
		row.ContentURI = uri
	} else {
		row.Content = m.Content
	}
	return row, nil
}

func (b *Backend) fromRow(ctx context.Context, row *remoteRow) (*models.Memory, error) {
	content := row.Content
	if row.ContentURI != "" {
		c, err := b.object.get(ctx, row.ContentURI)
		if err != nil {
			return nil, fmt.Errorf("dereference object content: %w", err)
		}
		content = c
	}

	meta, err := models.ParseMetadataJSON(row.Metadata)
	if err != nil {
		return nil, err
	}

	return &models.Memory{
		ContentHash:  row.ContentHash,
		Content:      content,
		MemoryType:   row.MemoryType,
		Tags:         models.ParseTags(row.Tags),
		Metadata:     meta,
		CreatedAt:    row.CreatedAt,
		CreatedAtISO: row.CreatedAtISO,
		UpdatedAt:    row.UpdatedAt,
		UpdatedAtISO: row.UpdatedAtISO,
		DeletedAt:    row.DeletedAt,
	}, nil
}

func (b *Backend) Store(ctx context.Context, m *models.Memory) (storage.StoreOutcome, error) {
	if m.ContentHash == "" {
		m.ContentHash = models.ContentHash(m.Content)
	}

	if existing, err := b.relation.getRow(ctx, m.ContentHash); err == nil && existing != nil && existing.DeletedAt == nil {
		return storage.StoreOutcome{OK: false, Message: "Duplicate content detected"}, nil
	}

	row, err := b.toRow(m)
	if err != nil {
		return storage.StoreOutcome{}, err
	}
	if err := b.relation.upsertRow(ctx, row); err != nil {
		if classify(err) == classLimit {
			return storage.StoreOutcome{OK: false, Message: fmt.Sprintf("cloud capacity exceeded: %v", err)}, nil
		}
		return storage.StoreOutcome{}, err
	}

	if len(m.Embedding) > 0 {
		payload := map[string]any{"content_hash": m.ContentHash, "memory_type": m.MemoryType}
		if err := b.vector.upsert(ctx, []vectorPoint{{ID: m.ContentHash, Vector: m.Embedding, Payload: payload}}); err != nil {
			log.Warn("vector upsert failed, row stored without embedding", "hash", m.ContentHash, "error", err)
		}
	}

	return storage.StoreOutcome{OK: true, Message: "stored"}, nil
}

func (b *Backend) StoreBatch(ctx context.Context, ms []*models.Memory) ([]storage.StoreOutcome, error) {
	out := make([]storage.StoreOutcome, len(ms))
	for i, m := range ms {
		o, err := b.Store(ctx, m)
		if err != nil {
			out[i] = storage.StoreOutcome{OK: false, Message: err.Error()}
			continue
		}
		out[i] = o
	}
	return out, nil
}

func (b *Backend) Retrieve(ctx context.Context, query string, n int) ([]storage.Result, error) {
	return nil, fmt.Errorf("cloud backend requires a pre-computed query vector; use RetrieveVector")
}

// RetrieveVector runs the vector search directly; the hybrid engine embeds
// the query once and reuses the vector for both backends when both are
// consulted for force-sync comparisons.
func (b *Backend) RetrieveVector(ctx context.Context, vector []float32, n int) ([]storage.Result, error) {
	hits, err := b.vector.search(ctx, vector, n)
	if err != nil {
		return nil, err
	}
	out := make([]storage.Result, 0, len(hits))
	for _, h := range hits {
		row, err := b.relation.getRow(ctx, h.ID)
		if err != nil || row == nil {
			continue
		}
		m, err := b.fromRow(ctx, row)
		if err != nil {
			continue
		}
		out = append(out, storage.Result{Memory: m, RelevanceScore: h.Score})
	}
	return out, nil
}

func (b *Backend) RetrieveWithQualityBoost(ctx context.Context, query string, n int, weight float64) ([]storage.Result, error) {
	return nil, fmt.Errorf("cloud backend does not rerank locally; quality boost is applied by the hybrid engine's primary read path")
}

func (b *Backend) SearchByTag(ctx context.Context, tags []string, timeStart *float64) ([]*models.Memory, error) {
	return b.SearchByTags(ctx, tags, storage.TagMatchAny, timeStart, nil)
}

func (b *Backend) SearchByTags(ctx context.Context, tags []string, match storage.TagMatch, timeStart, timeEnd *float64) ([]*models.Memory, error) {
	all, err := b.enumerateAll(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		want[models.CleanTag(t)] = struct{}{}
	}

	var out []*models.Memory
	for _, m := range all {
		if timeStart != nil && m.CreatedAt < *timeStart {
			continue
		}
		if timeEnd != nil && m.CreatedAt > *timeEnd {
			continue
		}
		if !rowTagsMatch(m.Tags, want, match) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func rowTagsMatch(have []string, want map[string]struct{}, match storage.TagMatch) bool {
	haveSet := make(map[string]struct{}, len(have))
	for _, t := range have {
		haveSet[t] = struct{}{}
	}
	if match == storage.TagMatchAll {
		for t := range want {
			if _, ok := haveSet[t]; !ok {
				return false
			}
		}
		return true
	}
	if len(want) == 0 {
		return true
	}
	for t := range want {
		if _, ok := haveSet[t]; ok {
			return true
		}
	}
	return false
}

func (b *Backend) SearchByTagChronological(ctx context.Context, tags []string, limit, offset int) ([]*models.Memory, error) {
	ms, err := b.SearchByTags(ctx, tags, storage.TagMatchAny, nil, nil)
	if err != nil {
		return nil, err
	}
	if offset >= len(ms) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(ms) {
		end = len(ms)
	}
	return ms[offset:end], nil
}

func (b *Backend) Delete(ctx context.Context, contentHash string) (storage.StoreOutcome, error) {
	row, err := b.relation.getRow(ctx, contentHash)
	if err != nil {
		return storage.StoreOutcome{}, err
	}
	if row == nil {
		return storage.StoreOutcome{OK: false, Message: "not found"}, nil
	}
	now := float64(time.Now().UnixNano()) / 1e9
	row.DeletedAt = &now
	row.Content = ""
	row.ContentURI = ""
	if err := b.relation.upsertRow(ctx, *row); err != nil {
		return storage.StoreOutcome{}, err
	}
	if err := b.vector.delete(ctx, []string{contentHash}); err != nil {
		log.Warn("vector delete failed during soft-delete", "hash", contentHash, "error", err)
	}
	return storage.StoreOutcome{OK: true, Message: "deleted"}, nil
}

func (b *Backend) DeleteByTag(ctx context.Context, tag string) (int, []string, error) {
	return b.DeleteByTags(ctx, []string{tag})
}

func (b *Backend) DeleteByTags(ctx context.Context, tags []string) (int, []string, error) {
	ms, err := b.SearchByTags(ctx, tags, storage.TagMatchAny, nil, nil)
	if err != nil {
		return 0, nil, err
	}
	var hashes []string
	for _, m := range ms {
		if out, err := b.Delete(ctx, m.ContentHash); err == nil && out.OK {
			hashes = append(hashes, m.ContentHash)
		}
	}
	return len(hashes), hashes, nil
}

func (b *Backend) DeleteMemories(ctx context.Context, filter storage.DeleteFilter) ([]string, error) {
	if filter.ContentHash != "" {
		if out, err := b.Delete(ctx, filter.ContentHash); err != nil {
			return nil, err
		} else if out.OK {
			return []string{filter.ContentHash}, nil
		}
		return nil, nil
	}
	if len(filter.Tags) == 0 && filter.Before == nil && filter.After == nil {
		return nil, fmt.Errorf("delete_memories requires content_hash or at least one of tags/before/after")
	}
	match := filter.TagMatch
	if match == "" {
		match = storage.TagMatchAny
	}
	ms, err := b.SearchByTags(ctx, filter.Tags, match, filter.After, filter.Before)
	if err != nil {
		return nil, err
	}
	if filter.DryRun {
		hashes := make([]string, len(ms))
		for i, m := range ms {
			hashes[i] = m.ContentHash
		}
		return hashes, nil
	}
	var deleted []string
	for _, m := range ms {
		if out, err := b.Delete(ctx, m.ContentHash); err == nil && out.OK {
			deleted = append(deleted, m.ContentHash)
		}
	}
	return deleted, nil
}

func (b *Backend) UpdateMemoryMetadata(ctx context.Context, contentHash string, tags []string, memoryType string, metadata models.Metadata, preserveTimestamps bool) (storage.StoreOutcome, error) {
	row, err := b.relation.getRow(ctx, contentHash)
	if err != nil {
		return storage.StoreOutcome{}, err
	}
	if row == nil {
		return storage.StoreOutcome{OK: false, Message: "not found"}, nil
	}

	if tags != nil {
		row.Tags = models.SerializeTags(tags)
	}
	if memoryType != "" {
		row.MemoryType = memoryType
	}
	if metadata != nil {
		existing, err := models.ParseMetadataJSON(row.Metadata)
		if err != nil {
			return storage.StoreOutcome{}, err
		}
		for k, v := range metadata {
			existing[k] = v
		}
		metaJSON, err := models.MarshalMetadataJSON(existing)
		if err != nil {
			return storage.StoreOutcome{}, err
		}
		row.Metadata = metaJSON
	}
	if !preserveTimestamps {
		now := float64(time.Now().UnixNano()) / 1e9
		row.UpdatedAt = now
		row.UpdatedAtISO = time.Now().UTC().Format(time.RFC3339)
	}

	if err := b.relation.upsertRow(ctx, *row); err != nil {
		return storage.StoreOutcome{}, err
	}
	return storage.StoreOutcome{OK: true, Message: "updated"}, nil
}

func (b *Backend) UpdateMemoriesBatch(ctx context.Context, updates map[string]models.Metadata) ([]bool, error) {
	out := make([]bool, 0, len(updates))
	for hash, meta := range updates {
		res, err := b.UpdateMemoryMetadata(ctx, hash, nil, "", meta, true)
		if err != nil {
			return nil, err
		}
		out = append(out, res.OK)
	}
	return out, nil
}

func (b *Backend) GetByHash(ctx context.Context, hash string) (*models.Memory, error) {
	row, err := b.relation.getRow(ctx, hash)
	if err != nil {
		return nil, err
	}
	if row == nil || row.DeletedAt != nil {
		return nil, nil
	}
	return b.fromRow(ctx, row)
}

func (b *Backend) GetByExactContent(ctx context.Context, content string) ([]*models.Memory, error) {
	all, err := b.GetAllMemories(ctx, storage.ListFilter{})
	if err != nil {
		return nil, err
	}
	var out []*models.Memory
	for _, m := range all {
		if m.Content == content {
			out = append(out, m)
		}
	}
	return out, nil
}

// enumerateAll walks every live row via cursor pagination (spec §4.4
// "Cursor-based enumeration").
func (b *Backend) enumerateAll(ctx context.Context) ([]*models.Memory, error) {
	var out []*models.Memory
	cursor := float64(time.Now().Unix()) + 1
	const pageSize = 100
	for {
		page, err := b.relation.listPage(ctx, pageSize, cursor)
		if err != nil {
			return nil, err
		}
		if len(page.Rows) == 0 {
			break
		}
		for _, row := range page.Rows {
			if row.DeletedAt != nil {
				continue
			}
			m, err := b.fromRow(ctx, &row)
			if err != nil {
				continue
			}
			out = append(out, m)
			if row.CreatedAt < cursor {
				cursor = row.CreatedAt
			}
		}
		if !page.HasMore {
			break
		}
	}
	return out, nil
}

func (b *Backend) GetAllMemories(ctx context.Context, filter storage.ListFilter) ([]*models.Memory, error) {
	all, err := b.enumerateAll(ctx)
	if err != nil {
		return nil, err
	}
	var filtered []*models.Memory
	for _, m := range all {
		if filter.MemoryType != "" && m.MemoryType != filter.MemoryType {
			continue
		}
		filtered = append(filtered, m)
	}
	if filter.Offset >= len(filtered) {
		return nil, nil
	}
	end := len(filtered)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return filtered[filter.Offset:end], nil
}

func (b *Backend) CountAllMemories(ctx context.Context, memoryType string, tags []string) (int, error) {
	if memoryType == "" && len(tags) == 0 {
		return b.relation.count(ctx)
	}
	ms, err := b.GetAllMemories(ctx, storage.ListFilter{MemoryType: memoryType, Tags: tags})
	if err != nil {
		return 0, err
	}
	return len(ms), nil
}

func (b *Backend) GetMemoriesByTimeRange(ctx context.Context, start, end float64) ([]*models.Memory, error) {
	all, err := b.enumerateAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*models.Memory
	for _, m := range all {
		if m.CreatedAt >= start && m.CreatedAt <= end {
			out = append(out, m)
		}
	}
	return out, nil
}

func (b *Backend) GetMemoryTimestamps(ctx context.Context, days int) ([]float64, error) {
	all, err := b.enumerateAll(ctx)
	if err != nil {
		return nil, err
	}
	var cutoff float64
	if days > 0 {
		cutoff = float64(time.Now().Unix()) - float64(days)*86400
	}
	var out []float64
	for _, m := range all {
		if days > 0 && m.CreatedAt < cutoff {
			continue
		}
		out = append(out, m.CreatedAt)
	}
	return out, nil
}

func (b *Backend) SearchMemories(ctx context.Context, q storage.SearchQuery) (storage.SearchOutcome, error) {
	ms, err := b.SearchByTags(ctx, q.Tags, q.TagMatch, q.After, q.Before)
	if err != nil {
		return storage.SearchOutcome{}, err
	}
	results := make([]storage.Result, len(ms))
	for i, m := range ms {
		results[i] = storage.Result{Memory: m, RelevanceScore: 1}
	}
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return storage.SearchOutcome{Results: results, PreFilterCount: len(ms), PostFilterCount: len(results)}, nil
}

func (b *Backend) IsDeleted(ctx context.Context, hash string) (bool, error) {
	row, err := b.relation.getRow(ctx, hash)
	if err != nil {
		return false, err
	}
	return row != nil && row.DeletedAt != nil, nil
}

func (b *Backend) PurgeDeleted(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := float64(time.Now().Unix()) - float64(olderThanDays)*86400
	all, err := b.enumerateDeleted(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, row := range all {
		if row.DeletedAt != nil && *row.DeletedAt < cutoff {
			if err := b.relation.deleteRow(ctx, row.ContentHash); err == nil {
				n++
			}
		}
	}
	return n, nil
}

func (b *Backend) enumerateDeleted(ctx context.Context) ([]remoteRow, error) {
	var out []remoteRow
	cursor := float64(time.Now().Unix()) + 1
	const pageSize = 100
	for {
		page, err := b.relation.listPage(ctx, pageSize, cursor)
		if err != nil {
			return nil, err
		}
		if len(page.Rows) == 0 {
			break
		}
		for _, row := range page.Rows {
			if row.DeletedAt != nil {
				out = append(out, row)
			}
			if row.CreatedAt < cursor {
				cursor = row.CreatedAt
			}
		}
		if !page.HasMore {
			break
		}
	}
	return out, nil
}

func (b *Backend) GetStats(ctx context.Context) (storage.Stats, error) {
	total, err := b.relation.count(ctx)
	if err != nil {
		return storage.Stats{}, err
	}
	vectorCount, err := b.vector.count(ctx)
	if err != nil {
		log.Warn("vector count unavailable for cloud stats", "error", err)
	}
	return storage.Stats{
		Backend:       "cloud",
		TotalMemories: total,
		SyncStatus:    map[string]any{"vector_count": vectorCount},
	}, nil
}
