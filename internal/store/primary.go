package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/engramhq/engram/internal/embed"
	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/splitter"
	"github.com/engramhq/engram/internal/storage"
)

// Primary is the primary embedded backend (spec §4.2): SQLite metadata +
// tags + tombstones, a brute-force in-process cosine scan over stored
// embeddings (the "local embedded vector database"), and an optional FTS5
// lexical index.
type Primary struct {
	db       *DB
	embedder embed.Generator
	splitCfg splitter.Config

	maxContentLength int
	autoSplit        bool

	keywordWeight  float64
	semanticWeight float64

	now func() time.Time
}

// Option configures a Primary backend.
type Option func(*Primary)

func WithMaxContentLength(n int) Option   { return func(p *Primary) { p.maxContentLength = n } }
func WithAutoSplit(on bool) Option        { return func(p *Primary) { p.autoSplit = on } }
func WithSplitConfig(c splitter.Config) Option { return func(p *Primary) { p.splitCfg = c } }
func WithHybridWeights(keyword, semantic float64) Option {
	return func(p *Primary) { p.keywordWeight = keyword; p.semanticWeight = semantic }
}
func WithClock(fn func() time.Time) Option { return func(p *Primary) { p.now = fn } }

// NewPrimary wraps an open *DB with the given embedding generator.
func NewPrimary(db *DB, embedder embed.Generator, opts ...Option) *Primary {
	p := &Primary{
		db:               db,
		embedder:         embedder,
		splitCfg:         splitter.DefaultConfig(),
		maxContentLength: 1_000_000,
		autoSplit:        true,
		keywordWeight:    0.3,
		semanticWeight:   0.7,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ storage.Backend = (*Primary)(nil)

func (p *Primary) Initialize(ctx context.Context) error {
	return p.db.InitSchema()
}

func (p *Primary) MaxContentLength() *int {
	n := p.maxContentLength
	return &n
}

func (p *Primary) SupportsChunking() bool { return true }

func nowFloat(t time.Time) float64 { return float64(t.UnixNano()) / 1e9 }

// Store inserts a memory; on content_hash collision it returns
// (false, "Duplicate content detected") rather than an error (spec §4.1).
func (p *Primary) Store(ctx context.Context, m *models.Memory) (storage.StoreOutcome, error) {
	if m.Content == "" {
		return storage.StoreOutcome{}, fmt.Errorf("content must not be empty")
	}

	if p.autoSplit && len(m.Content) > p.maxContentLength {
		return p.storeWithSplit(ctx, m)
	}

	return p.storeOne(ctx, m)
}

func (p *Primary) storeOne(ctx context.Context, m *models.Memory) (storage.StoreOutcome, error) {
	now := p.now()
	hash := models.ContentHash(m.Content)

	// Anti-resurrection: a store whose hash matches a local tombstone is
	// dropped (spec §4.5 "Anti-resurrection", invariant 6).
	if tombstoned, err := p.IsDeleted(ctx, hash); err != nil {
		return storage.StoreOutcome{}, err
	} else if tombstoned {
		return storage.StoreOutcome{OK: false, Message: "content hash is tombstoned, store dropped"}, nil
	}

	if existing, err := p.GetByHash(ctx, hash); err != nil {
		return storage.StoreOutcome{}, err
	} else if existing != nil {
		return storage.StoreOutcome{OK: false, Message: "Duplicate content detected"}, nil
	}

	m.ContentHash = hash
	if m.CreatedAt == 0 {
		m.CreatedAt = nowFloat(now)
		m.CreatedAtISO = now.UTC().Format(time.RFC3339)
	}
	m.UpdatedAt = m.CreatedAt
	m.UpdatedAtISO = m.CreatedAtISO

	for _, t := range m.Tags {
		if err := models.ValidateTag(t); err != nil {
			return storage.StoreOutcome{}, err
		}
	}

	if m.Embedding == nil && p.embedder != nil {
		vec, err := p.embedder.Embed(ctx, m.Content)
		if err == nil {
			m.Embedding = vec
		} else {
			log.Warn("embedding generation failed, storing without vector", "error", err)
		}
	}

	tx, err := p.db.Begin()
	if err != nil {
		return storage.StoreOutcome{}, err
	}
	defer tx.Rollback()

	metaJSON, err := models.MarshalMetadataJSON(m.Metadata)
	if err != nil {
		return storage.StoreOutcome{}, err
	}
	tagsStr := models.SerializeTags(m.Tags)

	res, err := tx.Exec(`INSERT INTO memories
		(content_hash, content, memory_type, tags, metadata, created_at, created_at_iso, updated_at, updated_at_iso, quality_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ContentHash, m.Content, m.MemoryType, tagsStr, metaJSON,
		m.CreatedAt, m.CreatedAtISO, m.UpdatedAt, m.UpdatedAtISO, m.QualityScore)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.StoreOutcome{OK: false, Message: "Duplicate content detected"}, nil
		}
		return storage.StoreOutcome{}, err
	}
	id, _ := res.LastInsertId()
	m.ID = id

	for _, t := range models.ParseTags(tagsStr) {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO memory_tags (memory_id, tag, created_at) VALUES (?, ?, ?)`, id, t, m.CreatedAt); err != nil {
			return storage.StoreOutcome{}, err
		}
	}

	if len(m.Embedding) > 0 {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO memory_embeddings (memory_hash, dim, vector) VALUES (?, ?, ?)`,
			m.ContentHash, len(m.Embedding), encodeVector(m.Embedding)); err != nil {
			return storage.StoreOutcome{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return storage.StoreOutcome{}, err
	}

	return storage.StoreOutcome{OK: true, Message: "stored"}, nil
}

// storeWithSplit splits oversize content and stores each sibling through
// storeOne, each in its own transaction (spec §4.2 "Content length policy").
// The siblings are not written as one unit: an error part-way returns with
// the siblings before it already stored.
func (p *Primary) storeWithSplit(ctx context.Context, m *models.Memory) (storage.StoreOutcome, error) {
	chunks, err := splitter.Split(m.Content, splitter.Config{
		MaxLength:          p.maxContentLength,
		Overlap:            p.splitCfg.Overlap,
		PreserveBoundaries: p.splitCfg.PreserveBoundaries,
	})
	if err != nil {
		return storage.StoreOutcome{}, err
	}

	sourceHash := models.ContentHash(m.Content)
	var lastOutcome storage.StoreOutcome
	for _, c := range chunks {
		sib := &models.Memory{
			Content:    c.Content,
			MemoryType: m.MemoryType,
			Tags:       m.Tags,
			Metadata:   cloneMetadata(m.Metadata),
		}
		sib.Metadata[models.MetaChunkIndex] = models.NumberValue(float64(c.Index))
		sib.Metadata[models.MetaChunkTotal] = models.NumberValue(float64(len(chunks)))
		sib.Metadata[models.MetaSourceHash] = models.StringValue(sourceHash)

		outcome, err := p.storeOne(ctx, sib)
		if err != nil {
			return storage.StoreOutcome{}, err
		}
		lastOutcome = outcome
	}
	return lastOutcome, nil
}

func cloneMetadata(m models.Metadata) models.Metadata {
	out := make(models.Metadata, len(m)+4)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}

func (p *Primary) StoreBatch(ctx context.Context, ms []*models.Memory) ([]storage.StoreOutcome, error) {
	out := make([]storage.StoreOutcome, len(ms))
	for i, m := range ms {
		o, err := p.Store(ctx, m)
		if err != nil {
			out[i] = storage.StoreOutcome{OK: false, Message: err.Error()}
			continue
		}
		out[i] = o
	}
	return out, nil
}

func (p *Primary) scanMemoryRow(row interface {
	Scan(dest ...any) error
}) (*models.Memory, error) {
	var m models.Memory
	var tagsStr, metaStr string
	var deletedAt sql.NullFloat64
	if err := row.Scan(&m.ID, &m.ContentHash, &m.Content, &m.MemoryType, &tagsStr, &metaStr,
		&m.CreatedAt, &m.CreatedAtISO, &m.UpdatedAt, &m.UpdatedAtISO, &deletedAt, &m.QualityScore); err != nil {
		return nil, err
	}
	m.Tags = models.ParseTags(tagsStr)
	meta, err := models.ParseMetadataJSON(metaStr)
	if err != nil {
		return nil, err
	}
	m.Metadata = meta
	if deletedAt.Valid {
		d := deletedAt.Float64
		m.DeletedAt = &d
	}
	return &m, nil
}

const memoryColumns = `id, content_hash, content, memory_type, tags, metadata, created_at, created_at_iso, updated_at, updated_at_iso, deleted_at, quality_score`

func (p *Primary) GetByHash(ctx context.Context, hash string) (*models.Memory, error) {
	row := p.db.QueryRow(`SELECT `+memoryColumns+` FROM memories WHERE content_hash = ? AND deleted_at IS NULL`, hash)
	m, err := p.scanMemoryRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.loadEmbedding(m)
	return m, nil
}

func (p *Primary) loadEmbedding(m *models.Memory) {
	var buf []byte
	if err := p.db.QueryRow(`SELECT vector FROM memory_embeddings WHERE memory_hash = ?`, m.ContentHash).Scan(&buf); err == nil {
		m.Embedding = decodeVector(buf)
	}
}

func (p *Primary) GetByExactContent(ctx context.Context, content string) ([]*models.Memory, error) {
	rows, err := p.db.Query(`SELECT `+memoryColumns+` FROM memories WHERE content = ? AND deleted_at IS NULL`, content)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return p.scanMemories(rows)
}

func (p *Primary) scanMemories(rows *sql.Rows) ([]*models.Memory, error) {
	var out []*models.Memory
	for rows.Next() {
		m, err := p.scanMemoryRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Primary) GetAllMemories(ctx context.Context, filter storage.ListFilter) ([]*models.Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE deleted_at IS NULL`
	var args []any
	if filter.MemoryType != "" {
		query += ` AND memory_type = ?`
		args = append(args, filter.MemoryType)
	}
	for _, t := range filter.Tags {
		query += ` AND id IN (SELECT memory_id FROM memory_tags WHERE tag = ?)`
		args = append(args, models.CleanTag(t))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d OFFSET %d`, filter.Limit, filter.Offset)
	}
	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return p.scanMemories(rows)
}

func (p *Primary) CountAllMemories(ctx context.Context, memoryType string, tags []string) (int, error) {
	query := `SELECT COUNT(*) FROM memories WHERE deleted_at IS NULL`
	var args []any
	if memoryType != "" {
		query += ` AND memory_type = ?`
		args = append(args, memoryType)
	}
	for _, t := range tags {
		query += ` AND id IN (SELECT memory_id FROM memory_tags WHERE tag = ?)`
		args = append(args, models.CleanTag(t))
	}
	var n int
	if err := p.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *Primary) GetMemoriesByTimeRange(ctx context.Context, start, end float64) ([]*models.Memory, error) {
	rows, err := p.db.Query(`SELECT `+memoryColumns+` FROM memories WHERE deleted_at IS NULL AND created_at >= ? AND created_at <= ? ORDER BY created_at DESC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return p.scanMemories(rows)
}

func (p *Primary) GetMemoryTimestamps(ctx context.Context, days int) ([]float64, error) {
	query := `SELECT created_at FROM memories WHERE deleted_at IS NULL`
	var args []any
	if days > 0 {
		cutoff := nowFloat(p.now()) - float64(days)*86400
		query += ` AND created_at >= ?`
		args = append(args, cutoff)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var ts float64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// SearchByTag applies the fix for the documented PR-215 over-filtering bug
// (spec §4.1, invariant 5): the tag predicate and the time predicate are
// both pushed into the same SQL statement, never split across a store call
// plus a client-side post-filter.
func (p *Primary) SearchByTag(ctx context.Context, tags []string, timeStart *float64) ([]*models.Memory, error) {
	return p.SearchByTags(ctx, tags, storage.TagMatchAny, timeStart, nil)
}

func (p *Primary) SearchByTags(ctx context.Context, tags []string, match storage.TagMatch, timeStart, timeEnd *float64) ([]*models.Memory, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	clean := make([]string, len(tags))
	for i, t := range tags {
		clean[i] = models.CleanTag(t)
	}

	var query string
	var args []any
	if match == storage.TagMatchAll {
		placeholders := strings.Repeat("?,", len(clean))
		placeholders = strings.TrimSuffix(placeholders, ",")
		query = fmt.Sprintf(`SELECT %s FROM memories m WHERE m.deleted_at IS NULL AND (
			SELECT COUNT(DISTINCT tag) FROM memory_tags WHERE memory_id = m.id AND tag IN (%s)
		) = %d`, memoryColumns, placeholders, len(clean))
		for _, t := range clean {
			args = append(args, t)
		}
	} else {
		placeholders := strings.Repeat("?,", len(clean))
		placeholders = strings.TrimSuffix(placeholders, ",")
		query = fmt.Sprintf(`SELECT DISTINCT %s FROM memories m
			JOIN memory_tags mt ON mt.memory_id = m.id
			WHERE m.deleted_at IS NULL AND mt.tag IN (%s)`, memoryColumnsPrefixed("m"), placeholders)
		for _, t := range clean {
			args = append(args, t)
		}
	}

	if timeStart != nil {
		query += ` AND m.created_at >= ?`
		args = append(args, *timeStart)
	}
	if timeEnd != nil {
		query += ` AND m.created_at <= ?`
		args = append(args, *timeEnd)
	}
	query += ` ORDER BY m.created_at DESC`

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return p.scanMemories(rows)
}

func memoryColumnsPrefixed(alias string) string {
	cols := strings.Split(memoryColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func (p *Primary) SearchByTagChronological(ctx context.Context, tags []string, limit, offset int) ([]*models.Memory, error) {
	ms, err := p.SearchByTags(ctx, tags, storage.TagMatchAny, nil, nil)
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

// Retrieve runs a brute-force cosine scan over every live memory's
// embedding — the "local embedded vector database" of spec §4.2.
func (p *Primary) Retrieve(ctx context.Context, query string, n int) ([]storage.Result, error) {
	if p.embedder == nil {
		return nil, fmt.Errorf("no embedding generator configured")
	}
	qvec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := p.db.Query(`SELECT m.content_hash, e.vector FROM memories m
		JOIN memory_embeddings e ON e.memory_hash = m.content_hash
		WHERE m.deleted_at IS NULL`)
	if err != nil {
		return nil, err
	}
	type scored struct {
		hash  string
		score float64
	}
	var candidates []scored
	for rows.Next() {
		var hash string
		var buf []byte
		if err := rows.Scan(&hash, &buf); err != nil {
			rows.Close()
			return nil, err
		}
		vec := decodeVector(buf)
		candidates = append(candidates, scored{hash: hash, score: relevanceFromCosine(cosineSimilarity(qvec, vec))})
	}
	rows.Close()

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}

	out := make([]storage.Result, 0, len(candidates))
	for _, c := range candidates {
		m, err := p.GetByHash(ctx, c.hash)
		if err != nil || m == nil {
			continue
		}
		out = append(out, storage.Result{Memory: m, RelevanceScore: c.score})
	}
	return out, nil
}

// RetrieveWithQualityBoost over-fetches 3x and reranks by a composite
// weight*quality + (1-weight)*semantic score (spec §4.2).
func (p *Primary) RetrieveWithQualityBoost(ctx context.Context, query string, n int, weight float64) ([]storage.Result, error) {
	overfetch := n * 3
	if overfetch < n {
		overfetch = n
	}
	results, err := p.Retrieve(ctx, query, overfetch)
	if err != nil {
		return nil, err
	}

	type composite struct {
		result storage.Result
		score  float64
	}
	comps := make([]composite, len(results))
	for i, r := range results {
		c := weight*r.Memory.QualityScore + (1-weight)*r.RelevanceScore
		comps[i] = composite{result: r, score: c}
	}
	sort.SliceStable(comps, func(i, j int) bool { return comps[i].score > comps[j].score })

	if n > 0 && len(comps) > n {
		comps = comps[:n]
	}
	out := make([]storage.Result, len(comps))
	for i, c := range comps {
		debug := map[string]any{"original_semantic_score": c.result.RelevanceScore, "composite_score": c.score, "quality_weight": weight}
		out[i] = storage.Result{Memory: c.result.Memory, RelevanceScore: c.score, Debug: debug}
	}
	return out, nil
}

// Delete soft-deletes: sets deleted_at, redacts content, keeps the row, and
// writes a tombstone (spec §4.2 "Soft-delete and tombstones").
func (p *Primary) Delete(ctx context.Context, contentHash string) (storage.StoreOutcome, error) {
	now := nowFloat(p.now())

	tx, err := p.db.Begin()
	if err != nil {
		return storage.StoreOutcome{}, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE memories SET deleted_at = ?, content = '' WHERE content_hash = ? AND deleted_at IS NULL`, now, contentHash)
	if err != nil {
		return storage.StoreOutcome{}, err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return storage.StoreOutcome{OK: false, Message: "not found"}, nil
	}

	if _, err := tx.Exec(`INSERT OR REPLACE INTO tombstones (content_hash, deleted_at) VALUES (?, ?)`, contentHash, now); err != nil {
		return storage.StoreOutcome{}, err
	}

	if err := tx.Commit(); err != nil {
		return storage.StoreOutcome{}, err
	}
	return storage.StoreOutcome{OK: true, Message: "deleted"}, nil
}

func (p *Primary) DeleteByTag(ctx context.Context, tag string) (int, []string, error) {
	return p.DeleteByTags(ctx, []string{tag})
}

func (p *Primary) DeleteByTags(ctx context.Context, tags []string) (int, []string, error) {
	ms, err := p.SearchByTags(ctx, tags, storage.TagMatchAny, nil, nil)
	if err != nil {
		return 0, nil, err
	}
	var hashes []string
	for _, m := range ms {
		if out, err := p.Delete(ctx, m.ContentHash); err == nil && out.OK {
			hashes = append(hashes, m.ContentHash)
		}
	}
	return len(hashes), hashes, nil
}

// DeleteMemories is the unified filter-based delete (spec §4.1): exactly
// one of ContentHash or the {tags,before,after} group must be set; an
// empty filter is rejected to prevent accidental mass deletion.
func (p *Primary) DeleteMemories(ctx context.Context, filter storage.DeleteFilter) ([]string, error) {
	hasHash := filter.ContentHash != ""
	hasGroup := len(filter.Tags) > 0 || filter.Before != nil || filter.After != nil
	if !hasHash && !hasGroup {
		return nil, fmt.Errorf("delete_memories requires content_hash or at least one of tags/before/after")
	}
	if hasHash && hasGroup {
		return nil, fmt.Errorf("delete_memories accepts content_hash OR the tag/time filter group, not both")
	}

	var candidates []*models.Memory
	if hasHash {
		m, err := p.GetByHash(ctx, filter.ContentHash)
		if err != nil {
			return nil, err
		}
		if m != nil {
			candidates = []*models.Memory{m}
		}
	} else {
		match := filter.TagMatch
		if match == "" {
			match = storage.TagMatchAny
		}
		var err error
		if len(filter.Tags) > 0 {
			candidates, err = p.SearchByTags(ctx, filter.Tags, match, filter.After, filter.Before)
		} else {
			start, end := 0.0, nowFloat(p.now())
			if filter.After != nil {
				start = *filter.After
			}
			if filter.Before != nil {
				end = *filter.Before
			}
			candidates, err = p.GetMemoriesByTimeRange(ctx, start, end)
		}
		if err != nil {
			return nil, err
		}
	}

	hashes := make([]string, len(candidates))
	for i, m := range candidates {
		hashes[i] = m.ContentHash
	}
	if filter.DryRun {
		return hashes, nil
	}

	var deleted []string
	for _, h := range hashes {
		if out, err := p.Delete(ctx, h); err == nil && out.OK {
			deleted = append(deleted, h)
		}
	}
	return deleted, nil
}

// UpdateMemoryMetadata mutates tags/type/metadata only; content and
// content_hash are immutable; updated_at always advances (spec invariant 3).
func (p *Primary) UpdateMemoryMetadata(ctx context.Context, contentHash string, tags []string, memoryType string, metadata models.Metadata, preserveTimestamps bool) (storage.StoreOutcome, error) {
	m, err := p.GetByHash(ctx, contentHash)
	if err != nil {
		return storage.StoreOutcome{}, err
	}
	if m == nil {
		return storage.StoreOutcome{OK: false, Message: "not found"}, nil
	}

	now := p.now()
	updatedAt := nowFloat(now)
	updatedAtISO := now.UTC().Format(time.RFC3339)

	newTags := m.Tags
	if tags != nil {
		newTags = tags
	}
	newType := m.MemoryType
	if memoryType != "" {
		newType = memoryType
	}
	merged := cloneMetadata(m.Metadata)
	for k, v := range metadata {
		merged[k] = v
	}

	metaJSON, err := models.MarshalMetadataJSON(merged)
	if err != nil {
		return storage.StoreOutcome{}, err
	}
	tagsStr := models.SerializeTags(newTags)

	tx, err := p.db.Begin()
	if err != nil {
		return storage.StoreOutcome{}, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE memories SET tags = ?, memory_type = ?, metadata = ?, updated_at = ?, updated_at_iso = ? WHERE content_hash = ?`,
		tagsStr, newType, metaJSON, updatedAt, updatedAtISO, contentHash); err != nil {
		return storage.StoreOutcome{}, err
	}

	if _, err := tx.Exec(`DELETE FROM memory_tags WHERE memory_id = ?`, m.ID); err != nil {
		return storage.StoreOutcome{}, err
	}
	for _, t := range models.ParseTags(tagsStr) {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO memory_tags (memory_id, tag, created_at) VALUES (?, ?, ?)`, m.ID, t, m.CreatedAt); err != nil {
			return storage.StoreOutcome{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return storage.StoreOutcome{}, err
	}
	return storage.StoreOutcome{OK: true, Message: "updated"}, nil
}

func (p *Primary) UpdateMemoriesBatch(ctx context.Context, updates map[string]models.Metadata) ([]bool, error) {
	out := make([]bool, 0, len(updates))
	for hash, meta := range updates {
		res, err := p.UpdateMemoryMetadata(ctx, hash, nil, "", meta, true)
		if err != nil {
			return nil, err
		}
		out = append(out, res.OK)
	}
	return out, nil
}

func (p *Primary) IsDeleted(ctx context.Context, hash string) (bool, error) {
	var n int
	if err := p.db.QueryRow(`SELECT COUNT(*) FROM tombstones WHERE content_hash = ?`, hash).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// PurgeDeleted removes tombstones (and their corresponding soft-deleted
// rows) older than olderThanDays; live rows are untouched (spec invariant 7).
func (p *Primary) PurgeDeleted(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := nowFloat(p.now()) - float64(olderThanDays)*86400

	tx, err := p.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM memories WHERE deleted_at IS NOT NULL AND deleted_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()

	if _, err := tx.Exec(`DELETE FROM tombstones WHERE deleted_at < ?`, cutoff); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (p *Primary) GetStats(ctx context.Context) (storage.Stats, error) {
	dbStats, err := p.db.GetStats()
	if err != nil {
		return storage.Stats{}, err
	}

	var uniqueTags int
	_ = p.db.QueryRow(`SELECT COUNT(DISTINCT tag) FROM memory_tags`).Scan(&uniqueTags)

	now := p.now()
	weekAgo := nowFloat(now) - 7*86400
	monthAgo := nowFloat(now) - 30*86400
	var week, month int
	_ = p.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE deleted_at IS NULL AND created_at >= ?`, weekAgo).Scan(&week)
	_ = p.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE deleted_at IS NULL AND created_at >= ?`, monthAgo).Scan(&month)

	return storage.Stats{
		Backend:           "primary",
		TotalMemories:     dbStats.LiveCount,
		UniqueTags:        uniqueTags,
		MemoriesThisWeek:  week,
		MemoriesThisMonth: month,
		SizeBytes:         dbStats.FileSizeBytes,
	}, nil
}
