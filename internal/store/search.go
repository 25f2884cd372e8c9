package store

import (
	"context"

	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/storage"
)

// SearchMemories is the unified search entry point (spec §4.1): one query
// dispatches to semantic, exact (FTS5) or hybrid scoring, then applies the
// shared tag/time predicates and optional quality boost.
func (p *Primary) SearchMemories(ctx context.Context, q storage.SearchQuery) (storage.SearchOutcome, error) {
	var candidates []storage.Result
	var err error

	switch q.Mode {
	case storage.SearchExact:
		candidates, err = p.searchExact(ctx, q.Query)
	case storage.SearchHybrid:
		candidates, err = p.searchHybrid(ctx, q)
	default:
		if q.QualityBoost {
			candidates, err = p.RetrieveWithQualityBoost(ctx, q.Query, overfetchLimit(q.Limit), boostWeightOrDefault(q.QualityWeight))
		} else {
			candidates, err = p.Retrieve(ctx, q.Query, overfetchLimit(q.Limit))
		}
	}
	if err != nil {
		return storage.SearchOutcome{}, err
	}

	preCount := len(candidates)
	filtered := p.applyPredicates(candidates, q)
	postCount := len(filtered)

	if q.Limit > 0 && len(filtered) > q.Limit {
		filtered = filtered[:q.Limit]
	}

	return storage.SearchOutcome{
		Results:         filtered,
		PreFilterCount:  preCount,
		PostFilterCount: postCount,
	}, nil
}

func overfetchLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit * 3
}

func boostWeightOrDefault(w float64) float64 {
	if w <= 0 {
		return 0.7
	}
	return w
}

// searchExact runs a lexical query against the FTS5 index, falling back to
// a plain LIKE scan when FTS5 was unavailable at schema-init time.
func (p *Primary) searchExact(ctx context.Context, query string) ([]storage.Result, error) {
	rows, err := p.db.Query(`SELECT m.content_hash FROM memories_fts f
		JOIN memories m ON m.id = f.rowid
		WHERE memories_fts MATCH ? AND m.deleted_at IS NULL
		ORDER BY rank`, query)
	if err != nil {
		return p.searchExactFallback(ctx, query)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return p.resultsFromHashes(ctx, hashes, 1.0)
}

func (p *Primary) searchExactFallback(ctx context.Context, query string) ([]storage.Result, error) {
	rows, err := p.db.Query(`SELECT content_hash FROM memories WHERE deleted_at IS NULL AND content LIKE ? ORDER BY created_at DESC`, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return p.resultsFromHashes(ctx, hashes, 1.0)
}

func (p *Primary) resultsFromHashes(ctx context.Context, hashes []string, score float64) ([]storage.Result, error) {
	out := make([]storage.Result, 0, len(hashes))
	for _, h := range hashes {
		m, err := p.GetByHash(ctx, h)
		if err != nil || m == nil {
			continue
		}
		out = append(out, storage.Result{Memory: m, RelevanceScore: score})
	}
	return out, nil
}

// searchHybrid blends semantic and lexical scores with the configured
// weights, deduping by content hash (spec §4.1 "hybrid" mode).
func (p *Primary) searchHybrid(ctx context.Context, q storage.SearchQuery) ([]storage.Result, error) {
	semantic, err := p.Retrieve(ctx, q.Query, overfetchLimit(q.Limit))
	if err != nil {
		return nil, err
	}
	lexical, err := p.searchExact(ctx, q.Query)
	if err != nil {
		return nil, err
	}

	combined := make(map[string]*storage.Result, len(semantic)+len(lexical))
	for _, r := range semantic {
		rc := r
		rc.RelevanceScore = p.semanticWeight * r.RelevanceScore
		combined[r.Memory.ContentHash] = &rc
	}
	for _, r := range lexical {
		if existing, ok := combined[r.Memory.ContentHash]; ok {
			existing.RelevanceScore += p.keywordWeight
		} else {
			rc := r
			rc.RelevanceScore = p.keywordWeight
			combined[r.Memory.ContentHash] = &rc
		}
	}

	out := make([]storage.Result, 0, len(combined))
	for _, r := range combined {
		out = append(out, *r)
	}
	return out, nil
}

// applyPredicates enforces the shared tag/time filters on top of whatever
// scoring strategy produced the candidate set, closing the over-filtering
// gap described in spec invariant 5.
func (p *Primary) applyPredicates(candidates []storage.Result, q storage.SearchQuery) []storage.Result {
	if len(q.Tags) == 0 && q.After == nil && q.Before == nil {
		return candidates
	}

	wantTags := make(map[string]struct{}, len(q.Tags))
	for _, t := range q.Tags {
		wantTags[models.CleanTag(t)] = struct{}{}
	}

	out := make([]storage.Result, 0, len(candidates))
	for _, c := range candidates {
		if q.After != nil && c.Memory.CreatedAt < *q.After {
			continue
		}
		if q.Before != nil && c.Memory.CreatedAt > *q.Before {
			continue
		}
		if len(wantTags) > 0 && !tagsMatch(c.Memory.Tags, wantTags, q.TagMatch) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func tagsMatch(have []string, want map[string]struct{}, match storage.TagMatch) bool {
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
	for t := range want {
		if _, ok := haveSet[t]; ok {
			return true
		}
	}
	return false
}
