package relationships

import (
	"context"
	"regexp"
	"strings"

	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/ontology"
)

// candidate is one scored relationship-type guess from a single signal.
type candidate struct {
	connType   string
	confidence float64
}

var contentPatterns = map[string][]*regexp.Regexp{
	"causation": compileAll(
		`\bcaused?\b`, `\blead\s+to\b`, `\bresulted\s+in\b`, `\btriggered\b`, `\bgenerated\b`,
	),
	"resolution": compileAll(
		`\bfixed?\b`, `\bresolve[ds]?\b`, `\bcorrected?\b`, `\bpatched?\b`, `\brepaired\b`, `\bhealed\b`,
	),
	"support": compileAll(
		`\bsupports?\b`, `\benables?\b`, `\bfacilitate[ds]?\b`, `\bhelps?\b`, `\baccompany\b`,
	),
	"contradiction": compileAll(
		`\bcontradict[ds]?\b`, `\bconflict[ds]?\b`, `\bdisagree[ds]?\b`, `\bhowever\b`,
		`\b(but|yet|although|nevertheless)\b`, `\boppose[sd]?\b`,
	),
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// typeCombinations are ontology parent-type pairs with a strong prior for a
// particular connection type (source, target) -> (type, confidence).
var typeCombinations = map[[2]string]candidate{
	{"decision", "error"}:     {"uses", 0.7},
	{"learning", "error"}:     {"fixes", 0.8},
	{"pattern", "error"}:      {"fixes", 0.75},
	{"learning", "decision"}:  {"supports", 0.6},
	{"observation", "learning"}: {"supports", 0.5},
	{"pattern", "learning"}:   {"supports", 0.6},
	{"decision", "decision"}:  {"supports", 0.4},
	{"learning", "learning"}:  {"supports", 0.3},
	{"error", "error"}:        {"causes", 0.6},
	{"observation", "observation"}: {"follows", 0.3},
}

// pair is the minimal shape infer.go needs about each side of a candidate
// association; it intentionally predates loading the full *models.Memory so
// Discover can batch cheaply.
type pair struct {
	hash      string
	memType   string
	content   string
	tags      []string
	timestamp float64
}

// inferConnectionType runs the four independent signals from the retrieved
// inference engine and returns the strongest candidate clearing
// minConfidence, defaulting to "related" otherwise.
func inferConnectionType(source, target pair, minConfidence float64) (string, float64) {
	var candidates []candidate

	candidates = append(candidates, byTypeCombination(source.memType, target.memType)...)
	candidates = append(candidates, byContentSemantics(source.content, target.memType)...)
	if source.timestamp != 0 && target.timestamp != 0 {
		candidates = append(candidates, byTemporalProximity(source, target)...)
	}
	candidates = append(candidates, byContradiction(source.content, target.content)...)

	if len(candidates) == 0 {
		return ontology.DefaultRelationshipType, 0
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.confidence > best.confidence {
			best = c
		}
	}
	if best.confidence < minConfidence {
		return ontology.DefaultRelationshipType, best.confidence
	}
	if !ontology.IsValidRelationshipType(best.connType) {
		return ontology.DefaultRelationshipType, best.confidence
	}
	return best.connType, best.confidence
}

func byTypeCombination(sourceType, targetType string) []candidate {
	if sourceType == "" || targetType == "" {
		return nil
	}
	sp, tp := ontology.GetParentType(sourceType), ontology.GetParentType(targetType)

	var out []candidate
	for pair, c := range typeCombinations {
		switch {
		case sp == pair[0] && tp == pair[1]:
			out = append(out, c)
		case sp == pair[1] && tp == pair[0]:
			out = append(out, candidate{c.connType, c.confidence * 0.7})
		}
	}
	return out
}

func countMatches(patterns []*regexp.Regexp, text string) int {
	n := 0
	for _, p := range patterns {
		if p.MatchString(text) {
			n++
		}
	}
	return n
}

func byContentSemantics(sourceContent, targetType string) []candidate {
	source := strings.ToLower(sourceContent)
	var out []candidate

	if n := countMatches(contentPatterns["resolution"], source); n > 0 && strings.Contains(targetType, "error") {
		out = append(out, candidate{"fixes", minF(0.9, 0.5+float64(n)*0.1)})
	}
	if n := countMatches(contentPatterns["causation"], source); n > 0 && strings.Contains(targetType, "error") {
		out = append(out, candidate{"causes", minF(0.8, 0.5+float64(n)*0.1)})
	}
	if n := countMatches(contentPatterns["support"], source); n > 0 && strings.Contains(targetType, "decision") {
		out = append(out, candidate{"supports", minF(0.75, 0.4+float64(n)*0.1)})
	}
	return out
}

func byTemporalProximity(source, target pair) []candidate {
	var out []candidate
	diff := source.timestamp - target.timestamp
	if diff < 0 {
		diff = -diff
	}

	if diff < 3600 {
		sp, tp := "", ""
		if source.memType != "" {
			sp = ontology.GetParentType(source.memType)
		}
		if target.memType != "" {
			tp = ontology.GetParentType(target.memType)
		}
		if sp != "" && sp == tp {
			out = append(out, candidate{"follows", 0.4})
		}
	}

	if source.timestamp > target.timestamp && strings.Contains(source.memType, "learning") && strings.Contains(target.memType, "error") {
		out = append(out, candidate{"fixes", 0.6})
	}
	return out
}

func byContradiction(sourceContent, targetContent string) []candidate {
	source := strings.ToLower(sourceContent)
	target := strings.ToLower(targetContent)
	sc := countMatches(contentPatterns["contradiction"], source)
	tc := countMatches(contentPatterns["contradiction"], target)
	if sc == 0 && tc == 0 {
		return nil
	}
	confidence := 0.4
	if sc > 0 && tc > 0 {
		confidence = 0.7
	}
	return []candidate{{"contradicts", confidence}}
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// DiscoverOptions configures a Discover sweep.
type DiscoverOptions struct {
	Limit         int
	MinSimilarity float64
}

const defaultDiscoverLimit = 50

// Discover scans recent memories for likely associations not yet recorded,
// running them through inferConnectionType, and persists any candidate that
// clears the configured minimum confidence.
func (s *Service) Discover(ctx context.Context, opts *DiscoverOptions) ([]*models.Association, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultDiscoverLimit
	}

	rows, err := s.db.Query(
		`SELECT content_hash, content, memory_type, created_at, tags FROM memories
		 WHERE deleted_at IS NULL ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	var pairs []pair
	for rows.Next() {
		var hash, content, memType, tagsJSON string
		var createdAt float64
		if err := rows.Scan(&hash, &content, &memType, &createdAt, &tagsJSON); err != nil {
			rows.Close()
			return nil, err
		}
		pairs = append(pairs, pair{hash: hash, content: content, memType: memType, timestamp: createdAt})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var discovered []*models.Association
	for i := 0; i < len(pairs); i++ {
		for j := i + 1; j < len(pairs); j++ {
			connType, confidence := inferConnectionType(pairs[i], pairs[j], s.minConfidence)
			if connType == ontology.DefaultRelationshipType {
				continue
			}
			if existing, _ := s.FindRelated(ctx, &FindRelatedOptions{ContentHash: pairs[i].hash}); existing != nil {
				if alreadyLinked(existing, pairs[j].hash) {
					continue
				}
			}
			a := &models.Association{
				ID:              newAssociationID(),
				SourceHash:      pairs[i].hash,
				TargetHash:      pairs[j].hash,
				Similarity:      confidence,
				ConnectionTypes: []string{connType},
				DiscoveryMethod: "inference",
				DiscoveryDate:   nowUnix(),
			}
			if err := s.insert(a); err != nil {
				log.Warn("failed to persist discovered association", "error", err)
				continue
			}
			discovered = append(discovered, a)
		}
	}
	return discovered, nil
}

func alreadyLinked(existing []*models.Association, targetHash string) bool {
	for _, a := range existing {
		if a.TargetHash == targetHash || a.SourceHash == targetHash {
			return true
		}
	}
	return false
}
