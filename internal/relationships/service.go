// Package relationships discovers and queries Associations between
// memories: the graph-traversal surface (Create/FindRelated/MapGraph) plus
// the type-inference heuristic behind Discover.
//
// Graph traversal is grounded on the teacher's BFS-based MapGraph/FindRelated
// shape. The inference heuristic in infer.go is grounded on the retrieved
// RelationshipInferenceEngine (original_source consolidation/
// relationship_inference.py): four independent signals — memory-type
// combination, content keyword patterns, temporal proximity, and
// contradiction detection — scored and the highest-confidence candidate
// kept if it clears a minimum threshold.
package relationships

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/engramhq/engram/internal/logging"
	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/ontology"
	"github.com/engramhq/engram/internal/store"
)

var log = logging.GetLogger("relationships")

// Service manages Associations over a primary backend's SQLite store.
// Associations are a primary-only concept (spec §4.2's associations
// table); the uniform storage.Backend contract deliberately omits them, so
// Service talks to *store.DB directly rather than through an interface.
type Service struct {
	db         *store.DB
	minConfidence float64
}

// NewService constructs a relationship Service over db.
func NewService(db *store.DB) *Service {
	return &Service{db: db, minConfidence: 0.6}
}

// CreateOptions describes a manually-asserted association.
type CreateOptions struct {
	SourceHash      string
	TargetHash      string
	ConnectionType  string
	Similarity      float64
	DiscoveryMethod string
	Metadata        models.Metadata
}

// Create inserts a manually-asserted association between two memories.
func (s *Service) Create(ctx context.Context, opts *CreateOptions) (*models.Association, error) {
	if opts.SourceHash == "" || opts.TargetHash == "" {
		return nil, fmt.Errorf("source and target content hashes are required")
	}
	if !ontology.IsValidRelationshipType(opts.ConnectionType) {
		return nil, fmt.Errorf("invalid relationship type: %s", opts.ConnectionType)
	}
	if err := s.mustExist(opts.SourceHash); err != nil {
		return nil, err
	}
	if err := s.mustExist(opts.TargetHash); err != nil {
		return nil, err
	}

	similarity := opts.Similarity
	if similarity <= 0 {
		similarity = 0.5
	}
	if similarity > 1 {
		similarity = 1
	}

	method := opts.DiscoveryMethod
	if method == "" {
		method = "manual"
	}

	a := &models.Association{
		ID:              uuid.New().String(),
		SourceHash:      opts.SourceHash,
		TargetHash:      opts.TargetHash,
		Similarity:      similarity,
		ConnectionTypes: []string{opts.ConnectionType},
		DiscoveryMethod: method,
		DiscoveryDate:   float64(time.Now().Unix()),
		Metadata:        opts.Metadata,
	}
	if err := s.insert(a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) mustExist(hash string) error {
	row := s.db.QueryRow(`SELECT 1 FROM memories WHERE content_hash = ?`, hash)
	var x int
	if err := row.Scan(&x); err != nil {
		return fmt.Errorf("memory %s not found", hash)
	}
	return nil
}

func (s *Service) insert(a *models.Association) error {
	meta, err := models.MarshalMetadataJSON(a.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO associations (id, source_hash, target_hash, similarity, connection_types, discovery_method, discovery_date, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SourceHash, a.TargetHash, a.Similarity, joinTypes(a.ConnectionTypes), a.DiscoveryMethod, a.DiscoveryDate, meta,
	)
	return err
}

// FindRelatedOptions filters FindRelated's neighbor lookup.
type FindRelatedOptions struct {
	ContentHash    string
	ConnectionType string
	MinSimilarity  float64
}

// FindRelated returns associations touching hash in either direction,
// optionally filtered by connection type and minimum similarity.
func (s *Service) FindRelated(ctx context.Context, opts *FindRelatedOptions) ([]*models.Association, error) {
	if opts.ContentHash == "" {
		return nil, fmt.Errorf("content hash is required")
	}
	if err := s.mustExist(opts.ContentHash); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT id, source_hash, target_hash, similarity, connection_types, discovery_method, discovery_date, metadata
		 FROM associations WHERE source_hash = ? OR target_hash = ?`,
		opts.ContentHash, opts.ContentHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Association
	for rows.Next() {
		a, err := scanAssociation(rows)
		if err != nil {
			return nil, err
		}
		if opts.ConnectionType != "" && !hasType(a.ConnectionTypes, opts.ConnectionType) {
			continue
		}
		if opts.MinSimilarity > 0 && a.Similarity < opts.MinSimilarity {
			continue
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ConnectionCounts returns, per content hash, how many associations touch
// it (as either source or target). Used by the consolidation pipeline's
// decay scoring to compute connection_boost.
func (s *Service) ConnectionCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.Query(`SELECT source_hash, target_hash FROM associations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source, target string
		if err := rows.Scan(&source, &target); err != nil {
			return nil, err
		}
		counts[source]++
		counts[target]++
	}
	return counts, rows.Err()
}

// GraphNode is one BFS-reached memory in a MapGraph result.
type GraphNode struct {
	ContentHash string
	Depth       int
}

// GraphEdge is one traversed association in a MapGraph result.
type GraphEdge struct {
	SourceHash string
	TargetHash string
	Type       string
	Strength   float64
}

// GraphResult is MapGraph's BFS output.
type GraphResult struct {
	Nodes      []GraphNode
	Edges      []GraphEdge
	TotalNodes int
	MaxDepth   int
}

// MapGraphOptions configures MapGraph's traversal.
type MapGraphOptions struct {
	RootHash       string
	Depth          int
	IncludeTypes   []string
	MinSimilarity  float64
}

const maxGraphDepth = 5
const defaultGraphDepth = 2

// MapGraph performs a breadth-first traversal of the association graph
// rooted at RootHash, up to Depth hops (capped at maxGraphDepth).
func (s *Service) MapGraph(ctx context.Context, opts *MapGraphOptions) (*GraphResult, error) {
	if opts.RootHash == "" {
		return nil, fmt.Errorf("root content hash is required")
	}
	if err := s.mustExist(opts.RootHash); err != nil {
		return nil, err
	}

	depth := opts.Depth
	if depth <= 0 {
		depth = defaultGraphDepth
	}
	if depth > maxGraphDepth {
		depth = maxGraphDepth
	}

	visited := map[string]int{opts.RootHash: 0}
	result := &GraphResult{
		Nodes:    []GraphNode{{ContentHash: opts.RootHash, Depth: 0}},
		MaxDepth: depth,
	}

	frontier := []string{opts.RootHash}
	for d := 1; d <= depth && len(frontier) > 0; d++ {
		var next []string
		for _, hash := range frontier {
			related, err := s.FindRelated(ctx, &FindRelatedOptions{
				ContentHash:   hash,
				MinSimilarity: opts.MinSimilarity,
			})
			if err != nil {
				return nil, err
			}
			for _, a := range related {
				if len(opts.IncludeTypes) > 0 && !anyTypeMatches(a.ConnectionTypes, opts.IncludeTypes) {
					continue
				}
				other := a.TargetHash
				if other == hash {
					other = a.SourceHash
				}
				connType := "related"
				if len(a.ConnectionTypes) > 0 {
					connType = a.ConnectionTypes[0]
				}
				result.Edges = append(result.Edges, GraphEdge{
					SourceHash: a.SourceHash,
					TargetHash: a.TargetHash,
					Type:       connType,
					Strength:   a.Similarity,
				})
				if _, seen := visited[other]; !seen {
					visited[other] = d
					result.Nodes = append(result.Nodes, GraphNode{ContentHash: other, Depth: d})
					next = append(next, other)
				}
			}
		}
		frontier = next
	}

	result.TotalNodes = len(result.Nodes)
	return result, nil
}

func scanAssociation(rows interface{ Scan(...any) error }) (*models.Association, error) {
	var a models.Association
	var types, meta string
	if err := rows.Scan(&a.ID, &a.SourceHash, &a.TargetHash, &a.Similarity, &types, &a.DiscoveryMethod, &a.DiscoveryDate, &meta); err != nil {
		return nil, err
	}
	a.ConnectionTypes = splitTypes(types)
	parsed, err := models.ParseMetadataJSON(meta)
	if err != nil {
		log.Warn("failed to parse association metadata", "error", err, "id", a.ID)
	} else {
		a.Metadata = parsed
	}
	return &a, nil
}

func newAssociationID() string { return uuid.New().String() }

func nowUnix() float64 { return float64(time.Now().Unix()) }

func hasType(types []string, t string) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func anyTypeMatches(have, want []string) bool {
	for _, w := range want {
		if hasType(have, w) {
			return true
		}
	}
	return false
}

func joinTypes(types []string) string {
	out := ""
	for i, t := range types {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}

func splitTypes(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
