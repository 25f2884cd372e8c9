// Package ontology provides the closed vocabulary for memory types and
// relationship types, and the parent-type/validation lookups over it.
//
// The memory-type taxonomy is grounded on the Python reference's
// models/ontology.py TAXONOMY table. The relationship vocabulary follows
// spec.md §3's Association model exactly (causes, fixes, contradicts,
// supports, follows, related) rather than the teacher's 7-name
// RelationshipTypes list, which predates the Association entity.
package ontology

import "strings"

// Taxonomy maps base memory types to their subtypes.
var Taxonomy = map[string][]string{
	"observation": {"code_edit", "file_access", "search", "command", "conversation", "document", "note", "reference"},
	"decision":     {"architecture", "tool_choice", "approach", "configuration"},
	"learning":     {"insight", "best_practice", "anti_pattern", "gotcha"},
	"error":        {"bug", "failure", "exception", "timeout"},
	"pattern":      {"recurring_issue", "code_smell", "design_pattern", "workflow"},
	"planning":     {"sprint_goal", "backlog_item", "story_point_estimate", "velocity", "retrospective", "standup_note", "acceptance_criteria"},
	"ceremony":     {"sprint_review", "sprint_planning", "daily_standup", "retrospective_action", "demo_feedback"},
	"milestone":    {"deliverable", "dependency", "risk", "constraint", "assumption", "deadline"},
	"stakeholder":  {"requirement", "feedback", "escalation", "approval", "change_request", "status_update"},
	"meeting":      {"action_item", "attendee_note", "agenda_item", "follow_up", "minutes"},
	"research":     {"finding", "comparison", "recommendation", "source", "hypothesis"},
	"communication": {"email_summary", "chat_summary", "announcement", "request", "response"},
}

// BaseTypes lists every valid base memory type.
func BaseTypes() []string {
	out := make([]string, 0, len(Taxonomy))
	for k := range Taxonomy {
		out = append(out, k)
	}
	return out
}

// ValidateMemoryType accepts either "base" or "base/subtype" forms.
func ValidateMemoryType(memoryType string) bool {
	base, sub, hasSub := strings.Cut(memoryType, "/")
	subtypes, ok := Taxonomy[strings.ToLower(base)]
	if !ok {
		return false
	}
	if !hasSub {
		return true
	}
	for _, s := range subtypes {
		if s == strings.ToLower(sub) {
			return true
		}
	}
	return false
}

// GetParentType returns the base type for a "base/subtype" memory type, or
// the type itself if it has no subtype component.
func GetParentType(memoryType string) string {
	base, _, _ := strings.Cut(memoryType, "/")
	return strings.ToLower(base)
}

// RelationshipType describes one entry of the closed connection-type
// vocabulary used by Associations (spec §3, §9 "Tagged variants").
type RelationshipType struct {
	Name        string
	Description string
	Symmetric   bool
}

// RelationshipTypes is the closed vocabulary spec.md §3 names for
// Association.connection_types.
var RelationshipTypes = []RelationshipType{
	{Name: "causes", Description: "A causes B (causal relationship)", Symmetric: false},
	{Name: "fixes", Description: "A fixes B (remediation relationship)", Symmetric: false},
	{Name: "contradicts", Description: "A contradicts B (conflict relationship)", Symmetric: true},
	{Name: "supports", Description: "A supports B (reinforcement relationship)", Symmetric: false},
	{Name: "follows", Description: "A follows B (temporal/sequential relationship)", Symmetric: false},
	{Name: "related", Description: "A is related to B (generic association)", Symmetric: true},
}

var relationshipIndex = func() map[string]RelationshipType {
	m := make(map[string]RelationshipType, len(RelationshipTypes))
	for _, rt := range RelationshipTypes {
		m[rt.Name] = rt
	}
	return m
}()

// DefaultRelationshipType is used when inference confidence is below
// threshold (spec §9).
const DefaultRelationshipType = "related"

// IsValidRelationshipType reports whether name (case-insensitive) is one of
// the closed connection types.
func IsValidRelationshipType(name string) bool {
	_, ok := relationshipIndex[strings.ToLower(name)]
	return ok
}

// IsSymmetric reports whether a relationship type is logically undirected.
// Unknown types are treated as asymmetric (the conservative default).
func IsSymmetric(name string) bool {
	rt, ok := relationshipIndex[strings.ToLower(name)]
	return ok && rt.Symmetric
}
