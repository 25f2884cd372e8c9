// Package relationships provides graph algorithms over memory Associations:
// manual creation, BFS neighbor/graph queries, and confidence-scored
// automatic discovery.
package relationships
