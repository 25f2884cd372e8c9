// Package models defines the core data shapes shared by every storage
// backend: memories, associations, tombstones, relevance scores and sync
// operations. Nothing here talks to a database or the network.
package models
