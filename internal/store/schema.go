package store

// SchemaVersion is bumped whenever CoreSchema changes in a way that needs
// tracking in schema_version.
const SchemaVersion = 1

// CoreSchema creates the primary embedded backend's relational tables
// (spec §4.2). Adapted from the teacher's internal/database/schema.go,
// replacing the developer-memory-tool tables (categories, domains,
// agent_sessions, benchmark_*) with the spec's Memory/Association/
// Tombstone/SyncOperation model.
const CoreSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS memories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content_hash TEXT UNIQUE NOT NULL,
	content TEXT NOT NULL,
	memory_type TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at REAL NOT NULL,
	created_at_iso TEXT NOT NULL,
	updated_at REAL NOT NULL,
	updated_at_iso TEXT NOT NULL,
	deleted_at REAL,
	quality_score REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_memories_content_hash ON memories(content_hash);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_deleted_at ON memories(deleted_at);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);

-- Preferred tag index per spec §4.2: a join table indexed by (tag, created_at DESC)
-- rather than a trigram-assisted LIKE scan over the denormalized tags column.
CREATE TABLE IF NOT EXISTS memory_tags (
	memory_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	tag TEXT NOT NULL,
	created_at REAL NOT NULL,
	PRIMARY KEY (memory_id, tag)
);

CREATE INDEX IF NOT EXISTS idx_memory_tags_tag_created ON memory_tags(tag, created_at DESC);

CREATE TABLE IF NOT EXISTS memory_embeddings (
	memory_hash TEXT PRIMARY KEY REFERENCES memories(content_hash) ON DELETE CASCADE,
	dim INTEGER NOT NULL,
	vector BLOB NOT NULL
);

-- Tombstones survive independently of the memories row so that anti-
-- resurrection keeps working even after purge_deleted has not yet run.
CREATE TABLE IF NOT EXISTS tombstones (
	content_hash TEXT PRIMARY KEY,
	deleted_at REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tombstones_deleted_at ON tombstones(deleted_at);

CREATE TABLE IF NOT EXISTS associations (
	id TEXT PRIMARY KEY,
	source_hash TEXT NOT NULL,
	target_hash TEXT NOT NULL,
	similarity REAL NOT NULL,
	connection_types TEXT NOT NULL DEFAULT '',
	discovery_method TEXT NOT NULL DEFAULT '',
	discovery_date REAL NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_associations_source ON associations(source_hash);
CREATE INDEX IF NOT EXISTS idx_associations_target ON associations(target_hash);

-- No code writes to this table: the sync service keeps its failed
-- operations in memory (syncsvc.Service.FailedOps).
CREATE TABLE IF NOT EXISTS failed_sync_ops (
	id TEXT PRIMARY KEY,
	operation TEXT NOT NULL,
	content_hash TEXT,
	retries INTEGER NOT NULL,
	failure_reason TEXT NOT NULL,
	failed_at REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS consolidation_runs (
	id TEXT PRIMARY KEY,
	horizon TEXT NOT NULL,
	phase TEXT NOT NULL,
	started_at REAL NOT NULL,
	duration_ms INTEGER NOT NULL,
	memories_processed INTEGER NOT NULL DEFAULT 0,
	success INTEGER NOT NULL DEFAULT 1,
	detail TEXT NOT NULL DEFAULT '{}'
);
`

// FTS5Schema mirrors the teacher's standalone (non-external-content) FTS5
// virtual table + sync triggers, renamed to the new table shape.
const FTS5Schema = `
CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	content,
	content_hash UNINDEXED
);

CREATE TRIGGER IF NOT EXISTS memories_fts_insert AFTER INSERT ON memories BEGIN
	INSERT INTO memories_fts(rowid, content, content_hash) VALUES (new.id, new.content, new.content_hash);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_delete AFTER DELETE ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, content, content_hash) VALUES ('delete', old.id, old.content, old.content_hash);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_update AFTER UPDATE ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, content, content_hash) VALUES ('delete', old.id, old.content, old.content_hash);
	INSERT INTO memories_fts(rowid, content, content_hash) VALUES (new.id, new.content, new.content_hash);
END;
`
