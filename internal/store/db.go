// Package store implements the primary embedded backend (spec §4.2): a
// local SQLite-backed database holding memories, tags, embeddings,
// tombstones and associations, with an FTS5 lexical index and quality-
// boosted retrieval.
//
// Grounded on the teacher's internal/database package (database.go's
// Open/InitSchema/Checkpoint/Vacuum/Stats, schema.go's table layout,
// operations.go's CRUD and search shape), generalized from the teacher's
// developer-memory-tool domain model onto spec §3's content-hash-identified
// Memory/Association/Tombstone model.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/engramhq/engram/internal/logging"
	_ "github.com/mattn/go-sqlite3"
)

var log = logging.GetLogger("store")

// DB wraps a single-writer SQLite connection, mirroring the teacher's
// Database type.
type DB struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens (creating if necessary) the primary database file.
func Open(path string) (*DB, error) {
	log.Info("opening primary database", "path", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one writer; a single pooled connection keeps
	// writes serialized the way spec §5 requires ("the hybrid engine does
	// not add a higher lock").
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{db: sqlDB, path: path}, nil
}

// InitSchema is idempotent: creates tables/indexes/FTS5 if absent and runs
// additive migrations (spec §4.1 initialize()).
func (d *DB) InitSchema() error {
	log.Info("initializing schema", "version", SchemaVersion)

	d.mu.Lock()
	defer d.mu.Unlock()

	var name string
	err := d.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='memories' LIMIT 1`).Scan(&name)
	if err == nil && name != "" {
		log.Debug("schema already initialized")
		return nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(CoreSchema); err != nil {
		return fmt.Errorf("create core schema: %w", err)
	}

	if _, err := tx.Exec(FTS5Schema); err != nil {
		log.Warn("FTS5 schema unavailable, continuing without lexical index", "error", err)
	}

	if _, err := tx.Exec(`INSERT OR REPLACE INTO schema_version (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`, SchemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}

	log.Info("schema initialized", "version", SchemaVersion)
	return nil
}

func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Raw() *sql.DB   { return d.db }
func (d *DB) Path() string   { return d.path }

func (d *DB) Exec(query string, args ...any) (sql.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Exec(query, args...)
}

func (d *DB) Query(query string, args ...any) (*sql.Rows, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db.Query(query, args...)
}

func (d *DB) QueryRow(query string, args ...any) *sql.Row {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db.QueryRow(query, args...)
}

// Begin starts a transaction. Callers hold the write path exclusively while
// the transaction is open; SQLite's own locking plus SetMaxOpenConns(1)
// gives us the single-writer serialization spec §5 describes.
func (d *DB) Begin() (*sql.Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Begin()
}

// Vacuum runs VACUUM to reclaim space after large deletes/purges.
func (d *DB) Vacuum() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec("VACUUM")
	return err
}

// Checkpoint forces a WAL checkpoint; used both for routine maintenance and
// as the integrity monitor's auto-repair step (spec §4.2, §7).
func (d *DB) Checkpoint() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// IntegrityCheck runs SQLite's own integrity_check pragma.
func (d *DB) IntegrityCheck() (ok bool, detail string, err error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var result string
	if err := d.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return false, "", err
	}
	return result == "ok", result, nil
}

// Stats mirrors the teacher's database Stats type, trimmed to the fields
// this domain model has.
type Stats struct {
	Path          string
	SchemaVersion int
	MemoryCount   int
	LiveCount     int
	TombstoneCount int
	AssociationCount int
	FileSizeBytes int64
}

func (d *DB) GetStats() (*Stats, error) {
	s := &Stats{Path: d.path}

	var version int
	_ = d.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	s.SchemaVersion = version

	_ = d.QueryRow("SELECT COUNT(*) FROM memories").Scan(&s.MemoryCount)
	_ = d.QueryRow("SELECT COUNT(*) FROM memories WHERE deleted_at IS NULL").Scan(&s.LiveCount)
	_ = d.QueryRow("SELECT COUNT(*) FROM tombstones").Scan(&s.TombstoneCount)
	_ = d.QueryRow("SELECT COUNT(*) FROM associations").Scan(&s.AssociationCount)

	if info, err := os.Stat(d.path); err == nil {
		s.FileSizeBytes = info.Size()
	}

	return s, nil
}
