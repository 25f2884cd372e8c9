// Package health implements the primary backend's integrity monitor (spec
// §4.2): a periodic and startup integrity_check, WAL-checkpoint auto-repair
// on failure, emergency JSON export as a last resort, and a rolling alert
// history operators can resolve by id.
//
// Grounded on spec §4.2's integrity monitor paragraph and
// internal/store/db.go's existing Checkpoint/IntegrityCheck methods. No
// health/integrity.py source file was present in the retrieved pack (only
// referenced by name from _INDEX.md), so the check/repair/export sequence
// below follows the spec prose directly rather than a ported method body.
package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/engramhq/engram/internal/logging"
	"github.com/engramhq/engram/internal/store"
)

var log = logging.GetLogger("health")

// DefaultInterval is the spec's default integrity_check cadence.
const DefaultInterval = 30 * time.Minute

// Event records the outcome of one integrity check, plus whatever
// auto-repair was attempted.
type Event struct {
	ID         string
	Time       time.Time
	Healthy    bool
	Detail     string
	Repaired   bool
	ExportPath string
	Resolved   bool
	ResolvedAt time.Time
}

// Monitor runs integrity_check on a timer and at startup, auto-repairing
// via WAL checkpoint and falling back to an emergency export when repair
// doesn't restore health.
type Monitor struct {
	db       *store.DB
	interval time.Duration
	exportDir string
	now      func() time.Time

	mu      sync.Mutex
	history []Event
	healthy bool

	stop chan struct{}
	done chan struct{}
}

// Option configures a Monitor at construction time.
type Option func(*Monitor)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithExportDir overrides the directory emergency exports are written to;
// default is the database file's own directory.
func WithExportDir(dir string) Option {
	return func(m *Monitor) { m.exportDir = dir }
}

// NewMonitor builds a Monitor over db.
func NewMonitor(db *store.DB, opts ...Option) *Monitor {
	m := &Monitor{
		db:        db,
		interval:  DefaultInterval,
		exportDir: filepath.Dir(db.Path()),
		now:       time.Now,
		healthy:   true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start runs an immediate check followed by one every interval, until ctx
// is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		m.runAndLog(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.runAndLog(ctx)
			}
		}
	}()
}

// Stop halts the periodic loop and waits for the in-flight check to finish.
func (m *Monitor) Stop() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
}

func (m *Monitor) runAndLog(ctx context.Context) {
	event, err := m.RunCheck(ctx)
	if err != nil {
		log.Error("integrity check failed to run", "error", err)
		return
	}
	if !event.Healthy {
		log.Warn("integrity check unhealthy", "detail", event.Detail, "repaired", event.Repaired, "export", event.ExportPath)
	} else {
		log.Info("integrity check ok")
	}
}

// RunCheck performs one integrity_check, attempting WAL-checkpoint repair
// on failure and an emergency export if the repair doesn't hold. The
// resulting Event is appended to History regardless of outcome.
func (m *Monitor) RunCheck(ctx context.Context) (Event, error) {
	event := Event{ID: uuid.New().String(), Time: m.now()}

	ok, detail, err := m.db.IntegrityCheck()
	if err != nil {
		return Event{}, fmt.Errorf("integrity_check: %w", err)
	}
	event.Healthy = ok
	event.Detail = detail

	if !ok {
		log.Warn("integrity check failed, attempting WAL checkpoint repair", "detail", detail)
		if err := m.db.Checkpoint(); err != nil {
			log.Error("checkpoint repair failed", "error", err)
		} else if ok2, detail2, err2 := m.db.IntegrityCheck(); err2 == nil && ok2 {
			event.Healthy = true
			event.Repaired = true
			event.Detail = detail2
		}
	}

	if !event.Healthy {
		path, exportErr := m.emergencyExport(ctx)
		if exportErr != nil {
			log.Error("emergency export failed", "error", exportErr)
		} else {
			event.ExportPath = path
			log.Warn("emergency export written", "path", path)
		}
	}

	m.mu.Lock()
	m.healthy = event.Healthy
	m.history = append(m.history, event)
	m.mu.Unlock()

	return event, nil
}

// exportedRow is one memories-table row as written to the emergency JSON
// export; raw SQL rather than the storage.Backend layer, so export still
// works against a database too damaged for the higher-level read paths.
type exportedRow struct {
	ContentHash string   `json:"content_hash"`
	Content     string   `json:"content"`
	MemoryType  string   `json:"memory_type"`
	Tags        string   `json:"tags"`
	Metadata    string   `json:"metadata"`
	CreatedAt   float64  `json:"created_at"`
	UpdatedAt   float64  `json:"updated_at"`
	DeletedAt   *float64 `json:"deleted_at,omitempty"`
}

// emergencyExport dumps every surviving memories row to a timestamped JSON
// file next to the database (spec §4.2, §8's "emergency_export_<unix>.json").
func (m *Monitor) emergencyExport(ctx context.Context) (string, error) {
	rows, err := m.db.Query(`SELECT content_hash, content, memory_type, tags, metadata, created_at, updated_at, deleted_at FROM memories`)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var out []exportedRow
	for rows.Next() {
		var r exportedRow
		var deletedAt sql.NullFloat64
		if err := rows.Scan(&r.ContentHash, &r.Content, &r.MemoryType, &r.Tags, &r.Metadata, &r.CreatedAt, &r.UpdatedAt, &deletedAt); err != nil {
			return "", err
		}
		if deletedAt.Valid {
			d := deletedAt.Float64
			r.DeletedAt = &d
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(m.exportDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(m.exportDir, fmt.Sprintf("emergency_export_%d.json", m.now().Unix()))
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Healthy reports the status as of the most recent check.
func (m *Monitor) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

// History returns a copy of every recorded check event, oldest first.
func (m *Monitor) History() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.history))
	copy(out, m.history)
	return out
}

// Resolve marks an unhealthy event as acknowledged/handled by an operator.
func (m *Monitor) Resolve(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.history {
		if m.history[i].ID == id {
			m.history[i].Resolved = true
			m.history[i].ResolvedAt = m.now()
			return nil
		}
	}
	return fmt.Errorf("no health event with id %s", id)
}
