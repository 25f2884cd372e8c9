// Package backup implements the primary database's snapshot mechanism
// (spec §4.2, §8): a consistent point-in-time copy taken through SQLite's
// online backup API, never a raw file copy of a live database. The
// scheduler that decides when to call Snapshot is out of scope (an
// external, unimplemented collaborator); this package only exposes the
// snapshot operation itself.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/engramhq/engram/internal/logging"
	"github.com/engramhq/engram/internal/store"
)

var log = logging.GetLogger("backup")

// Service takes consistent snapshots of a primary database's file.
type Service struct {
	db  *store.DB
	dir string
	now func() time.Time
}

// NewService builds a Service that writes snapshots under dir.
func NewService(db *store.DB, dir string) *Service {
	return &Service{db: db, dir: dir, now: time.Now}
}

// Snapshot writes a consistent copy of the primary database to
// <dir>/memory_backup_YYYYMMDD_HHMMSS.db via SQLite's online backup API
// and returns the written path.
func (s *Service) Snapshot(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}
	path := filepath.Join(s.dir, fmt.Sprintf("memory_backup_%s.db", s.now().UTC().Format("20060102_150405")))

	destDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return "", fmt.Errorf("open backup destination: %w", err)
	}
	defer destDB.Close()

	if err := s.copyOnline(ctx, destDB); err != nil {
		os.Remove(path)
		return "", err
	}

	log.Info("snapshot written", "path", path)
	return path, nil
}

// copyOnline drives SQLite's backup API: step -1 copies every remaining
// page in one call, holding a read lock on the source for the duration
// rather than pausing writers the way a raw file copy would require.
func (s *Service) copyOnline(ctx context.Context, destDB *sql.DB) error {
	srcConn, err := s.db.Raw().Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire source connection: %w", err)
	}
	defer srcConn.Close()

	destConn, err := destDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire destination connection: %w", err)
	}
	defer destConn.Close()

	return destConn.Raw(func(destDriverConn any) error {
		return srcConn.Raw(func(srcDriverConn any) error {
			destSQLite, ok := destDriverConn.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("destination connection is not a sqlite3 connection")
			}
			srcSQLite, ok := srcDriverConn.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("source connection is not a sqlite3 connection")
			}
			b, err := destSQLite.Backup("main", srcSQLite, "main")
			if err != nil {
				return fmt.Errorf("start backup: %w", err)
			}
			defer b.Close()
			if _, err := b.Step(-1); err != nil {
				return fmt.Errorf("backup step: %w", err)
			}
			return nil
		})
	})
}
