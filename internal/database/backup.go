package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"urbanharvest/internal/config"

	"github.com/rs/zerolog"
)

const (
	snapshotPrefix     = "ledger_"
	snapshotExt        = ".db"
	snapshotTimeLayout = "20060102T150405Z"
)

// Snapshot describes one verified copy of the ledger.
type Snapshot struct {
	Path     string
	TakenAt  time.Time
	Size     int64
	Users    int
	Bookings int
}

// BackupService writes consistent snapshots of the live ledger with
// VACUUM INTO and prunes the ones past retention. A snapshot only gets its
// final name after it passed an integrity check.
type BackupService struct {
	db     *DB
	cfg    config.BackupConfig
	logger *zerolog.Logger
	now    func() time.Time
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BackupService{db: db, cfg: cfg, logger: logger, now: time.Now}
}

// Start snapshots right away and then every interval until ctx is done.
func (s *BackupService) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info().Msg("ledger backups disabled")
		return
	}
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	s.logger.Info().Dur("interval", interval).Str("dir", s.cfg.StoragePath).Msg("ledger backups started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *BackupService) runOnce(ctx context.Context) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("ledger snapshot failed")
		return
	}
	s.logger.Info().
		Str("path", snap.Path).
		Int64("bytes", snap.Size).
		Int("users", snap.Users).
		Int("bookings", snap.Bookings).
		Msg("ledger snapshot written")

	if removed, err := s.Prune(); err != nil {
		s.logger.Warn().Err(err).Msg("prune ledger snapshots")
	} else if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("old ledger snapshots pruned")
	}
}

// Snapshot copies the ledger through the open connection, so in-memory
// databases and uncommitted-to-disk pages are covered too.
func (s *BackupService) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := os.MkdirAll(s.cfg.StoragePath, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	takenAt := s.now().UTC()
	final := filepath.Join(s.cfg.StoragePath, snapshotPrefix+takenAt.Format(snapshotTimeLayout)+snapshotExt)
	partial := final + ".partial"
	_ = os.Remove(partial)

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", partial); err != nil {
		_ = os.Remove(partial)
		return nil, fmt.Errorf("vacuum into %s: %w", partial, err)
	}

	snap, err := inspectSnapshot(ctx, partial)
	if err != nil {
		_ = os.Remove(partial)
		return nil, err
	}
	if err := os.Rename(partial, final); err != nil {
		_ = os.Remove(partial)
		return nil, fmt.Errorf("finalize snapshot: %w", err)
	}
	snap.Path = final
	snap.TakenAt = takenAt
	return snap, nil
}

func inspectSnapshot(ctx context.Context, path string) (*Snapshot, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer db.Close()

	var check string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&check); err != nil {
		return nil, fmt.Errorf("snapshot integrity check: %w", err)
	}
	if check != "ok" {
		return nil, fmt.Errorf("snapshot integrity check: %s", check)
	}

	snap := &Snapshot{}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&snap.Users); err != nil {
		return nil, fmt.Errorf("count snapshot users: %w", err)
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings").Scan(&snap.Bookings); err != nil {
		return nil, fmt.Errorf("count snapshot bookings: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	snap.Size = info.Size()
	return snap, nil
}

// Prune removes snapshots older than retention_days, judged by the time in
// their name. Other files in the directory are left alone.
func (s *BackupService) Prune() (int, error) {
	if s.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.cfg.StoragePath)
	if err != nil {
		return 0, fmt.Errorf("read backup dir: %w", err)
	}

	cutoff := s.now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)
	removed := 0
	var errs []error
	for _, e := range entries {
		takenAt, ok := snapshotTime(e)
		if !ok || !takenAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.StoragePath, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func snapshotTime(e os.DirEntry) (time.Time, bool) {
	name := e.Name()
	if e.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotExt) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotExt)
	t, err := time.Parse(snapshotTimeLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
