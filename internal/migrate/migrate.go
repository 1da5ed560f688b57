// Package migrate detects the stored schema
// version, applies any pending forward migrations each inside its own
// transaction, and snapshots the database file to backups/ before each step
// so a failed migration can be restored from.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cklxx/taskctl/pkg/errs"
)

// Migration is one forward schema step.
type Migration struct {
	Version int
	Name    string
	Up      func(ctx context.Context, tx *sql.Tx) error
}

// Migrator applies Migrations in ascending version order against a db file,
// backing it up beforehand.
type Migrator struct {
	db         *sql.DB
	dbPath     string
	backupsDir string
	migrations []Migration
}

func New(db *sql.DB, dbPath, backupsDir string, migrations []Migration) *Migrator {
	return &Migrator{db: db, dbPath: dbPath, backupsDir: backupsDir, migrations: migrations}
}

// CurrentVersion returns the highest applied version, or 0 if the
// schema_migrations table is empty. An absent table is returned as an error.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	row := m.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("migrate: read current version: %w", err)
	}
	return version, nil
}

// Migrate applies every migration with Version greater than the current
// stored version, in ascending order. Each step runs in its own transaction
// preceded by a file backup; if a step fails, the partially-applied
// transaction is rolled back automatically by sql.Tx and the backup remains
// available for manual restore — Migrate does not restore automatically,
// since a partially-upgraded process should stop and surface the error
// rather than silently swap files out from under an open connection.
func (m *Migrator) Migrate(ctx context.Context) error {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}
		if err := m.backup(current); err != nil {
			return err
		}
		if err := m.applyOne(ctx, mig); err != nil {
			return &errs.SchemaMismatchError{StoredVersion: current, WantVersion: mig.Version, Err: err}
		}
		current = mig.Version
	}
	return nil
}

func (m *Migrator) applyOne(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := mig.Up(ctx, tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", mig.Version, mig.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, ?)`,
		mig.Version, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (m *Migrator) backup(fromVersion int) error {
	if err := os.MkdirAll(m.backupsDir, 0o755); err != nil {
		return fmt.Errorf("migrate: create backups dir: %w", err)
	}
	dst := filepath.Join(m.backupsDir, fmt.Sprintf("tasks_v%d_%d.db", fromVersion, time.Now().UTC().UnixNano()))
	src, err := os.Open(m.dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("migrate: open db for backup: %w", err)
	}
	defer src.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("migrate: create backup file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("migrate: copy backup: %w", err)
	}
	return nil
}
