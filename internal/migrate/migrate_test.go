package migrate_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cklxx/taskctl/internal/logging"
	"github.com/cklxx/taskctl/internal/migrate"
	"github.com/cklxx/taskctl/internal/store"
	"github.com/cklxx/taskctl/pkg/errs"
)

func openStore(t *testing.T) (*store.Store, string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "tasks.db")
	channels := store.ChannelDirs{
		Contexts:      filepath.Join(dir, "contexts"),
		Notes:         filepath.Join(dir, "notes"),
		Notifications: filepath.Join(dir, "notifications"),
	}
	s, err := store.Open(dbPath, 2*time.Second, channels, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dbPath, filepath.Join(dir, "backups")
}

func TestCurrentVersionAfterBootstrap(t *testing.T) {
	s, dbPath, backups := openStore(t)
	m := migrate.New(s.DB(), dbPath, backups, nil)

	v, err := m.CurrentVersion(t.Context())
	require.NoError(t, err)
	assert.Equal(t, store.SchemaVersion, v)
}

func TestMigrateAppliesForwardSteps(t *testing.T) {
	s, dbPath, backups := openStore(t)

	m := migrate.New(s.DB(), dbPath, backups, []migrate.Migration{
		{
			Version: 2,
			Name:    "add tasks.review_notes",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `ALTER TABLE tasks ADD COLUMN review_notes TEXT`)
				return err
			},
		},
	})
	require.NoError(t, m.Migrate(t.Context()))

	v, err := m.CurrentVersion(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	// The new nullable column is queryable.
	var n int
	row := s.DB().QueryRow(`SELECT COUNT(*) FROM tasks WHERE review_notes IS NULL`)
	require.NoError(t, row.Scan(&n))

	entries, err := os.ReadDir(backups)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "each applied migration snapshots the db file first")

	require.NoError(t, m.Migrate(t.Context()), "migrating an up-to-date store is a no-op")
	entries, err = os.ReadDir(backups)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "a no-op migration run takes no backup")
}

func TestMigrateRollsBackFailedStep(t *testing.T) {
	s, dbPath, backups := openStore(t)

	boom := errors.New("boom")
	m := migrate.New(s.DB(), dbPath, backups, []migrate.Migration{
		{
			Version: 2,
			Name:    "partial then fail",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				if _, err := tx.ExecContext(ctx, `CREATE TABLE half_applied (id TEXT)`); err != nil {
					return err
				}
				return boom
			},
		},
	})

	err := m.Migrate(t.Context())
	var mismatch *errs.SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, store.SchemaVersion, mismatch.StoredVersion)
	assert.Equal(t, 2, mismatch.WantVersion)

	v, verr := m.CurrentVersion(t.Context())
	require.NoError(t, verr)
	assert.Equal(t, store.SchemaVersion, v, "a failed migration must not advance the version")

	var count int
	row := s.DB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='half_applied'`)
	require.NoError(t, row.Scan(&count))
	assert.Zero(t, count, "the failed step's partial DDL must have rolled back")
}

func TestMigrateAppliesInOrder(t *testing.T) {
	s, dbPath, backups := openStore(t)

	var applied []int
	step := func(v int) migrate.Migration {
		return migrate.Migration{
			Version: v,
			Name:    "record order",
			Up: func(ctx context.Context, tx *sql.Tx) error {
				applied = append(applied, v)
				return nil
			},
		}
	}
	m := migrate.New(s.DB(), dbPath, backups, []migrate.Migration{step(2), step(3), step(4)})
	require.NoError(t, m.Migrate(t.Context()))
	assert.Equal(t, []int{2, 3, 4}, applied)

	v, err := m.CurrentVersion(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 4, v)
}
