// Package store is the embedded SQL task store: a single
// modernc.org/sqlite file per workspace, every mutation inside one
// transaction, a read-through cache in front of hot single-task reads, and
// exponential-backoff retry around SQLITE_BUSY.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"

	"github.com/cklxx/taskctl/internal/logging"
	"github.com/cklxx/taskctl/pkg/types"
)

// Store wraps the database handle, a read-through cache keyed by task id,
// and the busy-retry policy derived from the workspace's lock timeout.
type Store struct {
	db          *sql.DB
	path        string
	cache       *lru.Cache[string, types.Task]
	flight      singleflight.Group
	busyTimeout time.Duration
	log         logging.Logger

	channels ChannelDirs
}

// ChannelDirs are the three context-channel directories the store appends
// NDJSON log files into alongside their store rows: contexts/<task>.log,
// notes/<task>_<agent>.log, and notifications/broadcast.log.
type ChannelDirs struct {
	Contexts      string
	Notes         string
	Notifications string
}

const defaultCacheSize = 512

// Open opens (creating if absent) the sqlite file at path in WAL mode with
// foreign keys enforced, and bootstraps the schema if the schema_migrations
// table does not exist yet. busyTimeout both sets sqlite's own busy_timeout
// pragma and bounds the application-level retry loop in withTx. channels locates the on-disk
// Context Channels log files this Store keeps in sync with its rows.
func Open(path string, busyTimeout time.Duration, channels ChannelDirs, log logging.Logger) (*Store, error) {
	log = logging.OrNop(log).With("store")
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway; avoids pool-level lock contention
	cache, err := lru.New[string, types.Task](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("store: cache init: %w", err)
	}
	s := &Store{db: db, path: path, cache: cache, busyTimeout: busyTimeout, log: log, channels: channels}
	if err := s.bootstrap(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying connection for the migrate package, which needs
// to run its own transactions alongside Store's.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the sqlite file path this Store was opened against.
func (s *Store) Path() string { return s.path }

func (s *Store) bootstrap(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var count int
		row := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'`)
		if err := row.Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			for _, stmt := range schemaDDL {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("store: bootstrap ddl: %w", err)
				}
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, ?)`,
				SchemaVersion, nowRFC3339())
			return err
		}
		for _, stmt := range schemaDDL {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("store: ddl idempotent apply: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) invalidate(taskID string) {
	s.cache.Remove(taskID)
	s.flight.Forget(taskID)
}

func (s *Store) contextLogPath(taskID string) string {
	return filepath.Join(s.channels.Contexts, taskID+".log")
}

func (s *Store) noteLogPath(taskID, agentID string) string {
	return filepath.Join(s.channels.Notes, taskID+"_"+agentID+".log")
}

func (s *Store) broadcastLogPath() string {
	return filepath.Join(s.channels.Notifications, "broadcast.log")
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func nowUTC() time.Time { return time.Now().UTC() }
