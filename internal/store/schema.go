package store

// SchemaVersion is the current schema version this build expects. bootstrap
// records it in schema_migrations when it creates a fresh store. Nothing
// compares it against the stored version on open: a store whose recorded
// version is higher than SchemaVersion opens without error.
const SchemaVersion = 1

// schemaDDL is applied, statement by statement, inside the bootstrap
// transaction when the schema_migrations table does not exist yet, and
// re-applied idempotently on every later open. Later versions live in
// internal/migrate as forward-only migration steps; this is version 1's
// shape only.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER NOT NULL,
		applied_at TEXT    NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id                  TEXT PRIMARY KEY,
		title               TEXT NOT NULL,
		description         TEXT NOT NULL DEFAULT '',
		status              TEXT NOT NULL,
		priority            TEXT NOT NULL,
		assignee            TEXT NOT NULL DEFAULT '',
		created_by          TEXT NOT NULL,
		created_at          TEXT NOT NULL,
		updated_at          TEXT NOT NULL,
		completed_at        TEXT,
		success_criteria    TEXT NOT NULL DEFAULT '[]',
		deadline            TEXT,
		estimated_hours     REAL,
		actual_hours        REAL,
		feedback_quality    INTEGER,
		feedback_timeliness INTEGER,
		feedback_notes      TEXT NOT NULL DEFAULT '',
		completion_summary  TEXT NOT NULL DEFAULT '',
		tags                TEXT NOT NULL DEFAULT '[]',
		version             INTEGER NOT NULL DEFAULT 1,
		seq                 INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assignee)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_priority ON tasks(priority)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_deadline ON tasks(deadline)`,
	`CREATE TABLE IF NOT EXISTS dependencies (
		task_id    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		depends_on TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		PRIMARY KEY (task_id, depends_on)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dependencies_depends_on ON dependencies(depends_on)`,
	`CREATE TABLE IF NOT EXISTS participants (
		task_id   TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		agent_id  TEXT NOT NULL,
		joined_at TEXT NOT NULL,
		PRIMARY KEY (task_id, agent_id)
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id            TEXT PRIMARY KEY,
		task_id       TEXT REFERENCES tasks(id) ON DELETE CASCADE,
		kind          TEXT NOT NULL,
		target_agent  TEXT NOT NULL DEFAULT '',
		payload       TEXT NOT NULL,
		created_at    TEXT NOT NULL,
		acknowledged  INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_target ON notifications(target_agent, acknowledged)`,
	`CREATE TABLE IF NOT EXISTS context_entries (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		agent_id   TEXT NOT NULL,
		kind       TEXT NOT NULL,
		text       TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_context_task ON context_entries(task_id)`,
	`CREATE TABLE IF NOT EXISTS private_notes (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
		agent_id   TEXT NOT NULL,
		text       TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notes_task_agent ON private_notes(task_id, agent_id)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id         TEXT PRIMARY KEY,
		op         TEXT NOT NULL,
		task_id    TEXT,
		agent_id   TEXT NOT NULL,
		at         TEXT NOT NULL,
		outcome    TEXT NOT NULL,
		detail     TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_task ON audit_log(task_id)`,
	`CREATE TABLE IF NOT EXISTS hook_invocations (
		id          TEXT PRIMARY KEY,
		hook_name   TEXT NOT NULL,
		op          TEXT NOT NULL,
		task_id     TEXT,
		started_at  TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		decision    TEXT NOT NULL,
		error       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hook_invocations_name ON hook_invocations(hook_name)`,
}
