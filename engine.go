// Package taskctl is a local-filesystem-backed multi-agent task
// coordination engine: a transactional task store with dependency-graph
// integrity, cross-process locking and notification fan-out, a pluggable
// enforcement/hook pipeline, and template instantiation with success
// criteria validation.
package taskctl

import (
	"context"
	"os"

	"github.com/cklxx/taskctl/internal/enforcement"
	"github.com/cklxx/taskctl/internal/hooks"
	"github.com/cklxx/taskctl/internal/lock"
	"github.com/cklxx/taskctl/internal/logging"
	"github.com/cklxx/taskctl/internal/migrate"
	"github.com/cklxx/taskctl/internal/store"
	"github.com/cklxx/taskctl/internal/telemetry"
	"github.com/cklxx/taskctl/internal/workspacefs"
)

// Engine is the programmatic entry point: one instance per open workspace.
// Callers construct it with Open and must call Close when done.
type Engine struct {
	ws      *workspacefs.Workspace
	cfg     workspacefs.Config
	agentID string

	store    *store.Store
	lock     *lock.Lock
	hooks    *hooks.Pipeline
	gate     *enforcement.Gate
	journal  *telemetry.Journal
	meters   *telemetry.Meters
	log      logging.Logger
}

// Options configures Open beyond what workspace config layering covers —
// fields a caller sets in code, not via TM_* env vars or config.json.
type Options struct {
	// WorkspaceRoot overrides the resolved root; when empty, TM_WORKSPACE
	// and then the current working directory are used.
	WorkspaceRoot string
	// AgentID overrides identity resolution (defaults to TM_AGENT_ID then
	// an OS-user-derived fallback).
	AgentID string
	// Checks are the enforcement policy checks to register with the Gate.
	Checks []enforcement.Check
	// Logger overrides the default component logger.
	Logger logging.Logger
}

// Open resolves the workspace, ensures its state directory tree exists, and
// wires up the store, lock, hook pipeline, enforcement gate, and telemetry.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	root := firstNonEmpty(opts.WorkspaceRoot, os.Getenv("TM_WORKSPACE"))
	ws, err := workspacefs.Locate(root)
	if err != nil {
		return nil, &WorkspaceError{Path: root, Err: err}
	}
	if err := ws.Init(); err != nil {
		return nil, &WorkspaceError{Path: ws.StateDir, Err: err}
	}

	cfg, err := workspacefs.LoadConfig(ws)
	if err != nil {
		return nil, &WorkspaceError{Path: ws.Path("config", "config.json"), Err: err}
	}

	agentID, err := lock.ResolveAgentID(firstNonEmpty(opts.AgentID, cfg.AgentID))
	if err != nil {
		return nil, err
	}

	log := logging.OrNop(opts.Logger).With("engine")

	channelDirs := store.ChannelDirs{
		Contexts:      ws.Path("contexts"),
		Notes:         ws.Path("notes"),
		Notifications: ws.Path("notifications"),
	}
	st, err := store.Open(ws.StorePath(), cfg.LockTimeout, channelDirs, log)
	if err != nil {
		return nil, err
	}

	hooksDir := cfg.HooksDir
	if hooksDir == "hooks" {
		hooksDir = ws.Path("hooks")
	}
	pipeline, err := hooks.New(hooksDir, cfg.HookTimeout, log,
		hooks.WithStrict(cfg.Enforcement == workspacefs.EnforcementStrict),
		hooks.WithRecorder(&hookRecorderAdapter{st}),
		hooks.WithWorkspaceRoot(ws.Root),
	)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	// Auto-enable strict mode when multiple orchestration heuristics
	// match, regardless of the configured mode.
	mode := enforcement.Mode(cfg.Enforcement)
	priorMultiAgent, _ := st.HasMultipleAgents(context.Background())
	if enforcement.DetectOrchestrationContext(hooksDirHasEntries(hooksDir), priorMultiAgent) {
		mode = enforcement.ModeStrict
	}

	checks := opts.Checks
	if len(checks) == 0 {
		checks = []enforcement.Check{
			enforcement.AgentIdentityCheck{},
			enforcement.WorkspaceInitializedCheck{Initialized: ws.Initialized},
			enforcement.CommanderIntentCheck{},
		}
	}
	gate := enforcement.New(mode, checks...)

	journal, err := telemetry.NewJournal(ws.Path("telemetry", "events.log"))
	if err != nil {
		_ = st.Close()
		_ = pipeline.Close()
		return nil, err
	}

	meters, _, err := telemetry.NewMeters()
	if err != nil {
		_ = st.Close()
		_ = pipeline.Close()
		return nil, err
	}

	return &Engine{
		ws:      ws,
		cfg:     cfg,
		agentID: agentID,
		store:   st,
		lock:    lock.New(ws.LockPath()),
		hooks:   pipeline,
		gate:    gate,
		journal: journal,
		meters:  meters,
		log:     log,
	}, nil
}

// Close releases the engine's resources. It does not delete any on-disk
// state.
func (e *Engine) Close() error {
	_ = e.hooks.Close()
	_ = e.meters.Shutdown(context.Background())
	return e.store.Close()
}

// AgentID returns the identity this Engine instance resolved to.
func (e *Engine) AgentID() string { return e.agentID }

// migrator builds a migrate.Migrator bound to this engine's store. The
// forward migration list is empty today (schema version 1 is the only one
// that exists); future schema bumps register their Up steps here.
func (e *Engine) migrator() *migrate.Migrator {
	return migrate.New(e.store.DB(), e.store.Path(), e.ws.Path("backups"), nil)
}

// hookRecorderAdapter bridges store.Store's HookInvocation shape to the
// hooks.Recorder interface without internal/hooks importing internal/store.
type hookRecorderAdapter struct{ s *store.Store }

func (a *hookRecorderAdapter) RecordHookInvocation(ctx context.Context, inv hooks.Invocation) error {
	return a.s.RecordHookInvocation(ctx, store.HookInvocation{
		HookName: inv.HookName, Op: inv.Op, TaskID: inv.TaskID,
		StartedAt: inv.StartedAt, DurationMs: inv.DurationMs,
		Decision: inv.Decision, Error: inv.Error,
	})
}

// hooksDirHasEntries reports whether dir exists and contains at least one
// entry, one of the heuristics DetectOrchestrationContext weighs.
func hooksDirHasEntries(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// withLock acquires the workspace lock for the duration of fn, releasing it
// on return. Add, Update, Delete, Assign, Complete, AddDependency,
// ApplyTemplate and Migrate take it around their store mutation; Feedback,
// Progress, Join, Note, Share, Sync and Discover do not take it.
func (e *Engine) withLock(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := e.lock.Acquire(ctx, e.cfg.LockTimeout)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}
