package taskctl

import (
	"context"
	"time"

	"github.com/cklxx/taskctl/internal/safego"
	"github.com/cklxx/taskctl/internal/store"
	"github.com/cklxx/taskctl/pkg/types"
)

// Assign sets a task's assignee and notifies them.
func (e *Engine) Assign(ctx context.Context, taskID, assignee string) (types.Task, error) {
	var out types.Task
	err := e.withLock(ctx, func(ctx context.Context) error {
		if err := e.hooks.RunPre(ctx, "assign", taskID, e.agentID, map[string]any{"assignee": assignee}); err != nil {
			return err
		}
		t, err := e.store.UpdateTask(ctx, taskID, 0, func(t *types.Task) { t.Assignee = assignee },
			store.AuditEntry{Op: "assign", TaskID: taskID, AgentID: e.agentID, Outcome: "ok", Detail: assignee})
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return types.Task{}, err
	}
	e.hooks.RunPost(ctx, "assign", taskID, e.agentID, nil)
	_ = e.journal.Write(journalEvent("assign", taskID, e.agentID))
	if assignee != "" {
		_, _ = e.store.Notify(ctx, types.Notification{TaskID: taskID, Kind: types.NotificationAssigned, TargetAgent: assignee, Payload: "assigned: " + out.Title})
	}
	return out, nil
}

// Join records the calling agent as a participant on a task.
func (e *Engine) Join(ctx context.Context, taskID string) error {
	return e.store.Join(ctx, taskID, e.agentID)
}

// Share appends a shared-context update visible to every participant. The
// writer implicitly joins the task — participant-scoped visibility would
// otherwise deny the writer its own entry on the next read.
func (e *Engine) Share(ctx context.Context, taskID, text string) (types.ContextEntry, error) {
	if err := e.store.Join(ctx, taskID, e.agentID); err != nil {
		return types.ContextEntry{}, err
	}
	entry, err := e.store.AddContextEntry(ctx, types.ContextEntry{TaskID: taskID, AgentID: e.agentID, Kind: types.ContextShare, Text: text})
	if err != nil {
		return types.ContextEntry{}, err
	}
	_ = e.journal.Write(journalEvent("share", taskID, e.agentID))
	return entry, nil
}

// Sync appends a synchronization checkpoint entry, the same shared-context
// mechanism as Share under a different kind tag for downstream filtering.
func (e *Engine) Sync(ctx context.Context, taskID, text string) (types.ContextEntry, error) {
	if err := e.store.Join(ctx, taskID, e.agentID); err != nil {
		return types.ContextEntry{}, err
	}
	entry, err := e.store.AddContextEntry(ctx, types.ContextEntry{TaskID: taskID, AgentID: e.agentID, Kind: types.ContextSync, Text: text})
	if err != nil {
		return types.ContextEntry{}, err
	}
	_ = e.journal.Write(journalEvent("sync", taskID, e.agentID))
	return entry, nil
}

// Discover appends a high-priority discovery entry and broadcasts a
// notification to every agent.
func (e *Engine) Discover(ctx context.Context, taskID, text string) (types.ContextEntry, error) {
	if err := e.store.Join(ctx, taskID, e.agentID); err != nil {
		return types.ContextEntry{}, err
	}
	entry, err := e.store.AddContextEntry(ctx, types.ContextEntry{TaskID: taskID, AgentID: e.agentID, Kind: types.ContextDiscover, Text: text})
	if err != nil {
		return types.ContextEntry{}, err
	}
	e.hooks.RunOn(ctx, "discovery", taskID, e.agentID, map[string]any{"text": text})
	_ = e.journal.Write(journalEvent("discover", taskID, e.agentID))
	_, _ = e.store.Notify(ctx, types.Notification{TaskID: taskID, Kind: types.NotificationDiscovery, Payload: text})
	return entry, nil
}

// Context returns the shared-context stream for a task, scoped to what the
// calling agent is authorized to see: only participants of the task have
// visibility, so a non-participant reads back nothing.
func (e *Engine) Context(ctx context.Context, taskID string) ([]types.ContextEntry, error) {
	ok, err := e.store.IsParticipant(ctx, taskID, e.agentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return e.store.ContextEntries(ctx, taskID)
}

// Note appends a private, single-reader scratch note.
func (e *Engine) Note(ctx context.Context, taskID, text string) error {
	return e.store.AddPrivateNote(ctx, types.PrivateNote{TaskID: taskID, AgentID: e.agentID, Text: text})
}

// Notes returns the calling agent's own private notes on a task.
func (e *Engine) Notes(ctx context.Context, taskID string) ([]types.PrivateNote, error) {
	return e.store.PrivateNotes(ctx, taskID, e.agentID)
}

// Watch polls the calling agent's notification inbox at interval, sending
// each batch on the returned channel until ctx is cancelled, at which point
// the channel is closed. There is no OS-level inotify-style push here:
// delivery only promises eventual fan-out to a watching agent, and polling
// the store is the simplest correct way to do that without a network
// service.
func (e *Engine) Watch(ctx context.Context, interval time.Duration) <-chan []types.Notification {
	if interval <= 0 {
		interval = time.Second
	}
	out := make(chan []types.Notification)
	safego.Go(e.log, "watch", func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				notes, err := e.store.Inbox(ctx, e.agentID)
				if err != nil || len(notes) == 0 {
					continue
				}
				// Acknowledge the batch before handing it off so a slow or
				// cancelled receiver never causes the same notifications to
				// be redelivered.
				for _, n := range notes {
					_ = e.store.Acknowledge(ctx, n.ID)
				}
				select {
				case out <- notes:
				case <-ctx.Done():
					return
				}
			}
		}
	})
	return out
}
