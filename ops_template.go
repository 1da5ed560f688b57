package taskctl

import (
	"context"
	"time"

	"github.com/cklxx/taskctl/internal/enforcement"
	"github.com/cklxx/taskctl/internal/idgen"
	"github.com/cklxx/taskctl/internal/store"
	"github.com/cklxx/taskctl/internal/template"
	"github.com/cklxx/taskctl/pkg/errs"
	"github.com/cklxx/taskctl/pkg/types"
)

// ApplyTemplate parses a YAML template document, resolves its variables
// against values, and instantiates every declared task with depends_on
// indices rewritten to the freshly-assigned task ids. Instantiation is
// all-or-nothing: either the whole batch commits or none of it does.
func (e *Engine) ApplyTemplate(ctx context.Context, doc []byte, values template.Values) ([]types.Task, error) {
	spec, err := template.Parse(doc)
	if err != nil {
		return nil, err
	}
	resolved, err := template.Resolve(spec, values)
	if err != nil {
		return nil, err
	}
	stubs, err := template.Instantiate(spec, resolved)
	if err != nil {
		return nil, err
	}

	// Every id in the batch must be unique both against the store and
	// against its own siblings — the siblings aren't committed yet, so
	// exists also checks the ids already claimed earlier in this loop.
	ids := make([]string, len(stubs))
	claimed := make(map[string]bool, len(stubs))
	for i := range stubs {
		id, err := idgen.Unique(func(candidate string) (bool, error) {
			if claimed[candidate] {
				return true, nil
			}
			return e.store.TaskExists(ctx, candidate)
		})
		if err != nil {
			return nil, err
		}
		claimed[id] = true
		ids[i] = id
	}

	now := time.Now().UTC()
	batch := make([]store.TaskWithEdges, len(stubs))
	for i, stub := range stubs {
		dependsOn := make([]string, len(stub.DependsOn))
		for j, idx := range stub.DependsOn {
			dependsOn[j] = ids[idx]
		}
		status := types.StatusPending
		if len(dependsOn) > 0 {
			status = types.StatusBlocked
		}
		priority := types.Priority(stub.Priority)
		if priority == "" {
			priority = types.PriorityMedium
		}
		batch[i] = store.TaskWithEdges{
			Task: types.Task{
				ID:              ids[i],
				Title:           stub.Title,
				Description:     stub.Description,
				Status:          status,
				Priority:        priority,
				CreatedBy:       e.agentID,
				CreatedAt:       now,
				UpdatedAt:       now,
				SuccessCriteria: stub.SuccessCriteria,
				EstimatedHours:  stub.EstimatedHours,
				Tags:            stub.Tags,
				Version:         1,
			},
			DependsOn: dependsOn,
		}
	}

	var created []types.Task
	err = e.withLock(ctx, func(ctx context.Context) error {
		decision := e.gate.Validate(ctx, enforcement.OperationContext{Op: "template_apply", AgentID: e.agentID})
		if err := decision.Err(); err != nil {
			return err
		}
		if err := e.store.AddTasks(ctx, batch,
			store.AuditEntry{Op: "template_apply", AgentID: e.agentID, Outcome: "ok", Detail: spec.Metadata.Name}); err != nil {
			return &errs.TemplateError{Detail: "instantiating template " + spec.Metadata.Name, Err: err}
		}
		for _, item := range batch {
			created = append(created, item.Task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	_ = e.journal.Write(journalEvent("template_apply", "", e.agentID))
	return created, nil
}
