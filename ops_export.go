package taskctl

import (
	"context"

	"github.com/cklxx/taskctl/pkg/types"
)

// Export returns the full aggregate (task, edges, dependents) for every task
// matching filter, for the caller to marshal however it likes. The engine
// never renders Markdown or JSON text itself; human-readable exporters live
// in the front-ends that embed it.
func (e *Engine) Export(ctx context.Context, filter types.Filter) ([]types.Aggregate, error) {
	tasks, err := e.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]types.Aggregate, 0, len(tasks))
	for _, t := range tasks {
		deps, err := e.store.DependsOn(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		dependents, err := e.store.Dependents(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, types.Aggregate{Task: t, DependsOn: deps, Dependents: dependents})
	}
	return out, nil
}
