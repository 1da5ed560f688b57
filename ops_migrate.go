package taskctl

import "context"

// Migrate applies any pending forward schema migrations, backing up the
// store file beforehand. With only schema version 1 defined so far this is
// a no-op in practice; it exists so a future schema bump has somewhere to
// register its migration without changing the Engine surface.
func (e *Engine) Migrate(ctx context.Context) error {
	return e.withLock(ctx, func(ctx context.Context) error {
		return e.migrator().Migrate(ctx)
	})
}
