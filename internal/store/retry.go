package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cklxx/taskctl/pkg/errs"
)

// withTx runs fn inside a transaction, retrying the whole attempt on
// SQLITE_BUSY with exponential backoff: context-cancellable wait, debug
// logging around each attempt, backoff math from cenkalti/backoff/v4.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 1 * time.Second
	policy.MaxElapsedTime = s.busyTimeout
	bo := backoff.WithContext(policy, ctx)

	attempt := 0
	operation := func() error {
		attempt++
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			if isBusy(err) {
				s.log.Debug("begin tx busy, attempt %d", attempt)
				return err
			}
			return backoff.Permanent(err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			if isBusy(err) {
				s.log.Debug("tx busy, attempt %d", attempt)
				return err
			}
			return backoff.Permanent(err)
		}
		if err := tx.Commit(); err != nil {
			if isBusy(err) {
				s.log.Debug("commit busy, attempt %d", attempt)
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	err := backoff.Retry(operation, bo)
	if err == nil {
		return nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	if isBusy(err) {
		return &errs.BusyError{Resource: "store", Err: err}
	}
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "busy") || strings.Contains(msg, "locked")
}
