// Package lock implements the coordination layer's cross-process mutual
// exclusion: a flock-backed advisory lock on the workspace's .lock file,
// and agent identity resolution.
package lock

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"regexp"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/cklxx/taskctl/pkg/errs"
)

// Lock wraps a gofrs/flock file lock scoped to one workspace.
type Lock struct {
	fl *flock.Flock
}

// New returns a Lock bound to path (typically <workspace>/.lock). The file
// is created on first acquisition if absent.
func New(path string) *Lock {
	return &Lock{fl: flock.New(path)}
}

// Acquire blocks (polling, matching gofrs/flock's TryLockContext contract)
// until the lock is held or ctx/timeout expires.
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) (func(), error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ok, err := l.fl.TryLockContext(cctx, 25*time.Millisecond)
	if err != nil {
		return nil, &errs.BusyError{Resource: ".lock", Err: err}
	}
	if !ok {
		return nil, &errs.BusyError{Resource: ".lock", Err: cctx.Err()}
	}
	return func() { _ = l.fl.Unlock() }, nil
}

var agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ResolveAgentID resolves identity by precedence: an explicit value wins,
// then TM_AGENT_ID, then an OS-user-and-pgid-derived fallback id: processes
// in different process groups get distinct ids, while processes sharing a
// process group resolve to the same id.
func ResolveAgentID(explicit string) (string, error) {
	candidate := explicit
	if candidate == "" {
		candidate = os.Getenv("TM_AGENT_ID")
	}
	if candidate == "" {
		candidate = fallbackAgentID()
	}
	if !agentIDPattern.MatchString(candidate) {
		return "", &errs.InvalidInputError{Field: "agent_id", Reason: "must match [A-Za-z0-9_-]{1,64}"}
	}
	return candidate, nil
}

// fallbackAgentID derives a stable-within-process-group identity from the OS
// username and process group id, so sibling processes launched
// by the same orchestrator (sharing a pgid) resolve to the same agent.
func fallbackAgentID() string {
	name := "agent"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = sanitize(u.Username)
	}
	pgid, err := syscall.Getpgid(os.Getpid())
	if err != nil {
		pgid = os.Getpid()
	}
	return fmt.Sprintf("%s-%s", name, strconv.Itoa(pgid))
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}
