package lock

import (
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cklxx/taskctl/pkg/errs"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")
	l := New(path)

	release, err := l.Acquire(t.Context(), time.Second)
	require.NoError(t, err)
	release()

	release, err = l.Acquire(t.Context(), time.Second)
	require.NoError(t, err, "a released lock must be reacquirable")
	release()
}

func TestAcquireContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	holder := New(path)
	release, err := holder.Acquire(t.Context(), time.Second)
	require.NoError(t, err)
	defer release()

	waiter := New(path)
	_, err = waiter.Acquire(t.Context(), 150*time.Millisecond)
	var busy *errs.BusyError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, ".lock", busy.Resource)
}

func TestAcquireAfterContenderReleases(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")

	holder := New(path)
	release, err := holder.Acquire(t.Context(), time.Second)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		r, err := New(path).Acquire(t.Context(), 2*time.Second)
		if err == nil {
			r()
		}
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	release()
	require.NoError(t, <-done, "a waiter must win the lock once the holder releases")
}

func TestResolveAgentID(t *testing.T) {
	t.Setenv("TM_AGENT_ID", "")

	id, err := ResolveAgentID("explicit-agent")
	require.NoError(t, err)
	assert.Equal(t, "explicit-agent", id)

	t.Setenv("TM_AGENT_ID", "env-agent")
	id, err = ResolveAgentID("")
	require.NoError(t, err)
	assert.Equal(t, "env-agent", id)

	id, err = ResolveAgentID("explicit-wins")
	require.NoError(t, err)
	assert.Equal(t, "explicit-wins", id)
}

func TestResolveAgentIDValidation(t *testing.T) {
	var invalid *errs.InvalidInputError

	_, err := ResolveAgentID("has spaces")
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "agent_id", invalid.Field)

	_, err = ResolveAgentID(strings.Repeat("a", 65))
	assert.ErrorAs(t, err, &invalid)

	_, err = ResolveAgentID("unicode-é")
	assert.ErrorAs(t, err, &invalid)
}

func TestFallbackAgentIDIsValid(t *testing.T) {
	t.Setenv("TM_AGENT_ID", "")
	id, err := ResolveAgentID("")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`), id)
}
