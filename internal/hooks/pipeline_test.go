package hooks

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cklxx/taskctl/pkg/errs"
)

func writeHook(t *testing.T, dir, name, script string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(script), 0o755))
}

const approveScript = "#!/bin/sh\necho '{\"decision\":\"approve\"}'\n"
const blockScript = "#!/bin/sh\necho '{\"decision\":\"block\",\"reason\":\"policy says no\"}'\n"

func TestClassify(t *testing.T) {
	d, ok := classify("/ws/hooks/pre_add")
	require.True(t, ok)
	assert.Equal(t, StagePre, d.Stage)
	assert.Equal(t, "add", d.Op)
	assert.Equal(t, "pre_add", d.Name)

	d, ok = classify("/ws/hooks/post_complete.sh")
	require.True(t, ok)
	assert.Equal(t, StagePost, d.Stage)
	assert.Equal(t, "complete", d.Op)

	d, ok = classify("/ws/hooks/on_discovery")
	require.True(t, ok)
	assert.Equal(t, StageOn, d.Stage)
	assert.Equal(t, "discovery", d.Op)

	_, ok = classify("/ws/hooks/README.md")
	assert.False(t, ok)
}

func TestRegistryScopesByStageAndOp(t *testing.T) {
	dir := t.TempDir()
	writeHook(t, dir, "pre_add", approveScript)
	writeHook(t, dir, "post_add", approveScript)
	writeHook(t, dir, "pre_delete", approveScript)
	writeHook(t, dir, "notes.txt", "not a hook")

	reg, err := NewRegistry(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	hooks := reg.For(StagePre, "add")
	require.Len(t, hooks, 1)
	assert.Equal(t, "pre_add", hooks[0].Name)
	assert.Empty(t, reg.For(StageOn, "add"))
	assert.Len(t, reg.For(StagePost, "add"), 1)
}

func TestRunPre_Block(t *testing.T) {
	dir := t.TempDir()
	writeHook(t, dir, "pre_add", blockScript)

	p, err := New(dir, 5*time.Second, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	err = p.RunPre(t.Context(), "add", "t1", "agent-a", nil)
	var blocked *errs.HookBlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, "pre_add", blocked.Hook)
	assert.Equal(t, "policy says no", blocked.Reason)
}

func TestRunPre_Approve(t *testing.T) {
	dir := t.TempDir()
	writeHook(t, dir, "pre_add", approveScript)

	p, err := New(dir, 5*time.Second, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	assert.NoError(t, p.RunPre(t.Context(), "add", "t1", "agent-a", nil))
}

func TestRunPre_TimeoutStrictVsLax(t *testing.T) {
	dir := t.TempDir()
	writeHook(t, dir, "pre_add", "#!/bin/sh\nsleep 5\n")

	strict, err := New(dir, 100*time.Millisecond, nil, WithStrict(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = strict.Close() })

	err = strict.RunPre(t.Context(), "add", "t1", "agent-a", nil)
	var timeout *errs.HookTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "pre_add", timeout.Hook)

	lax, err := New(dir, 100*time.Millisecond, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lax.Close() })

	assert.NoError(t, lax.RunPre(t.Context(), "add", "t1", "agent-a", nil),
		"a timed-out hook resolves fail-open outside strict mode")
}

func TestRunPre_MalformedOutputFailsOpen(t *testing.T) {
	dir := t.TempDir()
	writeHook(t, dir, "pre_add", "#!/bin/sh\necho 'this is not json'\n")

	lax, err := New(dir, 5*time.Second, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lax.Close() })
	assert.NoError(t, lax.RunPre(t.Context(), "add", "t1", "agent-a", nil))

	strict, err := New(dir, 5*time.Second, nil, WithStrict(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = strict.Close() })
	err = strict.RunPre(t.Context(), "add", "t1", "agent-a", nil)
	var hookErr *errs.HookError
	assert.ErrorAs(t, err, &hookErr)
}

func TestRunPre_FailClosed(t *testing.T) {
	dir := t.TempDir()
	writeHook(t, dir, "pre_add", "#!/bin/sh\nexit 1\n")

	p, err := New(dir, 5*time.Second, nil, WithFailMode(FailClosed))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	err = p.RunPre(t.Context(), "add", "t1", "agent-a", nil)
	var blocked *errs.HookBlockedError
	assert.ErrorAs(t, err, &blocked)
}

func TestRunPost_NeverFatal(t *testing.T) {
	dir := t.TempDir()
	writeHook(t, dir, "post_add", blockScript)

	p, err := New(dir, 5*time.Second, nil, WithStrict(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	// Block decisions and errors from post hooks are observed, not enforced.
	p.RunPost(t.Context(), "add", "t1", "agent-a", nil)
}

func TestHookEnvironmentIsRestricted(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(t.TempDir(), "env-dump")
	writeHook(t, dir, "pre_add", "#!/bin/sh\nenv > "+marker+"\necho '{\"decision\":\"approve\"}'\n")
	t.Setenv("TM_SECRET_LEAK", "should-not-appear")

	p, err := New(dir, 5*time.Second, nil, WithWorkspaceRoot(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	require.NoError(t, p.RunPre(t.Context(), "add", "t1", "agent-a", nil))

	dump, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.NotContains(t, string(dump), "TM_SECRET_LEAK")
	assert.Contains(t, string(dump), "TM_AGENT_ID=agent-a")
	assert.Contains(t, string(dump), "TM_OPERATION=add")
}

func TestCircuitBreakerStateMachine(t *testing.T) {
	cb := newCircuitBreaker("pre_add", 3, 50*time.Millisecond, nil)

	for i := 0; i < 3; i++ {
		require.True(t, cb.allow())
		cb.recordFailure()
	}
	assert.False(t, cb.allow(), "three consecutive failures must open the circuit")

	time.Sleep(60 * time.Millisecond)
	assert.True(t, cb.allow(), "an elapsed open timeout transitions to half-open")

	cb.recordSuccess()
	cb.recordSuccess()
	assert.True(t, cb.allow())
	cb.recordFailure()
	assert.True(t, cb.allow(), "one failure in a closed circuit must not trip it")
}

func TestCircuitOpenSkipsInvocation(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(t.TempDir(), "invocations")
	writeHook(t, dir, "pre_add", "#!/bin/sh\necho x >> "+marker+"\nexit 1\n")

	p, err := New(dir, 5*time.Second, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	// Trip the breaker (threshold 5), then confirm the subprocess stops
	// being spawned while the circuit stays open.
	for i := 0; i < 7; i++ {
		_ = p.RunPre(t.Context(), "add", "t1", "agent-a", nil)
	}
	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	assert.Equal(t, 5, lines, "invocations past the failure threshold must be skipped")
}
