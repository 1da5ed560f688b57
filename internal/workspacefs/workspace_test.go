package workspacefs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"TM_AGENT_ID", "TM_ENFORCEMENT", "TM_LOCK_TIMEOUT", "TM_HOOK_TIMEOUT", "TM_HOOKS_DIR"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLocateExplicitRoot(t *testing.T) {
	root := t.TempDir()
	ws, err := Locate(root)
	require.NoError(t, err)
	assert.Equal(t, root, ws.Root)
	assert.Equal(t, filepath.Join(root, StateDirName), ws.StateDir)
}

func TestLocateDefaultsToCwd(t *testing.T) {
	ws, err := Locate("")
	require.NoError(t, err)
	wd, _ := os.Getwd()
	assert.Equal(t, wd, ws.Root)
}

func TestInitIdempotent(t *testing.T) {
	root := t.TempDir()
	ws, err := Locate(root)
	require.NoError(t, err)

	require.NoError(t, ws.Init())
	assert.True(t, ws.Initialized())

	for _, d := range []string{"contexts", "notes", "notifications", "archives", "backups", "logs", "telemetry", "config", "hooks"} {
		info, err := os.Stat(ws.Path(d))
		require.NoError(t, err, "missing state subdirectory %s", d)
		assert.True(t, info.IsDir())
	}

	require.NoError(t, ws.Init(), "repeat init on an existing workspace must not error")
}

func TestInitialized(t *testing.T) {
	root := t.TempDir()
	ws, err := Locate(root)
	require.NoError(t, err)
	assert.False(t, ws.Initialized())
	require.NoError(t, ws.Init())
	assert.True(t, ws.Initialized())
}

func TestPaths(t *testing.T) {
	ws := &Workspace{Root: "/w", StateDir: "/w/.task-orchestrator"}
	assert.Equal(t, "/w/.task-orchestrator/tasks.db", ws.StorePath())
	assert.Equal(t, "/w/.task-orchestrator/.lock", ws.LockPath())
	assert.Equal(t, "/w/.task-orchestrator/config/config.json", ws.Path("config", "config.json"))
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	ws, err := Locate(root)
	require.NoError(t, err)
	require.NoError(t, ws.Init())

	cfg, err := LoadConfig(ws)
	require.NoError(t, err)
	assert.Equal(t, EnforcementStandard, cfg.Enforcement)
	assert.Equal(t, 10*time.Second, cfg.LockTimeout)
	assert.Equal(t, 5*time.Second, cfg.HookTimeout)
	assert.Equal(t, "hooks", cfg.HooksDir)
}

func TestLoadConfigFromFile(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	ws, err := Locate(root)
	require.NoError(t, err)
	require.NoError(t, ws.Init())

	doc := `{"enforcement": "strict", "lock_timeout": 3, "agent_id": "cfg-agent"}`
	require.NoError(t, os.WriteFile(ws.Path("config", "config.json"), []byte(doc), 0o644))

	cfg, err := LoadConfig(ws)
	require.NoError(t, err)
	assert.Equal(t, EnforcementStrict, cfg.Enforcement)
	assert.Equal(t, 3*time.Second, cfg.LockTimeout)
	assert.Equal(t, "cfg-agent", cfg.AgentID)
	assert.Equal(t, 5*time.Second, cfg.HookTimeout, "unset keys keep their defaults")
}

func TestLoadConfigEnvWinsOverFile(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	ws, err := Locate(root)
	require.NoError(t, err)
	require.NoError(t, ws.Init())

	doc := `{"enforcement": "strict", "lock_timeout": 3}`
	require.NoError(t, os.WriteFile(ws.Path("config", "config.json"), []byte(doc), 0o644))
	t.Setenv("TM_ENFORCEMENT", "advisory")
	t.Setenv("TM_LOCK_TIMEOUT", "7")

	cfg, err := LoadConfig(ws)
	require.NoError(t, err)
	assert.Equal(t, EnforcementAdvisory, cfg.Enforcement)
	assert.Equal(t, 7*time.Second, cfg.LockTimeout)
}

func TestLoadConfigRejectsBadEnforcement(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	ws, err := Locate(root)
	require.NoError(t, err)
	require.NoError(t, ws.Init())
	t.Setenv("TM_ENFORCEMENT", "yolo")

	_, err = LoadConfig(ws)
	assert.Error(t, err)
}
