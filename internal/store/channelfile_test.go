package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cklxx/taskctl/pkg/errs"
)

func TestSanitizeChannelText(t *testing.T) {
	clean, err := sanitizeChannelText("keep\nnewlines\tand tabs")
	require.NoError(t, err)
	assert.Equal(t, "keep\nnewlines\tand tabs", clean)

	clean, err = sanitizeChannelText("strip\x00null\x07bell\x1bescape")
	require.NoError(t, err)
	assert.Equal(t, "stripnullbellescape", clean)

	_, err = sanitizeChannelText(strings.Repeat("a", channelMaxEntryBytes+1))
	var invalid *errs.InvalidInputError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "text", invalid.Field)

	clean, err = sanitizeChannelText(strings.Repeat("a", channelMaxEntryBytes))
	require.NoError(t, err)
	assert.Len(t, clean, channelMaxEntryBytes)
}

func TestChannelLogLineShape(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	line := channelLogLine(at, "agent-a", "share", "found the bug")

	var entry channelLogEntry
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "agent-a", entry.AgentID)
	assert.Equal(t, "share", entry.Kind)
	assert.Equal(t, "found the bug", entry.Text)
	assert.Equal(t, at.Format(time.RFC3339Nano), entry.CreatedAt)
}

func TestAppendChannelLineCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contexts", "t1.log")
	require.NoError(t, appendChannelLine(path, channelLogLine(time.Now(), "a", "share", "one")))
	require.NoError(t, appendChannelLine(path, channelLogLine(time.Now(), "a", "share", "two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 2)
}

func TestRotateChannelFileShiftsSuffixes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t1.log")
	require.NoError(t, os.WriteFile(path, []byte("active\n"), 0o644))
	require.NoError(t, os.WriteFile(path+".1", []byte("older\n"), 0o644))
	require.NoError(t, os.WriteFile(path+".5", []byte("oldest\n"), 0o644))

	require.NoError(t, rotateChannelFile(path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "the active file moves aside on rotation")

	data, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "active\n", string(data))

	data, err = os.ReadFile(path + ".2")
	require.NoError(t, err)
	assert.Equal(t, "older\n", string(data))

	_, err = os.Stat(path + ".6")
	assert.True(t, os.IsNotExist(err), "rotation never grows past the backup cap")
}
