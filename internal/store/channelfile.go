package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cklxx/taskctl/pkg/errs"
)

// Size limits and rotation depth for the context-channel log files: 4 KiB
// per entry, 10 MiB per file, rotating on overflow with numbered suffixes
// up to .5.
const (
	channelMaxEntryBytes = 4 * 1024
	channelMaxFileBytes  = 10 * 1024 * 1024
	channelMaxBackups    = 5
)

// channelFileLocks serializes appends to a given log file path. The sql
// transaction already serializes the DB row write; these on-disk files are
// appended after the store transaction commits, outside it, and need their
// own per-path mutex.
var channelFileLocks sync.Map // map[string]*sync.Mutex

func channelFileLock(path string) *sync.Mutex {
	v, _ := channelFileLocks.LoadOrStore(path, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// sanitizeChannelText strips control characters other than \n and \t, and
// rejects
// text over the 4 KiB per-entry limit rather than silently truncating it.
func sanitizeChannelText(text string) (string, error) {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if len(clean) > channelMaxEntryBytes {
		return "", &errs.InvalidInputError{Field: "text", Reason: "must be 4096 bytes or fewer"}
	}
	return clean, nil
}

// channelLogEntry is the NDJSON shape appended to contexts/<task>.log,
// notes/<task>_<agent>.log, and notifications/broadcast.log — one JSON
// object per line rather than a free-text line format.
type channelLogEntry struct {
	CreatedAt string `json:"created_at"`
	AgentID   string `json:"agent_id,omitempty"`
	Kind      string `json:"kind"`
	Text      string `json:"text"`
}

func channelLogLine(at time.Time, agentID, kind, text string) string {
	b, _ := json.Marshal(channelLogEntry{
		CreatedAt: at.UTC().Format(time.RFC3339Nano),
		AgentID:   agentID,
		Kind:      kind,
		Text:      text,
	})
	return string(b)
}

// appendChannelLine appends one NDJSON line to path, rotating it first if
// the write would push the file over the 10 MiB cap. Open-append-close per
// write, guarded by a mutex, 0o644.
func appendChannelLine(path, line string) error {
	mu := channelFileLock(path)
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("store: channel log dir: %w", err)
	}
	payload := []byte(line + "\n")
	if info, err := os.Stat(path); err == nil && info.Size()+int64(len(payload)) > channelMaxFileBytes {
		if err := rotateChannelFile(path); err != nil {
			return fmt.Errorf("store: channel log rotate: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store: channel log open: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("store: channel log write: %w", err)
	}
	return nil
}

// rotateChannelFile shifts path.<n> to path.<n+1> for n from
// channelMaxBackups-1 down to 1, dropping whatever already occupies
// path.<channelMaxBackups>, then moves the active file to path.1, leaving a
// fresh path to be created by the caller.
func rotateChannelFile(path string) error {
	oldest := fmt.Sprintf("%s.%d", path, channelMaxBackups)
	_ = os.Remove(oldest)
	for i := channelMaxBackups - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", path, i)
		dst := fmt.Sprintf("%s.%d", path, i+1)
		if _, err := os.Stat(src); err == nil {
			if err := os.Rename(src, dst); err != nil {
				return err
			}
		}
	}
	if _, err := os.Stat(path); err == nil {
		return os.Rename(path, path+".1")
	}
	return nil
}
