package hooks

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/cklxx/taskctl/internal/logging"
)

// Stage is when a hook runs relative to the mutation it observes.
type Stage string

const (
	StagePre  Stage = "pre"  // pre_<op> — can block the mutation
	StagePost Stage = "post" // post_<op> — fires after commit
	StageOn   Stage = "on"   // on_<event> — fires on a named event (e.g. on_task_unblocked)
)

// Descriptor is one discovered hook executable.
type Descriptor struct {
	Path  string
	Name  string // filename without extension, stage prefix kept (e.g. "pre_add")
	Stage Stage
	Op    string // the operation or event name the hook is keyed to
}

func classify(path string) (Descriptor, bool) {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	switch {
	case strings.HasPrefix(name, "pre_"):
		return Descriptor{Path: path, Name: name, Stage: StagePre, Op: strings.TrimPrefix(name, "pre_")}, true
	case strings.HasPrefix(name, "post_"):
		return Descriptor{Path: path, Name: name, Stage: StagePost, Op: strings.TrimPrefix(name, "post_")}, true
	case strings.HasPrefix(name, "on_"):
		return Descriptor{Path: path, Name: name, Stage: StageOn, Op: strings.TrimPrefix(name, "on_")}, true
	default:
		return Descriptor{}, false
	}
}

// Registry tracks the discovered hooks for a directory, kept current by a
// fsnotify watch so hooks added or removed mid-session take effect without
// restarting the engine.
type Registry struct {
	dir     string
	log     logging.Logger
	watcher *fsnotify.Watcher

	mu    sync.RWMutex
	hooks map[string]Descriptor // path -> descriptor
}

// NewRegistry scans dir once and starts watching it for changes. Callers
// must call Close when done.
func NewRegistry(dir string, log logging.Logger) (*Registry, error) {
	r := &Registry{dir: dir, log: logging.OrNop(log).With("hooks.discovery"), hooks: map[string]Descriptor{}}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	r.scan()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	r.watcher = w
	go r.watch()
	return r, nil
}

func (r *Registry) scan() {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return
	}
	found := map[string]Descriptor{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(r.dir, e.Name())
		if d, ok := classify(path); ok {
			found[path] = d
		}
	}
	r.mu.Lock()
	r.hooks = found
	r.mu.Unlock()
}

func (r *Registry) watch() {
	for {
		select {
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) != 0 {
				r.log.Debug("hooks dir changed: %s", ev)
				r.scan()
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.log.Warn("hooks watch error: %v", err)
		}
	}
}

// Close stops the filesystem watch.
func (r *Registry) Close() error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Close()
}

// For returns the hooks bound to op at stage, sorted by name for
// deterministic invocation order.
func (r *Registry) For(stage Stage, op string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Descriptor
	for _, d := range r.hooks {
		if d.Stage == stage && d.Op == op {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
