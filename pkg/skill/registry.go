package skill

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fractalminds/agentcore/pkg/registry"
)

// Registry holds every discovered skill manifest, keyed by name, and
// optionally hot-reloads them from a watched directory (spec §4.8
// "progressive disclosure"). Grounded on haasonsaas-nexus's
// internal/skills.Manager, narrowed to a single local directory source
// (this core's pack doesn't retrieve a git/registry skill-source
// equivalent, so those source types are left for a future extension
// rather than invented here).
type Registry struct {
	*registry.BaseRegistry[*Manifest]

	logger *slog.Logger

	mu       sync.Mutex
	dir      string
	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRegistry constructs an empty skill registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[*Manifest](),
		logger:       logger.With("component", "skill_registry"),
	}
}

// LoadDir loads every manifest under dir, replacing any existing entry with
// the same name (Upsert semantics, so a hot-reload cycle can re-run this
// safely).
func (r *Registry) LoadDir(dir string) ([]*Manifest, []error) {
	manifests, errs := LoadManifestDir(dir)
	for _, m := range manifests {
		_ = r.Upsert(m.Name, m)
	}
	for _, err := range errs {
		r.logger.Warn("skill manifest load failed", "error", err)
	}
	return manifests, errs
}

// Watch hot-reloads dir on create/write/remove/rename, debounced, per
// spec §4.8's progressive-disclosure directory and the teacher pack's
// fsnotify watch-loop idiom (haasonsaas-nexus manager.go watchLoop).
// Call Close to stop watching.
func (r *Registry) Watch(dir string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	r.mu.Lock()
	r.dir = dir
	r.watcher = watcher
	r.stopCh = make(chan struct{})
	stopCh := r.stopCh
	r.mu.Unlock()

	go r.watchLoop(watcher, stopCh, debounce)
	return nil
}

func (r *Registry) watchLoop(watcher *fsnotify.Watcher, stopCh chan struct{}, debounce time.Duration) {
	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			r.mu.Lock()
			dir := r.dir
			r.mu.Unlock()
			if dir == "" {
				return
			}
			if _, errs := r.LoadDir(dir); len(errs) > 0 {
				r.logger.Warn("skill hot-reload completed with errors", "count", len(errs))
			} else {
				r.logger.Info("skill manifests reloaded", "dir", dir)
			}
		})
	}

	for {
		select {
		case <-stopCh:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("skill watch error", "error", err)
		}
	}
}

// Close stops any active watcher. Safe to call multiple times or when no
// watcher was started.
func (r *Registry) Close() error {
	r.mu.Lock()
	watcher := r.watcher
	r.watcher = nil
	r.mu.Unlock()

	r.stopOnce.Do(func() {
		if r.stopCh != nil {
			close(r.stopCh)
		}
	})
	if watcher != nil {
		return watcher.Close()
	}
	return nil
}
