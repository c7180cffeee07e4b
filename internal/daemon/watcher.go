package daemon

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dereneaton/kmunity/internal/database"
	"github.com/dereneaton/kmunity/internal/domain"
)

func isNoCandidate(err error) bool {
	return errors.Is(err, domain.ErrNoCandidateFound)
}

// DatabaseWatcher monitors category database files and clears the
// daemon's cooldown when one changes. Commits land by rename, so
// create and rename events matter as much as writes.
type DatabaseWatcher struct {
	watcher  *fsnotify.Watcher
	daemon   *Daemon
	debounce time.Duration

	// category by watched directory
	dirs map[string]domain.Category

	mu      sync.Mutex
	pending map[domain.Category]struct{}
	timer   *time.Timer
}

// NewDatabaseWatcher watches each category's directory under repoRoot.
func NewDatabaseWatcher(repoRoot string, categories []domain.Category, d *Daemon) (*DatabaseWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &DatabaseWatcher{
		watcher:  watcher,
		daemon:   d,
		debounce: 500 * time.Millisecond,
		dirs:     make(map[string]domain.Category),
		pending:  make(map[domain.Category]struct{}),
	}

	for _, category := range categories {
		// Open ensures the directory and database exist to watch.
		if _, err := database.Open(repoRoot, category); err != nil {
			watcher.Close()
			return nil, err
		}
		dir := filepath.Join(repoRoot, category.String())
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, err
		}
		w.dirs[dir] = category
	}

	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *DatabaseWatcher) Close() error {
	return w.watcher.Close()
}

func (w *DatabaseWatcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *DatabaseWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != database.FileName {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	category, ok := w.dirs[filepath.Dir(event.Name)]
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[category] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *DatabaseWatcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[domain.Category]struct{})
	w.mu.Unlock()

	for category := range pending {
		w.daemon.ClearCooldown(category)
	}
}
