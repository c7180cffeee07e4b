// Package workspace manages the ephemeral per-run scratch directory.
// Every file the pipeline creates lives under (or is tracked by) one
// Workspace, so a single Cleanup call removes it all on any exit path.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Workspace is an exclusively-owned scratch directory for one run.
type Workspace struct {
	Root string

	mu      sync.Mutex
	tracked []string
}

// New creates a fresh workspace under scratchRoot. The directory name
// carries a random suffix so concurrent attempts for the same run on a
// shared filesystem never collide.
func New(scratchRoot, run string) (*Workspace, error) {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	root := filepath.Join(scratchRoot, fmt.Sprintf("%s-%s", run, suffix))
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	return &Workspace{Root: root}, nil
}

// Path joins elements onto the workspace root.
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.Root}, elem...)...)
}

// Track registers a path created outside the workspace root so Cleanup
// removes it too. Paths under the root need no tracking.
func (w *Workspace) Track(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracked = append(w.tracked, path)
}

// Files lists the regular files currently under the workspace root.
func (w *Workspace) Files() ([]string, error) {
	var files []string
	err := filepath.Walk(w.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	return files, err
}

// Cleanup removes the workspace root and every tracked path, partial
// downloads included. It is safe to call more than once.
func (w *Workspace) Cleanup() error {
	var firstErr error
	if err := os.RemoveAll(w.Root); err != nil {
		firstErr = err
	}
	w.mu.Lock()
	tracked := w.tracked
	w.tracked = nil
	w.mu.Unlock()
	for _, path := range tracked {
		if err := os.RemoveAll(path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
