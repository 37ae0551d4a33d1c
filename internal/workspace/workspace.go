package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/Iron-Ham/holrepl/internal/config"
	"github.com/Iron-Ham/holrepl/internal/logging"
)

// Workspace is a directory tree with its own dependency list and session
// lock, kept in the state directory under Root.
type Workspace struct {
	Root     string
	StateDir string
	DepsPath string

	logger *logging.Logger
	lookup func(string) (string, bool)

	mu   sync.RWMutex
	deps []string
}

// Open loads the workspace rooted at root. The state directory is not
// created until something is written to it.
func Open(root string, cfg *config.WorkspaceConfig, logger *logging.Logger) (*Workspace, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}

	w := &Workspace{
		Root:     abs,
		StateDir: cfg.StatePath(abs),
		DepsPath: cfg.DepsPath(abs),
		logger:   logger.WithComponent("workspace"),
		lookup:   os.LookupEnv,
	}
	w.deps = LoadDeps(w.DepsPath, w.logger)
	return w, nil
}

// Deps returns the dependency entries as written in the deps file.
func (w *Workspace) Deps() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.deps)
}

// SearchPaths returns the resolved dependency directories in file order.
func (w *Workspace) SearchPaths() []string {
	return ResolveDeps(w.Deps(), w.Root, w.lookup, w.logger)
}

// Reload re-reads the deps file.
func (w *Workspace) Reload() []string {
	entries := LoadDeps(w.DepsPath, w.logger)
	w.setDeps(entries)
	return slices.Clone(entries)
}

func (w *Workspace) setDeps(entries []string) {
	w.mu.Lock()
	w.deps = entries
	w.mu.Unlock()
}

// AddDep adds dir to the deps file.
func (w *Workspace) AddDep(dir string) (bool, error) {
	changed, err := AddDep(w.DepsPath, dir, w.logger)
	if err == nil && changed {
		w.Reload()
	}
	return changed, err
}

// RemoveDep removes dir from the deps file.
func (w *Workspace) RemoveDep(dir string) (bool, error) {
	changed, err := RemoveDep(w.DepsPath, dir, w.logger)
	if err == nil && changed {
		w.Reload()
	}
	return changed, err
}

// Lock takes the workspace session lock for sessionID.
func (w *Workspace) Lock(sessionID string) (*Lock, error) {
	return AcquireLock(w.StateDir, sessionID, w.logger)
}

// Watch keeps Deps current as the deps file changes on disk. onChange, if
// set, receives the resolved search paths after each reload.
func (w *Workspace) Watch(onChange func(paths []string)) (*DepsWatcher, error) {
	return WatchDeps(w.DepsPath, w.logger, func(entries []string) {
		w.setDeps(entries)
		if onChange != nil {
			onChange(ResolveDeps(entries, w.Root, w.lookup, w.logger))
		}
	})
}
