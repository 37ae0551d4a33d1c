//go:build !unix

package process

import "github.com/Iron-Ham/holrepl/internal/logging"

// NewSpawner returns a PipeSpawner. Pseudo-terminals are only supported on
// unix; usePTY is logged and ignored elsewhere.
func NewSpawner(usePTY bool, cols, rows int, logger *logging.Logger) Spawner {
	if usePTY && logger != nil {
		logger.Warn("pseudo-terminal mode is not supported on this platform; using pipes")
	}
	return PipeSpawner{Logger: logger}
}
