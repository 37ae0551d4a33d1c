package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/Iron-Ham/holrepl/internal/errors"
	"github.com/Iron-Ham/holrepl/internal/logging"
)

// LockFileName is the name of the lock file within the state directory.
const LockFileName = "session.lock"

// LockInfo is written into the lock file by its holder.
type LockInfo struct {
	SessionID string    `json:"session_id"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
}

// Lock is a held workspace session lock. The operating system releases it
// if the holder dies, so there are no stale locks to clean up.
type Lock struct {
	LockInfo

	path   string
	file   *flock.Flock
	logger *logging.Logger
}

// AcquireLock takes the session lock in stateDir without blocking. When
// another process holds it the error wraps errors.ErrWorkspaceLocked and
// names the holder.
func AcquireLock(stateDir, sessionID string, logger *logging.Logger) (*Lock, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	path := filepath.Join(stateDir, LockFileName)

	file := flock.New(path)
	locked, err := file.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		_ = file.Close()
		if holder, readErr := ReadLock(path); readErr == nil {
			logger.Error("failed to acquire lock",
				"session_id", sessionID,
				"holder_pid", holder.PID,
				"holder_host", holder.Hostname)
			return nil, fmt.Errorf("%w: PID %d on %s", errors.ErrWorkspaceLocked, holder.PID, holder.Hostname)
		}
		return nil, errors.ErrWorkspaceLocked
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	lock := &Lock{
		LockInfo: LockInfo{
			SessionID: sessionID,
			PID:       os.Getpid(),
			Hostname:  hostname,
			StartedAt: time.Now(),
		},
		path:   path,
		file:   file,
		logger: logger,
	}

	data, err := json.MarshalIndent(lock.LockInfo, "", "  ")
	if err == nil {
		err = os.WriteFile(path, data, 0644)
	}
	if err != nil {
		_ = file.Unlock()
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	logger.Info("workspace lock acquired", "session_id", sessionID, "pid", lock.PID)
	return lock, nil
}

// Release gives up the lock. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil || !l.file.Locked() {
		return nil
	}
	// The file stays in place: removing it would let a waiter lock an
	// inode that a newcomer no longer sees.
	if err := os.Truncate(l.path, 0); err != nil {
		l.logger.Debug("failed to clear lock file", "error", err)
	}
	if err := l.file.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	l.logger.Info("workspace lock released", "session_id", l.SessionID)
	return nil
}

// ReadLock reads the holder information from a lock file.
func ReadLock(path string) (*LockInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	return &info, nil
}
