package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LockConflictError is returned when another execution already holds the
// state lock. The caller should retry later or clear a stale lock manually.
type LockConflictError struct {
	Holder string // lock file path or remote lock ID
	Detail string
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("state is locked by another process (%s). %s", e.Holder, e.Detail)
}

// staleLockAge is how old a lock file must be before it is considered
// abandoned and reclaimed.
const staleLockAge = 10 * time.Minute

// Lock acquires a file lock on the state to prevent concurrent modifications.
func (m *Manager) Lock() error {
	lockPath := m.lockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	if info, err := os.Stat(lockPath); err == nil {
		if time.Since(info.ModTime()) > staleLockAge {
			os.Remove(lockPath)
		} else {
			return &LockConflictError{
				Holder: lockPath,
				Detail: "If this is an error, remove the lock file manually",
			}
		}
	}

	content := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	return nil
}

// Unlock releases the state lock.
func (m *Manager) Unlock() error {
	if err := os.Remove(m.lockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (m *Manager) lockPath() string {
	return m.path + ".lock"
}
