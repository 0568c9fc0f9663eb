package instance

import (
	"fmt"
	"os"
)

// AcquireLock acquires an exclusive lock to prevent two coordinator
// instances from opening the same data directory concurrently. The lock
// primitive is O_EXCL file creation rather than a native OS lock handle
// (the teacher's Windows build uses CreateFile with exclusive sharing) —
// portable across platforms, and sufficient because CheckExistingInstance
// removes a stale PID file together with the lock file left beside it.
func (m *InstanceManager) AcquireLock() error {
	lockPath := m.pidFilePath + ".lock"

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to acquire lock (another instance may be starting): %w", err)
	}

	fmt.Fprintf(f, "%d", os.Getpid())

	m.lockFile = f
	m.acquiredLock = true
	return nil
}

// ReleaseLock releases the exclusive lock.
func (m *InstanceManager) ReleaseLock() error {
	if !m.acquiredLock {
		return nil
	}

	if m.lockFile != nil {
		if err := m.lockFile.Close(); err != nil {
			fmt.Printf("Warning: Failed to close lock file: %v\n", err)
		}
		m.lockFile = nil
	}

	lockPath := m.pidFilePath + ".lock"
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Warning: Failed to remove lock file: %v\n", err)
	}

	m.acquiredLock = false
	return nil
}
