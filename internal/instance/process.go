package instance

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// IsProcessRunning reports whether a process with the given PID is alive.
// It sends signal 0, which performs the kernel's existence/permission
// check without actually delivering a signal (the teacher's Windows build
// uses OpenProcess instead). On Windows, os.Process.Signal accepts only
// Kill, so this reports false for every PID there.
func IsProcessRunning(pid int) (bool, error) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}

	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrProcessDone) {
		return false, nil
	}
	// EPERM means the process exists but we can't signal it — still running.
	if errors.Is(err, syscall.EPERM) {
		return true, nil
	}
	return false, nil
}

// KillProcess forcefully terminates a process.
func KillProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return fmt.Errorf("kill process %d: %w", pid, err)
	}
	return nil
}
