// Package proc provides single-instance enforcement via a PID file.
//
// The lock is process-wide state acquired once at startup and released
// at shutdown; no internal component re-acquires it. A stale file left
// by a crashed instance is detected by probing the recorded PID and
// reclaimed automatically.
package proc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning is returned when another live instance holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

// PIDFile is an acquired single-instance lock.
type PIDFile struct {
	path string
}

// Acquire takes the single-instance lock at path.
// Returns ErrAlreadyRunning if the recorded PID belongs to a live
// process; stale files are reclaimed.
func Acquire(path string) (*PIDFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create pid directory: %w", err)
	}

	data, err := os.ReadFile(path)
	if err == nil {
		pid, parseErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if parseErr == nil && pid > 0 && alive(pid) {
			return nil, fmt.Errorf("%w (pid %d, %s)", ErrAlreadyRunning, pid, path)
		}
		// Stale or garbled file from a crashed instance; reclaim it.
		_ = os.Remove(path)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w (%s)", ErrAlreadyRunning, path)
		}
		return nil, fmt.Errorf("create pid file: %w", err)
	}

	_, writeErr := fmt.Fprintf(file, "%d\n", os.Getpid())
	closeErr := file.Close()
	if writeErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if writeErr != nil {
			return nil, fmt.Errorf("write pid file: %w", writeErr)
		}
		return nil, fmt.Errorf("close pid file: %w", closeErr)
	}

	return &PIDFile{path: path}, nil
}

// Path returns the lock file path.
func (p *PIDFile) Path() string {
	return p.path
}

// Release removes the lock file.
func (p *PIDFile) Release() error {
	return os.Remove(p.path)
}

// alive reports whether a process with the given pid exists.
func alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes existence without delivering anything.
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
