package local

import (
	"fmt"
	"os"
	"path/filepath"
)

// lockFileName guards maintenance jobs (retention sweeps, cache cleanup)
// against concurrent runs over the same storage root.
const lockFileName = ".audiopress.lock"

// Locker holds an exclusive advisory lock on a storage directory. Only one
// process can hold the lock at a time; a second Lock attempt fails
// immediately instead of blocking.
type Locker struct {
	baseDir string
	file    *os.File
}

// NewLocker creates a locker for the given storage directory.
func NewLocker(baseDir string) *Locker {
	return &Locker{baseDir: baseDir}
}

// Lock acquires the exclusive lock. It returns an error if another process
// already holds it.
func (l *Locker) Lock() error {
	if err := os.MkdirAll(l.baseDir, dirPerm); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	path := filepath.Join(l.baseDir, lockFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := lockFileExclusive(file); err != nil {
		_ = file.Close()
		return err
	}

	l.file = file
	return nil
}

// Unlock releases the lock and removes the lock file.
func (l *Locker) Unlock() error {
	if l.file == nil {
		return nil
	}

	err := unlockFile(l.file)
	closeErr := l.file.Close()
	_ = os.Remove(l.file.Name())
	l.file = nil

	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return closeErr
}
