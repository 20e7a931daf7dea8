//go:build windows

package local

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

func lockFileExclusive(file *os.File) error {
	handle := windows.Handle(file.Fd())
	overlapped := new(windows.Overlapped)

	err := windows.LockFileEx(handle,
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, overlapped)
	if err != nil {
		if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
			return fmt.Errorf("storage lock %s is held by another process", file.Name())
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	return nil
}

func unlockFile(file *os.File) error {
	handle := windows.Handle(file.Fd())
	overlapped := new(windows.Overlapped)
	return windows.UnlockFileEx(handle, 0, 1, 0, overlapped)
}
