//go:build !windows

package local

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

func lockFileExclusive(file *os.File) error {
	err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return fmt.Errorf("storage lock %s is held by another process", file.Name())
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	return nil
}

func unlockFile(file *os.File) error {
	return syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
}
