//go:build !windows

package local

import "syscall"

// DiskStats reports capacity for the filesystem holding the storage root.
type DiskStats struct {
	TotalBytes uint64 `json:"total_bytes"`
	FreeBytes  uint64 `json:"free_bytes"`
}

func diskStats(dir string) (DiskStats, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return DiskStats{}, err
	}

	blockSize := uint64(stat.Bsize) //nolint:gosec
	return DiskStats{
		TotalBytes: stat.Blocks * blockSize,
		FreeBytes:  stat.Bavail * blockSize,
	}, nil
}
