//go:build windows

package local

// DiskStats reports capacity for the filesystem holding the storage root.
type DiskStats struct {
	TotalBytes uint64 `json:"total_bytes"`
	FreeBytes  uint64 `json:"free_bytes"`
}

// diskStats is not implemented on Windows; callers treat zero values as
// "unknown".
func diskStats(dir string) (DiskStats, error) {
	return DiskStats{}, nil
}
