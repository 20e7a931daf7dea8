// Package local provides the local filesystem storage backend.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AudioPress/audiopress/logger"
	"github.com/AudioPress/audiopress/storage"
)

const (
	// DefaultBaseDir is the uploads directory when none is configured.
	DefaultBaseDir = "data/audio"

	// metaSuffix is appended to object paths for metadata sidecars.
	metaSuffix = ".meta"

	// dedupIndexFile persists the content-hash index across restarts.
	dedupIndexFile = ".dedup_index.json"

	// hashNameLength is how many hex digits of the SHA-256 make the filename.
	hashNameLength = 16

	dirPerm  = 0o750
	filePerm = 0o600
)

// Config configures the local filesystem storage backend.
type Config struct {
	// BaseDir is the root directory for audio storage.
	// Defaults to DefaultBaseDir.
	BaseDir string

	// PublicBaseURL maps stored objects to public URLs
	// (e.g. "https://cdn.example.com/audio"). When empty, URL returns
	// file:// URLs.
	PublicBaseURL string

	// EnableDeduplication enables content-based deduplication using
	// SHA-256 hashing.
	EnableDeduplication bool

	// RetentionPolicy is the policy name written to metadata sidecars
	// (e.g. "retain-30days"). Empty means keep forever.
	RetentionPolicy string
}

// ObjectMeta is the sidecar metadata stored next to each audio file.
type ObjectMeta struct {
	ContentID  string            `json:"content_id"`
	MIMEType   string            `json:"mime_type"`
	SizeBytes  int64             `json:"size_bytes"`
	SHA256     string            `json:"sha256,omitempty"`
	Policy     string            `json:"policy,omitempty"`
	UploadedAt time.Time         `json:"uploaded_at"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// FileStore implements storage.Provider using the local filesystem.
type FileStore struct {
	config Config

	// dedupIndex maps content hashes to relative paths for deduplication
	dedupIndex map[string]string
	dedupMu    sync.RWMutex

	// refCounts tracks how many references exist for each deduplicated file
	refCounts map[string]int
	refMu     sync.RWMutex
}

// NewFileStore creates a local filesystem storage backend rooted at the
// configured base directory.
func NewFileStore(config Config) (*FileStore, error) {
	if config.BaseDir == "" {
		config.BaseDir = DefaultBaseDir
	}

	if err := os.MkdirAll(config.BaseDir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	fs := &FileStore{
		config:     config,
		dedupIndex: make(map[string]string),
		refCounts:  make(map[string]int),
	}

	if config.EnableDeduplication {
		if err := fs.loadDedupIndex(); err != nil {
			// Log but don't fail - we'll rebuild as needed
			logger.Warn("Failed to load deduplication index", "error", err)
		}
	}

	return fs, nil
}

// Name implements storage.Provider.
func (fs *FileStore) Name() string {
	return "local"
}

// Upload implements storage.Provider. Files land under
// content/<content-id>/<hash>.<ext> with a .meta sidecar; identical audio
// bytes deduplicate to the existing object when deduplication is enabled.
func (fs *FileStore) Upload(ctx context.Context, input storage.UploadInput) (*storage.Object, error) {
	if len(input.Data) == 0 {
		return nil, storage.ErrEmptyData
	}
	if input.ContentID == "" {
		return nil, storage.ErrMissingContentID
	}

	hash := computeHash(input.Data)

	if fs.config.EnableDeduplication {
		fs.dedupMu.RLock()
		existing, exists := fs.dedupIndex[hash]
		fs.dedupMu.RUnlock()

		if exists {
			// Retention sweeps remove files behind our back; treat a
			// stale index entry as a miss and store the data again.
			if _, err := os.Stat(filepath.Join(fs.config.BaseDir, existing)); err == nil {
				fs.refMu.Lock()
				fs.refCounts[existing]++
				fs.refMu.Unlock()

				return fs.objectFor(existing, int64(len(input.Data))), nil
			}

			fs.dedupMu.Lock()
			delete(fs.dedupIndex, hash)
			fs.dedupMu.Unlock()
		}
	}

	relPath := fs.relPathFor(input, hash)
	absPath := filepath.Join(fs.config.BaseDir, relPath)

	if err := fs.validatePath(absPath); err != nil {
		return nil, fmt.Errorf("invalid object path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(absPath), dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if err := writeFileAtomic(absPath, input.Data); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	meta := ObjectMeta{
		ContentID:  input.ContentID,
		MIMEType:   input.MIMEType,
		SizeBytes:  int64(len(input.Data)),
		SHA256:     hash,
		Policy:     fs.config.RetentionPolicy,
		UploadedAt: time.Now().UTC(),
		Extra:      input.Metadata,
	}
	if err := fs.storeMeta(absPath, meta); err != nil {
		// Log but don't fail
		logger.Warn("Failed to store object metadata", "path", absPath, "error", err)
	}

	if fs.config.EnableDeduplication {
		fs.dedupMu.Lock()
		fs.dedupIndex[hash] = relPath
		fs.dedupMu.Unlock()

		fs.refMu.Lock()
		fs.refCounts[relPath] = 1
		fs.refMu.Unlock()

		if err := fs.saveDedupIndex(); err != nil {
			logger.Warn("Failed to persist deduplication index", "error", err)
		}
	}

	object := fs.objectFor(relPath, int64(len(input.Data)))
	logger.StorageUpload(fs.Name(), object.Ref, object.SizeBytes)
	return object, nil
}

// Delete implements storage.Provider. References held by other uploads
// (dedup hits) only drop a reference count.
func (fs *FileStore) Delete(ctx context.Context, ref string) error {
	absPath := filepath.Join(fs.config.BaseDir, ref)
	if err := fs.validatePath(absPath); err != nil {
		return fmt.Errorf("invalid object reference: %w", err)
	}

	if fs.config.EnableDeduplication {
		fs.refMu.Lock()
		if count := fs.refCounts[ref]; count > 1 {
			fs.refCounts[ref]--
			fs.refMu.Unlock()
			return nil
		}
		delete(fs.refCounts, ref)
		fs.refMu.Unlock()
	}

	_ = os.Remove(absPath + metaSuffix)

	if err := os.Remove(absPath); err != nil {
		if os.IsNotExist(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}

	if fs.config.EnableDeduplication {
		fs.dedupMu.Lock()
		for hash, path := range fs.dedupIndex {
			if path == ref {
				delete(fs.dedupIndex, hash)
				break
			}
		}
		fs.dedupMu.Unlock()
		if err := fs.saveDedupIndex(); err != nil {
			logger.Warn("Failed to persist deduplication index", "error", err)
		}
	}

	fs.cleanupEmptyDirs(filepath.Dir(absPath))
	return nil
}

// URL implements storage.Provider. Local URLs never expire, so expiry is
// ignored.
func (fs *FileStore) URL(ctx context.Context, ref string, expiry time.Duration) (string, error) {
	absPath := filepath.Join(fs.config.BaseDir, ref)
	if err := fs.validatePath(absPath); err != nil {
		return "", fmt.Errorf("invalid object reference: %w", err)
	}

	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("failed to access object: %w", err)
	}

	return fs.publicURL(ref, absPath)
}

// Validate implements storage.Provider. It proves the base directory is
// writable by creating and removing a probe file.
func (fs *FileStore) Validate(ctx context.Context) error {
	if err := os.MkdirAll(fs.config.BaseDir, dirPerm); err != nil {
		return fmt.Errorf("base directory unavailable: %w", err)
	}

	probe := filepath.Join(fs.config.BaseDir, ".write_probe")
	if err := os.WriteFile(probe, []byte("ok"), filePerm); err != nil {
		return fmt.Errorf("base directory not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("failed to remove probe file: %w", err)
	}

	return nil
}

// Meta loads the metadata sidecar for a stored object.
func (fs *FileStore) Meta(ref string) (*ObjectMeta, error) {
	absPath := filepath.Join(fs.config.BaseDir, ref)
	if err := fs.validatePath(absPath); err != nil {
		return nil, fmt.Errorf("invalid object reference: %w", err)
	}
	return loadMeta(absPath)
}

// BaseDir returns the storage root, for retention and cleanup jobs.
func (fs *FileStore) BaseDir() string {
	return fs.config.BaseDir
}

// Stats reports filesystem capacity for the storage root.
func (fs *FileStore) Stats() (DiskStats, error) {
	return diskStats(fs.config.BaseDir)
}

// validatePath checks that the given path is within the base directory.
// This prevents path traversal attacks (e.g., ../../etc/passwd).
// It also resolves symlinks to prevent symlink-based escapes.
func (fs *FileStore) validatePath(path string) error {
	absBase, err := filepath.Abs(fs.config.BaseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}
	absBase = filepath.Clean(absBase)

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absPath = filepath.Clean(absPath)

	// First, do a quick check using cleaned paths (handles ../ traversal)
	if !strings.HasPrefix(absPath+string(filepath.Separator), absBase+string(filepath.Separator)) &&
		absPath != absBase {
		return fmt.Errorf("path %q is outside base directory %q", path, fs.config.BaseDir)
	}

	// For existing files, also check resolved symlinks to prevent symlink attacks
	if _, err := os.Lstat(absPath); err == nil {
		realBase, err := filepath.EvalSymlinks(absBase)
		if err != nil {
			realBase = absBase
		}

		realPath, err := filepath.EvalSymlinks(absPath)
		if err != nil {
			return fmt.Errorf("failed to resolve symlinks: %w", err)
		}

		if !strings.HasPrefix(realPath+string(filepath.Separator), realBase+string(filepath.Separator)) &&
			realPath != realBase {
			return fmt.Errorf("path %q resolves outside base directory (symlink attack)", path)
		}
	}

	return nil
}

// relPathFor builds the relative object path for an upload.
func (fs *FileStore) relPathFor(input storage.UploadInput, hash string) string {
	filename := input.Filename
	if filename == "" {
		filename = hash[:hashNameLength] + storage.ExtensionForMIME(input.MIMEType)
	}
	return filepath.Join("content", storage.SanitizeFilename(input.ContentID), storage.SanitizeFilename(filename))
}

// objectFor builds the Object descriptor for a stored relative path.
func (fs *FileStore) objectFor(relPath string, size int64) *storage.Object {
	url, _ := fs.publicURL(relPath, filepath.Join(fs.config.BaseDir, relPath))
	return &storage.Object{
		Ref:        relPath,
		URL:        url,
		Provider:   fs.Name(),
		SizeBytes:  size,
		UploadedAt: time.Now().UTC(),
	}
}

// publicURL maps a relative path to its public or file URL.
func (fs *FileStore) publicURL(relPath, absPath string) (string, error) {
	if fs.config.PublicBaseURL != "" {
		base := strings.TrimSuffix(fs.config.PublicBaseURL, "/")
		return base + "/" + filepath.ToSlash(relPath), nil
	}

	abs, err := filepath.Abs(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return "file://" + abs, nil
}

func (fs *FileStore) storeMeta(absPath string, meta ObjectMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(absPath+metaSuffix, data, filePerm)
}

func loadMeta(absPath string) (*ObjectMeta, error) {
	data, err := os.ReadFile(absPath + metaSuffix)
	if err != nil {
		return nil, err
	}

	var meta ObjectMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (fs *FileStore) loadDedupIndex() error {
	data, err := os.ReadFile(filepath.Join(fs.config.BaseDir, dedupIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Index doesn't exist yet, that's ok
		}
		return err
	}

	fs.dedupMu.Lock()
	defer fs.dedupMu.Unlock()

	return json.Unmarshal(data, &fs.dedupIndex)
}

func (fs *FileStore) saveDedupIndex() error {
	fs.dedupMu.RLock()
	data, err := json.MarshalIndent(fs.dedupIndex, "", "  ")
	fs.dedupMu.RUnlock()

	if err != nil {
		return err
	}

	return writeFileAtomic(filepath.Join(fs.config.BaseDir, dedupIndexFile), data)
}

// cleanupEmptyDirs removes empty parents up to, but never including, the
// base directory.
func (fs *FileStore) cleanupEmptyDirs(dir string) {
	if dir == fs.config.BaseDir || !strings.HasPrefix(dir, fs.config.BaseDir) {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}

	_ = os.Remove(dir)
	fs.cleanupEmptyDirs(filepath.Dir(dir))
}

// writeFileAtomic writes to a temp file then renames into place.
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, filePerm); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}

func computeHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
