package scheduler

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AudioPress/audiopress/logger"
	"github.com/AudioPress/audiopress/records"
)

// metaSuffix matches the sidecar naming of the local storage backend.
const metaSuffix = ".meta"

// DefaultOrphanGrace protects files younger than this from the sweep,
// so uploads racing a record save are never collected.
const DefaultOrphanGrace = time.Hour

// orphanListPage is the records page size while building the
// referenced-object set.
const orphanListPage = 500

// OrphanSweeper removes locally stored audio files no record references
// anymore: leftovers from crashed generations or records deleted while
// the process was down.
type OrphanSweeper struct {
	store   records.Store
	baseDir string
	grace   time.Duration

	now func() time.Time
}

// NewOrphanSweeper creates a sweeper over the local storage root. A
// non-positive grace keeps DefaultOrphanGrace.
func NewOrphanSweeper(store records.Store, baseDir string, grace time.Duration) *OrphanSweeper {
	if grace <= 0 {
		grace = DefaultOrphanGrace
	}
	return &OrphanSweeper{
		store:   store,
		baseDir: baseDir,
		grace:   grace,
		now:     time.Now,
	}
}

// sidecar is the slice of the storage metadata the sweep needs.
type sidecar struct {
	ContentID  string    `json:"content_id"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Sweep walks the storage root and deletes objects whose relative path
// no record's audio references. Returns how many objects it removed.
func (s *OrphanSweeper) Sweep(ctx context.Context) (int, error) {
	referenced, err := s.referencedRefs(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().UTC().Add(-s.grace)
	removed := 0

	err = filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(path, metaSuffix) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			logger.WarnContext(ctx, "Orphan sweep cannot read sidecar", "path", path, "error", err)
			return nil
		}

		var meta sidecar
		if err := json.Unmarshal(data, &meta); err != nil {
			logger.WarnContext(ctx, "Orphan sweep cannot parse sidecar", "path", path, "error", err)
			return nil
		}
		if meta.UploadedAt.IsZero() || meta.UploadedAt.After(cutoff) {
			return nil
		}

		objectPath := strings.TrimSuffix(path, metaSuffix)
		rel, err := filepath.Rel(s.baseDir, objectPath)
		if err != nil {
			return nil
		}
		if _, ok := referenced[rel]; ok {
			return nil
		}

		if err := os.Remove(objectPath); err != nil && !os.IsNotExist(err) {
			logger.WarnContext(ctx, "Orphan sweep cannot remove object", "path", objectPath, "error", err)
			return nil
		}
		_ = os.Remove(path)
		removed++

		logger.DebugContext(ctx, "Orphan sweep removed unreferenced object",
			"path", objectPath,
			"content_id", meta.ContentID,
		)
		return nil
	})

	return removed, err
}

// referencedRefs pages through all records and collects every object
// reference still in use.
func (s *OrphanSweeper) referencedRefs(ctx context.Context) (map[string]struct{}, error) {
	refs := make(map[string]struct{})

	for offset := 0; ; offset += orphanListPage {
		page, err := s.store.List(ctx, records.ListOptions{Offset: offset, Limit: orphanListPage})
		if err != nil {
			return nil, err
		}
		for _, record := range page {
			if record.Audio.ObjectRef != "" {
				refs[record.Audio.ObjectRef] = struct{}{}
			}
		}
		if len(page) < orphanListPage {
			return refs, nil
		}
	}
}
