package policy

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AudioPress/audiopress/logger"
)

const metaSuffix = ".meta"

// sidecarMeta is the subset of object metadata retention cares about.
type sidecarMeta struct {
	Policy     string    `json:"policy"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Enforcer sweeps a storage root and deletes objects whose retention
// policy has expired.
type Enforcer struct {
	baseDir string
	def     Policy

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewEnforcer creates an enforcer over the given storage root. Objects
// whose sidecar names no policy fall back to def; a nil def means
// keep-forever.
func NewEnforcer(baseDir string, def Policy) *Enforcer {
	if def == nil {
		def = KeepForever{}
	}
	return &Enforcer{baseDir: baseDir, def: def}
}

// Enforce runs a single sweep and returns how many objects it removed.
func (e *Enforcer) Enforce(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	removed := 0

	err := filepath.WalkDir(e.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
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
			logger.Warn("Retention sweep cannot read sidecar", "path", path, "error", err)
			return nil
		}

		var meta sidecarMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			logger.Warn("Retention sweep cannot parse sidecar", "path", path, "error", err)
			return nil
		}

		pol := e.def
		if meta.Policy != "" {
			parsed, err := Parse(meta.Policy)
			if err != nil {
				logger.Warn("Retention sweep found unknown policy", "path", path, "policy", meta.Policy)
				return nil
			}
			pol = parsed
		}

		if meta.UploadedAt.IsZero() || !pol.Expired(meta.UploadedAt, now) {
			return nil
		}

		objectPath := strings.TrimSuffix(path, metaSuffix)
		if err := os.Remove(objectPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("Retention sweep cannot remove object", "path", objectPath, "error", err)
			return nil
		}
		_ = os.Remove(path)
		removed++

		logger.Debug("Retention sweep removed expired object",
			"path", objectPath,
			"policy", pol.Name(),
			"age", now.Sub(meta.UploadedAt).Round(time.Second).String(),
		)
		return nil
	})

	return removed, err
}

// Start launches periodic enforcement. Call Stop to shut it down.
func (e *Enforcer) Start(ctx context.Context, interval time.Duration) {
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})

	go func() {
		defer close(e.doneCh)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				removed, err := e.Enforce(ctx)
				if err != nil {
					logger.Warn("Retention sweep failed", "error", err)
				} else if removed > 0 {
					logger.Info("Retention sweep complete", "removed", removed)
				}
			case <-e.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts periodic enforcement and waits for an in-flight sweep to
// finish.
func (e *Enforcer) Stop() {
	if e.stopCh == nil {
		return
	}
	close(e.stopCh)
	<-e.doneCh
	e.stopCh = nil
}
