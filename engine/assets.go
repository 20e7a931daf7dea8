package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AudioPress/audiopress/audio"
	"github.com/AudioPress/audiopress/records"
)

// AssetSource loads attached audio assets (intro, outro, background
// beds, custom narration) by reference. Assets are WAV files.
type AssetSource interface {
	Load(ctx context.Context, ref string) ([]byte, error)
}

// DirAssetSource serves assets from a directory tree. References are
// paths relative to the base directory.
type DirAssetSource struct {
	baseDir string
}

// NewDirAssetSource creates an asset source rooted at dir.
func NewDirAssetSource(dir string) *DirAssetSource {
	return &DirAssetSource{baseDir: dir}
}

// Load reads the asset at ref, refusing paths that escape the base
// directory.
func (s *DirAssetSource) Load(_ context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty asset reference")
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve asset directory: %w", err)
	}

	absPath := filepath.Clean(filepath.Join(absBase, ref))
	if !strings.HasPrefix(absPath+string(filepath.Separator), filepath.Clean(absBase)+string(filepath.Separator)) {
		return nil, fmt.Errorf("asset reference %q escapes the asset directory", ref)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset %q: %w", ref, err)
	}
	return data, nil
}

// hasMixableAssets reports whether the record references intro, outro or
// background assets.
func hasMixableAssets(record *records.Record) bool {
	assets := record.AudioAssets
	return assetRef(assets.Intro) != "" || assetRef(assets.Outro) != "" || assetRef(assets.Background) != ""
}

func assetRef(asset *records.Asset) string {
	if asset == nil {
		return ""
	}
	return asset.Ref
}

// mixAssets applies the record's audio assets to the narration WAV:
// the background bed is mixed under the narration at the asset's gain
// (zero gain auto-levels), then intro and outro are stitched on. All
// assets are resampled to the narration's rate when they differ; channel
// counts must match.
func (e *Engine) mixAssets(ctx context.Context, record *records.Record, narrationWAV []byte) ([]byte, error) {
	info, narration, err := audio.ParseWAV(narrationWAV)
	if err != nil {
		return nil, fmt.Errorf("narration is not valid wav: %w", err)
	}

	if ref := assetRef(record.AudioAssets.Background); ref != "" {
		bed, err := e.loadAssetPCM(ctx, ref, info)
		if err != nil {
			return nil, fmt.Errorf("background asset: %w", err)
		}
		narration, err = audio.MixBackground(narration, bed, record.AudioAssets.Background.Gain)
		if err != nil {
			return nil, fmt.Errorf("background mix: %w", err)
		}
	}

	segments := make([][]byte, 0, 3)
	if ref := assetRef(record.AudioAssets.Intro); ref != "" {
		intro, err := e.loadAssetPCM(ctx, ref, info)
		if err != nil {
			return nil, fmt.Errorf("intro asset: %w", err)
		}
		segments = append(segments, intro)
	}
	segments = append(segments, narration)
	if ref := assetRef(record.AudioAssets.Outro); ref != "" {
		outro, err := e.loadAssetPCM(ctx, ref, info)
		if err != nil {
			return nil, fmt.Errorf("outro asset: %w", err)
		}
		segments = append(segments, outro)
	}

	combined, err := audio.ConcatPCM(segments)
	if err != nil {
		return nil, err
	}
	return audio.EncodeWAV(info, combined), nil
}

// loadAssetPCM loads a WAV asset and returns its samples matched to the
// target format.
func (e *Engine) loadAssetPCM(ctx context.Context, ref string, target audio.WAVInfo) ([]byte, error) {
	data, err := e.assets.Load(ctx, ref)
	if err != nil {
		return nil, err
	}

	info, pcm, err := audio.ParseWAV(data)
	if err != nil {
		return nil, fmt.Errorf("asset %q is not valid wav: %w", ref, err)
	}

	if info.Channels != target.Channels {
		return nil, fmt.Errorf("asset %q channel mismatch: %d vs %d", ref, info.Channels, target.Channels)
	}

	if info.SampleRate != target.SampleRate {
		if info.Channels != 1 {
			return nil, fmt.Errorf("asset %q: cannot resample %d-channel audio", ref, info.Channels)
		}
		pcm, err = audio.ResamplePCM16(pcm, info.SampleRate, target.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("asset %q: %w", ref, err)
		}
	}
	return pcm, nil
}
