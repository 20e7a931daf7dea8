// Package player builds the embeddable audio player for generated
// audio: a config JSON consumed by frontends and a self-contained HTML
// embed rendered from a template.
package player

import (
	"errors"
	"fmt"
	"math"

	"github.com/AudioPress/audiopress/records"
	"github.com/AudioPress/audiopress/tts"
)

// ErrNotEmbeddable is returned for content without generated audio.
var ErrNotEmbeddable = errors.New("content has no generated audio to embed")

// Preload values the audio element accepts.
const (
	PreloadNone     = "none"
	PreloadMetadata = "metadata"
	PreloadAuto     = "auto"
)

// DefaultTheme is the built-in player skin.
const DefaultTheme = "default"

// Settings are the operator-facing player options.
type Settings struct {
	// Theme selects the player skin class.
	Theme string

	// Autoplay starts playback on load. Most browsers require the
	// audio to be muted or a prior user gesture.
	Autoplay bool

	// Preload is the audio element preload hint.
	Preload string

	// ShowDownload adds a download link next to the player.
	ShowDownload bool
}

// DefaultSettings returns the player defaults.
func DefaultSettings() Settings {
	return Settings{
		Theme:   DefaultTheme,
		Preload: PreloadMetadata,
	}
}

func (s Settings) withDefaults() Settings {
	if s.Theme == "" {
		s.Theme = DefaultTheme
	}
	switch s.Preload {
	case PreloadNone, PreloadMetadata, PreloadAuto:
	default:
		s.Preload = PreloadMetadata
	}
	return s
}

// Config is the player payload served to frontends.
type Config struct {
	ContentID       string  `json:"content_id"`
	URL             string  `json:"url"`
	Format          string  `json:"format"`
	MIMEType        string  `json:"mime_type"`
	Title           string  `json:"title,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Duration        string  `json:"duration,omitempty"`
	Theme           string  `json:"theme"`
	Autoplay        bool    `json:"autoplay"`
	Preload         string  `json:"preload"`
	ShowDownload    bool    `json:"show_download"`
}

// BuildConfig assembles the player config for a record. Only records
// with generated audio are embeddable.
func BuildConfig(record *records.Record, title string, settings Settings) (*Config, error) {
	if record == nil || record.Audio.Status != records.StatusGenerated || record.Audio.URL == "" {
		return nil, ErrNotEmbeddable
	}

	settings = settings.withDefaults()

	mimeType := "audio/mpeg"
	if format, ok := tts.FormatByName(record.Audio.Format); ok {
		mimeType = format.MIMEType
	}

	return &Config{
		ContentID:       record.ContentID,
		URL:             record.Audio.URL,
		Format:          record.Audio.Format,
		MIMEType:        mimeType,
		Title:           title,
		DurationSeconds: record.Audio.DurationSeconds,
		Duration:        FormatDuration(record.Audio.DurationSeconds),
		Theme:           settings.Theme,
		Autoplay:        settings.Autoplay,
		Preload:         settings.Preload,
		ShowDownload:    settings.ShowDownload,
	}, nil
}

// FormatDuration renders seconds as m:ss, or h:mm:ss past an hour.
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return ""
	}

	total := int(math.Round(seconds))
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}
