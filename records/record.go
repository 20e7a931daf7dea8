// Package records manages the versioned per-content TTS record: audio
// state, voice selection, custom text, generation history, play stats
// and attached audio assets, stored as one JSON document per content ID.
//
// Records carry a schema version and are upgraded transparently on load;
// unknown fields survive a load/save round-trip so newer writers can
// coexist with older readers.
package records

import (
	"encoding/json"
	"time"
)

// CurrentSchemaVersion is the version written by this code.
const CurrentSchemaVersion = "3"

// Status is the audio generation state of a record.
type Status string

// Audio generation states.
const (
	StatusNone       Status = "none"
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusGenerated  Status = "generated"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNone, StatusPending, StatusGenerating, StatusGenerated, StatusFailed:
		return true
	}
	return false
}

// Audio describes the generated audio object.
type Audio struct {
	URL             string  `json:"url,omitempty"`
	Status          Status  `json:"status"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Format          string  `json:"format,omitempty"`
	StorageProvider string  `json:"storage_provider,omitempty"`
	ObjectRef       string  `json:"object_ref,omitempty"`
}

// Voice is the per-content voice selection. An empty provider means the
// configured default provider decides.
type Voice struct {
	Provider string `json:"provider,omitempty"`
	VoiceID  string `json:"voice_id,omitempty"`
	Language string `json:"language,omitempty"`
}

// Content carries the text source settings.
type Content struct {
	CustomText    string `json:"custom_text,omitempty"`
	UseCustomText bool   `json:"use_custom_text"`

	// Hash fingerprints the text the current audio was generated from,
	// so content edits can be detected.
	Hash string `json:"hash,omitempty"`
}

// Generation tracks synthesis attempts.
type Generation struct {
	Attempts        int        `json:"attempts"`
	LastError       string     `json:"last_error,omitempty"`
	LastGeneratedAt *time.Time `json:"last_generated_at,omitempty"`
}

// PlayStats are listener and generation counters.
type PlayStats struct {
	PlayCount       int64      `json:"play_count"`
	GenerationCount int64      `json:"generation_count"`
	LastPlayedAt    *time.Time `json:"last_played_at,omitempty"`
}

// Asset references an attached audio asset. Gain applies to background
// beds; zero means auto-leveled.
type Asset struct {
	Ref  string  `json:"ref"`
	Gain float64 `json:"gain,omitempty"`
}

// AudioAssets are the optional audio attachments mixed into or around
// the narration.
type AudioAssets struct {
	Intro      *Asset `json:"intro,omitempty"`
	Outro      *Asset `json:"outro,omitempty"`
	Background *Asset `json:"background,omitempty"`
	Custom     *Asset `json:"custom,omitempty"`
}

// Record is the versioned TTS document for one piece of content.
type Record struct {
	SchemaVersion string      `json:"schema_version"`
	ContentID     string      `json:"content_id"`
	Enabled       bool        `json:"enabled"`
	Audio         Audio       `json:"audio"`
	Voice         Voice       `json:"voice"`
	Content       Content     `json:"content"`
	Generation    Generation  `json:"generation"`
	Stats         PlayStats   `json:"stats"`
	AudioAssets   AudioAssets `json:"audio_assets"`
	UpdatedAt     time.Time   `json:"updated_at"`

	// extra holds unknown top-level fields so they survive a
	// load/save round-trip.
	extra map[string]json.RawMessage
}

// knownRecordFields are the top-level JSON keys owned by Record.
var knownRecordFields = []string{
	"schema_version", "content_id", "enabled", "audio", "voice",
	"content", "generation", "stats", "audio_assets", "updated_at",
}

// recordAlias strips Record's methods to avoid marshal recursion.
type recordAlias Record

// New creates a record with defaults for the given content ID.
func New(contentID string) *Record {
	return &Record{
		SchemaVersion: CurrentSchemaVersion,
		ContentID:     contentID,
		Audio:         Audio{Status: StatusNone},
		UpdatedAt:     time.Now().UTC(),
	}
}

// Normalize fills missing sections with defaults after decoding.
func (r *Record) Normalize() {
	if r.SchemaVersion == "" {
		r.SchemaVersion = CurrentSchemaVersion
	}
	if r.Audio.Status == "" {
		r.Audio.Status = StatusNone
	}
}

// Extra returns the preserved unknown top-level fields.
func (r *Record) Extra() map[string]json.RawMessage {
	return r.extra
}

// UnmarshalJSON decodes known fields and preserves unknown ones.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var known recordAlias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	*r = Record(known)

	for _, field := range knownRecordFields {
		delete(raw, field)
	}
	if len(raw) > 0 {
		r.extra = raw
	}
	return nil
}

// MarshalJSON re-emits preserved unknown fields alongside known ones.
func (r Record) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(recordAlias(r))
	if err != nil {
		return nil, err
	}
	if len(r.extra) == 0 {
		return data, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, value := range r.extra {
		if _, owned := merged[key]; !owned {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}
