package records

import (
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// migration upgrades raw record JSON from one schema version to the
// next. The steps run in order until the record reaches the current
// version.
type migration struct {
	from  string
	apply func(raw map[string]json.RawMessage) error
}

var migrations = []migration{
	{from: "1", apply: migrateFlatToSections},
	{from: "2", apply: migrateStatsAndDuration},
}

// Migrate decodes raw record JSON, applying schema upgrades as needed.
// The second return value reports whether any upgrade ran, so callers
// can persist the upgraded form.
func Migrate(data []byte) (*Record, bool, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false, fmt.Errorf("failed to decode record: %w", err)
	}

	version := rawString(raw, "schema_version")
	if version == "" {
		// Records written before versioning are treated as v1.
		version = "1"
	}

	recorded, err := semver.NewVersion(version)
	if err != nil {
		return nil, false, fmt.Errorf("invalid record schema version %q: %w", version, err)
	}
	current := semver.MustParse(CurrentSchemaVersion)

	if recorded.GreaterThan(current) {
		return nil, false, fmt.Errorf(
			"record schema version %s is newer than supported %s", version, CurrentSchemaVersion)
	}

	migrated := false
	for _, step := range migrations {
		stepVersion := semver.MustParse(step.from)
		if recorded.GreaterThan(stepVersion) {
			continue
		}
		if err := step.apply(raw); err != nil {
			return nil, false, fmt.Errorf("migration from schema %s failed: %w", step.from, err)
		}
		migrated = true
	}

	if migrated {
		raw["schema_version"] = json.RawMessage(`"` + CurrentSchemaVersion + `"`)
	}

	merged, err := json.Marshal(raw)
	if err != nil {
		return nil, false, err
	}

	var record Record
	if err := json.Unmarshal(merged, &record); err != nil {
		return nil, false, fmt.Errorf("failed to decode migrated record: %w", err)
	}
	record.Normalize()

	return &record, migrated, nil
}

// migrateFlatToSections upgrades v1 records, which stored audio, voice
// and content fields flat at the top level, into the sectioned layout.
func migrateFlatToSections(raw map[string]json.RawMessage) error {
	audio := subObject(raw, "audio")
	moveField(raw, audio, "audio_url", "url")
	moveField(raw, audio, "status", "status")
	moveField(raw, audio, "format", "format")
	if err := putObject(raw, "audio", audio); err != nil {
		return err
	}

	voice := subObject(raw, "voice")
	moveField(raw, voice, "voice_id", "voice_id")
	moveField(raw, voice, "provider", "provider")
	moveField(raw, voice, "language", "language")
	if err := putObject(raw, "voice", voice); err != nil {
		return err
	}

	content := subObject(raw, "content")
	moveField(raw, content, "custom_text", "custom_text")
	moveField(raw, content, "use_custom_text", "use_custom_text")
	return putObject(raw, "content", content)
}

// migrateStatsAndDuration upgrades v2 records: the flat play counter
// moves into the stats section and the audio duration field gains its
// unit suffix.
func migrateStatsAndDuration(raw map[string]json.RawMessage) error {
	stats := subObject(raw, "stats")
	moveField(raw, stats, "play_count", "play_count")
	moveField(raw, stats, "generation_count", "generation_count")
	if err := putObject(raw, "stats", stats); err != nil {
		return err
	}

	audio := subObject(raw, "audio")
	if value, exists := audio["duration"]; exists {
		audio["duration_seconds"] = value
		delete(audio, "duration")
	}
	return putObject(raw, "audio", audio)
}

// subObject decodes a nested object field, returning an empty map when
// the field is absent or malformed.
func subObject(raw map[string]json.RawMessage, field string) map[string]json.RawMessage {
	sub := make(map[string]json.RawMessage)
	if data, exists := raw[field]; exists {
		_ = json.Unmarshal(data, &sub)
	}
	return sub
}

// putObject writes a nested object back, dropping it when empty.
func putObject(raw map[string]json.RawMessage, field string, sub map[string]json.RawMessage) error {
	if len(sub) == 0 {
		delete(raw, field)
		return nil
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	raw[field] = data
	return nil
}

// moveField relocates src from the top level into a section under dst.
func moveField(raw map[string]json.RawMessage, section map[string]json.RawMessage, src, dst string) {
	if value, exists := raw[src]; exists {
		section[dst] = value
		delete(raw, src)
	}
}

// rawString decodes a string field from raw JSON, returning "" on any
// mismatch.
func rawString(raw map[string]json.RawMessage, field string) string {
	data, exists := raw[field]
	if !exists {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ""
	}
	return s
}
