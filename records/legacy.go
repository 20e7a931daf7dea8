package records

import (
	"strconv"
	"strings"
)

// Legacy key names used by installations that stored each TTS field as
// a discrete row. MigrateLegacy folds these into one versioned record.
const (
	LegacyKeyEnabled       = "_tts_enabled"
	LegacyKeyAudioURL      = "_tts_audio_url"
	LegacyKeyVoiceID       = "_tts_voice_id"
	LegacyKeyProvider      = "_tts_provider"
	LegacyKeyCustomText    = "_tts_custom_text"
	LegacyKeyUseCustomText = "_tts_use_custom_text"
	LegacyKeyStatus        = "_tts_status"
	LegacyKeyLanguage      = "_tts_language"
	LegacyKeyPlayCount     = "_tts_play_count"
)

// FromLegacyKeys builds a fresh record from discrete legacy key/value
// rows for one content ID.
func FromLegacyKeys(contentID string, values map[string]string) *Record {
	record := New(contentID)
	record.MergeLegacy(values)
	return record
}

// MergeLegacy folds legacy key/value rows into the record, filling
// only fields that are still zero so re-running a migration never
// clobbers newer data.
func (r *Record) MergeLegacy(values map[string]string) {
	if enabled, exists := values[LegacyKeyEnabled]; exists && !r.Enabled {
		r.Enabled = parseLegacyBool(enabled)
	}
	if url, exists := values[LegacyKeyAudioURL]; exists && r.Audio.URL == "" {
		r.Audio.URL = url
	}
	if status, exists := values[LegacyKeyStatus]; exists && (r.Audio.Status == "" || r.Audio.Status == StatusNone) {
		if s := Status(status); s.Valid() {
			r.Audio.Status = s
		}
	}
	if voiceID, exists := values[LegacyKeyVoiceID]; exists && r.Voice.VoiceID == "" {
		r.Voice.VoiceID = voiceID
	}
	if provider, exists := values[LegacyKeyProvider]; exists && r.Voice.Provider == "" {
		r.Voice.Provider = provider
	}
	if language, exists := values[LegacyKeyLanguage]; exists && r.Voice.Language == "" {
		r.Voice.Language = language
	}
	if text, exists := values[LegacyKeyCustomText]; exists && r.Content.CustomText == "" {
		r.Content.CustomText = text
	}
	if use, exists := values[LegacyKeyUseCustomText]; exists && !r.Content.UseCustomText {
		r.Content.UseCustomText = parseLegacyBool(use)
	}
	if plays, exists := values[LegacyKeyPlayCount]; exists && r.Stats.PlayCount == 0 {
		if n, err := strconv.ParseInt(plays, 10, 64); err == nil && n > 0 {
			r.Stats.PlayCount = n
		}
	}
}

// parseLegacyBool accepts the truthy spellings legacy rows used.
func parseLegacyBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
