package audio

import "time"

// Assumed bitrates (kbit/s) for duration estimates of compressed audio.
// Vendors emit MP3 in the 96-128 kbit/s range; 128 splits the difference
// acceptably for player display and analytics.
const (
	bitrateMP3Kbps  = 128
	bitrateOpusKbps = 64
	bitrateAACKbps  = 128
)

// EstimateDuration estimates playback duration from byte size and bitrate.
// Returns zero for non-positive inputs.
func EstimateDuration(sizeBytes int64, bitrateKbps int) time.Duration {
	if sizeBytes <= 0 || bitrateKbps <= 0 {
		return 0
	}
	seconds := float64(sizeBytes*8) / float64(bitrateKbps*1000)
	return time.Duration(seconds * float64(time.Second))
}

// EstimateDurationForFormat estimates playback duration for a named format.
// WAV payloads are measured exactly from their header when parseable; raw
// PCM needs the sample rate and channel count, so callers with those in
// hand should use PCMDuration instead. Unknown formats fall back to the
// MP3 bitrate.
func EstimateDurationForFormat(format string, data []byte) time.Duration {
	switch format {
	case "wav":
		if info, _, err := ParseWAV(data); err == nil {
			return info.Duration()
		}
		return EstimateDuration(int64(len(data)), bitrateMP3Kbps)
	case "opus", "ogg":
		return EstimateDuration(int64(len(data)), bitrateOpusKbps)
	case "aac":
		return EstimateDuration(int64(len(data)), bitrateAACKbps)
	default:
		return EstimateDuration(int64(len(data)), bitrateMP3Kbps)
	}
}

// PCMDuration computes the exact duration of raw PCM16 audio.
func PCMDuration(sizeBytes int64, sampleRate, channels int) time.Duration {
	if sizeBytes <= 0 || sampleRate <= 0 || channels <= 0 {
		return 0
	}
	byteRate := int64(sampleRate * channels * pcmBytesPerSample)
	seconds := float64(sizeBytes) / float64(byteRate)
	return time.Duration(seconds * float64(time.Second))
}
