package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// pcmMaxAmplitude is the maximum amplitude for 16-bit signed audio.
	pcmMaxAmplitude = 32768.0

	// defaultBedRatio positions an auto-leveled background bed well under
	// the narration (roughly -14 dB relative).
	defaultBedRatio = 0.2
)

// sampleAt reads the idx-th little-endian PCM16 sample.
// Note: The uint16->int16 conversion is safe because PCM16 audio uses
// the full int16 range stored as unsigned bytes.
func sampleAt(pcm []byte, idx int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[idx*pcmBytesPerSample:])) //nolint:gosec
}

// putSample writes the idx-th little-endian PCM16 sample.
func putSample(pcm []byte, idx int, v int16) {
	binary.LittleEndian.PutUint16(pcm[idx*pcmBytesPerSample:], uint16(v)) //nolint:gosec
}

// MixBackground mixes a background bed under narration at the given gain.
// Both inputs are 16-bit little-endian PCM at the same sample rate and
// channel count. The bed loops when shorter than the narration and is
// truncated when longer; the output always matches the narration length.
// Summed samples are clamped to the int16 range to guard against clipping.
//
// A gain of zero or less enables auto-leveling: the bed is scaled so its
// RMS level sits at a fixed ratio below the narration's.
func MixBackground(narration, bed []byte, gain float64) ([]byte, error) {
	if len(narration)%pcmBytesPerSample != 0 {
		return nil, fmt.Errorf("narration length %d is not sample-aligned", len(narration))
	}
	if len(bed)%pcmBytesPerSample != 0 {
		return nil, fmt.Errorf("bed length %d is not sample-aligned", len(bed))
	}

	if len(bed) == 0 {
		out := make([]byte, len(narration))
		copy(out, narration)
		return out, nil
	}

	if gain <= 0 {
		gain = autoBedGain(narration, bed)
	}

	numSamples := len(narration) / pcmBytesPerSample
	bedSamples := len(bed) / pcmBytesPerSample
	out := make([]byte, len(narration))

	for i := 0; i < numSamples; i++ {
		mixed := float64(sampleAt(narration, i)) + gain*float64(sampleAt(bed, i%bedSamples))

		// Clipping guard
		if mixed > math.MaxInt16 {
			mixed = math.MaxInt16
		} else if mixed < math.MinInt16 {
			mixed = math.MinInt16
		}

		putSample(out, i, int16(mixed))
	}

	return out, nil
}

// autoBedGain scales the bed so its RMS level lands a fixed ratio below
// the narration's. A silent bed or silent narration yields zero gain.
func autoBedGain(narration, bed []byte) float64 {
	narrationRMS := RMSLevel(narration)
	bedRMS := RMSLevel(bed)
	if bedRMS == 0 || narrationRMS == 0 {
		return 0
	}
	return defaultBedRatio * narrationRMS / bedRMS
}

// RMSLevel computes the Root Mean Square level of 16-bit PCM audio,
// normalized to 0.0-1.0. Used to level background beds relative to
// narration, since production music varies widely in mastered loudness.
func RMSLevel(pcm []byte) float64 {
	numSamples := len(pcm) / pcmBytesPerSample
	if numSamples == 0 {
		return 0
	}

	var sumSquares float64
	for i := 0; i < numSamples; i++ {
		normalized := float64(sampleAt(pcm, i)) / pcmMaxAmplitude
		sumSquares += normalized * normalized
	}

	return math.Sqrt(sumSquares / float64(numSamples))
}
