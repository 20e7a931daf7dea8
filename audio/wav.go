package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	// wavHeaderSize is the canonical RIFF/WAVE header length emitted by
	// EncodeWAV (RIFF chunk + fmt chunk + data chunk header).
	wavHeaderSize = 44

	// pcmBytesPerSample is the number of bytes per 16-bit PCM sample.
	pcmBytesPerSample = 2

	// wavFormatPCM is the fmt-chunk audio format tag for uncompressed PCM.
	wavFormatPCM = 1
)

// ErrNotWAV is returned when data does not start with a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a WAV file")

// WAVInfo describes the PCM format of a WAV payload.
type WAVInfo struct {
	// SampleRate is the sample rate in Hz.
	SampleRate int

	// Channels is the number of interleaved channels.
	Channels int

	// BitDepth is the bits per sample. Only 16 is supported.
	BitDepth int

	// DataSize is the length of the PCM data in bytes.
	DataSize int
}

// Duration returns the exact playback duration described by the header.
func (i WAVInfo) Duration() time.Duration {
	byteRate := i.SampleRate * i.Channels * i.BitDepth / 8
	if byteRate <= 0 {
		return 0
	}
	seconds := float64(i.DataSize) / float64(byteRate)
	return time.Duration(seconds * float64(time.Second))
}

// ParseWAV parses a WAV file and returns its format plus the raw PCM data.
// Chunks other than fmt and data (LIST, fact) are skipped, so output from
// encoders that write metadata still parses. Only 16-bit PCM is accepted.
func ParseWAV(data []byte) (WAVInfo, []byte, error) {
	var info WAVInfo

	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return info, nil, ErrNotWAV
	}

	var (
		pcm      []byte
		sawFmt   bool
		sawData  bool
		offset   = 12
		dataSize = len(data)
	)

	for offset+8 <= dataSize {
		chunkID := string(data[offset : offset+4])
		chunkLen := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		if chunkLen < 0 || body+chunkLen > dataSize {
			return info, nil, fmt.Errorf("truncated %s chunk", chunkID)
		}

		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return info, nil, fmt.Errorf("fmt chunk too short: %d bytes", chunkLen)
			}
			format := int(binary.LittleEndian.Uint16(data[body:]))
			if format != wavFormatPCM {
				return info, nil, fmt.Errorf("unsupported WAV format tag %d (want PCM)", format)
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			info.BitDepth = int(binary.LittleEndian.Uint16(data[body+14:]))
			if info.BitDepth != 16 {
				return info, nil, fmt.Errorf("unsupported bit depth %d (want 16)", info.BitDepth)
			}
			if info.Channels <= 0 || info.SampleRate <= 0 {
				return info, nil, fmt.Errorf("invalid fmt chunk: channels=%d rate=%d", info.Channels, info.SampleRate)
			}
			sawFmt = true

		case "data":
			pcm = data[body : body+chunkLen]
			sawData = true
		}

		// Chunks are word-aligned; odd sizes carry a pad byte.
		offset = body + chunkLen
		if chunkLen%2 == 1 {
			offset++
		}
	}

	if !sawFmt {
		return info, nil, errors.New("missing fmt chunk")
	}
	if !sawData {
		return info, nil, errors.New("missing data chunk")
	}

	info.DataSize = len(pcm)
	return info, pcm, nil
}

// EncodeWAV wraps raw PCM data in a canonical 44-byte RIFF/WAVE header.
// The info's DataSize field is ignored; the actual pcm length is used.
func EncodeWAV(info WAVInfo, pcm []byte) []byte {
	bitDepth := info.BitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	channels := info.Channels
	if channels == 0 {
		channels = 1
	}

	blockAlign := channels * bitDepth / 8
	byteRate := info.SampleRate * blockAlign

	// Note: the integer narrowing below is safe because audio parameters
	// (rates, channel counts, bit depths) and file sizes fit their fields.
	out := make([]byte, wavHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(wavHeaderSize-8+len(pcm))) //nolint:gosec
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))        //nolint:gosec
	binary.LittleEndian.PutUint32(out[24:28], uint32(info.SampleRate)) //nolint:gosec
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))        //nolint:gosec
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))      //nolint:gosec
	binary.LittleEndian.PutUint16(out[34:36], uint16(bitDepth))        //nolint:gosec
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm))) //nolint:gosec
	copy(out[wavHeaderSize:], pcm)

	return out
}

// ConcatWAV concatenates WAV segments into a single WAV file. The first
// segment's format is the target: later segments must match its channel
// count, and mono segments at a different sample rate are resampled.
// Multi-channel segments cannot be resampled and must match exactly.
func ConcatWAV(segments [][]byte) ([]byte, error) {
	if len(segments) == 0 {
		return nil, errors.New("no segments to concatenate")
	}

	target, pcm, err := ParseWAV(segments[0])
	if err != nil {
		return nil, fmt.Errorf("segment 0: %w", err)
	}

	combined := make([]byte, 0, len(pcm)*len(segments))
	combined = append(combined, pcm...)

	for i, segment := range segments[1:] {
		info, data, err := ParseWAV(segment)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i+1, err)
		}

		if info.Channels != target.Channels {
			return nil, fmt.Errorf("segment %d: channel mismatch: %d vs %d", i+1, info.Channels, target.Channels)
		}

		if info.SampleRate != target.SampleRate {
			if info.Channels != 1 {
				return nil, fmt.Errorf("segment %d: cannot resample %d-channel audio", i+1, info.Channels)
			}
			data, err = ResamplePCM16(data, info.SampleRate, target.SampleRate)
			if err != nil {
				return nil, fmt.Errorf("segment %d: %w", i+1, err)
			}
		}

		combined = append(combined, data...)
	}

	return EncodeWAV(target, combined), nil
}

// ConcatPCM concatenates raw PCM16 segments that share a sample rate and
// channel count, returning the joined samples without a header.
func ConcatPCM(segments [][]byte) ([]byte, error) {
	var total int
	for i, segment := range segments {
		if len(segment)%pcmBytesPerSample != 0 {
			return nil, fmt.Errorf("segment %d: length %d is not sample-aligned", i, len(segment))
		}
		total += len(segment)
	}

	combined := make([]byte, 0, total)
	for _, segment := range segments {
		combined = append(combined, segment...)
	}
	return combined, nil
}
