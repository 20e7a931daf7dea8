// Package audio provides post-processing for synthesized speech: WAV
// parsing and emission, segment concatenation, background-bed mixing,
// PCM resampling, and duration estimation.
//
// The package operates on 16-bit little-endian PCM. Synthesis output
// arrives either as raw PCM chunks or as WAV files; multi-chunk
// generations are concatenated sample-accurately, and podcast-style
// intro/outro/background assets are mixed in before upload.
//
// # Usage Example
//
//	info, pcm, err := audio.ParseWAV(segment)
//	if err != nil {
//	    return err
//	}
//	mixed, err := audio.MixBackground(pcm, bed, 0.2)
//	if err != nil {
//	    return err
//	}
//	out := audio.EncodeWAV(info, mixed)
package audio
