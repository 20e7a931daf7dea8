// Package artwork prepares episode artwork for podcast storage backends.
// Podcast directories want square JPEG covers inside a fixed dimension
// range, so uploads are center-cropped, scaled, and re-encoded to fit.
package artwork

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	_ "image/gif" // Register GIF decoder
	_ "image/png" // Register PNG decoder

	_ "golang.org/x/image/webp" // Register WebP decoder
)

// MIMETypeJPEG is the content type of processed artwork.
const MIMETypeJPEG = "image/jpeg"

// Default configuration values. The dimension bounds follow the podcast
// directory requirements (1400px minimum, 3000px recommended maximum).
const (
	DefaultMinDimension = 1400
	DefaultMaxDimension = 3000
	DefaultQuality      = 85
	MinQuality          = 10
	QualityDecay        = 0.9
)

// ProcessConfig configures artwork processing.
type ProcessConfig struct {
	// MinDimension is the minimum square side in pixels. Smaller images
	// are upscaled to it.
	MinDimension int

	// MaxDimension is the maximum square side in pixels. Larger images
	// are downscaled to it.
	MaxDimension int

	// Quality is the JPEG encoding quality (1-100). Default: 85.
	Quality int

	// MaxSizeBytes is the maximum encoded size in bytes (0 = no limit).
	// If exceeded, quality is reduced iteratively.
	MaxSizeBytes int64
}

// DefaultProcessConfig returns sensible defaults for podcast artwork.
func DefaultProcessConfig() ProcessConfig {
	return ProcessConfig{
		MinDimension: DefaultMinDimension,
		MaxDimension: DefaultMaxDimension,
		Quality:      DefaultQuality,
	}
}

// Result contains the result of an artwork processing operation.
type Result struct {
	Data         []byte
	MIMEType     string
	Width        int
	Height       int
	OriginalSize int64
	NewSize      int64
	WasProcessed bool
}

// Process decodes artwork, center-crops it square, scales the crop into
// the configured dimension range, and re-encodes as JPEG. Artwork that is
// already a square JPEG within bounds is returned unchanged.
func Process(data []byte, config ProcessConfig) (*Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty artwork data")
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode artwork: %w", err)
	}

	bounds := img.Bounds()
	crop := centerCrop(bounds)
	side := targetSide(crop.Dx(), config.MinDimension, config.MaxDimension)

	alreadySquare := bounds.Dx() == bounds.Dy()
	if alreadySquare && side == bounds.Dx() && format == "jpeg" {
		return &Result{
			Data:         data,
			MIMEType:     MIMETypeJPEG,
			Width:        bounds.Dx(),
			Height:       bounds.Dy(),
			OriginalSize: int64(len(data)),
			NewSize:      int64(len(data)),
			WasProcessed: false,
		}, nil
	}

	// Crop and scale in a single pass: the scaler reads only the crop
	// region of the source.
	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, crop, draw.Src, nil)

	quality := config.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}

	encoded, err := encodeJPEG(dst, quality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode artwork: %w", err)
	}

	if config.MaxSizeBytes > 0 && int64(len(encoded)) > config.MaxSizeBytes {
		encoded, _, err = reduceToFitSize(dst, quality, config.MaxSizeBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to reduce artwork size: %w", err)
		}
	}

	return &Result{
		Data:         encoded,
		MIMEType:     MIMETypeJPEG,
		Width:        side,
		Height:       side,
		OriginalSize: int64(len(data)),
		NewSize:      int64(len(encoded)),
		WasProcessed: true,
	}, nil
}

// centerCrop returns the largest centered square within bounds.
func centerCrop(bounds image.Rectangle) image.Rectangle {
	width := bounds.Dx()
	height := bounds.Dy()

	side := width
	if height < side {
		side = height
	}

	x0 := bounds.Min.X + (width-side)/2
	y0 := bounds.Min.Y + (height-side)/2
	return image.Rect(x0, y0, x0+side, y0+side)
}

// targetSide clamps the crop side into the configured dimension range.
func targetSide(cropSide, minDim, maxDim int) int {
	side := cropSide
	if minDim > 0 && side < minDim {
		side = minDim
	}
	if maxDim > 0 && side > maxDim {
		side = maxDim
	}
	if side < 1 {
		side = 1
	}
	return side
}

// encodeJPEG encodes an image as JPEG at the given quality.
func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// reduceToFitSize iteratively reduces quality to fit within size limit.
func reduceToFitSize(
	img image.Image,
	startQuality int,
	maxSize int64,
) (data []byte, finalQuality int, err error) {
	quality := startQuality

	for quality >= MinQuality {
		encoded, encErr := encodeJPEG(img, quality)
		if encErr != nil {
			return nil, quality, encErr
		}

		if int64(len(encoded)) <= maxSize {
			return encoded, quality, nil
		}

		// Reduce quality by 10% for next iteration
		quality = int(float64(quality) * QualityDecay)
	}

	// Return at minimum quality even if still over size
	encoded, encErr := encodeJPEG(img, MinQuality)
	return encoded, MinQuality, encErr
}
