package artwork

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

// createTestImage creates a test image with the specified dimensions.
func createTestImage(width, height int, format string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	// Fill with a gradient so JPEG sizes respond to quality changes
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 7 % 256),
				G: uint8(y * 11 % 256),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	switch format {
	case "png":
		_ = png.Encode(&buf, img)
	default: // jpeg
		_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: DefaultQuality})
	}
	return buf.Bytes()
}

// testConfig keeps dimensions small so tests stay fast.
func testConfig() ProcessConfig {
	return ProcessConfig{
		MinDimension: 50,
		MaxDimension: 100,
		Quality:      DefaultQuality,
	}
}

func decodeResult(t *testing.T, result *Result) image.Image {
	t.Helper()

	img, format, err := image.Decode(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("result format = %v, want jpeg", format)
	}
	return img
}

func TestProcess_CropsLandscape(t *testing.T) {
	testData := createTestImage(200, 100, "png")

	result, err := Process(testData, testConfig())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if !result.WasProcessed {
		t.Error("Expected artwork to be processed")
	}

	// Crop side is 100, which is within [50, 100]
	if result.Width != 100 || result.Height != 100 {
		t.Errorf("Expected dimensions 100x100, got %dx%d", result.Width, result.Height)
	}

	img := decodeResult(t, result)
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 100 {
		t.Errorf("Decoded dimensions %dx%d, want 100x100", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestProcess_CropsPortrait(t *testing.T) {
	testData := createTestImage(60, 300, "png")

	result, err := Process(testData, testConfig())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.Width != 60 || result.Height != 60 {
		t.Errorf("Expected dimensions 60x60, got %dx%d", result.Width, result.Height)
	}
}

func TestProcess_UpscalesSmall(t *testing.T) {
	testData := createTestImage(30, 30, "jpeg")

	result, err := Process(testData, testConfig())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.Width != 50 || result.Height != 50 {
		t.Errorf("Expected upscale to 50x50, got %dx%d", result.Width, result.Height)
	}
}

func TestProcess_DownscalesLarge(t *testing.T) {
	testData := createTestImage(300, 200, "jpeg")

	result, err := Process(testData, testConfig())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// Crop side 200 exceeds the 100 maximum
	if result.Width != 100 || result.Height != 100 {
		t.Errorf("Expected downscale to 100x100, got %dx%d", result.Width, result.Height)
	}
}

func TestProcess_SkipsConformingJPEG(t *testing.T) {
	testData := createTestImage(80, 80, "jpeg")

	result, err := Process(testData, testConfig())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.WasProcessed {
		t.Error("Expected square JPEG within bounds to be skipped")
	}

	if !bytes.Equal(result.Data, testData) {
		t.Error("Expected original data to be returned unchanged")
	}
}

func TestProcess_ReencodesConformingPNG(t *testing.T) {
	testData := createTestImage(80, 80, "png")

	result, err := Process(testData, testConfig())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if !result.WasProcessed {
		t.Error("PNG input should always be re-encoded as JPEG")
	}

	decodeResult(t, result)
}

func TestProcess_SizeCap(t *testing.T) {
	testData := createTestImage(128, 128, "png")

	config := testConfig()
	config.MaxSizeBytes = 2048

	result, err := Process(testData, config)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.NewSize > config.MaxSizeBytes {
		t.Errorf("NewSize = %d, want <= %d", result.NewSize, config.MaxSizeBytes)
	}
}

func TestProcess_EmptyData(t *testing.T) {
	if _, err := Process(nil, testConfig()); err == nil {
		t.Error("Expected error for empty data")
	}
}

func TestProcess_InvalidData(t *testing.T) {
	if _, err := Process([]byte("not an image"), testConfig()); err == nil {
		t.Error("Expected error for invalid data")
	}
}

func TestCenterCrop(t *testing.T) {
	tests := []struct {
		name   string
		bounds image.Rectangle
		want   image.Rectangle
	}{
		{"landscape", image.Rect(0, 0, 200, 100), image.Rect(50, 0, 150, 100)},
		{"portrait", image.Rect(0, 0, 100, 300), image.Rect(0, 100, 100, 200)},
		{"square", image.Rect(0, 0, 64, 64), image.Rect(0, 0, 64, 64)},
		{"offset origin", image.Rect(10, 10, 110, 60), image.Rect(35, 10, 85, 60)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := centerCrop(tt.bounds); got != tt.want {
				t.Errorf("centerCrop(%v) = %v, want %v", tt.bounds, got, tt.want)
			}
		})
	}
}

func TestTargetSide(t *testing.T) {
	tests := []struct {
		side, minDim, maxDim, want int
	}{
		{75, 50, 100, 75},
		{30, 50, 100, 50},
		{500, 50, 100, 100},
		{75, 0, 0, 75},
	}

	for _, tt := range tests {
		if got := targetSide(tt.side, tt.minDim, tt.maxDim); got != tt.want {
			t.Errorf("targetSide(%d, %d, %d) = %d, want %d", tt.side, tt.minDim, tt.maxDim, got, tt.want)
		}
	}
}
