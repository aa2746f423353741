package image

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"strings"
	"testing"
)

// noisyImage builds a deterministic pseudo-random raster that resists JPEG
// compression, so the quality loop actually has work to do.
func noisyImage(t *testing.T, width, height int) []byte {
	t.Helper()

	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func flatImage(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 90, B: 60, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestCompressDownscalesLargeImages(t *testing.T) {
	compressor := NewCompressor(Options{})
	data := noisyImage(t, 2000, 1000)

	payload, err := compressor.Compress(context.Background(), CapturedImage{Data: data, MimeType: "image/png"})
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}

	if payload.Width != 800 {
		t.Errorf("expected width 800, got %d", payload.Width)
	}
	if payload.Height != 500 {
		t.Errorf("expected height 500, got %d", payload.Height)
	}
}

func TestCompressKeepsSmallDimensions(t *testing.T) {
	compressor := NewCompressor(Options{})
	data := flatImage(t, 320, 240)

	payload, err := compressor.Compress(context.Background(), CapturedImage{Data: data, MimeType: "image/jpeg"})
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}

	if payload.Width != 320 || payload.Height != 240 {
		t.Errorf("expected 320x240, got %dx%d", payload.Width, payload.Height)
	}
	if payload.Quality != 70 {
		t.Errorf("small flat image should not trigger quality steps, got quality %d", payload.Quality)
	}
	if payload.TransportSize() > 40*1024 {
		t.Errorf("flat image should fit the budget, got %d bytes", payload.TransportSize())
	}
}

func TestCompressStepsQualityDown(t *testing.T) {
	compressor := NewCompressor(Options{TargetBytes: 10 * 1024})
	data := noisyImage(t, 1600, 1200)

	payload, err := compressor.Compress(context.Background(), CapturedImage{Data: data, MimeType: "image/png"})
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}

	if payload.Quality >= 70 {
		t.Errorf("expected quality below the starting value, got %d", payload.Quality)
	}
	if payload.Quality < 10 {
		t.Errorf("quality must never drop below the floor, got %d", payload.Quality)
	}
	if payload.TransportSize() > 10*1024 && payload.Quality != 10 {
		t.Errorf("over-budget payload is only allowed at the floor, got quality %d size %d",
			payload.Quality, payload.TransportSize())
	}
}

func TestCompressReturnsOversizedPayloadAtFloor(t *testing.T) {
	compressor := NewCompressor(Options{TargetBytes: 512})
	data := noisyImage(t, 1024, 1024)

	payload, err := compressor.Compress(context.Background(), CapturedImage{Data: data, MimeType: "image/png"})
	if err != nil {
		t.Fatalf("graceful degradation must not return an error: %v", err)
	}
	if payload.Quality != 10 {
		t.Errorf("expected floor quality 10, got %d", payload.Quality)
	}
	if payload.TransportSize() <= 512 {
		t.Errorf("test expects an over-budget payload, got %d bytes", payload.TransportSize())
	}
}

func TestCompressRejectsInvalidInput(t *testing.T) {
	compressor := NewCompressor(Options{})

	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("not an image at all")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := compressor.Compress(context.Background(), CapturedImage{Data: tc.data}); err == nil {
				t.Error("expected an error for undecodable input")
			}
		})
	}
}

func TestDataURLFormat(t *testing.T) {
	compressor := NewCompressor(Options{})
	data := flatImage(t, 64, 64)

	payload, err := compressor.Compress(context.Background(), CapturedImage{Data: data, MimeType: "image/jpeg"})
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}

	url := payload.DataURL()
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Errorf("unexpected data URL prefix: %q", url[:32])
	}
	if len(url) != payload.TransportSize() {
		t.Errorf("TransportSize %d does not match rendered length %d", payload.TransportSize(), len(url))
	}
}

func TestCompressHonoursCancellation(t *testing.T) {
	compressor := NewCompressor(Options{TargetBytes: 1})
	data := noisyImage(t, 1200, 900)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := compressor.Compress(ctx, CapturedImage{Data: data}); err == nil {
		t.Error("expected cancellation error")
	}
}
