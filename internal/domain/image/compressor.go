package image

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"cleancity-server-go/internal/platform/errors"
	"cleancity-server-go/internal/platform/logging"
)

// Options tunes the compressor. Zero values fall back to the behaviour of the
// original reporting front-end: 800px max dimension, quality 70 stepping down
// by 10 to a floor of 10, 40 KiB transport budget.
type Options struct {
	TargetBytes  int
	MaxDimension int
	QualityStart int
	QualityFloor int
	QualityStep  int
	Logger       *logging.Logger
}

// Compressor converts arbitrary camera photos into bounded-size JPEG
// payloads. The budget is a soft target: when the quality floor is reached
// the oversized payload is returned rather than an error.
type Compressor struct {
	opts Options
}

// NewCompressor validates options and applies defaults.
func NewCompressor(opts Options) *Compressor {
	if opts.TargetBytes <= 0 {
		opts.TargetBytes = 40 * 1024
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = 800
	}
	if opts.QualityStart <= 0 || opts.QualityStart > 100 {
		opts.QualityStart = 70
	}
	if opts.QualityFloor <= 0 {
		opts.QualityFloor = 10
	}
	if opts.QualityStep <= 0 {
		opts.QualityStep = 10
	}
	return &Compressor{opts: opts}
}

// Compress decodes the captured photo, downscales it so neither dimension
// exceeds the configured maximum, and re-encodes it as JPEG, stepping the
// quality down until the transport representation fits the byte budget or
// the quality floor is reached.
func (c *Compressor) Compress(ctx context.Context, captured CapturedImage) (*CompressedPayload, error) {
	if len(captured.Data) == 0 {
		return nil, errors.New(errors.KindVision, "compress.decode", "empty image payload")
	}

	src, format, err := image.Decode(bytes.NewReader(captured.Data))
	if err != nil {
		return nil, errors.Wrap(errors.KindVision, "compress.decode", "failed to decode image", err)
	}

	raster := c.scale(src)
	bounds := raster.Bounds()

	quality := c.opts.QualityStart
	encoded, err := encodeJPEG(raster, quality)
	if err != nil {
		return nil, err
	}

	payload := &CompressedPayload{
		Data:    encoded,
		Quality: quality,
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
	}

	for payload.TransportSize() > c.opts.TargetBytes && quality > c.opts.QualityFloor {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(errors.KindVision, "compress.encode", "compression cancelled", err)
		}
		quality -= c.opts.QualityStep
		if quality < c.opts.QualityFloor {
			quality = c.opts.QualityFloor
		}
		encoded, err = encodeJPEG(raster, quality)
		if err != nil {
			return nil, err
		}
		payload.Data = encoded
		payload.Quality = quality
	}

	if c.opts.Logger != nil {
		c.opts.Logger.Debug(
			"image compressed: format=%s size=%.2fKB quality=%d dims=%dx%d",
			format,
			float64(payload.TransportSize())/1024,
			payload.Quality,
			payload.Width,
			payload.Height,
		)
	}

	return payload, nil
}

// scale returns the source image rendered into an off-screen raster whose
// larger dimension is capped at MaxDimension, preserving aspect ratio.
func (c *Compressor) scale(src image.Image) *image.RGBA {
	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	maxDim := c.opts.MaxDimension

	if width > height && width > maxDim {
		height = height * maxDim / width
		width = maxDim
	} else if height > maxDim {
		width = width * maxDim / height
		height = maxDim
	}
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.Wrap(errors.KindVision, "compress.encode", "failed to encode jpeg", err)
	}
	return buf.Bytes(), nil
}
