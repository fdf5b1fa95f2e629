// Package vipscodec implements codec.Codec with libvips.
//
// Callers must run vips.Startup before use and vips.Shutdown on exit.
package vipscodec

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/cshum/vipsgen/vips"
	"go.uber.org/zap"

	"pixfetch/internal/codec"
)

// Startup initialises libvips and routes its warnings and errors to log.
// Call Shutdown when done.
func Startup(maxCacheMB, concurrency int, log *zap.Logger) {
	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			log.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
	}, vips.LogLevelError)

	vips.Startup(&vips.Config{
		ConcurrencyLevel: concurrency,
		MaxCacheMem:      maxCacheMB * 1024 * 1024,
		MaxCacheFiles:    0, // Disable disk cache
		MaxCacheSize:     0,
		VectorEnabled:    true,
	})

	log.Info("VIPS initialized",
		zap.Int("max_cache_mb", maxCacheMB),
		zap.Int("concurrency", concurrency),
	)
}

func Shutdown() {
	vips.Shutdown()
}

// Codec keeps images in their encoded form and lets libvips decode them
// lazily; Image.Pixels is always nil.
type Codec struct {
	quality int
}

func New(quality int) *Codec {
	if quality < 1 || quality > 100 {
		quality = codec.DefaultQuality
	}
	return &Codec{quality: quality}
}

func (c *Codec) Decode(data []byte) (*codec.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image data", codec.ErrUnsupportedFormat)
	}

	image, err := vips.NewImageFromBuffer(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", codec.ErrUnsupportedFormat, err)
	}
	defer image.Close()

	return &codec.Image{
		Width:   image.Width(),
		Height:  image.Height(),
		Format:  sniffFormat(data),
		Encoded: data,
	}, nil
}

func (c *Codec) Resize(img *codec.Image, width, height int) (*codec.Image, []byte, error) {
	if width <= 0 || height <= 0 {
		return nil, nil, fmt.Errorf("%w: %dx%d", codec.ErrInvalidSize, width, height)
	}
	if img == nil || len(img.Encoded) == 0 {
		return nil, nil, fmt.Errorf("%w: nil image", codec.ErrProcessingFailed)
	}

	image, err := vips.NewImageFromBuffer(img.Encoded, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to open image: %v", codec.ErrProcessingFailed, err)
	}
	defer image.Close()

	// Uniform scale so the result fits the target box.
	w, _ := codec.Fit(image.Width(), image.Height(), width, height)
	scale := float64(w) / float64(image.Width())

	resizeOpts := vips.DefaultResizeOptions()
	resizeOpts.Kernel = vips.KernelLanczos3
	if err := image.Resize(scale, resizeOpts); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to resize: %v", codec.ErrProcessingFailed, err)
	}

	jpegOpts := vips.DefaultJpegsaveBufferOptions()
	jpegOpts.Q = c.quality
	jpegOpts.Interlace = false

	data, err := image.JpegsaveBuffer(jpegOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to export: %v", codec.ErrProcessingFailed, err)
	}

	return &codec.Image{
		Width:   image.Width(),
		Height:  image.Height(),
		Format:  "jpeg",
		Encoded: data,
	}, data, nil
}

func sniffFormat(data []byte) string {
	return strings.TrimPrefix(http.DetectContentType(data), "image/")
}
