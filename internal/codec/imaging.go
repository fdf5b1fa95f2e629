package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// DefaultQuality is the JPEG quality used for encoded variants.
const DefaultQuality = 90

// ImagingCodec implements Codec with the standard image decoders and the
// imaging library. Resized variants are always encoded as JPEG.
type ImagingCodec struct {
	quality int
}

// NewImagingCodec creates an ImagingCodec. A quality outside 1-100 uses DefaultQuality.
func NewImagingCodec(quality int) *ImagingCodec {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return &ImagingCodec{quality: quality}
}

func (c *ImagingCodec) Decode(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image data", ErrUnsupportedFormat)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		return nil, fmt.Errorf("%w: failed to decode image: %v", ErrProcessingFailed, err)
	}

	bounds := img.Bounds()
	return &Image{
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
		Format:  format,
		Pixels:  img,
		Encoded: data,
	}, nil
}

func (c *ImagingCodec) Resize(img *Image, width, height int) (*Image, []byte, error) {
	if width <= 0 || height <= 0 {
		return nil, nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if img == nil {
		return nil, nil, fmt.Errorf("%w: nil image", ErrProcessingFailed)
	}

	src := img.Pixels
	if src == nil {
		decoded, err := c.Decode(img.Encoded)
		if err != nil {
			return nil, nil, err
		}
		src = decoded.Pixels
	}

	bounds := src.Bounds()
	w, h := Fit(bounds.Dx(), bounds.Dy(), width, height)
	resized := imaging.Resize(src, w, h, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to encode JPEG: %v", ErrProcessingFailed, err)
	}

	data := buf.Bytes()
	return &Image{
		Width:   w,
		Height:  h,
		Format:  "jpeg",
		Pixels:  resized,
		Encoded: data,
	}, data, nil
}
