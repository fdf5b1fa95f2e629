// Package codec decodes image bytes and produces resized variants.
//
// Two implementations are provided: ImagingCodec (pure Go, used in tests and
// when libvips is unavailable) and vipscodec.Codec (libvips).
package codec

import "image"

// Image is a decoded image held by the memory tier.
type Image struct {
	Width  int
	Height int
	Format string

	// Pixels is the decoded raster. Codecs that keep images in their
	// native representation leave it nil.
	Pixels image.Image

	// Encoded holds the bytes the image was decoded from or encoded to.
	Encoded []byte
}

// Cost approximates the memory footprint of the decoded image in bytes.
func (i *Image) Cost() int64 {
	if i == nil {
		return 0
	}
	return int64(i.Width) * int64(i.Height) * 4
}

// Codec decodes raw bytes and produces resized variants.
// Implementations must be safe for concurrent use.
type Codec interface {
	// Decode parses data into an Image.
	Decode(data []byte) (*Image, error)

	// Resize fits img into a width x height box and returns the resized
	// image together with its encoded bytes for storage.
	Resize(img *Image, width, height int) (*Image, []byte, error)
}

// Fit returns the largest dimensions with the aspect ratio of srcW x srcH
// that fit into a width x height box. Both results are at least 1.
func Fit(srcW, srcH, width, height int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return width, height
	}
	scale := min(float64(width)/float64(srcW), float64(height)/float64(srcH))
	w := int(float64(srcW)*scale + 0.5)
	h := int(float64(srcH)*scale + 0.5)
	return max(w, 1), max(h, 1)
}
