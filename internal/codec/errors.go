package codec

import "errors"

var (
	// ErrUnsupportedFormat is returned when the bytes are not an image format the codec can read.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrInvalidSize is returned when a resize target has a zero or negative dimension.
	ErrInvalidSize = errors.New("invalid target size")

	// ErrProcessingFailed is returned when decoding, resizing or encoding fails for any other reason.
	ErrProcessingFailed = errors.New("image processing failed")
)
