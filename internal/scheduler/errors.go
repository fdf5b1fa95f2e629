package scheduler

import "errors"

var (
	// ErrTransport is reported when the original bytes could not be fetched.
	ErrTransport = errors.New("transport error")

	// ErrDecode is reported when fetched bytes do not decode to an image.
	ErrDecode = errors.New("decode error")

	// ErrResize is reported when the target size is invalid or resizing failed.
	ErrResize = errors.New("resize error")

	// ErrClosed is returned by Close on a scheduler that is already closed.
	ErrClosed = errors.New("scheduler closed")
)
