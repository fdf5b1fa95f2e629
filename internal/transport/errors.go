package transport

import "errors"

var (
	// ErrInvalidURL is returned when the URL cannot be parsed or has no http(s) scheme.
	ErrInvalidURL = errors.New("invalid image URL")

	// ErrFetchFailed is returned when fetching the bytes fails for any reason.
	ErrFetchFailed = errors.New("failed to fetch image")

	// ErrNotFound is returned when the remote server reports the image does not exist.
	ErrNotFound = errors.New("image not found")

	// ErrTimeout is returned when the request exceeds its deadline.
	ErrTimeout = errors.New("image request timed out")

	// ErrTooLarge is returned when the response body exceeds the configured limit.
	ErrTooLarge = errors.New("image exceeds size limit")
)
