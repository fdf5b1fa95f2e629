package cache

import "errors"

var (
	// ErrEmptyKey is returned when a store operation is given an empty key.
	ErrEmptyKey = errors.New("store key is empty")

	// ErrInvalidStoreDir is returned when a file store is created without a directory.
	ErrInvalidStoreDir = errors.New("store directory cannot be empty")
)

// ByteStore persists raw bytes by string key.
// Keys are slash-separated relative names such as "scaled/a.png100x100".
// Implementations must be safe for concurrent use.
type ByteStore interface {
	Get(key string) ([]byte, bool)
	Has(key string) bool // Check existence without reading the value
	// SetIfAbsent stores value under key unless an entry already exists.
	// It reports whether this call wrote the entry.
	SetIfAbsent(key string, value []byte) (bool, error)
	Clear() error
}
