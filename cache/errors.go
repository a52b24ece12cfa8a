package cache

import "errors"

var (
	// ErrNotFound is returned for absent or expired keys.
	ErrNotFound = errors.New("cache: key not found")
	// ErrTooLarge is returned when a key or value exceeds the configured limits.
	ErrTooLarge = errors.New("cache: entry too large")
	// ErrCorrupted is returned when a stored payload fails to decompress.
	// The entry has been evicted by the time the caller sees it.
	ErrCorrupted = errors.New("cache: stored value corrupted")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("cache: store closed")
)
