// Package backend provides the key/value stores behind the cache. A backend
// only holds opaque bytes; freshness is decided by the cache on every read.
//
// Keys() reports keys in insertion order: overwriting an existing key keeps
// its original position, deleting it and writing it again moves it to the
// end.
package backend

import "context"

// Backend is a byte store with ordered key listing. Implementations must be
// safe for concurrent use.
type Backend interface {
	// Get returns the stored bytes for key. The boolean indicates a hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores val under key, replacing any previous value.
	Set(ctx context.Context, key string, val []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists the stored keys, oldest first.
	Keys(ctx context.Context) ([]string, error)

	// Clear removes every key.
	Clear(ctx context.Context) error

	// Close releases resources held by the backend.
	Close() error
}
