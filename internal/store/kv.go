package store

import "context"

// KV is a small persistent key/value store with string values. It backs
// the reminder dismissal markers; the storage mechanism behind it is
// swappable.
type KV interface {
	// Get returns the value for key, or "" when the key is absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
