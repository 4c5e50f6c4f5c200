// Package localstore defines the durable key-value substrate that holds the
// serialized document on this device.
package localstore

import (
	"errors"
)

// ErrNotFound is returned by Read when the key has never been written.
var ErrNotFound = errors.New("key not found")

// KV is a durable key-value store. Each Write replaces the whole value of
// one key atomically; there are no transactions across keys.
type KV interface {
	// Read returns the value stored under key, or ErrNotFound.
	Read(key string) ([]byte, error)

	// Write stores value under key, replacing any previous value.
	Write(key string, value []byte) error

	// Close releases resources held by the store.
	Close() error
}
