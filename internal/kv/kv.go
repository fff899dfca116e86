// Package kv defines the durable key-value store every sync component is built on.
package kv

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when the key has no value.
	ErrNotFound = errors.New("key not found")
	// ErrStorage wraps every I/O failure of a backend.
	ErrStorage = errors.New("storage failure")
)

// Store is an asynchronous, crash-durable string to string store.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	RemoveMany(ctx context.Context, keys []string) error
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
