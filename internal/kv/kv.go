// Package kv provides durable string key/value namespaces used for cookies and
// session flags. Every backend is safe for concurrent use.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrClosed is returned when a store is used after Close.
	ErrClosed = errors.New("kv store is closed")
	// ErrCorrupt is returned when a persisted value cannot be decoded.
	ErrCorrupt = errors.New("kv value is corrupt")
)

// Store is one namespace of durable string entries.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
	All(ctx context.Context) (map[string]string, error)
	// ReplaceAll overwrites the whole namespace with entries.
	ReplaceAll(ctx context.Context, entries map[string]string) error
	Clear(ctx context.Context) error
}

// GetBool reads a boolean flag. A missing key reads as false.
func GetBool(ctx context.Context, store Store, key string) (bool, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: key %q is not a bool", ErrCorrupt, key)
	}

	return value, nil
}

// PutBool writes a boolean flag.
func PutBool(ctx context.Context, store Store, key string, value bool) error {
	return store.Put(ctx, key, strconv.FormatBool(value))
}

func copyEntries(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}

	return dst
}
