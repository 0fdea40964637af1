// Package state is the shared mutable store for bookkeeping that multiple
// OS processes touch, most importantly the agent process table. Writers go
// through atomic read-modify-write transactions rather than application
// locks, because the competing writers are separate processes.
package state

import (
	"context"
	"encoding/json"
	"time"
)

// Update is emitted when a watched key changes.
type Update struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Store defines operations on versioned shared state.
type Store interface {
	// Put stores a value with optional TTL and returns the new version.
	Put(ctx context.Context, key string, value any, ttl time.Duration) (int64, error)
	// Get decodes the value into dest. The bool reports presence.
	Get(ctx context.Context, key string, dest any) (int64, bool, error)
	// Update runs fn inside a transaction on one key. fn receives the raw
	// stored value (nil when absent) and returns the replacement value;
	// returning nil deletes the key. Concurrent writers to the same key
	// cause a retry, never a lost update.
	Update(ctx context.Context, key string, ttl time.Duration, fn func(raw []byte) (any, error)) error
	// Watch subscribes to updates for keys matching a glob pattern.
	Watch(ctx context.Context, pattern string) (<-chan Update, error)
	// Delete removes a key.
	Delete(ctx context.Context, key string) error
	Close() error
}
