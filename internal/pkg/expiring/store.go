// Package expiring provides a key-value store whose entries carry an absolute expiry,
// plus the sweeper that evicts them. Backends live here (memory) and under
// internal/infrastructure (redis, dynamo).
package expiring

import (
	"bytes"
	"context"
	"encoding/json"
	"time"
)

// Entry is a stored value and the instant after which it is considered expired.
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its expiry at now.
func (e Entry[V]) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// wireEntry is the snapshot form of an Entry: expiry as unix milliseconds.
type wireEntry[V any] struct {
	Value     V     `json:"value"`
	ExpiresAt int64 `json:"expires_at"`
}

func (e Entry[V]) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEntry[V]{Value: e.Value, ExpiresAt: e.ExpiresAt.UnixMilli()})
}

func (e *Entry[V]) UnmarshalJSON(data []byte) error {
	var w wireEntry[V]
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.Value = w.Value
	e.ExpiresAt = time.UnixMilli(w.ExpiresAt).UTC()
	return nil
}

// Equal reports whether a and b have the same stored form.
func Equal[V any](a, b Entry[V]) bool {
	x, err := json.Marshal(a)
	if err != nil {
		return false
	}
	y, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(x, y)
}

// Store is a TTL key-value store. Get does not filter expired entries: callers decide
// what an expired entry means for them. Each Set and Delete is atomic per key.
//
// CompareAndSwap replaces the entry at key with next only while the stored entry is still
// equal to old, and reports whether it did. A nil next deletes the key. It is the only
// safe way to act on something read earlier when other writers share the backend.
type Store[V any] interface {
	Set(ctx context.Context, key string, e Entry[V]) error
	Get(ctx context.Context, key string) (Entry[V], bool, error)
	Delete(ctx context.Context, key string) error
	CompareAndSwap(ctx context.Context, key string, old Entry[V], next *Entry[V]) (bool, error)
	Sweeper
}

// Sweeper removes entries that expired before now and reports how many were removed.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}
