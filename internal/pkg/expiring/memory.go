package expiring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. When a Snapshotter is attached, every mutation is
// followed by a full snapshot written while the lock is still held, so two mutations can
// never interleave their snapshots. A failed snapshot is logged and the in-memory state
// stays authoritative.
type MemoryStore[V any] struct {
	name     string
	mu       sync.Mutex
	m        map[string]Entry[V]
	snapshot Snapshotter
}

// NewMemoryStore returns an empty store. name only appears in logs.
func NewMemoryStore[V any](name string, snapshot Snapshotter) *MemoryStore[V] {
	return &MemoryStore[V]{
		name:     name,
		m:        make(map[string]Entry[V]),
		snapshot: snapshot,
	}
}

// Restore replaces the contents of the store with the last snapshot, if any.
func (s *MemoryStore[V]) Restore(ctx context.Context) error {
	if s.snapshot == nil {
		return nil
	}
	data, err := s.snapshot.Load(ctx)
	if err != nil {
		return fmt.Errorf("load %s snapshot: %w", s.name, err)
	}
	if len(data) == 0 {
		return nil
	}
	m := make(map[string]Entry[V])
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode %s snapshot: %w", s.name, err)
	}
	s.mu.Lock()
	s.m = m
	s.mu.Unlock()
	slog.Info("restored expiring store", "store", s.name, "entries", len(m))
	return nil
}

func (s *MemoryStore[V]) Set(ctx context.Context, key string, e Entry[V]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = e
	s.persistLocked(ctx)
	return nil
}

func (s *MemoryStore[V]) Get(_ context.Context, key string) (Entry[V], bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	return e, ok, nil
}

func (s *MemoryStore[V]) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; !ok {
		return nil
	}
	delete(s.m, key)
	s.persistLocked(ctx)
	return nil
}

func (s *MemoryStore[V]) CompareAndSwap(ctx context.Context, key string, old Entry[V], next *Entry[V]) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[key]
	if !ok || !Equal(cur, old) {
		return false, nil
	}
	if next == nil {
		delete(s.m, key)
	} else {
		s.m[key] = *next
	}
	s.persistLocked(ctx)
	return true, nil
}

func (s *MemoryStore[V]) Sweep(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.m {
		if e.Expired(now) {
			delete(s.m, k)
			n++
		}
	}
	if n > 0 {
		s.persistLocked(ctx)
	}
	return n, nil
}

// Len returns the number of entries, expired or not.
func (s *MemoryStore[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *MemoryStore[V]) persistLocked(ctx context.Context) {
	if s.snapshot == nil {
		return
	}
	data, err := json.Marshal(s.m)
	if err != nil {
		slog.Error("encode snapshot", "store", s.name, "err", err)
		return
	}
	if err := s.snapshot.Save(ctx, data); err != nil {
		slog.Error("write snapshot", "store", s.name, "err", err)
	}
}
