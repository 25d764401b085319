package redisinfra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-enroll-api/internal/domain"
	"github.com/go-enroll-api/internal/pkg/expiring"
	goredis "github.com/redis/go-redis/v9"
)

// ExpiringStore keeps expiring.Entry values as JSON strings under prefix+key.
// The Redis TTL is the entry expiry plus a retention grace, so an expired entry can
// still be read back and reported as expired until Redis or the sweeper drops it.
type ExpiringStore[V any] struct {
	client    goredis.UniversalClient
	prefix    string
	retention time.Duration
	nowF      func() time.Time
}

func NewExpiringStore[V any](client goredis.UniversalClient, prefix string, retention time.Duration) *ExpiringStore[V] {
	return &ExpiringStore[V]{client: client, prefix: prefix, retention: retention, nowF: time.Now}
}

var _ expiring.Store[domain.PendingEnrollment] = (*ExpiringStore[domain.PendingEnrollment])(nil)

func (s *ExpiringStore[V]) key(k string) string {
	return s.prefix + k
}

// swapScript replaces or deletes KEYS[1] only while it still holds ARGV[1].
// An empty ARGV[2] deletes; otherwise ARGV[2] is stored with a TTL of ARGV[3] milliseconds.
var swapScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
if ARGV[2] == "" then
	redis.call("DEL", KEYS[1])
else
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
end
return 1
`)

// keyTTL is how long Redis should keep an entry expiring at expiresAt.
func keyTTL(expiresAt, now time.Time, retention time.Duration) time.Duration {
	return expiresAt.Add(retention).Sub(now)
}

func (s *ExpiringStore[V]) Set(ctx context.Context, key string, e expiring.Entry[V]) error {
	ttl := keyTTL(e.ExpiresAt, s.nowF(), s.retention)
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (s *ExpiringStore[V]) Get(ctx context.Context, key string) (expiring.Entry[V], bool, error) {
	var e expiring.Entry[V]
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return e, false, nil
	}
	if err != nil {
		return e, false, fmt.Errorf("redis get: %w: %v", domain.ErrPersistence, err)
	}
	if err := json.Unmarshal(val, &e); err != nil {
		return e, false, fmt.Errorf("unmarshal entry: %w", err)
	}
	return e, true, nil
}

func (s *ExpiringStore[V]) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (s *ExpiringStore[V]) CompareAndSwap(ctx context.Context, key string, old expiring.Entry[V], next *expiring.Entry[V]) (bool, error) {
	oldData, err := json.Marshal(old)
	if err != nil {
		return false, fmt.Errorf("marshal entry: %w", err)
	}
	nextData, ttlMs := "", int64(0)
	if next != nil {
		if ttl := keyTTL(next.ExpiresAt, s.nowF(), s.retention); ttl > 0 {
			data, err := json.Marshal(next)
			if err != nil {
				return false, fmt.Errorf("marshal entry: %w", err)
			}
			nextData, ttlMs = string(data), ttl.Milliseconds()
		}
	}
	return s.swap(ctx, s.key(key), string(oldData), nextData, ttlMs)
}

func (s *ExpiringStore[V]) swap(ctx context.Context, rk, old, next string, ttlMs int64) (bool, error) {
	n, err := swapScript.Run(ctx, s.client, []string{rk}, old, next, ttlMs).Int()
	if err != nil {
		return false, fmt.Errorf("redis swap: %w: %v", domain.ErrPersistence, err)
	}
	return n == 1, nil
}

// Sweep walks the prefix with SCAN and deletes entries past their expiry. Each delete
// only goes through if the key still holds the value that was judged expired, so an
// entry rewritten in the meantime survives.
func (s *ExpiringStore[V]) Sweep(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		rk := iter.Val()
		val, err := s.client.Get(ctx, rk).Bytes()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("redis get: %w: %v", domain.ErrPersistence, err)
		}
		var e expiring.Entry[V]
		if err := json.Unmarshal(val, &e); err != nil {
			slog.Warn("dropping undecodable entry", "key", rk, "err", err)
		} else if !e.Expired(now) {
			continue
		}
		deleted, err := s.swap(ctx, rk, string(val), "", 0)
		if err != nil {
			return removed, err
		}
		if deleted {
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan: %w: %v", domain.ErrPersistence, err)
	}
	return removed, nil
}
