package enrollment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-enroll-api/internal/domain"
	"github.com/go-enroll-api/internal/pkg/expiring"
)

// PendingCache holds candidate registrations keyed by normalized email. It never checks
// expiry on read; callers compare PendingEnrollment.ExpiresAt themselves.
type PendingCache struct {
	store expiring.Store[domain.PendingEnrollment]
	nowF  func() time.Time
}

func NewPendingCache(store expiring.Store[domain.PendingEnrollment]) *PendingCache {
	return &PendingCache{store: store, nowF: time.Now}
}

// Put stores p under its email, replacing any earlier candidate and restarting its expiry.
func (c *PendingCache) Put(ctx context.Context, p domain.PendingEnrollment, ttl time.Duration) error {
	p.Email = domain.NormalizeEmail(p.Email)
	p.ExpiresAt = c.nowF().Add(ttl)
	if err := c.store.Set(ctx, p.Email, expiring.Entry[domain.PendingEnrollment]{Value: p, ExpiresAt: p.ExpiresAt}); err != nil {
		return fmt.Errorf("put pending enrollment: %w: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (c *PendingCache) Get(ctx context.Context, email string) (*domain.PendingEnrollment, error) {
	e, ok, err := c.store.Get(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("get pending enrollment: %w: %v", domain.ErrPersistence, err)
	}
	if !ok {
		return nil, fmt.Errorf("pending enrollment not found: %w", domain.ErrNotFound)
	}
	p := e.Value
	return &p, nil
}

func (c *PendingCache) Remove(ctx context.Context, email string) error {
	if err := c.store.Delete(ctx, domain.NormalizeEmail(email)); err != nil {
		return fmt.Errorf("remove pending enrollment: %w: %v", domain.ErrPersistence, err)
	}
	return nil
}
