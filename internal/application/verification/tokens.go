// Package verification owns one-time code issue and consume semantics on top of an
// expiring store.
package verification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-enroll-api/internal/domain"
	"github.com/go-enroll-api/internal/pkg/expiring"
	"github.com/go-enroll-api/internal/pkg/otp"
)

// TokenStore issues and consumes verification tokens. At most one live token exists per
// key; issuing again orphans the previous code.
//
// Every decision Consume makes is committed with CompareAndSwap against the entry it read,
// so a code matches at most once even when several processes share the backend.
type TokenStore struct {
	store       expiring.Store[domain.VerificationToken]
	maxAttempts int
	nowF        func() time.Time
}

// consumeRetries bounds how often Consume re-reads a token that changed under it.
const consumeRetries = 5

// NewTokenStore wraps store. maxAttempts <= 0 allows unlimited mismatches until expiry.
func NewTokenStore(store expiring.Store[domain.VerificationToken], maxAttempts int) *TokenStore {
	return &TokenStore{store: store, maxAttempts: maxAttempts, nowF: time.Now}
}

// Issue stores code for (email, purpose), replacing any existing token.
func (t *TokenStore) Issue(ctx context.Context, email string, purpose domain.Purpose, code string, ttl time.Duration) error {
	key := domain.TokenKey(email, purpose)
	now := t.nowF()
	tok := domain.VerificationToken{
		Key:      key,
		Purpose:  purpose,
		CodeHash: otp.Hash(code),
		IssuedAt: now.UTC(),
	}
	if err := t.store.Set(ctx, key, expiring.Entry[domain.VerificationToken]{Value: tok, ExpiresAt: now.Add(ttl)}); err != nil {
		return fmt.Errorf("issue token: %w: %v", domain.ErrPersistence, err)
	}
	return nil
}

// Consume presents code against the token for (email, purpose).
// A match or an expired token deletes the entry; a mismatch keeps it for retry until
// the attempt budget is spent.
func (t *TokenStore) Consume(ctx context.Context, email string, purpose domain.Purpose, code string) (domain.ConsumeResult, error) {
	key := domain.TokenKey(email, purpose)
	for i := 0; i < consumeRetries; i++ {
		res, done, err := t.tryConsume(ctx, key, code)
		if err != nil || done {
			return res, err
		}
	}
	return domain.ConsumeNotFound, fmt.Errorf("consume token: %w: token kept changing", domain.ErrPersistence)
}

// tryConsume makes one read-decide-commit pass. done is false when the token changed
// between the read and the commit and the pass has to be repeated.
func (t *TokenStore) tryConsume(ctx context.Context, key, code string) (res domain.ConsumeResult, done bool, err error) {
	e, ok, err := t.store.Get(ctx, key)
	if err != nil {
		return domain.ConsumeNotFound, true, fmt.Errorf("read token: %w: %v", domain.ErrPersistence, err)
	}
	if !ok {
		return domain.ConsumeNotFound, true, nil
	}

	var next *expiring.Entry[domain.VerificationToken]
	switch {
	case e.Expired(t.nowF()):
		res = domain.ConsumeExpired
	case otp.Equal(code, e.Value.CodeHash):
		res = domain.ConsumeMatched
	default:
		bumped := e
		bumped.Value.Attempts++
		if t.maxAttempts > 0 && bumped.Value.Attempts >= t.maxAttempts {
			res = domain.ConsumeLocked
		} else {
			res, next = domain.ConsumeMismatched, &bumped
		}
	}

	swapped, err := t.store.CompareAndSwap(ctx, key, e, next)
	if err != nil {
		switch res {
		case domain.ConsumeMatched:
			// A match that cannot be deleted would stay redeemable, so it does not count.
			return domain.ConsumeNotFound, true, fmt.Errorf("consume token: %w: %v", domain.ErrPersistence, err)
		case domain.ConsumeMismatched:
			return res, true, fmt.Errorf("record attempt: %w: %v", domain.ErrPersistence, err)
		}
		// The token can no longer match, so a failed cleanup is only logged.
		slog.Warn("failed to delete verification token", "key", key, "err", err)
		return res, true, nil
	}
	return res, swapped, nil
}

// Delete removes the token for (email, purpose). Missing tokens are not an error.
func (t *TokenStore) Delete(ctx context.Context, email string, purpose domain.Purpose) error {
	if err := t.store.Delete(ctx, domain.TokenKey(email, purpose)); err != nil {
		return fmt.Errorf("delete token: %w: %v", domain.ErrPersistence, err)
	}
	return nil
}
