package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-enroll-api/internal/domain"
	"github.com/go-enroll-api/internal/pkg/expiring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(maxAttempts int) (*TokenStore, *expiring.MemoryStore[domain.VerificationToken], *clock) {
	mem := expiring.NewMemoryStore[domain.VerificationToken]("tokens", nil)
	c := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	ts := NewTokenStore(mem, maxAttempts)
	ts.nowF = c.Now
	return ts, mem, c
}

func TestConsume_MatchIsSingleUse(t *testing.T) {
	ctx := context.Background()
	ts, mem, _ := newTestStore(0)
	require.NoError(t, ts.Issue(ctx, "a@x.com", domain.PurposeRegister, "123456", 10*time.Minute))

	res, err := ts.Consume(ctx, "a@x.com", domain.PurposeRegister, "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.ConsumeMatched, res)
	assert.Equal(t, 0, mem.Len())

	res, err = ts.Consume(ctx, "a@x.com", domain.PurposeRegister, "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.ConsumeNotFound, res)
}

func TestConsume_MismatchKeepsTokenRetryable(t *testing.T) {
	ctx := context.Background()
	ts, _, _ := newTestStore(0)
	require.NoError(t, ts.Issue(ctx, "a@x.com", domain.PurposeRegister, "123456", 10*time.Minute))

	res, err := ts.Consume(ctx, "a@x.com", domain.PurposeRegister, "000000")
	require.NoError(t, err)
	assert.Equal(t, domain.ConsumeMismatched, res)

	res, err = ts.Consume(ctx, "a@x.com", domain.PurposeRegister, "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.ConsumeMatched, res)
}

func TestConsume_AfterExpiryDeletesEntry(t *testing.T) {
	ctx := context.Background()
	ts, mem, c := newTestStore(0)
	require.NoError(t, ts.Issue(ctx, "a@x.com", domain.PurposeRegister, "123456", 10*time.Minute))
	c.Advance(10*time.Minute + time.Second)

	res, err := ts.Consume(ctx, "a@x.com", domain.PurposeRegister, "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.ConsumeExpired, res)
	assert.Equal(t, 0, mem.Len())

	res, err = ts.Consume(ctx, "a@x.com", domain.PurposeRegister, "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.ConsumeNotFound, res)
}

func TestConsume_ExactExpiryInstantStillMatches(t *testing.T) {
	ctx := context.Background()
	ts, _, c := newTestStore(0)
	require.NoError(t, ts.Issue(ctx, "a@x.com", domain.PurposeRegister, "123456", time.Minute))
	c.Advance(time.Minute)

	res, err := ts.Consume(ctx, "a@x.com", domain.PurposeRegister, "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.ConsumeMatched, res)
}

func TestIssue_ReissueInvalidatesPreviousCode(t *testing.T) {
	ctx := context.Background()
	ts, _, _ := newTestStore(0)
	require.NoError(t, ts.Issue(ctx, "a@x.com", domain.PurposeRegister, "111111", 10*time.Minute))
	require.NoError(t, ts.Issue(ctx, "a@x.com", domain.PurposeRegister, "222222", 10*time.Minute))

	res, err := ts.Consume(ctx, "a@x.com", domain.PurposeRegister, "111111")
	require.NoError(t, err)
	assert.NotEqual(t, domain.ConsumeMatched, res)

	res, err = ts.Consume(ctx, "a@x.com", domain.PurposeRegister, "222222")
	require.NoError(t, err)
	assert.Equal(t, domain.ConsumeMatched, res)
}

func TestIssue_PurposesDoNotCollide(t *testing.T) {
	ctx := context.Background()
	ts, mem, _ := newTestStore(0)
	require.NoError(t, ts.Issue(ctx, "a@x.com", domain.PurposeRegister, "111111", 10*time.Minute))
	require.NoError(t, ts.Issue(ctx, "a@x.com", domain.PurposeReset, "222222", 10*time.Minute))
	assert.Equal(t, 2, mem.Len())

	res, err := ts.Consume(ctx, "a@x.com", domain.PurposeReset, "111111")
	require.NoError(t, err)
	assert.Equal(t, domain.ConsumeMismatched, res)

	res, err = ts.Consume(ctx, "a@x.com", domain.PurposeRegister, "111111")
	require.NoError(t, err)
	assert.Equal(t, domain.ConsumeMatched, res)
}

func TestConsume_EmailIsNormalized(t *testing.T) {
	ctx := context.Background()
	ts, _, _ := newTestStore(0)
	require.NoError(t, ts.Issue(ctx, "  A@X.com ", domain.PurposeRegister, "123456", time.Minute))

	res, err := ts.Consume(ctx, "a@x.COM", domain.PurposeRegister, "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.ConsumeMatched, res)
}

func TestConsume_AttemptLimitLocksToken(t *testing.T) {
	ctx := context.Background()
	ts, mem, _ := newTestStore(3)
	require.NoError(t, ts.Issue(ctx, "a@x.com", domain.PurposeReset, "123456", 10*time.Minute))

	for i := 0; i < 2; i++ {
		res, err := ts.Consume(ctx, "a@x.com", domain.PurposeReset, "000000")
		require.NoError(t, err)
		assert.Equal(t, domain.ConsumeMismatched, res)
	}
	res, err := ts.Consume(ctx, "a@x.com", domain.PurposeReset, "000000")
	require.NoError(t, err)
	assert.Equal(t, domain.ConsumeLocked, res)
	assert.Equal(t, 0, mem.Len())

	res, err = ts.Consume(ctx, "a@x.com", domain.PurposeReset, "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.ConsumeNotFound, res)
}

func TestConsume_MismatchKeepsOriginalExpiry(t *testing.T) {
	ctx := context.Background()
	ts, mem, c := newTestStore(0)
	require.NoError(t, ts.Issue(ctx, "a@x.com", domain.PurposeRegister, "123456", time.Minute))
	before, _, _ := mem.Get(ctx, "a@x.com")

	c.Advance(30 * time.Second)
	_, err := ts.Consume(ctx, "a@x.com", domain.PurposeRegister, "000000")
	require.NoError(t, err)

	after, ok, _ := mem.Get(ctx, "a@x.com")
	require.True(t, ok)
	assert.True(t, before.ExpiresAt.Equal(after.ExpiresAt))
	assert.Equal(t, 1, after.Value.Attempts)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	ts, mem, _ := newTestStore(0)
	require.NoError(t, ts.Issue(ctx, "a@x.com", domain.PurposeReset, "123456", time.Minute))
	require.NoError(t, ts.Delete(ctx, "a@x.com", domain.PurposeReset))
	assert.Equal(t, 0, mem.Len())
	require.NoError(t, ts.Delete(ctx, "a@x.com", domain.PurposeReset))
}

type failingStore struct {
	expiring.Store[domain.VerificationToken]
}

func (failingStore) Set(context.Context, string, expiring.Entry[domain.VerificationToken]) error {
	return errors.New("connection refused")
}

func TestIssue_BackendFailureIsPersistenceError(t *testing.T) {
	ts := NewTokenStore(failingStore{}, 0)
	err := ts.Issue(context.Background(), "a@x.com", domain.PurposeRegister, "123456", time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPersistence))
}

// interleavingStore runs before() once, just ahead of the first CompareAndSwap, to let
// another consumer act between this consumer's read and its commit.
type interleavingStore struct {
	expiring.Store[domain.VerificationToken]
	before func()
}

func (s *interleavingStore) CompareAndSwap(ctx context.Context, key string, old expiring.Entry[domain.VerificationToken], next *expiring.Entry[domain.VerificationToken]) (bool, error) {
	if f := s.before; f != nil {
		s.before = nil
		f()
	}
	return s.Store.CompareAndSwap(ctx, key, old, next)
}

func TestConsume_SharedBackendMatchesOnce(t *testing.T) {
	ctx := context.Background()
	mem := expiring.NewMemoryStore[domain.VerificationToken]("tokens", nil)
	other := NewTokenStore(mem, 0)
	racing := &interleavingStore{Store: mem}
	ts := NewTokenStore(racing, 0)
	require.NoError(t, ts.Issue(ctx, "a@x.com", domain.PurposeRegister, "123456", 10*time.Minute))

	var otherRes domain.ConsumeResult
	racing.before = func() {
		var err error
		otherRes, err = other.Consume(ctx, "a@x.com", domain.PurposeRegister, "123456")
		require.NoError(t, err)
	}

	res, err := ts.Consume(ctx, "a@x.com", domain.PurposeRegister, "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.ConsumeMatched, otherRes)
	assert.Equal(t, domain.ConsumeNotFound, res)
	assert.Equal(t, 0, mem.Len())
}

func TestConsume_ConcurrentMismatchDoesNotLoseMatch(t *testing.T) {
	ctx := context.Background()
	mem := expiring.NewMemoryStore[domain.VerificationToken]("tokens", nil)
	other := NewTokenStore(mem, 0)
	racing := &interleavingStore{Store: mem}
	ts := NewTokenStore(racing, 0)
	require.NoError(t, ts.Issue(ctx, "a@x.com", domain.PurposeRegister, "123456", 10*time.Minute))

	racing.before = func() {
		res, err := other.Consume(ctx, "a@x.com", domain.PurposeRegister, "000000")
		require.NoError(t, err)
		require.Equal(t, domain.ConsumeMismatched, res)
	}

	res, err := ts.Consume(ctx, "a@x.com", domain.PurposeRegister, "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.ConsumeMatched, res)
	assert.Equal(t, 0, mem.Len())
}

func TestConsume_ReissueDuringConsumeKeepsNewCode(t *testing.T) {
	ctx := context.Background()
	mem := expiring.NewMemoryStore[domain.VerificationToken]("tokens", nil)
	other := NewTokenStore(mem, 0)
	racing := &interleavingStore{Store: mem}
	ts := NewTokenStore(racing, 0)
	require.NoError(t, ts.Issue(ctx, "a@x.com", domain.PurposeRegister, "111111", 10*time.Minute))

	racing.before = func() {
		require.NoError(t, other.Issue(ctx, "a@x.com", domain.PurposeRegister, "222222", 10*time.Minute))
	}

	res, err := ts.Consume(ctx, "a@x.com", domain.PurposeRegister, "111111")
	require.NoError(t, err)
	assert.Equal(t, domain.ConsumeMismatched, res)

	res, err = other.Consume(ctx, "a@x.com", domain.PurposeRegister, "222222")
	require.NoError(t, err)
	assert.Equal(t, domain.ConsumeMatched, res)
}
