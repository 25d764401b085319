package expiring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenSweeper struct{}

func (brokenSweeper) Sweep(context.Context, time.Time) (int, error) {
	return 0, errors.New("backend down")
}

func TestSweepLoop_SweepOnceCoversAllTargets(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	tokens := NewMemoryStore[payload]("tokens", nil)
	pending := NewMemoryStore[payload]("pending", nil)
	require.NoError(t, tokens.Set(ctx, "t", Entry[payload]{ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, pending.Set(ctx, "p", Entry[payload]{ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, pending.Set(ctx, "live", Entry[payload]{ExpiresAt: now.Add(time.Hour)}))

	loop := NewSweepLoop(time.Minute,
		Target{Name: "tokens", Store: tokens},
		Target{Name: "broken", Store: brokenSweeper{}},
		Target{Name: "pending", Store: pending},
	)
	loop.nowF = func() time.Time { return now }

	assert.Equal(t, 2, loop.SweepOnce(ctx))
	assert.Equal(t, 0, tokens.Len())
	assert.Equal(t, 1, pending.Len())
}

func TestSweepLoop_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := NewMemoryStore[payload]("tokens", nil)
	require.NoError(t, store.Set(ctx, "t", Entry[payload]{ExpiresAt: time.Now().Add(-time.Second)}))

	done := make(chan struct{})
	go func() {
		NewSweepLoop(5*time.Millisecond, Target{Name: "tokens", Store: store}).Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep loop did not stop after cancel")
	}
}
