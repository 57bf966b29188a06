package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_OneTaskPerKey(t *testing.T) {
	r := NewRegistry()
	release := make(chan struct{})

	ok := r.Go(context.Background(), "alice/full", func(ctx context.Context) { <-release })
	require.True(t, ok)
	assert.True(t, r.Active("alice/full"))
	assert.False(t, r.Go(context.Background(), "alice/full", func(context.Context) {}))
	assert.True(t, r.Go(context.Background(), "bob/full", func(context.Context) {}))

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
	assert.False(t, r.Active("alice/full"))
	assert.Empty(t, r.Keys())
}

func TestRegistry_CancelAll(t *testing.T) {
	r := NewRegistry()
	for _, key := range []string{"a", "b"} {
		require.True(t, r.Go(context.Background(), key, func(ctx context.Context) { <-ctx.Done() }))
	}
	assert.Equal(t, []string{"a", "b"}, r.Keys())

	r.Cancel("a")
	r.CancelAll()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, r.Wait(ctx))
}

func TestRegistry_WaitHonorsContext(t *testing.T) {
	r := NewRegistry()
	release := make(chan struct{})
	defer close(release)
	require.True(t, r.Go(context.Background(), "k", func(context.Context) { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}

func TestRegistry_CancelAndWaitKey(t *testing.T) {
	r := NewRegistry()
	release := make(chan struct{})
	defer close(release)
	require.True(t, r.Go(context.Background(), "a", func(ctx context.Context) { <-ctx.Done() }))
	require.True(t, r.Go(context.Background(), "b", func(context.Context) { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Cancel("a")
	require.NoError(t, r.WaitKey(ctx, "a"))
	assert.False(t, r.Active("a"))
	assert.True(t, r.Active("b"), "other keys keep running")

	assert.NoError(t, r.WaitKey(ctx, "missing"))

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	assert.ErrorIs(t, r.WaitKey(short, "b"), context.DeadlineExceeded)
}
