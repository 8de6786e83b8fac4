package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIdempotencyStore(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	t.Run("first claim wins", func(t *testing.T) {
		ok, err := store.MarkProcessed(ctx, "evt_1", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.MarkProcessed(ctx, "evt_1", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expired claims can be taken again", func(t *testing.T) {
		ok, _ := store.MarkProcessed(ctx, "evt_2", time.Minute)
		require.True(t, ok)
		now = now.Add(2 * time.Minute)
		ok, _ = store.MarkProcessed(ctx, "evt_2", time.Minute)
		assert.True(t, ok)
	})

	t.Run("release allows redelivery", func(t *testing.T) {
		ok, _ := store.MarkProcessed(ctx, "evt_3", time.Hour)
		require.True(t, ok)
		require.NoError(t, store.Release(ctx, "evt_3"))
		ok, _ = store.MarkProcessed(ctx, "evt_3", time.Hour)
		assert.True(t, ok)
	})

	t.Run("sweep drops expired ids", func(t *testing.T) {
		now = now.Add(48 * time.Hour)
		store.sweep()
		assert.Zero(t, store.Len())
	})
}

func TestInMemoryIdempotencyStore_ConcurrentClaims(t *testing.T) {
	store := NewInMemoryIdempotencyStore(time.Hour)
	defer store.Close()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := store.MarkProcessed(context.Background(), "evt", time.Hour); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
