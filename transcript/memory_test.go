package transcript

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AppendAndList(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "CA123", "assistant", "Good morning."))
	require.NoError(t, store.Append(ctx, "CA123", "user", "Morning, dear."))

	entries, err := store.List(ctx, "CA123")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Good morning.", entries[0].Text)
	assert.Equal(t, "user", entries[1].Role)
	assert.NotEmpty(t, entries[0].ID)
}

func TestMemoryStore_ListEmptySession(t *testing.T) {
	store := NewMemoryStore()

	entries, err := store.List(context.Background(), "CA999")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemoryStore_ListReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "CA123", "user", "original"))

	entries, err := store.List(ctx, "CA123")
	require.NoError(t, err)
	entries[0].Text = "mutated"

	again, err := store.List(ctx, "CA123")
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Text)
}

func TestMemoryStore_InvalidArgs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	assert.ErrorIs(t, store.Append(ctx, "", "user", "hello"), ErrInvalidSession)
	assert.ErrorIs(t, store.Append(ctx, "CA123", "user", ""), ErrEmptyText)

	_, err := store.List(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestMemoryStore_ConcurrentAppends(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = store.Append(ctx, "CA123", "user", fmt.Sprintf("line %d", n))
		}(i)
	}
	wg.Wait()

	entries, err := store.List(ctx, "CA123")
	require.NoError(t, err)
	assert.Len(t, entries, 10)
}

func TestStoreInterfaces(t *testing.T) {
	var _ Store = (*RedisStore)(nil)
	var _ Store = (*MemoryStore)(nil)
}
