package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, Key("a"), "one", 0))

	val, ok, err := store.Get(ctx, Key("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "one", val)

	exists, err := store.Exists(ctx, Key("a"))
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, store.Delete(ctx, Key("a")))
	_, ok, err = store.Get(ctx, Key("a"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	require.NoError(t, store.Set(ctx, Key("tmp"), "x", time.Minute))
	_, ok, err := store.Get(ctx, Key("tmp"))
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, err = store.Get(ctx, Key("tmp"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreIncrement(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	n, err := store.Increment(ctx, Key("attempts"), time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = store.Increment(ctx, Key("attempts"), time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	// TTL counts from first creation; once it elapses the counter restarts.
	now = now.Add(2 * time.Minute)
	n, err = store.Increment(ctx, Key("attempts"), time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestKeyNamespacing(t *testing.T) {
	require.Equal(t, "akademi:lock:user@example.com", Key("lock", "user@example.com"))
}
