package elevated

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "wb:"), mr
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "elevated:sa-1")
	require.ErrorIs(t, err, ErrNoCredential)

	require.NoError(t, store.Set(ctx, "elevated:sa-1", "tok-1", time.Hour))
	assert.True(t, mr.Exists("wb:elevated:sa-1"))

	got, err := store.Get(ctx, "elevated:sa-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got)

	require.NoError(t, store.Clear(ctx, "elevated:sa-1"))
	_, err = store.Get(ctx, "elevated:sa-1")
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "tok", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestRedisStore_ClearIf(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "new", time.Hour))
	require.NoError(t, store.ClearIf(ctx, "k", "old"))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", got)

	require.NoError(t, store.ClearIf(ctx, "k", "new"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNoCredential)

	require.NoError(t, store.ClearIf(ctx, "absent", "x"))
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCredential)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := store.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNoCredential)

	require.NoError(t, store.Set(ctx, "k", "tok", time.Minute))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "tok", got)

	require.NoError(t, store.ClearIf(ctx, "k", "other"))
	_, err = store.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNoCredential)

	require.NoError(t, store.Set(ctx, "k", "tok-2", 0))
	require.NoError(t, store.ClearIf(ctx, "k", "tok-2"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNoCredential)
}
