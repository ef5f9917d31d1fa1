package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfie2snap/selfie2snap/internal/config"
	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/media"
	"github.com/selfie2snap/selfie2snap/internal/options"
	"github.com/selfie2snap/selfie2snap/internal/testutil"
	"github.com/selfie2snap/selfie2snap/internal/upload"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := NewRedis(client, "test", ttl)
	t.Cleanup(func() { _ = st.Close() })
	return st, mr
}

func testInputs() upload.Inputs {
	return upload.Inputs{
		{Data: testutil.PNG("left"), MediaType: "image/png"},
		{Data: testutil.PNG("right"), MediaType: "image/png"},
	}
}

func testSnapshot(id string) job.Snapshot {
	j := job.New(id, testInputs(), options.Options{FrameCount: 3, AspectRatio: options.AspectSquare, Scene: options.SceneBeach})
	j.Start()
	return j.Snapshot()
}

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, st Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
	t.Run("redis", func(t *testing.T) {
		st, _ := newRedisStore(t, time.Hour)
		fn(t, st)
	})
}

func TestStore_Snapshot(t *testing.T) {
	backends(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		_, err := st.LoadSnapshot(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		snap := testSnapshot("job-1")
		require.NoError(t, st.SaveSnapshot(ctx, snap))

		got, err := st.LoadSnapshot(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, "job-1", got.ID)
		assert.Equal(t, job.StatusRunning, got.Status)
		assert.Len(t, got.Frames, 3)
		assert.Equal(t, options.SceneBeach, got.Options.Scene)
		assert.Equal(t, 3, got.Counts.Pending)
	})
}

func TestStore_Output(t *testing.T) {
	backends(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		_, err := st.LoadOutput(ctx, "job-1", 0)
		assert.ErrorIs(t, err, ErrNotFound)

		img := media.Image{Data: testutil.PNG("frame"), MediaType: "image/png"}
		require.NoError(t, st.SaveOutput(ctx, "job-1", 2, img))

		got, err := st.LoadOutput(ctx, "job-1", 2)
		require.NoError(t, err)
		assert.Equal(t, img.Data, got.Data)
		assert.Equal(t, "image/png", got.MediaType)

		_, err = st.LoadOutput(ctx, "job-1", 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_Favorites(t *testing.T) {
	backends(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		got, err := st.ListFavorites(ctx, "job-1")
		require.NoError(t, err)
		assert.Empty(t, got)

		require.NoError(t, st.AddFavorite(ctx, "job-1", 3))
		require.NoError(t, st.AddFavorite(ctx, "job-1", 0))
		require.NoError(t, st.AddFavorite(ctx, "job-1", 3))
		require.NoError(t, st.AddFavorite(ctx, "job-2", 1))

		got, err = st.ListFavorites(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, []int{0, 3}, got)

		require.NoError(t, st.RemoveFavorite(ctx, "job-1", 0))
		got, _ = st.ListFavorites(ctx, "job-1")
		assert.Equal(t, []int{3}, got)
	})
}

func TestStore_Delete(t *testing.T) {
	backends(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		require.NoError(t, st.SaveSnapshot(ctx, testSnapshot("job-1")))
		require.NoError(t, st.SaveOutput(ctx, "job-1", 0, media.Image{Data: testutil.PNG("x"), MediaType: "image/png"}))
		require.NoError(t, st.AddFavorite(ctx, "job-1", 0))
		require.NoError(t, st.SaveSnapshot(ctx, testSnapshot("job-2")))

		require.NoError(t, st.Delete(ctx, "job-1"))

		_, err := st.LoadSnapshot(ctx, "job-1")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = st.LoadOutput(ctx, "job-1", 0)
		assert.ErrorIs(t, err, ErrNotFound)
		favs, _ := st.ListFavorites(ctx, "job-1")
		assert.Empty(t, favs)

		_, err = st.LoadSnapshot(ctx, "job-2")
		assert.NoError(t, err)
	})
}

func TestRedis_KeysAndTTL(t *testing.T) {
	st, mr := newRedisStore(t, 2*time.Hour)
	ctx := context.Background()

	require.NoError(t, st.SaveSnapshot(ctx, testSnapshot("abc")))
	require.NoError(t, st.SaveOutput(ctx, "abc", 0, media.Image{Data: testutil.PNG("x"), MediaType: "image/png"}))
	require.NoError(t, st.AddFavorite(ctx, "abc", 0))

	for _, key := range []string{"test:job:abc", "test:job:abc:outputs", "test:job:abc:favorites"} {
		assert.True(t, mr.Exists(key), "key %s missing", key)
		assert.Equal(t, 2*time.Hour, mr.TTL(key), "ttl of %s", key)
	}

	mr.FastForward(3 * time.Hour)
	_, err := st.LoadSnapshot(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedis_NoTTL(t *testing.T) {
	st, mr := newRedisStore(t, 0)
	require.NoError(t, st.SaveSnapshot(context.Background(), testSnapshot("abc")))
	assert.Equal(t, time.Duration(0), mr.TTL("test:job:abc"))
}

func TestRedis_ConnectionError(t *testing.T) {
	st, mr := newRedisStore(t, time.Hour)
	mr.Close()

	err := st.SaveSnapshot(context.Background(), testSnapshot("abc"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, config.StoreConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, st)

	mr := miniredis.RunT(t)
	st, err = Open(ctx, config.StoreConfig{Backend: "redis", RedisAddr: mr.Addr(), KeyPrefix: "p", TTLHours: 1})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, st)
	require.NoError(t, st.Close())

	_, err = Open(ctx, config.StoreConfig{Backend: "etcd"})
	assert.Error(t, err)
}
