package store

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexmail/dexmail-go/core"
)

// redisClient connects to the Redis named by REDIS_URL, skipping the
// test when none is configured, and starts from empty slots.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	require.NoError(t, client.Del(context.Background(), tokenSlot, profileSlot).Err())
	t.Cleanup(func() {
		client.Del(context.Background(), tokenSlot, profileSlot)
		client.Close()
	})
	return client
}

func testSession() core.Session {
	return core.Session{
		Identity: core.Identity{
			Email:         "alice@dexmail.app",
			WalletAddress: "0x1111111111111111111111111111111111111111",
			Basename:      "alice.base.eth",
		},
		AuthType: core.AuthTypeWallet,
		Token:    "tok-1",
	}
}

func TestRedisStoreRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := NewRedisStore(redisClient(t))

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, core.ErrNoSession)

	sess := testSession()
	require.NoError(t, s.Save(ctx, sess))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess.Token, got.Token)
	assert.Equal(t, sess.Identity, got.Identity)
	assert.Equal(t, sess.AuthType, got.AuthType)

	// Save replaces both slots.
	sess.Token = "tok-2"
	sess.AuthType = core.AuthTypeEmbedded
	require.NoError(t, s.Save(ctx, sess))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got.Token)
	assert.Equal(t, core.AuthTypeEmbedded, got.AuthType)

	require.NoError(t, s.Clear(ctx))
	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, core.ErrNoSession)
	assert.NoError(t, s.Clear(ctx))
}

func TestRedisStorePartialStateClearsBothSlots(t *testing.T) {
	ctx := context.Background()
	client := redisClient(t)
	s := NewRedisStore(client)

	// Profile slot lost: load reports no session and drops the token.
	require.NoError(t, s.Save(ctx, testSession()))
	require.NoError(t, client.Del(ctx, profileSlot).Err())
	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, core.ErrNoSession)
	exists, err := client.Exists(ctx, tokenSlot).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	// Token slot lost: the stale profile goes too.
	require.NoError(t, s.Save(ctx, testSession()))
	require.NoError(t, client.Del(ctx, tokenSlot).Err())
	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, core.ErrNoSession)
	exists, err = client.Exists(ctx, profileSlot).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestRedisStoreCorruptProfileClears(t *testing.T) {
	ctx := context.Background()
	client := redisClient(t)
	s := NewRedisStore(client)

	require.NoError(t, s.Save(ctx, testSession()))
	require.NoError(t, client.Set(ctx, profileSlot, "not json", 0).Err())

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, core.ErrNoSession)
	exists, err := client.Exists(ctx, tokenSlot, profileSlot).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}
