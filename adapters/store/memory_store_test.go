package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexmail/dexmail-go/core"
)

func TestMemoryStoreRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, core.ErrNoSession)

	sess := core.Session{
		Identity: core.Identity{Email: "alice@dexmail.app", WalletAddress: "0x1111111111111111111111111111111111111111"},
		AuthType: core.AuthTypeWallet,
		Token:    "tok-1",
	}
	require.NoError(t, s.Save(ctx, sess))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	// Save replaces.
	sess.Token = "tok-2"
	require.NoError(t, s.Save(ctx, sess))
	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got.Token)

	require.NoError(t, s.Clear(ctx))
	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, core.ErrNoSession)

	// Clearing an empty store is fine.
	assert.NoError(t, s.Clear(ctx))
}
