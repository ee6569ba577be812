package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vistahub/license-gate/internal/store"
	"github.com/vistahub/license-gate/internal/testutil"
)

func TestDatabaseNonceStoreClaimOnce(t *testing.T) {
	nonces := store.NewDatabaseNonceStore(testutil.NewDB(t))
	ctx := context.Background()

	ok, err := nonces.Claim(ctx, "abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = nonces.Claim(ctx, "abc", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claim of the same nonce must fail")

	ok, err = nonces.Claim(ctx, "def", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDatabaseNonceStoreRelease(t *testing.T) {
	nonces := store.NewDatabaseNonceStore(testutil.NewDB(t))
	ctx := context.Background()

	_, err := nonces.Claim(ctx, "abc", time.Minute)
	require.NoError(t, err)
	require.NoError(t, nonces.Release(ctx, "abc"))

	ok, err := nonces.Claim(ctx, "abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "released nonce can be claimed again")

	assert.NoError(t, nonces.Release(ctx, "never-claimed"))
}

func TestDatabaseNonceStorePrune(t *testing.T) {
	nonces := store.NewDatabaseNonceStore(testutil.NewDB(t))
	ctx := context.Background()

	_, err := nonces.Claim(ctx, "stale", -time.Second)
	require.NoError(t, err)
	_, err = nonces.Claim(ctx, "fresh", time.Minute)
	require.NoError(t, err)

	deleted, err := nonces.Prune(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	ok, err := nonces.Claim(ctx, "stale", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "pruned nonce can be claimed again")

	ok, err = nonces.Claim(ctx, "fresh", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDatabaseNonceStoreClaimAfterClose(t *testing.T) {
	db := testutil.NewDB(t)
	nonces := store.NewDatabaseNonceStore(db)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = nonces.Claim(context.Background(), "abc", time.Minute)
	assert.Error(t, err)
}
