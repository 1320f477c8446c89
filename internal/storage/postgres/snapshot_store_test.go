package postgres

import (
	"context"
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/storage"
	"lockup-ledger/internal/storage/storagetest"
)

func TestSnapshotStore_SaveAndLoad(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotStore(pool)

	_, err := store.Latest(ctx)
	require.ErrorIs(t, err, storage.ErrNotFound)

	first := storagetest.SampleSnapshot(5)
	id1, err := store.Save(ctx, first)
	require.NoError(t, err)

	second := storagetest.SampleSnapshot(9)
	second.Rewards = nil
	second.Tokens = nil
	id2, err := store.Save(ctx, second)
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	got, err := store.GetByID(ctx, id1)
	require.NoError(t, err)
	assert.Empty(t, storagetest.DescribeDiff(first, got))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), latest.LastEventSeq)
	assert.Nil(t, latest.Rewards)
	assert.Nil(t, latest.Tokens)
	assert.Empty(t, storagetest.DescribeDiff(second, latest))
}

func TestSnapshotStore_PreservesWideAmounts(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotStore(pool)

	snap := storagetest.SampleSnapshot(1)
	wide := sdkmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), 255))
	snap.Pools[0].MaxLockUpLimit = wide

	id, err := store.Save(ctx, snap)
	require.NoError(t, err)

	got, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, wide.Equal(got.Pools[0].MaxLockUpLimit), "got %s", got.Pools[0].MaxLockUpLimit)
}

func TestSnapshotStore_List(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotStore(pool)

	for seq := uint64(1); seq <= 3; seq++ {
		_, err := store.Save(ctx, storagetest.SampleSnapshot(seq))
		require.NoError(t, err)
	}

	infos, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, uint64(3), infos[0].LastEventSeq)
	assert.Equal(t, uint64(2), infos[1].LastEventSeq)
	assert.Equal(t, 1, infos[0].Pools)
	assert.Equal(t, 2, infos[0].Accounts)

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSnapshotStore_RejectsInvalid(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotStore(pool)

	_, err := store.Save(ctx, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	future := storagetest.SampleSnapshot(1)
	future.SchemaVersion = domain.SnapshotSchemaVersion + 1
	_, err = store.Save(ctx, future)
	assert.ErrorIs(t, err, storage.ErrUnsupportedSchema)

	_, err = store.GetByID(ctx, 12345)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
