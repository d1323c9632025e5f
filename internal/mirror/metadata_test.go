package mirror

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_SetGetDelete(t *testing.T) {
	s := openStore(t)
	r := s.Metadata
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, KeyOwnerID, []byte("u1")))
	require.NoError(t, r.Set(ctx, KeyOwnerID, []byte("u2")))

	v, err := r.Get(ctx, KeyOwnerID)
	require.NoError(t, err)
	assert.Equal(t, []byte("u2"), v)

	require.NoError(t, r.Delete(ctx, KeyOwnerID))
	v, err = r.Get(ctx, KeyOwnerID)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestMetadata_ListAndClear(t *testing.T) {
	s := openStore(t)
	r := s.Metadata
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "a", []byte{0xAA}))
	require.NoError(t, r.Set(ctx, "b", []byte{0xBB}))

	m, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, m, 2)

	require.NoError(t, r.Clear(ctx))
	m, err = r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestMetadata_ClosedDBErrors(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.DB().Close())

	_, err := s.Metadata.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get metadata[k]")
}

func TestMetadata_Time(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	zero, err := s.Metadata.Time(ctx, KeyLastBackupAt)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	at := time.Date(2025, 7, 1, 8, 0, 0, 500, time.FixedZone("x", 3600))
	require.NoError(t, s.Metadata.SetTime(ctx, KeyLastBackupAt, at))
	got, err := s.Metadata.Time(ctx, KeyLastBackupAt)
	require.NoError(t, err)
	assert.True(t, got.Equal(at))

	require.NoError(t, s.Metadata.Set(ctx, KeyLastRestoreAt, []byte("yesterday")))
	_, err = s.Metadata.Time(ctx, KeyLastRestoreAt)
	assert.Error(t, err)
}

func TestBindOwner_WipesAnotherOwnersCache(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	wiped, err := s.BindOwner(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, wiped)
	require.NoError(t, s.Vault.Put(ctx, vaultItem("v1", "u1", "secret", now)))
	require.NoError(t, s.Metadata.SetTime(ctx, KeyLastBackupAt, now))

	wiped, err = s.BindOwner(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, wiped)
	_, err = s.Vault.Get(ctx, "v1")
	require.NoError(t, err)

	wiped, err = s.BindOwner(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, wiped)

	items, err := s.Vault.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)
	last, err := s.Metadata.Time(ctx, KeyLastBackupAt)
	require.NoError(t, err)
	assert.True(t, last.IsZero())
	owner, err := s.Metadata.Get(ctx, KeyOwnerID)
	require.NoError(t, err)
	assert.Equal(t, "u2", string(owner))
}
