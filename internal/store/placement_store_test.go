package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelpest/fieldsync/internal/db"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestPlacementStoreCreate(t *testing.T) {
	d := openTestDB(t)
	store := NewPlacementStore(d)
	ctx := context.Background()

	p, err := store.Create(ctx, "BOX-0001", 7, 2, "loading dock, north wall")
	require.NoError(t, err)
	assert.NotZero(t, p.LocalID)
	assert.NotEmpty(t, p.ClientRef)
	assert.Equal(t, "BOX-0001", p.NaturalKey)
	assert.Equal(t, int64(7), p.SiteID)
	assert.Equal(t, int64(2), p.TypeID)
	assert.False(t, p.Synced)
	assert.Nil(t, p.ServerID)
	assert.False(t, p.Dead)
}

func TestPlacementStoreLocalIDsAreMonotonic(t *testing.T) {
	d := openTestDB(t)
	store := NewPlacementStore(d)
	ctx := context.Background()

	first, err := store.Create(ctx, "BOX-0001", 1, 1, "")
	require.NoError(t, err)
	second, err := store.Create(ctx, "BOX-0002", 1, 1, "")
	require.NoError(t, err)
	assert.Greater(t, second.LocalID, first.LocalID)

	// AUTOINCREMENT never reuses an id, even after a delete.
	require.NoError(t, store.Delete(ctx, second.LocalID))
	third, err := store.Create(ctx, "BOX-0003", 1, 1, "")
	require.NoError(t, err)
	assert.Greater(t, third.LocalID, second.LocalID)
}

func TestPlacementStoreDuplicateNaturalKey(t *testing.T) {
	d := openTestDB(t)
	store := NewPlacementStore(d)
	ctx := context.Background()

	_, err := store.Create(ctx, "BOX-0001", 1, 1, "")
	require.NoError(t, err)

	_, err = store.Create(ctx, "BOX-0001", 1, 1, "")
	assert.Error(t, err)
}

func TestPlacementStoreGetByNaturalKey(t *testing.T) {
	d := openTestDB(t)
	store := NewPlacementStore(d)
	ctx := context.Background()

	created, err := store.Create(ctx, "BOX-0042", 3, 1, "")
	require.NoError(t, err)

	found, err := store.GetByNaturalKey(ctx, "BOX-0042")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.LocalID, found.LocalID)

	missing, err := store.GetByNaturalKey(ctx, "BOX-9999")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPlacementStoreListUnsyncedOrder(t *testing.T) {
	d := openTestDB(t)
	store := NewPlacementStore(d)
	ctx := context.Background()

	a, err := store.Create(ctx, "BOX-0001", 1, 1, "")
	require.NoError(t, err)
	b, err := store.Create(ctx, "BOX-0002", 1, 1, "")
	require.NoError(t, err)

	unsynced, err := store.ListUnsynced(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, unsynced, 2)
	assert.Equal(t, a.LocalID, unsynced[0].LocalID)
	assert.Equal(t, b.LocalID, unsynced[1].LocalID)
}

func TestPlacementStoreListUnsyncedExcludes(t *testing.T) {
	d := openTestDB(t)
	store := NewPlacementStore(d)
	ctx := context.Background()
	now := time.Now()

	synced, err := store.Create(ctx, "BOX-0001", 1, 1, "")
	require.NoError(t, err)
	require.NoError(t, store.MarkSynced(ctx, synced.LocalID, 501))

	backingOff, err := store.Create(ctx, "BOX-0002", 1, 1, "")
	require.NoError(t, err)
	require.NoError(t, store.RecordFailure(ctx, backingOff.LocalID, 1, now.Add(time.Hour), false, "network"))

	dead, err := store.Create(ctx, "BOX-0003", 1, 1, "")
	require.NoError(t, err)
	require.NoError(t, store.RecordFailure(ctx, dead.LocalID, 25, now, true, "conflict"))

	eligible, err := store.Create(ctx, "BOX-0004", 1, 1, "")
	require.NoError(t, err)

	unsynced, err := store.ListUnsynced(ctx, now)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, eligible.LocalID, unsynced[0].LocalID)

	// The backoff item becomes eligible once its next-attempt time passes.
	unsynced, err = store.ListUnsynced(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, unsynced, 2)
}

func TestPlacementStoreMarkSynced(t *testing.T) {
	d := openTestDB(t)
	store := NewPlacementStore(d)
	ctx := context.Background()

	p, err := store.Create(ctx, "BOX-0001", 1, 1, "")
	require.NoError(t, err)
	require.NoError(t, store.RecordFailure(ctx, p.LocalID, 2, time.Now(), false, "server 503"))

	require.NoError(t, store.MarkSynced(ctx, p.LocalID, 501))

	got, err := store.GetByID(ctx, p.LocalID)
	require.NoError(t, err)
	assert.True(t, got.Synced)
	require.NotNil(t, got.ServerID)
	assert.Equal(t, int64(501), *got.ServerID)
	assert.Empty(t, got.LastError)

	// Marking again with the same server id is a no-op.
	require.NoError(t, store.MarkSynced(ctx, p.LocalID, 501))
	again, err := store.GetByID(ctx, p.LocalID)
	require.NoError(t, err)
	assert.Equal(t, got.ServerID, again.ServerID)
}

func TestPlacementStoreCountPending(t *testing.T) {
	d := openTestDB(t)
	store := NewPlacementStore(d)
	ctx := context.Background()

	p1, err := store.Create(ctx, "BOX-0001", 1, 1, "")
	require.NoError(t, err)
	_, err = store.Create(ctx, "BOX-0002", 1, 1, "")
	require.NoError(t, err)
	deadItem, err := store.Create(ctx, "BOX-0003", 1, 1, "")
	require.NoError(t, err)

	require.NoError(t, store.MarkSynced(ctx, p1.LocalID, 501))
	require.NoError(t, store.RecordFailure(ctx, deadItem.LocalID, 25, time.Now(), true, "conflict"))

	pending, dead, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
	assert.Equal(t, 1, dead)

	deadList, err := store.ListDead(ctx)
	require.NoError(t, err)
	require.Len(t, deadList, 1)
	assert.Equal(t, deadItem.LocalID, deadList[0].LocalID)
	assert.Equal(t, "conflict", deadList[0].LastError)
}
