package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestUpsertShare_InsertThenUpdate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewShareStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.UpsertShare(ctx, "atlas", 4.0, 1.0))
	raw, normalised, err := storage.GetShares(ctx, "atlas")
	require.NoError(t, err)
	assert.Equal(t, 4.0, raw)
	assert.Equal(t, 1.0, normalised)

	require.NoError(t, storage.UpsertShare(ctx, "atlas", 6.0, 1.0))
	raw, _, err = storage.GetShares(ctx, "atlas")
	require.NoError(t, err)
	assert.Equal(t, 6.0, raw)
}

func TestGetShares_UnknownGroupReturnsZeros(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewShareStorage(db, arbor.NewLogger())
	raw, normalised, err := storage.GetShares(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, raw)
	assert.Zero(t, normalised)
}

func TestDeleteShare_RemovesGroupRow(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewShareStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.UpsertShare(ctx, "atlas", 4.0, 1.0))
	require.NoError(t, storage.DeleteShare(ctx, "atlas"))

	raw, _, err := storage.GetShares(ctx, "atlas")
	require.NoError(t, err)
	assert.Zero(t, raw)
}

func TestSetTaskQueueShare_VisibleThroughRetrieveTQs(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	tqStorage := NewTQStorage(db, logger)
	shareStorage := NewShareStorage(db, logger)
	ctx := context.Background()

	tqID, err := tqStorage.FindOrCreateTQ(ctx, testCanonical("atlas"), "fp-1", 1.0)
	require.NoError(t, err)
	require.NoError(t, shareStorage.SetTaskQueueShare(ctx, tqID, 0.25))

	tqs, err := tqStorage.RetrieveTQs(ctx)
	require.NoError(t, err)
	require.Len(t, tqs, 1)
	assert.InDelta(t, 0.25, tqs[0].Share, 1e-9)
}
