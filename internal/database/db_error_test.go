package database

import (
	"context"
	"io"
	"testing"

	"atrocitee/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	db.Close()

	ctx := context.Background()

	t.Run("UpsertProduct_Error", func(t *testing.T) {
		assert.Error(t, db.UpsertProduct(ctx, &models.Product{ProviderProductID: 1}))
	})

	t.Run("UpsertVariant_Error", func(t *testing.T) {
		assert.Error(t, db.UpsertVariant(ctx, &models.Variant{ProviderVariantID: 1}))
	})

	t.Run("UpdateVariantPrice_Error", func(t *testing.T) {
		assert.Error(t, db.UpdateVariantPrice(ctx, 1, decimal.NewFromInt(1)))
	})

	t.Run("InsertSyncHistory_Error", func(t *testing.T) {
		assert.Error(t, db.InsertSyncHistory(ctx, &models.SyncHistory{SyncType: models.SyncFull}))
	})

	t.Run("CreateOrder_Error", func(t *testing.T) {
		assert.Error(t, db.CreateOrder(ctx, &models.Order{ID: "x"}))
	})

	t.Run("SaveMockupTask_Error", func(t *testing.T) {
		assert.Error(t, db.SaveMockupTask(ctx, &models.MockupTask{ID: uuid.New()}))
	})

	t.Run("ListActiveMockupTasks_Error", func(t *testing.T) {
		_, err := db.ListActiveMockupTasks(ctx)
		assert.Error(t, err)
	})
}
