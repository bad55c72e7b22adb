package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"atrocitee/internal/domain"
	"atrocitee/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductUpsertKeepsPrice(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	p := &models.Product{
		ProviderProductID: 1001,
		Name:              "Classic Tee",
		Slug:              "classic-tee",
		BasePrice:         decimal.RequireFromString("25.00"),
		Currency:          "USD",
	}
	require.NoError(t, db.UpsertProduct(ctx, p))
	require.NotZero(t, p.ID)
	firstID := p.ID

	now := time.Now()
	again := &models.Product{
		ProviderProductID: 1001,
		Name:              "Classic Tee v2",
		Slug:              "ignored",
		BasePrice:         decimal.RequireFromString("99.00"),
		Synced:            true,
		LastSyncedAt:      &now,
	}
	require.NoError(t, db.UpsertProduct(ctx, again))
	assert.Equal(t, firstID, again.ID)

	got, err := db.FindProductByRemoteID(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, "Classic Tee v2", got.Name)
	assert.Equal(t, "classic-tee", got.Slug)
	assert.True(t, got.BasePrice.Equal(decimal.RequireFromString("25")))
	assert.True(t, got.Synced)
	require.NotNil(t, got.LastSyncedAt)

	require.NoError(t, db.UpdateProductBasePrice(ctx, got.ID, decimal.RequireFromString("27.50")))
	got, err = db.GetProduct(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, "27.5", got.BasePrice.String())
}

func TestVariantUpsertAndUpdates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	p := &models.Product{ProviderProductID: 5, Name: "Mug", Slug: "mug", Currency: "USD"}
	require.NoError(t, db.UpsertProduct(ctx, p))

	v := &models.Variant{
		ProductID:         p.ID,
		ProviderVariantID: 501,
		Name:              "Mug / White / 11oz",
		Color:             "White",
		Size:              "11oz",
		RetailPrice:       decimal.RequireFromString("15.00"),
		Currency:          "USD",
		Available:         true,
	}
	require.NoError(t, db.UpsertVariant(ctx, v))

	v2 := *v
	v2.ID = 0
	v2.RetailPrice = decimal.RequireFromString("99")
	v2.Available = false
	v2.SKU = "MUG-W-11"
	require.NoError(t, db.UpsertVariant(ctx, &v2))
	assert.Equal(t, v.ID, v2.ID)

	got, err := db.FindVariantByRemoteID(ctx, 501)
	require.NoError(t, err)
	assert.Equal(t, "MUG-W-11", got.SKU)
	assert.True(t, got.RetailPrice.Equal(decimal.RequireFromString("15")))
	assert.True(t, got.Available)

	require.NoError(t, db.UpdateVariantPrice(ctx, got.ID, decimal.RequireFromString("17")))
	require.NoError(t, db.UpdateVariantAvailability(ctx, got.ID, false))

	variants, err := db.ListVariants(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.Equal(t, "17", variants[0].RetailPrice.String())
	assert.False(t, variants[0].Available)
}

func TestCatalogNotFound(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.FindProductByRemoteID(ctx, 404)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = db.GetVariant(ctx, 404)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = db.UpdateVariantPrice(ctx, 404, decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCategoryUpsert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	c := &models.Category{ProviderCategoryID: 24, Title: "T-Shirts", Slug: "t-shirts"}
	require.NoError(t, db.UpsertCategory(ctx, c))
	c2 := &models.Category{ProviderCategoryID: 24, ParentID: 1, Title: "Tees", Slug: "tees"}
	require.NoError(t, db.UpsertCategory(ctx, c2))
	assert.Equal(t, c.ID, c2.ID)

	got, err := db.FindCategoryByRemoteID(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, "Tees", got.Title)
	assert.Equal(t, int64(1), got.ParentID)
}
