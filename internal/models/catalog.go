package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID                int64           `json:"id"`
	ProviderProductID int64           `json:"provider_product_id"`
	Name              string          `json:"name"`
	Slug              string          `json:"slug"`
	Description       string          `json:"description"`
	ThumbnailURL      string          `json:"thumbnail_url"`
	BasePrice         decimal.Decimal `json:"base_price"`
	Currency          string          `json:"currency"`
	Published         bool            `json:"published"`
	Synced            bool            `json:"synced"`
	LastSyncedAt      *time.Time      `json:"last_synced_at"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type Variant struct {
	ID                 int64           `json:"id"`
	ProductID          int64           `json:"product_id"`
	ProviderVariantID  int64           `json:"provider_variant_id"`
	ProviderExternalID string          `json:"provider_external_id"`
	CatalogVariantID   int64           `json:"catalog_variant_id"`
	Name               string          `json:"name"`
	SKU                string          `json:"sku"`
	Color              string          `json:"color"`
	Size               string          `json:"size"`
	RetailPrice        decimal.Decimal `json:"retail_price"`
	Currency           string          `json:"currency"`
	Available          bool            `json:"available"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type Category struct {
	ID                 int64  `json:"id"`
	ProviderCategoryID int64  `json:"provider_category_id"`
	ParentID           int64  `json:"parent_id"`
	Title              string `json:"title"`
	Slug               string `json:"slug"`
	ImageURL           string `json:"image_url"`
}
