package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"atrocitee/internal/models"

	"github.com/shopspring/decimal"
)

const productColumns = `id, provider_product_id, name, slug, description, thumbnail_url, base_price,
	currency, published, synced, last_synced_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	var lastSynced sql.NullTime
	if err := row.Scan(
		&p.ID, &p.ProviderProductID, &p.Name, &p.Slug, &p.Description, &p.ThumbnailURL, &p.BasePrice,
		&p.Currency, &p.Published, &p.Synced, &lastSynced, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastSynced.Valid {
		t := lastSynced.Time
		p.LastSyncedAt = &t
	}
	return &p, nil
}

func (db *DB) FindProductByRemoteID(ctx context.Context, providerProductID int64) (*models.Product, error) {
	row := db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE provider_product_id = ?`, providerProductID)
	p, err := scanProduct(row)
	if err != nil {
		return nil, notFound(err, "product")
	}
	return p, nil
}

func (db *DB) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	row := db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err != nil {
		return nil, notFound(err, "product")
	}
	return p, nil
}

func (db *DB) ListProducts(ctx context.Context) ([]*models.Product, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// UpsertProduct inserts by provider id or updates the synced metadata of an
// existing row. Price and publish state are only written on insert; later
// price moves go through staged changes.
func (db *DB) UpsertProduct(ctx context.Context, p *models.Product) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	query := `INSERT INTO products (
			provider_product_id, name, slug, description, thumbnail_url, base_price,
			currency, published, synced, last_synced_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider_product_id) DO UPDATE SET
			name = excluded.name,
			thumbnail_url = excluded.thumbnail_url,
			synced = excluded.synced,
			last_synced_at = excluded.last_synced_at,
			updated_at = excluded.updated_at
		RETURNING id`

	err := db.QueryRowContext(ctx, query,
		p.ProviderProductID, p.Name, p.Slug, p.Description, p.ThumbnailURL, p.BasePrice,
		p.Currency, p.Published, p.Synced, p.LastSyncedAt, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert product %d: %w", p.ProviderProductID, err)
	}
	return nil
}

func (db *DB) UpdateProductBasePrice(ctx context.Context, productID int64, price decimal.Decimal) error {
	return db.execOne(ctx, "product", `UPDATE products SET base_price = ?, updated_at = ? WHERE id = ?`, price, time.Now(), productID)
}

const variantColumns = `id, product_id, provider_variant_id, provider_external_id, catalog_variant_id, name, sku,
	color, size, retail_price, currency, available, updated_at`

func scanVariant(row rowScanner) (*models.Variant, error) {
	var v models.Variant
	if err := row.Scan(
		&v.ID, &v.ProductID, &v.ProviderVariantID, &v.ProviderExternalID, &v.CatalogVariantID, &v.Name, &v.SKU,
		&v.Color, &v.Size, &v.RetailPrice, &v.Currency, &v.Available, &v.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &v, nil
}

func (db *DB) FindVariantByRemoteID(ctx context.Context, providerVariantID int64) (*models.Variant, error) {
	row := db.QueryRowContext(ctx, `SELECT `+variantColumns+` FROM variants WHERE provider_variant_id = ?`, providerVariantID)
	v, err := scanVariant(row)
	if err != nil {
		return nil, notFound(err, "variant")
	}
	return v, nil
}

func (db *DB) GetVariant(ctx context.Context, id int64) (*models.Variant, error) {
	row := db.QueryRowContext(ctx, `SELECT `+variantColumns+` FROM variants WHERE id = ?`, id)
	v, err := scanVariant(row)
	if err != nil {
		return nil, notFound(err, "variant")
	}
	return v, nil
}

func (db *DB) ListVariants(ctx context.Context, productID int64) ([]*models.Variant, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+variantColumns+` FROM variants WHERE product_id = ? ORDER BY id`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list variants: %w", err)
	}
	defer rows.Close()

	var variants []*models.Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// UpsertVariant keys on the provider variant id. Retail price and
// availability are only written on insert.
func (db *DB) UpsertVariant(ctx context.Context, v *models.Variant) error {
	v.UpdatedAt = time.Now()

	query := `INSERT INTO variants (
			product_id, provider_variant_id, provider_external_id, catalog_variant_id, name, sku,
			color, size, retail_price, currency, available, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider_variant_id) DO UPDATE SET
			product_id = excluded.product_id,
			provider_external_id = excluded.provider_external_id,
			catalog_variant_id = excluded.catalog_variant_id,
			name = excluded.name,
			sku = excluded.sku,
			color = excluded.color,
			size = excluded.size,
			updated_at = excluded.updated_at
		RETURNING id`

	err := db.QueryRowContext(ctx, query,
		v.ProductID, v.ProviderVariantID, v.ProviderExternalID, v.CatalogVariantID, v.Name, v.SKU,
		v.Color, v.Size, v.RetailPrice, v.Currency, v.Available, v.UpdatedAt,
	).Scan(&v.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert variant %d: %w", v.ProviderVariantID, err)
	}
	return nil
}

func (db *DB) UpdateVariantPrice(ctx context.Context, variantID int64, price decimal.Decimal) error {
	return db.execOne(ctx, "variant", `UPDATE variants SET retail_price = ?, updated_at = ? WHERE id = ?`, price, time.Now(), variantID)
}

func (db *DB) UpdateVariantAvailability(ctx context.Context, variantID int64, available bool) error {
	return db.execOne(ctx, "variant", `UPDATE variants SET available = ?, updated_at = ? WHERE id = ?`, available, time.Now(), variantID)
}

func (db *DB) FindCategoryByRemoteID(ctx context.Context, providerCategoryID int64) (*models.Category, error) {
	var c models.Category
	err := db.QueryRowContext(ctx,
		`SELECT id, provider_category_id, parent_id, title, slug, image_url FROM categories WHERE provider_category_id = ?`,
		providerCategoryID,
	).Scan(&c.ID, &c.ProviderCategoryID, &c.ParentID, &c.Title, &c.Slug, &c.ImageURL)
	if err != nil {
		return nil, notFound(err, "category")
	}
	return &c, nil
}

func (db *DB) UpsertCategory(ctx context.Context, c *models.Category) error {
	query := `INSERT INTO categories (provider_category_id, parent_id, title, slug, image_url)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(provider_category_id) DO UPDATE SET
			parent_id = excluded.parent_id,
			title = excluded.title,
			slug = excluded.slug,
			image_url = excluded.image_url
		RETURNING id`
	if err := db.QueryRowContext(ctx, query, c.ProviderCategoryID, c.ParentID, c.Title, c.Slug, c.ImageURL).Scan(&c.ID); err != nil {
		return fmt.Errorf("failed to upsert category %d: %w", c.ProviderCategoryID, err)
	}
	return nil
}

// execOne runs a single-row update and reports ErrNotFound when nothing matched.
func (db *DB) execOne(ctx context.Context, what, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}
	if n == 0 {
		return notFound(sql.ErrNoRows, what)
	}
	return nil
}
