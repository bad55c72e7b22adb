package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"atrocitee/internal/models"
)

const orderColumns = `id, status, recipient, subtotal, shipping, tax, discount, total, currency,
	external_id, provider_order_id, provider_status, submission_status, submission_error,
	tracking_number, tracking_url, shipped_at, created_at, updated_at`

// CreateOrder stores an order and its items in one transaction.
func (db *DB) CreateOrder(ctx context.Context, o *models.Order) error {
	recipient, err := json.Marshal(o.Recipient)
	if err != nil {
		return fmt.Errorf("failed to encode recipient: %w", err)
	}
	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = now
	}
	if o.Status == "" {
		o.Status = models.OrderPending
	}
	if o.SubmissionStatus == "" {
		o.SubmissionStatus = models.SubmissionNone
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (
			id, status, recipient, subtotal, shipping, tax, discount, total, currency,
			external_id, provider_order_id, provider_status, submission_status, submission_error,
			tracking_number, tracking_url, shipped_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Status, string(recipient), o.Subtotal, o.Shipping, o.Tax, o.Discount, o.Total, o.Currency,
		nullString(o.ExternalID), o.ProviderOrderID, o.ProviderStatus, o.SubmissionStatus, o.SubmissionError,
		o.TrackingNumber, o.TrackingURL, o.ShippedAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		res, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, variant_id, provider_variant_id, name, quantity, retail_price)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			o.ID, item.VariantID, item.ProviderVariantID, item.Name, item.Quantity, item.RetailPrice,
		)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
		if item.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
	}

	return tx.Commit()
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var recipient string
	var externalID sql.NullString
	var shippedAt sql.NullTime
	if err := row.Scan(
		&o.ID, &o.Status, &recipient, &o.Subtotal, &o.Shipping, &o.Tax, &o.Discount, &o.Total, &o.Currency,
		&externalID, &o.ProviderOrderID, &o.ProviderStatus, &o.SubmissionStatus, &o.SubmissionError,
		&o.TrackingNumber, &o.TrackingURL, &shippedAt, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(recipient), &o.Recipient); err != nil {
		return nil, fmt.Errorf("decode recipient: %w", err)
	}
	o.ExternalID = externalID.String
	if shippedAt.Valid {
		t := shippedAt.Time
		o.ShippedAt = &t
	}
	return &o, nil
}

func (db *DB) FindOrderByLocalID(ctx context.Context, id string) (*models.Order, error) {
	return db.findOrder(ctx, `id = ?`, id)
}

func (db *DB) FindOrderByExternalID(ctx context.Context, externalID string) (*models.Order, error) {
	return db.findOrder(ctx, `external_id = ?`, externalID)
}

func (db *DB) findOrder(ctx context.Context, where string, arg any) (*models.Order, error) {
	o, err := scanOrder(db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg))
	if err != nil {
		return nil, notFound(err, "order")
	}
	items, err := db.listOrderItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (db *DB) listOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, variant_id, provider_variant_id, name, quantity, retail_price
		 FROM order_items WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.VariantID, &it.ProviderVariantID, &it.Name, &it.Quantity, &it.RetailPrice); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateOrderStatus writes the reconciled projection in one statement. Every
// value comes from the update itself, so repeating it is a no-op.
func (db *DB) UpdateOrderStatus(ctx context.Context, u models.OrderStatusUpdate) error {
	return db.execOne(ctx, "order",
		`UPDATE orders SET status = ?, provider_status = ?, tracking_number = ?, tracking_url = ?, shipped_at = ?, updated_at = ?
		 WHERE id = ?`,
		u.Status, u.ProviderStatus, u.TrackingNumber, u.TrackingURL, u.ShippedAt, u.UpdatedAt, u.OrderID,
	)
}

// UpdateOrderSubmission records the outcome of a submission attempt.
func (db *DB) UpdateOrderSubmission(ctx context.Context, o *models.Order) error {
	o.UpdatedAt = time.Now()
	return db.execOne(ctx, "order",
		`UPDATE orders SET external_id = ?, provider_order_id = ?, provider_status = ?, submission_status = ?,
			submission_error = ?, updated_at = ?
		 WHERE id = ?`,
		nullString(o.ExternalID), o.ProviderOrderID, o.ProviderStatus, o.SubmissionStatus,
		o.SubmissionError, o.UpdatedAt, o.ID,
	)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
