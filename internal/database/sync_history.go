package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"atrocitee/internal/models"
)

// InsertSyncHistory opens the audit row for a run. Callers insert it as
// failed so a run that never finishes is still recorded as such.
func (db *DB) InsertSyncHistory(ctx context.Context, h *models.SyncHistory) error {
	if h.StartedAt.IsZero() {
		h.StartedAt = time.Now()
	}
	if h.Scope == "" {
		h.Scope = models.ScopeProducts
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO sync_history (sync_type, scope, status, message, started_at, completed_at, products_synced, products_failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.SyncType, h.Scope, h.Status, h.Message, h.StartedAt, h.CompletedAt, h.ProductsSynced, h.ProductsFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync history: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	h.ID = id
	return nil
}

// FinishSyncHistory sets the outcome once. A row that already has a
// completion time is left untouched.
func (db *DB) FinishSyncHistory(ctx context.Context, h *models.SyncHistory) error {
	if h.CompletedAt == nil {
		now := time.Now()
		h.CompletedAt = &now
	}
	return db.execOne(ctx, "sync history",
		`UPDATE sync_history SET status = ?, message = ?, completed_at = ?, products_synced = ?, products_failed = ?
		 WHERE id = ? AND completed_at IS NULL`,
		h.Status, h.Message, h.CompletedAt, h.ProductsSynced, h.ProductsFailed, h.ID,
	)
}

const syncHistoryColumns = `id, sync_type, scope, status, message, started_at, completed_at, products_synced, products_failed`

func scanSyncHistory(row rowScanner) (*models.SyncHistory, error) {
	var h models.SyncHistory
	var completed sql.NullTime
	if err := row.Scan(&h.ID, &h.SyncType, &h.Scope, &h.Status, &h.Message, &h.StartedAt, &completed, &h.ProductsSynced, &h.ProductsFailed); err != nil {
		return nil, err
	}
	if completed.Valid {
		t := completed.Time
		h.CompletedAt = &t
	}
	return &h, nil
}

func (db *DB) GetSyncHistory(ctx context.Context, id int64) (*models.SyncHistory, error) {
	h, err := scanSyncHistory(db.QueryRowContext(ctx, `SELECT `+syncHistoryColumns+` FROM sync_history WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "sync history")
	}
	return h, nil
}

// LastSuccessfulSync returns the newest completed run for scope whose status
// was success or partial.
func (db *DB) LastSuccessfulSync(ctx context.Context, scope models.SyncScope) (*models.SyncHistory, error) {
	h, err := scanSyncHistory(db.QueryRowContext(ctx,
		`SELECT `+syncHistoryColumns+` FROM sync_history
		 WHERE scope = ? AND status IN (?, ?) AND completed_at IS NOT NULL
		 ORDER BY completed_at DESC LIMIT 1`,
		scope, models.SyncSuccess, models.SyncPartial,
	))
	if err != nil {
		return nil, notFound(err, "sync history")
	}
	return h, nil
}

func (db *DB) ListSyncHistory(ctx context.Context, limit int) ([]*models.SyncHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `SELECT `+syncHistoryColumns+` FROM sync_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync history: %w", err)
	}
	defer rows.Close()

	var out []*models.SyncHistory
	for rows.Next() {
		h, err := scanSyncHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

const changeColumns = `id, product_id, variant_id, provider_product_id, change_type, severity, field_name,
	old_value, new_value, sync_history_id, status, reviewed_by, reviewed_at, created_at`

func scanChange(row rowScanner) (*models.ProductChange, error) {
	var c models.ProductChange
	var variantID sql.NullInt64
	var reviewedBy sql.NullString
	var reviewedAt sql.NullTime
	if err := row.Scan(
		&c.ID, &c.ProductID, &variantID, &c.ProviderProductID, &c.ChangeType, &c.Severity, &c.FieldName,
		&c.OldValue, &c.NewValue, &c.SyncHistoryID, &c.Status, &reviewedBy, &reviewedAt, &c.CreatedAt,
	); err != nil {
		return nil, err
	}
	if variantID.Valid {
		v := variantID.Int64
		c.VariantID = &v
	}
	if reviewedBy.Valid {
		s := reviewedBy.String
		c.ReviewedBy = &s
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		c.ReviewedAt = &t
	}
	return &c, nil
}

func (db *DB) InsertProductChange(ctx context.Context, c *models.ProductChange) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.Status == "" {
		c.Status = models.ChangePendingReview
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO product_changes (
			product_id, variant_id, provider_product_id, change_type, severity, field_name,
			old_value, new_value, sync_history_id, status, reviewed_by, reviewed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ProductID, c.VariantID, c.ProviderProductID, c.ChangeType, c.Severity, c.FieldName,
		c.OldValue, c.NewValue, c.SyncHistoryID, c.Status, c.ReviewedBy, c.ReviewedAt, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert product change: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	c.ID = id
	return nil
}

func (db *DB) GetProductChange(ctx context.Context, id int64) (*models.ProductChange, error) {
	c, err := scanChange(db.QueryRowContext(ctx, `SELECT `+changeColumns+` FROM product_changes WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "product change")
	}
	return c, nil
}

// FindPendingChange returns the open change for one product or variant field.
func (db *DB) FindPendingChange(ctx context.Context, productID int64, variantID *int64, field string) (*models.ProductChange, error) {
	return db.findChange(ctx, productID, variantID, field, models.ChangePendingReview)
}

// FindLatestChange returns the most recent change for a field in any status.
func (db *DB) FindLatestChange(ctx context.Context, productID int64, variantID *int64, field string) (*models.ProductChange, error) {
	return db.findChange(ctx, productID, variantID, field, "")
}

func (db *DB) findChange(ctx context.Context, productID int64, variantID *int64, field string, status models.ChangeStatus) (*models.ProductChange, error) {
	query := `SELECT ` + changeColumns + ` FROM product_changes
		WHERE product_id = ? AND field_name = ? AND `
	args := []any{productID, field}
	if status != "" {
		query += `status = ? AND `
		args = append(args, status)
	}
	if variantID == nil {
		query += `variant_id IS NULL`
	} else {
		query += `variant_id = ?`
		args = append(args, *variantID)
	}
	query += ` ORDER BY id DESC LIMIT 1`

	c, err := scanChange(db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFound(err, "product change")
	}
	return c, nil
}

// ListProductChanges filters by status when one is given.
func (db *DB) ListProductChanges(ctx context.Context, status models.ChangeStatus, limit int) ([]*models.ProductChange, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + changeColumns + ` FROM product_changes`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list product changes: %w", err)
	}
	defer rows.Close()

	var out []*models.ProductChange
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product change: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (db *DB) UpdateChangeStatus(ctx context.Context, id int64, status models.ChangeStatus, reviewer string, at time.Time) error {
	return db.execOne(ctx, "product change",
		`UPDATE product_changes SET status = ?, reviewed_by = ?, reviewed_at = ? WHERE id = ?`,
		status, reviewer, at, id,
	)
}
