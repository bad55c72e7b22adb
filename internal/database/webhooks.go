package database

import (
	"context"
	"fmt"
	"time"

	"atrocitee/internal/models"
)

func (db *DB) InsertWebhookLog(ctx context.Context, l *models.WebhookLog) error {
	if l.ReceivedAt.IsZero() {
		l.ReceivedAt = time.Now()
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO webhook_logs (event_type, payload, signature_valid, processed, error, received_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		l.EventType, l.Payload, l.SignatureValid, l.Processed, l.Error, l.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert webhook log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	l.ID = id
	return nil
}

func (db *DB) MarkWebhookProcessed(ctx context.Context, id int64, processErr string) error {
	return db.execOne(ctx, "webhook log",
		`UPDATE webhook_logs SET processed = ?, error = ? WHERE id = ?`,
		processErr == "", processErr, id,
	)
}

func (db *DB) CountWebhookLogs(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhook_logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count webhook logs: %w", err)
	}
	return n, nil
}

func (db *DB) ListWebhookLogs(ctx context.Context, limit int) ([]*models.WebhookLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, event_type, payload, signature_valid, processed, error, received_at
		 FROM webhook_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook logs: %w", err)
	}
	defer rows.Close()

	var out []*models.WebhookLog
	for rows.Next() {
		var l models.WebhookLog
		if err := rows.Scan(&l.ID, &l.EventType, &l.Payload, &l.SignatureValid, &l.Processed, &l.Error, &l.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook log: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}
