package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"atrocitee/internal/models"

	"github.com/google/uuid"
)

const mockupTaskColumns = `id, variant_id, provider_product_id, provider_variant_id, provider_external_id, view,
	artifact_url, status, retry_after, attempts, result, error, created_at, updated_at`

// SaveMockupTask mirrors the in-memory task row. The queue treats failures
// here as non-fatal.
func (db *DB) SaveMockupTask(ctx context.Context, t *models.MockupTask) error {
	var result sql.NullString
	if len(t.Result) > 0 {
		result = sql.NullString{String: string(t.Result), Valid: true}
	}

	query := `INSERT INTO mockup_tasks (` + mockupTaskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			retry_after = excluded.retry_after,
			attempts = excluded.attempts,
			result = excluded.result,
			error = excluded.error,
			updated_at = excluded.updated_at`
	_, err := db.ExecContext(ctx, query,
		t.ID.String(), t.VariantID, t.ProviderProductID, t.ProviderVariantID, t.ProviderExternalID, t.View,
		t.ArtifactURL, t.Status, t.RetryAfter, t.Attempts, result, t.Error, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save mockup task: %w", err)
	}
	return nil
}

func scanMockupTask(row rowScanner) (*models.MockupTask, error) {
	var t models.MockupTask
	var id string
	var retryAfter sql.NullTime
	var result sql.NullString
	if err := row.Scan(
		&id, &t.VariantID, &t.ProviderProductID, &t.ProviderVariantID, &t.ProviderExternalID, &t.View,
		&t.ArtifactURL, &t.Status, &retryAfter, &t.Attempts, &result, &t.Error, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid task id %q: %w", id, err)
	}
	t.ID = parsed
	if retryAfter.Valid {
		ts := retryAfter.Time
		t.RetryAfter = &ts
	}
	if result.Valid {
		t.Result = []byte(result.String)
	}
	return &t, nil
}

func (db *DB) GetMockupTask(ctx context.Context, id uuid.UUID) (*models.MockupTask, error) {
	t, err := scanMockupTask(db.QueryRowContext(ctx, `SELECT `+mockupTaskColumns+` FROM mockup_tasks WHERE id = ?`, id.String()))
	if err != nil {
		return nil, notFound(err, "mockup task")
	}
	return t, nil
}

// ListActiveMockupTasks returns non-terminal tasks oldest first. A task that
// was processing when the process stopped comes back as pending.
func (db *DB) ListActiveMockupTasks(ctx context.Context) ([]*models.MockupTask, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+mockupTaskColumns+` FROM mockup_tasks WHERE status IN (?, ?, ?) ORDER BY created_at ASC`,
		models.TaskPending, models.TaskProcessing, models.TaskRateLimited,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list mockup tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.MockupTask
	for rows.Next() {
		t, err := scanMockupTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mockup task: %w", err)
		}
		if t.Status == models.TaskProcessing {
			t.Status = models.TaskPending
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (db *DB) DeleteMockupTask(ctx context.Context, id uuid.UUID) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM mockup_tasks WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete mockup task: %w", err)
	}
	return nil
}

// PurgeFinishedMockupTasks removes terminal rows older than the cutoff.
func (db *DB) PurgeFinishedMockupTasks(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM mockup_tasks WHERE status IN (?, ?) AND updated_at < ?`,
		models.TaskCompleted, models.TaskError, olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge mockup tasks: %w", err)
	}
	return res.RowsAffected()
}
