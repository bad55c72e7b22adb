package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"atrocitee/internal/domain"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB is the sqlite implementation of the repository interfaces in domain.
type DB struct {
	*sql.DB
	logger zerolog.Logger
}

var (
	_ domain.CatalogRepository    = (*DB)(nil)
	_ domain.SyncRepository       = (*DB)(nil)
	_ domain.OrderRepository      = (*DB)(nil)
	_ domain.WebhookLogRepository = (*DB)(nil)
	_ domain.TaskStore            = (*DB)(nil)
)

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "database").Logger()
	}

	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path+dsnParams(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases shared.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, logger: l}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	l.Info().Str("path", path).Msg("database initialized")
	return db, nil
}

func dsnParams(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return sep + "_foreign_keys=on&_busy_timeout=5000"
}

func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_product_id INTEGER UNIQUE NOT NULL,
			name TEXT NOT NULL,
			slug TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			thumbnail_url TEXT NOT NULL DEFAULT '',
			base_price TEXT NOT NULL DEFAULT '0',
			currency TEXT NOT NULL DEFAULT 'USD',
			published BOOLEAN NOT NULL DEFAULT 0,
			synced BOOLEAN NOT NULL DEFAULT 0,
			last_synced_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS variants (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			provider_variant_id INTEGER UNIQUE NOT NULL,
			provider_external_id TEXT NOT NULL DEFAULT '',
			catalog_variant_id INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL,
			sku TEXT NOT NULL DEFAULT '',
			color TEXT NOT NULL DEFAULT '',
			size TEXT NOT NULL DEFAULT '',
			retail_price TEXT NOT NULL DEFAULT '0',
			currency TEXT NOT NULL DEFAULT 'USD',
			available BOOLEAN NOT NULL DEFAULT 1,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_category_id INTEGER UNIQUE NOT NULL,
			parent_id INTEGER NOT NULL DEFAULT 0,
			title TEXT NOT NULL,
			slug TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS sync_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sync_type TEXT NOT NULL,
			scope TEXT NOT NULL DEFAULT 'products',
			status TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			products_synced INTEGER NOT NULL DEFAULT 0,
			products_failed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS product_changes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			product_id INTEGER NOT NULL,
			variant_id INTEGER,
			provider_product_id INTEGER NOT NULL,
			change_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			field_name TEXT NOT NULL,
			old_value TEXT NOT NULL DEFAULT '',
			new_value TEXT NOT NULL DEFAULT '',
			sync_history_id INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending_review',
			reviewed_by TEXT,
			reviewed_at DATETIME,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'pending',
			recipient TEXT NOT NULL DEFAULT '{}',
			subtotal TEXT NOT NULL DEFAULT '0',
			shipping TEXT NOT NULL DEFAULT '0',
			tax TEXT NOT NULL DEFAULT '0',
			discount TEXT NOT NULL DEFAULT '0',
			total TEXT NOT NULL DEFAULT '0',
			currency TEXT NOT NULL DEFAULT 'USD',
			external_id TEXT,
			provider_order_id INTEGER NOT NULL DEFAULT 0,
			provider_status TEXT NOT NULL DEFAULT '',
			submission_status TEXT NOT NULL DEFAULT 'not_submitted',
			submission_error TEXT NOT NULL DEFAULT '',
			tracking_number TEXT NOT NULL DEFAULT '',
			tracking_url TEXT NOT NULL DEFAULT '',
			shipped_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			variant_id INTEGER NOT NULL,
			provider_variant_id INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL DEFAULT '',
			quantity INTEGER NOT NULL,
			retail_price TEXT NOT NULL DEFAULT '0'
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			signature_valid BOOLEAN NOT NULL DEFAULT 0,
			processed BOOLEAN NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			received_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS mockup_tasks (
			id TEXT PRIMARY KEY,
			variant_id INTEGER NOT NULL,
			provider_product_id INTEGER NOT NULL,
			provider_variant_id INTEGER NOT NULL,
			provider_external_id TEXT NOT NULL DEFAULT '',
			view TEXT NOT NULL,
			artifact_url TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			retry_after DATETIME,
			attempts INTEGER NOT NULL DEFAULT 0,
			result TEXT,
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_variants_product_id ON variants(product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_history_scope_status ON sync_history(scope, status, completed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_product_changes_status ON product_changes(status)`,
		`CREATE INDEX IF NOT EXISTS idx_product_changes_target ON product_changes(product_id, variant_id, field_name, status)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_external_id ON orders(external_id)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_mockup_tasks_status ON mockup_tasks(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", firstLine(query), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// notFound maps sql.ErrNoRows onto the shared sentinel.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

// HealthCheck is used by the readiness probe.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.PingContext(ctx)
}
