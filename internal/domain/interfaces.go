package domain

import (
	"context"
	"errors"
	"time"

	"atrocitee/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// CatalogRepository persists products, variants and categories mirrored from the provider.
type CatalogRepository interface {
	FindProductByRemoteID(ctx context.Context, providerProductID int64) (*models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context) ([]*models.Product, error)
	UpsertProduct(ctx context.Context, product *models.Product) error
	FindVariantByRemoteID(ctx context.Context, providerVariantID int64) (*models.Variant, error)
	GetVariant(ctx context.Context, id int64) (*models.Variant, error)
	ListVariants(ctx context.Context, productID int64) ([]*models.Variant, error)
	UpsertVariant(ctx context.Context, variant *models.Variant) error
	UpdateProductBasePrice(ctx context.Context, productID int64, price decimal.Decimal) error
	UpdateVariantPrice(ctx context.Context, variantID int64, price decimal.Decimal) error
	UpdateVariantAvailability(ctx context.Context, variantID int64, available bool) error
	FindCategoryByRemoteID(ctx context.Context, providerCategoryID int64) (*models.Category, error)
	UpsertCategory(ctx context.Context, category *models.Category) error
}

// SyncRepository holds synchronization audit rows and staged changes.
type SyncRepository interface {
	InsertSyncHistory(ctx context.Context, h *models.SyncHistory) error
	FinishSyncHistory(ctx context.Context, h *models.SyncHistory) error
	LastSuccessfulSync(ctx context.Context, scope models.SyncScope) (*models.SyncHistory, error)
	InsertProductChange(ctx context.Context, change *models.ProductChange) error
	GetProductChange(ctx context.Context, id int64) (*models.ProductChange, error)
	FindPendingChange(ctx context.Context, productID int64, variantID *int64, field string) (*models.ProductChange, error)
	FindLatestChange(ctx context.Context, productID int64, variantID *int64, field string) (*models.ProductChange, error)
	ListProductChanges(ctx context.Context, status models.ChangeStatus, limit int) ([]*models.ProductChange, error)
	UpdateChangeStatus(ctx context.Context, id int64, status models.ChangeStatus, reviewer string, at time.Time) error
}

type OrderRepository interface {
	FindOrderByLocalID(ctx context.Context, id string) (*models.Order, error)
	FindOrderByExternalID(ctx context.Context, externalID string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, update models.OrderStatusUpdate) error
	UpdateOrderSubmission(ctx context.Context, order *models.Order) error
}

type WebhookLogRepository interface {
	InsertWebhookLog(ctx context.Context, log *models.WebhookLog) error
	MarkWebhookProcessed(ctx context.Context, id int64, processErr string) error
}

// TaskStore is the best-effort mirror of the in-memory mockup queue.
type TaskStore interface {
	SaveMockupTask(ctx context.Context, task *models.MockupTask) error
	GetMockupTask(ctx context.Context, id uuid.UUID) (*models.MockupTask, error)
	ListActiveMockupTasks(ctx context.Context) ([]*models.MockupTask, error)
	DeleteMockupTask(ctx context.Context, id uuid.UUID) error
	PurgeFinishedMockupTasks(ctx context.Context, olderThan time.Time) (int64, error)
}

// IdempotencyStore remembers keys for a bounded time.
type IdempotencyStore interface {
	SeenBefore(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Forget releases a key so the next SeenBefore for it reports false.
	Forget(ctx context.Context, key string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
