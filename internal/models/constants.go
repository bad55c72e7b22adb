package models

// MockupView is a generic camera angle requested by callers.
type MockupView string

const (
	ViewFront     MockupView = "front"
	ViewBack      MockupView = "back"
	ViewLeft      MockupView = "left"
	ViewRight     MockupView = "right"
	ViewFlat      MockupView = "flat"
	ViewLifestyle MockupView = "lifestyle"
	ViewTop       MockupView = "top"
)

// TaskStatus is the lifecycle state of a mockup generation task.
type TaskStatus string

const (
	TaskPending     TaskStatus = "pending"
	TaskProcessing  TaskStatus = "processing"
	TaskCompleted   TaskStatus = "completed"
	TaskError       TaskStatus = "error"
	TaskRateLimited TaskStatus = "rate_limited"
)

// Terminal reports whether no further transitions are possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskError
}

type SyncType string

const (
	SyncFull      SyncType = "full"
	SyncScheduled SyncType = "scheduled"
	SyncWebhook   SyncType = "webhook"
)

type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncPartial SyncStatus = "partial"
	SyncFailed  SyncStatus = "failed"
)

type SyncScope string

const (
	ScopeProducts   SyncScope = "products"
	ScopeCategories SyncScope = "categories"
)

type ChangeType string

const (
	ChangePrice     ChangeType = "price"
	ChangeInventory ChangeType = "inventory"
	ChangeMetadata  ChangeType = "metadata"
	ChangeImage     ChangeType = "image"
	ChangeVariant   ChangeType = "variant"
	ChangeOther     ChangeType = "other"
)

type ChangeSeverity string

const (
	SeverityCritical ChangeSeverity = "critical"
	SeverityStandard ChangeSeverity = "standard"
	SeverityMinor    ChangeSeverity = "minor"
)

type ChangeStatus string

const (
	ChangePendingReview ChangeStatus = "pending_review"
	ChangeApproved      ChangeStatus = "approved"
	ChangeRejected      ChangeStatus = "rejected"
	ChangeApplied       ChangeStatus = "applied"
)

// OrderStatus is the coarse storefront-facing order state.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderPaid       OrderStatus = "paid"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

type SubmissionStatus string

const (
	SubmissionNone   SubmissionStatus = "not_submitted"
	SubmissionDone   SubmissionStatus = "submitted"
	SubmissionFailed SubmissionStatus = "submission_failed"
)

const (
	// Field names recorded on staged product changes.
	FieldBasePrice   = "base_price"
	FieldRetailPrice = "retail_price"
	FieldAvailable   = "available"

	// SystemReviewer marks changes closed by the synchronizer itself.
	SystemReviewer = "system"
)
