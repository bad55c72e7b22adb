package models

import "time"

// SyncHistory is the audit row written once per synchronization run.
type SyncHistory struct {
	ID             int64      `json:"id"`
	SyncType       SyncType   `json:"sync_type"`
	Scope          SyncScope  `json:"scope"`
	Status         SyncStatus `json:"status"`
	Message        string     `json:"message"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	ProductsSynced int        `json:"products_synced"`
	ProductsFailed int        `json:"products_failed"`
}

// ProductChange is a remote value difference waiting for human review.
type ProductChange struct {
	ID                int64          `json:"id"`
	ProductID         int64          `json:"product_id"`
	VariantID         *int64         `json:"variant_id,omitempty"`
	ProviderProductID int64          `json:"provider_product_id"`
	ChangeType        ChangeType     `json:"change_type"`
	Severity          ChangeSeverity `json:"severity"`
	FieldName         string         `json:"field_name"`
	OldValue          string         `json:"old_value"`
	NewValue          string         `json:"new_value"`
	SyncHistoryID     int64          `json:"sync_history_id"`
	Status            ChangeStatus   `json:"status"`
	ReviewedBy        *string        `json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time     `json:"reviewed_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}
