package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MockupTask is a queued request to render product mockups on the provider.
type MockupTask struct {
	ID                 uuid.UUID       `json:"id"`
	VariantID          int64           `json:"variant_id"`
	ProviderProductID  int64           `json:"provider_product_id"`
	ProviderVariantID  int64           `json:"provider_variant_id"`
	ProviderExternalID string          `json:"provider_external_id"`
	View               MockupView      `json:"view"`
	ArtifactURL        string          `json:"artifact_url,omitempty"`
	Status             TaskStatus      `json:"status"`
	RetryAfter         *time.Time      `json:"retry_after,omitempty"`
	Attempts           int             `json:"attempts"`
	Result             json.RawMessage `json:"result,omitempty"`
	Error              string          `json:"error,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}
