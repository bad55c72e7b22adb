package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Address struct {
	Name        string `json:"name"`
	Company     string `json:"company,omitempty"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2,omitempty"`
	City        string `json:"city"`
	StateCode   string `json:"state_code,omitempty"`
	CountryCode string `json:"country_code"`
	Zip         string `json:"zip"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Order is the storefront's authoritative view of a purchase.
type Order struct {
	ID               string           `json:"id"`
	Status           OrderStatus      `json:"status"`
	Recipient        Address          `json:"recipient"`
	Items            []OrderItem      `json:"items"`
	Subtotal         decimal.Decimal  `json:"subtotal"`
	Shipping         decimal.Decimal  `json:"shipping"`
	Tax              decimal.Decimal  `json:"tax"`
	Discount         decimal.Decimal  `json:"discount"`
	Total            decimal.Decimal  `json:"total"`
	Currency         string           `json:"currency"`
	ExternalID       string           `json:"external_id,omitempty"`
	ProviderOrderID  int64            `json:"provider_order_id,omitempty"`
	ProviderStatus   string           `json:"provider_status,omitempty"`
	SubmissionStatus SubmissionStatus `json:"submission_status"`
	SubmissionError  string           `json:"submission_error,omitempty"`
	TrackingNumber   string           `json:"tracking_number,omitempty"`
	TrackingURL      string           `json:"tracking_url,omitempty"`
	ShippedAt        *time.Time       `json:"shipped_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

type OrderItem struct {
	ID                int64           `json:"id"`
	OrderID           string          `json:"order_id"`
	VariantID         int64           `json:"variant_id"`
	ProviderVariantID int64           `json:"provider_variant_id"`
	Name              string          `json:"name"`
	Quantity          int             `json:"quantity"`
	RetailPrice       decimal.Decimal `json:"retail_price"`
}

// OrderStatusUpdate is the single-statement projection written by the reconciler.
type OrderStatusUpdate struct {
	OrderID        string
	Status         OrderStatus
	ProviderStatus string
	TrackingNumber string
	TrackingURL    string
	ShippedAt      *time.Time
	UpdatedAt      time.Time
}

// WebhookLog stores an accepted provider webhook delivery.
type WebhookLog struct {
	ID             int64     `json:"id"`
	EventType      string    `json:"event_type"`
	Payload        string    `json:"payload"`
	SignatureValid bool      `json:"signature_valid"`
	Processed      bool      `json:"processed"`
	Error          string    `json:"error,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}
