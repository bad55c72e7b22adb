package provider

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// SyncProduct is a product that lives in the provider store.
type SyncProduct struct {
	ID           int64  `json:"id"`
	ExternalID   string `json:"external_id"`
	Name         string `json:"name"`
	Variants     int    `json:"variants"`
	Synced       int    `json:"synced"`
	ThumbnailURL string `json:"thumbnail_url"`
	IsIgnored    bool   `json:"is_ignored"`
}

type SyncProductDetail struct {
	SyncProduct  SyncProduct   `json:"sync_product"`
	SyncVariants []SyncVariant `json:"sync_variants"`
}

type SyncVariant struct {
	ID                 int64           `json:"id"`
	ExternalID         string          `json:"external_id"`
	SyncProductID      int64           `json:"sync_product_id"`
	Name               string          `json:"name"`
	Synced             bool            `json:"synced"`
	VariantID          int64           `json:"variant_id"`
	RetailPrice        decimal.Decimal `json:"retail_price"`
	Currency           string          `json:"currency"`
	SKU                string          `json:"sku"`
	Color              string          `json:"color,omitempty"`
	Size               string          `json:"size,omitempty"`
	IsIgnored          bool            `json:"is_ignored"`
	AvailabilityStatus string          `json:"availability_status,omitempty"`
	Product            VariantProduct  `json:"product"`
	Files              []File          `json:"files,omitempty"`
	Options            []VariantOption `json:"options,omitempty"`
	MainCategoryID     int64           `json:"main_category_id,omitempty"`
}

// Available treats an unknown status as sellable.
func (v SyncVariant) Available() bool {
	switch strings.ToLower(v.AvailabilityStatus) {
	case "", "active":
		return !v.IsIgnored
	default:
		return false
	}
}

type VariantProduct struct {
	VariantID int64  `json:"variant_id"`
	ProductID int64  `json:"product_id"`
	Image     string `json:"image"`
	Name      string `json:"name"`
}

type File struct {
	ID         int64  `json:"id,omitempty"`
	Type       string `json:"type,omitempty"`
	URL        string `json:"url,omitempty"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// VariantOption values are untyped on the wire: strings, numbers or lists.
type VariantOption struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value"`
}

// StringValue returns the option value when it is a plain string.
func (o VariantOption) StringValue() (string, bool) {
	var s string
	if err := json.Unmarshal(o.Value, &s); err != nil {
		return "", false
	}
	return s, true
}

type SyncProductRequest struct {
	SyncProduct  SyncProductInput   `json:"sync_product"`
	SyncVariants []SyncVariantInput `json:"sync_variants,omitempty"`
}

type SyncProductInput struct {
	ExternalID string `json:"external_id,omitempty"`
	Name       string `json:"name"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	IsIgnored  bool   `json:"is_ignored,omitempty"`
}

type SyncVariantInput struct {
	ID          int64            `json:"id,omitempty"`
	ExternalID  string           `json:"external_id,omitempty"`
	VariantID   int64            `json:"variant_id"`
	RetailPrice *decimal.Decimal `json:"retail_price,omitempty"`
	SKU         string           `json:"sku,omitempty"`
	Files       []File           `json:"files,omitempty"`
}

type CatalogCategory struct {
	ID       int64  `json:"id"`
	ParentID int64  `json:"parent_id"`
	ImageURL string `json:"image_url"`
	Title    string `json:"title"`
}

type CatalogProduct struct {
	ID             int64  `json:"id"`
	MainCategoryID int64  `json:"main_category_id"`
	Type           string `json:"type"`
	Title          string `json:"title"`
	Brand          string `json:"brand"`
	Model          string `json:"model"`
	Image          string `json:"image"`
	VariantCount   int    `json:"variant_count"`
	Currency       string `json:"currency"`
	IsDiscontinued bool   `json:"is_discontinued"`
	Description    string `json:"description,omitempty"`
}

type CatalogVariant struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Size      string          `json:"size"`
	Color     string          `json:"color"`
	ColorCode string          `json:"color_code"`
	Image     string          `json:"image"`
	Price     decimal.Decimal `json:"price"`
	InStock   bool            `json:"in_stock"`
}

type CatalogVariantDetail struct {
	Variant CatalogVariant `json:"variant"`
	Product CatalogProduct `json:"product"`
}

type MockupTaskRequest struct {
	VariantIDs []int64      `json:"variant_ids"`
	Format     string       `json:"format,omitempty"`
	Files      []MockupFile `json:"files"`
	Options    []string     `json:"options,omitempty"`
}

type MockupFile struct {
	Placement string `json:"placement"`
	ImageURL  string `json:"image_url"`
}

const (
	MockupStatusPending   = "pending"
	MockupStatusCompleted = "completed"
	MockupStatusFailed    = "failed"
)

type MockupTaskResult struct {
	TaskKey string   `json:"task_key"`
	Status  string   `json:"status"`
	Error   string   `json:"error,omitempty"`
	Mockups []Mockup `json:"mockups,omitempty"`
}

type Mockup struct {
	Placement  string        `json:"placement"`
	VariantIDs []int64       `json:"variant_ids"`
	MockupURL  string        `json:"mockup_url"`
	Extra      []MockupExtra `json:"extra,omitempty"`
}

type MockupExtra struct {
	Title  string `json:"title"`
	Option string `json:"option"`
	URL    string `json:"url"`
}

type Recipient struct {
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

type OrderRequest struct {
	ExternalID  string             `json:"external_id"`
	Shipping    string             `json:"shipping,omitempty"`
	Recipient   Recipient          `json:"recipient"`
	Items       []OrderItemRequest `json:"items"`
	RetailCosts *RetailCosts       `json:"retail_costs,omitempty"`
}

type OrderItemRequest struct {
	SyncVariantID int64           `json:"sync_variant_id,omitempty"`
	VariantID     int64           `json:"variant_id,omitempty"`
	Quantity      int             `json:"quantity"`
	RetailPrice   decimal.Decimal `json:"retail_price"`
	Name          string          `json:"name,omitempty"`
}

type RetailCosts struct {
	Currency string          `json:"currency"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
}

type RemoteOrder struct {
	ID          int64             `json:"id"`
	ExternalID  string            `json:"external_id"`
	Status      string            `json:"status"`
	Shipping    string            `json:"shipping"`
	Created     int64             `json:"created"`
	Updated     int64             `json:"updated"`
	Recipient   Recipient         `json:"recipient"`
	Items       []RemoteOrderItem `json:"items,omitempty"`
	Costs       *OrderCosts       `json:"costs,omitempty"`
	RetailCosts *OrderCosts       `json:"retail_costs,omitempty"`
	Shipments   []Shipment        `json:"shipments,omitempty"`
}

type RemoteOrderItem struct {
	ID            int64           `json:"id"`
	ExternalID    string          `json:"external_id,omitempty"`
	SyncVariantID int64           `json:"sync_variant_id"`
	VariantID     int64           `json:"variant_id"`
	Quantity      int             `json:"quantity"`
	RetailPrice   decimal.Decimal `json:"retail_price"`
	Name          string          `json:"name"`
}

// OrderCosts is what the provider charges (costs) or what the customer paid (retail_costs).
type OrderCosts struct {
	Currency string          `json:"currency"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

type Shipment struct {
	ID             int64  `json:"id"`
	Carrier        string `json:"carrier"`
	Service        string `json:"service"`
	TrackingNumber string `json:"tracking_number"`
	TrackingURL    string `json:"tracking_url"`
	Created        int64  `json:"created"`
	ShipDate       string `json:"ship_date"`
	ShippedAt      int64  `json:"shipped_at"`
	Reshipment     bool   `json:"reshipment"`
}

// WebhookEvent is the envelope of an inbound provider webhook delivery.
type WebhookEvent struct {
	Type    string      `json:"type"`
	Created int64       `json:"created"`
	Retries int         `json:"retries"`
	Store   int64       `json:"store"`
	Data    WebhookData `json:"data"`
}

type WebhookData struct {
	Order    *RemoteOrder `json:"order,omitempty"`
	Shipment *Shipment    `json:"shipment,omitempty"`
	Reason   string       `json:"reason,omitempty"`
}
