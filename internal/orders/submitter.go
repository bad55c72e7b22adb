// Package orders submits storefront orders to the provider and reconciles the
// provider's view of them back into the local order row.
package orders

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"atrocitee/internal/domain"
	"atrocitee/internal/events"
	"atrocitee/internal/models"
	"atrocitee/internal/observability"
	"atrocitee/internal/provider"

	"github.com/rs/zerolog"
)

const (
	maxLocalIDPart = 20
	maxExternalID  = 32
)

var (
	ErrEmptyOrder    = errors.New("order has no items")
	ErrNotSubmitted  = errors.New("order has not been submitted")
	externalIDStrip  = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
	errMissingResult = errors.New("provider response lacks an order")
)

// statusTable folds the provider's fine-grained states into the local enum.
var statusTable = map[string]models.OrderStatus{
	"draft":     models.OrderPending,
	"pending":   models.OrderPending,
	"onhold":    models.OrderPending,
	"inprocess": models.OrderProcessing,
	"fulfilled": models.OrderShipped,
	"shipped":   models.OrderShipped,
	"delivered": models.OrderDelivered,
	"failed":    models.OrderCancelled,
	"canceled":  models.OrderCancelled,
}

// MapStatus returns the local status for a provider status. Unknown values
// map to pending.
func MapStatus(remote string) models.OrderStatus {
	if s, ok := statusTable[strings.ToLower(strings.TrimSpace(remote))]; ok {
		return s
	}
	return models.OrderPending
}

type Client interface {
	CreateOrder(ctx context.Context, req provider.OrderRequest, confirm bool) (*provider.RemoteOrder, error)
	GetOrderByExternalID(ctx context.Context, externalID string) (*provider.RemoteOrder, error)
}

type Options struct {
	// Confirm submits orders for fulfillment instead of as drafts.
	Confirm  bool
	Events   domain.EventPublisher
	Reporter observability.Reporter
	Logger   *zerolog.Logger
}

type Submitter struct {
	client   Client
	orders   domain.OrderRepository
	confirm  bool
	events   domain.EventPublisher
	reporter observability.Reporter
	logger   zerolog.Logger
	now      func() time.Time
}

func NewSubmitter(client Client, orders domain.OrderRepository, opts Options) *Submitter {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "orders").Logger()
	}
	return &Submitter{
		client:   client,
		orders:   orders,
		confirm:  opts.Confirm,
		events:   opts.Events,
		reporter: observability.OrNop(opts.Reporter),
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Submitter) WithClock(now func() time.Time) *Submitter {
	s.now = now
	return s
}

// ExternalID derives the provider-facing order id: the sanitized local id cut
// to 20 characters, a hyphen, and the base-36 unix milliseconds.
func ExternalID(localID string, now time.Time) string {
	base := externalIDStrip.ReplaceAllString(localID, "")
	if len(base) > maxLocalIDPart {
		base = base[:maxLocalIDPart]
	}
	if base == "" {
		base = "order"
	}
	id := base + "-" + strconv.FormatInt(now.UnixMilli(), 36)
	if len(id) > maxExternalID {
		id = id[:maxExternalID]
	}
	return id
}

// BuildRemoteOrder maps a local order onto the provider's order schema. An
// external id already assigned to the order is kept.
func BuildRemoteOrder(order *models.Order, now time.Time) provider.OrderRequest {
	externalID := order.ExternalID
	if externalID == "" {
		externalID = ExternalID(order.ID, now)
	}

	country := NormalizeCountry(order.Recipient.CountryCode)
	req := provider.OrderRequest{
		ExternalID: externalID,
		Shipping:   "STANDARD",
		Recipient: provider.Recipient{
			Name:        strings.TrimSpace(order.Recipient.Name),
			Company:     order.Recipient.Company,
			Address1:    strings.TrimSpace(order.Recipient.Address1),
			Address2:    strings.TrimSpace(order.Recipient.Address2),
			City:        strings.TrimSpace(order.Recipient.City),
			StateCode:   NormalizeState(country, order.Recipient.StateCode),
			CountryCode: country,
			Zip:         strings.TrimSpace(order.Recipient.Zip),
			Phone:       order.Recipient.Phone,
			Email:       order.Recipient.Email,
		},
		RetailCosts: &provider.RetailCosts{
			Currency: order.Currency,
			Subtotal: order.Subtotal,
			Discount: order.Discount,
			Shipping: order.Shipping,
			Tax:      order.Tax,
		},
	}

	for _, item := range order.Items {
		req.Items = append(req.Items, provider.OrderItemRequest{
			SyncVariantID: item.ProviderVariantID,
			Quantity:      item.Quantity,
			RetailPrice:   item.RetailPrice,
			Name:          item.Name,
		})
	}
	return req
}

func validate(req provider.OrderRequest) error {
	if len(req.Items) == 0 {
		return ErrEmptyOrder
	}
	for i, item := range req.Items {
		if item.SyncVariantID <= 0 {
			return fmt.Errorf("item %d has no provider variant", i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("item %d has quantity %d", i, item.Quantity)
		}
	}
	if req.Recipient.Address1 == "" || req.Recipient.CountryCode == "" {
		return errors.New("recipient address is incomplete")
	}
	return nil
}

// SubmitOrder sends the order to the provider and returns its representation.
func (s *Submitter) SubmitOrder(ctx context.Context, order *models.Order) (*provider.RemoteOrder, error) {
	req := BuildRemoteOrder(order, s.now())
	if err := validate(req); err != nil {
		return nil, fmt.Errorf("order %s: %w", order.ID, err)
	}

	remote, err := s.client.CreateOrder(ctx, req, s.confirm)
	if err != nil {
		return nil, err
	}
	if remote == nil || remote.ID == 0 {
		return nil, errMissingResult
	}
	return remote, nil
}

// Submit loads, submits and records a local order. The external id is
// persisted before the remote call and reused by later attempts, so a
// retried submission finds the order the provider already has.
func (s *Submitter) Submit(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.orders.FindOrderByLocalID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.SubmissionStatus == models.SubmissionDone {
		return order, fmt.Errorf("%w: order %s is already submitted", domain.ErrInvalidTransition, orderID)
	}

	var remote *provider.RemoteOrder
	if order.ExternalID != "" {
		existing, err := s.client.GetOrderByExternalID(ctx, order.ExternalID)
		switch {
		case err == nil:
			s.logger.Info().Str("order_id", orderID).Str("external_id", order.ExternalID).Msg("order already known to provider")
			remote = existing
		case !provider.IsNotFound(err):
			return order, s.submissionFailed(ctx, order, err)
		}
	} else {
		order.ExternalID = ExternalID(order.ID, s.now())
		if err := s.orders.UpdateOrderSubmission(ctx, order); err != nil {
			return order, fmt.Errorf("reserve external id: %w", err)
		}
	}

	if remote == nil {
		remote, err = s.SubmitOrder(ctx, order)
		if err != nil {
			return order, s.submissionFailed(ctx, order, err)
		}
	}

	order.SubmissionStatus = models.SubmissionDone
	order.SubmissionError = ""
	order.ProviderOrderID = remote.ID
	order.ProviderStatus = remote.Status
	if err := s.orders.UpdateOrderSubmission(ctx, order); err != nil {
		return order, fmt.Errorf("record submission: %w", err)
	}
	s.logger.Info().Str("order_id", orderID).Int64("provider_order_id", remote.ID).Msg("order submitted")

	if err := s.UpdateLocalOrderStatus(ctx, order, remote, "submit"); err != nil {
		return order, err
	}
	return order, nil
}

func (s *Submitter) submissionFailed(ctx context.Context, order *models.Order, cause error) error {
	order.SubmissionStatus = models.SubmissionFailed
	order.SubmissionError = observability.RedactMessage(cause.Error())
	if err := s.orders.UpdateOrderSubmission(context.WithoutCancel(ctx), order); err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID).Msg("failed to record submission failure")
	}
	s.reporter.Report(ctx, "orders.submit", cause, observability.Tags(
		"order_id", order.ID,
		"external_id", order.ExternalID,
	))
	return fmt.Errorf("submit order %s: %w", order.ID, cause)
}

// UpdateLocalOrderStatus folds a provider snapshot into the local order with
// a single update. Every written value is derived from the order and the
// snapshot, so applying the same snapshot twice yields the same row.
func (s *Submitter) UpdateLocalOrderStatus(ctx context.Context, order *models.Order, remote *provider.RemoteOrder, source string) error {
	update := models.OrderStatusUpdate{
		OrderID:        order.ID,
		Status:         MapStatus(remote.Status),
		ProviderStatus: remote.Status,
		TrackingNumber: order.TrackingNumber,
		TrackingURL:    order.TrackingURL,
		ShippedAt:      order.ShippedAt,
		UpdatedAt:      snapshotTime(remote, order.UpdatedAt),
	}
	if sh := latestShipment(remote.Shipments); sh != nil {
		update.TrackingNumber = sh.TrackingNumber
		update.TrackingURL = sh.TrackingURL
		if at := shipmentTime(sh); at != nil {
			update.ShippedAt = at
		}
	}

	if err := s.orders.UpdateOrderStatus(ctx, update); err != nil {
		s.reporter.Report(ctx, "orders.update_status", err, observability.Tags("order_id", order.ID, "source", source))
		return fmt.Errorf("update order %s status: %w", order.ID, err)
	}

	previous := order.Status
	order.Status = update.Status
	order.ProviderStatus = update.ProviderStatus
	order.TrackingNumber = update.TrackingNumber
	order.TrackingURL = update.TrackingURL
	order.ShippedAt = update.ShippedAt
	order.UpdatedAt = update.UpdatedAt

	if previous != update.Status {
		s.logger.Info().
			Str("order_id", order.ID).
			Str("from", string(previous)).
			Str("to", string(update.Status)).
			Str("source", source).
			Msg("order status changed")
		s.publish(order, previous, source)
	}
	return nil
}

func (s *Submitter) publish(order *models.Order, previous models.OrderStatus, source string) {
	if s.events == nil {
		return
	}
	payload := events.OrderStatusPayload{
		OrderID:        order.ID,
		PreviousStatus: string(previous),
		Status:         string(order.Status),
		ProviderStatus: order.ProviderStatus,
		TrackingNumber: order.TrackingNumber,
		Source:         source,
		ChangedAt:      order.UpdatedAt,
	}
	if err := s.events.PublishJSON(events.EventOrderStatusChanged, payload); err != nil {
		s.logger.Warn().Err(err).Str("order_id", order.ID).Msg("failed to publish order event")
	}
}

// RefreshStatus polls the provider for a submitted order.
func (s *Submitter) RefreshStatus(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.orders.FindOrderByLocalID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ExternalID == "" {
		return order, fmt.Errorf("order %s: %w", orderID, ErrNotSubmitted)
	}

	remote, err := s.client.GetOrderByExternalID(ctx, order.ExternalID)
	if err != nil {
		s.reporter.Report(ctx, "orders.refresh", err, observability.Tags("order_id", orderID, "external_id", order.ExternalID))
		return order, fmt.Errorf("fetch order %s: %w", order.ExternalID, err)
	}
	if err := s.UpdateLocalOrderStatus(ctx, order, remote, "poll"); err != nil {
		return order, err
	}
	return order, nil
}

// ApplyRemote reconciles a pushed snapshot, locating the local order by the
// external id we assigned.
func (s *Submitter) ApplyRemote(ctx context.Context, remote *provider.RemoteOrder, source string) (*models.Order, error) {
	if remote.ExternalID == "" {
		return nil, fmt.Errorf("remote order %d has no external id: %w", remote.ID, domain.ErrNotFound)
	}
	order, err := s.orders.FindOrderByExternalID(ctx, remote.ExternalID)
	if err != nil {
		return nil, err
	}
	if err := s.UpdateLocalOrderStatus(ctx, order, remote, source); err != nil {
		return order, err
	}
	return order, nil
}

func snapshotTime(remote *provider.RemoteOrder, fallback time.Time) time.Time {
	switch {
	case remote.Updated > 0:
		return time.Unix(remote.Updated, 0).UTC()
	case remote.Created > 0:
		return time.Unix(remote.Created, 0).UTC()
	default:
		return fallback
	}
}

// latestShipment picks the most recently shipped record; later entries win ties.
func latestShipment(shipments []provider.Shipment) *provider.Shipment {
	var latest *provider.Shipment
	var latestAt int64
	for i := range shipments {
		sh := &shipments[i]
		at := sh.ShippedAt
		if at == 0 {
			at = sh.Created
		}
		if latest == nil || at >= latestAt {
			latest = sh
			latestAt = at
		}
	}
	return latest
}

func shipmentTime(sh *provider.Shipment) *time.Time {
	if sh.ShippedAt > 0 {
		t := time.Unix(sh.ShippedAt, 0).UTC()
		return &t
	}
	if sh.ShipDate != "" {
		if t, err := time.Parse("2006-01-02", sh.ShipDate); err == nil {
			return &t
		}
	}
	return nil
}
