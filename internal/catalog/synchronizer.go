// Package catalog mirrors the provider's store products and categories into
// the local database. Safe fields are written directly; price and
// availability moves are staged as product changes for review.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"atrocitee/internal/domain"
	"atrocitee/internal/metrics"
	"atrocitee/internal/models"
	"atrocitee/internal/observability"
	"atrocitee/internal/provider"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// criticalPriceShift is the relative price move that makes a change critical.
var criticalPriceShift = decimal.NewFromFloat(0.20)

type Client interface {
	ListSyncProducts(ctx context.Context) ([]provider.SyncProduct, error)
	GetSyncProduct(ctx context.Context, id int64) (*provider.SyncProductDetail, error)
	ListCatalogCategories(ctx context.Context) ([]provider.CatalogCategory, error)
}

type Options struct {
	Events   domain.EventPublisher
	Reporter observability.Reporter
	Logger   *zerolog.Logger
}

type Synchronizer struct {
	client   Client
	catalog  domain.CatalogRepository
	history  domain.SyncRepository
	events   domain.EventPublisher
	reporter observability.Reporter
	logger   zerolog.Logger
	now      func() time.Time
}

type SyncResult struct {
	HistoryID     int64             `json:"history_id"`
	Status        models.SyncStatus `json:"status"`
	Synced        int               `json:"synced"`
	Failed        int               `json:"failed"`
	ChangesStaged int               `json:"changes_staged"`
}

type CategoryResult struct {
	HistoryID int64             `json:"history_id"`
	Status    models.SyncStatus `json:"status"`
	Added     int               `json:"added"`
	Existing  int               `json:"existing"`
	Failed    int               `json:"failed"`
}

func NewSynchronizer(client Client, catalog domain.CatalogRepository, history domain.SyncRepository, opts Options) *Synchronizer {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "catalog_sync").Logger()
	}
	return &Synchronizer{
		client:   client,
		catalog:  catalog,
		history:  history,
		events:   opts.Events,
		reporter: observability.OrNop(opts.Reporter),
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Synchronizer) WithClock(now func() time.Time) *Synchronizer {
	s.now = now
	return s
}

// SyncProducts pulls every store product with its variants. Exactly one
// sync_history row is written per run. It is opened as failed and only the
// run itself moves it to success or partial.
func (s *Synchronizer) SyncProducts(ctx context.Context, syncType models.SyncType) (res SyncResult, err error) {
	h := &models.SyncHistory{
		SyncType:  syncType,
		Scope:     models.ScopeProducts,
		Status:    models.SyncFailed,
		StartedAt: s.now(),
	}
	if err := s.history.InsertSyncHistory(ctx, h); err != nil {
		s.reporter.Report(ctx, "catalog.sync_products", err, observability.Tags("stage", "open_history"))
		return SyncResult{Status: models.SyncFailed}, fmt.Errorf("open sync history: %w", err)
	}
	res = SyncResult{HistoryID: h.ID, Status: models.SyncFailed}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("product sync aborted: %v", r)
			res.Status = models.SyncFailed
			s.finish(ctx, h, res.Status, res.Synced, res.Failed, err.Error())
			s.reporter.Report(ctx, "catalog.sync_products", err, observability.Tags("history_id", strconv.FormatInt(h.ID, 10)))
		}
	}()

	remote, err := s.client.ListSyncProducts(ctx)
	if err != nil {
		err = fmt.Errorf("list store products: %w", err)
		s.finish(ctx, h, models.SyncFailed, 0, 0, err.Error())
		s.reporter.Report(ctx, "catalog.sync_products", err, observability.Tags("history_id", strconv.FormatInt(h.ID, 10)))
		return res, err
	}

	for _, p := range remote {
		if p.IsIgnored {
			s.logger.Debug().Int64("provider_product_id", p.ID).Msg("skipping ignored product")
			continue
		}
		staged, variantFailures, err := s.syncProduct(ctx, h.ID, p)
		res.ChangesStaged += staged
		switch {
		case err != nil:
			res.Failed++
			s.logger.Warn().Err(err).Int64("provider_product_id", p.ID).Msg("product sync failed")
			s.reporter.Report(ctx, "catalog.sync_product", err, observability.Tags("provider_product_id", strconv.FormatInt(p.ID, 10)))
		case variantFailures > 0:
			res.Failed++
		default:
			res.Synced++
		}
	}

	res.Status = runStatus(res.Synced, res.Failed)
	msg := fmt.Sprintf("%d products synced, %d failed, %d changes staged", res.Synced, res.Failed, res.ChangesStaged)
	s.finish(ctx, h, res.Status, res.Synced, res.Failed, msg)
	s.logger.Info().
		Str("sync_type", string(syncType)).
		Str("status", string(res.Status)).
		Int("synced", res.Synced).
		Int("failed", res.Failed).
		Int("changes_staged", res.ChangesStaged).
		Msg("product sync finished")
	return res, nil
}

// runStatus: success without failures, partial with a mix, failed when
// nothing got through.
func runStatus(synced, failed int) models.SyncStatus {
	switch {
	case failed == 0:
		return models.SyncSuccess
	case synced > 0:
		return models.SyncPartial
	default:
		return models.SyncFailed
	}
}

func (s *Synchronizer) finish(ctx context.Context, h *models.SyncHistory, status models.SyncStatus, synced, failed int, msg string) {
	completed := s.now()
	h.Status = status
	h.Message = msg
	h.ProductsSynced = synced
	h.ProductsFailed = failed
	h.CompletedAt = &completed

	if err := s.history.FinishSyncHistory(context.WithoutCancel(ctx), h); err != nil {
		s.logger.Error().Err(err).Int64("history_id", h.ID).Msg("failed to finalize sync history")
	}
	metrics.IncSyncRun(string(h.SyncType), string(h.Scope), string(status))
}

func (s *Synchronizer) syncProduct(ctx context.Context, historyID int64, remote provider.SyncProduct) (staged, variantFailures int, err error) {
	detail, err := s.client.GetSyncProduct(ctx, remote.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch product %d: %w", remote.ID, err)
	}

	existing, err := s.catalog.FindProductByRemoteID(ctx, remote.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return 0, 0, fmt.Errorf("lookup product %d: %w", remote.ID, err)
	}

	now := s.now()
	name := detail.SyncProduct.Name
	if name == "" {
		name = remote.Name
	}
	product := &models.Product{
		ProviderProductID: remote.ID,
		Name:              name,
		Slug:              Slugify(name),
		ThumbnailURL:      detail.SyncProduct.ThumbnailURL,
		Synced:            true,
		LastSyncedAt:      &now,
	}

	var remoteBase decimal.Decimal
	hasBase := len(detail.SyncVariants) > 0
	if hasBase {
		remoteBase = detail.SyncVariants[0].RetailPrice
		product.Currency = detail.SyncVariants[0].Currency
	}
	if existing == nil {
		product.BasePrice = remoteBase
		product.Published = false
	}
	if err := s.catalog.UpsertProduct(ctx, product); err != nil {
		return 0, 0, err
	}

	if existing != nil && hasBase && !existing.BasePrice.Equal(remoteBase) {
		ok, err := s.stage(ctx, &models.ProductChange{
			ProductID:         product.ID,
			ProviderProductID: remote.ID,
			ChangeType:        models.ChangePrice,
			Severity:          priceSeverity(existing.BasePrice, remoteBase),
			FieldName:         models.FieldBasePrice,
			OldValue:          existing.BasePrice.String(),
			NewValue:          remoteBase.String(),
			SyncHistoryID:     historyID,
		})
		if err != nil {
			return staged, 0, fmt.Errorf("stage base price for product %d: %w", remote.ID, err)
		}
		if ok {
			staged++
		}
	}

	for _, v := range detail.SyncVariants {
		n, err := s.syncVariant(ctx, historyID, product, v)
		staged += n
		if err != nil {
			variantFailures++
			s.logger.Warn().Err(err).Int64("provider_variant_id", v.ID).Msg("variant sync failed")
			s.reporter.Report(ctx, "catalog.sync_variant", err, observability.Tags(
				"provider_product_id", strconv.FormatInt(remote.ID, 10),
				"provider_variant_id", strconv.FormatInt(v.ID, 10),
			))
		}
	}
	return staged, variantFailures, nil
}

func (s *Synchronizer) syncVariant(ctx context.Context, historyID int64, product *models.Product, remote provider.SyncVariant) (int, error) {
	existing, err := s.catalog.FindVariantByRemoteID(ctx, remote.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return 0, fmt.Errorf("lookup variant %d: %w", remote.ID, err)
	}

	opts := DeriveOptions(remote)
	available := remote.Available()
	row := &models.Variant{
		ProductID:          product.ID,
		ProviderVariantID:  remote.ID,
		ProviderExternalID: remote.ExternalID,
		CatalogVariantID:   remote.VariantID,
		Name:               remote.Name,
		SKU:                remote.SKU,
		Color:              opts.Color,
		Size:               opts.Size,
		RetailPrice:        remote.RetailPrice,
		Currency:           remote.Currency,
		Available:          available,
	}
	if err := s.catalog.UpsertVariant(ctx, row); err != nil {
		return 0, err
	}
	if existing == nil {
		return 0, nil
	}

	variantID := row.ID
	staged := 0
	if !existing.RetailPrice.Equal(remote.RetailPrice) {
		ok, err := s.stage(ctx, &models.ProductChange{
			ProductID:         product.ID,
			VariantID:         &variantID,
			ProviderProductID: product.ProviderProductID,
			ChangeType:        models.ChangePrice,
			Severity:          priceSeverity(existing.RetailPrice, remote.RetailPrice),
			FieldName:         models.FieldRetailPrice,
			OldValue:          existing.RetailPrice.String(),
			NewValue:          remote.RetailPrice.String(),
			SyncHistoryID:     historyID,
		})
		if err != nil {
			return staged, fmt.Errorf("stage price for variant %d: %w", remote.ID, err)
		}
		if ok {
			staged++
		}
	}
	if existing.Available != available {
		severity := models.SeverityStandard
		if !available {
			severity = models.SeverityCritical
		}
		ok, err := s.stage(ctx, &models.ProductChange{
			ProductID:         product.ID,
			VariantID:         &variantID,
			ProviderProductID: product.ProviderProductID,
			ChangeType:        models.ChangeInventory,
			Severity:          severity,
			FieldName:         models.FieldAvailable,
			OldValue:          strconv.FormatBool(existing.Available),
			NewValue:          strconv.FormatBool(available),
			SyncHistoryID:     historyID,
		})
		if err != nil {
			return staged, fmt.Errorf("stage availability for variant %d: %w", remote.ID, err)
		}
		if ok {
			staged++
		}
	}
	return staged, nil
}

// stage records a change unless an identical one is already pending. A
// pending change for the same field with another value is superseded. A
// difference a reviewer already rejected is not staged again until either
// side moves.
func (s *Synchronizer) stage(ctx context.Context, change *models.ProductChange) (bool, error) {
	open, err := s.history.FindPendingChange(ctx, change.ProductID, change.VariantID, change.FieldName)
	switch {
	case err == nil && open.NewValue == change.NewValue:
		return false, nil
	case err == nil:
		if err := s.history.UpdateChangeStatus(ctx, open.ID, models.ChangeRejected, models.SystemReviewer, s.now()); err != nil {
			return false, fmt.Errorf("supersede change %d: %w", open.ID, err)
		}
	case !errors.Is(err, domain.ErrNotFound):
		return false, err
	default:
		rejected, err := s.rejectedByReviewer(ctx, change)
		if err != nil {
			return false, err
		}
		if rejected {
			return false, nil
		}
	}

	change.Status = models.ChangePendingReview
	change.CreatedAt = s.now()
	if err := s.history.InsertProductChange(ctx, change); err != nil {
		return false, err
	}
	metrics.IncStagedChange(string(change.ChangeType))
	return true, nil
}

func (s *Synchronizer) rejectedByReviewer(ctx context.Context, change *models.ProductChange) (bool, error) {
	last, err := s.history.FindLatestChange(ctx, change.ProductID, change.VariantID, change.FieldName)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return last.Status == models.ChangeRejected &&
		last.ReviewedBy != nil && *last.ReviewedBy != models.SystemReviewer &&
		last.OldValue == change.OldValue &&
		last.NewValue == change.NewValue, nil
}

func priceSeverity(old, updated decimal.Decimal) models.ChangeSeverity {
	if old.IsZero() {
		return models.SeverityCritical
	}
	shift := updated.Sub(old).Abs().Div(old.Abs())
	if shift.GreaterThanOrEqual(criticalPriceShift) {
		return models.SeverityCritical
	}
	return models.SeverityStandard
}

// SyncCategories mirrors the provider's catalog categories. Categories carry
// no risky fields so everything is upserted directly.
func (s *Synchronizer) SyncCategories(ctx context.Context, syncType models.SyncType) (CategoryResult, error) {
	h := &models.SyncHistory{
		SyncType:  syncType,
		Scope:     models.ScopeCategories,
		Status:    models.SyncFailed,
		StartedAt: s.now(),
	}
	if err := s.history.InsertSyncHistory(ctx, h); err != nil {
		s.reporter.Report(ctx, "catalog.sync_categories", err, observability.Tags("stage", "open_history"))
		return CategoryResult{Status: models.SyncFailed}, fmt.Errorf("open sync history: %w", err)
	}
	res := CategoryResult{HistoryID: h.ID, Status: models.SyncFailed}

	remote, err := s.client.ListCatalogCategories(ctx)
	if err != nil {
		err = fmt.Errorf("list catalog categories: %w", err)
		s.finish(ctx, h, models.SyncFailed, 0, 0, err.Error())
		s.reporter.Report(ctx, "catalog.sync_categories", err, observability.Tags("history_id", strconv.FormatInt(h.ID, 10)))
		return res, err
	}

	for _, c := range remote {
		_, err := s.catalog.FindCategoryByRemoteID(ctx, c.ID)
		isNew := errors.Is(err, domain.ErrNotFound)
		if err != nil && !isNew {
			res.Failed++
			s.logger.Warn().Err(err).Int64("provider_category_id", c.ID).Msg("category lookup failed")
			continue
		}

		row := &models.Category{
			ProviderCategoryID: c.ID,
			ParentID:           c.ParentID,
			Title:              c.Title,
			Slug:               Slugify(c.Title),
			ImageURL:           c.ImageURL,
		}
		if err := s.catalog.UpsertCategory(ctx, row); err != nil {
			res.Failed++
			s.logger.Warn().Err(err).Int64("provider_category_id", c.ID).Msg("category upsert failed")
			continue
		}
		if isNew {
			res.Added++
		} else {
			res.Existing++
		}
	}

	res.Status = runStatus(res.Added+res.Existing, res.Failed)
	msg := fmt.Sprintf("%d categories added, %d existing, %d failed", res.Added, res.Existing, res.Failed)
	s.finish(ctx, h, res.Status, res.Added+res.Existing, res.Failed, msg)
	s.logger.Info().Str("status", string(res.Status)).Int("added", res.Added).Int("existing", res.Existing).Msg("category sync finished")
	return res, nil
}

// LastSuccessfulSync returns the most recent completed product run that was
// not a failure, or domain.ErrNotFound.
func (s *Synchronizer) LastSuccessfulSync(ctx context.Context) (*models.SyncHistory, error) {
	return s.history.LastSuccessfulSync(ctx, models.ScopeProducts)
}
