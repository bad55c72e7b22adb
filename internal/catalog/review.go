package catalog

import (
	"context"
	"fmt"
	"strconv"

	"atrocitee/internal/domain"
	"atrocitee/internal/events"
	"atrocitee/internal/models"

	"github.com/shopspring/decimal"
)

// ListChanges returns staged changes, newest first. An empty status lists all.
func (s *Synchronizer) ListChanges(ctx context.Context, status models.ChangeStatus, limit int) ([]*models.ProductChange, error) {
	return s.history.ListProductChanges(ctx, status, limit)
}

// Approve marks a pending change as accepted without touching the product.
func (s *Synchronizer) Approve(ctx context.Context, id int64, reviewer string) (*models.ProductChange, error) {
	return s.review(ctx, id, reviewer, models.ChangeApproved, models.ChangePendingReview)
}

func (s *Synchronizer) Reject(ctx context.Context, id int64, reviewer string) (*models.ProductChange, error) {
	return s.review(ctx, id, reviewer, models.ChangeRejected, models.ChangePendingReview, models.ChangeApproved)
}

func (s *Synchronizer) review(ctx context.Context, id int64, reviewer string, to models.ChangeStatus, from ...models.ChangeStatus) (*models.ProductChange, error) {
	change, err := s.history.GetProductChange(ctx, id)
	if err != nil {
		return nil, err
	}
	if !statusIn(change.Status, from) {
		return nil, fmt.Errorf("%w: change %d is %s", domain.ErrInvalidTransition, id, change.Status)
	}

	at := s.now()
	if err := s.history.UpdateChangeStatus(ctx, id, to, reviewer, at); err != nil {
		return nil, err
	}
	change.Status = to
	change.ReviewedBy = &reviewer
	change.ReviewedAt = &at
	s.logger.Info().Int64("change_id", id).Str("status", string(to)).Str("reviewer", reviewer).Msg("product change reviewed")
	return change, nil
}

// Apply writes the staged value to the live product or variant row. It is the
// only path by which synchronized prices and availability reach the catalog.
func (s *Synchronizer) Apply(ctx context.Context, id int64, reviewer string) (*models.ProductChange, error) {
	change, err := s.history.GetProductChange(ctx, id)
	if err != nil {
		return nil, err
	}
	if !statusIn(change.Status, []models.ChangeStatus{models.ChangePendingReview, models.ChangeApproved}) {
		return nil, fmt.Errorf("%w: change %d is %s", domain.ErrInvalidTransition, id, change.Status)
	}

	if err := s.write(ctx, change); err != nil {
		return nil, fmt.Errorf("apply change %d: %w", id, err)
	}

	at := s.now()
	if err := s.history.UpdateChangeStatus(ctx, id, models.ChangeApplied, reviewer, at); err != nil {
		return nil, err
	}
	change.Status = models.ChangeApplied
	change.ReviewedBy = &reviewer
	change.ReviewedAt = &at

	if s.events != nil {
		payload := events.ProductChangePayload{
			ChangeID:  change.ID,
			ProductID: change.ProductID,
			VariantID: change.VariantID,
			FieldName: change.FieldName,
			OldValue:  change.OldValue,
			NewValue:  change.NewValue,
			AppliedBy: reviewer,
		}
		if err := s.events.PublishJSON(events.EventProductChangeApplied, payload); err != nil {
			s.logger.Warn().Err(err).Int64("change_id", id).Msg("failed to publish change event")
		}
	}
	return change, nil
}

func (s *Synchronizer) write(ctx context.Context, change *models.ProductChange) error {
	switch change.FieldName {
	case models.FieldBasePrice:
		price, err := decimal.NewFromString(change.NewValue)
		if err != nil {
			return fmt.Errorf("invalid price %q: %w", change.NewValue, err)
		}
		return s.catalog.UpdateProductBasePrice(ctx, change.ProductID, price)
	case models.FieldRetailPrice:
		if change.VariantID == nil {
			return fmt.Errorf("retail price change %d has no variant", change.ID)
		}
		price, err := decimal.NewFromString(change.NewValue)
		if err != nil {
			return fmt.Errorf("invalid price %q: %w", change.NewValue, err)
		}
		return s.catalog.UpdateVariantPrice(ctx, *change.VariantID, price)
	case models.FieldAvailable:
		if change.VariantID == nil {
			return fmt.Errorf("availability change %d has no variant", change.ID)
		}
		available, err := strconv.ParseBool(change.NewValue)
		if err != nil {
			return fmt.Errorf("invalid availability %q: %w", change.NewValue, err)
		}
		return s.catalog.UpdateVariantAvailability(ctx, *change.VariantID, available)
	default:
		return fmt.Errorf("unsupported field %q", change.FieldName)
	}
}

func statusIn(s models.ChangeStatus, set []models.ChangeStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
