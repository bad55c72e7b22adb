package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"atrocitee/internal/domain"
	"atrocitee/internal/models"
	"atrocitee/internal/orders"
	"atrocitee/internal/provider"
	"atrocitee/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const defaultChangeLimit = 50

func (s *HTTPServer) handleEnqueueMockup(w http.ResponseWriter, r *http.Request) {
	var req worker.MockupRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	task, err := s.deps.Queue.Enqueue(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

func (s *HTTPServer) handleListMockups(w http.ResponseWriter, r *http.Request) {
	tasks := s.deps.Queue.List()
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		filtered := tasks[:0]
		for _, t := range tasks {
			if string(t.Status) == status {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *HTTPServer) handleGetMockup(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	task, err := s.deps.Queue.Get(id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *HTTPServer) handleRemoveMockup(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Queue.Remove(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleRefreshMockup(w http.ResponseWriter, r *http.Request) {
	id, ok := taskID(w, r)
	if !ok {
		return
	}
	task, err := s.deps.Queue.Refresh(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *HTTPServer) handleSyncProducts(w http.ResponseWriter, r *http.Request) {
	syncType := models.SyncFull
	if t := r.URL.Query().Get("type"); t != "" {
		syncType = models.SyncType(t)
	}
	res, err := s.deps.Catalog.SyncProducts(r.Context(), syncType)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "result": res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleSyncCategories(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Catalog.SyncCategories(r.Context(), models.SyncFull)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "result": res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleListChanges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := models.ChangePendingReview
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		status = models.ChangeStatus(v)
	}

	limit := defaultChangeLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	changes, err := s.deps.Catalog.ListChanges(r.Context(), status, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": changes})
}

func (s *HTTPServer) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.deps.Products.ListProducts(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

// handleGetProduct returns the product with its variants.
func (s *HTTPServer) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	ctx := r.Context()
	product, err := s.deps.Products.GetProduct(ctx, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	variants, err := s.deps.Products.ListVariants(ctx, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product, "variants": variants})
}

type reviewFunc func(ctx context.Context, id int64, reviewer string) (*models.ProductChange, error)

func (s *HTTPServer) handleReviewChange(review reviewFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid change id")
			return
		}
		change, err := review(r.Context(), id, reviewer(r.Context()))
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, change)
	}
}

func (s *HTTPServer) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.deps.Orders.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *HTTPServer) handleRefreshOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.deps.Orders.RefreshStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps domain and provider errors onto status codes.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, worker.ErrInvalidRequest),
		errors.Is(err, orders.ErrEmptyOrder),
		errors.Is(err, orders.ErrNotSubmitted):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		if remote, ok := provider.AsRemoteError(err); ok {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":     err.Error(),
				"provider":  remote.Code,
				"retryable": remote.Retryable(),
			})
			return
		}
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
