package api

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"atrocitee/internal/domain"
	"atrocitee/internal/models"
)

// handleCronSync runs a scheduled product sync unless a successful one
// finished within the configured minimum interval.
func (s *HTTPServer) handleCronSync(w http.ResponseWriter, r *http.Request) {
	secret := s.cfg.Cron.Secret
	got := r.Header.Get(s.cfg.Cron.Header)
	if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid cron secret")
		return
	}

	ctx := r.Context()
	last, err := s.deps.Catalog.LastSuccessfulSync(ctx)
	switch {
	case err == nil && last.CompletedAt != nil && s.now().Sub(*last.CompletedAt) < s.cfg.Cron.MinInterval:
		writeJSON(w, http.StatusOK, map[string]any{
			"skipped":   true,
			"last_sync": last.CompletedAt,
		})
		return
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		s.logger.Error().Err(err).Msg("failed to read last sync")
		writeError(w, http.StatusInternalServerError, "failed to read sync history")
		return
	}

	res, err := s.deps.Catalog.SyncProducts(ctx, models.SyncScheduled)
	if err != nil {
		s.logger.Error().Err(err).Int64("history_id", res.HistoryID).Msg("scheduled sync failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "sync failed", "result": res})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"skipped": false, "result": res})
}
