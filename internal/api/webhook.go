package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"atrocitee/internal/domain"
	"atrocitee/internal/metrics"
	"atrocitee/internal/models"
	"atrocitee/internal/observability"
	"atrocitee/internal/provider"
)

const (
	maxWebhookBody      = 1 << 20
	orderEventPrefix    = "order_"
	webhookDedupePrefix = "webhook:"
	webhookSource       = "webhook"
)

// VerifySignature checks a hex encoded HMAC-SHA256 of body.
func VerifySignature(secret string, body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the signature a provider would send for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *HTTPServer) handleWebhookHandshake(w http.ResponseWriter, r *http.Request) {
	expected := s.cfg.Webhook.VerificationToken
	token := r.URL.Query().Get("token")
	if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid verification token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhook authenticates before touching the payload. Nothing is stored
// for a delivery with a bad signature.
func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Webhook.Enabled {
		writeError(w, http.StatusNotFound, "webhooks are disabled")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	if !VerifySignature(s.cfg.Webhook.Secret, body, r.Header.Get(s.cfg.Webhook.SignatureHeader)) {
		metrics.IncWebhook("unknown", "unauthorized")
		s.logger.Warn().Str("remote", r.RemoteAddr).Msg("webhook signature rejected")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var event provider.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		metrics.IncWebhook("unknown", "malformed")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !strings.HasPrefix(event.Type, orderEventPrefix) {
		metrics.IncWebhook(event.Type, "ignored")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	ctx := r.Context()
	key := webhookKey(body)
	seen, err := s.deps.Seen.SeenBefore(ctx, key, s.cfg.Webhook.DedupTTL)
	if err != nil {
		s.logger.Warn().Err(err).Str("event_type", event.Type).Msg("webhook dedup unavailable")
	}
	if seen {
		metrics.IncWebhook(event.Type, "duplicate")
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	entry := &models.WebhookLog{
		EventType:      event.Type,
		Payload:        string(body),
		SignatureValid: true,
		ReceivedAt:     s.now(),
	}
	if err := s.deps.WebhookLogs.InsertWebhookLog(ctx, entry); err != nil {
		s.reporter.Report(ctx, "webhook.log", err, observability.Tags("event_type", event.Type))
		s.releaseDelivery(ctx, key, event.Type)
		writeError(w, http.StatusInternalServerError, "failed to record webhook")
		return
	}

	status, outcome, procErr := s.processOrderEvent(ctx, &event)
	errText := ""
	if procErr != nil {
		errText = observability.RedactMessage(procErr.Error())
	}
	if err := s.deps.WebhookLogs.MarkWebhookProcessed(ctx, entry.ID, errText); err != nil {
		s.logger.Error().Err(err).Int64("webhook_id", entry.ID).Msg("failed to mark webhook processed")
	}

	metrics.IncWebhook(event.Type, outcome)
	if procErr != nil && status >= http.StatusInternalServerError {
		s.releaseDelivery(ctx, key, event.Type)
		writeError(w, status, "failed to process webhook")
		return
	}
	writeJSON(w, status, map[string]string{"status": outcome})
}

// releaseDelivery lets the provider's redelivery of a failed webhook through.
func (s *HTTPServer) releaseDelivery(ctx context.Context, key, eventType string) {
	if err := s.deps.Seen.Forget(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to release webhook dedup key")
	}
}

// processOrderEvent returns the response code, a metric outcome and the
// error to record on the log row.
func (s *HTTPServer) processOrderEvent(ctx context.Context, event *provider.WebhookEvent) (int, string, error) {
	if event.Data.Order == nil {
		return http.StatusOK, "no_order", errors.New("payload has no order")
	}

	order, err := s.deps.Orders.ApplyRemote(ctx, event.Data.Order, webhookSource)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.logger.Info().Str("external_id", event.Data.Order.ExternalID).Msg("webhook for unknown order")
		return http.StatusOK, "unknown_order", err
	case err != nil:
		s.reporter.Report(ctx, "webhook.order", err, observability.Tags(
			"event_type", event.Type,
			"external_id", event.Data.Order.ExternalID,
		))
		return http.StatusInternalServerError, "failed", err
	}

	s.logger.Info().
		Str("event_type", event.Type).
		Str("order_id", order.ID).
		Str("status", string(order.Status)).
		Msg("order updated from webhook")
	return http.StatusOK, "processed", nil
}

func webhookKey(body []byte) string {
	sum := sha256.Sum256(body)
	return webhookDedupePrefix + hex.EncodeToString(sum[:])
}
