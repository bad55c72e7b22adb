package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"atrocitee/internal/catalog"
	"atrocitee/internal/config"
	"atrocitee/internal/database"
	"atrocitee/internal/domain"
	"atrocitee/internal/models"
	"atrocitee/internal/orders"
	"atrocitee/internal/provider"
	"atrocitee/internal/repository"
	"atrocitee/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret     = "whsec_test"
	testCronSecret = "cron-secret"
	adminKey       = "admin-key"
	ordersOnlyKey  = "orders-key"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fakeOrders struct {
	mu        sync.Mutex
	known     map[string]string
	applied   []*provider.RemoteOrder
	applyErr  error
	submitErr error
}

func (f *fakeOrders) ApplyRemote(_ context.Context, remote *provider.RemoteOrder, _ string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	id, ok := f.known[remote.ExternalID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", remote.ExternalID, domain.ErrNotFound)
	}
	f.applied = append(f.applied, remote)
	return &models.Order{ID: id, ExternalID: remote.ExternalID, Status: orders.MapStatus(remote.Status)}, nil
}

func (f *fakeOrders) Submit(_ context.Context, orderID string) (*models.Order, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &models.Order{ID: orderID, SubmissionStatus: models.SubmissionDone}, nil
}

func (f *fakeOrders) RefreshStatus(_ context.Context, orderID string) (*models.Order, error) {
	return nil, fmt.Errorf("order %s: %w", orderID, orders.ErrNotSubmitted)
}

func (f *fakeOrders) appliedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.applied)
}

type fakeCatalog struct {
	last      *models.SyncHistory
	lastErr   error
	syncCalls []models.SyncType
	reviews   []string
}

func (f *fakeCatalog) SyncProducts(_ context.Context, syncType models.SyncType) (catalog.SyncResult, error) {
	f.syncCalls = append(f.syncCalls, syncType)
	return catalog.SyncResult{HistoryID: 9, Status: models.SyncSuccess, Synced: 2}, nil
}

func (f *fakeCatalog) SyncCategories(context.Context, models.SyncType) (catalog.CategoryResult, error) {
	return catalog.CategoryResult{HistoryID: 10, Status: models.SyncSuccess, Added: 3}, nil
}

func (f *fakeCatalog) LastSuccessfulSync(context.Context) (*models.SyncHistory, error) {
	return f.last, f.lastErr
}

func (f *fakeCatalog) ListChanges(_ context.Context, status models.ChangeStatus, limit int) ([]*models.ProductChange, error) {
	return []*models.ProductChange{{ID: 1, Status: status, FieldName: "retail_price"}}, nil
}

func (f *fakeCatalog) Approve(_ context.Context, id int64, reviewer string) (*models.ProductChange, error) {
	return f.review(id, reviewer, models.ChangeApproved)
}

func (f *fakeCatalog) Reject(_ context.Context, id int64, reviewer string) (*models.ProductChange, error) {
	return f.review(id, reviewer, models.ChangeRejected)
}

func (f *fakeCatalog) Apply(_ context.Context, id int64, reviewer string) (*models.ProductChange, error) {
	if id == 404 {
		return nil, fmt.Errorf("change %d: %w", id, domain.ErrNotFound)
	}
	if id == 409 {
		return nil, fmt.Errorf("%w: change %d is rejected", domain.ErrInvalidTransition, id)
	}
	return f.review(id, reviewer, models.ChangeApplied)
}

func (f *fakeCatalog) review(id int64, reviewer string, status models.ChangeStatus) (*models.ProductChange, error) {
	f.reviews = append(f.reviews, reviewer)
	return &models.ProductChange{ID: id, Status: status, ReviewedBy: &reviewer}, nil
}

type fakeQueue struct {
	tasks map[uuid.UUID]*models.MockupTask
}

func (f *fakeQueue) Enqueue(_ context.Context, req worker.MockupRequest) (*models.MockupTask, error) {
	if req.VariantID == 0 {
		return nil, fmt.Errorf("%w: variant_id is required", worker.ErrInvalidRequest)
	}
	t := &models.MockupTask{ID: uuid.New(), VariantID: req.VariantID, View: models.MockupView(req.View), Status: models.TaskPending}
	f.tasks[t.ID] = t
	return t, nil
}

func (f *fakeQueue) Get(id uuid.UUID) (*models.MockupTask, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, worker.ErrTaskNotFound
	}
	return t, nil
}

func (f *fakeQueue) List() []*models.MockupTask {
	out := make([]*models.MockupTask, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out
}

func (f *fakeQueue) Remove(_ context.Context, id uuid.UUID) error {
	t, ok := f.tasks[id]
	if !ok {
		return worker.ErrTaskNotFound
	}
	if t.Status != models.TaskPending {
		return fmt.Errorf("%w: task is %s", domain.ErrInvalidTransition, t.Status)
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeQueue) Refresh(_ context.Context, id uuid.UUID) (*models.MockupTask, error) {
	return f.Get(id)
}

type testEnv struct {
	server  *HTTPServer
	handler http.Handler
	db      *database.DB
	orders  *fakeOrders
	catalog *fakeCatalog
	queue   *fakeQueue
}

func newTestEnv(t *testing.T, mutate func(cfg *config.Config)) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
		API: config.APIConfig{
			Enabled: true,
			Auth: config.APIAuthConfig{
				Enabled:      true,
				HeaderAPIKey: "x-api-key",
				APIKeys: []config.APIClientKey{
					{Key: adminKey, Name: "ops"},
					{Key: ordersOnlyKey, Name: "checkout", Permissions: []string{permOrders}},
				},
			},
		},
		Webhook: config.WebhookConfig{
			Enabled:           true,
			Secret:            testSecret,
			SignatureHeader:   "X-Webhook-Signature",
			VerificationToken: "handshake",
			DedupTTL:          time.Hour,
		},
		Cron: config.CronConfig{Secret: testCronSecret, Header: "X-Cron-Secret", MinInterval: 12 * time.Hour},
	}
	if mutate != nil {
		mutate(cfg)
	}

	env := &testEnv{
		db:      db,
		orders:  &fakeOrders{known: map[string]string{"ord-1001-abc": "ord-1001"}},
		catalog: &fakeCatalog{lastErr: fmt.Errorf("no sync: %w", domain.ErrNotFound)},
		queue:   &fakeQueue{tasks: map[uuid.UUID]*models.MockupTask{}},
	}
	env.server = NewHTTPServer(cfg, Deps{
		Queue:       env.queue,
		Catalog:     env.catalog,
		Products:    db,
		Orders:      env.orders,
		WebhookLogs: db,
		Seen:        repository.NewMemoryIdempotencyStore(),
		Health:      db,
		Logger:      &logger,
	})
	env.server.now = func() time.Time { return testNow }
	env.handler = env.server.Routes()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func orderEvent(t *testing.T, eventType, externalID, status string) []byte {
	t.Helper()
	body, err := json.Marshal(provider.WebhookEvent{
		Type:    eventType,
		Created: testNow.Unix(),
		Data: provider.WebhookData{Order: &provider.RemoteOrder{
			ID:         55001,
			ExternalID: externalID,
			Status:     status,
			Updated:    testNow.Unix(),
		}},
	})
	require.NoError(t, err)
	return body
}

func signed(body []byte) map[string]string {
	return map[string]string{"X-Webhook-Signature": Sign(testSecret, body)}
}

func webhookLogCount(t *testing.T, db *database.DB) int {
	t.Helper()
	n, err := db.CountWebhookLogs(context.Background())
	require.NoError(t, err)
	return n
}

func TestWebhookBadSignatureWritesNothing(t *testing.T) {
	env := newTestEnv(t, nil)
	body := orderEvent(t, "order_updated", "ord-1001-abc", "fulfilled")

	cases := map[string]map[string]string{
		"missing":    nil,
		"mismatch":   {"X-Webhook-Signature": Sign("other-secret", body)},
		"not hex":    {"X-Webhook-Signature": "zz-not-hex"},
		"wrong body": {"X-Webhook-Signature": Sign(testSecret, []byte(`{"type":"order_created"}`))},
	}
	for name, headers := range cases {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/webhooks/provider", body, headers)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	assert.Equal(t, 0, webhookLogCount(t, env.db))
	assert.Equal(t, 0, env.orders.appliedCount())
}

func TestWebhookIgnoresNonOrderEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	body := []byte(`{"type":"package_shipped","data":{"shipment":{"id":1,"tracking_number":"1Z"}}}`)

	rec := env.do(t, http.MethodPost, "/webhooks/provider", body, signed(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored", decodeBody(t, rec)["status"])
	assert.Equal(t, 0, webhookLogCount(t, env.db))
	assert.Equal(t, 0, env.orders.appliedCount())
}

func TestWebhookOrderEventIsProcessedOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	body := orderEvent(t, "order_updated", "ord-1001-abc", "fulfilled")

	rec := env.do(t, http.MethodPost, "/webhooks/provider", body, signed(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "processed", decodeBody(t, rec)["status"])
	assert.Equal(t, 1, env.orders.appliedCount())

	logs, err := env.db.ListWebhookLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "order_updated", logs[0].EventType)
	assert.True(t, logs[0].SignatureValid)
	assert.True(t, logs[0].Processed)
	assert.Empty(t, logs[0].Error)

	rec = env.do(t, http.MethodPost, "/webhooks/provider", body, signed(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "duplicate", decodeBody(t, rec)["status"])
	assert.Equal(t, 1, env.orders.appliedCount())
	assert.Equal(t, 1, webhookLogCount(t, env.db))
}

func TestWebhookUnknownOrderIsLogged(t *testing.T) {
	env := newTestEnv(t, nil)
	body := orderEvent(t, "order_failed", "someone-else", "failed")

	rec := env.do(t, http.MethodPost, "/webhooks/provider", body, signed(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unknown_order", decodeBody(t, rec)["status"])

	logs, err := env.db.ListWebhookLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Processed)
	assert.Contains(t, logs[0].Error, "not found")
}

func TestWebhookProcessingFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.orders.applyErr = fmt.Errorf("database is locked")
	body := orderEvent(t, "order_updated", "ord-1001-abc", "inprocess")

	rec := env.do(t, http.MethodPost, "/webhooks/provider", body, signed(body))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, webhookLogCount(t, env.db))
	assert.Equal(t, 0, env.orders.appliedCount())

	// The provider redelivers after a 5xx; the retry must be processed.
	env.orders.mu.Lock()
	env.orders.applyErr = nil
	env.orders.mu.Unlock()

	rec = env.do(t, http.MethodPost, "/webhooks/provider", body, signed(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "processed", decodeBody(t, rec)["status"])
	assert.Equal(t, 1, env.orders.appliedCount())
	assert.Equal(t, 2, webhookLogCount(t, env.db))

	rec = env.do(t, http.MethodPost, "/webhooks/provider", body, signed(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "duplicate", decodeBody(t, rec)["status"])
	assert.Equal(t, 1, env.orders.appliedCount())
}

func TestWebhookMalformedAndDisabled(t *testing.T) {
	env := newTestEnv(t, nil)
	body := []byte(`{"type":`)
	rec := env.do(t, http.MethodPost, "/webhooks/provider", body, signed(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, webhookLogCount(t, env.db))

	disabled := newTestEnv(t, func(cfg *config.Config) { cfg.Webhook.Enabled = false })
	body = orderEvent(t, "order_updated", "ord-1001-abc", "fulfilled")
	rec = disabled.do(t, http.MethodPost, "/webhooks/provider", body, signed(body))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookHandshake(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/webhooks/provider?token=handshake", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/webhooks/provider?token=nope", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	noToken := newTestEnv(t, func(cfg *config.Config) { cfg.Webhook.VerificationToken = "" })
	rec = noToken.do(t, http.MethodGet, "/webhooks/provider?token=", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"type":"order_updated"}`)
	sig := Sign(testSecret, body)

	assert.True(t, VerifySignature(testSecret, body, sig))
	assert.True(t, VerifySignature(testSecret, body, "sha256="+sig))
	assert.False(t, VerifySignature(testSecret, body, ""))
	assert.False(t, VerifySignature("", body, sig))
	assert.False(t, VerifySignature(testSecret, append(body, ' '), sig))
}

func TestCronSync(t *testing.T) {
	cron := map[string]string{"X-Cron-Secret": testCronSecret}

	t.Run("bad secret", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(t, http.MethodPost, "/cron/sync", nil, map[string]string{"X-Cron-Secret": "guess"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, env.catalog.syncCalls)
	})

	t.Run("first run", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(t, http.MethodPost, "/cron/sync", nil, cron)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, decodeBody(t, rec)["skipped"])
		assert.Equal(t, []models.SyncType{models.SyncScheduled}, env.catalog.syncCalls)
	})

	t.Run("recent sync skips", func(t *testing.T) {
		env := newTestEnv(t, nil)
		done := testNow.Add(-2 * time.Hour)
		env.catalog.last, env.catalog.lastErr = &models.SyncHistory{ID: 4, Status: models.SyncSuccess, CompletedAt: &done}, nil

		rec := env.do(t, http.MethodPost, "/cron/sync", nil, cron)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["skipped"])
		assert.Empty(t, env.catalog.syncCalls)
	})

	t.Run("stale sync runs", func(t *testing.T) {
		env := newTestEnv(t, nil)
		done := testNow.Add(-13 * time.Hour)
		env.catalog.last, env.catalog.lastErr = &models.SyncHistory{ID: 4, Status: models.SyncPartial, CompletedAt: &done}, nil

		rec := env.do(t, http.MethodPost, "/cron/sync", nil, cron)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, env.catalog.syncCalls, 1)
	})
}

func TestAdminAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/mockups", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/mockups", nil, map[string]string{"x-api-key": "bogus"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/mockups", nil, map[string]string{"x-api-key": ordersOnlyKey})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/orders/ord-1001/submit", nil, map[string]string{"x-api-key": ordersOnlyKey})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/mockups", nil, map[string]string{"x-api-key": adminKey})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.API.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 2}
	})
	headers := map[string]string{"x-api-key": adminKey}

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/mockups", nil, headers).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/mockups", nil, headers).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodGet, "/api/v1/mockups", nil, headers).Code)

	other := map[string]string{"x-api-key": ordersOnlyKey}
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/orders/ord-1/submit", nil, other).Code)
}

func TestMockupEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	headers := map[string]string{"x-api-key": adminKey}

	rec := env.do(t, http.MethodPost, "/api/v1/mockups", []byte(`{"variant_id":7,"provider_product_id":70,"provider_variant_id":700,"view":"back"}`), headers)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var task models.MockupTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, int64(7), task.VariantID)

	rec = env.do(t, http.MethodPost, "/api/v1/mockups", []byte(`{"view":"front"}`), headers)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/mockups", []byte(`{"variant":7}`), headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/mockups/"+task.ID.String(), nil, headers)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/mockups/not-a-uuid", nil, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/mockups/"+uuid.NewString(), nil, headers)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.queue.tasks[task.ID].Status = models.TaskProcessing
	rec = env.do(t, http.MethodDelete, "/api/v1/mockups/"+task.ID.String(), nil, headers)
	assert.Equal(t, http.StatusConflict, rec.Code)

	env.queue.tasks[task.ID].Status = models.TaskPending
	rec = env.do(t, http.MethodDelete, "/api/v1/mockups/"+task.ID.String(), nil, headers)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, env.queue.tasks)
}

func TestChangeReviewEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	headers := map[string]string{"x-api-key": adminKey}

	rec := env.do(t, http.MethodGet, "/api/v1/changes?status=approved&limit=5", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/changes?limit=-1", nil, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/changes/12/approve", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "approved", decodeBody(t, rec)["status"])
	assert.Equal(t, []string{"ops"}, env.catalog.reviews)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/v1/changes/404/apply", nil, headers).Code)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/v1/changes/409/apply", nil, headers).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/changes/abc/reject", nil, headers).Code)
}

func TestProductEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	headers := map[string]string{"x-api-key": adminKey}

	p := &models.Product{ProviderProductID: 71, Name: "Classic Tee", Slug: "classic-tee", Currency: "USD"}
	require.NoError(t, env.db.UpsertProduct(ctx, p))
	require.NoError(t, env.db.UpsertVariant(ctx, &models.Variant{
		ProductID:         p.ID,
		ProviderVariantID: 4012,
		Name:              "Classic Tee / Black / M",
		Color:             "Black",
		Size:              "M",
		Currency:          "USD",
		Available:         true,
	}))

	rec := env.do(t, http.MethodGet, "/api/v1/products", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	products, ok := decodeBody(t, rec)["products"].([]any)
	require.True(t, ok)
	assert.Len(t, products, 1)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/products/%d", p.ID), nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "classic-tee", body["product"].(map[string]any)["slug"])
	variants, ok := body["variants"].([]any)
	require.True(t, ok)
	require.Len(t, variants, 1)
	assert.Equal(t, "Black", variants[0].(map[string]any)["color"])

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/products/9999", nil, headers).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/products/abc", nil, headers).Code)
	assert.Equal(t, http.StatusForbidden,
		env.do(t, http.MethodGet, "/api/v1/products", nil, map[string]string{"x-api-key": ordersOnlyKey}).Code)
}

func TestSyncEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	headers := map[string]string{"x-api-key": adminKey}

	rec := env.do(t, http.MethodPost, "/api/v1/sync/products", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []models.SyncType{models.SyncFull}, env.catalog.syncCalls)

	rec = env.do(t, http.MethodPost, "/api/v1/sync/categories", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), decodeBody(t, rec)["added"])
}

func TestOrderEndpointErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	headers := map[string]string{"x-api-key": adminKey}

	env.orders.submitErr = fmt.Errorf("submit order ord-1: %w", &provider.RemoteError{Code: 400, Message: "Invalid recipient"})
	rec := env.do(t, http.MethodPost, "/api/v1/orders/ord-1/submit", nil, headers)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(400), body["provider"])
	assert.Equal(t, false, body["retryable"])

	env.orders.submitErr = fmt.Errorf("%w: order ord-1 is already submitted", domain.ErrInvalidTransition)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/v1/orders/ord-1/submit", nil, headers).Code)

	env.orders.submitErr = fmt.Errorf("order ord-1: %w", orders.ErrEmptyOrder)
	assert.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodPost, "/api/v1/orders/ord-1/submit", nil, headers).Code)

	rec = env.do(t, http.MethodPost, "/api/v1/orders/ord-1/refresh", nil, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", nil, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/readyz", nil, nil).Code)

	require.NoError(t, env.db.Close())
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodGet, "/readyz", nil, nil).Code)
}
