package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	mu      sync.Mutex
	reports []string
	tags    []map[string]string
}

func (r *recordingReporter) Report(_ context.Context, op string, _ error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, op)
	r.tags = append(r.tags, tags)
}

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func scriptedServer(t *testing.T, statuses []int, bodies []string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		w.WriteHeader(statuses[n])
		_, _ = w.Write([]byte(bodies[n]))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestRequestRetriesTransientFailures(t *testing.T) {
	srv, calls := scriptedServer(t,
		[]int{503, 503, 200},
		[]string{
			`{"code":503,"error":{"reason":"Unavailable","message":"down"}}`,
			`{"code":503,"error":{"reason":"Unavailable","message":"down"}}`,
			`{"code":200,"result":{"id":42,"name":"Tee"}}`,
		})

	sleeper := &sleepRecorder{}
	rep := &recordingReporter{}
	c := New("key", srv.URL, WithSleeper(sleeper.sleep), WithReporter(rep))

	var out SyncProduct
	err := c.Request(context.Background(), http.MethodGet, "/store/products/42", nil, &out)
	require.NoError(t, err)

	assert.Equal(t, int64(42), out.ID)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
	require.Len(t, rep.reports, 2)
	assert.Equal(t, "1", rep.tags[0]["attempt"])
	assert.Equal(t, "2", rep.tags[1]["attempt"])
	assert.Equal(t, "/store/products/42", rep.tags[1]["endpoint"])
	assert.Equal(t, "Unavailable", rep.tags[1]["reason"])
}

func TestRequestDoesNotRetryClientErrors(t *testing.T) {
	srv, calls := scriptedServer(t,
		[]int{404},
		[]string{`{"code":404,"result":"Not found","error":{"reason":"NotFound","message":"Product not found"}}`})

	sleeper := &sleepRecorder{}
	rep := &recordingReporter{}
	c := New("key", srv.URL, WithSleeper(sleeper.sleep), WithReporter(rep))

	err := c.Request(context.Background(), http.MethodGet, "/store/products/7", nil, nil)
	require.Error(t, err)

	rerr, ok := AsRemoteError(err)
	require.True(t, ok)
	assert.Equal(t, 404, rerr.Code)
	assert.Equal(t, "Product not found", rerr.Message)
	assert.False(t, rerr.Retryable())
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Empty(t, sleeper.delays)
	require.Len(t, rep.reports, 1)
	assert.Equal(t, "/store/products/7", rep.tags[0]["endpoint"])
}

func TestRequestGivesUpAfterMaxRetries(t *testing.T) {
	srv, calls := scriptedServer(t, []int{500}, []string{`{"code":500,"error":{"message":"boom"}}`})

	sleeper := &sleepRecorder{}
	rep := &recordingReporter{}
	c := New("key", srv.URL, WithSleeper(sleeper.sleep), WithReporter(rep),
		WithRetryPolicy(RetryPolicy{MaxRetries: 2, InitialDelay: time.Second, BackoffFactor: 3}))

	err := c.Request(context.Background(), http.MethodGet, "/orders/1", nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, sleeper.delays)
	require.Len(t, rep.reports, 3)
	assert.Equal(t, "3", rep.tags[2]["attempt"])
}

func TestRequestMissingAPIKey(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	rep := &recordingReporter{}
	c := New("  ", srv.URL, WithReporter(rep))

	err := c.Request(context.Background(), http.MethodGet, "/orders", nil, nil)
	rerr, ok := AsRemoteError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, rerr.Code)
	assert.Equal(t, ReasonMissingAPIKey, rerr.Reason)
	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.Len(t, rep.reports, 1)
}

func TestRequestParseFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		reason    string
		retryable bool
	}{
		{name: "garbage on success", status: 200, body: `<html>`, reason: ReasonJSONParse, retryable: false},
		{name: "garbage on 502", status: 502, body: `<html>bad gateway</html>`, reason: ReasonJSONParse, retryable: true},
		{name: "missing result", status: 200, body: `{"code":200}`, reason: ReasonMissingResult, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := scriptedServer(t, []int{tt.status}, []string{tt.body})
			c := New("key", srv.URL, WithSleeper((&sleepRecorder{}).sleep), WithRetryPolicy(RetryPolicy{MaxRetries: 0}))

			err := c.Request(context.Background(), http.MethodGet, "/store/products", nil, nil)
			rerr, ok := AsRemoteError(err)
			require.True(t, ok)
			assert.Equal(t, 500, rerr.Code)
			assert.Equal(t, tt.reason, rerr.Reason)
			assert.Equal(t, tt.retryable, rerr.Retryable())
		})
	}
}

func TestRequestTransportErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	sleeper := &sleepRecorder{}
	c := New("key", url, WithSleeper(sleeper.sleep), WithRetryPolicy(RetryPolicy{MaxRetries: 1, InitialDelay: time.Millisecond}))

	err := c.Request(context.Background(), http.MethodGet, "/orders", nil, nil)
	rerr, ok := AsRemoteError(err)
	require.True(t, ok)
	assert.True(t, rerr.Transport)
	assert.True(t, rerr.Retryable())
	assert.Len(t, sleeper.delays, 1)
}

func TestRequestSendsCredentialsAndBody(t *testing.T) {
	var gotAuth, gotStore, gotType string
	var gotBody OrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotStore = r.Header.Get("X-PF-Store-Id")
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		assert.Equal(t, "true", r.URL.Query().Get("confirm"))
		_, _ = w.Write([]byte(`{"code":200,"result":{"id":9001,"external_id":"ord-1","status":"pending","updated":1700000000}}`))
	}))
	defer srv.Close()

	c := New("secret", srv.URL, WithStoreID("77"))
	order, err := c.CreateOrder(context.Background(), OrderRequest{
		ExternalID: "ord-1",
		Items:      []OrderItemRequest{{SyncVariantID: 5, Quantity: 2, RetailPrice: decimal.RequireFromString("19.99")}},
	}, true)
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "77", gotStore)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "ord-1", gotBody.ExternalID)
	assert.True(t, gotBody.Items[0].RetailPrice.Equal(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(9001), order.ID)
}

func TestListSyncProductsPaginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("offset") {
		case "0":
			_, _ = w.Write([]byte(`{"code":200,"result":[{"id":1},{"id":2}],"paging":{"total":3,"offset":0,"limit":100}}`))
		default:
			_, _ = w.Write([]byte(`{"code":200,"result":[{"id":3}],"paging":{"total":3,"offset":2,"limit":100}}`))
		}
	}))
	defer srv.Close()

	products, err := New("key", srv.URL).ListSyncProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, int64(3), products[2].ID)
}

func TestStoreAndCatalogEndpoints(t *testing.T) {
	type call struct {
		method string
		uri    string
		body   string
	}
	var (
		mu    sync.Mutex
		calls []call
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := new(bytes.Buffer)
		_, _ = raw.ReadFrom(r.Body)
		mu.Lock()
		calls = append(calls, call{r.Method, r.URL.RequestURI(), raw.String()})
		mu.Unlock()

		switch {
		case r.URL.Path == "/store/products" && r.Method == http.MethodPost:
			_, _ = w.Write([]byte(`{"code":200,"result":{"id":77,"external_id":"tee-1","name":"Classic Tee"}}`))
		case r.URL.Path == "/store/products/77" && r.Method == http.MethodPut:
			_, _ = w.Write([]byte(`{"code":200,"result":{"id":77,"name":"Classic Tee v2"}}`))
		case r.URL.Path == "/store/products/77" && r.Method == http.MethodDelete:
			_, _ = w.Write([]byte(`{"code":200,"result":{}}`))
		case r.URL.Path == "/products":
			_, _ = w.Write([]byte(`{"code":200,"result":[{"id":71,"main_category_id":24,"title":"Unisex Staple T-Shirt","variant_count":2}]}`))
		case r.URL.Path == "/products/variant/4012":
			_, _ = w.Write([]byte(`{"code":200,"result":{"variant":{"id":4012,"product_id":71,"size":"M","color":"Black","price":"9.25","in_stock":true},"product":{"id":71,"title":"Unisex Staple T-Shirt"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":404,"error":{"reason":"NotFound","message":"no route"}}`))
		}
	}))
	defer srv.Close()

	c := New("key", srv.URL)
	ctx := context.Background()

	created, err := c.CreateSyncProduct(ctx, SyncProductRequest{SyncProduct: SyncProductInput{ExternalID: "tee-1", Name: "Classic Tee"}})
	require.NoError(t, err)
	assert.Equal(t, int64(77), created.ID)

	updated, err := c.UpdateSyncProduct(ctx, 77, SyncProductRequest{SyncProduct: SyncProductInput{Name: "Classic Tee v2"}})
	require.NoError(t, err)
	assert.Equal(t, "Classic Tee v2", updated.Name)

	require.NoError(t, c.DeleteSyncProduct(ctx, 77))

	products, err := c.ListCatalogProducts(ctx, 24)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, int64(24), products[0].MainCategoryID)

	variant, err := c.GetCatalogVariant(ctx, 4012)
	require.NoError(t, err)
	assert.Equal(t, "Black", variant.Variant.Color)
	assert.True(t, variant.Variant.Price.Equal(decimal.RequireFromString("9.25")))
	assert.Equal(t, int64(71), variant.Product.ID)

	_, err = c.GetCatalogVariant(ctx, 1)
	assert.True(t, IsNotFound(err))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 6)
	assert.Equal(t, http.MethodPost, calls[0].method)
	assert.Contains(t, calls[0].body, `"external_id":"tee-1"`)
	assert.Equal(t, http.MethodPut, calls[1].method)
	assert.Equal(t, "/store/products/77", calls[1].uri)
	assert.Equal(t, http.MethodDelete, calls[2].method)
	assert.Empty(t, calls[2].body)
	assert.Equal(t, "/products?category_id=24", calls[3].uri)
}

func TestCreateMockupTaskFailedJob(t *testing.T) {
	srv, _ := scriptedServer(t, []int{200}, []string{
		`{"code":200,"result":{"task_key":"gt-1","status":"failed","error":"Rate limit exceeded, try again after 30 seconds"}}`,
	})
	c := New("key", srv.URL)

	_, err := c.CreateMockupTask(context.Background(), 71, MockupTaskRequest{VariantIDs: []int64{4012}})
	require.Error(t, err)

	wait, ok := ParseThrottleHint(err)
	assert.True(t, ok)
	assert.Equal(t, 31*time.Second, wait)
}

func TestCreateMockupTaskExhaustedTransportThrottleIsFinal(t *testing.T) {
	srv, calls := scriptedServer(t, []int{429}, []string{`Too Many Requests`})
	sleeper := &sleepRecorder{}
	c := New("key", srv.URL, WithSleeper(sleeper.sleep))

	_, err := c.CreateMockupTask(context.Background(), 71, MockupTaskRequest{VariantIDs: []int64{4012}})
	require.Error(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(calls))

	rerr, ok := AsRemoteError(err)
	require.True(t, ok)
	assert.False(t, rerr.JobFailure())
	_, throttled := ParseThrottleHint(err)
	assert.False(t, throttled)
}

func TestRequestStopsOnCanceledContext(t *testing.T) {
	srv, calls := scriptedServer(t, []int{503}, []string{`{"code":503}`})
	c := New("key", srv.URL, WithSleeper(func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}))

	err := c.Request(context.Background(), http.MethodGet, "/orders", nil, nil)
	rerr, ok := AsRemoteError(err)
	require.True(t, ok)
	assert.Equal(t, ReasonCanceled, rerr.Reason)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestEndpointLabel(t *testing.T) {
	assert.Equal(t, "/store/products/:id", endpointLabel("/store/products/123"))
	assert.Equal(t, "/orders/:id", endpointLabel("/orders/@ord-1"))
	assert.Equal(t, "/mockup-generator/task", endpointLabel("/mockup-generator/task?task_key=x"))
	assert.Equal(t, "/store/products", endpointLabel("/store/products?offset=0&limit=100"))
}
