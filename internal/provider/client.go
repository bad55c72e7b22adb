// Package provider talks to the print-on-demand fulfillment API. Every call
// goes through Client.Request, which authenticates, retries transient
// failures with exponential backoff and normalises errors into RemoteError.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"atrocitee/internal/config"
	"atrocitee/internal/metrics"
	"atrocitee/internal/observability"
	"atrocitee/internal/ratelimit"

	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL  = "https://api.printful.com"
	maxResponseSize = 10 * 1024 * 1024
	defaultTimeout  = 30 * time.Second
)

// Client is safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	storeID    string
	httpClient *http.Client
	retry      RetryPolicy
	limiter    *ratelimit.Limiter
	reporter   observability.Reporter
	logger     zerolog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithLimiter gates every attempt on a general request budget.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

func WithReporter(r observability.Reporter) Option {
	return func(c *Client) { c.reporter = observability.OrNop(r) }
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.With().Str("component", "provider").Logger()
		}
	}
}

func WithStoreID(id string) Option {
	return func(c *Client) { c.storeID = id }
}

// WithSleeper replaces the backoff sleep. Tests use it to skip real waits.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

func New(apiKey, baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		retry:      DefaultRetryPolicy(),
		reporter:   observability.Nop{},
		logger:     zerolog.Nop(),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a client with the configured backoff and general limiter.
func NewFromConfig(cfg config.ProviderConfig, logger *zerolog.Logger, reporter observability.Reporter) *Client {
	opts := []Option{
		WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		WithRetryPolicy(RetryPolicy{
			MaxRetries:    cfg.MaxRetries,
			InitialDelay:  cfg.BaseDelay,
			BackoffFactor: cfg.BackoffFactor,
		}),
		WithStoreID(cfg.StoreID),
		WithLogger(logger),
		WithReporter(reporter),
	}
	if cfg.RateLimit.Calls > 0 {
		opts = append(opts, WithLimiter(ratelimit.New(cfg.RateLimit.Calls, cfg.RateLimit.Window)))
	}
	return New(cfg.APIKey, cfg.BaseURL, opts...)
}

type envelope struct {
	Code   int             `json:"code"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Paging *Paging `json:"paging,omitempty"`
}

// Paging accompanies list responses.
type Paging struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// Request performs one logical call, retrying retryable failures, and
// decodes the envelope's result into out when out is non-nil.
func (c *Client) Request(ctx context.Context, method, endpoint string, body, out any) error {
	_, err := c.request(ctx, method, endpoint, body, out)
	return err
}

func (c *Client) request(ctx context.Context, method, endpoint string, body, out any) (*Paging, error) {
	if c.apiKey == "" {
		return nil, c.fail(ctx, method, endpoint, &RemoteError{
			Code:     http.StatusUnauthorized,
			Reason:   ReasonMissingAPIKey,
			Message:  "provider API key is not configured",
			Endpoint: endpoint,
		})
	}

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, endpoint, err)
		}
		payload = data
	}

	label := endpointLabel(endpoint)
	for attempt := 0; ; attempt++ {
		env, rerr := c.attempt(ctx, method, endpoint, label, payload)
		if rerr == nil {
			if out != nil {
				if err := json.Unmarshal(env.Result, out); err != nil {
					return nil, c.fail(ctx, method, endpoint, &RemoteError{
						Code:       http.StatusInternalServerError,
						Reason:     ReasonJSONParse,
						Message:    fmt.Sprintf("decode result: %v", err),
						Endpoint:   endpoint,
						HTTPStatus: http.StatusOK,
						Err:        err,
					})
				}
			}
			return env.Paging, nil
		}

		c.report(ctx, method, endpoint, rerr, attempt+1)
		if !rerr.Retryable() || attempt >= c.retry.MaxRetries {
			return nil, rerr
		}

		delay := c.retry.NextDelay(attempt + 1)
		metrics.IncProviderRetry(label)
		c.logger.Warn().
			Str("method", method).
			Str("endpoint", endpoint).
			Int("code", rerr.Code).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("retrying provider request")

		if err := c.sleep(ctx, delay); err != nil {
			return nil, c.fail(ctx, method, endpoint, canceled(endpoint, err))
		}
	}
}

func (c *Client) attempt(ctx context.Context, method, endpoint, label string, payload []byte) (*envelope, *RemoteError) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, canceled(endpoint, err)
		}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, &RemoteError{Code: http.StatusBadRequest, Reason: "invalid_request", Message: err.Error(), Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.storeID != "" {
		req.Header.Set("X-PF-Store-Id", c.storeID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveProviderRequest(label, "transport_error", time.Since(start).Seconds())
		if ctx.Err() != nil {
			return nil, canceled(endpoint, ctx.Err())
		}
		return nil, &RemoteError{
			Code:      http.StatusServiceUnavailable,
			Reason:    ReasonNetwork,
			Message:   err.Error(),
			Endpoint:  endpoint,
			Transport: true,
			Err:       err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		metrics.ObserveProviderRequest(label, "transport_error", time.Since(start).Seconds())
		return nil, &RemoteError{
			Code:       http.StatusServiceUnavailable,
			Reason:     ReasonNetwork,
			Message:    fmt.Sprintf("read body: %v", err),
			Endpoint:   endpoint,
			HTTPStatus: resp.StatusCode,
			Transport:  true,
			Err:        err,
		}
	}

	env, rerr := parseEnvelope(endpoint, resp.StatusCode, raw)
	outcome := "success"
	if rerr != nil {
		outcome = "error_" + strconv.Itoa(rerr.Code)
	}
	metrics.ObserveProviderRequest(label, outcome, time.Since(start).Seconds())
	return env, rerr
}

func parseEnvelope(endpoint string, status int, raw []byte) (*envelope, *RemoteError) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &RemoteError{
			Code:       http.StatusInternalServerError,
			Reason:     ReasonJSONParse,
			Message:    fmt.Sprintf("decode response: %v", err),
			Endpoint:   endpoint,
			HTTPStatus: status,
			Err:        err,
		}
	}

	if env.Error != nil || status >= 400 || env.Code >= 400 {
		code := env.Code
		if code == 0 || code < 400 {
			code = status
		}
		if code < 400 {
			code = http.StatusInternalServerError
		}
		rerr := &RemoteError{Code: code, Endpoint: endpoint, HTTPStatus: status}
		if env.Error != nil {
			rerr.Reason = env.Error.Reason
			rerr.Message = env.Error.Message
		}
		if rerr.Message == "" {
			var s string
			if json.Unmarshal(env.Result, &s) == nil {
				rerr.Message = s
			}
		}
		if rerr.Message == "" {
			rerr.Message = http.StatusText(code)
		}
		return nil, rerr
	}

	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil, &RemoteError{
			Code:       http.StatusInternalServerError,
			Reason:     ReasonMissingResult,
			Message:    "response carried no result",
			Endpoint:   endpoint,
			HTTPStatus: status,
		}
	}
	return &env, nil
}

func (c *Client) fail(ctx context.Context, method, endpoint string, rerr *RemoteError) error {
	c.report(ctx, method, endpoint, rerr, 0)
	return rerr
}

// report sends every constructed RemoteError to the reporter, including the
// ones a later attempt recovers from. attempt is 1-based; 0 omits the tag.
func (c *Client) report(ctx context.Context, method, endpoint string, rerr *RemoteError, attempt int) {
	var attemptTag string
	if attempt > 0 {
		attemptTag = strconv.Itoa(attempt)
	}
	c.reporter.Report(ctx, "provider.request", rerr, observability.Tags(
		"method", method,
		"endpoint", endpoint,
		"code", strconv.Itoa(rerr.Code),
		"reason", rerr.Reason,
		"attempt", attemptTag,
	))
}

func canceled(endpoint string, err error) *RemoteError {
	code := 499
	if errors.Is(err, context.DeadlineExceeded) {
		code = http.StatusGatewayTimeout
	}
	return &RemoteError{Code: code, Reason: ReasonCanceled, Message: err.Error(), Endpoint: endpoint, Err: err}
}

var numericSegment = regexp.MustCompile(`/(@?[0-9]+|@[^/]+)(/|$)`)

// endpointLabel strips query strings and ids so metric labels stay bounded.
func endpointLabel(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	for {
		next := numericSegment.ReplaceAllString(endpoint, "/:id$2")
		if next == endpoint {
			return endpoint
		}
		endpoint = next
	}
}
