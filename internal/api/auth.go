package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"atrocitee/internal/config"
)

const (
	permMockups = "mockups"
	permSync    = "sync"
	permChanges = "changes"
	permOrders  = "orders"
	permCatalog = "catalog"

	clientKeyUnknown = "unknown"
	reviewerDefault  = "admin"
)

var (
	errMissingAPIKey     = errors.New("missing api key header")
	errInvalidAPIKey     = errors.New("invalid api key")
	errPermissionDenied  = errors.New("permission denied")
	errRateLimitExceeded = errors.New("rate limit exceeded")
)

type clientContextKey struct{}

// HTTPAuth provides API-key auth and per-key rate limiting for admin routes.
type HTTPAuth struct {
	cfg     config.APIConfig
	header  string
	clients map[string]config.APIClientKey
	limiter *keyedLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}

	header := strings.TrimSpace(cfg.Auth.HeaderAPIKey)
	if header == "" {
		header = "x-api-key"
	}

	return &HTTPAuth{
		cfg:     cfg,
		header:  header,
		clients: m,
		limiter: newKeyedLimiter(cfg.RateLimit),
	}
}

// Middleware requires a known API key holding the permission for the route
// group, then applies that key's token bucket.
func (a *HTTPAuth) Middleware(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.cfg.Auth.Enabled {
				client, err := a.authenticate(r)
				if err != nil {
					writeError(w, http.StatusUnauthorized, err.Error())
					return
				}
				if !hasPermission(client, permission) {
					writeError(w, http.StatusForbidden, errPermissionDenied.Error())
					return
				}
				r = r.WithContext(context.WithValue(r.Context(), clientContextKey{}, client))
			}

			if a.limiter.enabled() && !a.limiter.allow(a.clientKey(r)) {
				writeError(w, http.StatusTooManyRequests, errRateLimitExceeded.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (a *HTTPAuth) authenticate(r *http.Request) (config.APIClientKey, error) {
	apiKey := strings.TrimSpace(r.Header.Get(a.header))
	if apiKey == "" {
		return config.APIClientKey{}, errMissingAPIKey
	}

	for key, client := range a.clients {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			return client, nil
		}
	}
	return config.APIClientKey{}, errInvalidAPIKey
}

// hasPermission treats an empty permission list as allow-all.
func hasPermission(client config.APIClientKey, required string) bool {
	if required == "" || len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.header)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

// reviewer names the authenticated client for audit columns.
func reviewer(ctx context.Context) string {
	if client, ok := ctx.Value(clientContextKey{}).(config.APIClientKey); ok && client.Name != "" {
		return client.Name
	}
	return reviewerDefault
}
