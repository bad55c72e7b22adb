package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"atrocitee/internal/catalog"
	"atrocitee/internal/config"
	"atrocitee/internal/domain"
	"atrocitee/internal/metrics"
	"atrocitee/internal/models"
	"atrocitee/internal/observability"
	"atrocitee/internal/provider"
	"atrocitee/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MockupQueue is the part of worker.Queue the admin API drives.
type MockupQueue interface {
	Enqueue(ctx context.Context, req worker.MockupRequest) (*models.MockupTask, error)
	Get(id uuid.UUID) (*models.MockupTask, error)
	List() []*models.MockupTask
	Remove(ctx context.Context, id uuid.UUID) error
	Refresh(ctx context.Context, id uuid.UUID) (*models.MockupTask, error)
}

type CatalogSync interface {
	SyncProducts(ctx context.Context, syncType models.SyncType) (catalog.SyncResult, error)
	SyncCategories(ctx context.Context, syncType models.SyncType) (catalog.CategoryResult, error)
	LastSuccessfulSync(ctx context.Context) (*models.SyncHistory, error)
	ListChanges(ctx context.Context, status models.ChangeStatus, limit int) ([]*models.ProductChange, error)
	Approve(ctx context.Context, id int64, reviewer string) (*models.ProductChange, error)
	Reject(ctx context.Context, id int64, reviewer string) (*models.ProductChange, error)
	Apply(ctx context.Context, id int64, reviewer string) (*models.ProductChange, error)
}

type OrderService interface {
	Submit(ctx context.Context, orderID string) (*models.Order, error)
	RefreshStatus(ctx context.Context, orderID string) (*models.Order, error)
	ApplyRemote(ctx context.Context, remote *provider.RemoteOrder, source string) (*models.Order, error)
}

// ProductReader serves the local catalog mirror.
type ProductReader interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context) ([]*models.Product, error)
	ListVariants(ctx context.Context, productID int64) ([]*models.Variant, error)
}

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Deps struct {
	Queue       MockupQueue
	Catalog     CatalogSync
	Products    ProductReader
	Orders      OrderService
	WebhookLogs domain.WebhookLogRepository
	Seen        domain.IdempotencyStore
	Health      HealthChecker
	Reporter    observability.Reporter
	Logger      *zerolog.Logger
}

// HTTPServer serves provider webhooks, the scheduled sync trigger and the
// admin API.
type HTTPServer struct {
	cfg      *config.Config
	deps     Deps
	reporter observability.Reporter
	logger   zerolog.Logger
	auth     *HTTPAuth
	now      func() time.Time
	server   *http.Server
}

func NewHTTPServer(cfg *config.Config, deps Deps) *HTTPServer {
	logger := zerolog.Nop()
	if deps.Logger != nil {
		logger = deps.Logger.With().Str("component", "http").Logger()
	}

	srv := &HTTPServer{
		cfg:      cfg,
		deps:     deps,
		reporter: observability.OrNop(deps.Reporter),
		logger:   logger,
		auth:     NewHTTPAuth(cfg.API),
		now:      time.Now,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.HTTP.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}
	return srv
}

// Routes builds the chi router. Sync runs are synchronous, hence the long
// write timeout on the server.
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/webhooks/provider", func(r chi.Router) {
		r.Get("/", s.handleWebhookHandshake)
		r.Post("/", s.handleWebhook)
	})
	r.Post("/cron/sync", s.handleCronSync)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/mockups", func(r chi.Router) {
			r.Use(s.auth.Middleware(permMockups))
			r.Post("/", s.handleEnqueueMockup)
			r.Get("/", s.handleListMockups)
			r.Get("/{id}", s.handleGetMockup)
			r.Delete("/{id}", s.handleRemoveMockup)
			r.Post("/{id}/refresh", s.handleRefreshMockup)
		})
		r.Route("/sync", func(r chi.Router) {
			r.Use(s.auth.Middleware(permSync))
			r.Post("/products", s.handleSyncProducts)
			r.Post("/categories", s.handleSyncCategories)
		})
		r.Route("/products", func(r chi.Router) {
			r.Use(s.auth.Middleware(permCatalog))
			r.Get("/", s.handleListProducts)
			r.Get("/{id}", s.handleGetProduct)
		})
		r.Route("/changes", func(r chi.Router) {
			r.Use(s.auth.Middleware(permChanges))
			r.Get("/", s.handleListChanges)
			r.Post("/{id}/approve", s.handleReviewChange(s.deps.Catalog.Approve))
			r.Post("/{id}/reject", s.handleReviewChange(s.deps.Catalog.Reject))
			r.Post("/{id}/apply", s.handleReviewChange(s.deps.Catalog.Apply))
		})
		r.Route("/orders", func(r chi.Router) {
			r.Use(s.auth.Middleware(permOrders))
			r.Post("/{id}/submit", s.handleSubmitOrder)
			r.Post("/{id}/refresh", s.handleRefreshOrder)
		})
	})

	return r
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health.HealthCheck(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.IncHTTP(route)

		s.logger.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
