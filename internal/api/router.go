package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/stationhq/station/internal/audit"
	"github.com/stationhq/station/internal/authz"
	"github.com/stationhq/station/internal/identity"
	"github.com/stationhq/station/internal/policy"
	"github.com/stationhq/station/internal/request"
	"github.com/stationhq/station/pkg/metrics"
	"github.com/stationhq/station/pkg/ratelimit"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	Logger           *slog.Logger
	RateLimiter      *ratelimit.Limiter
	Metrics          *metrics.StationMetrics
	HealthChecker    *HealthChecker
	MiddlewareConfig *MiddlewareConfig
}

// DefaultRouterConfig returns a default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		Logger:           slog.Default(),
		RateLimiter:      ratelimit.New(50, 100),
		MiddlewareConfig: DefaultMiddlewareConfig(),
	}
}

// Services holds all service dependencies for the API.
type Services struct {
	Request  request.Service
	Policy   policy.Service
	Authz    authz.Service
	Identity identity.Service
	Audit    audit.Service
}

// NewRouter creates a new chi router with all middleware and routes.
func NewRouter(config *RouterConfig, services *Services) chi.Router {
	if config == nil {
		config = DefaultRouterConfig()
	}
	if config.MiddlewareConfig == nil {
		config.MiddlewareConfig = DefaultMiddlewareConfig()
	}

	r := chi.NewRouter()

	// Apply middleware stack
	r.Use(RequestIDMiddleware)
	r.Use(RecoveryMiddleware(config.Logger))
	r.Use(LoggingMiddleware(config.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(ContentTypeMiddleware)
	r.Use(IdentityMiddleware)
	if config.Metrics != nil {
		r.Use(MetricsMiddleware(config.Metrics))
	}
	if config.RateLimiter != nil {
		r.Use(RateLimitMiddleware(config.RateLimiter, config.MiddlewareConfig))
	}

	// Register routes
	registerHealthRoutes(r, config.HealthChecker)
	registerRequestRoutes(r, services)
	registerPolicyRoutes(r, services)
	registerNamedRuleRoutes(r, services)
	registerPermissionRoutes(r, services)
	registerUserRoutes(r, services)
	registerAuditRoutes(r, services)

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

// registerHealthRoutes registers health check endpoints.
func registerHealthRoutes(r chi.Router, checker *HealthChecker) {
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if checker == nil {
			writeJSON(w, http.StatusOK, &HealthCheckResult{Status: "healthy"})
			return
		}
		result := checker.Check(req.Context())
		status := http.StatusOK
		if result.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, result)
	})
	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Get("/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})
}

// registerRequestRoutes registers custody request endpoints.
func registerRequestRoutes(r chi.Router, services *Services) {
	if services == nil || services.Request == nil {
		return
	}
	handler := NewRequestHandler(services.Request)
	r.Route("/api/v1/requests", func(r chi.Router) {
		r.Post("/", handler.Create)
		r.Get("/", handler.List)
		r.Get("/{id}", handler.Get)
		r.Post("/{id}/approvals", handler.SubmitApproval)
		r.Post("/{id}/cancel", handler.Cancel)
		r.Get("/{id}/approvers", handler.Approvers)
		r.Post("/{id}/evaluate", handler.Evaluate)
	})
}

// registerPolicyRoutes registers request policy endpoints.
func registerPolicyRoutes(r chi.Router, services *Services) {
	if services == nil || services.Policy == nil || services.Authz == nil {
		return
	}
	handler := NewPolicyHandler(services.Policy, services.Authz)
	r.Route("/api/v1/policies", func(r chi.Router) {
		r.Post("/", handler.Create)
		r.Get("/", handler.List)
		r.Get("/{id}", handler.Get)
		r.Put("/{id}", handler.Update)
		r.Delete("/{id}", handler.Delete)
	})
}

// registerNamedRuleRoutes registers named rule endpoints.
func registerNamedRuleRoutes(r chi.Router, services *Services) {
	if services == nil || services.Policy == nil || services.Authz == nil {
		return
	}
	handler := NewNamedRuleHandler(services.Policy, services.Authz)
	r.Route("/api/v1/named-rules", func(r chi.Router) {
		r.Post("/", handler.Create)
		r.Get("/", handler.List)
		r.Get("/{id}", handler.Get)
		r.Put("/{id}", handler.Update)
		r.Delete("/{id}", handler.Delete)
	})
}

// registerPermissionRoutes registers permission endpoints.
func registerPermissionRoutes(r chi.Router, services *Services) {
	if services == nil || services.Authz == nil {
		return
	}
	handler := NewPermissionHandler(services.Authz)
	r.Route("/api/v1/permissions", func(r chi.Router) {
		r.Get("/", handler.List)
		r.Put("/", handler.Edit)
		r.Get("/lookup", handler.Get)
	})
}

// registerUserRoutes registers user and group endpoints.
func registerUserRoutes(r chi.Router, services *Services) {
	if services == nil || services.Identity == nil || services.Authz == nil {
		return
	}
	handler := NewUserHandler(services.Identity, services.Authz)
	r.Route("/api/v1/users", func(r chi.Router) {
		r.Post("/", handler.Create)
		r.Get("/", handler.List)
		r.Get("/{id}", handler.Get)
		r.Put("/{id}", handler.Update)
	})
	r.Route("/api/v1/groups", func(r chi.Router) {
		r.Post("/", handler.CreateGroup)
		r.Get("/", handler.ListGroups)
		r.Delete("/{id}", handler.RemoveGroup)
	})
}

// registerAuditRoutes registers audit trail endpoints.
func registerAuditRoutes(r chi.Router, services *Services) {
	if services == nil || services.Audit == nil || services.Authz == nil {
		return
	}
	handler := NewAuditHandler(services.Audit, services.Authz)
	r.Route("/api/v1/audit", func(r chi.Router) {
		r.Get("/", handler.Query)
		r.Post("/verify", handler.Verify)
	})
}
