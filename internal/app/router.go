package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nutrition-api/nutrition-api/internal/auth"
	"github.com/nutrition-api/nutrition-api/internal/observability"
	"github.com/nutrition-api/nutrition-api/internal/platform/httpx"
	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/roles"
	"github.com/nutrition-api/nutrition-api/internal/users"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	RolesHandler       *roles.Handler
	PermissionsHandler *rbac.PermissionsHandler
	Authn              auth.Middleware
	Store              Pinger
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.Store.Ping(ctx); err != nil {
				params.Logger.Warn("health check failed", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		r.Route("/auth", func(ar chi.Router) {
			params.AuthHandler.MountRoutes(ar, LoginThrottle(params.Config))
		})
	}

	r.Group(func(pr chi.Router) {
		pr.Use(params.Authn.Authenticate)
		if params.UsersHandler != nil {
			pr.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.RolesHandler != nil {
			pr.Route("/roles", params.RolesHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			pr.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
	})

	return r
}
