package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/annotation-backoffice/backoffice/internal/api"
	"github.com/annotation-backoffice/backoffice/internal/auth"
	"github.com/annotation-backoffice/backoffice/internal/dashboard"
	"github.com/annotation-backoffice/backoffice/internal/observability"
	"github.com/annotation-backoffice/backoffice/internal/rbac"
	"github.com/annotation-backoffice/backoffice/internal/shared"
	"github.com/annotation-backoffice/backoffice/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	RBACMiddleware   rbac.Middleware
	AuthHandler      *auth.Handler
	DashboardHandler *dashboard.Handler
	UsersHandler     *users.Handler
	RolesHandler     *rbac.Handler
	APIHandler       *api.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with back-office defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(params.RBACMiddleware.Authenticate)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			if _, ok := rbac.ActorFromContext(r.Context()); ok {
				http.Redirect(w, r, "/dashboard", http.StatusFound)
				return
			}
			http.Redirect(w, r, "/login", http.StatusFound)
		})

		if params.AuthHandler != nil {
			params.AuthHandler.MountRoutes(r)
		}

		r.Group(func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireActor)
			if params.DashboardHandler != nil {
				r.Route("/dashboard", params.DashboardHandler.MountRoutes)
			}
			if params.UsersHandler != nil {
				r.Route("/users", params.UsersHandler.MountRoutes)
			}
			if params.AuthHandler != nil {
				r.Route("/settings", params.AuthHandler.MountSettings)
			}
		})

		r.Route("/api/v1", func(r chi.Router) {
			if params.APIHandler != nil {
				params.APIHandler.MountRoutes(r)
			}
			if params.RolesHandler != nil {
				r.With(params.RBACMiddleware.RequireAPIActor).Route("/roles", params.RolesHandler.MountRoutes)
			}
		})
	})

	return r
}
