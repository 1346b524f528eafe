// Package dashboard serves the landing page shown after sign-in.
package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/annotation-backoffice/backoffice/internal/api"
	"github.com/annotation-backoffice/backoffice/internal/platform/httpx"
	"github.com/annotation-backoffice/backoffice/internal/rbac"
	"github.com/annotation-backoffice/backoffice/internal/view"
)

// Handler renders the dashboard.
type Handler struct {
	logger *slog.Logger
	pages  *view.Engine
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, pages *view.Engine) *Handler {
	return &Handler{logger: logger, pages: pages}
}

// MountRoutes registers dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.show)
}

// Elevated roles get the full dashboard, everyone else the simple one.
func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	component := "dashboard-simple"
	if api.HasDashboardAccess(actor) {
		component = "dashboard"
	}
	props := map[string]any{"can_manage_users": actor.Can(rbac.PermViewUsers)}
	if err := h.pages.Render(w, r, component, props, http.StatusOK); err != nil {
		h.logger.Error("render dashboard", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
