package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/annotation-backoffice/backoffice/internal/platform/httpx"
	"github.com/annotation-backoffice/backoffice/internal/shared"
)

// Handler exposes the role registry to clients building role pickers.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

type permissionItem struct {
	Value Permission `json:"value"`
	Label string     `json:"label"`
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listRoles)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if !actor.Can(PermViewUsers) {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	roles, err := h.service.RoleSummaries(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	items := make([]permissionItem, 0, len(perms))
	for _, p := range perms {
		items = append(items, permissionItem{Value: p.Name, Label: p.Label})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles, "permissions": items})
}
