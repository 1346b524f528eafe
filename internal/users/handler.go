package users

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/annotation-backoffice/backoffice/internal/platform/httpx"
	"github.com/annotation-backoffice/backoffice/internal/rbac"
	"github.com/annotation-backoffice/backoffice/internal/shared"
	"github.com/annotation-backoffice/backoffice/internal/view"
)

// Handler manages user management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	pages   *view.Engine
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, pages *view.Engine) *Handler {
	return &Handler{logger: logger, service: service, pages: pages}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.index)
	r.Get("/create", h.create)
	r.Post("/", h.store)
	r.Get("/{id}", h.show)
	r.Get("/{id}/edit", h.edit)
	r.Put("/{id}", h.update)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.destroy)
	r.Post("/{id}/restore", h.restore)
}

type userInput struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	Role                 string `json:"role"`
}

// old is echoed back to the form after a failed submit, without secrets.
func (in userInput) old() map[string]string {
	return map[string]string{"name": in.Name, "email": in.Email, "role": in.Role}
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter := ListFilter{
		Search:  r.URL.Query().Get("search"),
		Trashed: ParseTrashed(r.URL.Query().Get("trashed")),
	}
	result, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "users/index", map[string]any{
		"users":     NewResources(result.Users),
		"filters":   result.Filter,
		"abilities": result.Abilities,
	}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	roles, err := h.service.CreateForm(actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "users/create", map[string]any{"roles": roles}, http.StatusOK)
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	in, err := bindUserInput(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	_, err = h.service.Create(r.Context(), actor, CreateUserRequest(in))
	if err != nil {
		if fields, ok := validationFields(err); ok {
			h.render(w, r, "users/create", map[string]any{
				"roles":  h.service.RoleOptions(actor),
				"errors": fields,
				"old":    in.old(),
			}, http.StatusUnprocessableEntity)
			return
		}
		h.fail(w, r, err)
		return
	}
	view.Redirect(w, r, "/users", shared.FlashSuccess, "User created successfully")
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	user, err := h.service.Show(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "users/show", map[string]any{"user": NewResource(user)}, http.StatusOK)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	user, roles, err := h.service.EditForm(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, "users/edit", map[string]any{"user": NewResource(user), "roles": roles}, http.StatusOK)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	in, err := bindUserInput(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	_, err = h.service.Update(r.Context(), actor, id, UpdateUserRequest(in))
	if err != nil {
		if fields, ok := validationFields(err); ok {
			target, _, formErr := h.service.EditForm(r.Context(), actor, id)
			if formErr != nil {
				h.fail(w, r, formErr)
				return
			}
			h.render(w, r, "users/edit", map[string]any{
				"user":   NewResource(target),
				"roles":  h.service.RoleOptions(actor),
				"errors": fields,
				"old":    in.old(),
			}, http.StatusUnprocessableEntity)
			return
		}
		h.fail(w, r, err)
		return
	}
	view.Redirect(w, r, "/users", shared.FlashSuccess, "User updated successfully")
}

func (h *Handler) destroy(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.service.SoftDelete(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	view.Redirect(w, r, "/users", shared.FlashSuccess, "User deleted successfully")
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	if _, err := h.service.Restore(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	view.Redirect(w, r, "/users", shared.FlashSuccess, "User restored successfully")
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (rbac.Actor, bool) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
	}
	return actor, ok
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.ErrNotFound)
		return 0, false
	}
	return id, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, component string, props map[string]any, status int) {
	if err := h.pages.Render(w, r, component, props, status); err != nil {
		h.logger.Error("render page", slog.String("component", component), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("users request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func bindUserInput(r *http.Request) (userInput, error) {
	var in userInput
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			return in, shared.NewValidationError("body", "The request body is malformed.")
		}
		return in, nil
	}
	if err := r.ParseForm(); err != nil {
		return in, shared.NewValidationError("body", "The request body is malformed.")
	}
	in.Name = r.PostFormValue("name")
	in.Email = r.PostFormValue("email")
	in.Password = r.PostFormValue("password")
	in.PasswordConfirmation = r.PostFormValue("password_confirmation")
	in.Role = r.PostFormValue("role")
	return in, nil
}

func validationFields(err error) (map[string]string, bool) {
	var verr *shared.ValidationError
	if !errors.As(err, &verr) {
		return nil, false
	}
	return verr.Fields, true
}
