package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/annotation-backoffice/backoffice/internal/platform/httpx"
	"github.com/annotation-backoffice/backoffice/internal/shared"
	"github.com/annotation-backoffice/backoffice/internal/view"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	pages          *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, pages *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		pages:          pages,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      shared.NewValidator(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

// MountSettings registers the signed-in user's settings routes.
func (h *Handler) MountSettings(r chi.Router) {
	r.Get("/password", h.showPassword)
	r.Put("/password", h.updatePassword)
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type passwordForm struct {
	CurrentPassword      string `json:"current_password" validate:"required"`
	Password             string `json:"password" validate:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" validate:"eqfield=Password"`
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := shared.SessionUserID(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	h.render(w, r, "auth/login", map[string]any{"status": nil}, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.RespondError(w, errors.New("session missing"))
		return
	}

	form := loginForm{
		Email:    shared.NormalizeEmail(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	if err := h.validator.Struct(form); err != nil {
		h.loginFailed(w, r, form, shared.ValidationErrorFrom(err))
		return
	}

	user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			h.loginFailed(w, r, form, shared.NewValidationError("email", shared.UserSafeMessage(err)))
			return
		}
		h.logger.Error("authenticate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	sess.Regenerate()
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	if _, err := h.csrfManager.Rotate(sess); err != nil {
		h.logger.Error("rotate csrf", slog.Any("error", err))
	}
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	h.logger.Info("user signed in", slog.Int64("user_id", user.ID))
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) loginFailed(w http.ResponseWriter, r *http.Request, form loginForm, err error) {
	var verr *shared.ValidationError
	fields := map[string]string{}
	if errors.As(err, &verr) {
		fields = verr.Fields
	}
	h.render(w, r, "auth/login", map[string]any{
		"errors": fields,
		"old":    map[string]string{"email": form.Email},
	}, http.StatusUnprocessableEntity)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) showPassword(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "settings/password", nil, http.StatusOK)
}

func (h *Handler) updatePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.SessionUserID(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := passwordForm{
		CurrentPassword:      r.PostFormValue("current_password"),
		Password:             r.PostFormValue("password"),
		PasswordConfirmation: r.PostFormValue("password_confirmation"),
	}
	err := h.validator.Struct(form)
	if err == nil {
		err = h.service.UpdatePassword(r.Context(), userID, form.CurrentPassword, form.Password)
	}
	if err != nil {
		var verr *shared.ValidationError
		if errors.As(shared.ValidationErrorFrom(err), &verr) {
			h.render(w, r, "settings/password", map[string]any{"errors": verr.Fields}, http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("update password", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	view.Redirect(w, r, "/settings/password", shared.FlashSuccess, "Password updated.")
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, component string, props map[string]any, status int) {
	if err := h.pages.Render(w, r, component, props, status); err != nil {
		h.logger.Error("render page", slog.String("component", component), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

// HandleLogoutForTest exposes the logout handler for tests.
func (h *Handler) HandleLogoutForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogout(w, r)
}

// UpdatePasswordForTest exposes the password update handler for tests.
func (h *Handler) UpdatePasswordForTest(w http.ResponseWriter, r *http.Request) {
	h.updatePassword(w, r)
}
