// Package api serves the JSON API used by external clients.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/annotation-backoffice/backoffice/internal/auth"
	"github.com/annotation-backoffice/backoffice/internal/platform/httpx"
	"github.com/annotation-backoffice/backoffice/internal/rbac"
	"github.com/annotation-backoffice/backoffice/internal/shared"
	"github.com/annotation-backoffice/backoffice/internal/users"
)

// ProfileLoader loads the acting user's own record.
type ProfileLoader interface {
	Profile(ctx context.Context, id int64) (users.User, error)
}

// Authenticator checks API credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*auth.User, error)
}

// TokenIssuer signs bearer tokens.
type TokenIssuer interface {
	Issue(userID int64) (string, time.Time, error)
}

// Handler serves /api/v1.
type Handler struct {
	logger    *slog.Logger
	profiles  ProfileLoader
	auth      Authenticator
	tokens    TokenIssuer
	guard     rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, profiles ProfileLoader, authenticator Authenticator, tokens TokenIssuer, guard rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		profiles:  profiles,
		auth:      authenticator,
		tokens:    tokens,
		guard:     guard,
		validator: shared.NewValidator(),
	}
}

// MountRoutes registers the v1 routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/auth/token", h.issueToken)
	r.With(h.guard.RequireAPIActor).Get("/user/info", h.userInfo)
}

type identity struct {
	ID    int64      `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Role  *rbac.Role `json:"role"`
}

type userInfoResponse struct {
	User        identity        `json:"user"`
	Permissions map[string]bool `json:"permissions"`
}

func (h *Handler) userInfo(w http.ResponseWriter, r *http.Request) {
	actor, ok := rbac.ActorFromContext(r.Context())
	if !ok {
		httpx.Unauthenticated(w)
		return
	}
	user, err := h.profiles.Profile(r.Context(), actor.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Unauthenticated(w)
			return
		}
		h.logger.Error("load profile", slog.Int64("user_id", actor.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	info := userInfoResponse{
		User: identity{ID: user.ID, Name: user.Name, Email: user.Email},
		Permissions: map[string]bool{
			"dashboard": HasDashboardAccess(actor),
		},
	}
	if role, ok := user.PrimaryRole(); ok {
		info.User.Role = &role
	}
	httpx.JSON(w, http.StatusOK, info)
}

// HasDashboardAccess reports whether actor holds an elevated role.
func HasDashboardAccess(actor rbac.Actor) bool {
	return actor.HasAnyRole(rbac.RoleAdmin, rbac.RoleAnnotationManager)
}

type tokenRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.NewValidationError("body", "The request body is malformed."))
		return
	}
	req.Email = shared.NormalizeEmail(req.Email)
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ValidationErrorFrom(err))
		return
	}
	user, err := h.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("api authenticate", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	token, expiresAt, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tokenResponse{Token: token, TokenType: "Bearer", ExpiresAt: expiresAt})
}
