package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/annotation-backoffice/backoffice/internal/platform/httpx"
	"github.com/annotation-backoffice/backoffice/internal/shared"
)

// ActorResolver loads an Actor for an authenticated user id.
type ActorResolver interface {
	ResolveActor(ctx context.Context, userID int64) (Actor, error)
}

// TokenParser validates API bearer tokens.
type TokenParser interface {
	ParseUserID(token string) (int64, error)
}

// Middleware wires actor resolution for HTTP handlers.
type Middleware struct {
	Resolver ActorResolver
	Tokens   TokenParser
	Logger   *slog.Logger
}

// Authenticate resolves the acting user from a bearer token or the session and
// stores the Actor in the request context. Requests without a valid identity
// pass through without an actor.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := m.currentUserID(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		actor, err := m.Resolver.ResolveActor(r.Context(), userID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				// Deleted users lose their session identity.
				if sess := shared.SessionFromContext(r.Context()); sess != nil && sess.User() != "" {
					sess.SetUser("")
				}
				next.ServeHTTP(w, r)
				return
			}
			m.logError("rbac resolve actor", err)
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
	})
}

// RequireActor redirects guests to the login page.
func (m Middleware) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ActorFromContext(r.Context()); !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAPIActor rejects guests with the fixed 401 body.
func (m Middleware) RequireAPIActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ActorFromContext(r.Context()); !ok {
			httpx.Unauthenticated(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts a bearer token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	if token, ok := BearerToken(r); ok {
		if m.Tokens == nil {
			return 0, false
		}
		id, err := m.Tokens.ParseUserID(token)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("rbac bearer rejected", slog.Any("error", err))
			}
			return 0, false
		}
		return id, true
	}
	return shared.SessionUserID(r.Context())
}

func (m Middleware) logError(msg string, err error) {
	if m.Logger != nil {
		m.Logger.Error(msg, slog.Any("error", err))
	}
}
