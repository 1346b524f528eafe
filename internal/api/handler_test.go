package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annotation-backoffice/backoffice/internal/api"
	"github.com/annotation-backoffice/backoffice/internal/auth"
	"github.com/annotation-backoffice/backoffice/internal/rbac"
	"github.com/annotation-backoffice/backoffice/internal/shared"
	"github.com/annotation-backoffice/backoffice/internal/users"
)

type directory struct {
	users map[int64]users.User
	loads int
}

func (d *directory) Profile(ctx context.Context, id int64) (users.User, error) {
	d.loads++
	u, ok := d.users[id]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return u, nil
}

func (d *directory) ResolveActor(ctx context.Context, id int64) (rbac.Actor, error) {
	u, ok := d.users[id]
	if !ok {
		return rbac.Actor{}, shared.ErrNotFound
	}
	return rbac.NewActor(u.ID, u.Roles, rbac.DefaultBindings()), nil
}

type credentials map[string]int64

func (c credentials) Authenticate(ctx context.Context, email, password string) (*auth.User, error) {
	id, ok := c[email]
	if !ok || password != "password123" {
		return nil, shared.ErrInvalidCredentials
	}
	return &auth.User{ID: id, Email: email}, nil
}

type apiFixture struct {
	dir    *directory
	tokens *auth.TokenIssuer
	router http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	dir := &directory{users: map[int64]users.User{
		1: {ID: 1, Name: "Admin User", Email: "admin@example.com", Roles: []rbac.Role{rbac.RoleAdmin}},
		2: {ID: 2, Name: "Annotation Manager", Email: "annotation_manager@example.com", Roles: []rbac.Role{rbac.RoleAnnotationManager}},
		3: {ID: 3, Name: "Annotator User", Email: "annotator@example.com", Roles: []rbac.Role{rbac.RoleAnnotator}},
		4: {ID: 4, Name: "No Role", Email: "norole@example.com"},
	}}
	tokens := auth.NewTokenIssuer("jwt-secret", time.Hour)
	guard := rbac.Middleware{Resolver: dir, Tokens: tokens}

	r := chi.NewRouter()
	r.Use(guard.Authenticate)
	r.Route("/api/v1", api.NewHandler(nil, dir, credentials{"admin@example.com": 1, "annotator@example.com": 3}, tokens, guard).MountRoutes)
	return &apiFixture{dir: dir, tokens: tokens, router: r}
}

func (f *apiFixture) userInfo(t *testing.T, userID int64) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/info", nil)
	if userID > 0 {
		token, _, err := f.tokens.Issue(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestUserInfoUnauthenticated(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.userInfo(t, 0)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error": "Unauthenticated."}`, rec.Body.String())
	assert.Zero(t, f.dir.loads)
}

func TestUserInfoDashboardFlag(t *testing.T) {
	f := newAPIFixture(t)
	tests := []struct {
		id   int64
		body string
	}{
		{1, `{"user":{"id":1,"name":"Admin User","email":"admin@example.com","role":"admin"},"permissions":{"dashboard":true}}`},
		{2, `{"user":{"id":2,"name":"Annotation Manager","email":"annotation_manager@example.com","role":"annotation-manager"},"permissions":{"dashboard":true}}`},
		{3, `{"user":{"id":3,"name":"Annotator User","email":"annotator@example.com","role":"annotator"},"permissions":{"dashboard":false}}`},
		{4, `{"user":{"id":4,"name":"No Role","email":"norole@example.com","role":null},"permissions":{"dashboard":false}}`},
	}
	for _, tt := range tests {
		rec := f.userInfo(t, tt.id)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, tt.body, rec.Body.String())
	}
}

func TestUserInfoDeletedUserIsUnauthenticated(t *testing.T) {
	f := newAPIFixture(t)
	token, _, err := f.tokens.Issue(99)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/info", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIssueTokenThenCallUserInfo(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(`{"email":"Admin@Example.com","password":"password123"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Token     string `json:"token"`
		TokenType string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Bearer", body.TokenType)

	info := httptest.NewRequest(http.MethodGet, "/api/v1/user/info", nil)
	info.Header.Set("Authorization", "Bearer "+body.Token)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, info)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"dashboard":true`)
}

func TestIssueTokenRejectsBadCredentials(t *testing.T) {
	f := newAPIFixture(t)
	for _, body := range []string{
		`{"email":"admin@example.com","password":"wrong"}`,
		`{"email":"not-an-email","password":"password123"}`,
		`{"email":`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(body))
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, body)
		assert.NotContains(t, rec.Body.String(), "token_type")
	}
}
