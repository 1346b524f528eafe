package users

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annotation-backoffice/backoffice/internal/rbac"
	"github.com/annotation-backoffice/backoffice/internal/shared"
	"github.com/annotation-backoffice/backoffice/internal/view"
)

type handlerFixture struct {
	*fixture
	sessions *shared.SessionManager
	router   http.Handler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := newFixture(t)
	mr := miniredis.RunT(t)
	sessions := shared.NewSessionManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "s", time.Hour, false)
	pages := view.NewEngine(shared.NewCSRFManager("secret"), "test")
	pages.Share(AuthProps(f.svc))

	r := chi.NewRouter()
	r.Route("/users", NewHandler(slog.Default(), f.svc, pages).MountRoutes)
	return &handlerFixture{fixture: f, sessions: sessions, router: r}
}

func (h *handlerFixture) do(t *testing.T, actor User, method, target string, body string, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	sess, err := h.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	ctx = rbac.ContextWithActor(ctx, h.actor(actor))
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func decodePage(t *testing.T, rec *httptest.ResponseRecorder) view.Page {
	t.Helper()
	var page view.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	return page
}

func TestIndexPage(t *testing.T) {
	h := newHandlerFixture(t)

	rec := h.do(t, h.manager, http.MethodGet, "/users?search=a", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodePage(t, rec)
	assert.Equal(t, "users/index", page.Component)
	assert.Len(t, page.Props["users"], 3)
	assert.Equal(t, map[string]any{"search": "a", "trashed": ""}, page.Props["filters"])

	abilities := page.Props["abilities"].(map[string]any)
	adminFlags := abilities[strconv.FormatInt(h.admin.ID, 10)].(map[string]any)
	assert.Equal(t, false, adminFlags["update"])
	assert.Equal(t, false, adminFlags["delete"])
	annotatorFlags := abilities[strconv.FormatInt(h.annotator.ID, 10)].(map[string]any)
	assert.Equal(t, true, annotatorFlags["update"])

	auth := page.Props["auth"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "annotation-manager", auth["role"])
	assert.Equal(t, true, auth["can"].(map[string]any)["view_users"])
}

func TestIndexForbiddenForAnnotator(t *testing.T) {
	h := newHandlerFixture(t)
	rec := h.do(t, h.annotator, http.MethodGet, "/users", "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "users/index")
}

func TestCreatePage(t *testing.T) {
	h := newHandlerFixture(t)
	rec := h.do(t, h.admin, http.MethodGet, "/users/create", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodePage(t, rec)
	assert.Equal(t, "users/create", page.Component)
	assert.Len(t, page.Props["roles"], 3)

	assert.Equal(t, http.StatusForbidden, h.do(t, h.annotator, http.MethodGet, "/users/create", "", "").Code)
}

func TestStoreUserFromForm(t *testing.T) {
	h := newHandlerFixture(t)
	form := url.Values{
		"name":                  {"Test User"},
		"email":                 {"test@example.com"},
		"password":              {"password123"},
		"password_confirmation": {"password123"},
		"role":                  {"annotator"},
	}
	rec := h.do(t, h.admin, http.MethodPost, "/users", form.Encode(), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/users", rec.Header().Get("Location"))

	result, err := h.svc.List(context.Background(), h.actor(h.admin), ListFilter{Search: "test@example.com"})
	require.NoError(t, err)
	require.Len(t, result.Users, 1)
	assert.True(t, result.Users[0].HasRole(rbac.RoleAnnotator))
}

func TestStoreUserValidationRendersForm(t *testing.T) {
	h := newHandlerFixture(t)
	body := `{"name":"","email":"test@example.com","password":"password123","password_confirmation":"password123","role":"annotator"}`
	rec := h.do(t, h.admin, http.MethodPost, "/users", body, "application/json")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	page := decodePage(t, rec)
	assert.Equal(t, "users/create", page.Component)
	assert.Contains(t, page.Props["errors"], "name")
	assert.NotContains(t, page.Props["old"], "password")
}

func TestUpdateAdminAsManagerIsForbidden(t *testing.T) {
	h := newHandlerFixture(t)
	body := `{"name":"Updated Name","email":"admin@example.com","role":"admin"}`
	rec := h.do(t, h.manager, http.MethodPut, "/users/"+strconv.FormatInt(h.admin.ID, 10), body, "application/json")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Admin User", h.repo.get(h.admin.ID).Name)
}

func TestUpdateUser(t *testing.T) {
	h := newHandlerFixture(t)
	body := `{"name":"Renamed","email":"annotator@example.com","role":"annotator"}`
	rec := h.do(t, h.admin, http.MethodPut, "/users/"+strconv.FormatInt(h.annotator.ID, 10), body, "application/json")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "Renamed", h.repo.get(h.annotator.ID).Name)
}

func TestDestroyAndRestore(t *testing.T) {
	h := newHandlerFixture(t)
	path := "/users/" + strconv.FormatInt(h.annotator.ID, 10)

	rec := h.do(t, h.admin, http.MethodDelete, path, "", "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, h.repo.get(h.annotator.ID).Trashed())

	assert.Equal(t, http.StatusNotFound, h.do(t, h.admin, http.MethodGet, path, "", "").Code)

	rec = h.do(t, h.admin, http.MethodPost, path+"/restore", "", "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.False(t, h.repo.get(h.annotator.ID).Trashed())

	rec = h.do(t, h.admin, http.MethodGet, path, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "users/show", decodePage(t, rec).Component)
}

func TestUnknownIDIsNotFound(t *testing.T) {
	h := newHandlerFixture(t)
	assert.Equal(t, http.StatusNotFound, h.do(t, h.admin, http.MethodGet, "/users/abc", "", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, h.admin, http.MethodGet, "/users/999/edit", "", "").Code)
}
