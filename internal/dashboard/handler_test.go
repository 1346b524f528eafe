package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annotation-backoffice/backoffice/internal/rbac"
	"github.com/annotation-backoffice/backoffice/internal/view"
)

func render(t *testing.T, actor *rbac.Actor) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(slog.Default(), view.NewEngine(nil, ""))
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	if actor != nil {
		req = req.WithContext(rbac.ContextWithActor(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	h.show(rec, req)
	return rec
}

func TestDashboardComponentByRole(t *testing.T) {
	tests := []struct {
		roles     []rbac.Role
		component string
	}{
		{[]rbac.Role{rbac.RoleAdmin}, "dashboard"},
		{[]rbac.Role{rbac.RoleAnnotationManager}, "dashboard"},
		{[]rbac.Role{rbac.RoleAnnotator}, "dashboard-simple"},
		{nil, "dashboard-simple"},
	}
	for _, tt := range tests {
		actor := rbac.NewActor(1, tt.roles, rbac.DefaultBindings())
		rec := render(t, &actor)
		require.Equal(t, http.StatusOK, rec.Code)
		var page view.Page
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		assert.Equal(t, tt.component, page.Component, "%v", tt.roles)
	}
}

func TestDashboardRedirectsGuests(t *testing.T) {
	rec := render(t, nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

type headerCounter struct {
	*httptest.ResponseRecorder
	writes int
}

func (h *headerCounter) WriteHeader(code int) {
	h.writes++
	h.ResponseRecorder.WriteHeader(code)
}

func TestDashboardRenderFailureWritesOneHeader(t *testing.T) {
	pages := view.NewEngine(nil, "")
	pages.Share(func(r *http.Request) (map[string]any, error) {
		return map[string]any{"broken": func() {}}, nil
	})
	h := NewHandler(slog.Default(), pages)

	actor := rbac.NewActor(1, []rbac.Role{rbac.RoleAdmin}, rbac.DefaultBindings())
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req = req.WithContext(rbac.ContextWithActor(req.Context(), actor))
	rec := &headerCounter{ResponseRecorder: httptest.NewRecorder()}
	h.show(rec, req)

	assert.Equal(t, 1, rec.writes)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
