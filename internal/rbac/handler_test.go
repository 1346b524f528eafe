package rbac

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoleRouter(t *testing.T) http.Handler {
	t.Helper()
	store := newFakeStore()
	svc := NewService(store, NewBindingCache(store), slog.Default())
	_, err := svc.Provision(context.Background())
	require.NoError(t, err)
	r := chi.NewRouter()
	NewHandler(slog.Default(), svc).MountRoutes(r)
	return r
}

func serveAs(h http.Handler, actor *Actor) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if actor != nil {
		req = req.WithContext(ContextWithActor(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerListRoles(t *testing.T) {
	h := newRoleRouter(t)
	manager := NewActor(5, []Role{RoleAnnotationManager}, DefaultBindings())

	rec := serveAs(h, &manager)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Roles       []RoleSummary    `json:"roles"`
		Permissions []permissionItem `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Roles, 3)
	assert.Equal(t, "Annotation Manager", body.Roles[1].Label)
	require.Len(t, body.Permissions, 5)
	assert.Equal(t, PermCreateUsers, body.Permissions[0].Value)
}

func TestHandlerListRolesDenied(t *testing.T) {
	h := newRoleRouter(t)
	annotator := NewActor(6, []Role{RoleAnnotator}, DefaultBindings())

	assert.Equal(t, http.StatusForbidden, serveAs(h, &annotator).Code)
	assert.Equal(t, http.StatusUnauthorized, serveAs(h, nil).Code)
}
