package users_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/shared"
	"github.com/nutrition-api/nutrition-api/internal/users"
)

func newRouter(t *testing.T, caller *rbac.User) (http.Handler, *users.Service) {
	t.Helper()
	svc, _, _, _ := newService(t)
	h := users.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if caller != nil {
				req = req.WithContext(rbac.ContextWithIdentity(req.Context(), caller))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/users", h.MountRoutes)
	return r, svc
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

var adminCaller = &rbac.User{ID: 1, Username: "admin", Roles: []rbac.Role{{Name: shared.RoleAdmin}}}

func TestHandlerRequiresAdmin(t *testing.T) {
	plain := &rbac.User{ID: 2, Username: "plain", Roles: []rbac.Role{{Name: shared.RoleUser}}}
	router, _ := newRouter(t, plain)
	assert.Equal(t, http.StatusForbidden, do(router, http.MethodGet, "/users/", "").Code)

	anon, _ := newRouter(t, nil)
	rec := do(anon, http.MethodGet, "/users/", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestHandlerCreateAndList(t *testing.T) {
	router, _ := newRouter(t, adminCaller)

	rec := do(router, http.MethodPost, "/users/", `{"username":"Ivy","email":"ivy@example.com","password":"pw"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created users.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "ivy", created.Username)
	assert.Equal(t, []string{shared.RoleUser}, created.Roles)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = do(router, http.MethodPost, "/users/", `{"username":"ivy","email":"x@example.com","password":"pw"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(router, http.MethodGet, "/users/?page=1&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Items      []users.Response  `json:"items"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed.Items, 1)
	assert.Equal(t, 1, listed.Pagination.Total)
	assert.Equal(t, 5, listed.Pagination.PerPage)
}

func TestHandlerPatchAndDelete(t *testing.T) {
	router, svc := newRouter(t, adminCaller)
	u, err := svc.Create(context.Background(), users.CreateInput{Username: "jack", Email: "jack@example.com", Password: "pw"})
	require.NoError(t, err)
	path := "/users/" + strconv.FormatInt(u.ID, 10)

	rec := do(router, http.MethodPatch, path, `{"email":"jack@nutrition.test"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "jack@nutrition.test")

	rec = do(router, http.MethodPatch, path, `{"unknown":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusNoContent, do(router, http.MethodDelete, path, "").Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, path, "").Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/users/abc", "").Code)
}
