package roles_test

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
	"github.com/nutrition-api/nutrition-api/internal/rbac/rbactest"
	"github.com/nutrition-api/nutrition-api/internal/roles"
	"github.com/nutrition-api/nutrition-api/internal/shared"
)

func setup(t *testing.T, caller *rbac.User) (http.Handler, *rbactest.Store) {
	t.Helper()
	ctx := context.Background()
	store := rbactest.NewStore()
	for _, entry := range shared.PermissionCatalog() {
		_, err := store.EnsurePermission(ctx, entry.Name, entry.Description)
		require.NoError(t, err)
	}
	_, _, err := store.EnsureRole(ctx, shared.RoleAdmin, "", rbac.AllPermissions)
	require.NoError(t, err)
	_, _, err = store.EnsureRole(ctx, shared.RoleUser, "", rbac.NoPermissions)
	require.NoError(t, err)

	h := roles.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), rbac.NewService(store), rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(rbac.ContextWithIdentity(req.Context(), caller)))
		})
	})
	r.Route("/roles", h.MountRoutes)
	return r, store
}

func call(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func editor() *rbac.User {
	return &rbac.User{ID: 1, Roles: []rbac.Role{{Name: "role-admin", Permissions: []rbac.Permission{
		{Name: shared.PermRolesView}, {Name: shared.PermRolesEdit}, {Name: shared.PermPermissionsView},
	}}}}
}

func TestRoleLifecycle(t *testing.T) {
	router, _ := setup(t, editor())

	rec := call(router, http.MethodPost, "/roles/", `{"name":"nutritionist","permissions":["food.view","meal.view"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var role rbac.Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &role))
	assert.Len(t, role.Permissions, 2)
	path := "/roles/" + strconv.FormatInt(role.ID, 10)

	rec = call(router, http.MethodPut, path+"/permissions", `{"permissions":["food.view","food.update"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &role))
	assert.True(t, role.HasPermission(shared.PermFoodUpdate))
	assert.False(t, role.HasPermission(shared.PermMealView))

	rec = call(router, http.MethodPut, path+"/permissions", `{"permissions":["food.teleport"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(router, http.MethodPut, path, `{"name":"dietitian","description":"Clinical"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dietitian")

	assert.Equal(t, http.StatusNoContent, call(router, http.MethodDelete, path, "").Code)
	assert.Equal(t, http.StatusNotFound, call(router, http.MethodGet, path, "").Code)
}

func TestBaseRoleCannotBeDeleted(t *testing.T) {
	router, store := setup(t, editor())
	admin, err := store.GetRoleByName(context.Background(), shared.RoleAdmin)
	require.NoError(t, err)

	rec := call(router, http.MethodDelete, "/roles/"+strconv.FormatInt(admin.ID, 10), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoleRoutesRequirePermissions(t *testing.T) {
	viewer := &rbac.User{ID: 2, Roles: []rbac.Role{{Name: "viewer", Permissions: []rbac.Permission{{Name: shared.PermRolesView}}}}}
	router, _ := setup(t, viewer)

	assert.Equal(t, http.StatusOK, call(router, http.MethodGet, "/roles/", "").Code)
	assert.Equal(t, http.StatusForbidden, call(router, http.MethodPost, "/roles/", `{"name":"x"}`).Code)

	nobody, _ := setup(t, &rbac.User{ID: 3})
	assert.Equal(t, http.StatusForbidden, call(nobody, http.MethodGet, "/roles/", "").Code)
}

func TestReplacePermissionsNeedsCatalogAccess(t *testing.T) {
	editOnly := &rbac.User{ID: 4, Roles: []rbac.Role{{Name: "role-editor", Permissions: []rbac.Permission{
		{Name: shared.PermRolesView}, {Name: shared.PermRolesEdit},
	}}}}
	router, _ := setup(t, editOnly)

	rec := call(router, http.MethodPost, "/roles/", `{"name":"coach"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var role rbac.Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &role))

	path := "/roles/" + strconv.FormatInt(role.ID, 10) + "/permissions"
	assert.Equal(t, http.StatusForbidden, call(router, http.MethodPut, path, `{"permissions":["food.view"]}`).Code)

	viewOnly := &rbac.User{ID: 5, Roles: []rbac.Role{{Name: "catalog-reader", Permissions: []rbac.Permission{
		{Name: shared.PermPermissionsView},
	}}}}
	router, _ = setup(t, viewOnly)
	assert.Equal(t, http.StatusForbidden, call(router, http.MethodPut, "/roles/1/permissions", `{"permissions":["food.view"]}`).Code)
}
