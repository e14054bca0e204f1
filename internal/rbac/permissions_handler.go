package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nutrition-api/nutrition-api/internal/platform/httpx"
	"github.com/nutrition-api/nutrition-api/internal/shared"
)

// PermissionsHandler manages the permission catalog endpoints.
type PermissionsHandler struct {
	logger    *slog.Logger
	service   *Service
	rbac      Middleware
	validator *validator.Validate
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		// Role editors need the catalog to build grants.
		r.Use(h.rbac.RequireAny(shared.PermPermissionsView, shared.PermRolesEdit))
		r.Get("/", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(shared.PermPermissionsEdit))
		r.Post("/", h.createPermission)
		r.Delete("/{id}", h.deletePermission)
	})
}

type permissionRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=255"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *PermissionsHandler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ValidationError(err))
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), req.Name, req.Description)
	if err != nil {
		if !httpx.IsClientError(err) {
			h.logger.Error("create permission", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("permission created", slog.String("name", perm.Name))
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *PermissionsHandler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		if !httpx.IsClientError(err) {
			h.logger.Error("delete permission", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("permission deleted", slog.Int64("id", id))
	w.WriteHeader(http.StatusNoContent)
}
