package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nutrition-api/nutrition-api/internal/platform/httpx"
	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/shared"
)

// Handler manages user administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers user routes. Every route is admin-only.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(shared.RoleAdmin))
		r.Get("/", h.listUsers)
		r.Post("/", h.createUser)
		r.Get("/{id}", h.getUser)
		r.Put("/{id}", h.replaceUser)
		r.Patch("/{id}", h.patchUser)
		r.Delete("/{id}", h.deleteUser)
	})
}

type createRequest struct {
	Username string  `json:"username" validate:"required,max=64"`
	Email    string  `json:"email" validate:"required,email,max=254"`
	Password string  `json:"password" validate:"required,min=1,max=128"`
	RoleIDs  []int64 `json:"role_ids" validate:"omitempty,dive,gt=0"`
}

type replaceRequest struct {
	Username string   `json:"username" validate:"required,max=64"`
	Email    string   `json:"email" validate:"required,email,max=254"`
	Password string   `json:"password" validate:"required,min=1,max=128"`
	RoleIDs  *[]int64 `json:"role_ids" validate:"omitempty,dive,gt=0"`
}

type patchRequest struct {
	Username *string  `json:"username" validate:"omitempty,max=64"`
	Email    *string  `json:"email" validate:"omitempty,email,max=254"`
	Password *string  `json:"password" validate:"omitempty,min=1,max=128"`
	RoleIDs  *[]int64 `json:"role_ids" validate:"omitempty,dive,gt=0"`
}

type listResponse struct {
	Items      []Response        `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := shared.Window(queryInt(q.Get("page")), queryInt(q.Get("skip")), queryInt(q.Get("limit")))
	users, total, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	items := make([]Response, 0, len(users))
	for _, u := range users {
		items = append(items, ToResponse(u))
	}
	page := shared.NewPagination(offset/limit+1, limit, total)
	page.Offset = offset
	httpx.JSON(w, http.StatusOK, listResponse{Items: items, Pagination: page})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(user))
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.service.Create(r.Context(), CreateInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		RoleIDs:  req.RoleIDs,
	})
	if err != nil {
		h.fail(w, "create user", err)
		return
	}
	h.logger.Info("user created", slog.Int64("user_id", user.ID), slog.String("username", user.Username))
	httpx.JSON(w, http.StatusCreated, ToResponse(user))
}

func (h *Handler) replaceUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req replaceRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.service.Replace(r.Context(), id, CreateInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}, req.RoleIDs)
	if err != nil {
		h.fail(w, "replace user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(user))
}

func (h *Handler) patchUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req patchRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.service.Patch(r.Context(), id, Patch{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		RoleIDs:  req.RoleIDs,
	})
	if err != nil {
		h.fail(w, "patch user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToResponse(user))
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete user", err)
		return
	}
	h.logger.Info("user deleted", slog.Int64("user_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.RespondError(w, httpx.ValidationError(err))
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.ErrNotFound)
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func queryInt(raw string) int {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}
