package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nutrition-api/nutrition-api/internal/platform/httpx"
	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/shared"
	"github.com/nutrition-api/nutrition-api/internal/users"
)

// LoginRecorder observes login outcomes.
type LoginRecorder interface {
	ObserveLogin(outcome string)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authn     Middleware
	recorder  LoginRecorder
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. recorder may be nil.
func NewHandler(logger *slog.Logger, service *Service, authn Middleware, recorder LoginRecorder) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		authn:     authn,
		recorder:  recorder,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on provided router. throttle wraps the
// credential-accepting endpoints.
func (h *Handler) MountRoutes(r chi.Router, throttle ...func(http.Handler) http.Handler) {
	r.With(throttle...).Post("/login", h.handleLogin)
	r.With(throttle...).With(h.authn.Optional).Post("/register", h.handleRegister)
	r.With(h.authn.Authenticate).Get("/me", h.handleMe)
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

type registerRequest struct {
	Username string  `json:"username" validate:"required,max=64"`
	Email    string  `json:"email" validate:"required,email,max=254"`
	Password string  `json:"password" validate:"required,min=1,max=128"`
	RoleIDs  []int64 `json:"role_ids" validate:"omitempty,dive,gt=0"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if httpx.IsJSON(r) {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			h.observe("malformed")
			httpx.RespondError(w, err)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.observe("malformed")
			httpx.RespondError(w, httpx.ValidationError(err))
			return
		}
		req = loginRequest{Username: r.PostFormValue("username"), Password: r.PostFormValue("password")}
	}
	if err := h.validator.Struct(req); err != nil {
		h.observe("malformed")
		httpx.RespondError(w, httpx.ValidationError(err))
		return
	}
	token, user, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if httpx.IsClientError(err) {
			h.observe("failure")
		} else {
			h.observe("error")
			h.logger.Error("login", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	h.observe("success")
	h.logger.Info("login succeeded", slog.Int64("user_id", user.ID))
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, token)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ValidationError(err))
		return
	}
	caller := rbac.IdentityFromContext(r.Context())
	user, err := h.service.Register(r.Context(), users.CreateInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		RoleIDs:  req.RoleIDs,
	}, caller)
	if err != nil {
		if !httpx.IsClientError(err) {
			h.logger.Error("register", slog.Any("error", err))
		}
		if caller == nil && errors.Is(err, shared.ErrForbidden) {
			err = shared.ErrUnauthenticated
		}
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("user registered", slog.Int64("user_id", user.ID), slog.String("username", user.Username))
	httpx.JSON(w, http.StatusCreated, users.ToResponse(user))
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user := rbac.IdentityFromContext(r.Context())
	if user == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	httpx.JSON(w, http.StatusOK, users.ToResponse(*user))
}

func (h *Handler) observe(outcome string) {
	if h.recorder != nil {
		h.recorder.ObserveLogin(outcome)
	}
}
