package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nutrition-api/nutrition-api/internal/platform/httpx"
	"github.com/nutrition-api/nutrition-api/internal/shared"
)

// DenialRecorder observes guard rejections.
type DenialRecorder interface {
	ObserveDenied(reason string)
}

// Middleware wires RBAC authorization helpers for HTTP handlers. It expects the
// identity to have been resolved into the request context beforehand.
type Middleware struct {
	Logger   *slog.Logger
	Recorder DenialRecorder
}

// RequireRole ensures the current user holds the named role.
func (m Middleware) RequireRole(name string) func(http.Handler) http.Handler {
	return m.guard(func(u *User) error { return RequireRole(u, name) })
}

// RequirePermission ensures the current user is granted the named permission.
func (m Middleware) RequirePermission(name string) func(http.Handler) http.Handler {
	return m.guard(func(u *User) error { return RequirePermission(u, name) })
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.guard(func(u *User) error {
		if u == nil {
			return shared.ErrUnauthenticated
		}
		if hasAnyPermission(u.EffectivePermissions(), normalized) {
			return nil
		}
		return shared.ErrForbidden
	})
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.guard(func(u *User) error {
		if u == nil {
			return shared.ErrUnauthenticated
		}
		if hasAllPermissions(u.EffectivePermissions(), normalized) {
			return nil
		}
		return shared.ErrForbidden
	})
}

func (m Middleware) guard(check func(*User) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := IdentityFromContext(r.Context())
			if err := check(user); err != nil {
				if m.Recorder != nil {
					m.Recorder.ObserveDenied(denialReason(err))
				}
				if m.Logger != nil && user != nil {
					m.Logger.Info("rbac denied", slog.Int64("user_id", user.ID), slog.String("path", r.URL.Path))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func denialReason(err error) string {
	if errors.Is(err, shared.ErrForbidden) {
		return "forbidden"
	}
	return "unauthenticated"
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAnyPermission(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
