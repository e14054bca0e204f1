package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/nutrition-api/nutrition-api/internal/platform/httpx"
	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/shared"
)

// Middleware resolves bearer tokens into the request-scoped identity.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
	Recorder rbac.DenialRecorder
}

// Authenticate rejects requests without a valid bearer token.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			m.reject(w, shared.ErrUnauthenticated)
			return
		}
		m.serveResolved(w, r, token, next)
	})
}

// Optional resolves the identity when a bearer token is present and lets
// anonymous requests through. A present but invalid token is still rejected.
func (m Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		m.serveResolved(w, r, token, next)
	})
}

func (m Middleware) serveResolved(w http.ResponseWriter, r *http.Request, token string, next http.Handler) {
	user, err := m.Resolver.Resolve(r.Context(), token)
	if err != nil {
		if !errors.Is(err, shared.ErrUnauthenticated) && m.Logger != nil {
			m.Logger.Error("resolve identity", slog.Any("error", err))
		}
		m.reject(w, err)
		return
	}
	next.ServeHTTP(w, r.WithContext(rbac.ContextWithIdentity(r.Context(), user)))
}

func (m Middleware) reject(w http.ResponseWriter, err error) {
	if m.Recorder != nil && errors.Is(err, shared.ErrUnauthenticated) {
		m.Recorder.ObserveDenied("unauthenticated")
	}
	httpx.RespondError(w, err)
}
