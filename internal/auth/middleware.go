package auth

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/kfkafe/cafe-ops/internal/platform/httpx"
	"github.com/kfkafe/cafe-ops/internal/shared"
)

// Middleware guards routes by session identity and role.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAuth rejects anonymous requests.
func (m Middleware) RequireAuth() func(http.Handler) http.Handler {
	return m.RequireRole()
}

// RequireRole rejects requests whose identity role is not listed. With no
// roles it only requires a logged in user.
func (m Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := shared.IdentityFromContext(r.Context())
			if identity == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
				return
			}
			if len(roles) > 0 && !slices.Contains(roles, identity.Role) {
				if m.Logger != nil {
					m.Logger.Warn("role denied", slog.String("username", identity.Username), slog.String("role", identity.Role), slog.String("path", r.URL.Path))
				}
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
