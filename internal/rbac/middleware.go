package rbac

import (
	"log/slog"
	"net/http"

	"github.com/appealdesk/appealdesk/internal/platform/httpx"
)

// Middleware wires authorization helpers for HTTP handlers. It assumes an
// earlier middleware has already resolved the principal into the request
// context; a missing principal is reported as unauthenticated, a failed check
// as forbidden.
type Middleware struct {
	Logger *slog.Logger
}

// RequireLevel ensures the current principal holds the required role level
// or higher.
func (m Middleware) RequireLevel(required Level) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondError(w, httpx.ErrUnauthenticated)
				return
			}
			if err := principal.RequireRoleOrHigher(required); err != nil {
				if m.Logger != nil {
					m.Logger.Warn("role level denied",
						slog.String("user", principal.Username),
						slog.Int("required", int(required)),
						slog.String("path", r.URL.Path))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission ensures the current principal holds the permission.
func (m Middleware) RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondError(w, httpx.ErrUnauthenticated)
				return
			}
			if err := principal.RequirePermission(perm); err != nil {
				if m.Logger != nil {
					m.Logger.Warn("permission denied",
						slog.String("user", principal.Username),
						slog.String("permission", string(perm)),
						slog.String("path", r.URL.Path))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny ensures the principal holds at least one of the permissions.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondError(w, httpx.ErrUnauthenticated)
				return
			}
			for _, perm := range perms {
				if principal.HasPermission(perm) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if m.Logger != nil {
				m.Logger.Warn("permission denied", slog.String("user", principal.Username), slog.String("path", r.URL.Path))
			}
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}
