package auth

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/appealdesk/appealdesk/internal/rbac"
	"github.com/appealdesk/appealdesk/internal/shared"
)

// PrincipalLoader resolves the session user into an rbac principal on every
// request. Requests without a valid session pass through unauthenticated;
// route-level middleware decides whether that is acceptable.
func PrincipalLoader(logger *slog.Logger, service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.User() == "" {
				next.ServeHTTP(w, r)
				return
			}
			userID, err := uuid.Parse(sess.User())
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			principal, err := service.Principal(r.Context(), userID)
			if err != nil {
				// A stale or banned session behaves like no session at all.
				logger.Debug("principal load failed", slog.String("user_id", userID.String()), slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}
			ctx := rbac.ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
