package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/appealdesk/appealdesk/internal/appeals"
	"github.com/appealdesk/appealdesk/internal/auth"
	"github.com/appealdesk/appealdesk/internal/observability"
	"github.com/appealdesk/appealdesk/internal/reports"
	"github.com/appealdesk/appealdesk/internal/roles"
	"github.com/appealdesk/appealdesk/internal/shared"
	"github.com/appealdesk/appealdesk/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	Metrics        *observability.Metrics

	AuthService *auth.Service

	AuthHandler    *auth.Handler
	AppealsHandler *appeals.Handler
	AppealsWS      *appeals.WSHandler
	UsersHandler   *users.Handler
	RolesHandler   *roles.Handler
	ReportsHandler *reports.Handler
}

// NewRouter constructs the chi router with the full middleware stack.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(auth.PrincipalLoader(params.Logger, params.AuthService))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	timeout := 30 * time.Second
	if params.Config != nil && params.Config.AppRequestTimeout > 0 {
		timeout = params.Config.AppRequestTimeout
	}

	// JSON API. Timeouts and compression stay off the WebSocket routes below.
	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(timeout))
		r.Use(chimw.Compress(5))
		r.Use(httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		if params.Metrics != nil {
			r.Use(params.Metrics.Middleware)
		}

		r.Route("/auth", params.AuthHandler.MountRoutes)
		params.AppealsHandler.MountPublicRoutes(r)
		params.AppealsHandler.MountRoutes(r)
		params.UsersHandler.MountRoutes(r)
		params.RolesHandler.MountRoutes(r)
		params.ReportsHandler.MountRoutes(r)
	})

	params.AppealsWS.MountRoutes(r)

	return r
}
