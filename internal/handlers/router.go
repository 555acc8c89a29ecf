package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/viemarket/storefront/internal/middleware"
	"github.com/viemarket/storefront/internal/platform/httpx"
	"github.com/viemarket/storefront/internal/platform/observability"
)

// RouterDeps bundles what the router needs to assemble the endpoint tree.
type RouterDeps struct {
	Sessions       *SessionManager
	Logger         *zap.Logger
	Now            func() time.Time
	RequestTimeout time.Duration
}

// NewRouter assembles the gateway's HTTP surface. Everything except the
// health probe sits behind bearer-token identification.
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	cartHandlers := NewCartHandlers(deps.Sessions)
	chatHandlers := NewChatHandlers(deps.Sessions)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(observability.InjectLoggerMiddleware(logger))
	r.Use(observability.RecoveryMiddleware(logger))
	r.Use(middleware.SessionAuth(deps.Now))
	r.Use(observability.RequestLoggerMiddleware())
	r.Use(chimw.Timeout(timeout))

	r.Get("/healthz", healthHandler(deps.Now))

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Route("/cart", cartHandlers.Routes)
		r.Route("/chat", chatHandlers.Routes)
		cartHandlers.RegisterCheckoutRoutes(r)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(r.Context(), w, httpx.NewError("not_found", "no such endpoint", http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(r.Context(), w, httpx.NewError("method_not_allowed", "method not allowed", http.StatusMethodNotAllowed))
	})

	return r
}

func healthHandler(now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	started := now()
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"uptime": now().Sub(started).String(),
		})
	}
}
