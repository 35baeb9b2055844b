package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouteOptions carries the router settings that come from configuration.
type RouteOptions struct {
	CORSOrigins    []string
	RateLimitRPM   int
	RequestTimeout time.Duration
	// MetricsHandler serves /metrics when non-nil
	MetricsHandler http.Handler
}

func (h *Handler) Routes(m *Middleware, opts RouteOptions) *chi.Mux {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(middleware.Heartbeat("/ping"))

	// 405s on action paths still need the Actions CORS headers
	actionsNotAllowed := m.ActionsCORS(http.HandlerFunc(h.MethodNotAllowed))
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		if isActionPath(req.URL.Path) {
			actionsNotAllowed.ServeHTTP(w, req)
			return
		}
		h.MethodNotAllowed(w, req)
	})

	// Action routes: fixed CORS headers, rate limited
	r.Group(func(r chi.Router) {
		r.Use(m.ActionsCORS)
		r.Use(m.RateLimit(opts.RateLimitRPM))
		r.Use(m.Timeout(opts.RequestTimeout))

		r.Get("/actions.json", h.ActionsManifest)
		r.Options("/actions.json", h.ActionsManifest)

		for _, ep := range h.endpoints() {
			r.Get(ep.path, h.describe(ep))
			r.Options(ep.path, h.describe(ep))
			if ep.build != nil {
				r.Post(ep.path, h.execute(ep))
			}
		}
	})

	// Ops routes
	r.Group(func(r chi.Router) {
		r.Use(m.CORS(opts.CORSOrigins))

		r.Get("/healthz", h.Healthz)
		r.Get("/readyz", h.Readyz)
		if opts.MetricsHandler != nil {
			r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
		}
	})

	return r
}

func isActionPath(path string) bool {
	return path == "/actions.json" || strings.HasPrefix(path, "/api/")
}
