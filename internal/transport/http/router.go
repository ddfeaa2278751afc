// Package http assembles the module routers behind one chi mux.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	accesshandler "flowledger/internal/access/handler"
	insthandler "flowledger/internal/institution/handler"
	"flowledger/internal/platform/middleware"
	trendhandler "flowledger/internal/trend/handler"
	"flowledger/internal/transport/http/shared"
)

// HealthChecker reports backend liveness for the readiness probe.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps carries everything the router mounts.
type Deps struct {
	Logger    *slog.Logger
	Validator middleware.TokenValidator

	Access       *accesshandler.Handler
	Institutions *insthandler.Handler
	Trend        *trendhandler.Handler

	// Readiness backends; nil entries are skipped.
	Backends map[string]HealthChecker
}

// NewRouter builds the full HTTP surface. Mutating routes require a valid
// bearer token; read projections, health, and metrics do not.
func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(deps.Backends))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// reads are open
		deps.Access.RegisterReads(r)
		deps.Institutions.RegisterReads(r)
		deps.Trend.RegisterReads(r)

		// mutations require authentication
		r.Group(func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			r.Use(middleware.RequireAuth(deps.Validator, deps.Logger))
			deps.Access.Register(r)
			deps.Institutions.Register(r)
			deps.Trend.Register(r)
		})
	})

	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleReadyz(backends map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := make(map[string]string, len(backends))
		healthy := true
		for name, backend := range backends {
			if backend == nil {
				continue
			}
			if err := backend.Health(r.Context()); err != nil {
				status[name] = err.Error()
				healthy = false
				continue
			}
			status[name] = "ok"
		}
		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		shared.WriteJSON(w, code, status)
	}
}
