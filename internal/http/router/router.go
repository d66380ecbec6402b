package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AstroMined/debtonator/internal/http/handler"
	"github.com/AstroMined/debtonator/internal/http/middleware"
	"github.com/AstroMined/debtonator/internal/http/response"
	"github.com/AstroMined/debtonator/internal/interceptor"
)

// Dependencies is everything the router needs, assembled by the DI
// layer.
type Dependencies struct {
	Logger          *slog.Logger
	FeatureFlags    *handler.FeatureFlagHandler
	Guard           *interceptor.Guard
	Bypass          middleware.BypassEvaluator
	Limiter         middleware.Limiter
	APIRateLimitRPM int
}

func New(dep Dependencies) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, req *http.Request) {
		response.JSON(w, req, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		response.JSON(w, req, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		if dep.Limiter != nil && dep.APIRateLimitRPM > 0 {
			rl := middleware.NewRateLimiter(
				dep.Limiter, dep.APIRateLimitRPM, time.Minute, middleware.FailOpen, "api", dep.Logger)
			api.Use(rl.Middleware())
		}
		if dep.Guard != nil {
			opts := []middleware.FeatureFlagOption{}
			if dep.Bypass != nil {
				opts = append(opts, middleware.WithBypass(dep.Bypass))
			}
			api.Use(middleware.FeatureFlag(dep.Guard, opts...))
		}

		api.Route("/admin/feature-flags", func(admin chi.Router) {
			admin.Get("/", dep.FeatureFlags.ListFlags)
			admin.Put("/", dep.FeatureFlags.BulkUpdateFlags)
			admin.Get("/defaults/requirements", dep.FeatureFlags.DefaultRequirements)
			admin.Get("/{name}", dep.FeatureFlags.GetFlag)
			admin.Put("/{name}", dep.FeatureFlags.UpdateFlag)
			admin.Get("/{name}/requirements", dep.FeatureFlags.GetRequirements)
			admin.Put("/{name}/requirements", dep.FeatureFlags.UpdateRequirements)
		})
	})

	return r
}
