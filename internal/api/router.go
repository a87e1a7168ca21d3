package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/fuomag9/camera-sentinel/internal/config"
)

// NewRouter creates the HTTP router. ws serves observer connections and may
// be nil.
func NewRouter(cfg *config.Config, engine Engine, heartbeatLimiter *RateLimiter, ws http.HandlerFunc, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(logger.With().Str("component", "http").Logger()))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request")
	}))
	r.Use(hlog.RemoteAddrHandler("remote_addr"))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware(cfg))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		// Camera routes, called by the devices themselves
		r.Group(func(r chi.Router) {
			if heartbeatLimiter != nil {
				r.Use(RateLimitMiddleware(heartbeatLimiter))
			}
			r.Put("/cameras/{id}/heartbeat", HandleHeartbeat(engine))
		})

		// Operator routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.JWTSecret))

			r.Get("/alerts", HandleGetOpenAlerts(engine))
			r.Get("/alerts/resolved", HandleGetResolvedAlerts(engine))
			r.Put("/alerts/{id}/resolve", HandleResolveAlert(engine))
		})
	})

	if ws != nil {
		r.Get("/ws", ws)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
