package api

import (
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter assembles the HTTP surface: REST handlers, the websocket
// endpoint, and the shared middleware stack.
func NewRouter(a *API, wsHandler http.Handler, allowedOrigin string, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(allowedOrigin))

	r.Get("/health", a.HealthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", a.StatsHandler)
		r.Get("/check/{slug}", a.CheckSlugHandler)

		r.Route("/snippets", func(r chi.Router) {
			r.Post("/", a.CreateSnippetHandler)
			r.Get("/{slug}", a.GetSnippetHandler)
			r.Patch("/{slug}", a.PatchSnippetHandler)
			r.Delete("/{slug}", a.DeleteSnippetHandler)
		})
	})

	r.Get("/ws/{slug}", wsHandler.ServeHTTP)

	return r
}

// requestLogger records one line per request. httpsnoop's wrapper keeps the
// Hijacker interface intact, so the websocket route can pass through it.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", m.Code),
				slog.Duration("duration", m.Duration),
				slog.Int64("bytes", m.Written))
		})
	}
}

func corsMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
