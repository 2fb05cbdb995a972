package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/filipexyz/chanrelay/internal/handler"
	"github.com/filipexyz/chanrelay/internal/middleware"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Health checks
	healthHandler := handler.NewHealthHandler(s.nats, s.cfg.ProxyEnabled())
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	chatHandler := handler.NewChatHandler(s.ctx, s.hub, s.svc, s.clientCfg, s.cfg.CORSOrigins)
	channelsHandler := handler.NewChannelsHandler(s.svc, s.audit)

	// WebSocket endpoint at root (no /api/v1 prefix for WS)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(s.rateLimiter))
		r.Get("/ws", chatHandler.Connect)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.rateLimiter))

		r.Get("/channels", channelsHandler.List)
		r.Get("/channels/{id}", channelsHandler.Get)
		r.Post("/channels/reload", channelsHandler.Reload)
		r.Get("/sessions", channelsHandler.Sessions)
	})

	return r
}
