package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/filipexyz/chanrelay/internal/chat"
	"github.com/filipexyz/chanrelay/internal/config"
	"github.com/filipexyz/chanrelay/internal/handler"
	"github.com/filipexyz/chanrelay/internal/middleware"
	"github.com/filipexyz/chanrelay/internal/websocket"
)

// Server is the HTTP server of a chat backend.
type Server struct {
	cfg         *config.Config
	svc         *chat.Service
	hub         *websocket.Hub
	nats        handler.ConnChecker
	audit       chat.Auditor
	clientCfg   websocket.ClientConfig
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
	server      *http.Server
	cancel      context.CancelFunc
	ctx         context.Context
}

// Deps are the long-lived components the server exposes.
type Deps struct {
	Service *chat.Service
	Hub     *websocket.Hub
	// Nats is nil when the backend runs without a proxy tier.
	Nats        handler.ConnChecker
	Permissions *config.Permissions
	// Audit records operator actions; nil disables it.
	Audit  chat.Auditor
	Logger *slog.Logger
}

// New creates a new Server.
func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:   cfg,
		svc:   deps.Service,
		hub:   deps.Hub,
		nats:  deps.Nats,
		audit: deps.Audit,
		clientCfg: websocket.ClientConfig{
			ServerID:       cfg.ServerID,
			PrivateChannel: cfg.PrivateChannel,
			Permissions:    deps.Permissions,
		},
		rateLimiter: middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}

	s.server = &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: s.routes(),
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Serve starts the HTTP server on the given listener.
func (s *Server) Serve(l net.Listener) error {
	return s.server.Serve(l)
}

// Shutdown gracefully shuts down the server. Open chat connections are
// closed through the connection context.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.rateLimiter.Stop()
	return s.server.Shutdown(ctx)
}
