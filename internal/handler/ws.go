package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/filipexyz/chanrelay/internal/websocket"
)

// ChatHandler upgrades connections to chat sessions.
type ChatHandler struct {
	hub      *websocket.Hub
	svc      websocket.ChatService
	cfg      websocket.ClientConfig
	ctx      context.Context
	upgrader ws.Upgrader
}

// NewChatHandler creates a new ChatHandler. Connections live until ctx is
// done. An empty origins list accepts any origin.
func NewChatHandler(ctx context.Context, hub *websocket.Hub, svc websocket.ChatService, cfg websocket.ClientConfig, origins []string) *ChatHandler {
	h := &ChatHandler{hub: hub, svc: svc, cfg: cfg, ctx: ctx}
	h.upgrader = ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(origins) == 0 || origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
		},
	}
	return h
}

// Connect upgrades HTTP to WebSocket and runs the client pumps.
func (h *ChatHandler) Connect(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	clientID := middleware.GetReqID(r.Context())
	if clientID == "" {
		clientID = uuid.NewString()
	}
	client := websocket.NewClient(h.hub, conn, h.svc, h.cfg, clientID)
	h.hub.Register(client)

	// The pumps outlive the request, so they get the handler's context.
	go client.WritePump()
	go client.ReadPump(h.ctx)
}
