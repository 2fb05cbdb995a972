package websocket

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/filipexyz/chanrelay/internal/reaction"
	"github.com/filipexyz/chanrelay/internal/richtext"
	"github.com/filipexyz/chanrelay/internal/session"
)

// Hub manages all active WebSocket clients and delivers chat output to the
// ones bound to a session. It is the Deliverer, LangSender and reaction
// Executor of the standalone backend.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	sessions   map[uuid.UUID]*Client
	names      map[string]uuid.UUID
	register   chan *Client
	unregister chan *Client

	lang   Lang
	logger *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(lang Lang, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if lang == nil {
		lang = DefaultLang()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		sessions:   make(map[uuid.UUID]*Client),
		names:      make(map[string]uuid.UUID),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		lang:       lang,
		logger:     logger.With("component", "ws"),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client registered", "total", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.unbindLocked(client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "total", n)

		case <-ctx.Done():
			return
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// bind associates client with a logged-in session. It reports false when
// the name is already online.
func (h *Hub) bind(client *Client, s *session.Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := strings.ToLower(s.Name)
	if _, taken := h.names[key]; taken {
		return false
	}
	h.names[key] = s.ID
	h.sessions[s.ID] = client
	client.session = s
	return true
}

func (h *Hub) unbind(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unbindLocked(client)
}

func (h *Hub) unbindLocked(client *Client) {
	s := client.session
	if s == nil || h.sessions[s.ID] != client {
		return
	}
	delete(h.sessions, s.ID)
	delete(h.names, strings.ToLower(s.Name))
	client.session = nil
}

// send queues v for the session's client. The read lock keeps the client's
// send channel open while queuing.
func (h *Hub) send(id uuid.UUID, v any) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.sessions[id]
	if !ok {
		return false
	}
	c.sendJSON(v)
	return true
}

// Deliver implements chat.Deliverer.
func (h *Hub) Deliver(to *session.Session, msg *richtext.Component) {
	data, err := msg.JSON()
	if err != nil {
		h.logger.Error("failed to encode component", "error", err)
		return
	}
	if !h.send(to.ID, NewLineMessage(data, msg.Plain())) {
		h.logger.Debug("delivery target not connected", "session", to.Name)
	}
}

// SendLang implements chat.LangSender.
func (h *Hub) SendLang(to *session.Session, key string, args ...string) {
	h.send(to.ID, NewLangMessage(key, args, h.lang.Text(to.Locale, key, args...)))
}

// Execute implements reaction.Executor. Side effects that belong to the
// client are passed through as action messages.
func (h *Hub) Execute(_ context.Context, kind reaction.Kind, value string, subject *session.Session) error {
	switch kind {
	case reaction.KindTell:
		if subject != nil {
			h.Deliver(subject, &richtext.Component{Extra: richtext.Legacy(value)})
		}
	case reaction.KindBroadcast:
		msg := &richtext.Component{Extra: richtext.Legacy(value)}
		for _, id := range h.sessionIDs() {
			h.Deliver(&session.Session{ID: id}, msg)
		}
	case reaction.KindLog, reaction.KindConsole:
		h.logger.Info("reaction", "kind", kind, "value", value, "session", subjectName(subject))
	default:
		if subject != nil {
			h.send(subject.ID, NewActionMessage(string(kind), value))
		}
	}
	return nil
}

func (h *Hub) sessionIDs() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	return ids
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SessionCount returns the number of logged-in clients.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func subjectName(s *session.Session) string {
	if s == nil {
		return ""
	}
	return s.Name
}
