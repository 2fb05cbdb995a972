package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/filipexyz/chanrelay/internal/chat"
	"github.com/filipexyz/chanrelay/internal/config"
	"github.com/filipexyz/chanrelay/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// DefaultMaxMessageSize bounds one inbound frame.
	DefaultMaxMessageSize = 4096
)

// ChatService is the part of the chat service a connection drives.
type ChatService interface {
	Join(ctx context.Context, s *session.Session) ([]string, error)
	Quit(ctx context.Context, id uuid.UUID) error
	Chat(ctx context.Context, id uuid.UUID, line string) (chat.Result, error)
	JoinChannel(ctx context.Context, id uuid.UUID, channelID string) error
	LeaveChannel(ctx context.Context, id uuid.UUID, channelID string) error
	Move(ctx context.Context, id uuid.UUID, world string, x, y, z float64) error
	Private(ctx context.Context, id uuid.UUID, channelID, target, msg string) error
}

// ClientConfig holds the per-connection settings shared by all clients.
type ClientConfig struct {
	ServerID       string
	PrivateChannel string
	MaxMessageSize int64
	Permissions    *config.Permissions
}

// Client represents a WebSocket client connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	svc      ChatService
	cfg      ClientConfig
	clientID string

	// Set by Hub.bind once the login succeeded.
	session *session.Session
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub, conn *websocket.Conn, svc ChatService, cfg ClientConfig, clientID string) *Client {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		svc:      svc,
		cfg:      cfg,
		clientID: clientID,
	}
}

// ReadPump reads messages from the WebSocket connection.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.cleanup(ctx)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err, "client_id", c.clientID)
			}
			return
		}

		c.handleMessage(ctx, message)
	}
}

// WritePump writes messages to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(ctx context.Context, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("INVALID_JSON", "invalid JSON message")
		return
	}

	if msg.Action == "ping" {
		c.sendJSON(NewPongMessage())
		return
	}
	if msg.Action == "login" {
		var login LoginMessage
		if err := json.Unmarshal(data, &login); err != nil {
			c.sendError("INVALID_JSON", "invalid login message")
			return
		}
		c.handleLogin(ctx, &login)
		return
	}
	if c.session == nil {
		c.sendError("UNAUTHORIZED", "login required")
		return
	}

	var err error
	switch msg.Action {
	case "chat":
		var m ChatMessage
		if err = json.Unmarshal(data, &m); err == nil {
			_, err = c.svc.Chat(ctx, c.session.ID, m.Text)
		}
	case "join", "leave":
		var m ChannelMessage
		if err = json.Unmarshal(data, &m); err == nil {
			if msg.Action == "join" {
				err = c.svc.JoinChannel(ctx, c.session.ID, m.Channel)
			} else {
				err = c.svc.LeaveChannel(ctx, c.session.ID, m.Channel)
			}
		}
	case "move":
		var m MoveMessage
		if err = json.Unmarshal(data, &m); err == nil {
			err = c.svc.Move(ctx, c.session.ID, m.World, m.X, m.Y, m.Z)
		}
	case "private":
		var m PrivateMessage
		if err = json.Unmarshal(data, &m); err == nil {
			if m.Channel == "" {
				m.Channel = c.cfg.PrivateChannel
			}
			err = c.svc.Private(ctx, c.session.ID, m.Channel, m.Target, m.Text)
		}
	default:
		c.sendError("UNKNOWN_ACTION", "unknown action: "+msg.Action)
		return
	}

	if err != nil {
		code, text := errorCode(err)
		c.sendError(code, text)
		return
	}
	c.sendJSON(NewOKMessage(msg.Action))
}

func (c *Client) handleLogin(ctx context.Context, msg *LoginMessage) {
	if c.session != nil {
		c.sendError("ALREADY_LOGGED_IN", "already logged in as "+c.session.Name)
		return
	}
	name := strings.TrimSpace(msg.Name)
	if name == "" {
		c.sendError("INVALID_NAME", "name required")
		return
	}

	s := &session.Session{
		ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.ToLower(name))),
		Name:        name,
		Server:      c.cfg.ServerID,
		World:       msg.World,
		X:           msg.X,
		Y:           msg.Y,
		Z:           msg.Z,
		Locale:      msg.Locale,
		Permissions: c.cfg.Permissions.For(name),
		Attributes:  c.cfg.Permissions.AttributesFor(name),
	}
	if s.World == "" {
		s.World = "world"
	}
	if s.Locale == "" {
		s.Locale = DefaultLocale
	}
	if !c.hub.bind(c, s) {
		c.sendError("NAME_TAKEN", name+" is already online")
		return
	}

	channels, err := c.svc.Join(ctx, s)
	if err != nil {
		c.hub.unbind(c)
		c.hub.logger.Error("session join failed", "session", name, "error", err)
		c.sendError("JOIN_FAILED", "could not join chat")
		return
	}
	c.sendJSON(NewWelcomeMessage(s.ID.String(), channels))
	c.hub.logger.Info("client logged in", "session", name, "client_id", c.clientID)
}

func (c *Client) cleanup(ctx context.Context) {
	if c.session == nil {
		return
	}
	quitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.svc.Quit(quitCtx, c.session.ID); err != nil && !errors.Is(err, chat.ErrUnknownSession) {
		c.hub.logger.Warn("session quit failed", "session", c.session.Name, "error", err)
	}
}

// errorCode maps chat errors to wire codes.
func errorCode(err error) (string, string) {
	switch {
	case errors.Is(err, chat.ErrCooldown):
		return "COOLDOWN", err.Error()
	case errors.Is(err, chat.ErrNoSpeak), errors.Is(err, chat.ErrNoPermission):
		return "FORBIDDEN", err.Error()
	case errors.Is(err, chat.ErrUnknownChannel), errors.Is(err, chat.ErrPrivateChannel):
		return "UNKNOWN_CHANNEL", err.Error()
	case errors.Is(err, chat.ErrUnknownTarget):
		return "UNKNOWN_TARGET", err.Error()
	case errors.Is(err, chat.ErrCancelled):
		return "CANCELLED", err.Error()
	case errors.Is(err, chat.ErrEmptyMessage):
		return "EMPTY_MESSAGE", err.Error()
	}
	slog.Error("chat request failed", "error", err)
	return "INTERNAL", "request failed"
}

func (c *Client) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.hub.logger.Error("failed to marshal message", "error", err)
		return
	}

	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("client send buffer full, dropping message", "client_id", c.clientID)
	}
}

func (c *Client) sendError(code, message string) {
	c.sendJSON(NewErrorMessage(code, message))
}
