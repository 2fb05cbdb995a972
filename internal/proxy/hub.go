// Package proxy is the proxy tier: it tracks which backend hosts which
// session, relays chat between backends, routes lang messages, and owns
// proxy-defined channels.
package proxy

import (
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/filipexyz/chanrelay/internal/bridge"
)

// Publisher sends an encoded frame on a subject.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Transport is what the hub needs from the broker.
type Transport interface {
	Publisher
	Subscribe(subject string, fn func(data []byte)) (func() error, error)
	Reply(subject string, fn func(data []byte) []byte) (func() error, error)
}

// Backend is a backend server known to the hub.
type Backend struct {
	ID       string    `json:"id"`
	Port     int       `json:"port"`
	Sessions int       `json:"sessions"`
	LastSeen time.Time `json:"last_seen"`
}

type sessionEntry struct {
	name   string
	server string
}

// Counters are cumulative frame statistics.
type Counters struct {
	Relayed   int64 `json:"relayed"`
	Routed    int64 `json:"routed"`
	Dropped   int64 `json:"dropped"`
	Delivered int64 `json:"delivered"`
}

// Hub is the proxy tier's routing state. Frames arrive on broker goroutines.
type Hub struct {
	mu       sync.RWMutex
	backends map[string]*Backend
	sessions map[uuid.UUID]sessionEntry
	byName   map[string]uuid.UUID

	recent   *recentSet
	channels *ChannelSet
	pub      Publisher
	logger   *slog.Logger
	now      func() time.Time

	relayed, routed, dropped, delivered atomic.Int64

	unsubs []func() error
}

// NewHub creates a hub. channels may be nil when the proxy defines none.
func NewHub(channels *ChannelSet, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		backends: make(map[string]*Backend),
		sessions: make(map[uuid.UUID]sessionEntry),
		byName:   make(map[string]uuid.UUID),
		recent:   newRecentSet(30 * time.Second),
		channels: channels,
		logger:   logger.With("component", "proxy"),
		now:      time.Now,
	}
}

// Start attaches the hub to the broker.
func (h *Hub) Start(t Transport) error {
	h.pub = t
	unsub, err := t.Subscribe(bridge.SubjectProxy, h.HandleFrame)
	if err != nil {
		return err
	}
	h.unsubs = append(h.unsubs, unsub)

	unsub, err = t.Reply(bridge.SubjectFetch, h.HandleFetch)
	if err != nil {
		h.Stop()
		return err
	}
	h.unsubs = append(h.unsubs, unsub)
	h.logger.Info("proxy hub started")
	return nil
}

// Stop detaches the hub from the broker.
func (h *Hub) Stop() {
	for _, unsub := range h.unsubs {
		if err := unsub(); err != nil {
			h.logger.Debug("unsubscribe failed", "error", err)
		}
	}
	h.unsubs = nil
}

// HandleFrame processes one frame published by a backend.
func (h *Hub) HandleFrame(data []byte) {
	f, err := bridge.DecodeFrame(data)
	if err != nil {
		h.dropped.Add(1)
		h.logger.Warn("dropping frame", "error", err)
		return
	}

	switch f.Kind {
	case bridge.KindPresence:
		p, err := bridge.ParsePresence(f)
		if err != nil {
			h.drop(f.Kind, err)
			return
		}
		h.presence(p)
	case bridge.KindChatForward:
		m, err := bridge.ParseChatForward(f)
		if err != nil {
			h.drop(f.Kind, err)
			return
		}
		h.relay(m)
	case bridge.KindSendLang:
		m, err := bridge.ParseSendLang(f)
		if err != nil {
			h.drop(f.Kind, err)
			return
		}
		h.routeLang(m)
	default:
		h.dropped.Add(1)
		h.logger.Debug("ignoring frame", "kind", f.Kind)
	}
}

func (h *Hub) drop(kind bridge.Kind, err error) {
	h.dropped.Add(1)
	h.logger.Warn("dropping frame", "kind", kind, "error", err)
}

func (h *Hub) presence(p bridge.Presence) {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.backends[p.ServerID]
	if !ok {
		b = &Backend{ID: p.ServerID}
		h.backends[p.ServerID] = b
		h.logger.Info("backend registered", "server", p.ServerID, "port", p.Port)
	}
	b.Port = p.Port
	b.LastSeen = h.now()

	switch p.State {
	case bridge.PresenceJoin:
		if prev, ok := h.sessions[p.SessionID]; ok {
			h.forget(p.SessionID, prev)
		}
		h.sessions[p.SessionID] = sessionEntry{name: p.SessionName, server: p.ServerID}
		h.byName[strings.ToLower(p.SessionName)] = p.SessionID
		b.Sessions++
	case bridge.PresenceQuit:
		// A quit from a backend the session already left is stale.
		if prev, ok := h.sessions[p.SessionID]; ok && prev.server == p.ServerID {
			h.forget(p.SessionID, prev)
		}
	}
}

// forget must be called with h.mu held.
func (h *Hub) forget(id uuid.UUID, e sessionEntry) {
	delete(h.sessions, id)
	if h.byName[strings.ToLower(e.name)] == id {
		delete(h.byName, strings.ToLower(e.name))
	}
	if b, ok := h.backends[e.server]; ok && b.Sessions > 0 {
		b.Sessions--
	}
}

// relay delivers a chat line to every backend that has not seen it yet.
// The origin is always excluded; a re-forwarded line never returns to a
// backend that already received it.
func (h *Hub) relay(m bridge.ChatForward) {
	key := strings.Join([]string{m.ChannelID, m.SenderID.String(), m.OriginServer, m.Message}, "\x00")

	h.mu.RLock()
	candidates := make([]string, 0, len(h.backends))
	for id := range h.backends {
		if id != m.OriginServer {
			candidates = append(candidates, id)
		}
	}
	h.mu.RUnlock()
	slices.Sort(candidates)

	targets := h.recent.claim(key, m.OriginServer, candidates, h.now(), m.Hops == 0)
	if len(targets) == 0 {
		h.logger.Debug("no backends to relay to", "channel", m.ChannelID, "origin", m.OriginServer)
		return
	}

	data := m.Frame().Encode()
	h.relayed.Add(1)
	for _, id := range targets {
		if err := h.pub.Publish(bridge.SubjectBackend(id), data); err != nil {
			h.logger.Warn("relay failed", "server", id, "error", err)
			continue
		}
		h.delivered.Add(1)
	}
}

// routeLang sends a lang message to the backend hosting its target.
func (h *Hub) routeLang(m bridge.SendLang) {
	h.mu.RLock()
	server := ""
	if id, ok := h.byName[strings.ToLower(m.Target)]; ok {
		server = h.sessions[id].server
	} else if id, err := uuid.Parse(m.Target); err == nil {
		server = h.sessions[id].server
	}
	h.mu.RUnlock()

	if server == "" {
		h.dropped.Add(1)
		h.logger.Debug("lang target not online", "target", m.Target, "key", m.Key)
		return
	}
	if err := h.pub.Publish(bridge.SubjectBackend(server), m.Frame().Encode()); err != nil {
		h.logger.Warn("route failed", "server", server, "error", err)
		return
	}
	h.routed.Add(1)
}

// HandleFetch answers FetchProxyChannels with the proxy-defined units.
func (h *Hub) HandleFetch(data []byte) []byte {
	f, err := bridge.DecodeFrame(data)
	if err == nil {
		_, err = bridge.ParseFetchProxyChannels(f)
	}
	if err != nil {
		h.dropped.Add(1)
		h.logger.Warn("bad fetch request", "error", err)
		return bridge.EncodeBatch(nil)
	}
	return bridge.EncodeBatch(h.channels.Frames())
}

// PushChannels sends the complete set of proxy-defined units to every known
// backend as one batch. An empty set is pushed too, so backends drop units
// that were deleted.
func (h *Hub) PushChannels() {
	if h.pub == nil {
		return
	}
	data := bridge.EncodeBatch(h.channels.Frames())
	for _, b := range h.Backends() {
		if err := h.pub.Publish(bridge.SubjectBackend(b.ID), data); err != nil {
			h.logger.Warn("push failed", "server", b.ID, "error", err)
		}
	}
}

// Backends returns the known backends sorted by id.
func (h *Hub) Backends() []Backend {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Backend, 0, len(h.backends))
	for _, id := range slices.Sorted(maps.Keys(h.backends)) {
		out = append(out, *h.backends[id])
	}
	return out
}

// Locate returns the backend hosting the named session.
func (h *Hub) Locate(name string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.byName[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	return h.sessions[id].server, true
}

// SessionCount returns the number of tracked sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Counters returns the cumulative frame statistics.
func (h *Hub) Counters() Counters {
	return Counters{
		Relayed:   h.relayed.Load(),
		Routed:    h.routed.Load(),
		Dropped:   h.dropped.Load(),
		Delivered: h.delivered.Load(),
	}
}
