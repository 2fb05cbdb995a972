package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/filipexyz/chanrelay/internal/audit"
	"github.com/filipexyz/chanrelay/internal/channel"
	"github.com/filipexyz/chanrelay/internal/chat"
)

// ChannelsHandler exposes the channel registry and online sessions.
type ChannelsHandler struct {
	svc   *chat.Service
	audit chat.Auditor
}

// NewChannelsHandler creates a new ChannelsHandler. aud may be nil.
func NewChannelsHandler(svc *chat.Service, aud chat.Auditor) *ChannelsHandler {
	return &ChannelsHandler{svc: svc, audit: aud}
}

// ChannelResponse describes one registered channel.
type ChannelResponse struct {
	ID        string   `json:"id"`
	File      string   `json:"file"`
	Private   bool     `json:"private"`
	AutoJoin  bool     `json:"auto_join"`
	Proxy     bool     `json:"proxy"`
	Range     string   `json:"range"`
	Prefix    []string `json:"prefix,omitempty"`
	Command   []string `json:"command,omitempty"`
	Listeners int      `json:"listeners"`
	Formats   int      `json:"formats"`
}

func channelResponse(ch *channel.Channel) ChannelResponse {
	formats := len(ch.Formats)
	if ch.Private != nil {
		formats = len(ch.Private.Sender) + len(ch.Private.Receiver)
	}
	return ChannelResponse{
		ID:        ch.ID,
		File:      ch.File,
		Private:   ch.IsPrivate(),
		AutoJoin:  ch.Settings.AutoJoin,
		Proxy:     ch.Settings.Proxy,
		Range:     ch.Settings.Range.String(),
		Prefix:    ch.Bindings.Prefix,
		Command:   ch.Bindings.Command,
		Listeners: ch.ListenerCount(),
		Formats:   formats,
	}
}

// List returns every registered channel.
func (h *ChannelsHandler) List(w http.ResponseWriter, r *http.Request) {
	all := h.svc.Registry().All()
	out := make([]ChannelResponse, 0, len(all))
	for _, ch := range all {
		out = append(out, channelResponse(ch))
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": out, "count": len(out)})
}

// Get returns one channel.
func (h *ChannelsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.svc.Registry().Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	writeJSON(w, http.StatusOK, channelResponse(ch))
}

// Reload reloads the channel units from disk.
func (h *ChannelsHandler) Reload(w http.ResponseWriter, r *http.Request) {
	n, errs, err := h.svc.Reload(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	if h.audit != nil {
		ctx := audit.WithIP(r.Context(), audit.IPFromRequest(r))
		h.audit.Log(ctx, "api", audit.ActionReload, "", map[string]any{"loaded": n, "errors": len(msgs)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"loaded": n, "errors": msgs})
}

// Sessions lists the online sessions.
func (h *ChannelsHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	online, err := h.svc.Online(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if online == nil {
		online = []chat.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": online, "count": len(online)})
}
