package chat

import (
	"context"
	"maps"

	"github.com/google/uuid"

	"github.com/filipexyz/chanrelay/internal/bridge"
	"github.com/filipexyz/chanrelay/internal/format"
	"github.com/filipexyz/chanrelay/internal/session"
)

var _ bridge.Handler = (*Service)(nil)

// HandleForward renders a line sent on another backend. It runs on the
// worker; the bridge callback only enqueues it.
func (s *Service) HandleForward(fwd bridge.ChatForward) {
	s.submit(func(ctx context.Context) {
		ch, ok := s.registry.Get(fwd.ChannelID)
		if !bridge.Accept(ch, fwd, s.opts.ServerID, s.opts.Port) {
			if ok {
				s.logger.Debug("forwarded line not accepted", "channel", fwd.ChannelID, "origin", fwd.OriginServer)
			}
			return
		}

		sender := &session.Session{ID: fwd.SenderID, Name: fwd.SenderName, Server: fwd.OriginServer}
		rc := &format.RenderContext{Sender: sender, Channel: ch.ID, Message: fwd.Message, Relayed: true}
		s.expand(ctx, ch, rc)
		n := s.broadcast(ch, rc, true)
		s.console(ch, rc)
		s.logger.Debug("forwarded line delivered", "channel", ch.ID, "origin", fwd.OriginServer, "recipients", n)

		if bridge.ShouldForward(ch.Settings, true, fwd.Hops, s.opts.Port) {
			relay := fwd
			relay.Hops++
			s.forward(relay)
		}
	})
}

// HandleLang delivers a lang message routed to a local session.
func (s *Service) HandleLang(msg bridge.SendLang) {
	s.submit(func(context.Context) {
		o, ok := s.findByName(msg.Target)
		if !ok {
			s.logger.Debug("lang target not online", "target", msg.Target)
			return
		}
		s.sendLang(o.s, msg.Key, msg.Arg)
	})
}

// HandleProxyChannel registers a channel unit owned by the proxy tier and
// joins online sessions to it when it auto-joins.
func (s *Service) HandleProxyChannel(pc bridge.ProxyChannel) {
	s.submit(func(ctx context.Context) {
		ch, err := s.registry.AddRemote(pc.ChannelID, []byte(pc.Source))
		if err != nil {
			s.logger.Warn("proxy channel rejected", "channel", pc.ChannelID, "error", err)
			return
		}
		s.rejoin(ctx, ch)
	})
}

// HandleProxyChannels replaces the proxy-defined channels with set. Units
// the proxy tier no longer defines are removed and sessions focused on them
// fall back to their default channel.
func (s *Service) HandleProxyChannels(set []bridge.ProxyChannel) {
	units := make(map[string][]byte, len(set))
	for _, pc := range set {
		units[pc.ChannelID] = []byte(pc.Source)
	}
	s.submit(func(ctx context.Context) {
		added, errs := s.registry.ReplaceRemote(units)
		for _, err := range errs {
			s.logger.Warn("proxy channel rejected", "error", err)
		}
		for _, ch := range added {
			s.rejoin(ctx, ch)
		}
		for _, o := range s.sessions {
			if _, ok := s.registry.Get(o.focus); !ok {
				o.focus = ""
			}
		}
	})
}

func (s *Service) submit(fn func(ctx context.Context)) {
	ctx := context.Background()
	if err := s.worker.Submit(ctx, func() { fn(ctx) }); err != nil {
		s.logger.Warn("remote event dropped", "error", err)
	}
}

// Sessions returns a copy of the online sessions keyed by lower-cased name.
func (s *Service) Sessions(ctx context.Context) (map[string]uuid.UUID, error) {
	var out map[string]uuid.UUID
	err := s.worker.Do(ctx, func() error {
		out = maps.Clone(s.byName)
		return nil
	})
	return out, err
}
