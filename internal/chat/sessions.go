package chat

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/filipexyz/chanrelay/internal/audit"
	"github.com/filipexyz/chanrelay/internal/bridge"
	"github.com/filipexyz/chanrelay/internal/channel"
	"github.com/filipexyz/chanrelay/internal/format"
	"github.com/filipexyz/chanrelay/internal/reaction"
	"github.com/filipexyz/chanrelay/internal/session"
)

// Join brings a session online and joins it to every eligible auto-join
// channel. It returns the ids of the channels joined. The service keeps its
// own copy of the session.
func (s *Service) Join(ctx context.Context, in *session.Session) ([]string, error) {
	sess := new(session.Session)
	*sess = *in
	if sess.Server == "" {
		sess.Server = s.opts.ServerID
	}
	var joined []string
	err := s.worker.Do(ctx, func() error {
		if prev, ok := s.sessions[sess.ID]; ok {
			s.leaveAll(ctx, prev)
		}
		s.opts.Proxy.FetchProxyChannels(context.WithoutCancel(ctx), sess.ID)

		o := &online{s: sess}
		s.sessions[sess.ID] = o
		s.byName[strings.ToLower(sess.Name)] = sess.ID

		joined = s.autoJoin(ctx, o)
		if def, ok := s.registry.Get(s.opts.DefaultChannel); ok && def.Listening(sess.ID) {
			o.focus = def.ID
		} else if len(joined) > 0 {
			o.focus = joined[0]
		}

		if err := s.opts.Proxy.Presence(sess.ID, sess.Name, bridge.PresenceJoin); err != nil {
			s.logger.Warn("presence not sent", "session", sess.Name, "error", err)
		}
		s.opts.Audit.Log(ctx, actor(sess), audit.ActionJoin, sess.Server, nil)
		s.logger.Info("session joined", "session", sess.Name, "channels", joined)
		return nil
	})
	return joined, err
}

// autoJoin runs on the worker.
func (s *Service) autoJoin(ctx context.Context, o *online) []string {
	var joined []string
	for _, ch := range s.registry.EligibleChannels(o.s) {
		if ch.Join(o.s.ID) {
			joined = append(joined, ch.ID)
			s.runEvent(ctx, ch, ch.Events.Join, o.s, "")
		}
	}
	return joined
}

// Quit takes a session offline and removes it from every channel.
func (s *Service) Quit(ctx context.Context, id uuid.UUID) error {
	return s.worker.Do(ctx, func() error {
		o, err := s.lookup(id)
		if err != nil {
			return err
		}
		s.leaveAll(ctx, o)
		delete(s.sessions, id)
		if s.byName[strings.ToLower(o.s.Name)] == id {
			delete(s.byName, strings.ToLower(o.s.Name))
		}
		s.cooldown.Forget(id)

		if err := s.opts.Proxy.Presence(id, o.s.Name, bridge.PresenceQuit); err != nil {
			s.logger.Warn("presence not sent", "session", o.s.Name, "error", err)
		}
		s.opts.Audit.Log(ctx, actor(o.s), audit.ActionQuit, o.s.Server, nil)
		s.logger.Info("session quit", "session", o.s.Name)
		return nil
	})
}

func (s *Service) leaveAll(ctx context.Context, o *online) {
	for _, ch := range s.registry.All() {
		if ch.Leave(o.s.ID) {
			s.runEvent(ctx, ch, ch.Events.Quit, o.s, "")
		}
	}
}

// Move records a new position for a session. The stored session is
// replaced, never modified in place. An empty world keeps the current one.
func (s *Service) Move(ctx context.Context, id uuid.UUID, world string, x, y, z float64) error {
	return s.worker.Do(ctx, func() error {
		o, err := s.lookup(id)
		if err != nil {
			return err
		}
		next := *o.s
		if world != "" {
			next.World = world
		}
		next.X, next.Y, next.Z = x, y, z
		o.s = &next
		return nil
	})
}

// JoinChannel adds a session to a channel it asked for and focuses it. The
// join permission is checked; private channels cannot be joined.
func (s *Service) JoinChannel(ctx context.Context, id uuid.UUID, channelID string) error {
	return s.worker.Do(ctx, func() error {
		o, err := s.lookup(id)
		if err != nil {
			return err
		}
		ch, ok := s.registry.Get(channelID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownChannel, channelID)
		}
		if ch.IsPrivate() {
			return fmt.Errorf("%w: %s", ErrPrivateChannel, channelID)
		}
		if !ch.CanJoin(o.s) {
			s.sendLang(o.s, LangNoJoin, ch.ID)
			return fmt.Errorf("%w: %s", ErrNoPermission, channelID)
		}
		if ch.Join(id) {
			s.runEvent(ctx, ch, ch.Events.Join, o.s, "")
		}
		o.focus = ch.ID
		s.sendLang(o.s, LangJoin, ch.ID)
		return nil
	})
}

// LeaveChannel removes a session from a channel.
func (s *Service) LeaveChannel(ctx context.Context, id uuid.UUID, channelID string) error {
	return s.worker.Do(ctx, func() error {
		o, err := s.lookup(id)
		if err != nil {
			return err
		}
		ch, ok := s.registry.Get(channelID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownChannel, channelID)
		}
		if ch.Leave(id) {
			s.runEvent(ctx, ch, ch.Events.Quit, o.s, "")
			s.sendLang(o.s, LangQuit, ch.ID)
		}
		if o.focus == ch.ID {
			o.focus = ""
		}
		return nil
	})
}

// SessionInfo describes an online session.
type SessionInfo struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Focus    string    `json:"focus,omitempty"`
	Channels []string  `json:"channels"`
}

// Online lists the online sessions sorted by name.
func (s *Service) Online(ctx context.Context) ([]SessionInfo, error) {
	var out []SessionInfo
	err := s.worker.Do(ctx, func() error {
		channels := s.registry.All()
		for _, id := range slices.Collect(maps.Keys(s.sessions)) {
			o := s.sessions[id]
			info := SessionInfo{ID: id, Name: o.s.Name, Focus: o.focus, Channels: []string{}}
			for _, ch := range channels {
				if ch.Listening(id) {
					info.Channels = append(info.Channels, ch.ID)
				}
			}
			out = append(out, info)
		}
		slices.SortFunc(out, func(a, b SessionInfo) int { return strings.Compare(a.Name, b.Name) })
		return nil
	})
	return out, err
}

// Reload reloads the registry on the worker and re-joins online sessions to
// their auto-join channels. Explicit joins do not survive a reload.
func (s *Service) Reload(ctx context.Context) (int, []error, error) {
	var (
		n    int
		errs []error
	)
	err := s.worker.Do(ctx, func() error {
		n, errs = s.registry.Reload(ctx)
		s.rejoin(ctx, nil)
		return nil
	})
	return n, errs, err
}

// rejoin runs on the worker. When only is non-nil, just that channel is
// considered.
func (s *Service) rejoin(ctx context.Context, only *channel.Channel) {
	for _, id := range slices.Collect(maps.Keys(s.sessions)) {
		o := s.sessions[id]
		if only == nil {
			s.autoJoin(ctx, o)
			if _, ok := s.registry.Get(o.focus); !ok {
				o.focus = ""
			}
			continue
		}
		if !only.IsPrivate() && only.Settings.AutoJoin && only.CanJoin(o.s) && only.Join(id) {
			s.runEvent(ctx, only, only.Events.Join, o.s, "")
		}
	}
}

// SendLang delivers a localized message to a session by name. Sessions on
// other backends are reached through the proxy tier when it can route lang
// messages; otherwise the message is dropped.
func (s *Service) SendLang(ctx context.Context, target, key, arg string) error {
	return s.worker.Do(ctx, func() error {
		s.sendLangTo(target, key, arg)
		return nil
	})
}

func (s *Service) sendLangTo(target, key, arg string) bool {
	if o, ok := s.findByName(target); ok {
		s.sendLang(o.s, key, arg)
		return true
	}
	if !s.opts.Proxy.Enabled() {
		s.logger.Debug("lang target not local and proxy disabled", "target", target, "key", key)
		return false
	}
	if err := s.opts.Proxy.SendLang(bridge.SendLang{Target: target, Key: key, Arg: arg}); err != nil {
		s.logger.Warn("lang not forwarded", "target", target, "error", err)
		return false
	}
	return s.opts.Proxy.Platform().RoutesLang()
}

// runEvent runs a channel lifecycle reaction for subject and reports whether
// it cancelled. message is empty outside the chat flows.
func (s *Service) runEvent(ctx context.Context, ch *channel.Channel, r *reaction.Reaction, subject *session.Session, message string) bool {
	if r == nil {
		return false
	}
	rc := &format.RenderContext{Sender: subject, Channel: ch.ID, Message: message}
	return r.Run(ctx, s.opts.Executor, rc.Document(), subject, s.logger)
}
