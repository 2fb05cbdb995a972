package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/filipexyz/chanrelay/internal/audit"
	"github.com/filipexyz/chanrelay/internal/bridge"
	"github.com/filipexyz/chanrelay/internal/format"
	"github.com/filipexyz/chanrelay/internal/session"
)

// Private sends a direct message from a session to target through the
// private channel channelID. A target on another backend receives the plain
// text as a Private-Message lang when the proxy tier can route it.
func (s *Service) Private(ctx context.Context, id uuid.UUID, channelID, target, msg string) error {
	return s.worker.Do(ctx, func() error {
		o, err := s.lookup(id)
		if err != nil {
			return err
		}
		ch, ok := s.registry.Get(channelID)
		if !ok || !ch.IsPrivate() {
			return fmt.Errorf("%w: %s is not a private channel", ErrUnknownChannel, channelID)
		}
		if strings.TrimSpace(msg) == "" {
			return ErrEmptyMessage
		}
		if !s.cooldown.Allow(id) {
			s.sendLang(o.s, LangCooldown)
			return ErrCooldown
		}

		to, local := s.findByName(target)
		rc := &format.RenderContext{Sender: o.s, Channel: ch.ID, Message: msg}
		if local {
			rc.Receiver = to.s
		} else {
			// The remote receiver is only known by name.
			rc.Receiver = &session.Session{Name: target}
		}
		if !ch.CanSpeak(rc.Document()) {
			s.sendLang(o.s, LangNoSpeak, ch.ID)
			return fmt.Errorf("%w: %s", ErrNoSpeak, ch.ID)
		}
		if s.runEvent(ctx, ch, ch.Events.Process, o.s, rc.Message) {
			return ErrCancelled
		}
		if ch.Settings.FilterBeforeSending && s.opts.Filter != nil {
			rc.Message = s.opts.Filter.Filter(rc.Message)
		}

		if !local {
			if !s.opts.Proxy.Enabled() {
				s.sendLang(o.s, LangPlayerNotExist, target)
				return fmt.Errorf("%w: %s", ErrUnknownTarget, target)
			}
			err := s.opts.Proxy.SendLang(bridge.SendLang{Target: target, Key: LangPrivateMessage, Arg: o.s.Name + ": " + rc.Message})
			if err != nil {
				s.logger.Warn("private message not forwarded", "target", target, "error", err)
				s.sendLang(o.s, LangPlayerNotExist, target)
				return fmt.Errorf("%w: %s", ErrUnknownTarget, target)
			}
		}

		s.expand(ctx, ch, rc)
		if c, ok := format.ResolveFormat(ch.Private.Sender, rc); ok {
			s.opts.Deliverer.Deliver(o.s, c)
		}
		if local {
			if c, ok := format.ResolveFormat(ch.Private.Receiver, rc); ok {
				s.opts.Deliverer.Deliver(to.s, c)
			}
		}
		s.console(ch, rc)
		s.opts.Audit.Log(ctx, actor(o.s), audit.ActionPrivate, ch.ID, map[string]any{"to": target, "message": rc.Message})
		s.runEvent(ctx, ch, ch.Events.Send, o.s, rc.Message)
		return nil
	})
}
