package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/filipexyz/chanrelay/internal/audit"
	"github.com/filipexyz/chanrelay/internal/bridge"
	"github.com/filipexyz/chanrelay/internal/channel"
	"github.com/filipexyz/chanrelay/internal/format"
	"github.com/filipexyz/chanrelay/internal/session"
)

// Result summarizes one chat line after it ran.
type Result struct {
	Channel    string
	Delivered  int
	Forwarded  bool
	Cancelled  bool
	Components int
}

// Chat handles a line typed by a session. A binding prefix selects its
// channel; otherwise the session's focused channel, then the default
// channel, is used.
func (s *Service) Chat(ctx context.Context, id uuid.UUID, line string) (Result, error) {
	var res Result
	err := s.worker.Do(ctx, func() error {
		o, err := s.lookup(id)
		if err != nil {
			return err
		}
		ch, msg, err := s.pick(o, line)
		if err != nil {
			return err
		}
		res.Channel = ch.ID
		if strings.TrimSpace(msg) == "" {
			return ErrEmptyMessage
		}

		if !s.cooldown.Allow(id) {
			s.sendLang(o.s, LangCooldown)
			return ErrCooldown
		}

		rc := &format.RenderContext{Sender: o.s, Channel: ch.ID, Message: msg}
		if !ch.CanSpeak(rc.Document()) {
			s.sendLang(o.s, LangNoSpeak, ch.ID)
			return fmt.Errorf("%w: %s", ErrNoSpeak, ch.ID)
		}
		if s.runEvent(ctx, ch, ch.Events.Process, o.s, rc.Message) {
			res.Cancelled = true
			return ErrCancelled
		}

		if ch.Settings.FilterBeforeSending && s.opts.Filter != nil {
			msg = s.opts.Filter.Filter(msg)
			rc.Message = msg
		}
		s.expand(ctx, ch, rc)
		res.Components = len(rc.Body)

		res.Delivered = s.broadcast(ch, rc, false)
		s.console(ch, rc)
		s.opts.Audit.Log(ctx, actor(o.s), audit.ActionChat, ch.ID, map[string]any{"message": msg, "recipients": res.Delivered})
		s.runEvent(ctx, ch, ch.Events.Send, o.s, rc.Message)

		if bridge.ShouldForward(ch.Settings, false, 0, s.opts.Port) {
			res.Forwarded = s.forward(bridge.ChatForward{
				ChannelID:  ch.ID,
				SenderID:   o.s.ID,
				SenderName: o.s.Name,
				Message:    msg,
			})
		}
		if ch.Settings.SendToDiscord && ch.Settings.DiscordChannel != "" && s.opts.Discord != nil {
			s.opts.Discord.SendToDiscord(ch, o.s, msg)
		}
		return nil
	})
	return res, err
}

// pick resolves the target channel and the message without its prefix.
func (s *Service) pick(o *online, line string) (*channel.Channel, string, error) {
	if ch, rest, ok := s.registry.ByPrefix(line); ok && ch.CanJoin(o.s) {
		return ch, rest, nil
	}
	for _, id := range []string{o.focus, s.opts.DefaultChannel} {
		if id == "" {
			continue
		}
		if ch, ok := s.registry.Get(id); ok && !ch.IsPrivate() {
			return ch, line, nil
		}
	}
	return nil, "", fmt.Errorf("%w: no channel focused", ErrUnknownChannel)
}

// expand runs the custom functions over the message, filling rc.Body, and
// runs the actions of every function that matched.
func (s *Service) expand(ctx context.Context, ch *channel.Channel, rc *format.RenderContext) {
	set := s.functions.Load()
	if set.Len() == 0 {
		return
	}
	doc := rc.Document()
	body, triggers := set.Apply(rc.Message, doc, ch.Settings.DisabledFunctions)
	rc.Body = body
	for _, t := range triggers {
		if t.Function.Action == nil {
			continue
		}
		t.Function.Action.Run(ctx, s.opts.Executor, doc, rc.Sender, s.logger)
	}
}

// broadcast renders rc for every recipient in range and delivers it. Relayed
// lines ignore range, since the sender is on another backend.
func (s *Service) broadcast(ch *channel.Channel, rc *format.RenderContext, relayed bool) int {
	delivered := 0
	for _, o := range s.recipients(ch, rc.Sender, relayed) {
		r := *rc
		r.Receiver = o.s
		c, ok := format.ResolveFormat(ch.Formats, &r)
		if !ok {
			continue
		}
		s.opts.Deliverer.Deliver(o.s, c)
		delivered++
	}
	return delivered
}

func (s *Service) recipients(ch *channel.Channel, sender *session.Session, relayed bool) []*online {
	var out []*online
	seenSender := false
	for _, id := range ch.Listeners() {
		o, ok := s.sessions[id]
		if !ok || !ch.CanListen(o.s) {
			continue
		}
		if !relayed && !inRange(ch.Settings.Range, sender, o.s) {
			continue
		}
		if o.s.ID == sender.ID {
			seenSender = true
		}
		out = append(out, o)
	}
	if !relayed && !seenSender {
		if o, ok := s.sessions[sender.ID]; ok {
			out = append(out, o)
		}
	}
	return out
}

func inRange(r channel.Range, sender, receiver *session.Session) bool {
	switch r.Type {
	case channel.RangeSelf:
		return sender.ID == receiver.ID
	case channel.RangeServer:
		return sender.Server == receiver.Server
	case channel.RangeWorld:
		return sender.Server == receiver.Server && sender.World == receiver.World
	case channel.RangeRadius:
		d := sender.Distance(receiver)
		if d < 0 {
			return false
		}
		return r.Distance < 0 || d <= float64(r.Distance)
	}
	return true
}

// console renders the line for the process log. Console formats carry no
// conditions; the first one is used, falling back to the channel formats.
func (s *Service) console(ch *channel.Channel, rc *format.RenderContext) {
	formats := ch.Console
	if len(formats) == 0 {
		formats = ch.Formats
	}
	c, ok := format.ResolveFormat(formats, rc)
	if !ok {
		return
	}
	fmt.Fprintln(s.opts.Console, s.opts.Colorizer.Render(c))
}

func (s *Service) forward(fwd bridge.ChatForward) bool {
	if !s.opts.Proxy.Enabled() {
		return false
	}
	if err := s.opts.Proxy.Forward(fwd); err != nil {
		s.logger.Warn("chat not forwarded", "channel", fwd.ChannelID, "error", err)
		return false
	}
	return true
}
