package chat

import (
	"context"

	"github.com/google/uuid"

	"github.com/filipexyz/chanrelay/internal/format"
	"github.com/filipexyz/chanrelay/internal/session"
)

// DiscordServer is the Server of sessions that speak from Discord.
const DiscordServer = "discord"

// HandleDiscord renders a message posted in a Discord channel into every
// channel mirrored to it. Discord lines are range exempt and never
// forwarded back to Discord or to the proxy tier.
func (s *Service) HandleDiscord(discordChannel, author, content string) {
	s.submit(func(ctx context.Context) {
		sender := &session.Session{
			ID:     uuid.NewSHA1(uuid.NameSpaceOID, []byte("discord:"+author)),
			Name:   author,
			Server: DiscordServer,
		}
		for _, ch := range s.registry.All() {
			st := ch.Settings
			if ch.IsPrivate() || !st.ReceiveFromDiscord || st.DiscordChannel != discordChannel {
				continue
			}
			msg := content
			if st.FilterBeforeSending && s.opts.Filter != nil {
				msg = s.opts.Filter.Filter(msg)
			}
			rc := &format.RenderContext{Sender: sender, Channel: ch.ID, Message: msg, Relayed: true}
			s.expand(ctx, ch, rc)
			n := s.broadcast(ch, rc, true)
			s.console(ch, rc)
			s.logger.Debug("discord line delivered", "channel", ch.ID, "author", author, "recipients", n)
		}
	})
}
