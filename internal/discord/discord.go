// Package discord mirrors chat channels to Discord text channels through a
// bot session, in both directions.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/filipexyz/chanrelay/internal/channel"
	"github.com/filipexyz/chanrelay/internal/richtext"
	"github.com/filipexyz/chanrelay/internal/session"
)

// MaxContent is Discord's message length limit.
const MaxContent = 2000

// Receiver takes messages posted in a mirrored Discord channel.
type Receiver interface {
	HandleDiscord(discordChannel, author, content string)
}

// Sender posts a message to a Discord channel. *discordgo.Session
// implements it.
type Sender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type outbound struct {
	channelID string
	channel   string
	content   string
}

// Bridge is the chat service's link to Discord.
type Bridge struct {
	session  *discordgo.Session
	sender   Sender
	receiver atomic.Pointer[Receiver]
	queue    chan outbound
	logger   *slog.Logger
}

// New creates a bridge for a bot token. Open connects it.
func New(token string, logger *slog.Logger) (*Bridge, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	b := NewWithSender(s, logger)
	b.session = s
	s.AddHandler(func(_ *discordgo.Session, event *discordgo.MessageCreate) {
		b.onMessage(event)
	})
	return b, nil
}

// NewWithSender creates a bridge that posts through sender and has no
// gateway connection of its own.
func NewWithSender(sender Sender, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		sender: sender,
		queue:  make(chan outbound, 256),
		logger: logger.With("component", "discord"),
	}
}

// SetReceiver routes inbound Discord messages to r.
func (b *Bridge) SetReceiver(r Receiver) {
	b.receiver.Store(&r)
}

// Open connects the gateway for inbound messages.
func (b *Bridge) Open() error {
	if b.session == nil {
		return nil
	}
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	return nil
}

// Close disconnects the gateway.
func (b *Bridge) Close() error {
	if b.session == nil {
		return nil
	}
	return b.session.Close()
}

// SendToDiscord queues plain for the channel's Discord channel. It never
// blocks the chat worker; a full queue drops the line.
func (b *Bridge) SendToDiscord(ch *channel.Channel, sender *session.Session, plain string) {
	target := ch.Settings.DiscordChannel
	if target == "" {
		return
	}
	content := richtext.Strip(plain)
	if sender != nil {
		content = "**" + sender.Name + "**: " + content
	}
	select {
	case b.queue <- outbound{channelID: target, channel: ch.ID, content: truncate(content)}:
	default:
		b.logger.Warn("discord queue full, dropping line", "channel", ch.ID)
	}
}

// Run posts queued lines until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-b.queue:
			b.post(m)
		}
	}
}

func (b *Bridge) post(m outbound) {
	_, err := b.sender.ChannelMessageSendComplex(m.channelID, &discordgo.MessageSend{
		Content:         m.content,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	if err != nil {
		b.logger.Warn("failed to post to Discord", "channel", m.channel, "discord_channel", m.channelID, "error", err)
	}
}

func (b *Bridge) onMessage(event *discordgo.MessageCreate) {
	if event.Author == nil || event.Author.Bot {
		return
	}
	r := b.receiver.Load()
	if r == nil {
		return
	}
	content := strings.TrimSpace(event.Content)
	if content == "" {
		return
	}
	name := event.Author.GlobalName
	if name == "" {
		name = event.Author.Username
	}
	(*r).HandleDiscord(event.ChannelID, name, content)
}

func truncate(s string) string {
	if len(s) <= MaxContent {
		return s
	}
	cut := MaxContent - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
