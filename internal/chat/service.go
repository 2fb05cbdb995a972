// Package chat is the backend chat service. It owns the online sessions and
// runs the join, quit, chat, private and remote flows on a single worker.
package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/filipexyz/chanrelay/internal/bridge"
	"github.com/filipexyz/chanrelay/internal/channel"
	"github.com/filipexyz/chanrelay/internal/function"
	"github.com/filipexyz/chanrelay/internal/reaction"
	"github.com/filipexyz/chanrelay/internal/richtext"
	"github.com/filipexyz/chanrelay/internal/session"
)

// Lang keys sent to sessions through the LangSender.
const (
	LangNoSpeak        = "Channel-No-Speak-Permission"
	LangNoJoin         = "Channel-No-Join-Permission"
	LangJoin           = "Channel-Join"
	LangQuit           = "Channel-Quit"
	LangCooldown       = "Cooldowns-Chat"
	LangPlayerNotExist = "Command-Player-Not-Exist"
	LangPrivateMessage = "Private-Message"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrUnknownChannel = errors.New("unknown channel")
	ErrUnknownTarget  = errors.New("target not online")
	ErrNoPermission   = errors.New("permission denied")
	ErrNoSpeak        = errors.New("speak condition not met")
	ErrCooldown       = errors.New("chat cooldown")
	ErrCancelled      = errors.New("cancelled by reaction")
	ErrPrivateChannel = errors.New("private channel")
	ErrEmptyMessage   = errors.New("empty message")
)

// Deliverer shows a rendered message to a session.
type Deliverer interface {
	Deliver(to *session.Session, msg *richtext.Component)
}

// LangSender sends a localized system message to a local session.
type LangSender interface {
	SendLang(to *session.Session, key string, args ...string)
}

// DiscordBridge mirrors channel traffic to Discord.
type DiscordBridge interface {
	SendToDiscord(ch *channel.Channel, sender *session.Session, plain string)
}

// ContentFilter rewrites a message before it is rendered.
type ContentFilter interface {
	Filter(message string) string
}

// Auditor records chat actions for moderation. *audit.Logger implements it.
type Auditor interface {
	Log(ctx context.Context, actor, action, target string, detail map[string]any)
}

// Proxy is the backend's link to the proxy tier.
type Proxy interface {
	Enabled() bool
	Platform() bridge.Platform
	ServerID() string
	Port() int
	Forward(bridge.ChatForward) error
	SendLang(bridge.SendLang) error
	Presence(id uuid.UUID, name string, state bridge.PresenceState) error
	FetchProxyChannels(ctx context.Context, sessionID uuid.UUID) bool
}

// Options configures a Service.
type Options struct {
	ServerID       string
	Port           int
	DefaultChannel string
	Cooldown       time.Duration
	Burst          int

	Deliverer Deliverer
	Lang      LangSender
	Executor  reaction.Executor
	Proxy     Proxy
	Discord   DiscordBridge
	Filter    ContentFilter
	Audit     Auditor
	Functions *function.Set

	// Console receives the ANSI console render of every line. Nil discards.
	Console   io.Writer
	Colorizer *richtext.Colorizer
}

type online struct {
	s     *session.Session
	focus string
}

// Service is the chat core of one backend process.
type Service struct {
	opts      Options
	registry  *channel.Registry
	functions atomic.Pointer[function.Set]
	worker    *Worker
	cooldown  *Cooldown
	logger    *slog.Logger

	// Owned by the worker.
	sessions map[uuid.UUID]*online
	byName   map[string]uuid.UUID
}

// NewService creates a service around registry. Collaborators left nil in
// opts are replaced with no-ops.
func NewService(registry *channel.Registry, worker *Worker, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Deliverer == nil {
		opts.Deliverer = nopDeliverer{}
	}
	if opts.Lang == nil {
		opts.Lang = nopLang{}
	}
	if opts.Executor == nil {
		opts.Executor = nopExecutor{}
	}
	if opts.Audit == nil {
		opts.Audit = nopAuditor{}
	}
	if opts.Console == nil {
		opts.Console = io.Discard
	}
	if opts.Colorizer == nil {
		opts.Colorizer = richtext.NewColorizer(false)
	}
	if opts.Proxy == nil {
		opts.Proxy = bridge.New(bridge.Config{ServerID: opts.ServerID, Port: opts.Port}, nil, logger)
	}
	s := &Service{
		opts:     opts,
		registry: registry,
		worker:   worker,
		cooldown: NewCooldown(opts.Cooldown, opts.Burst),
		logger:   logger.With("component", "chat"),
		sessions: make(map[uuid.UUID]*online),
		byName:   make(map[string]uuid.UUID),
	}
	s.functions.Store(opts.Functions)
	return s
}

// Registry returns the channel registry.
func (s *Service) Registry() *channel.Registry { return s.registry }

// Worker returns the worker the service runs on.
func (s *Service) Worker() *Worker { return s.worker }

// SetFunctions swaps the custom function set.
func (s *Service) SetFunctions(set *function.Set) {
	s.functions.Store(set)
}

// Close releases background resources.
func (s *Service) Close() {
	s.cooldown.Stop()
}

// session lookups run on the worker.

func (s *Service) lookup(id uuid.UUID) (*online, error) {
	o, ok := s.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return o, nil
}

func (s *Service) findByName(name string) (*online, bool) {
	if id, ok := s.byName[strings.ToLower(name)]; ok {
		return s.sessions[id], true
	}
	if id, err := uuid.Parse(name); err == nil {
		o, ok := s.sessions[id]
		return o, ok
	}
	return nil, false
}

func (s *Service) sendLang(to *session.Session, key string, args ...string) {
	s.opts.Lang.SendLang(to, key, args...)
}

type nopDeliverer struct{}

func (nopDeliverer) Deliver(*session.Session, *richtext.Component) {}

type nopLang struct{}

func (nopLang) SendLang(*session.Session, string, ...string) {}

type nopExecutor struct{}

func (nopExecutor) Execute(context.Context, reaction.Kind, string, *session.Session) error {
	return nil
}

type nopAuditor struct{}

func (nopAuditor) Log(context.Context, string, string, string, map[string]any) {}

func actor(s *session.Session) string { return "session:" + s.Name }
