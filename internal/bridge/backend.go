package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// SubjectProxy carries frames from backends to the proxy tier.
	SubjectProxy = "chanrelay.proxy"
	// SubjectFetch is the request/reply subject for FetchProxyChannels.
	SubjectFetch = "chanrelay.fetch"

	subjectBackendPrefix = "chanrelay.backend."

	DefaultFetchTimeout = 3 * time.Second
)

// SubjectBackend is the subject a single backend listens on.
func SubjectBackend(serverID string) string {
	return subjectBackendPrefix + serverID
}

// Transport moves encoded frames between processes. Delivery is at most
// once.
type Transport interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, fn func(data []byte)) (unsubscribe func() error, err error)
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

// Handler receives frames addressed to this backend. Calls arrive on the
// transport's goroutine; implementations hand work to their own worker.
type Handler interface {
	HandleForward(ChatForward)
	HandleLang(SendLang)
	HandleProxyChannel(ProxyChannel)
	// HandleProxyChannels receives the complete set of proxy-defined
	// channels; units missing from it no longer exist.
	HandleProxyChannels([]ProxyChannel)
}

// Config identifies this backend to the proxy tier.
type Config struct {
	ServerID     string
	Port         int
	Platform     Platform
	FetchTimeout time.Duration
}

// Bridge is the backend's connection to the proxy tier.
type Bridge struct {
	cfg       Config
	transport Transport
	handler   Handler
	logger    *slog.Logger

	fetchOnce sync.Once
	unsub     func() error
}

// New creates a bridge. transport may be nil when the platform is none.
func New(cfg Config, transport Transport, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Platform == "" {
		cfg.Platform = PlatformNone
	}
	return &Bridge{cfg: cfg, transport: transport, logger: logger.With("component", "bridge")}
}

// Platform returns the configured platform.
func (b *Bridge) Platform() Platform { return b.cfg.Platform }

// ServerID returns this backend's id.
func (b *Bridge) ServerID() string { return b.cfg.ServerID }

// Port returns this backend's port.
func (b *Bridge) Port() int { return b.cfg.Port }

// Enabled reports whether frames are exchanged with the proxy tier.
func (b *Bridge) Enabled() bool {
	return b.cfg.Platform.Enabled() && b.transport != nil
}

// Start subscribes to this backend's subject and announces it.
func (b *Bridge) Start(h Handler) error {
	b.handler = h
	if !b.Enabled() {
		b.logger.Info("proxy forwarding disabled", "platform", b.cfg.Platform)
		return nil
	}
	unsub, err := b.transport.Subscribe(SubjectBackend(b.cfg.ServerID), b.receive)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectBackend(b.cfg.ServerID), err)
	}
	b.unsub = unsub
	b.logger.Info("bridge started", "server", b.cfg.ServerID, "port", b.cfg.Port, "platform", b.cfg.Platform)
	return b.Presence(uuid.Nil, "", PresenceHello)
}

// Close stops receiving frames.
func (b *Bridge) Close() error {
	if b.unsub == nil {
		return nil
	}
	return b.unsub()
}

func (b *Bridge) receive(data []byte) {
	if isBatch(data) {
		b.receiveChannelSet(data)
		return
	}
	f, err := DecodeFrame(data)
	if err != nil {
		b.logger.Warn("dropping frame", "error", err)
		return
	}
	if b.handler == nil {
		return
	}
	switch f.Kind {
	case KindChatForward:
		m, err := ParseChatForward(f)
		if err != nil {
			b.logger.Warn("dropping frame", "kind", f.Kind, "error", err)
			return
		}
		b.handler.HandleForward(m)
	case KindSendLang:
		m, err := ParseSendLang(f)
		if err != nil {
			b.logger.Warn("dropping frame", "kind", f.Kind, "error", err)
			return
		}
		b.handler.HandleLang(m)
	case KindProxyChannel:
		m, err := ParseProxyChannel(f)
		if err != nil {
			b.logger.Warn("dropping frame", "kind", f.Kind, "error", err)
			return
		}
		b.handler.HandleProxyChannel(m)
	default:
		b.logger.Debug("ignoring frame", "kind", f.Kind)
	}
}

func (b *Bridge) publish(f Frame) error {
	if !b.Enabled() {
		return nil
	}
	if err := b.transport.Publish(SubjectProxy, f.Encode()); err != nil {
		return fmt.Errorf("%w: %v", ErrProxyUnavailable, err)
	}
	return nil
}

// Forward offers a chat line to the proxy tier.
func (b *Bridge) Forward(m ChatForward) error {
	if m.OriginServer == "" {
		m.OriginServer = b.cfg.ServerID
	}
	return b.publish(m.Frame())
}

// SendLang routes a localized message to a player on another backend.
// Platforms that cannot route it drop the message.
func (b *Bridge) SendLang(m SendLang) error {
	if !b.cfg.Platform.RoutesLang() {
		b.logger.Debug("platform cannot route lang messages, dropping", "platform", b.cfg.Platform, "key", m.Key)
		return nil
	}
	return b.publish(m.Frame())
}

// Presence reports a session arriving on or leaving this backend.
func (b *Bridge) Presence(id uuid.UUID, name string, state PresenceState) error {
	return b.publish(Presence{
		ServerID:    b.cfg.ServerID,
		Port:        b.cfg.Port,
		SessionID:   id,
		SessionName: name,
		State:       state,
	}.Frame())
}

// FetchProxyChannels asks the proxy tier for its channels the first time a
// session arrives. The request runs in the background; on timeout the
// backend stays local-only. It reports whether a request was started.
func (b *Bridge) FetchProxyChannels(ctx context.Context, sessionID uuid.UUID) bool {
	if !b.Enabled() {
		return false
	}
	started := false
	b.fetchOnce.Do(func() {
		started = true
		go func() {
			if err := b.fetchProxyChannels(ctx, sessionID); err != nil {
				b.logger.Warn("proxy channels unavailable, continuing local-only", "error", err)
			}
		}()
	})
	return started
}

func (b *Bridge) fetchProxyChannels(ctx context.Context, sessionID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.FetchTimeout)
	defer cancel()

	reply, err := b.transport.Request(ctx, SubjectFetch, FetchProxyChannels{SessionID: sessionID}.Frame().Encode())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProxyUnavailable, err)
	}
	frames, err := DecodeBatch(reply)
	if err != nil {
		return err
	}

	set, err := proxyChannels(frames)
	if b.handler != nil {
		b.handler.HandleProxyChannels(set)
	}
	b.logger.Info("received proxy channels", "count", len(set))
	return err
}

// receiveChannelSet handles a channel set pushed by the proxy tier.
func (b *Bridge) receiveChannelSet(data []byte) {
	frames, err := DecodeBatch(data)
	if err != nil {
		b.logger.Warn("dropping channel set", "error", err)
		return
	}
	set, err := proxyChannels(frames)
	if err != nil {
		b.logger.Warn("channel set has malformed units", "error", err)
	}
	if b.handler != nil {
		b.handler.HandleProxyChannels(set)
	}
}

func proxyChannels(frames []Frame) ([]ProxyChannel, error) {
	set := make([]ProxyChannel, 0, len(frames))
	var errs []error
	for _, f := range frames {
		m, err := ParseProxyChannel(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		set = append(set, m)
	}
	return set, errors.Join(errs...)
}

// isBatch reports whether data is an EncodeBatch array rather than a
// single frame.
func isBatch(data []byte) bool {
	data = bytes.TrimSpace(data)
	if len(data) < 2 || data[0] != '[' {
		return false
	}
	rest := bytes.TrimSpace(data[1:])
	return len(rest) > 0 && (rest[0] == '[' || rest[0] == ']')
}
