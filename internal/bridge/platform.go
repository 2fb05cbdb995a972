package bridge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/filipexyz/chanrelay/internal/channel"
)

var (
	// ErrProxyUnsupported is returned for an unknown proxy platform.
	ErrProxyUnsupported = errors.New("unsupported proxy platform")
	// ErrProxyUnavailable is returned when the proxy tier cannot be reached.
	ErrProxyUnavailable = errors.New("proxy unavailable")
)

// Platform is the proxy software fronting the backends. It is chosen once
// at startup.
type Platform string

const (
	PlatformNone     Platform = "none"
	PlatformBungee   Platform = "bungee"
	PlatformVelocity Platform = "velocity"
)

// ParsePlatform maps a configured name to a Platform. An empty name means
// none.
func ParsePlatform(name string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(name))); p {
	case "", PlatformNone:
		return PlatformNone, nil
	case PlatformBungee, PlatformVelocity:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrProxyUnsupported, name)
}

// Enabled reports whether the platform carries any traffic.
func (p Platform) Enabled() bool {
	return p == PlatformBungee || p == PlatformVelocity
}

// RoutesLang reports whether SendLang frames can be delivered to players on
// other backends.
func (p Platform) RoutesLang() bool {
	return p == PlatformVelocity
}

// MaxHops bounds relays of one message.
const MaxHops = 2

// ShouldForward decides whether a line sent in a channel is offered to the
// proxy tier. relayed is true when the line itself arrived from another
// backend.
func ShouldForward(s channel.Settings, relayed bool, hops, localPort int) bool {
	if !s.Proxy {
		return false
	}
	if relayed && (!s.DoubleTransfer || hops >= MaxHops) {
		return false
	}
	return s.ForceProxy || s.HasPort(localPort)
}

// Accept decides whether a forwarded line is rendered locally.
func Accept(ch *channel.Channel, fwd ChatForward, localServer string, localPort int) bool {
	if ch == nil || !ch.Settings.Proxy || ch.IsPrivate() {
		return false
	}
	if fwd.OriginServer == localServer {
		return false
	}
	return ch.Settings.HasPort(localPort)
}
