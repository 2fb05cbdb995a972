package bridge

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/filipexyz/chanrelay/internal/channel"
)

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		in      string
		want    Platform
		wantErr bool
	}{
		{"", PlatformNone, false},
		{"none", PlatformNone, false},
		{"Bungee", PlatformBungee, false},
		{" velocity ", PlatformVelocity, false},
		{"waterfall", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePlatform(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrProxyUnsupported) {
				t.Errorf("ParsePlatform(%q) error = %v, want ErrProxyUnsupported", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParsePlatform(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}

	if PlatformBungee.RoutesLang() || !PlatformVelocity.RoutesLang() {
		t.Error("only velocity routes lang messages")
	}
	if PlatformNone.Enabled() {
		t.Error("none is enabled")
	}
}

func TestShouldForward(t *testing.T) {
	base := channel.Settings{Proxy: true, DoubleTransfer: true}
	with := func(f func(*channel.Settings)) channel.Settings {
		s := base
		f(&s)
		return s
	}

	tests := []struct {
		name     string
		settings channel.Settings
		relayed  bool
		hops     int
		port     int
		want     bool
	}{
		{"local line", base, false, 0, 25565, true},
		{"proxy disabled", with(func(s *channel.Settings) { s.Proxy = false }), false, 0, 25565, false},
		{"relayed with double transfer", base, true, 1, 25565, true},
		{"relayed without double transfer", with(func(s *channel.Settings) { s.DoubleTransfer = false }), true, 1, 25565, false},
		{"hop limit", base, true, MaxHops, 25565, false},
		{"force keeps double transfer off", with(func(s *channel.Settings) {
			s.DoubleTransfer = false
			s.ForceProxy = true
		}), true, 1, 25565, false},
		{"force keeps hop limit", with(func(s *channel.Settings) { s.ForceProxy = true }), true, MaxHops, 25565, false},
		{"force relays with double transfer", with(func(s *channel.Settings) { s.ForceProxy = true }), true, 1, 25570, true},
		{"port listed", with(func(s *channel.Settings) { s.Ports = []int{25565, 25566} }), false, 0, 25566, true},
		{"port not listed", with(func(s *channel.Settings) { s.Ports = []int{25565} }), false, 0, 25570, false},
		{"force ignores ports", with(func(s *channel.Settings) {
			s.Ports = []int{25565}
			s.ForceProxy = true
		}), false, 0, 25570, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldForward(tt.settings, tt.relayed, tt.hops, tt.port); got != tt.want {
				t.Errorf("ShouldForward() = %v, want %v", got, tt.want)
			}
		})
	}
}

func loadChannel(t *testing.T, id, src string) *channel.Channel {
	t.Helper()
	l, err := channel.NewLoader(nil)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	ch, err := l.LoadChannel(id, []byte(src))
	if err != nil {
		t.Fatalf("LoadChannel() error = %v", err)
	}
	return ch
}

func TestAccept(t *testing.T) {
	global := loadChannel(t, "Global", "Options: {Proxy: true, Ports: '25565;25566'}\n")
	local := loadChannel(t, "Local", "Options: {}\n")
	fwd := ChatForward{ChannelID: "Global", SenderID: uuid.New(), SenderName: "alice", Message: "hi", OriginServer: "lobby"}

	tests := []struct {
		name   string
		ch     *channel.Channel
		server string
		port   int
		want   bool
	}{
		{"other backend", global, "survival", 25566, true},
		{"own line", global, "lobby", 25565, false},
		{"port outside list", global, "survival", 25600, false},
		{"not proxy enabled", local, "survival", 25566, false},
		{"unknown channel", nil, "survival", 25566, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Accept(tt.ch, fwd, tt.server, tt.port); got != tt.want {
				t.Errorf("Accept() = %v, want %v", got, tt.want)
			}
		})
	}
}
