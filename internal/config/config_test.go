package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerID != "lobby" || cfg.ServerPort != 25565 {
		t.Errorf("identity = %s:%d", cfg.ServerID, cfg.ServerPort)
	}
	if cfg.ProxyEnabled() {
		t.Error("ProxyEnabled() = true by default")
	}
	if cfg.ChatCooldown != 2*time.Second {
		t.Errorf("ChatCooldown = %v", cfg.ChatCooldown)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_ID", "survival")
	t.Setenv("SERVER_PORT", "25566")
	t.Setenv("PROXY_PLATFORM", "velocity")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("FETCH_TIMEOUT", "500ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.ProxyEnabled() {
		t.Error("ProxyEnabled() = false")
	}
	if cfg.FetchTimeout != 500*time.Millisecond {
		t.Errorf("FetchTimeout = %v", cfg.FetchTimeout)
	}
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.CORSOrigins); diff != "" {
		t.Errorf("CORSOrigins mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadProxy(t *testing.T) {
	t.Setenv("EMBEDDED_NATS", "false")
	t.Setenv("PROXY_CHANNELS_DIR", "/etc/chanrelay/proxy")

	cfg, err := LoadProxy()
	if err != nil {
		t.Fatalf("LoadProxy() error = %v", err)
	}
	if cfg.EmbeddedNATS {
		t.Error("EmbeddedNATS = true")
	}
	if cfg.ChannelsDir != "/etc/chanrelay/proxy" {
		t.Errorf("ChannelsDir = %q", cfg.ChannelsDir)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	if _, err := Load(); err == nil {
		t.Error("Load() error = nil for a bad SERVER_PORT")
	}
}
