package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config is the backend (chatd) process configuration.
type Config struct {
	// Server
	Port            string        `env:"PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Identity of this backend on the proxy network
	ServerID   string `env:"SERVER_ID" envDefault:"lobby"`
	ServerPort int    `env:"SERVER_PORT" envDefault:"25565"`

	// Chat
	ChannelsDir     string        `env:"CHANNELS_DIR" envDefault:"channels"`
	FunctionsFile   string        `env:"FUNCTIONS_FILE"`
	DefaultChannel  string        `env:"DEFAULT_CHANNEL" envDefault:"Normal"`
	PrivateChannel  string        `env:"PRIVATE_CHANNEL" envDefault:"Private"`
	LangFile        string        `env:"LANG_FILE"`
	PermissionsFile string        `env:"PERMISSIONS_FILE"`
	WatchChannels   bool          `env:"WATCH_CHANNELS" envDefault:"true"`
	ChatCooldown    time.Duration `env:"CHAT_COOLDOWN" envDefault:"2s"`
	ChatBurst       int           `env:"CHAT_BURST" envDefault:"3"`
	ConsoleColor    bool          `env:"CONSOLE_COLOR" envDefault:"true"`
	FilterFile      string        `env:"FILTER_FILE"`
	AuditFile       string        `env:"AUDIT_FILE"`

	// Discord mirroring is off unless a bot token is set.
	DiscordToken string `env:"DISCORD_TOKEN"`

	// Proxy
	// PROXY_PLATFORM: "none" (default), "bungee" or "velocity"
	ProxyPlatform string        `env:"PROXY_PLATFORM" envDefault:"none"`
	NatsURL       string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	FetchTimeout  time.Duration `env:"FETCH_TIMEOUT" envDefault:"3s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogFile   string `env:"LOG_FILE"`

	// CORS
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
}

// ProxyConfig is the proxy tier (chatproxy) process configuration.
type ProxyConfig struct {
	NatsURL          string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	EmbeddedNATS     bool   `env:"EMBEDDED_NATS" envDefault:"true"`
	EmbeddedNATSPort int    `env:"EMBEDDED_NATS_PORT" envDefault:"4222"`

	ChannelsDir   string `env:"PROXY_CHANNELS_DIR" envDefault:"proxy-channels"`
	WatchChannels bool   `env:"WATCH_CHANNELS" envDefault:"true"`
	StatusFile    string `env:"STATUS_FILE"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogFile   string `env:"LOG_FILE"`
}

// ProxyEnabled reports whether a proxy platform is configured.
func (c *Config) ProxyEnabled() bool {
	return c.ProxyPlatform != "" && c.ProxyPlatform != "none"
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadProxy reads the proxy tier configuration.
func LoadProxy() (*ProxyConfig, error) {
	cfg := &ProxyConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
