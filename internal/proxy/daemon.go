package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/filipexyz/chanrelay/internal/channel"
	"github.com/filipexyz/chanrelay/internal/config"
	"github.com/filipexyz/chanrelay/internal/nats"
)

// HeartbeatInterval is how often the status file is rewritten.
const HeartbeatInterval = 10 * time.Second

// Daemon runs the proxy tier: broker, hub, proxy channels, and status.
type Daemon struct {
	cfg    *config.ProxyConfig
	logger *slog.Logger

	embedded *nats.EmbeddedServer
	client   *nats.Client
	channels *ChannelSet
	hub      *Hub
	status   *StatusReporter

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewDaemon creates a daemon for cfg.
func NewDaemon(cfg *config.ProxyConfig, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{cfg: cfg, logger: logger}
}

// Start brings the proxy tier up and returns once it is serving.
func (d *Daemon) Start(ctx context.Context) error {
	loader, err := channel.NewLoader(d.logger)
	if err != nil {
		return err
	}
	d.channels = NewChannelSet(d.cfg.ChannelsDir, loader, d.logger)
	d.channels.Load()

	d.hub = NewHub(d.channels, d.logger)
	d.status = NewStatusReporter(d.cfg.StatusFile, d.hub)
	d.status.SetState(StateStarting)
	d.writeHeartbeat()

	url := d.cfg.NatsURL
	if d.cfg.EmbeddedNATS {
		srv, err := nats.StartEmbedded(nats.EmbeddedConfig{Port: d.cfg.EmbeddedNATSPort})
		if err != nil {
			return fmt.Errorf("start embedded NATS: %w", err)
		}
		d.embedded = srv
		url = srv.ClientURL()
	}

	d.logger.Info("connecting to NATS", "url", url)
	client, err := nats.Connect(url, "chanrelay-proxy")
	if err != nil {
		d.shutdownBroker()
		return err
	}
	d.client = client
	d.status.SetNats(url, client.IsConnected(), d.embedded != nil)

	if err := d.hub.Start(client); err != nil {
		d.shutdownBroker()
		return fmt.Errorf("start hub: %w", err)
	}

	ctx, d.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	d.group = g

	g.Go(func() error {
		d.heartbeatLoop(gctx)
		return nil
	})

	if d.cfg.WatchChannels && d.cfg.ChannelsDir != "" {
		if _, err := os.Stat(d.cfg.ChannelsDir); err == nil {
			w, err := channel.NewWatcher(d.cfg.ChannelsDir, d.reloadChannels, d.logger)
			if err != nil {
				d.logger.Warn("proxy channel watcher disabled", "error", err)
			} else {
				g.Go(func() error { return w.Run(gctx) })
			}
		}
	}

	d.status.SetState(StateRunning)
	d.writeHeartbeat()
	d.logger.Info("proxy started", "channels", d.channels.Len())
	return nil
}

func (d *Daemon) reloadChannels() {
	d.channels.Load()
	d.hub.PushChannels()
}

// Hub returns the routing hub. It is nil before Start.
func (d *Daemon) Hub() *Hub { return d.hub }

// Wait blocks until the background loops exit.
func (d *Daemon) Wait() error {
	if d.group == nil {
		return nil
	}
	return d.group.Wait()
}

// Stop shuts the proxy tier down.
func (d *Daemon) Stop() {
	d.logger.Info("stopping proxy")
	if d.status != nil {
		d.status.SetState(StateStopping)
		d.writeHeartbeat()
	}
	if d.cancel != nil {
		d.cancel()
	}
	if err := d.Wait(); err != nil {
		d.logger.Warn("background loop failed", "error", err)
	}
	if d.hub != nil {
		d.hub.Stop()
	}
	d.shutdownBroker()
	if d.status != nil {
		d.status.SetState(StateStopped)
		d.writeHeartbeat()
		d.status.Cleanup()
	}
	d.logger.Info("proxy stopped")
}

// Run starts the daemon and blocks until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	d.Stop()
	return nil
}

func (d *Daemon) shutdownBroker() {
	if d.client != nil {
		d.client.Close()
		d.client = nil
	}
	if d.embedded != nil {
		d.embedded.Shutdown()
		d.embedded = nil
	}
}

func (d *Daemon) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d.client != nil {
				d.status.SetNatsConnected(d.client.IsConnected())
			}
			d.writeHeartbeat()
		}
	}
}

func (d *Daemon) writeHeartbeat() {
	if d.cfg.StatusFile == "-" {
		return
	}
	if err := d.status.WriteHeartbeat(); err != nil {
		d.logger.Error("failed to write heartbeat", "error", err)
	}
}
