package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/filipexyz/chanrelay/internal/audit"
	"github.com/filipexyz/chanrelay/internal/bridge"
	"github.com/filipexyz/chanrelay/internal/channel"
	"github.com/filipexyz/chanrelay/internal/chat"
	"github.com/filipexyz/chanrelay/internal/config"
	"github.com/filipexyz/chanrelay/internal/discord"
	"github.com/filipexyz/chanrelay/internal/filter"
	"github.com/filipexyz/chanrelay/internal/function"
	"github.com/filipexyz/chanrelay/internal/handler"
	"github.com/filipexyz/chanrelay/internal/logging"
	"github.com/filipexyz/chanrelay/internal/nats"
	"github.com/filipexyz/chanrelay/internal/richtext"
	"github.com/filipexyz/chanrelay/internal/server"
	"github.com/filipexyz/chanrelay/internal/websocket"
)

func main() {
	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})

	platform, err := bridge.ParsePlatform(cfg.ProxyPlatform)
	if err != nil {
		slog.Error("unsupported proxy platform", "error", err)
		os.Exit(1)
	}

	perms, err := config.LoadPermissions(cfg.PermissionsFile)
	if err != nil {
		slog.Error("failed to load permissions", "error", err)
		os.Exit(1)
	}
	lang, err := websocket.LoadLang(cfg.LangFile)
	if err != nil {
		slog.Error("failed to load lang file", "error", err)
		os.Exit(1)
	}

	// Channels
	loader, err := channel.NewLoader(logger)
	if err != nil {
		slog.Error("failed to create channel loader", "error", err)
		os.Exit(1)
	}
	registry := channel.NewRegistry(func() (map[string]*channel.Channel, []error) {
		return loader.LoadDir(cfg.ChannelsDir)
	}, loader, logger)
	_, errs := registry.Reload(ctx)
	logLoadErrors(errs)

	functions, err := loadFunctions(cfg.FunctionsFile)
	if err != nil {
		slog.Error("failed to load functions", "error", err)
		os.Exit(1)
	}

	// Proxy tier
	var (
		transport bridge.Transport
		natsConn  handler.ConnChecker
	)
	if platform.Enabled() {
		nc, err := nats.Connect(cfg.NatsURL, "chatd-"+cfg.ServerID)
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Close()
		transport, natsConn = nc, nc
		slog.Info("connected to NATS", "url", cfg.NatsURL, "platform", platform)
	}
	br := bridge.New(bridge.Config{
		ServerID:     cfg.ServerID,
		Port:         cfg.ServerPort,
		Platform:     platform,
		FetchTimeout: cfg.FetchTimeout,
	}, transport, logger)
	defer br.Close()

	hub := websocket.NewHub(lang, logger)
	worker := chat.NewWorker(0, logger)
	opts := chat.Options{
		ServerID:       cfg.ServerID,
		Port:           cfg.ServerPort,
		DefaultChannel: cfg.DefaultChannel,
		Cooldown:       cfg.ChatCooldown,
		Burst:          cfg.ChatBurst,
		Deliverer:      hub,
		Lang:           hub,
		Executor:       hub,
		Proxy:          br,
		Functions:      functions,
		Console:        os.Stdout,
		Colorizer:      richtext.NewColorizer(cfg.ConsoleColor),
	}
	if cfg.FilterFile != "" {
		flt, err := filter.Load(cfg.FilterFile)
		if err != nil {
			slog.Error("failed to load filter", "error", err)
			os.Exit(1)
		}
		opts.Filter = flt
	}
	var aud *audit.Logger
	if cfg.AuditFile != "" {
		aud = audit.Open(cfg.AuditFile, 0)
		defer aud.Close()
		opts.Audit = aud
	}
	var dc *discord.Bridge
	if cfg.DiscordToken != "" {
		if dc, err = discord.New(cfg.DiscordToken, logger); err != nil {
			slog.Error("failed to create Discord bridge", "error", err)
			os.Exit(1)
		}
		opts.Discord = dc
	}

	svc := chat.NewService(registry, worker, opts, logger)
	defer svc.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	if err := br.Start(svc); err != nil {
		slog.Error("failed to start proxy bridge", "error", err)
		os.Exit(1)
	}

	if dc != nil {
		dc.SetReceiver(svc)
		if err := dc.Open(); err != nil {
			slog.Error("failed to connect to Discord", "error", err)
			os.Exit(1)
		}
		defer dc.Close()
		g.Go(func() error { return dc.Run(gctx) })
		slog.Info("discord bridge started")
	}

	if cfg.WatchChannels {
		w, err := channel.NewWatcher(cfg.ChannelsDir, func() {
			reload(gctx, svc, cfg.FunctionsFile)
		}, logger)
		if err != nil {
			slog.Warn("channel watcher disabled", "error", err)
		} else {
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	// Create and start HTTP server
	deps := server.Deps{
		Service:     svc,
		Hub:         hub,
		Nats:        natsConn,
		Permissions: perms,
		Logger:      logger,
	}
	if aud != nil {
		deps.Audit = aud
	}
	srv := server.New(cfg, deps)
	g.Go(func() error {
		slog.Info("starting server", "port", cfg.Port, "server_id", cfg.ServerID)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Wait for shutdown signal
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("chatd stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func loadFunctions(path string) (*function.Set, error) {
	if path == "" {
		return function.NewSet(nil), nil
	}
	return function.LoadFile(path)
}

// reload re-reads channel units and, when configured, the functions file.
func reload(ctx context.Context, svc *chat.Service, functionsFile string) {
	if functionsFile != "" {
		set, err := function.LoadFile(functionsFile)
		if err != nil {
			slog.Warn("functions not reloaded", "error", err)
		} else {
			svc.SetFunctions(set)
		}
	}
	_, errs, err := svc.Reload(ctx)
	if err != nil {
		slog.Warn("channel reload failed", "error", err)
		return
	}
	logLoadErrors(errs)
}

func logLoadErrors(errs []error) {
	for _, err := range errs {
		var le *channel.LoadError
		if errors.As(err, &le) {
			slog.Warn("channel not loaded", "file", le.File, "error", le.Err)
			continue
		}
		slog.Warn("channel not loaded", "error", err)
	}
}
