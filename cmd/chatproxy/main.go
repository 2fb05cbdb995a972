package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/filipexyz/chanrelay/internal/config"
	"github.com/filipexyz/chanrelay/internal/logging"
	"github.com/filipexyz/chanrelay/internal/proxy"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chatproxy",
	Short: "Proxy tier for chanrelay backends",
	Long: `chatproxy relays forwarded chat between chanrelay backends over NATS,
routes lang messages to the backend hosting the target, and distributes
proxy-defined channel units.

It runs in the foreground with 'run', or as a system service
(launchd on macOS, systemd on Linux) with install/start/stop.`,
	SilenceUsage: true,
}

// setup loads the proxy configuration and installs the logger.
func setup() (*config.ProxyConfig, *slog.Logger, error) {
	cfg, err := config.LoadProxy()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	return cfg, logger, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the proxy tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		// Under a service manager, hand control to it.
		if !service.Interactive() {
			svc, err := proxy.GetService(cfg, logger)
			if err != nil {
				return fmt.Errorf("create service: %w", err)
			}
			return svc.Run()
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return proxy.NewDaemon(cfg, logger).Run(ctx)
	},
}

// control runs one service manager action.
func control(action string, fn func(service.Service) error) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: action + " the chatproxy system service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			svc, err := proxy.GetService(cfg, logger)
			if err != nil {
				return fmt.Errorf("create service: %w", err)
			}
			if err := fn(svc); err != nil {
				return fmt.Errorf("%s service: %w", action, err)
			}
			cmd.Printf("%s: %s done\n", proxy.ServiceName, action)
			return nil
		},
	}
}

var statusFile string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the heartbeat written by the running proxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := statusFile
		if path == "" {
			if cfg, err := config.LoadProxy(); err == nil {
				path = cfg.StatusFile
			}
		}
		status, err := proxy.ReadStatus(path)
		if err != nil {
			return err
		}
		cmd.Print(proxy.FormatHumanStatus(status))
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusFile, "status-file", "", "status file (default $STATUS_FILE or $HOME/.chanrelay/proxy.status.json)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(control("install", service.Service.Install))
	rootCmd.AddCommand(control("uninstall", func(s service.Service) error {
		_ = s.Stop() // may not be running
		return s.Uninstall()
	}))
	rootCmd.AddCommand(control("start", service.Service.Start))
	rootCmd.AddCommand(control("stop", service.Service.Stop))
	rootCmd.AddCommand(control("restart", service.Service.Restart))
	rootCmd.AddCommand(statusCmd)
}
