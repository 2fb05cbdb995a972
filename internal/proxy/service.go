package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kardianos/service"

	"github.com/filipexyz/chanrelay/internal/config"
)

const (
	ServiceName        = "chanrelay-proxy"
	ServiceDisplayName = "Chanrelay Proxy"
	ServiceDescription = "Relays chat channels between chanrelay backends"
)

// ServiceProgram implements kardianos/service.Interface.
type ServiceProgram struct {
	cfg    *config.ProxyConfig
	logger *slog.Logger
	daemon *Daemon
	cancel context.CancelFunc
}

// NewServiceProgram creates a new ServiceProgram.
func NewServiceProgram(cfg *config.ProxyConfig, logger *slog.Logger) *ServiceProgram {
	return &ServiceProgram{cfg: cfg, logger: logger}
}

// Start is called by the service manager to start the service.
func (p *ServiceProgram) Start(s service.Service) error {
	slog.Info("service starting")

	var ctx context.Context
	ctx, p.cancel = context.WithCancel(context.Background())
	p.daemon = NewDaemon(p.cfg, p.logger)

	// Start in background but wait for startup result
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.daemon.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			p.cancel()
			return fmt.Errorf("proxy start failed: %w", err)
		}
		return nil
	case <-time.After(30 * time.Second):
		p.cancel()
		return fmt.Errorf("proxy start timed out after 30s")
	}
}

// Stop is called by the service manager to stop the service.
func (p *ServiceProgram) Stop(s service.Service) error {
	slog.Info("service stopping")
	if p.daemon != nil {
		p.daemon.Stop()
	}
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// NewServiceConfig returns the kardianos service configuration.
func NewServiceConfig() *service.Config {
	return &service.Config{
		Name:        ServiceName,
		DisplayName: ServiceDisplayName,
		Description: ServiceDescription,
		Arguments:   []string{"run"},
	}
}

// GetService creates a kardianos service instance.
func GetService(cfg *config.ProxyConfig, logger *slog.Logger) (service.Service, error) {
	return service.New(NewServiceProgram(cfg, logger), NewServiceConfig())
}
