package proxy

import (
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/filipexyz/chanrelay/internal/bridge"
	"github.com/filipexyz/chanrelay/internal/channel"
)

// ChannelSet holds the channel units owned by the proxy tier. Units are
// validated with the same loader the backends use, so only units a backend
// can load are distributed.
type ChannelSet struct {
	dir    string
	loader *channel.Loader
	logger *slog.Logger

	mu      sync.RWMutex
	sources map[string][]byte
}

// NewChannelSet creates a set backed by dir. An empty dir yields no units.
func NewChannelSet(dir string, loader *channel.Loader, logger *slog.Logger) *ChannelSet {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelSet{dir: dir, loader: loader, logger: logger, sources: make(map[string][]byte)}
}

// Load reads the directory again and replaces the set. Failed units are
// logged by the loader and left out.
func (s *ChannelSet) Load() (int, []error) {
	if s.dir == "" {
		return 0, nil
	}
	channels, errs := s.loader.LoadDir(s.dir)
	sources := make(map[string][]byte, len(channels))
	for id, ch := range channels {
		if !ch.Settings.Proxy {
			s.logger.Warn("proxy channel is not proxy-enabled", "channel", id)
		}
		sources[id] = ch.Source
	}

	s.mu.Lock()
	s.sources = sources
	s.mu.Unlock()

	s.logger.Info("proxy channels loaded", "count", len(sources), "errors", len(errs))
	return len(sources), errs
}

// Frames returns one ProxyChannel frame per unit, sorted by id.
func (s *ChannelSet) Frames() []bridge.Frame {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	frames := make([]bridge.Frame, 0, len(s.sources))
	for _, id := range slices.Sorted(maps.Keys(s.sources)) {
		frames = append(frames, bridge.ProxyChannel{ChannelID: id, Source: string(s.sources[id])}.Frame())
	}
	return frames
}

// Len returns the number of units.
func (s *ChannelSet) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sources)
}
