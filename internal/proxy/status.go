package proxy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// State is the proxy daemon lifecycle state.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// StatusData is the JSON structure written to the status file.
type StatusData struct {
	State         State      `json:"state"`
	PID           int        `json:"pid"`
	StartedAt     time.Time  `json:"started_at"`
	LastHeartbeat time.Time  `json:"last_heartbeat"`
	NatsURL       string     `json:"nats_url"`
	NatsConnected bool       `json:"nats_connected"`
	Embedded      bool       `json:"embedded"`
	Backends      []Backend  `json:"backends"`
	Sessions      int        `json:"sessions"`
	Channels      int        `json:"channels"`
	Frames        Counters   `json:"frames"`
	Throughput    Throughput `json:"throughput"`
	Uptime        string     `json:"uptime"`
}

// Throughput is the relay rate since the previous heartbeat.
type Throughput struct {
	RelaysPerSec float64 `json:"relays_per_sec"`
}

// StatusReporter manages the status file and heartbeat.
type StatusReporter struct {
	statusPath string
	hub        *Hub
	startedAt  time.Time

	mu            sync.Mutex
	state         State
	natsURL       string
	natsConnected bool
	embedded      bool

	prevRelayed int64
	prevTime    time.Time
}

// DefaultStatusPath returns ~/.chanrelay/proxy.status.json.
func DefaultStatusPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chanrelay", "proxy.status.json")
}

// NewStatusReporter creates a reporter for hub.
func NewStatusReporter(statusPath string, hub *Hub) *StatusReporter {
	if statusPath == "" {
		statusPath = DefaultStatusPath()
	}
	return &StatusReporter{
		statusPath: statusPath,
		hub:        hub,
		startedAt:  time.Now(),
		state:      StateStarting,
		prevTime:   time.Now(),
	}
}

// SetState updates the daemon state.
func (sr *StatusReporter) SetState(s State) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.state = s
}

// SetNats records the broker the hub is attached to.
func (sr *StatusReporter) SetNats(url string, connected, embedded bool) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.natsURL = url
	sr.natsConnected = connected
	sr.embedded = embedded
}

// SetNatsConnected updates the connection status.
func (sr *StatusReporter) SetNatsConnected(connected bool) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.natsConnected = connected
}

// Snapshot builds the current status.
func (sr *StatusReporter) Snapshot() StatusData {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	now := time.Now()
	counters := sr.hub.Counters()

	var rate float64
	if elapsed := now.Sub(sr.prevTime).Seconds(); elapsed > 0 {
		rate = float64(counters.Relayed-sr.prevRelayed) / elapsed
		sr.prevRelayed = counters.Relayed
		sr.prevTime = now
	}

	return StatusData{
		State:         sr.state,
		PID:           os.Getpid(),
		StartedAt:     sr.startedAt,
		LastHeartbeat: now,
		NatsURL:       sr.natsURL,
		NatsConnected: sr.natsConnected,
		Embedded:      sr.embedded,
		Backends:      sr.hub.Backends(),
		Sessions:      sr.hub.SessionCount(),
		Channels:      sr.hub.channels.Len(),
		Frames:        counters,
		Throughput:    Throughput{RelaysPerSec: rate},
		Uptime:        formatDuration(now.Sub(sr.startedAt)),
	}
}

// WriteHeartbeat writes current status to the status file.
func (sr *StatusReporter) WriteHeartbeat() error {
	data, err := json.MarshalIndent(sr.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	_ = os.MkdirAll(filepath.Dir(sr.statusPath), 0700)
	return os.WriteFile(sr.statusPath, data, 0644)
}

// Cleanup removes the status file.
func (sr *StatusReporter) Cleanup() {
	os.Remove(sr.statusPath)
}

// ReadStatus reads the status file from disk.
func ReadStatus(path string) (*StatusData, error) {
	if path == "" {
		path = DefaultStatusPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	var status StatusData
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("parse status: %w", err)
	}
	return &status, nil
}

// FormatHumanStatus formats status data for human-readable display.
func FormatHumanStatus(s *StatusData) string {
	var b strings.Builder

	age := time.Since(s.LastHeartbeat)
	stateStr := string(s.State)

	// PID-based crash detection
	if s.State == StateRunning && !isProcessAlive(s.PID) {
		stateStr = "crashed (process dead)"
	} else if age > 60*time.Second {
		stateStr = fmt.Sprintf("dead (no heartbeat for %s)", formatDuration(age))
	} else if age > 30*time.Second {
		stateStr = fmt.Sprintf("stale (no heartbeat for %s)", formatDuration(age))
	}

	fmt.Fprintf(&b, "Proxy:         %s (uptime: %s)\n", stateStr, s.Uptime)
	fmt.Fprintf(&b, "PID:           %d\n", s.PID)

	connStatus := "disconnected"
	if s.NatsConnected {
		connStatus = "connected"
	}
	if s.Embedded {
		connStatus += ", embedded"
	}
	fmt.Fprintf(&b, "NATS:          %s (%s)\n", connStatus, s.NatsURL)

	fmt.Fprintf(&b, "Backends:      %d (%d sessions)\n", len(s.Backends), s.Sessions)
	for _, be := range s.Backends {
		fmt.Fprintf(&b, "  %-12s port %d, %d sessions, seen %s ago\n",
			be.ID, be.Port, be.Sessions, formatDuration(time.Since(be.LastSeen)))
	}
	fmt.Fprintf(&b, "Channels:      %d proxy-defined\n", s.Channels)
	fmt.Fprintf(&b, "Frames:        %d relayed (%d deliveries), %d lang routed, %d dropped\n",
		s.Frames.Relayed, s.Frames.Delivered, s.Frames.Routed, s.Frames.Dropped)
	fmt.Fprintf(&b, "Throughput:    %.1f relays/s\n", s.Throughput.RelaysPerSec)
	fmt.Fprintf(&b, "Heartbeat:     %s ago\n", formatDuration(age))

	return b.String()
}

// isProcessAlive checks if a PID is still running.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks if process exists without actually sending a signal
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// formatDuration formats a duration in human-readable form.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	d = d.Round(time.Second)

	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd%dh%dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
