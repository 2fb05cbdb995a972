// Package audit records chat and administrative actions to a JSON-lines
// file for moderation review.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Actions recorded by the chat service and the HTTP API.
const (
	ActionChat    = "chat.send"
	ActionPrivate = "chat.private"
	ActionJoin    = "session.join"
	ActionQuit    = "session.quit"
	ActionReload  = "channel.reload"
)

// Entry is one line of the audit file.
type Entry struct {
	Time   time.Time      `json:"time"`
	Actor  string         `json:"actor"`
	Action string         `json:"action"`
	Target string         `json:"target,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
	IP     string         `json:"ip,omitempty"`
}

// Logger provides audit logging with dual-write to slog (sync) and the audit file (async).
type Logger struct {
	w      io.Writer
	ch     chan Entry
	mu     sync.Mutex // guards closed + ch send atomically
	closed bool
	once   sync.Once
	done   chan struct{}
	now    func() time.Time
}

// New creates a Logger writing to w. The buffer parameter controls the async channel size.
func New(w io.Writer, buffer int) *Logger {
	if buffer <= 0 {
		buffer = 256
	}
	l := &Logger{
		w:    w,
		ch:   make(chan Entry, buffer),
		done: make(chan struct{}),
		now:  time.Now,
	}
	go l.drain()
	return l
}

// Open creates a Logger appending to a rotated file at path.
func Open(path string, buffer int) *Logger {
	return New(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // MB
		MaxBackups: 10,
		MaxAge:     30, // days
		Compress:   true,
	}, buffer)
}

// Log records an action.
// actor: who performed it (e.g. "session:alice", "api")
// action: what was done (one of the Action constants)
// target: what was acted on (e.g. channel id)
// detail: additional metadata (nil is fine)
func (l *Logger) Log(ctx context.Context, actor, action, target string, detail map[string]any) {
	if l == nil {
		return
	}
	ip := ipFromContext(ctx)

	attrs := []any{
		slog.String("actor", actor),
		slog.String("action", action),
	}
	if target != "" {
		attrs = append(attrs, slog.String("target", target))
	}
	if ip != "" {
		attrs = append(attrs, slog.String("ip_address", ip))
	}
	slog.Debug("audit", attrs...)

	e := Entry{Time: l.now(), Actor: actor, Action: action, Target: target, Detail: detail, IP: ip}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.ch <- e:
	default:
		slog.Warn("audit log channel full, dropping entry", "action", action)
	}
}

func (l *Logger) drain() {
	defer close(l.done)
	if l.w == nil {
		for range l.ch {
		}
		return
	}
	enc := json.NewEncoder(l.w)
	for e := range l.ch {
		if err := enc.Encode(e); err != nil {
			slog.Error("audit write failed", "error", err, "action", e.Action)
		}
	}
}

// Close flushes pending entries and closes the file. Safe to call multiple times.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	var err error
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.ch)
		l.mu.Unlock()
		<-l.done
		if c, ok := l.w.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

type ctxKey string

const ipKey ctxKey = "audit_ip"

// WithIP returns a context with the client IP address stored for audit logging.
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey, ip)
}

// IPFromRequest extracts the client IP from an HTTP request.
// X-Real-Ip and X-Forwarded-For are informational only and can be spoofed.
func IPFromRequest(r *http.Request) string {
	ip := r.Header.Get("X-Real-Ip")
	if ip != "" {
		return ip
	}
	ip = r.Header.Get("X-Forwarded-For")
	if ip != "" {
		if idx := strings.IndexByte(ip, ','); idx != -1 {
			ip = strings.TrimSpace(ip[:idx])
		}
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ipFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(ipKey).(string)
	return ip
}
