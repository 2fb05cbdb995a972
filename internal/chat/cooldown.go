package chat

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// cooldownEntry holds a limiter and its last access time
type cooldownEntry struct {
	limiter      *rate.Limiter
	lastSeenNano atomic.Int64
}

// Cooldown limits how often each session may speak. A zero interval
// disables it.
type Cooldown struct {
	interval time.Duration
	burst    int
	maxAge   time.Duration
	limiters sync.Map // map[uuid.UUID]*cooldownEntry
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCooldown allows burst lines at once, then one line per interval.
func NewCooldown(interval time.Duration, burst int) *Cooldown {
	if burst < 1 {
		burst = 1
	}
	c := &Cooldown{
		interval: interval,
		burst:    burst,
		maxAge:   10 * time.Minute,
		stopCh:   make(chan struct{}),
	}
	if interval > 0 {
		go c.cleanup(5 * time.Minute)
	}
	return c
}

// cleanup periodically removes idle limiters
func (c *Cooldown) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.limiters.Range(func(key, value any) bool {
				entry := value.(*cooldownEntry)
				lastSeen := time.Unix(0, entry.lastSeenNano.Load())
				if now.Sub(lastSeen) > c.maxAge {
					c.limiters.Delete(key)
				}
				return true
			})
		case <-c.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (c *Cooldown) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Allow reports whether id may speak now and consumes a token if so.
func (c *Cooldown) Allow(id uuid.UUID) bool {
	if c == nil || c.interval <= 0 {
		return true
	}
	now := time.Now().UnixNano()

	if val, ok := c.limiters.Load(id); ok {
		entry := val.(*cooldownEntry)
		entry.lastSeenNano.Store(now)
		return entry.limiter.Allow()
	}

	entry := &cooldownEntry{limiter: rate.NewLimiter(rate.Every(c.interval), c.burst)}
	entry.lastSeenNano.Store(now)
	actual, _ := c.limiters.LoadOrStore(id, entry)
	return actual.(*cooldownEntry).limiter.Allow()
}

// Forget drops the limiter for id.
func (c *Cooldown) Forget(id uuid.UUID) {
	if c != nil {
		c.limiters.Delete(id)
	}
}
