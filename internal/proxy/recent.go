package proxy

import (
	"sync"
	"time"
)

type recentEntry struct {
	key     string
	seen    map[string]bool
	expires time.Time
}

// recentSet remembers which backends already received a chat line for a
// short window.
type recentSet struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*recentEntry
	order   []*recentEntry
}

func newRecentSet(ttl time.Duration) *recentSet {
	return &recentSet{ttl: ttl, entries: make(map[string]*recentEntry)}
}

// claim returns the candidates that have not seen key and marks them, and
// the origin, as seen. A fresh claim starts a new delivery even when key was
// seen before, so a repeated line is not mistaken for a relay.
func (r *recentSet) claim(key, origin string, candidates []string, now time.Time, fresh bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(now)

	e, ok := r.entries[key]
	if !ok || fresh {
		e = &recentEntry{key: key, seen: make(map[string]bool), expires: now.Add(r.ttl)}
		r.entries[key] = e
		r.order = append(r.order, e)
	}
	e.seen[origin] = true

	var out []string
	for _, c := range candidates {
		if e.seen[c] {
			continue
		}
		e.seen[c] = true
		out = append(out, c)
	}
	return out
}

func (r *recentSet) prune(now time.Time) {
	i := 0
	for ; i < len(r.order) && !now.Before(r.order[i].expires); i++ {
		if k := r.order[i].key; k != "" && r.entries[k] == r.order[i] {
			delete(r.entries, k)
		}
	}
	if i > 0 {
		r.order = append(r.order[:0], r.order[i:]...)
	}
}

func (r *recentSet) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
