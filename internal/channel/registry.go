package channel

import (
	"bytes"
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/filipexyz/chanrelay/internal/session"
)

// Hooks observe registry changes. Any field may be nil.
type Hooks struct {
	OnRegister   func(*Channel)
	OnUnregister func(*Channel)
	OnReload     func(map[string]*Channel)
}

// Source produces the full set of locally defined channels.
type Source func() (map[string]*Channel, []error)

// Registry is the set of active channels. Reads see an immutable snapshot;
// writers are serialized and swap the snapshot atomically.
type Registry struct {
	snapshot atomic.Pointer[map[string]*Channel]
	mu       sync.Mutex
	source   Source
	loader   *Loader
	remote   map[string][]byte
	hooks    []Hooks
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. source is used by Reload; loader
// parses proxy-distributed units.
func NewRegistry(source Source, loader *Loader, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		source: source,
		loader: loader,
		remote: make(map[string][]byte),
		logger: logger,
	}
	empty := map[string]*Channel{}
	r.snapshot.Store(&empty)
	return r
}

// AddHooks registers observers for registry changes.
func (r *Registry) AddHooks(h Hooks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, h)
}

func (r *Registry) current() map[string]*Channel {
	return *r.snapshot.Load()
}

// Register adds ch, unregistering any channel with the same id first. The
// prior channel's listener set is cleared.
func (r *Registry) Register(ch *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := maps.Clone(r.current())
	next[ch.ID] = ch
	r.swap(next)
}

// Unregister removes the channel with id. It reports whether one existed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.current()[id]; !ok {
		return false
	}
	next := maps.Clone(r.current())
	delete(next, id)
	delete(r.remote, id)
	r.swap(next)
	return true
}

// swap replaces the snapshot with next in one store. Channels leaving the
// registry lose their listeners and are announced before the store;
// arriving channels are announced after it. Callers hold mu.
func (r *Registry) swap(next map[string]*Channel) {
	prev := r.current()
	for _, id := range slices.Sorted(maps.Keys(prev)) {
		old := prev[id]
		if next[id] == old {
			continue
		}
		old.clearListeners()
		for _, h := range r.hooks {
			if h.OnUnregister != nil {
				h.OnUnregister(old)
			}
		}
	}
	r.snapshot.Store(&next)
	for _, id := range slices.Sorted(maps.Keys(next)) {
		ch := next[id]
		if prev[id] == ch {
			continue
		}
		for _, h := range r.hooks {
			if h.OnRegister != nil {
				h.OnRegister(ch)
			}
		}
	}
}

func (r *Registry) loadRemote(id string, data []byte) (*Channel, error) {
	ch, err := r.loader.LoadChannel(id, data)
	if err != nil {
		return nil, &LoadError{File: "proxy:" + id, ID: id, Err: err}
	}
	ch.File = "proxy:" + id
	return ch, nil
}

// AddRemote parses and registers a unit delivered by the proxy tier. The
// unit is kept and re-applied on Reload. A local channel with the same id
// wins.
func (r *Registry) AddRemote(id string, data []byte) (*Channel, error) {
	ch, err := r.loadRemote(id, data)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.current()[id]; ok && !isRemote(old) {
		return nil, &LoadError{File: ch.File, ID: id, Err: ErrDuplicateChannel}
	}
	r.remote[id] = data
	next := maps.Clone(r.current())
	next[id] = ch
	r.swap(next)
	return ch, nil
}

// ReplaceRemote makes units the complete set of proxy-distributed channels.
// Remote channels missing from units are removed; a unit whose source is
// unchanged keeps its channel and listeners. It returns the channels that
// were added or replaced.
func (r *Registry) ReplaceRemote(units map[string][]byte) ([]*Channel, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.current()
	next := make(map[string]*Channel, len(cur)+len(units))
	for id, ch := range cur {
		if !isRemote(ch) {
			next[id] = ch
		}
	}

	var (
		added []*Channel
		errs  []error
	)
	remote := make(map[string][]byte, len(units))
	for _, id := range slices.Sorted(maps.Keys(units)) {
		data := units[id]
		if _, ok := next[id]; ok {
			errs = append(errs, &LoadError{File: "proxy:" + id, ID: id, Err: ErrDuplicateChannel})
			continue
		}
		if old, ok := cur[id]; ok && isRemote(old) && bytes.Equal(r.remote[id], data) {
			next[id] = old
			remote[id] = data
			continue
		}
		ch, err := r.loadRemote(id, data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		next[id] = ch
		remote[id] = data
		added = append(added, ch)
	}
	r.remote = remote
	r.swap(next)
	return added, errs
}

// Reload loads the source again, re-applies proxy-distributed units, and
// swaps the result in with a single store. Load failures are returned and
// never abort the reload.
func (r *Registry) Reload(ctx context.Context) (int, []error) {
	var loaded map[string]*Channel
	var errs []error
	if r.source != nil {
		loaded, errs = r.source()
	}
	if loaded == nil {
		loaded = make(map[string]*Channel)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range slices.Sorted(maps.Keys(r.remote)) {
		if ctx.Err() != nil {
			break
		}
		if _, ok := loaded[id]; ok {
			errs = append(errs, &LoadError{File: "proxy:" + id, ID: id, Err: ErrDuplicateChannel})
			continue
		}
		ch, err := r.loadRemote(id, r.remote[id])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		loaded[id] = ch
	}

	r.swap(loaded)
	for _, h := range r.hooks {
		if h.OnReload != nil {
			h.OnReload(loaded)
		}
	}

	r.logger.Info("channels loaded", "count", len(loaded), "errors", len(errs))
	return len(loaded), errs
}

// Get returns the channel with id.
func (r *Registry) Get(id string) (*Channel, bool) {
	ch, ok := r.current()[id]
	return ch, ok
}

// All returns every channel sorted by id.
func (r *Registry) All() []*Channel {
	snap := r.current()
	out := make([]*Channel, 0, len(snap))
	for _, id := range slices.Sorted(maps.Keys(snap)) {
		out = append(out, snap[id])
	}
	return out
}

// EligibleChannels returns the non-private channels s should join on
// arrival: auto-join channels whose join permission s holds.
func (r *Registry) EligibleChannels(s *session.Session) []*Channel {
	var out []*Channel
	for _, ch := range r.All() {
		if ch.IsPrivate() || !ch.Settings.AutoJoin || !ch.CanJoin(s) {
			continue
		}
		out = append(out, ch)
	}
	return out
}

// ByCommand finds the channel bound to a command alias.
func (r *Registry) ByCommand(alias string) (*Channel, bool) {
	for _, ch := range r.All() {
		for _, c := range ch.Bindings.Command {
			if strings.EqualFold(c, alias) {
				return ch, true
			}
		}
	}
	return nil, false
}

// ByPrefix finds the channel whose prefix starts line and returns the line
// with the prefix removed. The longest matching prefix wins.
func (r *Registry) ByPrefix(line string) (*Channel, string, bool) {
	var best *Channel
	var bestPrefix string
	for _, ch := range r.All() {
		for _, p := range ch.Bindings.Prefix {
			if p == "" || !strings.HasPrefix(line, p) {
				continue
			}
			if len(p) > len(bestPrefix) {
				best, bestPrefix = ch, p
			}
		}
	}
	if best == nil {
		return nil, line, false
	}
	return best, strings.TrimPrefix(line, bestPrefix), true
}

func isRemote(ch *Channel) bool {
	return strings.HasPrefix(ch.File, "proxy:")
}
