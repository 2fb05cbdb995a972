// Package channel holds the channel model, the YAML loader, and the registry
// of active channels.
package channel

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/filipexyz/chanrelay/internal/format"
	"github.com/filipexyz/chanrelay/internal/reaction"
	"github.com/filipexyz/chanrelay/internal/session"
)

var (
	// ErrDuplicateChannel is reported for a unit whose id was already loaded.
	ErrDuplicateChannel = errors.New("duplicate channel id")
	// ErrUnknownRange is returned for an unrecognised Target type.
	ErrUnknownRange = errors.New("unknown range type")
	// ErrMissingField is returned when a unit lacks a required section.
	ErrMissingField = errors.New("missing required section")
	// ErrInvalidUnit is returned when a unit fails schema validation.
	ErrInvalidUnit = errors.New("invalid channel unit")
)

// LoadError ties a load failure to the unit that caused it.
type LoadError struct {
	File string
	ID   string
	Err  error
}

func (e *LoadError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("channel %s: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("channel %s (%s): %v", e.ID, e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Bindings are the ways a player addresses a channel.
type Bindings struct {
	Prefix  []string
	Command []string
}

// Events are the reactions run at each lifecycle point.
type Events struct {
	Process *reaction.Reaction
	Send    *reaction.Reaction
	Join    *reaction.Reaction
	Quit    *reaction.Reaction
}

// PrivateFormats are the two perspectives of a private message.
type PrivateFormats struct {
	Sender   format.Formats
	Receiver format.Formats
}

// Channel is a named route for chat. A private channel has Private set and
// never keeps listeners.
type Channel struct {
	ID       string
	File     string
	Settings Settings
	Bindings Bindings
	Events   Events
	Formats  format.Formats
	Console  format.Formats
	Private  *PrivateFormats

	// Source is the unit as loaded, kept for redistribution.
	Source []byte

	mu        sync.RWMutex
	listeners map[uuid.UUID]struct{}
}

// IsPrivate reports whether c is a private-message channel.
func (c *Channel) IsPrivate() bool { return c.Private != nil }

// CanJoin reports whether s may join c.
func (c *Channel) CanJoin(s *session.Session) bool {
	return s.HasPermission(c.Settings.JoinPermission)
}

// CanListen reports whether s may receive messages from c.
func (c *Channel) CanListen(s *session.Session) bool {
	return s.HasPermission(c.Settings.ListenPermission)
}

// CanSpeak evaluates the speak condition for the sender document.
func (c *Channel) CanSpeak(doc map[string]any) bool {
	return c.Settings.SpeakCondition.Evaluate(doc)
}

// Join adds id to the listener set. It returns false for private channels
// and for ids that were already listening.
func (c *Channel) Join(id uuid.UUID) bool {
	if c.IsPrivate() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listeners == nil {
		c.listeners = make(map[uuid.UUID]struct{})
	}
	if _, ok := c.listeners[id]; ok {
		return false
	}
	c.listeners[id] = struct{}{}
	return true
}

// Leave removes id from the listener set.
func (c *Channel) Leave(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.listeners[id]; !ok {
		return false
	}
	delete(c.listeners, id)
	return true
}

// Listening reports whether id is in the listener set.
func (c *Channel) Listening(id uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.listeners[id]
	return ok
}

// Listeners returns the listener ids in a stable order.
func (c *Channel) Listeners() []uuid.UUID {
	c.mu.RLock()
	ids := make([]uuid.UUID, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})
	return ids
}

// ListenerCount returns the number of listeners.
func (c *Channel) ListenerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listeners)
}

func (c *Channel) clearListeners() {
	c.mu.Lock()
	c.listeners = nil
	c.mu.Unlock()
}
