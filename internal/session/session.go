package session

import (
	"math"
	"strings"

	"github.com/google/uuid"
)

// Session is a connected chat participant as seen by one backend process.
// Sessions are values supplied by the host; the core never mutates them.
type Session struct {
	ID          uuid.UUID
	Name        string
	Server      string // backend server id hosting the session
	World       string
	X, Y, Z     float64
	Locale      string
	Permissions []string
	Attributes  map[string]any
}

// HasPermission reports whether the session holds node. An empty node is
// always held.
func (s *Session) HasPermission(node string) bool {
	if node == "" {
		return true
	}
	if s == nil {
		return false
	}
	for _, p := range s.Permissions {
		if strings.HasPrefix(p, "-") {
			if MatchPermission(p[1:], node) {
				return false
			}
		}
	}
	for _, p := range s.Permissions {
		if MatchPermission(p, node) {
			return true
		}
	}
	return false
}

// Distance returns the distance between two sessions, or -1 when they are
// not in the same world on the same server.
func (s *Session) Distance(other *Session) float64 {
	if s == nil || other == nil || s.Server != other.Server || s.World != other.World {
		return -1
	}
	dx, dy, dz := s.X-other.X, s.Y-other.Y, s.Z-other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Document returns the session as a generic map for condition evaluation
// and text templates.
func (s *Session) Document() map[string]any {
	if s == nil {
		return nil
	}
	perms := make([]any, len(s.Permissions))
	for i, p := range s.Permissions {
		perms[i] = p
	}
	attrs := make(map[string]any, len(s.Attributes))
	for k, v := range s.Attributes {
		attrs[k] = normalize(v)
	}
	return map[string]any{
		"id":          s.ID.String(),
		"name":        s.Name,
		"server":      s.Server,
		"world":       s.World,
		"x":           s.X,
		"y":           s.Y,
		"z":           s.Z,
		"locale":      s.Locale,
		"permissions": perms,
		"attributes":  attrs,
	}
}

// normalize converts Go numeric types to float64 so jq comparisons behave.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case uint:
		return float64(n)
	case []string:
		out := make([]any, len(n))
		for i, s := range n {
			out[i] = s
		}
		return out
	}
	return v
}
