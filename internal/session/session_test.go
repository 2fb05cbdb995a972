package session

import (
	"testing"
)

func TestMatchPermission(t *testing.T) {
	tests := []struct {
		granted  string
		node     string
		expected bool
	}{
		{"vip.chat", "vip.chat", true},
		{"vip.chat", "VIP.Chat", true},
		{"vip.chat", "vip.other", false},
		{"*", "anything.at.all", true},
		{"chat.*", "chat.staff", true},
		{"chat.*", "chat.staff.mute", true},
		{"chat.*", "chat", false},
		{"chat.*", "chatter.x", false},
		{"", "chat", false},
	}

	for _, tt := range tests {
		result := MatchPermission(tt.granted, tt.node)
		if result != tt.expected {
			t.Errorf("MatchPermission(%q, %q) = %v, want %v", tt.granted, tt.node, result, tt.expected)
		}
	}
}

func TestHasPermission(t *testing.T) {
	s := &Session{Permissions: []string{"chat.*", "-chat.staff"}}

	if !s.HasPermission("") {
		t.Error("empty node should always be held")
	}
	if !s.HasPermission("chat.global") {
		t.Error("expected chat.global via wildcard")
	}
	if s.HasPermission("chat.staff") {
		t.Error("negated node should not be held")
	}

	var nilSession *Session
	if nilSession.HasPermission("chat.global") {
		t.Error("nil session holds nothing")
	}
}

func TestDistance(t *testing.T) {
	a := &Session{Server: "lobby", World: "world", X: 0, Y: 0, Z: 0}
	b := &Session{Server: "lobby", World: "world", X: 3, Y: 4, Z: 0}
	c := &Session{Server: "lobby", World: "nether"}

	if got := a.Distance(b); got != 5 {
		t.Errorf("Distance() = %v, want 5", got)
	}
	if got := a.Distance(c); got != -1 {
		t.Errorf("Distance() across worlds = %v, want -1", got)
	}
}

func TestDocumentNormalizesNumbers(t *testing.T) {
	s := &Session{Name: "alice", Attributes: map[string]any{"level": 12}}
	doc := s.Document()
	attrs := doc["attributes"].(map[string]any)
	if _, ok := attrs["level"].(float64); !ok {
		t.Errorf("level = %T, want float64", attrs["level"])
	}
}
