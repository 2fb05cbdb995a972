package session

import "strings"

// MatchPermission checks if a granted permission node covers the requested one.
// Patterns:
//   - "chat.staff" - exact match (case-insensitive)
//   - "chat.*" - matches "chat.staff" and "chat.staff.mute" but not "chat"
//   - "*" - matches any node
func MatchPermission(granted, node string) bool {
	if granted == "*" {
		return true
	}
	if strings.EqualFold(granted, node) {
		return true
	}
	if strings.HasSuffix(granted, ".*") {
		prefix := strings.TrimSuffix(granted, "*")
		return len(node) > len(prefix) && strings.EqualFold(node[:len(prefix)], prefix)
	}
	return false
}
