package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Permissions grants permission nodes to sessions by name. It stands in for
// the host's permission system in the standalone backend.
type Permissions struct {
	Default    []string                  `yaml:"default"`
	Players    map[string][]string       `yaml:"players"`
	Attributes map[string]map[string]any `yaml:"attributes"`
}

// LoadPermissions reads a permissions file. An empty path yields an empty
// grant set.
func LoadPermissions(path string) (*Permissions, error) {
	if path == "" {
		return &Permissions{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read permissions file: %w", err)
	}
	var p Permissions
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse permissions file: %w", err)
	}
	return &p, nil
}

// For returns the default grants followed by name's own grants.
func (p *Permissions) For(name string) []string {
	if p == nil {
		return nil
	}
	out := append([]string(nil), p.Default...)
	for player, nodes := range p.Players {
		if strings.EqualFold(player, name) {
			out = append(out, nodes...)
		}
	}
	return out
}

// AttributesFor returns the attributes configured for name.
func (p *Permissions) AttributesFor(name string) map[string]any {
	if p == nil {
		return nil
	}
	for player, attrs := range p.Attributes {
		if strings.EqualFold(player, name) {
			return attrs
		}
	}
	return nil
}
