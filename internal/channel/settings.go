package channel

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/filipexyz/chanrelay/internal/condition"
)

// RangeType selects which listeners receive a message.
type RangeType string

const (
	RangeAll    RangeType = "ALL"
	RangeServer RangeType = "SERVER"
	RangeWorld  RangeType = "WORLD"
	RangeRadius RangeType = "RADIUS"
	RangeSelf   RangeType = "SELF"
)

var rangeAliases = map[string]RangeType{
	"ALL":          RangeAll,
	"SERVER":       RangeServer,
	"WORLD":        RangeWorld,
	"SINGLE_WORLD": RangeWorld,
	"RADIUS":       RangeRadius,
	"DISTANCE":     RangeRadius,
	"SELF":         RangeSelf,
}

// Range is a channel's delivery range. Distance only applies to RADIUS;
// -1 means unlimited.
type Range struct {
	Type     RangeType
	Distance int
}

// ParseRange parses "TYPE" or "TYPE;distance".
func ParseRange(s string) (Range, error) {
	typ, dist, hasDist := strings.Cut(strings.ToUpper(strings.TrimSpace(s)), ";")
	rt, ok := rangeAliases[typ]
	if !ok {
		return Range{}, fmt.Errorf("%w: %q", ErrUnknownRange, typ)
	}
	r := Range{Type: rt, Distance: -1}
	if hasDist {
		d, err := strconv.Atoi(strings.TrimSpace(dist))
		if err != nil {
			return Range{}, fmt.Errorf("range distance %q: %w", dist, err)
		}
		r.Distance = d
	}
	return r, nil
}

// String formats r the way ParseRange reads it.
func (r Range) String() string {
	if r.Distance < 0 {
		return string(r.Type)
	}
	return string(r.Type) + ";" + strconv.Itoa(r.Distance)
}

// Settings is the immutable option set of a channel.
type Settings struct {
	JoinPermission      string
	ListenPermission    string
	SpeakCondition      *condition.Condition
	AutoJoin            bool
	Private             bool
	Range               Range
	Proxy               bool
	ForceProxy          bool
	DoubleTransfer      bool
	Ports               []int
	DisabledFunctions   []string
	FilterBeforeSending bool
	SendToDiscord       bool
	ReceiveFromDiscord  bool
	DiscordChannel      string
}

// HasPort reports whether port is allowed by the Ports restriction. An
// empty restriction allows every port.
func (s Settings) HasPort(port int) bool {
	if len(s.Ports) == 0 {
		return true
	}
	for _, p := range s.Ports {
		if p == port {
			return true
		}
	}
	return false
}

// options is the on-disk form of Settings.
type options struct {
	JoinPermission      *string  `yaml:"Join-Permission,omitempty"`
	ListenPermission    *string  `yaml:"Listen-Permission,omitempty"`
	SpeakCondition      *string  `yaml:"Speak-Condition,omitempty"`
	AlwaysListen        *bool    `yaml:"Always-Listen,omitempty"`
	AutoJoin            *bool    `yaml:"Auto-Join,omitempty"`
	Private             *bool    `yaml:"Private,omitempty"`
	Target              *string  `yaml:"Target,omitempty"`
	Proxy               *bool    `yaml:"Proxy,omitempty"`
	ForceProxy          *bool    `yaml:"Force-Proxy,omitempty"`
	DoubleTransfer      *bool    `yaml:"Double-Transfer,omitempty"`
	Ports               portList `yaml:"Ports,omitempty"`
	DisabledFunctions   []string `yaml:"Disabled-Functions,omitempty"`
	FilterBeforeSending *bool    `yaml:"Filter-Before-Sending,omitempty"`
	SendToDiscord       *bool    `yaml:"Send-To-Discord,omitempty"`
	ReceiveFromDiscord  *bool    `yaml:"Receive-From-Discord,omitempty"`
	DiscordChannel      *string  `yaml:"Discord-Channel,omitempty"`
}

// portList accepts "25565;25566", a single number, or a YAML list.
type portList []int

func (p *portList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.SequenceNode:
		var ports []int
		if err := n.Decode(&ports); err != nil {
			return fmt.Errorf("ports: %w", err)
		}
		*p = ports
		return nil
	case yaml.ScalarNode:
		if n.Tag == "!!null" || strings.TrimSpace(n.Value) == "" {
			*p = nil
			return nil
		}
		var ports []int
		for _, part := range strings.Split(n.Value, ";") {
			v, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return fmt.Errorf("ports: %q: %w", part, err)
			}
			ports = append(ports, v)
		}
		*p = ports
		return nil
	}
	return fmt.Errorf("line %d: ports must be a string or a list", n.Line)
}

func (o *options) settings() (Settings, error) {
	s := Settings{
		JoinPermission: str(o.JoinPermission, ""),
		Private:        boolean(o.Private, false),
		Proxy:          boolean(o.Proxy, false),
		ForceProxy:     boolean(o.ForceProxy, false),
		DoubleTransfer: boolean(o.DoubleTransfer, true),
		Ports:          []int(o.Ports),

		DisabledFunctions:   o.DisabledFunctions,
		FilterBeforeSending: boolean(o.FilterBeforeSending, false),
		ReceiveFromDiscord:  boolean(o.ReceiveFromDiscord, true),
		DiscordChannel:      str(o.DiscordChannel, ""),
	}
	s.ListenPermission = str(o.ListenPermission, s.JoinPermission)
	s.AutoJoin = boolean(o.AlwaysListen, boolean(o.AutoJoin, true))
	s.SendToDiscord = boolean(o.SendToDiscord, !s.Private)

	cond, err := condition.Compile(str(o.SpeakCondition, ""))
	if err != nil {
		return Settings{}, fmt.Errorf("Speak-Condition: %w", err)
	}
	s.SpeakCondition = cond

	if s.Range, err = ParseRange(str(o.Target, "ALL")); err != nil {
		return Settings{}, fmt.Errorf("Target: %w", err)
	}
	return s, nil
}

// MarshalYAML writes s as a fully explicit Options map that loads back to
// identical settings.
func (s Settings) MarshalYAML() (any, error) {
	target := s.Range.String()
	speak := s.SpeakCondition.String()
	o := options{
		JoinPermission:      &s.JoinPermission,
		ListenPermission:    &s.ListenPermission,
		AlwaysListen:        &s.AutoJoin,
		Private:             &s.Private,
		Target:              &target,
		Proxy:               &s.Proxy,
		ForceProxy:          &s.ForceProxy,
		DoubleTransfer:      &s.DoubleTransfer,
		Ports:               portList(s.Ports),
		DisabledFunctions:   s.DisabledFunctions,
		FilterBeforeSending: &s.FilterBeforeSending,
		SendToDiscord:       &s.SendToDiscord,
		ReceiveFromDiscord:  &s.ReceiveFromDiscord,
		DiscordChannel:      &s.DiscordChannel,
	}
	if speak != "" {
		o.SpeakCondition = &speak
	}
	return o, nil
}

func str(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

func boolean(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
