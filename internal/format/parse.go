package format

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/filipexyz/chanrelay/internal/condition"
)

var (
	// ErrMissingField is returned when a required key is absent.
	ErrMissingField = errors.New("missing required field")
	// ErrUnexpectedNode is returned when a value has the wrong shape.
	ErrUnexpectedNode = errors.New("unexpected value")
)

// ParseFormats parses a sequence of format rules. Console formats carry no
// condition or priority and keep declaration order.
func ParseFormats(n *yaml.Node, console bool) (Formats, error) {
	n = resolve(n)
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: %w: expected a list of formats", n.Line, ErrUnexpectedNode)
	}
	declared := make([]*Format, 0, len(n.Content))
	for i, item := range n.Content {
		f, err := ParseFormat(item, console)
		if err != nil {
			return nil, fmt.Errorf("format[%d]: %w", i, err)
		}
		declared = append(declared, f)
	}
	if console {
		return declared, nil
	}
	return NewFormats(declared), nil
}

// ParseFormat parses one format rule mapping.
func ParseFormat(n *yaml.Node, console bool) (*Format, error) {
	n = resolve(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: format must be a map", ErrUnexpectedNode)
	}

	f := &Format{Priority: DefaultPriority}
	if !console {
		cond, err := parseCondition(lookup(n, "condition"))
		if err != nil {
			return nil, err
		}
		f.Condition = cond
		if f.Priority, err = parsePriority(lookup(n, "priority")); err != nil {
			return nil, err
		}
	}

	var err error
	if f.Prefix, err = parseSlots(lookup(n, "prefix")); err != nil {
		return nil, fmt.Errorf("prefix: %w", err)
	}
	msg := lookup(n, "msg")
	if isNull(msg) {
		return nil, fmt.Errorf("%w: msg", ErrMissingField)
	}
	if f.Msg, err = ParseGroups(msg, true); err != nil {
		return nil, fmt.Errorf("msg: %w", err)
	}
	if f.Suffix, err = parseSlots(lookup(n, "suffix")); err != nil {
		return nil, fmt.Errorf("suffix: %w", err)
	}
	return f, nil
}

// ParseGroups parses a group spec: either a single mapping or a list of
// mappings, each with optional condition and priority.
func ParseGroups(n *yaml.Node, isMsg bool) ([]*Group, error) {
	n = resolve(n)
	switch {
	case n != nil && n.Kind == yaml.MappingNode:
		g, err := parseGroup(n, isMsg)
		if err != nil {
			return nil, err
		}
		return []*Group{g}, nil
	case n != nil && n.Kind == yaml.SequenceNode:
		groups := make([]*Group, 0, len(n.Content))
		for i, item := range n.Content {
			item = resolve(item)
			if item.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("group[%d]: %w: expected a map", i, ErrUnexpectedNode)
			}
			g, err := parseGroup(item, isMsg)
			if err != nil {
				return nil, fmt.Errorf("group[%d]: %w", i, err)
			}
			groups = append(groups, g)
		}
		SortGroups(groups)
		return groups, nil
	}
	return nil, fmt.Errorf("%w: group must be a map or a list of maps", ErrUnexpectedNode)
}

func parseGroup(n *yaml.Node, isMsg bool) (*Group, error) {
	cond, err := parseCondition(lookup(n, "condition"))
	if err != nil {
		return nil, err
	}
	priority, err := parsePriority(lookup(n, "priority"))
	if err != nil {
		return nil, err
	}
	g := &Group{Condition: cond, Priority: priority}
	if isMsg {
		g.Payload, err = ParseMsg(n)
	} else {
		g.Payload, err = ParseJSON(n)
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func parseSlots(n *yaml.Node) ([]Slot, error) {
	n = resolve(n)
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: expected a map of named slots", ErrUnexpectedNode)
	}
	slots := make([]Slot, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		name := n.Content[i].Value
		groups, err := ParseGroups(n.Content[i+1], false)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		slots = append(slots, Slot{Name: name, Groups: groups})
	}
	return slots, nil
}

// ParseJSON parses a display spec into a JsonComponent. A missing text
// renders as the literal "null".
func ParseJSON(n *yaml.Node) (*JsonComponent, error) {
	n = resolve(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: display must be a map", ErrUnexpectedNode)
	}
	text, err := parseCandidates(lookup(n, "text"))
	if err != nil {
		return nil, fmt.Errorf("text: %w", err)
	}
	if len(text) == 0 {
		text = Candidates{Literal("null")}
	}
	styles, err := parseStyles(n)
	if err != nil {
		return nil, err
	}
	return &JsonComponent{Text: text, Styles: styles}, nil
}

// ParseMsg parses a message group spec. default-color is required.
func ParseMsg(n *yaml.Node) (*MsgComponent, error) {
	n = resolve(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: msg must be a map", ErrUnexpectedNode)
	}
	dc := lookup(n, "default-color")
	if isNull(dc) {
		return nil, fmt.Errorf("%w: default-color", ErrMissingField)
	}
	colors, err := parseCandidates(dc)
	if err != nil {
		return nil, fmt.Errorf("default-color: %w", err)
	}
	text, err := parseCandidates(lookup(n, "text"))
	if err != nil {
		return nil, fmt.Errorf("text: %w", err)
	}
	styles, err := parseStyles(n)
	if err != nil {
		return nil, err
	}
	return &MsgComponent{DefaultColor: colors, Text: text, Styles: styles}, nil
}

func parseStyles(n *yaml.Node) (Styles, error) {
	var styles Styles
	for _, sk := range styleKeys {
		v := lookup(n, sk.key)
		if isNull(v) {
			continue
		}
		cs, err := parseCandidates(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sk.key, err)
		}
		styles = append(styles, Style{Kind: sk.kind, Candidates: cs})
	}
	return styles, nil
}

// parseCandidates accepts a scalar, a single {text, condition} map, or a
// list mixing plain strings, [value, condition] pairs and
// {text|value|color, condition} maps. Runs of plain strings are joined
// into one multi-line candidate.
func parseCandidates(n *yaml.Node) (Candidates, error) {
	n = resolve(n)
	if isNull(n) {
		return nil, nil
	}
	switch n.Kind {
	case yaml.ScalarNode:
		c, err := NewCandidate(n.Value, nil)
		if err != nil {
			return nil, err
		}
		return Candidates{c}, nil
	case yaml.MappingNode:
		c, err := mappingCandidate(n)
		if err != nil {
			return nil, err
		}
		return Candidates{c}, nil
	case yaml.SequenceNode:
	default:
		return nil, fmt.Errorf("line %d: %w", n.Line, ErrUnexpectedNode)
	}

	var (
		out     Candidates
		pending []string
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		c, err := NewCandidate(strings.Join(pending, "\n"), nil)
		if err != nil {
			return err
		}
		out = append(out, c)
		pending = nil
		return nil
	}

	for _, item := range n.Content {
		item = resolve(item)
		var (
			c   Candidate
			err error
		)
		switch item.Kind {
		case yaml.ScalarNode:
			pending = append(pending, item.Value)
			continue
		case yaml.SequenceNode:
			c, err = pairCandidate(item)
		case yaml.MappingNode:
			c, err = mappingCandidate(item)
		default:
			err = fmt.Errorf("line %d: %w", item.Line, ErrUnexpectedNode)
		}
		if err != nil {
			return nil, err
		}
		if err := flush(); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

func pairCandidate(n *yaml.Node) (Candidate, error) {
	if len(n.Content) == 0 || len(n.Content) > 2 {
		return Candidate{}, fmt.Errorf("line %d: %w: expected [value, condition]", n.Line, ErrUnexpectedNode)
	}
	var cond *condition.Condition
	if len(n.Content) == 2 {
		var err error
		if cond, err = parseCondition(n.Content[1]); err != nil {
			return Candidate{}, err
		}
	}
	return NewCandidate(resolve(n.Content[0]).Value, cond)
}

func mappingCandidate(n *yaml.Node) (Candidate, error) {
	var value *yaml.Node
	for _, key := range []string{"text", "value", "color"} {
		if v := lookup(n, key); !isNull(v) {
			value = v
			break
		}
	}
	if value == nil {
		return Candidate{}, fmt.Errorf("line %d: %w: text", n.Line, ErrMissingField)
	}
	cond, err := parseCondition(lookup(n, "condition"))
	if err != nil {
		return Candidate{}, err
	}
	value = resolve(value)
	if value.Kind == yaml.SequenceNode {
		lines := make([]string, 0, len(value.Content))
		for _, l := range value.Content {
			lines = append(lines, resolve(l).Value)
		}
		return NewCandidate(strings.Join(lines, "\n"), cond)
	}
	return NewCandidate(value.Value, cond)
}

func parseCondition(n *yaml.Node) (*condition.Condition, error) {
	n = resolve(n)
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("line %d: %w: condition must be a string", n.Line, ErrUnexpectedNode)
	}
	return condition.Compile(n.Value)
}

func parsePriority(n *yaml.Node) (int, error) {
	n = resolve(n)
	if isNull(n) {
		return DefaultPriority, nil
	}
	var p int
	if err := n.Decode(&p); err != nil {
		return 0, fmt.Errorf("priority: %w", err)
	}
	return p, nil
}

// ParseCondition compiles an optional condition node.
func ParseCondition(n *yaml.Node) (*condition.Condition, error) {
	return parseCondition(n)
}

// ParsePriority decodes an optional priority node.
func ParsePriority(n *yaml.Node) (int, error) {
	return parsePriority(n)
}

// Lookup returns the value node for key in a mapping node, or nil.
func Lookup(n *yaml.Node, key string) *yaml.Node {
	return lookup(resolve(n), key)
}

func lookup(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && (n.Kind == yaml.AliasNode || n.Kind == yaml.DocumentNode) {
		if n.Kind == yaml.AliasNode {
			n = n.Alias
			continue
		}
		if len(n.Content) == 0 {
			return nil
		}
		n = n.Content[0]
	}
	return n
}

func isNull(n *yaml.Node) bool {
	n = resolve(n)
	return n == nil || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}
