// Package function implements custom functions: regex-triggered transforms
// that replace matching parts of a chat message with rich display text.
package function

import (
	"fmt"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/filipexyz/chanrelay/internal/condition"
	"github.com/filipexyz/chanrelay/internal/format"
	"github.com/filipexyz/chanrelay/internal/reaction"
	"github.com/filipexyz/chanrelay/internal/richtext"
)

// Function is one custom function.
type Function struct {
	ID         string
	Condition  *condition.Condition
	Priority   int
	Pattern    *regexp.Regexp
	TextFilter *regexp.Regexp
	Display    *format.JsonComponent
	Action     *reaction.Reaction
}

// Set is an immutable, priority-ordered function list.
type Set struct {
	functions []*Function
}

// NewSet sorts fns by ascending priority, keeping declaration order for ties.
func NewSet(fns []*Function) *Set {
	sorted := slices.Clone(fns)
	slices.SortStableFunc(sorted, func(a, b *Function) int { return a.Priority - b.Priority })
	return &Set{functions: sorted}
}

// Functions returns the ordered function list.
func (s *Set) Functions() []*Function {
	if s == nil {
		return nil
	}
	return s.functions
}

// Len returns the number of functions.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.functions)
}

// Trigger records a function that matched during Apply.
type Trigger struct {
	Function *Function
	Match    string
}

type segment struct {
	text      string
	component *richtext.Component // nil for plain text not yet claimed
}

// Apply splits message into body components, replacing every match of each
// enabled function with its rendered display. Functions run in priority
// order; text claimed by one function is not seen by later ones.
func (s *Set) Apply(message string, doc map[string]any, disabled []string) ([]richtext.Component, []Trigger) {
	segs := []segment{{text: message}}
	var triggers []Trigger

	for _, fn := range s.Functions() {
		if slices.Contains(disabled, fn.ID) || !fn.Condition.Evaluate(doc) {
			continue
		}
		var next []segment
		for _, seg := range segs {
			if seg.component != nil {
				next = append(next, seg)
				continue
			}
			next = append(next, fn.split(seg.text, doc, &triggers)...)
		}
		segs = next
	}

	body := make([]richtext.Component, 0, len(segs))
	for _, seg := range segs {
		if seg.component != nil {
			body = append(body, *seg.component)
		} else if seg.text != "" {
			body = append(body, richtext.Component{Text: seg.text})
		}
	}
	return body, triggers
}

func (fn *Function) split(text string, doc map[string]any, triggers *[]Trigger) []segment {
	matches := fn.Pattern.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return []segment{{text: text}}
	}

	var out []segment
	last := 0
	for _, m := range matches {
		if m[0] == m[1] {
			continue
		}
		if m[0] > last {
			out = append(out, segment{text: text[last:m[0]]})
		}
		match := text[m[0]:m[1]]
		c := fn.Display.Render(fn.matchDoc(doc, text, m), nil)
		out = append(out, segment{text: match, component: &c})
		*triggers = append(*triggers, Trigger{Function: fn, Match: match})
		last = m[1]
	}
	if last < len(text) {
		out = append(out, segment{text: text[last:]})
	}
	return out
}

// matchDoc extends doc with the match: .match, .groups and .text (the
// text-filter extraction, or the whole match).
func (fn *Function) matchDoc(doc map[string]any, text string, m []int) map[string]any {
	match := text[m[0]:m[1]]
	groups := make([]any, 0, len(m)/2)
	for i := 0; i+1 < len(m); i += 2 {
		if m[i] < 0 {
			groups = append(groups, "")
			continue
		}
		groups = append(groups, text[m[i]:m[i+1]])
	}

	filtered := match
	if fn.TextFilter != nil {
		if sub := fn.TextFilter.FindStringSubmatch(match); sub != nil {
			filtered = sub[len(sub)-1]
		}
	}

	out := make(map[string]any, len(doc)+3)
	for k, v := range doc {
		out[k] = v
	}
	out["match"] = match
	out["groups"] = groups
	out["text"] = filtered
	return out
}

// fileConfig mirrors the functions file: Custom maps ids to definitions.
type fileConfig struct {
	Custom yaml.Node `yaml:"Custom"`
}

// LoadFile reads a functions file.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read functions file: %w", err)
	}
	return Parse(data)
}

// Parse parses functions file content. Any invalid function fails the
// whole set, since functions apply to every channel.
func Parse(data []byte) (*Set, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse functions file: %w", err)
	}
	n := &cfg.Custom
	if n.Kind == 0 || (n.Kind == yaml.ScalarNode && n.Tag == "!!null") {
		return NewSet(nil), nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse functions file: Custom must be a map")
	}

	var fns []*Function
	for i := 0; i+1 < len(n.Content); i += 2 {
		id := n.Content[i].Value
		fn, err := parseFunction(id, n.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("function %q: %w", id, err)
		}
		fns = append(fns, fn)
	}
	return NewSet(fns), nil
}

func parseFunction(id string, n *yaml.Node) (*Function, error) {
	cond, err := format.ParseCondition(format.Lookup(n, "condition"))
	if err != nil {
		return nil, err
	}
	priority, err := format.ParsePriority(format.Lookup(n, "priority"))
	if err != nil {
		return nil, err
	}

	patternNode := format.Lookup(n, "pattern")
	if patternNode == nil || patternNode.Value == "" {
		return nil, fmt.Errorf("%w: pattern", format.ErrMissingField)
	}
	pattern, err := regexp.Compile(patternNode.Value)
	if err != nil {
		return nil, fmt.Errorf("pattern: %w", err)
	}

	var filter *regexp.Regexp
	if fn := format.Lookup(n, "text-filter"); fn != nil && fn.Value != "" {
		if filter, err = regexp.Compile(fn.Value); err != nil {
			return nil, fmt.Errorf("text-filter: %w", err)
		}
	}

	displayNode := format.Lookup(n, "display")
	if displayNode == nil {
		return nil, fmt.Errorf("%w: display", format.ErrMissingField)
	}
	display, err := format.ParseJSON(displayNode)
	if err != nil {
		return nil, fmt.Errorf("display: %w", err)
	}

	action, err := reaction.Parse(format.Lookup(n, "action"))
	if err != nil {
		return nil, fmt.Errorf("action: %w", err)
	}

	return &Function{
		ID:         id,
		Condition:  cond,
		Priority:   priority,
		Pattern:    pattern,
		TextFilter: filter,
		Display:    display,
		Action:     action,
	}, nil
}
