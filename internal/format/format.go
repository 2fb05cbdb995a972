package format

import (
	"slices"

	"github.com/filipexyz/chanrelay/internal/condition"
	"github.com/filipexyz/chanrelay/internal/richtext"
)

// DefaultPriority is used when a rule does not declare one.
const DefaultPriority = 100

// Group is a conditionally selected payload within a format slot.
type Group struct {
	Condition *condition.Condition
	Priority  int
	Payload   Payload
}

// Slot is a named prefix or suffix position holding its candidate groups,
// sorted by priority.
type Slot struct {
	Name   string
	Groups []*Group
}

// Format is one rendering rule.
type Format struct {
	Condition *condition.Condition
	Priority  int
	Prefix    []Slot
	Msg       []*Group
	Suffix    []Slot
}

// Formats is an ordered rule list, sorted by ascending priority with ties
// kept in declaration order.
type Formats []*Format

// NewFormats returns a sorted copy of declared.
func NewFormats(declared []*Format) Formats {
	out := slices.Clone(declared)
	slices.SortStableFunc(out, func(a, b *Format) int { return a.Priority - b.Priority })
	return out
}

// SortGroups sorts groups in place by ascending priority, keeping
// declaration order for ties.
func SortGroups(groups []*Group) {
	slices.SortStableFunc(groups, func(a, b *Group) int { return a.Priority - b.Priority })
}

// ResolveFormat renders the first format whose condition holds for ctx.
// It reports false when no format matches; there is no implicit default.
func ResolveFormat(formats Formats, ctx *RenderContext) (*richtext.Component, bool) {
	doc := ctx.Document()
	f, ok := Select(formats, doc)
	if !ok {
		return nil, false
	}
	return f.Render(doc, ctx.body()), true
}

// Select returns the first format whose condition holds for doc.
func Select(formats Formats, doc map[string]any) (*Format, bool) {
	for _, f := range formats {
		if f.Condition.Evaluate(doc) {
			return f, true
		}
	}
	return nil, false
}

// Render composes the prefix slots, message and suffix slots of f.
func (f *Format) Render(doc map[string]any, body []richtext.Component) *richtext.Component {
	root := &richtext.Component{}
	for _, s := range f.Prefix {
		if c, ok := ResolveGroup(s.Groups, doc, body); ok {
			root.Append(c)
		}
	}
	if c, ok := ResolveGroup(f.Msg, doc, body); ok {
		root.Append(c)
	}
	for _, s := range f.Suffix {
		if c, ok := ResolveGroup(s.Groups, doc, body); ok {
			root.Append(c)
		}
	}
	return root
}

// ResolveGroup renders the first group whose condition holds. An empty or
// unmatched slot reports false and renders nothing.
func ResolveGroup(groups []*Group, doc map[string]any, body []richtext.Component) (richtext.Component, bool) {
	for _, g := range groups {
		if g.Condition.Evaluate(doc) {
			return g.Payload.Render(doc, body), true
		}
	}
	return richtext.Component{}, false
}
