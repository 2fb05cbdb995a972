// Package richtext holds the rendered chat component tree and its encodings.
package richtext

import (
	"encoding/json"
	"strings"
)

// ClickAction is the action performed when a component is clicked.
type ClickAction string

const (
	ClickSuggest ClickAction = "suggest_command"
	ClickCommand ClickAction = "run_command"
	ClickURL     ClickAction = "open_url"
	ClickCopy    ClickAction = "copy_to_clipboard"
	ClickFile    ClickAction = "open_file"
)

// ClickEvent is attached to a component to make it clickable.
type ClickEvent struct {
	Action ClickAction `json:"action"`
	Value  string      `json:"value"`
}

// HoverEvent shows text when the component is hovered.
type HoverEvent struct {
	Action   string      `json:"action"`
	Contents []Component `json:"contents"`
}

// Component is one node of rendered rich text. Children in Extra inherit
// style from their parent when displayed.
type Component struct {
	Text          string      `json:"text"`
	Color         string      `json:"color,omitempty"`
	Bold          bool        `json:"bold,omitempty"`
	Italic        bool        `json:"italic,omitempty"`
	Underlined    bool        `json:"underlined,omitempty"`
	Strikethrough bool        `json:"strikethrough,omitempty"`
	Obfuscated    bool        `json:"obfuscated,omitempty"`
	Font          string      `json:"font,omitempty"`
	Insertion     string      `json:"insertion,omitempty"`
	ClickEvent    *ClickEvent `json:"clickEvent,omitempty"`
	HoverEvent    *HoverEvent `json:"hoverEvent,omitempty"`
	Extra         []Component `json:"extra,omitempty"`
}

// NewHover builds a show_text hover from legacy-coded text.
func NewHover(text string) *HoverEvent {
	return &HoverEvent{Action: "show_text", Contents: Legacy(text)}
}

// Append adds children to c.
func (c *Component) Append(children ...Component) {
	c.Extra = append(c.Extra, children...)
}

// IsEmpty reports whether c renders no text at all.
func (c *Component) IsEmpty() bool {
	if c == nil {
		return true
	}
	if c.Text != "" {
		return false
	}
	for i := range c.Extra {
		if !c.Extra[i].IsEmpty() {
			return false
		}
	}
	return true
}

// Plain returns the text content without any styling.
func (c *Component) Plain() string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	c.writePlain(&b)
	return b.String()
}

func (c *Component) writePlain(b *strings.Builder) {
	b.WriteString(c.Text)
	for i := range c.Extra {
		c.Extra[i].writePlain(b)
	}
}

// JSON returns the component encoded as chat JSON.
func (c *Component) JSON() ([]byte, error) {
	return json.Marshal(c)
}

// Walk calls fn for c and every descendant in display order, passing the
// style inherited from ancestors.
func (c *Component) Walk(fn func(node *Component, inherited Style)) {
	c.walk(Style{}, fn)
}

func (c *Component) walk(parent Style, fn func(*Component, Style)) {
	fn(c, parent)
	own := parent.merge(c)
	for i := range c.Extra {
		c.Extra[i].walk(own, fn)
	}
}

// Style is the effective formatting of a node after inheritance.
type Style struct {
	Color         string
	Bold          bool
	Italic        bool
	Underlined    bool
	Strikethrough bool
}

func (s Style) merge(c *Component) Style {
	if c.Color != "" {
		s.Color = c.Color
	}
	s.Bold = s.Bold || c.Bold
	s.Italic = s.Italic || c.Italic
	s.Underlined = s.Underlined || c.Underlined
	s.Strikethrough = s.Strikethrough || c.Strikethrough
	return s
}
