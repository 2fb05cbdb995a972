package format

import (
	"github.com/filipexyz/chanrelay/internal/richtext"
)

// StyleKind is one of the closed set of style attributes a component may carry.
type StyleKind int

const (
	StyleHover StyleKind = iota
	StyleSuggest
	StyleCommand
	StyleURL
	StyleCopy
	StyleFile
	StyleInsertion
	StyleFont
)

// styleKeys maps config keys to style kinds, in application order.
var styleKeys = []struct {
	key  string
	kind StyleKind
}{
	{"hover", StyleHover},
	{"suggest", StyleSuggest},
	{"command", StyleCommand},
	{"url", StyleURL},
	{"copy", StyleCopy},
	{"file", StyleFile},
	{"insertion", StyleInsertion},
	{"font", StyleFont},
}

func (k StyleKind) String() string {
	for _, sk := range styleKeys {
		if sk.kind == k {
			return sk.key
		}
	}
	return "unknown"
}

// Style is one style attribute with its conditional candidates.
type Style struct {
	Kind       StyleKind
	Candidates Candidates
}

// Apply resolves the style against doc and sets it on c. When no candidate
// matches, c is left untouched.
func (s Style) Apply(c *richtext.Component, doc map[string]any) {
	v, ok := s.Candidates.Resolve(doc)
	if !ok {
		return
	}
	switch s.Kind {
	case StyleHover:
		c.HoverEvent = richtext.NewHover(v)
	case StyleSuggest:
		c.ClickEvent = &richtext.ClickEvent{Action: richtext.ClickSuggest, Value: v}
	case StyleCommand:
		c.ClickEvent = &richtext.ClickEvent{Action: richtext.ClickCommand, Value: v}
	case StyleURL:
		c.ClickEvent = &richtext.ClickEvent{Action: richtext.ClickURL, Value: v}
	case StyleCopy:
		c.ClickEvent = &richtext.ClickEvent{Action: richtext.ClickCopy, Value: v}
	case StyleFile:
		c.ClickEvent = &richtext.ClickEvent{Action: richtext.ClickFile, Value: v}
	case StyleInsertion:
		c.Insertion = v
	case StyleFont:
		c.Font = v
	}
}

// Styles is the style set of a component, applied in declaration order.
type Styles []Style

// Apply applies every style in s to c.
func (s Styles) Apply(c *richtext.Component, doc map[string]any) {
	for _, st := range s {
		st.Apply(c, doc)
	}
}
