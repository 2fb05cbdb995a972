package format

import (
	"github.com/filipexyz/chanrelay/internal/richtext"
)

// Payload renders the content of a Group.
type Payload interface {
	Render(doc map[string]any, body []richtext.Component) richtext.Component
}

// JsonComponent is literal text with styles. The first text candidate
// whose condition holds is used.
type JsonComponent struct {
	Text   Candidates
	Styles Styles
}

// Render implements Payload.
func (j *JsonComponent) Render(doc map[string]any, _ []richtext.Component) richtext.Component {
	var c richtext.Component
	if text, ok := j.Text.Resolve(doc); ok {
		c.Extra = richtext.Legacy(text)
	}
	j.Styles.Apply(&c, doc)
	return c
}

// MsgComponent renders the message body in the first matching default
// color. An optional text list replaces the body; templates see the raw
// message as {{.message}}.
type MsgComponent struct {
	DefaultColor Candidates
	Text         Candidates
	Styles       Styles
}

// Render implements Payload.
func (m *MsgComponent) Render(doc map[string]any, body []richtext.Component) richtext.Component {
	var c richtext.Component
	if color, ok := m.DefaultColor.Resolve(doc); ok {
		c.Color = richtext.ParseColor(color)
	}
	if text, ok := m.Text.Resolve(doc); ok {
		c.Extra = richtext.Legacy(text)
	} else {
		c.Extra = append([]richtext.Component(nil), body...)
	}
	m.Styles.Apply(&c, doc)
	return c
}
