package format

import (
	"github.com/filipexyz/chanrelay/internal/richtext"
	"github.com/filipexyz/chanrelay/internal/session"
)

// RenderContext is everything a render may look at. Receiver is nil when
// rendering for the console or for a broadcast without a recipient.
type RenderContext struct {
	Sender   *session.Session
	Receiver *session.Session
	Channel  string
	Message  string // raw message text
	Relayed  bool   // the event arrived through the proxy tier
	Vars     map[string]any

	// Body is the message after function expansion. When nil the raw
	// Message is rendered as a single unstyled segment.
	Body []richtext.Component
}

// Document returns the generic document conditions and templates run against.
func (c *RenderContext) Document() map[string]any {
	doc := map[string]any{
		"sender":   sessionDoc(c.Sender),
		"receiver": sessionDoc(c.Receiver),
		"channel":  c.Channel,
		"message":  c.Message,
		"relayed":  c.Relayed,
		"distance": c.Sender.Distance(c.Receiver),
	}
	for k, v := range c.Vars {
		if _, reserved := doc[k]; !reserved {
			doc[k] = v
		}
	}
	return doc
}

func (c *RenderContext) body() []richtext.Component {
	if c.Body != nil {
		return c.Body
	}
	return []richtext.Component{{Text: c.Message}}
}

func sessionDoc(s *session.Session) any {
	if s == nil {
		return nil
	}
	return s.Document()
}
