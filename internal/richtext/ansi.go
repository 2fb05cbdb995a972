package richtext

import (
	"os"
	"strings"
	"sync"

	"github.com/muesli/termenv"
)

// Colorizer renders components as terminal text with ANSI styling.
type Colorizer struct {
	profile  termenv.Profile
	disabled bool
}

var (
	defaultColorizer *Colorizer
	colorizerOnce    sync.Once
)

// DefaultColorizer returns the singleton colorizer instance.
func DefaultColorizer() *Colorizer {
	colorizerOnce.Do(func() {
		noColor := os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb"
		defaultColorizer = NewColorizer(!noColor)
	})
	return defaultColorizer
}

// NewColorizer creates a new colorizer instance.
func NewColorizer(enabled bool) *Colorizer {
	return &Colorizer{
		profile:  termenv.ColorProfile(),
		disabled: !enabled,
	}
}

// NewColorizerWithProfile creates a colorizer for a fixed terminal profile.
func NewColorizerWithProfile(p termenv.Profile) *Colorizer {
	return &Colorizer{profile: p, disabled: p == termenv.Ascii}
}

// Render returns c as a terminal string.
func (z *Colorizer) Render(c *Component) string {
	if c == nil {
		return ""
	}
	if z.disabled {
		return c.Plain()
	}
	var b strings.Builder
	c.Walk(func(node *Component, inherited Style) {
		if node.Text == "" {
			return
		}
		st := inherited.merge(node)
		s := z.profile.String(node.Text)
		if hex := Hex(st.Color); hex != "" {
			s = s.Foreground(z.profile.Color(hex))
		}
		if st.Bold {
			s = s.Bold()
		}
		if st.Italic {
			s = s.Italic()
		}
		if st.Underlined {
			s = s.Underline()
		}
		if st.Strikethrough {
			s = s.CrossOut()
		}
		b.WriteString(s.String())
	})
	return b.String()
}

// IsDisabled returns whether colors are disabled.
func (z *Colorizer) IsDisabled() bool {
	return z.disabled
}
