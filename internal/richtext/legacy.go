package richtext

import (
	"strings"
)

// legacyColors maps legacy color codes to chat color names.
var legacyColors = map[byte]string{
	'0': "black",
	'1': "dark_blue",
	'2': "dark_green",
	'3': "dark_aqua",
	'4': "dark_red",
	'5': "dark_purple",
	'6': "gold",
	'7': "gray",
	'8': "dark_gray",
	'9': "blue",
	'a': "green",
	'b': "aqua",
	'c': "red",
	'd': "light_purple",
	'e': "yellow",
	'f': "white",
}

// namedHex maps chat color names to RGB hex values.
var namedHex = map[string]string{
	"black":        "#000000",
	"dark_blue":    "#0000AA",
	"dark_green":   "#00AA00",
	"dark_aqua":    "#00AAAA",
	"dark_red":     "#AA0000",
	"dark_purple":  "#AA00AA",
	"gold":         "#FFAA00",
	"gray":         "#AAAAAA",
	"dark_gray":    "#555555",
	"blue":         "#5555FF",
	"green":        "#55FF55",
	"aqua":         "#55FFFF",
	"red":          "#FF5555",
	"light_purple": "#FF55FF",
	"yellow":       "#FFFF55",
	"white":        "#FFFFFF",
}

// ParseColor converts a color spec into a component color. Accepted forms:
// "&7", "§7", "&#A0B1C2", "#A0B1C2" and plain color names. It returns ""
// for anything it does not recognise.
func ParseColor(spec string) string {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return ""
	}
	if strings.HasPrefix(spec, "§") {
		spec = "&" + strings.TrimPrefix(spec, "§")
	}
	switch {
	case strings.HasPrefix(spec, "&#") && len(spec) == 8 && isHex(spec[2:]):
		return strings.ToUpper(spec[1:])
	case strings.HasPrefix(spec, "#") && len(spec) == 7 && isHex(spec[1:]):
		return strings.ToUpper(spec)
	case len(spec) == 2 && spec[0] == '&':
		return legacyColors[lower(spec[1])]
	}
	name := strings.ToLower(spec)
	if _, ok := namedHex[name]; ok {
		return name
	}
	return ""
}

// Hex returns the RGB hex value of a component color.
func Hex(color string) string {
	if strings.HasPrefix(color, "#") {
		return color
	}
	return namedHex[color]
}

// Legacy splits legacy-coded text ("&7Hello &c&lworld") into styled
// components. Unknown codes are kept as literal text.
func Legacy(s string) []Component {
	s = strings.ReplaceAll(s, "§", "&")
	var (
		out []Component
		cur Component
		buf strings.Builder
	)
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		cur.Text = buf.String()
		out = append(out, cur)
		buf.Reset()
	}

	for i := 0; i < len(s); i++ {
		if s[i] != '&' || i+1 >= len(s) {
			buf.WriteByte(s[i])
			continue
		}
		code := lower(s[i+1])
		if code == '#' && i+8 <= len(s) && isHex(s[i+2:i+8]) {
			flush()
			cur = Component{Color: strings.ToUpper(s[i+1 : i+8])}
			i += 7
			continue
		}
		if color, ok := legacyColors[code]; ok {
			flush()
			cur = Component{Color: color}
			i++
			continue
		}
		switch code {
		case 'l':
			flush()
			cur.Bold = true
		case 'o':
			flush()
			cur.Italic = true
		case 'n':
			flush()
			cur.Underlined = true
		case 'm':
			flush()
			cur.Strikethrough = true
		case 'k':
			flush()
			cur.Obfuscated = true
		case 'r':
			flush()
			cur = Component{}
		default:
			buf.WriteByte(s[i])
			continue
		}
		i++
	}
	flush()
	return out
}

// Strip removes legacy codes from s.
func Strip(s string) string {
	var b strings.Builder
	for _, c := range Legacy(s) {
		b.WriteString(c.Text)
	}
	return b.String()
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := lower(s[i])
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
