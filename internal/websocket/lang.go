package websocket

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/filipexyz/chanrelay/internal/richtext"
)

// DefaultLocale is used when a session's locale has no table.
const DefaultLocale = "en_us"

//go:embed lang.yml
var defaultLang []byte

// Lang maps locale → key → text. Texts use {0}, {1}... placeholders and
// legacy & color codes.
type Lang map[string]map[string]string

// DefaultLang returns the built-in tables.
func DefaultLang() Lang {
	l, err := ParseLang(defaultLang)
	if err != nil {
		panic(err)
	}
	return l
}

// LoadLang reads a lang file and layers it over the built-in tables. An
// empty path returns the built-in tables.
func LoadLang(path string) (Lang, error) {
	l := DefaultLang()
	if path == "" {
		return l, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lang file: %w", err)
	}
	extra, err := ParseLang(data)
	if err != nil {
		return nil, err
	}
	for locale, keys := range extra {
		if l[locale] == nil {
			l[locale] = make(map[string]string, len(keys))
		}
		for k, v := range keys {
			l[locale][k] = v
		}
	}
	return l, nil
}

// ParseLang parses lang file content.
func ParseLang(data []byte) (Lang, error) {
	var l Lang
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse lang file: %w", err)
	}
	if l == nil {
		l = make(Lang)
	}
	return l, nil
}

// Text resolves key for locale with args substituted and color codes
// stripped. Unknown keys render as the key followed by its args.
func (l Lang) Text(locale, key string, args ...string) string {
	tmpl, ok := l[strings.ToLower(locale)][key]
	if !ok {
		tmpl, ok = l[DefaultLocale][key]
	}
	if !ok {
		return strings.TrimSpace(key + " " + strings.Join(args, " "))
	}
	pairs := make([]string, 0, len(args)*2)
	for i, a := range args {
		pairs = append(pairs, "{"+strconv.Itoa(i)+"}", a)
	}
	return richtext.Strip(strings.NewReplacer(pairs...).Replace(tmpl))
}
