// Package filter masks blocked words in chat messages.
package filter

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// DefaultMask replaces each rune of a blocked word.
const DefaultMask = "*"

// File is the on-disk filter configuration.
type File struct {
	// Words are matched case-insensitively as whole words.
	Words []string `yaml:"words"`
	// Patterns are raw regular expressions.
	Patterns []string `yaml:"patterns"`
	// Whitelist entries are never masked, even when a pattern covers them.
	Whitelist []string `yaml:"whitelist"`
	Mask      string   `yaml:"mask"`
}

// Filter masks matches of the compiled word and pattern expressions.
type Filter struct {
	words     *regexp.Regexp // matched only at word boundaries
	patterns  *regexp.Regexp
	whitelist map[string]struct{}
	mask      string
}

// Load reads a filter file.
func Load(path string) (*Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read filter file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse filter file: %w", err)
	}
	return New(f)
}

// New compiles f. An empty word and pattern list yields a filter that
// never changes a message.
func New(f File) (*Filter, error) {
	var words, patterns []string
	for _, w := range f.Words {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, regexp.QuoteMeta(w))
		}
	}
	for _, p := range f.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("filter pattern %q: %w", p, err)
		}
		patterns = append(patterns, "(?:"+p+")")
	}

	flt := &Filter{mask: f.Mask, whitelist: make(map[string]struct{}, len(f.Whitelist))}
	if flt.mask == "" {
		flt.mask = DefaultMask
	}
	for _, w := range f.Whitelist {
		flt.whitelist[strings.ToLower(w)] = struct{}{}
	}
	if len(words) > 0 {
		flt.words = regexp.MustCompile("(?i)" + strings.Join(words, "|"))
	}
	if len(patterns) > 0 {
		flt.patterns = regexp.MustCompile("(?i)" + strings.Join(patterns, "|"))
	}
	return flt, nil
}

// Filter returns message with every blocked match masked rune for rune.
func (f *Filter) Filter(message string) string {
	if f == nil {
		return message
	}
	if f.words != nil {
		message = f.replace(message, f.words, true)
	}
	if f.patterns != nil {
		message = f.replace(message, f.patterns, false)
	}
	return message
}

func (f *Filter) replace(s string, re *regexp.Regexp, bounded bool) string {
	var b strings.Builder
	last := 0
	for _, m := range re.FindAllStringIndex(s, -1) {
		if m[0] == m[1] || (bounded && !isBoundary(s, m[0], m[1])) {
			continue
		}
		match := s[m[0]:m[1]]
		if _, ok := f.whitelist[strings.ToLower(match)]; ok {
			continue
		}
		b.WriteString(s[last:m[0]])
		b.WriteString(strings.Repeat(f.mask, utf8.RuneCountInString(match)))
		last = m[1]
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

// isBoundary reports whether s[start:end] is not embedded in a longer word.
func isBoundary(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
