package format

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/filipexyz/chanrelay/internal/condition"
)

// Candidate is one conditionally guarded value of a text, color, or style
// attribute.
type Candidate struct {
	Value     string
	Condition *condition.Condition

	tmpl *template.Template
}

// NewCandidate compiles value as a text template when it contains actions.
func NewCandidate(value string, cond *condition.Condition) (Candidate, error) {
	c := Candidate{Value: value, Condition: cond}
	if strings.Contains(value, "{{") {
		tmpl, err := template.New("text").Funcs(templateFuncs).Option("missingkey=zero").Parse(value)
		if err != nil {
			return Candidate{}, fmt.Errorf("parse text %q: %w", value, err)
		}
		c.tmpl = tmpl
	}
	return c, nil
}

// Literal returns an unconditional, non-template candidate.
func Literal(value string) Candidate {
	return Candidate{Value: value}
}

// Expand returns the candidate's value with template actions executed
// against doc. Execution errors fall back to the source text.
func (c Candidate) Expand(doc map[string]any) string {
	if c.tmpl == nil {
		return c.Value
	}
	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, doc); err != nil {
		return c.Value
	}
	return strings.ReplaceAll(buf.String(), "<no value>", "")
}

// Candidates is an ordered candidate list; the first match wins.
type Candidates []Candidate

// Resolve returns the expanded value of the first candidate whose condition
// holds, and false when none does.
func (cs Candidates) Resolve(doc map[string]any) (string, bool) {
	for _, c := range cs {
		if c.Condition.Evaluate(doc) {
			return c.Expand(doc), true
		}
	}
	return "", false
}

var templateFuncs = template.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
	"default": func(def, v any) any {
		if v == nil || v == "" {
			return def
		}
		return v
	},
}
