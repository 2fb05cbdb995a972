// Package condition compiles chat condition expressions at load time and
// evaluates them against a render document at render time.
//
// Expressions are jq programs run against a document shaped like
//
//	{"sender": {...}, "receiver": {...}, "channel": "Global", "message": "...", "distance": 12.5}
//
// with two chat predicates added: perm("node") and attr("key").
package condition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/itchyny/gojq"

	"github.com/filipexyz/chanrelay/internal/session"
)

// EvalTimeout bounds a single evaluation.
const EvalTimeout = 50 * time.Millisecond

// ParseError reports an expression that could not be parsed or compiled.
type ParseError struct {
	Expr string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid condition %q: %v", e.Expr, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Condition is a pre-compiled boolean expression. A nil *Condition always
// evaluates to true.
type Condition struct {
	expr string
	code *gojq.Code
}

// Compile compiles expr. An empty (or blank) expression yields a nil
// Condition, which always matches.
func Compile(expr string) (*Condition, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, &ParseError{Expr: expr, Err: err}
	}

	code, err := gojq.Compile(query,
		gojq.WithFunction("perm", 1, 2, permFunc),
		gojq.WithFunction("attr", 1, 1, attrFunc),
	)
	if err != nil {
		return nil, &ParseError{Expr: expr, Err: err}
	}

	return &Condition{expr: expr, code: code}, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// package-level defaults.
func MustCompile(expr string) *Condition {
	c, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the source expression.
func (c *Condition) String() string {
	if c == nil {
		return ""
	}
	return c.expr
}

// Evaluate reports whether the condition holds for doc. Runtime errors,
// missing fields, and empty results count as false.
func (c *Condition) Evaluate(doc map[string]any) bool {
	if c == nil {
		return true
	}
	if c.code == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), EvalTimeout)
	defer cancel()

	iter := c.code.RunWithContext(ctx, doc)
	v, ok := iter.Next()
	if !ok {
		return false
	}
	if _, isErr := v.(error); isErr {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return v != nil
}

// Eval is a convenience for evaluating a possibly-nil condition.
func Eval(c *Condition, doc map[string]any) bool {
	return c.Evaluate(doc)
}

var errBadArgument = errors.New("expected string argument")

// permFunc implements perm(node) and perm(node; role). The subject is taken
// from the input: a render document picks the role (default "sender"); a
// bare session document is used directly.
func permFunc(v any, args []any) any {
	node, ok := args[0].(string)
	if !ok {
		return errBadArgument
	}
	role := "sender"
	if len(args) == 2 {
		if role, ok = args[1].(string); !ok {
			return errBadArgument
		}
	}
	subject := subjectOf(v, role)
	if subject == nil {
		return false
	}
	if node == "" {
		return true
	}
	perms, _ := subject["permissions"].([]any)
	for _, p := range perms {
		if s, ok := p.(string); ok && strings.HasPrefix(s, "-") && session.MatchPermission(s[1:], node) {
			return false
		}
	}
	for _, p := range perms {
		if s, ok := p.(string); ok && session.MatchPermission(s, node) {
			return true
		}
	}
	return false
}

// attrFunc implements attr(key): the sender's attribute, or null.
func attrFunc(v any, args []any) any {
	key, ok := args[0].(string)
	if !ok {
		return errBadArgument
	}
	subject := subjectOf(v, "sender")
	if subject == nil {
		return nil
	}
	attrs, _ := subject["attributes"].(map[string]any)
	return attrs[key]
}

func subjectOf(v any, role string) map[string]any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	if _, isSession := m["permissions"]; isSession {
		return m
	}
	s, _ := m[role].(map[string]any)
	return s
}
