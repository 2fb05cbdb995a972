package condition

import (
	"errors"
	"testing"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantNil bool
		wantErr bool
	}{
		{name: "empty", expr: "", wantNil: true},
		{name: "blank", expr: "   ", wantNil: true},
		{name: "permission", expr: `perm("vip.chat")`},
		{name: "receiver permission", expr: `perm("chat.staff"; "receiver")`},
		{name: "comparison", expr: `.sender.world == "nether" and .distance < 50`},
		{name: "attribute", expr: `attr("level") >= 10`},
		{name: "not", expr: `perm("chat.muted") | not`},
		{name: "syntax error", expr: `.sender.world ==`, wantErr: true},
		{name: "unknown function", expr: `hasrank("admin")`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Compile(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Compile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var pe *ParseError
				if !errors.As(err, &pe) {
					t.Errorf("error = %T, want *ParseError", err)
				}
				return
			}
			if (c == nil) != tt.wantNil {
				t.Errorf("Compile() nil = %v, want %v", c == nil, tt.wantNil)
			}
		})
	}
}

func TestCondition_Evaluate(t *testing.T) {
	doc := map[string]any{
		"sender": map[string]any{
			"name":        "alice",
			"world":       "nether",
			"permissions": []any{"vip.*", "-vip.hidden"},
			"attributes":  map[string]any{"level": 12.0},
		},
		"receiver": map[string]any{
			"name":        "bob",
			"permissions": []any{"chat.staff"},
			"attributes":  map[string]any{},
		},
		"channel":  "Global",
		"message":  "hello",
		"distance": 20.0,
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{name: "empty always true", expr: "", want: true},
		{name: "wildcard permission", expr: `perm("vip.chat")`, want: true},
		{name: "negated permission", expr: `perm("vip.hidden")`, want: false},
		{name: "missing permission", expr: `perm("chat.staff")`, want: false},
		{name: "receiver permission", expr: `perm("chat.staff"; "receiver")`, want: true},
		{name: "piped session", expr: `.receiver | perm("chat.staff")`, want: true},
		{name: "field comparison", expr: `.sender.world == "nether"`, want: true},
		{name: "numeric comparison", expr: `.distance < 10`, want: false},
		{name: "attribute", expr: `attr("level") >= 10`, want: true},
		{name: "missing attribute", expr: `attr("rank") == "admin"`, want: false},
		{name: "missing field", expr: `.sender.nope.deeper == 1`, want: false},
		{name: "runtime error", expr: `.message | tonumber > 1`, want: false},
		{name: "empty result", expr: `empty`, want: false},
		{name: "null result", expr: `.nothing`, want: false},
		{name: "non-boolean truthy", expr: `.channel`, want: true},
		{name: "logical", expr: `perm("vip.chat") and (.channel == "Staff" | not)`, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			if got := c.Evaluate(doc); got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluateWithoutReceiver(t *testing.T) {
	c := MustCompile(`perm("chat.staff"; "receiver")`)
	doc := map[string]any{"sender": map[string]any{"permissions": []any{"*"}}}
	if c.Evaluate(doc) {
		t.Error("expected false when receiver is absent")
	}
}

func TestString(t *testing.T) {
	var c *Condition
	if c.String() != "" {
		t.Errorf("nil condition String() = %q", c.String())
	}
	if got := MustCompile(` perm("a") `).String(); got != `perm("a")` {
		t.Errorf("String() = %q", got)
	}
}
