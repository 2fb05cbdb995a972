package format

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/filipexyz/chanrelay/internal/condition"
	"github.com/filipexyz/chanrelay/internal/richtext"
	"github.com/filipexyz/chanrelay/internal/session"
)

func parseFormats(t *testing.T, src string) Formats {
	t.Helper()
	var n yaml.Node
	if err := yaml.Unmarshal([]byte(src), &n); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	f, err := ParseFormats(&n, false)
	if err != nil {
		t.Fatalf("ParseFormats() error = %v", err)
	}
	return f
}

var (
	alice = &session.Session{Name: "alice", World: "world", Permissions: []string{"vip.chat"}}
	staff = &session.Session{Name: "mod", World: "world", Permissions: []string{"chat.staff"}}
	guest = &session.Session{Name: "guest", World: "world"}
)

func TestResolveFormat_GlobalExample(t *testing.T) {
	formats := parseFormats(t, `
- priority: 100
  msg:
    default-color: [["&7", null]]
    text: ["Hello"]
`)

	for _, sender := range []*session.Session{alice, guest, nil} {
		got, ok := ResolveFormat(formats, &RenderContext{Sender: sender, Channel: "Global", Message: "anything"})
		if !ok {
			t.Fatal("ResolveFormat() matched nothing")
		}
		if got.Plain() != "Hello" {
			t.Errorf("Plain() = %q, want Hello", got.Plain())
		}
		if len(got.Extra) != 1 || got.Extra[0].Color != richtext.ParseColor("&7") {
			t.Errorf("msg component = %+v, want color gray", got.Extra)
		}
	}
}

func TestResolveFormat_MessageBody(t *testing.T) {
	formats := parseFormats(t, `
- msg:
    default-color: "&f"
  prefix:
    name:
      text: "{{.sender.name}}: "
`)
	got, ok := ResolveFormat(formats, &RenderContext{Sender: alice, Message: "hi there"})
	if !ok {
		t.Fatal("no match")
	}
	if got.Plain() != "alice: hi there" {
		t.Errorf("Plain() = %q", got.Plain())
	}
}

func TestResolveFormat_PriorityOrder(t *testing.T) {
	formats := parseFormats(t, `
- priority: 100
  msg: {default-color: "&7", text: "default"}
- priority: 10
  condition: 'perm("vip.chat")'
  msg: {default-color: "&6", text: "vip"}
- priority: 100
  msg: {default-color: "&7", text: "second default"}
`)

	tests := []struct {
		sender *session.Session
		want   string
	}{
		{alice, "vip"},
		{guest, "default"},
	}
	for _, tt := range tests {
		got, ok := ResolveFormat(formats, &RenderContext{Sender: tt.sender})
		if !ok {
			t.Fatalf("no match for %s", tt.sender.Name)
		}
		if got.Plain() != tt.want {
			t.Errorf("sender %s: Plain() = %q, want %q", tt.sender.Name, got.Plain(), tt.want)
		}
	}
}

func TestResolveFormat_NonOverlappingOrderIndependent(t *testing.T) {
	a := `
- condition: 'perm("vip.chat")'
  msg: {default-color: "&6", text: "vip"}
- condition: 'perm("vip.chat") | not'
  msg: {default-color: "&7", text: "regular"}
`
	b := `
- condition: 'perm("vip.chat") | not'
  msg: {default-color: "&7", text: "regular"}
- condition: 'perm("vip.chat")'
  msg: {default-color: "&6", text: "vip"}
`
	fa, fb := parseFormats(t, a), parseFormats(t, b)
	for _, s := range []*session.Session{alice, guest} {
		ra, _ := ResolveFormat(fa, &RenderContext{Sender: s})
		rb, _ := ResolveFormat(fb, &RenderContext{Sender: s})
		if diff := cmp.Diff(ra, rb); diff != "" {
			t.Errorf("sender %s: order changed result (-a +b):\n%s", s.Name, diff)
		}
	}
}

func TestResolveFormat_Deterministic(t *testing.T) {
	formats := parseFormats(t, `
- msg:
    default-color: [["&c", 'perm("vip.chat")'], ["&7", null]]
    hover: "sent by {{.sender.name}}"
`)
	ctx := &RenderContext{Sender: alice, Receiver: staff, Message: "x"}
	first, _ := ResolveFormat(formats, ctx)
	for range 5 {
		again, _ := ResolveFormat(formats, ctx)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("ResolveFormat() not deterministic (-first +again):\n%s", diff)
		}
	}
	if first.Extra[0].Color != "red" {
		t.Errorf("color = %q, want red", first.Extra[0].Color)
	}
}

func TestResolveFormat_NoMatch(t *testing.T) {
	formats := parseFormats(t, `
- condition: 'perm("never.granted")'
  msg: {default-color: "&7"}
`)
	if c, ok := ResolveFormat(formats, &RenderContext{Sender: guest}); ok || c != nil {
		t.Errorf("ResolveFormat() = %v, %v; want nil, false", c, ok)
	}
}

func TestResolveFormat_Slots(t *testing.T) {
	formats := parseFormats(t, `
- prefix:
    rank:
      - condition: 'perm("vip.chat")'
        priority: 5
        text: "&6[VIP] "
      - condition: 'perm("chat.staff")'
        priority: 1
        text: "&c[Staff] "
    world:
      text: "&8[{{.sender.world}}] "
  msg: {default-color: "&f"}
  suffix:
    none:
      - condition: 'perm("never")'
        text: "unreachable"
`)

	tests := []struct {
		sender *session.Session
		want   string
	}{
		{alice, "[VIP] [world] hi"},
		{staff, "[Staff] [world] hi"},
		{guest, "[world] hi"},
	}
	for _, tt := range tests {
		got, _ := ResolveFormat(formats, &RenderContext{Sender: tt.sender, Message: "hi"})
		if got.Plain() != tt.want {
			t.Errorf("sender %s: Plain() = %q, want %q", tt.sender.Name, got.Plain(), tt.want)
		}
	}
}

func TestResolveFormat_PerRecipientHover(t *testing.T) {
	formats := parseFormats(t, `
- prefix:
    name:
      text: "{{.sender.name}}"
      hover:
        - text: ["&cStaff view", "world: {{.sender.world}}"]
          condition: 'perm("chat.staff"; "receiver")'
        - "&7Player"
      suggest: "/msg {{.sender.name}} "
  msg: {default-color: "&f"}
`)

	forStaff, _ := ResolveFormat(formats, &RenderContext{Sender: alice, Receiver: staff})
	forGuest, _ := ResolveFormat(formats, &RenderContext{Sender: alice, Receiver: guest})

	hover := func(c *richtext.Component) string {
		h := c.Extra[0].HoverEvent
		if h == nil {
			return ""
		}
		return (&richtext.Component{Extra: h.Contents}).Plain()
	}
	if got := hover(forStaff); got != "Staff view\nworld: world" {
		t.Errorf("staff hover = %q", got)
	}
	if got := hover(forGuest); got != "Player" {
		t.Errorf("guest hover = %q", got)
	}
	click := forGuest.Extra[0].ClickEvent
	if click == nil || click.Action != richtext.ClickSuggest || click.Value != "/msg alice " {
		t.Errorf("click = %+v", click)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr error
	}{
		{
			name:    "missing default-color",
			src:     `[{msg: {text: "x"}}]`,
			wantErr: ErrMissingField,
		},
		{
			name:    "missing msg",
			src:     `[{prefix: {a: {text: "x"}}}]`,
			wantErr: ErrMissingField,
		},
		{
			name:    "bad group",
			src:     `[{msg: "just a string"}]`,
			wantErr: ErrUnexpectedNode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n yaml.Node
			if err := yaml.Unmarshal([]byte(tt.src), &n); err != nil {
				t.Fatalf("yaml: %v", err)
			}
			_, err := ParseFormats(&n, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseFormats() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParse_ConditionError(t *testing.T) {
	var n yaml.Node
	if err := yaml.Unmarshal([]byte(`[{condition: "perm(", msg: {default-color: "&7"}}]`), &n); err != nil {
		t.Fatal(err)
	}
	_, err := ParseFormats(&n, false)
	var pe *condition.ParseError
	if !errors.As(err, &pe) {
		t.Errorf("error = %v, want *condition.ParseError", err)
	}
}

func TestParseJSON_DefaultText(t *testing.T) {
	var n yaml.Node
	if err := yaml.Unmarshal([]byte(`{hover: "x"}`), &n); err != nil {
		t.Fatal(err)
	}
	j, err := ParseJSON(&n)
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	c := j.Render(map[string]any{}, nil)
	if c.Plain() != "null" {
		t.Errorf("Plain() = %q, want null", c.Plain())
	}
}

func TestConsoleFormatsIgnoreConditions(t *testing.T) {
	var n yaml.Node
	if err := yaml.Unmarshal([]byte(`
- condition: 'perm("never")'
  priority: 1
  msg: {default-color: "&7"}
`), &n); err != nil {
		t.Fatal(err)
	}
	f, err := ParseFormats(&n, true)
	if err != nil {
		t.Fatalf("ParseFormats() error = %v", err)
	}
	if _, ok := ResolveFormat(f, &RenderContext{Message: "log line"}); !ok {
		t.Error("console format should match unconditionally")
	}
}
