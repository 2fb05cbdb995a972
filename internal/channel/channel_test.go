package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/filipexyz/chanrelay/internal/condition"
	"github.com/filipexyz/chanrelay/internal/session"
)

const globalUnit = `
Options:
  Target: ALL
  Proxy: true
  Ports: "25565;25566"
Bindings:
  Prefix: ["!"]
  Command: [global, g]
Events:
  Send:
    - "log: sent"
Formats:
  - priority: 100
    msg:
      default-color: "&7"
      text: ["Hello"]
`

const vipUnit = `
Options:
  Join-Permission: vip.chat
  Speak-Condition: 'perm("vip.speak")'
  Target: "RADIUS;50"
Bindings:
  Prefix: ["$"]
Formats:
  - msg:
      default-color: "&6"
`

const privateUnit = `
Options:
  Private: true
Bindings:
  Prefix: ["@"]
  Command: [msg, tell]
Sender:
  - msg: {default-color: "&d"}
Receiver:
  - msg: {default-color: "&d"}
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLoader(t *testing.T) *Loader {
	t.Helper()
	l, err := NewLoader(quietLogger())
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	return l
}

var compareConditions = cmp.Comparer(func(a, b *condition.Condition) bool {
	return a.String() == b.String()
})

func TestLoadChannel_Defaults(t *testing.T) {
	ch, err := newLoader(t).LoadChannel("plain", []byte("Options: {}\n"))
	if err != nil {
		t.Fatalf("LoadChannel() error = %v", err)
	}
	want := Settings{
		AutoJoin:           true,
		Range:              Range{Type: RangeAll, Distance: -1},
		DoubleTransfer:     true,
		SendToDiscord:      true,
		ReceiveFromDiscord: true,
	}
	if diff := cmp.Diff(want, ch.Settings, compareConditions); diff != "" {
		t.Errorf("Settings mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadChannel_Options(t *testing.T) {
	l := newLoader(t)

	global, err := l.LoadChannel("Global", []byte(globalUnit))
	if err != nil {
		t.Fatalf("LoadChannel(Global) error = %v", err)
	}
	if diff := cmp.Diff([]int{25565, 25566}, global.Settings.Ports); diff != "" {
		t.Errorf("Ports mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Bindings{Prefix: []string{"!"}, Command: []string{"global", "g"}}, global.Bindings); diff != "" {
		t.Errorf("Bindings mismatch (-want +got):\n%s", diff)
	}
	if global.Events.Send == nil || len(global.Events.Send.Actions) != 1 {
		t.Errorf("Events.Send = %+v, want one action", global.Events.Send)
	}
	if len(global.Formats) != 1 {
		t.Errorf("len(Formats) = %d, want 1", len(global.Formats))
	}

	vip, err := l.LoadChannel("vip", []byte(vipUnit))
	if err != nil {
		t.Fatalf("LoadChannel(vip) error = %v", err)
	}
	if vip.Settings.ListenPermission != "vip.chat" {
		t.Errorf("ListenPermission = %q, want join permission", vip.Settings.ListenPermission)
	}
	if vip.Settings.Range != (Range{Type: RangeRadius, Distance: 50}) {
		t.Errorf("Range = %+v", vip.Settings.Range)
	}
}

func TestLoadChannel_Private(t *testing.T) {
	ch, err := newLoader(t).LoadChannel("msg", []byte(privateUnit))
	if err != nil {
		t.Fatalf("LoadChannel() error = %v", err)
	}
	if !ch.IsPrivate() {
		t.Fatal("IsPrivate() = false")
	}
	if len(ch.Bindings.Prefix) != 0 {
		t.Errorf("Prefix = %v, want none for private channels", ch.Bindings.Prefix)
	}
	if ch.Settings.SendToDiscord {
		t.Error("SendToDiscord defaults to true on a private channel")
	}
	if ch.Join(uuid.New()) {
		t.Error("Join() on a private channel = true")
	}
}

func TestLoadChannel_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"missing options", "Formats: []\n", ErrInvalidUnit},
		{"options wrong type", "Options: [1, 2]\n", ErrInvalidUnit},
		{"unknown range", "Options: {Target: NOWHERE}\n", ErrUnknownRange},
	}
	l := newLoader(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.LoadChannel("bad", []byte(tt.src))
			if !errors.Is(err, tt.want) {
				t.Errorf("LoadChannel() error = %v, want %v", err, tt.want)
			}
		})
	}

	_, err := l.LoadChannel("bad", []byte("Options: {Speak-Condition: 'perm('}\n"))
	var perr *condition.ParseError
	if !errors.As(err, &perr) {
		t.Errorf("LoadChannel() error = %v, want ParseError", err)
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in   string
		want Range
	}{
		{"ALL", Range{RangeAll, -1}},
		{"single_world", Range{RangeWorld, -1}},
		{"DISTANCE;30", Range{RangeRadius, 30}},
		{"SELF", Range{RangeSelf, -1}},
	}
	for _, tt := range tests {
		got, err := ParseRange(tt.in)
		if err != nil {
			t.Errorf("ParseRange(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRange(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
		if again, _ := ParseRange(got.String()); again != got {
			t.Errorf("ParseRange(%q) does not round trip", got.String())
		}
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	l := newLoader(t)
	for _, src := range []string{globalUnit, vipUnit, privateUnit, "Options: {}\n"} {
		ch, err := l.LoadChannel("c", []byte(src))
		if err != nil {
			t.Fatalf("LoadChannel() error = %v", err)
		}
		out, err := yaml.Marshal(map[string]any{"Options": ch.Settings})
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		again, err := l.LoadChannel("c", out)
		if err != nil {
			t.Fatalf("reload error = %v\n%s", err, out)
		}
		if diff := cmp.Diff(ch.Settings, again.Settings, compareConditions); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestLoadFS_DuplicatePolicy(t *testing.T) {
	fsys := fstest.MapFS{
		"a/dup.yml":    {Data: []byte(globalUnit)},
		"b/dup.yaml":   {Data: []byte(vipUnit)},
		"broken.yml":   {Data: []byte("Options: {Target: NOWHERE}\n")},
		"msg.yml":      {Data: []byte(privateUnit)},
		"readme.txt":   {Data: []byte("ignored")},
		"nested/x.yml": {Data: []byte(vipUnit)},
	}
	channels, errs := newLoader(t).LoadFS(fsys)

	if got := len(channels); got != 3 {
		t.Fatalf("loaded %d channels, want 3", got)
	}
	if channels["dup"].File != "a/dup.yml" {
		t.Errorf("dup loaded from %s, want a/dup.yml", channels["dup"].File)
	}
	if len(errs) != 2 {
		t.Fatalf("errs = %v, want 2", errs)
	}

	var dupErr *LoadError
	for _, err := range errs {
		var le *LoadError
		if errors.As(err, &le) && errors.Is(err, ErrDuplicateChannel) {
			dupErr = le
		}
	}
	if dupErr == nil || dupErr.File != "b/dup.yaml" || dupErr.ID != "dup" {
		t.Errorf("duplicate error = %+v, want b/dup.yaml", dupErr)
	}
}

func TestRegistry_ReregisterResetsListeners(t *testing.T) {
	l := newLoader(t)
	reg := NewRegistry(nil, l, quietLogger())

	var events []string
	reg.AddHooks(Hooks{
		OnRegister:   func(ch *Channel) { events = append(events, "register:"+ch.ID) },
		OnUnregister: func(ch *Channel) { events = append(events, "unregister:"+ch.ID) },
	})

	first, _ := l.LoadChannel("Global", []byte(globalUnit))
	reg.Register(first)
	id := uuid.New()
	first.Join(id)

	second, _ := l.LoadChannel("Global", []byte(globalUnit))
	reg.Register(second)

	if first.Listening(id) {
		t.Error("old channel kept its listener")
	}
	if second.ListenerCount() != 0 {
		t.Errorf("new channel has %d listeners, want 0", second.ListenerCount())
	}
	got, _ := reg.Get("Global")
	if got != second {
		t.Error("Get() returned the replaced channel")
	}
	want := []string{"register:Global", "unregister:Global", "register:Global"}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("hook order mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_Reload(t *testing.T) {
	l := newLoader(t)
	fsys := fstest.MapFS{"Global.yml": {Data: []byte(globalUnit)}}
	reg := NewRegistry(func() (map[string]*Channel, []error) { return l.LoadFS(fsys) }, l, quietLogger())

	var reloaded map[string]*Channel
	reg.AddHooks(Hooks{OnReload: func(m map[string]*Channel) { reloaded = m }})

	if _, err := reg.AddRemote("Network", []byte(vipUnit)); err != nil {
		t.Fatalf("AddRemote() error = %v", err)
	}
	if _, err := reg.AddRemote("Global", []byte(vipUnit)); err != nil {
		t.Fatalf("AddRemote(Global) before reload error = %v", err)
	}

	n, errs := reg.Reload(context.Background())
	if n != 2 {
		t.Errorf("Reload() = %d, want 2", n)
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrDuplicateChannel) {
		t.Errorf("Reload() errs = %v, want one duplicate", errs)
	}
	if g, _ := reg.Get("Global"); g.File != "Global.yml" {
		t.Errorf("Global from %s, want the local unit", g.File)
	}
	if _, ok := reg.Get("Network"); !ok {
		t.Error("remote channel lost on reload")
	}
	if len(reloaded) != 2 {
		t.Errorf("OnReload saw %d channels, want 2", len(reloaded))
	}

	if _, err := reg.AddRemote("Global", []byte(vipUnit)); !errors.Is(err, ErrDuplicateChannel) {
		t.Errorf("AddRemote over local = %v, want ErrDuplicateChannel", err)
	}
}

func TestRegistry_ReloadIsAtomic(t *testing.T) {
	l := newLoader(t)
	fsys := fstest.MapFS{}
	for i := range 40 {
		fsys[fmt.Sprintf("ch%02d.yml", i)] = &fstest.MapFile{Data: []byte(globalUnit)}
	}
	reg := NewRegistry(func() (map[string]*Channel, []error) { return l.LoadFS(fsys) }, l, quietLogger())
	if _, errs := reg.Reload(context.Background()); len(errs) > 0 {
		t.Fatalf("Reload() errors = %v", errs)
	}

	var hookSizes []int
	record := func(*Channel) { hookSizes = append(hookSizes, len(reg.All())) }
	reg.AddHooks(Hooks{OnRegister: record, OnUnregister: record})

	stop := make(chan struct{})
	partial := make(chan int, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if n := len(reg.All()); n != 40 {
				select {
				case partial <- n:
				default:
				}
			}
		}
	}()
	for range 50 {
		reg.Reload(context.Background())
	}
	close(stop)
	wg.Wait()

	select {
	case n := <-partial:
		t.Errorf("reader saw %d channels during reload, want 40", n)
	default:
	}
	for _, n := range hookSizes {
		if n != 40 {
			t.Fatalf("hook saw %d channels, want 40 (sizes %v)", n, hookSizes)
		}
	}
}

func TestRegistry_ReplaceRemote(t *testing.T) {
	l := newLoader(t)
	reg := NewRegistry(nil, l, quietLogger())
	local, _ := l.LoadChannel("Global", []byte(globalUnit))
	reg.Register(local)

	added, errs := reg.ReplaceRemote(map[string][]byte{
		"Network": []byte(vipUnit),
		"Trade":   []byte(vipUnit),
		"Global":  []byte(vipUnit),
	})
	if len(added) != 2 {
		t.Errorf("added %d channels, want 2", len(added))
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrDuplicateChannel) {
		t.Errorf("errs = %v, want one duplicate", errs)
	}
	network, _ := reg.Get("Network")
	id := uuid.New()
	network.Join(id)

	// Trade is gone from the proxy tier; Network is unchanged.
	added, errs = reg.ReplaceRemote(map[string][]byte{"Network": []byte(vipUnit)})
	if len(added) != 0 || len(errs) != 0 {
		t.Errorf("ReplaceRemote() = %v, %v, want nothing new", added, errs)
	}
	if _, ok := reg.Get("Trade"); ok {
		t.Error("removed remote channel still registered")
	}
	if got, _ := reg.Get("Network"); got != network || !got.Listening(id) {
		t.Error("unchanged remote channel was replaced")
	}
	if got, _ := reg.Get("Global"); got != local {
		t.Error("local channel replaced by remote unit")
	}

	reg.Reload(context.Background())
	if _, ok := reg.Get("Trade"); ok {
		t.Error("removed remote channel came back on reload")
	}
	if _, ok := reg.Get("Network"); !ok {
		t.Error("remote channel lost on reload")
	}
}

func TestRegistry_Lookups(t *testing.T) {
	l := newLoader(t)
	reg := NewRegistry(nil, l, quietLogger())
	for id, src := range map[string]string{"Global": globalUnit, "vip": vipUnit, "msg": privateUnit} {
		ch, err := l.LoadChannel(id, []byte(src))
		if err != nil {
			t.Fatalf("LoadChannel(%s) error = %v", id, err)
		}
		reg.Register(ch)
	}
	longer, _ := l.LoadChannel("shout", []byte("Options: {}\nBindings: {Prefix: ['!!']}\n"))
	reg.Register(longer)

	if ch, rest, ok := reg.ByPrefix("!!hey"); !ok || ch.ID != "shout" || rest != "hey" {
		t.Errorf("ByPrefix(!!hey) = %v, %q, %v", ch, rest, ok)
	}
	if ch, rest, ok := reg.ByPrefix("!hey"); !ok || ch.ID != "Global" || rest != "hey" {
		t.Errorf("ByPrefix(!hey) = %v, %q, %v", ch, rest, ok)
	}
	if _, _, ok := reg.ByPrefix("hey"); ok {
		t.Error("ByPrefix(hey) matched")
	}
	if ch, ok := reg.ByCommand("TELL"); !ok || ch.ID != "msg" {
		t.Errorf("ByCommand(TELL) = %v, %v", ch, ok)
	}
	if got := len(reg.All()); got != 4 {
		t.Errorf("len(All()) = %d, want 4", got)
	}
}

func TestRegistry_VIPJoin(t *testing.T) {
	l := newLoader(t)
	reg := NewRegistry(nil, l, quietLogger())
	for id, src := range map[string]string{"Global": globalUnit, "vip": vipUnit, "msg": privateUnit} {
		ch, _ := l.LoadChannel(id, []byte(src))
		reg.Register(ch)
	}

	ids := func(chs []*Channel) []string {
		var out []string
		for _, ch := range chs {
			out = append(out, ch.ID)
		}
		return out
	}

	vip := &session.Session{ID: uuid.New(), Permissions: []string{"vip.chat"}}
	guest := &session.Session{ID: uuid.New()}

	if diff := cmp.Diff([]string{"Global", "vip"}, ids(reg.EligibleChannels(vip))); diff != "" {
		t.Errorf("vip eligible mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Global"}, ids(reg.EligibleChannels(guest))); diff != "" {
		t.Errorf("guest eligible mismatch (-want +got):\n%s", diff)
	}

	ch, _ := reg.Get("vip")
	if !ch.CanListen(vip) || ch.CanListen(guest) {
		t.Error("listen permission does not follow join permission")
	}
	if ch.CanSpeak(vip.Document()) {
		t.Error("CanSpeak() without vip.speak = true")
	}
}
