package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

type published struct {
	subject string
	frame   Frame
}

type fakeTransport struct {
	mu        sync.Mutex
	published []published
	subs      map[string]func([]byte)
	requests  int
	reply     []byte
	replyErr  error
	pubErr    error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[string]func([]byte))}
}

func (f *fakeTransport) Publish(subject string, data []byte) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	fr, err := DecodeFrame(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{subject, fr})
	return nil
}

func (f *fakeTransport) Subscribe(subject string, fn func([]byte)) (func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[subject] = fn
	return func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, subject)
		return nil
	}, nil
}

func (f *fakeTransport) Request(_ context.Context, _ string, _ []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return f.reply, f.replyErr
}

func (f *fakeTransport) deliver(subject string, data []byte) {
	f.mu.Lock()
	fn := f.subs[subject]
	f.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

func (f *fakeTransport) kinds() []Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Kind
	for _, p := range f.published {
		out = append(out, p.frame.Kind)
	}
	return out
}

type recordingHandler struct {
	mu       sync.Mutex
	forwards []ChatForward
	langs    []SendLang
	sets     [][]ProxyChannel
	channels chan ProxyChannel
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{channels: make(chan ProxyChannel, 8)}
}

func (h *recordingHandler) HandleForward(m ChatForward) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.forwards = append(h.forwards, m)
}

func (h *recordingHandler) HandleLang(m SendLang) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.langs = append(h.langs, m)
}

func (h *recordingHandler) HandleProxyChannel(m ProxyChannel) { h.channels <- m }

func (h *recordingHandler) HandleProxyChannels(set []ProxyChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sets = append(h.sets, set)
	for _, m := range set {
		h.channels <- m
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBridge_StartAnnounces(t *testing.T) {
	tr := newFakeTransport()
	b := New(Config{ServerID: "lobby", Port: 25565, Platform: PlatformBungee}, tr, testLogger())
	if err := b.Start(newRecordingHandler()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Close()

	if _, ok := tr.subs[SubjectBackend("lobby")]; !ok {
		t.Error("not subscribed to the backend subject")
	}
	if got := tr.kinds(); len(got) != 1 || got[0] != KindPresence {
		t.Errorf("published %v, want one Presence", got)
	}
}

func TestBridge_ForwardAndLang(t *testing.T) {
	for _, platform := range []Platform{PlatformBungee, PlatformVelocity} {
		t.Run(string(platform), func(t *testing.T) {
			tr := newFakeTransport()
			b := New(Config{ServerID: "lobby", Port: 25565, Platform: platform}, tr, testLogger())

			if err := b.Forward(ChatForward{ChannelID: "Global", SenderID: uuid.New(), Message: "hi"}); err != nil {
				t.Fatalf("Forward() error = %v", err)
			}
			if err := b.SendLang(SendLang{Target: "bob", Key: "Private-Sent", Arg: "hi"}); err != nil {
				t.Fatalf("SendLang() error = %v", err)
			}

			want := []Kind{KindChatForward}
			if platform == PlatformVelocity {
				want = append(want, KindSendLang)
			}
			got := tr.kinds()
			if len(got) != len(want) {
				t.Fatalf("published %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("published[%d] = %s, want %s", i, got[i], want[i])
				}
			}

			fwd, _ := ParseChatForward(tr.published[0].frame)
			if fwd.OriginServer != "lobby" {
				t.Errorf("OriginServer = %q, want lobby", fwd.OriginServer)
			}
			if tr.published[0].subject != SubjectProxy {
				t.Errorf("subject = %q, want %q", tr.published[0].subject, SubjectProxy)
			}
		})
	}
}

func TestBridge_DisabledPlatform(t *testing.T) {
	tr := newFakeTransport()
	b := New(Config{ServerID: "lobby", Platform: PlatformNone}, tr, testLogger())
	if err := b.Start(newRecordingHandler()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := b.Forward(ChatForward{ChannelID: "Global"}); err != nil {
		t.Errorf("Forward() error = %v", err)
	}
	if b.FetchProxyChannels(context.Background(), uuid.New()) {
		t.Error("FetchProxyChannels() started with platform none")
	}
	if got := tr.kinds(); len(got) != 0 {
		t.Errorf("published %v with platform none", got)
	}
}

func TestBridge_PublishError(t *testing.T) {
	tr := newFakeTransport()
	tr.pubErr = errors.New("connection closed")
	b := New(Config{ServerID: "lobby", Platform: PlatformVelocity}, tr, testLogger())
	if err := b.Forward(ChatForward{ChannelID: "Global"}); !errors.Is(err, ErrProxyUnavailable) {
		t.Errorf("Forward() error = %v, want ErrProxyUnavailable", err)
	}
}

func TestBridge_Receive(t *testing.T) {
	tr := newFakeTransport()
	h := newRecordingHandler()
	b := New(Config{ServerID: "survival", Port: 25566, Platform: PlatformVelocity}, tr, testLogger())
	if err := b.Start(h); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	subject := SubjectBackend("survival")
	tr.deliver(subject, ChatForward{ChannelID: "Global", SenderID: uuid.New(), SenderName: "alice", Message: "hi", OriginServer: "lobby"}.Frame().Encode())
	tr.deliver(subject, SendLang{Target: "bob", Key: "k", Arg: "a"}.Frame().Encode())
	tr.deliver(subject, []byte(`["ChatForward","broken"]`))
	tr.deliver(subject, ProxyChannel{ChannelID: "Network", Source: "Options: {}"}.Frame().Encode())

	if len(h.forwards) != 1 || h.forwards[0].SenderName != "alice" {
		t.Errorf("forwards = %+v", h.forwards)
	}
	if len(h.langs) != 1 || h.langs[0].Target != "bob" {
		t.Errorf("langs = %+v", h.langs)
	}
	select {
	case pc := <-h.channels:
		if pc.ChannelID != "Network" {
			t.Errorf("proxy channel = %+v", pc)
		}
	default:
		t.Error("proxy channel not delivered")
	}
}

func TestBridge_ReceiveChannelSet(t *testing.T) {
	tr := newFakeTransport()
	h := newRecordingHandler()
	b := New(Config{ServerID: "survival", Platform: PlatformVelocity}, tr, testLogger())
	if err := b.Start(h); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	subject := SubjectBackend("survival")
	tr.deliver(subject, EncodeBatch([]Frame{ProxyChannel{ChannelID: "Network", Source: "Options: {}"}.Frame()}))
	tr.deliver(subject, EncodeBatch(nil))
	tr.deliver(subject, []byte(`[["ChatForward"]]`))

	h.mu.Lock()
	defer h.mu.Unlock()
	want := [][]ProxyChannel{{{ChannelID: "Network", Source: "Options: {}"}}, {}}
	if diff := cmp.Diff(want, h.sets); diff != "" {
		t.Errorf("channel sets mismatch (-want +got):\n%s", diff)
	}
}

func TestBridge_FetchProxyChannelsOnce(t *testing.T) {
	tr := newFakeTransport()
	tr.reply = EncodeBatch([]Frame{
		ProxyChannel{ChannelID: "Network", Source: "Options: {Proxy: true}"}.Frame(),
	})
	h := newRecordingHandler()
	b := New(Config{ServerID: "lobby", Platform: PlatformBungee}, tr, testLogger())
	if err := b.Start(h); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !b.FetchProxyChannels(context.Background(), uuid.New()) {
		t.Fatal("first FetchProxyChannels() did not start")
	}
	if b.FetchProxyChannels(context.Background(), uuid.New()) {
		t.Error("second FetchProxyChannels() started again")
	}

	select {
	case pc := <-h.channels:
		if pc.ChannelID != "Network" {
			t.Errorf("proxy channel = %+v", pc)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("proxy channels never arrived")
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.requests != 1 {
		t.Errorf("requests = %d, want 1", tr.requests)
	}
}

func TestBridge_FetchTimeout(t *testing.T) {
	tr := newFakeTransport()
	tr.replyErr = context.DeadlineExceeded
	b := New(Config{ServerID: "lobby", Platform: PlatformBungee, FetchTimeout: 10 * time.Millisecond}, tr, testLogger())
	if err := b.fetchProxyChannels(context.Background(), uuid.New()); !errors.Is(err, ErrProxyUnavailable) {
		t.Errorf("fetchProxyChannels() error = %v, want ErrProxyUnavailable", err)
	}
}
