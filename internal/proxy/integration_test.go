package proxy

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/filipexyz/chanrelay/internal/bridge"
	"github.com/filipexyz/chanrelay/internal/nats"
)

type chanHandler struct {
	forwards chan bridge.ChatForward
	langs    chan bridge.SendLang
	channels chan bridge.ProxyChannel
}

func newChanHandler() *chanHandler {
	return &chanHandler{
		forwards: make(chan bridge.ChatForward, 4),
		langs:    make(chan bridge.SendLang, 4),
		channels: make(chan bridge.ProxyChannel, 4),
	}
}

func (h *chanHandler) HandleForward(m bridge.ChatForward)       { h.forwards <- m }
func (h *chanHandler) HandleLang(m bridge.SendLang)             { h.langs <- m }
func (h *chanHandler) HandleProxyChannel(m bridge.ProxyChannel) { h.channels <- m }

func (h *chanHandler) HandleProxyChannels(set []bridge.ProxyChannel) {
	for _, m := range set {
		h.channels <- m
	}
}

func setupNetwork(t *testing.T, platform bridge.Platform) (*Hub, map[string]*bridge.Bridge, map[string]*chanHandler) {
	t.Helper()
	srv, err := nats.StartEmbedded(nats.EmbeddedConfig{Port: -1})
	if err != nil {
		t.Fatalf("start embedded: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	connect := func(name string) *nats.Client {
		c, err := nats.Connect(srv.ClientURL(), name)
		if err != nil {
			t.Fatalf("connect %s: %v", name, err)
		}
		t.Cleanup(c.Close)
		return c
	}

	hub := NewHub(nil, quietLogger())
	if err := hub.Start(connect("proxy")); err != nil {
		t.Fatalf("hub start: %v", err)
	}
	t.Cleanup(hub.Stop)

	bridges := make(map[string]*bridge.Bridge)
	handlers := make(map[string]*chanHandler)
	for i, id := range []string{"lobby", "survival"} {
		h := newChanHandler()
		b := bridge.New(bridge.Config{ServerID: id, Port: 25565 + i, Platform: platform}, connect(id), quietLogger())
		if err := b.Start(h); err != nil {
			t.Fatalf("bridge start: %v", err)
		}
		bridges[id] = b
		handlers[id] = h
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(hub.Backends()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("backends never registered: %v", hub.Backends())
		}
		time.Sleep(10 * time.Millisecond)
	}
	return hub, bridges, handlers
}

func TestNetwork_ChatForward(t *testing.T) {
	_, bridges, handlers := setupNetwork(t, bridge.PlatformBungee)

	fwd := bridge.ChatForward{ChannelID: "Global", SenderID: uuid.New(), SenderName: "alice", Message: "hello network"}
	if err := bridges["lobby"].Forward(fwd); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	select {
	case got := <-handlers["survival"].forwards:
		if got.Message != "hello network" || got.OriginServer != "lobby" {
			t.Errorf("forward = %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("survival never received the line")
	}

	select {
	case got := <-handlers["lobby"].forwards:
		t.Errorf("origin received its own line: %+v", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNetwork_SendLang(t *testing.T) {
	hub, bridges, handlers := setupNetwork(t, bridge.PlatformVelocity)

	if err := bridges["survival"].Presence(uuid.New(), "bob", bridge.PresenceJoin); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := hub.Locate("bob"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("bob never located")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := bridges["lobby"].SendLang(bridge.SendLang{Target: "bob", Key: "Private-Receive", Arg: "psst"}); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-handlers["survival"].langs:
		if got.Arg != "psst" {
			t.Errorf("lang = %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("lang never routed")
	}
}

func TestNetwork_FetchWithoutProxy(t *testing.T) {
	srv, err := nats.StartEmbedded(nats.EmbeddedConfig{Port: -1})
	if err != nil {
		t.Fatalf("start embedded: %v", err)
	}
	defer srv.Shutdown()
	c, err := nats.Connect(srv.ClientURL(), "lobby")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	h := newChanHandler()
	b := bridge.New(bridge.Config{ServerID: "lobby", Platform: bridge.PlatformBungee, FetchTimeout: 100 * time.Millisecond}, c, quietLogger())
	if err := b.Start(h); err != nil {
		t.Fatal(err)
	}
	if !b.FetchProxyChannels(context.Background(), uuid.New()) {
		t.Fatal("fetch not started")
	}
	select {
	case pc := <-h.channels:
		t.Errorf("got a proxy channel with no proxy running: %+v", pc)
	case <-time.After(300 * time.Millisecond):
	}
}
