// Package bridge is the backend side of the proxy forwarding protocol: the
// wire frames, the forwarding decision, and the dispatcher that talks to the
// proxy tier over a Transport.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Kind is the first element of every frame.
type Kind string

const (
	KindFetchProxyChannels Kind = "FetchProxyChannels"
	KindChatForward        Kind = "ChatForward"
	KindSendLang           Kind = "SendLang"
	KindProxyChannel       Kind = "ProxyChannel"
	KindPresence           Kind = "Presence"
)

// fieldCounts is the number of fields after the kind.
var fieldCounts = map[Kind]int{
	KindFetchProxyChannels: 1,
	KindChatForward:        6,
	KindSendLang:           3,
	KindProxyChannel:       2,
	KindPresence:           5,
}

// ErrMalformedFrame is returned for frames that cannot be decoded.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is a flat ordered list of strings. The kind comes first.
type Frame struct {
	Kind   Kind
	Fields []string
}

// Encode writes f as a JSON array of strings.
func (f Frame) Encode() []byte {
	out := make([]string, 0, len(f.Fields)+1)
	out = append(out, string(f.Kind))
	out = append(out, f.Fields...)
	data, _ := json.Marshal(out)
	return data
}

// DecodeFrame parses a single frame and checks its field count.
func DecodeFrame(data []byte) (Frame, error) {
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return frameOf(parts)
}

func frameOf(parts []string) (Frame, error) {
	if len(parts) == 0 {
		return Frame{}, fmt.Errorf("%w: empty", ErrMalformedFrame)
	}
	kind := Kind(parts[0])
	want, ok := fieldCounts[kind]
	if !ok {
		return Frame{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedFrame, parts[0])
	}
	if len(parts)-1 != want {
		return Frame{}, fmt.Errorf("%w: %s has %d fields, want %d", ErrMalformedFrame, kind, len(parts)-1, want)
	}
	return Frame{Kind: kind, Fields: parts[1:]}, nil
}

// EncodeBatch writes several frames as one JSON array of arrays. It is the
// reply format for FetchProxyChannels.
func EncodeBatch(frames []Frame) []byte {
	out := make([][]string, 0, len(frames))
	for _, f := range frames {
		row := append([]string{string(f.Kind)}, f.Fields...)
		out = append(out, row)
	}
	data, _ := json.Marshal(out)
	return data
}

// DecodeBatch parses a reply written by EncodeBatch.
func DecodeBatch(data []byte) ([]Frame, error) {
	var rows [][]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	frames := make([]Frame, 0, len(rows))
	for i, row := range rows {
		f, err := frameOf(row)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// FetchProxyChannels asks the proxy tier for the channels it defines.
type FetchProxyChannels struct {
	SessionID uuid.UUID
}

func (m FetchProxyChannels) Frame() Frame {
	return Frame{Kind: KindFetchProxyChannels, Fields: []string{m.SessionID.String()}}
}

// ChatForward carries a chat line to other backends.
type ChatForward struct {
	ChannelID    string
	SenderID     uuid.UUID
	SenderName   string
	Message      string
	OriginServer string
	Hops         int
}

func (m ChatForward) Frame() Frame {
	return Frame{Kind: KindChatForward, Fields: []string{
		m.ChannelID, m.SenderID.String(), m.SenderName, m.Message, m.OriginServer, strconv.Itoa(m.Hops),
	}}
}

// SendLang delivers a localized message to a player on any backend.
type SendLang struct {
	Target string
	Key    string
	Arg    string
}

func (m SendLang) Frame() Frame {
	return Frame{Kind: KindSendLang, Fields: []string{m.Target, m.Key, m.Arg}}
}

// ProxyChannel distributes a channel unit owned by the proxy tier.
type ProxyChannel struct {
	ChannelID string
	Source    string
}

func (m ProxyChannel) Frame() Frame {
	return Frame{Kind: KindProxyChannel, Fields: []string{m.ChannelID, m.Source}}
}

// PresenceState is the state carried by a Presence frame.
type PresenceState string

const (
	PresenceHello PresenceState = "hello"
	PresenceJoin  PresenceState = "join"
	PresenceQuit  PresenceState = "quit"
)

// Presence tells the proxy tier which backend hosts which session. A hello
// announces the backend itself and carries no session.
type Presence struct {
	ServerID    string
	Port        int
	SessionID   uuid.UUID
	SessionName string
	State       PresenceState
}

func (m Presence) Frame() Frame {
	return Frame{Kind: KindPresence, Fields: []string{
		m.ServerID, strconv.Itoa(m.Port), m.SessionID.String(), m.SessionName, string(m.State),
	}}
}

// ParseFetchProxyChannels reads a FetchProxyChannels frame.
func ParseFetchProxyChannels(f Frame) (FetchProxyChannels, error) {
	if f.Kind != KindFetchProxyChannels {
		return FetchProxyChannels{}, fmt.Errorf("%w: got %s", ErrMalformedFrame, f.Kind)
	}
	id, err := uuid.Parse(f.Fields[0])
	if err != nil {
		return FetchProxyChannels{}, fmt.Errorf("%w: session id: %v", ErrMalformedFrame, err)
	}
	return FetchProxyChannels{SessionID: id}, nil
}

// ParseChatForward reads a ChatForward frame.
func ParseChatForward(f Frame) (ChatForward, error) {
	if f.Kind != KindChatForward {
		return ChatForward{}, fmt.Errorf("%w: got %s", ErrMalformedFrame, f.Kind)
	}
	id, err := uuid.Parse(f.Fields[1])
	if err != nil {
		return ChatForward{}, fmt.Errorf("%w: sender id: %v", ErrMalformedFrame, err)
	}
	hops, err := strconv.Atoi(f.Fields[5])
	if err != nil || hops < 0 {
		return ChatForward{}, fmt.Errorf("%w: hops %q", ErrMalformedFrame, f.Fields[5])
	}
	return ChatForward{
		ChannelID:    f.Fields[0],
		SenderID:     id,
		SenderName:   f.Fields[2],
		Message:      f.Fields[3],
		OriginServer: f.Fields[4],
		Hops:         hops,
	}, nil
}

// ParseSendLang reads a SendLang frame.
func ParseSendLang(f Frame) (SendLang, error) {
	if f.Kind != KindSendLang {
		return SendLang{}, fmt.Errorf("%w: got %s", ErrMalformedFrame, f.Kind)
	}
	return SendLang{Target: f.Fields[0], Key: f.Fields[1], Arg: f.Fields[2]}, nil
}

// ParseProxyChannel reads a ProxyChannel frame.
func ParseProxyChannel(f Frame) (ProxyChannel, error) {
	if f.Kind != KindProxyChannel {
		return ProxyChannel{}, fmt.Errorf("%w: got %s", ErrMalformedFrame, f.Kind)
	}
	if f.Fields[0] == "" {
		return ProxyChannel{}, fmt.Errorf("%w: empty channel id", ErrMalformedFrame)
	}
	return ProxyChannel{ChannelID: f.Fields[0], Source: f.Fields[1]}, nil
}

// ParsePresence reads a Presence frame.
func ParsePresence(f Frame) (Presence, error) {
	if f.Kind != KindPresence {
		return Presence{}, fmt.Errorf("%w: got %s", ErrMalformedFrame, f.Kind)
	}
	port, err := strconv.Atoi(f.Fields[1])
	if err != nil {
		return Presence{}, fmt.Errorf("%w: port %q", ErrMalformedFrame, f.Fields[1])
	}
	p := Presence{ServerID: f.Fields[0], Port: port, SessionName: f.Fields[3], State: PresenceState(f.Fields[4])}
	switch p.State {
	case PresenceHello:
	case PresenceJoin, PresenceQuit:
		if p.SessionID, err = uuid.Parse(f.Fields[2]); err != nil {
			return Presence{}, fmt.Errorf("%w: session id: %v", ErrMalformedFrame, err)
		}
	default:
		return Presence{}, fmt.Errorf("%w: presence state %q", ErrMalformedFrame, f.Fields[4])
	}
	return p, nil
}
