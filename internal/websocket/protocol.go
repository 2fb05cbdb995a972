package websocket

import (
	"encoding/json"
)

// Client to Server messages

type ClientMessage struct {
	Action string `json:"action"`
}

// LoginMessage brings the connection online as a chat session.
type LoginMessage struct {
	Action string  `json:"action"`
	Name   string  `json:"name"`
	World  string  `json:"world,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Z      float64 `json:"z,omitempty"`
	Locale string  `json:"locale,omitempty"`
}

// MoveMessage reports the session's new position.
type MoveMessage struct {
	Action string  `json:"action"`
	World  string  `json:"world,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
}

type ChatMessage struct {
	Action string `json:"action"`
	Text   string `json:"text"`
}

type ChannelMessage struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

type PrivateMessage struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`
	Target  string `json:"target"`
	Text    string `json:"text"`
}

// Server to Client messages

type WelcomeMessage struct {
	Type      string   `json:"type"`
	SessionID string   `json:"session_id"`
	Channels  []string `json:"channels"`
}

// LineMessage carries one rendered chat line: the component tree and its
// plain text.
type LineMessage struct {
	Type      string          `json:"type"`
	Component json.RawMessage `json:"component"`
	Text      string          `json:"text"`
}

type LangMessage struct {
	Type string   `json:"type"`
	Key  string   `json:"key"`
	Args []string `json:"args,omitempty"`
	Text string   `json:"text"`
}

// ActionMessage asks the client to perform a reaction side effect it owns,
// such as playing a sound or running a command.
type ActionMessage struct {
	Type  string `json:"type"`
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type OKMessage struct {
	Type   string `json:"type"`
	Action string `json:"action"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PongMessage struct {
	Type string `json:"type"`
}

func NewWelcomeMessage(sessionID string, channels []string) *WelcomeMessage {
	if channels == nil {
		channels = []string{}
	}
	return &WelcomeMessage{Type: "welcome", SessionID: sessionID, Channels: channels}
}

func NewLineMessage(component json.RawMessage, text string) *LineMessage {
	return &LineMessage{Type: "chat", Component: component, Text: text}
}

func NewLangMessage(key string, args []string, text string) *LangMessage {
	return &LangMessage{Type: "lang", Key: key, Args: args, Text: text}
}

func NewActionMessage(kind, value string) *ActionMessage {
	return &ActionMessage{Type: "action", Kind: kind, Value: value}
}

func NewOKMessage(action string) *OKMessage {
	return &OKMessage{Type: "ok", Action: action}
}

// NewErrorMessage creates an error message.
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    "error",
		Code:    code,
		Message: message,
	}
}

// NewPongMessage creates a pong response.
func NewPongMessage() *PongMessage {
	return &PongMessage{Type: "pong"}
}
