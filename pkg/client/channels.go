package client

import (
	"net/http"
	"net/url"
)

// Channel describes one registered channel.
type Channel struct {
	ID        string   `json:"id"`
	File      string   `json:"file"`
	Private   bool     `json:"private"`
	AutoJoin  bool     `json:"auto_join"`
	Proxy     bool     `json:"proxy"`
	Range     string   `json:"range"`
	Prefix    []string `json:"prefix,omitempty"`
	Command   []string `json:"command,omitempty"`
	Listeners int      `json:"listeners"`
	Formats   int      `json:"formats"`
}

// ChannelsResponse is the response from listing channels.
type ChannelsResponse struct {
	Channels []Channel `json:"channels"`
	Count    int       `json:"count"`
}

// Session is an online chat session.
type Session struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Focus    string   `json:"focus,omitempty"`
	Channels []string `json:"channels"`
}

// SessionsResponse is the response from listing sessions.
type SessionsResponse struct {
	Sessions []Session `json:"sessions"`
	Count    int       `json:"count"`
}

// ReloadResponse reports a channel reload.
type ReloadResponse struct {
	Loaded int      `json:"loaded"`
	Errors []string `json:"errors"`
}

// Channels lists the registered channels.
func (c *Client) Channels() (*ChannelsResponse, error) {
	var result ChannelsResponse
	if err := c.do(http.MethodGet, "/api/v1/channels", "failed to list channels", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Channel gets one channel.
func (c *Client) Channel(id string) (*Channel, error) {
	var result Channel
	if err := c.do(http.MethodGet, "/api/v1/channels/"+url.PathEscape(id), "failed to get channel", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Reload asks the server to reload its channel units.
func (c *Client) Reload() (*ReloadResponse, error) {
	var result ReloadResponse
	if err := c.do(http.MethodPost, "/api/v1/channels/reload", "failed to reload channels", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Sessions lists the online sessions.
func (c *Client) Sessions() (*SessionsResponse, error) {
	var result SessionsResponse
	if err := c.do(http.MethodGet, "/api/v1/sessions", "failed to list sessions", &result); err != nil {
		return nil, err
	}
	return &result, nil
}
