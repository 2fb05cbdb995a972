package client

import (
	"net/http"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse reports readiness and transport state.
type ReadyResponse struct {
	Status string `json:"status"`
	Nats   string `json:"nats"`
}

// Health checks the server health.
func (c *Client) Health() (*HealthResponse, error) {
	var health HealthResponse
	if err := c.do(http.MethodGet, "/health", "health check failed", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// Ready checks if the server is ready.
func (c *Client) Ready() (*ReadyResponse, error) {
	var ready ReadyResponse
	if err := c.do(http.MethodGet, "/ready", "server not ready", &ready); err != nil {
		return nil, err
	}
	return &ready, nil
}
