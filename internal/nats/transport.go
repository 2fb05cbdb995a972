package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Publish sends data on subject without waiting for any acknowledgement.
func (c *Client) Publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe calls fn for every message on subject. fn runs on the
// subscription's goroutine.
func (c *Client) Subscribe(subject string, fn func(data []byte)) (func() error, error) {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		fn(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	if err := c.conn.Flush(); err != nil {
		slog.Warn("flush after subscribe failed", "subject", subject, "error", err)
	}
	return sub.Unsubscribe, nil
}

// Request sends data and waits for a single reply until ctx is done.
func (c *Client) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", subject, err)
	}
	return msg.Data, nil
}

// Reply answers every request on subject with fn's result.
func (c *Client) Reply(subject string, fn func(data []byte) []byte) (func() error, error) {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(fn(msg.Data)); err != nil {
			slog.Warn("failed to respond", "subject", subject, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("reply %s: %w", subject, err)
	}
	if err := c.conn.Flush(); err != nil {
		slog.Warn("flush after subscribe failed", "subject", subject, "error", err)
	}
	return sub.Unsubscribe, nil
}
