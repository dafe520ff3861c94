// Package hermes connects tempo to the NATS bus.
package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// QueueGroup spreads request subjects across tempo replicas so each
// request is handled once.
const QueueGroup = "tempo"

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("tempo"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

// Publish sends data as JSON. Raw byte slices are sent unchanged.
func (c *Client) Publish(subject string, data any) error {
	payload, err := encode(data)
	if err != nil {
		return err
	}
	return c.conn.Publish(subject, payload)
}

func encode(data any) ([]byte, error) {
	if raw, ok := data.([]byte); ok {
		return raw, nil
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return payload, nil
}

// Subscribe delivers every message on subject to handler.
func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

// QueueSubscribe delivers each message on subject to one member of QueueGroup.
func (c *Client) QueueSubscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.QueueSubscribe(subject, QueueGroup, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("queue subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject, "queue", QueueGroup)
	return nil
}

func (c *Client) Connected() bool {
	return c.conn.IsConnected()
}

// Close lets in-flight handlers finish before closing the connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("nats drain failed", "error", err)
		for _, sub := range c.subs {
			_ = sub.Unsubscribe()
		}
		c.conn.Close()
	}
}
