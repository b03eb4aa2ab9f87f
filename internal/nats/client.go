// Package nats carries transaction events over a NATS subject.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"bilancio/internal/events"
	applog "bilancio/internal/log"
)

const (
	headerEventType = "Event-Type"
	// headerMsgID lets JetStream-enabled servers de-duplicate re-sent events.
	headerMsgID = "Nats-Msg-Id"
)

// Client publishes and consumes transaction events on one subject.
type Client struct {
	conn    *nats.Conn
	subject string
	logger  *applog.Logger
}

// NewClient connects to url. The connection reconnects on its own; every
// state change is logged.
func NewClient(url, subject string, logger *applog.Logger) (*Client, error) {
	if logger == nil {
		logger = applog.Nop()
	}
	logger = logger.WithComponent(applog.ComponentNATS)

	conn, err := nats.Connect(url,
		nats.Name("bilancio"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", applog.FieldError, err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect NATS: %w", err)
	}
	return &Client{conn: conn, subject: subject, logger: logger}, nil
}

// Publish sends one event. Delivery is at-most-once.
func (c *Client) Publish(ctx context.Context, e events.TransactionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := newMessage(c.subject, e)
	if err != nil {
		return err
	}
	if err := c.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	c.logger.DebugContext(ctx, "Published transaction event",
		applog.FieldEventID, e.ID,
		applog.FieldEventType, string(e.Type),
		"subject", c.subject)
	return nil
}

// Consume subscribes to the subject and delivers events to handler until
// ctx is cancelled. Handler errors are logged; core NATS has no redelivery.
func (c *Client) Consume(ctx context.Context, handler func(context.Context, events.TransactionEvent) error) error {
	msgs := make(chan *nats.Msg, 64)
	sub, err := c.conn.ChanSubscribe(c.subject, msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	c.logger.InfoContext(ctx, "Started consuming transaction events", "subject", c.subject)
	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping event consumption", "reason", ctx.Err())
			return ctx.Err()
		case msg := <-msgs:
			c.handleMessage(ctx, msg, handler)
		}
	}
}

func (c *Client) handleMessage(ctx context.Context, msg *nats.Msg, handler func(context.Context, events.TransactionEvent) error) {
	e, err := events.FromJSON(msg.Data)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to decode event", applog.FieldError, err, "subject", msg.Subject)
		return
	}
	if err := handler(ctx, e); err != nil {
		c.logger.ErrorContext(ctx, "Failed to handle event",
			applog.FieldError, err,
			applog.FieldEventID, e.ID,
			applog.FieldEventType, string(e.Type))
	}
}

func newMessage(subject string, e events.TransactionEvent) (*nats.Msg, error) {
	body, err := e.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = body
	msg.Header.Set(headerEventType, string(e.Type))
	msg.Header.Set(headerMsgID, e.ID)
	return msg, nil
}

// Close drains pending messages before closing the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
