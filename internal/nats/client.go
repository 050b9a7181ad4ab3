package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Event types
const (
	EventTenantCreated = "tenant.created"
	EventTenantUpdated = "tenant.updated"
	EventTenantMoved   = "tenant.moved"
	EventTenantDeleted = "tenant.deleted"
)

// TenantEvent is published on every tenant lifecycle change. Path fields
// let consumers (billing, agent routing) track subtree membership without
// querying back.
type TenantEvent struct {
	EventType  string    `json:"event_type"`
	TenantID   string    `json:"tenant_id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	Path       string    `json:"path"`
	Level      int       `json:"level"`
	ParentID   string    `json:"parent_id,omitempty"`
	TenantType string    `json:"tenant_type"`
	Status     string    `json:"status"`
	OldPath    string    `json:"old_path,omitempty"`
	Cascade    bool      `json:"cascade,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Client wraps the NATS connection
type Client struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// Config holds NATS connection configuration
type Config struct {
	URL    string
	Logger *logrus.Logger
}

// NewClient creates a new NATS client and ensures the tenant events stream
// exists
func NewClient(cfg *Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}

	logger.WithField("url", cfg.URL).Info("Connecting to NATS")

	opts := []nats.Option{
		nats.Name("console-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// LimitsPolicy so multiple consumers (billing, notification, agent
	// routing) can read the same stream
	_, err = js.AddStream(&nats.StreamConfig{
		Name:        "TENANT_EVENTS",
		Description: "Stream for tenant lifecycle events",
		Subjects:    []string{"tenant.>"},
		Storage:     nats.FileStorage,
		Retention:   nats.LimitsPolicy,
		MaxAge:      24 * time.Hour * 7,
		MaxMsgs:     100000,
		Discard:     nats.DiscardOld,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		logger.WithError(err).Warn("Could not create TENANT_EVENTS stream (may already exist)")
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "nats-publish",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	logger.WithField("url", cfg.URL).Info("Connected to NATS")

	return &Client{
		conn:    conn,
		js:      js,
		breaker: breaker,
		logger:  logger,
	}, nil
}

// PublishTenantEvent publishes a tenant lifecycle event with retry and
// circuit breaking. Event loss is tolerated: the caller logs the error and
// the mutation stands.
func (c *Client) PublishTenantEvent(ctx context.Context, eventType string, event *TenantEvent) error {
	if c == nil || c.js == nil {
		return fmt.Errorf("NATS client not initialized")
	}

	event.EventType = eventType
	event.Timestamp = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return c.publishWithRetry(ctx, eventType, data)
	})
	if err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"event":  eventType,
		"tenant": event.TenantID,
	}).Debug("Published tenant event")
	return nil
}

func (c *Client) publishWithRetry(ctx context.Context, subject string, data []byte) (*nats.PubAck, error) {
	var ack *nats.PubAck
	var err error

	maxRetries := 3
	for attempt := 1; attempt <= maxRetries; attempt++ {
		ack, err = c.js.Publish(subject, data)
		if err == nil {
			return ack, nil
		}
		c.logger.WithError(err).WithFields(logrus.Fields{
			"subject": subject,
			"attempt": attempt,
		}).Warn("Failed to publish event")
		if attempt < maxRetries {
			// Exponential backoff: 1s, 2s
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled while retrying publish: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("failed to publish event after %d attempts: %w", maxRetries, err)
}

// TenantEventHandler is a callback for tenant lifecycle events
type TenantEventHandler func(event *TenantEvent)

// SubscribeTenantEvents subscribes to all tenant lifecycle subjects
func (c *Client) SubscribeTenantEvents(handler TenantEventHandler) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("NATS client not initialized")
	}

	_, err := c.conn.Subscribe("tenant.>", func(msg *nats.Msg) {
		var event TenantEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			c.logger.WithError(err).Warn("Failed to unmarshal tenant event")
			return
		}
		handler(&event)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to tenant events: %w", err)
	}
	return nil
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c != nil && c.conn != nil {
		c.conn.Close()
	}
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c != nil && c.conn != nil && c.conn.IsConnected()
}
