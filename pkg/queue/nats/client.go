package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Config holds the connection and the stream/consumer settings for moving
// preprocessing runs to the writer
type Config struct {
	URL           string        `envconfig:"URL" default:"nats://localhost:4222" yaml:"url"`
	StreamName    string        `envconfig:"STREAM" default:"elois" yaml:"stream"`
	RetryAttempts int           `envconfig:"RETRY_ATTEMPTS" default:"3" yaml:"retry_attempts"`
	RetryDelay    time.Duration `envconfig:"RETRY_DELAY" default:"1s" yaml:"retry_delay"`

	// Retention is how long an unconsumed run waits for a writer
	Retention  time.Duration `envconfig:"RETENTION" default:"168h" yaml:"retention"`
	Replicas   int           `envconfig:"REPLICAS" default:"1" yaml:"replicas"`
	MemoryOnly bool          `envconfig:"MEMORY_ONLY" default:"false" yaml:"memory_only"`
	// AckWait bounds one DuckDB insert of a batch
	AckWait    time.Duration `envconfig:"ACK_WAIT" default:"2m" yaml:"ack_wait"`
	MaxDeliver int           `envconfig:"MAX_DELIVER" default:"5" yaml:"max_deliver"`
}

// streamConfig describes the work queue holding unpersisted runs. Publishers
// get an error instead of silently losing batches when limits are hit.
func (cfg Config) streamConfig(subjects []string) jetstream.StreamConfig {
	storage := jetstream.FileStorage
	if cfg.MemoryOnly {
		storage = jetstream.MemoryStorage
	}
	return jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "standardized company histories and stats awaiting the writer",
		Subjects:    subjects,
		Retention:   jetstream.WorkQueuePolicy,
		Discard:     jetstream.DiscardNew,
		Storage:     storage,
		Replicas:    max(cfg.Replicas, 1),
		MaxAge:      cfg.Retention,
	}
}

func (cfg Config) consumerConfig(subject, durable string) jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
	}
}

// Client wraps a JetStream connection
type Client struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config Config
}

// NewClient connects and opens JetStream
func NewClient(cfg Config) (*Client, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("elois"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.RetryAttempts),
		nats.ReconnectWait(cfg.RetryDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return &Client{nc: nc, js: js, config: cfg}, nil
}

// CreateStream creates or updates the run stream
func (c *Client) CreateStream(ctx context.Context, subjects []string) error {
	if _, err := c.js.CreateOrUpdateStream(ctx, c.config.streamConfig(subjects)); err != nil {
		return fmt.Errorf("failed to create stream %s: %w", c.config.StreamName, err)
	}
	return nil
}

// MaxPayload returns the largest message the server accepts
func (c *Client) MaxPayload() int64 {
	return c.nc.MaxPayload()
}

// PublishMsg encodes v and publishes it, refusing messages the server would reject
func (c *Client) PublishMsg(ctx context.Context, subject string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if limit := c.MaxPayload(); limit > 0 && int64(len(data)) > limit {
		return fmt.Errorf("%w: %s message is %d bytes, limit %d", ErrPayloadTooLarge, subject, len(data), limit)
	}
	if _, err := c.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// MessageHandler is called when a message is received
type MessageHandler func(msg jetstream.Msg) error

// Subscribe creates a durable consumer. A handler error naks the message for
// redelivery after RetryDelay, unless it wraps ErrMalformed, which terminates it.
func (c *Client) Subscribe(ctx context.Context, subject string, consumerName string, handler MessageHandler) (jetstream.ConsumeContext, error) {
	consumer, err := c.js.CreateOrUpdateConsumer(ctx, c.config.StreamName, c.config.consumerConfig(subject, consumerName))
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer %s: %w", consumerName, err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		switch err := handler(msg); {
		case err == nil:
			msg.Ack()
		case errors.Is(err, ErrMalformed):
			msg.Term()
		default:
			msg.NakWithDelay(c.config.RetryDelay)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return consumeCtx, nil
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}
