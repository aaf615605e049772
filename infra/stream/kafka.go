// Package stream publishes engine events to Kafka for downstream consumers
// (reporting, dashboards, audit). The emitter subscribes to the in-process
// event bus and forwards everything it sees; losing the broker never affects
// dispatching.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fleetops/dispatchd/core/events"
	"github.com/fleetops/dispatchd/infra/logger"
	"github.com/fleetops/dispatchd/internal/eventbus"
)

// Config defines the Kafka emitter settings.
type Config struct {
	Enabled        bool     `json:"enabled"`
	Brokers        []string `json:"brokers"`
	Topic          string   `json:"topic"`
	MaxAttempts    int      `json:"max_attempts"`
	WriteTimeoutMS int      `json:"write_timeout_ms"`
}

// SetDefaults applies production defaults.
func (c *Config) SetDefaults() {
	if c.Topic == "" {
		c.Topic = "dispatch.events"
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.WriteTimeoutMS == 0 {
		c.WriteTimeoutMS = 10000
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Enabled && len(c.Brokers) == 0 {
		return fmt.Errorf("stream: at least one broker required")
	}
	return nil
}

// messageWriter is the slice of kafka.Writer the emitter needs; tests swap in
// a fake.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// envelope is the wire format: one event per message, typed by kind.
type envelope struct {
	Kind    string    `json:"kind"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// Emitter forwards bus events to Kafka.
type Emitter struct {
	writer      messageWriter
	bus         eventbus.EventBus
	log         logger.Logger
	maxAttempts int
}

// NewEmitter builds an emitter over the configured brokers.
func NewEmitter(cfg Config, bus eventbus.EventBus) (*Emitter, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: time.Duration(cfg.WriteTimeoutMS) * time.Millisecond,
	}
	return &Emitter{writer: w, bus: bus, log: logger.New("kafka-emitter"), maxAttempts: cfg.MaxAttempts}, nil
}

// Run consumes the bus until ctx is cancelled. It must run on its own
// goroutine.
func (e *Emitter) Run(ctx context.Context) {
	sub := e.bus.Subscribe()
	defer e.bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := e.emit(ctx, ev); err != nil {
				e.log.Errorf("emit: %v", err)
			}
		}
	}
}

// emit classifies the bus event, picks a partition key that keeps related
// events ordered, and writes with retries.
func (e *Emitter) emit(ctx context.Context, ev eventbus.Event) error {
	var kind, key string
	switch v := ev.(type) {
	case events.CycleEvent:
		kind, key = "cycle", "cycle"
	case events.AssignmentEvent:
		kind, key = "assignment", v.VehicleID
	case events.AlertEvent:
		kind, key = "alert", v.Alert.OrderID
	default:
		return nil // not a streamed event
	}
	value, err := json.Marshal(envelope{Kind: kind, Time: time.Now().UTC(), Payload: ev})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", kind, err)
	}
	msg := kafka.Message{Key: []byte(key), Value: value}

	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lastErr = e.writer.WriteMessages(attemptCtx, msg)
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		time.Sleep(backoff)
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("write failed after %d attempts: %w", e.maxAttempts, lastErr)
}

// Close shuts down the underlying writer.
func (e *Emitter) Close() error {
	return e.writer.Close()
}
