package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fleetops/dispatchd/core/events"
	"github.com/fleetops/dispatchd/core/model"
	"github.com/fleetops/dispatchd/infra/logger"
	"github.com/fleetops/dispatchd/internal/eventbus"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	failures int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failures > 0 {
		w.failures--
		return errors.New("broker unreachable")
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.messages)
}

func newTestEmitter(w messageWriter, bus eventbus.EventBus) *Emitter {
	return &Emitter{writer: w, bus: bus, log: logger.NopLogger{}, maxAttempts: 3}
}

func waitCount(t *testing.T, w *fakeWriter, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for w.count() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d messages, have %d", n, w.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEmitterForwardsBusEvents(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	w := &fakeWriter{}
	e := newTestEmitter(w, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)
	time.Sleep(10 * time.Millisecond) // let the subscription attach

	bus.Publish(events.CycleEvent{Planned: 3, Executed: 3})
	bus.Publish(events.AssignmentEvent{VehicleID: "v1", Deliveries: 2})
	bus.Publish(events.AlertEvent{Action: events.AlertOpened, Alert: model.EscalationAlert{OrderID: "ord-1"}})
	bus.Publish("unrelated") // must be ignored

	waitCount(t, w, 3)

	var env envelope
	if err := json.Unmarshal(w.messages[0].Value, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Kind != "cycle" {
		t.Fatalf("expected cycle envelope, got %s", env.Kind)
	}
	if string(w.messages[1].Key) != "v1" {
		t.Fatalf("assignment key should be the vehicle ID, got %s", w.messages[1].Key)
	}
	if string(w.messages[2].Key) != "ord-1" {
		t.Fatalf("alert key should be the order ID, got %s", w.messages[2].Key)
	}
}

func TestEmitterRetriesTransientFailures(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	w := &fakeWriter{failures: 2}
	e := newTestEmitter(w, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	bus.Publish(events.CycleEvent{Planned: 1})
	waitCount(t, w, 1)
}

func TestConfigValidation(t *testing.T) {
	cfg := Config{Enabled: true}
	cfg.SetDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for enabled emitter without brokers")
	}
	cfg.Brokers = []string{"localhost:9092"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Topic != "dispatch.events" || cfg.MaxAttempts != 3 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}
