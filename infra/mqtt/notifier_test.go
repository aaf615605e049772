package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/fleetops/dispatchd/core/model"
)

type stubToken struct{ err error }

func (t stubToken) Wait() bool                     { return true }
func (t stubToken) WaitTimeout(time.Duration) bool { return true }
func (t stubToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t stubToken) Error() error { return t.err }

type stubClient struct {
	published map[string][]byte
	failures  int
}

func (c *stubClient) IsConnected() bool   { return true }
func (c *stubClient) Connect() paho.Token { return stubToken{} }
func (c *stubClient) Disconnect(uint)     {}

func (c *stubClient) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	if c.failures > 0 {
		c.failures--
		return stubToken{err: errors.New("broker unavailable")}
	}
	if c.published == nil {
		c.published = make(map[string][]byte)
	}
	c.published[topic] = payload.([]byte)
	return stubToken{}
}

func newStubNotifier(t *testing.T, cli *stubClient) *AlertNotifier {
	t.Helper()
	orig := newMQTTClient
	newMQTTClient = func(*paho.ClientOptions) pahoClient { return cli }
	t.Cleanup(func() { newMQTTClient = orig })

	n, err := NewAlertNotifier(Config{Broker: "tcp://localhost:1883", ClientID: "test", BackoffMS: 1})
	if err != nil {
		t.Fatalf("NewAlertNotifier: %v", err)
	}
	return n
}

func TestNotifyRoutesBySeverity(t *testing.T) {
	cli := &stubClient{}
	n := newStubNotifier(t, cli)

	alert := model.EscalationAlert{
		ID:       "a1",
		Type:     "SLA_BREACH",
		Severity: model.SeverityCritical,
		OrderID:  "ord-1",
		State:    model.AlertOpen,
	}
	if err := n.Notify(context.Background(), alert); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	payload, ok := cli.published["dispatch/alerts/critical"]
	if !ok {
		t.Fatalf("expected publish on critical topic, got %v", cli.published)
	}
	var got model.EscalationAlert
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.ID != "a1" || got.OrderID != "ord-1" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestNotifyRetriesTransientFailure(t *testing.T) {
	cli := &stubClient{failures: 2}
	n := newStubNotifier(t, cli)

	alert := model.EscalationAlert{ID: "a2", Severity: model.SeverityHigh}
	if err := n.Notify(context.Background(), alert); err != nil {
		t.Fatalf("expected retries to succeed, got %v", err)
	}
	if _, ok := cli.published["dispatch/alerts/high"]; !ok {
		t.Fatalf("alert not published after retries")
	}
}

func TestNotifyGivesUpAfterMaxRetries(t *testing.T) {
	cli := &stubClient{failures: 10}
	n := newStubNotifier(t, cli)

	alert := model.EscalationAlert{ID: "a3", Severity: model.SeverityLow}
	if err := n.Notify(context.Background(), alert); err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
}
