package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/fleetops/dispatchd/core/model"
	"github.com/fleetops/dispatchd/infra/logger"
)

// AlertNotifier publishes escalation alerts on per-severity topics. It
// implements the escalation engine's Notifier contract.
type AlertNotifier struct {
	cli    pahoClient
	cfg    Config
	logger logger.Logger
}

// NewAlertNotifier connects to the broker and returns the notifier.
func NewAlertNotifier(cfg Config) (*AlertNotifier, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_notifier")
	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &AlertNotifier{cli: c, cfg: cfg, logger: log}, nil
}

// topicFor routes alerts by severity: dispatch/alerts/critical etc.
func (n *AlertNotifier) topicFor(alert model.EscalationAlert) string {
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(n.cfg.TopicPrefix, "/"),
		strings.ToLower(string(alert.Severity)))
}

// Notify publishes the alert with retries and exponential backoff.
func (n *AlertNotifier) Notify(ctx context.Context, alert model.EscalationAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	topic := n.topicFor(alert)
	qos := byte(0)
	if q, ok := n.cfg.QoS["alert"]; ok {
		qos = q
	}

	var publishErr error
	for attempt := 0; attempt <= n.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		token := n.cli.Publish(topic, qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			n.logger.Infof("published alert %s to %s", alert.ID, topic)
			return nil
		}
		n.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		time.Sleep(n.cfg.backoff() * time.Duration(1<<attempt))
	}
	return publishErr
}

// Disconnect gracefully closes the MQTT connection.
func (n *AlertNotifier) Disconnect() {
	if n.cli != nil && n.cli.IsConnected() {
		n.cli.Disconnect(250)
	}
}
