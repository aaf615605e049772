package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `assignment:
  policy: "strict"
  weights:
    vehicle_distance: 0.30
    delivery_distance: 0.15
    density: 0.15
    load_balance: 0.15
    route_compat: 0.25
sla:
  express_minutes: 45
  cutoff_hour: 21
orchestrator:
  cycle_interval_minutes: 10
logging:
  backend: "sqlite"
  path: "/tmp/dispatch.db"
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "dispatchd"
metrics:
  prometheus_enabled: true
  prometheus_port: "2112"
stream:
  enabled: true
  brokers: ["localhost:9092"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"assignment.policy", cfg.Assignment.Policy, "strict"},
		{"assignment.weights.route_compat", cfg.Assignment.Weights.RouteCompat, 0.25},
		{"sla.express_minutes", cfg.SLA.ExpressMinutes, 45},
		{"sla.cutoff_hour", cfg.SLA.CutoffHour, 21},
		{"sla.priority_minutes default", cfg.SLA.PriorityMinutes, 120},
		{"sla.special_weekday default", cfg.SLA.SpecialWeekday, time.Sunday},
		{"orchestrator.interval", cfg.Orchestrator.CycleIntervalMinutes, 10},
		{"escalation.max_tier default", cfg.Escalation.MaxTier, 3},
		{"logging.backend", cfg.Logging.Backend, "sqlite"},
		{"mqtt.broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"mqtt.topic_prefix default", cfg.MQTT.TopicPrefix, "dispatch/alerts"},
		{"metrics.prometheus_port", cfg.Metrics.PrometheusPort, "2112"},
		{"stream.topic default", cfg.Stream.Topic, "dispatch.events"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `logging:
  backend: "jsonl"
  path: "dispatch.log"
`)
	t.Setenv("DISPATCHD_SLA__CUTOFF_HOUR", "22")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.SLA.CutoffHour != 22 {
		t.Fatalf("env override ignored: %d", cfg.SLA.CutoffHour)
	}
}

func TestLoadRejectsBadPolicy(t *testing.T) {
	path := writeConfig(t, `assignment:
  policy: "whatever"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestLoadDefaultsPrometheusPort(t *testing.T) {
	path := writeConfig(t, `metrics:
  prometheus_enabled: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Metrics.PrometheusPort != "2112" {
		t.Fatalf("expected default prometheus port, got %q", cfg.Metrics.PrometheusPort)
	}
}

func TestLoadRejectsIncompleteInflux(t *testing.T) {
	path := writeConfig(t, `metrics:
  influx_enabled: true
  influx_url: "http://localhost:8086"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for influx without org and bucket")
	}
}

func TestLoadRejectsNonMonotonicThresholds(t *testing.T) {
	path := writeConfig(t, `sla:
  thresholds:
    medium_minutes: 10
    high_minutes: 15
    critical_minutes: 5
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for non-monotonic thresholds")
	}
}
