// Package config loads the engine configuration from a YAML or JSON file
// with environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/fleetops/dispatchd/core/escalation"
	"github.com/fleetops/dispatchd/core/metrics"
	"github.com/fleetops/dispatchd/core/orchestrator"
	"github.com/fleetops/dispatchd/core/sla"
	"github.com/fleetops/dispatchd/infra/geo"
	"github.com/fleetops/dispatchd/infra/mqtt"
	"github.com/fleetops/dispatchd/infra/stream"
)

// envPrefix marks environment overrides: DISPATCHD_SLA__CUTOFF_HOUR=21
// overrides sla.cutoff_hour.
const envPrefix = "DISPATCHD_"

// Config is the full engine configuration.
type Config struct {
	Assignment   AssignmentConfig    `json:"assignment"`
	SLA          sla.Config          `json:"sla"`
	Escalation   escalation.Config   `json:"escalation"`
	Orchestrator orchestrator.Config `json:"orchestrator"`
	Logging      LoggingConfig       `json:"logging"`
	Metrics      metrics.Config      `json:"metrics"`
	MQTT         mqtt.Config         `json:"mqtt"`
	Stream       stream.Config       `json:"stream"`
	Geo          geo.Config          `json:"geo"`
}

// Load reads the file at path, applies environment overrides, defaults and
// validation.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(envPrefix, "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}

	cfg.Assignment.SetDefaults()
	cfg.SLA.SetDefaults()
	cfg.Escalation.SetDefaults()
	cfg.Orchestrator.SetDefaults()
	cfg.Logging.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.MQTT.SetDefaults()
	cfg.Stream.SetDefaults()
	cfg.Geo.SetDefaults()

	if err := cfg.Assignment.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.SLA.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Escalation.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Orchestrator.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Metrics.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Stream.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
