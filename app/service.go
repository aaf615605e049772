// Package app wires the configuration into a running dispatch service: log
// store, metrics sinks, alert notifier, escalation engine, event bus, Kafka
// emitter and the orchestrator loop.
package app

import (
	"context"
	"fmt"

	"github.com/fleetops/dispatchd/config"
	"github.com/fleetops/dispatchd/core/assign"
	"github.com/fleetops/dispatchd/core/escalation"
	corelogging "github.com/fleetops/dispatchd/core/logging"
	"github.com/fleetops/dispatchd/core/model"
	"github.com/fleetops/dispatchd/core/orchestrator"
	"github.com/fleetops/dispatchd/core/sla"
	"github.com/fleetops/dispatchd/core/store"
	"github.com/fleetops/dispatchd/infra/geo"
	"github.com/fleetops/dispatchd/infra/logger"
	"github.com/fleetops/dispatchd/infra/logging"
	"github.com/fleetops/dispatchd/infra/metrics"
	"github.com/fleetops/dispatchd/infra/mqtt"
	"github.com/fleetops/dispatchd/infra/stream"
	"github.com/fleetops/dispatchd/internal/eventbus"
)

// Service holds the wired dispatch engine and its lifecycle handles.
type Service struct {
	Orchestrator *orchestrator.Orchestrator
	Store        *store.MemoryStore

	bus         eventbus.EventBus
	emitter     *stream.Emitter
	notifier    *mqtt.AlertNotifier
	cache       *geo.RedisCache
	log         logger.Logger
	promEnabled bool
	promPort    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	logs, err := newLogStore(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("log store: %w", err)
	}

	sink, err := metrics.Build(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	distance := model.DistanceFunc(model.HaversineDistance)
	var cache *geo.RedisCache
	if cfg.Geo.Enabled {
		cache, err = geo.NewRedisCache(cfg.Geo, distance)
		if err != nil {
			return nil, fmt.Errorf("distance cache: %w", err)
		}
		distance = cache.Distance
	}

	assigner, err := assign.NewAssigner(cfg.Assignment.Weights,
		assign.WeightPolicy(cfg.Assignment.Policy), distance, logger.New("assign"))
	if err != nil {
		return nil, fmt.Errorf("assigner: %w", err)
	}
	if cfg.Assignment.DisableSolver {
		assigner.DisableSolver()
	}

	deadlines, err := sla.NewCalculator(cfg.SLA)
	if err != nil {
		return nil, fmt.Errorf("sla calculator: %w", err)
	}

	var notifier *mqtt.AlertNotifier
	var escNotifier escalation.Notifier
	if cfg.MQTT.Broker != "" {
		notifier, err = mqtt.NewAlertNotifier(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("alert notifier: %w", err)
		}
		escNotifier = notifier
	}

	engine, err := escalation.NewEngine(cfg.Escalation, escNotifier,
		escalationSink{logs: logs}, logger.New("escalation"))
	if err != nil {
		return nil, fmt.Errorf("escalation engine: %w", err)
	}

	bus := eventbus.New()
	st := store.NewMemoryStore()

	orch, err := orchestrator.New(cfg.Orchestrator, orchestrator.Deps{
		Source:     st,
		Committer:  st,
		Assigner:   assigner,
		Deadlines:  deadlines,
		Escalation: engine,
		Logs:       logs,
		Metrics:    sink,
		Bus:        bus,
		Log:        logger.New("orchestrator"),
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	var emitter *stream.Emitter
	if cfg.Stream.Enabled {
		emitter, err = stream.NewEmitter(cfg.Stream, bus)
		if err != nil {
			return nil, fmt.Errorf("stream emitter: %w", err)
		}
	}

	return &Service{
		Orchestrator: orch,
		Store:        st,
		bus:          bus,
		emitter:      emitter,
		notifier:     notifier,
		cache:        cache,
		log:          logg,
		promEnabled:  cfg.Metrics.PrometheusEnabled,
		promPort:     cfg.Metrics.PrometheusPort,
	}, nil
}

// newLogStore builds the configured LogStore backend.
func newLogStore(cfg config.LoggingConfig) (corelogging.LogStore, error) {
	switch cfg.Backend {
	case "sqlite":
		return logging.NewSQLiteStore(cfg.Path)
	case "jsonl":
		return logging.NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	case "postgres":
		return logging.NewPostgresStore(cfg.DatabaseURL)
	case "none":
		return corelogging.NopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown logging backend %q", cfg.Backend)
	}
}

// Run starts the loop, initializes and starts the cadence, then consumes
// lifecycle events until the orchestrator terminates. Cancel the context to
// trigger a graceful shutdown.
func (s *Service) Run(ctx context.Context) error {
	go s.Orchestrator.Run(ctx)
	if s.emitter != nil {
		go s.emitter.Run(ctx)
	}
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	s.Orchestrator.Commands() <- orchestrator.Command{Name: orchestrator.CmdInitialize}
	s.Orchestrator.Commands() <- orchestrator.Command{Name: orchestrator.CmdStart}

	for ev := range s.Orchestrator.Events() {
		if ev.Error != "" {
			s.log.Warnf("event %s: %s", ev.Name, ev.Error)
			continue
		}
		s.log.Infof("event %s", ev.Name)
	}
	return nil
}

// Close releases connector resources. The log store is flushed and closed by
// the orchestrator's own shutdown.
func (s *Service) Close() error {
	if s.notifier != nil {
		s.notifier.Disconnect()
	}
	if s.emitter != nil {
		if err := s.emitter.Close(); err != nil {
			s.log.Errorf("emitter close: %v", err)
		}
	}
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}

// escalationSink persists alert transitions as escalation_logs rows.
type escalationSink struct {
	logs corelogging.LogStore
}

func (s escalationSink) RecordEscalation(ctx context.Context, alert model.EscalationAlert) error {
	return s.logs.AppendEscalation(ctx, corelogging.EscalationLog{
		EscalationType:  alert.Type,
		Severity:        string(alert.Severity),
		OrderID:         alert.OrderID,
		DriverID:        alert.DriverID,
		Reason:          alert.Reason,
		EscalatedAt:     alert.OpenedAt,
		ResolvedAt:      alert.ResolvedAt,
		ResolvedBy:      alert.ResolvedBy,
		AutoResolved:    alert.AutoResolved,
		EscalationLevel: alert.Tier,
		Metadata:        map[string]any{"alert_id": alert.ID, "state": string(alert.State)},
	})
}
