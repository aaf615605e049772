package metrics

import (
	coremetrics "github.com/fleetops/dispatchd/core/metrics"
)

// Build assembles the configured sink stack: Prometheus and InfluxDB when
// enabled, a NopSink when nothing is. The Influx sink degrades to a no-op
// when its health check fails, so a dead telemetry backend never blocks
// dispatching.
func Build(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	var sinks []coremetrics.MetricsSink
	if cfg.PrometheusEnabled {
		prom, err := NewPromSink(cfg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, prom)
	}
	if cfg.InfluxEnabled {
		sinks = append(sinks, NewInfluxSinkWithFallback(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket))
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return NewMultiSink(sinks...), nil
	}
}
