// Package metrics exposes dispatch counters and gauges to Prometheus.
package metrics
