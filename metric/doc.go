// Package metric provides Prometheus metrics for the symbolws client and relay.
//
// A MetricsRegistry wraps a private prometheus.Registry so that tests and
// embedded clients never collide on the global default registry. It registers
// the core metrics (Metrics type) and the Go runtime and process collectors on
// creation; components register their own collectors through MetricsRegistrar.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	http.Handle("/metrics", metric.Handler(registry))
//
//	c, err := client.New(cfg, dir, client.WithMetrics(registry))
//
// # Core Metrics
//
//   - symbolws_client_connections_total: completed handshakes
//   - symbolws_client_reconnects_total{code}: reconnects by close code
//   - symbolws_client_connection_state: current phase as a number
//   - symbolws_client_liveness_closes_total{code}: 4001, 4002 and 4003 closes
//   - symbolws_client_frames_received_total{kind}: frames by topic or kind
//   - symbolws_client_frames_dropped_total{reason}: malformed and unknown frames
//   - symbolws_client_block_lag_seconds: lag of the last block
//   - symbolws_nats_connected, symbolws_nats_reconnects_total: relay connection
//
// Component metrics use the same naming scheme and are keyed by
// "<component>.<metric>" in the registry, so registering the same key twice
// returns an invalid-class error instead of panicking.
//
// # Dedicated Server
//
// Server exposes the registry on its own listener:
//
//	srv := metric.NewServer(":9090", "/metrics", registry)
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop(context.Background())
package metric
