// Package metrics exposes Prometheus collectors for outbound calls.
//
// A Collector implements transport.Observer, so a Runner configured with it
// records every call that starts and finishes:
//
//   - hellohttp_calls_started_total{protocol}
//   - hellohttp_calls_completed_total{protocol,outcome}
//   - hellohttp_active_calls{protocol}
//   - hellohttp_call_duration_seconds{protocol}
//   - hellohttp_exchange_entries_total{protocol,direction}
//
// Collectors register on their own prometheus.Registry so that several
// engines can live in one process.
package metrics
