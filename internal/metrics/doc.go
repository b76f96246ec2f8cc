// Package metrics exposes Prometheus instrumentation for the subscriber.
//
// Metrics:
//   - fulltick_symbols_{pending,subscribed}: ledger partition sizes
//   - fulltick_symbols_reconciled_total: symbols found already active on a connection
//   - fulltick_subscribe_batch_size: symbols per subscribe call
//   - fulltick_rpc_retries_total{op}: upstream calls retried
//   - fulltick_events_{received,dropped,delivered}_total, fulltick_handler_errors_total
//   - fulltick_worker_units, fulltick_worker_failures_total, fulltick_sessions_open
package metrics
