package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fulltick"

// RPC operation labels.
const (
	OpConnect   = "connect"
	OpQuery     = "query_subscription"
	OpSubscribe = "subscribe"
	OpTimeSync  = "global_state"
	OpUniverse  = "stock_basicinfo"
)

// Metrics holds every collector the subscriber updates.
type Metrics struct {
	SymbolsPending    prometheus.Gauge
	SymbolsSubscribed prometheus.Gauge
	SymbolsReconciled prometheus.Counter
	SubscribeBatch    prometheus.Histogram
	RPCRetries        *prometheus.CounterVec

	SessionsOpen   prometheus.Gauge
	WorkerUnits    prometheus.Gauge
	WorkerFailures prometheus.Counter

	EventsReceived  prometheus.Counter
	EventsDropped   prometheus.Counter
	EventsDelivered prometheus.Counter
	HandlerErrors   prometheus.Counter

	TimestampOffset prometheus.Gauge

	QuotaRemaining *prometheus.GaugeVec
	QuotaUsed      *prometheus.GaugeVec
	QuotaPolls     *prometheus.CounterVec
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		SymbolsPending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "symbols_pending",
			Help:      "Symbols still waiting for a subscription.",
		}),
		SymbolsSubscribed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "symbols_subscribed",
			Help:      "Symbols subscribed on some connection.",
		}),
		SymbolsReconciled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbols_reconciled_total",
			Help:      "Symbols found already subscribed on a freshly opened connection.",
		}),
		SubscribeBatch: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "subscribe_batch_size",
			Help:      "Symbols requested per subscribe call.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 200, 500},
		}),
		RPCRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_retries_total",
			Help:      "Upstream calls that failed and were retried.",
		}, []string{"op"}),
		SessionsOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Open gateway connection sessions.",
		}),
		WorkerUnits: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_units",
			Help:      "Worker units that reported ready and are running.",
		}),
		WorkerFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_failures_total",
			Help:      "Worker units that died before reporting ready.",
		}),
		EventsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Ticks received from gateway connections.",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Ticks dropped because the event channel was full or closed.",
		}),
		EventsDelivered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Ticks handed to the registered handler.",
		}),
		HandlerErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Handler calls that returned an error or panicked.",
		}),
		TimestampOffset: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "timestamp_offset_seconds",
			Help:      "Measured local minus upstream clock offset.",
		}),
		QuotaRemaining: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_remaining",
			Help:      "Subscription quota left per gateway endpoint, as last polled.",
		}, []string{"endpoint"}),
		QuotaUsed: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_used",
			Help:      "Subscription quota consumed per gateway endpoint, as last polled.",
		}, []string{"endpoint"}),
		QuotaPolls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_polls_total",
			Help:      "Quota polls by result.",
		}, []string{"result"}),
	}
}

// Nop returns metrics registered against a private registry, for callers
// and tests that do not export them.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

// OrNop returns m, or a private instance when m is nil.
func OrNop(m *Metrics) *Metrics {
	if m == nil {
		return Nop()
	}
	return m
}
