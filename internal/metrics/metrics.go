package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CopyMetrics provides Prometheus metrics for copy sessions.
// All methods are nil-safe: calls on a nil *CopyMetrics are no-ops.
type CopyMetrics struct {
	// BytesTotal counts bytes transferred, labeled by op ("read", "write").
	BytesTotal *prometheus.CounterVec

	// OpsTotal counts finished operations, labeled by op.
	OpsTotal *prometheus.CounterVec

	// OpErrorsTotal counts failed operations, labeled by op.
	OpErrorsTotal *prometheus.CounterVec

	// OpLatency observes submit-to-completion latency in seconds, by op.
	OpLatency *prometheus.HistogramVec

	// SlotsActive tracks slots that have not retired yet.
	SlotsActive prometheus.Gauge

	// SessionDuration observes wall-clock session time in seconds.
	SessionDuration prometheus.Histogram

	// SessionsTotal counts finished sessions, labeled by result ("ok", "error").
	SessionsTotal *prometheus.CounterVec
}

// NewCopyMetrics creates and registers copy metrics with the given
// Prometheus registerer. If reg is nil, metrics are created but not
// registered (useful for testing).
func NewCopyMetrics(reg prometheus.Registerer) *CopyMetrics {
	m := &CopyMetrics{
		BytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aiocp",
			Name:      "bytes_total",
			Help:      "Bytes transferred by finished slot operations",
		}, []string{"op"}),
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aiocp",
			Name:      "ops_total",
			Help:      "Finished slot operations",
		}, []string{"op"}),
		OpErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aiocp",
			Name:      "op_errors_total",
			Help:      "Slot operations that failed to issue or complete",
		}, []string{"op"}),
		OpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aiocp",
			Name:      "op_latency_seconds",
			Help:      "Latency from submission to completion of slot operations",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 12), // 10us to ~42s
		}, []string{"op"}),
		SlotsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aiocp",
			Name:      "slots_active",
			Help:      "Slots that have not retired yet",
		}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aiocp",
			Name:      "session_duration_seconds",
			Help:      "Wall-clock duration of copy sessions",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 12),
		}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aiocp",
			Name:      "sessions_total",
			Help:      "Finished copy sessions by result",
		}, []string{"result"}),
	}

	if reg != nil {
		collectors := []prometheus.Collector{
			m.BytesTotal,
			m.OpsTotal,
			m.OpErrorsTotal,
			m.OpLatency,
			m.SlotsActive,
			m.SessionDuration,
			m.SessionsTotal,
		}
		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	}

	return m
}

// RecordOp records one finished operation.
func (m *CopyMetrics) RecordOp(op string, n int64, latency time.Duration) {
	if m == nil {
		return
	}
	m.OpsTotal.WithLabelValues(op).Inc()
	m.BytesTotal.WithLabelValues(op).Add(float64(n))
	m.OpLatency.WithLabelValues(op).Observe(latency.Seconds())
}

// RecordOpError records one failed operation.
func (m *CopyMetrics) RecordOpError(op string) {
	if m == nil {
		return
	}
	m.OpErrorsTotal.WithLabelValues(op).Inc()
}

// SetSlotsActive sets the active slot gauge.
func (m *CopyMetrics) SetSlotsActive(n int) {
	if m == nil {
		return
	}
	m.SlotsActive.Set(float64(n))
}

// RecordSession observes a finished session.
func (m *CopyMetrics) RecordSession(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SessionsTotal.WithLabelValues(result).Inc()
	m.SessionDuration.Observe(d.Seconds())
}

// WriteTextfile writes every metric gathered by g to path in the text
// exposition format, for the node_exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
