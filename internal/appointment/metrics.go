package appointment

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	opBook   = "book"
	opCancel = "cancel"
)

// Metrics counts booking and cancel outcomes by error code. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Operations      *prometheus.CounterVec
	Latency         *prometheus.HistogramVec
	CapacityFailure prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointments",
			Name:      "operations_total",
			Help:      "Booking and cancel attempts by outcome",
		}, []string{"operation", "outcome"}),
		Latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "appointments",
			Name:      "operation_duration_seconds",
			Help:      "Duration of booking and cancel operations, including lock waits",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation"}),
		CapacityFailure: f.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointments",
			Name:      "capacity_notify_failures_total",
			Help:      "Doctor capacity updates that failed after a successful booking",
		}),
	}
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(CodeOf(err))
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.Latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) capacityFailed() {
	if m == nil {
		return
	}
	m.CapacityFailure.Inc()
}
