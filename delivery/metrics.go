package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds the worker's prometheus collectors.
type Metrics struct {
	delivered       prometheus.Counter
	dropped         prometheus.Counter
	connects        prometheus.Counter
	connectFailures prometheus.Counter
	writeFailures   prometheus.Counter
}

// MetricsSnapshot is a point-in-time copy of the worker counters.
type MetricsSnapshot struct {
	Delivered       uint64
	Dropped         uint64
	Connects        uint64
	ConnectFailures uint64
	WriteFailures   uint64
	QueueDepth      int
}

// newMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered but still counting.
func newMetrics(reg prometheus.Registerer, depth func() float64) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		delivered: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logship",
			Subsystem: "delivery",
			Name:      "delivered_total",
			Help:      "Frames written and flushed to the collector.",
		}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logship",
			Subsystem: "delivery",
			Name:      "dropped_total",
			Help:      "Frames discarded after a failed write.",
		}),
		connects: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logship",
			Subsystem: "delivery",
			Name:      "connects_total",
			Help:      "Successful connections to the collector.",
		}),
		connectFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logship",
			Subsystem: "delivery",
			Name:      "connect_failures_total",
			Help:      "Failed attempts to connect to the collector.",
		}),
		writeFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logship",
			Subsystem: "delivery",
			Name:      "write_failures_total",
			Help:      "Frame writes or flushes that failed and dropped the connection.",
		}),
	}
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "logship",
		Subsystem: "delivery",
		Name:      "queue_depth",
		Help:      "Frames waiting to be sent.",
	}, depth)
	return m
}

// snapshot reads the current counter values.
func (m *Metrics) snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Delivered:       counterValue(m.delivered),
		Dropped:         counterValue(m.dropped),
		Connects:        counterValue(m.connects),
		ConnectFailures: counterValue(m.connectFailures),
		WriteFailures:   counterValue(m.writeFailures),
	}
}

func counterValue(c prometheus.Counter) uint64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	return uint64(pb.GetCounter().GetValue())
}
