package forwarder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

type metrics struct {
	records           prometheus.Counter
	serializeFailures prometheus.Counter
	enqueueFailures   prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		records: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logship",
			Subsystem: "forwarder",
			Name:      "records_total",
			Help:      "Enabled records captured for remote delivery.",
		}),
		serializeFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logship",
			Subsystem: "forwarder",
			Name:      "serialize_failures_total",
			Help:      "Records that could not be encoded.",
		}),
		enqueueFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logship",
			Subsystem: "forwarder",
			Name:      "enqueue_failures_total",
			Help:      "Records refused by a closed queue.",
		}),
	}
}

func counterValue(c prometheus.Counter) uint64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	return uint64(pb.GetCounter().GetValue())
}
