package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusSink exports engine counters and latency histograms.
type PrometheusSink struct {
	runsTotal     *prometheus.CounterVec
	blocksTotal   *prometheus.CounterVec
	blockDuration *prometheus.HistogramVec
}

// NewPrometheusSink registers the engine metrics on the given registerer.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	factory := promauto.With(reg)
	return &PrometheusSink{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blockflow",
			Name:      "runs_total",
			Help:      "Workflow runs by terminal status.",
		}, []string{"status"}),
		blocksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blockflow",
			Name:      "blocks_total",
			Help:      "Block executions by kind and terminal status.",
		}, []string{"kind", "status"}),
		blockDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "blockflow",
			Name:      "block_duration_seconds",
			Help:      "Block execution wall time by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}

func (s *PrometheusSink) Emit(ev Event) {
	switch ev.Kind {
	case RunEnd:
		s.runsTotal.WithLabelValues(ev.Status).Inc()
	case BlockEnd:
		s.blocksTotal.WithLabelValues(ev.BlockKind, ev.Status).Inc()
		s.blockDuration.WithLabelValues(ev.BlockKind).Observe(ev.Duration.Seconds())
	case BlockError:
		s.blocksTotal.WithLabelValues(ev.BlockKind, "error").Inc()
	}
}
