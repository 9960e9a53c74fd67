package dq

import (
	"github.com/prometheus/client_golang/prometheus"
	"sync"
)

var (
	queuePrometheusMetrics sync.Once

	queueOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "diskstore",
			Subsystem: "dq",
			Name:      "operations_total",
			Help:      "Number of queue operations, by queue name, operation and outcome",
		},
		[]string{"name", "operation", "outcome"},
	)
	queueBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "diskstore",
			Subsystem: "dq",
			Name:      "blocks_acquired_total",
			Help:      "Number of blocks taken into use by pushes, by queue name and whether the block was new or recycled",
		},
		[]string{"name", "source"},
	)
)

// queueMetrics - Counters of one queue, resolved once at open
type queueMetrics struct {
	pushed         prometheus.Counter
	popped         prometheus.Counter
	poppedEmpty    prometheus.Counter
	blocksNew      prometheus.Counter
	blocksRecycled prometheus.Counter
}

// newQueueMetrics - Registers the collectors on first use and returns the counters labelled with name
func newQueueMetrics(name string) queueMetrics {
	queuePrometheusMetrics.Do(func() {
		prometheus.MustRegister(queueOperations)
		prometheus.MustRegister(queueBlocks)
	})

	return queueMetrics{
		pushed:         queueOperations.WithLabelValues(name, "Push", "Pushed"),
		popped:         queueOperations.WithLabelValues(name, "Pop", "Popped"),
		poppedEmpty:    queueOperations.WithLabelValues(name, "Pop", "Empty"),
		blocksNew:      queueBlocks.WithLabelValues(name, "New"),
		blocksRecycled: queueBlocks.WithLabelValues(name, "Recycled"),
	}
}
