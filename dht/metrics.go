package dht

import (
	"github.com/prometheus/client_golang/prometheus"
	"sync"
)

var (
	tablePrometheusMetrics sync.Once

	tableOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "diskstore",
			Subsystem: "dht",
			Name:      "operations_total",
			Help:      "Number of hash table operations, by table name, operation and outcome",
		},
		[]string{"name", "operation", "outcome"},
	)
	tableBucketsLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "diskstore",
			Subsystem: "dht",
			Name:      "buckets_loaded_total",
			Help:      "Number of bucket file handles created lazily, by table name",
		},
		[]string{"name"},
	)
)

// tableMetrics - Counters of one table, resolved once at open
type tableMetrics struct {
	searchFound     prometheus.Counter
	searchNotFound  prometheus.Counter
	insertInserted  prometheus.Counter
	insertDuplicate prometheus.Counter
	appendAppended  prometheus.Counter
	updateUpdated   prometheus.Counter
	updateNotFound  prometheus.Counter
	bucketsLoaded   prometheus.Counter
}

// newTableMetrics - Registers the collectors on first use and returns the counters labelled with name
func newTableMetrics(name string) tableMetrics {
	tablePrometheusMetrics.Do(func() {
		prometheus.MustRegister(tableOperations)
		prometheus.MustRegister(tableBucketsLoaded)
	})

	return tableMetrics{
		searchFound:     tableOperations.WithLabelValues(name, "Search", "Found"),
		searchNotFound:  tableOperations.WithLabelValues(name, "Search", "NotFound"),
		insertInserted:  tableOperations.WithLabelValues(name, "Insert", "Inserted"),
		insertDuplicate: tableOperations.WithLabelValues(name, "Insert", "Duplicate"),
		appendAppended:  tableOperations.WithLabelValues(name, "Append", "Appended"),
		updateUpdated:   tableOperations.WithLabelValues(name, "Update", "Updated"),
		updateNotFound:  tableOperations.WithLabelValues(name, "Update", "NotFound"),
		bucketsLoaded:   tableBucketsLoaded.WithLabelValues(name),
	}
}
