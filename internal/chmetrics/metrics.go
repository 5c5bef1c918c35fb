// Package chmetrics mirrors engine and index statistics as Prometheus
// collectors. It owns no HTTP listener; registering and serving /metrics
// is left to the embedder.
package chmetrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors groups every gauge/counter the engine updates on its own
// internal events.
type Collectors struct {
	SegmentCount  prometheus.Gauge
	TotalPoints   prometheus.Gauge
	BufferPoints  prometheus.Gauge
	WALEntries    prometheus.Gauge
	StorageBytes  prometheus.Gauge
	FlushTotal    prometheus.Counter
	FlushErrors   prometheus.Counter
	WritesTotal   prometheus.Counter
	QueriesTotal  prometheus.Counter
	QueryDuration prometheus.Histogram
}

// New constructs a fresh, unregistered set of collectors.
func New() *Collectors {
	return &Collectors{
		SegmentCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chronicle", Name: "segment_count", Help: "Number of on-disk segment files.",
		}),
		TotalPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chronicle", Name: "total_points", Help: "Total samples stored across every segment.",
		}),
		BufferPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chronicle", Name: "buffer_points", Help: "Samples currently buffered but not yet flushed.",
		}),
		WALEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chronicle", Name: "wal_entries", Help: "Records currently in the write-ahead log.",
		}),
		StorageBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chronicle", Name: "storage_bytes", Help: "Total bytes occupied by segment files.",
		}),
		FlushTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chronicle", Name: "flush_total", Help: "Number of completed flush operations.",
		}),
		FlushErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chronicle", Name: "flush_errors_total", Help: "Number of failed flush operations.",
		}),
		WritesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chronicle", Name: "writes_total", Help: "Number of samples accepted by Write/WriteBatch.",
		}),
		QueriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chronicle", Name: "queries_total", Help: "Number of completed queries.",
		}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chronicle", Name: "query_duration_seconds", Help: "Query execution latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Register adds every collector to reg.
func (c *Collectors) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		c.SegmentCount, c.TotalPoints, c.BufferPoints, c.WALEntries, c.StorageBytes,
		c.FlushTotal, c.FlushErrors, c.WritesTotal, c.QueriesTotal, c.QueryDuration,
	}
	for _, coll := range collectors {
		if err := reg.Register(coll); err != nil {
			return err
		}
	}
	return nil
}
