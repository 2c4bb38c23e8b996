package store

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	store *Store

	changes *prometheus.Desc

	compactionCount         *prometheus.Desc
	compactionEstimatedDebt *prometheus.Desc

	memtableSize  *prometheus.Desc
	memtableCount *prometheus.Desc

	walFiles   *prometheus.Desc
	walSize    *prometheus.Desc
	walBytesIn *prometheus.Desc
}

func NewCollector(s *Store) *Collector {
	return &Collector{
		store: s,

		changes: prometheus.NewDesc(
			"dokki_store_changes",
			"Number of stored changes",
			nil, nil,
		),

		compactionCount: prometheus.NewDesc(
			"dokki_store_compaction_count_total",
			"Total number of compactions performed",
			nil, nil,
		),
		compactionEstimatedDebt: prometheus.NewDesc(
			"dokki_store_compaction_estimated_debt_bytes",
			"Estimated number of bytes that need to be compacted to reach a stable state",
			nil, nil,
		),

		memtableSize: prometheus.NewDesc(
			"dokki_store_memtable_size_bytes",
			"Current size of the memtable in bytes",
			nil, nil,
		),
		memtableCount: prometheus.NewDesc(
			"dokki_store_memtable_count",
			"Current count of memtables",
			nil, nil,
		),

		walFiles: prometheus.NewDesc(
			"dokki_store_wal_files",
			"Number of live WAL files",
			nil, nil,
		),
		walSize: prometheus.NewDesc(
			"dokki_store_wal_size_bytes",
			"Size of live WAL data in bytes",
			nil, nil,
		),
		walBytesIn: prometheus.NewDesc(
			"dokki_store_wal_bytes_in_total",
			"Total logical bytes written to the WAL",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.changes
	ch <- c.compactionCount
	ch <- c.compactionEstimatedDebt
	ch <- c.memtableSize
	ch <- c.memtableCount
	ch <- c.walFiles
	ch <- c.walSize
	ch <- c.walBytesIn
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	metrics := c.store.db.Metrics()

	ch <- prometheus.MustNewConstMetric(c.changes, prometheus.GaugeValue, float64(c.store.Len()))

	ch <- prometheus.MustNewConstMetric(
		c.compactionCount,
		prometheus.CounterValue,
		float64(metrics.Compact.Count),
	)
	ch <- prometheus.MustNewConstMetric(
		c.compactionEstimatedDebt,
		prometheus.GaugeValue,
		float64(metrics.Compact.EstimatedDebt),
	)
	ch <- prometheus.MustNewConstMetric(
		c.memtableSize,
		prometheus.GaugeValue,
		float64(metrics.MemTable.Size),
	)
	ch <- prometheus.MustNewConstMetric(
		c.memtableCount,
		prometheus.GaugeValue,
		float64(metrics.MemTable.Count),
	)
	ch <- prometheus.MustNewConstMetric(
		c.walFiles,
		prometheus.GaugeValue,
		float64(metrics.WAL.Files),
	)
	ch <- prometheus.MustNewConstMetric(
		c.walSize,
		prometheus.GaugeValue,
		float64(metrics.WAL.Size),
	)
	ch <- prometheus.MustNewConstMetric(
		c.walBytesIn,
		prometheus.CounterValue,
		float64(metrics.WAL.BytesIn),
	)
}
