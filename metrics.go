package dokki

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports document gauges and merge counters. Register
// one per document, each with its own "actor" label.
type Collector struct {
	doc *Document

	ops     *prometheus.Desc
	changes *prometheus.Desc
	heads   *prometheus.Desc
	actors  *prometheus.Desc
	pending *prometheus.Desc
	hoses   *prometheus.Desc

	applied   *prometheus.Desc
	duplicate *prometheus.Desc
	buffered  *prometheus.Desc
	rejected  *prometheus.Desc
	evicted   *prometheus.Desc
}

func NewCollector(doc *Document) *Collector {
	labels := prometheus.Labels{"actor": doc.actor.String()}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("dokki_"+name, help, nil, labels)
	}
	return &Collector{
		doc: doc,

		ops:     desc("ops", "Number of ops in the log"),
		changes: desc("changes", "Number of stored changes"),
		heads:   desc("heads", "Number of heads"),
		actors:  desc("actors", "Number of actors in the state vector"),
		pending: desc("pending_changes", "Number of changes waiting for dependencies"),
		hoses:   desc("hoses", "Number of subscribed hoses"),

		applied:   desc("changes_applied_total", "Remote changes merged"),
		duplicate: desc("changes_duplicate_total", "Remote changes already known"),
		buffered:  desc("changes_buffered_total", "Remote changes buffered for missing dependencies"),
		rejected:  desc("changes_rejected_total", "Remote changes or blobs rejected as invalid"),
		evicted:   desc("changes_evicted_total", "Buffered changes given up on"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ops
	ch <- c.changes
	ch <- c.heads
	ch <- c.actors
	ch <- c.pending
	ch <- c.hoses
	ch <- c.applied
	ch <- c.duplicate
	ch <- c.buffered
	ch <- c.rejected
	ch <- c.evicted
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	doc := c.doc
	doc.lock.RLock()
	ops := len(doc.log.ops)
	changes := len(doc.log.changes)
	heads := len(doc.log.heads)
	actors := len(doc.log.clock.vv)
	pending := doc.pending.len()
	doc.lock.RUnlock()

	ch <- prometheus.MustNewConstMetric(c.ops, prometheus.GaugeValue, float64(ops))
	ch <- prometheus.MustNewConstMetric(c.changes, prometheus.GaugeValue, float64(changes))
	ch <- prometheus.MustNewConstMetric(c.heads, prometheus.GaugeValue, float64(heads))
	ch <- prometheus.MustNewConstMetric(c.actors, prometheus.GaugeValue, float64(actors))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(pending))
	ch <- prometheus.MustNewConstMetric(c.hoses, prometheus.GaugeValue, float64(doc.hoses.Size()))

	ch <- prometheus.MustNewConstMetric(c.applied, prometheus.CounterValue, float64(doc.stats.applied.Load()))
	ch <- prometheus.MustNewConstMetric(c.duplicate, prometheus.CounterValue, float64(doc.stats.duplicate.Load()))
	ch <- prometheus.MustNewConstMetric(c.buffered, prometheus.CounterValue, float64(doc.stats.buffered.Load()))
	ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(doc.stats.rejected.Load()))
	ch <- prometheus.MustNewConstMetric(c.evicted, prometheus.CounterValue, float64(doc.stats.evicted.Load()))
}
