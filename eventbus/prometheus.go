package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements prometheus.Collector for Bus statistics.
// It exposes
//
//	<namespace>_emitted_total
//	<namespace>_delivered_total
//	<namespace>_failed_total
//	<namespace>_listeners{topic="<wire name>"}
//
// Values are read from Stats and ListenerCount at scrape time; nothing is
// added to the dispatch path.
type PrometheusCollector struct {
	bus           *Bus
	emittedDesc   *prometheus.Desc
	deliveredDesc *prometheus.Desc
	failedDesc    *prometheus.Desc
	listenersDesc *prometheus.Desc
}

// NewPrometheusCollector creates a collector for bus. namespace defaults to
// "alouette_eventbus".
func NewPrometheusCollector(bus *Bus, namespace string) *PrometheusCollector {
	if namespace == "" {
		namespace = "alouette_eventbus"
	}
	return &PrometheusCollector{
		bus: bus,
		emittedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "emitted_total"),
			"Total emissions on valid topics", nil, nil),
		deliveredDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "delivered_total"),
			"Total handler invocations", nil, nil),
		failedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "failed_total"),
			"Total handler invocations that failed or panicked", nil, nil),
		listenersDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "listeners"),
			"Current number of handlers per topic", []string{"topic"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.emittedDesc
	ch <- c.deliveredDesc
	ch <- c.failedDesc
	ch <- c.listenersDesc
}

// Collect implements prometheus.Collector.
func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.bus.Stats()
	ch <- prometheus.MustNewConstMetric(c.emittedDesc, prometheus.CounterValue, float64(stats.Emitted))
	ch <- prometheus.MustNewConstMetric(c.deliveredDesc, prometheus.CounterValue, float64(stats.Delivered))
	ch <- prometheus.MustNewConstMetric(c.failedDesc, prometheus.CounterValue, float64(stats.Failed))
	for _, t := range AllTopics() {
		ch <- prometheus.MustNewConstMetric(c.listenersDesc, prometheus.GaugeValue, float64(c.bus.ListenerCount(t)), t.String())
	}
}
