// Package metrics exposes a cTCP registry's connection health as
// Prometheus metrics: a mutex-protected map of tracked connections,
// visited fresh on every Collect call rather than cached.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"

	"github.com/soypat/ctcp"
)

// Collector implements prometheus.Collector over a set of connections a
// cTCP daemon is tracking. Connections are added on accept and removed
// once reaped.
type Collector struct {
	mu    sync.Mutex
	conns map[xid.ID]*ctcp.Connection

	truncatedDesc    *prometheus.Desc
	outOfWindowDesc  *prometheus.Desc
	invalidCksumDesc *prometheus.Desc
	destroyedDesc    *prometheus.Desc
	activeDesc       *prometheus.Desc
}

// NewCollector creates a Collector. constLabels is applied to every
// metric it exposes (for example {"instance": hostname}).
func NewCollector(constLabels prometheus.Labels) *Collector {
	return &Collector{
		conns: make(map[xid.ID]*ctcp.Connection),
		truncatedDesc: prometheus.NewDesc("ctcp_rx_truncated_total",
			"Segments dropped for declaring more bytes than were received.",
			[]string{"conn"}, constLabels),
		outOfWindowDesc: prometheus.NewDesc("ctcp_rx_out_of_window_total",
			"Segments dropped for falling outside the receive window.",
			[]string{"conn"}, constLabels),
		invalidCksumDesc: prometheus.NewDesc("ctcp_rx_invalid_checksum_total",
			"Segments dropped for failing checksum validation.",
			[]string{"conn"}, constLabels),
		destroyedDesc: prometheus.NewDesc("ctcp_connection_destroyed",
			"1 if the connection has been torn down, 0 if still live.",
			[]string{"conn"}, constLabels),
		activeDesc: prometheus.NewDesc("ctcp_active_connections",
			"Number of connections currently tracked by the collector.",
			nil, constLabels),
	}
}

// Add registers a connection for scraping under id.
func (c *Collector) Add(id xid.ID, conn *ctcp.Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[id] = conn
}

// Remove stops scraping the connection identified by id.
func (c *Collector) Remove(id xid.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, id)
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.truncatedDesc
	descs <- c.outOfWindowDesc
	descs <- c.invalidCksumDesc
	descs <- c.destroyedDesc
	descs <- c.activeDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(c.activeDesc, prometheus.GaugeValue, float64(len(c.conns)))
	for id, conn := range c.conns {
		label := id.String()
		truncated, outOfWindow, invalidCksum := conn.RxCounters()
		ch <- prometheus.MustNewConstMetric(c.truncatedDesc, prometheus.CounterValue, float64(truncated), label)
		ch <- prometheus.MustNewConstMetric(c.outOfWindowDesc, prometheus.CounterValue, float64(outOfWindow), label)
		ch <- prometheus.MustNewConstMetric(c.invalidCksumDesc, prometheus.CounterValue, float64(invalidCksum), label)
		destroyed := 0.0
		if conn.Destroyed() {
			destroyed = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.destroyedDesc, prometheus.GaugeValue, destroyed, label)
	}
}
