package api

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// upeCollector implements prometheus.Collector, reading worker
// counters and rule hit counts directly off the running Manager on
// each scrape rather than caching a snapshot between scrapes.
type upeCollector struct {
	srv *Server

	pktsInTotal    *prometheus.Desc
	parsedTotal    *prometheus.Desc
	matchedTotal   *prometheus.Desc
	forwardedTotal *prometheus.Desc
	droppedTotal   *prometheus.Desc

	ruleHitsTotal  *prometheus.Desc
	ruleBytesTotal *prometheus.Desc

	arpEntries *prometheus.Desc
	ndpEntries *prometheus.Desc

	reporterDropped *prometheus.Desc
}

func newCollector(srv *Server) *upeCollector {
	return &upeCollector{
		srv: srv,

		pktsInTotal: prometheus.NewDesc(
			"upe_worker_packets_in_total",
			"Total packets dequeued by a worker.",
			[]string{"worker"}, nil,
		),
		parsedTotal: prometheus.NewDesc(
			"upe_worker_packets_parsed_total",
			"Total packets successfully parsed into a flow key.",
			[]string{"worker"}, nil,
		),
		matchedTotal: prometheus.NewDesc(
			"upe_worker_packets_matched_total",
			"Total packets matched against a rule.",
			[]string{"worker"}, nil,
		),
		forwardedTotal: prometheus.NewDesc(
			"upe_worker_packets_forwarded_total",
			"Total packets forwarded.",
			[]string{"worker"}, nil,
		),
		droppedTotal: prometheus.NewDesc(
			"upe_worker_packets_dropped_total",
			"Total packets dropped.",
			[]string{"worker"}, nil,
		),
		ruleHitsTotal: prometheus.NewDesc(
			"upe_rule_hits_total",
			"Total packets matched per rule.",
			[]string{"rule_id"}, nil,
		),
		ruleBytesTotal: prometheus.NewDesc(
			"upe_rule_bytes_total",
			"Total bytes matched per rule.",
			[]string{"rule_id"}, nil,
		),
		arpEntries: prometheus.NewDesc(
			"upe_arp_entries",
			"Current number of learned ARP entries.",
			nil, nil,
		),
		ndpEntries: prometheus.NewDesc(
			"upe_ndp_entries",
			"Current number of learned NDP entries.",
			nil, nil,
		),
		reporterDropped: prometheus.NewDesc(
			"upe_reporter_dropped_events_total",
			"Total events dropped because the reporter's queue was full.",
			nil, nil,
		),
	}
}

func (c *upeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pktsInTotal
	ch <- c.parsedTotal
	ch <- c.matchedTotal
	ch <- c.forwardedTotal
	ch <- c.droppedTotal
	ch <- c.ruleHitsTotal
	ch <- c.ruleBytesTotal
	ch <- c.arpEntries
	ch <- c.ndpEntries
	ch <- c.reporterDropped
}

func (c *upeCollector) Collect(ch chan<- prometheus.Metric) {
	mgr := c.srv.mgr
	if mgr == nil {
		return
	}

	ruleTotals := map[uint32]ruletableStatSnapshot{}
	for i, wk := range mgr.Workers() {
		id := strconv.Itoa(i)
		counters := wk.Counters()
		ch <- prometheus.MustNewConstMetric(c.pktsInTotal, prometheus.CounterValue, float64(counters.PktsIn), id)
		ch <- prometheus.MustNewConstMetric(c.parsedTotal, prometheus.CounterValue, float64(counters.Parsed), id)
		ch <- prometheus.MustNewConstMetric(c.matchedTotal, prometheus.CounterValue, float64(counters.Matched), id)
		ch <- prometheus.MustNewConstMetric(c.forwardedTotal, prometheus.CounterValue, float64(counters.Forwarded), id)
		ch <- prometheus.MustNewConstMetric(c.droppedTotal, prometheus.CounterValue, float64(counters.Dropped), id)

		for ruleID, stat := range wk.RuleStats() {
			acc := ruleTotals[ruleID]
			acc.packets += stat.Packets
			acc.bytes += stat.Bytes
			ruleTotals[ruleID] = acc
		}
	}

	for ruleID, acc := range ruleTotals {
		label := strconv.FormatUint(uint64(ruleID), 10)
		ch <- prometheus.MustNewConstMetric(c.ruleHitsTotal, prometheus.CounterValue, float64(acc.packets), label)
		ch <- prometheus.MustNewConstMetric(c.ruleBytesTotal, prometheus.CounterValue, float64(acc.bytes), label)
	}

	if t := mgr.ArpTable(); t != nil {
		ch <- prometheus.MustNewConstMetric(c.arpEntries, prometheus.GaugeValue, float64(t.Len()))
	}
	if t := mgr.NdpTable(); t != nil {
		ch <- prometheus.MustNewConstMetric(c.ndpEntries, prometheus.GaugeValue, float64(t.Len()))
	}
	if r := mgr.Reporter(); r != nil {
		ch <- prometheus.MustNewConstMetric(c.reporterDropped, prometheus.CounterValue, float64(r.Dropped()))
	}
}
