// Package statlog periodically logs an aggregate snapshot of the
// dataplane's worker counters and neighbor table sizes, the one piece
// of "background sweep" work the dataplane needs: there is no
// connection table to expire here, only running totals worth
// surfacing on a cadence independent of whoever happens to be
// scraping /metrics or polling the CLI.
package statlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/upe-project/upe/pkg/dataplane"
)

// Reporter logs an aggregate stats line on a fixed interval.
type Reporter struct {
	dp       *dataplane.Manager
	interval time.Duration
}

// New creates a new periodic stats reporter.
func New(dp *dataplane.Manager, interval time.Duration) *Reporter {
	return &Reporter{dp: dp, interval: interval}
}

// Run starts the report loop. It blocks until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	slog.Info("stats reporter started", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stats reporter stopped")
			return
		case <-ticker.C:
			r.snapshot()
		}
	}
}

func (r *Reporter) snapshot() {
	var pktsIn, parsed, matched, forwarded, dropped uint64
	for _, w := range r.dp.Workers() {
		c := w.Counters()
		pktsIn += c.PktsIn
		parsed += c.Parsed
		matched += c.Matched
		forwarded += c.Forwarded
		dropped += c.Dropped
	}

	attrs := []any{
		"pkts_in", pktsIn,
		"parsed", parsed,
		"matched", matched,
		"forwarded", forwarded,
		"dropped", dropped,
	}
	if arp := r.dp.ArpTable(); arp != nil {
		attrs = append(attrs, "arp_entries", arp.Len())
	}
	if ndp := r.dp.NdpTable(); ndp != nil {
		attrs = append(attrs, "ndp_entries", ndp.Len())
	}
	if rep := r.dp.Reporter(); rep != nil {
		attrs = append(attrs, "events_dropped", rep.Dropped())
	}

	slog.Info("dataplane stats", attrs...)
}
