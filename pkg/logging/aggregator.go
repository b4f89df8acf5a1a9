package logging

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"
)

// FlowAggregator tracks forwarded-byte totals per source and
// destination address and periodically flushes top-N reports. Only
// FORWARD events contribute; DROP and *_LEARN events are ignored.
type FlowAggregator struct {
	mu   sync.Mutex
	srcs map[string]*aggEntry
	dsts map[string]*aggEntry

	flushInterval time.Duration
	topN          int
	logFn         func(severity int, msg string)
}

type aggEntry struct {
	Forwards uint64
	Bytes    uint64
}

// AggregateEntry is a single top-N entry returned by Flush.
type AggregateEntry struct {
	IP       string
	Forwards uint64
	Bytes    uint64
}

// NewFlowAggregator creates a new aggregator. flushInterval controls
// how often top-N stats are emitted (default 5min); topN controls how
// many entries per category (default 10).
func NewFlowAggregator(flushInterval time.Duration, topN int) *FlowAggregator {
	if flushInterval <= 0 {
		flushInterval = 5 * time.Minute
	}
	if topN <= 0 {
		topN = 10
	}
	return &FlowAggregator{
		srcs:          make(map[string]*aggEntry),
		dsts:          make(map[string]*aggEntry),
		flushInterval: flushInterval,
		topN:          topN,
	}
}

// SetLogFunc sets the function used to emit aggregate log lines.
func (fa *FlowAggregator) SetLogFunc(fn func(severity int, msg string)) {
	fa.mu.Lock()
	fa.logFn = fn
	fa.mu.Unlock()
}

// Add records a forwarded packet's contribution to the running totals.
func (fa *FlowAggregator) Add(rec EventRecord) {
	if rec.Type != "FORWARD" {
		return
	}

	srcIP := splitAddrPort(rec.SrcAddr)
	dstIP := splitAddrPort(rec.DstAddr)

	fa.mu.Lock()
	defer fa.mu.Unlock()

	if e, ok := fa.srcs[srcIP]; ok {
		e.Forwards++
		e.Bytes += rec.Bytes
	} else {
		fa.srcs[srcIP] = &aggEntry{Forwards: 1, Bytes: rec.Bytes}
	}

	if e, ok := fa.dsts[dstIP]; ok {
		e.Forwards++
		e.Bytes += rec.Bytes
	} else {
		fa.dsts[dstIP] = &aggEntry{Forwards: 1, Bytes: rec.Bytes}
	}
}

// Flush returns top-N sources and destinations by bytes, then resets counters.
func (fa *FlowAggregator) Flush() (topSrc, topDst []AggregateEntry) {
	fa.mu.Lock()
	srcs := fa.srcs
	dsts := fa.dsts
	fa.srcs = make(map[string]*aggEntry)
	fa.dsts = make(map[string]*aggEntry)
	fa.mu.Unlock()

	topSrc = topEntries(srcs, fa.topN)
	topDst = topEntries(dsts, fa.topN)
	return
}

// Run starts the periodic flush loop. Blocks until ctx is cancelled.
func (fa *FlowAggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(fa.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fa.flushAndLog()
		}
	}
}

// HandleEvent is an EventCallback adapter for use with Reporter.AddCallback.
func (fa *FlowAggregator) HandleEvent(rec EventRecord) {
	fa.Add(rec)
}

func (fa *FlowAggregator) flushAndLog() {
	topSrc, topDst := fa.Flush()
	if len(topSrc) == 0 && len(topDst) == 0 {
		return
	}

	fa.mu.Lock()
	logFn := fa.logFn
	fa.mu.Unlock()

	for _, e := range topSrc {
		msg := fmt.Sprintf("FLOW_AGGREGATE top-source=%q forwards=%d bytes=%d", e.IP, e.Forwards, e.Bytes)
		if logFn != nil {
			logFn(SyslogInfo, msg)
		}
		slog.Info(msg)
	}
	for _, e := range topDst {
		msg := fmt.Sprintf("FLOW_AGGREGATE top-destination=%q forwards=%d bytes=%d", e.IP, e.Forwards, e.Bytes)
		if logFn != nil {
			logFn(SyslogInfo, msg)
		}
		slog.Info(msg)
	}
}

func topEntries(m map[string]*aggEntry, n int) []AggregateEntry {
	if len(m) == 0 {
		return nil
	}
	entries := make([]AggregateEntry, 0, len(m))
	for ip, e := range m {
		entries = append(entries, AggregateEntry{IP: ip, Forwards: e.Forwards, Bytes: e.Bytes})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Bytes > entries[j].Bytes
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// splitAddrPort splits "10.0.1.5:443" or "[::1]:443" into an IP string,
// discarding the port. Falls back to returning addr unchanged when it
// carries no port.
func splitAddrPort(addr string) string {
	if addr == "" {
		return "0.0.0.0"
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
