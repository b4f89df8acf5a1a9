package logging

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TraceFilter restricts a TraceWriter to events touching the given
// source and/or destination prefixes. An invalid (zero) prefix is
// treated as "don't care" for that side.
type TraceFilter struct {
	Name         string
	SourcePrefix string
	DestPrefix   string
}

// TraceConfig configures a TraceWriter.
type TraceConfig struct {
	Path      string   // trace file path
	FileSize  int64    // max file size in bytes (default 10MB)
	FileCount int      // rotated files to keep (default 3)
	Flags     []string // "forward", "drop", "learn"; empty means all
	Filters   []TraceFilter
}

// TraceWriter writes matching dataplane events to a trace file with rotation.
type TraceWriter struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	maxSize  int64
	maxFiles int
	written  int64
	filters  []traceFilter
	flags    map[string]bool
}

type traceFilter struct {
	name   string
	srcNet netip.Prefix
	dstNet netip.Prefix
}

// NewTraceWriter creates a trace writer from cfg.
func NewTraceWriter(cfg TraceConfig) (*TraceWriter, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("no trace file specified")
	}

	path := cfg.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join("/var/log", path)
	}

	maxSize := cfg.FileSize
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}
	maxFiles := cfg.FileCount
	if maxFiles <= 0 {
		maxFiles = 3
	}

	tw := &TraceWriter{
		path:     path,
		maxSize:  maxSize,
		maxFiles: maxFiles,
		flags:    make(map[string]bool),
	}

	for _, f := range cfg.Flags {
		tw.flags[f] = true
	}
	if len(tw.flags) == 0 {
		tw.flags["forward"] = true
		tw.flags["drop"] = true
		tw.flags["learn"] = true
	}

	for _, pf := range cfg.Filters {
		f := traceFilter{name: pf.Name}
		if pf.SourcePrefix != "" {
			prefix, err := netip.ParsePrefix(pf.SourcePrefix)
			if err != nil {
				slog.Warn("invalid trace filter source prefix",
					"filter", pf.Name, "prefix", pf.SourcePrefix, "err", err)
				continue
			}
			f.srcNet = prefix
		}
		if pf.DestPrefix != "" {
			prefix, err := netip.ParsePrefix(pf.DestPrefix)
			if err != nil {
				slog.Warn("invalid trace filter destination prefix",
					"filter", pf.Name, "prefix", pf.DestPrefix, "err", err)
				continue
			}
			f.dstNet = prefix
		}
		tw.filters = append(tw.filters, f)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	tw.file = f

	if info, err := f.Stat(); err == nil {
		tw.written = info.Size()
	}

	return tw, nil
}

// Close closes the trace file.
func (tw *TraceWriter) Close() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.file != nil {
		tw.file.Close()
		tw.file = nil
	}
}

// HandleEvent is an EventCallback that writes matching events to the trace file.
func (tw *TraceWriter) HandleEvent(rec EventRecord) {
	if !tw.matchFlags(rec.Type) {
		return
	}
	if len(tw.filters) > 0 && !tw.matchFilters(rec) {
		return
	}

	line := tw.formatTrace(rec)

	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.file == nil {
		return
	}

	n, err := tw.file.WriteString(line)
	if err != nil {
		return
	}
	tw.written += int64(n)

	if tw.written >= tw.maxSize {
		tw.rotate()
	}
}

func (tw *TraceWriter) matchFlags(eventType string) bool {
	switch eventType {
	case "FORWARD":
		return tw.flags["forward"]
	case "DROP":
		return tw.flags["drop"]
	case "ARP_LEARN", "NDP_LEARN":
		return tw.flags["learn"]
	default:
		return false
	}
}

func (tw *TraceWriter) matchFilters(rec EventRecord) bool {
	srcAddr := extractAddr(rec.SrcAddr)
	dstAddr := extractAddr(rec.DstAddr)

	for _, f := range tw.filters {
		srcMatch := !f.srcNet.IsValid() || (srcAddr.IsValid() && f.srcNet.Contains(srcAddr))
		dstMatch := !f.dstNet.IsValid() || (dstAddr.IsValid() && f.dstNet.Contains(dstAddr))
		if srcMatch && dstMatch {
			return true
		}
	}
	return false
}

// extractAddr parses an IP address from "IP:port", "[IPv6]:port", or a
// bare address (used by *_LEARN events).
func extractAddr(addrPort string) netip.Addr {
	if strings.HasPrefix(addrPort, "[") {
		end := strings.Index(addrPort, "]")
		if end > 0 {
			if addr, err := netip.ParseAddr(addrPort[1:end]); err == nil {
				return addr
			}
		}
		return netip.Addr{}
	}
	host := addrPort
	if idx := strings.LastIndex(addrPort, ":"); idx >= 0 {
		host = addrPort[:idx]
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}

func (tw *TraceWriter) formatTrace(rec EventRecord) string {
	ts := rec.Time.Format("2006-01-02 15:04:05.000")
	if rec.Type == "ARP_LEARN" || rec.Type == "NDP_LEARN" {
		return fmt.Sprintf("%s %-10s worker=%d addr=%s\n", ts, rec.Type, rec.WorkerID, rec.SrcAddr)
	}
	return fmt.Sprintf("%s %-10s worker=%d %s -> %s proto=%s rule=%d action=%s bytes=%d\n",
		ts, rec.Type, rec.WorkerID, rec.SrcAddr, rec.DstAddr, rec.Protocol, rec.RuleID, rec.Action, rec.Bytes)
}

func (tw *TraceWriter) rotate() {
	tw.file.Close()
	tw.file = nil

	for i := tw.maxFiles - 1; i > 0; i-- {
		old := fmt.Sprintf("%s.%d", tw.path, i)
		next := fmt.Sprintf("%s.%d", tw.path, i+1)
		os.Rename(old, next)
	}
	os.Rename(tw.path, tw.path+".1")

	excess := fmt.Sprintf("%s.%d", tw.path, tw.maxFiles+1)
	os.Remove(excess)

	f, err := os.OpenFile(tw.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		slog.Warn("failed to open rotated trace file", "err", err)
		return
	}
	tw.file = f
	tw.written = 0
}
