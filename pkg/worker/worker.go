// Package worker implements the per-core packet-processing pipeline:
// dequeue a burst from its ring, snoop ARP/NDP control-plane traffic,
// parse and classify everything else against a rule table, rewrite
// IPv4/IPv6 headers for anything forwarded, and flush a batched
// transmit. Every Worker owns all of its state for its lifetime; the
// only things it shares with the rest of the dataplane are the buffer
// pool, the rule table, and the two neighbor tables, each with its own
// documented concurrency discipline.
package worker

import (
	"log/slog"
	"net"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/upe-project/upe/pkg/bufferpool"
	"github.com/upe-project/upe/pkg/logging"
	"github.com/upe-project/upe/pkg/neighbor"
	"github.com/upe-project/upe/pkg/packet"
	"github.com/upe-project/upe/pkg/parser"
	"github.com/upe-project/upe/pkg/ring"
	"github.com/upe-project/upe/pkg/ruletable"
)

// TxSink is the batched transmit contract a worker hands its finished
// frames to. SendBatch consumes batch[0:sent] and must have fully read
// every buffer's bytes before returning, since the worker frees all of
// batch immediately after the call, regardless of sent.
type TxSink interface {
	SendBatch(batch []*packet.Buffer) (sent int, err error)
}

// Counters are a worker's private packet-count statistics. They are
// plain (non-atomic) fields: the core's concurrency model accepts that
// an external reader may observe a stale snapshot, never a torn one,
// because each field is a naturally aligned 64-bit word.
type Counters struct {
	PktsIn    uint64
	Parsed    uint64
	Matched   uint64
	Forwarded uint64
	Dropped   uint64
}

// RuleStat accumulates packets and bytes matched against one rule.
type RuleStat struct {
	Packets uint64
	Bytes   uint64
}

// Config wires up everything a Worker needs for its lifetime.
type Config struct {
	ID     int
	CoreID int // negative disables pinning

	Ring      *ring.Ring[*packet.Buffer]
	Pool      *bufferpool.Pool
	RuleTable *ruletable.RuleTable
	ArpTable  *neighbor.Table
	NdpTable  *neighbor.Table
	TxSink    TxSink
	TxMAC     neighbor.MAC

	// Reporter receives a non-blocking event for every disposition and
	// every neighbor learn. Nil disables reporting entirely.
	Reporter *logging.Reporter

	BurstSize int           // recommended 32
	IdleSleep time.Duration // recommended ~1us
}

// Worker is one pinned (or unpinned) packet-processing thread's state.
type Worker struct {
	cfg   Config
	cache *bufferpool.LocalCache

	arpCache neighbor.LastHitCache
	ndpCache neighbor.LastHitCache

	counters  Counters
	ruleStats map[uint32]*RuleStat

	batch     []*packet.Buffer
	batchKeys []parser.FlowKey

	stop *atomic.Bool
}

// New constructs a Worker. stop is the process-wide shutdown flag the
// worker polls between bursts; it is owned by the caller and shared
// across every worker.
func New(cfg Config, stop *atomic.Bool) *Worker {
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 32
	}
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = time.Microsecond
	}
	return &Worker{
		cfg:       cfg,
		cache:     bufferpool.NewLocalCache(cfg.Pool),
		ruleStats: make(map[uint32]*RuleStat),
		batch:     make([]*packet.Buffer, 0, cfg.BurstSize),
		batchKeys: make([]parser.FlowKey, 0, cfg.BurstSize),
		stop:      stop,
	}
}

// Counters returns a snapshot of the worker's packet counters.
func (w *Worker) Counters() Counters {
	return w.counters
}

// RuleStats returns a snapshot of per-rule packet/byte counts.
func (w *Worker) RuleStats() map[uint32]RuleStat {
	out := make(map[uint32]RuleStat, len(w.ruleStats))
	for id, s := range w.ruleStats {
		out[id] = *s
	}
	return out
}

// Run pins the calling goroutine's OS thread to the configured core
// (if any) and processes bursts until Stop is observed with an empty
// ring. It returns only after draining all in-flight work.
func (w *Worker) Run() {
	if w.cfg.CoreID >= 0 {
		runtime.LockOSThread()
		pinToCore(w.cfg.CoreID)
	}

	batch := make([]*packet.Buffer, w.cfg.BurstSize)
	for {
		n := w.cfg.Ring.PopBurst(batch)
		if n == 0 {
			if w.stop.Load() {
				return
			}
			time.Sleep(w.cfg.IdleSleep)
			continue
		}
		w.counters.PktsIn += uint64(n)
		for i := 0; i < n; i++ {
			w.processOne(batch[i])
		}
		w.flushBatch()
	}
}

func (w *Worker) processOne(buf *packet.Buffer) {
	frame := buf.Data()
	if len(frame) < ethHeaderLen {
		w.counters.Dropped++
		w.report("DROP", parser.FlowKey{}, false, 0, len(frame))
		w.cache.Free(buf)
		return
	}

	switch etherType(frame) {
	case etherTypeARP:
		_, addr, learned := snoopARP(frame, w.cfg.ArpTable)
		if learned {
			w.reportLearn("ARP_LEARN", addr)
		}
		w.cache.Free(buf)
		return
	case etherTypeIPv6:
		if len(frame) >= ethHeaderLen+ipv6HeaderLen && frame[ethHeaderLen+6] == protoICMPv6 {
			consumed, addr, learned := snoopNDP(frame, w.cfg.NdpTable)
			if learned {
				w.reportLearn("NDP_LEARN", addr)
			}
			if consumed {
				w.cache.Free(buf)
				return
			}
		}
	}

	key, err := parser.Parse(frame)
	if err != nil {
		w.counters.Dropped++
		w.report("DROP", parser.FlowKey{}, false, 0, len(frame))
		w.cache.Free(buf)
		return
	}
	w.counters.Parsed++

	rule, ok := w.cfg.RuleTable.Match(key)
	if !ok {
		w.counters.Dropped++
		w.report("DROP", key, false, 0, len(frame))
		w.cache.Free(buf)
		return
	}
	w.counters.Matched++
	stat := w.ruleStats[rule.RuleID]
	if stat == nil {
		stat = &RuleStat{}
		w.ruleStats[rule.RuleID] = stat
	}
	stat.Packets++
	stat.Bytes += uint64(len(frame))

	if rule.Action == ruletable.ActionDrop {
		w.counters.Dropped++
		w.report("DROP", key, true, rule.RuleID, len(frame))
		w.cache.Free(buf)
		return
	}

	var fwd forwardResult
	switch key.IPVer {
	case 4:
		fwd = forwardIPv4(frame, w.cfg.ArpTable, &w.arpCache, w.cfg.TxMAC)
	case 6:
		fwd = forwardIPv6(frame, w.cfg.NdpTable, &w.ndpCache, w.cfg.TxMAC)
	default:
		w.counters.Dropped++
		w.report("DROP", key, true, rule.RuleID, len(frame))
		w.cache.Free(buf)
		return
	}
	if !fwd.ok {
		w.counters.Dropped++
		w.report("DROP", key, true, rule.RuleID, len(frame))
		w.cache.Free(buf)
		return
	}

	w.batch = append(w.batch, buf)
	w.batchKeys = append(w.batchKeys, key)
}

// flushBatch sends whatever accumulated in this burst and frees every
// buffer in it regardless of how many the sink actually accepted: the
// sink has already read every payload by the time SendBatch returns.
func (w *Worker) flushBatch() {
	if len(w.batch) == 0 {
		return
	}
	sent, _ := w.cfg.TxSink.SendBatch(w.batch)
	w.counters.Forwarded += uint64(sent)
	w.counters.Dropped += uint64(len(w.batch) - sent)
	for i, buf := range w.batch {
		if i < sent {
			w.report("FORWARD", w.batchKeys[i], true, 0, buf.Len)
		} else {
			w.report("DROP", w.batchKeys[i], true, 0, buf.Len)
		}
		w.cache.Free(buf)
	}
	w.batch = w.batch[:0]
	w.batchKeys = w.batchKeys[:0]
}

// report builds and hands an EventRecord to the configured Reporter,
// a no-op when none is configured.
func (w *Worker) report(eventType string, key parser.FlowKey, haveKey bool, ruleID uint32, bytes int) {
	if w.cfg.Reporter == nil {
		return
	}
	rec := logging.EventRecord{
		WorkerID: w.cfg.ID,
		Type:     eventType,
		RuleID:   ruleID,
		Matched:  haveKey,
		Bytes:    uint64(bytes),
	}
	if eventType == "FORWARD" {
		rec.Action = "forward"
	} else {
		rec.Action = "drop"
	}
	if haveKey {
		rec.SrcAddr = flowAddrString(key.IPVer, key.SrcAddr, key.SrcPort)
		rec.DstAddr = flowAddrString(key.IPVer, key.DstAddr, key.DstPort)
		rec.Protocol = protoName(key.Protocol)
	}
	w.cfg.Reporter.Report(rec)
}

func (w *Worker) reportLearn(eventType, addr string) {
	if w.cfg.Reporter == nil {
		return
	}
	w.cfg.Reporter.Report(logging.EventRecord{
		WorkerID: w.cfg.ID,
		Type:     eventType,
		SrcAddr:  addr,
	})
}

func flowAddrString(ipVer uint8, addr [16]byte, port uint16) string {
	var ip net.IP
	if ipVer == 6 {
		ip = net.IP(addr[:16])
	} else {
		ip = net.IP(addr[:4])
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))
}

func protoName(p uint8) string {
	switch p {
	case 6:
		return "TCP"
	case 17:
		return "UDP"
	case 1:
		return "ICMP"
	case 58:
		return "ICMPv6"
	default:
		return strconv.Itoa(int(p))
	}
}

func pinToCore(coreID int) {
	var set unix.CPUSet
	set.Zero()
	set.Set(coreID)
	// Pinning failure is a warning-level event, not fatal: first-touch
	// placement is a perf concern, not a correctness one.
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		slog.Warn("worker: CPU pinning failed", "core", coreID, "err", err)
	}
}
