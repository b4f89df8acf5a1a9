// Package dataplane wires the core components — buffer pool, SPSC
// rings, rule table, neighbor tables, and the worker pool — into a
// runnable forwarder, and drives the ingress loop that feeds them from
// a capture.Source.
package dataplane

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/upe-project/upe/pkg/bufferpool"
	"github.com/upe-project/upe/pkg/capture"
	"github.com/upe-project/upe/pkg/logging"
	"github.com/upe-project/upe/pkg/neighbor"
	"github.com/upe-project/upe/pkg/packet"
	"github.com/upe-project/upe/pkg/ring"
	"github.com/upe-project/upe/pkg/ruletable"
	"github.com/upe-project/upe/pkg/worker"
)

// Config describes the sizes and wiring a Manager needs to start.
type Config struct {
	PoolSize    int // total PacketBuffer count
	RingCount   int // must be a power of two
	RingSize    int // per-worker ring capacity, must be a power of two
	WorkerBurst int
	CoreIDs     []int // len must equal RingCount, or nil to disable pinning
	NeighborCap int
	TxMAC       neighbor.MAC

	Source capture.Source
	Sink   worker.TxSink

	RuleTable *ruletable.RuleTable

	EventBufferCap int // ring buffer depth for the event feed, default 4096
	ReporterQueue  int // reporter's internal queue depth, default 4096
}

// Manager owns every long-lived piece of the dataplane and the
// goroutines that drive it: ingress, one per worker, and the event
// reporter.
type Manager struct {
	cfg Config

	pool    *bufferpool.Pool
	rings   []*ring.Ring[*packet.Buffer]
	workers []*worker.Worker

	arpTable *neighbor.Table
	ndpTable *neighbor.Table

	eventBuffer    *logging.EventBuffer
	reporter       *logging.Reporter
	reporterCtx    context.Context
	reporterCancel context.CancelFunc

	stop atomic.Bool
	done chan struct{}
}

// New builds a Manager from cfg without starting anything.
func New(cfg Config) (*Manager, error) {
	if cfg.RingCount <= 0 || cfg.RingCount&(cfg.RingCount-1) != 0 {
		return nil, fmt.Errorf("dataplane: ring count must be a power of two, got %d", cfg.RingCount)
	}
	if cfg.WorkerBurst <= 0 {
		cfg.WorkerBurst = 32
	}
	if cfg.NeighborCap <= 0 {
		cfg.NeighborCap = 4096
	}
	if cfg.EventBufferCap <= 0 {
		cfg.EventBufferCap = 4096
	}
	if cfg.ReporterQueue <= 0 {
		cfg.ReporterQueue = 4096
	}

	pool, err := bufferpool.New(cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("dataplane: buffer pool: %w", err)
	}

	eventBuffer := logging.NewEventBuffer(cfg.EventBufferCap)
	reporterCtx, reporterCancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:            cfg,
		pool:           pool,
		rings:          make([]*ring.Ring[*packet.Buffer], cfg.RingCount),
		workers:        make([]*worker.Worker, cfg.RingCount),
		arpTable:       neighbor.New(cfg.NeighborCap),
		ndpTable:       neighbor.New(cfg.NeighborCap),
		eventBuffer:    eventBuffer,
		reporter:       logging.NewReporter(eventBuffer, cfg.ReporterQueue),
		reporterCtx:    reporterCtx,
		reporterCancel: reporterCancel,
		done:           make(chan struct{}),
	}

	for i := 0; i < cfg.RingCount; i++ {
		r, err := ring.New[*packet.Buffer](cfg.RingSize)
		if err != nil {
			return nil, fmt.Errorf("dataplane: ring %d: %w", i, err)
		}
		m.rings[i] = r

		coreID := -1
		if len(cfg.CoreIDs) == cfg.RingCount {
			coreID = cfg.CoreIDs[i]
		}
		m.workers[i] = worker.New(worker.Config{
			ID:        i,
			CoreID:    coreID,
			Ring:      r,
			Pool:      pool,
			RuleTable: cfg.RuleTable,
			ArpTable:  m.arpTable,
			NdpTable:  m.ndpTable,
			TxSink:    cfg.Sink,
			TxMAC:     cfg.TxMAC,
			Reporter:  m.reporter,
			BurstSize: cfg.WorkerBurst,
			IdleSleep: time.Microsecond,
		}, &m.stop)
	}
	return m, nil
}

// Pool, RuleTable, ArpTable, NdpTable, Workers expose the Manager's
// wired components for the observability and CLI surfaces — both are
// read-only consumers of state the dataplane itself owns.
func (m *Manager) Pool() *bufferpool.Pool          { return m.pool }
func (m *Manager) RuleTable() *ruletable.RuleTable { return m.cfg.RuleTable }
func (m *Manager) ArpTable() *neighbor.Table       { return m.arpTable }
func (m *Manager) NdpTable() *neighbor.Table       { return m.ndpTable }
func (m *Manager) Workers() []*worker.Worker       { return m.workers }

// EventBuffer exposes the ring buffer of recent disposition events for
// the observability and CLI surfaces to read or subscribe to.
func (m *Manager) EventBuffer() *logging.EventBuffer { return m.eventBuffer }

// Reporter exposes the event reporter so callers can attach syslog
// clients, local log writers, or callbacks before Run starts.
func (m *Manager) Reporter() *logging.Reporter { return m.reporter }

// Run starts every worker and the ingress loop, blocking until Stop is
// called and all goroutines have drained.
func (m *Manager) Run() {
	go m.reporter.Run(m.reporterCtx)

	var wg sync.WaitGroup
	for _, w := range m.workers {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run()
		}()
	}
	m.ingressLoop()
	wg.Wait()
	m.reporterCancel()
	close(m.done)
}

// Stop signals every worker and the ingress loop to drain and exit.
// It does not block; call Wait to block until shutdown completes.
func (m *Manager) Stop() {
	m.stop.Store(true)
}

// Wait blocks until Run has returned.
func (m *Manager) Wait() {
	<-m.done
}
