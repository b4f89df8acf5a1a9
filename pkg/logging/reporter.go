// Package logging fans out dataplane disposition events — forwards,
// drops, and neighbor learns — to an in-memory ring buffer, syslog,
// local log files, and structured log lines, without ever blocking the
// worker goroutine that produced the event.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Event category bits, used by SyslogClient/LocalLogWriter filters.
const (
	CategoryForward uint8 = 1 << iota
	CategoryDrop
	CategoryLearn
	CategoryAll = CategoryForward | CategoryDrop | CategoryLearn
)

// EventCallback is invoked for every reported event.
type EventCallback func(rec EventRecord)

// Reporter is the single point workers call into to report a
// disposition. Report never blocks: a full queue drops the event
// rather than stall the worker that's forwarding packets.
type Reporter struct {
	queue chan EventRecord

	buffer *EventBuffer

	syslogMu      sync.RWMutex
	syslogClients []*SyslogClient
	localMu       sync.RWMutex
	localWriters  []*LocalLogWriter
	callbackMu    sync.RWMutex
	callbacks     []EventCallback

	dropped uint64
}

// NewReporter creates a Reporter backed by buffer, with an internal
// queue of depth cap.
func NewReporter(buffer *EventBuffer, cap int) *Reporter {
	if cap <= 0 {
		cap = 4096
	}
	return &Reporter{
		queue:  make(chan EventRecord, cap),
		buffer: buffer,
	}
}

// Report enqueues rec for processing. If the queue is full, the event
// is dropped and counted rather than applying backpressure to the
// caller.
func (r *Reporter) Report(rec EventRecord) {
	select {
	case r.queue <- rec:
	default:
		r.dropped++
	}
}

// Dropped returns the number of events discarded due to a full queue.
func (r *Reporter) Dropped() uint64 {
	return r.dropped
}

// AddCallback registers a callback invoked for every processed event.
func (r *Reporter) AddCallback(cb EventCallback) {
	r.callbackMu.Lock()
	r.callbacks = append(r.callbacks, cb)
	r.callbackMu.Unlock()
}

// SetSyslogClients replaces the set of syslog clients (goroutine-safe).
func (r *Reporter) SetSyslogClients(clients []*SyslogClient) {
	r.syslogMu.Lock()
	r.syslogClients = clients
	r.syslogMu.Unlock()
}

// ReplaceLocalWriters atomically swaps local writers and closes old ones.
func (r *Reporter) ReplaceLocalWriters(writers []*LocalLogWriter) {
	r.localMu.Lock()
	old := r.localWriters
	r.localWriters = writers
	r.localMu.Unlock()
	for _, w := range old {
		w.Close()
	}
}

// ReplaceSyslogClients atomically swaps syslog clients and closes old ones.
func (r *Reporter) ReplaceSyslogClients(clients []*SyslogClient) {
	r.syslogMu.Lock()
	old := r.syslogClients
	r.syslogClients = clients
	r.syslogMu.Unlock()
	for _, c := range old {
		c.Close()
	}
}

// Run drains the report queue until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	slog.Info("event reporter started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("event reporter stopped")
			return
		case rec := <-r.queue:
			r.process(rec)
		}
	}
}

func (r *Reporter) process(rec EventRecord) {
	if r.buffer != nil {
		r.buffer.Add(rec)
	}

	r.callbackMu.RLock()
	cbs := r.callbacks
	r.callbackMu.RUnlock()
	for _, cb := range cbs {
		cb(rec)
	}

	slog.Debug("dataplane event",
		"type", rec.Type,
		"worker", rec.WorkerID,
		"src", rec.SrcAddr,
		"dst", rec.DstAddr,
		"proto", rec.Protocol,
		"action", rec.Action,
		"rule_id", rec.RuleID)

	severity := eventSeverity(rec)
	category := eventCategory(rec)
	msg := formatSyslogMsg(rec)

	r.syslogMu.RLock()
	clients := r.syslogClients
	r.syslogMu.RUnlock()
	for _, c := range clients {
		if c.ShouldSendEvent(severity, category) {
			if err := c.Send(severity, msg); err != nil {
				slog.Debug("syslog send failed", "err", err)
			}
		}
	}

	r.localMu.RLock()
	writers := r.localWriters
	r.localMu.RUnlock()
	for _, lw := range writers {
		if lw.ShouldSendEvent(severity, category) {
			if err := lw.Send(severity, msg); err != nil {
				slog.Debug("local log write failed", "err", err)
			}
		}
	}
}

func eventCategory(rec EventRecord) uint8 {
	switch rec.Type {
	case "FORWARD":
		return CategoryForward
	case "DROP":
		return CategoryDrop
	case "ARP_LEARN", "NDP_LEARN":
		return CategoryLearn
	default:
		return CategoryAll
	}
}

func eventSeverity(rec EventRecord) int {
	switch rec.Type {
	case "DROP":
		return SyslogWarning
	case "ARP_LEARN", "NDP_LEARN":
		return SyslogInfo
	default:
		return SyslogInfo
	}
}

// formatSyslogMsg formats an EventRecord as a syslog message body.
func formatSyslogMsg(rec EventRecord) string {
	switch rec.Type {
	case "ARP_LEARN", "NDP_LEARN":
		return fmt.Sprintf("%s addr=%s", rec.Type, rec.SrcAddr)
	case "DROP":
		return fmt.Sprintf("%s src=%s dst=%s proto=%s rule=%d matched=%t",
			rec.Type, rec.SrcAddr, rec.DstAddr, rec.Protocol, rec.RuleID, rec.Matched)
	default:
		return fmt.Sprintf("%s src=%s dst=%s proto=%s rule=%d bytes=%d",
			rec.Type, rec.SrcAddr, rec.DstAddr, rec.Protocol, rec.RuleID, rec.Bytes)
	}
}
