package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/upe-project/upe/pkg/logging"
)

// setSSEHeaders configures the response for Server-Sent Events streaming.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// writeSSEEvent writes a single SSE event to the response.
func writeSSEEvent(w http.ResponseWriter, id string, event string, data string) {
	fmt.Fprintf(w, "id: %s\n", id)
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// eventStreamHandler streams disposition and learn events via SSE.
// It reads no query parameters: every event is streamed unfiltered.
func (s *Server) eventStreamHandler(w http.ResponseWriter, r *http.Request) {
	buf := s.eventBuf()
	if buf == nil {
		writeError(w, http.StatusServiceUnavailable, "event buffer not available")
		return
	}

	setSSEHeaders(w)

	sub := buf.Subscribe(128)
	defer sub.Close()

	var seq uint64
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-sub.C:
			seq++
			data, err := json.Marshal(eventEntryFromRecord(rec))
			if err != nil {
				continue
			}
			writeSSEEvent(w, fmt.Sprintf("%d", seq), rec.Type, string(data))
		}
	}
}

// logStreamHandler streams events formatted as log lines via SSE.
// Supports a ?severity= filter (error, warning, info).
func (s *Server) logStreamHandler(w http.ResponseWriter, r *http.Request) {
	buf := s.eventBuf()
	if buf == nil {
		writeError(w, http.StatusServiceUnavailable, "event buffer not available")
		return
	}

	severityFilter := logging.ParseSeverity(r.URL.Query().Get("severity"))

	setSSEHeaders(w)

	sub := buf.Subscribe(128)
	defer sub.Close()

	var seq uint64
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-sub.C:
			severity := eventRecordSeverity(rec.Type)
			if severityFilter != 0 && severity > severityFilter {
				continue
			}
			seq++
			logEntry := LogStreamEntry{
				Time:     rec.Time.Format(time.RFC3339),
				Severity: severityName(severity),
				Message:  formatLogMessage(rec),
			}
			data, err := json.Marshal(logEntry)
			if err != nil {
				continue
			}
			writeSSEEvent(w, fmt.Sprintf("%d", seq), "log", string(data))
		}
	}
}

func eventEntryFromRecord(rec logging.EventRecord) EventEntry {
	return EventEntry{
		Time:     rec.Time.Format(time.RFC3339),
		Type:     rec.Type,
		WorkerID: rec.WorkerID,
		SrcAddr:  rec.SrcAddr,
		DstAddr:  rec.DstAddr,
		Protocol: rec.Protocol,
		RuleID:   rec.RuleID,
		Action:   rec.Action,
		Bytes:    rec.Bytes,
	}
}

// eventRecordSeverity maps event type names to syslog severity.
func eventRecordSeverity(eventType string) int {
	switch eventType {
	case "DROP":
		return logging.SyslogWarning
	default:
		return logging.SyslogInfo
	}
}

func severityName(s int) string {
	switch s {
	case logging.SyslogError:
		return "error"
	case logging.SyslogWarning:
		return "warning"
	default:
		return "info"
	}
}

func formatLogMessage(rec logging.EventRecord) string {
	return fmt.Sprintf("%s worker=%d src=%s dst=%s proto=%s rule=%d action=%s bytes=%d",
		rec.Type, rec.WorkerID, rec.SrcAddr, rec.DstAddr, rec.Protocol, rec.RuleID, rec.Action, rec.Bytes)
}
