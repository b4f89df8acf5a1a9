package api

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/upe-project/upe/pkg/ruletable"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Success: false, Error: msg})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Uptime: time.Since(s.startTime).Truncate(time.Second).String(),
	}
	if s.mgr != nil {
		resp.WorkerCount = len(s.mgr.Workers())
		if rt := s.mgr.RuleTable(); rt != nil {
			resp.RuleCount = rt.Len()
		}
		if t := s.mgr.ArpTable(); t != nil {
			resp.ArpEntries = t.Len()
		}
		if t := s.mgr.NdpTable(); t != nil {
			resp.NdpEntries = t.Len()
		}
	}
	writeOK(w, resp)
}

func (s *Server) statsHandler(w http.ResponseWriter, _ *http.Request) {
	if s.mgr == nil {
		writeError(w, http.StatusServiceUnavailable, "dataplane not running")
		return
	}

	var global GlobalStats
	for _, wk := range s.mgr.Workers() {
		c := wk.Counters()
		ws := WorkerStats{
			PktsIn:    c.PktsIn,
			Parsed:    c.Parsed,
			Matched:   c.Matched,
			Forwarded: c.Forwarded,
			Dropped:   c.Dropped,
		}
		global.PktsIn += c.PktsIn
		global.Parsed += c.Parsed
		global.Matched += c.Matched
		global.Forwarded += c.Forwarded
		global.Dropped += c.Dropped
		global.Workers = append(global.Workers, ws)
	}
	for i := range global.Workers {
		global.Workers[i].ID = i
	}
	writeOK(w, global)
}

func (s *Server) rulesHandler(w http.ResponseWriter, _ *http.Request) {
	if s.mgr == nil || s.mgr.RuleTable() == nil {
		writeError(w, http.StatusServiceUnavailable, "rule table not loaded")
		return
	}

	ruleStats := map[uint32]ruletableStatSnapshot{}
	for _, wk := range s.mgr.Workers() {
		for id, stat := range wk.RuleStats() {
			acc := ruleStats[id]
			acc.packets += stat.Packets
			acc.bytes += stat.Bytes
			ruleStats[id] = acc
		}
	}

	var out []RuleInfo
	for _, rule := range s.mgr.RuleTable().Rules() {
		info := RuleInfo{
			RuleID:     rule.RuleID,
			Priority:   rule.Priority,
			IPVer:      rule.IPVer,
			SrcPort:    rule.SrcPort,
			DstPort:    rule.DstPort,
			Protocol:   rule.Protocol,
			OutIfindex: rule.OutIfindex,
		}
		if rule.Action == ruletable.ActionForward {
			info.Action = "forward"
		} else {
			info.Action = "drop"
		}
		if rule.SrcAddr != [16]byte{} {
			info.SrcAddr = ruleAddrString(rule.IPVer, rule.SrcAddr)
		}
		if rule.DstAddr != [16]byte{} {
			info.DstAddr = ruleAddrString(rule.IPVer, rule.DstAddr)
		}
		if acc, ok := ruleStats[rule.RuleID]; ok {
			info.Packets = acc.packets
			info.Bytes = acc.bytes
		}
		out = append(out, info)
	}
	writeOK(w, out)
}

type ruletableStatSnapshot struct {
	packets uint64
	bytes   uint64
}

func ruleAddrString(ipVer uint8, addr [16]byte) string {
	if ipVer == 6 {
		return net.IP(addr[:16]).String()
	}
	return net.IP(addr[:4]).String()
}

func (s *Server) neighborsHandler(w http.ResponseWriter, r *http.Request) {
	if s.mgr == nil {
		writeError(w, http.StatusServiceUnavailable, "dataplane not running")
		return
	}

	table := s.mgr.ArpTable()
	ipVer := uint8(4)
	if r.URL.Query().Get("table") == "ndp" {
		table = s.mgr.NdpTable()
		ipVer = 6
	}
	if table == nil {
		writeOK(w, []NeighborInfo{})
		return
	}

	var out []NeighborInfo
	for _, e := range table.Entries() {
		out = append(out, NeighborInfo{
			IP:  ruleAddrString(ipVer, e.IP),
			MAC: net.HardwareAddr(e.MAC[:]).String(),
		})
	}
	writeOK(w, out)
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	buf := s.eventBuf()
	if buf == nil {
		writeError(w, http.StatusServiceUnavailable, "event buffer not available")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	recs := buf.Latest(limit)
	out := make([]EventEntry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, eventEntryFromRecord(rec))
	}
	writeOK(w, out)
}
