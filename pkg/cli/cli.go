// Package cli implements upe's embedded interactive console: a
// Junos-flavored, strictly read-only "show" shell over a running
// dataplane.Manager. There is no configuration mode, because the rule
// table is immutable once the daemon has loaded it — reconfiguration
// means editing the rule file and restarting the daemon.
//
// The console is reachable two ways: attached directly to the
// daemon's stdio via Run, or served to any number of concurrent
// readline clients over a Unix-domain socket via Serve (see socket.go).
package cli

import (
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/upe-project/upe/pkg/dataplane"
	"github.com/upe-project/upe/pkg/logging"
	"github.com/upe-project/upe/pkg/neighbor"
	"github.com/upe-project/upe/pkg/ruletable"
	"github.com/upe-project/upe/pkg/worker"
)

// CLI is one interactive session. A session is created per connection
// when served over a socket, or once for a direct stdio attach.
type CLI struct {
	rl        *readline.Instance
	dp        *dataplane.Manager
	hostname  string
	username  string
	startTime time.Time
	stdin     io.ReadCloser
	out       io.Writer
	errOut    io.Writer
}

// New creates a new CLI bound to a running Manager, attached to stdio.
func New(dp *dataplane.Manager) *CLI {
	return newSession(dp, os.Stdin, os.Stdout, os.Stderr, time.Now())
}

func newSession(dp *dataplane.Manager, in io.ReadCloser, out, errOut io.Writer, startTime time.Time) *CLI {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "upe"
	}
	username := os.Getenv("USER")
	if username == "" {
		username = "root"
	}

	return &CLI{
		dp:        dp,
		hostname:  hostname,
		username:  username,
		startTime: startTime,
		stdin:     in,
		out:       out,
		errOut:    errOut,
	}
}

// Run starts the interactive CLI loop on the session's configured
// streams. It blocks until the user quits or the input stream reaches
// EOF.
func (c *CLI) Run() error {
	var err error
	c.rl, err = readline.NewEx(&readline.Config{
		Prompt:          c.prompt(),
		HistoryFile:     c.historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    &treeCompleter{mgr: c.dp},
		Listener:        readline.FuncListener(c.helpListener),
		Stdin:           c.stdin,
		Stdout:          c.out,
		Stderr:          c.errOut,
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer c.rl.Close()

	fmt.Fprintln(c.out, "upe - userspace packet engine")
	fmt.Fprintln(c.out, "Type '?' for help")
	fmt.Fprintln(c.out)

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				break
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := c.dispatch(line); err != nil {
			if err == errExit {
				return nil
			}
			fmt.Fprintf(c.errOut, "error: %v\n", err)
		}
	}
	return nil
}

func (c *CLI) historyFile() string {
	// A shared history file only makes sense for the single stdio
	// session; socket-served sessions skip it rather than race each
	// other over the same file.
	if _, ok := c.stdin.(*os.File); ok {
		return "/tmp/upe_cli_history"
	}
	return ""
}

var errExit = fmt.Errorf("exit")

func (c *CLI) dispatch(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "show":
		return c.handleShow(parts[1:])

	case "clear":
		return c.handleClear(parts[1:])

	case "quit", "exit":
		return errExit

	case "?", "help":
		c.showHelp()
		return nil

	default:
		return fmt.Errorf("unknown command: %s", parts[0])
	}
}

func (c *CLI) handleShow(args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "show: specify what to show")
		fmt.Fprintln(c.out, "  rule-table           Show the compiled rule table")
		fmt.Fprintln(c.out, "  neighbors arp|ndp    Show learned neighbor mappings")
		fmt.Fprintln(c.out, "  counters [worker N]  Show packet counters")
		fmt.Fprintln(c.out, "  pool                 Show buffer pool utilization")
		fmt.Fprintln(c.out, "  events [n]           Show recent disposition events")
		fmt.Fprintln(c.out, "  version              Show daemon version and uptime")
		return nil
	}

	switch args[0] {
	case "rule-table":
		return c.showRuleTable()
	case "neighbors":
		return c.showNeighbors(args[1:])
	case "counters":
		return c.showCounters(args[1:])
	case "pool":
		return c.showPool()
	case "events":
		return c.showEvents(args[1:])
	case "version":
		return c.showVersion()
	default:
		return fmt.Errorf("unknown show target: %s", args[0])
	}
}

func (c *CLI) showRuleTable() error {
	if c.dp == nil {
		fmt.Fprintln(c.out, "dataplane not running")
		return nil
	}
	rt := c.dp.RuleTable()
	if rt == nil {
		fmt.Fprintln(c.out, "no rule table loaded")
		return nil
	}

	statsByRule := aggregateRuleStats(c.dp)

	rules := rt.Rules()
	fmt.Fprintf(c.out, "%-6s %-8s %-4s %-22s %-22s %-6s %-6s %-5s %-8s %12s %14s\n",
		"ID", "PRIO", "VER", "SRC", "DST", "SPORT", "DPORT", "PROTO", "ACTION", "PACKETS", "BYTES")
	for _, r := range rules {
		stat := statsByRule[r.RuleID]
		fmt.Fprintf(c.out, "%-6d %-8d %-4s %-22s %-22s %-6s %-6s %-5s %-8s %12d %14d\n",
			r.RuleID, r.Priority, ipVerString(r.IPVer),
			addrMaskString(r.IPVer, r.SrcAddr, r.SrcMask),
			addrMaskString(r.IPVer, r.DstAddr, r.DstMask),
			portString(r.SrcPort), portString(r.DstPort),
			protoString(r.Protocol), actionString(r.Action),
			stat.Packets, stat.Bytes)
	}
	fmt.Fprintf(c.out, "\n%d rules\n", len(rules))
	return nil
}

type ruleStat struct {
	Packets uint64
	Bytes   uint64
}

func aggregateRuleStats(dp *dataplane.Manager) map[uint32]ruleStat {
	out := make(map[uint32]ruleStat)
	for _, w := range dp.Workers() {
		for id, s := range w.RuleStats() {
			acc := out[id]
			acc.Packets += s.Packets
			acc.Bytes += s.Bytes
			out[id] = acc
		}
	}
	return out
}

func (c *CLI) showNeighbors(args []string) error {
	if c.dp == nil {
		fmt.Fprintln(c.out, "dataplane not running")
		return nil
	}
	if len(args) == 0 {
		fmt.Fprintln(c.out, "show neighbors: specify arp or ndp")
		return nil
	}

	var table *neighbor.Table
	ipv6 := false
	switch args[0] {
	case "arp":
		table = c.dp.ArpTable()
	case "ndp":
		table = c.dp.NdpTable()
		ipv6 = true
	default:
		return fmt.Errorf("unknown neighbor table: %s", args[0])
	}
	if table == nil {
		fmt.Fprintln(c.out, "neighbor table not available")
		return nil
	}

	entries := table.Entries()
	sort.Slice(entries, func(i, j int) bool {
		return neighborIPString(entries[i], ipv6) < neighborIPString(entries[j], ipv6)
	})
	fmt.Fprintf(c.out, "%-40s %s\n", "IP ADDRESS", "MAC ADDRESS")
	for _, e := range entries {
		fmt.Fprintf(c.out, "%-40s %s\n", neighborIPString(e, ipv6), macString(e.MAC))
	}
	fmt.Fprintf(c.out, "\n%d entries\n", len(entries))
	return nil
}

func (c *CLI) showCounters(args []string) error {
	if c.dp == nil {
		fmt.Fprintln(c.out, "dataplane not running")
		return nil
	}
	workers := c.dp.Workers()

	if len(args) >= 2 && args[0] == "worker" {
		id, err := parseWorkerID(args[1])
		if err != nil {
			return err
		}
		if id < 0 || id >= len(workers) {
			return fmt.Errorf("no such worker: %d", id)
		}
		printWorkerCounters(c.out, id, workers[id].Counters())
		return nil
	}

	for i, w := range workers {
		printWorkerCounters(c.out, i, w.Counters())
	}
	return nil
}

func printWorkerCounters(w io.Writer, id int, c worker.Counters) {
	fmt.Fprintf(w, "Worker %d:\n", id)
	fmt.Fprintf(w, "  Packets in: %d\n", c.PktsIn)
	fmt.Fprintf(w, "  Parsed:     %d\n", c.Parsed)
	fmt.Fprintf(w, "  Matched:    %d\n", c.Matched)
	fmt.Fprintf(w, "  Forwarded:  %d\n", c.Forwarded)
	fmt.Fprintf(w, "  Dropped:    %d\n", c.Dropped)
}

func (c *CLI) showPool() error {
	if c.dp == nil {
		fmt.Fprintln(c.out, "dataplane not running")
		return nil
	}
	pool := c.dp.Pool()
	if pool == nil {
		fmt.Fprintln(c.out, "buffer pool not available")
		return nil
	}
	fmt.Fprintf(c.out, "Backing:   %s\n", pool.Backing())
	fmt.Fprintf(c.out, "Capacity:  %d buffers\n", pool.Capacity())
	fmt.Fprintf(c.out, "Available: %d buffers\n", pool.Available())
	return nil
}

func (c *CLI) showEvents(args []string) error {
	if c.dp == nil {
		fmt.Fprintln(c.out, "dataplane not running")
		return nil
	}
	buf := c.dp.EventBuffer()
	if buf == nil {
		fmt.Fprintln(c.out, "event buffer not available")
		return nil
	}

	n := 20
	if len(args) > 0 {
		parsed, err := parseWorkerID(args[0])
		if err != nil {
			return err
		}
		n = parsed
	}

	records := buf.Latest(n)
	for _, rec := range records {
		printEventRecord(c.out, rec)
	}
	fmt.Fprintf(c.out, "\n%d events (reporter dropped %d)\n", len(records), c.dp.Reporter().Dropped())
	return nil
}

func printEventRecord(w io.Writer, rec logging.EventRecord) {
	fmt.Fprintf(w, "%s worker=%d type=%-8s rule=%d action=%-7s %s -> %s proto=%s bytes=%d\n",
		rec.Time.Format(time.RFC3339), rec.WorkerID, rec.Type, rec.RuleID, rec.Action,
		rec.SrcAddr, rec.DstAddr, rec.Protocol, rec.Bytes)
}

func (c *CLI) showVersion() error {
	fmt.Fprintln(c.out, "upe userspace packet engine")
	fmt.Fprintf(c.out, "Uptime: %s\n", time.Since(c.startTime).Round(time.Second))
	return nil
}

func (c *CLI) handleClear(args []string) error {
	if len(args) < 1 || args[0] != "counters" {
		fmt.Fprintln(c.out, "clear:")
		fmt.Fprintln(c.out, "  counters    Not supported; counters reset only on daemon restart")
		return nil
	}
	fmt.Fprintln(c.out, "clear counters is not supported: counters are accumulated in-process "+
		"and reset only on daemon restart")
	return nil
}

func (c *CLI) prompt() string {
	return fmt.Sprintf("%s@%s> ", c.username, c.hostname)
}

func (c *CLI) showHelp() {
	fmt.Fprintln(c.out, "Commands:")
	fmt.Fprintln(c.out, "  show rule-table              Show the compiled rule table and hit counts")
	fmt.Fprintln(c.out, "  show neighbors arp|ndp       Show learned neighbor mappings")
	fmt.Fprintln(c.out, "  show counters [worker N]     Show packet counters")
	fmt.Fprintln(c.out, "  show pool                    Show buffer pool utilization")
	fmt.Fprintln(c.out, "  show events [n]              Show recent disposition events")
	fmt.Fprintln(c.out, "  show version                 Show daemon version and uptime")
	fmt.Fprintln(c.out, "  quit                         Exit the shell")
}

func ipVerString(v uint8) string {
	switch v {
	case 4:
		return "4"
	case 6:
		return "6"
	default:
		return "any"
	}
}

func protoString(p uint8) string {
	switch p {
	case 0:
		return "any"
	case 6:
		return "tcp"
	case 17:
		return "udp"
	case 1:
		return "icmp"
	case 58:
		return "icmp6"
	default:
		return fmt.Sprintf("%d", p)
	}
}

func portString(p uint16) string {
	if p == 0 {
		return "any"
	}
	return fmt.Sprintf("%d", p)
}

func actionString(a ruletable.Action) string {
	if a == ruletable.ActionForward {
		return "forward"
	}
	return "drop"
}

// addrMaskString renders a rule's address/mask pair as a CIDR, or
// "any" when the mask is all zero (a wildcard).
func addrMaskString(ipVer uint8, addr, mask [16]byte) string {
	n := 4
	if ipVer == 6 {
		n = 16
	}
	ones := 0
	wildcard := true
	for i := 0; i < n; i++ {
		if mask[i] != 0 {
			wildcard = false
		}
		b := mask[i]
		for b != 0 {
			ones += int(b & 1)
			b >>= 1
		}
	}
	if wildcard {
		return "any"
	}
	ip := net.IP(addr[:n])
	return fmt.Sprintf("%s/%d", ip, ones)
}

func neighborIPString(e neighbor.Entry, ipv6 bool) string {
	if ipv6 {
		return net.IP(e.IP[:16]).String()
	}
	return net.IP(e.IP[:4]).String()
}

func macString(m neighbor.MAC) string {
	return net.HardwareAddr(m[:]).String()
}
