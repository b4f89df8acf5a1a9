// Package ruletable implements the priority-ordered, wildcard 5-tuple
// match table workers consult for every classified packet. The table
// is built once at startup and read concurrently by every worker
// thereafter; nothing in this package synchronizes reads against each
// other, only Add against itself.
package ruletable

import (
	"sort"
	"sync"

	"github.com/upe-project/upe/pkg/parser"
)

// Action is what a matched rule tells the worker to do with the
// packet.
type Action int

const (
	ActionDrop Action = iota
	ActionForward
)

// Rule is one entry in a RuleTable. A Mask of all zeros on an address
// field means that field is a wildcard; the zero values of SrcPort,
// DstPort, Protocol, and IPVer are themselves wildcards (there is no
// way to match "port 0" explicitly).
type Rule struct {
	Priority uint32 // lower value = higher priority
	IPVer    uint8  // 0 = any, else 4 or 6

	SrcAddr [16]byte
	SrcMask [16]byte
	DstAddr [16]byte
	DstMask [16]byte

	SrcPort  uint16 // 0 = any
	DstPort  uint16 // 0 = any
	Protocol uint8  // 0 = any

	Action     Action
	OutIfindex int // meaningful only when Action == ActionForward

	// RuleID is the insertion ordinal, assigned by Add. It breaks ties
	// between rules sharing a Priority, and is not meant to be set by
	// callers.
	RuleID uint32
}

// normalize zeroes an address field wherever its mask is zero, so a
// rule built with a stray nonzero address under a wildcard mask still
// compares as a true wildcard.
func (r *Rule) normalize() {
	for i := range r.SrcMask {
		if r.SrcMask[i] == 0 {
			r.SrcAddr[i] = 0
		}
	}
	for i := range r.DstMask {
		if r.DstMask[i] == 0 {
			r.DstAddr[i] = 0
		}
	}
}

func (r *Rule) matches(key parser.FlowKey) bool {
	if r.IPVer != 0 && r.IPVer != key.IPVer {
		return false
	}
	if r.Protocol != 0 && r.Protocol != key.Protocol {
		return false
	}
	if r.SrcPort != 0 && r.SrcPort != key.SrcPort {
		return false
	}
	if r.DstPort != 0 && r.DstPort != key.DstPort {
		return false
	}
	for i := range r.SrcMask {
		if key.SrcAddr[i]&r.SrcMask[i] != r.SrcAddr[i]&r.SrcMask[i] {
			return false
		}
	}
	for i := range r.DstMask {
		if key.DstAddr[i]&r.DstMask[i] != r.DstAddr[i]&r.DstMask[i] {
			return false
		}
	}
	return true
}

// RuleTable is a slice of Rules kept sorted by (priority asc, rule_id
// asc). Add is the only mutator; it is meant to run during startup
// loading, before any worker begins reading the table.
type RuleTable struct {
	mu     sync.Mutex // guards Add only; Match never takes it
	rules  []Rule
	nextID uint32
}

// New returns an empty table.
func New() *RuleTable {
	return &RuleTable{}
}

// Add appends rule to the table, assigning it the next insertion
// ordinal as RuleID, normalizing wildcard address fields, and
// re-sorting the table by (priority asc, rule_id asc). Amortized cost
// is not a concern: rules are loaded once at startup, never under
// packet-rate pressure.
func (t *RuleTable) Add(rule Rule) Rule {
	t.mu.Lock()
	defer t.mu.Unlock()

	rule.RuleID = t.nextID
	t.nextID++
	rule.normalize()
	t.rules = append(t.rules, rule)

	sort.SliceStable(t.rules, func(i, j int) bool {
		if t.rules[i].Priority != t.rules[j].Priority {
			return t.rules[i].Priority < t.rules[j].Priority
		}
		return t.rules[i].RuleID < t.rules[j].RuleID
	})
	return rule
}

// Len returns the number of rules currently loaded.
func (t *RuleTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rules)
}

// Match returns the first rule (in priority order) whose predicates
// all match key, and true. It returns the zero Rule and false if no
// rule matches. Match performs a linear scan and takes no lock: it is
// safe to call concurrently with other Match calls, but only once the
// table has finished loading — it is not safe to call concurrently
// with Add.
func (t *RuleTable) Match(key parser.FlowKey) (Rule, bool) {
	for i := range t.rules {
		if t.rules[i].matches(key) {
			return t.rules[i], true
		}
	}
	return Rule{}, false
}

// Rules returns a copy of the table's current contents in match
// order, for inspection (CLI, HTTP status) rather than hot-path use.
func (t *RuleTable) Rules() []Rule {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}
