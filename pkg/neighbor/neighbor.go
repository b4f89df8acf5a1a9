// Package neighbor implements the open-addressed IP→MAC tables
// workers consult and populate by passive learning off ARP replies
// and ICMPv6 neighbor discovery. One Table instance serves either
// IPv4 (ARP) or IPv6 (NDP) addresses, distinguished only by how many
// bytes of the fixed 16-byte key callers fill in; the table itself
// does not interpret address length.
//
// Entries never expire: overwriting is the only mutation, and once
// the table's fixed-size backing array fills, further Update calls
// silently fail. This matches a real ARP/NDP cache's threat model
// poorly — nothing here defends against a sender flooding the
// table — but that is a deliberate scope boundary, not an oversight.
package neighbor

import "sync"

// MAC is a 6-byte Ethernet hardware address.
type MAC [6]byte

// entry is a single slot in the open-addressed table.
type entry struct {
	ip    [16]byte
	mac   MAC
	valid bool
}

// Table is a fixed-capacity, open-addressed hash table with linear
// probing, guarded by a reader/writer lock. Size is set at
// construction and never grows.
type Table struct {
	mu      sync.RWMutex
	entries []entry
	count   int
}

// New returns a table sized to hold up to capacity entries before
// further inserts start silently failing. capacity is rounded up
// internally to keep the load factor reasonable under linear probing.
func New(capacity int) *Table {
	if capacity <= 0 {
		capacity = 1
	}
	size := capacity * 2 // keep load factor <= 50% for reasonable probe lengths
	return &Table{entries: make([]entry, size)}
}

func hashIP(ip [16]byte) uint64 {
	var h uint64 = 14695981039346656037 // FNV-1a offset basis
	for _, b := range ip {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return h
}

// Update records that ip is reachable at mac, overwriting any prior
// entry for the same ip. If the table is full and ip is not already
// present, the update is silently dropped.
func (t *Table) Update(ip [16]byte, mac MAC) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.entries)
	start := int(hashIP(ip) % uint64(n))
	firstFree := -1

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		e := &t.entries[idx]
		if !e.valid {
			if firstFree == -1 {
				firstFree = idx
			}
			// Linear probing over a table that is never deleted from:
			// once we hit an empty slot, ip cannot be present further
			// along the probe chain.
			break
		}
		if e.ip == ip {
			e.mac = mac
			return
		}
	}

	if firstFree == -1 {
		return // table full, learning is best-effort
	}
	t.entries[firstFree] = entry{ip: ip, mac: mac, valid: true}
	t.count++
}

// Lookup returns the MAC last recorded for ip, and true, or the zero
// MAC and false if ip has never been learned.
func (t *Table) Lookup(ip [16]byte) (MAC, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := len(t.entries)
	start := int(hashIP(ip) % uint64(n))
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		e := &t.entries[idx]
		if !e.valid {
			return MAC{}, false
		}
		if e.ip == ip {
			return e.mac, true
		}
	}
	return MAC{}, false
}

// Len returns the number of entries currently learned.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Entry is a single learned IP-to-MAC mapping, returned by Entries.
type Entry struct {
	IP  [16]byte
	MAC MAC
}

// Entries returns a snapshot of every currently learned mapping, in no
// particular order.
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, t.count)
	for _, e := range t.entries {
		if e.valid {
			out = append(out, Entry{IP: e.ip, MAC: e.mac})
		}
	}
	return out
}

// LastHitCache is a single-entry, per-worker cache of the most
// recently used neighbor lookup, checked before falling through to
// the shared Table. It is not safe for concurrent use; each worker
// owns its own instance.
type LastHitCache struct {
	ip    [16]byte
	mac   MAC
	valid bool
}

// Lookup checks the cached entry first, falling back to table and
// updating the cache on a table hit.
func (c *LastHitCache) Lookup(table *Table, ip [16]byte) (MAC, bool) {
	if c.valid && c.ip == ip {
		return c.mac, true
	}
	mac, ok := table.Lookup(ip)
	if ok {
		c.ip, c.mac, c.valid = ip, mac, true
	}
	return mac, ok
}
