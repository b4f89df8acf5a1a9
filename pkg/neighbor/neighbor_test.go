package neighbor

import "testing"

func ipv4(a, b, c, d byte) [16]byte {
	var ip [16]byte
	ip[0], ip[1], ip[2], ip[3] = a, b, c, d
	return ip
}

func TestUpdateLookupRoundTrip(t *testing.T) {
	tbl := New(8)
	ip := ipv4(10, 128, 0, 2)
	mac := MAC{0xaa, 0, 0, 0, 0, 0xbb}

	tbl.Update(ip, mac)
	got, ok := tbl.Lookup(ip)
	if !ok {
		t.Fatal("expected lookup to succeed after update")
	}
	if got != mac {
		t.Fatalf("got mac %v, want %v", got, mac)
	}
}

func TestLookupUnknownReturnsFalse(t *testing.T) {
	tbl := New(8)
	if _, ok := tbl.Lookup(ipv4(1, 2, 3, 4)); ok {
		t.Fatal("expected lookup of unknown ip to fail")
	}
}

func TestUpdateOverwritesExistingEntry(t *testing.T) {
	tbl := New(8)
	ip := ipv4(10, 0, 0, 1)
	tbl.Update(ip, MAC{1, 1, 1, 1, 1, 1})
	tbl.Update(ip, MAC{2, 2, 2, 2, 2, 2})

	got, ok := tbl.Lookup(ip)
	if !ok {
		t.Fatal("expected lookup to succeed")
	}
	if got != (MAC{2, 2, 2, 2, 2, 2}) {
		t.Fatalf("expected latest mac to win, got %v", got)
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected overwrite not to grow entry count, got %d", tbl.Len())
	}
}

func TestTableFullDropsNewEntriesSilently(t *testing.T) {
	tbl := New(2) // backing array of 4 slots
	for i := 0; i < 4; i++ {
		tbl.Update(ipv4(192, 168, 0, byte(i)), MAC{byte(i), 0, 0, 0, 0, 0})
	}
	before := tbl.Len()

	// Table is now full (or nearly); further distinct inserts must not
	// panic and must not silently corrupt existing entries.
	tbl.Update(ipv4(192, 168, 1, 99), MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})

	got, ok := tbl.Lookup(ipv4(192, 168, 0, 0))
	if !ok || got != (MAC{0, 0, 0, 0, 0, 0}) {
		t.Fatal("expected earlier entries to survive an insert into a full table")
	}
	if tbl.Len() < before {
		t.Fatal("entry count must never decrease")
	}
}

func TestLastHitCacheHitsBeforeTable(t *testing.T) {
	tbl := New(8)
	ip := ipv4(10, 0, 0, 5)
	mac := MAC{9, 9, 9, 9, 9, 9}
	tbl.Update(ip, mac)

	var cache LastHitCache
	got, ok := cache.Lookup(tbl, ip)
	if !ok || got != mac {
		t.Fatal("expected first lookup to populate cache from table")
	}

	// Overwrite the table's entry for ip; the cache answers from its own
	// slot before consulting the table, so the original MAC comes back.
	tbl.Update(ip, MAC{1, 1, 1, 1, 1, 1})
	got2, ok2 := cache.Lookup(tbl, ip)
	if !ok2 || got2 != mac {
		t.Fatal("expected cached lookup to return the same result")
	}
}

func TestLastHitCacheMissFallsThroughToTable(t *testing.T) {
	tbl := New(8)
	var cache LastHitCache
	if _, ok := cache.Lookup(tbl, ipv4(1, 1, 1, 1)); ok {
		t.Fatal("expected miss on empty table")
	}
}

func TestIPv6AddressRoundTrip(t *testing.T) {
	tbl := New(8)
	var ip [16]byte
	copy(ip[:], []byte{0xfe, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1})
	mac := MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

	tbl.Update(ip, mac)
	got, ok := tbl.Lookup(ip)
	if !ok || got != mac {
		t.Fatal("expected 16-byte IPv6 key to round-trip")
	}
}
