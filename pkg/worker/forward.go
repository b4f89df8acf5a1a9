package worker

import (
	"github.com/upe-project/upe/pkg/checksum"
	"github.com/upe-project/upe/pkg/neighbor"
)

const (
	ethHeaderLen    = 14
	etherTypeOffset = 12
	etherTypeIPv4   = 0x0800
	etherTypeIPv6   = 0x86DD
	etherTypeARP    = 0x0806

	ipv4MinHeaderLen = 20
	ipv6HeaderLen    = 40

	protoICMPv6 = 58
)

func etherType(frame []byte) uint16 {
	return be16(frame, etherTypeOffset)
}

// rewriteEthernet overwrites the frame's destination MAC with dst and
// its source MAC with the worker's own transmit-interface MAC.
func rewriteEthernet(frame []byte, dst neighbor.MAC, txMAC neighbor.MAC) {
	copy(frame[0:6], dst[:])
	copy(frame[6:12], txMAC[:])
}

// forwardResult is the outcome of attempting to rewrite and forward a
// frame at L3. ok is false when the frame must be dropped (TTL/hop
// limit expired) rather than sent.
type forwardResult struct {
	ok bool
}

// forwardIPv4 decrements TTL, recomputes the header checksum, and
// rewrites the destination MAC if one is known. It reports ok=false
// if TTL was already at or below 1, in which case the frame must be
// dropped without being sent.
func forwardIPv4(frame []byte, arp *neighbor.Table, arpCache *neighbor.LastHitCache, txMAC neighbor.MAC) forwardResult {
	ip := frame[ethHeaderLen:]
	ihl := int(ip[0]&0x0F) * 4
	ttl := ip[8]
	if ttl <= 1 {
		return forwardResult{ok: false}
	}
	ip[8] = ttl - 1

	ip[10], ip[11] = 0, 0
	sum := checksum.Compute(ip[:ihl])
	ip[10] = byte(sum >> 8)
	ip[11] = byte(sum)

	var dstIP [16]byte
	copy(dstIP[:4], ip[16:20])
	if mac, ok := arpCache.Lookup(arp, dstIP); ok {
		rewriteEthernet(frame, mac, txMAC)
	}
	// No MAC available: send unchanged, transparent bridging.
	return forwardResult{ok: true}
}

// forwardIPv6 decrements the hop limit and rewrites the destination
// MAC if one is known via NDP. It reports ok=false if the hop limit
// was already at or below 1.
func forwardIPv6(frame []byte, ndp *neighbor.Table, ndpCache *neighbor.LastHitCache, txMAC neighbor.MAC) forwardResult {
	ip := frame[ethHeaderLen:]
	hopLimit := ip[7]
	if hopLimit <= 1 {
		return forwardResult{ok: false}
	}
	ip[7] = hopLimit - 1

	var dstIP [16]byte
	copy(dstIP[:], ip[24:40])
	if mac, ok := ndpCache.Lookup(ndp, dstIP); ok {
		rewriteEthernet(frame, mac, txMAC)
	}
	return forwardResult{ok: true}
}
