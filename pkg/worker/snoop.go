package worker

import (
	"net"

	"github.com/upe-project/upe/pkg/neighbor"
)

const (
	arpHTypeEther = 1
	arpPTypeIPv4  = 0x0800
	arpHLenEther  = 6
	arpPLenIPv4   = 4
	arpHeaderLen  = 8 // htype, ptype, hlen, plen, oper

	arpEtherIPv4Len = arpHeaderLen + 2*arpHLenEther + 2*arpPLenIPv4

	icmpv6TypeNS = 135
	icmpv6TypeNA = 136

	ndpOptSourceLLAddr = 1
	ndpOptTargetLLAddr = 2
)

// snoopARP inspects an Ethernet+ARP frame and, if it is an Ethernet/
// IPv4 ARP packet, learns (sender-protocol-addr, sender-hardware-addr)
// into arp. It returns true if the frame was recognized as ARP (and
// therefore fully consumed, whether or not it was learnable), plus the
// sender address as a string whenever a mapping was handed to
// arp.Update (which drops a new entry when the table is full).
func snoopARP(frame []byte, arp *neighbor.Table) (consumed bool, learnedAddr string, learned bool) {
	if len(frame) < ethHeaderLen+arpEtherIPv4Len {
		return true, "", false // malformed ARP, still consumed
	}
	body := frame[ethHeaderLen:]
	htype := be16(body, 0)
	ptype := be16(body, 2)
	hlen := body[4]
	plen := body[5]
	if htype != arpHTypeEther || ptype != arpPTypeIPv4 || hlen != arpHLenEther || plen != arpPLenIPv4 {
		return true, "", false
	}

	sha := body[8:14]
	spa := body[14:18]

	var ip [16]byte
	copy(ip[:4], spa)
	var mac neighbor.MAC
	copy(mac[:], sha)
	arp.Update(ip, mac)
	return true, net.IP(spa).String(), true
}

// snoopNDP inspects an Ethernet+IPv6 frame whose next header is
// ICMPv6 NS (135) or NA (136), walks its options, and learns the
// advertised link-layer address into ndp. It returns true if the
// frame was recognized as NDP traffic worth consuming here, plus the
// learned address as a string whenever a mapping was handed to
// ndp.Update (which drops a new entry when the table is full).
func snoopNDP(frame []byte, ndp *neighbor.Table) (consumed bool, learnedAddr string, learned bool) {
	if len(frame) < ethHeaderLen+ipv6HeaderLen {
		return false, "", false
	}
	ip := frame[ethHeaderLen : ethHeaderLen+ipv6HeaderLen]
	if ip[0]>>4 != 6 || ip[6] != protoICMPv6 {
		return false, "", false
	}
	icmp := frame[ethHeaderLen+ipv6HeaderLen:]
	if len(icmp) < 24 { // type,code,checksum,reserved/flags(4),target(16)
		return false, "", false
	}
	typ := icmp[0]
	if typ != icmpv6TypeNS && typ != icmpv6TypeNA {
		return false, "", false
	}

	target := icmp[8:24]
	options := icmp[24:]

	switch typ {
	case icmpv6TypeNS:
		srcIP := ip[8:24]
		if mac, ok := findLLOption(options, ndpOptSourceLLAddr); ok {
			var key [16]byte
			copy(key[:], srcIP)
			ndp.Update(key, mac)
			return true, net.IP(srcIP).String(), true
		}
	case icmpv6TypeNA:
		if mac, ok := findLLOption(options, ndpOptTargetLLAddr); ok {
			var key [16]byte
			copy(key[:], target)
			ndp.Update(key, mac)
			return true, net.IP(target).String(), true
		}
	}
	return true, "", false
}

// findLLOption walks ICMPv6 ND options, each padded to a multiple of
// 8 octets with its length expressed in those units, looking for a
// link-layer-address option of the given type.
func findLLOption(options []byte, wantType byte) (neighbor.MAC, bool) {
	for len(options) >= 8 {
		optType := options[0]
		optLen := int(options[1]) * 8
		if optLen == 0 || optLen > len(options) {
			return neighbor.MAC{}, false
		}
		if optType == wantType {
			var mac neighbor.MAC
			copy(mac[:], options[2:8])
			return mac, true
		}
		options = options[optLen:]
	}
	return neighbor.MAC{}, false
}

func be16(b []byte, off int) uint16 {
	return uint16(b[off])<<8 | uint16(b[off+1])
}
