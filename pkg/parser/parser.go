// Package parser implements zero-copy extraction of a FlowKey from an
// Ethernet-framed packet. Reads are byte-wise, never through aligned
// wide loads, so a frame placed at an odd memory offset parses
// identically to one placed at an aligned offset.
package parser

import "errors"

// ErrNotClassifiable is returned for any frame the parser cannot turn
// into a FlowKey: an unsupported EtherType (including ARP), a
// malformed or truncated IP header, or an unsupported/truncated L4
// header.
var ErrNotClassifiable = errors.New("parser: not classifiable")

const (
	ethHeaderLen    = 14
	etherTypeOffset = 12

	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86DD

	ipv4MinHeaderLen = 20
	ipv6HeaderLen    = 40

	protoICMP   = 1
	protoTCP    = 6
	protoUDP    = 17
	protoICMPv6 = 58
)

// EtherType returns the 16-bit EtherType field of an Ethernet frame,
// or ok=false if frame is shorter than a bare Ethernet header. Used by
// the worker's control-plane snoop to dispatch ARP and ICMPv6 ND
// frames before invoking Parse.
func EtherType(frame []byte) (uint16, bool) {
	if len(frame) < ethHeaderLen {
		return 0, false
	}
	return be16(frame, etherTypeOffset), true
}

// Parse extracts a FlowKey from an Ethernet frame. It returns
// ErrNotClassifiable for anything it cannot turn into a 5-tuple:
// unsupported EtherType, truncated/malformed IP header, or
// unsupported/truncated L4 header.
func Parse(frame []byte) (FlowKey, error) {
	etherType, ok := EtherType(frame)
	if !ok {
		return FlowKey{}, ErrNotClassifiable
	}

	switch etherType {
	case etherTypeIPv4:
		return parseIPv4(frame[ethHeaderLen:])
	case etherTypeIPv6:
		return parseIPv6(frame[ethHeaderLen:])
	default:
		// Includes ARP (0x0806): not classifiable into a 5-tuple.
		return FlowKey{}, ErrNotClassifiable
	}
}

func parseIPv4(ip []byte) (FlowKey, error) {
	if len(ip) < ipv4MinHeaderLen {
		return FlowKey{}, ErrNotClassifiable
	}
	version := ip[0] >> 4
	ihl := int(ip[0]&0x0F) * 4
	if version != 4 || ihl < ipv4MinHeaderLen {
		return FlowKey{}, ErrNotClassifiable
	}
	if len(ip) < ihl {
		return FlowKey{}, ErrNotClassifiable
	}

	var key FlowKey
	key.IPVer = 4
	copy(key.SrcAddr[:4], ip[12:16])
	copy(key.DstAddr[:4], ip[16:20])
	protocol := ip[9]
	key.Protocol = protocol

	l4 := ip[ihl:]
	if err := parseL4(&key, protocol, l4); err != nil {
		return FlowKey{}, err
	}
	return key, nil
}

func parseIPv6(ip []byte) (FlowKey, error) {
	if len(ip) < ipv6HeaderLen {
		return FlowKey{}, ErrNotClassifiable
	}
	version := ip[0] >> 4
	if version != 6 {
		return FlowKey{}, ErrNotClassifiable
	}

	var key FlowKey
	key.IPVer = 6
	nextHeader := ip[6]
	copy(key.SrcAddr[:16], ip[8:24])
	copy(key.DstAddr[:16], ip[24:40])
	key.Protocol = nextHeader

	l4 := ip[ipv6HeaderLen:]
	if err := parseL4(&key, nextHeader, l4); err != nil {
		return FlowKey{}, err
	}
	return key, nil
}

func parseL4(key *FlowKey, protocol uint8, l4 []byte) error {
	switch protocol {
	case protoUDP:
		if len(l4) < 8 {
			return ErrNotClassifiable
		}
		key.SrcPort = be16(l4, 0)
		key.DstPort = be16(l4, 2)
		return nil

	case protoTCP:
		if len(l4) < ipv4MinHeaderLen {
			return ErrNotClassifiable
		}
		key.SrcPort = be16(l4, 0)
		key.DstPort = be16(l4, 2)
		dataOffset := int(l4[12]>>4) * 4
		if dataOffset < ipv4MinHeaderLen || dataOffset > len(l4) {
			return ErrNotClassifiable
		}
		return nil

	case protoICMP, protoICMPv6:
		if len(l4) < 8 {
			return ErrNotClassifiable
		}
		typ := l4[0]
		code := l4[1]
		identifier := be16(l4, 4)
		key.SrcPort = identifier
		key.DstPort = uint16(typ)<<8 | uint16(code)
		return nil

	default:
		return ErrNotClassifiable
	}
}

// be16 reads a big-endian 16-bit integer at offset off, byte-wise, so
// it is safe regardless of the slice's base alignment.
func be16(b []byte, off int) uint16 {
	return uint16(b[off])<<8 | uint16(b[off+1])
}
