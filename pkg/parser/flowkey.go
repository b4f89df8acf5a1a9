package parser

// FlowKey is the 5-tuple extracted from an Ethernet-framed packet.
// Addresses are stored in a fixed 16-byte field regardless of IP
// version so FlowKey stays a plain, comparable value type; IPv4
// addresses occupy the first 4 bytes and the remaining 12 are zero.
//
// For ICMP/ICMPv6, SrcPort carries the 16-bit identifier and DstPort
// carries (type<<8 | code).
type FlowKey struct {
	IPVer    uint8
	SrcAddr  [16]byte
	DstAddr  [16]byte
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// SwapSrcDst returns a copy of k with source and destination address
// and port swapped — used to check flow-hash symmetry.
func (k FlowKey) SwapSrcDst() FlowKey {
	swapped := k
	swapped.SrcAddr, swapped.DstAddr = k.DstAddr, k.SrcAddr
	swapped.SrcPort, swapped.DstPort = k.DstPort, k.SrcPort
	return swapped
}
