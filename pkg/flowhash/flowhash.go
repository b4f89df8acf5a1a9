// Package flowhash computes the symmetric 32-bit flow hash ingress
// uses to pick a worker ring. The only correctness property required
// is hash(A→B) == hash(B→A) plus determinism; distribution quality is
// not guaranteed.
package flowhash

import "github.com/upe-project/upe/pkg/parser"

// Compute returns a symmetric, deterministic 32-bit hash of key. For
// IPv4: XOR of src_addr, dst_addr, src_port, dst_port, protocol. For
// IPv6: each 128-bit address is folded into 32 bits by XORing its four
// 32-bit words, then XORed with ports and protocol the same way.
func Compute(key parser.FlowKey) uint32 {
	var h uint32
	switch key.IPVer {
	case 4:
		h = be32(key.SrcAddr[:4]) ^ be32(key.DstAddr[:4])
	case 6:
		h = fold128(key.SrcAddr[:16]) ^ fold128(key.DstAddr[:16])
	}
	h ^= uint32(key.SrcPort) ^ uint32(key.DstPort)
	h ^= uint32(key.Protocol)
	return h
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func fold128(b []byte) uint32 {
	return be32(b[0:4]) ^ be32(b[4:8]) ^ be32(b[8:12]) ^ be32(b[12:16])
}
