package flowhash

import (
	"testing"

	"github.com/upe-project/upe/pkg/parser"
)

func TestComputeSymmetricIPv4(t *testing.T) {
	key := parser.FlowKey{
		IPVer:    4,
		SrcAddr:  [16]byte{10, 0, 0, 1},
		DstAddr:  [16]byte{10, 0, 0, 2},
		SrcPort:  1234,
		DstPort:  80,
		Protocol: 6,
	}
	reverse := key.SwapSrcDst()

	if Compute(key) != Compute(reverse) {
		t.Fatalf("got hash(A->B)=%d, hash(B->A)=%d, want equal", Compute(key), Compute(reverse))
	}
}

func TestComputeSymmetricIPv6(t *testing.T) {
	key := parser.FlowKey{
		IPVer:    6,
		SrcAddr:  [16]byte{0xfe, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
		DstAddr:  [16]byte{0xfe, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2},
		SrcPort:  53,
		DstPort:  5353,
		Protocol: 17,
	}
	reverse := key.SwapSrcDst()

	if Compute(key) != Compute(reverse) {
		t.Fatalf("got hash(A->B)=%d, hash(B->A)=%d, want equal", Compute(key), Compute(reverse))
	}
}

func TestComputeDeterministic(t *testing.T) {
	key := parser.FlowKey{
		IPVer:    4,
		SrcAddr:  [16]byte{192, 168, 1, 1},
		DstAddr:  [16]byte{192, 168, 1, 2},
		SrcPort:  1111,
		DstPort:  2222,
		Protocol: 6,
	}

	if Compute(key) != Compute(key) {
		t.Fatalf("Compute is not deterministic across repeated calls")
	}
}

func TestComputeDiffersByOneByteIPv4(t *testing.T) {
	a := parser.FlowKey{
		IPVer:    4,
		SrcAddr:  [16]byte{192, 168, 1, 1},
		DstAddr:  [16]byte{192, 168, 1, 2},
		SrcPort:  1111,
		DstPort:  2222,
		Protocol: 6,
	}
	b := a
	b.DstAddr[3] = a.DstAddr[3] + 1

	if Compute(a) == Compute(b) {
		t.Fatalf("got equal hashes for keys differing by one address byte, want different")
	}
}

func TestComputeDiffersByOneByteIPv6(t *testing.T) {
	a := parser.FlowKey{
		IPVer:    6,
		SrcAddr:  [16]byte{0xfe, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
		DstAddr:  [16]byte{0xfe, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2},
		SrcPort:  53,
		DstPort:  5353,
		Protocol: 17,
	}
	b := a
	b.DstAddr[15] = a.DstAddr[15] + 1

	if Compute(a) == Compute(b) {
		t.Fatalf("got equal hashes for IPv6 keys differing by one address byte, want different")
	}
}
