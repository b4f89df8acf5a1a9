package dataplane

import (
	"testing"

	"github.com/upe-project/upe/pkg/flowhash"
	"github.com/upe-project/upe/pkg/parser"
)

func TestRSSSymmetryAcrossRingCounts(t *testing.T) {
	key := parser.FlowKey{
		IPVer:    4,
		SrcAddr:  [16]byte{10, 0, 0, 1},
		DstAddr:  [16]byte{10, 0, 0, 2},
		SrcPort:  51000,
		DstPort:  443,
		Protocol: 6,
	}
	reverse := key.SwapSrcDst()

	for _, ringCount := range []uint32{1, 2, 4, 8, 64} {
		mask := ringCount - 1
		fwd := flowhash.Compute(key) & mask
		rev := flowhash.Compute(reverse) & mask
		if fwd != rev {
			t.Fatalf("ring_count=%d: forward index %d != reverse index %d", ringCount, fwd, rev)
		}
	}
}
