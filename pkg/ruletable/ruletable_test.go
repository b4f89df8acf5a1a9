package ruletable

import (
	"testing"

	"github.com/upe-project/upe/pkg/parser"
)

func TestRuleOrderingByPriorityThenInsertion(t *testing.T) {
	rt := New()
	rt.Add(Rule{Priority: 100})
	rt.Add(Rule{Priority: 10})
	rt.Add(Rule{Priority: 66})

	got := rt.Rules()
	want := []uint32{10, 66, 100}
	if len(got) != len(want) {
		t.Fatalf("got %d rules, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Priority != w {
			t.Fatalf("position %d: got priority %d, want %d", i, got[i].Priority, w)
		}
	}
}

func TestRuleOrderingTiesBreakByInsertionOrder(t *testing.T) {
	rt := New()
	first := rt.Add(Rule{Priority: 50})
	second := rt.Add(Rule{Priority: 50})

	got := rt.Rules()
	if got[0].RuleID != first.RuleID || got[1].RuleID != second.RuleID {
		t.Fatalf("expected insertion order to break priority tie, got %v", got)
	}
}

func TestWildcardRuleMatchesEveryKeyOfItsVersion(t *testing.T) {
	rt := New()
	rt.Add(Rule{Priority: 1, IPVer: 4, Action: ActionForward})

	keys := []parser.FlowKey{
		{IPVer: 4, Protocol: 6, SrcPort: 1, DstPort: 2},
		{IPVer: 4, Protocol: 17, SrcPort: 0, DstPort: 0},
		{IPVer: 4, Protocol: 1},
	}
	for _, k := range keys {
		if _, ok := rt.Match(k); !ok {
			t.Fatalf("expected wildcard rule to match key %+v", k)
		}
	}

	// Different IP version must not match a version-pinned wildcard.
	if _, ok := rt.Match(parser.FlowKey{IPVer: 6}); ok {
		t.Fatal("expected no match for a different IP version")
	}
}

func TestMatchReturnsFirstMatchingRuleInOrder(t *testing.T) {
	rt := New()
	rt.Add(Rule{Priority: 100, Protocol: 6, Action: ActionForward, OutIfindex: 1})
	rt.Add(Rule{Priority: 10, Protocol: 6, DstPort: 22, Action: ActionDrop})

	key := parser.FlowKey{IPVer: 4, Protocol: 6, DstPort: 22}
	rule, ok := rt.Match(key)
	if !ok {
		t.Fatal("expected a match")
	}
	if rule.Action != ActionDrop {
		t.Fatalf("expected the higher-priority drop rule to win, got %v", rule.Action)
	}
}

func TestAddressMaskMatching(t *testing.T) {
	rt := New()
	var mask [16]byte
	mask[0], mask[1], mask[2] = 0xff, 0xff, 0xff // /24
	rt.Add(Rule{
		Priority: 1,
		IPVer:    4,
		DstAddr:  [16]byte{10, 0, 0, 0},
		DstMask:  mask,
		Action:   ActionForward,
	})

	inside := parser.FlowKey{IPVer: 4, DstAddr: [16]byte{10, 0, 0, 42}}
	outside := parser.FlowKey{IPVer: 4, DstAddr: [16]byte{10, 0, 1, 42}}

	if _, ok := rt.Match(inside); !ok {
		t.Fatal("expected address within /24 to match")
	}
	if _, ok := rt.Match(outside); ok {
		t.Fatal("expected address outside /24 to not match")
	}
}

func TestAddNormalizesAddressUnderZeroMask(t *testing.T) {
	rt := New()
	rule := rt.Add(Rule{
		Priority: 1,
		SrcAddr:  [16]byte{1, 2, 3, 4}, // stray bits with no mask
	})
	var zero [16]byte
	if rule.SrcAddr != zero {
		t.Fatalf("expected normalize to zero address under zero mask, got %v", rule.SrcAddr)
	}
}

func TestNoMatchReturnsFalse(t *testing.T) {
	rt := New()
	rt.Add(Rule{Priority: 1, Protocol: 6})
	if _, ok := rt.Match(parser.FlowKey{Protocol: 17}); ok {
		t.Fatal("expected no match for a protocol-mismatched key")
	}
}
