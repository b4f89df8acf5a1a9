package config

import (
	"errors"
	"strings"
	"testing"
)

func fakeResolver(known map[string]int) IfindexResolver {
	return func(name string) (int, error) {
		if idx, ok := known[name]; ok {
			return idx, nil
		}
		return 0, errors.New("no such interface")
	}
}

func TestLoadAcceptsMinimalDropRule(t *testing.T) {
	src := `
[rule]
priority = 100
action = drop
`
	rt, err := Load(src, fakeResolver(nil))
	if err != nil {
		t.Fatal(err)
	}
	if rt.Len() != 1 {
		t.Fatalf("expected 1 rule, got %d", rt.Len())
	}
}

func TestLoadSkipsCommentsAndBlankLines(t *testing.T) {
	src := `
; top comment
# another comment

[rule]
priority = 1
action = drop
# trailing comment
`
	rt, err := Load(src, fakeResolver(nil))
	if err != nil {
		t.Fatal(err)
	}
	if rt.Len() != 1 {
		t.Fatalf("expected 1 rule, got %d", rt.Len())
	}
}

func TestLoadResolvesOutIfaceForForwardRule(t *testing.T) {
	src := `
[rule]
priority = 10
action = fwd
out_iface = eth0
`
	rt, err := Load(src, fakeResolver(map[string]int{"eth0": 3}))
	if err != nil {
		t.Fatal(err)
	}
	rules := rt.Rules()
	if rules[0].OutIfindex != 3 {
		t.Fatalf("expected ifindex 3, got %d", rules[0].OutIfindex)
	}
}

func TestLoadRejectsForwardRuleWithUnresolvableIface(t *testing.T) {
	src := `
[rule]
priority = 10
action = fwd
out_iface = nope0
`
	_, err := Load(src, fakeResolver(nil))
	if err == nil {
		t.Fatal("expected an error for an unresolvable out_iface")
	}
}

func TestLoadRejectsForwardRuleMissingOutIface(t *testing.T) {
	src := `
[rule]
priority = 10
action = fwd
`
	_, err := Load(src, fakeResolver(nil))
	if err == nil {
		t.Fatal("expected an error for a fwd rule with no out_iface")
	}
}

func TestLoadRejectsMissingPriority(t *testing.T) {
	src := `
[rule]
action = drop
`
	_, err := Load(src, fakeResolver(nil))
	if err == nil {
		t.Fatal("expected an error for a missing priority key")
	}
}

func TestLoadRejectsMissingAction(t *testing.T) {
	src := `
[rule]
priority = 1
`
	_, err := Load(src, fakeResolver(nil))
	if err == nil {
		t.Fatal("expected an error for a missing action key")
	}
}

func TestLoadRejectsUnknownSection(t *testing.T) {
	src := `
[interface]
priority = 1
`
	_, err := Load(src, fakeResolver(nil))
	if err == nil {
		t.Fatal("expected an error for a non-rule section")
	}
}

func TestLoadRejectsUnknownProtocolName(t *testing.T) {
	src := `
[rule]
priority = 1
protocol = carrier-pigeon
action = drop
`
	_, err := Load(src, fakeResolver(nil))
	if err == nil {
		t.Fatal("expected an error for an unrecognized protocol name")
	}
}

func TestLoadAcceptsNumericProtocol(t *testing.T) {
	src := `
[rule]
priority = 1
protocol = 47
action = drop
`
	rt, err := Load(src, fakeResolver(nil))
	if err != nil {
		t.Fatal(err)
	}
	if rt.Rules()[0].Protocol != 47 {
		t.Fatalf("expected protocol 47, got %d", rt.Rules()[0].Protocol)
	}
}

func TestLoadDerivesMaskFromCIDRPrefix(t *testing.T) {
	src := `
[rule]
priority = 1
ip_version = 4
src = 10.0.0.0/8
action = drop
`
	rt, err := Load(src, fakeResolver(nil))
	if err != nil {
		t.Fatal(err)
	}
	rule := rt.Rules()[0]
	want := [16]byte{0xFF, 0, 0, 0}
	if rule.SrcMask != want {
		t.Fatalf("expected /8 mask %v, got %v", want, rule.SrcMask)
	}
	wantAddr := [16]byte{10, 0, 0, 0}
	if rule.SrcAddr != wantAddr {
		t.Fatalf("expected address %v, got %v", wantAddr, rule.SrcAddr)
	}
}

func TestLoadDefaultsToFullMaskWithoutPrefix(t *testing.T) {
	src := `
[rule]
priority = 1
ip_version = 4
dst = 192.168.1.1
action = drop
`
	rt, err := Load(src, fakeResolver(nil))
	if err != nil {
		t.Fatal(err)
	}
	rule := rt.Rules()[0]
	want := [16]byte{0xFF, 0xFF, 0xFF, 0xFF}
	if rule.DstMask != want {
		t.Fatalf("expected full /32 mask, got %v", rule.DstMask)
	}
}

func TestLoadParsesIPv6AddressAndPrefix(t *testing.T) {
	src := `
[rule]
priority = 1
ip_version = 6
src = 2001:db8::/32
action = drop
`
	rt, err := Load(src, fakeResolver(nil))
	if err != nil {
		t.Fatal(err)
	}
	rule := rt.Rules()[0]
	want := [16]byte{0xFF, 0xFF, 0xFF, 0xFF}
	if rule.SrcMask != want {
		t.Fatalf("expected /32 mask across first 4 bytes, got %v", rule.SrcMask)
	}
}

func TestLoadRejectsKeyOutsideSection(t *testing.T) {
	src := `priority = 1
[rule]
action = drop
`
	_, err := Load(src, fakeResolver(nil))
	if err == nil {
		t.Fatal("expected an error for a key before any section header")
	}
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	src := `
[rule]
this line has no equals sign
`
	_, err := Load(src, fakeResolver(nil))
	if err == nil {
		t.Fatal("expected an error for a line that is neither a header nor key=value")
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Fatalf("expected error to cite line 3, got %q", err)
	}
}

func TestLoadSortsMultipleRulesByPriority(t *testing.T) {
	src := `
[rule]
priority = 50
action = drop

[rule]
priority = 10
action = drop
`
	rt, err := Load(src, fakeResolver(nil))
	if err != nil {
		t.Fatal(err)
	}
	rules := rt.Rules()
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if rules[0].Priority != 10 || rules[1].Priority != 50 {
		t.Fatalf("expected rules sorted by ascending priority, got %+v", rules)
	}
}
