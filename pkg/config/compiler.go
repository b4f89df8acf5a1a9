package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/vishvananda/netlink"

	"github.com/upe-project/upe/pkg/ruletable"
)

// IfindexResolver resolves an interface name to its kernel ifindex.
// Load takes one as a parameter so tests can inject a fake resolver
// without a real network namespace.
type IfindexResolver func(name string) (int, error)

// NetlinkResolver resolves names against the running kernel's link
// table via github.com/vishvananda/netlink, the same library the
// teacher uses directly for interface lookups elsewhere in the tree.
func NetlinkResolver(name string) (int, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return 0, fmt.Errorf("config: resolve interface %q: %w", name, err)
	}
	return link.Attrs().Index, nil
}

// LoadFile reads and compiles a rule file from path using the live
// netlink resolver for out_iface lookups.
func LoadFile(path string) (*ruletable.RuleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Load(string(data), NetlinkResolver)
}

// Load compiles rule-file source into a frozen RuleTable. resolve is
// called once per "fwd" rule's out_iface key; an error from resolve
// is a load failure, matching an unresolvable out_iface at load time.
func Load(src string, resolve IfindexResolver) (*ruletable.RuleTable, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	sections, err := parse(tokens)
	if err != nil {
		return nil, err
	}

	rt := ruletable.New()
	for _, sec := range sections {
		if sec.Name != "rule" {
			return nil, fmt.Errorf("config: line %d: unknown section [%s]", sec.Line, sec.Name)
		}
		rule, err := compileRule(sec, resolve)
		if err != nil {
			return nil, err
		}
		rt.Add(rule)
	}
	return rt, nil
}

func compileRule(sec Section, resolve IfindexResolver) (ruletable.Rule, error) {
	var rule ruletable.Rule

	priorityStr, ok := sec.Keys["priority"]
	if !ok {
		return rule, fmt.Errorf("config: line %d: [rule] missing required key %q", sec.Line, "priority")
	}
	priority, err := strconv.ParseUint(priorityStr, 10, 32)
	if err != nil {
		return rule, fmt.Errorf("config: line %d: priority %q: %w", sec.Line, priorityStr, err)
	}
	rule.Priority = uint32(priority)

	if v, ok := sec.Keys["ip_version"]; ok {
		switch v {
		case "4":
			rule.IPVer = 4
		case "6":
			rule.IPVer = 6
		default:
			return rule, fmt.Errorf("config: line %d: ip_version must be 4 or 6, got %q", sec.Line, v)
		}
	}

	if v, ok := sec.Keys["protocol"]; ok {
		proto, err := parseProtocol(v)
		if err != nil {
			return rule, fmt.Errorf("config: line %d: %w", sec.Line, err)
		}
		rule.Protocol = proto
	}

	if v, ok := sec.Keys["src"]; ok {
		addr, mask, err := parseAddrMask(v, rule.IPVer)
		if err != nil {
			return rule, fmt.Errorf("config: line %d: src %q: %w", sec.Line, v, err)
		}
		rule.SrcAddr, rule.SrcMask = addr, mask
	}
	if v, ok := sec.Keys["dst"]; ok {
		addr, mask, err := parseAddrMask(v, rule.IPVer)
		if err != nil {
			return rule, fmt.Errorf("config: line %d: dst %q: %w", sec.Line, v, err)
		}
		rule.DstAddr, rule.DstMask = addr, mask
	}

	if v, ok := sec.Keys["src_port"]; ok {
		port, err := parsePort(v)
		if err != nil {
			return rule, fmt.Errorf("config: line %d: src_port %q: %w", sec.Line, v, err)
		}
		rule.SrcPort = port
	}
	if v, ok := sec.Keys["dst_port"]; ok {
		port, err := parsePort(v)
		if err != nil {
			return rule, fmt.Errorf("config: line %d: dst_port %q: %w", sec.Line, v, err)
		}
		rule.DstPort = port
	}

	action, ok := sec.Keys["action"]
	if !ok {
		return rule, fmt.Errorf("config: line %d: [rule] missing required key %q", sec.Line, "action")
	}
	switch action {
	case "drop":
		rule.Action = ruletable.ActionDrop
	case "fwd":
		rule.Action = ruletable.ActionForward
		iface, ok := sec.Keys["out_iface"]
		if !ok {
			return rule, fmt.Errorf("config: line %d: fwd rule missing required key %q", sec.Line, "out_iface")
		}
		ifindex, err := resolve(iface)
		if err != nil {
			return rule, fmt.Errorf("config: line %d: %w", sec.Line, err)
		}
		rule.OutIfindex = ifindex
	default:
		return rule, fmt.Errorf("config: line %d: action must be drop or fwd, got %q", sec.Line, action)
	}

	return rule, nil
}

func parseProtocol(v string) (uint8, error) {
	switch strings.ToLower(v) {
	case "tcp":
		return 6, nil
	case "udp":
		return 17, nil
	case "icmp":
		return 1, nil
	case "icmpv6":
		return 58, nil
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown protocol %q", v)
	}
	return uint8(n), nil
}

func parsePort(v string) (uint16, error) {
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}

// parseAddrMask parses "addr" or "addr/prefixlen" into a 16-byte
// address/mask pair in the same layout ruletable.Rule and
// parser.FlowKey use: IPv4 addresses in the first 4 bytes, IPv6 across
// all 16. If ipVer is 0 (not yet known from an explicit ip_version
// key), the address family is inferred from the literal itself.
func parseAddrMask(v string, ipVer uint8) (addr [16]byte, mask [16]byte, err error) {
	ipStr := v
	prefix := -1
	if idx := strings.IndexByte(v, '/'); idx >= 0 {
		ipStr = v[:idx]
		prefix, err = strconv.Atoi(v[idx+1:])
		if err != nil {
			return addr, mask, fmt.Errorf("invalid prefix length: %w", err)
		}
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return addr, mask, fmt.Errorf("invalid address %q", ipStr)
	}

	isV4 := ipVer == 4 || (ipVer == 0 && ip.To4() != nil)
	if isV4 {
		ip4 := ip.To4()
		if ip4 == nil {
			return addr, mask, fmt.Errorf("%q is not an IPv4 address", ipStr)
		}
		if prefix < 0 {
			prefix = 32
		}
		copy(addr[:4], ip4)
		setMaskBits(mask[:4], prefix)
		return addr, mask, nil
	}

	ip16 := ip.To16()
	if ip16 == nil {
		return addr, mask, fmt.Errorf("invalid IPv6 address %q", ipStr)
	}
	if prefix < 0 {
		prefix = 128
	}
	copy(addr[:16], ip16)
	setMaskBits(mask[:16], prefix)
	return addr, mask, nil
}

func setMaskBits(m []byte, prefix int) {
	for i := range m {
		switch {
		case prefix <= 0:
			m[i] = 0
		case prefix >= 8:
			m[i] = 0xFF
			prefix -= 8
		default:
			m[i] = byte(0xFF << (8 - prefix))
			prefix = 0
		}
	}
}
